package stage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunParse_EmptyMarkdownReturnsPreconditionMissing(t *testing.T) {
	e := &Engine{cache: newTestCache(t)}
	_, jobErr := e.runParse(context.Background(), "")
	require.NotNil(t, jobErr)
	assert.Equal(t, "PreconditionMissing", string(jobErr.Kind))
}

func TestRunParse_GeneratesAndCachesOnMiss(t *testing.T) {
	srv := newScriptedModelServer(t, `{"text":"{\"title\":\"Deck\",\"sections\":[{\"title\":\"Intro\"}]}"}`)
	e := &Engine{cache: newTestCache(t), pool: newTestPool(t, srv.URL)}

	outline, jobErr := e.runParse(context.Background(), "# Deck\n\nSome body")
	require.Nil(t, jobErr)
	require.NotNil(t, outline)
	assert.Equal(t, "Deck", outline.Title)
	require.Len(t, outline.Sections, 1)
	assert.Equal(t, "Intro", outline.Sections[0].Title)
}

func TestRunParse_CacheHitSkipsModelCall(t *testing.T) {
	cache := newTestCache(t)
	markdown := "# Deck\n\nBody"
	key, err := fingerprint(markdown)
	require.NoError(t, err)

	seeded := map[string]any{"title": "Cached", "sections": []map[string]string{{"title": "S1"}}}
	require.NoError(t, cache.Put(context.Background(), StageParse, key, seeded))

	e := &Engine{cache: cache} // no pool: a model call would nil-panic, proving it's skipped
	outline, jobErr := e.runParse(context.Background(), markdown)
	require.Nil(t, jobErr)
	assert.Equal(t, "Cached", outline.Title)
}

func TestRunParse_ZeroSectionOutlineFails(t *testing.T) {
	srv := newScriptedModelServer(t, `{"text":"{\"title\":\"Deck\",\"sections\":[]}"}`)
	e := &Engine{cache: newTestCache(t), pool: newTestPool(t, srv.URL)}

	_, jobErr := e.runParse(context.Background(), "# Deck")
	require.NotNil(t, jobErr)
	assert.Equal(t, "StageFailed", string(jobErr.Kind))
}

func TestRunParse_MalformedModelResponseFails(t *testing.T) {
	srv := newScriptedModelServer(t, `{"text":"not json"}`)
	e := &Engine{cache: newTestCache(t), pool: newTestPool(t, srv.URL)}

	_, jobErr := e.runParse(context.Background(), "# Deck")
	require.NotNil(t, jobErr)
	assert.Equal(t, "StageFailed", string(jobErr.Kind))
}
