package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deckpipe/deckpipe/internal/config"
)

func TestGetActiveModelConfig_UnknownKindReturnsFoundFalse(t *testing.T) {
	s := newTestStore(t)
	cfg, found, err := s.GetActiveModelConfig(context.Background(), config.KindText)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, cfg)
}

func TestUpsertActiveModelConfig_ThenGetRoundTrips(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	cfg := config.ActiveModelConfig{
		Kind:        config.KindVision,
		APIKey:      "key-1",
		APIBase:     "https://models.internal/v1",
		ModelName:   "vision-large",
		MaxTokens:   2048,
		Temperature: 0.2,
	}
	require.NoError(t, s.UpsertActiveModelConfig(ctx, cfg))

	got, found, err := s.GetActiveModelConfig(ctx, config.KindVision)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, cfg.Kind, got.Kind)
	assert.Equal(t, cfg.APIKey, got.APIKey)
	assert.Equal(t, cfg.ModelName, got.ModelName)
	assert.Equal(t, cfg.MaxTokens, got.MaxTokens)
	assert.InDelta(t, cfg.Temperature, got.Temperature, 0.0001)
}

func TestUpsertActiveModelConfig_SecondCallReplacesFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.UpsertActiveModelConfig(ctx, config.ActiveModelConfig{
		Kind: config.KindText, ModelName: "v1", APIKey: "k1", APIBase: "b1",
	}))
	require.NoError(t, s.UpsertActiveModelConfig(ctx, config.ActiveModelConfig{
		Kind: config.KindText, ModelName: "v2", APIKey: "k2", APIBase: "b2",
	}))

	got, found, err := s.GetActiveModelConfig(ctx, config.KindText)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "v2", got.ModelName)
	assert.Equal(t, "k2", got.APIKey)
}
