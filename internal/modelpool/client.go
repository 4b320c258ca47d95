// Package modelpool implements the Model Client Pool: four lazily
// instantiated, rate-limited, retrying clients (text, vision, deep_thinking,
// embedding) sharing one narrow contract. The wire protocol to the actual
// model service is a Non-goal of this system; only the client contract and
// its rate-limit/retry/lifecycle discipline are specified, carried here over
// plain HTTP+JSON so no generated protobuf stubs are needed.
package modelpool

import (
	"context"
	"encoding/base64"
	"os"

	"github.com/deckpipe/deckpipe/internal/config"
)

// Client is the uniform async contract every model kind exposes: returns a
// string/vector or fails. Implementations must be safe for concurrent use.
type Client interface {
	GenerateText(ctx context.Context, prompt string) (string, error)
	GenerateEmbedding(ctx context.Context, text string) ([]float64, error)
	AnalyzeImage(ctx context.Context, imagePath, prompt string) (string, error)
	AnalyzeImages(ctx context.Context, imagePaths []string, prompt string) (string, error)
	// Close releases underlying connections. Safe and idempotent.
	Close() error
}

// encodeImage reads and base64-encodes the image at path for wire transport.
func encodeImage(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// activeConfigFor loads the active config for kind, used by Pool.Get before
// it constructs a kind's HTTP client.
func activeConfigFor(ctx context.Context, registry *config.ActiveConfigRegistry, kind config.ModelKind) (*config.ActiveModelConfig, error) {
	return registry.Get(ctx, kind)
}
