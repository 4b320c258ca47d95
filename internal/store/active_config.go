package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/deckpipe/deckpipe/internal/config"
)

// GetActiveModelConfig implements config.ActiveConfigStore, reading the
// companion jobs_config row for kind.
func (s *Store) GetActiveModelConfig(ctx context.Context, kind config.ModelKind) (*config.ActiveModelConfig, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT kind, api_key, api_base, model_name, max_tokens, temperature
		FROM jobs_config WHERE kind = $1
	`, kind)

	var cfg config.ActiveModelConfig
	var kindStr string
	err := row.Scan(&kindStr, &cfg.APIKey, &cfg.APIBase, &cfg.ModelName, &cfg.MaxTokens, &cfg.Temperature)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("store: reading active config for kind %q: %w", kind, err)
	}
	cfg.Kind = config.ModelKind(kindStr)
	return &cfg, true, nil
}

// UpsertActiveModelConfig writes or replaces the active config for a kind.
// This is invoked by an external config-admin collaborator outside this
// core's scope — this method exists so that collaborator (or a test seeding
// fixture data) has somewhere to write.
func (s *Store) UpsertActiveModelConfig(ctx context.Context, cfg config.ActiveModelConfig) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO jobs_config (kind, api_key, api_base, model_name, max_tokens, temperature, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (kind) DO UPDATE SET
			api_key = EXCLUDED.api_key,
			api_base = EXCLUDED.api_base,
			model_name = EXCLUDED.model_name,
			max_tokens = EXCLUDED.max_tokens,
			temperature = EXCLUDED.temperature,
			updated_at = EXCLUDED.updated_at
	`, cfg.Kind, cfg.APIKey, cfg.APIBase, cfg.ModelName, cfg.MaxTokens, cfg.Temperature, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("store: upserting active config for kind %q: %w", cfg.Kind, err)
	}
	return nil
}
