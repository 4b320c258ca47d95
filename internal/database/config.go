package database

import (
	"fmt"

	"github.com/deckpipe/deckpipe/internal/config"
)

// dsn builds a libpq-style connection string from a database config.
func dsn(cfg config.DatabaseConfig) string {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, sslMode,
	)
}
