package database

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/deckpipe/deckpipe/internal/config"
)

func TestDSN_DefaultsSSLModeToDisableWhenUnset(t *testing.T) {
	got := dsn(config.DatabaseConfig{Host: "db.internal", Port: 5432, User: "u", Password: "p", Database: "d"})
	assert.Equal(t, "host=db.internal port=5432 user=u password=p dbname=d sslmode=disable", got)
}

func TestDSN_HonorsExplicitSSLMode(t *testing.T) {
	got := dsn(config.DatabaseConfig{Host: "db.internal", Port: 5432, User: "u", Password: "p", Database: "d", SSLMode: "require"})
	assert.Equal(t, "host=db.internal port=5432 user=u password=p dbname=d sslmode=require", got)
}
