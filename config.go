package konichiwa

import (
	"time"

	"github.com/mizuhq/konichiwa/auth"
	"github.com/mizuhq/konichiwa/inference"
	"github.com/mizuhq/konichiwa/stores"
)

// Config holds the collaborators and settings for a chat service.
type Config struct {
	Store         stores.RecordStore
	Gateway       inference.Gateway
	SessionTTL    time.Duration
	OAuthBase     string
	PruneSchedule string
}

// NewConfig creates a configuration with default values. Store and
// Gateway fall back to a local SQLite database and the Gemini API when
// left unset.
func NewConfig() *Config {
	return &Config{
		SessionTTL:    auth.DefaultSessionTTL,
		PruneSchedule: auth.DefaultJanitorSchedule,
	}
}

// WithStore sets the record store for the configuration
func (c *Config) WithStore(store stores.RecordStore) *Config {
	c.Store = store
	return c
}

// WithSQLiteStore sets a SQLite store with the specified database path
func (c *Config) WithSQLiteStore(dbPath string) *Config {
	store, err := stores.NewSQLiteStoreSimple(dbPath)
	if err != nil {
		panic("Failed to create SQLite store: " + err.Error())
	}
	c.Store = store
	return c
}

// WithPostgresStore sets a PostgreSQL store with the specified connection parameters
func (c *Config) WithPostgresStore(host, user, password, dbname string, port int) *Config {
	store, err := stores.NewPostgresStoreDefault(host, user, password, dbname, port)
	if err != nil {
		panic("Failed to create PostgreSQL store: " + err.Error())
	}
	c.Store = store
	return c
}

// WithGateway sets the inference gateway for the configuration
func (c *Config) WithGateway(gateway inference.Gateway) *Config {
	c.Gateway = gateway
	return c
}

// WithFunctionEndpoint routes completions through a deployed chat
// function instead of calling the model API directly
func (c *Config) WithFunctionEndpoint(endpoint, apiKey string) *Config {
	c.Gateway = inference.NewFunctionGateway(endpoint).WithAPIKey(apiKey)
	return c
}

// WithGeminiModel routes completions to the Gemini API with the given model
func (c *Config) WithGeminiModel(model string) *Config {
	c.Gateway = inference.NewGeminiGateway(model)
	return c
}

// WithSessionTTL sets how long sign-in sessions stay valid
func (c *Config) WithSessionTTL(ttl time.Duration) *Config {
	c.SessionTTL = ttl
	return c
}

// WithOAuthBase sets the external authorize endpoint for OAuth sign-in
func (c *Config) WithOAuthBase(base string) *Config {
	c.OAuthBase = base
	return c
}

// WithPruneSchedule sets the cron schedule for expired-session pruning
func (c *Config) WithPruneSchedule(schedule string) *Config {
	c.PruneSchedule = schedule
	return c
}
