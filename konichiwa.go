// Package konichiwa assembles the chat service: authentication, durable
// message history and the conversation turn workflow against a remote
// language model.
package konichiwa

import (
	"github.com/mizuhq/konichiwa/auth"
	"github.com/mizuhq/konichiwa/chat"
	"github.com/mizuhq/konichiwa/inference"
	"github.com/mizuhq/konichiwa/server"
	"github.com/mizuhq/konichiwa/stores"
)

// Re-export core types for consumers of the root package
type Controller = chat.Controller
type Turn = chat.Turn
type Identity = auth.Identity
type Session = auth.Session
type Message = stores.Message

// NewController creates a conversation controller for one identity
func NewController(identity Identity, store chat.MessageStore, gateway inference.Gateway) *Controller {
	return chat.NewController(identity, store, gateway)
}

// App bundles the HTTP server with its authenticator, store and session
// janitor.
type App struct {
	Server        *server.Server
	Authenticator auth.Authenticator
	Janitor       *auth.Janitor
	Store         stores.RecordStore
}

// NewApp wires an App from the configuration, applying defaults for any
// collaborator left unset.
func NewApp(cfg *Config) (*App, error) {
	store := cfg.Store
	if store == nil {
		s, err := stores.NewSQLiteStoreDefault()
		if err != nil {
			return nil, err
		}
		store = s
	}

	gateway := cfg.Gateway
	if gateway == nil {
		gateway = inference.NewGeminiGateway("")
	}

	authn := auth.NewLocalAuthenticator(store).
		WithSessionTTL(cfg.SessionTTL).
		WithOAuthBase(cfg.OAuthBase)

	return &App{
		Server:        server.New(authn, store, gateway),
		Authenticator: authn,
		Janitor:       auth.NewJanitor(store, cfg.PruneSchedule, nil),
		Store:         store,
	}, nil
}

// Run starts the session janitor and serves the API on addr, blocking
// until the server stops.
func (a *App) Run(addr string) error {
	if err := a.Janitor.Start(); err != nil {
		return err
	}
	return a.Server.Router().Run(addr)
}

// Close stops the janitor and closes the store.
func (a *App) Close() error {
	a.Janitor.Stop()
	return a.Store.Close()
}
