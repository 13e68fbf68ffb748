// Package server exposes the chat workflow over HTTP and WebSocket.
package server

import (
	"errors"
	"log"
	"net/http"
	"os"
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/mizuhq/konichiwa/auth"
	"github.com/mizuhq/konichiwa/chat"
	"github.com/mizuhq/konichiwa/inference"
	"github.com/mizuhq/konichiwa/stores"
)

// Server wires the authenticator, record store and inference gateway into
// an HTTP API. It keeps one conversation controller per signed-in user.
type Server struct {
	authn   auth.Authenticator
	store   chat.MessageStore
	gateway inference.Gateway
	logger  *log.Logger

	mu          sync.Mutex
	controllers map[string]*controllerEntry
}

// controllerEntry tracks whether the one-time history bootstrap has
// succeeded yet; until it does, each acquisition retries it.
type controllerEntry struct {
	ctrl         *chat.Controller
	bootstrapped bool
}

// New creates a server over the given collaborators.
func New(authn auth.Authenticator, store chat.MessageStore, gateway inference.Gateway) *Server {
	return &Server{
		authn:       authn,
		store:       store,
		gateway:     gateway,
		logger:      log.New(os.Stdout, "[server] ", log.LstdFlags),
		controllers: make(map[string]*controllerEntry),
	}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	router := gin.Default()

	api := router.Group("/api/v1")

	authGroup := api.Group("/auth")
	authGroup.POST("/signup", s.handleSignUp)
	authGroup.POST("/signin", s.handleSignIn)
	authGroup.GET("/oauth/:provider", s.handleOAuth)
	authGroup.POST("/signout", s.handleSignOut)
	authGroup.GET("/me", s.requireAuth, s.handleMe)

	chatGroup := api.Group("/chat")
	chatGroup.GET("/history", s.requireAuth, s.handleHistory)
	chatGroup.POST("/message", s.requireAuth, s.handleMessage)
	chatGroup.GET("/ws", s.handleWebSocket)

	return router
}

type signUpRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
	FullName string `json:"full_name"`
}

type signInRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type messageRequest struct {
	Message string `json:"message"`
}

func (s *Server) handleSignUp(c *gin.Context) {
	var req signUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	identity, err := s.authn.SignUp(c.Request.Context(), req.Email, req.Password, req.FullName)
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"user": identity})
}

func (s *Server) handleSignIn(c *gin.Context) {
	var req signInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	session, err := s.authn.SignIn(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":      session.Token,
		"user":       session.Identity,
		"expires_at": session.ExpiresAt,
	})
}

func (s *Server) handleOAuth(c *gin.Context) {
	provider := c.Param("provider")
	redirectTo := c.Query("redirect_to")

	url, err := s.authn.SignInWithProvider(c.Request.Context(), provider, redirectTo)
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"url": url})
}

// handleSignOut invalidates the caller's session and drops their
// conversation controller. Idempotent: no token, or an already-dead one,
// still yields 204.
func (s *Server) handleSignOut(c *gin.Context) {
	token := bearerToken(c)

	if identity, err := s.authn.Current(c.Request.Context(), token); err == nil {
		s.dropController(identity.ID)
	}

	if err := s.authn.SignOut(c.Request.Context(), token); err != nil {
		s.writeError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (s *Server) handleMe(c *gin.Context) {
	identity := identityFrom(c)
	c.JSON(http.StatusOK, gin.H{"user": identity})
}

func (s *Server) handleHistory(c *gin.Context) {
	identity := identityFrom(c)

	ctrl, err := s.controller(c, identity)
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"messages": ctrl.Transcript()})
}

func (s *Server) handleMessage(c *gin.Context) {
	identity := identityFrom(c)

	var req messageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctrl, err := s.controller(c, identity)
	if err != nil {
		s.logger.Printf("History bootstrap failed for %s: %v", identity.ID, err)
		// Turns still work without a loaded history.
	}

	turn, err := ctrl.Submit(c.Request.Context(), req.Message)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, turn)
	case errors.Is(err, chat.ErrEmptyMessage):
		c.JSON(http.StatusBadRequest, gin.H{"error": "message must not be empty"})
	case errors.Is(err, chat.ErrTurnInFlight):
		c.JSON(http.StatusConflict, gin.H{"error": "a message is already being processed"})
	default:
		var infErr *inference.InferenceError
		if errors.As(err, &infErr) {
			// The user message is already durable; surface it with the
			// failure so the client can render it and offer a resubmit.
			c.JSON(http.StatusBadGateway, gin.H{
				"error":        "failed to get AI response",
				"user_message": turn.UserMessage,
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save message"})
	}
}

// controller returns the per-user conversation controller, creating and
// bootstrapping it on first acquisition. A failed bootstrap is retried on
// the next acquisition; the controller is usable either way.
func (s *Server) controller(c *gin.Context, identity auth.Identity) (*chat.Controller, error) {
	s.mu.Lock()
	entry, ok := s.controllers[identity.ID]
	if !ok {
		entry = &controllerEntry{ctrl: chat.NewController(identity, s.store, s.gateway)}
		s.controllers[identity.ID] = entry
	}
	needsBootstrap := !entry.bootstrapped
	s.mu.Unlock()

	if needsBootstrap {
		if err := entry.ctrl.Bootstrap(c.Request.Context()); err != nil {
			return entry.ctrl, err
		}
		s.mu.Lock()
		entry.bootstrapped = true
		s.mu.Unlock()
	}

	return entry.ctrl, nil
}

func (s *Server) dropController(userID string) {
	s.mu.Lock()
	entry, ok := s.controllers[userID]
	if ok {
		delete(s.controllers, userID)
	}
	s.mu.Unlock()

	if ok {
		entry.ctrl.Reset()
	}
}

// writeError maps the error taxonomy onto HTTP status codes. Auth
// failures carry the provider's message; everything else gets a generic
// body with the detail logged server-side.
func (s *Server) writeError(c *gin.Context, err error) {
	var authErr *auth.AuthError
	if errors.As(err, &authErr) {
		status := http.StatusBadRequest
		if authErr.Message == "not signed in" || authErr.Message == "session expired" ||
			authErr.Message == "invalid email or password" {
			status = http.StatusUnauthorized
		}
		c.JSON(status, gin.H{"error": authErr.Message})
		return
	}

	var storeErr *stores.StoreError
	if errors.As(err, &storeErr) {
		s.logger.Printf("Store error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "storage unavailable"})
		return
	}

	s.logger.Printf("Unhandled error: %v", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}
