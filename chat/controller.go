// Package chat implements the conversation workflow: persist the user's
// message, request a completion, persist the reply, and keep the ordered
// transcript consistent with the store.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"

	"github.com/mizuhq/konichiwa/auth"
	"github.com/mizuhq/konichiwa/inference"
	"github.com/mizuhq/konichiwa/stores"
)

// MessageStore is the slice of the record store the controller needs.
// *stores.SQLiteStore and *stores.PostgresStore satisfy it.
type MessageStore interface {
	LoadHistory(userID string) ([]stores.Message, error)
	Append(userID, content string, isAI bool) (stores.Message, error)
}

// Turn is the outcome of one submission. UserMessage is set whenever the
// user's message was persisted; Reply is set only when the AI reply was
// persisted too.
type Turn struct {
	UserMessage stores.Message  `json:"user_message"`
	Reply       *stores.Message `json:"reply,omitempty"`
}

var (
	// ErrEmptyMessage rejects submissions that are empty after trimming.
	ErrEmptyMessage = errors.New("chat: empty message")

	// ErrTurnInFlight rejects a submission while another turn is pending.
	ErrTurnInFlight = errors.New("chat: a turn is already in flight")
)

// Controller orchestrates turns for one identity. It owns the transcript
// cache and the in-flight guard; the store stays the canonical source of
// message state.
type Controller struct {
	identity auth.Identity
	store    MessageStore
	gateway  inference.Gateway
	logger   *log.Logger

	mu         sync.Mutex
	transcript []stores.Message
	pending    bool
}

// NewController creates a controller for identity. Call Bootstrap before
// accepting turns.
func NewController(identity auth.Identity, store MessageStore, gateway inference.Gateway) *Controller {
	return &Controller{
		identity: identity,
		store:    store,
		gateway:  gateway,
		logger:   log.New(os.Stdout, fmt.Sprintf("[chat %s] ", identity.ID), log.LstdFlags),
	}
}

// Identity returns the identity this controller belongs to
func (c *Controller) Identity() auth.Identity {
	return c.identity
}

// Bootstrap replaces the transcript wholesale with the stored history.
// On failure the transcript is left untouched; the controller still
// accepts turns, since appends do not depend on a loaded history.
func (c *Controller) Bootstrap(ctx context.Context) error {
	history, err := c.store.LoadHistory(c.identity.ID)
	if err != nil {
		c.logger.Printf("Error loading history: %v", err)
		return err
	}

	c.mu.Lock()
	c.transcript = history
	c.mu.Unlock()
	return nil
}

// Submit runs one turn: persist the user message, request a completion,
// persist the reply. The returned Turn reflects how far the turn got; on
// partial failure the user's message is already durable and stays in the
// transcript.
func (c *Controller) Submit(ctx context.Context, text string) (Turn, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Turn{}, ErrEmptyMessage
	}

	c.mu.Lock()
	if c.pending {
		c.mu.Unlock()
		return Turn{}, ErrTurnInFlight
	}
	c.pending = true
	c.mu.Unlock()

	// Every exit path clears the in-flight guard.
	defer func() {
		c.mu.Lock()
		c.pending = false
		c.mu.Unlock()
	}()

	userMsg, err := c.store.Append(c.identity.ID, text, false)
	if err != nil {
		c.logger.Printf("Error saving user message: %v", err)
		return Turn{}, err
	}
	// The user sees their own message right away, independent of the
	// inference outcome. Only the store's confirmed record is appended,
	// never a locally fabricated one.
	c.appendToTranscript(userMsg)

	completion, err := c.gateway.Complete(ctx, text)
	if err != nil {
		c.logger.Printf("Error getting AI response: %v", err)
		return Turn{UserMessage: userMsg}, err
	}

	aiMsg, err := c.store.Append(c.identity.ID, completion, true)
	if err != nil {
		// The user message already has durable effect; the reply is lost.
		c.logger.Printf("Error saving AI message: %v", err)
		return Turn{UserMessage: userMsg}, err
	}
	c.appendToTranscript(aiMsg)

	return Turn{UserMessage: userMsg, Reply: &aiMsg}, nil
}

// Transcript returns a copy of the current ordered transcript.
func (c *Controller) Transcript() []stores.Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]stores.Message, len(c.transcript))
	copy(out, c.transcript)
	return out
}

// Pending reports whether a turn is currently in flight.
func (c *Controller) Pending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending
}

// Reset clears the transcript and the in-flight guard. Used on sign-out.
func (c *Controller) Reset() {
	c.mu.Lock()
	c.transcript = nil
	c.pending = false
	c.mu.Unlock()
}

func (c *Controller) appendToTranscript(msg stores.Message) {
	c.mu.Lock()
	c.transcript = append(c.transcript, msg)
	c.mu.Unlock()
}
