package chat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mizuhq/konichiwa/auth"
	"github.com/mizuhq/konichiwa/stores"
)

// fakeStore is an in-memory MessageStore with switchable failure modes.
type fakeStore struct {
	mu         sync.Mutex
	msgs       []stores.Message
	nextID     uint
	failLoad   bool
	failAppend bool
}

func (f *fakeStore) LoadHistory(userID string) ([]stores.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failLoad {
		return nil, &stores.StoreError{Op: "load history", Err: errors.New("connection refused")}
	}
	out := make([]stores.Message, 0)
	for _, m := range f.msgs {
		if m.UserID == userID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeStore) Append(userID, content string, isAI bool) (stores.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAppend {
		return stores.Message{}, &stores.StoreError{Op: "append message", Err: errors.New("insert failed")}
	}
	f.nextID++
	msg := stores.Message{
		ID:        f.nextID,
		Content:   content,
		IsAI:      isAI,
		CreatedAt: time.Now(),
		UserID:    userID,
	}
	f.msgs = append(f.msgs, msg)
	return msg, nil
}

// fakeGateway returns a fixed completion, an error, or blocks until
// released.
type fakeGateway struct {
	reply   string
	err     error
	block   chan struct{} // when set, Complete waits for it to close
	entered chan struct{} // when set, closed once Complete is running
}

func (g *fakeGateway) Complete(ctx context.Context, prompt string) (string, error) {
	if g.entered != nil {
		close(g.entered)
	}
	if g.block != nil {
		<-g.block
	}
	if g.err != nil {
		return "", g.err
	}
	return g.reply, nil
}

func testIdentity() auth.Identity {
	return auth.Identity{ID: "user-1", Email: "mizu@example.com"}
}

func TestSubmit_FullTurn(t *testing.T) {
	store := &fakeStore{}
	c := NewController(testIdentity(), store, &fakeGateway{reply: "Hi there"})

	turn, err := c.Submit(context.Background(), "Hello")
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if turn.UserMessage.Content != "Hello" || turn.UserMessage.IsAI {
		t.Errorf("Unexpected user message: %+v", turn.UserMessage)
	}
	if turn.Reply == nil || turn.Reply.Content != "Hi there" || !turn.Reply.IsAI {
		t.Errorf("Unexpected reply: %+v", turn.Reply)
	}

	got := c.Transcript()
	if len(got) != 2 {
		t.Fatalf("Expected 2 transcript entries, got %d", len(got))
	}
	if got[0].Content != "Hello" || got[0].IsAI {
		t.Errorf("First entry should be the user message: %+v", got[0])
	}
	if got[1].Content != "Hi there" || !got[1].IsAI {
		t.Errorf("Second entry should be the AI reply: %+v", got[1])
	}
	if c.Pending() {
		t.Error("Pending should be cleared after the turn")
	}
}

func TestSubmit_TrimsAndRejectsEmptyInput(t *testing.T) {
	store := &fakeStore{}
	c := NewController(testIdentity(), store, &fakeGateway{reply: "unused"})

	for _, input := range []string{"", "   ", "\n\t"} {
		if _, err := c.Submit(context.Background(), input); !errors.Is(err, ErrEmptyMessage) {
			t.Errorf("Input %q: expected ErrEmptyMessage, got %v", input, err)
		}
	}
	if len(c.Transcript()) != 0 {
		t.Error("Transcript should stay empty after rejected input")
	}
}

func TestSubmit_UserAppendFailure(t *testing.T) {
	store := &fakeStore{failAppend: true}
	c := NewController(testIdentity(), store, &fakeGateway{reply: "unused"})

	_, err := c.Submit(context.Background(), "Test")
	var storeErr *stores.StoreError
	if !errors.As(err, &storeErr) {
		t.Fatalf("Expected *StoreError, got %v", err)
	}
	if len(c.Transcript()) != 0 {
		t.Error("Transcript should stay empty when the user append fails")
	}
	if c.Pending() {
		t.Error("Pending should be cleared after a failed turn")
	}
}

func TestSubmit_InferenceFailureKeepsUserMessage(t *testing.T) {
	store := &fakeStore{}
	gwErr := errors.New("model unreachable")
	c := NewController(testIdentity(), store, &fakeGateway{err: gwErr})

	turn, err := c.Submit(context.Background(), "Test2")
	if !errors.Is(err, gwErr) {
		t.Fatalf("Expected gateway error, got %v", err)
	}
	if turn.UserMessage.Content != "Test2" {
		t.Errorf("Turn should carry the persisted user message: %+v", turn)
	}
	if turn.Reply != nil {
		t.Error("No reply should be present on inference failure")
	}

	got := c.Transcript()
	if len(got) != 1 || got[0].Content != "Test2" || got[0].IsAI {
		t.Errorf("Transcript should hold exactly the user message, got %+v", got)
	}
	if c.Pending() {
		t.Error("Pending should be cleared after inference failure")
	}
}

func TestSubmit_ReplyAppendFailureKeepsUserMessage(t *testing.T) {
	store := &fakeStore{}
	// Fail the store only after the user message went through: the
	// gateway hook flips the failure mode between the two appends.
	gw := &gatewayWithHook{
		reply: "lost reply",
		after: func() {
			store.mu.Lock()
			store.failAppend = true
			store.mu.Unlock()
		},
	}
	c := NewController(testIdentity(), store, gw)

	turn, err := c.Submit(context.Background(), "second")
	var storeErr *stores.StoreError
	if !errors.As(err, &storeErr) {
		t.Fatalf("Expected *StoreError from reply append, got %v", err)
	}
	if turn.UserMessage.Content != "second" {
		t.Errorf("User message should be reported even when the reply append fails: %+v", turn)
	}

	got := c.Transcript()
	if len(got) != 1 || got[0].Content != "second" {
		t.Errorf("Transcript should keep the user message only, got %+v", got)
	}
}

// gatewayWithHook runs a callback after producing its completion.
type gatewayWithHook struct {
	reply string
	after func()
}

func (g *gatewayWithHook) Complete(ctx context.Context, prompt string) (string, error) {
	if g.after != nil {
		defer g.after()
	}
	return g.reply, nil
}

func TestSubmit_ReentryGuard(t *testing.T) {
	store := &fakeStore{}
	gw := &fakeGateway{
		reply:   "slow reply",
		block:   make(chan struct{}),
		entered: make(chan struct{}),
	}
	c := NewController(testIdentity(), store, gw)

	done := make(chan error, 1)
	go func() {
		_, err := c.Submit(context.Background(), "first")
		done <- err
	}()

	<-gw.entered
	if !c.Pending() {
		t.Error("Pending should be true while the turn is in flight")
	}

	// Second submit while the first is pending must be a no-op.
	if _, err := c.Submit(context.Background(), "second"); !errors.Is(err, ErrTurnInFlight) {
		t.Errorf("Expected ErrTurnInFlight, got %v", err)
	}

	close(gw.block)
	if err := <-done; err != nil {
		t.Fatalf("First turn failed: %v", err)
	}

	got := c.Transcript()
	if len(got) != 2 {
		t.Fatalf("Transcript should reflect exactly one turn, got %d entries", len(got))
	}
	if got[0].Content != "first" || got[1].Content != "slow reply" {
		t.Errorf("Unexpected transcript: %+v", got)
	}
}

func TestBootstrap_ReplacesTranscriptWholesale(t *testing.T) {
	store := &fakeStore{}
	c := NewController(testIdentity(), store, &fakeGateway{reply: "pong"})

	if _, err := c.Submit(context.Background(), "ping"); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if len(c.Transcript()) != 2 {
		t.Fatalf("Expected 2 entries before bootstrap")
	}

	// Reloading must replace, never merge or duplicate.
	if err := c.Bootstrap(context.Background()); err != nil {
		t.Fatalf("Bootstrap failed: %v", err)
	}
	got := c.Transcript()
	if len(got) != 2 {
		t.Errorf("Expected 2 entries after reload, got %d", len(got))
	}
}

func TestBootstrap_FailureLeavesControllerUsable(t *testing.T) {
	store := &fakeStore{failLoad: true}
	c := NewController(testIdentity(), store, &fakeGateway{reply: "Hi"})

	if err := c.Bootstrap(context.Background()); err == nil {
		t.Fatal("Expected bootstrap error")
	}
	if len(c.Transcript()) != 0 {
		t.Error("Transcript should stay empty after failed bootstrap")
	}

	// Turns must still work.
	if _, err := c.Submit(context.Background(), "Hello"); err != nil {
		t.Fatalf("Submit after failed bootstrap should work: %v", err)
	}
	if len(c.Transcript()) != 2 {
		t.Errorf("Expected 2 entries after turn, got %d", len(c.Transcript()))
	}
}

func TestBootstrap_LoadsPersistedHistoryInOrder(t *testing.T) {
	store := &fakeStore{}
	for _, m := range []struct {
		content string
		isAI    bool
	}{{"Hello", false}, {"Hi there", true}, {"How are you?", false}} {
		if _, err := store.Append("user-1", m.content, m.isAI); err != nil {
			t.Fatalf("Seed append failed: %v", err)
		}
	}
	// A different user's message must not leak in.
	if _, err := store.Append("user-2", "other", false); err != nil {
		t.Fatalf("Seed append failed: %v", err)
	}

	c := NewController(testIdentity(), store, &fakeGateway{})
	if err := c.Bootstrap(context.Background()); err != nil {
		t.Fatalf("Bootstrap failed: %v", err)
	}

	got := c.Transcript()
	if len(got) != 3 {
		t.Fatalf("Expected 3 entries, got %d", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i-1].ID >= got[i].ID {
			t.Errorf("Transcript order broken at index %d", i)
		}
	}
}

func TestReset_ClearsTranscriptAndPending(t *testing.T) {
	store := &fakeStore{}
	c := NewController(testIdentity(), store, &fakeGateway{reply: "Hi"})

	if _, err := c.Submit(context.Background(), "Hello"); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	c.Reset()
	if len(c.Transcript()) != 0 {
		t.Error("Transcript should be empty after reset")
	}
	if c.Pending() {
		t.Error("Pending should be false after reset")
	}
}

func TestSubmit_NoDuplicateCompletions(t *testing.T) {
	store := &fakeStore{}
	c := NewController(testIdentity(), store, &fakeGateway{reply: "reply"})

	for i := 0; i < 3; i++ {
		if _, err := c.Submit(context.Background(), "msg"); err != nil {
			t.Fatalf("Turn %d failed: %v", i, err)
		}
	}

	var users, ais int
	for _, m := range c.Transcript() {
		if m.IsAI {
			ais++
		} else {
			users++
		}
	}
	if users != 3 || ais != 3 {
		t.Errorf("Expected exactly one reply per user message, got %d user / %d ai", users, ais)
	}
}
