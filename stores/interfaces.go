package stores

import (
	"errors"
	"fmt"
	"time"
)

// Message is one row of a user's chat transcript. ID and CreatedAt are
// assigned by the store at insert time, never by the caller.
type Message struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	IsAI      bool      `gorm:"not null" json:"is_ai"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UserID    string    `gorm:"index;not null" json:"user_id"`
}

// User is the persisted auth user record. PasswordHash stays inside the
// store and auth layers; the json tag keeps it out of API responses.
type User struct {
	ID           string    `gorm:"primaryKey" json:"id"`
	Email        string    `gorm:"uniqueIndex;size:320" json:"email"`
	DisplayName  string    `gorm:"size:120" json:"display_name,omitempty"`
	PasswordHash string    `gorm:"size:255" json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"-"`
}

// AuthSession is an active sign-in, keyed by its bearer token.
type AuthSession struct {
	Token     string    `gorm:"primaryKey"`
	UserID    string    `gorm:"index;not null"`
	ExpiresAt time.Time `gorm:"index"`
	CreatedAt time.Time
}

// StoreError wraps any record store read/write failure.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store: %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// ErrNotFound is the wrapped cause when a lookup matches no record.
var ErrNotFound = errors.New("record not found")

// RecordStore abstracts the database backend for messages, users and
// auth sessions.
type RecordStore interface {
	// Message operations
	LoadHistory(userID string) ([]Message, error)
	Append(userID, content string, isAI bool) (Message, error)

	// User operations
	CreateUser(user *User) error
	FindUserByEmail(email string) (*User, error)
	FindUserByID(id string) (*User, error)

	// Auth session operations
	CreateAuthSession(session *AuthSession) error
	FindAuthSession(token string) (*AuthSession, error)
	DeleteAuthSession(token string) error
	DeleteExpiredAuthSessions(now time.Time) (int64, error)

	// Connection management
	Connect() error
	Close() error

	// Health check
	Ping() error
}

// StoreConfig holds configuration for database stores
type StoreConfig struct {
	Type       string            `json:"type"`       // "sqlite", "postgres"
	Connection string            `json:"connection"` // connection string
	Options    map[string]string `json:"options"`    // additional options
}

// NewStoreConfig creates a new store configuration
func NewStoreConfig(storeType, connection string) *StoreConfig {
	return &StoreConfig{
		Type:       storeType,
		Connection: connection,
		Options:    make(map[string]string),
	}
}

// WithOption adds an option to the store configuration
func (c *StoreConfig) WithOption(key, value string) *StoreConfig {
	c.Options[key] = value
	return c
}
