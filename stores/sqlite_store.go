package stores

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// SQLiteStore implements RecordStore for SQLite databases
type SQLiteStore struct {
	db   *gorm.DB
	path string
}

// NewSQLiteStore creates a new SQLite store
func NewSQLiteStore(config *StoreConfig) (*SQLiteStore, error) {
	if config.Type != "sqlite" {
		return nil, fmt.Errorf("invalid store type for SQLite store: %s", config.Type)
	}

	store := &SQLiteStore{
		path: config.Connection,
	}

	if err := store.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to SQLite database: %w", err)
	}

	return store, nil
}

// NewSQLiteStoreSimple creates a new SQLite store with just a file path
func NewSQLiteStoreSimple(dbPath string) (*SQLiteStore, error) {
	config := NewStoreConfig("sqlite", dbPath)
	return NewSQLiteStore(config)
}

// Connect establishes a connection to the SQLite database
func (s *SQLiteStore) Connect() error {
	db, err := gorm.Open(sqlite.Open(s.path), &gorm.Config{})
	if err != nil {
		return fmt.Errorf("failed to connect to SQLite database: %w", err)
	}

	s.db = db

	// Auto-migrate the schema
	if err := s.db.AutoMigrate(&User{}, &AuthSession{}, &Message{}); err != nil {
		return fmt.Errorf("failed to migrate database schema: %w", err)
	}

	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		sqlDB, err := s.db.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	}
	return nil
}

// Ping checks if the database connection is alive
func (s *SQLiteStore) Ping() error {
	if s.db == nil {
		return fmt.Errorf("database connection is nil")
	}

	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}

	return sqlDB.Ping()
}

// LoadHistory retrieves all messages for a user, ascending by creation
// time. Returns an empty slice when the user has no messages. The result
// is all-or-nothing: on error no partial history is returned.
func (s *SQLiteStore) LoadHistory(userID string) ([]Message, error) {
	if s.db == nil {
		return nil, &StoreError{Op: "load history", Err: errors.New("database connection is nil")}
	}

	msgs := make([]Message, 0)
	err := s.db.Where("user_id = ?", userID).
		Order("created_at ASC, id ASC").
		Find(&msgs).Error
	if err != nil {
		return nil, &StoreError{Op: "load history", Err: err}
	}

	return msgs, nil
}

// Append inserts one message and returns the persisted record with its
// store-assigned ID and CreatedAt populated.
func (s *SQLiteStore) Append(userID, content string, isAI bool) (Message, error) {
	if s.db == nil {
		return Message{}, &StoreError{Op: "append message", Err: errors.New("database connection is nil")}
	}
	if strings.TrimSpace(content) == "" {
		return Message{}, &StoreError{Op: "append message", Err: errors.New("empty content")}
	}

	msg := Message{
		Content: content,
		IsAI:    isAI,
		UserID:  userID,
	}

	if err := s.db.Create(&msg).Error; err != nil {
		return Message{}, &StoreError{Op: "append message", Err: err}
	}

	return msg, nil
}

// CreateUser inserts a new user record
func (s *SQLiteStore) CreateUser(user *User) error {
	if s.db == nil {
		return &StoreError{Op: "create user", Err: errors.New("database connection is nil")}
	}

	if err := s.db.Create(user).Error; err != nil {
		return &StoreError{Op: "create user", Err: err}
	}

	return nil
}

// FindUserByEmail looks up a user by email. Wraps ErrNotFound when no
// user matches.
func (s *SQLiteStore) FindUserByEmail(email string) (*User, error) {
	if s.db == nil {
		return nil, &StoreError{Op: "find user", Err: errors.New("database connection is nil")}
	}

	var user User
	err := s.db.Where("email = ?", email).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &StoreError{Op: "find user", Err: ErrNotFound}
	}
	if err != nil {
		return nil, &StoreError{Op: "find user", Err: err}
	}

	return &user, nil
}

// FindUserByID looks up a user by its ID
func (s *SQLiteStore) FindUserByID(id string) (*User, error) {
	if s.db == nil {
		return nil, &StoreError{Op: "find user", Err: errors.New("database connection is nil")}
	}

	var user User
	err := s.db.Where("id = ?", id).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &StoreError{Op: "find user", Err: ErrNotFound}
	}
	if err != nil {
		return nil, &StoreError{Op: "find user", Err: err}
	}

	return &user, nil
}

// CreateAuthSession inserts a new auth session record
func (s *SQLiteStore) CreateAuthSession(session *AuthSession) error {
	if s.db == nil {
		return &StoreError{Op: "create session", Err: errors.New("database connection is nil")}
	}

	if err := s.db.Create(session).Error; err != nil {
		return &StoreError{Op: "create session", Err: err}
	}

	return nil
}

// FindAuthSession looks up an auth session by token. Wraps ErrNotFound
// when the token is unknown.
func (s *SQLiteStore) FindAuthSession(token string) (*AuthSession, error) {
	if s.db == nil {
		return nil, &StoreError{Op: "find session", Err: errors.New("database connection is nil")}
	}

	var session AuthSession
	err := s.db.Where("token = ?", token).First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &StoreError{Op: "find session", Err: ErrNotFound}
	}
	if err != nil {
		return nil, &StoreError{Op: "find session", Err: err}
	}

	return &session, nil
}

// DeleteAuthSession removes an auth session. Deleting a token that does
// not exist is not an error.
func (s *SQLiteStore) DeleteAuthSession(token string) error {
	if s.db == nil {
		return &StoreError{Op: "delete session", Err: errors.New("database connection is nil")}
	}

	if err := s.db.Delete(&AuthSession{}, "token = ?", token).Error; err != nil {
		return &StoreError{Op: "delete session", Err: err}
	}

	return nil
}

// DeleteExpiredAuthSessions removes every session that expired before now
// and reports how many were deleted.
func (s *SQLiteStore) DeleteExpiredAuthSessions(now time.Time) (int64, error) {
	if s.db == nil {
		return 0, &StoreError{Op: "delete expired sessions", Err: errors.New("database connection is nil")}
	}

	res := s.db.Delete(&AuthSession{}, "expires_at <= ?", now)
	if res.Error != nil {
		return 0, &StoreError{Op: "delete expired sessions", Err: res.Error}
	}

	return res.RowsAffected, nil
}
