package stores

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// PostgresStore implements RecordStore for PostgreSQL databases
type PostgresStore struct {
	db  *gorm.DB
	dsn string
}

// NewPostgresStore creates a new PostgreSQL store
func NewPostgresStore(config *StoreConfig) (*PostgresStore, error) {
	if config.Type != "postgres" {
		return nil, fmt.Errorf("invalid store type for PostgreSQL store: %s", config.Type)
	}

	store := &PostgresStore{
		dsn: config.Connection,
	}

	if err := store.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	return store, nil
}

// NewPostgresStoreSimple creates a new PostgreSQL store with just a DSN
func NewPostgresStoreSimple(dsn string) (*PostgresStore, error) {
	config := NewStoreConfig("postgres", dsn)
	return NewPostgresStore(config)
}

// Connect establishes a connection to the PostgreSQL database
func (s *PostgresStore) Connect() error {
	db, err := gorm.Open(postgres.Open(s.dsn), &gorm.Config{})
	if err != nil {
		return fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	s.db = db

	// Auto-migrate the schema
	if err := s.db.AutoMigrate(&User{}, &AuthSession{}, &Message{}); err != nil {
		return fmt.Errorf("failed to migrate database schema: %w", err)
	}

	return nil
}

// Close closes the database connection
func (s *PostgresStore) Close() error {
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
func (s *PostgresStore) Ping() error {
	if s.db == nil {
		return fmt.Errorf("database connection is nil")
	}

	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}

	return sqlDB.Ping()
}

// LoadHistory retrieves all messages for a user, ascending by creation time
func (s *PostgresStore) LoadHistory(userID string) ([]Message, error) {
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

// Append inserts one message and returns the persisted record
func (s *PostgresStore) Append(userID, content string, isAI bool) (Message, error) {
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
func (s *PostgresStore) CreateUser(user *User) error {
	if s.db == nil {
		return &StoreError{Op: "create user", Err: errors.New("database connection is nil")}
	}

	if err := s.db.Create(user).Error; err != nil {
		return &StoreError{Op: "create user", Err: err}
	}

	return nil
}

// FindUserByEmail looks up a user by email
func (s *PostgresStore) FindUserByEmail(email string) (*User, error) {
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
func (s *PostgresStore) FindUserByID(id string) (*User, error) {
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
func (s *PostgresStore) CreateAuthSession(session *AuthSession) error {
	if s.db == nil {
		return &StoreError{Op: "create session", Err: errors.New("database connection is nil")}
	}

	if err := s.db.Create(session).Error; err != nil {
		return &StoreError{Op: "create session", Err: err}
	}

	return nil
}

// FindAuthSession looks up an auth session by token
func (s *PostgresStore) FindAuthSession(token string) (*AuthSession, error) {
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

// DeleteAuthSession removes an auth session, idempotently
func (s *PostgresStore) DeleteAuthSession(token string) error {
	if s.db == nil {
		return &StoreError{Op: "delete session", Err: errors.New("database connection is nil")}
	}

	if err := s.db.Delete(&AuthSession{}, "token = ?", token).Error; err != nil {
		return &StoreError{Op: "delete session", Err: err}
	}

	return nil
}

// DeleteExpiredAuthSessions removes every session that expired before now
func (s *PostgresStore) DeleteExpiredAuthSessions(now time.Time) (int64, error) {
	if s.db == nil {
		return 0, &StoreError{Op: "delete expired sessions", Err: errors.New("database connection is nil")}
	}

	res := s.db.Delete(&AuthSession{}, "expires_at <= ?", now)
	if res.Error != nil {
		return 0, &StoreError{Op: "delete expired sessions", Err: res.Error}
	}

	return res.RowsAffected, nil
}
