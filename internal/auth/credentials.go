package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-while/checkweb/internal/database"
	"github.com/go-while/checkweb/internal/models"
	"golang.org/x/crypto/bcrypt"
)

// CredentialsProviderName is the provider name recorded on sessions created by a password login
const CredentialsProviderName = "credentials"

var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrLockedOut          = errors.New("account temporarily locked due to too many failed attempts")
)

// UserStore is the part of the database the credentials provider needs
type UserStore interface {
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	IncrementLoginAttempts(ctx context.Context, login string) error
	ResetLoginAttempts(ctx context.Context, userID int64) error
	IsUserLockedOut(ctx context.Context, login string, maxAttempts int, lockout time.Duration) (bool, error)
}

// CredentialsProvider authenticates a username or email plus password
type CredentialsProvider struct {
	store       UserStore
	maxAttempts int
	lockout     time.Duration
}

func NewCredentialsProvider(store UserStore, maxAttempts int, lockout time.Duration) *CredentialsProvider {
	return &CredentialsProvider{
		store:       store,
		maxAttempts: maxAttempts,
		lockout:     lockout,
	}
}

// Authenticate returns the user when login and password match.
// Failed attempts are counted and the account is locked after maxAttempts.
func (p *CredentialsProvider) Authenticate(ctx context.Context, login, password string) (*models.User, error) {
	login = strings.TrimSpace(login)
	if login == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	locked, err := p.store.IsUserLockedOut(ctx, login, p.maxAttempts, p.lockout)
	if err != nil {
		return nil, fmt.Errorf("login error: %w", err)
	}
	if locked {
		return nil, ErrLockedOut
	}

	var user *models.User
	if strings.Contains(login, "@") {
		user, err = p.store.GetUserByEmail(ctx, login)
	} else {
		user, err = p.store.GetUserByUsername(ctx, login)
	}
	if err != nil {
		if errors.Is(err, database.ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("login error: %w", err)
	}

	if !CheckPassword(password, user.PasswordHash) {
		if err := p.store.IncrementLoginAttempts(ctx, login); err != nil {
			return nil, fmt.Errorf("login error: %w", err)
		}
		return nil, ErrInvalidCredentials
	}

	if user.LoginAttempts > 0 {
		if err := p.store.ResetLoginAttempts(ctx, user.ID); err != nil {
			return nil, fmt.Errorf("login error: %w", err)
		}
		user.LoginAttempts = 0
	}
	return user, nil
}

// NewUserSession builds an authenticated session for user
func NewUserSession(sessionID string, user *models.User, provider string) *models.AuthUserSession {
	displayName := user.DisplayName
	if displayName == "" {
		displayName = user.Username
	}
	return &models.AuthUserSession{
		ID:              sessionID,
		UserAuthID:      fmt.Sprintf("%d", user.ID),
		UserAuthName:    user.Username,
		UserName:        user.Username,
		DisplayName:     displayName,
		Email:           user.Email,
		AuthProvider:    provider,
		IsAuthenticated: true,
		Roles:           user.Roles,
		Permissions:     user.Permissions,
	}
}

// HashPassword creates a bcrypt hash of the password
func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

// CheckPassword checks if password matches hash
func CheckPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// ValidateUsername validates username requirements
func ValidateUsername(username string) error {
	if len(username) < 3 {
		return fmt.Errorf("username must be at least 3 characters long")
	}
	if len(username) > 50 {
		return fmt.Errorf("username must be less than 50 characters")
	}
	// Only allow alphanumeric and underscore
	for _, char := range username {
		if !((char >= 'a' && char <= 'z') || (char >= 'A' && char <= 'Z') ||
			(char >= '0' && char <= '9') || char == '_') {
			return fmt.Errorf("username can only contain letters, numbers, and underscores")
		}
	}
	return nil
}

// ValidatePassword validates password requirements
func ValidatePassword(password string) error {
	if len(password) < 6 {
		return fmt.Errorf("password must be at least 6 characters long")
	}
	if len(password) > 72 {
		return fmt.Errorf("password must be at most 72 bytes")
	}
	return nil
}
