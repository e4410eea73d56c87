package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"stockledger/internal/audit"
	"stockledger/internal/domain"
	"stockledger/internal/repository"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const (
	// BcryptCost is the cost factor for password hashing
	BcryptCost = 10

	// MinPasswordLength applies to new passwords
	MinPasswordLength = 6
)

var (
	ErrInvalidCredentials = fmt.Errorf("invalid username or password: %w", domain.ErrUnauthenticated)
	ErrInvalidToken       = fmt.Errorf("invalid token: %w", domain.ErrUnauthenticated)
)

// UserService defines the interface for user business logic
type UserService interface {
	Login(ctx context.Context, username, password string) (token string, user *domain.User, err error)
	ValidateToken(tokenString string) (*Claims, error)
	GetUserByID(ctx context.Context, userID uuid.UUID) (*domain.User, error)
	UpdateProfile(ctx context.Context, userID uuid.UUID, username, name string) (*domain.User, error)
	ChangePassword(ctx context.Context, userID uuid.UUID, currentPassword, newPassword string) error
	EnsureUser(ctx context.Context, username, password string) (created bool, err error)
}

// Claims represents the JWT claims
type Claims struct {
	UserID uuid.UUID `json:"user_id"`
	jwt.RegisteredClaims
}

type userService struct {
	userRepo    repository.UserRepository
	recorder    AuditRecorder
	jwtSecret   string
	tokenExpiry time.Duration
}

// NewUserService creates a new instance of UserService
func NewUserService(
	userRepo repository.UserRepository,
	recorder AuditRecorder,
	jwtSecret string,
	tokenExpiry time.Duration,
) UserService {
	return &userService{
		userRepo:    userRepo,
		recorder:    recorderOrNoop(recorder),
		jwtSecret:   jwtSecret,
		tokenExpiry: tokenExpiry,
	}
}

// Login authenticates a user and returns a signed token
func (s *userService) Login(ctx context.Context, username, password string) (string, *domain.User, error) {
	user, err := s.userRepo.FindByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return "", nil, ErrInvalidCredentials
		}
		return "", nil, fmt.Errorf("failed to find user: %w", err)
	}

	if err := s.verifyPassword(user.PasswordHash, password); err != nil {
		return "", nil, ErrInvalidCredentials
	}

	token, err := s.generateToken(user)
	if err != nil {
		return "", nil, fmt.Errorf("failed to generate token: %w", err)
	}

	return token, user, nil
}

// ValidateToken validates a JWT token and returns the claims
func (s *userService) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.jwtSecret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID == uuid.Nil {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// GetUserByID retrieves a user by ID
func (s *userService) GetUserByID(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// UpdateProfile changes the login name and display name
func (s *userService) UpdateProfile(ctx context.Context, userID uuid.UUID, username, name string) (*domain.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, domain.Invalid("username", "username is required")
	}

	before, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	user, err := s.userRepo.UpdateProfile(ctx, userID, username, strings.TrimSpace(name))
	if err != nil {
		return nil, err
	}

	s.recorder.Record(ctx, audit.Entry{
		Action:     domain.AuditUpdate,
		EntityType: domain.EntityUser,
		EntityID:   user.ID.String(),
		UserID:     user.ID,
		Details: map[string]any{
			"before": map[string]string{"username": before.Username, "name": before.Name},
			"after":  map[string]string{"username": user.Username, "name": user.Name},
		},
	})

	return user, nil
}

// ChangePassword replaces the password after checking the current one
func (s *userService) ChangePassword(ctx context.Context, userID uuid.UUID, currentPassword, newPassword string) error {
	if len(newPassword) < MinPasswordLength {
		return domain.Invalid("newPassword", fmt.Sprintf("must be at least %d characters", MinPasswordLength))
	}

	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to get user: %w", err)
	}

	if err := s.verifyPassword(user.PasswordHash, currentPassword); err != nil {
		return domain.Invalid("currentPassword", "current password is incorrect")
	}

	hash, err := s.hashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	if err := s.userRepo.UpdatePassword(ctx, userID, hash); err != nil {
		return err
	}

	s.recorder.Record(ctx, audit.Entry{
		Action:     domain.AuditUpdate,
		EntityType: domain.EntityUser,
		EntityID:   userID.String(),
		UserID:     userID,
		Details:    map[string]string{"field": "password"},
	})
	return nil
}

// EnsureUser creates the account unless the username already exists
func (s *userService) EnsureUser(ctx context.Context, username, password string) (bool, error) {
	_, err := s.userRepo.FindByUsername(ctx, username)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, repository.ErrUserNotFound) {
		return false, fmt.Errorf("failed to check existing user: %w", err)
	}

	hash, err := s.hashPassword(password)
	if err != nil {
		return false, fmt.Errorf("failed to hash password: %w", err)
	}

	now := time.Now().UTC()
	user := &domain.User{
		ID:           uuid.New(),
		Username:     username,
		Name:         username,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrUsernameTaken) {
			return false, nil
		}
		return false, fmt.Errorf("failed to create user: %w", err)
	}
	return true, nil
}

func (s *userService) hashPassword(password string) (string, error) {
	hashedBytes, err := bcrypt.GenerateFromPassword([]byte(password), BcryptCost)
	if err != nil {
		return "", err
	}
	return string(hashedBytes), nil
}

func (s *userService) verifyPassword(hashedPassword, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
}

// generateToken signs an HS256 token carrying the user id
func (s *userService) generateToken(user *domain.User) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID: user.ID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenExpiry)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.jwtSecret))
}
