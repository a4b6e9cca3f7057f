package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"time"

	"storefront/apperrors"
	"storefront/models"
	"storefront/repository"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const (
	minPasswordLength = 6
	maxPasswordLength = 128
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_]{3,30}$`)

// ValidUsername reports whether u is 3 to 30 letters, digits or underscores.
func ValidUsername(u string) bool {
	return usernamePattern.MatchString(u)
}

func validatePassword(p string) error {
	if len(p) < minPasswordLength || len(p) > maxPasswordLength {
		return apperrors.Validation("Validation failed",
			fmt.Sprintf("password must be between %d and %d characters", minPasswordLength, maxPasswordLength))
	}
	return nil
}

type AuthService struct {
	users     repository.UserRepo
	tokens    *TokenService
	guard     LoginGuard
	denylist  TokenDenylist
	threshold int
	log       *zap.Logger
}

func NewAuthService(users repository.UserRepo, tokens *TokenService, guard LoginGuard, denylist TokenDenylist, threshold int, log *zap.Logger) *AuthService {
	return &AuthService{
		users:     users,
		tokens:    tokens,
		guard:     guard,
		denylist:  denylist,
		threshold: threshold,
		log:       log,
	}
}

func (s *AuthService) Register(ctx context.Context, username, password string) (*models.AuthResponse, error) {
	if !ValidUsername(username) {
		return nil, apperrors.Validation("Validation failed",
			"username must be 3-30 characters of letters, numbers or underscores")
	}
	if err := validatePassword(password); err != nil {
		return nil, err
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, apperrors.Internal("Failed to hash password", err)
	}

	now := time.Now().UTC()
	user := &models.User{
		ID:           primitive.NewObjectID(),
		Username:     username,
		PasswordHash: string(hashed),
		Role:         models.RoleUser,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperrors.Conflict("Username already exists")
		}
		return nil, apperrors.Internal("Failed to create account", err)
	}

	s.log.Info("User registered", zap.String("user_id", user.ID.Hex()), zap.String("username", username))
	return s.issue(user)
}

func (s *AuthService) Login(ctx context.Context, username, password string) (*models.AuthResponse, error) {
	if locked, remaining, err := s.guard.IsLocked(ctx, username); err != nil {
		s.log.Warn("Login guard unavailable", zap.Error(err))
	} else if locked {
		return nil, lockedError(remaining)
	}

	user, err := s.users.FindByUsername(ctx, username)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.Internal("Failed to load user", err)
	}
	if user == nil || bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, s.recordFailure(ctx, username)
	}

	if err := s.guard.Clear(ctx, username); err != nil {
		s.log.Warn("Failed to clear login failures", zap.String("username", username), zap.Error(err))
	}
	now := time.Now().UTC()
	if err := s.users.UpdateLastLogin(ctx, user.ID, now); err != nil {
		s.log.Warn("Failed to record last login", zap.String("user_id", user.ID.Hex()), zap.Error(err))
	} else {
		user.LastLoginAt = &now
	}

	return s.issue(user)
}

func (s *AuthService) recordFailure(ctx context.Context, username string) error {
	attempts, locked, err := s.guard.RecordFailure(ctx, username)
	if err != nil {
		s.log.Warn("Failed to record login failure", zap.String("username", username), zap.Error(err))
	}
	if locked {
		s.log.Warn("Account locked after repeated failures",
			zap.String("username", username), zap.Int("attempts", attempts))
		_, remaining, _ := s.guard.IsLocked(ctx, username)
		return lockedError(remaining)
	}
	return apperrors.Unauthorized("Invalid username or password")
}

func lockedError(remaining time.Duration) error {
	minutes := int(math.Ceil(remaining.Minutes()))
	if minutes < 1 {
		minutes = 1
	}
	return apperrors.Locked(fmt.Sprintf("Account temporarily locked. Try again in %d minutes", minutes))
}

func (s *AuthService) issue(user *models.User) (*models.AuthResponse, error) {
	token, expiresAt, err := s.tokens.Generate(user)
	if err != nil {
		return nil, apperrors.Internal("Failed to generate token", err)
	}
	return &models.AuthResponse{Token: token, ExpiresAt: expiresAt, User: user}, nil
}

func (s *AuthService) Profile(ctx context.Context, userID primitive.ObjectID) (*models.User, error) {
	user, err := s.users.FindByID(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NotFound("User not found")
	}
	if err != nil {
		return nil, apperrors.Internal("Failed to load user", err)
	}
	return user, nil
}

// ChangePassword rejects an unchanged password before touching the stored hash.
func (s *AuthService) ChangePassword(ctx context.Context, userID primitive.ObjectID, current, next string) error {
	if current == next {
		return apperrors.Validation("New password must be different from current password")
	}
	if err := validatePassword(next); err != nil {
		return err
	}

	user, err := s.Profile(ctx, userID)
	if err != nil {
		return err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(current)) != nil {
		return apperrors.Unauthorized("Current password is incorrect")
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(next), bcrypt.DefaultCost)
	if err != nil {
		return apperrors.Internal("Failed to hash password", err)
	}
	if err := s.users.UpdatePassword(ctx, userID, string(hashed), time.Now().UTC()); err != nil {
		return apperrors.Internal("Failed to update password", err)
	}
	s.log.Info("Password changed", zap.String("user_id", userID.Hex()))
	return nil
}

// Logout revokes the presented token for the rest of its lifetime.
func (s *AuthService) Logout(ctx context.Context, claims *Claims) error {
	var until time.Time
	if claims.ExpiresAt != nil {
		until = claims.ExpiresAt.Time
	}
	if err := s.denylist.Revoke(ctx, claims.ID, until); err != nil {
		return apperrors.New(apperrors.KindUnavailable, "Failed to revoke token", err)
	}
	return nil
}

func (s *AuthService) CheckUsername(ctx context.Context, username string) (bool, error) {
	if !ValidUsername(username) {
		return false, apperrors.Validation("Validation failed",
			"username must be 3-30 characters of letters, numbers or underscores")
	}
	_, err := s.users.FindByUsername(ctx, username)
	if errors.Is(err, repository.ErrNotFound) {
		return true, nil
	}
	if err != nil {
		return false, apperrors.Internal("Failed to check username", err)
	}
	return false, nil
}

func (s *AuthService) SecurityStatus(ctx context.Context, userID primitive.ObjectID) (*models.SecurityStatus, error) {
	user, err := s.Profile(ctx, userID)
	if err != nil {
		return nil, err
	}

	status := &models.SecurityStatus{
		Username:          user.Username,
		MaxAttempts:       s.threshold,
		LastLoginAt:       user.LastLoginAt,
		PasswordChangedAt: user.PasswordChangedAt,
	}
	if n, err := s.guard.Attempts(ctx, user.Username); err == nil {
		status.FailedAttempts = n
	}
	if locked, remaining, err := s.guard.IsLocked(ctx, user.Username); err == nil && locked {
		status.Locked = true
		status.LockRemaining = remaining.Round(time.Second).String()
	}
	return status, nil
}
