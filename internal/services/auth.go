package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/boscod/outreachguard/internal/models"
	"github.com/boscod/outreachguard/internal/store"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

type AuthService struct {
	users      store.UserStore
	jwtService *JWTService
}

func NewAuthService(users store.UserStore, jwtService *JWTService) *AuthService {
	return &AuthService{
		users:      users,
		jwtService: jwtService,
	}
}

// HashPassword hashes a password using bcrypt
func (a *AuthService) HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

// CheckPassword compares a password with a hash
func (a *AuthService) CheckPassword(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// CreateUser creates a new user with hashed password
func (a *AuthService) CreateUser(ctx context.Context, email, password string, fullName, company *string) (*models.User, error) {
	hash, err := a.HashPassword(password)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		Email:        strings.ToLower(strings.TrimSpace(email)),
		PasswordHash: hash,
		FullName:     fullName,
		Company:      company,
		IsActive:     true,
		NotifyEmail:  true,
		Plan:         models.PlanFree,
	}

	if err := a.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

// Authenticate returns the user when the credentials match an active account.
func (a *AuthService) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	user, err := a.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if !user.IsActive || !a.CheckPassword(password, user.PasswordHash) {
		return nil, ErrNotFound
	}

	if err := a.users.UpdateLastLogin(ctx, user.ID, time.Now()); err != nil {
		return nil, fmt.Errorf("update last login: %w", err)
	}
	return user, nil
}

func (a *AuthService) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return a.users.GetUserByEmail(ctx, email)
}

func (a *AuthService) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, ErrNotFound
	}
	user, err := a.users.GetUserByID(ctx, uid)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	return user, err
}

// GenerateToken generates a JWT token for a user
func (a *AuthService) GenerateToken(user *models.User) (string, error) {
	return a.jwtService.GenerateToken(user.ID.String(), user.Email, user.Plan)
}

// ValidateToken validates a JWT token and returns claims
func (a *AuthService) ValidateToken(token string) (*JWTClaims, error) {
	return a.jwtService.ValidateToken(token)
}

// UpdateProfile updates user profile fields
func (a *AuthService) UpdateProfile(ctx context.Context, userID string, update store.ProfileUpdate) (*models.User, error) {
	uid, err := uuid.Parse(userID)
	if err != nil {
		return nil, ErrNotFound
	}
	if err := a.users.UpdateProfile(ctx, uid, update); err != nil {
		return nil, err
	}
	return a.GetUserByID(ctx, userID)
}
