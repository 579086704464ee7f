// Package auth issues access tokens for hospital staff and patients.
package auth

import (
	"context"
	"errors"

	"github.com/medicore/hospital-api/internal/model"
	"github.com/medicore/hospital-api/internal/repository"
	"github.com/medicore/hospital-api/pkg/auth"
	apperrors "github.com/medicore/hospital-api/pkg/errors"
	"github.com/medicore/hospital-api/pkg/security"
)

type LoginResponse struct {
	Token string      `json:"token"`
	User  *model.User `json:"user"`
}

type Service struct {
	users  repository.UserRepository
	hasher security.PasswordHasher
	tokens *auth.TokenService
}

func NewService(users repository.UserRepository, hasher security.PasswordHasher, tokens *auth.TokenService) *Service {
	return &Service{users: users, hasher: hasher, tokens: tokens}
}

// Login verifies credentials and issues a signed access token. Lookup
// misses and bad passwords both map to the same unauthorized error.
func (s *Service) Login(ctx context.Context, req *model.LoginRequest) (*LoginResponse, error) {
	user, err := s.users.GetByEmail(ctx, req.Email)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.Unauthorized("invalid email or password", nil)
	}
	if err != nil {
		return nil, apperrors.Internal(err)
	}

	if err := s.hasher.Compare(user.PasswordHash, req.Password); err != nil {
		return nil, apperrors.Unauthorized("invalid email or password", nil)
	}

	token, err := s.tokens.Generate(user)
	if err != nil {
		return nil, apperrors.Internal(err)
	}
	return &LoginResponse{Token: token, User: user}, nil
}

// Register creates a user account with a hashed password.
func (s *Service) Register(ctx context.Context, name, email, password string, role model.Role) (*model.User, error) {
	if !role.Valid() {
		return nil, apperrors.BadRequest("invalid role", nil)
	}
	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return nil, apperrors.BadRequest("email is already registered", nil)
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.Internal(err)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, apperrors.BadRequest("password does not meet requirements", err)
	}

	user := &model.User{
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		Status:       "active",
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, apperrors.Internal(err)
	}
	return user, nil
}
