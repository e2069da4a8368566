//go:generate go run go.uber.org/mock/mockgen -source=auth_service.go -destination=../mocks/mock_auth_service.go -package=mocks
package services

import (
	"channel-chat/auth"
	"channel-chat/domain"
	"channel-chat/errors"
	"channel-chat/repositories"
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"
)

type IAuthService interface {
	Signup(ctx context.Context, req auth.SignupRequest) (domain.User, error)
	Login(ctx context.Context, req auth.LoginRequest) (LoginResult, error)
}

type TokenGenerator interface {
	GenerateToken(identity domain.Identity) (string, error)
}

type LoginResult struct {
	Token string
	User  domain.User
}

type AuthService struct {
	log            *slog.Logger
	userRepository repositories.IUserRepository
	tokens         TokenGenerator
}

func NewAuthService(log *slog.Logger, repo repositories.IUserRepository, tokens TokenGenerator) *AuthService {
	return &AuthService{log: log, userRepository: repo, tokens: tokens}
}

func (s *AuthService) Signup(ctx context.Context, req auth.SignupRequest) (domain.User, error) {
	// Checked before any expensive cryptographic operation.
	if err := auth.ValidateSignup(req); err != nil {
		return domain.User{}, err
	}

	// The repository never sees plain passwords.
	hashedPassword, err := auth.HashPassword(req.Password)
	if err != nil {
		return domain.User{}, fmt.Errorf("%w: hashing failed: %v", errors.ErrInternal, err)
	}

	user, err := s.userRepository.CreateUser(ctx, strings.TrimSpace(req.Name), strings.TrimSpace(req.Email), hashedPassword)
	if err != nil {
		return domain.User{}, err
	}
	s.log.Info("User signed up", "user_id", user.ID)
	return user, nil
}

// Login never tells an unknown email from a wrong password.
func (s *AuthService) Login(ctx context.Context, req auth.LoginRequest) (LoginResult, error) {
	if err := auth.ValidateLogin(req); err != nil {
		return LoginResult{}, errors.ErrInvalidCredentials
	}

	user, err := s.userRepository.GetUserByEmail(ctx, req.Email)
	if err != nil {
		if stderrors.Is(err, errors.ErrUserNotFound) {
			return LoginResult{}, errors.ErrInvalidCredentials
		}
		return LoginResult{}, err
	}

	match, err := auth.ComparePassword(req.Password, user.PasswordHash)
	if err != nil || !match {
		return LoginResult{}, errors.ErrInvalidCredentials
	}

	token, err := s.tokens.GenerateToken(user.Identity())
	if err != nil {
		s.log.Error("Token generation failed", "user_id", user.ID, "error", err)
		return LoginResult{}, errors.ErrTokenGeneration
	}
	return LoginResult{Token: token, User: user}, nil
}
