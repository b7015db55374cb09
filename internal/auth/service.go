package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"wa-dashboard/internal/apperrors"
	"wa-dashboard/internal/repo"
	"wa-dashboard/internal/validator"
)

// dummyHash keeps sign-in timing constant for unknown emails.
const dummyHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

// OperatorStore persists operators.
type OperatorStore interface {
	CreateOperator(ctx context.Context, op repo.Operator, displayName string) (*repo.Operator, error)
	OperatorByEmail(ctx context.Context, email string) (*repo.Operator, error)
	OperatorByID(ctx context.Context, id string) (*repo.Operator, error)
	LinkProvider(ctx context.Context, id, provider, subject string) error
}

// Revoker tracks signed-out sessions until they expire.
type Revoker interface {
	Revoke(ctx context.Context, sessionID string, ttl time.Duration) error
	IsRevoked(ctx context.Context, sessionID string) (bool, error)
}

// Service implements sign-up, sign-in and sign-out.
type Service struct {
	store    OperatorStore
	sessions *Sessions
	revoker  Revoker
	logger   *slog.Logger
}

// NewService builds the auth service. revoker may be nil, in which case
// sign-out only clears the client cookie.
func NewService(store OperatorStore, sessions *Sessions, revoker Revoker, logger *slog.Logger) *Service {
	return &Service{
		store:    store,
		sessions: sessions,
		revoker:  revoker,
		logger:   logger.With("component", "auth"),
	}
}

// Sessions exposes the session signer.
func (s *Service) Sessions() *Sessions {
	return s.sessions
}

// SignUpForm is the email+password registration payload.
type SignUpForm struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	Name     string `json:"name" validate:"required,min=3"`
}

// SignInForm is the email+password login payload.
type SignInForm struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// SignUp registers an operator and opens a session.
func (s *Service) SignUp(ctx context.Context, form SignUpForm) (string, Session, error) {
	form.Email = strings.TrimSpace(form.Email)
	form.Name = strings.TrimSpace(form.Name)
	if err := validator.Validate(form); err != nil {
		return "", Session{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(form.Password), bcrypt.DefaultCost)
	if err != nil {
		return "", Session{}, fmt.Errorf("hash password: %w", err)
	}
	op, err := s.store.CreateOperator(ctx, repo.Operator{
		Email:        form.Email,
		PasswordHash: string(hash),
		Provider:     "password",
	}, form.Name)
	if err != nil {
		return "", Session{}, err
	}
	s.logger.Info("operator signed up", "operator", op.ID)
	return s.sessions.Issue(op.ID)
}

// SignIn checks the credentials and opens a session.
func (s *Service) SignIn(ctx context.Context, form SignInForm) (string, Session, error) {
	if err := validator.Validate(form); err != nil {
		return "", Session{}, err
	}
	invalid := fmt.Errorf("invalid email or password: %w", apperrors.ErrUnauthorized)

	op, err := s.store.OperatorByEmail(ctx, form.Email)
	if err != nil {
		_ = bcrypt.CompareHashAndPassword([]byte(dummyHash), []byte(form.Password))
		if errors.Is(err, apperrors.ErrNotFound) {
			return "", Session{}, invalid
		}
		return "", Session{}, err
	}
	if op.PasswordHash == "" {
		_ = bcrypt.CompareHashAndPassword([]byte(dummyHash), []byte(form.Password))
		return "", Session{}, invalid
	}
	if err := bcrypt.CompareHashAndPassword([]byte(op.PasswordHash), []byte(form.Password)); err != nil {
		return "", Session{}, invalid
	}
	return s.sessions.Issue(op.ID)
}

// SignInWithIdentity opens a session for an identity confirmed by an OAuth
// provider, creating the operator on first sign-in.
func (s *Service) SignInWithIdentity(ctx context.Context, id Identity) (string, Session, error) {
	if id.Email == "" {
		return "", Session{}, fmt.Errorf("%s account has no verified email: %w", id.Provider, apperrors.ErrUnauthorized)
	}
	op, err := s.store.OperatorByEmail(ctx, id.Email)
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		op, err = s.store.CreateOperator(ctx, repo.Operator{
			Email:           id.Email,
			Provider:        id.Provider,
			ProviderSubject: id.Subject,
		}, id.Name)
		if err != nil {
			return "", Session{}, err
		}
		s.logger.Info("operator signed up via oauth", "operator", op.ID, "provider", id.Provider)
	case err != nil:
		return "", Session{}, err
	default:
		if err := s.store.LinkProvider(ctx, op.ID, id.Provider, id.Subject); err != nil {
			s.logger.Warn("failed recording oauth provider", "operator", op.ID, "error", err)
		}
	}
	return s.sessions.Issue(op.ID)
}

// Authenticate verifies a token and rejects revoked sessions.
func (s *Service) Authenticate(ctx context.Context, token string) (Session, error) {
	sess, err := s.sessions.Verify(token)
	if err != nil {
		return Session{}, fmt.Errorf("%w: %v", apperrors.ErrUnauthorized, err)
	}
	if s.revoker != nil {
		revoked, err := s.revoker.IsRevoked(ctx, sess.ID)
		if err != nil {
			s.logger.Warn("session revocation lookup failed", "error", err)
		} else if revoked {
			return Session{}, fmt.Errorf("session signed out: %w", apperrors.ErrUnauthorized)
		}
	}
	return sess, nil
}

// Current returns the operator behind sess.
func (s *Service) Current(ctx context.Context, sess Session) (*repo.Operator, error) {
	op, err := s.store.OperatorByID(ctx, sess.OperatorID)
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil, fmt.Errorf("operator removed: %w", apperrors.ErrUnauthorized)
	}
	return op, err
}

// SignOut revokes sess until its natural expiry.
func (s *Service) SignOut(ctx context.Context, sess Session) error {
	if s.revoker == nil {
		return nil
	}
	ttl := time.Until(sess.ExpiresAt)
	if err := s.revoker.Revoke(ctx, sess.ID, ttl); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}
