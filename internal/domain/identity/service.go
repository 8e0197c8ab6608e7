package identity

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/dentaldesk/clinic/internal/platform/auth"
)

type Service struct {
	users       UserRepository
	issuer      *auth.TokenIssuer
	revocations auth.RevocationStore
	logger      zerolog.Logger
	hashCost    int
}

func NewService(users UserRepository, issuer *auth.TokenIssuer, revocations auth.RevocationStore, logger zerolog.Logger) *Service {
	return &Service{
		users:       users,
		issuer:      issuer,
		revocations: revocations,
		logger:      logger,
		hashCost:    bcrypt.DefaultCost,
	}
}

// SetHashCost overrides the bcrypt cost. Tests lower it.
func (s *Service) SetHashCost(cost int) {
	s.hashCost = cost
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("email is required")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return fmt.Errorf("invalid email address")
	}
	return nil
}

func (s *Service) hash(password string) (string, error) {
	if len(password) < minPasswordLength {
		return "", fmt.Errorf("password must be at least %d characters", minPasswordLength)
	}
	h, err := bcrypt.GenerateFromPassword([]byte(password), s.hashCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(h), nil
}

// CreateUser validates and stores a new account.
func (s *Service) CreateUser(ctx context.Context, req RegisterRequest) (*User, error) {
	u, err := s.newUser(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *Service) newUser(ctx context.Context, req RegisterRequest) (*User, error) {
	email := normalizeEmail(req.Email)
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, fmt.Errorf("name is required")
	}
	role, err := auth.ParseRole(req.Role)
	if err != nil {
		return nil, err
	}
	hash, err := s.hash(req.Password)
	if err != nil {
		return nil, err
	}

	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	return &User{
		Email:        email,
		PasswordHash: hash,
		Name:         name,
		Phone:        strings.TrimSpace(req.Phone),
		Role:         role,
	}, nil
}

// Register is the public sign-up. Anyone may register as doctor or
// receptionist; an admin account can only be self-registered as the
// clinic's first user. The emptiness check and the insert are one step in
// the repository.
func (s *Service) Register(ctx context.Context, tenantID string, req RegisterRequest) (*AuthResponse, error) {
	u, err := s.newUser(ctx, req)
	if err != nil {
		return nil, err
	}
	if u.Role == auth.RoleAdmin {
		created, err := s.users.CreateFirst(ctx, u)
		if err != nil {
			return nil, err
		}
		if !created {
			return nil, ErrAdminRegistration
		}
	} else if err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}
	s.logger.Info().Str("user_id", u.ID.String()).Str("role", string(u.Role)).Msg("user registered")
	return s.tokenFor(u, tenantID)
}

// Login checks credentials. Unknown email and wrong password produce the
// same error.
func (s *Service) Login(ctx context.Context, tenantID string, req LoginRequest) (*AuthResponse, error) {
	u, err := s.users.GetByEmail(ctx, normalizeEmail(req.Email))
	if errors.Is(err, ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)) != nil {
		return nil, ErrInvalidCredentials
	}
	return s.tokenFor(u, tenantID)
}

func (s *Service) tokenFor(u *User, tenantID string) (*AuthResponse, error) {
	tok, err := s.issuer.Issue(u.ID.String(), tenantID, u.Role)
	if err != nil {
		return nil, err
	}
	return &AuthResponse{
		AccessToken: tok.AccessToken,
		TokenType:   tok.TokenType,
		ExpiresAt:   tok.ExpiresAt,
		User:        u,
	}, nil
}

func (s *Service) GetUser(ctx context.Context, id uuid.UUID) (*User, error) {
	return s.users.GetByID(ctx, id)
}

func (s *Service) ListUsers(ctx context.Context, limit, offset int) ([]*User, int, error) {
	return s.users.List(ctx, limit, offset)
}

func (s *Service) ListDoctors(ctx context.Context) ([]*User, error) {
	return s.users.ListByRole(ctx, auth.RoleDoctor)
}

// IsDoctor reports whether id names an account with the doctor role.
func (s *Service) IsDoctor(ctx context.Context, id uuid.UUID) (bool, error) {
	u, err := s.users.GetByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return u.Role == auth.RoleDoctor, nil
}

// UpdateUser applies a partial update. Changing the role or password
// revokes the user's existing tokens.
func (s *Service) UpdateUser(ctx context.Context, id uuid.UUID, upd UserUpdate) (*User, error) {
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	revoke := false

	if upd.Email != nil {
		email := normalizeEmail(*upd.Email)
		if err := validateEmail(email); err != nil {
			return nil, err
		}
		if email != u.Email {
			if other, err := s.users.GetByEmail(ctx, email); err == nil && other.ID != u.ID {
				return nil, fmt.Errorf("email already in use")
			}
			u.Email = email
		}
	}
	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			return nil, fmt.Errorf("name cannot be empty")
		}
		u.Name = name
	}
	if upd.Phone != nil {
		u.Phone = strings.TrimSpace(*upd.Phone)
	}
	if upd.Role != nil {
		role, err := auth.ParseRole(*upd.Role)
		if err != nil {
			return nil, err
		}
		revoke = revoke || role != u.Role
		u.Role = role
	}
	if upd.Password != nil {
		hash, err := s.hash(*upd.Password)
		if err != nil {
			return nil, err
		}
		u.PasswordHash = hash
		revoke = true
	}

	if err := s.users.Update(ctx, u); err != nil {
		return nil, err
	}
	if revoke {
		s.revokeAll(ctx, u.ID)
	}
	return u, nil
}

// DeleteUser removes an account and revokes its tokens. actorID is the
// administrator making the request.
func (s *Service) DeleteUser(ctx context.Context, actorID string, id uuid.UUID) error {
	if actorID == id.String() {
		return ErrSelfDelete
	}
	if err := s.users.Delete(ctx, id); err != nil {
		return err
	}
	s.revokeAll(ctx, id)
	return nil
}

func (s *Service) revokeAll(ctx context.Context, id uuid.UUID) {
	if s.revocations == nil {
		return
	}
	if err := s.revocations.RevokeUser(ctx, id.String(), time.Now()); err != nil {
		s.logger.Error().Err(err).Str("user_id", id.String()).Msg("failed to revoke tokens")
	}
}

// SeedAdmin creates the first administrator when no admin exists. It
// reports whether an account was created.
func (s *Service) SeedAdmin(ctx context.Context, email, password string) (bool, error) {
	admins, err := s.users.ListByRole(ctx, auth.RoleAdmin)
	if err != nil {
		return false, err
	}
	if len(admins) > 0 {
		return false, nil
	}
	if _, err := s.CreateUser(ctx, RegisterRequest{
		Email:    email,
		Password: password,
		Name:     "Admin",
		Role:     string(auth.RoleAdmin),
	}); err != nil {
		return false, fmt.Errorf("seed admin: %w", err)
	}
	s.logger.Info().Str("email", normalizeEmail(email)).Msg("created default admin user")
	return true, nil
}
