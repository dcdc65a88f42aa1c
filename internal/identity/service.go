package identity

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/avanomad/avanomad/internal/keys"
)

// Service manages identity lifecycle.
type Service struct {
	repo Repository
	cost int
	now  func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithHashCost sets the bcrypt cost used for PIN hashes.
func WithHashCost(cost int) Option {
	return func(s *Service) { s.cost = cost }
}

// WithClock overrides the creation timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a new identity service.
func NewService(repo Repository, opts ...Option) *Service {
	s := &Service{repo: repo, cost: bcrypt.DefaultCost, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register creates a user bound to a wallet address. When a user already
// exists for the phone number the stored record is returned with ErrUserExists.
func (s *Service) Register(ctx context.Context, reg Registration) (User, error) {
	if !keys.ValidPIN(reg.PIN) {
		return User{}, keys.ErrInvalidPIN
	}
	if reg.WalletAddress == "" {
		return User{}, errors.New("wallet address is required")
	}

	phoneHash := keys.HashPhone(reg.Phone)
	if existing, err := s.repo.FindByPhoneHash(ctx, phoneHash); err == nil {
		return existing, ErrUserExists
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(reg.PIN), s.cost)
	if err != nil {
		return User{}, err
	}

	user := User{
		ID:            uuid.New().String(),
		PhoneHash:     phoneHash,
		PINHash:       hash,
		WalletAddress: reg.WalletAddress,
		CreatedAt:     s.now().UTC(),
	}

	if err := s.repo.Create(ctx, user); err != nil {
		if errors.Is(err, ErrUserExists) {
			existing, findErr := s.repo.FindByPhoneHash(ctx, phoneHash)
			if findErr != nil {
				return User{}, findErr
			}
			return existing, ErrUserExists
		}
		return User{}, err
	}

	return user, nil
}

// Lookup finds the user registered for a raw phone number.
func (s *Service) Lookup(ctx context.Context, phone string) (User, error) {
	return s.repo.FindByPhoneHash(ctx, keys.HashPhone(phone))
}

// Get finds a user by id.
func (s *Service) Get(ctx context.Context, id string) (User, error) {
	return s.repo.FindByID(ctx, id)
}

// VerifyPIN checks pin against the stored hash.
func (s *Service) VerifyPIN(user User, pin string) bool {
	return bcrypt.CompareHashAndPassword(user.PINHash, []byte(pin)) == nil
}
