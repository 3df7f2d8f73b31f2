package customer

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/ereal21/zxczxcz-sub000/internal/domain"
)

var (
	// ErrSelfReferral is returned when a user names themselves as referrer.
	ErrSelfReferral = errors.New("user cannot refer themselves")
	// ErrReferrerSet indicates the user already has a referrer.
	ErrReferrerSet = errors.New("referrer already set")
)

type profileRepo interface {
	Get(ctx context.Context, userID int64) (*domain.Customer, error)
	SetReferrer(ctx context.Context, userID, referrerID int64) error
}

type ledgerRepo interface {
	Balance(ctx context.Context, userID int64) (decimal.Decimal, error)
	Operations(ctx context.Context, userID int64) ([]domain.LedgerOperation, error)
}

// Profile is what the frontend shows on the account screen.
type Profile struct {
	domain.Customer
	Balance    decimal.Decimal          `json:"balance"`
	Operations []domain.LedgerOperation `json:"operations"`
}

// Service exposes loyalty profiles and referral registration.
type Service struct {
	repo   profileRepo
	ledger ledgerRepo
}

func New(repo profileRepo, ledger ledgerRepo) *Service {
	return &Service{repo: repo, ledger: ledger}
}

// Profile returns the user's loyalty state and balance. Users without a
// stored profile get an empty one.
func (s *Service) Profile(ctx context.Context, userID int64) (*Profile, error) {
	c, err := s.repo.Get(ctx, userID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		c = &domain.Customer{UserID: userID, TotalSpent: decimal.Zero}
	case err != nil:
		return nil, err
	}
	balance, err := s.ledger.Balance(ctx, userID)
	if err != nil {
		return nil, err
	}
	ops, err := s.ledger.Operations(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &Profile{Customer: *c, Balance: balance, Operations: ops}, nil
}

// SetReferrer registers who invited the user. The first referrer wins.
func (s *Service) SetReferrer(ctx context.Context, userID, referrerID int64) error {
	if userID == referrerID {
		return ErrSelfReferral
	}
	c, err := s.repo.Get(ctx, userID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return err
	}
	if c != nil && c.ReferrerID != nil {
		return ErrReferrerSet
	}
	return s.repo.SetReferrer(ctx, userID, referrerID)
}
