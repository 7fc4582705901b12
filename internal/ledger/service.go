package ledger

import (
	"context"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/pharmadesk/pharmadesk/internal/observability"
	"github.com/pharmadesk/pharmadesk/internal/platform/httpx"
	"github.com/pharmadesk/pharmadesk/internal/shared"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxStore) error) error
	CreateAccount(ctx context.Context, input AccountInput) (*Account, error)
	GetAccount(ctx context.Context, id int64) (*Account, error)
	ListAccounts(ctx context.Context) ([]Account, error)
	SetAccountActive(ctx context.Context, id int64, active bool) error
	ListEntries(ctx context.Context, filter EntryFilter) ([]Entry, int, error)
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates ledger operations.
type Service struct {
	repo    RepositoryPort
	audit   AuditPort
	metrics *observability.Metrics
}

// NewService builds a Service.
func NewService(repo RepositoryPort, audit AuditPort, metrics *observability.Metrics) *Service {
	return &Service{repo: repo, audit: audit, metrics: metrics}
}

// CreateAccount opens a new account. The opening balance becomes the current
// balance without generating an entry.
func (s *Service) CreateAccount(ctx context.Context, input AccountInput) (*Account, error) {
	if input.Name == "" {
		return nil, fmt.Errorf("%w: account name required", httpx.ErrValidation)
	}
	if input.Kind == "" {
		return nil, fmt.Errorf("%w: account kind required", httpx.ErrValidation)
	}
	acc, err := s.repo.CreateAccount(ctx, input)
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, "ledger:account_create", "account", acc.ID, map[string]any{
		"name":            acc.Name,
		"opening_balance": acc.OpeningBalance.String(),
	})
	return acc, nil
}

// Account returns one account.
func (s *Service) Account(ctx context.Context, id int64) (*Account, error) {
	return s.repo.GetAccount(ctx, id)
}

// Accounts lists all accounts.
func (s *Service) Accounts(ctx context.Context) ([]Account, error) {
	return s.repo.ListAccounts(ctx)
}

// Post records a manual ledger entry against any owner.
func (s *Service) Post(ctx context.Context, input PostInput) (Entry, error) {
	if input.OwnerKind == OwnerAccount {
		acc, err := s.repo.GetAccount(ctx, input.OwnerID)
		if err != nil {
			return Entry{}, err
		}
		if !acc.Active {
			return Entry{}, fmt.Errorf("%w: %v", httpx.ErrState, ErrAccountInactive)
		}
	}
	var entry Entry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxStore) error {
		var err error
		entry, err = Post(ctx, tx, input)
		return err
	})
	if err != nil {
		return Entry{}, err
	}
	if s.metrics != nil {
		s.metrics.LedgerPostings.WithLabelValues(string(input.OwnerKind)).Inc()
	}
	s.recordAudit(ctx, "ledger:post", string(input.OwnerKind), input.OwnerID, map[string]any{
		"debit":       input.Debit.String(),
		"credit":      input.Credit.String(),
		"description": input.Description,
	})
	return entry, nil
}

// Adjust posts a signed correction against an account. A positive amount
// credits the account, a negative amount debits it.
func (s *Service) Adjust(ctx context.Context, accountID int64, amount decimal.Decimal, description string) (Entry, error) {
	if amount.IsZero() {
		return Entry{}, fmt.Errorf("%w: adjustment amount required", httpx.ErrValidation)
	}
	input := PostInput{
		OwnerKind:   OwnerAccount,
		OwnerID:     accountID,
		Description: description,
		RefType:     "adjustment",
	}
	if amount.IsPositive() {
		input.Credit = amount
	} else {
		input.Debit = amount.Neg()
	}
	return s.Post(ctx, input)
}

// SetActive activates or deactivates an account. Deactivated accounts keep
// their history but reject new postings.
func (s *Service) SetActive(ctx context.Context, id int64, active bool) error {
	if err := s.repo.SetAccountActive(ctx, id, active); err != nil {
		return err
	}
	s.recordAudit(ctx, "ledger:account_active", "account", id, map[string]any{"active": active})
	return nil
}

// Entries lists ledger entries for one owner, oldest first.
func (s *Service) Entries(ctx context.Context, filter EntryFilter) ([]Entry, shared.Pagination, error) {
	if !filter.OwnerKind.Valid() {
		return nil, shared.Pagination{}, fmt.Errorf("%w: unknown owner kind %q", httpx.ErrValidation, filter.OwnerKind)
	}
	if filter.OwnerID <= 0 {
		return nil, shared.Pagination{}, fmt.Errorf("%w: owner id required", httpx.ErrValidation)
	}
	entries, total, err := s.repo.ListEntries(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return entries, shared.NewPagination(filter.Page, filter.PerPage, total), nil
}

func (s *Service) recordAudit(ctx context.Context, action, entity string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		Action:   action,
		Entity:   entity,
		EntityID: strconv.FormatInt(id, 10),
		Meta:     meta,
	})
}
