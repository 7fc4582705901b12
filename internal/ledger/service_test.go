package ledger

import (
	"context"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/pharmadesk/pharmadesk/internal/platform/httpx"
)

type memoryRepo struct {
	accounts map[int64]*Account
	balances map[string]decimal.Decimal
	entries  []Entry
	nextID   int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		accounts: make(map[int64]*Account),
		balances: make(map[string]decimal.Decimal),
	}
}

func balanceKey(kind OwnerKind, ownerID int64) string {
	return fmt.Sprintf("%s:%d", kind, ownerID)
}

func (r *memoryRepo) seedAccount(id int64, opening decimal.Decimal) {
	r.accounts[id] = &Account{ID: id, Name: fmt.Sprintf("Account %d", id), Kind: "cash", OpeningBalance: opening, CurrentBalance: opening, Active: true}
	r.balances[balanceKey(OwnerAccount, id)] = opening
}

func (r *memoryRepo) seedOwner(kind OwnerKind, id int64, opening decimal.Decimal) {
	r.balances[balanceKey(kind, id)] = opening
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxStore) error) error {
	return fn(ctx, &memoryTx{repo: r})
}

func (r *memoryRepo) CreateAccount(ctx context.Context, input AccountInput) (*Account, error) {
	r.nextID++
	acc := &Account{
		ID:             r.nextID,
		Name:           input.Name,
		Kind:           input.Kind,
		OpeningBalance: input.OpeningBalance,
		CurrentBalance: input.OpeningBalance,
		Active:         true,
	}
	r.accounts[acc.ID] = acc
	r.balances[balanceKey(OwnerAccount, acc.ID)] = input.OpeningBalance
	return acc, nil
}

func (r *memoryRepo) GetAccount(ctx context.Context, id int64) (*Account, error) {
	acc, ok := r.accounts[id]
	if !ok {
		return nil, fmt.Errorf("%w: account %d", httpx.ErrNotFound, id)
	}
	copied := *acc
	copied.CurrentBalance = r.balances[balanceKey(OwnerAccount, id)]
	return &copied, nil
}

func (r *memoryRepo) ListAccounts(ctx context.Context) ([]Account, error) {
	var accounts []Account
	for _, acc := range r.accounts {
		accounts = append(accounts, *acc)
	}
	return accounts, nil
}

func (r *memoryRepo) SetAccountActive(ctx context.Context, id int64, active bool) error {
	acc, ok := r.accounts[id]
	if !ok {
		return fmt.Errorf("%w: account %d", httpx.ErrNotFound, id)
	}
	acc.Active = active
	return nil
}

func (r *memoryRepo) ListEntries(ctx context.Context, filter EntryFilter) ([]Entry, int, error) {
	var matched []Entry
	for _, entry := range r.entries {
		if entry.OwnerKind == filter.OwnerKind && entry.OwnerID == filter.OwnerID {
			matched = append(matched, entry)
		}
	}
	return matched, len(matched), nil
}

type memoryTx struct {
	repo *memoryRepo
}

func (tx *memoryTx) GetBalanceForUpdate(ctx context.Context, kind OwnerKind, ownerID int64) (decimal.Decimal, error) {
	bal, ok := tx.repo.balances[balanceKey(kind, ownerID)]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s %d", ErrBalanceNotFound, kind, ownerID)
	}
	return bal, nil
}

func (tx *memoryTx) InsertEntry(ctx context.Context, entry Entry) (int64, error) {
	tx.repo.nextID++
	entry.ID = tx.repo.nextID
	tx.repo.entries = append(tx.repo.entries, entry)
	return entry.ID, nil
}

func (tx *memoryTx) UpdateBalance(ctx context.Context, kind OwnerKind, ownerID int64, balance decimal.Decimal) error {
	tx.repo.balances[balanceKey(kind, ownerID)] = balance
	return nil
}

func TestPostCreditRaisesBalance(t *testing.T) {
	repo := newMemoryRepo()
	repo.seedAccount(1, decimal.NewFromInt(100))
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	entry, err := svc.Post(ctx, PostInput{
		OwnerKind:   OwnerAccount,
		OwnerID:     1,
		Credit:      decimal.NewFromInt(50),
		Description: "cash sale",
	})
	require.NoError(t, err)
	require.True(t, entry.BalanceAfter.Equal(decimal.NewFromInt(150)), "got %s", entry.BalanceAfter)

	acc, err := svc.Account(ctx, 1)
	require.NoError(t, err)
	require.True(t, acc.CurrentBalance.Equal(decimal.NewFromInt(150)))
}

func TestPostDebitLowersBalanceForEveryOwnerKind(t *testing.T) {
	repo := newMemoryRepo()
	repo.seedAccount(1, decimal.NewFromInt(100))
	repo.seedOwner(OwnerSupplier, 7, decimal.NewFromInt(20))
	repo.seedOwner(OwnerCustomer, 9, decimal.Zero)
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	for _, tc := range []struct {
		kind    OwnerKind
		ownerID int64
		want    int64
	}{
		{OwnerAccount, 1, 70},
		{OwnerSupplier, 7, -10},
		{OwnerCustomer, 9, -30},
	} {
		entry, err := svc.Post(ctx, PostInput{
			OwnerKind:   tc.kind,
			OwnerID:     tc.ownerID,
			Debit:       decimal.NewFromInt(30),
			Description: "payment",
		})
		require.NoError(t, err)
		require.True(t, entry.BalanceAfter.Equal(decimal.NewFromInt(tc.want)), "%s: got %s", tc.kind, entry.BalanceAfter)
	}
}

func TestPostRejectsInvalidAmounts(t *testing.T) {
	repo := newMemoryRepo()
	repo.seedAccount(1, decimal.NewFromInt(100))
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	_, err := svc.Post(ctx, PostInput{OwnerKind: OwnerAccount, OwnerID: 1, Description: "empty"})
	require.ErrorIs(t, err, httpx.ErrValidation)

	_, err = svc.Post(ctx, PostInput{
		OwnerKind: OwnerAccount, OwnerID: 1,
		Debit: decimal.NewFromInt(10), Credit: decimal.NewFromInt(10),
		Description: "both sides",
	})
	require.ErrorIs(t, err, httpx.ErrValidation)

	_, err = svc.Post(ctx, PostInput{
		OwnerKind: OwnerAccount, OwnerID: 1,
		Debit:       decimal.NewFromInt(-5),
		Description: "negative",
	})
	require.ErrorIs(t, err, httpx.ErrValidation)
}

func TestPostRejectsInactiveAccount(t *testing.T) {
	repo := newMemoryRepo()
	repo.seedAccount(1, decimal.NewFromInt(100))
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	require.NoError(t, svc.SetActive(ctx, 1, false))

	_, err := svc.Post(ctx, PostInput{
		OwnerKind: OwnerAccount, OwnerID: 1,
		Credit:      decimal.NewFromInt(10),
		Description: "late sale",
	})
	require.ErrorIs(t, err, httpx.ErrState)
}

func TestAdjustPostsSignedEntry(t *testing.T) {
	repo := newMemoryRepo()
	repo.seedAccount(1, decimal.NewFromInt(100))
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	entry, err := svc.Adjust(ctx, 1, decimal.NewFromInt(-25), "drawer short")
	require.NoError(t, err)
	require.True(t, entry.Debit.Equal(decimal.NewFromInt(25)))
	require.True(t, entry.Credit.IsZero())
	require.True(t, entry.BalanceAfter.Equal(decimal.NewFromInt(75)))

	entry, err = svc.Adjust(ctx, 1, decimal.NewFromInt(5), "found cash")
	require.NoError(t, err)
	require.True(t, entry.Credit.Equal(decimal.NewFromInt(5)))
	require.True(t, entry.BalanceAfter.Equal(decimal.NewFromInt(80)))

	_, err = svc.Adjust(ctx, 1, decimal.Zero, "noop")
	require.ErrorIs(t, err, httpx.ErrValidation)
}

func TestPostUnknownOwnerFails(t *testing.T) {
	repo := newMemoryRepo()
	repo.seedAccount(1, decimal.NewFromInt(100))
	svc := NewService(repo, nil, nil)

	_, err := svc.Post(context.Background(), PostInput{
		OwnerKind: OwnerSupplier, OwnerID: 42,
		Credit:      decimal.NewFromInt(10),
		Description: "missing supplier",
	})
	require.ErrorIs(t, err, ErrBalanceNotFound)
}
