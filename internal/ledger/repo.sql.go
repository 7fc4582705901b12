package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/pharmadesk/pharmadesk/internal/platform/httpx"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx wraps callback in a repeatable-read transaction. The callback
// receives a TxStore bound to the transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxStore) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	if err := fn(ctx, NewPgTxStore(tx)); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

// CreateAccount inserts a new account with its opening balance.
func (r *Repository) CreateAccount(ctx context.Context, input AccountInput) (*Account, error) {
	now := time.Now().UTC()
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO accounts (name, kind, opening_balance, current_balance, active, created_at, updated_at)
VALUES ($1, $2, $3, $3, TRUE, $4, $4) RETURNING id`, input.Name, input.Kind, input.OpeningBalance.String(), now).Scan(&id)
	if err != nil {
		return nil, err
	}
	return &Account{
		ID:             id,
		Name:           input.Name,
		Kind:           input.Kind,
		OpeningBalance: input.OpeningBalance,
		CurrentBalance: input.OpeningBalance,
		Active:         true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// GetAccount returns a single account.
func (r *Repository) GetAccount(ctx context.Context, id int64) (*Account, error) {
	row := r.pool.QueryRow(ctx, `SELECT id, name, kind, opening_balance::text, current_balance::text, active, created_at, updated_at FROM accounts WHERE id = $1`, id)
	acc, err := scanAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: account %d", httpx.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return acc, nil
}

// ListAccounts returns all accounts ordered by name.
func (r *Repository) ListAccounts(ctx context.Context) ([]Account, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, kind, opening_balance::text, current_balance::text, active, created_at, updated_at FROM accounts ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var accounts []Account
	for rows.Next() {
		acc, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *acc)
	}
	return accounts, rows.Err()
}

// SetAccountActive toggles the active flag.
func (r *Repository) SetAccountActive(ctx context.Context, id int64, active bool) error {
	tag, err := r.pool.Exec(ctx, `UPDATE accounts SET active = $2, updated_at = NOW() WHERE id = $1`, id, active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: account %d", httpx.ErrNotFound, id)
	}
	return nil
}

// ListEntries returns entries for an owner ordered by entry date, oldest
// first, with the entry id as tiebreak. Total is the unpaginated count.
func (r *Repository) ListEntries(ctx context.Context, filter EntryFilter) ([]Entry, int, error) {
	where := `WHERE owner_kind = $1 AND owner_id = $2`
	args := []any{filter.OwnerKind, filter.OwnerID}
	if !filter.From.IsZero() {
		args = append(args, filter.From)
		where += fmt.Sprintf(" AND entry_date >= $%d", len(args))
	}
	if !filter.To.IsZero() {
		args = append(args, filter.To)
		where += fmt.Sprintf(" AND entry_date <= $%d", len(args))
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM ledger_entries `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	perPage := filter.PerPage
	if perPage <= 0 {
		perPage = 50
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	args = append(args, perPage, (page-1)*perPage)
	query := fmt.Sprintf(`SELECT id, owner_kind, owner_id, debit::text, credit::text, balance_after::text, description, ref_type, ref_id, entry_date, created_at
FROM ledger_entries %s ORDER BY entry_date, id LIMIT $%d OFFSET $%d`, where, len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var entries []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, 0, err
		}
		entries = append(entries, entry)
	}
	return entries, total, rows.Err()
}

// BalanceSnapshot pairs a cached balance with its opening value, used by the
// reconcile job to verify the running-balance invariant.
type BalanceSnapshot struct {
	Kind    OwnerKind
	OwnerID int64
	Opening decimal.Decimal
	Current decimal.Decimal
}

// ListBalances returns the cached balances of every ledger owner.
func (r *Repository) ListBalances(ctx context.Context) ([]BalanceSnapshot, error) {
	rows, err := r.pool.Query(ctx, `SELECT 'account', id, opening_balance::text, current_balance::text FROM accounts
UNION ALL SELECT 'supplier', id, opening_balance::text, balance::text FROM suppliers
UNION ALL SELECT 'customer', id, opening_balance::text, balance::text FROM customers`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var snapshots []BalanceSnapshot
	for rows.Next() {
		var snap BalanceSnapshot
		var opening, current string
		if err := rows.Scan(&snap.Kind, &snap.OwnerID, &opening, &current); err != nil {
			return nil, err
		}
		if snap.Opening, err = decimal.NewFromString(opening); err != nil {
			return nil, err
		}
		if snap.Current, err = decimal.NewFromString(current); err != nil {
			return nil, err
		}
		snapshots = append(snapshots, snap)
	}
	return snapshots, rows.Err()
}

// SumEntries returns the debit and credit totals for one owner.
func (r *Repository) SumEntries(ctx context.Context, kind OwnerKind, ownerID int64) (debit, credit decimal.Decimal, err error) {
	var debitStr, creditStr string
	err = r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(debit), 0)::text, COALESCE(SUM(credit), 0)::text FROM ledger_entries WHERE owner_kind = $1 AND owner_id = $2`, kind, ownerID).Scan(&debitStr, &creditStr)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	if debit, err = decimal.NewFromString(debitStr); err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	if credit, err = decimal.NewFromString(creditStr); err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	return debit, credit, nil
}

// NewPgTxStore binds a TxStore to an open transaction. Other modules use it
// to post ledger entries atomically with their own writes.
func NewPgTxStore(tx pgx.Tx) TxStore {
	return &pgTxStore{tx: tx}
}

type pgTxStore struct {
	tx pgx.Tx
}

func (s *pgTxStore) GetBalanceForUpdate(ctx context.Context, kind OwnerKind, ownerID int64) (decimal.Decimal, error) {
	var query string
	switch kind {
	case OwnerAccount:
		query = `SELECT current_balance::text FROM accounts WHERE id = $1 FOR UPDATE`
	case OwnerSupplier:
		query = `SELECT balance::text FROM suppliers WHERE id = $1 FOR UPDATE`
	case OwnerCustomer:
		query = `SELECT balance::text FROM customers WHERE id = $1 FOR UPDATE`
	default:
		return decimal.Zero, fmt.Errorf("ledger: unknown owner kind %q", kind)
	}
	var raw string
	err := s.tx.QueryRow(ctx, query, ownerID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, fmt.Errorf("%w: %s %d", ErrBalanceNotFound, kind, ownerID)
	}
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(raw)
}

func (s *pgTxStore) InsertEntry(ctx context.Context, entry Entry) (int64, error) {
	var id int64
	err := s.tx.QueryRow(ctx, `INSERT INTO ledger_entries (owner_kind, owner_id, debit, credit, balance_after, description, ref_type, ref_id, entry_date, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW()) RETURNING id`,
		entry.OwnerKind, entry.OwnerID, entry.Debit.String(), entry.Credit.String(), entry.BalanceAfter.String(),
		entry.Description, entry.RefType, nullableID(entry.RefID), entry.EntryDate).Scan(&id)
	return id, err
}

func (s *pgTxStore) UpdateBalance(ctx context.Context, kind OwnerKind, ownerID int64, balance decimal.Decimal) error {
	var query string
	switch kind {
	case OwnerAccount:
		query = `UPDATE accounts SET current_balance = $2, updated_at = NOW() WHERE id = $1`
	case OwnerSupplier:
		query = `UPDATE suppliers SET balance = $2, updated_at = NOW() WHERE id = $1`
	case OwnerCustomer:
		query = `UPDATE customers SET balance = $2, updated_at = NOW() WHERE id = $1`
	default:
		return fmt.Errorf("ledger: unknown owner kind %q", kind)
	}
	tag, err := s.tx.Exec(ctx, query, ownerID, balance.String())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s %d", ErrBalanceNotFound, kind, ownerID)
	}
	return nil
}

func nullableID(id int64) any {
	if id == 0 {
		return nil
	}
	return id
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*Account, error) {
	var acc Account
	var opening, current string
	if err := row.Scan(&acc.ID, &acc.Name, &acc.Kind, &opening, &current, &acc.Active, &acc.CreatedAt, &acc.UpdatedAt); err != nil {
		return nil, err
	}
	var err error
	if acc.OpeningBalance, err = decimal.NewFromString(opening); err != nil {
		return nil, err
	}
	if acc.CurrentBalance, err = decimal.NewFromString(current); err != nil {
		return nil, err
	}
	return &acc, nil
}

func scanEntry(row rowScanner) (Entry, error) {
	var entry Entry
	var debit, credit, after string
	var refType *string
	var refID *int64
	if err := row.Scan(&entry.ID, &entry.OwnerKind, &entry.OwnerID, &debit, &credit, &after, &entry.Description, &refType, &refID, &entry.EntryDate, &entry.CreatedAt); err != nil {
		return Entry{}, err
	}
	var err error
	if entry.Debit, err = decimal.NewFromString(debit); err != nil {
		return Entry{}, err
	}
	if entry.Credit, err = decimal.NewFromString(credit); err != nil {
		return Entry{}, err
	}
	if entry.BalanceAfter, err = decimal.NewFromString(after); err != nil {
		return Entry{}, err
	}
	if refType != nil {
		entry.RefType = *refType
	}
	if refID != nil {
		entry.RefID = *refID
	}
	return entry, nil
}
