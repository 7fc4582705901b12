package sales

import (
	"context"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/pharmadesk/pharmadesk/internal/inventory"
	"github.com/pharmadesk/pharmadesk/internal/ledger"
	"github.com/pharmadesk/pharmadesk/internal/platform/httpx"
)

// memoryDB backs the fake repository. WithTx snapshots the maps so a failed
// callback leaves no partial writes, mirroring a rolled back transaction.
type memoryDB struct {
	sales       map[int64]Sale
	items       map[int64][]Item
	returns     map[int64]Return
	returnItems map[int64][]ReturnItem
	stock       map[int64]int64
	balances    map[string]decimal.Decimal
	entries     []ledger.Entry
	nextID      int64
}

func newMemoryDB() *memoryDB {
	return &memoryDB{
		sales:       make(map[int64]Sale),
		items:       make(map[int64][]Item),
		returns:     make(map[int64]Return),
		returnItems: make(map[int64][]ReturnItem),
		stock:       make(map[int64]int64),
		balances:    make(map[string]decimal.Decimal),
	}
}

func ownerKey(kind ledger.OwnerKind, id int64) string {
	return fmt.Sprintf("%s:%d", kind, id)
}

func (db *memoryDB) snapshot() *memoryDB {
	clone := newMemoryDB()
	for k, v := range db.sales {
		clone.sales[k] = v
	}
	for k, v := range db.items {
		clone.items[k] = append([]Item(nil), v...)
	}
	for k, v := range db.returns {
		clone.returns[k] = v
	}
	for k, v := range db.returnItems {
		clone.returnItems[k] = append([]ReturnItem(nil), v...)
	}
	for k, v := range db.stock {
		clone.stock[k] = v
	}
	for k, v := range db.balances {
		clone.balances[k] = v
	}
	clone.entries = append([]ledger.Entry(nil), db.entries...)
	clone.nextID = db.nextID
	return clone
}

func (db *memoryDB) restore(from *memoryDB) {
	db.sales = from.sales
	db.items = from.items
	db.returns = from.returns
	db.returnItems = from.returnItems
	db.stock = from.stock
	db.balances = from.balances
	db.entries = from.entries
	db.nextID = from.nextID
}

func (db *memoryDB) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	before := db.snapshot()
	if err := fn(ctx, &memTx{db: db}); err != nil {
		db.restore(before)
		return err
	}
	return nil
}

func (db *memoryDB) GetSale(ctx context.Context, id int64) (*Sale, error) {
	sale, ok := db.sales[id]
	if !ok {
		return nil, fmt.Errorf("%w: sale %d", httpx.ErrNotFound, id)
	}
	sale.Items = db.items[id]
	return &sale, nil
}

func (db *memoryDB) ListSales(ctx context.Context, filter ListFilter) ([]Sale, int, error) {
	var sales []Sale
	for _, sale := range db.sales {
		sales = append(sales, sale)
	}
	return sales, len(sales), nil
}

func (db *memoryDB) GetReturn(ctx context.Context, id int64) (*Return, error) {
	ret, ok := db.returns[id]
	if !ok {
		return nil, fmt.Errorf("%w: sale return %d", httpx.ErrNotFound, id)
	}
	ret.Items = db.returnItems[id]
	return &ret, nil
}

type memTx struct {
	db *memoryDB
}

func (t *memTx) InsertSale(ctx context.Context, sale Sale) (int64, error) {
	t.db.nextID++
	sale.ID = t.db.nextID
	t.db.sales[sale.ID] = sale
	return sale.ID, nil
}

func (t *memTx) InsertItems(ctx context.Context, saleID int64, items []Item) error {
	t.db.items[saleID] = append([]Item(nil), items...)
	return nil
}

func (t *memTx) GetSaleForUpdate(ctx context.Context, id int64) (Sale, error) {
	sale, ok := t.db.sales[id]
	if !ok {
		return Sale{}, fmt.Errorf("%w: sale %d", httpx.ErrNotFound, id)
	}
	return sale, nil
}

func (t *memTx) GetItems(ctx context.Context, saleID int64) ([]Item, error) {
	return t.db.items[saleID], nil
}

func (t *memTx) ReturnedQty(ctx context.Context, saleID int64) (map[int64]int64, error) {
	returned := make(map[int64]int64)
	for id, ret := range t.db.returns {
		if ret.SaleID != saleID {
			continue
		}
		for _, item := range t.db.returnItems[id] {
			returned[item.ProductID] += item.Qty
		}
	}
	return returned, nil
}

func (t *memTx) InsertReturn(ctx context.Context, ret Return) (int64, error) {
	t.db.nextID++
	ret.ID = t.db.nextID
	t.db.returns[ret.ID] = ret
	return ret.ID, nil
}

func (t *memTx) InsertReturnItems(ctx context.Context, returnID int64, items []ReturnItem) error {
	t.db.returnItems[returnID] = append([]ReturnItem(nil), items...)
	return nil
}

func (t *memTx) UpdateStatus(ctx context.Context, id int64, status Status) error {
	sale := t.db.sales[id]
	sale.Status = status
	t.db.sales[id] = sale
	return nil
}

func (t *memTx) Ledger() ledger.TxStore {
	return &memLedger{db: t.db}
}

func (t *memTx) Inventory() inventory.TxStore {
	return &memInventory{db: t.db}
}

type memLedger struct {
	db *memoryDB
}

func (l *memLedger) GetBalanceForUpdate(ctx context.Context, kind ledger.OwnerKind, ownerID int64) (decimal.Decimal, error) {
	bal, ok := l.db.balances[ownerKey(kind, ownerID)]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s %d", ledger.ErrBalanceNotFound, kind, ownerID)
	}
	return bal, nil
}

func (l *memLedger) InsertEntry(ctx context.Context, entry ledger.Entry) (int64, error) {
	l.db.nextID++
	entry.ID = l.db.nextID
	l.db.entries = append(l.db.entries, entry)
	return entry.ID, nil
}

func (l *memLedger) UpdateBalance(ctx context.Context, kind ledger.OwnerKind, ownerID int64, balance decimal.Decimal) error {
	l.db.balances[ownerKey(kind, ownerID)] = balance
	return nil
}

type memInventory struct {
	db *memoryDB
}

func (i *memInventory) GetStockForUpdate(ctx context.Context, productID int64) (int64, error) {
	qty, ok := i.db.stock[productID]
	if !ok {
		return 0, fmt.Errorf("%w: product %d", inventory.ErrStockNotFound, productID)
	}
	return qty, nil
}

func (i *memInventory) InsertMovement(ctx context.Context, movement inventory.Movement) (int64, error) {
	i.db.nextID++
	return i.db.nextID, nil
}

func (i *memInventory) UpsertStock(ctx context.Context, productID, quantity int64) error {
	i.db.stock[productID] = quantity
	return nil
}

func newTestService(db *memoryDB, restock bool) *Service {
	return NewService(db, inventory.NewApplier(false), nil, nil, Config{RestockOnReturn: restock})
}

func seedDB() *memoryDB {
	db := newMemoryDB()
	db.stock[1] = 10
	db.stock[2] = 5
	db.balances[ownerKey(ledger.OwnerAccount, 1)] = decimal.NewFromInt(100)
	db.balances[ownerKey(ledger.OwnerCustomer, 3)] = decimal.Zero
	return db
}

func TestCreateSaleCash(t *testing.T) {
	db := seedDB()
	svc := newTestService(db, true)
	ctx := context.Background()

	sale, err := svc.Create(ctx, CreateInput{
		AccountID: 1,
		Items: []ItemInput{
			{ProductID: 1, Qty: 2, UnitPrice: decimal.NewFromInt(10)},
			{ProductID: 2, Qty: 1, UnitPrice: decimal.NewFromInt(5)},
		},
		Paid: decimal.NewFromInt(25),
	})
	require.NoError(t, err)
	require.True(t, sale.Total.Equal(decimal.NewFromInt(25)), "total %s", sale.Total)
	require.True(t, sale.Change.IsZero())
	require.True(t, sale.Due.IsZero())
	require.Equal(t, StatusCompleted, sale.Status)

	require.Equal(t, int64(8), db.stock[1])
	require.Equal(t, int64(4), db.stock[2])
	require.True(t, db.balances[ownerKey(ledger.OwnerAccount, 1)].Equal(decimal.NewFromInt(125)))
}

func TestCreateSaleChangeNotBanked(t *testing.T) {
	db := seedDB()
	svc := newTestService(db, true)

	sale, err := svc.Create(context.Background(), CreateInput{
		AccountID: 1,
		Items:     []ItemInput{{ProductID: 1, Qty: 2, UnitPrice: decimal.NewFromInt(10)}},
		Paid:      decimal.NewFromInt(30),
	})
	require.NoError(t, err)
	require.True(t, sale.Change.Equal(decimal.NewFromInt(10)))
	// Only the retained amount reaches the drawer.
	require.True(t, db.balances[ownerKey(ledger.OwnerAccount, 1)].Equal(decimal.NewFromInt(120)))
}

func TestCreditSale(t *testing.T) {
	db := seedDB()
	svc := newTestService(db, true)
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateInput{
		AccountID: 1,
		Items:     []ItemInput{{ProductID: 1, Qty: 2, UnitPrice: decimal.NewFromInt(10)}},
		Paid:      decimal.NewFromInt(5),
	})
	require.ErrorIs(t, err, httpx.ErrValidation, "credit sale without customer must fail")

	customerID := int64(3)
	sale, err := svc.Create(ctx, CreateInput{
		AccountID:  1,
		CustomerID: &customerID,
		Items:      []ItemInput{{ProductID: 1, Qty: 2, UnitPrice: decimal.NewFromInt(10)}},
		Paid:       decimal.NewFromInt(5),
	})
	require.NoError(t, err)
	require.Equal(t, StatusPending, sale.Status)
	require.True(t, sale.Due.Equal(decimal.NewFromInt(15)))
	require.True(t, db.balances[ownerKey(ledger.OwnerAccount, 1)].Equal(decimal.NewFromInt(105)))
	require.True(t, db.balances[ownerKey(ledger.OwnerCustomer, 3)].Equal(decimal.NewFromInt(15)))
}

func TestCreateSaleRollsBackOnInsufficientStock(t *testing.T) {
	db := seedDB()
	svc := newTestService(db, true)

	_, err := svc.Create(context.Background(), CreateInput{
		AccountID: 1,
		Items: []ItemInput{
			{ProductID: 1, Qty: 2, UnitPrice: decimal.NewFromInt(10)},
			{ProductID: 2, Qty: 50, UnitPrice: decimal.NewFromInt(5)},
		},
		Paid: decimal.NewFromInt(270),
	})
	require.ErrorIs(t, err, inventory.ErrInsufficientStock)

	// Nothing committed: first line's decrement rolled back too.
	require.Equal(t, int64(10), db.stock[1])
	require.Equal(t, int64(5), db.stock[2])
	require.True(t, db.balances[ownerKey(ledger.OwnerAccount, 1)].Equal(decimal.NewFromInt(100)))
	require.Empty(t, db.sales)
}

func TestReturnFlow(t *testing.T) {
	db := seedDB()
	svc := newTestService(db, true)
	ctx := context.Background()

	sale, err := svc.Create(ctx, CreateInput{
		AccountID: 1,
		Items:     []ItemInput{{ProductID: 1, Qty: 2, UnitPrice: decimal.NewFromInt(10)}},
		Paid:      decimal.NewFromInt(20),
	})
	require.NoError(t, err)

	ret, err := svc.Return(ctx, ReturnInput{
		SaleID: sale.ID,
		Items:  []ReturnItemInput{{ProductID: 1, Qty: 1}},
		Reason: "expired",
	})
	require.NoError(t, err)
	require.True(t, ret.Refund.Equal(decimal.NewFromInt(10)), "refund %s", ret.Refund)
	require.True(t, ret.Restocked)
	require.Equal(t, int64(9), db.stock[1])
	require.True(t, db.balances[ownerKey(ledger.OwnerAccount, 1)].Equal(decimal.NewFromInt(110)))
	require.Equal(t, StatusPartiallyRefunded, db.sales[sale.ID].Status)

	// Cannot exceed what remains.
	_, err = svc.Return(ctx, ReturnInput{
		SaleID: sale.ID,
		Items:  []ReturnItemInput{{ProductID: 1, Qty: 2}},
	})
	require.ErrorIs(t, err, httpx.ErrState)

	_, err = svc.Return(ctx, ReturnInput{
		SaleID: sale.ID,
		Items:  []ReturnItemInput{{ProductID: 1, Qty: 1}},
	})
	require.NoError(t, err)
	require.Equal(t, StatusRefunded, db.sales[sale.ID].Status)

	_, err = svc.Return(ctx, ReturnInput{
		SaleID: sale.ID,
		Items:  []ReturnItemInput{{ProductID: 1, Qty: 1}},
	})
	require.ErrorIs(t, err, httpx.ErrState)
}

func TestReturnWithoutRestock(t *testing.T) {
	db := seedDB()
	svc := newTestService(db, false)
	ctx := context.Background()

	sale, err := svc.Create(ctx, CreateInput{
		AccountID: 1,
		Items:     []ItemInput{{ProductID: 1, Qty: 2, UnitPrice: decimal.NewFromInt(10)}},
		Paid:      decimal.NewFromInt(20),
	})
	require.NoError(t, err)
	require.Equal(t, int64(8), db.stock[1])

	ret, err := svc.Return(ctx, ReturnInput{
		SaleID: sale.ID,
		Items:  []ReturnItemInput{{ProductID: 1, Qty: 2}},
	})
	require.NoError(t, err)
	require.False(t, ret.Restocked)
	require.Equal(t, int64(8), db.stock[1], "damaged goods stay off the shelf")
}

func TestReturnRefundsDiscountedPrice(t *testing.T) {
	db := seedDB()
	svc := newTestService(db, true)
	ctx := context.Background()

	sale, err := svc.Create(ctx, CreateInput{
		AccountID: 1,
		Items: []ItemInput{{
			ProductID: 1, Qty: 2,
			UnitPrice: decimal.NewFromInt(10),
			Discount:  decimal.NewFromInt(4),
		}},
		Paid: decimal.NewFromInt(16),
	})
	require.NoError(t, err)

	ret, err := svc.Return(ctx, ReturnInput{
		SaleID: sale.ID,
		Items:  []ReturnItemInput{{ProductID: 1, Qty: 1}},
	})
	require.NoError(t, err)
	require.True(t, ret.Refund.Equal(decimal.NewFromInt(8)), "refund %s", ret.Refund)
}

func TestCreateSaleRejectsZeroTotal(t *testing.T) {
	db := seedDB()
	svc := newTestService(db, true)

	_, err := svc.Create(context.Background(), CreateInput{
		AccountID: 1,
		Items:     []ItemInput{{ProductID: 1, Qty: 1, UnitPrice: decimal.NewFromInt(10)}},
		Discount:  decimal.NewFromInt(10),
	})
	require.ErrorIs(t, err, httpx.ErrValidation)
	require.Equal(t, int64(10), db.stock[1], "nothing may leave the shelf")
	require.Empty(t, db.sales)
}

func TestReturnAggregatesDuplicateProductLines(t *testing.T) {
	db := seedDB()
	svc := newTestService(db, true)
	ctx := context.Background()

	// Two lines of the same product: 5 units sold in total.
	sale, err := svc.Create(ctx, CreateInput{
		AccountID: 1,
		Items: []ItemInput{
			{ProductID: 1, Qty: 2, UnitPrice: decimal.NewFromInt(10)},
			{ProductID: 1, Qty: 3, UnitPrice: decimal.NewFromInt(10)},
		},
		Paid: decimal.NewFromInt(50),
	})
	require.NoError(t, err)
	require.Equal(t, int64(5), db.stock[1])

	ret, err := svc.Return(ctx, ReturnInput{
		SaleID: sale.ID,
		Items:  []ReturnItemInput{{ProductID: 1, Qty: 3}},
	})
	require.NoError(t, err)
	require.True(t, ret.Refund.Equal(decimal.NewFromInt(30)), "refund %s", ret.Refund)
	require.Equal(t, StatusPartiallyRefunded, db.sales[sale.ID].Status, "2 of 5 units still out")

	// The remaining 2 units stay returnable.
	ret, err = svc.Return(ctx, ReturnInput{
		SaleID: sale.ID,
		Items:  []ReturnItemInput{{ProductID: 1, Qty: 2}},
	})
	require.NoError(t, err)
	require.True(t, ret.Refund.Equal(decimal.NewFromInt(20)), "refund %s", ret.Refund)
	require.Equal(t, StatusRefunded, db.sales[sale.ID].Status)
	require.Equal(t, int64(10), db.stock[1])

	_, err = svc.Return(ctx, ReturnInput{
		SaleID: sale.ID,
		Items:  []ReturnItemInput{{ProductID: 1, Qty: 1}},
	})
	require.ErrorIs(t, err, httpx.ErrState)
}

func TestRecordPayment(t *testing.T) {
	db := seedDB()
	db.balances[ownerKey(ledger.OwnerCustomer, 3)] = decimal.NewFromInt(50)
	svc := newTestService(db, true)
	ctx := context.Background()

	err := svc.RecordPayment(ctx, PaymentInput{CustomerID: 3, AccountID: 1, Amount: decimal.NewFromInt(20)})
	require.NoError(t, err)
	require.True(t, db.balances[ownerKey(ledger.OwnerCustomer, 3)].Equal(decimal.NewFromInt(30)))
	require.True(t, db.balances[ownerKey(ledger.OwnerAccount, 1)].Equal(decimal.NewFromInt(120)))

	err = svc.RecordPayment(ctx, PaymentInput{CustomerID: 3, AccountID: 1, Amount: decimal.Zero})
	require.ErrorIs(t, err, httpx.ErrValidation)
}
