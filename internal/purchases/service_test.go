package purchases

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
	purchases   map[int64]Purchase
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
		purchases:   make(map[int64]Purchase),
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
	for k, v := range db.purchases {
		clone.purchases[k] = v
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
	db.purchases = from.purchases
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

func (db *memoryDB) GetPurchase(ctx context.Context, id int64) (*Purchase, error) {
	purchase, ok := db.purchases[id]
	if !ok {
		return nil, fmt.Errorf("%w: purchase %d", httpx.ErrNotFound, id)
	}
	purchase.Items = db.items[id]
	return &purchase, nil
}

func (db *memoryDB) ListPurchases(ctx context.Context, filter ListFilter) ([]Purchase, int, error) {
	var purchases []Purchase
	for _, purchase := range db.purchases {
		purchases = append(purchases, purchase)
	}
	return purchases, len(purchases), nil
}

type memTx struct {
	db *memoryDB
}

func (t *memTx) InsertPurchase(ctx context.Context, purchase Purchase) (int64, error) {
	t.db.nextID++
	purchase.ID = t.db.nextID
	t.db.purchases[purchase.ID] = purchase
	return purchase.ID, nil
}

func (t *memTx) InsertItems(ctx context.Context, purchaseID int64, items []Item) error {
	t.db.items[purchaseID] = append([]Item(nil), items...)
	return nil
}

func (t *memTx) GetPurchaseForUpdate(ctx context.Context, id int64) (Purchase, error) {
	purchase, ok := t.db.purchases[id]
	if !ok {
		return Purchase{}, fmt.Errorf("%w: purchase %d", httpx.ErrNotFound, id)
	}
	return purchase, nil
}

func (t *memTx) GetItems(ctx context.Context, purchaseID int64) ([]Item, error) {
	return t.db.items[purchaseID], nil
}

func (t *memTx) ReturnedQty(ctx context.Context, purchaseID int64) (map[int64]int64, error) {
	returned := make(map[int64]int64)
	for id, ret := range t.db.returns {
		if ret.PurchaseID != purchaseID {
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
	purchase := t.db.purchases[id]
	purchase.Status = status
	t.db.purchases[id] = purchase
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

func newTestService(db *memoryDB) *Service {
	return NewService(db, inventory.NewApplier(false), nil, nil)
}

func seedDB() *memoryDB {
	db := newMemoryDB()
	db.stock[1] = 3
	db.balances[ownerKey(ledger.OwnerAccount, 1)] = decimal.NewFromInt(500)
	db.balances[ownerKey(ledger.OwnerSupplier, 7)] = decimal.Zero
	return db
}

func TestCreatePurchasePartialPayment(t *testing.T) {
	db := seedDB()
	svc := newTestService(db)

	purchase, err := svc.Create(context.Background(), CreateInput{
		SupplierID: 7,
		AccountID:  1,
		Items: []ItemInput{
			{ProductID: 1, Qty: 10, UnitCost: decimal.NewFromInt(8)},
			{ProductID: 2, Qty: 5, UnitCost: decimal.NewFromInt(4)},
		},
		Paid: decimal.NewFromInt(60),
	})
	require.NoError(t, err)
	require.True(t, purchase.Total.Equal(decimal.NewFromInt(100)), "total %s", purchase.Total)
	require.True(t, purchase.Due.Equal(decimal.NewFromInt(40)))
	require.Equal(t, StatusReceived, purchase.Status)

	require.Equal(t, int64(13), db.stock[1])
	require.Equal(t, int64(5), db.stock[2])
	// Paid leaves the account, remainder is owed to the supplier.
	require.True(t, db.balances[ownerKey(ledger.OwnerAccount, 1)].Equal(decimal.NewFromInt(440)))
	require.True(t, db.balances[ownerKey(ledger.OwnerSupplier, 7)].Equal(decimal.NewFromInt(40)))
}

func TestCreatePurchaseFullyPaidPostsNoSupplierCredit(t *testing.T) {
	db := seedDB()
	svc := newTestService(db)

	_, err := svc.Create(context.Background(), CreateInput{
		SupplierID: 7,
		AccountID:  1,
		Items:      []ItemInput{{ProductID: 1, Qty: 2, UnitCost: decimal.NewFromInt(10)}},
		Paid:       decimal.NewFromInt(20),
	})
	require.NoError(t, err)
	require.True(t, db.balances[ownerKey(ledger.OwnerSupplier, 7)].IsZero())
	require.True(t, db.balances[ownerKey(ledger.OwnerAccount, 1)].Equal(decimal.NewFromInt(480)))
	for _, entry := range db.entries {
		require.NotEqual(t, ledger.OwnerSupplier, entry.OwnerKind)
	}
}

func TestCreatePurchaseRejectsOverpayment(t *testing.T) {
	db := seedDB()
	svc := newTestService(db)

	_, err := svc.Create(context.Background(), CreateInput{
		SupplierID: 7,
		AccountID:  1,
		Items:      []ItemInput{{ProductID: 1, Qty: 2, UnitCost: decimal.NewFromInt(10)}},
		Paid:       decimal.NewFromInt(25),
	})
	require.ErrorIs(t, err, httpx.ErrValidation)
	require.Equal(t, int64(3), db.stock[1])
	require.Empty(t, db.purchases)
}

func TestCreatePurchaseRollsBackOnUnknownAccount(t *testing.T) {
	db := seedDB()
	svc := newTestService(db)

	_, err := svc.Create(context.Background(), CreateInput{
		SupplierID: 7,
		AccountID:  99,
		Items:      []ItemInput{{ProductID: 1, Qty: 4, UnitCost: decimal.NewFromInt(5)}},
		Paid:       decimal.NewFromInt(20),
	})
	require.ErrorIs(t, err, ledger.ErrBalanceNotFound)

	// The stock increment rolled back with the header.
	require.Equal(t, int64(3), db.stock[1])
	require.True(t, db.balances[ownerKey(ledger.OwnerSupplier, 7)].IsZero())
	require.Empty(t, db.purchases)
}

func TestReturnFlow(t *testing.T) {
	db := seedDB()
	svc := newTestService(db)
	ctx := context.Background()

	purchase, err := svc.Create(ctx, CreateInput{
		SupplierID: 7,
		AccountID:  1,
		Items:      []ItemInput{{ProductID: 1, Qty: 10, UnitCost: decimal.NewFromInt(8)}},
		Paid:       decimal.NewFromInt(30),
	})
	require.NoError(t, err)
	require.True(t, db.balances[ownerKey(ledger.OwnerSupplier, 7)].Equal(decimal.NewFromInt(50)))

	ret, err := svc.Return(ctx, ReturnInput{
		PurchaseID: purchase.ID,
		Items:      []ReturnItemInput{{ProductID: 1, Qty: 4}},
		Reason:     "damaged in transit",
	})
	require.NoError(t, err)
	require.True(t, ret.Value.Equal(decimal.NewFromInt(32)), "value %s", ret.Value)
	require.Equal(t, int64(9), db.stock[1])
	// Returned value reduces what we owe the supplier.
	require.True(t, db.balances[ownerKey(ledger.OwnerSupplier, 7)].Equal(decimal.NewFromInt(18)))
	require.Equal(t, StatusPartiallyReturned, db.purchases[purchase.ID].Status)

	// Cannot exceed what remains.
	_, err = svc.Return(ctx, ReturnInput{
		PurchaseID: purchase.ID,
		Items:      []ReturnItemInput{{ProductID: 1, Qty: 7}},
	})
	require.ErrorIs(t, err, httpx.ErrState)

	_, err = svc.Return(ctx, ReturnInput{
		PurchaseID: purchase.ID,
		Items:      []ReturnItemInput{{ProductID: 1, Qty: 6}},
	})
	require.NoError(t, err)
	require.Equal(t, StatusReturned, db.purchases[purchase.ID].Status)

	_, err = svc.Return(ctx, ReturnInput{
		PurchaseID: purchase.ID,
		Items:      []ReturnItemInput{{ProductID: 1, Qty: 1}},
	})
	require.ErrorIs(t, err, httpx.ErrState)
}

func TestReturnAggregatesDuplicateProductLines(t *testing.T) {
	db := seedDB()
	svc := newTestService(db)
	ctx := context.Background()

	// Two lines of the same product: 5 units received in total.
	purchase, err := svc.Create(ctx, CreateInput{
		SupplierID: 7,
		AccountID:  1,
		Items: []ItemInput{
			{ProductID: 1, Qty: 2, UnitCost: decimal.NewFromInt(8)},
			{ProductID: 1, Qty: 3, UnitCost: decimal.NewFromInt(8)},
		},
		Paid: decimal.NewFromInt(40),
	})
	require.NoError(t, err)
	require.Equal(t, int64(8), db.stock[1])

	ret, err := svc.Return(ctx, ReturnInput{
		PurchaseID: purchase.ID,
		Items:      []ReturnItemInput{{ProductID: 1, Qty: 4}},
	})
	require.NoError(t, err)
	require.True(t, ret.Value.Equal(decimal.NewFromInt(32)), "value %s", ret.Value)
	require.Equal(t, StatusPartiallyReturned, db.purchases[purchase.ID].Status, "1 of 5 units still in")

	// The last unit stays returnable.
	ret, err = svc.Return(ctx, ReturnInput{
		PurchaseID: purchase.ID,
		Items:      []ReturnItemInput{{ProductID: 1, Qty: 1}},
	})
	require.NoError(t, err)
	require.True(t, ret.Value.Equal(decimal.NewFromInt(8)), "value %s", ret.Value)
	require.Equal(t, StatusReturned, db.purchases[purchase.ID].Status)
	require.Equal(t, int64(3), db.stock[1])

	_, err = svc.Return(ctx, ReturnInput{
		PurchaseID: purchase.ID,
		Items:      []ReturnItemInput{{ProductID: 1, Qty: 1}},
	})
	require.ErrorIs(t, err, httpx.ErrState)
}

func TestReturnRejectsForeignProduct(t *testing.T) {
	db := seedDB()
	svc := newTestService(db)
	ctx := context.Background()

	purchase, err := svc.Create(ctx, CreateInput{
		SupplierID: 7,
		AccountID:  1,
		Items:      []ItemInput{{ProductID: 1, Qty: 2, UnitCost: decimal.NewFromInt(8)}},
		Paid:       decimal.NewFromInt(16),
	})
	require.NoError(t, err)

	_, err = svc.Return(ctx, ReturnInput{
		PurchaseID: purchase.ID,
		Items:      []ReturnItemInput{{ProductID: 2, Qty: 1}},
	})
	require.ErrorIs(t, err, httpx.ErrValidation)
}

func TestRecordPayment(t *testing.T) {
	db := seedDB()
	db.balances[ownerKey(ledger.OwnerSupplier, 7)] = decimal.NewFromInt(80)
	svc := newTestService(db)
	ctx := context.Background()

	err := svc.RecordPayment(ctx, PaymentInput{SupplierID: 7, AccountID: 1, Amount: decimal.NewFromInt(50)})
	require.NoError(t, err)
	require.True(t, db.balances[ownerKey(ledger.OwnerSupplier, 7)].Equal(decimal.NewFromInt(30)))
	require.True(t, db.balances[ownerKey(ledger.OwnerAccount, 1)].Equal(decimal.NewFromInt(450)))

	err = svc.RecordPayment(ctx, PaymentInput{SupplierID: 7, AccountID: 1, Amount: decimal.Zero})
	require.ErrorIs(t, err, httpx.ErrValidation)
}
