package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/fjod/go_cart/storefront-cart/internal/domain"
	"github.com/fjod/go_cart/storefront-cart/internal/storage"
	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type mockInventory struct {
	m          sync.RWMutex
	products   map[int64]domain.Product
	stocks     map[int64]int
	productErr error
	stockErr   error
	stockCalls int
}

func newMockInventory() *mockInventory {
	return &mockInventory{
		products: make(map[int64]domain.Product),
		stocks:   make(map[int64]int),
	}
}

func (m *mockInventory) set(id int64, stock int) domain.Product {
	m.m.Lock()
	defer m.m.Unlock()
	p := domain.Product{
		ID:    id,
		Title: gofakeit.ProductName(),
		Price: decimal.NewFromFloat(gofakeit.Price(10, 500)).Round(2),
		Image: gofakeit.URL(),
	}
	m.products[id] = p
	m.stocks[id] = stock
	return p
}

func (m *mockInventory) GetProduct(_ context.Context, productID int64) (domain.Product, error) {
	m.m.RLock()
	defer m.m.RUnlock()
	if m.productErr != nil {
		return domain.Product{}, m.productErr
	}
	p, ok := m.products[productID]
	if !ok {
		return domain.Product{}, fmt.Errorf("product not found")
	}
	return p, nil
}

func (m *mockInventory) GetStock(_ context.Context, productID int64) (domain.Stock, error) {
	m.m.Lock()
	defer m.m.Unlock()
	m.stockCalls++
	if m.stockErr != nil {
		return domain.Stock{}, m.stockErr
	}
	return domain.Stock{ID: productID, Amount: m.stocks[productID]}, nil
}

func (m *mockInventory) getStockCalls() int {
	m.m.RLock()
	defer m.m.RUnlock()
	return m.stockCalls
}

type mockStorage struct {
	m        sync.RWMutex
	data     map[string][]byte
	readErr  error
	writeErr error
	writes   int
}

func newMockStorage() *mockStorage {
	return &mockStorage{data: make(map[string][]byte)}
}

func (m *mockStorage) Read(_ context.Context, key string) ([]byte, error) {
	m.m.RLock()
	defer m.m.RUnlock()
	if m.readErr != nil {
		return nil, m.readErr
	}
	v, ok := m.data[key]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return v, nil
}

func (m *mockStorage) Write(_ context.Context, key string, data []byte) error {
	m.m.Lock()
	defer m.m.Unlock()
	if m.writeErr != nil {
		return m.writeErr
	}
	m.writes++
	m.data[key] = data
	return nil
}

func (m *mockStorage) snapshot(t *testing.T, key string) domain.Cart {
	t.Helper()
	m.m.RLock()
	defer m.m.RUnlock()
	raw, ok := m.data[key]
	if !ok {
		return nil
	}
	var c domain.Cart
	require.NoError(t, json.Unmarshal(raw, &c))
	return c
}

func (m *mockStorage) writeCount() int {
	m.m.RLock()
	defer m.m.RUnlock()
	return m.writes
}

type mockNotifier struct {
	m    sync.Mutex
	msgs []string
}

func (n *mockNotifier) ReportError(msg string) {
	n.m.Lock()
	defer n.m.Unlock()
	n.msgs = append(n.msgs, msg)
}

func (n *mockNotifier) messages() []string {
	n.m.Lock()
	defer n.m.Unlock()
	return append([]string(nil), n.msgs...)
}

var decimalEqual = cmp.Comparer(func(a, b decimal.Decimal) bool { return a.Equal(b) })

type fixture struct {
	inv      *mockInventory
	storage  *mockStorage
	notifier *mockNotifier
	store    *Store
}

func newFixture(t *testing.T, seed domain.Cart) *fixture {
	t.Helper()
	f := &fixture{
		inv:      newMockInventory(),
		storage:  newMockStorage(),
		notifier: &mockNotifier{},
	}
	if seed != nil {
		raw, err := json.Marshal(seed)
		require.NoError(t, err)
		f.storage.data[DefaultKey] = raw
	}
	logger, _ := test.NewNullLogger()
	f.store = NewStore(context.Background(), DefaultKey, f.inv, f.storage, f.notifier, logger)
	return f
}

// assertPersisted checks that the snapshot decodes to exactly the in-memory cart.
func (f *fixture) assertPersisted(t *testing.T) {
	t.Helper()
	if diff := cmp.Diff(f.store.Cart(), f.storage.snapshot(t, DefaultKey), decimalEqual); diff != "" {
		t.Errorf("snapshot differs from in-memory cart (-memory +snapshot):\n%s", diff)
	}
}

func item(id int64, amount int) domain.CartItem {
	return domain.CartItem{Product: domain.Product{ID: id, Title: fmt.Sprintf("product %d", id)}, Amount: amount}
}

func TestNewStore_EmptyWhenNoSnapshot(t *testing.T) {
	f := newFixture(t, nil)

	assert.NotNil(t, f.store.Cart())
	assert.Empty(t, f.store.Cart())
	assert.Equal(t, DefaultKey, f.store.Key())
}

func TestNewStore_LoadsSnapshot(t *testing.T) {
	f := newFixture(t, domain.Cart{item(7, 2), item(3, 1)})

	c := f.store.Cart()
	require.Len(t, c, 2)
	assert.Equal(t, int64(7), c[0].ID)
	assert.Equal(t, 2, c[0].Amount)
	assert.Equal(t, int64(3), c[1].ID)
}

func TestNewStore_CorruptSnapshotStartsEmpty(t *testing.T) {
	st := newMockStorage()
	st.data[DefaultKey] = []byte(`[{"id":7,"amount":`)
	logger, hook := test.NewNullLogger()

	s := NewStore(context.Background(), DefaultKey, newMockInventory(), st, &mockNotifier{}, logger)

	assert.Empty(t, s.Cart())
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, "decode cart snapshot failed, starting empty", hook.LastEntry().Message)
}

func TestNewStore_NullSnapshotStartsEmpty(t *testing.T) {
	st := newMockStorage()
	st.data[DefaultKey] = []byte(`null`)
	logger, _ := test.NewNullLogger()

	s := NewStore(context.Background(), DefaultKey, newMockInventory(), st, &mockNotifier{}, logger)
	assert.NotNil(t, s.Cart())
	assert.Empty(t, s.Cart())
}

func TestNewStore_ReadErrorStartsEmpty(t *testing.T) {
	st := newMockStorage()
	st.readErr = errors.New("disk on fire")
	logger, hook := test.NewNullLogger()

	s := NewStore(context.Background(), DefaultKey, newMockInventory(), st, &mockNotifier{}, logger)

	assert.Empty(t, s.Cart())
	assert.Equal(t, "read cart snapshot failed, starting empty", hook.LastEntry().Message)
}

func TestAddProduct_NewItem(t *testing.T) {
	f := newFixture(t, nil)
	p := f.inv.set(7, 5)

	err := f.store.AddProduct(context.Background(), 7)
	require.NoError(t, err)

	c := f.store.Cart()
	require.Len(t, c, 1)
	assert.Equal(t, int64(7), c[0].ID)
	assert.Equal(t, 1, c[0].Amount)
	assert.Equal(t, p.Title, c[0].Title)
	assert.True(t, p.Price.Equal(c[0].Price))
	assert.Empty(t, f.notifier.messages())
	f.assertPersisted(t)
}

func TestAddProduct_ExistingItemIncrements(t *testing.T) {
	f := newFixture(t, domain.Cart{item(7, 1)})
	f.inv.set(7, 5)

	require.NoError(t, f.store.AddProduct(context.Background(), 7))

	c := f.store.Cart()
	require.Len(t, c, 1)
	assert.Equal(t, 2, c[0].Amount)
	// the stored line keeps its original attributes
	assert.Equal(t, "product 7", c[0].Title)
	f.assertPersisted(t)
}

func TestAddProduct_OutOfStock(t *testing.T) {
	f := newFixture(t, domain.Cart{item(7, 5)})
	f.inv.set(7, 5)

	err := f.store.AddProduct(context.Background(), 7)
	assert.ErrorIs(t, err, ErrOutOfStock)

	assert.Equal(t, 5, f.store.Cart()[0].Amount)
	assert.Equal(t, []string{"Requested quantity is out of stock"}, f.notifier.messages())
	assert.Equal(t, 0, f.storage.writeCount())
}

func TestAddProduct_ZeroStock(t *testing.T) {
	f := newFixture(t, nil)
	f.inv.set(7, 0)

	err := f.store.AddProduct(context.Background(), 7)
	assert.ErrorIs(t, err, ErrOutOfStock)
	assert.Empty(t, f.store.Cart())
}

func TestAddProduct_ProductNotFound(t *testing.T) {
	f := newFixture(t, nil)

	err := f.store.AddProduct(context.Background(), 42)
	assert.ErrorIs(t, err, ErrProductAddition)
	assert.NotErrorIs(t, err, ErrOutOfStock)

	assert.Empty(t, f.store.Cart())
	assert.Equal(t, []string{"Error adding product"}, f.notifier.messages())
	assert.Equal(t, 0, f.inv.getStockCalls())
	assert.Equal(t, 0, f.storage.writeCount())
}

func TestAddProduct_StockLookupFails(t *testing.T) {
	f := newFixture(t, nil)
	f.inv.set(7, 5)
	f.inv.stockErr = errors.New("connection refused")

	err := f.store.AddProduct(context.Background(), 7)
	assert.ErrorIs(t, err, ErrProductAddition)
	assert.ErrorContains(t, err, "connection refused")
	assert.Empty(t, f.store.Cart())
	assert.Equal(t, []string{"Error adding product"}, f.notifier.messages())
}

func TestAddProduct_WriteFailureLeavesCartUnchanged(t *testing.T) {
	f := newFixture(t, domain.Cart{item(7, 1)})
	f.inv.set(7, 5)
	f.storage.writeErr = errors.New("quota exceeded")

	err := f.store.AddProduct(context.Background(), 7)
	assert.ErrorIs(t, err, ErrProductAddition)
	assert.ErrorIs(t, err, ErrPersist)

	assert.Equal(t, 1, f.store.Cart()[0].Amount)
	assert.Equal(t, 1, f.storage.snapshot(t, DefaultKey)[0].Amount)
	assert.Equal(t, []string{"Error adding product"}, f.notifier.messages())
}

func TestAddProduct_RejectsMismatchedProductID(t *testing.T) {
	f := newFixture(t, nil)
	p := f.inv.set(7, 5)
	p.ID = 8
	f.inv.products[7] = p
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		err := f.store.AddProduct(ctx, 7)
		assert.ErrorIs(t, err, ErrProductAddition)
		assert.ErrorIs(t, err, ErrProductMismatch)
	}

	assert.Empty(t, f.store.Cart())
	assert.Equal(t, 0, f.storage.writeCount())
	assert.Len(t, f.notifier.messages(), 3)
}

func TestAddProduct_RepeatsUntilStockReached(t *testing.T) {
	f := newFixture(t, nil)
	f.inv.set(7, 3)
	ctx := context.Background()

	for want := 1; want <= 3; want++ {
		require.NoError(t, f.store.AddProduct(ctx, 7))
		assert.Equal(t, want, f.store.Cart()[0].Amount)
	}

	for i := 0; i < 2; i++ {
		assert.ErrorIs(t, f.store.AddProduct(ctx, 7), ErrOutOfStock)
		assert.Equal(t, 3, f.store.Cart()[0].Amount)
	}
	f.assertPersisted(t)
}

func TestRemoveProduct_Success(t *testing.T) {
	f := newFixture(t, domain.Cart{item(7, 2), item(3, 1)})

	require.NoError(t, f.store.RemoveProduct(context.Background(), 7))

	c := f.store.Cart()
	require.Len(t, c, 1)
	assert.Equal(t, int64(3), c[0].ID)
	assert.Empty(t, f.notifier.messages())
	f.assertPersisted(t)
}

func TestRemoveProduct_NotInCart(t *testing.T) {
	seed := domain.Cart{item(7, 2)}
	f := newFixture(t, seed)

	err := f.store.RemoveProduct(context.Background(), 9)
	assert.ErrorIs(t, err, ErrProductRemoval)
	assert.ErrorIs(t, err, ErrItemNotFound)

	assert.Empty(t, cmp.Diff(seed, f.store.Cart(), decimalEqual))
	assert.Empty(t, cmp.Diff(seed, f.storage.snapshot(t, DefaultKey), decimalEqual))
	assert.Equal(t, []string{"Error removing product"}, f.notifier.messages())
	assert.Equal(t, 0, f.storage.writeCount())
}

func TestRemoveProduct_WriteFailure(t *testing.T) {
	f := newFixture(t, domain.Cart{item(7, 2)})
	f.storage.writeErr = errors.New("quota exceeded")

	err := f.store.RemoveProduct(context.Background(), 7)
	assert.ErrorIs(t, err, ErrProductRemoval)
	assert.Len(t, f.store.Cart(), 1)
}

func TestUpdateProductAmount_Success(t *testing.T) {
	f := newFixture(t, domain.Cart{item(7, 2)})
	f.inv.set(7, 5)

	err := f.store.UpdateProductAmount(context.Background(), UpdateProductAmount{ProductID: 7, Amount: 4})
	require.NoError(t, err)

	assert.Equal(t, 4, f.store.Cart()[0].Amount)
	f.assertPersisted(t)
}

func TestUpdateProductAmount_UpToStock(t *testing.T) {
	f := newFixture(t, domain.Cart{item(7, 2)})
	f.inv.set(7, 5)

	require.NoError(t, f.store.UpdateProductAmount(context.Background(), UpdateProductAmount{ProductID: 7, Amount: 5}))
	assert.Equal(t, 5, f.store.Cart()[0].Amount)
}

func TestUpdateProductAmount_NonPositiveIsNoop(t *testing.T) {
	for _, amount := range []int{0, -1, -100} {
		t.Run(fmt.Sprintf("amount=%d", amount), func(t *testing.T) {
			f := newFixture(t, domain.Cart{item(7, 4)})
			f.inv.set(7, 5)

			err := f.store.UpdateProductAmount(context.Background(), UpdateProductAmount{ProductID: 7, Amount: amount})
			require.NoError(t, err)

			assert.Equal(t, 4, f.store.Cart()[0].Amount)
			assert.Empty(t, f.notifier.messages())
			assert.Equal(t, 0, f.inv.getStockCalls())
			assert.Equal(t, 0, f.storage.writeCount())
		})
	}
}

func TestUpdateProductAmount_NotInCart(t *testing.T) {
	f := newFixture(t, domain.Cart{item(7, 2)})
	f.inv.set(9, 5)

	err := f.store.UpdateProductAmount(context.Background(), UpdateProductAmount{ProductID: 9, Amount: 1})
	assert.ErrorIs(t, err, ErrQuantityUpdate)
	assert.ErrorIs(t, err, ErrItemNotFound)
	assert.Equal(t, []string{"Error updating product quantity"}, f.notifier.messages())
	assert.Equal(t, 0, f.storage.writeCount())
}

func TestUpdateProductAmount_NotInCartWithZeroAmountStillFails(t *testing.T) {
	f := newFixture(t, nil)

	err := f.store.UpdateProductAmount(context.Background(), UpdateProductAmount{ProductID: 9, Amount: 0})
	assert.ErrorIs(t, err, ErrQuantityUpdate)
}

func TestUpdateProductAmount_OutOfStock(t *testing.T) {
	f := newFixture(t, domain.Cart{item(7, 2)})
	f.inv.set(7, 5)

	err := f.store.UpdateProductAmount(context.Background(), UpdateProductAmount{ProductID: 7, Amount: 6})
	assert.ErrorIs(t, err, ErrOutOfStock)
	assert.Equal(t, 2, f.store.Cart()[0].Amount)
	assert.Equal(t, []string{"Requested quantity is out of stock"}, f.notifier.messages())
}

func TestUpdateProductAmount_StockLookupFails(t *testing.T) {
	f := newFixture(t, domain.Cart{item(7, 2)})
	f.inv.stockErr = errors.New("timeout")

	err := f.store.UpdateProductAmount(context.Background(), UpdateProductAmount{ProductID: 7, Amount: 3})
	assert.ErrorIs(t, err, ErrQuantityUpdate)
	assert.Equal(t, 2, f.store.Cart()[0].Amount)
}

func TestClear(t *testing.T) {
	f := newFixture(t, domain.Cart{item(7, 2), item(3, 1)})

	require.NoError(t, f.store.Clear(context.Background()))

	assert.Empty(t, f.store.Cart())
	f.assertPersisted(t)
	assert.NotNil(t, f.storage.snapshot(t, DefaultKey))
}

func TestClear_WriteFailure(t *testing.T) {
	f := newFixture(t, domain.Cart{item(7, 2)})
	f.storage.writeErr = errors.New("quota exceeded")

	err := f.store.Clear(context.Background())
	assert.ErrorIs(t, err, ErrCartClear)
	assert.ErrorIs(t, err, ErrPersist)
	assert.Len(t, f.store.Cart(), 1)
	assert.Equal(t, []string{"Error clearing cart"}, f.notifier.messages())
}

func TestCart_ReturnsCopy(t *testing.T) {
	f := newFixture(t, domain.Cart{item(7, 2)})

	c := f.store.Cart()
	c[0].Amount = 99

	assert.Equal(t, 2, f.store.Cart()[0].Amount)
}

func TestAddProduct_ConcurrentCallsRespectStock(t *testing.T) {
	f := newFixture(t, nil)
	f.inv.set(7, 5)

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- f.store.AddProduct(context.Background(), 7)
		}()
	}
	wg.Wait()
	close(errs)

	var ok, outOfStock int
	for err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrOutOfStock):
			outOfStock++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}

	assert.Equal(t, 5, ok)
	assert.Equal(t, 5, outOfStock)
	assert.Equal(t, 5, f.store.Cart()[0].Amount)
	f.assertPersisted(t)
}

func TestStore_RandomOperationsKeepInvariants(t *testing.T) {
	f := newFixture(t, nil)
	for id := int64(1); id <= 4; id++ {
		f.inv.set(id, int(id)+1)
	}
	rng := rand.New(rand.NewSource(7))
	ctx := context.Background()

	for i := 0; i < 300; i++ {
		id := int64(rng.Intn(5) + 1) // id 5 is unknown to inventory
		switch rng.Intn(3) {
		case 0:
			_ = f.store.AddProduct(ctx, id)
		case 1:
			_ = f.store.RemoveProduct(ctx, id)
		case 2:
			_ = f.store.UpdateProductAmount(ctx, UpdateProductAmount{ProductID: id, Amount: rng.Intn(8) - 2})
		}

		seen := make(map[int64]bool)
		for _, it := range f.store.Cart() {
			require.False(t, seen[it.ID], "duplicate product %d", it.ID)
			seen[it.ID] = true
			require.Positive(t, it.Amount)
			require.LessOrEqual(t, it.Amount, int(it.ID)+1)
		}
	}
	f.assertPersisted(t)
}
