package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/fjod/go_cart/storefront-cart/internal/domain"
	"github.com/fjod/go_cart/storefront-cart/internal/logger"
	"github.com/fjod/go_cart/storefront-cart/internal/storage"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DefaultKey is the snapshot key the storefront has always used.
const DefaultKey = "@RocketShoes:cart"

// Inventory is the read-only product and stock source.
type Inventory interface {
	GetProduct(ctx context.Context, productID int64) (domain.Product, error)
	GetStock(ctx context.Context, productID int64) (domain.Stock, error)
}

// Storage persists serialized cart snapshots by key.
// Read returns storage.ErrNotFound for a missing key.
type Storage interface {
	Read(ctx context.Context, key string) ([]byte, error)
	Write(ctx context.Context, key string, data []byte) error
}

// Notifier surfaces a failure message to the user.
type Notifier interface {
	ReportError(msg string)
}

type UpdateProductAmount struct {
	ProductID int64 `json:"product_id"`
	Amount    int   `json:"amount"`
}

// Store owns the cart for one session and writes every change through to Storage.
// Mutations are serialized; a mutation is either fully committed or not at all.
type Store struct {
	key       string
	inventory Inventory
	storage   Storage
	notifier  Notifier
	log       logrus.FieldLogger
	tracer    trace.Tracer

	opMu sync.Mutex // held for the whole of a mutation, network calls included

	mu   sync.RWMutex
	cart domain.Cart
}

// NewStore loads the snapshot stored under key. A missing or unreadable
// snapshot starts the session with an empty cart.
func NewStore(ctx context.Context, key string, inv Inventory, st Storage, n Notifier, log logrus.FieldLogger) *Store {
	s := &Store{
		key:       key,
		inventory: inv,
		storage:   st,
		notifier:  n,
		log:       log.WithField("cart_key", key),
		tracer:    otel.Tracer("storefront-cart/cart"),
	}
	s.cart = s.load(ctx)
	return s
}

func (s *Store) load(ctx context.Context) domain.Cart {
	data, err := s.storage.Read(ctx, s.key)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.log.WithError(err).Warn("read cart snapshot failed, starting empty")
		}
		return domain.Cart{}
	}

	var c domain.Cart
	if err := json.Unmarshal(data, &c); err != nil {
		s.log.WithError(err).Warn("decode cart snapshot failed, starting empty")
		return domain.Cart{}
	}
	if c == nil {
		c = domain.Cart{}
	}
	return c
}

func (s *Store) Key() string {
	return s.key
}

// Cart returns a copy of the current cart.
func (s *Store) Cart() domain.Cart {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cart.Clone()
}

func (s *Store) AddProduct(ctx context.Context, productID int64) error {
	ctx, span := s.tracer.Start(ctx, "AddProduct")
	defer span.End()
	span.SetAttributes(attribute.Int64("app.product_id", productID))

	s.opMu.Lock()
	defer s.opMu.Unlock()

	updated := s.Cart()

	product, err := s.inventory.GetProduct(ctx, productID)
	if err != nil {
		return s.fail(ctx, span, ErrProductAddition, err)
	}
	if product.ID != productID {
		return s.fail(ctx, span, ErrProductAddition, fmt.Errorf("%w: requested %d, got %d", ErrProductMismatch, productID, product.ID))
	}

	stock, err := s.inventory.GetStock(ctx, productID)
	if err != nil {
		return s.fail(ctx, span, ErrProductAddition, err)
	}

	idx, exists := updated.Find(productID)
	currentAmount := 0
	if exists {
		currentAmount = updated[idx].Amount
	}
	newAmount := currentAmount + 1
	span.SetAttributes(attribute.Int("app.amount", newAmount), attribute.Int("app.stock", stock.Amount))

	if newAmount > stock.Amount {
		return s.fail(ctx, span, ErrOutOfStock, fmt.Errorf("product %d: requested %d, stock %d", productID, newAmount, stock.Amount))
	}

	if exists {
		updated[idx].Amount = newAmount
	} else {
		updated = append(updated, domain.CartItem{Product: product, Amount: 1})
	}

	if err := s.commit(ctx, updated); err != nil {
		return s.fail(ctx, span, ErrProductAddition, err)
	}
	return nil
}

func (s *Store) RemoveProduct(ctx context.Context, productID int64) error {
	ctx, span := s.tracer.Start(ctx, "RemoveProduct")
	defer span.End()
	span.SetAttributes(attribute.Int64("app.product_id", productID))

	s.opMu.Lock()
	defer s.opMu.Unlock()

	current := s.Cart()
	if _, exists := current.Find(productID); !exists {
		return s.fail(ctx, span, ErrProductRemoval, ErrItemNotFound)
	}

	updated := make(domain.Cart, 0, len(current))
	for _, item := range current {
		if item.ID != productID {
			updated = append(updated, item)
		}
	}

	if err := s.commit(ctx, updated); err != nil {
		return s.fail(ctx, span, ErrProductRemoval, err)
	}
	return nil
}

// UpdateProductAmount sets the amount of an item already in the cart.
// An amount <= 0 is ignored: no error, no notification, no change.
func (s *Store) UpdateProductAmount(ctx context.Context, req UpdateProductAmount) error {
	ctx, span := s.tracer.Start(ctx, "UpdateProductAmount")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("app.product_id", req.ProductID),
		attribute.Int("app.amount", req.Amount),
	)

	s.opMu.Lock()
	defer s.opMu.Unlock()

	updated := s.Cart()
	idx, exists := updated.Find(req.ProductID)
	if !exists {
		return s.fail(ctx, span, ErrQuantityUpdate, ErrItemNotFound)
	}

	if req.Amount <= 0 {
		return nil
	}

	stock, err := s.inventory.GetStock(ctx, req.ProductID)
	if err != nil {
		return s.fail(ctx, span, ErrQuantityUpdate, err)
	}
	span.SetAttributes(attribute.Int("app.stock", stock.Amount))

	if req.Amount > stock.Amount {
		return s.fail(ctx, span, ErrOutOfStock, fmt.Errorf("product %d: requested %d, stock %d", req.ProductID, req.Amount, stock.Amount))
	}

	updated[idx].Amount = req.Amount

	if err := s.commit(ctx, updated); err != nil {
		return s.fail(ctx, span, ErrQuantityUpdate, err)
	}
	return nil
}

// Clear empties the cart, e.g. after a completed checkout.
func (s *Store) Clear(ctx context.Context) error {
	ctx, span := s.tracer.Start(ctx, "Clear")
	defer span.End()

	s.opMu.Lock()
	defer s.opMu.Unlock()

	if err := s.commit(ctx, domain.Cart{}); err != nil {
		return s.fail(ctx, span, ErrCartClear, err)
	}
	return nil
}

// commit writes the snapshot first and only then swaps the in-memory cart.
func (s *Store) commit(ctx context.Context, updated domain.Cart) error {
	data, err := json.Marshal(updated)
	if err != nil {
		return fmt.Errorf("%w: marshal cart: %w", ErrPersist, err)
	}
	if err := s.storage.Write(ctx, s.key, data); err != nil {
		return fmt.Errorf("%w: %w", ErrPersist, err)
	}

	s.mu.Lock()
	s.cart = updated
	s.mu.Unlock()
	return nil
}

func (s *Store) fail(ctx context.Context, span trace.Span, kind, cause error) error {
	err := fmt.Errorf("%w: %w", kind, cause)

	span.RecordError(err)
	span.SetStatus(codes.Error, kind.Error())
	logger.WithContext(ctx, s.log).WithError(cause).Warn(kind.Error())

	s.notifier.ReportError(kind.Error())
	return err
}
