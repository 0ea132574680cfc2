package memory

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"paintstore/backend/internal/domain"
	"paintstore/backend/internal/store"
	"paintstore/backend/internal/xid"
)

// Store keeps the whole dataset in maps behind one RWMutex. Units of work
// take the write lock, so they run one at a time. When a data file is set,
// every committed unit of work is written to it before the lock is released.
type Store struct {
	mu   sync.RWMutex
	opts store.Options
	path string
	data *state
}

var (
	_ store.Repository = (*Store)(nil)
	_ store.Tx         = (*txView)(nil)
)

type state struct {
	products    map[string]domain.Product
	variants    map[string]domain.Variant
	colors      map[string]domain.Color
	sales       map[string]domain.Sale
	items       map[string]domain.SaleItem
	itemsBySale map[string][]string
	payments    []domain.SalePayment
	returns     []domain.SaleReturn
	movements   []domain.StockMovement
	auditLogs   []domain.AuditLog
	// openByPhone indexes unpaid and partial sales by phone.
	openByPhone map[string]map[string]struct{}
}

func newState() *state {
	return &state{
		products:    make(map[string]domain.Product),
		variants:    make(map[string]domain.Variant),
		colors:      make(map[string]domain.Color),
		sales:       make(map[string]domain.Sale),
		items:       make(map[string]domain.SaleItem),
		itemsBySale: make(map[string][]string),
		payments:    make([]domain.SalePayment, 0, 64),
		returns:     make([]domain.SaleReturn, 0, 16),
		movements:   make([]domain.StockMovement, 0, 128),
		auditLogs:   make([]domain.AuditLog, 0, 128),
		openByPhone: make(map[string]map[string]struct{}),
	}
}

func New(opts store.Options) *Store {
	return &Store{opts: opts, data: newState()}
}

// Open loads path when it exists and persists every commit to it.
func Open(path string, opts store.Options) (*Store, error) {
	s := New(opts)
	s.path = path
	snap, err := readSnapshot(path)
	if err != nil {
		return nil, err
	}
	if snap != nil {
		st, err := stateFromBackup(snap.Backup)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
		st.auditLogs = append(st.auditLogs, snap.AuditLogs...)
		s.data = st
	}
	return s, nil
}

// NewSeeded returns an in-memory store with a small demo paint catalog.
func NewSeeded(opts store.Options) *Store {
	s := New(opts)
	_ = s.SeedDemo(context.Background())
	return s
}

// SeedDemo loads the demo catalog into an empty store. A store that already
// has products is left alone.
func (s *Store) SeedDemo(ctx context.Context) error {
	catalog := []struct {
		company, product string
		sizes            map[string]string
		shades           []string
	}{
		{"Nippon", "Weatherbond Exterior", map[string]string{"1L": "1450", "4L": "5400"}, []string{"Pure White", "Sky Blue", "Terracotta"}},
		{"Berger", "Silk Emulsion", map[string]string{"1L": "1200", "16L": "17500"}, []string{"Ivory", "Mint Green"}},
		{"Dulux", "Enamel Gloss", map[string]string{"0.5L": "780", "1L": "1390"}, []string{"Jet Black", "Signal Red"}},
	}
	return s.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		existing, err := tx.ListProducts(ctx)
		if err != nil || len(existing) > 0 {
			return err
		}
		now := time.Now().UTC()
		for _, entry := range catalog {
			p, err := tx.CreateProduct(ctx, domain.Product{Company: entry.company, ProductName: entry.product, CreatedAt: now})
			if err != nil {
				return err
			}
			sizes := make([]string, 0, len(entry.sizes))
			for size := range entry.sizes {
				sizes = append(sizes, size)
			}
			slices.Sort(sizes)
			for _, size := range sizes {
				v, err := tx.CreateVariant(ctx, domain.Variant{ProductID: p.ID, PackingSize: size, Rate: mustDecimal(entry.sizes[size]), CreatedAt: now})
				if err != nil {
					return err
				}
				for i, shade := range entry.shades {
					c, err := tx.CreateColor(ctx, domain.Color{
						VariantID: v.ID,
						ColorName: shade,
						ColorCode: fmt.Sprintf("%s-%02d", strings.ToUpper(entry.company[:3]), i+1),
						CreatedAt: now,
					})
					if err != nil {
						return err
					}
					if _, err := tx.AdjustStock(ctx, domain.StockAdjustment{ColorID: c.ID, Delta: 40, Reason: domain.MovementStockIn, ReferenceID: "seed"}); err != nil {
						return err
					}
				}
			}
		}
		return nil
	})
}

func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := &txView{state: s.data, opts: s.opts}
	if err := fn(ctx, t); err != nil {
		t.rollback()
		return err
	}
	if s.path != "" {
		if err := writeSnapshot(s.path, s.data); err != nil {
			t.rollback()
			return fmt.Errorf("persist data file: %w", err)
		}
	}
	return nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.data.auditLogs
	s.data.auditLogs = append(s.data.auditLogs, fillAudit(entry))
	if s.path != "" {
		if err := writeSnapshot(s.path, s.data); err != nil {
			s.data.auditLogs = prev
			return fmt.Errorf("persist data file: %w", err)
		}
	}
	return nil
}

func (s *Store) Export(_ context.Context) (*domain.Backup, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b := s.data.backup()
	return &b, nil
}

func (s *Store) Import(_ context.Context, backup domain.Backup) error {
	if err := store.ValidateBackup(backup); err != nil {
		return err
	}
	st, err := stateFromBackup(backup)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	st.auditLogs = s.data.auditLogs
	if s.path != "" {
		if err := writeSnapshot(s.path, st); err != nil {
			return fmt.Errorf("persist data file: %w", err)
		}
	}
	s.data = st
	return nil
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.ListProducts(ctx)
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.GetProduct(ctx, id)
}

func (s *Store) ListVariants(ctx context.Context, productID string) ([]domain.Variant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.ListVariants(ctx, productID)
}

func (s *Store) GetVariant(ctx context.Context, id string) (*domain.Variant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.GetVariant(ctx, id)
}

func (s *Store) ListColors(ctx context.Context, filter domain.ColorFilter) ([]domain.Color, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.ListColors(ctx, filter)
}

func (s *Store) GetColor(ctx context.Context, id string) (*domain.Color, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.GetColor(ctx, id)
}

func (s *Store) ListStockUnits(ctx context.Context) ([]domain.StockUnit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.ListStockUnits(ctx)
}

func (s *Store) ListStockMovements(ctx context.Context, colorID string, limit int) ([]domain.StockMovement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.ListStockMovements(ctx, colorID, limit)
}

func (s *Store) GetSale(ctx context.Context, id string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.GetSale(ctx, id)
}

func (s *Store) ListSales(ctx context.Context, filter domain.SaleFilter) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.ListSales(ctx, filter)
}

func (s *Store) FindOpenSaleByPhone(ctx context.Context, phone string) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.FindOpenSaleByPhone(ctx, phone)
}

func (s *Store) ListOpenSalesByPhone(ctx context.Context, phone string) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.ListOpenSalesByPhone(ctx, phone)
}

func (s *Store) GetSaleItem(ctx context.Context, id string) (*domain.SaleItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.GetSaleItem(ctx, id)
}

func (s *Store) ListSaleItems(ctx context.Context, saleID string) ([]domain.SaleItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.ListSaleItems(ctx, saleID)
}

func (s *Store) ListSaleLines(ctx context.Context, saleID string) ([]domain.SaleLine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.ListSaleLines(ctx, saleID)
}

func (s *Store) ListPayments(ctx context.Context, saleID string) ([]domain.SalePayment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.ListPayments(ctx, saleID)
}

func (s *Store) ListReturns(ctx context.Context, saleID string) ([]domain.SaleReturn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.ListReturns(ctx, saleID)
}

func (s *Store) ListCustomers(ctx context.Context) ([]domain.CustomerSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.ListCustomers(ctx)
}

func (s *Store) ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.ListAuditLogs(ctx, from, to, limit)
}

func fillAudit(entry domain.AuditLog) domain.AuditLog {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	return entry
}
