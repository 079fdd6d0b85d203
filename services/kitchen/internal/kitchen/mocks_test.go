package kitchen

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/grafnet-dev/kitchenscreens/pkg/event"
)

// MemoryStore is an in-memory Store. InTx snapshots the data and restores it
// when fn fails.
type MemoryStore struct {
	mu   sync.Mutex
	data *memData

	ListScreensCalls        int
	ListScreensErr          error
	ReplaceOrderScreensFail int
	SaveOrderErr            error
	InTxFunc                func(ctx context.Context, fn func(ctx context.Context, repo Repo) error) error
}

type memData struct {
	configs    map[ConfigID]*TerminalConfig
	sessions   map[SessionID]*Session
	categories map[CategoryID]*Category
	products   map[ProductID]*Product
	screens    map[ScreenID]*Screen
	orders     map[OrderID]*Order
	lines      map[OrderID][]*OrderLine
}

func newMemData() *memData {
	return &memData{
		configs:    make(map[ConfigID]*TerminalConfig),
		sessions:   make(map[SessionID]*Session),
		categories: make(map[CategoryID]*Category),
		products:   make(map[ProductID]*Product),
		screens:    make(map[ScreenID]*Screen),
		orders:     make(map[OrderID]*Order),
		lines:      make(map[OrderID][]*OrderLine),
	}
}

func (d *memData) clone() *memData {
	cp := newMemData()
	for k, v := range d.configs {
		c := *v
		cp.configs[k] = &c
	}
	for k, v := range d.sessions {
		s := *v
		cp.sessions[k] = &s
	}
	for k, v := range d.categories {
		c := *v
		cp.categories[k] = &c
	}
	for k, v := range d.products {
		cp.products[k] = copyProduct(v)
	}
	for k, v := range d.screens {
		cp.screens[k] = cloneScreen(v)
	}
	for k, v := range d.orders {
		cp.orders[k] = copyOrder(v)
	}
	for k, list := range d.lines {
		out := make([]*OrderLine, len(list))
		for i, l := range list {
			c := *l
			out[i] = &c
		}
		cp.lines[k] = out
	}
	return cp
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: newMemData()}
}

func (m *MemoryStore) InTx(ctx context.Context, fn func(ctx context.Context, repo Repo) error) error {
	if m.InTxFunc != nil {
		return m.InTxFunc(ctx, fn)
	}
	m.mu.Lock()
	snapshot := m.data.clone()
	m.mu.Unlock()

	if err := fn(ctx, m); err != nil {
		m.mu.Lock()
		m.data = snapshot
		m.mu.Unlock()
		return err
	}
	return nil
}

func (m *MemoryStore) CreateConfig(ctx context.Context, c *TerminalConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data.configs[c.ID]; ok {
		return ErrConflict
	}
	cp := *c
	m.data.configs[c.ID] = &cp
	return nil
}

func (m *MemoryStore) GetConfig(ctx context.Context, id ConfigID) (*TerminalConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.data.configs[id]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (m *MemoryStore) FindConfigByName(ctx context.Context, name string) (*TerminalConfig, error) {
	list, _ := m.ListConfigs(ctx)
	sort.SliceStable(list, func(i, j int) bool { return list[i].CreatedAt.Before(list[j].CreatedAt) })
	for _, c := range list {
		if c.Name == name {
			return c, nil
		}
	}
	return nil, nil
}

func (m *MemoryStore) ListConfigs(ctx context.Context) ([]*TerminalConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*TerminalConfig, 0, len(m.data.configs))
	for _, c := range m.data.configs {
		cp := *c
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *MemoryStore) CreateSession(ctx context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.data.sessions[s.ID] = &cp
	return nil
}

func (m *MemoryStore) GetSession(ctx context.Context, id SessionID) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.data.sessions[id]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (m *MemoryStore) CreateCategory(ctx context.Context, c *Category) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *c
	m.data.categories[c.ID] = &cp
	return nil
}

func (m *MemoryStore) ListCategories(ctx context.Context) ([]*Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Category, 0, len(m.data.categories))
	for _, c := range m.data.categories {
		cp := *c
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *MemoryStore) CreateProduct(ctx context.Context, p *Product) error {
	return m.SaveProduct(ctx, p)
}

func (m *MemoryStore) SaveProduct(ctx context.Context, p *Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data.products[p.ID] = copyProduct(p)
	return nil
}

func (m *MemoryStore) GetProduct(ctx context.Context, id ProductID) (*Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.data.products[id]
	if !ok {
		return nil, nil
	}
	return copyProduct(p), nil
}

func (m *MemoryStore) ListProducts(ctx context.Context, ids []ProductID) ([]*Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Product, 0, len(ids))
	for _, id := range ids {
		if p, ok := m.data.products[id]; ok {
			out = append(out, copyProduct(p))
		}
	}
	return out, nil
}

func (m *MemoryStore) CreateScreen(ctx context.Context, s *Screen) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(s.CategoryIDs) == 0 {
		return ErrInvalid
	}
	if _, ok := m.data.screens[s.ID]; ok {
		return ErrConflict
	}
	for _, other := range m.data.screens {
		if other.Code == s.Code {
			return ErrConflict
		}
	}
	m.data.screens[s.ID] = cloneScreen(s)
	return nil
}

func (m *MemoryStore) SaveScreen(ctx context.Context, s *Screen) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(s.CategoryIDs) == 0 {
		return ErrInvalid
	}
	if _, ok := m.data.screens[s.ID]; !ok {
		return ErrNotFound
	}
	m.data.screens[s.ID] = cloneScreen(s)
	return nil
}

func (m *MemoryStore) GetScreen(ctx context.Context, id ScreenID) (*Screen, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneScreen(m.data.screens[id]), nil
}

func (m *MemoryStore) FindScreenByCode(ctx context.Context, code string) (*Screen, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.data.screens {
		if s.Code == code {
			return cloneScreen(s), nil
		}
	}
	return nil, nil
}

func (m *MemoryStore) ListScreens(ctx context.Context, filter ScreenFilter) ([]*Screen, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ListScreensCalls++
	if m.ListScreensErr != nil {
		return nil, m.ListScreensErr
	}
	out := make([]*Screen, 0, len(m.data.screens))
	for _, s := range m.data.screens {
		if filter.ConfigID != nil && s.ConfigID != *filter.ConfigID {
			continue
		}
		if filter.ActiveOnly && !s.Active {
			continue
		}
		out = append(out, cloneScreen(s))
	}
	sortScreens(out)
	return out, nil
}

func (m *MemoryStore) CreateOrder(ctx context.Context, o *Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, other := range m.data.orders {
		if other.ConfigID == o.ConfigID && other.Reference == o.Reference {
			return ErrConflict
		}
	}
	m.data.orders[o.ID] = copyOrder(o)
	return nil
}

func (m *MemoryStore) SaveOrder(ctx context.Context, o *Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SaveOrderErr != nil {
		return m.SaveOrderErr
	}
	existing, ok := m.data.orders[o.ID]
	if !ok {
		return ErrNotFound
	}
	cp := copyOrder(o)
	cp.ScreenIDs = append([]ScreenID{}, existing.ScreenIDs...)
	m.data.orders[o.ID] = cp
	return nil
}

func (m *MemoryStore) GetOrder(ctx context.Context, id OrderID) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.data.orders[id]
	if !ok {
		return nil, nil
	}
	return copyOrder(o), nil
}

func (m *MemoryStore) FindOrderByReference(ctx context.Context, configID ConfigID, reference string) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var found *Order
	for _, o := range m.data.orders {
		if o.Reference != reference {
			continue
		}
		if configID != uuid.Nil && o.ConfigID != configID {
			continue
		}
		if found == nil || o.CreatedAt.Before(found.CreatedAt) {
			found = o
		}
	}
	if found == nil {
		return nil, nil
	}
	return copyOrder(found), nil
}

func (m *MemoryStore) ListOrders(ctx context.Context, filter OrderFilter) ([]*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Order, 0, len(m.data.orders))
	for _, o := range m.data.orders {
		if filter.ConfigID != nil && o.ConfigID != *filter.ConfigID {
			continue
		}
		if filter.ScreenID != nil && !o.HasScreen(*filter.ScreenID) {
			continue
		}
		if len(filter.Statuses) > 0 && !containsString(filter.Statuses, o.Status) {
			continue
		}
		if filter.CookingOnly && !o.IsCooking {
			continue
		}
		if filter.ExcludeCancelled && o.Status == statusCancel {
			continue
		}
		if filter.Since != nil && o.CreatedAt.Before(*filter.Since) {
			continue
		}
		out = append(out, copyOrder(o))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (m *MemoryStore) ReplaceOrderScreens(ctx context.Context, orderID OrderID, screenIDs []ScreenID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ReplaceOrderScreensFail > 0 {
		m.ReplaceOrderScreensFail--
		return errors.New("connection reset")
	}
	o, ok := m.data.orders[orderID]
	if !ok {
		return ErrNotFound
	}
	o.ScreenIDs = append([]ScreenID{}, screenIDs...)
	return nil
}

func (m *MemoryStore) ListOrderLines(ctx context.Context, orderID OrderID) ([]*OrderLine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return copyLines(m.data.lines[orderID]), nil
}

func (m *MemoryStore) ListLinesForOrders(ctx context.Context, orderIDs []OrderID) ([]*OrderLine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*OrderLine
	for _, id := range orderIDs {
		out = append(out, copyLines(m.data.lines[id])...)
	}
	return out, nil
}

func (m *MemoryStore) ReplaceLines(ctx context.Context, orderID OrderID, lines []*OrderLine) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*OrderLine, len(lines))
	for i, l := range lines {
		c := *l
		c.OrderID = orderID
		out[i] = &c
	}
	m.data.lines[orderID] = out
	return nil
}

func (m *MemoryStore) GetOrderLine(ctx context.Context, id LineID) (*OrderLine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, list := range m.data.lines {
		for _, l := range list {
			if l.ID == id {
				c := *l
				return &c, nil
			}
		}
	}
	return nil, nil
}

func (m *MemoryStore) SaveOrderLine(ctx context.Context, l *OrderLine) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, list := range m.data.lines {
		for i, existing := range list {
			if existing.ID == l.ID {
				c := *l
				list[i] = &c
				return nil
			}
		}
	}
	return ErrNotFound
}

func copyProduct(p *Product) *Product {
	cp := *p
	cp.CategoryIDs = append([]CategoryID(nil), p.CategoryIDs...)
	return &cp
}

func copyOrder(o *Order) *Order {
	cp := *o
	cp.ScreenIDs = append([]ScreenID{}, o.ScreenIDs...)
	return &cp
}

func copyLines(list []*OrderLine) []*OrderLine {
	out := make([]*OrderLine, len(list))
	for i, l := range list {
		c := *l
		out[i] = &c
	}
	return out
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// MockPublisher is a test mock for events.Publisher
type MockPublisher struct {
	mu              sync.Mutex
	PublishedEvents []PublishedEvent
	PublishFunc     func(ctx context.Context, topic string, data []byte) error
}

type PublishedEvent struct {
	Topic string
	Data  []byte
}

func NewMockPublisher() *MockPublisher {
	return &MockPublisher{
		PublishedEvents: make([]PublishedEvent, 0),
	}
}

func (m *MockPublisher) Publish(ctx context.Context, topic string, data []byte) error {
	if m.PublishFunc != nil {
		return m.PublishFunc(ctx, topic, data)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PublishedEvents = append(m.PublishedEvents, PublishedEvent{Topic: topic, Data: data})
	return nil
}

func (m *MockPublisher) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PublishedEvents = m.PublishedEvents[:0]
}

// Notifications decodes every payload published on a screen channel.
func (m *MockPublisher) Notifications(t *testing.T) []event.ScreenNotification {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []event.ScreenNotification
	for _, e := range m.PublishedEvents {
		if !strings.HasPrefix(e.Topic, event.ScreenChannelPrefix) {
			continue
		}
		var n event.ScreenNotification
		if err := json.Unmarshal(e.Data, &n); err != nil {
			t.Fatalf("cannot decode notification on %s: %v", e.Topic, err)
		}
		out = append(out, n)
	}
	return out
}

// Topics lists the topics published to, in order.
func (m *MockPublisher) Topics() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.PublishedEvents))
	for i, e := range m.PublishedEvents {
		out[i] = e.Topic
	}
	return out
}

// fixture is a terminal with an open session, a catalog and some screens.
type fixture struct {
	store     *MemoryStore
	publisher *MockPublisher

	config  *TerminalConfig
	session *Session

	grill, drinks, dessert, retail CategoryID

	burger, cola, cake, mug, combo ProductID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	f := &fixture{
		store:     NewMemoryStore(),
		publisher: NewMockPublisher(),
	}

	now := time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC)
	f.config = &TerminalConfig{ID: uuid.New(), Name: "Main POS", CreatedAt: now}
	f.session = &Session{ID: uuid.New(), ConfigID: f.config.ID, Name: "Main POS/0001", State: SessionOpened, CreatedAt: now}
	mustNoErr(t, f.store.CreateConfig(ctx, f.config))
	mustNoErr(t, f.store.CreateSession(ctx, f.session))

	f.grill = f.category(t, "Grill")
	f.drinks = f.category(t, "Drinks")
	f.dessert = f.category(t, "Dessert")
	f.retail = f.category(t, "Retail")

	f.burger = f.product(t, "Burger", f.grill)
	f.cola = f.product(t, "Cola", f.drinks)
	f.cake = f.product(t, "Cake", f.dessert)
	f.mug = f.product(t, "Mug", f.retail)
	f.combo = f.product(t, "Burger Combo", f.grill, f.drinks)
	return f
}

func (f *fixture) category(t *testing.T, name string) CategoryID {
	t.Helper()
	c := &Category{ID: uuid.New(), Name: name}
	mustNoErr(t, f.store.CreateCategory(context.Background(), c))
	return c.ID
}

func (f *fixture) product(t *testing.T, name string, categories ...CategoryID) ProductID {
	t.Helper()
	p := &Product{ID: uuid.New(), Name: name, CategoryIDs: categories}
	mustNoErr(t, f.store.CreateProduct(context.Background(), p))
	return p.ID
}

// screen stores a screen directly, bypassing the registry.
func (f *fixture) screen(t *testing.T, name string, order int, active bool, categories ...CategoryID) *Screen {
	t.Helper()
	now := time.Now().UTC()
	s := &Screen{
		ID:           uuid.New(),
		Name:         name,
		Code:         GenerateScreenCode(f.config.ID, name, now) + "_" + uuid.NewString()[:4],
		ConfigID:     f.config.ID,
		CategoryIDs:  categories,
		ScreenType:   "kitchen",
		Active:       active,
		DisplayOrder: order,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	mustNoErr(t, f.store.CreateScreen(context.Background(), s))
	return s
}

func (f *fixture) coordinator() *Coordinator {
	index := NewCategoryIndex(f.store, nil)
	return NewCoordinator(CoordinatorDeps{
		Store:      f.store,
		Index:      index,
		Dispatcher: NewDispatcher(f.publisher, nil),
	}, nil)
}

func (f *fixture) submission(reference string, lines ...SubmissionLine) OrderSubmission {
	return OrderSubmission{
		Reference: reference,
		ConfigID:  f.config.ID,
		SessionID: f.session.ID,
		TableName: "T4",
		Lines:     lines,
	}
}

func line(product ProductID, qty float64) SubmissionLine {
	return SubmissionLine{ProductID: product, Qty: qty}
}

func notCooking(product ProductID, qty float64) SubmissionLine {
	off := false
	return SubmissionLine{ProductID: product, Qty: qty, IsCooking: &off}
}

func mustNoErr(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func sameIDs(got, want []uuid.UUID) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}
