package kitchen

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/appetiteclub/apt"
	"github.com/google/uuid"
	"github.com/grafnet-dev/kitchenscreens/pkg/enums/orderstatus"
	"github.com/grafnet-dev/kitchenscreens/pkg/event"
	"github.com/grafnet-dev/kitchenscreens/services/kitchen/internal/lock"
)

// Locker serializes work on one key. The returned func releases the lock.
type Locker interface {
	Lock(ctx context.Context, key string) (func(), error)
}

type CoordinatorDeps struct {
	Store      Store
	Index      *CategoryIndex
	Engine     *AssignmentEngine
	Dispatcher *Dispatcher
	Locker     Locker
}

// Coordinator runs order lifecycle operations. Each operation holds the order
// reference lock for one storage transaction; notifications are published
// after commit, once the lock is released.
type Coordinator struct {
	store      Store
	index      *CategoryIndex
	engine     *AssignmentEngine
	dispatcher *Dispatcher
	locker     Locker
	logger     apt.Logger
	now        func() time.Time
}

func NewCoordinator(deps CoordinatorDeps, logger apt.Logger) *Coordinator {
	if logger == nil {
		logger = apt.NewNoopLogger()
	}
	if deps.Index == nil {
		deps.Index = NewCategoryIndex(deps.Store, logger)
	}
	if deps.Engine == nil {
		deps.Engine = NewAssignmentEngine(deps.Index, logger)
	}
	if deps.Dispatcher == nil {
		deps.Dispatcher = NewDispatcher(nil, logger)
	}
	if deps.Locker == nil {
		deps.Locker = lock.NewKeyedMutex()
	}
	return &Coordinator{
		store:      deps.Store,
		index:      deps.Index,
		engine:     deps.Engine,
		dispatcher: deps.Dispatcher,
		locker:     deps.Locker,
		logger:     logger,
		now:        time.Now,
	}
}

// CreateOrUpdateKitchenOrders processes a batch of terminal submissions. A
// failing item never aborts its siblings.
func (c *Coordinator) CreateOrUpdateKitchenOrders(ctx context.Context, subs []OrderSubmission) BatchResult {
	batch := BatchResult{
		OrderIDs: []OrderID{},
		Items:    make([]SubmissionResult, 0, len(subs)),
	}

	for _, sub := range subs {
		res := c.submit(ctx, sub)
		if res.Err != nil {
			res.Error = res.Err.Error()
			c.logger.Error("order submission failed", "pos_reference", sub.Reference, "error", res.Err)
		} else if res.OrderID != nil {
			batch.OrderIDs = append(batch.OrderIDs, *res.OrderID)
		}
		batch.Items = append(batch.Items, res)
	}

	return batch
}

type submissionOutcome struct {
	order         *Order
	created       bool
	warnings      []string
	notifications []Notification
}

func (c *Coordinator) submit(ctx context.Context, sub OrderSubmission) SubmissionResult {
	res := SubmissionResult{Reference: sub.Reference}

	if err := validateStruct(sub); err != nil {
		res.Err = err
		return res
	}

	c.warmIndex(ctx, sub.ConfigID)

	unlock, err := c.locker.Lock(ctx, referenceKey(sub.ConfigID, sub.Reference))
	if err != nil {
		res.Err = fmt.Errorf("cannot lock order %s: %w", sub.Reference, err)
		return res
	}

	var out submissionOutcome
	err = c.runUnit(ctx, "submit", func(ctx context.Context, repo Repo) error {
		var err error
		out, err = c.applySubmission(ctx, repo, sub)
		return err
	})
	unlock()

	if err != nil {
		res.Err = err
		return res
	}

	id := out.order.ID
	res.OrderID = &id
	res.Created = out.created
	res.IsCooking = out.order.IsCooking
	res.ScreenIDs = out.order.ScreenIDs
	res.Warnings = out.warnings

	c.dispatcher.PublishAll(ctx, out.notifications)
	return res
}

func (c *Coordinator) applySubmission(ctx context.Context, repo Repo, sub OrderSubmission) (submissionOutcome, error) {
	out := submissionOutcome{}

	config, err := repo.GetConfig(ctx, sub.ConfigID)
	if err != nil {
		return out, fmt.Errorf("cannot get terminal config: %w", err)
	}
	if config == nil {
		return out, fmt.Errorf("%w: terminal config %s", ErrNotFound, sub.ConfigID)
	}

	session, err := repo.GetSession(ctx, sub.SessionID)
	if err != nil {
		return out, fmt.Errorf("cannot get session: %w", err)
	}
	if session == nil {
		return out, fmt.Errorf("%w: session %s", ErrNotFound, sub.SessionID)
	}
	if session.ConfigID != config.ID {
		return out, fmt.Errorf("%w: session %s does not belong to terminal %s", ErrInvalid, session.ID, config.ID)
	}

	products, err := c.loadProducts(ctx, repo, submissionProductIDs(sub))
	if err != nil {
		return out, err
	}
	for _, l := range sub.Lines {
		if products[l.ProductID] == nil {
			return out, fmt.Errorf("%w: product %s", ErrNotFound, l.ProductID)
		}
	}

	order, err := repo.FindOrderByReference(ctx, config.ID, sub.Reference)
	if err != nil {
		return out, fmt.Errorf("cannot find order by reference: %w", err)
	}

	now := c.now().UTC()
	if order != nil {
		if order.IsClosed() {
			return out, fmt.Errorf("%w: %s is paid and ready", ErrOrderClosed, order.Reference)
		}
		if order.Status == statusCancel {
			return out, fmt.Errorf("%w: %s is cancelled", ErrOrderClosed, order.Reference)
		}
	} else {
		order = &Order{
			ID:        uuid.New(),
			Reference: sub.Reference,
			ConfigID:  config.ID,
			Status:    statusDraft,
			ScreenIDs: []ScreenID{},
			CreatedAt: now,
		}
		out.created = true
	}

	order.Name = sub.Name
	if order.Name == "" {
		order.Name = sub.Reference
	}
	order.SessionID = session.ID
	order.TableName = sub.TableName
	order.Floor = sub.Floor
	order.AmountTotal = sub.AmountTotal
	order.AmountPaid = sub.AmountPaid
	order.AmountTax = sub.AmountTax
	order.AmountReturn = sub.AmountReturn
	order.UpdatedAt = now

	if out.created {
		if err := repo.CreateOrder(ctx, order); err != nil {
			return out, fmt.Errorf("cannot create order: %w", err)
		}
	}

	if err := repo.ReplaceLines(ctx, order.ID, buildLines(order, sub.Lines, products, now)); err != nil {
		return out, fmt.Errorf("cannot replace order lines: %w", err)
	}

	// assignment must see the lines just written
	lines, err := repo.ListOrderLines(ctx, order.ID)
	if err != nil {
		return out, fmt.Errorf("cannot reload order lines: %w", err)
	}

	assignment, err := c.engine.Compute(ctx, repo, order, lines, products, sub.TargetScreenIDs)
	if err != nil {
		return out, fmt.Errorf("cannot compute screen assignment: %w", err)
	}
	out.warnings = append(out.warnings, assignment.Warnings...)

	diff, err := c.engine.Reconcile(ctx, order, lines, products, assignment.ScreenIDs)
	if err != nil {
		return out, fmt.Errorf("cannot check screen assignment: %w", err)
	}
	out.warnings = append(out.warnings, c.logRepairs(order, diff)...)

	if err := c.engine.Apply(ctx, repo, order.ID, diff.ScreenIDs); err != nil {
		return out, err
	}

	order.ScreenIDs = diff.ScreenIDs
	order.IsCooking = len(diff.ScreenIDs) > 0
	if err := repo.SaveOrder(ctx, order); err != nil {
		return out, fmt.Errorf("cannot save order: %w", err)
	}

	eventType := event.NotificationOrderStatusChange
	if out.created {
		eventType = event.NotificationNewOrder
	}
	for _, s := range diff.Screens {
		visible := VisibleLines(lines, products, s)
		out.notifications = append(out.notifications, Notification{
			ScreenID: s.ID,
			Payload:  BuildNotification(eventType, order, config, s, visible, now),
		})
	}

	out.order = order
	return out, nil
}

// UpdateOrderStatus moves an order along draft, waiting, ready or cancels it.
// Line statuses follow the order. Assigned screens are notified when the order
// is cooking.
func (c *Coordinator) UpdateOrderStatus(ctx context.Context, orderID OrderID, status string) (*Order, error) {
	next := orderstatus.ByName(status)
	if next == nil {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalid, status)
	}

	unlock, err := c.lockOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	var order *Order
	var notifications []Notification
	err = c.runUnit(ctx, "update_status", func(ctx context.Context, repo Repo) error {
		notifications = nil
		o, err := mustGetOrder(ctx, repo, orderID)
		if err != nil {
			return err
		}
		order = o

		if o.Status == next.Code() {
			return nil
		}
		current := orderstatus.ByName(o.Status)
		if current == nil || !current.CanTransitionTo(*next) {
			return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, o.Status, next.Code())
		}
		if o.IsClosed() {
			return fmt.Errorf("%w: %s is paid and ready", ErrOrderClosed, o.Reference)
		}

		now := c.now().UTC()
		previous := o.Status
		o.Status = next.Code()
		o.UpdatedAt = now
		if err := repo.SaveOrder(ctx, o); err != nil {
			return fmt.Errorf("cannot save order: %w", err)
		}

		lines, err := repo.ListOrderLines(ctx, o.ID)
		if err != nil {
			return fmt.Errorf("cannot list order lines: %w", err)
		}
		for _, l := range lines {
			l.Status = o.Status
			l.UpdatedAt = now
			if err := repo.SaveOrderLine(ctx, l); err != nil {
				return fmt.Errorf("cannot save order line: %w", err)
			}
		}

		c.logger.Info("order status changed", "order_id", o.ID, "pos_reference", o.Reference, "from", previous, "to", o.Status)

		if !o.IsCooking {
			return nil
		}
		notifications, err = c.assignedNotifications(ctx, repo, o, lines, event.NotificationOrderStatusChange, now)
		return err
	})
	unlock()

	if err != nil {
		return nil, err
	}

	c.dispatcher.PublishAll(ctx, notifications)
	return order, nil
}

// MarkPaid sets the billing flag. A paid and ready order is closed.
func (c *Coordinator) MarkPaid(ctx context.Context, orderID OrderID) (*Order, error) {
	unlock, err := c.lockOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var order *Order
	err = c.runUnit(ctx, "mark_paid", func(ctx context.Context, repo Repo) error {
		o, err := mustGetOrder(ctx, repo, orderID)
		if err != nil {
			return err
		}
		order = o
		if o.Paid {
			return nil
		}
		o.Paid = true
		o.UpdatedAt = c.now().UTC()
		if err := repo.SaveOrder(ctx, o); err != nil {
			return fmt.Errorf("cannot save order: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// LinePatch holds the mutable fields of a line. Nil fields are left unchanged.
type LinePatch struct {
	Qty       *float64 `json:"qty,omitempty"`
	Note      *string  `json:"note,omitempty"`
	IsCooking *bool    `json:"is_cooking,omitempty"`
	Status    *string  `json:"status,omitempty"`
}

// UpdateOrderLine mutates one line and notifies the screens whose categories
// cover the line's product. The assignment itself is left to Reconcile.
func (c *Coordinator) UpdateOrderLine(ctx context.Context, lineID LineID, patch LinePatch) (*OrderLine, error) {
	if patch.Qty != nil && *patch.Qty <= 0 {
		return nil, fmt.Errorf("%w: qty must be positive", ErrInvalid)
	}
	if patch.Status != nil && !orderstatus.IsValid(*patch.Status) {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalid, *patch.Status)
	}

	line, err := c.store.GetOrderLine(ctx, lineID)
	if err != nil {
		return nil, fmt.Errorf("cannot get order line: %w", err)
	}
	if line == nil {
		return nil, fmt.Errorf("%w: order line %s", ErrNotFound, lineID)
	}

	unlock, err := c.lockOrder(ctx, line.OrderID)
	if err != nil {
		return nil, err
	}

	var notifications []Notification
	err = c.runUnit(ctx, "update_line", func(ctx context.Context, repo Repo) error {
		notifications = nil
		l, err := repo.GetOrderLine(ctx, lineID)
		if err != nil {
			return fmt.Errorf("cannot get order line: %w", err)
		}
		if l == nil {
			return fmt.Errorf("%w: order line %s", ErrNotFound, lineID)
		}
		o, err := mustGetOrder(ctx, repo, l.OrderID)
		if err != nil {
			return err
		}
		if o.IsClosed() || o.Status == statusCancel {
			return fmt.Errorf("%w: %s", ErrOrderClosed, o.Reference)
		}

		now := c.now().UTC()
		if patch.Qty != nil {
			l.Qty = *patch.Qty
		}
		if patch.Note != nil {
			l.Note = *patch.Note
		}
		if patch.IsCooking != nil {
			l.IsCooking = *patch.IsCooking
		}
		if patch.Status != nil {
			l.Status = *patch.Status
		}
		l.UpdatedAt = now
		if err := repo.SaveOrderLine(ctx, l); err != nil {
			return fmt.Errorf("cannot save order line: %w", err)
		}
		line = l

		if !o.IsCooking {
			return nil
		}

		product, err := repo.GetProduct(ctx, l.ProductID)
		if err != nil {
			return fmt.Errorf("cannot get product: %w", err)
		}
		if product == nil {
			return nil
		}
		config, err := repo.GetConfig(ctx, o.ConfigID)
		if err != nil {
			return fmt.Errorf("cannot get terminal config: %w", err)
		}
		screens, err := c.index.ScreensForCategories(ctx, product.CategoryIDs, o.ConfigID)
		if err != nil {
			return err
		}
		products := map[ProductID]*Product{product.ID: product}
		for _, s := range screens {
			visible := VisibleLines([]*OrderLine{l}, products, s)
			payload := BuildNotification(event.NotificationOrderLineUpdated, o, config, s, visible, now)
			payload.LineID = l.ID.String()
			notifications = append(notifications, Notification{ScreenID: s.ID, Payload: payload})
		}
		return nil
	})
	unlock()

	if err != nil {
		return nil, err
	}

	c.dispatcher.PublishAll(ctx, notifications)
	return line, nil
}

// ReconcileResult describes the repairs applied to one order.
type ReconcileResult struct {
	OrderID   OrderID    `json:"order_id"`
	Reference string     `json:"pos_reference"`
	ScreenIDs []ScreenID `json:"screen_ids"`
	Removed   []ScreenID `json:"removed,omitempty"`
	Added     []ScreenID `json:"added,omitempty"`
	Error     string     `json:"error,omitempty"`
}

// Reconcile brings an order's assignment in line with the screens that have
// visible lines for it. Newly added screens receive a new_order notification.
func (c *Coordinator) Reconcile(ctx context.Context, orderID OrderID) (ReconcileResult, error) {
	res := ReconcileResult{OrderID: orderID}

	unlock, err := c.lockOrder(ctx, orderID)
	if err != nil {
		return res, err
	}

	var notifications []Notification
	err = c.runUnit(ctx, "reconcile", func(ctx context.Context, repo Repo) error {
		notifications = nil
		o, err := mustGetOrder(ctx, repo, orderID)
		if err != nil {
			return err
		}
		res.Reference = o.Reference

		lines, err := repo.ListOrderLines(ctx, o.ID)
		if err != nil {
			return fmt.Errorf("cannot list order lines: %w", err)
		}
		products, err := c.loadProducts(ctx, repo, lineProductIDs(lines))
		if err != nil {
			return err
		}

		// cancelled orders keep their assignment frozen
		if o.Status == statusCancel {
			res.ScreenIDs = o.ScreenIDs
			return nil
		}

		diff, err := c.engine.Reconcile(ctx, o, lines, products, o.ScreenIDs)
		if err != nil {
			return err
		}

		res.ScreenIDs = diff.ScreenIDs
		res.Removed = diff.Removed
		res.Added = diff.Added
		if !diff.Changed() {
			return nil
		}

		c.logRepairs(o, diff)
		if err := c.engine.Apply(ctx, repo, o.ID, diff.ScreenIDs); err != nil {
			return err
		}
		now := c.now().UTC()
		o.ScreenIDs = diff.ScreenIDs
		o.IsCooking = len(diff.ScreenIDs) > 0
		o.UpdatedAt = now
		if err := repo.SaveOrder(ctx, o); err != nil {
			return fmt.Errorf("cannot save order: %w", err)
		}

		config, err := repo.GetConfig(ctx, o.ConfigID)
		if err != nil {
			return fmt.Errorf("cannot get terminal config: %w", err)
		}
		added := make(map[ScreenID]struct{}, len(diff.Added))
		for _, id := range diff.Added {
			added[id] = struct{}{}
		}
		for _, s := range diff.Screens {
			if _, ok := added[s.ID]; !ok {
				continue
			}
			visible := VisibleLines(lines, products, s)
			notifications = append(notifications, Notification{
				ScreenID: s.ID,
				Payload:  BuildNotification(event.NotificationNewOrder, o, config, s, visible, now),
			})
		}
		return nil
	})
	unlock()

	if err != nil {
		res.Error = err.Error()
		return res, err
	}

	c.dispatcher.PublishAll(ctx, notifications)
	return res, nil
}

// ReconcileConfig runs Reconcile over every open order of a terminal.
func (c *Coordinator) ReconcileConfig(ctx context.Context, configID ConfigID) ([]ReconcileResult, error) {
	cid := configID
	orders, err := c.store.ListOrders(ctx, OrderFilter{ConfigID: &cid, ExcludeCancelled: true})
	if err != nil {
		return nil, fmt.Errorf("cannot list orders: %w", err)
	}

	results := make([]ReconcileResult, 0, len(orders))
	for _, o := range orders {
		if o.IsClosed() {
			continue
		}
		res, err := c.Reconcile(ctx, o.ID)
		if err != nil {
			c.logger.Error("reconcile failed", "order_id", o.ID, "error", err)
		}
		results = append(results, res)
	}
	return results, nil
}

// ReconcileAll runs ReconcileConfig for every terminal.
func (c *Coordinator) ReconcileAll(ctx context.Context) (int, error) {
	configs, err := c.store.ListConfigs(ctx)
	if err != nil {
		return 0, fmt.Errorf("cannot list terminal configs: %w", err)
	}

	repaired := 0
	for _, cfg := range configs {
		results, err := c.ReconcileConfig(ctx, cfg.ID)
		if err != nil {
			c.logger.Error("reconcile terminal failed", "config_id", cfg.ID, "error", err)
			continue
		}
		for _, r := range results {
			if len(r.Removed) > 0 || len(r.Added) > 0 {
				repaired++
			}
		}
	}
	return repaired, nil
}

// TriggerResult lists the screens an explicit re-send reached.
type TriggerResult struct {
	OrderID OrderID    `json:"order_id"`
	Sent    []ScreenID `json:"sent"`
	Skipped []ScreenID `json:"skipped,omitempty"`
}

// TriggerNotifications re-sends new_order for an order to the given screens, or
// to its assigned screens when none are given. Screens without visible lines
// are skipped. Nothing is written.
func (c *Coordinator) TriggerNotifications(ctx context.Context, configID ConfigID, reference string, screenIDs []ScreenID) (TriggerResult, error) {
	res := TriggerResult{Sent: []ScreenID{}}

	o, err := c.store.FindOrderByReference(ctx, configID, reference)
	if err != nil {
		return res, fmt.Errorf("cannot find order by reference: %w", err)
	}
	if o == nil {
		return res, fmt.Errorf("%w: order %s", ErrNotFound, reference)
	}
	res.OrderID = o.ID

	lines, err := c.store.ListOrderLines(ctx, o.ID)
	if err != nil {
		return res, fmt.Errorf("cannot list order lines: %w", err)
	}
	products, err := c.loadProducts(ctx, c.store, lineProductIDs(lines))
	if err != nil {
		return res, err
	}
	config, err := c.store.GetConfig(ctx, o.ConfigID)
	if err != nil {
		return res, fmt.Errorf("cannot get terminal config: %w", err)
	}

	targets := uniqueScreenIDs(screenIDs)
	if len(targets) == 0 {
		targets = o.ScreenIDs
	}

	now := c.now().UTC()
	var notifications []Notification
	for _, id := range targets {
		s, err := c.store.GetScreen(ctx, id)
		if err != nil {
			return res, fmt.Errorf("cannot get screen: %w", err)
		}
		if s == nil || !s.Active || s.ConfigID != o.ConfigID {
			res.Skipped = append(res.Skipped, id)
			continue
		}
		visible := VisibleLines(lines, products, s)
		if len(visible) == 0 {
			res.Skipped = append(res.Skipped, id)
			continue
		}
		notifications = append(notifications, Notification{
			ScreenID: s.ID,
			Payload:  BuildNotification(event.NotificationNewOrder, o, config, s, visible, now),
		})
		res.Sent = append(res.Sent, s.ID)
	}

	c.dispatcher.PublishAll(ctx, notifications)
	return res, nil
}

// OrderStatusReport answers whether a reference still accepts submissions.
type OrderStatusReport struct {
	Exists  bool     `json:"exists"`
	OrderID *OrderID `json:"order_id,omitempty"`
	Status  string   `json:"status,omitempty"`
	Paid    bool     `json:"paid"`
	Closed  bool     `json:"closed"`
}

func (c *Coordinator) CheckOrderStatus(ctx context.Context, configID ConfigID, reference string) (OrderStatusReport, error) {
	o, err := c.store.FindOrderByReference(ctx, configID, reference)
	if err != nil {
		return OrderStatusReport{}, fmt.Errorf("cannot find order by reference: %w", err)
	}
	if o == nil {
		return OrderStatusReport{}, nil
	}
	id := o.ID
	return OrderStatusReport{
		Exists:  true,
		OrderID: &id,
		Status:  o.Status,
		Paid:    o.Paid,
		Closed:  o.IsClosed() || o.Status == statusCancel,
	}, nil
}

// runUnit executes fn in a transaction, retrying once on storage failures.
// An ErrStorage from fn already spent its retry and is returned as is.
func (c *Coordinator) runUnit(ctx context.Context, op string, fn func(ctx context.Context, repo Repo) error) error {
	err := c.store.InTx(ctx, fn)
	if err == nil || isDomainError(err) || errors.Is(err, ErrStorage) || ctx.Err() != nil {
		return err
	}
	c.logger.Info("unit of work failed, retrying once", "operation", op, "error", err)
	if err := c.store.InTx(ctx, fn); err != nil {
		if isDomainError(err) {
			return err
		}
		return fmt.Errorf("%w: %s: %v", ErrStorage, op, err)
	}
	return nil
}

func (c *Coordinator) lockOrder(ctx context.Context, orderID OrderID) (func(), error) {
	o, err := mustGetOrder(ctx, c.store, orderID)
	if err != nil {
		return nil, err
	}
	c.warmIndex(ctx, o.ConfigID)
	unlock, err := c.locker.Lock(ctx, referenceKey(o.ConfigID, o.Reference))
	if err != nil {
		return nil, fmt.Errorf("cannot lock order %s: %w", o.Reference, err)
	}
	return unlock, nil
}

// warmIndex loads the terminal's screens before a unit opens its transaction,
// so lookups inside the unit are served from the cache.
func (c *Coordinator) warmIndex(ctx context.Context, configID ConfigID) {
	if _, err := c.index.ActiveScreens(ctx, configID); err != nil {
		c.logger.Debug("cannot preload terminal screens", "config_id", configID, "error", err)
	}
}

func (c *Coordinator) assignedNotifications(ctx context.Context, repo Repo, o *Order, lines []*OrderLine, eventType string, at time.Time) ([]Notification, error) {
	products, err := c.loadProducts(ctx, repo, lineProductIDs(lines))
	if err != nil {
		return nil, err
	}
	config, err := repo.GetConfig(ctx, o.ConfigID)
	if err != nil {
		return nil, fmt.Errorf("cannot get terminal config: %w", err)
	}

	var screens []*Screen
	for _, id := range o.ScreenIDs {
		s, err := repo.GetScreen(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("cannot get screen: %w", err)
		}
		if s == nil {
			continue
		}
		screens = append(screens, s)
	}
	sortScreens(screens)

	notifications := make([]Notification, 0, len(screens))
	for _, s := range screens {
		visible := VisibleLines(lines, products, s)
		notifications = append(notifications, Notification{
			ScreenID: s.ID,
			Payload:  BuildNotification(eventType, o, config, s, visible, at),
		})
	}
	return notifications, nil
}

func (c *Coordinator) logRepairs(o *Order, diff ReconcileDiff) []string {
	var warnings []string
	if len(diff.Removed) > 0 {
		warnings = append(warnings, WarningAssignmentRemoved)
		c.logger.Info("screen assignment without visible lines removed",
			"repair", WarningAssignmentRemoved,
			"order_id", o.ID,
			"pos_reference", o.Reference,
			"screens", diff.Removed)
	}
	if len(diff.Added) > 0 {
		warnings = append(warnings, WarningAssignmentAdded)
		c.logger.Info("screen with visible lines added to assignment",
			"repair", WarningAssignmentAdded,
			"order_id", o.ID,
			"pos_reference", o.Reference,
			"screens", diff.Added)
	}
	return warnings
}

func (c *Coordinator) loadProducts(ctx context.Context, repo CatalogRepository, ids []ProductID) (map[ProductID]*Product, error) {
	products := make(map[ProductID]*Product, len(ids))
	if len(ids) == 0 {
		return products, nil
	}
	list, err := repo.ListProducts(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("cannot load products: %w", err)
	}
	for _, p := range list {
		products[p.ID] = p
	}
	return products, nil
}

func mustGetOrder(ctx context.Context, repo OrderRepository, id OrderID) (*Order, error) {
	o, err := repo.GetOrder(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("cannot get order: %w", err)
	}
	if o == nil {
		return nil, fmt.Errorf("%w: order %s", ErrNotFound, id)
	}
	return o, nil
}

func buildLines(order *Order, submitted []SubmissionLine, products map[ProductID]*Product, at time.Time) []*OrderLine {
	lines := make([]*OrderLine, 0, len(submitted))
	for _, sl := range submitted {
		name := sl.ProductName
		if name == "" {
			if p := products[sl.ProductID]; p != nil {
				name = p.Name
			}
		}
		lines = append(lines, &OrderLine{
			ID:          uuid.New(),
			OrderID:     order.ID,
			ProductID:   sl.ProductID,
			ProductName: name,
			Qty:         sl.Qty,
			PriceUnit:   sl.PriceUnit,
			Note:        sl.Note,
			IsCooking:   sl.Cooking(),
			Status:      order.Status,
			CreatedAt:   at,
			UpdatedAt:   at,
		})
	}
	return lines
}

func submissionProductIDs(sub OrderSubmission) []ProductID {
	seen := make(map[ProductID]struct{}, len(sub.Lines))
	ids := make([]ProductID, 0, len(sub.Lines))
	for _, l := range sub.Lines {
		if _, ok := seen[l.ProductID]; ok {
			continue
		}
		seen[l.ProductID] = struct{}{}
		ids = append(ids, l.ProductID)
	}
	return ids
}

func lineProductIDs(lines []*OrderLine) []ProductID {
	seen := make(map[ProductID]struct{}, len(lines))
	ids := make([]ProductID, 0, len(lines))
	for _, l := range lines {
		if _, ok := seen[l.ProductID]; ok {
			continue
		}
		seen[l.ProductID] = struct{}{}
		ids = append(ids, l.ProductID)
	}
	return ids
}

func referenceKey(configID ConfigID, reference string) string {
	return "order:" + configID.String() + ":" + reference
}
