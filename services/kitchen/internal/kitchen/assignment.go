package kitchen

import (
	"context"
	"fmt"

	"github.com/appetiteclub/apt"
)

type AssignmentSource string

const (
	AssignmentExplicit AssignmentSource = "explicit"
	AssignmentAuto     AssignmentSource = "auto"
)

const (
	WarningNoScreenMatch     = "no_screen_match"
	WarningNoValidTargets    = "no_valid_target_screens"
	WarningRejectedTargets   = "rejected_target_screens"
	WarningAssignmentRemoved = "assignment_removed"
	WarningAssignmentAdded   = "assignment_added"
)

// AssignmentResult is the definitive screen set for an order. OK is false when
// nothing could be assigned; the order then stays screen-less and not cooking.
type AssignmentResult struct {
	ScreenIDs []ScreenID
	Screens   []*Screen
	Source    AssignmentSource
	Rejected  []ScreenID
	Warnings  []string
	OK        bool
}

// ReconcileDiff lists the repairs needed to make an assignment match the
// screens that actually have visible lines.
type ReconcileDiff struct {
	ScreenIDs []ScreenID
	Screens   []*Screen
	Removed   []ScreenID
	Added     []ScreenID
}

func (d ReconcileDiff) Changed() bool {
	return len(d.Removed) > 0 || len(d.Added) > 0
}

type AssignmentEngine struct {
	index  *CategoryIndex
	logger apt.Logger
}

func NewAssignmentEngine(index *CategoryIndex, logger apt.Logger) *AssignmentEngine {
	if logger == nil {
		logger = apt.NewNoopLogger()
	}
	return &AssignmentEngine{index: index, logger: logger}
}

// Compute resolves the screen set for an order. Explicit targets are validated
// against repo and used as given; when none are supplied, or none survive
// validation, the union of cooking line categories is resolved through the
// category index.
//
// The result is a candidate. Callers pass it through Reconcile before Apply,
// which drops screens without visible lines and adds uncovered ones, so an
// explicit set only survives where it agrees with line visibility.
func (e *AssignmentEngine) Compute(ctx context.Context, repo ScreenRepository, order *Order, lines []*OrderLine, products map[ProductID]*Product, explicit []ScreenID) (AssignmentResult, error) {
	res := AssignmentResult{}

	if len(explicit) > 0 {
		screens, rejected, err := e.validateTargets(ctx, repo, order.ConfigID, explicit)
		if err != nil {
			return res, err
		}
		res.Rejected = rejected
		if len(rejected) > 0 {
			res.Warnings = append(res.Warnings, WarningRejectedTargets)
			e.logger.Info("explicit target screens rejected",
				"warning", WarningRejectedTargets,
				"order_reference", order.Reference,
				"rejected", rejected)
		}
		if len(screens) > 0 {
			res.Source = AssignmentExplicit
			res.Screens = screens
			res.ScreenIDs = screenIDs(screens)
			res.OK = true
			return res, nil
		}
		res.Warnings = append(res.Warnings, WarningNoValidTargets)
		e.logger.Info("no valid explicit target screens, falling back to category lookup",
			"warning", WarningNoValidTargets,
			"order_reference", order.Reference)
	}

	res.Source = AssignmentAuto
	categories := cookingCategories(lines, products)
	if len(categories) == 0 {
		res.ScreenIDs = []ScreenID{}
		return res, nil
	}

	screens, err := e.index.ScreensForCategories(ctx, categories, order.ConfigID)
	if err != nil {
		return res, err
	}
	if len(screens) == 0 {
		res.ScreenIDs = []ScreenID{}
		res.Warnings = append(res.Warnings, WarningNoScreenMatch)
		e.logger.Info("no active screen covers order categories",
			"warning", WarningNoScreenMatch,
			"order_reference", order.Reference,
			"config_id", order.ConfigID,
			"categories", categories)
		return res, nil
	}

	res.Screens = screens
	res.ScreenIDs = screenIDs(screens)
	res.OK = true
	return res, nil
}

// Reconcile compares the current assignment with the active screens that have
// at least one visible line for the order.
func (e *AssignmentEngine) Reconcile(ctx context.Context, order *Order, lines []*OrderLine, products map[ProductID]*Product, current []ScreenID) (ReconcileDiff, error) {
	diff := ReconcileDiff{}

	active, err := e.index.ActiveScreens(ctx, order.ConfigID)
	if err != nil {
		return diff, err
	}

	want := make(map[ScreenID]struct{})
	for _, s := range active {
		if len(VisibleLines(lines, products, s)) == 0 {
			continue
		}
		want[s.ID] = struct{}{}
		diff.Screens = append(diff.Screens, s)
		diff.ScreenIDs = append(diff.ScreenIDs, s.ID)
	}
	if diff.ScreenIDs == nil {
		diff.ScreenIDs = []ScreenID{}
	}

	have := make(map[ScreenID]struct{}, len(current))
	for _, id := range current {
		have[id] = struct{}{}
		if _, ok := want[id]; !ok {
			diff.Removed = append(diff.Removed, id)
		}
	}
	for _, id := range diff.ScreenIDs {
		if _, ok := have[id]; !ok {
			diff.Added = append(diff.Added, id)
		}
	}

	return diff, nil
}

// Apply stores ids as the full assignment of the order. A storage failure is
// retried once.
func (e *AssignmentEngine) Apply(ctx context.Context, repo OrderRepository, orderID OrderID, ids []ScreenID) error {
	ids = uniqueScreenIDs(ids)
	err := repo.ReplaceOrderScreens(ctx, orderID, ids)
	if err == nil {
		return nil
	}
	e.logger.Info("screen assignment replace failed, retrying", "order_id", orderID, "error", err)
	if err := repo.ReplaceOrderScreens(ctx, orderID, ids); err != nil {
		return fmt.Errorf("%w: cannot replace screens of order %s: %v", ErrStorage, orderID, err)
	}
	return nil
}

func (e *AssignmentEngine) validateTargets(ctx context.Context, repo ScreenRepository, configID ConfigID, ids []ScreenID) ([]*Screen, []ScreenID, error) {
	var valid []*Screen
	var rejected []ScreenID
	seen := make(map[ScreenID]struct{}, len(ids))

	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}

		s, err := repo.GetScreen(ctx, id)
		if err != nil {
			return nil, nil, fmt.Errorf("cannot validate target screen %s: %w", id, err)
		}
		if s == nil || !s.Active || s.ConfigID != configID || len(s.CategoryIDs) == 0 {
			rejected = append(rejected, id)
			continue
		}
		valid = append(valid, s)
	}

	sortScreens(valid)
	return valid, rejected, nil
}

func screenIDs(screens []*Screen) []ScreenID {
	ids := make([]ScreenID, len(screens))
	for i, s := range screens {
		ids[i] = s.ID
	}
	return ids
}

func uniqueScreenIDs(ids []ScreenID) []ScreenID {
	out := make([]ScreenID, 0, len(ids))
	seen := make(map[ScreenID]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
