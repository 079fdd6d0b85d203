package kitchen

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/appetiteclub/apt"
	"github.com/appetiteclub/apt/events"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"github.com/grafnet-dev/kitchenscreens/pkg/enums/screentype"
	"github.com/grafnet-dev/kitchenscreens/pkg/event"
	"github.com/jinzhu/copier"
)

const (
	maxScreenCodeLen  = 64
	screenCodeTSFmt   = "20060102150405"
	copySuffix        = " (Copy)"
	screenEventSource = "kitchen"
)

type ScreenInput struct {
	Name         string       `json:"name" validate:"required,max=128"`
	ConfigID     ConfigID     `json:"config_id" validate:"required"`
	CategoryIDs  []CategoryID `json:"category_ids" validate:"required,min=1"`
	ScreenType   string       `json:"screen_type" validate:"omitempty,oneof=kitchen bar"`
	Description  string       `json:"description" validate:"max=512"`
	DisplayOrder int          `json:"display_order" validate:"gte=0"`
	Active       *bool        `json:"active"`
}

// ScreenPatch holds the mutable fields of a screen. Nil fields are left
// unchanged. The owning terminal cannot change.
type ScreenPatch struct {
	Name         *string       `json:"name,omitempty" validate:"omitempty,min=1,max=128"`
	CategoryIDs  *[]CategoryID `json:"category_ids,omitempty"`
	ScreenType   *string       `json:"screen_type,omitempty" validate:"omitempty,oneof=kitchen bar"`
	Description  *string       `json:"description,omitempty" validate:"omitempty,max=512"`
	DisplayOrder *int          `json:"display_order,omitempty" validate:"omitempty,gte=0"`
	Active       *bool         `json:"active,omitempty"`
}

// ScreenRegistry owns screen mutations. Every mutation drops the terminal from
// the category index and announces the change to other instances.
type ScreenRegistry struct {
	store      Store
	index      *CategoryIndex
	dispatcher *Dispatcher
	publisher  events.Publisher
	logger     apt.Logger
	now        func() time.Time
}

func NewScreenRegistry(store Store, index *CategoryIndex, dispatcher *Dispatcher, publisher events.Publisher, logger apt.Logger) *ScreenRegistry {
	if logger == nil {
		logger = apt.NewNoopLogger()
	}
	if index == nil {
		index = NewCategoryIndex(store, logger)
	}
	if dispatcher == nil {
		dispatcher = NewDispatcher(publisher, logger)
	}
	return &ScreenRegistry{
		store:      store,
		index:      index,
		dispatcher: dispatcher,
		publisher:  publisher,
		logger:     logger,
		now:        time.Now,
	}
}

func (r *ScreenRegistry) Register(ctx context.Context, in ScreenInput) (*Screen, error) {
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	if in.ScreenType == "" {
		in.ScreenType = screentype.ScreenTypes.Kitchen.Code()
	}

	var screen *Screen
	err := r.store.InTx(ctx, func(ctx context.Context, repo Repo) error {
		config, err := repo.GetConfig(ctx, in.ConfigID)
		if err != nil {
			return fmt.Errorf("cannot get terminal config: %w", err)
		}
		if config == nil {
			return fmt.Errorf("%w: terminal config %s", ErrNotFound, in.ConfigID)
		}
		if err := checkCategoriesExist(ctx, repo, in.CategoryIDs); err != nil {
			return err
		}

		active := true
		if in.Active != nil {
			active = *in.Active
		}
		if active {
			if err := checkNameFree(ctx, repo, in.ConfigID, in.Name, uuid.Nil); err != nil {
				return err
			}
		}

		now := r.now().UTC()
		code, err := uniqueScreenCode(ctx, repo, in.ConfigID, in.Name, now)
		if err != nil {
			return err
		}

		screen = &Screen{
			ID:           uuid.New(),
			Name:         strings.TrimSpace(in.Name),
			Code:         code,
			ConfigID:     in.ConfigID,
			CategoryIDs:  uniqueCategoryIDs(in.CategoryIDs),
			ScreenType:   in.ScreenType,
			Description:  in.Description,
			Active:       active,
			DisplayOrder: in.DisplayOrder,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := repo.CreateScreen(ctx, screen); err != nil {
			return fmt.Errorf("cannot create screen: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.logger.Info("screen created",
		"screen_id", screen.ID,
		"name", screen.Name,
		"code", screen.Code,
		"config_id", screen.ConfigID,
		"active", screen.Active,
		"categories", screen.CategoryIDs)
	r.changed(ctx, event.EventScreenCreated, screen)
	return screen, nil
}

func (r *ScreenRegistry) Update(ctx context.Context, id ScreenID, patch ScreenPatch) (*Screen, error) {
	if err := validateStruct(patch); err != nil {
		return nil, err
	}
	if patch.CategoryIDs != nil && len(*patch.CategoryIDs) == 0 {
		return nil, fmt.Errorf("%w: a screen needs at least one category", ErrInvalid)
	}

	var screen *Screen
	var categoriesChanged, activeChanged bool
	err := r.store.InTx(ctx, func(ctx context.Context, repo Repo) error {
		s, err := mustGetScreen(ctx, repo, id)
		if err != nil {
			return err
		}

		if patch.Name != nil {
			s.Name = strings.TrimSpace(*patch.Name)
		}
		if patch.CategoryIDs != nil {
			if err := checkCategoriesExist(ctx, repo, *patch.CategoryIDs); err != nil {
				return err
			}
			next := uniqueCategoryIDs(*patch.CategoryIDs)
			categoriesChanged = !sameCategories(s.CategoryIDs, next)
			s.CategoryIDs = next
		}
		if patch.ScreenType != nil {
			s.ScreenType = *patch.ScreenType
		}
		if patch.Description != nil {
			s.Description = *patch.Description
		}
		if patch.DisplayOrder != nil {
			s.DisplayOrder = *patch.DisplayOrder
		}
		if patch.Active != nil && *patch.Active != s.Active {
			activeChanged = true
			s.Active = *patch.Active
		}

		if s.Active && (patch.Name != nil || activeChanged) {
			if err := checkNameFree(ctx, repo, s.ConfigID, s.Name, s.ID); err != nil {
				return err
			}
		}

		s.UpdatedAt = r.now().UTC()
		if err := repo.SaveScreen(ctx, s); err != nil {
			return fmt.Errorf("cannot save screen: %w", err)
		}
		screen = s
		return nil
	})
	if err != nil {
		return nil, err
	}

	kv := []interface{}{
		"screen updated",
		"screen_id", screen.ID,
		"name", screen.Name,
		"config_id", screen.ConfigID,
	}
	if categoriesChanged {
		kv = append(kv, "categories", screen.CategoryIDs)
	}
	if activeChanged {
		kv = append(kv, "active", screen.Active)
	}
	r.logger.Info(kv...)

	eventType := event.EventScreenUpdated
	if activeChanged && !screen.Active {
		eventType = event.EventScreenDeactivated
	}
	r.changed(ctx, eventType, screen)
	return screen, nil
}

// Deactivate takes a screen out of assignment. Screens are never deleted.
func (r *ScreenRegistry) Deactivate(ctx context.Context, id ScreenID) (*Screen, error) {
	inactive := false
	return r.Update(ctx, id, ScreenPatch{Active: &inactive})
}

func (r *ScreenRegistry) ToggleActive(ctx context.Context, id ScreenID) (*Screen, error) {
	s, err := mustGetScreen(ctx, r.store, id)
	if err != nil {
		return nil, err
	}
	next := !s.Active
	return r.Update(ctx, id, ScreenPatch{Active: &next})
}

// Duplicate copies a screen under a free "(Copy)" name with a fresh code.
func (r *ScreenRegistry) Duplicate(ctx context.Context, id ScreenID) (*Screen, error) {
	var dup *Screen
	err := r.store.InTx(ctx, func(ctx context.Context, repo Repo) error {
		src, err := mustGetScreen(ctx, repo, id)
		if err != nil {
			return err
		}

		cid := src.ConfigID
		siblings, err := repo.ListScreens(ctx, ScreenFilter{ConfigID: &cid})
		if err != nil {
			return fmt.Errorf("cannot list screens: %w", err)
		}
		names := make([]string, 0, len(siblings))
		for _, s := range siblings {
			names = append(names, s.Name)
		}

		dup = &Screen{}
		if err := copier.Copy(dup, src); err != nil {
			return fmt.Errorf("cannot copy screen: %w", err)
		}
		now := r.now().UTC()
		dup.ID = uuid.New()
		dup.Name = copyName(src.Name, names)
		dup.CategoryIDs = append([]CategoryID(nil), src.CategoryIDs...)
		dup.CreatedAt = now
		dup.UpdatedAt = now
		dup.Code, err = uniqueScreenCode(ctx, repo, dup.ConfigID, dup.Name, now)
		if err != nil {
			return err
		}

		if err := repo.CreateScreen(ctx, dup); err != nil {
			return fmt.Errorf("cannot create screen: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.logger.Info("screen duplicated",
		"source_id", id,
		"screen_id", dup.ID,
		"name", dup.Name,
		"code", dup.Code,
		"active", dup.Active,
		"categories", dup.CategoryIDs)
	r.changed(ctx, event.EventScreenCreated, dup)
	return dup, nil
}

func (r *ScreenRegistry) Get(ctx context.Context, id ScreenID) (*Screen, error) {
	return mustGetScreen(ctx, r.store, id)
}

func (r *ScreenRegistry) GetByCode(ctx context.Context, code string) (*Screen, error) {
	s, err := r.store.FindScreenByCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("cannot find screen by code: %w", err)
	}
	if s == nil {
		return nil, fmt.Errorf("%w: screen code %s", ErrNotFound, code)
	}
	return s, nil
}

// ScreensForConfig lists a terminal's screens ordered by display order, then
// name, the order terminals render them in.
func (r *ScreenRegistry) ScreensForConfig(ctx context.Context, configID ConfigID, includeInactive bool) ([]*Screen, error) {
	cid := configID
	screens, err := r.store.ListScreens(ctx, ScreenFilter{ConfigID: &cid, ActiveOnly: !includeInactive})
	if err != nil {
		return nil, fmt.Errorf("cannot list screens: %w", err)
	}
	sort.SliceStable(screens, func(i, j int) bool {
		if screens[i].DisplayOrder != screens[j].DisplayOrder {
			return screens[i].DisplayOrder < screens[j].DisplayOrder
		}
		return screens[i].Name < screens[j].Name
	})
	return screens, nil
}

// SendTest pushes a test notification to the screen channel.
func (r *ScreenRegistry) SendTest(ctx context.Context, id ScreenID) (*Screen, error) {
	s, err := mustGetScreen(ctx, r.store, id)
	if err != nil {
		return nil, err
	}
	r.dispatcher.PublishTest(ctx, s)
	return s, nil
}

func (r *ScreenRegistry) changed(ctx context.Context, eventType string, s *Screen) {
	r.index.Invalidate(s.ConfigID)

	if r.publisher == nil {
		return
	}
	data, err := json.Marshal(event.ScreenChangedEvent{
		EventType:  eventType,
		OccurredAt: r.now().UTC(),
		ScreenID:   s.ID.String(),
		ConfigID:   s.ConfigID.String(),
		Source:     screenEventSource,
	})
	if err != nil {
		r.logger.Error("cannot encode screen change", "screen_id", s.ID, "error", err)
		return
	}
	if err := r.publisher.Publish(ctx, event.ScreensChangedTopic, data); err != nil {
		r.logger.Error("cannot publish screen change", "screen_id", s.ID, "error", err)
	}
}

// GenerateScreenCode builds POS<terminal>_<NAME>_<timestamp>, at most 64
// characters long.
func GenerateScreenCode(configID ConfigID, name string, at time.Time) string {
	base := strings.ToUpper(strings.ReplaceAll(slug.Make(name), "-", "_"))
	if base == "" {
		base = "SCREEN"
	}
	prefix := "POS" + strings.ToUpper(configID.String()[:8]) + "_"
	suffix := "_" + at.UTC().Format(screenCodeTSFmt)
	if room := maxScreenCodeLen - len(prefix) - len(suffix); len(base) > room {
		base = strings.TrimRight(base[:room], "_")
	}
	return prefix + base + suffix
}

func uniqueScreenCode(ctx context.Context, repo ScreenRepository, configID ConfigID, name string, at time.Time) (string, error) {
	base := GenerateScreenCode(configID, name, at)
	code := base
	for i := 2; ; i++ {
		existing, err := repo.FindScreenByCode(ctx, code)
		if err != nil {
			return "", fmt.Errorf("cannot check screen code: %w", err)
		}
		if existing == nil {
			return code, nil
		}
		suffix := fmt.Sprintf("_%d", i)
		if len(base)+len(suffix) > maxScreenCodeLen {
			code = base[:maxScreenCodeLen-len(suffix)] + suffix
		} else {
			code = base + suffix
		}
	}
}

func copyName(name string, taken []string) string {
	used := make(map[string]struct{}, len(taken))
	for _, n := range taken {
		used[n] = struct{}{}
	}
	candidate := name + copySuffix
	if _, ok := used[candidate]; !ok {
		return candidate
	}
	for i := 2; ; i++ {
		candidate = fmt.Sprintf("%s (Copy %d)", name, i)
		if _, ok := used[candidate]; !ok {
			return candidate
		}
	}
}

func checkNameFree(ctx context.Context, repo ScreenRepository, configID ConfigID, name string, self ScreenID) error {
	cid := configID
	screens, err := repo.ListScreens(ctx, ScreenFilter{ConfigID: &cid, ActiveOnly: true})
	if err != nil {
		return fmt.Errorf("cannot list screens: %w", err)
	}
	for _, s := range screens {
		if s.ID != self && strings.EqualFold(s.Name, strings.TrimSpace(name)) {
			return fmt.Errorf("%w: screen %q already exists for this terminal", ErrConflict, name)
		}
	}
	return nil
}

func checkCategoriesExist(ctx context.Context, repo CatalogRepository, ids []CategoryID) error {
	if len(ids) == 0 {
		return fmt.Errorf("%w: a screen needs at least one category", ErrInvalid)
	}
	all, err := repo.ListCategories(ctx)
	if err != nil {
		return fmt.Errorf("cannot list categories: %w", err)
	}
	known := make(map[CategoryID]struct{}, len(all))
	for _, c := range all {
		known[c.ID] = struct{}{}
	}
	for _, id := range ids {
		if _, ok := known[id]; !ok {
			return fmt.Errorf("%w: category %s", ErrNotFound, id)
		}
	}
	return nil
}

func mustGetScreen(ctx context.Context, repo ScreenRepository, id ScreenID) (*Screen, error) {
	s, err := repo.GetScreen(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("cannot get screen: %w", err)
	}
	if s == nil {
		return nil, fmt.Errorf("%w: screen %s", ErrNotFound, id)
	}
	return s, nil
}

func uniqueCategoryIDs(ids []CategoryID) []CategoryID {
	out := make([]CategoryID, 0, len(ids))
	seen := make(map[CategoryID]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func sameCategories(a, b []CategoryID) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[CategoryID]struct{}, len(a))
	for _, id := range a {
		set[id] = struct{}{}
	}
	for _, id := range b {
		if _, ok := set[id]; !ok {
			return false
		}
	}
	return true
}
