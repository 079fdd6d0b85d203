package kitchen

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/appetiteclub/apt"
	"github.com/appetiteclub/apt/telemetry"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const MaxBodyBytes = 1 << 20

type HandlerDeps struct {
	Coordinator *Coordinator
	Registry    *ScreenRegistry
	Queries     *Queries
}

type Handler struct {
	coordinator *Coordinator
	registry    *ScreenRegistry
	queries     *Queries
	logger      apt.Logger
	config      *apt.Config
	tlm         *telemetry.HTTP
}

func NewHandler(deps HandlerDeps, config *apt.Config, logger apt.Logger) *Handler {
	if logger == nil {
		logger = apt.NewNoopLogger()
	}
	return &Handler{
		coordinator: deps.Coordinator,
		registry:    deps.Registry,
		queries:     deps.Queries,
		logger:      logger,
		config:      config,
		tlm:         telemetry.NewHTTP(),
	}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/kitchen", func(r chi.Router) {
		r.Post("/orders", h.SubmitOrders)
		r.Get("/orders/status", h.CheckOrderStatus)
		r.Patch("/orders/{id}/status", h.UpdateOrderStatus)
		r.Post("/orders/{id}/paid", h.MarkOrderPaid)
		r.Post("/orders/{id}/reconcile", h.ReconcileOrder)
		r.Patch("/lines/{id}", h.UpdateOrderLine)
		r.Post("/notifications/trigger", h.TriggerNotifications)

		r.Route("/configs/{configID}", func(r chi.Router) {
			r.Get("/screens", h.ListConfigScreens)
			r.Get("/screens/{screenID}/details", h.GetScreenDetails)
			r.Get("/coverage", h.CheckCoverage)
			r.Get("/statistics", h.TerminalStatistics)
			r.Post("/reconcile", h.ReconcileConfig)
		})

		r.Route("/screens", func(r chi.Router) {
			r.Post("/", h.CreateScreen)
			r.Get("/code/{code}", h.GetScreenByCode)
			r.Get("/{id}", h.GetScreen)
			r.Patch("/{id}", h.UpdateScreen)
			r.Post("/{id}/deactivate", h.DeactivateScreen)
			r.Post("/{id}/toggle", h.ToggleScreen)
			r.Post("/{id}/duplicate", h.DuplicateScreen)
			r.Post("/{id}/test", h.TestScreen)
			r.Get("/{id}/orders", h.ListScreenOrders)
			r.Get("/{id}/statistics", h.ScreenStatistics)
		})
	})
}

func (h *Handler) log(r *http.Request) apt.Logger {
	return h.logger.With("request_id", apt.RequestIDFrom(r.Context()))
}

type submitOrdersRequest struct {
	Orders []OrderSubmission `json:"orders"`
}

func (h *Handler) SubmitOrders(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.SubmitOrders")
	defer finish()
	log := h.log(r)

	var req submitOrdersRequest
	if !decodePayload(w, r, log, &req) {
		return
	}
	if len(req.Orders) == 0 {
		apt.RespondError(w, http.StatusBadRequest, "No orders submitted")
		return
	}

	result := h.coordinator.CreateOrUpdateKitchenOrders(r.Context(), req.Orders)
	log.Info("orders submitted", "received", len(req.Orders), "processed", len(result.OrderIDs))
	apt.RespondSuccess(w, result)
}

func (h *Handler) CheckOrderStatus(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.CheckOrderStatus")
	defer finish()
	log := h.log(r)

	reference := r.URL.Query().Get("reference")
	if reference == "" {
		apt.RespondError(w, http.StatusBadRequest, "Missing reference")
		return
	}
	configID := uuid.Nil
	if raw := r.URL.Query().Get("config_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			apt.RespondError(w, http.StatusBadRequest, "Invalid terminal config ID")
			return
		}
		configID = id
	}

	report, err := h.coordinator.CheckOrderStatus(r.Context(), configID, reference)
	if err != nil {
		h.respondErr(w, log, err, "Could not check order status")
		return
	}
	apt.RespondSuccess(w, report)
}

type orderStatusRequest struct {
	Status string `json:"status"`
}

func (h *Handler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.UpdateOrderStatus")
	defer finish()
	log := h.log(r)

	id, ok := parseIDParam(w, r, "id", "Invalid order ID")
	if !ok {
		return
	}
	var req orderStatusRequest
	if !decodePayload(w, r, log, &req) {
		return
	}

	order, err := h.coordinator.UpdateOrderStatus(r.Context(), id, req.Status)
	if err != nil {
		h.respondErr(w, log, err, "Could not update order status")
		return
	}
	apt.RespondSuccess(w, order)
}

func (h *Handler) MarkOrderPaid(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.MarkOrderPaid")
	defer finish()
	log := h.log(r)

	id, ok := parseIDParam(w, r, "id", "Invalid order ID")
	if !ok {
		return
	}

	order, err := h.coordinator.MarkPaid(r.Context(), id)
	if err != nil {
		h.respondErr(w, log, err, "Could not mark order paid")
		return
	}
	apt.RespondSuccess(w, order)
}

func (h *Handler) ReconcileOrder(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.ReconcileOrder")
	defer finish()
	log := h.log(r)

	id, ok := parseIDParam(w, r, "id", "Invalid order ID")
	if !ok {
		return
	}

	result, err := h.coordinator.Reconcile(r.Context(), id)
	if err != nil {
		h.respondErr(w, log, err, "Could not reconcile order")
		return
	}
	apt.RespondSuccess(w, result)
}

func (h *Handler) UpdateOrderLine(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.UpdateOrderLine")
	defer finish()
	log := h.log(r)

	id, ok := parseIDParam(w, r, "id", "Invalid order line ID")
	if !ok {
		return
	}
	var patch LinePatch
	if !decodePayload(w, r, log, &patch) {
		return
	}

	line, err := h.coordinator.UpdateOrderLine(r.Context(), id, patch)
	if err != nil {
		h.respondErr(w, log, err, "Could not update order line")
		return
	}
	apt.RespondSuccess(w, line)
}

type triggerRequest struct {
	ConfigID  uuid.UUID   `json:"config_id"`
	Reference string      `json:"pos_reference"`
	ScreenIDs []uuid.UUID `json:"screen_ids"`
}

func (h *Handler) TriggerNotifications(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.TriggerNotifications")
	defer finish()
	log := h.log(r)

	var req triggerRequest
	if !decodePayload(w, r, log, &req) {
		return
	}
	if req.Reference == "" {
		apt.RespondError(w, http.StatusBadRequest, "Missing pos_reference")
		return
	}

	result, err := h.coordinator.TriggerNotifications(r.Context(), req.ConfigID, req.Reference, req.ScreenIDs)
	if err != nil {
		h.respondErr(w, log, err, "Could not trigger notifications")
		return
	}
	apt.RespondSuccess(w, result)
}

func (h *Handler) ListConfigScreens(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.ListConfigScreens")
	defer finish()
	log := h.log(r)

	configID, ok := parseIDParam(w, r, "configID", "Invalid terminal config ID")
	if !ok {
		return
	}
	includeInactive, _ := strconv.ParseBool(r.URL.Query().Get("include_inactive"))

	screens, err := h.registry.ScreensForConfig(r.Context(), configID, includeInactive)
	if err != nil {
		h.respondErr(w, log, err, "Could not list screens")
		return
	}
	apt.RespondCollection(w, screens, "screen")
}

func (h *Handler) GetScreenDetails(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.GetScreenDetails")
	defer finish()
	log := h.log(r)

	configID, ok := parseIDParam(w, r, "configID", "Invalid terminal config ID")
	if !ok {
		return
	}
	screenID, ok := parseIDParam(w, r, "screenID", "Invalid screen ID")
	if !ok {
		return
	}

	details, err := h.queries.GetDetails(r.Context(), configID, screenID)
	if err != nil {
		h.respondErr(w, log, err, "Could not load screen details")
		return
	}
	apt.RespondSuccess(w, details)
}

func (h *Handler) CheckCoverage(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.CheckCoverage")
	defer finish()
	log := h.log(r)

	configID, ok := parseIDParam(w, r, "configID", "Invalid terminal config ID")
	if !ok {
		return
	}
	var categoryIDs []CategoryID
	for _, raw := range r.URL.Query()["category"] {
		id, err := uuid.Parse(raw)
		if err != nil {
			apt.RespondError(w, http.StatusBadRequest, "Invalid category ID")
			return
		}
		categoryIDs = append(categoryIDs, id)
	}

	report, err := h.queries.CoverageCheck(r.Context(), configID, categoryIDs)
	if err != nil {
		h.respondErr(w, log, err, "Could not check category coverage")
		return
	}
	apt.RespondSuccess(w, report)
}

func (h *Handler) TerminalStatistics(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.TerminalStatistics")
	defer finish()
	log := h.log(r)

	configID, ok := parseIDParam(w, r, "configID", "Invalid terminal config ID")
	if !ok {
		return
	}

	stats, err := h.queries.TerminalStatistics(r.Context(), configID)
	if err != nil {
		h.respondErr(w, log, err, "Could not compute statistics")
		return
	}
	apt.RespondSuccess(w, stats)
}

func (h *Handler) ReconcileConfig(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.ReconcileConfig")
	defer finish()
	log := h.log(r)

	configID, ok := parseIDParam(w, r, "configID", "Invalid terminal config ID")
	if !ok {
		return
	}

	results, err := h.coordinator.ReconcileConfig(r.Context(), configID)
	if err != nil {
		h.respondErr(w, log, err, "Could not reconcile orders")
		return
	}
	apt.RespondCollection(w, results, "reconciliation")
}

func (h *Handler) CreateScreen(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.CreateScreen")
	defer finish()
	log := h.log(r)

	var in ScreenInput
	if !decodePayload(w, r, log, &in) {
		return
	}

	screen, err := h.registry.Register(r.Context(), in)
	if err != nil {
		h.respondErr(w, log, err, "Could not create screen")
		return
	}
	apt.Respond(w, http.StatusCreated, screen, nil)
}

func (h *Handler) GetScreen(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.GetScreen")
	defer finish()
	log := h.log(r)

	id, ok := parseIDParam(w, r, "id", "Invalid screen ID")
	if !ok {
		return
	}

	screen, err := h.registry.Get(r.Context(), id)
	if err != nil {
		h.respondErr(w, log, err, "Could not get screen")
		return
	}
	apt.RespondSuccess(w, screen)
}

func (h *Handler) GetScreenByCode(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.GetScreenByCode")
	defer finish()
	log := h.log(r)

	screen, err := h.registry.GetByCode(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		h.respondErr(w, log, err, "Could not get screen")
		return
	}
	apt.RespondSuccess(w, screen)
}

func (h *Handler) UpdateScreen(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.UpdateScreen")
	defer finish()
	log := h.log(r)

	id, ok := parseIDParam(w, r, "id", "Invalid screen ID")
	if !ok {
		return
	}
	var patch ScreenPatch
	if !decodePayload(w, r, log, &patch) {
		return
	}

	screen, err := h.registry.Update(r.Context(), id, patch)
	if err != nil {
		h.respondErr(w, log, err, "Could not update screen")
		return
	}
	apt.RespondSuccess(w, screen)
}

func (h *Handler) DeactivateScreen(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.DeactivateScreen")
	defer finish()
	log := h.log(r)

	id, ok := parseIDParam(w, r, "id", "Invalid screen ID")
	if !ok {
		return
	}

	screen, err := h.registry.Deactivate(r.Context(), id)
	if err != nil {
		h.respondErr(w, log, err, "Could not deactivate screen")
		return
	}
	apt.RespondSuccess(w, screen)
}

func (h *Handler) ToggleScreen(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.ToggleScreen")
	defer finish()
	log := h.log(r)

	id, ok := parseIDParam(w, r, "id", "Invalid screen ID")
	if !ok {
		return
	}

	screen, err := h.registry.ToggleActive(r.Context(), id)
	if err != nil {
		h.respondErr(w, log, err, "Could not toggle screen")
		return
	}
	apt.RespondSuccess(w, screen)
}

func (h *Handler) DuplicateScreen(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.DuplicateScreen")
	defer finish()
	log := h.log(r)

	id, ok := parseIDParam(w, r, "id", "Invalid screen ID")
	if !ok {
		return
	}

	screen, err := h.registry.Duplicate(r.Context(), id)
	if err != nil {
		h.respondErr(w, log, err, "Could not duplicate screen")
		return
	}
	apt.Respond(w, http.StatusCreated, screen, nil)
}

func (h *Handler) TestScreen(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.TestScreen")
	defer finish()
	log := h.log(r)

	id, ok := parseIDParam(w, r, "id", "Invalid screen ID")
	if !ok {
		return
	}

	screen, err := h.registry.SendTest(r.Context(), id)
	if err != nil {
		h.respondErr(w, log, err, "Could not send test notification")
		return
	}
	apt.RespondSuccess(w, map[string]interface{}{
		"screen_id": screen.ID,
		"sent":      true,
	})
}

func (h *Handler) ListScreenOrders(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.ListScreenOrders")
	defer finish()
	log := h.log(r)

	id, ok := parseIDParam(w, r, "id", "Invalid screen ID")
	if !ok {
		return
	}
	includeCancelled, _ := strconv.ParseBool(r.URL.Query().Get("include_cancelled"))

	orders, err := h.queries.OrdersForScreen(r.Context(), id, includeCancelled)
	if err != nil {
		h.respondErr(w, log, err, "Could not list orders")
		return
	}
	apt.RespondCollection(w, orders, "order")
}

func (h *Handler) ScreenStatistics(w http.ResponseWriter, r *http.Request) {
	w, r, finish := h.tlm.Start(w, r, "Handler.ScreenStatistics")
	defer finish()
	log := h.log(r)

	id, ok := parseIDParam(w, r, "id", "Invalid screen ID")
	if !ok {
		return
	}

	stats, err := h.queries.ScreenStatistics(r.Context(), id)
	if err != nil {
		h.respondErr(w, log, err, "Could not compute statistics")
		return
	}
	apt.RespondSuccess(w, stats)
}

func (h *Handler) respondErr(w http.ResponseWriter, log apt.Logger, err error, msg string) {
	switch {
	case errors.Is(err, ErrNotFound):
		log.Debug(msg, "error", err)
		apt.RespondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrInvalid):
		log.Debug(msg, "error", err)
		apt.RespondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrConflict), errors.Is(err, ErrOrderClosed), errors.Is(err, ErrInvalidTransition):
		log.Debug(msg, "error", err)
		apt.RespondError(w, http.StatusConflict, err.Error())
	default:
		log.Errorf("%s: %v", msg, err)
		apt.RespondError(w, http.StatusInternalServerError, msg)
	}
}

func decodePayload(w http.ResponseWriter, r *http.Request, log apt.Logger, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	defer r.Body.Close()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		log.Debug("failed to read request body", "error", err)
		apt.RespondError(w, http.StatusBadRequest, "Failed to read request body")
		return false
	}

	if err := json.Unmarshal(body, dst); err != nil {
		log.Debug("failed to decode request body", "error", err)
		apt.RespondError(w, http.StatusBadRequest, "Invalid JSON in request body")
		return false
	}

	return true
}

func parseIDParam(w http.ResponseWriter, r *http.Request, name, msg string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		apt.RespondError(w, http.StatusBadRequest, msg)
		return uuid.Nil, false
	}
	return id, true
}
