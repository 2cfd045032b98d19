package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/opsdeck/order-console/internal/audit"
	"github.com/opsdeck/order-console/internal/circuitbreaker"
	"github.com/opsdeck/order-console/internal/dashboard"
	"github.com/opsdeck/order-console/internal/feed"
	"github.com/opsdeck/order-console/internal/orders"
	"github.com/opsdeck/order-console/internal/session"
	"github.com/opsdeck/order-console/internal/transition"
	"github.com/opsdeck/order-console/pkg/models"
	"github.com/sirupsen/logrus"
)

// WebSocketHub is what the handler needs from the browser fan-out hub.
type WebSocketHub interface {
	HandleWebSocket(w http.ResponseWriter, r *http.Request)
	ClientCount() int
}

// Handler serves the dashboard browser API.
type Handler struct {
	dashboard  *dashboard.Dashboard
	controller *transition.Controller
	auditStore *audit.Store
	hub        WebSocketHub
	session    *session.Session
	pageSize   int
	logger     *logrus.Logger
}

func NewHandler(d *dashboard.Dashboard, controller *transition.Controller, auditStore *audit.Store, hub WebSocketHub, sess *session.Session, pageSize int, logger *logrus.Logger) *Handler {
	if pageSize <= 0 {
		pageSize = 20
	}
	return &Handler{
		dashboard:  d,
		controller: controller,
		auditStore: auditStore,
		hub:        hub,
		session:    sess,
		pageSize:   pageSize,
		logger:     logger,
	}
}

// Router builds the mux router with the role guard applied per route.
func (h *Handler) Router() *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/health", h.HealthCheck).Methods("GET", "OPTIONS")
	router.HandleFunc("/api/orders", h.guard(session.CapViewOrders, h.ListOrders)).Methods("GET", "OPTIONS")
	router.HandleFunc("/api/orders/{id}/transition", h.guard(session.CapTransitionOrders, h.Transition)).Methods("POST", "OPTIONS")
	router.HandleFunc("/api/orders/{id}/audit", h.guard(session.CapViewOrders, h.OrderAudit)).Methods("GET", "OPTIONS")
	router.HandleFunc("/api/reference/cities", h.guard(session.CapViewReference, h.ListCities)).Methods("GET", "OPTIONS")
	router.HandleFunc("/api/reference/zones", h.guard(session.CapViewReference, h.ListZones)).Methods("GET", "OPTIONS")
	router.HandleFunc("/api/reference/products", h.guard(session.CapViewReference, h.ListProducts)).Methods("GET", "OPTIONS")
	router.HandleFunc("/api/reference/delivery-boys", h.guard(session.CapViewReference, h.ListDeliveryBoys)).Methods("GET", "OPTIONS")
	router.HandleFunc("/ws", h.hub.HandleWebSocket)

	router.Use(corsMiddleware())
	router.Use(loggingMiddleware(h.logger))

	return router
}

// guard is the typed capability check, evaluated once per request.
func (h *Handler) guard(capability session.Capability, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !h.session.Role.Can(capability) {
			h.logger.WithFields(logrus.Fields{
				"role": h.session.Role,
				"path": r.URL.Path,
			}).Warn("Capability denied")
			h.respondWithError(w, http.StatusForbidden, "Insufficient permissions")
			return
		}
		next(w, r)
	}
}

func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	healthy, loadErr := h.dashboard.Healthy()
	status := "healthy"
	code := http.StatusOK
	if !healthy {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	payload := map[string]interface{}{
		"status":     status,
		"service":    "order-console",
		"orders":     h.dashboard.Feed.Len(),
		"ws_clients": h.hub.ClientCount(),
		"tables":     h.dashboard.Tables.Resolved(),
	}
	if loadErr != nil {
		payload["error"] = loadErr.Error()
	}
	h.respondWithJSON(w, code, payload)
}

func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	q := feed.ListQuery{
		Search:   r.URL.Query().Get("q"),
		SortKey:  r.URL.Query().Get("sort"),
		Desc:     r.URL.Query().Get("dir") == "desc",
		Page:     intParam(r, "page", 1),
		PageSize: intParam(r, "limit", h.pageSize),
	}

	rows, total := h.dashboard.Feed.List(q, h.dashboard.Tables)
	h.respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"orders":  rows,
		"total":   total,
		"page":    q.Page,
	})
}

type transitionBody struct {
	Action        string `json:"action"`
	Target        string `json:"target,omitempty"`
	RequestID     string `json:"request_id,omitempty"`
	DeliveryBoyID int64  `json:"delivery_boy_id,omitempty"`
}

// Transition drives the two-phase status change flow: begin opens a pending
// request (returning the assignable delivery boys for ready), confirm issues
// the upstream command, cancel drops the request without a server call.
func (h *Handler) Transition(w http.ResponseWriter, r *http.Request) {
	orderID, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		h.respondWithError(w, http.StatusBadRequest, "Invalid order id")
		return
	}

	var body transitionBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	switch body.Action {
	case "begin":
		req, err := h.controller.Begin(orderID, models.OrderStatus(body.Target))
		if err != nil {
			h.respondTransitionError(w, err)
			return
		}
		h.respondWithJSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"request": req,
		})

	case "confirm":
		if body.DeliveryBoyID != 0 {
			if err := h.controller.SelectDeliveryBoy(body.RequestID, body.DeliveryBoyID); err != nil {
				h.respondTransitionError(w, err)
				return
			}
		}
		if err := h.controller.Confirm(body.RequestID); err != nil {
			h.respondTransitionError(w, err)
			return
		}
		h.respondWithJSON(w, http.StatusOK, map[string]interface{}{"success": true})

	case "cancel":
		if err := h.controller.Cancel(body.RequestID); err != nil {
			h.respondTransitionError(w, err)
			return
		}
		h.respondWithJSON(w, http.StatusOK, map[string]interface{}{"success": true})

	default:
		h.respondWithError(w, http.StatusBadRequest, "Unknown action")
	}
}

func (h *Handler) respondTransitionError(w http.ResponseWriter, err error) {
	var rejected *orders.RejectedError
	switch {
	case errors.Is(err, transition.ErrOrderNotFound), errors.Is(err, transition.ErrUnknownRequest):
		h.respondWithError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, transition.ErrInvalidTarget),
		errors.Is(err, transition.ErrDeliveryBoyRequired),
		errors.Is(err, transition.ErrDeliveryBoyNotTaken),
		errors.Is(err, transition.ErrUnknownDeliveryBoy):
		h.respondWithError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, transition.ErrTransitionInFlight):
		h.respondWithError(w, http.StatusConflict, err.Error())
	case errors.Is(err, circuitbreaker.ErrOpen):
		h.respondWithError(w, http.StatusServiceUnavailable, "Order service temporarily unavailable")
	case errors.As(err, &rejected):
		h.respondWithError(w, http.StatusUnprocessableEntity, rejected.Error())
	default:
		h.respondWithError(w, http.StatusBadGateway, "Failed to apply transition")
	}
}

func (h *Handler) OrderAudit(w http.ResponseWriter, r *http.Request) {
	if h.auditStore == nil {
		h.respondWithError(w, http.StatusNotFound, "Audit log not configured")
		return
	}
	orderID, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		h.respondWithError(w, http.StatusBadRequest, "Invalid order id")
		return
	}

	entries, err := h.auditStore.Recent(orderID, intParam(r, "limit", 50))
	if err != nil {
		h.logger.WithError(err).Error("Failed to read audit log")
		h.respondWithError(w, http.StatusInternalServerError, "Failed to read audit log")
		return
	}
	h.respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"entries": entries,
	})
}

func (h *Handler) ListCities(w http.ResponseWriter, r *http.Request) {
	h.respondWithJSON(w, http.StatusOK, h.dashboard.Tables.Cities())
}

func (h *Handler) ListZones(w http.ResponseWriter, r *http.Request) {
	h.respondWithJSON(w, http.StatusOK, h.dashboard.Tables.Zones())
}

func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	h.respondWithJSON(w, http.StatusOK, h.dashboard.Tables.Products())
}

func (h *Handler) ListDeliveryBoys(w http.ResponseWriter, r *http.Request) {
	h.respondWithJSON(w, http.StatusOK, h.dashboard.Tables.DeliveryBoys())
}

func (h *Handler) respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

func (h *Handler) respondWithError(w http.ResponseWriter, code int, message string) {
	h.respondWithJSON(w, code, map[string]interface{}{
		"success": false,
		"message": message,
	})
}

func intParam(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 1 {
		return fallback
	}
	return v
}
