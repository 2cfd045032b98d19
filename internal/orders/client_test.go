package orders

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/opsdeck/order-console/internal/circuitbreaker"
	"github.com/opsdeck/order-console/internal/session"
	"github.com/opsdeck/order-console/pkg/models"
	"github.com/sirupsen/logrus"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel) // Reduce noise in tests
	return logger
}

func testBreaker(name string) *circuitbreaker.Breaker {
	return circuitbreaker.New(circuitbreaker.Config{
		Name:        name,
		MaxFailures: 5,
		Timeout:     time.Minute,
	}, testLogger())
}

func testSession() *session.Session {
	return session.New("secret-token", "tester", session.RoleOperations)
}

func TestSnapshotRequestsActionableOrders(t *testing.T) {
	var gotQuery map[string]string
	var gotAuth string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotQuery = map[string]string{}
		for key := range r.URL.Query() {
			gotQuery[key] = r.URL.Query().Get(key)
		}
		json.NewEncoder(w).Encode(models.OrderListResponse{
			Success: true,
			Orders: []models.Order{
				{ID: 1, Status: models.StatusPending},
				{ID: 2, Status: models.StatusReady},
			},
			Count: 2,
		})
	}))
	defer srv.Close()

	client := NewQueryClient(srv.URL, testSession(), testBreaker("query"), testLogger())
	snapshot, err := client.Snapshot()
	if err != nil {
		t.Fatalf("snapshot failed: %v", err)
	}
	if len(snapshot) != 2 {
		t.Errorf("expected 2 orders, got %d", len(snapshot))
	}

	if gotAuth != "Bearer secret-token" {
		t.Errorf("expected bearer credential, got %q", gotAuth)
	}
	want := map[string]string{
		"status": "pending,ready",
		"sort":   "created",
		"dir":    "asc",
		"page":   "1",
		"limit":  "100",
	}
	for key, value := range want {
		if gotQuery[key] != value {
			t.Errorf("query param %s = %q, want %q", key, gotQuery[key], value)
		}
	}
}

func TestSnapshotServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewQueryClient(srv.URL, testSession(), testBreaker("query"), testLogger())
	if _, err := client.Snapshot(); err == nil {
		t.Fatal("expected error on 500")
	}
}

func TestSnapshotFailsFastWhenBreakerOpen(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	breaker := circuitbreaker.New(circuitbreaker.Config{
		Name:        "query",
		MaxFailures: 1,
		Timeout:     time.Minute,
	}, testLogger())
	client := NewQueryClient(srv.URL, testSession(), breaker, testLogger())

	if _, err := client.Snapshot(); err == nil {
		t.Fatal("expected first call to fail")
	}
	if _, err := client.Snapshot(); !errors.Is(err, circuitbreaker.ErrOpen) {
		t.Errorf("expected ErrOpen, got %v", err)
	}
}

func TestTransitionSendsPayload(t *testing.T) {
	var gotPath string
	var gotBody models.TransitionRequest
	var gotRequestID string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotRequestID = r.Header.Get("X-Request-ID")
		json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode(models.TransitionResponse{Success: true})
	}))
	defer srv.Close()

	client := NewCommandClient(srv.URL, testSession(), testBreaker("command"), testLogger())
	if err := client.Transition(7, models.StatusReady, 11); err != nil {
		t.Fatalf("transition failed: %v", err)
	}

	if gotPath != "/api/orders/7/status" {
		t.Errorf("unexpected path %q", gotPath)
	}
	if gotBody.Status != models.StatusReady || gotBody.DeliveryBoyID != 11 {
		t.Errorf("unexpected payload %+v", gotBody)
	}
	if gotRequestID == "" {
		t.Error("expected a request id header")
	}
}

func TestTransitionRejectionCarriesServerMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(models.TransitionResponse{
			Success: false,
			Message: "order already delivered",
		})
	}))
	defer srv.Close()

	client := NewCommandClient(srv.URL, testSession(), testBreaker("command"), testLogger())
	err := client.Transition(7, models.StatusDelivered, 0)

	var rejected *RejectedError
	if !errors.As(err, &rejected) {
		t.Fatalf("expected RejectedError, got %v", err)
	}
	if rejected.Message != "order already delivered" {
		t.Errorf("expected server message, got %q", rejected.Message)
	}
}

func TestRejectedErrorFallbackMessage(t *testing.T) {
	err := &RejectedError{}
	if err.Error() == "" {
		t.Error("empty server message must fall back to a generic one")
	}
}
