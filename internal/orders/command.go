package orders

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/opsdeck/order-console/internal/circuitbreaker"
	"github.com/opsdeck/order-console/internal/session"
	"github.com/opsdeck/order-console/pkg/models"
	"github.com/sirupsen/logrus"
)

// RejectedError carries the upstream's reason for refusing a transition so
// the operator sees the server message rather than a transport error.
type RejectedError struct {
	Message string
}

func (e *RejectedError) Error() string {
	if e.Message == "" {
		return "transition rejected by order service"
	}
	return e.Message
}

// CommandClient drives order status changes on the upstream platform.
type CommandClient struct {
	baseURL    string
	session    *session.Session
	httpClient *http.Client
	breaker    *circuitbreaker.Breaker
	logger     *logrus.Logger
}

func NewCommandClient(baseURL string, sess *session.Session, breaker *circuitbreaker.Breaker, logger *logrus.Logger) *CommandClient {
	return &CommandClient{
		baseURL: baseURL,
		session: sess,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		breaker: breaker,
		logger:  logger,
	}
}

// Transition asks upstream to move an order to status. deliveryBoyID is only
// meaningful for the ready transition and is zero otherwise. The call is
// deliberately not pre-checked against the order's current status; upstream
// enforcement makes re-sending an already-applied transition safe.
func (c *CommandClient) Transition(orderID int64, status models.OrderStatus, deliveryBoyID int64) error {
	log := c.logger.WithFields(logrus.Fields{
		"order_id": orderID,
		"status":   status,
	})
	log.Info("Sending status transition to order service")

	body, err := json.Marshal(models.TransitionRequest{
		Status:        status,
		DeliveryBoyID: deliveryBoyID,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal transition request: %w", err)
	}

	return c.breaker.Execute(func() error {
		req, err := http.NewRequest("POST", fmt.Sprintf("%s/api/orders/%d/status", c.baseURL, orderID), bytes.NewBuffer(body))
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.session.Token)
		req.Header.Set("X-Request-ID", uuid.New().String())

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("failed to send request to order service: %w", err)
		}
		defer resp.Body.Close()

		var result models.TransitionResponse
		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			return fmt.Errorf("failed to decode order service response: %w", err)
		}

		if resp.StatusCode != http.StatusOK || !result.Success {
			log.WithFields(logrus.Fields{
				"http_status": resp.StatusCode,
				"message":     result.Message,
			}).Warn("Order service rejected transition")
			return &RejectedError{Message: result.Message}
		}

		log.Info("Transition accepted by order service")
		return nil
	})
}
