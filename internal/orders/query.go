package orders

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/opsdeck/order-console/internal/circuitbreaker"
	"github.com/opsdeck/order-console/internal/session"
	"github.com/opsdeck/order-console/pkg/models"
	"github.com/sirupsen/logrus"
)

// SnapshotLimit bounds the one-time bulk fetch.
const SnapshotLimit = 100

// QueryClient reads orders from the upstream platform.
type QueryClient struct {
	baseURL    string
	session    *session.Session
	httpClient *http.Client
	breaker    *circuitbreaker.Breaker
	logger     *logrus.Logger
}

func NewQueryClient(baseURL string, sess *session.Session, breaker *circuitbreaker.Breaker, logger *logrus.Logger) *QueryClient {
	return &QueryClient{
		baseURL: baseURL,
		session: sess,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		breaker: breaker,
		logger:  logger,
	}
}

// Snapshot fetches the actionable orders: pending and ready only, oldest
// first, bounded to SnapshotLimit.
func (c *QueryClient) Snapshot() ([]models.Order, error) {
	c.logger.Info("Fetching order snapshot from upstream")

	params := url.Values{}
	params.Set("status", string(models.StatusPending)+","+string(models.StatusReady))
	params.Set("sort", "created")
	params.Set("dir", "asc")
	params.Set("page", "1")
	params.Set("limit", fmt.Sprintf("%d", SnapshotLimit))

	var snapshot []models.Order
	err := c.breaker.Execute(func() error {
		req, err := http.NewRequest("GET", c.baseURL+"/api/orders?"+params.Encode(), nil)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+c.session.Token)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("failed to send request to order service: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("order service returned error status: %d", resp.StatusCode)
		}

		var response models.OrderListResponse
		if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
			return fmt.Errorf("failed to decode order service response: %w", err)
		}
		if !response.Success {
			return fmt.Errorf("order service rejected snapshot request: %s", response.Message)
		}

		snapshot = response.Orders
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.logger.WithField("count", len(snapshot)).Info("Retrieved order snapshot")
	return snapshot, nil
}
