package reference

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/opsdeck/order-console/internal/session"
	"github.com/opsdeck/order-console/pkg/models"
	"github.com/sirupsen/logrus"
)

// Client fetches the read-only reference tables from the upstream platform.
type Client struct {
	baseURL    string
	session    *session.Session
	httpClient *http.Client
	logger     *logrus.Logger
}

func NewClient(baseURL string, sess *session.Session, logger *logrus.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		session: sess,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: logger,
	}
}

func (c *Client) Cities() ([]models.City, error) {
	var cities []models.City
	if err := c.get("/api/cities", &cities); err != nil {
		return nil, fmt.Errorf("failed to fetch cities: %w", err)
	}
	return cities, nil
}

func (c *Client) Zones() ([]models.Zone, error) {
	var zones []models.Zone
	if err := c.get("/api/zones", &zones); err != nil {
		return nil, fmt.Errorf("failed to fetch zones: %w", err)
	}
	return zones, nil
}

func (c *Client) Products() ([]models.Product, error) {
	var products []models.Product
	if err := c.get("/api/products", &products); err != nil {
		return nil, fmt.Errorf("failed to fetch products: %w", err)
	}
	return products, nil
}

// DeliveryBoys returns only non-deleted records; the upstream filters
// server-side and a second check happens before any assignment.
func (c *Client) DeliveryBoys() ([]models.DeliveryBoy, error) {
	var boys []models.DeliveryBoy
	if err := c.get("/api/delivery-boys?deleted=false", &boys); err != nil {
		return nil, fmt.Errorf("failed to fetch delivery boys: %w", err)
	}
	return boys, nil
}

func (c *Client) get(path string, out interface{}) error {
	req, err := http.NewRequest("GET", c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.session.Token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("upstream returned error status: %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
