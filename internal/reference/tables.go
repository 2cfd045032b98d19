package reference

import (
	"fmt"
	"sync"

	"github.com/opsdeck/order-console/pkg/models"
	"github.com/sirupsen/logrus"
)

// Fetcher is what Tables needs from the reference client.
type Fetcher interface {
	Cities() ([]models.City, error)
	Zones() ([]models.Zone, error)
	Products() ([]models.Product, error)
	DeliveryBoys() ([]models.DeliveryBoy, error)
}

const unknownName = "Unknown"

// Tables holds the reference lookups for the lifetime of the dashboard. The
// four tables are loaded once at startup; until Load succeeds every name
// accessor answers "Unknown" so the order list can render without blocking.
type Tables struct {
	mu       sync.RWMutex
	resolved bool
	cities   map[int64]string
	zones    map[int64]string
	products map[string]string
	cityRecs []models.City
	zoneRecs []models.Zone
	prodRecs []models.Product
	boys     []models.DeliveryBoy
	logger   *logrus.Logger
}

func NewTables(logger *logrus.Logger) *Tables {
	return &Tables{logger: logger}
}

// Load fetches all four tables concurrently and applies them atomically: a
// failure on any fetch leaves the tables unresolved rather than partially
// filled.
func (t *Tables) Load(f Fetcher) error {
	var (
		wg       sync.WaitGroup
		cities   []models.City
		zones    []models.Zone
		products []models.Product
		boys     []models.DeliveryBoy
		errs     = make([]error, 4)
	)

	wg.Add(4)
	go func() { defer wg.Done(); cities, errs[0] = f.Cities() }()
	go func() { defer wg.Done(); zones, errs[1] = f.Zones() }()
	go func() { defer wg.Done(); products, errs[2] = f.Products() }()
	go func() { defer wg.Done(); boys, errs[3] = f.DeliveryBoys() }()
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return fmt.Errorf("failed to load reference tables: %w", err)
		}
	}

	cityNames := make(map[int64]string, len(cities))
	for _, c := range cities {
		cityNames[c.ID] = c.Name
	}
	zoneNames := make(map[int64]string, len(zones))
	for _, z := range zones {
		zoneNames[z.ID] = z.Name
	}
	productNames := make(map[string]string, len(products))
	for _, p := range products {
		productNames[p.SKU] = p.Name
	}

	active := make([]models.DeliveryBoy, 0, len(boys))
	for _, b := range boys {
		if !b.Deleted {
			active = append(active, b)
		}
	}

	t.mu.Lock()
	t.cities = cityNames
	t.zones = zoneNames
	t.products = productNames
	t.cityRecs = cities
	t.zoneRecs = zones
	t.prodRecs = products
	t.boys = active
	t.resolved = true
	t.mu.Unlock()

	t.logger.WithFields(logrus.Fields{
		"cities":        len(cityNames),
		"zones":         len(zoneNames),
		"products":      len(productNames),
		"delivery_boys": len(active),
	}).Info("Reference tables loaded")

	return nil
}

// Resolved reports whether Load has completed successfully.
func (t *Tables) Resolved() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.resolved
}

func (t *Tables) CityName(id int64) string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if name, ok := t.cities[id]; ok {
		return name
	}
	return unknownName
}

func (t *Tables) ZoneName(id int64) string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if name, ok := t.zones[id]; ok {
		return name
	}
	return unknownName
}

func (t *Tables) ProductName(sku string) string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if name, ok := t.products[sku]; ok {
		return name
	}
	return unknownName
}

func (t *Tables) Cities() []models.City {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]models.City, len(t.cityRecs))
	copy(out, t.cityRecs)
	return out
}

func (t *Tables) Zones() []models.Zone {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]models.Zone, len(t.zoneRecs))
	copy(out, t.zoneRecs)
	return out
}

func (t *Tables) Products() []models.Product {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]models.Product, len(t.prodRecs))
	copy(out, t.prodRecs)
	return out
}

// DeliveryBoys returns the non-deleted records available for assignment.
func (t *Tables) DeliveryBoys() []models.DeliveryBoy {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]models.DeliveryBoy, len(t.boys))
	copy(out, t.boys)
	return out
}

// DeliveryBoy looks up one assignable record by id.
func (t *Tables) DeliveryBoy(id int64) (models.DeliveryBoy, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, b := range t.boys {
		if b.ID == id {
			return b, true
		}
	}
	return models.DeliveryBoy{}, false
}
