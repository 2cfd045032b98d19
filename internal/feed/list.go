package feed

import (
	"sort"
	"strconv"
	"strings"

	"github.com/opsdeck/order-console/pkg/models"
)

// UnknownName is shown for any reference id the lookup tables cannot resolve,
// including while the tables are still loading.
const UnknownName = "Unknown"

// Resolver resolves reference ids to display names. Implemented by
// lookup.Tables; the feed only ever reads.
type Resolver interface {
	CityName(id int64) string
	ZoneName(id int64) string
	ProductName(sku string) string
}

// Sort keys accepted by ListQuery.
const (
	SortByCreated  = "created"
	SortByID       = "id"
	SortByCustomer = "customer"
	SortByTotal    = "total"
)

// ListQuery selects, orders and windows the displayed rows.
type ListQuery struct {
	Search   string
	SortKey  string
	Desc     bool
	Page     int
	PageSize int
}

// Row is one displayed order with its reference names resolved.
type Row struct {
	models.Order
	CityName  string   `json:"city_name"`
	ZoneName  string   `json:"zone_name"`
	ItemNames []string `json:"item_names"`
}

// List derives the displayed page from the working set: terminal statuses are
// excluded (defensive, they should already be absent), the search predicate is
// a case-insensitive substring match over id, customer name, phone and status,
// and the sort is stable so equal keys keep their relative order. It returns
// the page window plus the total row count after filtering.
func (r *Reconciler) List(q ListQuery, names Resolver) ([]Row, int) {
	r.mu.RLock()
	orders := make([]models.Order, 0, len(r.orders))
	for _, o := range r.orders {
		if o.Status.Terminal() {
			continue
		}
		if !matches(o, q.Search) {
			continue
		}
		orders = append(orders, o)
	}
	r.mu.RUnlock()

	// Map iteration order is random; fix a base order before the stable
	// sort so equal keys still come out deterministic.
	sort.Slice(orders, func(i, j int) bool { return orders[i].ID < orders[j].ID })
	sortOrders(orders, q.SortKey, q.Desc)

	total := len(orders)
	orders = pageWindow(orders, q.Page, q.PageSize)

	rows := make([]Row, 0, len(orders))
	for _, o := range orders {
		rows = append(rows, resolveRow(o, names))
	}
	return rows, total
}

func matches(o models.Order, search string) bool {
	if search == "" {
		return true
	}
	needle := strings.ToLower(search)
	for _, field := range []string{
		strconv.FormatInt(o.ID, 10),
		o.CustomerName,
		o.Phone,
		string(o.Status),
	} {
		if strings.Contains(strings.ToLower(field), needle) {
			return true
		}
	}
	return false
}

func sortOrders(orders []models.Order, key string, desc bool) {
	var less func(a, b models.Order) bool
	switch key {
	case SortByID:
		less = func(a, b models.Order) bool { return a.ID < b.ID }
	case SortByCustomer:
		less = func(a, b models.Order) bool {
			return strings.ToLower(a.CustomerName) < strings.ToLower(b.CustomerName)
		}
	case SortByTotal:
		less = func(a, b models.Order) bool { return a.TotalAmount < b.TotalAmount }
	default:
		less = func(a, b models.Order) bool { return a.CreatedAt.Before(b.CreatedAt) }
	}

	sort.SliceStable(orders, func(i, j int) bool {
		if desc {
			return less(orders[j], orders[i])
		}
		return less(orders[i], orders[j])
	})
}

func pageWindow(orders []models.Order, page, size int) []models.Order {
	if size <= 0 {
		return orders
	}
	if page < 1 {
		page = 1
	}
	start := (page - 1) * size
	if start >= len(orders) {
		return nil
	}
	end := start + size
	if end > len(orders) {
		end = len(orders)
	}
	return orders[start:end]
}

func resolveRow(o models.Order, names Resolver) Row {
	row := Row{
		Order:     o,
		CityName:  UnknownName,
		ZoneName:  UnknownName,
		ItemNames: make([]string, 0, len(o.Items)),
	}
	if names == nil {
		for range o.Items {
			row.ItemNames = append(row.ItemNames, UnknownName)
		}
		return row
	}
	row.CityName = names.CityName(o.CityID)
	row.ZoneName = names.ZoneName(o.ZoneID)
	for _, item := range o.Items {
		row.ItemNames = append(row.ItemNames, names.ProductName(item.ProductSKU))
	}
	return row
}
