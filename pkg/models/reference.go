package models

// Reference records are loaded once at dashboard start and treated as
// read-only for the lifetime of the view.

type City struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type Zone struct {
	ID     int64  `json:"id"`
	CityID int64  `json:"city_id"`
	Name   string `json:"name"`
}

type Product struct {
	SKU   string  `json:"sku"`
	Name  string  `json:"name"`
	Price float64 `json:"price"`
}

type DeliveryBoy struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Deleted bool   `json:"deleted"`
}
