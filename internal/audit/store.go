package audit

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/opsdeck/order-console/pkg/models"
	"github.com/sirupsen/logrus"
)

// Store is an append-only Postgres log of confirmed status transitions. It is
// optional: a console started without an audit DSN runs with a nil store and
// skips recording.
type Store struct {
	db     *sql.DB
	logger *logrus.Logger
}

func NewStore(dsn string, logger *logrus.Logger) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping audit database: %w", err)
	}

	store := &Store{db: db, logger: logger}
	if err := store.createTables(); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("Audit store connected")
	return store, nil
}

func (s *Store) createTables() error {
	query := `
	CREATE TABLE IF NOT EXISTS order_transitions (
		id SERIAL PRIMARY KEY,
		order_id BIGINT NOT NULL,
		from_status VARCHAR(20) NOT NULL,
		to_status VARCHAR(20) NOT NULL,
		delivery_boy_id BIGINT,
		actor VARCHAR(100) NOT NULL,
		changed_at TIMESTAMP NOT NULL DEFAULT NOW()
	);
	CREATE INDEX IF NOT EXISTS idx_order_transitions_order_id ON order_transitions(order_id);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("failed to create audit tables: %w", err)
	}
	return nil
}

// Record appends one confirmed transition.
func (s *Store) Record(orderID int64, from, to models.OrderStatus, deliveryBoyID int64, actor string) error {
	var boy sql.NullInt64
	if deliveryBoyID != 0 {
		boy = sql.NullInt64{Int64: deliveryBoyID, Valid: true}
	}

	_, err := s.db.Exec(
		`INSERT INTO order_transitions (order_id, from_status, to_status, delivery_boy_id, actor, changed_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		orderID, string(from), string(to), boy, actor, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert transition record: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"order_id": orderID,
		"from":     from,
		"to":       to,
	}).Debug("Transition recorded")
	return nil
}

// Recent returns the latest transitions for an order, newest first.
func (s *Store) Recent(orderID int64, limit int) ([]Entry, error) {
	rows, err := s.db.Query(
		`SELECT order_id, from_status, to_status, COALESCE(delivery_boy_id, 0), actor, changed_at
		 FROM order_transitions WHERE order_id = $1 ORDER BY changed_at DESC LIMIT $2`,
		orderID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query transition records: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var from, to string
		if err := rows.Scan(&e.OrderID, &from, &to, &e.DeliveryBoyID, &e.Actor, &e.ChangedAt); err != nil {
			return nil, fmt.Errorf("failed to scan transition record: %w", err)
		}
		e.From = models.OrderStatus(from)
		e.To = models.OrderStatus(to)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Entry is one recorded transition.
type Entry struct {
	OrderID       int64              `json:"order_id"`
	From          models.OrderStatus `json:"from"`
	To            models.OrderStatus `json:"to"`
	DeliveryBoyID int64              `json:"delivery_boy_id,omitempty"`
	Actor         string             `json:"actor"`
	ChangedAt     time.Time          `json:"changed_at"`
}
