package dashboard

import (
	"context"
	"sync"

	"github.com/opsdeck/order-console/internal/feed"
	"github.com/opsdeck/order-console/internal/reference"
	"github.com/opsdeck/order-console/internal/stream"
	"github.com/opsdeck/order-console/pkg/models"
	"github.com/sirupsen/logrus"
)

// Snapshotter is the order query client as the dashboard sees it.
type Snapshotter interface {
	Snapshot() ([]models.Order, error)
}

// Notifier matches notify.Notifier; declared here so tests can stub it.
type Notifier interface {
	NewOrder(o models.Order)
	OrderUpdated(o models.Order)
	FeedDegraded(reason string)
}

// Dashboard is the operations view shell: it owns the feed reconciler and
// lookup tables, wires the live source into the reconciler, and scopes the
// new-order notification to pushes that actually introduced an order.
type Dashboard struct {
	Feed   *feed.Reconciler
	Tables *reference.Tables

	query    Snapshotter
	refs     reference.Fetcher
	source   stream.Source
	notifier Notifier
	logger   *logrus.Logger

	mu       sync.RWMutex
	loadErr  error
	degraded bool
}

func New(query Snapshotter, refs reference.Fetcher, source stream.Source, notifier Notifier, logger *logrus.Logger) *Dashboard {
	return &Dashboard{
		Feed:     feed.NewReconciler(logger),
		Tables:   reference.NewTables(logger),
		query:    query,
		refs:     refs,
		source:   source,
		notifier: notifier,
		logger:   logger,
	}
}

// Load fetches the reference tables and the order snapshot concurrently;
// neither depends on the other. A snapshot failure leaves the working set
// empty (no partial application) and is surfaced to the operator as the load
// error; the list then renders "Unknown" names until the tables resolve.
func (d *Dashboard) Load() error {
	var (
		wg          sync.WaitGroup
		snapshot    []models.Order
		snapshotErr error
		tablesErr   error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		tablesErr = d.Tables.Load(d.refs)
	}()
	go func() {
		defer wg.Done()
		snapshot, snapshotErr = d.query.Snapshot()
	}()
	wg.Wait()

	if tablesErr != nil {
		// Not fatal: names fall back to "Unknown".
		d.logger.WithError(tablesErr).Error("Failed to load reference tables")
	}

	if snapshotErr != nil {
		d.setLoadErr(snapshotErr)
		return snapshotErr
	}

	d.Feed.ApplySnapshot(snapshot)
	d.setLoadErr(nil)
	return tablesErr
}

// Resync re-fetches the snapshot after a live-channel reconnect. Events
// missed during the outage are never replayed, so this is the only way the
// view catches up.
func (d *Dashboard) Resync() {
	snapshot, err := d.query.Snapshot()
	if err != nil {
		d.logger.WithError(err).Error("Failed to resync snapshot after reconnect")
		d.setLoadErr(err)
		return
	}
	d.Feed.ApplySnapshot(snapshot)
	d.setLoadErr(nil)
	d.setDegraded(false)
	d.logger.Info("Working set resynced after reconnect")
}

// Degrade records that the live channel has exhausted its reconnect ceiling
// and tells the operator.
func (d *Dashboard) Degrade(err error) {
	d.setDegraded(true)
	d.notifier.FeedDegraded(err.Error())
}

// Run applies live events until the source channel closes. The new-order
// notification fires only for pushes that introduced a previously unseen,
// non-terminal order; updates to known orders and terminal removals stay
// silent apart from the badge re-render.
func (d *Dashboard) Run(ctx context.Context) {
	for {
		select {
		case event, ok := <-d.source.Events():
			if !ok {
				d.logger.Info("Live order source closed")
				return
			}
			d.apply(event.Order)
		case <-ctx.Done():
			return
		}
	}
}

func (d *Dashboard) apply(o models.Order) {
	result := d.Feed.ApplyPush(o)
	switch {
	case result.New:
		d.notifier.NewOrder(o)
	case result.Updated:
		d.notifier.OrderUpdated(o)
	default:
		// Removals and terminal pushes for unknown ids are silent; the next
		// list render drops the row if it was showing.
	}
}

// Healthy reports whether the last load or resync succeeded and the live
// channel is not in degraded mode.
func (d *Dashboard) Healthy() (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.loadErr == nil && !d.degraded, d.loadErr
}

func (d *Dashboard) setLoadErr(err error) {
	d.mu.Lock()
	d.loadErr = err
	d.mu.Unlock()
}

func (d *Dashboard) setDegraded(v bool) {
	d.mu.Lock()
	d.degraded = v
	d.mu.Unlock()
}
