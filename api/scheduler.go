/*
scheduler.go - Periodic low-stock alert scan

PURPOSE:
  Periodically walks every project, collects alert-enabled items whose
  balance is below their threshold, logs them and keeps the latest scan
  for GET /api/alerts.

DESIGN:
  - Runs a background goroutine with a configurable check interval
  - Scans once immediately on Start
  - A failing project is logged and skipped; the rest of the scan proceeds
  - Read-only: never writes to any ledger

CONFIGURATION:
  - CheckInterval: How often to scan (SITE_ALERT_INTERVAL, default 1h)
  - Enabled: false when the interval is zero

USAGE:
  scheduler := api.NewAlertScheduler(svc.Site, svc.Stock, interval, logger)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - stock/ledger.go: LowStockItems
  - handlers.go: ListAlerts
*/
package api

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/warp/site-ledger/config"
	"github.com/warp/site-ledger/site"
	"github.com/warp/site-ledger/stock"
)

// AlertScheduler scans projects for low stock.
type AlertScheduler struct {
	CheckInterval time.Duration
	Enabled       bool

	site   *site.Service
	stock  *stock.Ledger
	logger logrus.FieldLogger
	now    func() time.Time

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex

	latestMu sync.RWMutex
	latest   AlertScanDTO
}

// NewAlertScheduler creates a scheduler. A non-positive interval disables
// the background loop; Scan still works.
func NewAlertScheduler(svc *site.Service, stk *stock.Ledger, interval time.Duration, logger logrus.FieldLogger) *AlertScheduler {
	return &AlertScheduler{
		CheckInterval: interval,
		Enabled:       interval > 0,
		site:          svc,
		stock:         stk,
		logger:        config.OrDiscard(logger).WithField("module", "alerts"),
		now:           time.Now,
		latest:        AlertScanDTO{Alerts: []AlertDTO{}},
	}
}

// Start begins the scheduler.
func (as *AlertScheduler) Start() {
	as.mu.Lock()
	defer as.mu.Unlock()

	if !as.Enabled {
		as.logger.Info("alert scheduler disabled")
		return
	}
	if as.ticker != nil {
		return
	}

	as.ticker = time.NewTicker(as.CheckInterval)
	as.stop = make(chan struct{})
	as.wg.Add(1)
	go as.run()

	as.logger.WithField("interval", as.CheckInterval.String()).Info("alert scheduler started")
}

// Stop stops the scheduler and waits for a running scan to finish.
func (as *AlertScheduler) Stop() {
	as.mu.Lock()
	defer as.mu.Unlock()

	if as.ticker == nil {
		return
	}
	as.ticker.Stop()
	close(as.stop)
	as.wg.Wait()
	as.ticker = nil
	as.logger.Info("alert scheduler stopped")
}

func (as *AlertScheduler) run() {
	defer as.wg.Done()

	as.Scan(context.Background())

	for {
		select {
		case <-as.ticker.C:
			as.Scan(context.Background())
		case <-as.stop:
			return
		}
	}
}

// Scan checks every project once and stores the result as the latest scan.
func (as *AlertScheduler) Scan(ctx context.Context) AlertScanDTO {
	scan := AlertScanDTO{
		ScannedAt: as.now().UTC().Format(time.RFC3339),
		Alerts:    []AlertDTO{},
	}

	projects, err := as.site.Projects(ctx)
	if err != nil {
		as.logger.WithError(err).Error("alert scan: listing projects failed")
		return as.Latest()
	}

	lowCount := 0
	for _, p := range projects {
		items, err := as.stock.LowStockItems(ctx, p.ID)
		if err != nil {
			as.logger.WithError(err).WithField("project_id", p.ID).Error("alert scan: project skipped")
			continue
		}
		if len(items) == 0 {
			continue
		}
		lowCount += len(items)
		scan.Alerts = append(scan.Alerts, AlertDTO{
			ProjectID: p.ID,
			Project:   p.Name,
			Items:     toStockItemDTOs(items),
		})
		for _, item := range items {
			as.logger.WithFields(logrus.Fields{
				"project_id": p.ID,
				"item_id":    item.ID,
				"item":       item.Name,
				"balance":    item.Balance.String(),
				"threshold":  item.AlertThreshold.String(),
			}).Warn("low stock")
		}
	}

	as.latestMu.Lock()
	as.latest = scan
	as.latestMu.Unlock()

	as.logger.WithFields(logrus.Fields{
		"projects": len(projects),
		"low":      lowCount,
	}).Debug("alert scan completed")
	return scan
}

// Latest returns the result of the most recent scan.
func (as *AlertScheduler) Latest() AlertScanDTO {
	as.latestMu.RLock()
	defer as.latestMu.RUnlock()
	return as.latest
}
