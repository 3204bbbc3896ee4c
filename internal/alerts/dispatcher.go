package alerts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/david/place-sync/internal/ingest"
	"github.com/david/place-sync/internal/models"
	"github.com/sirupsen/logrus"
)

// AlertSource loads alerts and persists their notification counters.
type AlertSource interface {
	ListActiveAlerts(ctx context.Context) ([]models.Alert, error)
	RecordNotifications(ctx context.Context, alerts []*models.Alert) error
}

// Notifier delivers the tenders matched by one alert.
type Notifier interface {
	Notify(ctx context.Context, alert models.Alert, tenders []models.Tender) error
}

// Dispatcher evaluates active alerts against the tenders stored by a sync run
// and notifies the matches once the run completes. Each tender is evaluated
// at most once per run, however many times the feed repeats it.
type Dispatcher struct {
	Alerts   AlertSource
	Notifier Notifier
	Logger   *logrus.Logger
	// OnlyNew skips tenders that already existed before the run.
	OnlyNew bool
	Now     func() time.Time

	alerts  []models.Alert
	seen    map[string]struct{}
	matches map[int][]models.Tender
}

var _ ingest.RunHook = (*Dispatcher)(nil)

func NewDispatcher(source AlertSource, notifier Notifier, logger *logrus.Logger) *Dispatcher {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Dispatcher{
		Alerts:   source,
		Notifier: notifier,
		Logger:   logger,
		Now:      time.Now,
	}
}

// BeforeRun loads the active alerts and resets the per-run state.
func (d *Dispatcher) BeforeRun(ctx context.Context, runID string) error {
	alerts, err := d.Alerts.ListActiveAlerts(ctx)
	if err != nil {
		return fmt.Errorf("load alerts: %w", err)
	}
	d.alerts = alerts
	d.seen = make(map[string]struct{})
	d.matches = make(map[int][]models.Tender)
	d.Logger.WithFields(logrus.Fields{"run_id": runID, "alerts": len(alerts)}).Debug("Alerts loaded")
	return nil
}

// OnTender evaluates t against every loaded alert.
func (d *Dispatcher) OnTender(t *models.Tender, created bool) {
	if t == nil || len(d.alerts) == 0 || (!created && d.OnlyNew) {
		return
	}
	if _, ok := d.seen[t.ExternalID()]; ok {
		return
	}
	d.seen[t.ExternalID()] = struct{}{}

	for i, a := range d.alerts {
		if !Matches(a, t.TenderData) {
			continue
		}
		match := *t
		match.RawXML = ""
		d.matches[i] = append(d.matches[i], match)
	}
}

// AfterRun notifies every alert with matches and records the notification.
func (d *Dispatcher) AfterRun(ctx context.Context, runID string, stats ingest.Stats) error {
	var notified []*models.Alert
	var errs []error

	for i := range d.alerts {
		tenders := d.matches[i]
		if len(tenders) == 0 {
			continue
		}
		a := &d.alerts[i]
		log := d.Logger.WithFields(logrus.Fields{
			"run_id":  runID,
			"alert":   a.ID.String(),
			"matches": len(tenders),
		})
		if err := d.Notifier.Notify(ctx, *a, tenders); err != nil {
			log.WithError(err).Warn("Alert notification failed")
			errs = append(errs, err)
			continue
		}
		a.RecordNotification(d.Now())
		notified = append(notified, a)
		log.Info("Alert notified")
	}

	if err := d.Alerts.RecordNotifications(ctx, notified); err != nil {
		errs = append(errs, fmt.Errorf("record notifications: %w", err))
	}
	return errors.Join(errs...)
}

// Matched returns the tenders matched by alert index i in the current run.
func (d *Dispatcher) Matched(i int) []models.Tender {
	return d.matches[i]
}
