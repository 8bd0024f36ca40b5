package pulse

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/HerbHall/netwatch/pkg/models"
	"github.com/HerbHall/netwatch/pkg/plugin"
)

// Alert errors.
var (
	ErrInvalidTransition = errors.New("invalid alert status transition")
	ErrAlertNotFound     = errors.New("alert not found")
)

// Alerter runs the per-monitor alert state machine. A degraded result opens
// an alert when none is unresolved, an online result resolves the open one,
// and resolved alerts are never reopened.
type Alerter struct {
	store   *PulseStore
	bus     plugin.EventBus
	logger  *zap.Logger
	metrics *metrics
	now     func() time.Time
}

// NewAlerter creates a new Alerter.
func NewAlerter(store *PulseStore, bus plugin.EventBus, logger *zap.Logger, m *metrics) *Alerter {
	if m == nil {
		m = newMetrics(nil)
	}
	return &Alerter{
		store:   store,
		bus:     bus,
		logger:  logger,
		metrics: m,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Evaluate applies one result to the monitor's alert state and returns the
// alerts it created or resolved. Every change is published on TopicAlert.
func (a *Alerter) Evaluate(ctx context.Context, device *models.Device, mon *models.Monitor, result *models.MonitorResult) ([]models.Alert, error) {
	switch {
	case result.Status.Degraded():
		open, err := a.store.ListActiveAlertsForMonitor(ctx, mon.ID)
		if err != nil {
			return nil, err
		}
		if len(open) > 0 {
			return nil, nil
		}
		alert := models.Alert{
			ID:        uuid.New().String(),
			DeviceID:  mon.DeviceID,
			MonitorID: mon.ID,
			Message:   alertMessage(device, mon, result),
			Severity:  models.SeverityFor(result.Status),
			Status:    models.AlertActive,
			CreatedAt: a.now(),
		}
		if err := a.store.CreateAlert(ctx, &alert); err != nil {
			if errors.Is(err, errUnresolvedAlertExists) {
				return nil, nil
			}
			return nil, err
		}
		a.logger.Info("alert raised",
			zap.String("alert_id", alert.ID),
			zap.String("monitor_id", mon.ID),
			zap.String("device_id", mon.DeviceID),
			zap.String("severity", string(alert.Severity)),
		)
		a.publish(ctx, &alert)
		return []models.Alert{alert}, nil

	case result.Status == models.StatusOnline:
		open, err := a.store.ListActiveAlertsForMonitor(ctx, mon.ID)
		if err != nil {
			return nil, err
		}
		var resolved []models.Alert
		for i := range open {
			al, err := a.resolve(ctx, &open[i])
			if err != nil {
				return resolved, err
			}
			resolved = append(resolved, *al)
		}
		return resolved, nil
	}
	return nil, nil
}

// Acknowledge moves an active alert to acknowledged. Acknowledging an
// acknowledged alert is a no-op; acknowledging a resolved one fails with
// ErrInvalidTransition.
func (a *Alerter) Acknowledge(ctx context.Context, id string) (*models.Alert, error) {
	al, err := a.get(ctx, id)
	if err != nil {
		return nil, err
	}
	switch al.Status {
	case models.AlertAcknowledged:
		return al, nil
	case models.AlertResolved:
		return nil, fmt.Errorf("%w: alert %s is resolved", ErrInvalidTransition, id)
	}

	changed, err := a.store.AcknowledgeAlert(ctx, id, a.now())
	if err != nil {
		return nil, err
	}
	al, err = a.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !changed {
		// Another caller moved the alert between the read and the update.
		if al.Status == models.AlertResolved {
			return nil, fmt.Errorf("%w: alert %s is resolved", ErrInvalidTransition, id)
		}
		return al, nil
	}
	a.logger.Info("alert acknowledged", zap.String("alert_id", id))
	a.publish(ctx, al)
	return al, nil
}

// Resolve moves an unresolved alert to resolved. Resolving twice is a no-op
// and never moves resolved_at.
func (a *Alerter) Resolve(ctx context.Context, id string) (*models.Alert, error) {
	al, err := a.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if al.Status == models.AlertResolved {
		return al, nil
	}
	return a.resolve(ctx, al)
}

// SetStatus applies an externally requested status. Only forward transitions
// are accepted; setting the current status is a no-op.
func (a *Alerter) SetStatus(ctx context.Context, id string, status models.AlertStatus) (*models.Alert, error) {
	switch status {
	case models.AlertAcknowledged:
		return a.Acknowledge(ctx, id)
	case models.AlertResolved:
		return a.Resolve(ctx, id)
	case models.AlertActive:
		al, err := a.get(ctx, id)
		if err != nil {
			return nil, err
		}
		if al.Status != models.AlertActive {
			return nil, fmt.Errorf("%w: %s -> active", ErrInvalidTransition, al.Status)
		}
		return al, nil
	default:
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, status)
	}
}

func (a *Alerter) resolve(ctx context.Context, al *models.Alert) (*models.Alert, error) {
	if _, err := a.store.ResolveAlert(ctx, al.ID, a.now()); err != nil {
		return nil, err
	}
	updated, err := a.get(ctx, al.ID)
	if err != nil {
		return nil, err
	}
	a.logger.Info("alert resolved",
		zap.String("alert_id", al.ID),
		zap.String("monitor_id", al.MonitorID),
	)
	a.publish(ctx, updated)
	return updated, nil
}

func (a *Alerter) get(ctx context.Context, id string) (*models.Alert, error) {
	al, err := a.store.GetAlert(ctx, id)
	if err != nil {
		return nil, err
	}
	if al == nil {
		return nil, ErrAlertNotFound
	}
	return al, nil
}

func (a *Alerter) publish(ctx context.Context, al *models.Alert) {
	a.metrics.alerts.WithLabelValues(string(al.Status)).Inc()
	if a.bus == nil {
		return
	}
	_ = a.bus.Publish(ctx, plugin.Event{
		Topic:     TopicAlert,
		Source:    "pulse",
		Timestamp: a.now(),
		Payload:   *al,
	})
}

func alertMessage(device *models.Device, mon *models.Monitor, result *models.MonitorResult) string {
	name := mon.DeviceID
	if device != nil && device.Name != "" {
		name = device.Name
	}
	msg := fmt.Sprintf("%s: %s check is %s", name, strings.ToUpper(string(mon.Kind)), result.Status)
	if errMsg, ok := result.Detail["error"].(string); ok && errMsg != "" {
		msg += " (" + errMsg + ")"
	}
	return msg
}
