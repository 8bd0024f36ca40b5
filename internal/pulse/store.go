package pulse

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/HerbHall/netwatch/pkg/models"
	"github.com/HerbHall/netwatch/pkg/plugin"
)

// errUnresolvedAlertExists is returned by CreateAlert when the monitor already
// has an active or acknowledged alert.
var errUnresolvedAlertExists = errors.New("monitor already has an unresolved alert")

// PulseStore provides database access for the monitoring engine.
type PulseStore struct {
	db *sql.DB
}

// NewPulseStore creates a new PulseStore backed by the given database.
func NewPulseStore(db *sql.DB) *PulseStore {
	return &PulseStore{db: db}
}

// AlertFilters controls which alerts are returned by ListAlerts.
type AlertFilters struct {
	DeviceID   string
	MonitorID  string
	Status     models.AlertStatus
	Unresolved bool // Active or acknowledged only; ignored when Status is set.
	Limit      int
}

// MonitorSnapshot pairs a monitor with its most recent result, if any.
type MonitorSnapshot struct {
	MonitorID string
	DeviceID  string
	Kind      models.MonitorKind
	Latest    *models.MonitorResult
}

// -- Monitors --

const monitorColumns = `id, device_id, kind, config, enabled, interval_seconds, created_at, updated_at`

// ListMonitors returns every monitor ordered by creation time.
func (s *PulseStore) ListMonitors(ctx context.Context) ([]models.Monitor, error) {
	return s.queryMonitors(ctx,
		`SELECT `+monitorColumns+` FROM monitors ORDER BY created_at ASC, id ASC`)
}

// ListMonitorsForDevice returns the monitors belonging to one device.
func (s *PulseStore) ListMonitorsForDevice(ctx context.Context, deviceID string) ([]models.Monitor, error) {
	return s.queryMonitors(ctx,
		`SELECT `+monitorColumns+` FROM monitors WHERE device_id = ? ORDER BY created_at ASC, id ASC`,
		deviceID)
}

// GetMonitor returns a monitor by ID. Returns nil, nil if not found.
func (s *PulseStore) GetMonitor(ctx context.Context, id string) (*models.Monitor, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+monitorColumns+` FROM monitors WHERE id = ?`, id)
	m, err := scanMonitor(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get monitor %q: %w", id, err)
	}
	return m, nil
}

// InsertMonitor inserts a new monitor. The owning device must exist.
func (s *PulseStore) InsertMonitor(ctx context.Context, m *models.Monitor) error {
	cfg, err := json.Marshal(m.Config)
	if err != nil {
		return fmt.Errorf("marshal monitor config: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO monitors (id, device_id, kind, config, enabled, interval_seconds, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.DeviceID, string(m.Kind), string(cfg), m.Enabled, m.IntervalSeconds,
		m.CreatedAt, m.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert monitor: %w", err)
	}
	return nil
}

// UpdateMonitor replaces a monitor's mutable fields. Returns false if the
// monitor does not exist.
func (s *PulseStore) UpdateMonitor(ctx context.Context, m *models.Monitor) (bool, error) {
	cfg, err := json.Marshal(m.Config)
	if err != nil {
		return false, fmt.Errorf("marshal monitor config: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE monitors SET kind = ?, config = ?, enabled = ?, interval_seconds = ?, updated_at = ?
		WHERE id = ?`,
		string(m.Kind), string(cfg), m.Enabled, m.IntervalSeconds, m.UpdatedAt, m.ID,
	)
	if err != nil {
		return false, fmt.Errorf("update monitor: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// DeleteMonitor deletes a monitor. Results and alerts cascade.
func (s *PulseStore) DeleteMonitor(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM monitors WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete monitor: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *PulseStore) queryMonitors(ctx context.Context, query string, args ...any) ([]models.Monitor, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list monitors: %w", err)
	}
	defer rows.Close()

	monitors := []models.Monitor{}
	for rows.Next() {
		m, err := scanMonitor(rows)
		if err != nil {
			return nil, fmt.Errorf("scan monitor: %w", err)
		}
		monitors = append(monitors, *m)
	}
	return monitors, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMonitor(row scanner) (*models.Monitor, error) {
	var m models.Monitor
	var kind, cfg string
	if err := row.Scan(&m.ID, &m.DeviceID, &kind, &cfg, &m.Enabled, &m.IntervalSeconds,
		&m.CreatedAt, &m.UpdatedAt); err != nil {
		return nil, err
	}
	m.Kind = models.MonitorKind(kind)
	c, err := models.DecodeMonitorConfig(m.Kind, json.RawMessage(cfg))
	if err != nil {
		return nil, fmt.Errorf("decode config of monitor %q: %w", m.ID, err)
	}
	m.Config = c
	return &m, nil
}

// -- Results --

// AppendResult stores a check outcome and sets its ID.
func (s *PulseStore) AppendResult(ctx context.Context, r *models.MonitorResult) error {
	var detail sql.NullString
	if len(r.Detail) > 0 {
		b, err := json.Marshal(r.Detail)
		if err != nil {
			return fmt.Errorf("marshal result detail: %w", err)
		}
		detail = sql.NullString{String: string(b), Valid: true}
	}
	var rt sql.NullInt64
	if r.ResponseTimeMs != nil {
		rt = sql.NullInt64{Int64: *r.ResponseTimeMs, Valid: true}
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO monitor_results (monitor_id, timestamp, status, response_time_ms, detail)
		VALUES (?, ?, ?, ?, ?)`,
		r.MonitorID, r.Timestamp, string(r.Status), rt, detail,
	)
	if err != nil {
		return fmt.Errorf("append result: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("append result id: %w", err)
	}
	r.ID = id
	return nil
}

const resultColumns = `id, monitor_id, timestamp, status, response_time_ms, detail`

// GetLatestResult returns the most recent result for a monitor.
// Returns nil, nil if the monitor has no results.
func (s *PulseStore) GetLatestResult(ctx context.Context, monitorID string) (*models.MonitorResult, error) {
	results, err := s.ListResults(ctx, monitorID, 1)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, nil
	}
	return &results[0], nil
}

// ListResults returns the most recent results for a monitor, newest first.
func (s *PulseStore) ListResults(ctx context.Context, monitorID string, limit int) ([]models.MonitorResult, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+resultColumns+` FROM monitor_results WHERE monitor_id = ? ORDER BY id DESC LIMIT ?`,
		monitorID, limit)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	defer rows.Close()

	results := []models.MonitorResult{}
	for rows.Next() {
		var r models.MonitorResult
		var status string
		var rt sql.NullInt64
		var detail sql.NullString
		if err := rows.Scan(&r.ID, &r.MonitorID, &r.Timestamp, &status, &rt, &detail); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		fillResult(&r, status, rt, detail)
		results = append(results, r)
	}
	return results, rows.Err()
}

// LatestResults returns every monitor of a device with its latest result.
// An empty deviceID returns all monitors.
func (s *PulseStore) LatestResults(ctx context.Context, deviceID string) ([]MonitorSnapshot, error) {
	query := `
		SELECT m.id, m.device_id, m.kind,
		       r.id, r.timestamp, r.status, r.response_time_ms, r.detail
		FROM monitors m
		LEFT JOIN monitor_results r
		  ON r.id = (SELECT MAX(id) FROM monitor_results WHERE monitor_id = m.id)`
	var args []any
	if deviceID != "" {
		query += ` WHERE m.device_id = ?`
		args = append(args, deviceID)
	}
	query += ` ORDER BY m.created_at ASC, m.id ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("latest results: %w", err)
	}
	defer rows.Close()

	snaps := []MonitorSnapshot{}
	for rows.Next() {
		var snap MonitorSnapshot
		var kind string
		var rid sql.NullInt64
		var ts sql.NullTime
		var status sql.NullString
		var rt sql.NullInt64
		var detail sql.NullString
		if err := rows.Scan(&snap.MonitorID, &snap.DeviceID, &kind,
			&rid, &ts, &status, &rt, &detail); err != nil {
			return nil, fmt.Errorf("scan latest result: %w", err)
		}
		snap.Kind = models.MonitorKind(kind)
		if rid.Valid {
			r := &models.MonitorResult{ID: rid.Int64, MonitorID: snap.MonitorID, Timestamp: ts.Time}
			fillResult(r, status.String, rt, detail)
			snap.Latest = r
		}
		snaps = append(snaps, snap)
	}
	return snaps, rows.Err()
}

func fillResult(r *models.MonitorResult, status string, rt sql.NullInt64, detail sql.NullString) {
	r.Status = models.Status(status)
	if rt.Valid {
		v := rt.Int64
		r.ResponseTimeMs = &v
	}
	if detail.Valid && detail.String != "" {
		_ = json.Unmarshal([]byte(detail.String), &r.Detail)
	}
}

// -- Alerts --

const alertColumns = `id, device_id, monitor_id, message, severity, status, created_at, acknowledged_at, resolved_at`

// CreateAlert inserts a new active alert. Returns errUnresolvedAlertExists if
// the monitor already has an unresolved alert.
func (s *PulseStore) CreateAlert(ctx context.Context, a *models.Alert) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO alerts (id, device_id, monitor_id, message, severity, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.DeviceID, a.MonitorID, a.Message, string(a.Severity), string(a.Status), a.CreatedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return errUnresolvedAlertExists
		}
		return fmt.Errorf("create alert: %w", err)
	}
	return nil
}

// GetAlert returns an alert by ID. Returns nil, nil if not found.
func (s *PulseStore) GetAlert(ctx context.Context, id string) (*models.Alert, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+alertColumns+` FROM alerts WHERE id = ?`, id)
	a, err := scanAlert(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get alert %q: %w", id, err)
	}
	return a, nil
}

// ListActiveAlertsForMonitor returns the unresolved alerts of a monitor.
func (s *PulseStore) ListActiveAlertsForMonitor(ctx context.Context, monitorID string) ([]models.Alert, error) {
	return s.ListAlerts(ctx, AlertFilters{MonitorID: monitorID, Unresolved: true})
}

// ListAlerts returns alerts matching the filters, newest first.
func (s *PulseStore) ListAlerts(ctx context.Context, f AlertFilters) ([]models.Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM alerts WHERE 1=1`
	var args []any
	if f.DeviceID != "" {
		query += ` AND device_id = ?`
		args = append(args, f.DeviceID)
	}
	if f.MonitorID != "" {
		query += ` AND monitor_id = ?`
		args = append(args, f.MonitorID)
	}
	switch {
	case f.Status != "":
		query += ` AND status = ?`
		args = append(args, string(f.Status))
	case f.Unresolved:
		query += ` AND status IN ('active', 'acknowledged')`
	}
	query += ` ORDER BY created_at DESC, id ASC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	defer rows.Close()

	alerts := []models.Alert{}
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		alerts = append(alerts, *a)
	}
	return alerts, rows.Err()
}

// AcknowledgeAlert moves an active alert to acknowledged. acknowledged_at is
// only ever set once. Returns false if no active alert matched.
func (s *PulseStore) AcknowledgeAlert(ctx context.Context, id string, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE alerts SET status = 'acknowledged', acknowledged_at = COALESCE(acknowledged_at, ?)
		WHERE id = ? AND status = 'active'`,
		at, id,
	)
	if err != nil {
		return false, fmt.Errorf("acknowledge alert: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// ResolveAlert moves an unresolved alert to resolved. resolved_at is only
// ever set once. Returns false if no unresolved alert matched.
func (s *PulseStore) ResolveAlert(ctx context.Context, id string, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE alerts SET status = 'resolved', resolved_at = COALESCE(resolved_at, ?)
		WHERE id = ? AND status IN ('active', 'acknowledged')`,
		at, id,
	)
	if err != nil {
		return false, fmt.Errorf("resolve alert: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func scanAlert(row scanner) (*models.Alert, error) {
	var a models.Alert
	var severity, status string
	var ackAt, resAt sql.NullTime
	if err := row.Scan(&a.ID, &a.DeviceID, &a.MonitorID, &a.Message, &severity, &status,
		&a.CreatedAt, &ackAt, &resAt); err != nil {
		return nil, err
	}
	a.Severity = models.Severity(severity)
	a.Status = models.AlertStatus(status)
	if ackAt.Valid {
		t := ackAt.Time
		a.AcknowledgedAt = &t
	}
	if resAt.Valid {
		t := resAt.Time
		a.ResolvedAt = &t
	}
	return &a, nil
}

// migrations returns the database migrations for the pulse module.
func migrations() []plugin.Migration {
	return []plugin.Migration{
		{
			Version:     1,
			Description: "create devices, monitors, monitor_results and alerts tables",
			Up: func(tx *sql.Tx) error {
				stmts := []string{
					`CREATE TABLE devices (
						id         TEXT PRIMARY KEY,
						name       TEXT NOT NULL,
						address    TEXT NOT NULL,
						category   TEXT NOT NULL DEFAULT 'other',
						created_at DATETIME NOT NULL,
						updated_at DATETIME NOT NULL
					)`,
					`CREATE TABLE monitors (
						id               TEXT PRIMARY KEY,
						device_id        TEXT NOT NULL REFERENCES devices(id) ON DELETE CASCADE,
						kind             TEXT NOT NULL,
						config           TEXT NOT NULL DEFAULT '{}',
						enabled          INTEGER NOT NULL DEFAULT 1,
						interval_seconds INTEGER NOT NULL DEFAULT 60,
						created_at       DATETIME NOT NULL,
						updated_at       DATETIME NOT NULL
					)`,
					`CREATE INDEX idx_monitors_device ON monitors(device_id)`,
					`CREATE TABLE monitor_results (
						id               INTEGER PRIMARY KEY AUTOINCREMENT,
						monitor_id       TEXT NOT NULL REFERENCES monitors(id) ON DELETE CASCADE,
						timestamp        DATETIME NOT NULL,
						status           TEXT NOT NULL,
						response_time_ms INTEGER,
						detail           TEXT
					)`,
					`CREATE INDEX idx_monitor_results_monitor ON monitor_results(monitor_id, id DESC)`,
					`CREATE TABLE alerts (
						id              TEXT PRIMARY KEY,
						device_id       TEXT NOT NULL REFERENCES devices(id) ON DELETE CASCADE,
						monitor_id      TEXT NOT NULL REFERENCES monitors(id) ON DELETE CASCADE,
						message         TEXT NOT NULL,
						severity        TEXT NOT NULL,
						status          TEXT NOT NULL DEFAULT 'active',
						created_at      DATETIME NOT NULL,
						acknowledged_at DATETIME,
						resolved_at     DATETIME
					)`,
					`CREATE INDEX idx_alerts_device ON alerts(device_id)`,
					`CREATE INDEX idx_alerts_status ON alerts(status)`,
					`CREATE UNIQUE INDEX idx_alerts_one_unresolved ON alerts(monitor_id)
						WHERE status IN ('active', 'acknowledged')`,
				}
				for _, stmt := range stmts {
					if _, err := tx.Exec(stmt); err != nil {
						return fmt.Errorf("exec migration: %w", err)
					}
				}
				return nil
			},
		},
	}
}
