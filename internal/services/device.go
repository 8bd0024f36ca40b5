package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/HerbHall/netwatch/pkg/models"
	"github.com/google/uuid"
)

// DeviceFilter controls which devices are returned by List.
type DeviceFilter struct {
	Category string // Filter by DeviceCategory value.
	Search   string // Search name or address.
}

// DeviceRepository provides CRUD access to monitored devices.
type DeviceRepository interface {
	// Get returns a single device by ID.
	Get(ctx context.Context, id string) (*models.Device, error)

	// List returns a filtered, paginated list of devices.
	List(ctx context.Context, filter DeviceFilter, opts ListOptions) (*ListResult[models.Device], error)

	// All returns every device ordered by creation time.
	All(ctx context.Context) ([]models.Device, error)

	// Create inserts a new device. If device.ID is empty, a UUID is generated.
	Create(ctx context.Context, device *models.Device) error

	// Update modifies an existing device's mutable fields.
	Update(ctx context.Context, device *models.Device) error

	// Delete removes a device by ID. Its monitors, results and alerts are
	// removed by foreign key cascade.
	Delete(ctx context.Context, id string) error
}

// Compile-time interface guard.
var _ DeviceRepository = (*SQLiteDeviceRepository)(nil)

// SQLiteDeviceRepository implements DeviceRepository using SQLite.
// It queries the devices table directly.
type SQLiteDeviceRepository struct {
	db *sql.DB
}

// NewSQLiteDeviceRepository creates a DeviceRepository.
// The devices table must already exist (created by the pulse module's migrations).
func NewSQLiteDeviceRepository(db *sql.DB) *SQLiteDeviceRepository {
	return &SQLiteDeviceRepository{db: db}
}

const deviceColumns = `id, name, address, category, created_at, updated_at`

func (r *SQLiteDeviceRepository) Get(ctx context.Context, id string) (*models.Device, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+deviceColumns+` FROM devices WHERE id = ?`, id)
	d, err := scanDevice(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get device %q: %w", id, err)
	}
	return d, nil
}

// deviceSorts are the columns a device list may be ordered by.
var deviceSorts = map[string]string{
	"name":       "name",
	"address":    "address",
	"category":   "category",
	"created_at": "created_at",
	"updated_at": "updated_at",
}

func (r *SQLiteDeviceRepository) List(ctx context.Context, filter DeviceFilter, opts ListOptions) (*ListResult[models.Device], error) {
	opts = opts.normalized()

	where := "1=1"
	var args []any
	if filter.Category != "" {
		where += " AND category = ?"
		args = append(args, filter.Category)
	}
	if filter.Search != "" {
		where += " AND (name LIKE ? OR address LIKE ?)"
		pattern := "%" + filter.Search + "%"
		args = append(args, pattern, pattern)
	}

	var total int
	//nolint:gosec // where uses parameterized placeholders only
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM devices WHERE "+where, args...,
	).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("count devices: %w", err)
	}

	//nolint:gosec // orderBy only emits whitelisted columns
	query := "SELECT " + deviceColumns + " FROM devices WHERE " + where +
		" ORDER BY " + opts.orderBy(deviceSorts, "created_at") + " LIMIT ? OFFSET ?"
	devices, err := r.query(ctx, query, append(args, opts.Limit, opts.Offset)...)
	if err != nil {
		return nil, err
	}
	return &ListResult[models.Device]{
		Items:  devices,
		Total:  total,
		Limit:  opts.Limit,
		Offset: opts.Offset,
	}, nil
}

func (r *SQLiteDeviceRepository) All(ctx context.Context) ([]models.Device, error) {
	return r.query(ctx, `SELECT `+deviceColumns+` FROM devices ORDER BY created_at ASC, id ASC`)
}

func (r *SQLiteDeviceRepository) query(ctx context.Context, query string, args ...any) ([]models.Device, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	defer rows.Close()

	devices := []models.Device{}
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("scan device: %w", err)
		}
		devices = append(devices, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate devices: %w", err)
	}
	return devices, nil
}

func (r *SQLiteDeviceRepository) Create(ctx context.Context, device *models.Device) error {
	if device.ID == "" {
		device.ID = uuid.New().String()
	}
	if device.Category == "" {
		device.Category = models.DeviceCategoryOther
	}
	now := time.Now().UTC()
	if device.CreatedAt.IsZero() {
		device.CreatedAt = now
	}
	device.UpdatedAt = device.CreatedAt

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO devices (id, name, address, category, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		device.ID, device.Name, device.Address, string(device.Category),
		device.CreatedAt, device.UpdatedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrAlreadyExists
		}
		return fmt.Errorf("create device: %w", err)
	}
	return nil
}

func (r *SQLiteDeviceRepository) Update(ctx context.Context, device *models.Device) error {
	device.UpdatedAt = time.Now().UTC()
	res, err := r.db.ExecContext(ctx, `
		UPDATE devices SET name = ?, address = ?, category = ?, updated_at = ?
		WHERE id = ?`,
		device.Name, device.Address, string(device.Category), device.UpdatedAt,
		device.ID,
	)
	if err != nil {
		return fmt.Errorf("update device: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *SQLiteDeviceRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM devices WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete device: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDevice(row rowScanner) (*models.Device, error) {
	var d models.Device
	var category string
	if err := row.Scan(&d.ID, &d.Name, &d.Address, &category, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return nil, err
	}
	d.Category = models.DeviceCategory(category)
	return &d, nil
}
