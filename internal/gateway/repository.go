package gateway

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-gateway/internal/message"
)

// Repository defines the interface for gateway persistence operations.
type Repository interface {
	List(ctx context.Context) ([]*Gateway, error)
	ListEnabled(ctx context.Context) ([]*Gateway, error)
	GetByID(ctx context.Context, id int64) (*Gateway, error)
	Upsert(ctx context.Context, gw *Gateway) error
	UpdateStatus(ctx context.Context, id int64, status Status, msg string, at time.Time) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed gateway repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// endpointRecord is the stored form of an Endpoint. Unlike the API form it
// keeps the password.
type endpointRecord struct {
	URL       string            `json:"url"`
	ClientID  string            `json:"client_id,omitempty"`
	Username  string            `json:"username,omitempty"`
	Password  string            `json:"password,omitempty"`
	Subscribe []string          `json:"subscribe,omitempty"`
	Publish   string            `json:"publish,omitempty"`
	QoS       byte              `json:"qos"`
	Options   map[string]string `json:"options,omitempty"`
}

const selectColumns = `SELECT id, name, network_type, enabled, endpoint,
		status, status_message, status_time
		FROM gateways`

// List returns all gateways ordered by id.
func (r *SQLiteRepository) List(ctx context.Context) ([]*Gateway, error) {
	return r.query(ctx, selectColumns+` ORDER BY id`)
}

// ListEnabled returns the gateways that should be started at boot.
func (r *SQLiteRepository) ListEnabled(ctx context.Context) ([]*Gateway, error) {
	return r.query(ctx, selectColumns+` WHERE enabled = 1 ORDER BY id`)
}

// GetByID returns a single gateway, or ErrGatewayNotFound.
func (r *SQLiteRepository) GetByID(ctx context.Context, id int64) (*Gateway, error) {
	row := r.db.QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id)
	gw, err := scanGateway(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: id %d", ErrGatewayNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("querying gateway %d: %w", id, err)
	}
	return gw, nil
}

// Upsert inserts a gateway or updates its static fields. Status is left
// untouched on update.
func (r *SQLiteRepository) Upsert(ctx context.Context, gw *Gateway) error {
	if err := gw.Validate(); err != nil {
		return err
	}

	ep, err := json.Marshal(endpointRecord(gw.Endpoint))
	if err != nil {
		return fmt.Errorf("encoding endpoint for gateway %d: %w", gw.ID, err)
	}

	const query = `INSERT INTO gateways (id, name, network_type, enabled, endpoint)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			network_type = excluded.network_type,
			enabled = excluded.enabled,
			endpoint = excluded.endpoint,
			updated_at = strftime('%Y-%m-%dT%H:%M:%SZ', 'now')`

	if _, err := r.db.ExecContext(ctx, query,
		gw.ID, gw.Name, string(gw.NetworkType), boolToInt(gw.Enabled), string(ep)); err != nil {
		return fmt.Errorf("upserting gateway %d: %w", gw.ID, err)
	}
	return nil
}

// UpdateStatus persists the gateway's latest status.
func (r *SQLiteRepository) UpdateStatus(ctx context.Context, id int64, status Status, msg string, at time.Time) error {
	const query = `UPDATE gateways
		SET status = ?, status_message = ?, status_time = ?
		WHERE id = ?`

	res, err := r.db.ExecContext(ctx, query, string(status), msg, at.UTC().Format(time.RFC3339Nano), id)
	if err != nil {
		return fmt.Errorf("updating status for gateway %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating status for gateway %d: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: id %d", ErrGatewayNotFound, id)
	}
	return nil
}

func (r *SQLiteRepository) query(ctx context.Context, query string, args ...any) ([]*Gateway, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying gateways: %w", err)
	}
	defer rows.Close()

	var out []*Gateway
	for rows.Next() {
		gw, err := scanGateway(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning gateway row: %w", err)
		}
		out = append(out, gw)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating gateway rows: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGateway(row rowScanner) (*Gateway, error) {
	var (
		gw         Gateway
		network    string
		enabled    int
		endpoint   string
		status     string
		statusMsg  string
		statusTime sql.NullString
	)

	if err := row.Scan(&gw.ID, &gw.Name, &network, &enabled, &endpoint,
		&status, &statusMsg, &statusTime); err != nil {
		return nil, err
	}

	var rec endpointRecord
	if endpoint != "" {
		if err := json.Unmarshal([]byte(endpoint), &rec); err != nil {
			return nil, fmt.Errorf("decoding endpoint for gateway %d: %w", gw.ID, err)
		}
	}

	gw.NetworkType = message.NetworkType(network)
	gw.Enabled = enabled != 0
	gw.Endpoint = Endpoint(rec)
	gw.status = Status(status)
	gw.statusMessage = statusMsg
	if statusTime.Valid {
		if t, err := time.Parse(time.RFC3339Nano, statusTime.String); err == nil {
			gw.statusTime = t
		}
	}
	return &gw, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
