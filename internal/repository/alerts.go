package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mr1hm/go-alert-automation/internal/models"
)

const alertColumns = `id, type, severity, title, description, source, trigger_data, external_event_id,
	affected_areas, latitude, longitude, radius_km, is_active, auto_approved, approved_by, approved_at,
	created_by, expires_at, created_at, updated_at`

func (s *SQLiteDB) AddAlert(ctx context.Context, a *models.DisasterAlert) error {
	trigger, err := models.EncodeTrigger(a.Trigger)
	if err != nil {
		return err
	}
	areas := a.AffectedAreas
	if areas == nil {
		areas = []string{}
	}
	areasJSON, err := json.Marshal(areas)
	if err != nil {
		return fmt.Errorf("error encoding affected areas: %w", err)
	}
	a.CreatedAt = now(a.CreatedAt)
	a.UpdatedAt = a.CreatedAt

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO alerts (type, severity, title, description, source, trigger_data, external_event_id,
			affected_areas, latitude, longitude, radius_km, is_active, auto_approved, approved_by, approved_at,
			created_by, expires_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.Type, string(a.Severity), a.Title, a.Description, string(a.Source), trigger, nullString(a.ExternalEventID),
		string(areasJSON), nullFloat(a.Latitude), nullFloat(a.Longitude), nullFloat(a.RadiusKm),
		a.IsActive, a.AutoApproved, nullInt(a.ApprovedBy), nullMillis(a.ApprovedAt),
		nullInt(a.CreatedBy), nullMillis(a.ExpiresAt), toMillis(a.CreatedAt), toMillis(a.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("alert for %s event %s: %w", a.Source, a.ExternalEventID, ErrDuplicate)
		}
		return fmt.Errorf("error inserting alert: %w", err)
	}
	a.ID, err = res.LastInsertId()
	return err
}

func (s *SQLiteDB) GetAlert(ctx context.Context, id int64) (*models.DisasterAlert, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+alertColumns+` FROM alerts WHERE id = ?`, id)
	a, err := scanAlert(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("alert %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("error reading alert %d: %w", id, err)
	}
	return a, nil
}

func (s *SQLiteDB) ListAlerts(ctx context.Context, opts AlertFilter) ([]models.DisasterAlert, error) {
	var (
		where []string
		args  []any
	)
	if opts.Source != nil {
		where = append(where, "source = ?")
		args = append(args, string(*opts.Source))
	}
	if opts.ActiveOnly {
		where = append(where, "is_active = 1")
	}
	if opts.PendingOnly {
		where = append(where, "is_active = 1 AND auto_approved = 0 AND source IN (?, ?)")
		args = append(args, string(models.SourceAutoWeather), string(models.SourceAutoEarthquake))
	}
	if opts.Broadcastable {
		where = append(where, "is_active = 1 AND source != ? AND (auto_approved = 1 OR source NOT IN (?, ?))")
		args = append(args, string(models.SourceSOS), string(models.SourceAutoWeather), string(models.SourceAutoEarthquake))
	}

	query := `SELECT ` + alertColumns + ` FROM alerts`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"
	if opts.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, opts.Limit, opts.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error listing alerts: %w", err)
	}
	defer rows.Close()

	var alerts []models.DisasterAlert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning alert: %w", err)
		}
		alerts = append(alerts, *a)
	}
	return alerts, rows.Err()
}

func (s *SQLiteDB) ApproveAlert(ctx context.Context, id, approverID int64, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE alerts
		SET auto_approved = 1, approved_by = ?, approved_at = ?, updated_at = ?
		WHERE id = ? AND is_active = 1 AND auto_approved = 0
			AND (expires_at IS NULL OR expires_at > ?)`,
		approverID, toMillis(at), toMillis(at), id, toMillis(at),
	)
	if err != nil {
		return false, fmt.Errorf("error approving alert %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (s *SQLiteDB) RejectAlert(ctx context.Context, id int64, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE alerts
		SET is_active = 0, updated_at = ?
		WHERE id = ? AND is_active = 1 AND auto_approved = 0
			AND (expires_at IS NULL OR expires_at > ?)`,
		toMillis(at), id, toMillis(at),
	)
	if err != nil {
		return false, fmt.Errorf("error rejecting alert %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (s *SQLiteDB) DeactivateExpired(ctx context.Context, at time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE alerts
		SET is_active = 0, updated_at = ?
		WHERE is_active = 1 AND expires_at IS NOT NULL AND expires_at <= ?`,
		toMillis(at), toMillis(at),
	)
	if err != nil {
		return 0, fmt.Errorf("error deactivating expired alerts: %w", err)
	}
	return res.RowsAffected()
}

func (s *SQLiteDB) RecentAreaAlertExists(ctx context.Context, source models.AlertSource, area string, since time.Time) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM alerts
			WHERE source = ? AND is_active = 1 AND created_at >= ?
			AND EXISTS (SELECT 1 FROM json_each(alerts.affected_areas) WHERE lower(json_each.value) = lower(?))
		)`,
		string(source), toMillis(since), area,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("error checking recent alerts for %s: %w", area, err)
	}
	return exists, nil
}

func (s *SQLiteDB) EventAlertExists(ctx context.Context, source models.AlertSource, eventID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM alerts WHERE source = ? AND external_event_id = ?)`,
		string(source), eventID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("error checking alerts for event %s: %w", eventID, err)
	}
	return exists, nil
}

func scanAlert(sc scanner) (*models.DisasterAlert, error) {
	var (
		a          models.DisasterAlert
		severity   string
		source     string
		trigger    []byte
		eventID    sql.NullString
		areas      string
		lat, lon   sql.NullFloat64
		radius     sql.NullFloat64
		approvedBy sql.NullInt64
		approvedAt sql.NullInt64
		createdBy  sql.NullInt64
		expiresAt  sql.NullInt64
		createdAt  int64
		updatedAt  int64
	)
	if err := sc.Scan(&a.ID, &a.Type, &severity, &a.Title, &a.Description, &source, &trigger, &eventID,
		&areas, &lat, &lon, &radius, &a.IsActive, &a.AutoApproved, &approvedBy, &approvedAt,
		&createdBy, &expiresAt, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	a.Severity = models.Severity(severity)
	a.Source = models.AlertSource(source)
	a.ExternalEventID = eventID.String
	if err := json.Unmarshal([]byte(areas), &a.AffectedAreas); err != nil {
		return nil, fmt.Errorf("error decoding affected areas of alert %d: %w", a.ID, err)
	}
	if len(a.AffectedAreas) == 0 {
		a.AffectedAreas = nil
	}
	t, err := models.DecodeTrigger(trigger)
	if err != nil {
		return nil, fmt.Errorf("alert %d: %w", a.ID, err)
	}
	a.Trigger = t
	a.Latitude = floatPtr(lat)
	a.Longitude = floatPtr(lon)
	a.RadiusKm = floatPtr(radius)
	a.ApprovedBy = intPtr(approvedBy)
	a.ApprovedAt = timePtr(approvedAt)
	a.CreatedBy = intPtr(createdBy)
	a.ExpiresAt = timePtr(expiresAt)
	a.CreatedAt = fromMillis(createdAt)
	a.UpdatedAt = fromMillis(updatedAt)
	return &a, nil
}
