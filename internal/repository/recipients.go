package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/mr1hm/go-alert-automation/internal/models"
)

func (s *SQLiteDB) AddRecipient(ctx context.Context, r *models.Recipient) error {
	if r.Role == "" {
		r.Role = models.RoleUser
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error starting recipient transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO recipients (name, email, phone, role, city, province, latitude, longitude, on_duty,
			emergency_contact_name, emergency_contact_phone)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.Name, r.Email, r.Phone, string(r.Role), r.City, r.Province, nullFloat(r.Latitude), nullFloat(r.Longitude),
		r.OnDuty, r.EmergencyContactName, r.EmergencyContactPhone,
	)
	if err != nil {
		return fmt.Errorf("error inserting recipient: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}

	for _, token := range r.DeviceTokens {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO device_tokens (recipient_id, token) VALUES (?, ?)`, id, token); err != nil {
			return fmt.Errorf("error inserting device token: %w", err)
		}
	}
	if r.Preferences != nil {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO notification_preferences (recipient_id, weather, earthquake) VALUES (?, ?, ?)`,
			id, r.Preferences.Weather, r.Preferences.Earthquake); err != nil {
			return fmt.Errorf("error inserting preferences: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("error committing recipient: %w", err)
	}
	r.ID = id
	return nil
}

func (s *SQLiteDB) AddDeviceToken(ctx context.Context, recipientID int64, token string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO device_tokens (recipient_id, token) VALUES (?, ?)`, recipientID, token)
	if err != nil {
		return fmt.Errorf("error adding device token for recipient %d: %w", recipientID, err)
	}
	return nil
}

func (s *SQLiteDB) SetPreferences(ctx context.Context, recipientID int64, p models.NotificationPreferences) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notification_preferences (recipient_id, weather, earthquake) VALUES (?, ?, ?)
		ON CONFLICT (recipient_id) DO UPDATE SET weather = excluded.weather, earthquake = excluded.earthquake`,
		recipientID, p.Weather, p.Earthquake)
	if err != nil {
		return fmt.Errorf("error saving preferences for recipient %d: %w", recipientID, err)
	}
	return nil
}

const recipientQuery = `
	SELECT r.id, r.name, r.email, r.phone, r.role, r.city, r.province, r.latitude, r.longitude, r.on_duty,
		r.emergency_contact_name, r.emergency_contact_phone, p.weather, p.earthquake
	FROM recipients r
	LEFT JOIN notification_preferences p ON p.recipient_id = r.id`

func (s *SQLiteDB) GetRecipient(ctx context.Context, id int64) (*models.Recipient, error) {
	row := s.db.QueryRowContext(ctx, recipientQuery+` WHERE r.id = ?`, id)
	r, err := scanRecipient(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("recipient %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("error reading recipient %d: %w", id, err)
	}

	tokens, err := s.deviceTokens(ctx, &id)
	if err != nil {
		return nil, err
	}
	r.DeviceTokens = tokens[id]
	return r, nil
}

func (s *SQLiteDB) ListRecipients(ctx context.Context, opts RecipientFilter) ([]models.Recipient, error) {
	var (
		where []string
		args  []any
	)
	if opts.Role != nil {
		where = append(where, "r.role = ?")
		args = append(args, string(*opts.Role))
	}
	if opts.OnDutyOnly {
		where = append(where, "r.on_duty = 1")
	}
	query := recipientQuery
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY r.id ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error listing recipients: %w", err)
	}
	var recipients []models.Recipient
	for rows.Next() {
		r, err := scanRecipient(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("error scanning recipient: %w", err)
		}
		recipients = append(recipients, *r)
	}
	err = rows.Err()
	// The pool holds a single connection; release it before the token query.
	rows.Close()
	if err != nil {
		return nil, err
	}

	tokens, err := s.deviceTokens(ctx, nil)
	if err != nil {
		return nil, err
	}
	for i := range recipients {
		recipients[i].DeviceTokens = tokens[recipients[i].ID]
	}
	return recipients, nil
}

func (s *SQLiteDB) deviceTokens(ctx context.Context, recipientID *int64) (map[int64][]string, error) {
	query := `SELECT recipient_id, token FROM device_tokens`
	var args []any
	if recipientID != nil {
		query += ` WHERE recipient_id = ?`
		args = append(args, *recipientID)
	}
	query += ` ORDER BY recipient_id, token`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error listing device tokens: %w", err)
	}
	defer rows.Close()

	tokens := make(map[int64][]string)
	for rows.Next() {
		var (
			id    int64
			token string
		)
		if err := rows.Scan(&id, &token); err != nil {
			return nil, fmt.Errorf("error scanning device token: %w", err)
		}
		tokens[id] = append(tokens[id], token)
	}
	return tokens, rows.Err()
}

func scanRecipient(sc scanner) (*models.Recipient, error) {
	var (
		r          models.Recipient
		role       string
		lat, lon   sql.NullFloat64
		weather    sql.NullBool
		earthquake sql.NullBool
	)
	if err := sc.Scan(&r.ID, &r.Name, &r.Email, &r.Phone, &role, &r.City, &r.Province, &lat, &lon, &r.OnDuty,
		&r.EmergencyContactName, &r.EmergencyContactPhone, &weather, &earthquake); err != nil {
		return nil, err
	}
	r.Role = models.Role(role)
	r.Latitude = floatPtr(lat)
	r.Longitude = floatPtr(lon)
	if weather.Valid || earthquake.Valid {
		r.Preferences = &models.NotificationPreferences{
			Weather:    !weather.Valid || weather.Bool,
			Earthquake: !earthquake.Valid || earthquake.Bool,
		}
	}
	return &r, nil
}
