package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/mr1hm/go-alert-automation/internal/models"
)

// AddAttempts writes the attempts in one transaction and assigns their ids.
func (s *SQLiteDB) AddAttempts(ctx context.Context, attempts []*models.NotificationAttempt) error {
	if len(attempts) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error starting attempts transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO notification_attempts (alert_id, recipient_type, recipient_id, recipient_info, method, status,
			detail, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("error preparing attempt insert: %w", err)
	}
	defer stmt.Close()

	ts := time.Now().UTC()
	ids := make([]int64, len(attempts))
	for i, a := range attempts {
		if a.Status == "" {
			a.Status = models.AttemptPending
		}
		a.CreatedAt = now(a.CreatedAt)
		a.UpdatedAt = ts
		res, err := stmt.ExecContext(ctx, a.AlertID, string(a.RecipientType), nullInt(a.RecipientID),
			a.RecipientInfo, string(a.Method), string(a.Status), a.Detail,
			toMillis(a.CreatedAt), toMillis(a.UpdatedAt))
		if err != nil {
			return fmt.Errorf("error inserting attempt for alert %d: %w", a.AlertID, err)
		}
		if ids[i], err = res.LastInsertId(); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("error committing attempts: %w", err)
	}
	for i, a := range attempts {
		a.ID = ids[i]
	}
	return nil
}

// UpdateAttemptStatus moves a pending attempt to its outcome. Attempts that
// already left pending are immutable.
func (s *SQLiteDB) UpdateAttemptStatus(ctx context.Context, id int64, status models.AttemptStatus, detail string) error {
	if status == models.AttemptPending {
		return fmt.Errorf("attempt %d back to pending: %w", id, ErrInvalidTransition)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE notification_attempts SET status = ?, detail = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		string(status), detail, toMillis(time.Now()), id, string(models.AttemptPending),
	)
	if err != nil {
		return fmt.Errorf("error updating attempt %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("attempt %d is not pending: %w", id, ErrInvalidTransition)
	}
	return nil
}

func (s *SQLiteDB) ListAttempts(ctx context.Context, alertID int64) ([]models.NotificationAttempt, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, alert_id, recipient_type, recipient_id, recipient_info, method, status, detail, created_at, updated_at
		FROM notification_attempts WHERE alert_id = ? ORDER BY id ASC`, alertID)
	if err != nil {
		return nil, fmt.Errorf("error listing attempts for alert %d: %w", alertID, err)
	}
	defer rows.Close()

	var attempts []models.NotificationAttempt
	for rows.Next() {
		var (
			a             models.NotificationAttempt
			recipientType string
			recipientID   sql.NullInt64
			method        string
			status        string
			createdAt     int64
			updatedAt     int64
		)
		if err := rows.Scan(&a.ID, &a.AlertID, &recipientType, &recipientID, &a.RecipientInfo, &method,
			&status, &a.Detail, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("error scanning attempt: %w", err)
		}
		a.RecipientType = models.RecipientType(recipientType)
		a.RecipientID = intPtr(recipientID)
		a.Method = models.DeliveryMethod(method)
		a.Status = models.AttemptStatus(status)
		a.CreatedAt = fromMillis(createdAt)
		a.UpdatedAt = fromMillis(updatedAt)
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}
