package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/mr1hm/go-alert-automation/internal/models"
)

func (s *SQLiteDB) AddLog(ctx context.Context, e *models.AutomationLogEntry) error {
	e.CreatedAt = now(e.CreatedAt)

	var ruleName sql.NullString
	if e.RuleName != nil {
		ruleName = sql.NullString{String: *e.RuleName, Valid: true}
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO automation_logs (trigger_type, trigger_data, rule_id, rule_name, alert_id, status, reason,
			users_targeted, users_notified, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.TriggerType, e.TriggerData, nullInt(e.RuleID), ruleName, nullInt(e.AlertID), string(e.Status),
		e.Reason, e.UsersTargeted, e.UsersNotified, toMillis(e.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("error inserting automation log: %w", err)
	}
	e.ID, err = res.LastInsertId()
	return err
}

func (s *SQLiteDB) ListLogs(ctx context.Context, opts LogFilter) ([]models.AutomationLogEntry, int64, error) {
	var (
		where []string
		args  []any
	)
	if opts.Status != nil {
		where = append(where, "status = ?")
		args = append(args, string(*opts.Status))
	}
	if opts.TriggerType != "" {
		where = append(where, "trigger_type = ?")
		args = append(args, opts.TriggerType)
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM automation_logs`+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("error counting automation logs: %w", err)
	}

	query := `SELECT id, trigger_type, trigger_data, rule_id, rule_name, alert_id, status, reason,
		users_targeted, users_notified, created_at FROM automation_logs` + clause +
		` ORDER BY created_at DESC, id DESC`
	if opts.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, opts.Limit, opts.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("error listing automation logs: %w", err)
	}
	defer rows.Close()

	var entries []models.AutomationLogEntry
	for rows.Next() {
		var (
			e         models.AutomationLogEntry
			ruleID    sql.NullInt64
			ruleName  sql.NullString
			alertID   sql.NullInt64
			status    string
			createdAt int64
		)
		if err := rows.Scan(&e.ID, &e.TriggerType, &e.TriggerData, &ruleID, &ruleName, &alertID, &status,
			&e.Reason, &e.UsersTargeted, &e.UsersNotified, &createdAt); err != nil {
			return nil, 0, fmt.Errorf("error scanning automation log: %w", err)
		}
		e.RuleID = intPtr(ruleID)
		if ruleName.Valid {
			name := ruleName.String
			e.RuleName = &name
		}
		e.AlertID = intPtr(alertID)
		e.Status = models.LogStatus(status)
		e.CreatedAt = fromMillis(createdAt)
		entries = append(entries, e)
	}
	return entries, total, rows.Err()
}

func (s *SQLiteDB) UpdateLogStatusByAlert(ctx context.Context, alertID int64, status models.LogStatus, reason string) (int64, error) {
	return s.updateLogByAlert(ctx, alertID, `reason = ?`, string(status), reason)
}

func (s *SQLiteDB) AppendLogStatusByAlert(ctx context.Context, alertID int64, status models.LogStatus, note string) (int64, error) {
	return s.updateLogByAlert(ctx, alertID,
		`reason = CASE WHEN reason = '' THEN ? ELSE reason || '; ' || ? END`,
		string(status), note, note,
	)
}

// updateLogByAlert sets status (the first arg) plus the given reason
// assignment and returns the id of the updated entry.
func (s *SQLiteDB) updateLogByAlert(ctx context.Context, alertID int64, setReason string, args ...any) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		`UPDATE automation_logs SET status = ?, `+setReason+` WHERE alert_id = ? RETURNING id`,
		append(args, alertID)...,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("automation log for alert %d: %w", alertID, ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("error updating automation log for alert %d: %w", alertID, err)
	}
	return id, nil
}

// SetUsersNotified completes a single entry; other entries of the same
// alert keep their counts.
func (s *SQLiteDB) SetUsersNotified(ctx context.Context, logID int64, n int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE automation_logs SET users_notified = ? WHERE id = ?`,
		n, logID,
	)
	if err != nil {
		return fmt.Errorf("error recording notified users for log %d: %w", logID, err)
	}
	return requireRow(res, "automation log", logID)
}

func (s *SQLiteDB) CountLogsByStatus(ctx context.Context) (map[models.LogStatus]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM automation_logs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("error counting automation logs: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.LogStatus]int64)
	for rows.Next() {
		var (
			status string
			n      int64
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("error scanning log counts: %w", err)
		}
		counts[models.LogStatus(status)] = n
	}
	return counts, rows.Err()
}
