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

const ruleColumns = `id, name, type, conditions, template, is_active, priority, created_by, created_at, updated_at`

func (s *SQLiteDB) AddRule(ctx context.Context, r *models.ThresholdRule) error {
	template, err := json.Marshal(r.Template)
	if err != nil {
		return fmt.Errorf("error encoding rule template: %w", err)
	}
	r.CreatedAt = now(r.CreatedAt)
	r.UpdatedAt = r.CreatedAt

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO alert_rules (name, type, conditions, template, is_active, priority, created_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.Name, string(r.Type), rawConditions(r.Conditions), string(template),
		r.IsActive, r.Priority, r.CreatedBy, toMillis(r.CreatedAt), toMillis(r.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("error inserting rule: %w", err)
	}
	r.ID, err = res.LastInsertId()
	return err
}

func (s *SQLiteDB) GetRule(ctx context.Context, id int64) (*models.ThresholdRule, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+ruleColumns+` FROM alert_rules WHERE id = ?`, id)
	r, err := scanRule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("rule %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("error reading rule %d: %w", id, err)
	}
	return r, nil
}

func (s *SQLiteDB) UpdateRule(ctx context.Context, r *models.ThresholdRule) error {
	template, err := json.Marshal(r.Template)
	if err != nil {
		return fmt.Errorf("error encoding rule template: %w", err)
	}
	r.UpdatedAt = time.Now().UTC()

	res, err := s.db.ExecContext(ctx, `
		UPDATE alert_rules
		SET name = ?, type = ?, conditions = ?, template = ?, is_active = ?, priority = ?, updated_at = ?
		WHERE id = ?`,
		r.Name, string(r.Type), rawConditions(r.Conditions), string(template),
		r.IsActive, r.Priority, toMillis(r.UpdatedAt), r.ID,
	)
	if err != nil {
		return fmt.Errorf("error updating rule %d: %w", r.ID, err)
	}
	return requireRow(res, "rule", r.ID)
}

func (s *SQLiteDB) SetRuleActive(ctx context.Context, id int64, active bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE alert_rules SET is_active = ?, updated_at = ? WHERE id = ?`,
		active, toMillis(time.Now()), id,
	)
	if err != nil {
		return fmt.Errorf("error toggling rule %d: %w", id, err)
	}
	return requireRow(res, "rule", id)
}

func (s *SQLiteDB) DeleteRule(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM alert_rules WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("error deleting rule %d: %w", id, err)
	}
	return requireRow(res, "rule", id)
}

func (s *SQLiteDB) ListRules(ctx context.Context, opts RuleFilter) ([]models.ThresholdRule, error) {
	var (
		where []string
		args  []any
	)
	if opts.Type != nil {
		where = append(where, "type = ?")
		args = append(args, string(*opts.Type))
	}
	if opts.ActiveOnly {
		where = append(where, "is_active = 1")
	}

	query := `SELECT ` + ruleColumns + ` FROM alert_rules`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY priority DESC, id ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error listing rules: %w", err)
	}
	defer rows.Close()

	var rules []models.ThresholdRule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning rule: %w", err)
		}
		rules = append(rules, *r)
	}
	return rules, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRule(sc scanner) (*models.ThresholdRule, error) {
	var (
		r          models.ThresholdRule
		typ        string
		conditions string
		template   string
		createdAt  int64
		updatedAt  int64
	)
	if err := sc.Scan(&r.ID, &r.Name, &typ, &conditions, &template, &r.IsActive,
		&r.Priority, &r.CreatedBy, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	r.Type = models.RuleType(typ)
	r.Conditions = json.RawMessage(conditions)
	// A corrupt template is left zero valued; evaluation does not depend on it.
	_ = json.Unmarshal([]byte(template), &r.Template)
	r.CreatedAt = fromMillis(createdAt)
	r.UpdatedAt = fromMillis(updatedAt)
	return &r, nil
}

func rawConditions(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "{}"
	}
	return string(raw)
}

func requireRow(res sql.Result, entity string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s %d: %w", entity, id, ErrNotFound)
	}
	return nil
}
