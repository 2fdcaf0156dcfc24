package repo

import (
	"context"
	"database/sql"

	"clearline/internal/domain"
)

func (r Repo) InsertRule(ctx context.Context, rule domain.AssignmentRule) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO assignment_rules(id,category,user_id,role_target,priority,active,created_at) VALUES (?,?,?,?,?,?,?)`,
		rule.ID, rule.Category, nullableStringPtr(rule.UserID), nullableStringPtr(rule.RoleTarget),
		rule.Priority, boolInt(rule.Active), rule.CreatedAt)
	return err
}

func scanRuleRow(scan func(dest ...any) error) (domain.AssignmentRule, error) {
	var rule domain.AssignmentRule
	var userID, roleTarget sql.NullString
	var active int
	err := scan(&rule.ID, &rule.Category, &userID, &roleTarget, &rule.Priority, &active, &rule.CreatedAt)
	if err == sql.ErrNoRows {
		return rule, ErrNotFound
	}
	if err != nil {
		return rule, err
	}
	if userID.Valid {
		rule.UserID = &userID.String
	}
	if roleTarget.Valid {
		rule.RoleTarget = &roleTarget.String
	}
	rule.Active = active != 0
	return rule, nil
}

func (r Repo) GetRule(ctx context.Context, id string) (domain.AssignmentRule, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT id,category,user_id,role_target,priority,active,created_at FROM assignment_rules WHERE id=?`, id)
	return scanRuleRow(row.Scan)
}

func (r Repo) ListRules(ctx context.Context, category string) ([]domain.AssignmentRule, error) {
	query := `SELECT id,category,user_id,role_target,priority,active,created_at FROM assignment_rules`
	var args []any
	if category != "" {
		query += ` WHERE category=?`
		args = append(args, category)
	}
	query += ` ORDER BY category ASC, priority ASC, created_at ASC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.AssignmentRule
	for rows.Next() {
		rule, err := scanRuleRow(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, rule)
	}
	return res, rows.Err()
}

// ActiveRulesByCategoryTx returns active rules for a category ordered by
// ascending priority. Lower priority values are tried first.
func (r Repo) ActiveRulesByCategoryTx(ctx context.Context, tx *sql.Tx, category string) ([]domain.AssignmentRule, error) {
	rows, err := tx.QueryContext(ctx, `SELECT id,category,user_id,role_target,priority,active,created_at FROM assignment_rules WHERE category=? AND active=1 ORDER BY priority ASC, created_at ASC`, category)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.AssignmentRule
	for rows.Next() {
		rule, err := scanRuleRow(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, rule)
	}
	return res, rows.Err()
}

func (r Repo) UpdateRule(ctx context.Context, rule domain.AssignmentRule) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE assignment_rules SET category=?, user_id=?, role_target=?, priority=?, active=? WHERE id=?`,
		rule.Category, nullableStringPtr(rule.UserID), nullableStringPtr(rule.RoleTarget),
		rule.Priority, boolInt(rule.Active), rule.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteRule(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM assignment_rules WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
