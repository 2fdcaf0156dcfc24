package repo

import (
	"context"
	"database/sql"

	"clearline/internal/domain"
)

func (r Repo) InsertUser(ctx context.Context, u domain.User) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO users(id,name,role,created_at) VALUES (?,?,?,?)`,
		u.ID, u.Name, u.Role, u.CreatedAt)
	return err
}

func (r Repo) GetUser(ctx context.Context, id string) (domain.User, error) {
	var u domain.User
	err := r.DB.QueryRowContext(ctx, `SELECT id,name,role,created_at FROM users WHERE id=?`, id).
		Scan(&u.ID, &u.Name, &u.Role, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return u, ErrNotFound
	}
	return u, err
}

func (r Repo) GetUserTx(ctx context.Context, tx *sql.Tx, id string) (domain.User, error) {
	var u domain.User
	err := tx.QueryRowContext(ctx, `SELECT id,name,role,created_at FROM users WHERE id=?`, id).
		Scan(&u.ID, &u.Name, &u.Role, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return u, ErrNotFound
	}
	return u, err
}

func (r Repo) ListUsers(ctx context.Context, role string) ([]domain.User, error) {
	query := `SELECT id,name,role,created_at FROM users`
	var args []any
	if role != "" {
		query += ` WHERE role=?`
		args = append(args, role)
	}
	query += ` ORDER BY id ASC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanUsers(rows)
}

// UsersByRoleTx returns users holding a role, ordered by id for deterministic
// tie-breaking during assignment.
func (r Repo) UsersByRoleTx(ctx context.Context, tx *sql.Tx, role string) ([]domain.User, error) {
	rows, err := tx.QueryContext(ctx, `SELECT id,name,role,created_at FROM users WHERE role=? ORDER BY id ASC`, role)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanUsers(rows)
}

func scanUsers(rows *sql.Rows) ([]domain.User, error) {
	var res []domain.User
	for rows.Next() {
		var u domain.User
		if err := rows.Scan(&u.ID, &u.Name, &u.Role, &u.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, u)
	}
	return res, rows.Err()
}

func (r Repo) DeleteUser(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM users WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// UserLoadsTx counts open tasks per user. A task counts toward every user in
// its assignee list; only PENDING and IN_PROGRESS tasks count as load.
func (r Repo) UserLoadsTx(ctx context.Context, tx *sql.Tx) (map[string]int, error) {
	rows, err := tx.QueryContext(ctx, `
SELECT je.value, count(*)
FROM tasks t, json_each(t.assigned_to_json) je
WHERE t.status IN ('PENDING','IN_PROGRESS')
GROUP BY je.value`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	loads := map[string]int{}
	for rows.Next() {
		var userID string
		var count int
		if err := rows.Scan(&userID, &count); err != nil {
			return nil, err
		}
		loads[userID] = count
	}
	return loads, rows.Err()
}

func (r Repo) UserLoads(ctx context.Context) ([]domain.UserLoad, error) {
	users, err := r.ListUsers(ctx, "")
	if err != nil {
		return nil, err
	}
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()
	loads, err := r.UserLoadsTx(ctx, tx)
	if err != nil {
		return nil, err
	}
	res := make([]domain.UserLoad, 0, len(users))
	for _, u := range users {
		res = append(res, domain.UserLoad{User: u, Load: loads[u.ID]})
	}
	return res, tx.Commit()
}
