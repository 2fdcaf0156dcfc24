package repo

import (
	"context"
	"database/sql"
)

// HasPermission reports whether the user's role grants the permission.
// Unknown users have no permissions.
func (r Repo) HasPermission(ctx context.Context, userID, permission string) (bool, error) {
	var one int
	err := r.DB.QueryRowContext(ctx, `
SELECT 1
FROM users u
JOIN role_permissions rp ON rp.role_id = u.role
WHERE u.id=? AND rp.permission_id=?`, userID, permission).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r Repo) PermissionsForRole(ctx context.Context, role string) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT permission_id FROM role_permissions WHERE role_id=? ORDER BY permission_id ASC`, role)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}
