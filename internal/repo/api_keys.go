package repo

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"

	"clearline/internal/domain"
)

// HashAPIKey returns the hex sha256 of a raw key. Only hashes are stored.
func HashAPIKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func (r Repo) InsertAPIKey(ctx context.Context, k domain.APIKey) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO api_keys(id,actor_id,name,key_hash,created_at) VALUES (?,?,?,?,?)`,
		k.ID, k.ActorID, nullable(k.Name), k.KeyHash, k.CreatedAt)
	return err
}

func (r Repo) ListAPIKeys(ctx context.Context) ([]domain.APIKey, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,actor_id,name,key_hash,created_at FROM api_keys ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.APIKey
	for rows.Next() {
		var k domain.APIKey
		var name sql.NullString
		if err := rows.Scan(&k.ID, &k.ActorID, &name, &k.KeyHash, &k.CreatedAt); err != nil {
			return nil, err
		}
		if name.Valid {
			k.Name = name.String
		}
		res = append(res, k)
	}
	return res, rows.Err()
}

// ActorByAPIKey resolves a raw API key to its actor id.
func (r Repo) ActorByAPIKey(ctx context.Context, raw string) (string, error) {
	var actorID string
	err := r.DB.QueryRowContext(ctx, `SELECT actor_id FROM api_keys WHERE key_hash=?`, HashAPIKey(raw)).Scan(&actorID)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	return actorID, err
}

func (r Repo) DeleteAPIKey(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM api_keys WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
