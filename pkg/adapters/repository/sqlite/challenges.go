package sqlite

import (
	"context"
	"database/sql"

	"github.com/wadjakorntonsri/go-link-guard/pkg/core/domain"
)

type ChallengeRepository struct {
	db *sql.DB
}

func (r *ChallengeRepository) Create(ctx context.Context, c *domain.Challenge) error {
	query := `INSERT INTO challenges (id, nonce, difficulty, signature, expires_at, ip, ua_hash, created_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query, c.ID, c.Nonce, c.Difficulty, c.Signature, c.ExpiresAt, c.IP, c.UAHash, c.CreatedAt)
	return err
}

func (r *ChallengeRepository) Get(ctx context.Context, id string) (*domain.Challenge, error) {
	query := `SELECT id, nonce, difficulty, signature, expires_at, ip, ua_hash, created_at FROM challenges WHERE id = ?`

	var c domain.Challenge
	err := r.db.QueryRowContext(ctx, query, id).Scan(&c.ID, &c.Nonce, &c.Difficulty, &c.Signature, &c.ExpiresAt, &c.IP, &c.UAHash, &c.CreatedAt)
	if noRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// Delete reports whether this call removed the row, which makes it the
// single point where a challenge is consumed.
func (r *ChallengeRepository) Delete(ctx context.Context, id string) (bool, error) {
	n, err := rowsAffected(r.db.ExecContext(ctx, `DELETE FROM challenges WHERE id = ?`, id))
	return n > 0, err
}

func (r *ChallengeRepository) DeleteExpired(ctx context.Context, nowMillis int64) (int64, error) {
	return rowsAffected(r.db.ExecContext(ctx, `DELETE FROM challenges WHERE expires_at < ?`, nowMillis))
}
