package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/wadjakorntonsri/go-link-guard/pkg/core/domain"
)

type SuspiciousRepository struct {
	db *sql.DB
}

func (r *SuspiciousRepository) Add(ctx context.Context, e *domain.SuspiciousIP) error {
	res, err := r.db.ExecContext(ctx, `INSERT INTO suspicious_ips (ip, reason, created_at) VALUES (?, ?, ?)`,
		e.IP, e.Reason, millis(e.CreatedAt))
	if err != nil {
		return err
	}
	e.ID, err = res.LastInsertId()
	return err
}

func (r *SuspiciousRepository) CountSince(ctx context.Context, ip string, since time.Time) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM suspicious_ips WHERE ip = ? AND created_at >= ?`, ip, millis(since)).Scan(&n)
	return n, err
}

func (r *SuspiciousRepository) DeleteBefore(ctx context.Context, t time.Time) (int64, error) {
	return rowsAffected(r.db.ExecContext(ctx, `DELETE FROM suspicious_ips WHERE created_at < ?`, millis(t)))
}
