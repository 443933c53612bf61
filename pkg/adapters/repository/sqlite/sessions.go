package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/wadjakorntonsri/go-link-guard/pkg/core/domain"
)

const sessionColumns = `token, link_id, owner_id, target_url, ip_address, status, short_link, provider,
	max_uses, usage_count, used, created_at, activated_at`

type SessionRepository struct {
	db *sql.DB
}

func scanSession(row rowScanner) (*domain.Session, error) {
	var s domain.Session
	var created int64
	var activated sql.NullInt64
	if err := row.Scan(&s.Token, &s.LinkID, &s.OwnerID, &s.TargetURL, &s.IPAddress, &s.Status, &s.ShortLink, &s.Provider,
		&s.MaxUses, &s.UsageCount, &s.Used, &created, &activated); err != nil {
		return nil, err
	}
	s.CreatedAt = fromMillis(created)
	if activated.Valid {
		at := fromMillis(activated.Int64)
		s.ActivatedAt = &at
	}
	return &s, nil
}

func (r *SessionRepository) Create(ctx context.Context, s *domain.Session) error {
	query := `INSERT INTO sessions (token, link_id, owner_id, target_url, ip_address, status, short_link, provider,
				max_uses, usage_count, used, created_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query, s.Token, s.LinkID, s.OwnerID, s.TargetURL, s.IPAddress, string(s.Status),
		s.ShortLink, s.Provider, s.MaxUses, s.UsageCount, s.Used, millis(s.CreatedAt))
	return err
}

func (r *SessionRepository) Get(ctx context.Context, token string) (*domain.Session, error) {
	s, err := scanSession(r.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE token = ?`, token))
	if noRows(err) {
		return nil, nil
	}
	return s, err
}

// FindPending returns the newest pending session for the visitor created at or after since.
func (r *SessionRepository) FindPending(ctx context.Context, ip string, linkID int64, since time.Time) (*domain.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions
			  WHERE ip_address = ? AND link_id = ? AND status = ? AND created_at >= ?
			  ORDER BY created_at DESC LIMIT 1`
	s, err := scanSession(r.db.QueryRowContext(ctx, query, ip, linkID, string(domain.SessionPending), millis(since)))
	if noRows(err) {
		return nil, nil
	}
	return s, err
}

func (r *SessionRepository) CountSince(ctx context.Context, ip string, linkID int64, since time.Time) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions WHERE ip_address = ? AND link_id = ? AND created_at >= ?`,
		ip, linkID, millis(since)).Scan(&n)
	return n, err
}

func (r *SessionRepository) SetShortLink(ctx context.Context, token, shortLink, provider string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE sessions SET short_link = ?, provider = ? WHERE token = ?`, shortLink, provider, token)
	return err
}

// Activate moves a pending session to active. False means another request got there first.
func (r *SessionRepository) Activate(ctx context.Context, token string, at time.Time) (bool, error) {
	n, err := rowsAffected(r.db.ExecContext(ctx,
		`UPDATE sessions SET status = ?, activated_at = ? WHERE token = ? AND status = ?`,
		string(domain.SessionActive), millis(at), token, string(domain.SessionPending)))
	return n == 1, err
}

// IncrementUsage spends one use if usage_count still equals expected.
func (r *SessionRepository) IncrementUsage(ctx context.Context, token string, expected int) (bool, error) {
	query := `UPDATE sessions
			  SET usage_count = usage_count + 1,
				  used = CASE WHEN usage_count + 1 >= max_uses THEN 1 ELSE 0 END
			  WHERE token = ? AND status = ? AND usage_count = ? AND usage_count < max_uses`
	n, err := rowsAffected(r.db.ExecContext(ctx, query, token, string(domain.SessionActive), expected))
	return n == 1, err
}

func (r *SessionRepository) Delete(ctx context.Context, token string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE token = ?`, token)
	return err
}

func (r *SessionRepository) DeleteBefore(ctx context.Context, t time.Time) (int64, error) {
	return rowsAffected(r.db.ExecContext(ctx, `DELETE FROM sessions WHERE created_at < ?`, millis(t)))
}
