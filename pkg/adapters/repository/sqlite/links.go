package sqlite

import (
	"context"
	"fmt"

	"github.com/wadjakorntonsri/go-link-guard/pkg/core/domain"
)

const linkColumns = `id, slug, owner_id, target_url, title, flow, clicks, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLink(row rowScanner) (*domain.ProtectedLink, error) {
	var l domain.ProtectedLink
	var created, updated int64
	if err := row.Scan(&l.ID, &l.Slug, &l.OwnerID, &l.TargetURL, &l.Title, &l.Flow, &l.Clicks, &created, &updated); err != nil {
		return nil, err
	}
	l.CreatedAt, l.UpdatedAt = fromMillis(created), fromMillis(updated)
	return &l, nil
}

func (r *SQLiteRepository) Create(ctx context.Context, link *domain.ProtectedLink) error {
	query := `INSERT INTO links (slug, owner_id, target_url, title, flow, clicks, created_at, updated_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	res, err := r.db.ExecContext(ctx, query, link.Slug, link.OwnerID, link.TargetURL, link.Title, link.Flow,
		link.Clicks, millis(link.CreatedAt), millis(link.UpdatedAt))
	if isUniqueViolation(err) {
		return fmt.Errorf("slug %s: %w", link.Slug, domain.ErrConflict)
	}
	if err != nil {
		return err
	}

	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	link.ID = id
	return nil
}

func (r *SQLiteRepository) GetBySlug(ctx context.Context, slug string) (*domain.ProtectedLink, error) {
	link, err := scanLink(r.db.QueryRowContext(ctx, `SELECT `+linkColumns+` FROM links WHERE slug = ?`, slug))
	if noRows(err) {
		return nil, nil
	}
	return link, err
}

func (r *SQLiteRepository) GetByID(ctx context.Context, id int64) (*domain.ProtectedLink, error) {
	link, err := scanLink(r.db.QueryRowContext(ctx, `SELECT `+linkColumns+` FROM links WHERE id = ?`, id))
	if noRows(err) {
		return nil, nil
	}
	return link, err
}

func (r *SQLiteRepository) ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]domain.ProtectedLink, error) {
	query := `SELECT ` + linkColumns + ` FROM links WHERE owner_id = ? ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`
	return r.queryLinks(ctx, query, ownerID, limit, offset)
}

func (r *SQLiteRepository) CountByOwner(ctx context.Context, ownerID string) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM links WHERE owner_id = ?`, ownerID).Scan(&count)
	return count, err
}

// Dump returns every link, for export.
func (r *SQLiteRepository) Dump(ctx context.Context) ([]domain.ProtectedLink, error) {
	return r.queryLinks(ctx, `SELECT `+linkColumns+` FROM links ORDER BY id`)
}

func (r *SQLiteRepository) queryLinks(ctx context.Context, query string, args ...any) ([]domain.ProtectedLink, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var links []domain.ProtectedLink
	for rows.Next() {
		l, err := scanLink(rows)
		if err != nil {
			return nil, err
		}
		links = append(links, *l)
	}
	return links, rows.Err()
}

func (r *SQLiteRepository) RecordVisit(ctx context.Context, visit *domain.Visit) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	queryVisit := `INSERT INTO visits (link_id, referer, user_agent, ip_hash, created_at) VALUES (?, ?, ?, ?, ?)`
	res, err := tx.ExecContext(ctx, queryVisit, visit.LinkID, visit.Referer, visit.UserAgent, visit.IPHash, millis(visit.CreatedAt))
	if err != nil {
		return err
	}
	if visit.ID, err = res.LastInsertId(); err != nil {
		return err
	}

	if _, err = tx.ExecContext(ctx, `UPDATE links SET clicks = clicks + 1 WHERE id = ?`, visit.LinkID); err != nil {
		return err
	}

	return tx.Commit()
}

func (r *SQLiteRepository) GetLinkStats(ctx context.Context, linkID int64) (*domain.LinkStats, error) {
	stats := &domain.LinkStats{
		Referrers:   make(map[string]int64),
		DailyClicks: []domain.DailyClick{},
	}

	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM visits WHERE link_id = ?`, linkID).Scan(&stats.TotalClicks)
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, `SELECT referer, COUNT(*) AS c FROM visits WHERE link_id = ? GROUP BY referer ORDER BY c DESC LIMIT 10`, linkID)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var ref string
		var count int64
		if err := rows.Scan(&ref, &count); err != nil {
			rows.Close()
			return nil, err
		}
		if ref == "" {
			ref = "Direct"
		}
		stats.Referrers[ref] = count
	}
	rows.Close()

	// Last 30 days with traffic
	daily, err := r.db.QueryContext(ctx, `
		SELECT strftime('%Y-%m-%d', created_at / 1000, 'unixepoch') AS date, COUNT(*)
		FROM visits
		WHERE link_id = ?
		GROUP BY date
		ORDER BY date DESC
		LIMIT 30`, linkID)
	if err != nil {
		return nil, err
	}
	defer daily.Close()
	for daily.Next() {
		var dc domain.DailyClick
		if err := daily.Scan(&dc.Date, &dc.Count); err != nil {
			return nil, err
		}
		stats.DailyClicks = append(stats.DailyClicks, dc)
	}

	return stats, daily.Err()
}

func (r *SQLiteRepository) UpsertCredential(ctx context.Context, cred *domain.ProviderCredential) error {
	query := `INSERT INTO provider_credentials (owner_id, provider, api_key, created_at) VALUES (?, ?, ?, ?)
			  ON CONFLICT(owner_id, provider) DO UPDATE SET api_key = excluded.api_key`
	_, err := r.db.ExecContext(ctx, query, cred.OwnerID, cred.Provider, cred.APIKey, millis(cred.CreatedAt))
	return err
}

func (r *SQLiteRepository) ListCredentials(ctx context.Context, ownerID string) ([]domain.ProviderCredential, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT owner_id, provider, api_key, created_at FROM provider_credentials WHERE owner_id = ? ORDER BY provider`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var creds []domain.ProviderCredential
	for rows.Next() {
		var c domain.ProviderCredential
		var created int64
		if err := rows.Scan(&c.OwnerID, &c.Provider, &c.APIKey, &created); err != nil {
			return nil, err
		}
		c.CreatedAt = fromMillis(created)
		creds = append(creds, c)
	}
	return creds, rows.Err()
}
