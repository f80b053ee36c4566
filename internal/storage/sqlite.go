package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"newsbot/internal/schedule"
	logx "newsbot/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

// DefaultKeepActivity bounds the activity log table.
const DefaultKeepActivity = 5000

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger

	opCount      atomic.Uint64
	pruneEvery   uint64
	keepActivity int
}

type rowScanner interface {
	Scan(dest ...any) error
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log, pruneEvery: 200, keepActivity: DefaultKeepActivity}

	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate %s: %w", path, err)
	}
	log.Debug("sqlite store ready", logx.String("path", path))
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// --- schedules ---

const scheduleCols = `id, name, frequency, time_of_day, source_url, max_articles, auto_approve, enabled, last_run, next_run, created_at, updated_at`

func (s *sqliteStore) ListSchedules(ctx context.Context) ([]schedule.Schedule, error) {
	return s.querySchedules(ctx, `SELECT `+scheduleCols+` FROM schedules ORDER BY created_at, rowid`)
}

func (s *sqliteStore) ListEnabledSchedules(ctx context.Context) ([]schedule.Schedule, error) {
	return s.querySchedules(ctx, `SELECT `+scheduleCols+` FROM schedules WHERE enabled = 1 ORDER BY created_at, rowid`)
}

func (s *sqliteStore) querySchedules(ctx context.Context, q string, args ...any) ([]schedule.Schedule, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []schedule.Schedule
	for rows.Next() {
		sc, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

func (s *sqliteStore) GetSchedule(ctx context.Context, id string) (schedule.Schedule, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+scheduleCols+` FROM schedules WHERE id = ?`, id)
	sc, err := scanSchedule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return schedule.Schedule{}, ErrNotFound
	}
	return sc, err
}

func (s *sqliteStore) CreateSchedule(ctx context.Context, sc schedule.Schedule) error {
	if sc.ID == "" {
		sc.ID = uuid.NewString()
	}
	now := time.Now()
	if sc.CreatedAt.IsZero() {
		sc.CreatedAt = now
	}
	if sc.UpdatedAt.IsZero() {
		sc.UpdatedAt = sc.CreatedAt
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO schedules(`+scheduleCols+`) VALUES(?,?,?,?,?,?,?,?,?,?,?,?)`,
		sc.ID, sc.Name, string(sc.Frequency), sc.Time, sc.SourceURL, sc.MaxArticles,
		boolInt(sc.AutoApprove), boolInt(sc.Enabled), nullTime(sc.LastRun), fmtTime(sc.NextRun),
		fmtTime(sc.CreatedAt), fmtTime(sc.UpdatedAt),
	)
	return err
}

func (s *sqliteStore) UpdateSchedule(ctx context.Context, sc schedule.Schedule) error {
	if sc.UpdatedAt.IsZero() {
		sc.UpdatedAt = time.Now()
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE schedules SET name=?, frequency=?, time_of_day=?, source_url=?, max_articles=?,
		 auto_approve=?, enabled=?, last_run=?, next_run=?, updated_at=? WHERE id=?`,
		sc.Name, string(sc.Frequency), sc.Time, sc.SourceURL, sc.MaxArticles,
		boolInt(sc.AutoApprove), boolInt(sc.Enabled), nullTime(sc.LastRun), fmtTime(sc.NextRun),
		fmtTime(sc.UpdatedAt), sc.ID,
	)
	return affectedOrNotFound(res, err)
}

func (s *sqliteStore) RecordRun(ctx context.Context, id string, at time.Time) (schedule.Schedule, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return schedule.Schedule{}, err
	}
	defer func() { _ = tx.Rollback() }()

	sc, err := scanSchedule(tx.QueryRowContext(ctx, `SELECT `+scheduleCols+` FROM schedules WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return schedule.Schedule{}, ErrNotFound
	}
	if err != nil {
		return schedule.Schedule{}, err
	}
	next, err := schedule.NextRun(sc.Frequency, sc.Time, at)
	if err != nil {
		return schedule.Schedule{}, err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE schedules SET last_run=?, next_run=?, updated_at=? WHERE id=?`,
		nullTime(&at), fmtTime(next), fmtTime(at), id,
	); err != nil {
		return schedule.Schedule{}, err
	}
	if err := tx.Commit(); err != nil {
		return schedule.Schedule{}, err
	}
	sc.LastRun = &at
	sc.NextRun = next
	sc.UpdatedAt = at
	return sc, nil
}

func (s *sqliteStore) DeleteSchedule(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM schedules WHERE id = ?`, id)
	return affectedOrNotFound(res, err)
}

func scanSchedule(r rowScanner) (schedule.Schedule, error) {
	var (
		sc                    schedule.Schedule
		freq                  string
		autoApprove, enabled  int
		lastRun               sql.NullString
		nextRun, created, upd string
	)
	err := r.Scan(&sc.ID, &sc.Name, &freq, &sc.Time, &sc.SourceURL, &sc.MaxArticles,
		&autoApprove, &enabled, &lastRun, &nextRun, &created, &upd)
	if err != nil {
		return schedule.Schedule{}, err
	}
	sc.Frequency = schedule.Frequency(freq)
	sc.AutoApprove = autoApprove != 0
	sc.Enabled = enabled != 0
	sc.LastRun = parseNullTime(lastRun)
	sc.NextRun = parseTime(nextRun)
	sc.CreatedAt = parseTime(created)
	sc.UpdatedAt = parseTime(upd)
	return sc, nil
}

// --- settings ---

func (s *sqliteStore) GetSettings(ctx context.Context) (Settings, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM settings WHERE id = 1`).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return DefaultSettings(), nil
	}
	if err != nil {
		return Settings{}, err
	}
	st := DefaultSettings()
	if err := json.Unmarshal([]byte(data), &st); err != nil {
		return Settings{}, fmt.Errorf("decode settings: %w", err)
	}
	return st, nil
}

func (s *sqliteStore) SaveSettings(ctx context.Context, st Settings) error {
	if st.UpdatedAt.IsZero() {
		st.UpdatedAt = time.Now()
	}
	b, err := json.Marshal(st)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO settings(id, data, updated_at) VALUES(1, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET data=excluded.data, updated_at=excluded.updated_at`,
		string(b), fmtTime(st.UpdatedAt),
	)
	return err
}

// --- articles ---

const articleCols = `id, title, content, source, url, published_date, selected, created_at`

func (s *sqliteStore) ListArticles(ctx context.Context) ([]Article, error) {
	return s.queryArticles(ctx, `SELECT `+articleCols+` FROM articles ORDER BY created_at, rowid`)
}

func (s *sqliteStore) ListSelectedArticles(ctx context.Context) ([]Article, error) {
	return s.queryArticles(ctx, `SELECT `+articleCols+` FROM articles WHERE selected = 1 ORDER BY created_at, rowid`)
}

func (s *sqliteStore) queryArticles(ctx context.Context, q string, args ...any) ([]Article, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Article
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *sqliteStore) GetArticle(ctx context.Context, id string) (Article, error) {
	a, err := scanArticle(s.db.QueryRowContext(ctx, `SELECT `+articleCols+` FROM articles WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Article{}, ErrNotFound
	}
	return a, err
}

func (s *sqliteStore) CreateArticle(ctx context.Context, a Article) (Article, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO articles(`+articleCols+`) VALUES(?,?,?,?,?,?,?,?)`,
		a.ID, a.Title, a.Content, a.Source, a.URL, nullTime(a.PublishedDate), boolInt(a.Selected), fmtTime(a.CreatedAt),
	)
	if err != nil {
		return Article{}, err
	}
	return a, nil
}

func (s *sqliteStore) SetArticleSelected(ctx context.Context, id string, selected bool) (Article, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE articles SET selected = ? WHERE id = ?`, boolInt(selected), id)
	if err := affectedOrNotFound(res, err); err != nil {
		return Article{}, err
	}
	return s.GetArticle(ctx, id)
}

func (s *sqliteStore) ClearArticles(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM articles`)
	return err
}

func scanArticle(r rowScanner) (Article, error) {
	var (
		a         Article
		published sql.NullString
		selected  int
		created   string
	)
	if err := r.Scan(&a.ID, &a.Title, &a.Content, &a.Source, &a.URL, &published, &selected, &created); err != nil {
		return Article{}, err
	}
	a.PublishedDate = parseNullTime(published)
	a.Selected = selected != 0
	a.CreatedAt = parseTime(created)
	return a, nil
}

// --- newsletters ---

const newsletterCols = `id, issue_number, title, content, word_count, status, frequency, approval_token,
	approved_at, rejected_at, rejection_reason, published_at, external_id, external_url, created_at, updated_at`

func (s *sqliteStore) CreateNewsletter(ctx context.Context, n Newsletter) (Newsletter, error) {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	if n.UpdatedAt.IsZero() {
		n.UpdatedAt = n.CreatedAt
	}
	if n.Status == "" {
		n.Status = StatusDraft
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO newsletters(`+newsletterCols+`) VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		n.ID, n.IssueNumber, n.Title, n.Content, n.WordCount, string(n.Status), nullStr(n.Frequency),
		nullStr(n.ApprovalToken), nullTime(n.ApprovedAt), nullTime(n.RejectedAt), nullStr(n.RejectionReason),
		nullTime(n.PublishedAt), nullStr(n.ExternalID), nullStr(n.ExternalURL),
		fmtTime(n.CreatedAt), fmtTime(n.UpdatedAt),
	)
	if err != nil {
		return Newsletter{}, err
	}
	return n, nil
}

func (s *sqliteStore) GetNewsletter(ctx context.Context, id string) (Newsletter, error) {
	n, err := scanNewsletter(s.db.QueryRowContext(ctx, `SELECT `+newsletterCols+` FROM newsletters WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Newsletter{}, ErrNotFound
	}
	return n, err
}

func (s *sqliteStore) ListNewsletters(ctx context.Context, limit int) ([]Newsletter, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+newsletterCols+` FROM newsletters ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Newsletter
	for rows.Next() {
		n, err := scanNewsletter(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *sqliteStore) UpdateNewsletter(ctx context.Context, n Newsletter) error {
	if n.UpdatedAt.IsZero() {
		n.UpdatedAt = time.Now()
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE newsletters SET issue_number=?, title=?, content=?, word_count=?, status=?, frequency=?,
		 approval_token=?, approved_at=?, rejected_at=?, rejection_reason=?, published_at=?,
		 external_id=?, external_url=?, updated_at=? WHERE id=?`,
		n.IssueNumber, n.Title, n.Content, n.WordCount, string(n.Status), nullStr(n.Frequency),
		nullStr(n.ApprovalToken), nullTime(n.ApprovedAt), nullTime(n.RejectedAt), nullStr(n.RejectionReason),
		nullTime(n.PublishedAt), nullStr(n.ExternalID), nullStr(n.ExternalURL), fmtTime(n.UpdatedAt), n.ID,
	)
	return affectedOrNotFound(res, err)
}

func (s *sqliteStore) NextIssueNumber(ctx context.Context, start int) (int, error) {
	var latest sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(issue_number) FROM newsletters`).Scan(&latest); err != nil {
		return 0, err
	}
	if !latest.Valid {
		if start <= 0 {
			start = 1
		}
		return start, nil
	}
	return int(latest.Int64) + 1, nil
}

func scanNewsletter(r rowScanner) (Newsletter, error) {
	var (
		n                                   Newsletter
		status                              string
		freq, token, reason, extID, extURL  sql.NullString
		approvedAt, rejectedAt, publishedAt sql.NullString
		created, updated                    string
	)
	err := r.Scan(&n.ID, &n.IssueNumber, &n.Title, &n.Content, &n.WordCount, &status, &freq, &token,
		&approvedAt, &rejectedAt, &reason, &publishedAt, &extID, &extURL, &created, &updated)
	if err != nil {
		return Newsletter{}, err
	}
	n.Status = NewsletterStatus(status)
	n.Frequency = freq.String
	n.ApprovalToken = token.String
	n.ApprovedAt = parseNullTime(approvedAt)
	n.RejectedAt = parseNullTime(rejectedAt)
	n.RejectionReason = reason.String
	n.PublishedAt = parseNullTime(publishedAt)
	n.ExternalID = extID.String
	n.ExternalURL = extURL.String
	n.CreatedAt = parseTime(created)
	n.UpdatedAt = parseTime(updated)
	return n, nil
}

// --- social posts ---

func (s *sqliteStore) CreateSocialPost(ctx context.Context, p SocialPost) (SocialPost, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO social_posts(id, newsletter_id, platform, content, created_at) VALUES(?,?,?,?,?)`,
		p.ID, p.NewsletterID, string(p.Platform), p.Content, fmtTime(p.CreatedAt),
	)
	if err != nil {
		return SocialPost{}, err
	}
	return p, nil
}

func (s *sqliteStore) ListSocialPosts(ctx context.Context, newsletterID string) ([]SocialPost, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, newsletter_id, platform, content, created_at FROM social_posts
		 WHERE newsletter_id = ? ORDER BY created_at, rowid`, newsletterID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []SocialPost
	for rows.Next() {
		var (
			p        SocialPost
			platform string
			created  string
		)
		if err := rows.Scan(&p.ID, &p.NewsletterID, &platform, &p.Content, &created); err != nil {
			return nil, err
		}
		p.Platform = Platform(platform)
		p.CreatedAt = parseTime(created)
		out = append(out, p)
	}
	return out, rows.Err()
}

// --- activity log ---

func (s *sqliteStore) CreateActivityLog(ctx context.Context, e ActivityLog) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	if e.Type == "" {
		e.Type = ActivityInfo
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO activity_logs(message, details, type, created_at) VALUES(?,?,?,?)`,
		e.Message, nullStr(e.Details), string(e.Type), fmtTime(e.CreatedAt),
	)
	if err == nil && s.opCount.Add(1)%s.pruneEvery == 0 {
		pctx, cancel := context.WithTimeout(context.Background(), 250*time.Millisecond)
		if perr := s.pruneActivity(pctx); perr != nil {
			s.log.Warn("activity prune failed", logx.Err(perr))
		}
		cancel()
	}
	return err
}

func (s *sqliteStore) ListActivityLogs(ctx context.Context, limit int) ([]ActivityLog, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, message, details, type, created_at FROM activity_logs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ActivityLog
	for rows.Next() {
		var (
			e       ActivityLog
			details sql.NullString
			typ     string
			created string
		)
		if err := rows.Scan(&e.ID, &e.Message, &details, &typ, &created); err != nil {
			return nil, err
		}
		e.Details = details.String
		e.Type = ActivityType(typ)
		e.CreatedAt = parseTime(created)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *sqliteStore) pruneActivity(ctx context.Context) error {
	if s.keepActivity <= 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM activity_logs WHERE id <= (SELECT MAX(id) FROM activity_logs) - ?`, s.keepActivity)
	return err
}

// --- helpers ---

func affectedOrNotFound(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// timeLayout is fixed-width so TEXT columns sort chronologically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func fmtTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nullTime(t *time.Time) any {
	if t == nil || t.IsZero() {
		return nil
	}
	return fmtTime(*t)
}

func parseNullTime(ns sql.NullString) *time.Time {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	t := parseTime(ns.String)
	if t.IsZero() {
		return nil
	}
	return &t
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
