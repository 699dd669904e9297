package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/blackmichael/crossfeed/internal/domain"
	"github.com/blackmichael/crossfeed/internal/richtext"
)

const schema = `
CREATE TABLE IF NOT EXISTS canonical_posts (
	id                      TEXT PRIMARY KEY,
	origin_network          TEXT NOT NULL,
	created_at              INTEGER NOT NULL,
	last_social_activity_at INTEGER NOT NULL,
	body                    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS native_keys (
	platform     TEXT NOT NULL,
	native_id    TEXT NOT NULL,
	canonical_id TEXT NOT NULL,
	PRIMARY KEY (platform, native_id)
);
CREATE INDEX IF NOT EXISTS native_keys_canonical_id ON native_keys (canonical_id);

CREATE TABLE IF NOT EXISTS timeline_entries (
	id                TEXT PRIMARY KEY,
	timeline_id       TEXT NOT NULL,
	canonical_post_id TEXT NOT NULL,
	sort_key          INTEGER NOT NULL,
	source_context    TEXT NOT NULL,
	updated_at        INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS timeline_entries_order
	ON timeline_entries (timeline_id, sort_key DESC, canonical_post_id DESC);

CREATE TABLE IF NOT EXISTS cursors (
	service      TEXT PRIMARY KEY,
	cursor_value INTEGER NOT NULL,
	updated_at   INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS drafts (
	id         TEXT PRIMARY KEY,
	body       TEXT NOT NULL,
	updated_at INTEGER NOT NULL
);`

// Repository implements domain.TimelineRepository, domain.CursorRepository
// and draft storage using SQLite. Timestamps are stored as unix millis.
type Repository struct {
	db  *sql.DB
	now func() time.Time
}

var (
	_ domain.TimelineRepository = (*Repository)(nil)
	_ domain.CursorRepository   = (*Repository)(nil)
)

// NewRepository opens the SQLite database at path (":memory:" for a
// throwaway one), creates the schema and returns a new Repository. The caller
// should call Close when the repository is no longer needed.
func NewRepository(ctx context.Context, path string) (*Repository, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One connection serializes writers and keeps an in-memory database alive.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	for _, pragma := range []string{"PRAGMA journal_mode = WAL", "PRAGMA busy_timeout = 5000"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("set %q: %w", pragma, err)
		}
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &Repository{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

// Close closes the underlying database connection.
func (r *Repository) Close() error {
	return r.db.Close()
}

// SaveCanonicalPost inserts or updates a canonical post and points all of its
// native keys at it.
func (r *Repository) SaveCanonicalPost(ctx context.Context, post *domain.CanonicalPost) error {
	body, err := json.Marshal(post)
	if err != nil {
		return fmt.Errorf("encode canonical post: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO canonical_posts (id, origin_network, created_at, last_social_activity_at, body)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			last_social_activity_at = excluded.last_social_activity_at,
			body = excluded.body`,
		post.ID,
		string(post.OriginNetwork),
		post.CreatedAt.UnixMilli(),
		post.LastSocialActivityAt.UnixMilli(),
		string(body),
	)
	if err != nil {
		return fmt.Errorf("upsert canonical post %s: %w", post.ID, err)
	}

	for _, key := range post.Keys() {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO native_keys (platform, native_id, canonical_id)
			VALUES (?, ?, ?)
			ON CONFLICT (platform, native_id) DO UPDATE SET canonical_id = excluded.canonical_id`,
			string(key.Platform), key.ID, post.ID,
		)
		if err != nil {
			return fmt.Errorf("upsert native key %s: %w", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// GetCanonicalPost returns (nil, nil) when no post has the ID.
func (r *Repository) GetCanonicalPost(ctx context.Context, id string) (*domain.CanonicalPost, error) {
	var body string
	err := r.db.QueryRowContext(ctx, `SELECT body FROM canonical_posts WHERE id = ?`, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query canonical post %s: %w", id, err)
	}

	var post domain.CanonicalPost
	if err := json.Unmarshal([]byte(body), &post); err != nil {
		return nil, fmt.Errorf("decode canonical post %s: %w", id, err)
	}

	rows, err := r.db.QueryContext(ctx, `SELECT platform, native_id FROM native_keys WHERE canonical_id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("query native keys of %s: %w", id, err)
	}
	defer rows.Close()

	post.NativeKeys = make(map[domain.NativePostKey]struct{})
	for rows.Next() {
		var key domain.NativePostKey
		var platform string
		if err := rows.Scan(&platform, &key.ID); err != nil {
			return nil, fmt.Errorf("scan native key: %w", err)
		}
		key.Platform = domain.Platform(platform)
		post.NativeKeys[key] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate native keys: %w", err)
	}
	return &post, nil
}

// GetCanonicalPostByNativeKey returns (nil, nil) when the key is unknown.
func (r *Repository) GetCanonicalPostByNativeKey(ctx context.Context, key domain.NativePostKey) (*domain.CanonicalPost, error) {
	var id string
	err := r.db.QueryRowContext(ctx,
		`SELECT canonical_id FROM native_keys WHERE platform = ? AND native_id = ?`,
		string(key.Platform), key.ID,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query native key %s: %w", key, err)
	}
	return r.GetCanonicalPost(ctx, id)
}

// DeleteCanonicalPost removes a canonical post together with its native keys
// and timeline entries.
func (r *Repository) DeleteCanonicalPost(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range []string{
		`DELETE FROM timeline_entries WHERE canonical_post_id = ?`,
		`DELETE FROM native_keys WHERE canonical_id = ?`,
		`DELETE FROM canonical_posts WHERE id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, stmt, id); err != nil {
			return fmt.Errorf("delete canonical post %s: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// UpsertTimelineEntry inserts an entry or moves an existing one to its new
// sort key.
func (r *Repository) UpsertTimelineEntry(ctx context.Context, entry domain.CanonicalTimelineEntry) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO timeline_entries (id, timeline_id, canonical_post_id, sort_key, source_context, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			sort_key = excluded.sort_key,
			source_context = excluded.source_context,
			updated_at = excluded.updated_at`,
		entry.ID,
		entry.TimelineID,
		entry.CanonicalPostID,
		entry.SortKey.UnixMilli(),
		entry.SourceContext,
		entry.UpdatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("upsert timeline entry %s: %w", entry.ID, err)
	}
	return nil
}

// GetTimelineEntries retrieves entries paginated by cursor.
// The cursor format is "sortKey::canonicalPostID" (unix millis::id).
func (r *Repository) GetTimelineEntries(ctx context.Context, timelineID string, limit int, cursor string) ([]domain.CanonicalTimelineEntry, string, error) {
	var (
		rows *sql.Rows
		err  error
	)

	if cursor != "" {
		cursorKey, cursorID, parseErr := parseCursor(cursor)
		if parseErr != nil {
			return nil, "", fmt.Errorf("invalid cursor '%s': %w", cursor, parseErr)
		}

		rows, err = r.db.QueryContext(ctx, `
			SELECT id, timeline_id, canonical_post_id, sort_key, source_context, updated_at
			FROM timeline_entries
			WHERE timeline_id = ?
			  AND (sort_key < ? OR (sort_key = ? AND canonical_post_id < ?))
			ORDER BY sort_key DESC, canonical_post_id DESC
			LIMIT ?`,
			timelineID, cursorKey, cursorKey, cursorID, limit,
		)
		if err != nil {
			return nil, "", fmt.Errorf("query entries with cursor (key=%d, id=%s, limit=%d): %w", cursorKey, cursorID, limit, err)
		}
	} else {
		rows, err = r.db.QueryContext(ctx, `
			SELECT id, timeline_id, canonical_post_id, sort_key, source_context, updated_at
			FROM timeline_entries
			WHERE timeline_id = ?
			ORDER BY sort_key DESC, canonical_post_id DESC
			LIMIT ?`,
			timelineID, limit,
		)
		if err != nil {
			return nil, "", fmt.Errorf("query entries without cursor (limit=%d): %w", limit, err)
		}
	}
	defer rows.Close()

	var entries []domain.CanonicalTimelineEntry
	for rows.Next() {
		var (
			e                  domain.CanonicalTimelineEntry
			sortKey, updatedAt int64
		)
		err := rows.Scan(
			&e.ID,
			&e.TimelineID,
			&e.CanonicalPostID,
			&sortKey,
			&e.SourceContext,
			&updatedAt,
		)
		if err != nil {
			return nil, "", fmt.Errorf("scan entry: %w", err)
		}
		e.SortKey = time.UnixMilli(sortKey).UTC()
		e.UpdatedAt = time.UnixMilli(updatedAt).UTC()
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, "", fmt.Errorf("iterate entries: %w", err)
	}

	var nextCursor string
	if limit > 0 && len(entries) == limit {
		last := entries[len(entries)-1]
		nextCursor = fmt.Sprintf("%d::%s", last.SortKey.UnixMilli(), last.CanonicalPostID)
	}

	return entries, nextCursor, nil
}

// DeleteOldPosts removes entries whose sort key is older than maxAge and any
// excess rows beyond maxRows, keeping the most recent. Canonical posts no
// entry refers to any more are dropped with them. Returns the number of
// entries deleted.
func (r *Repository) DeleteOldPosts(ctx context.Context, maxAge time.Duration, maxRows int) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Delete entries older than maxAge
	res, err := tx.ExecContext(ctx,
		`DELETE FROM timeline_entries WHERE sort_key < ?`,
		r.now().Add(-maxAge).UnixMilli(),
	)
	if err != nil {
		return 0, fmt.Errorf("delete expired entries: %w", err)
	}
	ttlDeleted, _ := res.RowsAffected()

	// Delete excess rows beyond maxRows, keeping the most recent
	res, err = tx.ExecContext(ctx, `
		DELETE FROM timeline_entries WHERE id IN (
			SELECT id FROM timeline_entries
			ORDER BY sort_key DESC, canonical_post_id DESC
			LIMIT -1 OFFSET ?
		)`, maxRows,
	)
	if err != nil {
		return 0, fmt.Errorf("delete excess entries: %w", err)
	}
	capDeleted, _ := res.RowsAffected()

	for _, stmt := range []string{
		`DELETE FROM native_keys WHERE canonical_id NOT IN (SELECT canonical_post_id FROM timeline_entries)`,
		`DELETE FROM canonical_posts WHERE id NOT IN (SELECT canonical_post_id FROM timeline_entries)`,
	} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return 0, fmt.Errorf("delete orphaned posts: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit transaction: %w", err)
	}

	return ttlDeleted + capDeleted, nil
}

// GetCursor retrieves the saved firehose cursor for a service.
func (r *Repository) GetCursor(ctx context.Context, service string) (int64, error) {
	var cursor int64
	err := r.db.QueryRowContext(ctx,
		`SELECT cursor_value FROM cursors WHERE service = ?`, service,
	).Scan(&cursor)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return cursor, err
}

// UpdateCursor upserts the firehose cursor for a service.
func (r *Repository) UpdateCursor(ctx context.Context, service string, cursor int64) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO cursors (service, cursor_value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (service) DO UPDATE SET
			cursor_value = excluded.cursor_value,
			updated_at = excluded.updated_at`,
		service, cursor, r.now().UnixMilli(),
	)
	return err
}

// SaveDraft stores a composer draft under id, replacing any earlier one.
func (r *Repository) SaveDraft(ctx context.Context, id string, draft richtext.Draft) error {
	body, err := json.Marshal(draft)
	if err != nil {
		return fmt.Errorf("encode draft: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO drafts (id, body, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at`,
		id, string(body), r.now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("save draft %s: %w", id, err)
	}
	return nil
}

// GetDraft returns (nil, nil) when no draft has the ID.
func (r *Repository) GetDraft(ctx context.Context, id string) (*richtext.Draft, error) {
	var body string
	err := r.db.QueryRowContext(ctx, `SELECT body FROM drafts WHERE id = ?`, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query draft %s: %w", id, err)
	}

	var draft richtext.Draft
	if err := json.Unmarshal([]byte(body), &draft); err != nil {
		return nil, fmt.Errorf("decode draft %s: %w", id, err)
	}
	return &draft, nil
}

func parseCursor(cursor string) (int64, string, error) {
	parts := strings.SplitN(cursor, "::", 2)
	if len(parts) != 2 || parts[1] == "" {
		return 0, "", fmt.Errorf("cursor must be in format 'timestamp::id'")
	}
	millis, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, "", fmt.Errorf("invalid timestamp in cursor: %w", err)
	}
	return millis, parts[1], nil
}
