package repository

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Clark-Hu/watchvault/internal/domain"
)

// ChangeChannel is the LISTEN/NOTIFY channel fired by every vault write.
const ChangeChannel = "vault_changes"

// VaultRepository persists per-user vault entries.
type VaultRepository struct {
	pool    *pgxpool.Pool
	changes *changeHub
}

// NewVaultRepository constructs a VaultRepository over pool.
func NewVaultRepository(pool *pgxpool.Pool) *VaultRepository {
	return &VaultRepository{pool: pool, changes: newChangeHub(pool)}
}

const entryColumns = `
    entry_key,
    tmdb_id,
    media_type,
    title,
    poster_path,
    vote_average,
    status,
    added_at,
    item
`

// EntryListFilters narrows and paginates a vault listing.
type EntryListFilters struct {
	Status *domain.Status
	Limit  int
	Cursor *EntryCursor
}

// EntryCursor allows stable pagination by added_at/entry_key.
type EntryCursor struct {
	AddedAt time.Time `json:"addedAt"`
	Key     string    `json:"key"`
}

// EntryPage is one page of vault entries.
type EntryPage struct {
	Items      []domain.VaultEntry
	NextCursor *string
}

// StatusCounts reports how many entries each list holds.
type StatusCounts struct {
	Watched   int64 `json:"watched"`
	Watchlist int64 `json:"watchlist"`
}

// Upsert stores entry under its key, replacing any previous entry (last write
// wins), and reports whether the row was newly created.
func (r *VaultRepository) Upsert(ctx context.Context, userID string, entry domain.VaultEntry) (domain.VaultEntry, bool, error) {
	itemJSON, err := marshalItem(entry.Item)
	if err != nil {
		return domain.VaultEntry{}, false, err
	}

	query := fmt.Sprintf(`
        INSERT INTO vault_entries (user_id, entry_key, tmdb_id, media_type, title, poster_path, vote_average, status, added_at, item)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
        ON CONFLICT (user_id, entry_key)
        DO UPDATE SET tmdb_id = EXCLUDED.tmdb_id,
                      media_type = EXCLUDED.media_type,
                      title = EXCLUDED.title,
                      poster_path = EXCLUDED.poster_path,
                      vote_average = EXCLUDED.vote_average,
                      status = EXCLUDED.status,
                      added_at = EXCLUDED.added_at,
                      item = EXCLUDED.item,
                      updated_at = now()
        RETURNING %s, (xmax = 0) AS inserted
    `, entryColumns)

	row := r.pool.QueryRow(ctx, query,
		userID,
		entry.Key,
		entry.TMDBID,
		string(entry.Kind),
		entry.Title,
		entry.PosterPath,
		entry.VoteAverage,
		string(entry.Status),
		entry.AddedAt,
		itemJSON,
	)

	var inserted bool
	stored, err := scanEntry(row, &inserted)
	if err != nil {
		return domain.VaultEntry{}, false, fmt.Errorf("upsert vault entry: %w", err)
	}
	return stored, inserted, nil
}

// Delete removes the entry stored under key.
func (r *VaultRepository) Delete(ctx context.Context, userID, key string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM vault_entries WHERE user_id = $1 AND entry_key = $2`, userID, key)
	if err != nil {
		return fmt.Errorf("delete vault entry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Get fetches a single entry.
func (r *VaultRepository) Get(ctx context.Context, userID, key string) (domain.VaultEntry, error) {
	query := fmt.Sprintf(`SELECT %s FROM vault_entries WHERE user_id = $1 AND entry_key = $2`, entryColumns)
	entry, err := scanEntry(r.pool.QueryRow(ctx, query, userID, key))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.VaultEntry{}, ErrNotFound
		}
		return domain.VaultEntry{}, err
	}
	return entry, nil
}

// List returns every entry of a user, newest first.
func (r *VaultRepository) List(ctx context.Context, userID string) ([]domain.VaultEntry, error) {
	query := fmt.Sprintf(`SELECT %s FROM vault_entries WHERE user_id = $1 ORDER BY added_at DESC, entry_key DESC`, entryColumns)
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	return collectEntries(rows)
}

// Page returns entries matching filters, newest first, with a cursor to the
// next page when more rows may exist.
func (r *VaultRepository) Page(ctx context.Context, userID string, filters EntryListFilters) (EntryPage, error) {
	if filters.Limit <= 0 {
		filters.Limit = 20
	} else if filters.Limit > 100 {
		filters.Limit = 100
	}

	args := make([]interface{}, 0, 4)
	arg := func(value interface{}) string {
		args = append(args, value)
		return fmt.Sprintf("$%d", len(args))
	}

	where := []string{"user_id = " + arg(userID)}
	if filters.Status != nil {
		where = append(where, "status = "+arg(string(*filters.Status)))
	}
	if filters.Cursor != nil {
		cursorAdded := arg(filters.Cursor.AddedAt)
		cursorKey := arg(filters.Cursor.Key)
		where = append(where, fmt.Sprintf("(added_at, entry_key) < (%s, %s)", cursorAdded, cursorKey))
	}

	query := fmt.Sprintf(`SELECT %s FROM vault_entries WHERE %s ORDER BY added_at DESC, entry_key DESC LIMIT %d`,
		entryColumns, strings.Join(where, " AND "), filters.Limit)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return EntryPage{}, err
	}
	items, err := collectEntries(rows)
	if err != nil {
		return EntryPage{}, err
	}

	var nextCursor *string
	if len(items) == filters.Limit {
		last := items[len(items)-1]
		token, err := encodeCursor(EntryCursor{AddedAt: last.AddedAt, Key: last.Key})
		if err != nil {
			return EntryPage{}, err
		}
		nextCursor = &token
	}
	return EntryPage{Items: items, NextCursor: nextCursor}, nil
}

// Counts returns the number of entries per status.
func (r *VaultRepository) Counts(ctx context.Context, userID string) (StatusCounts, error) {
	const query = `
        SELECT COUNT(*) FILTER (WHERE status = 'watched')::int8,
               COUNT(*) FILTER (WHERE status = 'watchlist')::int8
        FROM vault_entries
        WHERE user_id = $1
    `
	var counts StatusCounts
	if err := r.pool.QueryRow(ctx, query, userID).Scan(&counts.Watched, &counts.Watchlist); err != nil {
		return StatusCounts{}, fmt.Errorf("count vault entries: %w", err)
	}
	return counts, nil
}

// Snapshot captures the full vault of a user.
func (r *VaultRepository) Snapshot(ctx context.Context, userID string) (domain.VaultSnapshot, error) {
	entries, err := r.List(ctx, userID)
	if err != nil {
		return domain.VaultSnapshot{}, err
	}
	return domain.VaultSnapshot{UserID: userID, Entries: entries, TakenAt: time.Now().UTC()}, nil
}

// Subscribe streams full snapshots of a user's vault: one immediately, then a
// fresh one after every committed change. The channel is closed when ctx ends
// or the shared listening connection fails. Subscriptions share one LISTEN
// connection; a connection is borrowed only while a snapshot is read.
func (r *VaultRepository) Subscribe(ctx context.Context, userID string) (<-chan domain.VaultSnapshot, error) {
	sub, err := r.changes.register(ctx, userID)
	if err != nil {
		return nil, err
	}

	initial, err := r.Snapshot(ctx, userID)
	if err != nil {
		r.changes.unregister(userID, sub)
		return nil, err
	}

	out := make(chan domain.VaultSnapshot, 1)
	out <- initial

	go func() {
		defer close(out)
		defer r.changes.unregister(userID, sub)

		for {
			select {
			case <-ctx.Done():
				return
			case <-sub.closed:
				return
			case <-sub.signal:
			}
			snapshot, err := r.Snapshot(ctx, userID)
			if err != nil {
				return
			}
			select {
			case out <- snapshot:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

func collectEntries(rows pgx.Rows) ([]domain.VaultEntry, error) {
	defer rows.Close()

	entries := make([]domain.VaultEntry, 0)
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func scanEntry(row pgx.Row, extra ...any) (domain.VaultEntry, error) {
	var (
		entry    domain.VaultEntry
		kind     string
		status   string
		itemJSON []byte
	)

	dest := []any{
		&entry.Key,
		&entry.TMDBID,
		&kind,
		&entry.Title,
		&entry.PosterPath,
		&entry.VoteAverage,
		&status,
		&entry.AddedAt,
		&itemJSON,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return domain.VaultEntry{}, err
	}

	entry.Kind = domain.Kind(kind)
	entry.Status = domain.Status(status)
	entry.AddedAt = entry.AddedAt.UTC()

	if len(itemJSON) > 0 {
		var item domain.MediaItem
		if err := json.Unmarshal(itemJSON, &item); err != nil {
			return domain.VaultEntry{}, err
		}
		entry.Item = &item
	}
	return entry, nil
}

func marshalItem(item *domain.MediaItem) ([]byte, error) {
	if item == nil {
		return nil, nil
	}
	return json.Marshal(item)
}

func encodeCursor(c EntryCursor) (string, error) {
	payload, err := json.Marshal(c)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(payload), nil
}

// DecodeCursor parses a cursor token into an EntryCursor.
func DecodeCursor(token string) (*EntryCursor, error) {
	if token == "" {
		return nil, nil
	}
	data, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("invalid cursor: %w", err)
	}
	var cursor EntryCursor
	if err := json.Unmarshal(data, &cursor); err != nil {
		return nil, fmt.Errorf("invalid cursor payload: %w", err)
	}
	return &cursor, nil
}
