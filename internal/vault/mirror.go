package vault

import (
	"context"
	"errors"
	"log"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Clark-Hu/watchvault/internal/domain"
)

// ErrSubscriptionClosed is returned by Mirror.Run when the snapshot stream
// ends while its context is still live.
var ErrSubscriptionClosed = errors.New("vault: subscription closed")

// View is an immutable picture of one vault snapshot.
type View struct {
	Watched   []domain.VaultEntry `json:"watched"`
	Watchlist []domain.VaultEntry `json:"watchlist"`
	TakenAt   time.Time           `json:"takenAt"`

	byKey map[string]domain.Status
}

// NewView partitions entries by status, newest addedAt first.
func NewView(entries []domain.VaultEntry, takenAt time.Time) *View {
	sorted := slices.Clone(entries)
	slices.SortStableFunc(sorted, func(a, b domain.VaultEntry) int {
		return b.AddedAt.Compare(a.AddedAt)
	})

	v := &View{
		Watched:   make([]domain.VaultEntry, 0),
		Watchlist: make([]domain.VaultEntry, 0),
		TakenAt:   takenAt,
		byKey:     make(map[string]domain.Status, len(sorted)),
	}
	for _, entry := range sorted {
		switch entry.Status {
		case domain.StatusWatched:
			v.Watched = append(v.Watched, entry)
		case domain.StatusWatchlist:
			v.Watchlist = append(v.Watchlist, entry)
		default:
			continue
		}
		v.byKey[entry.Key] = entry.Status
	}
	return v
}

// Status reports which list holds kind/id in this view.
func (v *View) Status(kind domain.Kind, id int64) (domain.Status, bool) {
	if v == nil {
		return "", false
	}
	status, ok := v.byKey[domain.EntryKey(kind, id)]
	return status, ok
}

// Len is the number of entries across both lists.
func (v *View) Len() int {
	if v == nil {
		return 0
	}
	return len(v.Watched) + len(v.Watchlist)
}

// Mirror keeps a local View of one user's vault in step with the store. Each
// snapshot replaces the whole view; readers never observe a partial update.
type Mirror struct {
	source Subscriber
	userID string
	logger *log.Logger

	view      atomic.Pointer[View]
	ready     chan struct{}
	readyOnce sync.Once
}

// NewMirror prepares a mirror; nothing is fetched until Run.
func NewMirror(source Subscriber, userID string, logger *log.Logger) *Mirror {
	if logger == nil {
		logger = log.Default()
	}
	return &Mirror{
		source: source,
		userID: strings.TrimSpace(userID),
		logger: logger,
		ready:  make(chan struct{}),
	}
}

// Run subscribes and applies snapshots until ctx ends or the stream closes.
// onChange, when non-nil, is called with every new view from Run's goroutine.
// Run returns nil after ctx ends and ErrSubscriptionClosed if the stream
// stopped on its own.
func (m *Mirror) Run(ctx context.Context, onChange func(*View)) error {
	if m.userID == "" {
		return ErrLoginRequired
	}
	updates, err := m.source.Subscribe(ctx, m.userID)
	if err != nil {
		return err
	}

	for snapshot := range updates {
		view := NewView(snapshot.Entries, snapshot.TakenAt)
		m.view.Store(view)
		m.readyOnce.Do(func() { close(m.ready) })
		if onChange != nil {
			onChange(view)
		}
	}

	if ctx.Err() != nil {
		return nil
	}
	m.logger.Printf("vault: snapshot stream for user=%s closed", m.userID)
	return ErrSubscriptionClosed
}

// Ready reports whether the first snapshot has been applied.
func (m *Mirror) Ready() bool {
	select {
	case <-m.ready:
		return true
	default:
		return false
	}
}

// WaitReady blocks until the first snapshot is applied or ctx ends.
func (m *Mirror) WaitReady(ctx context.Context) error {
	select {
	case <-m.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// View returns the latest view, or an empty one before the first snapshot.
func (m *Mirror) View() *View {
	if v := m.view.Load(); v != nil {
		return v
	}
	return NewView(nil, time.Time{})
}

// Status reports which list holds kind/id. It reports nothing until the
// first snapshot arrives.
func (m *Mirror) Status(kind domain.Kind, id int64) (domain.Status, bool) {
	if !m.Ready() {
		return "", false
	}
	return m.view.Load().Status(kind, id)
}
