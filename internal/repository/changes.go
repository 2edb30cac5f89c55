package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// changeHub shares one LISTEN connection between every vault subscription of
// the process and fans notifications out by user id. The connection is held
// only while at least one subscriber is registered.
type changeHub struct {
	pool *pgxpool.Pool

	mu       sync.Mutex
	subs     map[string]map[*changeSub]struct{}
	cancel   context.CancelFunc
	listener uint64
}

// changeSub is woken through signal, which holds at most one pending wake-up.
// closed is closed when the shared listener fails.
type changeSub struct {
	signal chan struct{}
	closed chan struct{}
}

func newChangeHub(pool *pgxpool.Pool) *changeHub {
	return &changeHub{pool: pool, subs: make(map[string]map[*changeSub]struct{})}
}

// register adds a subscriber for userID. When it returns, the listener is
// already LISTENing, so any change committed afterwards wakes the subscriber.
func (h *changeHub) register(ctx context.Context, userID string) (*changeSub, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.cancel == nil {
		if err := h.startLocked(ctx); err != nil {
			return nil, err
		}
	}

	sub := &changeSub{signal: make(chan struct{}, 1), closed: make(chan struct{})}
	if h.subs[userID] == nil {
		h.subs[userID] = make(map[*changeSub]struct{})
	}
	h.subs[userID][sub] = struct{}{}
	return sub, nil
}

func (h *changeHub) unregister(userID string, sub *changeSub) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if set, ok := h.subs[userID]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(h.subs, userID)
		}
	}
	if len(h.subs) == 0 && h.cancel != nil {
		h.cancel()
		h.cancel = nil
	}
}

func (h *changeHub) startLocked(ctx context.Context) error {
	conn, err := h.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire listen connection: %w", err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+ChangeChannel); err != nil {
		conn.Release()
		return fmt.Errorf("listen %s: %w", ChangeChannel, err)
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	h.listener++
	h.cancel = cancel
	go h.listen(loopCtx, conn, h.listener)
	return nil
}

func (h *changeHub) listen(ctx context.Context, conn *pgxpool.Conn, id uint64) {
	defer releaseListener(conn)

	for {
		notification, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() == nil {
				h.fail(id)
			}
			return
		}
		h.notify(notification.Payload)
	}
}

func (h *changeHub) notify(userID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs[userID] {
		select {
		case sub.signal <- struct{}{}:
		default:
		}
	}
}

// fail ends every subscription served by listener id.
func (h *changeHub) fail(id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if id != h.listener || h.cancel == nil {
		return
	}
	for _, set := range h.subs {
		for sub := range set {
			close(sub.closed)
		}
	}
	h.subs = make(map[string]map[*changeSub]struct{})
	h.cancel()
	h.cancel = nil
}

func releaseListener(conn *pgxpool.Conn) {
	if !conn.Conn().IsClosed() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := conn.Exec(ctx, "UNLISTEN "+ChangeChannel); err != nil {
			_ = conn.Conn().Close(ctx)
		}
	}
	conn.Release()
}
