package chat

import (
	"context"
	"fmt"
	"sync"

	"github.com/mbeoliero/kit/log"
	"github.com/samber/lo"

	"github.com/deskhq/deskchat/api"
)

// MessageService is the REST collaborator surface the chat core depends on.
// *api.Client satisfies it.
type MessageService interface {
	GetMessages(ctx context.Context, roomID int64, page, size int) (*api.MessagePage, error)
	SendMessage(ctx context.Context, roomID int64, req *api.SendMessageRequest) (*api.Message, error)
	MarkRead(ctx context.Context, roomID, seq int64) error
}

// Reconciler maintains the canonical, sequence-ordered message list for one
// room and keeps it consistent across page fetches, real-time pushes and
// optimistic REST sends. All entries are deduplicated by message id, which is
// what reconciles an optimistic send's REST response with its later push echo
// regardless of arrival order.
type Reconciler struct {
	roomID int64
	userID string
	svc    MessageService

	mu    sync.Mutex
	msgs  []*api.Message
	seen  map[int64]struct{}
	total int
	pages int
}

// NewReconciler creates a reconciler for roomID. userID is the current user;
// messages from other senders advance the read cursor on ingest.
func NewReconciler(svc MessageService, roomID int64, userID string) *Reconciler {
	return &Reconciler{
		roomID: roomID,
		userID: userID,
		svc:    svc,
		seen:   make(map[int64]struct{}),
	}
}

// LoadInitialPage fetches the most recent pageSize messages and replaces the
// canonical list with them in ascending sequence order. The read cursor is
// advanced to the newest message. On fetch error the list is left unmodified.
func (r *Reconciler) LoadInitialPage(ctx context.Context, pageSize int) ([]*api.Message, error) {
	page, err := r.svc.GetMessages(ctx, r.roomID, 1, pageSize)
	if err != nil {
		return nil, fmt.Errorf("load initial page: %w", err)
	}

	items := lo.Reverse(append([]*api.Message(nil), page.Items...))

	r.mu.Lock()
	r.msgs = items
	r.seen = make(map[int64]struct{}, len(items))
	for _, m := range items {
		r.seen[m.ID] = struct{}{}
	}
	r.total = page.TotalCount
	r.pages = 1
	var tail *api.Message
	if len(items) > 0 {
		tail = items[len(items)-1]
	}
	out := append([]*api.Message(nil), r.msgs...)
	r.mu.Unlock()

	if tail != nil {
		r.ack(ctx, tail.Seq)
	}
	return out, nil
}

// LoadOlderPage fetches the next older page and prepends it after
// deduplication, preserving ascending order. It returns the number of
// messages actually added. On fetch error the list is left unmodified.
func (r *Reconciler) LoadOlderPage(ctx context.Context, pageSize int) (int, error) {
	r.mu.Lock()
	next := r.pages + 1
	r.mu.Unlock()

	page, err := r.svc.GetMessages(ctx, r.roomID, next, pageSize)
	if err != nil {
		return 0, fmt.Errorf("load older page: %w", err)
	}

	items := lo.Reverse(append([]*api.Message(nil), page.Items...))

	r.mu.Lock()
	defer r.mu.Unlock()

	fresh := lo.Filter(items, func(m *api.Message, _ int) bool {
		_, dup := r.seen[m.ID]
		return !dup
	})
	for _, m := range fresh {
		r.seen[m.ID] = struct{}{}
	}

	if len(fresh) > 0 && len(r.msgs) > 0 && fresh[len(fresh)-1].Seq >= r.msgs[0].Seq {
		// The protocol guarantees ascending seq within a page but nothing
		// across the page/push boundary; record it, do not re-sort.
		log.CtxWarn(ctx, "sequence anomaly on older page: room_id=%d, page_tail_seq=%d, head_seq=%d",
			r.roomID, fresh[len(fresh)-1].Seq, r.msgs[0].Seq)
	}

	merged := make([]*api.Message, 0, len(fresh)+len(r.msgs))
	merged = append(merged, fresh...)
	merged = append(merged, r.msgs...)
	r.msgs = merged
	r.total = page.TotalCount
	r.pages = next

	return len(fresh), nil
}

// Ingest accepts a message event from the real-time channel or a REST send
// response. Duplicates by id are discarded, the first-ingested copy wins.
// Returns whether the message was appended.
func (r *Reconciler) Ingest(ctx context.Context, msg *api.Message) bool {
	r.mu.Lock()
	if _, dup := r.seen[msg.ID]; dup {
		r.mu.Unlock()
		log.Debug("duplicate message discarded: room_id=%d, id=%d", r.roomID, msg.ID)
		return false
	}

	if n := len(r.msgs); n > 0 && msg.Seq <= r.msgs[n-1].Seq {
		// Out-of-order arrival across the REST/push boundary; append anyway.
		log.CtxWarn(ctx, "sequence anomaly on ingest: room_id=%d, seq=%d, tail_seq=%d",
			r.roomID, msg.Seq, r.msgs[n-1].Seq)
	}

	r.msgs = append(r.msgs, msg)
	r.seen[msg.ID] = struct{}{}
	r.total++
	foreign := msg.SenderID != r.userID
	seq := msg.Seq
	r.mu.Unlock()

	if foreign {
		r.ack(ctx, seq)
	}
	return true
}

// Messages returns a copy of the canonical list in ascending sequence order
func (r *Reconciler) Messages() []*api.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*api.Message(nil), r.msgs...)
}

// Len returns the canonical list length
func (r *Reconciler) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.msgs)
}

// HasMore reports whether older history exists beyond what is loaded
func (r *Reconciler) HasMore() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.total > len(r.msgs)
}

// Reset clears all state, for room re-entry
func (r *Reconciler) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = nil
	r.seen = make(map[int64]struct{})
	r.total = 0
	r.pages = 0
}

// ack advances the read cursor. Failures are logged, never propagated: a
// missed ack must not disturb the canonical list.
func (r *Reconciler) ack(ctx context.Context, seq int64) {
	if err := r.svc.MarkRead(ctx, r.roomID, seq); err != nil {
		log.CtxWarn(ctx, "read ack failed: room_id=%d, seq=%d, error=%v", r.roomID, seq, err)
	}
}
