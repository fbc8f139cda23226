package chat

import (
	"context"
	"fmt"

	"github.com/deskhq/deskchat/api"
	"github.com/deskhq/deskchat/config"
)

// Hooks are the session's callbacks into the shell. They fire from the
// session's own goroutines; the shell is responsible for marshaling onto its
// UI loop.
type Hooks struct {
	// OnUpdate fires whenever the canonical list or the visible window
	// changed.
	OnUpdate func()

	// OnConnected fires when the room subscription is live.
	OnConnected func()

	// OnDisconnected fires on every connection loss, including the terminal
	// ErrRetriesExhausted.
	OnDisconnected func(err error)

	// OnTicketPrompt fires for an inbound message carrying the server's
	// ticket-creation flag. The flag is opaque to this library.
	OnTicketPrompt func(msg *api.Message)
}

// Session wires one room's connection manager, reconciler and window
// together. Sessions are caller-owned: construct one per open room, Close it
// when leaving. The manager may be shared across consecutive sessions; it
// holds at most one live subscription at a time.
type Session struct {
	roomID int64
	userID string
	cfg    config.ChatConfig
	svc    MessageService
	mgr    *Manager
	rec    *Reconciler
	win    *Window
	hooks  Hooks
}

// NewSession creates a session for roomID on behalf of userID
func NewSession(cfg config.ChatConfig, svc MessageService, mgr *Manager, roomID int64, userID string, hooks Hooks) *Session {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 20
	}
	return &Session{
		roomID: roomID,
		userID: userID,
		cfg:    cfg,
		svc:    svc,
		mgr:    mgr,
		rec:    NewReconciler(svc, roomID, userID),
		win:    NewWindow(cfg.WindowPageSize),
		hooks:  hooks,
	}
}

// Open loads the initial history page and brings the real-time subscription
// up. The history load failure is returned to the caller; the subscription
// then isn't attempted.
func (s *Session) Open(ctx context.Context) error {
	if _, err := s.rec.LoadInitialPage(ctx, s.cfg.PageSize); err != nil {
		return err
	}
	s.win.Reset()
	s.fire(s.hooks.OnUpdate)

	return s.mgr.Connect(s.roomID, Handlers{
		OnMessage: s.handleIncoming,
		OnConnect: func() { s.fire(s.hooks.OnConnected) },
		OnDisconnect: func(err error) {
			if s.hooks.OnDisconnected != nil {
				s.hooks.OnDisconnected(err)
			}
		},
	})
}

// Send publishes over the live connection when possible and falls back to
// the REST path otherwise. The fallback response is ingested optimistically;
// the push echo that may follow deduplicates by id.
func (s *Session) Send(ctx context.Context, req *api.SendMessageRequest) error {
	if s.mgr.Send(s.roomID, req) {
		return nil
	}

	msg, err := s.svc.SendMessage(ctx, s.roomID, req)
	if err != nil {
		return fmt.Errorf("send fallback: %w", err)
	}
	if s.rec.Ingest(ctx, msg) {
		s.win.GrowOnAppend(s.rec.Len(), 1)
		s.fire(s.hooks.OnUpdate)
	}
	return nil
}

// OnScrollNearTop handles the shell's near-top scroll signal: it fetches an
// older page when the window already covers everything loaded, then expands
// the window. A true return means the shell must preserve the scroll anchor.
func (s *Session) OnScrollNearTop(ctx context.Context) (bool, error) {
	if s.win.VisibleCount() >= s.rec.Len() && s.rec.HasMore() {
		if _, err := s.rec.LoadOlderPage(ctx, s.cfg.PageSize); err != nil {
			return false, err
		}
	}

	grew := s.win.GrowOnScrollTop(s.rec.Len())
	if grew {
		s.fire(s.hooks.OnUpdate)
	}
	return grew, nil
}

// Visible returns the windowed slice of the canonical list
func (s *Session) Visible() []*api.Message {
	return s.win.Visible(s.rec.Messages())
}

// Messages returns the full canonical list
func (s *Session) Messages() []*api.Message {
	return s.rec.Messages()
}

// HasMore reports whether older history remains on the server
func (s *Session) HasMore() bool {
	return s.rec.HasMore()
}

// Connected reports whether the real-time channel is live
func (s *Session) Connected() bool {
	return s.mgr.IsConnected()
}

// Room returns the session's room id
func (s *Session) Room() int64 {
	return s.roomID
}

// Close tears down the subscription
func (s *Session) Close() {
	s.mgr.Disconnect()
}

func (s *Session) handleIncoming(msg *api.Message) {
	ctx := context.Background()
	if !s.rec.Ingest(ctx, msg) {
		return
	}
	s.win.GrowOnAppend(s.rec.Len(), 1)
	if msg.TicketTrigger && s.hooks.OnTicketPrompt != nil {
		s.hooks.OnTicketPrompt(msg)
	}
	s.fire(s.hooks.OnUpdate)
}

func (s *Session) fire(f func()) {
	if f != nil {
		f()
	}
}
