package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mbeoliero/kit/log"

	"github.com/deskhq/deskchat/api"
	"github.com/deskhq/deskchat/config"
	"github.com/deskhq/deskchat/credential"
	"github.com/deskhq/deskchat/ws"
)

// State is the connection lifecycle state
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateConnected
	StateSubscribed
	StateRetrying
	StateGivenUp
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateSubscribed:
		return "subscribed"
	case StateRetrying:
		return "retrying"
	case StateGivenUp:
		return "given_up"
	default:
		return "unknown"
	}
}

// Handlers are the callbacks tied to the current subscription. They are
// registered on Connect and cleared atomically on Disconnect, so a previous
// room's callbacks can never fire after a switch.
type Handlers struct {
	OnMessage    func(*api.Message)
	OnConnect    func()
	OnDisconnect func(err error)
}

// Manager owns the lifecycle of one logical real-time connection, scoped to a
// single room at a time. It is caller-constructed and caller-owned; there is
// no package-level instance.
type Manager struct {
	cfg    config.WebSocketConfig
	url    string
	creds  credential.Provider
	dialer ws.Dialer

	mu       sync.Mutex
	state    State
	roomID   int64
	handlers Handlers
	conn     ws.Conn
	attempts int
	retry    *time.Timer
	// gen tags each logical connect request; events carrying a stale gen are
	// discarded, which is what makes Disconnect a clean cut.
	gen uint64
}

// NewManager creates a connection manager. urlStr is the gateway websocket
// endpoint.
func NewManager(cfg config.WebSocketConfig, urlStr string, creds credential.Provider, dialer ws.Dialer) *Manager {
	return &Manager{
		cfg:    cfg,
		url:    urlStr,
		creds:  creds,
		dialer: dialer,
		state:  StateIdle,
	}
}

// Connect establishes the connection and subscribes to roomID. Connecting to
// the room that is already live is a no-op; connecting to a different room
// tears the previous subscription down first. The credential provider is read
// on every attempt; without an access token Connect fails immediately with
// ErrAuthRequired and no connection attempt is made.
func (m *Manager) Connect(roomID int64, h Handlers) error {
	m.mu.Lock()

	if m.roomID == roomID {
		switch m.state {
		case StateConnecting, StateConnected, StateSubscribed:
			m.mu.Unlock()
			return nil
		}
	}

	if m.state != StateIdle {
		m.teardownLocked()
	}

	creds, err := m.creds.Load()
	if err != nil || creds.Empty() {
		m.mu.Unlock()
		return ErrAuthRequired
	}

	m.gen++
	gen := m.gen
	m.roomID = roomID
	m.handlers = h
	m.attempts = 0
	m.state = StateConnecting
	m.mu.Unlock()

	go m.establish(gen, roomID, creds.AccessToken)
	return nil
}

// Disconnect tears down the active connection, cancels any pending reconnect
// and clears the registered handlers. Safe to call when already disconnected.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.teardownLocked()
	m.mu.Unlock()
}

// IsConnected reports whether a live connection exists
func (m *Manager) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state == StateConnected || m.state == StateSubscribed
}

// State returns the current lifecycle state
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Room returns the room id of the current subscription, 0 when idle
func (m *Manager) Room() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.roomID
}

// Send publishes a message to the room's send destination. The return value
// reports whether the publish was attempted: false means no live subscription
// exists and the caller should use the REST fallback path.
func (m *Manager) Send(roomID int64, req *api.SendMessageRequest) bool {
	m.mu.Lock()
	conn := m.conn
	live := m.state == StateSubscribed && m.roomID == roomID && conn != nil
	m.mu.Unlock()

	if !live {
		log.Debug("send skipped, no live subscription: room_id=%d", roomID)
		return false
	}

	r := *req
	if r.MessageType == "" {
		r.MessageType = api.MessageTypeText
	}
	payload, err := json.Marshal(&r)
	if err != nil {
		log.Warn("failed to encode send payload: %v", err)
		return false
	}

	frame, err := ws.Encode(&ws.Frame{
		Op:          ws.OpSend,
		Destination: ws.RoomSendDest(roomID),
		OperationID: uuid.NewString(),
		Data:        payload,
	})
	if err != nil {
		log.Warn("failed to encode send frame: %v", err)
		return false
	}

	if err := conn.WriteMessage(frame); err != nil {
		log.Warn("failed to publish message: room_id=%d, error=%v", roomID, err)
		return false
	}
	return true
}

// establish dials, performs the handshake and subscription, then reads until
// the connection drops.
func (m *Manager) establish(gen uint64, roomID int64, token string) {
	ctx := context.Background()

	conn, err := m.dialer.Dial(ctx, m.url)
	if err != nil {
		log.CtxWarn(ctx, "dial failed: room_id=%d, error=%v", roomID, err)
		m.connectionLost(ctx, gen, fmt.Errorf("dial: %w", err))
		return
	}

	if !m.adopt(gen, conn) {
		// Disconnected while dialing
		conn.Close()
		return
	}

	if err := m.handshake(gen, conn, roomID, token); err != nil {
		conn.Close()
		var perr *ProtocolError
		if errors.As(err, &perr) {
			log.CtxError(ctx, "handshake rejected: room_id=%d, code=%d, msg=%s", roomID, perr.Code, perr.Msg)
			m.abort(gen, perr)
			return
		}
		m.connectionLost(ctx, gen, fmt.Errorf("handshake: %w", err))
		return
	}

	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		conn.Close()
		return
	}
	m.state = StateSubscribed
	m.attempts = 0
	onConnect := m.handlers.OnConnect
	m.mu.Unlock()

	log.CtxInfo(ctx, "subscribed: room_id=%d", roomID)
	if onConnect != nil {
		onConnect()
	}

	m.readLoop(ctx, gen, conn)
}

// handshake sends CONNECT and SUBSCRIBE and waits for both acks
func (m *Manager) handshake(gen uint64, conn ws.Conn, roomID int64, token string) error {
	hello, err := ws.Encode(&ws.Frame{
		Op:          ws.OpConnect,
		Token:       token,
		Heartbeat:   m.cfg.Heartbeat.Milliseconds(),
		OperationID: uuid.NewString(),
	})
	if err != nil {
		return fmt.Errorf("encode connect frame: %w", err)
	}
	if err := conn.WriteMessage(hello); err != nil {
		return fmt.Errorf("write connect frame: %w", err)
	}

	for {
		data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read during handshake: %w", err)
		}

		frame, err := ws.Decode(data)
		if err != nil {
			log.Warn("dropping malformed frame during handshake: %v", err)
			continue
		}

		switch frame.Op {
		case ws.OpConnected:
			m.transition(gen, StateConnected)
			sub, err := ws.Encode(&ws.Frame{
				Op:          ws.OpSubscribe,
				Destination: ws.RoomTopic(roomID),
				OperationID: uuid.NewString(),
			})
			if err != nil {
				return fmt.Errorf("encode subscribe frame: %w", err)
			}
			if err := conn.WriteMessage(sub); err != nil {
				return fmt.Errorf("write subscribe frame: %w", err)
			}
		case ws.OpSubscribed:
			return nil
		case ws.OpError:
			return &ProtocolError{Code: frame.ErrCode, Msg: frame.ErrMsg}
		default:
			log.Debug("ignoring frame during handshake: op=%d", frame.Op)
		}
	}
}

// readLoop forwards pushed messages until the connection drops
func (m *Manager) readLoop(ctx context.Context, gen uint64, conn ws.Conn) {
	for {
		data, err := conn.ReadMessage()
		if err != nil {
			if !m.current(gen) {
				// Caller-initiated teardown
				return
			}
			m.connectionLost(ctx, gen, fmt.Errorf("transport closed: %w", err))
			return
		}

		frame, err := ws.Decode(data)
		if err != nil {
			// Malformed inbound frames never tear down the stream
			log.Warn("dropping malformed frame: %v", err)
			continue
		}

		switch frame.Op {
		case ws.OpMessage:
			var msg api.Message
			if err := json.Unmarshal(frame.Data, &msg); err != nil {
				log.Warn("dropping undecodable message payload: %v", err)
				continue
			}
			if h := m.messageHandler(gen); h != nil {
				h(&msg)
			}
		case ws.OpError:
			// Reported only; a server error frame is not a transport closure
			// and does not trigger reconnection.
			log.CtxWarn(ctx, "server error frame: code=%d, msg=%s", frame.ErrCode, frame.ErrMsg)
		default:
			log.Debug("ignoring frame: op=%d", frame.Op)
		}
	}
}

// connectionLost applies the bounded reconnection policy after an abrupt
// closure: up to MaxReconnectAttempts attempts, each after ReconnectDelay.
func (m *Manager) connectionLost(ctx context.Context, gen uint64, reason error) {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return
	}
	m.conn = nil
	onDisconnect := m.handlers.OnDisconnect
	roomID := m.roomID

	if m.attempts >= m.cfg.MaxReconnectAttempts {
		m.state = StateGivenUp
		m.retry = nil
		m.mu.Unlock()
		log.CtxError(ctx, "reconnect attempts exhausted, giving up: room_id=%d, attempts=%d, last_error=%v",
			roomID, m.cfg.MaxReconnectAttempts, reason)
		if onDisconnect != nil {
			onDisconnect(fmt.Errorf("%w: %v", ErrRetriesExhausted, reason))
		}
		return
	}

	m.attempts++
	attempt := m.attempts
	m.state = StateRetrying
	m.retry = time.AfterFunc(m.cfg.ReconnectDelay, func() { m.redial(gen) })
	m.mu.Unlock()

	log.CtxWarn(ctx, "connection lost, reconnecting: room_id=%d, attempt=%d/%d, error=%v",
		roomID, attempt, m.cfg.MaxReconnectAttempts, reason)
	if onDisconnect != nil {
		onDisconnect(reason)
	}
}

// redial runs a scheduled reconnection attempt. Credentials are re-read so a
// token refreshed since the last attempt is picked up.
func (m *Manager) redial(gen uint64) {
	m.mu.Lock()
	if gen != m.gen || m.state != StateRetrying {
		m.mu.Unlock()
		return
	}

	creds, err := m.creds.Load()
	if err != nil || creds.Empty() {
		m.state = StateIdle
		onDisconnect := m.handlers.OnDisconnect
		roomID := m.roomID
		m.mu.Unlock()
		log.Warn("reconnect aborted, credentials gone: room_id=%d", roomID)
		if onDisconnect != nil {
			onDisconnect(ErrAuthRequired)
		}
		return
	}

	roomID := m.roomID
	m.state = StateConnecting
	m.mu.Unlock()

	m.establish(gen, roomID, creds.AccessToken)
}

// abort surfaces a non-retryable failure and returns the manager to idle
func (m *Manager) abort(gen uint64, err error) {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return
	}
	m.conn = nil
	m.state = StateIdle
	onDisconnect := m.handlers.OnDisconnect
	m.mu.Unlock()

	if onDisconnect != nil {
		onDisconnect(err)
	}
}

func (m *Manager) teardownLocked() {
	m.gen++
	if m.retry != nil {
		m.retry.Stop()
		m.retry = nil
	}
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
	}
	m.handlers = Handlers{}
	m.attempts = 0
	m.roomID = 0
	m.state = StateIdle
}

func (m *Manager) adopt(gen uint64, conn ws.Conn) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.gen {
		return false
	}
	m.conn = conn
	return true
}

func (m *Manager) transition(gen uint64, s State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gen == m.gen {
		m.state = s
	}
}

func (m *Manager) current(gen uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return gen == m.gen
}

func (m *Manager) messageHandler(gen uint64) func(*api.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.gen {
		return nil
	}
	return m.handlers.OnMessage
}
