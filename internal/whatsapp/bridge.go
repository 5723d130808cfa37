package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// bridgeMessage is the JSON frame exchanged with the protocol bridge
// sidecar. Exactly one message type per frame.
type bridgeMessage struct {
	Type string `json:"type"`

	// init
	Creds map[string][]byte `json:"creds,omitempty"`

	// qr
	Code string `json:"code,omitempty"`

	// closed
	Reason string `json:"reason,omitempty"`

	// creds update
	Name string `json:"name,omitempty"`
	Data []byte `json:"data,omitempty"`

	// send / ack
	ID    int64  `json:"id,omitempty"`
	To    string `json:"to,omitempty"`
	Text  string `json:"text,omitempty"`
	Error string `json:"error,omitempty"`
}

// BridgeDialer dials the protocol bridge sidecar over a WebSocket. The
// sidecar embeds the actual messaging client library and relays its
// events as JSON frames.
type BridgeDialer struct {
	url string
}

// NewBridgeDialer creates a dialer for the given bridge endpoint.
func NewBridgeDialer(url string) *BridgeDialer {
	return &BridgeDialer{url: url}
}

// Dial connects to the bridge, hands it the credential material and
// starts the event read loop.
func (d *BridgeDialer) Dial(ctx context.Context, creds Credentials, handlers Handlers) (Session, error) {
	//nolint:bodyclose // the websocket library owns the hijacked connection.
	conn, _, err := websocket.Dial(ctx, d.url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial bridge at %s: %w", d.url, err)
	}

	init := bridgeMessage{Type: "init", Creds: creds}
	if err := wsjson.Write(ctx, conn, init); err != nil {
		_ = conn.Close(websocket.StatusInternalError, "init failed")
		return nil, fmt.Errorf("send init to bridge: %w", err)
	}

	s := &bridgeSession{
		conn:     conn,
		handlers: handlers,
		pending:  make(map[int64]chan error),
		done:     make(chan struct{}),
	}
	go s.readLoop()
	return s, nil
}

// bridgeSession is a live session over the bridge WebSocket.
type bridgeSession struct {
	conn     *websocket.Conn
	handlers Handlers

	mu      sync.Mutex
	pending map[int64]chan error
	nextID  int64
	closed  bool

	done chan struct{}
}

// SendText writes a send command and waits for the matching ack.
func (s *bridgeSession) SendText(ctx context.Context, jid, text string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errors.New("bridge session closed")
	}
	s.nextID++
	id := s.nextID
	ack := make(chan error, 1)
	s.pending[id] = ack
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.pending, id)
		s.mu.Unlock()
	}()

	msg := bridgeMessage{Type: "send", ID: id, To: jid, Text: text}
	if err := wsjson.Write(ctx, s.conn, msg); err != nil {
		return fmt.Errorf("write send command: %w", err)
	}

	select {
	case err := <-ack:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return errors.New("bridge session closed")
	}
}

// Close tears down the WebSocket. Safe to call after the read loop has
// already finished.
func (s *bridgeSession) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	return s.conn.Close(websocket.StatusNormalClosure, "session closed")
}

// readLoop is the single consumer of bridge frames. It dispatches
// protocol events to the handlers and resolves pending send acks.
func (s *bridgeSession) readLoop() {
	closedDelivered := false

	for {
		var msg bridgeMessage
		if err := wsjson.Read(context.Background(), s.conn, &msg); err != nil {
			// A dropped socket without a closed frame is a transient
			// disconnect as far as the lifecycle is concerned.
			if !closedDelivered {
				slog.Debug("Bridge socket dropped", "error", err)
				s.finish()
				if s.handlers.OnClosed != nil {
					s.handlers.OnClosed(CloseReason("transport_error"))
				}
				return
			}
			s.finish()
			return
		}

		switch msg.Type {
		case "qr":
			if s.handlers.OnPairCode != nil {
				s.handlers.OnPairCode(msg.Code)
			}
		case "open":
			if s.handlers.OnOpen != nil {
				s.handlers.OnOpen()
			}
		case "creds":
			if s.handlers.OnCredentials != nil {
				s.handlers.OnCredentials(msg.Name, msg.Data)
			}
		case "ack":
			s.resolve(msg.ID, msg.Error)
		case "closed":
			closedDelivered = true
			s.finish()
			if s.handlers.OnClosed != nil {
				s.handlers.OnClosed(CloseReason(msg.Reason))
			}
			return
		default:
			slog.Debug("Unknown bridge frame", "type", msg.Type)
		}
	}
}

func (s *bridgeSession) resolve(id int64, errMsg string) {
	s.mu.Lock()
	ack, ok := s.pending[id]
	delete(s.pending, id)
	s.mu.Unlock()

	if !ok {
		slog.Debug("Ack for unknown send", "id", id)
		return
	}
	if errMsg != "" {
		ack <- fmt.Errorf("bridge send failed: %s", errMsg)
		return
	}
	ack <- nil
}

// finish fails all in-flight sends and marks the session closed.
func (s *bridgeSession) finish() {
	s.mu.Lock()
	s.closed = true
	for id, ack := range s.pending {
		ack <- errors.New("bridge session closed")
		delete(s.pending, id)
	}
	s.mu.Unlock()

	select {
	case <-s.done:
	default:
		close(s.done)
	}
}
