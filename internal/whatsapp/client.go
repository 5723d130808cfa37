// Package whatsapp owns the single outbound protocol session: its
// lifecycle state machine, pairing artifact and credential persistence.
//
// The protocol client itself is a black box behind the Dialer interface;
// the production implementation talks to a sidecar over a WebSocket
// (bridge.go), tests substitute a fake.
package whatsapp

import "context"

// AddressSuffix is the protocol's fully qualified recipient domain.
const AddressSuffix = "@s.whatsapp.net"

// CloseReason describes why the protocol session closed.
type CloseReason string

// CloseReasonLoggedOut is the terminal close reason: the network side
// invalidated the credentials and no automatic reconnect may follow.
const CloseReasonLoggedOut CloseReason = "logged_out"

// LoggedOut returns true for the terminal close reason.
func (r CloseReason) LoggedOut() bool {
	return r == CloseReasonLoggedOut
}

// Credentials is the opaque credential material for one session, as a
// set of named files (multi-file auth state).
type Credentials map[string][]byte

// Handlers receive protocol session events. They are invoked from the
// session's own event loop, never synchronously from Dial.
type Handlers struct {
	// OnPairCode delivers a fresh pairing artifact (QR payload).
	OnPairCode func(code string)
	// OnOpen signals the session is connected and ready to send.
	OnOpen func()
	// OnClosed signals the session closed, terminally or not.
	OnClosed func(reason CloseReason)
	// OnCredentials delivers rotated credential material that must be
	// persisted before further sends.
	OnCredentials func(name string, data []byte)
}

// Session is a live protocol session handle.
type Session interface {
	// SendText sends a plain text message to a fully qualified address.
	SendText(ctx context.Context, jid, text string) error
	// Close tears the session down.
	Close() error
}

// Dialer opens a protocol session with the given credential material.
// Empty credentials start a fresh pairing flow.
type Dialer interface {
	Dial(ctx context.Context, creds Credentials, handlers Handlers) (Session, error)
}
