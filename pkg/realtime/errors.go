package realtime

import (
	"errors"
	"fmt"

	"ryver/pkg/protocol"
)

var (
	// ErrNotConnected is returned when sending while the session is not open.
	ErrNotConnected = errors.New("realtime: not connected")
	// ErrClosed is returned for operations on a closed session.
	ErrClosed = errors.New("realtime: session closed")
	// ErrConnectionLost resolves pending sends when the socket drops.
	ErrConnectionLost = errors.New("realtime: connection lost")
	// ErrAckTimeout is returned when an awaited ack does not arrive in time.
	ErrAckTimeout = errors.New("realtime: timed out waiting for ack")
	// ErrDuplicateID is returned when a correlation ID is already in flight.
	ErrDuplicateID = errors.New("realtime: duplicate correlation id")
	// ErrAuthentication is returned when the server rejects the handshake.
	ErrAuthentication = errors.New("realtime: authentication rejected")
	// ErrAlreadyStarted is returned when Start is called on a session that
	// is not in the disconnected state.
	ErrAlreadyStarted = errors.New("realtime: session already started")
)

// AckError is returned when the server acknowledges a command with an error
// payload instead of a success.
type AckError struct {
	Ack *protocol.Ack
}

func (e *AckError) Error() string {
	return fmt.Sprintf("realtime: server rejected %s command: %s", e.Ack.ReplyType, e.Ack.Error)
}
