package chat

import "errors"

var (
	ErrSendBufferFull  = errors.New("send buffer full")
	ErrConnClosed      = errors.New("connection closed")
	ErrUnauthenticated = errors.New("authentication required")
)

const (
	MsgRoomAndContentRequired = "Room ID and content are required"
	MsgRoomIDRequired         = "Room ID is required"
	MsgNotAMember             = "Not a member of this room"
	MsgRateLimited            = "Rate limit exceeded"
	MsgUnknownEvent           = "Unknown event"
	MsgInvalidPayload         = "Invalid payload"
	MsgInvalidMessageType     = "Invalid message type"
	MsgContentTooLong         = "Message content is too long"
)

type ErrorKind int

const (
	KindValidation ErrorKind = iota + 1
	KindAuthorization
	KindPersistence
	KindRateLimited
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthorization:
		return "authorization"
	case KindPersistence:
		return "persistence"
	case KindRateLimited:
		return "rate_limited"
	}
	return "unknown"
}

// EventError aborts a single inbound event. Message is what the originating
// connection receives; the connection itself stays usable.
type EventError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *EventError) Error() string {
	if e.Err != nil {
		return e.Kind.String() + ": " + e.Message + ": " + e.Err.Error()
	}
	return e.Kind.String() + ": " + e.Message
}

func (e *EventError) Unwrap() error { return e.Err }

func newValidationError(msg string, err error) *EventError {
	return &EventError{Kind: KindValidation, Message: msg, Err: err}
}

func newAuthorizationError(msg string) *EventError {
	return &EventError{Kind: KindAuthorization, Message: msg}
}

// newPersistenceError exposes the failure detail to the client.
func newPersistenceError(err error) *EventError {
	return &EventError{Kind: KindPersistence, Message: err.Error(), Err: err}
}
