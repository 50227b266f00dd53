package orchestrator

import "context"

// EventKind classifies an inbound transport event.
type EventKind string

const (
	EventText    EventKind = "text"
	EventPhoto   EventKind = "photo"
	EventButton  EventKind = "button"
	EventCommand EventKind = "command"
)

// Event is one discrete inbound unit from the messaging transport. Photos
// delivered as part of one grouped transmission share a BatchID.
type Event struct {
	ExternalID int64
	Username   string
	Kind       EventKind

	// Text carries prompt text, command arguments or a set name.
	Text string
	// Command is the bare command name without the leading slash.
	Command string
	// Token is the opaque payload of a pressed button.
	Token string

	// Photo payload.
	Photo     []byte
	PhotoName string
	BatchID   string
}

// Button is an actionable choice presented to the user. Token round-trips
// opaquely through the transport.
type Button struct {
	Label string
	Token string
}

// Transport delivers outgoing messages. Implementations wrap a concrete
// messaging platform; the orchestrator never assumes delivery succeeds.
type Transport interface {
	SendText(ctx context.Context, externalID int64, text string) error
	SendPhoto(ctx context.Context, externalID int64, path, caption string) error
	SendDocument(ctx context.Context, externalID int64, path string) error
	SendButtons(ctx context.Context, externalID int64, text string, buttons []Button) error
}
