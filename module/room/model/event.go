package model

// Notification types.
const (
	TypeCreate = "Create"
	TypeLoad   = "Load"
	TypeJoin   = "Join"
	TypePlayer = "Player"
	TypeGame   = "Game"
	TypeEvent  = "Event"
	TypeSave   = "Save"
	TypeClose  = "Close"
	// TypeLeave is the deprecated forward plugin webhook, always rejected.
	TypeLeave = "Leave"
)

// Envelope holds the fields shared by every validated notification.
type Envelope struct {
	AppId           string
	AppVersion      string
	Region          string
	GameId          string
	Type            string
	ActorNr         int
	UserId          string
	Username        string
	Nickname        string
	WebhooksVersion string

	Raw map[string]any
}

// Env snapshots the envelope for a new room.
func (e Envelope) Env(serviceVersion string) *Env {
	return &Env{
		Region:          e.Region,
		AppVersion:      e.AppVersion,
		AppId:           e.AppId,
		ServiceVersion:  serviceVersion,
		WebhooksVersion: e.WebhooksVersion,
	}
}

// Event is a validated notification, built by the validator.
type Event interface {
	Head() *Envelope
	event()
}

func (e *Envelope) Head() *Envelope { return e }
func (*Envelope) event()            {}

type CreateEvent struct {
	Envelope
	CreateOptions RoomOptions
}

type LoadEvent struct {
	Envelope
	CreateIfNotExists bool
	CreateOptions     RoomOptions
}

type JoinEvent struct {
	Envelope
}

// PropertyEvent is a Player or Game property update. TargetActor is zero for
// Game.
type PropertyEvent struct {
	Envelope
	TargetActor int
	Properties  any
	State       any
}

// RaiseEvent is a custom event raised in the room.
type RaiseEvent struct {
	Envelope
	Data  any
	State any
}

type SaveEvent struct {
	Envelope
	ActorCount int
	State      any
}

type CloseEvent struct {
	Envelope
	ActorCount int
}

type LeaveEvent struct {
	Envelope
	Reason     LeaveReason
	IsInactive bool
}
