package model

// Lifecycle event kinds, published after a transition is stored.
const (
	KindCreated = "created"
	KindLoaded  = "loaded"
	KindJoined  = "joined"
	KindLeft    = "left"
	KindUpdated = "updated"
	KindRaised  = "raised"
	KindSaved   = "saved"
	KindClosed  = "closed"
)

// LifecycleEvent is the fan-out message for other services.
type LifecycleEvent struct {
	Id         string `json:"Id"`
	Kind       string `json:"Kind"`
	Type       string `json:"Type"`
	GameId     string `json:"GameId"`
	UserId     string `json:"UserId,omitempty"`
	ActorNr    int    `json:"ActorNr,omitempty"`
	ActorCount int    `json:"ActorCount,omitempty"`
	Reason     string `json:"Reason,omitempty"`
	Rejoin     bool   `json:"Rejoin,omitempty"`
	Timestamp  string `json:"Timestamp"`
}
