package model

// Notification is a raw lifecycle webhook as received. Pointer fields keep
// "absent" apart from the zero value; nothing here is trusted until the
// validator turns it into an Event.
type Notification struct {
	AppId      *string `json:"AppId"`
	AppVersion *string `json:"AppVersion"`
	Region     *string `json:"Region"`
	GameId     *string `json:"GameId"`
	Type       *string `json:"Type"`

	ActorNr  *int    `json:"ActorNr"`
	UserId   *string `json:"UserId"`
	Username *string `json:"Username"`
	Nickname *string `json:"Nickname"`

	CreateIfNotExists *bool          `json:"CreateIfNotExists"`
	CreateOptions     map[string]any `json:"CreateOptions"`

	Properties  any  `json:"Properties"`
	Data        any  `json:"Data"`
	State       any  `json:"State"`
	TargetActor *int `json:"TargetActor"`

	ActorCount *int    `json:"ActorCount"`
	State2     *State2 `json:"State2"`

	IsInactive *bool   `json:"IsInactive"`
	Reason     *string `json:"Reason"`

	// Raw is the payload as received, kept for the audit log.
	Raw map[string]any `json:"-"`
}

type State2 struct {
	ActorList []any `json:"ActorList"`
}

// ListRequest is the GetGameList call.
type ListRequest struct {
	AppId      *string `json:"AppId"`
	AppVersion *string `json:"AppVersion"`
	Region     *string `json:"Region"`
	UserId     *string `json:"UserId"`

	Raw map[string]any `json:"-"`
}

func str(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func num(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}

// TypeName is the notification Type, empty when absent.
func (n *Notification) TypeName() string { return str(n.Type) }

// Game is the GameId, empty when absent.
func (n *Notification) Game() string { return str(n.GameId) }

// Envelope copies the shared fields. Call only after validation.
func (n *Notification) Envelope() Envelope {
	webhooks := WebhooksVersionLegacy
	if n.Nickname != nil {
		webhooks = WebhooksVersionNick
	}
	return Envelope{
		AppId:           str(n.AppId),
		AppVersion:      str(n.AppVersion),
		Region:          str(n.Region),
		GameId:          str(n.GameId),
		Type:            str(n.Type),
		ActorNr:         num(n.ActorNr),
		UserId:          str(n.UserId),
		Username:        str(n.Username),
		Nickname:        str(n.Nickname),
		WebhooksVersion: webhooks,
		Raw:             n.Raw,
	}
}
