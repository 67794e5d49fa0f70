package model

// LeaveReason is the code the game server sends with a leave notification.
// The notification Type carries the tag, Reason carries the code.
type LeaveReason string

const (
	ClientDisconnect        LeaveReason = "0"
	ClientTimeoutDisconnect LeaveReason = "1"
	ManagedDisconnect       LeaveReason = "2"
	ServerDisconnect        LeaveReason = "3"
	TimeoutDisconnect       LeaveReason = "4"
	ConnectTimeout          LeaveReason = "5"
	SwitchRoom              LeaveReason = "100"
	LeaveRequest            LeaveReason = "101"
	PlayerTtlTimedOut       LeaveReason = "102"
	PeerLastTouchTimedout   LeaveReason = "103"
	PluginRequest           LeaveReason = "104"
	PluginFailedJoin        LeaveReason = "105"
)

var leaveReasons = map[string]LeaveReason{
	"ClientDisconnect":        ClientDisconnect,
	"ClientTimeoutDisconnect": ClientTimeoutDisconnect,
	"ManagedDisconnect":       ManagedDisconnect,
	"ServerDisconnect":        ServerDisconnect,
	"TimeoutDisconnect":       TimeoutDisconnect,
	"ConnectTimeout":          ConnectTimeout,
	"SwitchRoom":              SwitchRoom,
	"LeaveRequest":            LeaveRequest,
	"PlayerTtlTimedOut":       PlayerTtlTimedOut,
	"PeerLastTouchTimedout":   PeerLastTouchTimedout,
	"PluginRequest":           PluginRequest,
	"PluginFailedJoin":        PluginFailedJoin,
}

// LeaveReasonFor maps a notification Type tag to its reason code.
func LeaveReasonFor(tag string) (LeaveReason, bool) {
	r, ok := leaveReasons[tag]
	return r, ok
}

// IsLeaveType reports whether tag names a leave reason.
func IsLeaveType(tag string) bool {
	_, ok := leaveReasons[tag]
	return ok
}

// Rejected reports the reasons never accepted on an incoming leave.
func (r LeaveReason) Rejected() bool {
	switch r {
	case ClientTimeoutDisconnect, SwitchRoom, PeerLastTouchTimedout, PluginFailedJoin:
		return true
	}
	return false
}

// LeaveTypes lists every tag, for tests and docs.
func LeaveTypes() []string {
	out := make([]string, 0, len(leaveReasons))
	for k := range leaveReasons {
		out = append(out, k)
	}
	return out
}
