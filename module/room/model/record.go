package model

import (
	"encoding/json"
	"strconv"
)

const (
	// CreatorActorNr is the slot of the room author.
	CreatorActorNr = 1
	// FirstJoinActorNr is the NextActorNr of a fresh room.
	FirstJoinActorNr = 2

	WebhooksVersionLegacy = "1.0"
	WebhooksVersionNick   = "1.2"
)

// Env is captured once when the room is created.
type Env struct {
	Region          string `json:"Region"`
	AppVersion      string `json:"AppVersion"`
	AppId           string `json:"AppId"`
	ServiceVersion  string `json:"ServiceVersion,omitempty"`
	WebhooksVersion string `json:"WebhooksVersion"`
}

type Creation struct {
	Timestamp string `json:"Timestamp"`
	UserId    string `json:"UserId"`
	Type      string `json:"Type"`
}

type Actor struct {
	UserId   string `json:"UserId"`
	Inactive bool   `json:"Inactive"`
}

// RoomOptions is the opaque creation config sent by the game server. Only a
// few keys are interpreted here; everything else is stored untouched.
type RoomOptions map[string]any

func (o RoomOptions) MaxPlayers() int { return optInt(o["MaxPlayers"]) }
func (o RoomOptions) PlayerTTL() int  { return optInt(o["PlayerTTL"]) }

func (o RoomOptions) CheckUserOnJoin() bool {
	b, _ := o["CheckUserOnJoin"].(bool)
	return b
}

func optInt(v any) int {
	switch t := v.(type) {
	case float64:
		return int(t)
	case int:
		return t
	case int64:
		return int(t)
	case json.Number:
		n, _ := t.Int64()
		return int(n)
	case string:
		n, _ := strconv.Atoi(t)
		return n
	}
	return 0
}

// ActorEntry is a LoadEvents / JoinEvents journal record.
type ActorEntry struct {
	ActorNr int    `json:"ActorNr"`
	UserId  string `json:"UserId"`
}

type LeaveEntry struct {
	ActorNr   int    `json:"ActorNr"`
	UserId    string `json:"UserId"`
	CanRejoin bool   `json:"CanRejoin"`
	Reason    string `json:"Reason,omitempty"`
}

type SaveEntry struct {
	ActorCount int `json:"ActorCount"`
}

// RoomRecord is the persisted state of one room, one storage field per
// top level member.
type RoomRecord struct {
	Env         *Env                  `json:"Env,omitempty"`
	RoomOptions RoomOptions           `json:"RoomOptions,omitempty"`
	Creation    *Creation             `json:"Creation,omitempty"`
	NextActorNr int                   `json:"NextActorNr,omitempty"`
	Actors      map[int]Actor         `json:"Actors,omitempty"`
	State       any                   `json:"State,omitempty"`
	LoadEvents  map[string]ActorEntry `json:"LoadEvents,omitempty"`
	JoinEvents  map[string]ActorEntry `json:"JoinEvents,omitempty"`
	LeaveEvents map[string]LeaveEntry `json:"LeaveEvents,omitempty"`
	SaveEvents  map[string]SaveEntry  `json:"SaveEvents,omitempty"`
}

// RecordFields are the storage field names of a RoomRecord. A field missing
// from an encoded record is cleared on write.
var RecordFields = []string{
	"Env", "RoomOptions", "Creation", "NextActorNr", "Actors", "State",
	"LoadEvents", "JoinEvents", "LeaveEvents", "SaveEvents",
}

// Exists reports whether the record describes a created room.
func (r *RoomRecord) Exists() bool {
	return r != nil && r.Creation != nil
}

// Clone copies every map so the transition can mutate freely. State is
// replaced wholesale, never edited, and is shared.
func (r *RoomRecord) Clone() *RoomRecord {
	if r == nil {
		return nil
	}
	out := *r
	if r.Env != nil {
		env := *r.Env
		out.Env = &env
	}
	if r.Creation != nil {
		c := *r.Creation
		out.Creation = &c
	}
	out.RoomOptions = cloneMap(r.RoomOptions)
	out.Actors = cloneMap(r.Actors)
	out.LoadEvents = cloneMap(r.LoadEvents)
	out.JoinEvents = cloneMap(r.JoinEvents)
	out.LeaveEvents = cloneMap(r.LeaveEvents)
	out.SaveEvents = cloneMap(r.SaveEvents)
	return &out
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	if m == nil {
		return nil
	}
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// CustomProperties returns State.CustomProperties when State is an object.
func (r *RoomRecord) CustomProperties() any {
	if r == nil {
		return nil
	}
	m, ok := r.State.(map[string]any)
	if !ok {
		return nil
	}
	return m["CustomProperties"]
}

// JournalKey returns ts, or ts with a "#n" suffix when ts is already taken, so
// two events in the same millisecond both survive.
func JournalKey[V any](journal map[string]V, ts string) string {
	if _, taken := journal[ts]; !taken {
		return ts
	}
	for n := 2; ; n++ {
		k := ts + "#" + strconv.Itoa(n)
		if _, taken := journal[k]; !taken {
			return k
		}
	}
}

// IndexEntry is one room in a user's discovery index. The creator's entry is
// a full copy of the record; a joiner's entry carries Env, Creation and the
// joiner's ActorNr only.
type IndexEntry struct {
	RoomRecord
	ActorNr int `json:"ActorNr,omitempty"`
}

// PointerEntry builds the lightweight entry stored for a joining user.
func PointerEntry(rec *RoomRecord, actorNr int) *IndexEntry {
	return &IndexEntry{
		RoomRecord: RoomRecord{Env: rec.Env, Creation: rec.Creation},
		ActorNr:    actorNr,
	}
}

// OwnerEntry builds the creator's entry.
func OwnerEntry(rec *RoomRecord) *IndexEntry {
	return &IndexEntry{RoomRecord: *rec}
}

// RoomSummary is one row of a room listing.
type RoomSummary struct {
	ActorNr    int `json:"ActorNr"`
	Properties any `json:"Properties,omitempty"`
}
