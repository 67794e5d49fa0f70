package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"PRoom/module/room/model"
	"PRoom/module/room/store"
	"PRoom/service/storage"
	"PRoom/tools/errs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type auditRecord struct {
	ts      string
	payload any
	msg     string
}

type memAudit struct {
	mu   sync.Mutex
	recs []auditRecord
}

func (a *memAudit) RecordFailure(_ context.Context, ts string, payload any, msg string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.recs = append(a.recs, auditRecord{ts: ts, payload: payload, msg: msg})
}

func (a *memAudit) messages() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.recs))
	for _, r := range a.recs {
		out = append(out, r.msg)
	}
	return out
}

type memPublisher struct {
	mu     sync.Mutex
	events []*model.LifecycleEvent
}

func (p *memPublisher) Publish(_ context.Context, ev *model.LifecycleEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *memPublisher) kinds() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Kind)
	}
	return out
}

// tickClock advances one millisecond per reading.
func tickClock() Clock {
	var (
		mu  sync.Mutex
		now = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Millisecond)
		return now
	}
}

type fixture struct {
	c      *Coordinator
	groups storage.GroupStore
	repo   *store.Repo
	audit  *memAudit
	events *memPublisher
}

func newFixtureWith(t *testing.T, groups storage.GroupStore) *fixture {
	t.Helper()
	f := &fixture{groups: groups, audit: &memAudit{}, events: &memPublisher{}}
	f.repo = store.NewRepo(groups, time.Second)
	f.c = NewCoordinator(Options{
		Repo:           f.repo,
		Audit:          f.audit,
		Events:         f.events,
		Clock:          tickClock(),
		ServiceVersion: "test",
	})
	return f
}

func newFixture(t *testing.T) *fixture {
	return newFixtureWith(t, storage.NewMemoryGroupStore())
}

func hook(typ string, actorNr int, user string, kv ...any) map[string]any {
	m := map[string]any{
		"AppId":      "app",
		"AppVersion": "1.0",
		"Region":     "eu",
		"GameId":     "G1",
		"Type":       typ,
		"ActorNr":    float64(actorNr),
		"UserId":     user,
		"Username":   user + "-name",
	}
	return with(m, kv...)
}

func createHook(opts map[string]any) map[string]any {
	return hook(model.TypeCreate, 1, "U1", "CreateOptions", opts)
}

func leaveHook(tag string, actorNr int, user string, inactive bool) map[string]any {
	code, _ := model.LeaveReasonFor(tag)
	return hook(tag, actorNr, user, "IsInactive", inactive, "Reason", string(code))
}

func closeHook(count int) map[string]any {
	return with(hook(model.TypeClose, 0, ""), "ActorNr", nil, "UserId", nil, "Username", nil, "ActorCount", float64(count))
}

func (f *fixture) dispatch(path, caller string, raw map[string]any) Result {
	return f.c.Dispatch(context.Background(), path, caller, raw)
}

func (f *fixture) mustOK(t *testing.T, path, caller string, raw map[string]any) Result {
	t.Helper()
	res := f.dispatch(path, caller, raw)
	require.Equal(t, errs.CodeOK, res.ResultCode, res.Message)
	return res
}

func (f *fixture) room(t *testing.T) *model.RoomRecord {
	t.Helper()
	snap, err := f.repo.LoadRoom(context.Background(), "G1")
	require.NoError(t, err)
	return snap.Record
}

func (f *fixture) version(t *testing.T) int64 {
	t.Helper()
	snap, err := f.repo.LoadRoom(context.Background(), "G1")
	require.NoError(t, err)
	return snap.Version
}

func (f *fixture) index(t *testing.T, user string) map[string]*model.IndexEntry {
	t.Helper()
	m, err := f.repo.ReadIndex(context.Background(), user)
	require.NoError(t, err)
	return m
}

var ttlRoom = map[string]any{"MaxPlayers": float64(4), "PlayerTTL": float64(60000), "CheckUserOnJoin": true}

func TestCreate_InitialRecord(t *testing.T) {
	f := newFixture(t)
	res := f.mustOK(t, PathRoomCreated, "U1", createHook(ttlRoom))
	assert.Equal(t, "OK", res.Message)
	assert.Nil(t, res.State)

	rec := f.room(t)
	require.NotNil(t, rec)
	assert.Equal(t, map[int]model.Actor{1: {UserId: "U1", Inactive: false}}, rec.Actors)
	assert.Equal(t, 2, rec.NextActorNr)
	assert.Equal(t, "U1", rec.Creation.UserId)
	assert.Equal(t, model.TypeCreate, rec.Creation.Type)
	assert.Equal(t, "2024-05-01T12:00:00.001Z", rec.Creation.Timestamp)
	assert.Equal(t, &model.Env{Region: "eu", AppVersion: "1.0", AppId: "app", ServiceVersion: "test", WebhooksVersion: "1.0"}, rec.Env)

	idx := f.index(t, "U1")
	require.Contains(t, idx, "G1")
	assert.Equal(t, 2, idx["G1"].NextActorNr)
	assert.Equal(t, []string{model.KindCreated}, f.events.kinds())
}

func TestCreate_Twice(t *testing.T) {
	f := newFixture(t)
	f.mustOK(t, PathRoomCreated, "U1", createHook(ttlRoom))
	res := f.dispatch(PathRoomCreated, "U1", createHook(ttlRoom))
	assert.Equal(t, errs.CodeInvariantViolation, res.ResultCode)
	assert.Equal(t, "Room=G1 already exists", res.Message)
}

func TestCreate_BooleanActorNr(t *testing.T) {
	f := newFixture(t)
	res := f.dispatch(PathRoomCreated, "U1", with(createHook(ttlRoom), "ActorNr", true))
	assert.Equal(t, errs.CodeInvariantViolation, res.ResultCode)
	assert.Nil(t, f.room(t))
	assert.Len(t, f.audit.messages(), 1)

	f.mustOK(t, PathRoomCreated, "U1", createHook(ttlRoom))
	res = f.dispatch(PathRoomLeft, "U1", with(leaveHook("LeaveRequest", 1, "U1", false), "IsInactive", "0"))
	assert.Equal(t, errs.CodeInvariantViolation, res.ResultCode)
	assert.Contains(t, f.room(t).Actors, 1)
}

func TestJoin_SequentialNumbers(t *testing.T) {
	f := newFixture(t)
	f.mustOK(t, PathRoomCreated, "U1", createHook(map[string]any{"MaxPlayers": float64(6)}))
	users := []string{"A", "B", "C", "D"}
	for i, u := range users {
		f.mustOK(t, PathRoomJoined, u, hook(model.TypeJoin, i+2, u))
	}
	rec := f.room(t)
	assert.Equal(t, 6, rec.NextActorNr)
	for i, u := range users {
		assert.Equal(t, model.Actor{UserId: u}, rec.Actors[i+2])
		idx := f.index(t, u)
		require.Contains(t, idx, "G1")
		assert.Equal(t, i+2, idx["G1"].ActorNr)
		assert.Nil(t, idx["G1"].Actors, "joiner entry is a pointer, not a copy")
	}
	assert.Len(t, rec.JoinEvents, 4)
}

func TestJoin_UnexpectedActorNrWritesNothing(t *testing.T) {
	f := newFixture(t)
	f.mustOK(t, PathRoomCreated, "U1", createHook(ttlRoom))
	before := f.version(t)

	res := f.dispatch(PathRoomJoined, "U5", hook(model.TypeJoin, 5, "U5"))
	assert.Equal(t, errs.CodeInvariantViolation, res.ResultCode)
	assert.Equal(t, "Unexpected ActorNr", res.Message)
	assert.Equal(t, before, f.version(t))
	assert.Empty(t, f.index(t, "U5"))
	assert.Equal(t, []string{"Unexpected ActorNr"}, f.audit.messages())
}

func TestJoin_MissingRoom(t *testing.T) {
	f := newFixture(t)
	res := f.dispatch(PathRoomJoined, "U2", hook(model.TypeJoin, 2, "U2"))
	assert.Equal(t, errs.CodeRoomNotFound, res.ResultCode)
	assert.Equal(t, "Room=G1 not found", res.Message)
}

func TestJoin_RejoinRules(t *testing.T) {
	f := newFixture(t)
	f.mustOK(t, PathRoomCreated, "U1", createHook(ttlRoom))
	f.mustOK(t, PathRoomJoined, "U2", hook(model.TypeJoin, 2, "U2"))

	res := f.dispatch(PathRoomJoined, "U2", hook(model.TypeJoin, 2, "U2"))
	assert.Equal(t, "Actor is already joined", res.Message)

	f.mustOK(t, PathRoomLeft, "U2", leaveHook("ClientDisconnect", 2, "U2", true))
	assert.True(t, f.room(t).Actors[2].Inactive)

	res = f.dispatch(PathRoomJoined, "U3", hook(model.TypeJoin, 2, "U3"))
	assert.Equal(t, errs.CodeInvariantViolation, res.ResultCode)
	assert.Equal(t, "Illegal rejoin with different UserId", res.Message)

	f.mustOK(t, PathRoomJoined, "U2", hook(model.TypeJoin, 2, "U2"))
	rec := f.room(t)
	assert.False(t, rec.Actors[2].Inactive)
	assert.Equal(t, 3, rec.NextActorNr)
}

func TestJoin_CreatorKeepsFullIndexCopy(t *testing.T) {
	f := newFixture(t)
	f.mustOK(t, PathRoomCreated, "U1", createHook(ttlRoom))
	f.mustOK(t, PathRoomLeft, "U1", leaveHook("ClientDisconnect", 1, "U1", true))
	f.mustOK(t, PathRoomJoined, "U1", hook(model.TypeJoin, 1, "U1"))

	e := f.index(t, "U1")["G1"]
	require.NotNil(t, e)
	assert.NotEmpty(t, e.Actors)
	assert.Zero(t, e.ActorNr)
}

func TestLeave_Rules(t *testing.T) {
	f := newFixture(t)
	f.mustOK(t, PathRoomCreated, "U1", createHook(ttlRoom))
	f.mustOK(t, PathRoomJoined, "U2", hook(model.TypeJoin, 2, "U2"))

	res := f.dispatch(PathRoomLeft, "U3", leaveHook("LeaveRequest", 3, "U3", false))
	assert.Equal(t, "No ActorNr inside the room", res.Message)

	res = f.dispatch(PathRoomLeft, "U9", leaveHook("LeaveRequest", 2, "U9", false))
	assert.Equal(t, "Leaving UserId is different from joined", res.Message)

	f.mustOK(t, PathRoomLeft, "U2", leaveHook("ClientDisconnect", 2, "U2", true))
	res = f.dispatch(PathRoomLeft, "U2", leaveHook("LeaveRequest", 2, "U2", false))
	assert.Equal(t, "Inactive actors cant leave", res.Message)

	// the TTL expiry of an inactive actor is allowed
	f.mustOK(t, PathRoomLeft, "U2", leaveHook("PlayerTtlTimedOut", 2, "U2", false))
	rec := f.room(t)
	assert.NotContains(t, rec.Actors, 2)
	assert.Equal(t, 3, rec.NextActorNr)
	assert.NotContains(t, f.index(t, "U2"), "G1")

	require.Len(t, rec.LeaveEvents, 2)
	var rejoinable int
	for _, e := range rec.LeaveEvents {
		if e.CanRejoin {
			rejoinable++
		}
	}
	assert.Equal(t, 1, rejoinable)

	res = f.dispatch(PathRoomJoined, "U2", hook(model.TypeJoin, 2, "U2"))
	assert.Equal(t, "Actor slot was released", res.Message)
}

func TestUpdates(t *testing.T) {
	f := newFixture(t)
	f.mustOK(t, PathRoomCreated, "U1", createHook(ttlRoom))
	f.mustOK(t, PathRoomJoined, "U2", hook(model.TypeJoin, 2, "U2"))

	state := map[string]any{"CustomProperties": map[string]any{"map": "dust"}}
	res := f.mustOK(t, PathRoomPropertyUpdated, "U2",
		hook(model.TypeGame, 2, "U2", "Properties", map[string]any{"map": "dust"}, "State", state))
	assert.Equal(t, "OK", res.Message)
	assert.Equal(t, state, f.room(t).State)
	assert.Equal(t, state, f.index(t, "U1")["G1"].State, "creator entry refreshed")

	before := f.version(t)
	f.mustOK(t, PathRoomPropertyUpdated, "U2",
		hook(model.TypePlayer, 2, "U2", "Properties", map[string]any{}, "TargetActor", float64(2), "Username", nil, "Nickname", "n"))
	assert.Equal(t, before, f.version(t), "no State, no write")

	raised := map[string]any{"CustomProperties": map[string]any{"map": "nuke"}}
	f.mustOK(t, PathRoomEventRaised, "U2", hook(model.TypeEvent, 2, "U2", "Data", "boom", "State", raised))
	assert.Equal(t, raised, f.room(t).State)
	assert.Equal(t, state, f.index(t, "U1")["G1"].State, "events leave the index alone")
}

func TestUpdates_MissingRoom(t *testing.T) {
	f := newFixture(t)
	res := f.dispatch(PathRoomEventRaised, "U1", hook(model.TypeEvent, 1, "U1", "Data", "x", "Username", nil, "Nickname", "n"))
	assert.Equal(t, errs.CodeRoomNotFound, res.ResultCode)
}

func TestSave_KeepsRoomAndRefreshesIndex(t *testing.T) {
	f := newFixture(t)
	f.mustOK(t, PathRoomCreated, "U1", createHook(ttlRoom))
	f.mustOK(t, PathRoomJoined, "U2", hook(model.TypeJoin, 2, "U2"))

	save := func(count int) map[string]any {
		return with(closeHook(0), "Type", model.TypeSave, "ActorCount", float64(count), "State", map[string]any{"turn": 3.0})
	}
	res := f.dispatch(PathRoomClosed, "", save(1))
	assert.Equal(t, errs.CodeActorsCountMismatch, res.ResultCode)
	assert.Equal(t, "Actors count does not match", res.Message)

	f.mustOK(t, PathRoomClosed, "", save(2))
	rec := f.room(t)
	require.NotNil(t, rec)
	assert.Equal(t, map[string]any{"turn": 3.0}, rec.State)
	require.Len(t, rec.SaveEvents, 1)
	for _, e := range rec.SaveEvents {
		assert.Equal(t, 2, e.ActorCount)
	}
	assert.Equal(t, map[string]any{"turn": 3.0}, f.index(t, "U1")["G1"].State)
}

func TestClose_CountMismatch(t *testing.T) {
	f := newFixture(t)
	f.mustOK(t, PathRoomCreated, "U1", createHook(ttlRoom))

	// only ActorCount=0 gets here; a nonzero Close count fails validation with code 2
	res := f.dispatch(PathRoomClosed, "", closeHook(0))
	assert.Equal(t, errs.CodeActorsCountMismatch, res.ResultCode)
	assert.NotNil(t, f.room(t))
	assert.Contains(t, f.index(t, "U1"), "G1")
}

func TestWrongPath(t *testing.T) {
	f := newFixture(t)
	res := f.dispatch(PathRoomJoined, "U1", createHook(ttlRoom))
	assert.Equal(t, errs.CodeInvariantViolation, res.ResultCode)
	assert.Equal(t, "Wrong PathJoin Type=Create", res.Message)

	res = f.dispatch(PathRoomPropertyUpdated, "U1", hook(model.TypeEvent, 1, "U1", "Data", "x", "State", "s"))
	assert.Equal(t, "Wrong PathGameProperties Type=Event", res.Message)

	res = f.dispatch("RoomExploded", "U1", createHook(ttlRoom))
	assert.Equal(t, errs.CodeInvariantViolation, res.ResultCode)
	assert.Nil(t, f.room(t), "nothing written")
}

func TestLoad(t *testing.T) {
	f := newFixture(t)

	res := f.dispatch(PathRoomCreated, "U1", hook(model.TypeLoad, 1, "U1", "CreateIfNotExists", false))
	assert.Equal(t, errs.CodeRoomNotFound, res.ResultCode)

	res = f.mustOK(t, PathRoomCreated, "U1", hook(model.TypeLoad, 1, "U1", "CreateIfNotExists", true,
		"CreateOptions", ttlRoom))
	assert.Equal(t, "", res.State)
	assert.Equal(t, model.TypeLoad, f.room(t).Creation.Type)

	f.mustOK(t, PathRoomJoined, "U2", hook(model.TypeJoin, 2, "U2"))
	// live but never saved: nothing to load yet
	res = f.dispatch(PathRoomCreated, "U1", hook(model.TypeLoad, 1, "U1", "CreateIfNotExists", false))
	assert.Equal(t, errs.CodeRoomNotFound, res.ResultCode)
	assert.NotNil(t, f.room(t))

	saved := map[string]any{"CustomProperties": map[string]any{"k": "v"}}
	f.mustOK(t, PathRoomClosed, "", with(closeHook(0), "Type", model.TypeSave, "ActorCount", float64(2), "State", saved))

	// the live group is gone; Load rebuilds it from the owner's copy via the joiner's pointer
	require.NoError(t, f.groups.DeleteGroup(context.Background(), "G1", storage.AnyVersion))
	res = f.mustOK(t, PathRoomCreated, "U2", hook(model.TypeLoad, 2, "U2", "CreateIfNotExists", false))
	assert.Equal(t, saved, res.State)

	rec := f.room(t)
	require.NotNil(t, rec)
	assert.Len(t, rec.Actors, 2)
	require.Len(t, rec.LoadEvents, 1)
	for _, e := range rec.LoadEvents {
		assert.Equal(t, model.ActorEntry{ActorNr: 2, UserId: "U2"}, e)
	}
}

// End to end: create, join, drop out, rejoin, everyone leaves, close.
func TestScenario_RoomLifecycle(t *testing.T) {
	f := newFixture(t)
	f.mustOK(t, PathRoomCreated, "U1", createHook(ttlRoom))
	f.mustOK(t, PathRoomJoined, "U2", hook(model.TypeJoin, 2, "U2"))
	f.mustOK(t, PathRoomLeft, "U2", leaveHook("ClientDisconnect", 2, "U2", true))
	f.mustOK(t, PathRoomJoined, "U2", hook(model.TypeJoin, 2, "U2"))

	rec := f.room(t)
	assert.Equal(t, map[int]model.Actor{1: {UserId: "U1"}, 2: {UserId: "U2"}}, rec.Actors)

	f.mustOK(t, PathRoomLeft, "U2", leaveHook("LeaveRequest", 2, "U2", false))
	f.mustOK(t, PathRoomLeft, "U1", leaveHook("LeaveRequest", 1, "U1", false))
	f.mustOK(t, PathRoomClosed, "", closeHook(0))

	_, err := f.groups.ReadGroup(context.Background(), "G1")
	assert.ErrorIs(t, err, storage.ErrGroupNotFound)
	assert.NotContains(t, f.index(t, "U1"), "G1")
	assert.NotContains(t, f.index(t, "U2"), "G1")
	assert.Equal(t, []string{
		model.KindCreated, model.KindJoined, model.KindLeft, model.KindJoined,
		model.KindLeft, model.KindLeft, model.KindClosed,
	}, f.events.kinds())
	assert.Empty(t, f.audit.messages())
}

func TestIdentityMismatch(t *testing.T) {
	f := newFixture(t)
	res := f.dispatch(PathRoomCreated, "mallory", createHook(ttlRoom))
	assert.Equal(t, errs.CodeIdentityMismatch, res.ResultCode)
	assert.Nil(t, f.room(t))
}

// conflictStore fails the first n conditional room writes.
type conflictStore struct {
	storage.GroupStore
	mu    sync.Mutex
	fails int
	calls int
}

func (s *conflictStore) WriteGroup(ctx context.Context, id string, fields map[string]string, expect int64) (int64, error) {
	s.mu.Lock()
	if expect != storage.AnyVersion {
		s.calls++
		if s.fails != 0 {
			if s.fails > 0 {
				s.fails--
			}
			s.mu.Unlock()
			return 0, storage.ErrVersionConflict
		}
	}
	s.mu.Unlock()
	return s.GroupStore.WriteGroup(ctx, id, fields, expect)
}

func TestConflict_RetriedThenSurfaced(t *testing.T) {
	cs := &conflictStore{GroupStore: storage.NewMemoryGroupStore(), fails: 2}
	f := newFixtureWith(t, cs)
	f.mustOK(t, PathRoomCreated, "U1", createHook(ttlRoom))
	assert.Equal(t, 3, cs.calls)

	cs.mu.Lock()
	cs.fails, cs.calls = -1, 0
	cs.mu.Unlock()
	res := f.dispatch(PathRoomJoined, "U2", hook(model.TypeJoin, 2, "U2"))
	assert.Equal(t, errs.CodeInternal, res.ResultCode)
	assert.Contains(t, res.Message, "Conflict")
	assert.Equal(t, DefaultMaxRetries+1, cs.calls)
}

func TestConcurrentLeavesAreAllKept(t *testing.T) {
	f := newFixture(t)
	f.mustOK(t, PathRoomCreated, "U1", createHook(map[string]any{"MaxPlayers": float64(8), "PlayerTTL": float64(1000)}))
	users := []string{"A", "B", "C", "D"}
	for i, u := range users {
		f.mustOK(t, PathRoomJoined, u, hook(model.TypeJoin, i+2, u))
	}

	var wg sync.WaitGroup
	results := make([]Result, len(users))
	for i, u := range users {
		wg.Add(1)
		go func(i int, u string) {
			defer wg.Done()
			results[i] = f.dispatch(PathRoomLeft, u, leaveHook("ClientDisconnect", i+2, u, true))
		}(i, u)
	}
	wg.Wait()

	for _, r := range results {
		assert.Equal(t, errs.CodeOK, r.ResultCode, r.Message)
	}
	rec := f.room(t)
	for i := range users {
		assert.True(t, rec.Actors[i+2].Inactive)
	}
	assert.Len(t, rec.LeaveEvents, len(users))
}

type explodingStore struct{ storage.GroupStore }

func (explodingStore) ReadGroup(context.Context, string, ...string) (*storage.Group, error) {
	var m map[string]string
	m["boom"] = "x"
	return nil, nil
}

func TestDispatch_PanicBecomesResult(t *testing.T) {
	f := newFixtureWith(t, explodingStore{storage.NewMemoryGroupStore()})
	res := f.dispatch(PathRoomJoined, "U2", hook(model.TypeJoin, 2, "U2"))
	assert.Equal(t, errs.CodeInternal, res.ResultCode)
	assert.Contains(t, res.Message, "assignment to entry in nil map")
	assert.Len(t, f.audit.messages(), 1)
}

func TestSetMaxRetries(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, DefaultMaxRetries, f.c.MaxRetries())
	f.c.SetMaxRetries(7)
	assert.Equal(t, 7, f.c.MaxRetries())
}
