package service

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"PRoom/logger"
	"PRoom/module/room/model"
	"PRoom/module/room/store"
	"PRoom/service/storage"
	"PRoom/tools/errs"
	"PRoom/tools/ids"

	"go.uber.org/zap"
)

const DefaultMaxRetries = 3

// FailureRecorder durably records a failed request. It must not block the
// caller for long and never fails.
type FailureRecorder interface {
	RecordFailure(ctx context.Context, timestamp string, payload any, message string)
}

// Publisher fans out lifecycle events once a transition is stored.
type Publisher interface {
	Publish(ctx context.Context, ev *model.LifecycleEvent) error
}

type Options struct {
	Repo           *store.Repo
	Audit          FailureRecorder
	Events         Publisher
	Clock          Clock
	MaxRetries     int
	ServiceVersion string
}

// Coordinator advances room records from validated lifecycle events.
// Every record write is conditional on the version that was read; on a
// concurrent write the whole read/decide/write step is repeated.
type Coordinator struct {
	repo           *store.Repo
	audit          FailureRecorder
	events         Publisher
	clock          Clock
	serviceVersion string

	maxRetries atomic.Int32
}

func NewCoordinator(o Options) *Coordinator {
	if o.Repo == nil {
		panic("room coordinator needs a repo")
	}
	c := &Coordinator{
		repo:           o.Repo,
		audit:          o.Audit,
		events:         o.Events,
		clock:          o.Clock,
		serviceVersion: o.ServiceVersion,
	}
	if c.audit == nil {
		c.audit = logRecorder{}
	}
	if c.events == nil {
		c.events = noopPublisher{}
	}
	if c.clock == nil {
		c.clock = time.Now
	}
	retries := o.MaxRetries
	if retries <= 0 {
		retries = DefaultMaxRetries
	}
	c.SetMaxRetries(retries)
	return c
}

func (c *Coordinator) SetMaxRetries(n int) { c.maxRetries.Store(int32(n)) }
func (c *Coordinator) MaxRetries() int     { return int(c.maxRetries.Load()) }

// Repo exposes the store adapter, used by the config watcher for timeouts.
func (c *Coordinator) Repo() *store.Repo { return c.repo }

type logRecorder struct{}

func (logRecorder) RecordFailure(_ context.Context, ts string, payload any, msg string) {
	logger.Warn("webhook failure", zap.String("ts", ts), zap.String("msg", msg), zap.Any("payload", payload))
}

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, *model.LifecycleEvent) error { return nil }

// withRetry runs attempt until it stops reporting a version conflict, at most
// MaxRetries extra times.
func (c *Coordinator) withRetry(gameID string, attempt func() error) error {
	retries := c.MaxRetries()
	for i := 0; ; i++ {
		err := attempt()
		if !errors.Is(err, storage.ErrVersionConflict) {
			return err
		}
		if i >= retries {
			return errs.ErrConflict.WrapMsg("concurrent update", "game", gameID, "attempts", i+1)
		}
		logger.Debug("room version conflict, retrying", zap.String("game", gameID), zap.Int("attempt", i+1))
	}
}

// transition receives a private copy of the stored record (nil when the room
// does not exist) and returns the record to store, or nil to skip the write.
type transition func(cur *model.RoomRecord) (*model.RoomRecord, error)

// mutate is the conditional read-modify-write of one room record.
func (c *Coordinator) mutate(ctx context.Context, gameID string, fn transition) (*model.RoomRecord, error) {
	var out *model.RoomRecord
	err := c.withRetry(gameID, func() error {
		snap, err := c.repo.LoadRoom(ctx, gameID)
		if err != nil {
			return err
		}
		next, err := fn(snap.Record.Clone())
		if err != nil {
			return err
		}
		if next == nil {
			out = snap.Record
			return nil
		}
		if _, err := c.repo.SaveRoom(ctx, gameID, next, snap.Version); err != nil {
			return err
		}
		out = next
		return nil
	})
	return out, err
}

func (c *Coordinator) notFound(ev *model.Envelope) error {
	return errs.ErrRoomNotFound.WrapData(ev.Raw, fmt.Sprintf("Room=%s not found", ev.GameId))
}

// customState is the audit payload of a failure that depends on the record.
func customState(ev *model.Envelope, rec *model.RoomRecord) map[string]any {
	return map[string]any{"Webhook": ev.Raw, "CustomState": rec}
}

func roomViolation(ev *model.Envelope, rec *model.RoomRecord, msg string) error {
	return errs.ErrInvariantViolation.WrapData(customState(ev, rec), msg)
}

// attachData sets the audit payload on a coded error that has none.
func attachData(err error, data any) error {
	if ce, ok := errs.AsCode(err); ok && ce.Data == nil {
		ce.Data = data
	}
	return err
}

func (c *Coordinator) newRecord(call Call, env *model.Envelope, opts model.RoomOptions) *model.RoomRecord {
	return &model.RoomRecord{
		Env:         env.Env(c.serviceVersion),
		RoomOptions: opts,
		Creation:    &model.Creation{Timestamp: call.Timestamp, UserId: env.UserId, Type: env.Type},
		Actors:      map[int]model.Actor{model.CreatorActorNr: {UserId: env.UserId, Inactive: false}},
		NextActorNr: model.FirstJoinActorNr,
	}
}

func (c *Coordinator) publish(ctx context.Context, call Call, kind string, ev *model.Envelope, mod func(*model.LifecycleEvent)) {
	le := &model.LifecycleEvent{
		Id:        ids.GenerateString(),
		Kind:      kind,
		Type:      ev.Type,
		GameId:    ev.GameId,
		UserId:    ev.UserId,
		ActorNr:   ev.ActorNr,
		Timestamp: call.Timestamp,
	}
	if mod != nil {
		mod(le)
	}
	if err := c.events.Publish(ctx, le); err != nil {
		logger.Warn("publish lifecycle event failed",
			zap.String("game", ev.GameId), zap.String("kind", kind), zap.Error(err))
	}
}

// Create stores a new room and its creator's discovery entry.
func (c *Coordinator) Create(ctx context.Context, call Call, ev *model.CreateEvent) error {
	if err := c.repo.EnsureRoomGroup(ctx, ev.GameId); err != nil {
		return err
	}
	rec, err := c.mutate(ctx, ev.GameId, func(cur *model.RoomRecord) (*model.RoomRecord, error) {
		if cur != nil {
			return nil, roomViolation(&ev.Envelope, cur, fmt.Sprintf("Room=%s already exists", ev.GameId))
		}
		return c.newRecord(call, &ev.Envelope, ev.CreateOptions), nil
	})
	if err != nil {
		return err
	}
	if err := c.repo.PutIndexEntry(ctx, rec.Creation.UserId, ev.GameId, model.OwnerEntry(rec)); err != nil {
		return err
	}
	c.publish(ctx, call, model.KindCreated, &ev.Envelope, nil)
	return nil
}

// Load resumes a room from the discovery index and returns its State. A room
// unknown to the index is created when CreateIfNotExists is set; its State
// is then "".
func (c *Coordinator) Load(ctx context.Context, call Call, ev *model.LoadEvent) (any, error) {
	entry, err := c.repo.ReadIndexEntry(ctx, call.CallerID, ev.GameId)
	if err != nil {
		return nil, err
	}
	if entry != nil && entry.Creation != nil && entry.Creation.UserId != call.CallerID {
		entry, err = c.repo.ReadIndexEntry(ctx, entry.Creation.UserId, ev.GameId)
		if err != nil {
			return nil, err
		}
	}

	if entry == nil || entry.State == nil {
		if !ev.CreateIfNotExists {
			return nil, c.notFound(&ev.Envelope)
		}
		return c.loadCreate(ctx, call, ev)
	}

	saved := entry.RoomRecord
	rec, err := c.mutate(ctx, ev.GameId, func(cur *model.RoomRecord) (*model.RoomRecord, error) {
		if cur == nil {
			cur = saved.Clone()
		}
		appendLoad(cur, call, &ev.Envelope)
		return cur, nil
	})
	if err != nil {
		return nil, err
	}
	c.publish(ctx, call, model.KindLoaded, &ev.Envelope, nil)
	return rec.State, nil
}

// loadCreate is Load on a room nobody saved. A live record, if any, is kept.
func (c *Coordinator) loadCreate(ctx context.Context, call Call, ev *model.LoadEvent) (any, error) {
	if err := c.repo.EnsureRoomGroup(ctx, ev.GameId); err != nil {
		return nil, err
	}
	created := false
	rec, err := c.mutate(ctx, ev.GameId, func(cur *model.RoomRecord) (*model.RoomRecord, error) {
		created = cur == nil
		if cur != nil {
			appendLoad(cur, call, &ev.Envelope)
			return cur, nil
		}
		return c.newRecord(call, &ev.Envelope, ev.CreateOptions), nil
	})
	if err != nil {
		return nil, err
	}
	if created {
		if err := c.repo.PutIndexEntry(ctx, rec.Creation.UserId, ev.GameId, model.OwnerEntry(rec)); err != nil {
			return nil, err
		}
		c.publish(ctx, call, model.KindCreated, &ev.Envelope, nil)
		return "", nil
	}
	c.publish(ctx, call, model.KindLoaded, &ev.Envelope, nil)
	if rec.State == nil {
		return "", nil
	}
	return rec.State, nil
}

func appendLoad(rec *model.RoomRecord, call Call, ev *model.Envelope) {
	if rec.LoadEvents == nil {
		rec.LoadEvents = make(map[string]model.ActorEntry)
	}
	rec.LoadEvents[model.JournalKey(rec.LoadEvents, call.Timestamp)] = model.ActorEntry{ActorNr: ev.ActorNr, UserId: ev.UserId}
}

// Join allocates or reclaims an actor slot and indexes the room for the
// joining user.
func (c *Coordinator) Join(ctx context.Context, call Call, ev *model.JoinEvent) error {
	var decision JoinDecision
	rec, err := c.mutate(ctx, ev.GameId, func(cur *model.RoomRecord) (*model.RoomRecord, error) {
		if cur == nil {
			return nil, c.notFound(&ev.Envelope)
		}
		snapshot := cur.Clone()
		d, err := ResolveJoin(cur, ev.ActorNr, ev.UserId)
		if err != nil {
			return nil, attachData(err, customState(&ev.Envelope, snapshot))
		}
		decision = d
		if cur.JoinEvents == nil {
			cur.JoinEvents = make(map[string]model.ActorEntry)
		}
		cur.JoinEvents[model.JournalKey(cur.JoinEvents, call.Timestamp)] = model.ActorEntry{ActorNr: ev.ActorNr, UserId: ev.UserId}
		return cur, nil
	})
	if err != nil {
		return err
	}

	entry := model.PointerEntry(rec, ev.ActorNr)
	if rec.Creation.UserId == call.CallerID {
		// the author's entry stays the full copy
		entry = model.OwnerEntry(rec)
	}
	if err := c.repo.PutIndexEntry(ctx, call.CallerID, ev.GameId, entry); err != nil {
		return err
	}
	c.publish(ctx, call, model.KindJoined, &ev.Envelope, func(le *model.LifecycleEvent) {
		le.Rejoin = decision == JoinRejoined
	})
	return nil
}

// Leave marks the actor inactive or releases its slot.
func (c *Coordinator) Leave(ctx context.Context, call Call, ev *model.LeaveEvent) error {
	_, err := c.mutate(ctx, ev.GameId, func(cur *model.RoomRecord) (*model.RoomRecord, error) {
		if cur == nil {
			return nil, c.notFound(&ev.Envelope)
		}
		slot, ok := cur.Actors[ev.ActorNr]
		if !ok {
			return nil, roomViolation(&ev.Envelope, cur, "No ActorNr inside the room")
		}
		if ev.Reason != model.PlayerTtlTimedOut && slot.Inactive {
			return nil, roomViolation(&ev.Envelope, cur, "Inactive actors cant leave")
		}
		if slot.UserId != ev.UserId {
			return nil, roomViolation(&ev.Envelope, cur, "Leaving UserId is different from joined")
		}
		if ev.IsInactive {
			slot.Inactive = true
			cur.Actors[ev.ActorNr] = slot
		} else {
			delete(cur.Actors, ev.ActorNr)
		}
		if cur.LeaveEvents == nil {
			cur.LeaveEvents = make(map[string]model.LeaveEntry)
		}
		cur.LeaveEvents[model.JournalKey(cur.LeaveEvents, call.Timestamp)] = model.LeaveEntry{
			ActorNr:   ev.ActorNr,
			UserId:    ev.UserId,
			CanRejoin: ev.IsInactive,
			Reason:    string(ev.Reason),
		}
		return cur, nil
	})
	if err != nil {
		return err
	}
	if !ev.IsInactive {
		if err := c.repo.DeleteIndexEntry(ctx, call.CallerID, ev.GameId); err != nil {
			return err
		}
	}
	c.publish(ctx, call, model.KindLeft, &ev.Envelope, func(le *model.LifecycleEvent) {
		le.Reason = string(ev.Reason)
	})
	return nil
}

// replaceState stores a new State blob. Without a State nothing is written
// but the room must exist.
func (c *Coordinator) replaceState(ctx context.Context, ev *model.Envelope, state any) (*model.RoomRecord, bool, error) {
	rec, err := c.mutate(ctx, ev.GameId, func(cur *model.RoomRecord) (*model.RoomRecord, error) {
		if cur == nil {
			return nil, c.notFound(ev)
		}
		if state == nil {
			return nil, nil
		}
		cur.State = state
		return cur, nil
	})
	return rec, state != nil, err
}

// UpdateProperties handles Player and Game property updates.
func (c *Coordinator) UpdateProperties(ctx context.Context, call Call, ev *model.PropertyEvent) error {
	rec, written, err := c.replaceState(ctx, &ev.Envelope, ev.State)
	if err != nil {
		return err
	}
	if !written {
		return nil
	}
	if err := c.repo.PutIndexEntry(ctx, rec.Creation.UserId, ev.GameId, model.OwnerEntry(rec)); err != nil {
		return err
	}
	c.publish(ctx, call, model.KindUpdated, &ev.Envelope, nil)
	return nil
}

// RaiseEvent handles a custom room event. The discovery index is not touched.
func (c *Coordinator) RaiseEvent(ctx context.Context, call Call, ev *model.RaiseEvent) error {
	_, written, err := c.replaceState(ctx, &ev.Envelope, ev.State)
	if err != nil {
		return err
	}
	if written {
		c.publish(ctx, call, model.KindRaised, &ev.Envelope, nil)
	}
	return nil
}

func actorsCountMismatch(ev *model.Envelope, rec *model.RoomRecord) error {
	return errs.ErrActorsCountMismatch.WrapData(customState(ev, rec), "Actors count does not match")
}

// Save journals the save, stores the State and refreshes the creator's
// discovery entry. The room stays open.
func (c *Coordinator) Save(ctx context.Context, call Call, ev *model.SaveEvent) error {
	rec, err := c.mutate(ctx, ev.GameId, func(cur *model.RoomRecord) (*model.RoomRecord, error) {
		if cur == nil {
			return nil, c.notFound(&ev.Envelope)
		}
		if len(cur.Actors) != ev.ActorCount {
			return nil, actorsCountMismatch(&ev.Envelope, cur)
		}
		if cur.SaveEvents == nil {
			cur.SaveEvents = make(map[string]model.SaveEntry)
		}
		cur.SaveEvents[model.JournalKey(cur.SaveEvents, call.Timestamp)] = model.SaveEntry{ActorCount: ev.ActorCount}
		cur.State = ev.State
		return cur, nil
	})
	if err != nil {
		return err
	}
	if err := c.repo.PutIndexEntry(ctx, rec.Creation.UserId, ev.GameId, model.OwnerEntry(rec)); err != nil {
		return err
	}
	c.publish(ctx, call, model.KindSaved, &ev.Envelope, func(le *model.LifecycleEvent) {
		le.ActorCount = ev.ActorCount
	})
	return nil
}

// Close deletes the room group and the creator's discovery entry.
func (c *Coordinator) Close(ctx context.Context, call Call, ev *model.CloseEvent) error {
	var owner string
	err := c.withRetry(ev.GameId, func() error {
		snap, err := c.repo.LoadRoom(ctx, ev.GameId)
		if err != nil {
			return err
		}
		if snap.Record == nil {
			return c.notFound(&ev.Envelope)
		}
		if len(snap.Record.Actors) != ev.ActorCount {
			return actorsCountMismatch(&ev.Envelope, snap.Record)
		}
		owner = snap.Record.Creation.UserId
		return c.repo.DeleteRoom(ctx, ev.GameId, snap.Version)
	})
	if err != nil {
		return err
	}
	if err := c.repo.DeleteIndexEntry(ctx, owner, ev.GameId); err != nil {
		return err
	}
	c.publish(ctx, call, model.KindClosed, &ev.Envelope, func(le *model.LifecycleEvent) {
		le.ActorCount = ev.ActorCount
	})
	return nil
}
