package store

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"PRoom/module/room/model"
	"PRoom/service/storage"
	"PRoom/tools/errs"
)

// GamesListSuffix names a user's discovery index group: "<UserId>_GamesList".
const GamesListSuffix = "_GamesList"

func IndexGroupID(userID string) string { return userID + GamesListSuffix }

// Snapshot is a room record together with the group version it was read at.
// Record is nil when the room does not exist.
type Snapshot struct {
	Record  *model.RoomRecord
	Version int64
}

// Repo is the typed adapter over the shared group store. Every record field
// is encoded on its own. Store failures come back as errs.ErrStoreUnavailable,
// except storage.ErrVersionConflict which is returned as is for the caller to
// retry.
type Repo struct {
	Groups storage.GroupStore

	timeout atomic.Int64
}

func NewRepo(groups storage.GroupStore, timeout time.Duration) *Repo {
	r := &Repo{Groups: groups}
	r.SetTimeout(timeout)
	return r
}

// SetTimeout bounds every store call; <= 0 disables the bound.
func (r *Repo) SetTimeout(d time.Duration) { r.timeout.Store(int64(d)) }

func (r *Repo) Timeout() time.Duration { return time.Duration(r.timeout.Load()) }

func (r *Repo) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if d := r.Timeout(); d > 0 {
		return context.WithTimeout(ctx, d)
	}
	return ctx, func() {}
}

func fail(op, id string, err error) error {
	if errors.Is(err, storage.ErrVersionConflict) {
		return storage.ErrVersionConflict
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return errs.ErrStoreUnavailable.WrapMsg("store timeout", "op", op, "group", id)
	}
	return errs.ErrStoreUnavailable.WrapMsg(err.Error(), "op", op, "group", id)
}

// LoadRoom reads the whole room group.
func (r *Repo) LoadRoom(ctx context.Context, gameID string) (*Snapshot, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	g, err := r.Groups.ReadGroup(ctx, gameID)
	if errors.Is(err, storage.ErrGroupNotFound) {
		return &Snapshot{}, nil
	}
	if err != nil {
		return nil, fail("read", gameID, err)
	}
	var rec model.RoomRecord
	if err := storage.DecodeFields(g.Fields, &rec); err != nil {
		return nil, errs.ErrInternal.WrapMsg(err.Error(), "group", gameID)
	}
	s := &Snapshot{Version: g.Version}
	if rec.Exists() {
		s.Record = &rec
	}
	return s, nil
}

// SaveRoom writes rec if the group is still at expectVersion and returns the
// new version. Fields absent from rec are removed.
func (r *Repo) SaveRoom(ctx context.Context, gameID string, rec *model.RoomRecord, expectVersion int64) (int64, error) {
	fields, err := storage.EncodeFields(rec)
	if err != nil {
		return 0, errs.ErrInternal.WrapMsg(err.Error(), "group", gameID)
	}
	for _, f := range model.RecordFields {
		if _, ok := fields[f]; !ok {
			fields[f] = ""
		}
	}

	ctx, cancel := r.bound(ctx)
	defer cancel()
	v, err := r.Groups.WriteGroup(ctx, gameID, fields, expectVersion)
	if err != nil {
		return 0, fail("write", gameID, err)
	}
	return v, nil
}

// EnsureRoomGroup creates the room group when it does not exist.
func (r *Repo) EnsureRoomGroup(ctx context.Context, gameID string) error {
	ctx, cancel := r.bound(ctx)
	defer cancel()
	if err := r.Groups.CreateGroup(ctx, gameID); err != nil {
		return fail("create", gameID, err)
	}
	return nil
}

// DeleteRoom removes the room group if it is still at expectVersion.
func (r *Repo) DeleteRoom(ctx context.Context, gameID string, expectVersion int64) error {
	ctx, cancel := r.bound(ctx)
	defer cancel()
	if err := r.Groups.DeleteGroup(ctx, gameID, expectVersion); err != nil {
		return fail("delete", gameID, err)
	}
	return nil
}

// ReadIndex returns userID's discovery entries, all of them or only gameIDs.
// A user without an index has no entries.
func (r *Repo) ReadIndex(ctx context.Context, userID string, gameIDs ...string) (map[string]*model.IndexEntry, error) {
	id := IndexGroupID(userID)
	ctx, cancel := r.bound(ctx)
	defer cancel()

	g, err := r.Groups.ReadGroup(ctx, id, gameIDs...)
	if errors.Is(err, storage.ErrGroupNotFound) {
		return map[string]*model.IndexEntry{}, nil
	}
	if err != nil {
		return nil, fail("read", id, err)
	}
	out := make(map[string]*model.IndexEntry, len(g.Fields))
	for gameID, raw := range g.Fields {
		if raw == "" {
			continue
		}
		var e model.IndexEntry
		if err := storage.DecodeValue(raw, &e); err != nil {
			return nil, errs.ErrInternal.WrapMsg(err.Error(), "group", id, "game", gameID)
		}
		out[gameID] = &e
	}
	return out, nil
}

// ReadIndexEntry returns one entry, nil when absent.
func (r *Repo) ReadIndexEntry(ctx context.Context, userID, gameID string) (*model.IndexEntry, error) {
	m, err := r.ReadIndex(ctx, userID, gameID)
	if err != nil {
		return nil, err
	}
	return m[gameID], nil
}

// PutIndexEntry upserts one entry. Entries of one index are independent
// fields and are written unconditionally.
func (r *Repo) PutIndexEntry(ctx context.Context, userID, gameID string, e *model.IndexEntry) error {
	id := IndexGroupID(userID)
	raw, err := storage.EncodeValue(e)
	if err != nil {
		return errs.ErrInternal.WrapMsg(err.Error(), "group", id, "game", gameID)
	}
	ctx, cancel := r.bound(ctx)
	defer cancel()
	if _, err := r.Groups.WriteGroup(ctx, id, map[string]string{gameID: raw}, storage.AnyVersion); err != nil {
		return fail("write", id, err)
	}
	return nil
}

func (r *Repo) DeleteIndexEntry(ctx context.Context, userID, gameID string) error {
	id := IndexGroupID(userID)
	ctx, cancel := r.bound(ctx)
	defer cancel()
	if _, err := r.Groups.WriteGroup(ctx, id, map[string]string{gameID: ""}, storage.AnyVersion); err != nil {
		return fail("write", id, err)
	}
	return nil
}
