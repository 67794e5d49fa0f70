package service

import (
	"PRoom/module/room/model"
	"PRoom/tools/errs"
)

type JoinDecision int

const (
	JoinAllocated JoinDecision = iota + 1
	JoinRejoined
)

func (d JoinDecision) String() string {
	switch d {
	case JoinAllocated:
		return "allocated"
	case JoinRejoined:
		return "rejoined"
	}
	return "unknown"
}

// ResolveJoin decides whether actorNr is a rejoin onto an issued slot or the
// next fresh slot, and applies it to rec. rec must be a private copy; on error
// it is left untouched.
//
// Rejoin is checked first so a reconnect within PlayerTTL never collides with
// a fresh allocation.
func ResolveJoin(rec *model.RoomRecord, actorNr int, userID string) (JoinDecision, error) {
	opts := rec.RoomOptions
	if opts.PlayerTTL() != 0 && actorNr < rec.NextActorNr {
		slot, ok := rec.Actors[actorNr]
		if !ok {
			return 0, errs.ErrInvariantViolation.WrapMsg("Actor slot was released")
		}
		if !slot.Inactive {
			return 0, errs.ErrInvariantViolation.WrapMsg("Actor is already joined")
		}
		if opts.CheckUserOnJoin() && slot.UserId != userID {
			return 0, errs.ErrInvariantViolation.WrapMsg("Illegal rejoin with different UserId")
		}
		rec.Actors[actorNr] = model.Actor{UserId: userID, Inactive: false}
		return JoinRejoined, nil
	}

	if actorNr == rec.NextActorNr {
		if limit := opts.MaxPlayers(); limit > 0 && len(rec.Actors) >= limit {
			return 0, errs.ErrInvariantViolation.WrapMsg("Actors overflow")
		}
		if rec.Actors == nil {
			rec.Actors = make(map[int]model.Actor)
		}
		rec.Actors[actorNr] = model.Actor{UserId: userID, Inactive: false}
		rec.NextActorNr++
		return JoinAllocated, nil
	}

	return 0, errs.ErrInvariantViolation.WrapMsg("Unexpected ActorNr")
}
