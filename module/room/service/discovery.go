package service

import (
	"context"
	"sort"
	"sync"

	"PRoom/module/room/model"

	"golang.org/x/sync/errgroup"
)

// ownerFetchLimit bounds the concurrent reads of other owners' indexes.
const ownerFetchLimit = 8

// ListRooms lists the caller's rooms. Rooms the caller authored are answered
// from the caller's own index; for the others, one read per owner fetches the
// properties of all of that owner's rooms at once.
func (c *Coordinator) ListRooms(ctx context.Context, callerID string) (map[string]model.RoomSummary, error) {
	own, err := c.repo.ReadIndex(ctx, callerID)
	if err != nil {
		return nil, err
	}

	out := make(map[string]model.RoomSummary, len(own))
	byOwner := make(map[string][]string)
	for gameID, e := range own {
		if e.Creation == nil {
			continue
		}
		if e.Creation.UserId == callerID {
			out[gameID] = model.RoomSummary{ActorNr: model.CreatorActorNr, Properties: e.CustomProperties()}
			continue
		}
		out[gameID] = model.RoomSummary{ActorNr: e.ActorNr}
		byOwner[e.Creation.UserId] = append(byOwner[e.Creation.UserId], gameID)
	}
	if len(byOwner) == 0 {
		return out, nil
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ownerFetchLimit)
	for owner, gameIDs := range byOwner {
		owner, gameIDs := owner, gameIDs
		sort.Strings(gameIDs)
		g.Go(func() error {
			entries, err := c.repo.ReadIndex(gctx, owner, gameIDs...)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			for gameID, e := range entries {
				s, ok := out[gameID]
				if !ok {
					continue
				}
				s.Properties = e.CustomProperties()
				out[gameID] = s
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
