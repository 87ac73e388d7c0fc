package offline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

// errUnsynced marks an operation naming a post whose create has not reached
// the server yet. The operation stays queued until it has.
var errUnsynced = errors.New("post not yet created on the server")

// tempIDs maps temporary ids to the ids the server assigned when their
// create was replayed.
type tempIDs map[string]string

func (ids tempIDs) resolve(id string) (string, error) {
	if !IsTempID(id) {
		return id, nil
	}
	if serverID, ok := ids[id]; ok {
		return serverID, nil
	}
	return "", fmt.Errorf("%w: %s", errUnsynced, id)
}

func (ids tempIDs) resolveOrder(updates []OrderUpdate) ([]OrderUpdate, error) {
	out := make([]OrderUpdate, len(updates))
	for i, u := range updates {
		id, err := ids.resolve(u.ID)
		if err != nil {
			return nil, err
		}
		out[i] = OrderUpdate{ID: id, Order: u.Order}
	}
	return out, nil
}

// prune drops every mapping no queued entry refers to anymore.
func (ids tempIDs) prune(entries []Entry) {
	used := make(map[string]bool)
	for _, e := range entries {
		switch op := e.Op.(type) {
		case Update:
			used[op.ID] = true
		case Delete:
			used[op.ID] = true
		case UpdateOrder:
			for _, u := range op.Updates {
				used[u.ID] = true
			}
		}
	}
	for id := range ids {
		if !used[id] {
			delete(ids, id)
		}
	}
}

// idStore persists tempIDs under IDMapKey so operations retained by one
// drain still resolve in the next.
type idStore struct {
	kv  KV
	log zerolog.Logger
}

func (s idStore) load(ctx context.Context) (tempIDs, StorageStatus) {
	ids := make(tempIDs)
	data, ok, err := s.kv.Get(ctx, IDMapKey)
	if err != nil {
		s.log.Warn().Err(err).Msg("read id map")
		return ids, StorageFailed
	}
	if !ok {
		return ids, StorageMissing
	}
	if err := json.Unmarshal(data, &ids); err != nil {
		s.log.Warn().Err(err).Msg("id map is corrupt, starting empty")
		return make(tempIDs), StorageCorrupt
	}
	return ids, StorageOK
}

func (s idStore) save(ctx context.Context, ids tempIDs) StorageStatus {
	data, err := json.Marshal(ids)
	if err != nil {
		s.log.Warn().Err(err).Msg("encode id map")
		return StorageFailed
	}
	if err := s.kv.Set(ctx, IDMapKey, data); err != nil {
		s.log.Warn().Err(err).Msg("write id map")
		return StorageFailed
	}
	return StorageOK
}
