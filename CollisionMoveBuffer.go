package broadphase

/// A proxy flagged for pair re-examination, with its world AABB as of the
/// latest move.
type MoveEntry struct {
	Proxy     *FixtureProxy
	WorldAABB AABB
}

/// MoveBuffer collects the proxies that moved since the last pair pass of a
/// map. Recording the same proxy again overwrites its AABB in place, so the
/// buffer holds at most one entry per proxy and keeps first-move order.
type MoveBuffer struct {
	entries []MoveEntry
	index   map[*FixtureProxy]int
	live    int
}

func NewMoveBuffer() *MoveBuffer {
	return &MoveBuffer{
		entries: make([]MoveEntry, 0, 16),
		index:   make(map[*FixtureProxy]int),
	}
}

func (mb *MoveBuffer) RecordMove(proxy *FixtureProxy, worldAABB AABB) {
	if i, ok := mb.index[proxy]; ok {
		mb.entries[i].WorldAABB = worldAABB
		return
	}
	mb.index[proxy] = len(mb.entries)
	mb.entries = append(mb.entries, MoveEntry{Proxy: proxy, WorldAABB: worldAABB})
	mb.live++
}

/// Remove purges a pending entry. The slot is tombstoned and skipped by Drain.
func (mb *MoveBuffer) Remove(proxy *FixtureProxy) bool {
	i, ok := mb.index[proxy]
	if !ok {
		return false
	}
	mb.entries[i].Proxy = nil
	delete(mb.index, proxy)
	mb.live--
	return true
}

func (mb *MoveBuffer) Contains(proxy *FixtureProxy) bool {
	_, ok := mb.index[proxy]
	return ok
}

/// Number of pending proxies.
func (mb *MoveBuffer) Len() int {
	return mb.live
}

/// Drain returns the pending entries in first-move order and clears the buffer.
func (mb *MoveBuffer) Drain() []MoveEntry {
	res := make([]MoveEntry, 0, mb.live)
	for _, entry := range mb.entries {
		if entry.Proxy != nil {
			res = append(res, entry)
		}
	}
	mb.Reset()
	return res
}

func (mb *MoveBuffer) Reset() {
	mb.entries = mb.entries[:0]
	clear(mb.index)
	mb.live = 0
}
