package scheduler

import (
	"sort"

	"newsbot/internal/task/engine"
)

func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	c := s.c
	loc := s.loc
	if loc == nil {
		loc = s.loadLocationLocked()
	}
	items := make([]EntryInfo, 0, len(s.defs))
	for _, d := range s.defs {
		it := EntryInfo{ID: d.id, Name: d.name, Kind: string(d.kind), Spec: d.spec}
		if c != nil && d.entryID != 0 {
			e := c.Entry(d.entryID)
			it.Next = e.Next
			it.Prev = e.Prev
		}
		items = append(items, it)
	}
	eng := s.engine
	s.mu.Unlock()

	sort.Slice(items, func(i, j int) bool {
		if items[i].Kind != items[j].Kind {
			return items[i].Kind < items[j].Kind
		}
		if items[i].Name != items[j].Name {
			return items[i].Name < items[j].Name
		}
		return items[i].ID < items[j].ID
	})

	snap := Snapshot{Running: c != nil, Timezone: loc.String(), Entries: items}
	if es, ok := eng.(interface{ Snapshot() engine.Snapshot }); ok {
		v := es.Snapshot()
		snap.Engine = &v
	}
	return snap
}
