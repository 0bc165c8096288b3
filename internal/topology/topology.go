package topology

import (
	"sort"

	"github.com/1broseidon/winmesh/internal/geometry"
	"github.com/1broseidon/winmesh/internal/replication"
)

// Entry is one window in a topology.
type Entry struct {
	ID       string                  `json:"id"`
	Geometry geometry.WindowGeometry `json:"geometry"`
}

// Topology is an id-sorted list of windows. It is always a copy.
type Topology []Entry

// FromSnapshot sorts a snapshot into a Topology.
func FromSnapshot(s replication.Snapshot) Topology {
	out := make(Topology, 0, len(s))
	for id, g := range s {
		out = append(out, Entry{ID: id, Geometry: g})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Snapshot converts t back into the wire map.
func (t Topology) Snapshot() replication.Snapshot {
	out := make(replication.Snapshot, len(t))
	for _, e := range t {
		out[e.ID] = e.Geometry
	}
	return out
}

// Index returns the position of id, or -1.
func (t Topology) Index(id string) int {
	i := sort.Search(len(t), func(i int) bool { return t[i].ID >= id })
	if i < len(t) && t[i].ID == id {
		return i
	}
	return -1
}

// Find returns the geometry stored for id.
func (t Topology) Find(id string) (geometry.WindowGeometry, bool) {
	if i := t.Index(id); i >= 0 {
		return t[i].Geometry, true
	}
	return geometry.WindowGeometry{}, false
}

// IDs lists window ids in order.
func (t Topology) IDs() []string {
	ids := make([]string, len(t))
	for i, e := range t {
		ids[i] = e.ID
	}
	return ids
}

// Centers returns every window's global center, in topology order.
func (t Topology) Centers() []geometry.Point {
	out := make([]geometry.Point, len(t))
	for i, e := range t {
		out[i] = geometry.WindowCenter(e.Geometry)
	}
	return out
}
