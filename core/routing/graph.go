package routing

import (
	"context"
	"math"
	"sync"

	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/simple"

	"github.com/kilianp07/fleetcore/core/model"
)

// Edge links two stations of a fleet. A zero Length uses the straight-line
// distance between the station poses.
type Edge struct {
	From   string  `json:"from" yaml:"from"`
	To     string  `json:"to" yaml:"to"`
	Length float64 `json:"length" yaml:"length"`
}

type fleetGraph struct {
	g     *simple.WeightedUndirectedGraph
	ids   map[string]int64
	poses []model.Pose
}

// GraphOracle runs Dijkstra over a per-fleet station graph. Poses are snapped
// to the closest station within SnapDistance. Fleets without edges are
// treated as open floor and get straight-line routes.
type GraphOracle struct {
	Speed        float64 // metres per second used for ETAs
	SnapDistance float64

	mu     sync.RWMutex
	fleets map[string]*fleetGraph
}

// NewGraphOracle returns an oracle with no fleet graph loaded.
func NewGraphOracle(speed, snap float64) *GraphOracle {
	if speed <= 0 {
		speed = 1
	}
	if snap <= 0 {
		snap = 1
	}
	return &GraphOracle{Speed: speed, SnapDistance: snap, fleets: make(map[string]*fleetGraph)}
}

// Load replaces the graph of a fleet.
func (o *GraphOracle) Load(fleet string, stations []model.Station, edges []Edge) {
	fg := &fleetGraph{
		g:   simple.NewWeightedUndirectedGraph(0, math.Inf(1)),
		ids: make(map[string]int64, len(stations)),
	}
	for i, st := range stations {
		id := int64(i)
		fg.ids[st.Name] = id
		fg.poses = append(fg.poses, st.Pose)
		fg.g.AddNode(simple.Node(id))
	}
	for _, e := range edges {
		a, okA := fg.ids[e.From]
		b, okB := fg.ids[e.To]
		if !okA || !okB || a == b {
			continue
		}
		w := e.Length
		if w <= 0 {
			w = fg.poses[a].Distance(fg.poses[b])
		}
		fg.g.SetWeightedEdge(fg.g.NewWeightedEdge(simple.Node(a), simple.Node(b), w))
	}
	o.mu.Lock()
	if len(edges) == 0 {
		delete(o.fleets, fleet)
	} else {
		o.fleets[fleet] = fg
	}
	o.mu.Unlock()
}

func (o *GraphOracle) Route(ctx context.Context, fleet string, from, to model.Pose) (Route, error) {
	if err := ctx.Err(); err != nil {
		return Route{}, err
	}
	o.mu.RLock()
	fg := o.fleets[fleet]
	o.mu.RUnlock()
	if fg == nil {
		d := from.Distance(to)
		return Route{Length: d, ETA: d / o.Speed}, nil
	}
	src, srcOff, ok := fg.snap(from, o.SnapDistance)
	if !ok {
		return Route{}, unreachable(fleet, from, to)
	}
	dst, dstOff, ok := fg.snap(to, o.SnapDistance)
	if !ok {
		return Route{}, unreachable(fleet, from, to)
	}
	length := srcOff + dstOff
	if src != dst {
		shortest := path.DijkstraFrom(simple.Node(src), fg.g)
		_, w := shortest.To(dst)
		if math.IsInf(w, 1) {
			return Route{}, unreachable(fleet, from, to)
		}
		length += w
	}
	return Route{Length: length, ETA: length / o.Speed}, nil
}

// snap returns the station node closest to p and the distance to it.
func (fg *fleetGraph) snap(p model.Pose, max float64) (int64, float64, bool) {
	best, bestD := int64(-1), math.Inf(1)
	for i, sp := range fg.poses {
		if d := p.Distance(sp); d < bestD {
			best, bestD = int64(i), d
		}
	}
	if best < 0 || bestD > max {
		return 0, 0, false
	}
	return best, bestD, true
}
