package dispatch

import (
	"context"
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/kilianp07/fleetcore/core/routing"
)

// etaMatrix builds the trips x carriers matrix of raw ETAs; both queues must
// be non-empty. Infeasible cells hold +Inf. Oracle failures other than
// unreachability are returned alongside the matrix; their cells are
// infeasible too.
func (e *Engine) etaMatrix(ctx context.Context, snap snapshot) (*mat.Dense, []error) {
	rows, cols := len(snap.Pickups), len(snap.Sherpas)
	raw := mat.NewDense(rows, cols, nil)
	var errs []error
	for i, p := range snap.Pickups {
		for j, s := range snap.Sherpas {
			if !feasible(snap.Fleet, p, s, j, e.cfg.MaxTripsPerCycle) {
				raw.Set(i, j, math.Inf(1))
				continue
			}
			r, err := e.oracle.Route(ctx, snap.Fleet.Name, s.Pose, p.Pose)
			if err != nil {
				if !errors.Is(err, routing.ErrUnreachable) {
					e.prom.oracleErrors.Inc()
					errs = append(errs, fmt.Errorf("trip %d carrier %s: %w", p.TripID, s.Name, err))
				}
				raw.Set(i, j, math.Inf(1))
				continue
			}
			raw.Set(i, j, r.ETA+s.RemainingETA)
		}
	}
	return raw, errs
}

// normalize turns raw ETAs into costs (eta^w1 + eps) / priority^w2. The
// epsilon is added before the division so that equal ETAs resolve in favour
// of the higher priority trip.
func normalize(raw *mat.Dense, prio []float64, w1, w2 float64) *mat.Dense {
	rows, cols := raw.Dims()
	maxP := 0.0
	for _, p := range prio {
		maxP = math.Max(maxP, p)
	}
	eps := 1e-3 * math.Pow(maxP, w2)
	cost := mat.NewDense(rows, cols, nil)
	cost.Apply(func(i, j int, v float64) float64 {
		if math.IsInf(v, 1) {
			return v
		}
		return (math.Pow(v, w1) + eps) / math.Pow(prio[i], w2)
	}, raw)
	return cost
}

// pad returns a square copy of cost where padding and infeasible cells hold
// a sentinel larger than any sum of finite costs, so a solver always prefers
// one more feasible pair over any cheaper set of pairs.
func pad(cost *mat.Dense) (*mat.Dense, float64) {
	rows, cols := cost.Dims()
	n := max(rows, cols)
	sum := 0.0
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			if v := cost.At(i, j); !math.IsInf(v, 1) {
				sum += math.Abs(v)
			}
		}
	}
	sentinel := sum + 1
	sq := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			v := sentinel
			if i < rows && j < cols && !math.IsInf(cost.At(i, j), 1) {
				v = cost.At(i, j)
			}
			sq.Set(i, j, v)
		}
	}
	return sq, sentinel
}

// infeasibleCount counts +Inf cells.
func infeasibleCount(m *mat.Dense) int {
	rows, cols := m.Dims()
	n := 0
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			if math.IsInf(m.At(i, j), 1) {
				n++
			}
		}
	}
	return n
}

// match solves the padded problem and returns row -> column for real,
// feasible pairs only.
func (e *Engine) match(cost *mat.Dense) map[int]int {
	rows, cols := cost.Dims()
	out := make(map[int]int)
	if rows == 0 || cols == 0 {
		return out
	}
	sq, _ := pad(cost)
	var assign []int
	if e.cfg.Solver == SolverLP {
		var err error
		assign, err = solveLP(sq)
		if err != nil {
			e.log.Warnf("lp solver failed, falling back to jv: %v", err)
			assign = nil
		}
	}
	if assign == nil {
		assign = solveJV(sq)
	}
	for i, j := range assign {
		if i >= rows || j >= cols || math.IsInf(cost.At(i, j), 1) {
			continue
		}
		out[i] = j
	}
	return out
}
