package model

import "math"

// Pose is a planar position with heading, in site map coordinates.
type Pose struct {
	X     float64 `json:"x" yaml:"x"`
	Y     float64 `json:"y" yaml:"y"`
	Theta float64 `json:"theta" yaml:"theta"`
}

// PoseTolerance is the distance under which two poses are considered the same spot.
const PoseTolerance = 0.25

// Distance returns the euclidean distance between two poses, ignoring heading.
func (p Pose) Distance(o Pose) float64 {
	return math.Hypot(p.X-o.X, p.Y-o.Y)
}

// Near reports whether o lies within PoseTolerance of p.
func (p Pose) Near(o Pose) bool {
	return p.Distance(o) <= PoseTolerance
}
