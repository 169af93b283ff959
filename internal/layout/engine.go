// Package layout computes 2-D positions for graph nodes with a force-directed
// simulation: pairwise repulsion, spring attraction along edges weighted by
// similarity, and centering gravity, integrated with heavy damping until the
// total velocity drops below an epsilon or an iteration cap is hit.
package layout

import (
	"math"
	"math/rand"
	"sort"

	"github.com/hyperjump/kiroku/internal/models"
)

// State is the simulation lifecycle state.
type State int

const (
	// StateIdle means no simulation is running.
	StateIdle State = iota
	// StateRunning means steps are being applied each frame.
	StateRunning
)

// StopReason records why the last run left the running state.
type StopReason int

const (
	// StopNone means the engine has not stopped yet (or never ran).
	StopNone StopReason = iota
	// StopConverged means total velocity fell below the epsilon.
	StopConverged
	// StopIterationCap means the iteration cap was reached first.
	StopIterationCap
)

// Params tunes the simulation forces and termination.
type Params struct {
	Repulsion       float64 // inverse-square repulsion strength
	Attraction      float64 // spring coefficient, scaled by edge weight and distance
	Gravity         float64 // pull toward viewport center, proportional to displacement
	MinDistance     float64 // distance floor to avoid singularities on coincident nodes
	MaxVelocity     float64 // velocity magnitude clamp
	Step            float64 // fraction of velocity applied to position each frame
	Padding         float64 // nodes stay this far inside the viewport bounds
	VelocityEpsilon float64 // convergence threshold on total velocity
	MaxIterations   int     // iteration cap per run
	EdgeCap         int     // attraction uses only the top-N edges by weight
	CircleJitter    float64 // per-node random fraction of the init radius
}

// DefaultParams returns the tuning used by the live canvas.
func DefaultParams() Params {
	return Params{
		Repulsion:       6000,
		Attraction:      0.002,
		Gravity:         0.02,
		MinDistance:     10,
		MaxVelocity:     40,
		Step:            0.3,
		Padding:         40,
		VelocityEpsilon: 0.5,
		MaxIterations:   200,
		EdgeCap:         100,
		CircleJitter:    0.3,
	}
}

// Position is one node's coordinates and velocity. Owned exclusively by the
// engine between Start and the end of the run; readers take copies.
type Position struct {
	X, Y   float64
	VX, VY float64
}

// edge is an edge resolved to node indices.
type edge struct {
	a, b   int
	weight float64
}

// Engine runs one simulation at a time. It is not safe for concurrent use:
// a single owner calls Start/SetEdges/Step and reads positions between steps.
type Engine struct {
	params Params
	rng    *rand.Rand

	width, height float64
	ids           []string
	index         map[string]int
	edges         []edge

	pos       []Position
	iteration int
	state     State
	stopped   StopReason
}

// NewEngine creates an engine. The seed fixes the circle-placement jitter so
// runs are reproducible in tests.
func NewEngine(params Params, seed int64) *Engine {
	return &Engine{
		params: params,
		rng:    rand.New(rand.NewSource(seed)),
		index:  make(map[string]int),
	}
}

// State returns the current lifecycle state.
func (e *Engine) State() State { return e.state }

// StoppedBecause returns why the last run stopped.
func (e *Engine) StoppedBecause() StopReason { return e.stopped }

// Iteration returns the current iteration count of the run.
func (e *Engine) Iteration() int { return e.iteration }

// Start begins a new run for a fresh node set, discarding any previous
// positions. Nodes are placed on a circle centered in the viewport, radius
// proportional to min(width, height), with per-node radial jitter so the
// initial force directions are not degenerate. Velocities start at zero.
func (e *Engine) Start(nodeIDs []string, edges []*models.GraphEdge, width, height float64) {
	e.width = width
	e.height = height
	e.ids = append([]string(nil), nodeIDs...)
	e.index = make(map[string]int, len(nodeIDs))
	for i, id := range nodeIDs {
		e.index[id] = i
	}
	e.resolveEdges(edges)

	e.pos = make([]Position, len(nodeIDs))
	cx, cy := width/2, height/2
	radius := math.Min(width, height) * 0.35
	for i := range e.pos {
		angle := 2 * math.Pi * float64(i) / math.Max(1, float64(len(e.pos)))
		r := radius * (1 - e.params.CircleJitter*e.rng.Float64())
		e.pos[i] = Position{X: cx + r*math.Cos(angle), Y: cy + r*math.Sin(angle)}
	}
	e.iteration = 0
	e.stopped = StopNone
	if len(e.pos) > 0 {
		e.state = StateRunning
	} else {
		e.state = StateIdle
	}
}

// SetEdges replaces the edge set and restarts the run from current positions.
// Used when the similarity threshold changes: the node set is unchanged, so
// re-seeding the circle would throw away a good layout.
func (e *Engine) SetEdges(edges []*models.GraphEdge) {
	e.resolveEdges(edges)
	for i := range e.pos {
		e.pos[i].VX, e.pos[i].VY = 0, 0
	}
	e.iteration = 0
	e.stopped = StopNone
	if len(e.pos) > 0 {
		e.state = StateRunning
	}
}

// resolveEdges maps edge IDs to indices, dropping edges whose endpoints are
// not in the node set, and keeps only the top EdgeCap by weight.
func (e *Engine) resolveEdges(edges []*models.GraphEdge) {
	resolved := make([]edge, 0, len(edges))
	for _, ge := range edges {
		a, okA := e.index[ge.Source]
		b, okB := e.index[ge.Target]
		if !okA || !okB || a == b {
			continue
		}
		resolved = append(resolved, edge{a: a, b: b, weight: ge.Weight})
	}
	sort.SliceStable(resolved, func(i, j int) bool { return resolved[i].weight > resolved[j].weight })
	if e.params.EdgeCap > 0 && len(resolved) > e.params.EdgeCap {
		resolved = resolved[:e.params.EdgeCap]
	}
	e.edges = resolved
}

// Step applies one simulation iteration. Returns true while the run is still
// active; false once converged or the iteration cap is reached.
func (e *Engine) Step() bool {
	if e.state != StateRunning {
		return false
	}

	n := len(e.pos)
	fx := make([]float64, n)
	fy := make([]float64, n)

	// Repulsion: every unordered pair pushes apart, inverse-square with a
	// distance floor so coincident nodes do not produce infinite force.
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			dx := e.pos[i].X - e.pos[j].X
			dy := e.pos[i].Y - e.pos[j].Y
			dist := math.Hypot(dx, dy)
			if dist < 1e-9 {
				// Coincident: pick a jittered direction.
				angle := 2 * math.Pi * e.rng.Float64()
				dx, dy = math.Cos(angle), math.Sin(angle)
				dist = 1
			}
			d := math.Max(dist, e.params.MinDistance)
			f := e.params.Repulsion / (d * d)
			ux, uy := dx/dist, dy/dist
			fx[i] += ux * f
			fy[i] += uy * f
			fx[j] -= ux * f
			fy[j] -= uy * f
		}
	}

	// Attraction: spring force along edges, proportional to distance and to
	// edge weight, so strong pairs pull harder and far-apart pairs pull harder.
	for _, ed := range e.edges {
		dx := e.pos[ed.b].X - e.pos[ed.a].X
		dy := e.pos[ed.b].Y - e.pos[ed.a].Y
		f := e.params.Attraction * ed.weight
		fx[ed.a] += dx * f
		fy[ed.a] += dy * f
		fx[ed.b] -= dx * f
		fy[ed.b] -= dy * f
	}

	// Centering gravity.
	cx, cy := e.width/2, e.height/2
	for i := 0; i < n; i++ {
		fx[i] += (cx - e.pos[i].X) * e.params.Gravity
		fy[i] += (cy - e.pos[i].Y) * e.params.Gravity
	}

	// Integrate: forces become this frame's velocity, clamped, then a fixed
	// fraction moves the position. Positions stay inside the padded viewport.
	var totalVelocity float64
	for i := 0; i < n; i++ {
		vx, vy := fx[i], fy[i]
		speed := math.Hypot(vx, vy)
		if speed > e.params.MaxVelocity {
			scale := e.params.MaxVelocity / speed
			vx *= scale
			vy *= scale
			speed = e.params.MaxVelocity
		}
		e.pos[i].VX = vx
		e.pos[i].VY = vy
		e.pos[i].X = clamp(e.pos[i].X+vx*e.params.Step, e.params.Padding, e.width-e.params.Padding)
		e.pos[i].Y = clamp(e.pos[i].Y+vy*e.params.Step, e.params.Padding, e.height-e.params.Padding)
		totalVelocity += speed
	}

	e.iteration++
	if totalVelocity < e.params.VelocityEpsilon {
		e.state = StateIdle
		e.stopped = StopConverged
		return false
	}
	if e.iteration >= e.params.MaxIterations {
		e.state = StateIdle
		e.stopped = StopIterationCap
		return false
	}
	return true
}

// Positions returns a copy of the current node positions, aligned with the
// node ID order passed to Start.
func (e *Engine) Positions() []Position {
	out := make([]Position, len(e.pos))
	copy(out, e.pos)
	return out
}

// PositionOf returns the position of the node with the given ID.
func (e *Engine) PositionOf(id string) (Position, bool) {
	i, ok := e.index[id]
	if !ok {
		return Position{}, false
	}
	return e.pos[i], true
}

// TotalVelocity sums the velocity magnitudes of all nodes as of the last step.
func (e *Engine) TotalVelocity() float64 {
	var total float64
	for i := range e.pos {
		total += math.Hypot(e.pos[i].VX, e.pos[i].VY)
	}
	return total
}

func clamp(v, lo, hi float64) float64 {
	if hi < lo {
		return (lo + hi) / 2
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
