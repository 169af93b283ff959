package layout

import (
	"math"
	"testing"

	"github.com/hyperjump/kiroku/internal/models"
)

func runToCompletion(e *Engine, maxFrames int) int {
	frames := 0
	for e.Step() {
		frames++
		if frames > maxFrames {
			break
		}
	}
	return frames
}

func TestEngineEmptyNodeSetStaysIdle(t *testing.T) {
	e := NewEngine(DefaultParams(), 1)
	e.Start(nil, nil, 800, 600)
	if e.State() != StateIdle {
		t.Error("empty node set must not start a simulation")
	}
	if e.Step() {
		t.Error("Step on idle engine should return false")
	}
}

func TestEngineTerminatesWithinCap(t *testing.T) {
	params := DefaultParams()
	e := NewEngine(params, 42)
	ids := []string{"a", "b", "c", "d", "e"}
	edges := []*models.GraphEdge{
		{Source: "a", Target: "b", Weight: 0.9},
		{Source: "c", Target: "d", Weight: 0.6},
	}
	e.Start(ids, edges, 800, 600)

	frames := runToCompletion(e, params.MaxIterations+1)
	if e.State() != StateIdle {
		t.Error("engine should return to idle")
	}
	if e.StoppedBecause() == StopNone {
		t.Error("stop reason should be recorded")
	}
	if frames > params.MaxIterations {
		t.Errorf("run exceeded iteration cap: %d frames", frames)
	}
}

func TestEngineDeterministicForFixedSeed(t *testing.T) {
	ids := []string{"a", "b", "c", "d"}
	edges := []*models.GraphEdge{{Source: "a", Target: "c", Weight: 0.8}}

	run := func() []Position {
		e := NewEngine(DefaultParams(), 7)
		e.Start(ids, edges, 800, 600)
		runToCompletion(e, 500)
		return e.Positions()
	}

	p1 := run()
	p2 := run()
	for i := range p1 {
		if p1[i].X != p2[i].X || p1[i].Y != p2[i].Y {
			t.Fatalf("positions differ at node %d: %+v vs %+v", i, p1[i], p2[i])
		}
	}
}

func TestEngineVelocityEventuallyDecreases(t *testing.T) {
	e := NewEngine(DefaultParams(), 3)
	ids := []string{"a", "b", "c", "d", "e", "f"}
	edges := []*models.GraphEdge{
		{Source: "a", Target: "b", Weight: 0.9},
		{Source: "b", Target: "c", Weight: 0.7},
	}
	e.Start(ids, edges, 800, 600)

	var velocities []float64
	for e.Step() {
		velocities = append(velocities, e.TotalVelocity())
	}
	if len(velocities) < 10 {
		return // converged almost immediately, nothing to check
	}
	// After the early transient, the tail should settle well below the peak.
	peak := 0.0
	for _, v := range velocities[:len(velocities)/2] {
		peak = math.Max(peak, v)
	}
	tail := velocities[len(velocities)-1]
	if tail > peak {
		t.Errorf("velocity did not settle: tail %f > peak %f", tail, peak)
	}
}

func TestEngineSimilarNodesEndUpCloser(t *testing.T) {
	e := NewEngine(DefaultParams(), 11)
	ids := []string{"a", "b", "c"}
	// a-b strongly linked; c linked to neither.
	edges := []*models.GraphEdge{{Source: "a", Target: "b", Weight: 0.95}}
	e.Start(ids, edges, 800, 600)
	runToCompletion(e, 500)

	pa, _ := e.PositionOf("a")
	pb, _ := e.PositionOf("b")
	pc, _ := e.PositionOf("c")
	dAB := math.Hypot(pa.X-pb.X, pa.Y-pb.Y)
	dAC := math.Hypot(pa.X-pc.X, pa.Y-pc.Y)
	dBC := math.Hypot(pb.X-pc.X, pb.Y-pc.Y)
	if dAB >= dAC || dAB >= dBC {
		t.Errorf("linked pair should cluster: a-b %f, a-c %f, b-c %f", dAB, dAC, dBC)
	}
}

func TestEnginePositionsStayInBounds(t *testing.T) {
	params := DefaultParams()
	e := NewEngine(params, 5)
	ids := make([]string, 12)
	for i := range ids {
		ids[i] = string(rune('a' + i))
	}
	e.Start(ids, nil, 400, 300)
	runToCompletion(e, 500)

	for i, p := range e.Positions() {
		if p.X < params.Padding || p.X > 400-params.Padding ||
			p.Y < params.Padding || p.Y > 300-params.Padding {
			t.Errorf("node %d escaped bounds: %+v", i, p)
		}
	}
}

func TestEngineNoEdgesIsSimulatable(t *testing.T) {
	e := NewEngine(DefaultParams(), 9)
	e.Start([]string{"a", "b", "c"}, nil, 800, 600)
	if e.State() != StateRunning {
		t.Fatal("no-edge input must still simulate (repulsion + gravity)")
	}
	runToCompletion(e, 500)
	if e.State() != StateIdle {
		t.Error("no-edge run should still terminate")
	}
}

func TestEngineSetEdgesRestartsFromCurrentPositions(t *testing.T) {
	e := NewEngine(DefaultParams(), 13)
	ids := []string{"a", "b", "c"}
	e.Start(ids, []*models.GraphEdge{{Source: "a", Target: "b", Weight: 0.9}}, 800, 600)
	runToCompletion(e, 500)
	before := e.Positions()

	e.SetEdges([]*models.GraphEdge{{Source: "b", Target: "c", Weight: 0.9}})
	if e.State() != StateRunning {
		t.Fatal("edge change should restart the run")
	}
	if e.Iteration() != 0 {
		t.Error("iteration counter should reset")
	}
	after := e.Positions()
	for i := range before {
		if before[i].X != after[i].X || before[i].Y != after[i].Y {
			t.Error("threshold restart should keep current positions")
			break
		}
		if after[i].VX != 0 || after[i].VY != 0 {
			t.Error("velocities should reset on restart")
			break
		}
	}
}

func TestEngineStartDiscardsPreviousRun(t *testing.T) {
	e := NewEngine(DefaultParams(), 17)
	e.Start([]string{"a", "b"}, nil, 800, 600)
	runToCompletion(e, 500)

	e.Start([]string{"x", "y", "z"}, nil, 800, 600)
	if _, ok := e.PositionOf("a"); ok {
		t.Error("old node identities must be discarded on restart")
	}
	if len(e.Positions()) != 3 {
		t.Errorf("expected 3 positions, got %d", len(e.Positions()))
	}
	if e.Iteration() != 0 {
		t.Error("iteration counter should reset on Start")
	}
}

func TestEngineEdgeCapLimitsAttraction(t *testing.T) {
	params := DefaultParams()
	params.EdgeCap = 1
	e := NewEngine(params, 19)
	ids := []string{"a", "b", "c"}
	edges := []*models.GraphEdge{
		{Source: "a", Target: "b", Weight: 0.9},
		{Source: "b", Target: "c", Weight: 0.2},
	}
	e.Start(ids, edges, 800, 600)
	if len(e.edges) != 1 {
		t.Fatalf("expected 1 edge after cap, got %d", len(e.edges))
	}
	if e.edges[0].weight != 0.9 {
		t.Error("cap should keep the heaviest edge")
	}
}
