package canvas

import (
	"math"

	"github.com/hyperjump/kiroku/internal/graph"
	"github.com/hyperjump/kiroku/internal/layout"
	"github.com/hyperjump/kiroku/internal/models"
)

const (
	// hitRadius is the pick distance around a node, in scene units.
	hitRadius = 20.0
	// dragSlop is how far (screen px) the pointer may move and still count as a click.
	dragSlop = 3.0
	// wheelZoomFactor is the zoom step per wheel notch.
	wheelZoomFactor = 1.1
)

// Canvas owns the interactive state for one graph view: the viewport
// transform, the current node/edge set, hover and selection, and the layout
// engine driving positions. A gesture is either a view change (drag-pan,
// wheel-zoom) or a selection (click on a node), never both.
//
// Canvas is not safe for concurrent use; one session goroutine owns it.
type Canvas struct {
	viewport *Viewport
	engine   *layout.Engine

	nodes    []*models.GraphNode
	byID     map[string]*models.GraphNode
	allEdges []*models.GraphEdge // unfiltered edge list, descending weight
	edges    []*models.GraphEdge // current threshold applied

	threshold float64
	edgeCap   int

	hovered  string
	selected string

	dragging  bool
	dragMoved bool
	pressX    float64
	pressY    float64
	lastX     float64
	lastY     float64
}

// New creates a canvas for the given viewport size. edgeCap bounds how many
// edges are drawn and simulated; threshold is the initial similarity cutoff.
func New(width, height float64, edgeCap int, threshold float64, engine *layout.Engine) *Canvas {
	return &Canvas{
		viewport:  NewViewport(width, height),
		engine:    engine,
		byID:      make(map[string]*models.GraphNode),
		threshold: threshold,
		edgeCap:   edgeCap,
	}
}

// Viewport exposes the view transform (read-only use by renderers).
func (c *Canvas) Viewport() *Viewport { return c.viewport }

// Engine exposes the layout engine so the frame loop can step it.
func (c *Canvas) Engine() *layout.Engine { return c.engine }

// Hovered returns the hovered node ID, or "".
func (c *Canvas) Hovered() string { return c.hovered }

// Selected returns the selected node ID, or "".
func (c *Canvas) Selected() string { return c.selected }

// Threshold returns the current similarity cutoff.
func (c *Canvas) Threshold() float64 { return c.threshold }

// Edges returns the currently visible (thresholded) edge list.
func (c *Canvas) Edges() []*models.GraphEdge { return c.edges }

// SetData installs a new node set with its unfiltered edge list and starts a
// fresh simulation run. Previous positions, hover, and selection are
// discarded: they refer to node identities that may no longer exist.
func (c *Canvas) SetData(nodes []*models.GraphNode, allEdges []*models.GraphEdge) {
	c.nodes = nodes
	c.byID = make(map[string]*models.GraphNode, len(nodes))
	ids := make([]string, len(nodes))
	for i, n := range nodes {
		ids[i] = n.ID
		c.byID[n.ID] = n
	}
	c.allEdges = allEdges
	c.edges = graph.ThresholdEdges(allEdges, c.threshold)
	c.hovered = ""
	c.selected = ""
	c.engine.Start(ids, c.edges, c.viewport.Width, c.viewport.Height)
}

// SetThreshold re-filters the stored edge list locally, without a provider
// round-trip, and restarts the simulation with the new attraction set.
func (c *Canvas) SetThreshold(threshold float64) {
	c.threshold = threshold
	c.edges = graph.ThresholdEdges(c.allEdges, threshold)
	c.engine.SetEdges(c.edges)
}

// PointerDown begins a gesture at screen coordinates (sx, sy).
func (c *Canvas) PointerDown(sx, sy float64) {
	c.dragging = true
	c.dragMoved = false
	c.pressX, c.pressY = sx, sy
	c.lastX, c.lastY = sx, sy
}

// PointerMove either pans (while a gesture is active) or updates hover
// picking. Panning only translates the viewport; node positions are owned by
// the layout engine and never written here. No pan is applied until the
// pointer leaves the slop radius around the press point, so a jittery click
// does not shift the view; the first pan then covers the accumulated delta.
func (c *Canvas) PointerMove(sx, sy float64) {
	if c.dragging {
		if !c.dragMoved {
			if math.Hypot(sx-c.pressX, sy-c.pressY) <= dragSlop {
				return
			}
			c.dragMoved = true
			c.lastX, c.lastY = c.pressX, c.pressY
		}
		c.viewport.Pan(sx-c.lastX, sy-c.lastY)
		c.lastX, c.lastY = sx, sy
		return
	}
	c.hovered = c.pick(sx, sy)
}

// PointerUp ends a gesture. A press-release without movement is a click:
// on a node it opens that node's detail view, on empty canvas it clears the
// selection. A drag selects nothing.
func (c *Canvas) PointerUp(sx, sy float64) {
	wasDrag := c.dragMoved
	c.dragging = false
	c.dragMoved = false
	if wasDrag {
		return
	}
	c.selected = c.pick(sx, sy)
}

// Wheel applies zoom-toward-cursor. deltaY < 0 zooms in (scroll up).
func (c *Canvas) Wheel(sx, sy, deltaY float64) {
	factor := wheelZoomFactor
	if deltaY > 0 {
		factor = 1 / wheelZoomFactor
	}
	c.viewport.ZoomAt(sx, sy, factor)
}

// pick converts screen coordinates to scene coordinates and returns the
// nearest node within hitRadius scene units, or "".
func (c *Canvas) pick(sx, sy float64) string {
	x, y := c.viewport.ScreenToScene(sx, sy)
	best := ""
	bestDist := hitRadius
	for _, n := range c.nodes {
		p, ok := c.engine.PositionOf(n.ID)
		if !ok {
			continue
		}
		if d := math.Hypot(p.X-x, p.Y-y); d <= bestDist {
			best = n.ID
			bestDist = d
		}
	}
	return best
}

// SelectedNode returns the selected node for the detail view, or nil.
func (c *Canvas) SelectedNode() *models.GraphNode {
	if c.selected == "" {
		return nil
	}
	return c.byID[c.selected]
}
