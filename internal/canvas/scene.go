package canvas

import "github.com/hyperjump/kiroku/internal/models"

// Draw styling shared by renderers.
const (
	backgroundColor = "#0f1117"
	nodeRadius      = 8.0
	selectedColor   = "#ffffff"
)

// categoryColors keys node color by the primary tag category.
var categoryColors = map[models.TagCategory]string{
	models.CategoryLanguage:  "#4f9cf9",
	models.CategoryFramework: "#9b6ef3",
	models.CategoryConcept:   "#3ecf8e",
	models.CategoryTask:      "#f5a623",
	models.CategoryOther:     "#8b93a7",
}

// SceneEdge is one edge to draw, in screen coordinates. Width and opacity
// scale with similarity weight.
type SceneEdge struct {
	X1      float64 `json:"x1"`
	Y1      float64 `json:"y1"`
	X2      float64 `json:"x2"`
	Y2      float64 `json:"y2"`
	Width   float64 `json:"width"`
	Opacity float64 `json:"opacity"`
}

// SceneNode is one node to draw, in screen coordinates.
type SceneNode struct {
	ID       string  `json:"id"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Radius   float64 `json:"radius"`
	Color    string  `json:"color"`
	Hovered  bool    `json:"hovered"`
	Selected bool    `json:"selected"`
}

// Scene is the ordered draw list for one frame: background, then edges, then
// nodes. Empty is set when there are no nodes, so the renderer shows the
// empty-state panel instead of a blank canvas.
type Scene struct {
	Background string      `json:"background"`
	Empty      bool        `json:"empty"`
	Edges      []SceneEdge `json:"edges"`
	Nodes      []SceneNode `json:"nodes"`
}

// Scene builds the draw list for the current frame. Edges are capped to the
// top-N by weight (the stored list is already descending) for draw cost.
func (c *Canvas) Scene() *Scene {
	if len(c.nodes) == 0 {
		return &Scene{Background: backgroundColor, Empty: true}
	}

	edges := c.edges
	if c.edgeCap > 0 && len(edges) > c.edgeCap {
		edges = edges[:c.edgeCap]
	}
	sceneEdges := make([]SceneEdge, 0, len(edges))
	for _, e := range edges {
		pa, okA := c.engine.PositionOf(e.Source)
		pb, okB := c.engine.PositionOf(e.Target)
		if !okA || !okB {
			continue
		}
		x1, y1 := c.viewport.SceneToScreen(pa.X, pa.Y)
		x2, y2 := c.viewport.SceneToScreen(pb.X, pb.Y)
		w := e.Weight
		if w < 0 {
			w = 0
		}
		sceneEdges = append(sceneEdges, SceneEdge{
			X1: x1, Y1: y1, X2: x2, Y2: y2,
			Width:   0.5 + 2.5*w,
			Opacity: 0.15 + 0.7*w,
		})
	}

	sceneNodes := make([]SceneNode, 0, len(c.nodes))
	for _, n := range c.nodes {
		p, ok := c.engine.PositionOf(n.ID)
		if !ok {
			continue
		}
		x, y := c.viewport.SceneToScreen(p.X, p.Y)
		color := categoryColors[n.PrimaryCategory()]
		if color == "" {
			color = categoryColors[models.CategoryOther]
		}
		radius := nodeRadius * c.viewport.Zoom
		if n.ID == c.hovered {
			radius *= 1.4
		}
		sceneNodes = append(sceneNodes, SceneNode{
			ID: n.ID, X: x, Y: y,
			Radius:   radius,
			Color:    color,
			Hovered:  n.ID == c.hovered,
			Selected: n.ID == c.selected,
		})
	}

	return &Scene{
		Background: backgroundColor,
		Edges:      sceneEdges,
		Nodes:      sceneNodes,
	}
}
