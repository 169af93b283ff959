// Package canvas holds the interactive view state for the graph: pan/zoom
// transforms, pointer input handling, hover/selection picking, and the ordered
// draw list a renderer consumes each frame.
package canvas

// Zoom bounds for the view transform.
const (
	MinZoom = 0.3
	MaxZoom = 3.0
)

// Viewport maps scene coordinates (where the layout engine places nodes) to
// screen coordinates: screen = scene*zoom + offset.
type Viewport struct {
	Width, Height    float64
	OffsetX, OffsetY float64
	Zoom             float64
}

// NewViewport creates a viewport with identity transform.
func NewViewport(width, height float64) *Viewport {
	return &Viewport{Width: width, Height: height, Zoom: 1}
}

// SceneToScreen converts a scene point to screen coordinates.
func (v *Viewport) SceneToScreen(x, y float64) (float64, float64) {
	return x*v.Zoom + v.OffsetX, y*v.Zoom + v.OffsetY
}

// ScreenToScene converts a screen point to scene coordinates (inverse transform).
func (v *Viewport) ScreenToScene(sx, sy float64) (float64, float64) {
	return (sx - v.OffsetX) / v.Zoom, (sy - v.OffsetY) / v.Zoom
}

// Pan shifts the view by a screen-space delta. Node positions are untouched.
func (v *Viewport) Pan(dx, dy float64) {
	v.OffsetX += dx
	v.OffsetY += dy
}

// ZoomAt scales the zoom by factor, clamped to [MinZoom, MaxZoom], keeping the
// scene point under the screen cursor (cx, cy) visually fixed. That requires
// recomputing the offset, not just rescaling from the origin.
func (v *Viewport) ZoomAt(cx, cy, factor float64) {
	newZoom := v.Zoom * factor
	if newZoom < MinZoom {
		newZoom = MinZoom
	}
	if newZoom > MaxZoom {
		newZoom = MaxZoom
	}
	applied := newZoom / v.Zoom
	v.OffsetX = cx - (cx-v.OffsetX)*applied
	v.OffsetY = cy - (cy-v.OffsetY)*applied
	v.Zoom = newZoom
}

// Reset restores the identity transform.
func (v *Viewport) Reset() {
	v.OffsetX, v.OffsetY = 0, 0
	v.Zoom = 1
}
