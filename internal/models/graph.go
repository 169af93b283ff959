package models

// GraphNode is an entry projected for visualization. Only entries with a
// stored embedding become nodes.
type GraphNode struct {
	ID        string `json:"id"`
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp"`
	Tags      []Tag  `json:"tags"`
	Source    Source `json:"source"`
}

// PrimaryCategory returns the category of the node's first tag, or
// CategoryOther when the node has no tags. Used for node coloring.
func (n *GraphNode) PrimaryCategory() TagCategory {
	if len(n.Tags) == 0 {
		return CategoryOther
	}
	return n.Tags[0].Category
}

// GraphEdge connects two distinct nodes with a similarity weight.
// Source and Target are node IDs with Source ordered before Target in the
// node list (no self-edges, one edge per unordered pair).
type GraphEdge struct {
	Source string  `json:"source"`
	Target string  `json:"target"`
	Weight float64 `json:"weight"`
}

// GraphData is the node and edge lists served to the canvas.
type GraphData struct {
	Nodes []*GraphNode `json:"nodes"`
	Edges []*GraphEdge `json:"edges"`
}

// GraphStats summarizes the embedded corpus.
type GraphStats struct {
	TotalNodes int            `json:"totalNodes"`
	BySource   map[string]int `json:"bySource"`
	TopTags    []TagCount     `json:"topTags"`
}

// TagCount is a tag name with its occurrence count.
type TagCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}
