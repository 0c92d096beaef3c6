package story

import (
	"fmt"
	"time"
)

// StartNodeID is the id of the opening node of every session.
const StartNodeID = "start"

// Graph holds the node table and page order for one session. Nodes are
// stored arena-style: a stable id -> node table plus an explicit
// append-only order list used for linear page navigation.
//
// Graph has no internal locking. It is mutated only by the session engine,
// which serializes all writes.
type Graph struct {
	nodes map[string]*StoryNode
	order []string
	seq   int
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{
		nodes: make(map[string]*StoryNode),
		order: make([]string, 0),
	}
}

// Reset clears the node table and page order.
func (g *Graph) Reset() {
	g.nodes = make(map[string]*StoryNode)
	g.order = g.order[:0]
	g.seq = 0
}

// NextNodeID returns a fresh node id. The first node of a graph is always
// "start"; later ids combine a millisecond timestamp with a per-graph
// counter so that same-millisecond inserts cannot collide.
func (g *Graph) NextNodeID() string {
	if len(g.order) == 0 {
		return StartNodeID
	}
	g.seq++
	return fmt.Sprintf("node_%d_%d", time.Now().UnixMilli(), g.seq)
}

// Insert adds a node to the table and appends its id to the page order.
func (g *Graph) Insert(node *StoryNode) error {
	if node == nil {
		return fmt.Errorf("story: cannot insert nil node")
	}
	if node.ID == "" {
		return fmt.Errorf("story: cannot insert node without id")
	}
	if _, exists := g.nodes[node.ID]; exists {
		return &NodeError{NodeID: node.ID, Err: ErrDuplicateNode}
	}
	g.nodes[node.ID] = node
	g.order = append(g.order, node.ID)
	return nil
}

// Get returns the node with the given id.
func (g *Graph) Get(id string) (*StoryNode, error) {
	node, ok := g.nodes[id]
	if !ok {
		return nil, &NodeError{NodeID: id, Err: ErrNotFound}
	}
	return node, nil
}

// MarkSelectedChoice records the choice text the player took from a node.
// The mutation is one-time: repeating it with the same text is a no-op,
// and repeating it with different text fails with ErrAlreadyFinalized.
func (g *Graph) MarkSelectedChoice(nodeID, choiceText string) error {
	node, ok := g.nodes[nodeID]
	if !ok {
		return &NodeError{NodeID: nodeID, Err: ErrNotFound}
	}
	if node.SelectedChoice != "" {
		if node.SelectedChoice == choiceText {
			return nil
		}
		return &NodeError{NodeID: nodeID, Err: ErrAlreadyFinalized}
	}
	node.SelectedChoice = choiceText
	return nil
}

// PageOrder returns the node ids in creation order. The returned slice is
// a copy; mutating it does not affect the graph.
func (g *Graph) PageOrder() []string {
	order := make([]string, len(g.order))
	copy(order, g.order)
	return order
}

// PageCount returns the number of pages in the graph.
func (g *Graph) PageCount() int {
	return len(g.order)
}

// NodeAt returns the node at the given page index, or nil if the index is
// out of bounds.
func (g *Graph) NodeAt(pageIndex int) *StoryNode {
	if pageIndex < 0 || pageIndex >= len(g.order) {
		return nil
	}
	return g.nodes[g.order[pageIndex]]
}

// Pairs returns the node table as ordered [id, node] pairs, the shape used
// by the persisted session document.
func (g *Graph) Pairs() []NodePair {
	pairs := make([]NodePair, 0, len(g.order))
	for _, id := range g.order {
		pairs = append(pairs, NodePair{ID: id, Node: g.nodes[id]})
	}
	return pairs
}

// Load replaces the graph contents from ordered pairs, preserving pair
// order as the page order. Pairs with empty ids or nil nodes are skipped.
func (g *Graph) Load(pairs []NodePair) {
	g.Reset()
	for _, p := range pairs {
		if p.ID == "" || p.Node == nil {
			continue
		}
		if _, exists := g.nodes[p.ID]; exists {
			continue
		}
		g.nodes[p.ID] = p.Node
		g.order = append(g.order, p.ID)
	}
}
