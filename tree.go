package nezvm

import (
	"fmt"
	"strconv"
)

// NodeID is the stable handle of a node within an Arena
type NodeID int32

// NoNode is the NodeID of an absent node, such as an unfilled child
// slot or the result of a failed parse.
const NoNode NodeID = -1

// EmptyTag is the tag given to nodes that were never tagged
const EmptyTag = "#empty"

type FormatToken int

const (
	FormatToken_None FormatToken = iota
	FormatToken_Tag
	FormatToken_Literal
	FormatToken_Range
)

type node struct {
	start    int
	end      int
	refs     int32
	hasValue bool
	tag      string
	value    string
	children []NodeID
}

// Arena owns the storage of parse-tree nodes.  Nodes are reference
// counted and handed around as NodeIDs; a node whose count drops to
// zero releases its children and goes back to the free list, so a
// warmed up arena stops allocating.
type Arena struct {
	nodes   []node
	free    []NodeID
	pending []NodeID

	allocs int
}

func NewArena(capacity int) *Arena {
	return &Arena{
		nodes: make([]node, 0, capacity),
		free:  make([]NodeID, 0, capacity),
	}
}

// Alloc creates a leaf node spanning [start, end) with a reference
// count of one.
func (a *Arena) Alloc(start, end int, tag string) NodeID {
	return a.alloc(start, end, tag, "", false, 0)
}

// AllocValue creates a leaf node whose text is value instead of the
// input covered by its span.
func (a *Arena) AllocValue(start, end int, tag, value string) NodeID {
	return a.alloc(start, end, tag, value, true, 0)
}

func (a *Arena) alloc(start, end int, tag, value string, hasValue bool, size int) NodeID {
	var id NodeID
	if n := len(a.free); n > 0 {
		id = a.free[n-1]
		a.free = a.free[:n-1]
	} else {
		id = NodeID(len(a.nodes))
		a.nodes = append(a.nodes, node{})
	}
	n := &a.nodes[id]
	n.start = start
	n.end = end
	n.refs = 1
	n.tag = tag
	n.value = value
	n.hasValue = hasValue
	n.children = n.children[:0]
	for i := 0; i < size; i++ {
		n.children = append(n.children, NoNode)
	}
	a.allocs++
	return id
}

func (a *Arena) Retain(id NodeID) {
	if id == NoNode {
		return
	}
	a.nodes[id].refs++
}

// Release drops one reference to the node.  Children of reclaimed
// nodes are released with the same discipline, iteratively, so deep
// trees don't grow the Go stack.
func (a *Arena) Release(id NodeID) {
	if id == NoNode {
		return
	}
	a.pending = append(a.pending[:0], id)
	for len(a.pending) > 0 {
		last := len(a.pending) - 1
		cur := a.pending[last]
		a.pending = a.pending[:last]

		n := &a.nodes[cur]
		if n.refs <= 0 {
			panic(fmt.Sprintf("release of reclaimed node %d", cur))
		}
		n.refs--
		if n.refs > 0 {
			continue
		}
		for _, child := range n.children {
			if child != NoNode {
				a.pending = append(a.pending, child)
			}
		}
		n.children = n.children[:0]
		n.tag = ""
		n.value = ""
		a.free = append(a.free, cur)
	}
}

// setChild moves the reference held by the caller into the child
// slot i of a node still under construction.
func (a *Arena) setChild(parent NodeID, i int, child NodeID) {
	n := &a.nodes[parent]
	if old := n.children[i]; old != NoNode {
		a.Release(old)
	}
	n.children[i] = child
}

func (a *Arena) Range(id NodeID) (int, int) {
	n := &a.nodes[id]
	return n.start, n.end
}

func (a *Arena) Tag(id NodeID) string { return a.nodes[id].tag }

// Value returns the literal text assigned to a node and whether one
// was assigned at all.
func (a *Arena) Value(id NodeID) (string, bool) {
	n := &a.nodes[id]
	return n.value, n.hasValue
}

// Children returns the child slots of a node.  The returned slice is
// owned by the arena and must not be modified.
func (a *Arena) Children(id NodeID) []NodeID { return a.nodes[id].children }

func (a *Arena) Refs(id NodeID) int { return int(a.nodes[id].refs) }

// Live returns how many nodes are currently referenced
func (a *Arena) Live() int { return len(a.nodes) - len(a.free) }

// FreeCount returns how many reclaimed slots are ready for reuse
func (a *Arena) FreeCount() int { return len(a.free) }

// Allocs returns how many times a node was handed out
func (a *Arena) Allocs() int { return a.allocs }

// Text returns the explicit value of a node or, when it has none,
// the input bytes within its span.
func (a *Arena) Text(id NodeID, input []byte) string {
	n := &a.nodes[id]
	if n.hasValue {
		return n.value
	}
	if n.start < 0 || n.end > len(input) || n.start > n.end {
		return ""
	}
	return string(input[n.start:n.end])
}

// Node is a garbage collected copy of an arena node.  It stays valid
// after the context that built it is closed.
type Node struct {
	Tag      string
	Text     string
	Start    int
	End      int
	Children []*Node
}

// Export copies the subtree rooted at id out of the arena
func (a *Arena) Export(id NodeID, input []byte) *Node {
	if id == NoNode {
		return nil
	}
	n := &a.nodes[id]
	out := &Node{
		Tag:   n.tag,
		Text:  a.Text(id, input),
		Start: n.start,
		End:   n.end,
	}
	if len(n.children) > 0 {
		out.Children = make([]*Node, len(n.children))
		for i, child := range n.children {
			out.Children[i] = a.Export(child, input)
		}
	}
	return out
}

func (n *Node) Pretty() string {
	return n.Format(func(input string, _ FormatToken) string {
		return input
	})
}

// Format renders the tree with one line per node, handing each token
// to format so callers can colorize the output.
func (n *Node) Format(format FormatFunc[FormatToken]) string {
	vi := newNodePrinter(format)
	vi.visit(n)
	return vi.output.String()
}

type nodePrinter struct {
	*treePrinter[FormatToken]
}

func newNodePrinter(format FormatFunc[FormatToken]) *nodePrinter {
	return &nodePrinter{treePrinter: newTreePrinter(format)}
}

func (vi *nodePrinter) visit(n *Node) {
	if n == nil {
		vi.write(vi.format("<nil>", FormatToken_None))
		return
	}
	vi.write(vi.format(n.Tag, FormatToken_Tag))
	if len(n.Children) == 0 {
		vi.write(" ")
		vi.write(vi.format(strconv.Quote(n.Text), FormatToken_Literal))
	}
	vi.write(vi.format(fmt.Sprintf(" (%d..%d)", n.Start, n.End), FormatToken_Range))

	for i, child := range n.Children {
		vi.writel("")
		switch {
		case i == len(n.Children)-1:
			vi.pwrite("└── ")
			vi.indent("    ")
			vi.visit(child)
			vi.unindent()
		default:
			vi.pwrite("├── ")
			vi.indent("│   ")
			vi.visit(child)
			vi.unindent()
		}
	}
}
