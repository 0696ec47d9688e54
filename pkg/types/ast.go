package types

// NodeType identifies the type of an AST node.
type NodeType string

// AST node types for the expression grammar.
const (
	NodeNumber   NodeType = "number"    // numeric literal
	NodeString   NodeType = "string"    // string literal
	NodeVariable NodeType = "variable"  // $name or bare name
	NodeCall     NodeType = "call"      // name(args...)
	NodeUnary    NodeType = "unary"     // -x, !x
	NodeBinary   NodeType = "binary"    // + - * / % ^ comparisons && ||
	NodeCond     NodeType = "condition" // cond ? a : b
	NodeVector   NodeType = "vector"    // [a, b, c]
)

// ASTNode represents a node in the syntax tree.
//
// Every node carries its half-open [Start, End) byte span in the original
// source text so diagnostics can underline the exact failing range. Nodes
// are immutable after parsing: binding results live in a side table, not on
// the node, which makes parse trees safe to share between engine instances
// (see the parse-result cache).
type ASTNode struct {
	Type NodeType

	Op       string  // operator spelling for NodeUnary/NodeBinary
	Name     string  // identifier for NodeVariable/NodeCall
	NumValue float64 // literal value for NodeNumber
	StrValue string  // decoded literal value for NodeString

	Start int
	End   int

	// Relations
	LHS       *ASTNode   // left operand; unary operand; then-branch owner side
	RHS       *ASTNode   // right operand
	Cond      *ASTNode   // condition of NodeCond (LHS/RHS are the branches)
	Arguments []*ASTNode // call arguments or vector elements
}

// NewASTNode creates a new AST node of the specified type.
// Prefer NodeArena.Alloc when parsing to reduce per-node heap allocations.
func NewASTNode(nodeType NodeType, start, end int) *ASTNode {
	return &ASTNode{
		Type:  nodeType,
		Start: start,
		End:   end,
	}
}

// arenaChunkSize is the number of ASTNode values pre-allocated per arena
// chunk. Typical expressions fit in a single chunk.
const arenaChunkSize = 64

// NodeArena is a bump-pointer allocator for ASTNode values.
//
// Instead of allocating each node individually on the heap, the arena
// pre-allocates fixed-size chunks of ASTNode structs and returns pointers
// into them. A parse of fewer than 64 nodes costs a single allocation.
//
// # Lifetime
//
// The arena must stay alive as long as any pointer returned by Alloc is
// reachable. The parser attaches the arena to its Result, so the GC collects
// the arena together with the tree.
//
// # Thread safety
//
// NodeArena is not thread-safe. Each parser owns its own arena and never
// shares it across goroutines.
type NodeArena struct {
	chunks [][]ASTNode
	pos    int // next free index in the last chunk
}

// NewNodeArena allocates an arena pre-warmed with one initial chunk.
func NewNodeArena() *NodeArena {
	return &NodeArena{
		chunks: [][]ASTNode{make([]ASTNode, arenaChunkSize)},
	}
}

// Alloc returns a pointer to a zero-valued ASTNode inside the arena, with
// Type and span set. All other fields remain at their zero values and must
// be filled by the caller.
func (a *NodeArena) Alloc(nodeType NodeType, start, end int) *ASTNode {
	if a.pos >= arenaChunkSize {
		a.chunks = append(a.chunks, make([]ASTNode, arenaChunkSize))
		a.pos = 0
	}
	n := &a.chunks[len(a.chunks)-1][a.pos]
	a.pos++
	n.Type = nodeType
	n.Start = start
	n.End = end
	return n
}

// String returns the node type name.
func (n *ASTNode) String() string {
	return string(n.Type)
}
