package grammar

import (
	"fmt"
	"strings"
)

// Root rule names produced by ParseQuery.
const (
	RuleQuery        = "query"
	RuleQueryPartial = "query (partial)"
)

// Node is one step of a derivation. Leaves carry the literal text of a
// terminal; an internal node's Text is everything its subtree consumed,
// separators included.
type Node struct {
	Rule     string  `json:"rule"`
	Text     string  `json:"matched_text"`
	Children []*Node `json:"children,omitempty"`
}

// IsLeaf reports whether n is a terminal match.
func (n *Node) IsLeaf() bool {
	return len(n.Children) == 0
}

// Complete reports whether n is a full (non-partial) query derivation.
func (n *Node) Complete() bool {
	return n != nil && n.Rule == RuleQuery
}

// Find returns the first node in pre-order whose rule is rule.
func (n *Node) Find(rule string) *Node {
	if n == nil {
		return nil
	}
	if n.Rule == rule {
		return n
	}
	for _, c := range n.Children {
		if f := c.Find(rule); f != nil {
			return f
		}
	}
	return nil
}

// Leaves returns the terminal matches of n in input order.
func (n *Node) Leaves() []*Node {
	if n == nil {
		return nil
	}
	if n.IsLeaf() {
		return []*Node{n}
	}
	var out []*Node
	for _, c := range n.Children {
		out = append(out, c.Leaves()...)
	}
	return out
}

// FormatDerivationTree pretty-prints a derivation, one node per line:
//
//	query
//	├─ select_clause
//	│  ├─ keyword "SELECT"
//	│  └─ select_item
//	...
func FormatDerivationTree(n *Node) string {
	if n == nil {
		return "(no derivation)\n"
	}
	var sb strings.Builder
	sb.WriteString(nodeLabel(n))
	sb.WriteByte('\n')
	writeChildren(&sb, n, "")
	return sb.String()
}

func writeChildren(sb *strings.Builder, n *Node, prefix string) {
	for i, c := range n.Children {
		branch, indent := "├─ ", "│  "
		if i == len(n.Children)-1 {
			branch, indent = "└─ ", "   "
		}
		sb.WriteString(prefix)
		sb.WriteString(branch)
		sb.WriteString(nodeLabel(c))
		sb.WriteByte('\n')
		writeChildren(sb, c, prefix+indent)
	}
}

func nodeLabel(n *Node) string {
	if n.IsLeaf() {
		return fmt.Sprintf("%s %q", n.Rule, n.Text)
	}
	return n.Rule
}
