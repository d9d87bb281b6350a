package ui

import (
	"strings"
)

// Tree hierarchy symbols using box drawing characters
const (
	TreeBranch     = "├── "
	TreeLastBranch = "└── "
	TreeContinue   = "│   " // parent has more siblings
	TreeIndent     = "    " // parent was last
)

// BuildTreePrefix generates the prefix of a line at the given depth.
// parentIsLast holds, per ancestor level below the root, whether that
// ancestor was the last of its siblings.
func BuildTreePrefix(depth int, isLast bool, parentIsLast []bool) string {
	if depth == 0 {
		return ""
	}

	var sb strings.Builder
	for i := 0; i < depth-1; i++ {
		if i < len(parentIsLast) && parentIsLast[i] {
			sb.WriteString(TreeIndent)
		} else {
			sb.WriteString(TreeContinue)
		}
	}
	if isLast {
		sb.WriteString(TreeLastBranch)
	} else {
		sb.WriteString(TreeBranch)
	}
	return sb.String()
}

// Node is one labelled line of a tree
type Node struct {
	Label    string
	Children []*Node
}

// Child returns the child with the given label, adding it when missing.
// Children keep insertion order.
func (n *Node) Child(label string) *Node {
	for _, c := range n.Children {
		if c.Label == label {
			return c
		}
	}
	c := &Node{Label: label}
	n.Children = append(n.Children, c)
	return c
}

// Render draws the roots flush left and their descendants with tree
// connectors, one node per line
func Render(roots []*Node) string {
	var sb strings.Builder
	for _, root := range roots {
		sb.WriteString(root.Label)
		sb.WriteString("\n")
		renderChildren(&sb, root.Children, 1, nil)
	}
	return sb.String()
}

func renderChildren(sb *strings.Builder, children []*Node, depth int, parentIsLast []bool) {
	for i, c := range children {
		isLast := i == len(children)-1
		sb.WriteString(BuildTreePrefix(depth, isLast, parentIsLast))
		sb.WriteString(c.Label)
		sb.WriteString("\n")
		renderChildren(sb, c.Children, depth+1, append(append([]bool(nil), parentIsLast...), isLast))
	}
}
