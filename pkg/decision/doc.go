// Package decision defines the decision object tree: the node variants that
// make up a form or document definition, the wire codec used to exchange
// trees with a backend, and the builder that produces evaluated tree
// instances.
//
// A tree is an ordered hierarchy of nodes. Sibling order is semantically
// meaningful: it determines evaluation order, render order and matrix column
// order. Every node carries a uid that is unique within its tree.
package decision
