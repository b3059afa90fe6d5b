// Package schema materializes a user-declared tag schema into a navigable
// tree of tag constructors (spec §4.8, C8). The source this module was
// distilled from builds the tree from runtime-dynamic objects that double
// as both values and callables; Go has neither dynamic objects nor
// type-level string literals, so the tree is instead built from two small
// generic combinators — Static and Wild — that a schema author composes
// once into concrete, named struct types. The result still satisfies
// invariants I5 and I6: every reachable node's path is the concatenation
// of the segments used to reach it, and a wildcard accepts exactly one
// string and returns a node exactly one segment deeper than the
// wildcard's own (parent) path.
package schema

import "github.com/arqcache/qcache/tagpath"

// Node is satisfied by every materialized schema node, static or
// wildcard, and exposes the full path the navigation used to reach it.
type Node interface {
	Path() tagpath.Path
}

// Static is a node that contributed a fixed segment to its path. C is the
// caller-defined struct of named children (and siblings) reachable from
// this node; it is built once, at materialization time, with this node's
// own path already resolved.
type Static[C any] struct {
	path     tagpath.Path
	Children C
}

// Path implements Node.
func (s Static[C]) Path() tagpath.Path { return s.path }

// NewStatic appends name to parent's path and builds the children struct
// against the resulting path. Used by schema authors as:
//
//	posts := schema.NewStatic(root, "posts", func(p tagpath.Path) PostsChildren {
//	    return PostsChildren{Comments: schema.NewWild(p, ...)}
//	})
func NewStatic[C any](parent tagpath.Path, name string, build func(path tagpath.Path) C) Static[C] {
	p := parent.Append(name)
	return Static[C]{path: p, Children: build(p)}
}

// Wild is a node at a wildcard position. As a value (not called) it
// represents its parent's path, per spec §4.8 — navigation has not yet
// consumed the wildcard's runtime segment. Calling it with a string
// produces the node one segment deeper.
type Wild[T any] struct {
	parent tagpath.Path
	build  func(path tagpath.Path) T
}

// Path implements Node, returning the *parent's* path (invariant I6's
// premise: the wildcard-value's path has no segment for the wildcard
// itself yet).
func (w Wild[T]) Path() tagpath.Path { return w.parent }

// Call consumes the wildcard's runtime segment, returning the subtree
// rooted at parent ++ [id]. This is the sole argument the spec allows:
// exactly one string in, one deeper node out (invariant I6).
func (w Wild[T]) Call(id string) T {
	return w.build(w.parent.Append(id))
}

// NewWild builds a Wild node whose Call produces T rooted one segment
// past parent.
func NewWild[T any](parent tagpath.Path, build func(path tagpath.Path) T) Wild[T] {
	return Wild[T]{parent: parent, build: build}
}

// Root materializes a whole schema from the empty path, the entry point
// a schema author calls once to get a navigable tree value.
func Root[C any](build func(path tagpath.Path) C) C {
	return build(tagpath.Path{})
}

// At wraps an already-resolved path (typically the path produced by a
// Wild's Call) into a Static node without appending any further segment
// — used when a wildcard's runtime value is itself the addressable node,
// with no additional static literal between the id and its children.
func At[C any](path tagpath.Path, build func(path tagpath.Path) C) Static[C] {
	return Static[C]{path: path, Children: build(path)}
}
