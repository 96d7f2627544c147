package repoql

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// BaseNodeType matches every node in a selector.
const BaseNodeType = "nt:base"

// PrimaryTypeProperty is the pseudo-property exposing a node's primary
// type to queries.
const PrimaryTypeProperty = "jcr:primaryType"

// ContentNode is a stored repository node.
type ContentNode struct {
	Path        string           `json:"path"`
	PrimaryType string           `json:"primaryType"`
	Mixins      []string         `json:"mixins,omitempty"`
	Properties  map[string]Value `json:"properties"`
}

// IsNodeType reports whether the node is of nodeType through its primary
// type or a mixin. Every node is an nt:base.
func (n *ContentNode) IsNodeType(nodeType string) bool {
	if nodeType == BaseNodeType || n.PrimaryType == nodeType {
		return true
	}
	for _, m := range n.Mixins {
		if m == nodeType {
			return true
		}
	}
	return false
}

// types returns the index entries of the node: primary type and mixins.
func (n *ContentNode) types() []string {
	return append([]string{n.PrimaryType}, n.Mixins...)
}

// rowEntry exposes the node to evaluation.
func (n *ContentNode) rowEntry() *RowEntry {
	props := make(map[string]Value, len(n.Properties)+1)
	for k, v := range n.Properties {
		props[k] = v
	}
	if _, ok := props[PrimaryTypeProperty]; !ok {
		props[PrimaryTypeProperty] = Value{typ: TypeName, str: n.PrimaryType}
	}
	return &RowEntry{Path: n.Path, Properties: props}
}

func validateNode(n *ContentNode) error {
	if !strings.HasPrefix(n.Path, "/") {
		return fmt.Errorf("repoql: path %q is not absolute", n.Path)
	}
	if err := checkPath(n.Path); err != nil {
		return fmt.Errorf("repoql: invalid path %q: %w", n.Path, err)
	}
	for _, t := range n.types() {
		if err := checkName(t); err != nil {
			return fmt.Errorf("repoql: invalid node type %q: %w", t, err)
		}
	}
	for name, v := range n.Properties {
		if err := checkName(name); err != nil {
			return fmt.Errorf("repoql: invalid property name %q: %w", name, err)
		}
		if !v.IsValid() {
			return fmt.Errorf("repoql: property %q has no value", name)
		}
	}
	return nil
}

// AddNode stores a node at path, replacing any node already there. The
// parent must exist unless it is the root. Safe for concurrent use.
func (r *Repository) AddNode(ctx context.Context, path, primaryType string, props map[string]Value, mixins ...string) error {
	if r.isClosed() {
		return ErrClosed
	}
	n := &ContentNode{
		Path:        normalizePath(path),
		PrimaryType: primaryType,
		Mixins:      mixins,
		Properties:  props,
	}
	if err := validateNode(n); err != nil {
		return err
	}
	created := false
	err := r.store.update(ctx, func(tx *nodeTx) error {
		if parent, ok := parentPath(n.Path); ok && parent != "/" && !tx.exists(parent) {
			return fmt.Errorf("parent %s: %w", parent, ErrNodeNotFound)
		}
		var err error
		created, err = tx.put(n)
		return err
	})
	if err != nil {
		r.log.Error("failed to add node", "path", n.Path, "error", err)
		return fmt.Errorf("repoql: failed to add node %s: %w", n.Path, err)
	}
	if created {
		r.metrics.NodesCreated.Add(1)
	}
	r.log.Debug("node stored", "path", n.Path, "type", primaryType, "created", created)
	return nil
}

// GetNode returns the node at path or ErrNodeNotFound.
func (r *Repository) GetNode(path string) (*ContentNode, error) {
	if r.isClosed() {
		return nil, ErrClosed
	}
	n, err := r.store.node(normalizePath(path))
	if err != nil {
		return nil, err
	}
	if n == nil {
		return nil, ErrNodeNotFound
	}
	return n, nil
}

// RemoveNode deletes the node at path together with its descendants and
// returns the number of nodes removed. Removing "/" empties the repository.
func (r *Repository) RemoveNode(ctx context.Context, path string) (int, error) {
	if r.isClosed() {
		return 0, ErrClosed
	}
	path = normalizePath(path)
	removed := 0
	err := r.store.update(ctx, func(tx *nodeTx) error {
		if path != "/" && !tx.exists(path) {
			return ErrNodeNotFound
		}
		var err error
		removed, err = tx.removeTree(path)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("repoql: failed to remove %s: %w", path, err)
	}
	r.metrics.NodesDeleted.Add(uint64(removed))
	r.log.Debug("nodes removed", "path", path, "count", removed)
	return removed, nil
}

// NodeCount returns the number of stored nodes.
func (r *Repository) NodeCount() uint64 {
	return r.store.count.Load()
}

// Children returns the direct children of path in path order.
func (r *Repository) Children(path string) ([]*ContentNode, error) {
	if r.isClosed() {
		return nil, ErrClosed
	}
	prefix := childPrefix(normalizePath(path))
	var out []*ContentNode
	err := r.store.eachWithPrefix(prefix, func(n *ContentNode) error {
		if !strings.Contains(n.Path[len(prefix):], "/") {
			out = append(out, n)
		}
		return nil
	})
	return out, err
}

// scanNodeType calls fn for every node of nodeType in path order, checking
// ctx between nodes. nt:base walks the whole tree.
func (r *Repository) scanNodeType(ctx context.Context, nodeType string, fn func(*ContentNode) error) error {
	visit := func(n *ContentNode) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		return fn(n)
	}
	if nodeType == BaseNodeType {
		return r.store.eachWithPrefix("/", visit)
	}
	return r.store.eachOfType(nodeType, visit)
}

// sortedNames returns the keys of m in order.
func sortedNames[V any](m map[string]V) []string {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
