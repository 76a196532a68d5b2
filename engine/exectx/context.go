// Package exectx implements the hierarchical, dotted-path execution context
// shared by the nodes of one workflow run.
package exectx

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/relayforge/relayforge/engine/core"
)

// Context is a mutable hierarchical key-value store, addressed by dotted
// paths over nested maps and ordered (integer-indexed) lists. Exclusive to
// one workflow run; never shared across runs.
type Context struct {
	root map[string]any
}

// New builds an empty Context.
func New() *Context {
	return &Context{root: map[string]any{}}
}

// NewFromMap builds a Context seeded from initial, which is deep-copied so
// the Context is structurally independent of the caller's map.
func NewFromMap(initial map[string]any) (*Context, error) {
	if initial == nil {
		return New(), nil
	}
	copied, err := core.DeepCopyTree(initial)
	if err != nil {
		return nil, fmt.Errorf("exectx: failed to copy initial state: %w", err)
	}
	return &Context{root: copied}, nil
}

// Clone produces a structurally independent deep copy: mutating the copy's
// nested maps or lists is never visible on the original.
func (c *Context) Clone() (*Context, error) {
	copied, err := core.DeepCopyTree(c.root)
	if err != nil {
		return nil, fmt.Errorf("exectx: failed to clone context: %w", err)
	}
	return &Context{root: copied}, nil
}

// Keys returns the root-level keys, sorted for deterministic iteration.
func (c *Context) Keys() []string {
	keys := make([]string, 0, len(c.root))
	for k := range c.root {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// AsMap returns the root map directly. Callers that need an isolated copy
// should go through Clone first.
func (c *Context) AsMap() map[string]any {
	return c.root
}

// -----------------------------------------------------------------------------
// Path parsing
// -----------------------------------------------------------------------------

// splitPath tokenizes a dotted path. "" addresses the literal root key "".
// A path made up entirely of dots (e.g. ".", "..") is treated as a single
// literal key equal to the path itself, per the "keys containing only dots
// ... are treated literally at the root" rule. Otherwise the path is split
// on ".", a single trailing "." is tolerated and dropped, and any other
// empty segment (interior to the path) is an error.
func splitPath(path string) ([]string, error) {
	if path == "" {
		return []string{""}, nil
	}
	if strings.Trim(path, ".") == "" {
		return []string{path}, nil
	}
	trimmed := strings.TrimSuffix(path, ".")
	segments := strings.Split(trimmed, ".")
	for i, seg := range segments {
		if seg == "" && i != 0 {
			return nil, fmt.Errorf("exectx: empty path segment interior to %q", path)
		}
	}
	return segments, nil
}

func isIndexSegment(seg string) bool {
	_, ok := asNonNegInt(seg)
	return ok
}

func asNonNegInt(seg string) (int, bool) {
	if seg == "" {
		return 0, false
	}
	n, err := strconv.Atoi(seg)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// -----------------------------------------------------------------------------
// Read
// -----------------------------------------------------------------------------

// descend reads one path segment off container, returning ok=false on any
// type mismatch or missing key/out-of-range index.
func descend(container any, seg string) (any, bool) {
	switch c := container.(type) {
	case map[string]any:
		v, ok := c[seg]
		return v, ok
	case []any:
		idx, ok := asNonNegInt(seg)
		if !ok || idx >= len(c) {
			return nil, false
		}
		return c[idx], true
	default:
		return nil, false
	}
}

// Get returns the value at path, or nil on any missing segment or type
// mismatch mid-path. Never errors.
func (c *Context) Get(path string) any {
	segments, err := splitPath(path)
	if err != nil {
		return nil
	}
	var cur any = c.root
	for _, seg := range segments {
		next, ok := descend(cur, seg)
		if !ok {
			return nil
		}
		cur = next
	}
	return cur
}

// GetOrDefault returns Get(path), substituting def when the stored value is
// absent or explicitly nil.
func (c *Context) GetOrDefault(path string, def any) any {
	v := c.Get(path)
	if v == nil {
		return def
	}
	return v
}

// -----------------------------------------------------------------------------
// Write
// -----------------------------------------------------------------------------

// getOrCreateChild fetches the existing child of container at seg if it is
// the right collection kind (map when wantList is false, list when true),
// otherwise allocates a fresh empty one of that kind. This is where a
// non-collection intermediate value gets overwritten by fresh structure.
func getOrCreateChild(container any, seg string, wantList bool) any {
	switch c := container.(type) {
	case map[string]any:
		if existing, ok := c[seg]; ok {
			if wantList {
				if l, ok := existing.([]any); ok {
					return l
				}
			} else if m, ok := existing.(map[string]any); ok {
				return m
			}
		}
	case []any:
		if idx, ok := asNonNegInt(seg); ok && idx < len(c) {
			existing := c[idx]
			if wantList {
				if l, ok := existing.([]any); ok {
					return l
				}
			} else if m, ok := existing.(map[string]any); ok {
				return m
			}
		}
	}
	if wantList {
		return []any{}
	}
	return map[string]any{}
}

// setAtSegment writes value at seg within container, returning the
// (possibly reallocated, e.g. grown) container so the caller can re-store
// it in its own parent. A list target pads with nil up to the index. A
// non-collection container is replaced outright by fresh structure holding
// only value at seg.
func setAtSegment(container any, seg string, value any) (any, error) {
	switch c := container.(type) {
	case map[string]any:
		c[seg] = value
		return c, nil
	case []any:
		idx, ok := asNonNegInt(seg)
		if !ok {
			return nil, fmt.Errorf("exectx: %q is not a valid list index", seg)
		}
		for len(c) <= idx {
			c = append(c, nil)
		}
		c[idx] = value
		return c, nil
	default:
		if idx, ok := asNonNegInt(seg); ok {
			lst := make([]any, idx+1)
			lst[idx] = value
			return lst, nil
		}
		return map[string]any{seg: value}, nil
	}
}

func putRec(container any, segments []string, value any) (any, error) {
	seg := segments[0]
	if len(segments) == 1 {
		return setAtSegment(container, seg, value)
	}
	wantList := isIndexSegment(segments[1])
	child := getOrCreateChild(container, seg, wantList)
	newChild, err := putRec(child, segments[1:], value)
	if err != nil {
		return nil, err
	}
	return setAtSegment(container, seg, newChild)
}

// Put writes value at path, creating any missing intermediate structure and
// overwriting a non-collection value found along the way. Always succeeds
// unless path itself is malformed (an interior empty segment).
func (c *Context) Put(path string, value any) error {
	segments, err := splitPath(path)
	if err != nil {
		return err
	}
	newRoot, err := putRec(c.root, segments, value)
	if err != nil {
		return err
	}
	m, ok := newRoot.(map[string]any)
	if !ok {
		return fmt.Errorf("exectx: root must remain an object")
	}
	c.root = m
	return nil
}

// PutAll applies every (path, value) pair in bindings, in an unspecified
// order, stopping at the first error.
func (c *Context) PutAll(bindings map[string]any) error {
	for path, value := range bindings {
		if err := c.Put(path, value); err != nil {
			return fmt.Errorf("exectx: put %q: %w", path, err)
		}
	}
	return nil
}

// -----------------------------------------------------------------------------
// Delete
// -----------------------------------------------------------------------------

func removeRec(container any, segments []string) any {
	seg := segments[0]
	if len(segments) == 1 {
		switch c := container.(type) {
		case map[string]any:
			v, ok := c[seg]
			if !ok {
				return nil
			}
			delete(c, seg)
			return v
		case []any:
			idx, ok := asNonNegInt(seg)
			if !ok || idx >= len(c) {
				return nil
			}
			v := c[idx]
			c[idx] = nil
			return v
		default:
			return nil
		}
	}
	child, ok := descend(container, seg)
	if !ok {
		return nil
	}
	return removeRec(child, segments[1:])
}

// Remove deletes the value at path and returns the removed subtree, or nil
// if nothing was there. Removing a list element nils it in place rather
// than shifting the list (preserving every other element's index).
func (c *Context) Remove(path string) any {
	segments, err := splitPath(path)
	if err != nil {
		return nil
	}
	return removeRec(c.root, segments)
}
