package core

import (
	"fmt"

	"dario.cat/mergo"
	"github.com/mohae/deepcopy"
)

// DeepCopyTree returns a structurally independent copy of a context value
// tree: nested maps, ordered lists, and scalars, the shapes an
// ExecutionContext holds. Mutating the copy's nested collections is never
// visible on the original. A nil tree copies to an empty one.
func DeepCopyTree(root map[string]any) (map[string]any, error) {
	if root == nil {
		return map[string]any{}, nil
	}
	copied, ok := deepcopy.Copy(root).(map[string]any)
	if !ok {
		return nil, fmt.Errorf("core: value tree did not copy back as a map")
	}
	return copied, nil
}

// OverlayBindings returns a new port-path binding set with learned laid
// over declared: the same source path overwrites, everything else unions.
// This is the coalescing rule for adapter-learned bindings everywhere they
// meet declared ones (workflow instances, catalog edge persistence).
func OverlayBindings(declared, learned map[string]string) (map[string]string, error) {
	out := make(map[string]string, len(declared)+len(learned))
	for src, tgt := range declared {
		out[src] = tgt
	}
	if err := mergo.Merge(&out, learned, mergo.WithOverride); err != nil {
		return nil, fmt.Errorf("core: overlaying bindings: %w", err)
	}
	return out, nil
}
