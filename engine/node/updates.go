package node

import (
	"sync"

	"github.com/relayforge/relayforge/engine/nodemeta"
)

// UpdateBus fans metamodel replacements out to the node Instances built
// from them: one subscriber set per metamodel id. The orchestrator
// subscribes each node Instance when it registers it; nothing in the
// engine removes registered instances or unsubscribes them. Publish swaps
// each subscriber's reference atomically, leaving in-flight invocations on
// the metamodel they started with.
type UpdateBus struct {
	mu          sync.RWMutex
	subscribers map[string]map[*Instance]struct{}
}

// NewUpdateBus builds an empty bus.
func NewUpdateBus() *UpdateBus {
	return &UpdateBus{subscribers: map[string]map[*Instance]struct{}{}}
}

// Subscribe registers inst for updates to metamodelID and returns the
// matching unsubscribe function. Unsubscribing twice is a no-op.
func (b *UpdateBus) Subscribe(metamodelID string, inst *Instance) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	set, ok := b.subscribers[metamodelID]
	if !ok {
		set = map[*Instance]struct{}{}
		b.subscribers[metamodelID] = set
	}
	set[inst] = struct{}{}
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if set, ok := b.subscribers[metamodelID]; ok {
			delete(set, inst)
			if len(set) == 0 {
				delete(b.subscribers, metamodelID)
			}
		}
	}
}

// Publish delivers meta to every instance subscribed to metamodelID.
func (b *UpdateBus) Publish(metamodelID string, meta *nodemeta.Metamodel) {
	b.mu.RLock()
	instances := make([]*Instance, 0, len(b.subscribers[metamodelID]))
	for inst := range b.subscribers[metamodelID] {
		instances = append(instances, inst)
	}
	b.mu.RUnlock()
	for _, inst := range instances {
		inst.UpdateMetamodel(meta)
	}
}
