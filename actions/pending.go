package actions

import "sync"

const DefaultPendingCapacity = 16

// PendingCalls remembers the action of recently sent calls by unique id, so a
// result carrying the id instead of the action name can still be routed. The
// oldest entry is evicted when the table is full.
type PendingCalls struct {
	mu       sync.Mutex
	capacity int
	order    []string
	actions  map[string]string
}

func NewPendingCalls(capacity int) *PendingCalls {
	if capacity <= 0 {
		capacity = DefaultPendingCapacity
	}
	return &PendingCalls{
		capacity: capacity,
		order:    make([]string, 0, capacity),
		actions:  make(map[string]string, capacity),
	}
}

func (p *PendingCalls) Add(uniqueId, action string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.actions[uniqueId]; ok {
		p.actions[uniqueId] = action
		return
	}
	if len(p.order) == p.capacity {
		delete(p.actions, p.order[0])
		p.order = p.order[1:]
	}
	p.order = append(p.order, uniqueId)
	p.actions[uniqueId] = action
}

// Resolve returns and forgets the action recorded for uniqueId.
func (p *PendingCalls) Resolve(uniqueId string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	action, ok := p.actions[uniqueId]
	if !ok {
		return "", false
	}
	delete(p.actions, uniqueId)
	for i, id := range p.order {
		if id == uniqueId {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
	return action, true
}

func (p *PendingCalls) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.order)
}
