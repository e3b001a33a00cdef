package runtime

import (
	"sync"

	"github.com/paddockdb/paddock/pkg/history"
)

// Notifier is the in-process signal hub: it fans terminal-state
// transitions out to waiters so WaitForOrchestration returns promptly,
// and carries queue wake signals so idle workers pick up new work
// without waiting out their poll interval.
type Notifier struct {
	mu      sync.Mutex
	waiters map[string][]chan *history.InstanceInfo

	orchWake chan struct{}
	actWake  chan struct{}
}

// NewNotifier creates an empty notifier.
func NewNotifier() *Notifier {
	return &Notifier{
		waiters:  make(map[string][]chan *history.InstanceInfo),
		orchWake: make(chan struct{}, 1),
		actWake:  make(chan struct{}, 1),
	}
}

// WakeOrchestrator signals that the orchestration queue may hold new
// deliverable work. Signals coalesce; one idle decider wakes and the
// rest find the queue on their next poll.
func (n *Notifier) WakeOrchestrator() {
	select {
	case n.orchWake <- struct{}{}:
	default:
	}
}

// WakeActivities signals new activity queue work.
func (n *Notifier) WakeActivities() {
	select {
	case n.actWake <- struct{}{}:
	default:
	}
}

// OrchestratorWake returns the decider wake channel.
func (n *Notifier) OrchestratorWake() <-chan struct{} { return n.orchWake }

// ActivityWake returns the activity worker wake channel.
func (n *Notifier) ActivityWake() <-chan struct{} { return n.actWake }

// Register returns a channel that receives the instance's info once it
// reaches a terminal state. The caller must Unregister when done.
func (n *Notifier) Register(instanceID string) chan *history.InstanceInfo {
	n.mu.Lock()
	defer n.mu.Unlock()

	ch := make(chan *history.InstanceInfo, 1)
	n.waiters[instanceID] = append(n.waiters[instanceID], ch)
	return ch
}

// Unregister removes a waiter channel.
func (n *Notifier) Unregister(instanceID string, ch chan *history.InstanceInfo) {
	n.mu.Lock()
	defer n.mu.Unlock()

	subs := n.waiters[instanceID]
	for i, c := range subs {
		if c == ch {
			n.waiters[instanceID] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(n.waiters[instanceID]) == 0 {
		delete(n.waiters, instanceID)
	}
}

// Notify delivers a terminal transition to all waiters of the instance.
// Delivery never blocks; a waiter's buffer holds the single value it needs.
func (n *Notifier) Notify(info *history.InstanceInfo) {
	n.mu.Lock()
	defer n.mu.Unlock()

	for _, ch := range n.waiters[info.InstanceID] {
		select {
		case ch <- info:
		default:
		}
	}
}

// WaiterCount returns the number of registered waiter channels.
func (n *Notifier) WaiterCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()

	total := 0
	for _, subs := range n.waiters {
		total += len(subs)
	}
	return total
}
