package convo

import (
	"sync"

	"github.com/bizdesk/deskchat/internal/chat"
)

// ReceiptObserver watches which rendered messages are visible and reports
// read events. Reporting is per visibility transition, not globally
// deduplicated; the mark-as-read receiver is idempotent.
type ReceiptObserver struct {
	mu       sync.Mutex
	notifier VisibilityNotifier
	observed map[string]bool
	released bool
}

// NewReceiptObserver wires visibility reports to the given report callback.
func NewReceiptObserver(notifier VisibilityNotifier, report func(messageID string)) *ReceiptObserver {
	o := &ReceiptObserver{
		notifier: notifier,
		observed: make(map[string]bool),
	}
	notifier.SetOnVisible(func(messageID string) {
		o.mu.Lock()
		drop := o.released
		o.mu.Unlock()
		if drop {
			return
		}
		report(messageID)
	})
	return o
}

// Sync re-establishes observation after the message list changed. Messages
// already observed stay observed; new ones (appended or prepended) are added;
// ids that left the list are dropped.
func (o *ReceiptObserver) Sync(msgs []chat.Message) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.released {
		return
	}

	current := make(map[string]bool, len(msgs))
	for i := range msgs {
		current[msgs[i].ID] = true
	}

	for id := range current {
		if !o.observed[id] {
			o.notifier.Observe(id)
			o.observed[id] = true
		}
	}
	for id := range o.observed {
		if !current[id] {
			o.notifier.Unobserve(id)
			delete(o.observed, id)
		}
	}
}

// Release stops all observation. Further visibility reports are discarded.
func (o *ReceiptObserver) Release() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.released {
		return
	}
	o.released = true
	for id := range o.observed {
		o.notifier.Unobserve(id)
		delete(o.observed, id)
	}
}
