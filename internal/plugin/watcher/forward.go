package watcher

import (
	"context"
	"time"
)

// Notifier is told about library changes. MarkChanged reports whether path
// belonged to a known plugin.
type Notifier interface {
	MarkChanged(path string, at time.Time) bool
}

// ErrorFunc receives watcher errors.
type ErrorFunc func(err error)

// Forward relays change events from w to n until ctx is done or w is
// closed. Removals are ignored: a plugin whose file vanished keeps running
// the code it has. It returns the number of events that matched a plugin.
func Forward(ctx context.Context, w *Watcher, n Notifier, onErr ErrorFunc) int {
	matched := 0
	for {
		select {
		case <-ctx.Done():
			return matched
		case ev, ok := <-w.Events():
			if !ok {
				return matched
			}
			if !ev.Op.Changes() {
				continue
			}
			if n.MarkChanged(ev.Path, ev.Timestamp) {
				matched++
			}
		case err, ok := <-w.Errors():
			if !ok {
				return matched
			}
			if onErr != nil {
				onErr(err)
			}
		}
	}
}
