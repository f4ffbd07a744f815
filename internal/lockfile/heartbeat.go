package lockfile

import (
	"sync"
	"time"
)

// DefaultHeartbeatInterval is how often the background timer refreshes a
// held lock.
const DefaultHeartbeatInterval = 30 * time.Second

// Heartbeat is the handle for a background heartbeat timer. The caller
// owns its lifecycle: the timer never stops itself, even when a heartbeat
// write fails, because a holder must keep trying (and keep being warned)
// rather than silently become evictable. Stop the timer and then Release
// the lock to relinquish ownership deterministically.
type Heartbeat struct {
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// StartHeartbeat begins refreshing the lock for issueNumber every
// interval until Stop is called. A zero or negative interval uses
// DefaultHeartbeatInterval.
//
// Failed refreshes are logged and retried on the next tick. A refresh
// that returns false (lock gone or ownership lost) is logged at error
// level since the holder's work may no longer be protected.
func (m *Manager) StartHeartbeat(issueNumber int, sessionID string, interval time.Duration) *Heartbeat {
	if interval <= 0 {
		interval = DefaultHeartbeatInterval
	}

	h := &Heartbeat{
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}

	go func() {
		defer close(h.done)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-h.stop:
				return
			case <-ticker.C:
				ok, err := m.Heartbeat(issueNumber, sessionID)
				if err != nil {
					m.logger.Warn("heartbeat write failed",
						"issue", issueNumber,
						"session_id", sessionID,
						"error", err,
					)
					continue
				}
				if !ok {
					m.logger.Error("heartbeat lost lock ownership",
						"issue", issueNumber,
						"session_id", sessionID,
					)
				}
			}
		}
	}()

	return h
}

// Stop halts the timer and waits for the background goroutine to exit.
// Safe to call multiple times.
func (h *Heartbeat) Stop() {
	h.stopOnce.Do(func() {
		close(h.stop)
	})
	<-h.done
}
