package store

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"gopherai-assistant/internal/metrics"
	"gopherai-assistant/internal/model"
)

// Subscription is a live view of one partition. Cancel stops it.
type Subscription struct {
	store     *Store
	partition model.Partition
	onChange  func([]model.Record)
	onError   func(error)

	wake chan struct{}
	done chan struct{}
	once sync.Once

	// mu is held while a callback runs; cancelled is only read under it.
	mu        sync.Mutex
	cancelled bool
}

// Subscribe starts streaming partition snapshots to onChange: once right away
// and once per change, with pending changes coalesced. onError receives
// snapshot failures and may be nil. The subscription ends when ctx is done or
// Cancel is called.
func (s *Store) Subscribe(ctx context.Context, partition model.Partition, onChange func([]model.Record), onError func(error)) (*Subscription, error) {
	if !partition.Valid() {
		return nil, fmt.Errorf("%w: partition is incomplete", model.ErrInvalidRecord)
	}
	if onChange == nil {
		return nil, fmt.Errorf("subscribe requires an onChange callback")
	}

	sub := &Subscription{
		store:     s,
		partition: partition,
		onChange:  onChange,
		onError:   onError,
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
	sub.wake <- struct{}{}

	s.hub.add(sub)
	metrics.ActiveSubscriptions.Inc()
	go sub.run(ctx)
	return sub, nil
}

// Cancel stops the subscription. It waits for a callback that is already
// running; once it returns no further callback fires. Calling Cancel from
// inside a callback deadlocks; cancel the subscribe context there instead.
func (sub *Subscription) Cancel() {
	sub.stop()
	sub.mu.Lock()
	sub.cancelled = true
	sub.mu.Unlock()
}

// Done is closed once the subscription stops.
func (sub *Subscription) Done() <-chan struct{} {
	return sub.done
}

func (sub *Subscription) stop() {
	sub.once.Do(func() {
		close(sub.done)
		sub.store.hub.remove(sub)
		metrics.ActiveSubscriptions.Dec()
	})
}

func (sub *Subscription) signal() {
	select {
	case sub.wake <- struct{}{}:
	default:
	}
}

func (sub *Subscription) run(ctx context.Context) {
	defer sub.stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-sub.done:
			return
		case <-sub.wake:
		}

		records, err := sub.store.Snapshot(ctx, sub.partition)
		sub.mu.Lock()
		if sub.cancelled || ctx.Err() != nil {
			sub.mu.Unlock()
			return
		}
		if err != nil {
			sub.store.logger.Warn("load history snapshot failed",
				zap.String("partition", sub.partition.Key()), zap.Error(err))
			if sub.onError != nil {
				sub.onError(err)
			}
		} else {
			sub.onChange(records)
		}
		sub.mu.Unlock()
	}
}

// hub fans change notifications out to subscriptions by partition.
type hub struct {
	mu   sync.RWMutex
	subs map[string]map[*Subscription]struct{}
}

func newHub() *hub {
	return &hub{subs: make(map[string]map[*Subscription]struct{})}
}

func (h *hub) add(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	key := sub.partition.Key()
	if h.subs[key] == nil {
		h.subs[key] = make(map[*Subscription]struct{})
	}
	h.subs[key][sub] = struct{}{}
}

func (h *hub) remove(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	key := sub.partition.Key()
	delete(h.subs[key], sub)
	if len(h.subs[key]) == 0 {
		delete(h.subs, key)
	}
}

func (h *hub) notify(partition model.Partition) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subs[partition.Key()] {
		sub.signal()
	}
}

func (h *hub) count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, subs := range h.subs {
		n += len(subs)
	}
	return n
}
