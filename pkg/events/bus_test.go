package events

import (
	"fmt"
	"sync"
	"testing"
)

func TestPublishOrdering(t *testing.T) {
	bus := NewBus(16)
	ch := bus.Subscribe("run1", 16)
	defer bus.Unsubscribe("run1", ch)

	bus.Publish("run1", KindStep, map[string]any{"n": 1})
	bus.Publish("run1", KindConfidenceUpdate, map[string]any{"n": 2})
	bus.Publish("run1", KindComplete, nil)

	var seqs []uint64
	var kinds []Kind
	for i := 0; i < 3; i++ {
		evt := <-ch
		seqs = append(seqs, evt.Seq)
		kinds = append(kinds, evt.Type)
	}

	for i := 1; i < len(seqs); i++ {
		if seqs[i] != seqs[i-1]+1 {
			t.Errorf("seq gap: %v", seqs)
		}
	}
	if kinds[2] != KindComplete {
		t.Errorf("last kind = %s, want complete", kinds[2])
	}
}

func TestPublishNeverBlocks(t *testing.T) {
	bus := NewBus(8)
	// Subscriber with a tiny buffer that is never drained.
	ch := bus.Subscribe("run1", 1)
	defer bus.Unsubscribe("run1", ch)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			bus.Publish("run1", KindStep, i)
		}
		close(done)
	}()

	select {
	case <-done:
	default:
		// Publish is synchronous; if the goroutine hasn't finished give it
		// a moment, then fail loudly rather than hanging the suite.
		<-done
	}
}

// Subscribers attach and detach while the run is publishing; this is the
// normal shape of an SSE client reconnecting mid-run. Run with -race.
func TestPublishConcurrentSubscribeUnsubscribe(t *testing.T) {
	bus := NewBus(64)
	const runID = "run1"

	// A persistent subscriber keeps the per-run channel set alive for the
	// whole test.
	anchor := bus.Subscribe(runID, 1)
	defer bus.Unsubscribe(runID, anchor)

	var wg sync.WaitGroup
	stop := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 20000; i++ {
			bus.Publish(runID, KindStep, i)
		}
		close(stop)
	}()

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				ch := bus.Subscribe(runID, 2)
				select {
				case <-ch:
				default:
				}
				bus.Unsubscribe(runID, ch)
			}
		}()
	}
	wg.Wait()
}

func TestUnsubscribeDuringPublishNoPanic(t *testing.T) {
	bus := NewBus(8)
	for i := 0; i < 1000; i++ {
		runID := fmt.Sprintf("run%d", i%4)
		ch := bus.Subscribe(runID, 1)
		done := make(chan struct{})
		go func() {
			bus.Publish(runID, KindStep, nil)
			close(done)
		}()
		bus.Unsubscribe(runID, ch)
		<-done
	}
}

func TestRunIsolation(t *testing.T) {
	bus := NewBus(8)
	chA := bus.Subscribe("a", 8)
	chB := bus.Subscribe("b", 8)
	defer bus.Unsubscribe("a", chA)
	defer bus.Unsubscribe("b", chB)

	bus.Publish("a", KindStep, nil)

	if got := len(chA); got != 1 {
		t.Errorf("run a got %d events, want 1", got)
	}
	if got := len(chB); got != 0 {
		t.Errorf("run b got %d events, want 0", got)
	}
}

func TestReplaySince(t *testing.T) {
	bus := NewBus(4)
	for i := 0; i < 6; i++ {
		bus.Publish("run1", KindStep, i)
	}

	// Capacity 4: only seqs 3..6 survive.
	events := bus.ReplaySince("run1", 0)
	if len(events) != 4 {
		t.Fatalf("got %d replay events, want 4", len(events))
	}
	if events[0].Seq != 3 {
		t.Errorf("first replay seq = %d, want 3", events[0].Seq)
	}

	events = bus.ReplaySince("run1", 5)
	if len(events) != 1 || events[0].Seq != 6 {
		t.Errorf("ReplaySince(5) = %v, want single seq 6", events)
	}

	bus.Forget("run1")
	if got := bus.ReplaySince("run1", 0); got != nil {
		t.Errorf("ReplaySince after Forget = %v, want nil", got)
	}
}

func TestTerminalKinds(t *testing.T) {
	tests := []struct {
		kind Kind
		want bool
	}{
		{KindStep, false},
		{KindRetryTriggered, false},
		{KindConfidenceUpdate, false},
		{KindGapsUpdated, false},
		{KindComplete, true},
		{KindError, true},
	}
	for _, tt := range tests {
		if got := tt.kind.Terminal(); got != tt.want {
			t.Errorf("Terminal(%s) = %v, want %v", tt.kind, got, tt.want)
		}
	}
}
