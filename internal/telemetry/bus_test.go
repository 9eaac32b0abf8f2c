package telemetry

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu  sync.Mutex
	got []Record
}

func (s *recordingSink) Deliver(rec Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, rec)
}

func (s *recordingSink) records() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, len(s.got))
	copy(out, s.got)
	return out
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	require.True(t, cond(), "condition not met before deadline")
}

func TestRecordStringFormatsChannelAndFields(t *testing.T) {
	assert.Equal(t, "TICK", Record{Channel: "TICK"}.String())
	assert.Equal(t, "TICK,1,2", Record{Channel: "TICK", Fields: []string{"1", "2"}}.String())
}

func TestNewRecordFormatsFieldsWithSprint(t *testing.T) {
	rec := NewRecord("SYNC", "LOCKED", 0.95, 3)
	assert.Equal(t, []string{"LOCKED", "0.95", "3"}, rec.Fields)
}

func TestBusPublishDeliversToSubscribedChannel(t *testing.T) {
	bus := NewBus(8)
	defer bus.Close()

	sink := &recordingSink{}
	bus.Subscribe(sink, "TICK")

	bus.Publish(Record{Channel: "TICK", Fields: []string{"1"}})
	bus.Publish(Record{Channel: "SYNC", Fields: []string{"2"}})

	waitUntil(t, func() bool { return len(sink.records()) == 1 })
	assert.Equal(t, "TICK", sink.records()[0].Channel)
}

func TestBusSubscribeWithNoChannelsWantsEverything(t *testing.T) {
	bus := NewBus(8)
	defer bus.Close()

	sink := &recordingSink{}
	bus.Subscribe(sink)

	bus.Publish(Record{Channel: "TICK"})
	bus.Publish(Record{Channel: "SYNC"})

	waitUntil(t, func() bool { return len(sink.records()) == 2 })
}

func TestBusPublishDropsOldestWhenSubscriberQueueFull(t *testing.T) {
	bus := NewBus(2)
	defer bus.Close()

	block := make(chan struct{})
	sink := blockingSink{block: block}
	bus.Subscribe(sink)

	// Fill the queue past capacity while the dispatch goroutine is
	// stuck waiting on the first Deliver call.
	for i := 0; i < 10; i++ {
		bus.Publish(NewRecord("TICK", i))
	}
	close(block)

	waitUntil(t, func() bool { return bus.Dropped() > 0 })
}

type blockingSink struct {
	block chan struct{}
}

func (s blockingSink) Deliver(Record) {
	<-s.block
}

func TestBusCloseStopsDispatchGoroutines(t *testing.T) {
	bus := NewBus(4)
	sink := &recordingSink{}
	bus.Subscribe(sink)
	bus.Publish(NewRecord("TICK"))
	waitUntil(t, func() bool { return len(sink.records()) == 1 })
	bus.Close()
}
