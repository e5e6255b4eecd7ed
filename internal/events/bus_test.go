package events

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusFanOut(t *testing.T) {
	bus := NewBus(8)
	a, unsubA := bus.Subscribe()
	defer unsubA()
	b, unsubB := bus.Subscribe()
	defer unsubB()

	bus.Publish(Start("job", "clien"))
	bus.Publish(Progress("job", "clien", 1, 20, 20))

	for _, ch := range []<-chan Event{a, b} {
		e := <-ch
		assert.Equal(t, TypeStart, e.Type)
		e = <-ch
		assert.Equal(t, TypeProgress, e.Type)
		assert.Equal(t, 20, e.FoundOnPage)
	}
}

func TestBusNoReplay(t *testing.T) {
	bus := NewBus(8)
	bus.Publish(Start("job", "clien"))

	ch, unsub := bus.Subscribe()
	defer unsub()

	bus.Publish(Complete("job", "clien", 3, 1))

	e := <-ch
	assert.Equal(t, TypeComplete, e.Type)
	select {
	case extra := <-ch:
		t.Fatalf("unexpected event %v", extra)
	default:
	}
}

func TestBusPublishNeverBlocks(t *testing.T) {
	bus := NewBus(2)
	_, unsub := bus.Subscribe()
	defer unsub()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			bus.Publish(Progress("job", "s", i, 1, i))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
	assert.Equal(t, int64(8), bus.Dropped())
}

func TestBusUnsubscribe(t *testing.T) {
	bus := NewBus(1)
	ch, unsub := bus.Subscribe()
	require.Equal(t, 1, bus.SubscriberCount())

	unsub()
	unsub()
	assert.Equal(t, 0, bus.SubscriberCount())

	_, open := <-ch
	assert.False(t, open)

	assert.NotPanics(t, func() { bus.Publish(Start("job", "s")) })
}

func TestBusClose(t *testing.T) {
	bus := NewBus(1)
	ch, unsub := bus.Subscribe()
	bus.Close()
	unsub()

	_, open := <-ch
	assert.False(t, open)

	late, _ := bus.Subscribe()
	_, open = <-late
	assert.False(t, open)
}

func TestBusConcurrentPublishAndSubscribe(t *testing.T) {
	bus := NewBus(4)
	var wg sync.WaitGroup

	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				bus.Publish(Start("job", "s"))
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				_, unsub := bus.Subscribe()
				unsub()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 0, bus.SubscriberCount())
}

func TestCancelledEvent(t *testing.T) {
	e := Cancelled("job", "clien", 3)
	assert.Equal(t, TypeError, e.Type)
	assert.False(t, e.WillRetry)
	assert.True(t, e.Cancelled)
	assert.Equal(t, 3, e.Page)
}
