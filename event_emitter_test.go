package relayws

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEventEmitter_SingleListener(t *testing.T) {
	emitter := NewEventEmitter[EventType, int]()
	var results []int

	emitter.On(EventConnect, func(data int) {
		results = append(results, data)
	})

	emitter.Emit(EventConnect, 42)

	assert.Equal(t, []int{42}, results)
}

func TestEventEmitter_ListenersRunInRegistrationOrder(t *testing.T) {
	emitter := NewEventEmitter[EventType, int]()
	var results []int

	emitter.On(EventClose, func(data int) { results = append(results, data) })
	emitter.On(EventClose, func(data int) { results = append(results, data*2) })

	emitter.Emit(EventClose, 10)

	assert.Equal(t, []int{10, 20}, results)
	assert.Equal(t, 2, emitter.Len(EventClose))
}

func TestEventEmitter_NoListeners(t *testing.T) {
	emitter := NewEventEmitter[EventType, int]()

	assert.NotPanics(t, func() { emitter.Emit(EventReject, 100) })
	assert.Equal(t, 0, emitter.Len(EventReject))
}

func TestEventEmitter_EventsAreIndependent(t *testing.T) {
	emitter := NewEventEmitter[EventType, int]()
	var redirects, reconnects int

	emitter.On(EventRedirect, func(data int) { redirects = data })
	emitter.On(EventReconnect, func(data int) { reconnects = data })

	emitter.Emit(EventRedirect, 5)
	emitter.Emit(EventReconnect, 15)

	assert.Equal(t, 5, redirects)
	assert.Equal(t, 15, reconnects)
}

func TestEventEmitter_ListenerRegistersListener(t *testing.T) {
	emitter := NewEventEmitter[EventType, int]()
	var calls int

	emitter.On(EventConnect, func(int) {
		calls++
		emitter.On(EventConnect, func(int) { calls++ })
	})

	emitter.Emit(EventConnect, 1)
	assert.Equal(t, 1, calls)

	emitter.Emit(EventConnect, 1)
	assert.Equal(t, 3, calls)
}

func TestEventEmitter_Close(t *testing.T) {
	emitter := NewEventEmitter[EventType, int]()
	var calls int
	emitter.On(EventConnect, func(int) { calls++ })

	emitter.Close()
	emitter.Emit(EventConnect, 1)

	assert.Equal(t, 0, calls)
	assert.Equal(t, 0, emitter.Len(EventConnect))
}

func TestEventEmitter_Concurrent(t *testing.T) {
	emitter := NewEventEmitter[EventType, int]()
	var mu sync.Mutex
	var results []int
	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			emitter.On(EventConnect, func(data int) {
				mu.Lock()
				results = append(results, data+i)
				mu.Unlock()
			})
		}(i)
	}
	wg.Wait()

	for j := 0; j < 10; j++ {
		wg.Add(1)
		go func(j int) {
			defer wg.Done()
			emitter.Emit(EventConnect, j)
		}(j)
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, results, 100)
}
