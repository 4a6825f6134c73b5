package supervisor

import (
	"math/rand"
	"sync"
	"time"

	"github.com/openeq/pixelstream/pkg/api"
)

const mockZones = 50

// mockStream emits synthetic game updates on a fixed interval, so the
// signaling path can be exercised end to end without a real renderer.
type mockStream struct {
	ticker *time.Ticker
	done   chan struct{}
	once   sync.Once
}

func (inst *Instance) startMock(interval time.Duration) {
	m := &mockStream{ticker: time.NewTicker(interval), done: make(chan struct{})}
	inst.mu.Lock()
	if inst.stopped {
		inst.mu.Unlock()
		m.stop()
		return
	}
	inst.mock = m
	inst.mu.Unlock()

	go func() {
		for {
			select {
			case <-m.ticker.C:
				inst.notify.Notify(api.GameUpdatePacket(rand.Intn(100), mockZones))
			case <-m.done:
				return
			}
		}
	}()
}

func (m *mockStream) stop() {
	m.once.Do(func() {
		m.ticker.Stop()
		close(m.done)
	})
}
