package supervisor

import (
	"sync"
	"time"

	"github.com/openeq/pixelstream/pkg/logger"
	xos "github.com/openeq/pixelstream/pkg/os"
)

// Instance holds the process handles of one session's game.
// Handles are owned exclusively: every exit path releases them.
type Instance struct {
	id     string
	notify Notifier
	log    *logger.Logger

	mu      sync.Mutex
	stopped bool
	display *proc
	game    *proc
	lock    *xos.Flock
	mock    *mockStream

	done chan struct{}
}

func newInstance(id string, n Notifier, log *logger.Logger) *Instance {
	return &Instance{id: id, notify: n, log: log, done: make(chan struct{})}
}

// attachDisplay hands the display process over to the instance.
// Reports false when the instance was stopped mid-launch.
func (inst *Instance) attachDisplay(p *proc) bool {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	if inst.stopped {
		return false
	}
	inst.display = p
	return true
}

func (inst *Instance) attachGame(p *proc) bool {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	if inst.stopped {
		return false
	}
	inst.game = p
	return true
}

func (inst *Instance) gamePid() int {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	if inst.game == nil {
		return 0
	}
	return inst.game.pid()
}

// terminate releases everything the instance holds: the mock stream,
// both processes (graceful with a bounded escalation), and the display
// lock. Safe to call multiple times and from any goroutine.
func (inst *Instance) terminate(grace time.Duration) {
	inst.mu.Lock()
	if inst.stopped {
		inst.mu.Unlock()
		return
	}
	inst.stopped = true
	close(inst.done)
	display, game, lock, mock := inst.display, inst.game, inst.lock, inst.mock
	inst.display, inst.game, inst.lock, inst.mock = nil, nil, nil, nil
	inst.mu.Unlock()

	if mock != nil {
		mock.stop()
	}
	if game != nil {
		game.stop(grace)
	}
	if display != nil {
		display.stop(grace)
	}
	if lock != nil {
		_ = lock.Unlock()
	}
}
