package supervisor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/openeq/pixelstream/pkg/api"
	"github.com/openeq/pixelstream/pkg/config"
	"github.com/openeq/pixelstream/pkg/logger"
)

type recorder struct {
	mu   sync.Mutex
	outs []api.Out
}

func (r *recorder) Notify(out api.Out) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outs = append(r.outs, out)
}

func (r *recorder) first() api.Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.outs) == 0 {
		return ""
	}
	return r.outs[0].T
}

func (r *recorder) count(t api.Type) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, o := range r.outs {
		if o.T == t {
			n++
		}
	}
	return n
}

func (r *recorder) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.outs)
}

func mockSupervisor(interval time.Duration) *Supervisor {
	// no executable configured forces the mock path
	return New(config.Game{
		MockInterval: interval,
		StopTimeout:  10 * time.Millisecond,
	}, "localhost:0", logger.Default())
}

func TestMockLifecycle(t *testing.T) {
	s := mockSupervisor(10 * time.Millisecond)
	rec := &recorder{}

	if err := s.Start("a", rec); err != nil {
		t.Fatal(err)
	}
	if !s.Running("a") {
		t.Fatalf("expected a running instance")
	}
	if rec.first() != api.GameStarted {
		t.Fatalf("expected an immediate game_started, got %v", rec.first())
	}

	time.Sleep(60 * time.Millisecond)
	if rec.count(api.GameUpdate) == 0 {
		t.Fatalf("expected periodic game updates")
	}

	s.Stop("a")
	if s.Running("a") {
		t.Fatalf("instance survived stop")
	}
	if rec.count(api.GameStopped) != 1 {
		t.Fatalf("expected exactly one game_stopped, got %d", rec.count(api.GameStopped))
	}

	// the update stream must die with the instance
	n := rec.len()
	time.Sleep(40 * time.Millisecond)
	if rec.len() != n {
		t.Fatalf("updates kept coming after stop")
	}

	// stopping again changes nothing
	s.Stop("a")
	if rec.count(api.GameStopped) != 1 {
		t.Fatalf("repeated stop notified the client again")
	}
}

func TestStartDuplicate(t *testing.T) {
	s := mockSupervisor(time.Hour)
	rec := &recorder{}
	if err := s.Start("a", rec); err != nil {
		t.Fatal(err)
	}
	if err := s.Start("a", rec); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}
	s.Stop("a")
}

func TestSessionRemovalIsSilent(t *testing.T) {
	s := mockSupervisor(time.Hour)
	rec := &recorder{}
	if err := s.Start("a", rec); err != nil {
		t.Fatal(err)
	}

	s.OnSessionRemoved("a")
	if s.Running("a") {
		t.Fatalf("instance survived session removal")
	}
	if rec.count(api.GameStopped) != 0 {
		t.Fatalf("disconnect teardown should not notify the gone client")
	}

	// same id can start again
	if err := s.Start("a", rec); err != nil {
		t.Fatal(err)
	}
	s.Stop("a")
}

func TestShutdownTerminatesAll(t *testing.T) {
	s := mockSupervisor(time.Hour)
	for _, id := range []string{"a", "b", "c"} {
		if err := s.Start(id, &recorder{}); err != nil {
			t.Fatal(err)
		}
	}
	if s.RunningCount() != 3 {
		t.Fatalf("expected 3 instances, got %d", s.RunningCount())
	}
	if err := s.Shutdown(context.Background()); err != nil {
		t.Fatal(err)
	}
	if s.RunningCount() != 0 {
		t.Fatalf("instances survived shutdown")
	}
}
