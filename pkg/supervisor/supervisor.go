// Package supervisor manages the external game-rendering process
// bound to a signaling session: the virtual display helper, the game
// executable itself, and a mock fallback when no executable is present.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/openeq/pixelstream/pkg/api"
	"github.com/openeq/pixelstream/pkg/config"
	"github.com/openeq/pixelstream/pkg/logger"
	xos "github.com/openeq/pixelstream/pkg/os"
)

var ErrAlreadyRunning = errors.New("game already running")

// Notifier receives lifecycle messages addressed to the session's client.
type Notifier interface {
	Notify(out api.Out)
}

type Supervisor struct {
	conf config.Game
	// signalingAddr is injected into the game process launch params.
	signalingAddr string
	log           *logger.Logger

	mu        sync.Mutex
	instances map[string]*Instance

	watcher       *fsnotify.Watcher
	execAvailable atomic.Bool
}

func New(conf config.Game, signalingAddr string, log *logger.Logger) *Supervisor {
	s := &Supervisor{
		conf:          conf,
		signalingAddr: signalingAddr,
		log:           log,
		instances:     make(map[string]*Instance, 10),
	}
	s.execAvailable.Store(conf.Executable != "" && xos.Exists(conf.Executable))
	return s
}

// Run starts the optional executable watcher.
func (s *Supervisor) Run() {
	if !s.conf.WatchExecutable || s.conf.Executable == "" {
		return
	}
	if err := s.watch(); err != nil {
		s.log.Error().Err(err).Msg("couldn't watch the game executable")
	}
}

// Shutdown terminates every supervised process.
// No process outlives the server.
func (s *Supervisor) Shutdown(_ context.Context) error {
	if s.watcher != nil {
		_ = s.watcher.Close()
	}
	s.mu.Lock()
	instances := make([]*Instance, 0, len(s.instances))
	for _, inst := range s.instances {
		instances = append(instances, inst)
	}
	s.instances = make(map[string]*Instance)
	s.mu.Unlock()
	for _, inst := range instances {
		inst.terminate(s.conf.StopTimeout)
	}
	return nil
}

func (s *Supervisor) String() string { return "supervisor:" + s.conf.Executable }

// Running reports whether the session has an attached game process.
func (s *Supervisor) Running(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.instances[id]
	return ok
}

func (s *Supervisor) RunningCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.instances)
}

// Start attaches a game process to the session. With no executable
// configured or present the session gets a mock update stream instead,
// a first-class mode for testing the signaling path end to end.
func (s *Supervisor) Start(id string, n Notifier) error {
	inst := newInstance(id, n, s.log.Extend(s.log.With().Str("sid", id)))
	s.mu.Lock()
	if _, ok := s.instances[id]; ok {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	s.instances[id] = inst
	s.mu.Unlock()

	if !s.available() {
		inst.log.Warn().Msgf("game executable not found at %q, starting mock renderer", s.conf.Executable)
		n.Notify(api.GameStartedPacket("mock renderer started - development mode"))
		inst.startMock(s.conf.MockInterval)
		return nil
	}

	n.Notify(api.GameStartingPacket("game renderer is initializing"))
	go s.launch(inst)
	return nil
}

// Stop detaches and terminates the session's processes. Idempotent.
func (s *Supervisor) Stop(id string) {
	inst := s.drop(id)
	if inst == nil {
		return
	}
	inst.terminate(s.conf.StopTimeout)
	inst.notify.Notify(api.GameStoppedPacket("game session ended"))
}

// OnSessionRemoved guarantees that no process outlives its session.
// Called by the session registry on every removal path.
func (s *Supervisor) OnSessionRemoved(id string) {
	inst := s.drop(id)
	if inst == nil {
		return
	}
	inst.terminate(s.conf.StopTimeout)
}

func (s *Supervisor) available() bool {
	if s.conf.Executable == "" {
		return false
	}
	if s.conf.WatchExecutable {
		return s.execAvailable.Load()
	}
	return xos.Exists(s.conf.Executable)
}

func (s *Supervisor) drop(id string) *Instance {
	s.mu.Lock()
	defer s.mu.Unlock()
	inst := s.instances[id]
	delete(s.instances, id)
	return inst
}

func (s *Supervisor) launch(inst *Instance) {
	if err := s.spawn(inst); err != nil {
		inst.log.Error().Err(err).Msg("game spawn failure")
		// roll back to the no-process-attached state
		s.drop(inst.id)
		inst.terminate(s.conf.StopTimeout)
		inst.notify.Notify(api.ErrorPacket("failed to start game session"))
	}
}

func (s *Supervisor) spawn(inst *Instance) error {
	d := s.conf.Display

	lock, err := xos.NewFileLock(filepath.Join(s.conf.LockDir, displayLockName(d.Number)))
	if err == nil {
		err = lock.Lock()
	}
	if err != nil {
		inst.log.Warn().Err(err).Msgf("no display lock for %v", d.Number)
	} else {
		inst.lock = lock
	}

	display := exec.Command("Xvfb",
		d.Number,
		"-screen", "0", fmt.Sprintf("%dx%dx24", d.Width, d.Height),
		"-ac",
		"+extension", "GLX",
		"+render",
		"-noreset",
	)
	display.Env = append(os.Environ(), "DISPLAY="+d.Number)
	dp, err := run(display, inst.log, "display")
	if err != nil {
		return err
	}
	if !inst.attachDisplay(dp) {
		dp.stop(s.conf.StopTimeout)
		return nil
	}

	// the virtual display needs a warm-up before the game can use it
	select {
	case <-inst.done:
		return nil
	case <-time.After(s.conf.Warmup):
	}

	game := exec.Command(s.conf.Executable,
		"-PixelStreamingURL=ws://"+s.signalingAddr,
		"-RenderOffScreen",
		"-Unattended",
		"-PixelStreamingWebRTCMaxFps=60",
	)
	game.Env = append(os.Environ(), "DISPLAY="+d.Number, "SESSION_ID="+inst.id)
	gp, err := run(game, inst.log, "game")
	if err != nil {
		return err
	}
	if !inst.attachGame(gp) {
		gp.stop(s.conf.StopTimeout)
		return nil
	}
	inst.notify.Notify(api.GameStartedPacket("game renderer started"))

	go s.reap(inst, gp)
	return nil
}

// reap waits for the game process exit and reports it to the client.
// A crash is reported, not retried: restart is the client's decision.
func (s *Supervisor) reap(inst *Instance, game *proc) {
	<-game.exited
	// Stop and session removal pop the instance first,
	// so a supervised termination is not reported twice.
	if s.dropIf(inst) {
		inst.log.Info().Msgf("game process exited with code %d", game.code)
		inst.terminate(s.conf.StopTimeout)
		inst.notify.Notify(api.GameStoppedPacket(fmt.Sprintf("game process exited with code %d", game.code)))
	}
}

func (s *Supervisor) dropIf(inst *Instance) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.instances[inst.id] != inst {
		return false
	}
	delete(s.instances, inst.id)
	return true
}

func (s *Supervisor) watch() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err = w.Add(filepath.Dir(s.conf.Executable)); err != nil {
		_ = w.Close()
		return err
	}
	s.watcher = w
	go func() {
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Name != s.conf.Executable {
					continue
				}
				was := s.execAvailable.Load()
				now := xos.Exists(s.conf.Executable)
				s.execAvailable.Store(now)
				if was != now {
					s.log.Info().Msgf("game executable availability changed: %v", now)
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				s.log.Error().Err(err).Msg("executable watch failure")
			}
		}
	}()
	return nil
}

func displayLockName(display string) string {
	return "display" + strings.ReplaceAll(display, ":", "_") + ".lock"
}
