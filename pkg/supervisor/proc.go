package supervisor

import (
	"bufio"
	"io"
	"os/exec"
	"syscall"
	"time"

	"github.com/openeq/pixelstream/pkg/logger"
)

// proc is a started command with its exit tracked by a single waiter.
type proc struct {
	cmd    *exec.Cmd
	exited chan struct{}
	code   int
}

// run starts the command with stdout/stderr piped into the log.
// The streams are never parsed for protocol data.
func run(cmd *exec.Cmd, log *logger.Logger, tag string) (*proc, error) {
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, err
	}
	if err = cmd.Start(); err != nil {
		return nil, err
	}
	p := &proc{cmd: cmd, exited: make(chan struct{})}
	go pipeLog(stdout, log, tag)
	go pipeLog(stderr, log, tag)
	go func() {
		err := cmd.Wait()
		p.code = exitCode(cmd, err)
		close(p.exited)
	}()
	return p, nil
}

func (p *proc) pid() int {
	if p.cmd.Process != nil {
		return p.cmd.Process.Pid
	}
	return 0
}

// stop signals graceful termination and escalates to a forceful
// kill when the process ignores it past the grace period.
func (p *proc) stop(grace time.Duration) {
	if p.cmd.Process == nil {
		return
	}
	_ = p.cmd.Process.Signal(syscall.SIGTERM)
	go func() {
		select {
		case <-p.exited:
		case <-time.After(grace):
			_ = p.cmd.Process.Kill()
		}
	}()
}

func pipeLog(r io.Reader, log *logger.Logger, tag string) {
	scan := bufio.NewScanner(r)
	for scan.Scan() {
		log.Debug().Msgf("[%s] %s", tag, scan.Text())
	}
}

func exitCode(cmd *exec.Cmd, err error) int {
	if cmd.ProcessState != nil {
		return cmd.ProcessState.ExitCode()
	}
	if err != nil {
		return -1
	}
	return 0
}
