package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// ErrNotRunning reports a stop or status call against a dead daemon.
var ErrNotRunning = errors.New("server is not running")

// startupGrace is how long Start waits before deciding the spawned
// process survived its own initialization.
const startupGrace = 2 * time.Second

// Daemon manages the background server process through a PID file under
// the data directory.
type Daemon struct {
	DataDir string
}

// NewDaemon returns a manager for the daemon under dataDir.
func NewDaemon(dataDir string) *Daemon {
	return &Daemon{DataDir: dataDir}
}

func (d *Daemon) pidPath() string { return PIDPath(d.DataDir) }
func (d *Daemon) logPath() string { return LogPath(d.DataDir) }

// ReadPID returns the recorded daemon PID, or 0 when no PID file exists.
func (d *Daemon) ReadPID() (int, error) {
	data, err := os.ReadFile(d.pidPath())
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read pid file: %w", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("pid file %s is corrupt: %w", d.pidPath(), err)
	}
	return pid, nil
}

// Alive reports whether pid names a running process. Signal 0 probes
// without delivering anything.
func Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}

// Start launches the current executable as a detached `server run`
// process with its output appended to the log file, records the PID, and
// confirms the process survived startup. extraArgs pass through to the
// run command, typically --config.
func (d *Daemon) Start(extraArgs ...string) (int, error) {
	if pid, _ := d.ReadPID(); Alive(pid) {
		return 0, fmt.Errorf("server already running (pid %d)", pid)
	}
	if err := os.MkdirAll(d.DataDir, 0o755); err != nil {
		return 0, fmt.Errorf("create data directory: %w", err)
	}

	exe, err := os.Executable()
	if err != nil {
		return 0, fmt.Errorf("resolve executable: %w", err)
	}
	logFile, err := os.OpenFile(d.logPath(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return 0, fmt.Errorf("open log file: %w", err)
	}
	defer logFile.Close()

	cmd := exec.Command(exe, append([]string{"server", "run"}, extraArgs...)...)
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	// New session: the daemon must not die with the CLI's terminal.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("start server process: %w", err)
	}

	pid := cmd.Process.Pid
	if err := os.WriteFile(d.pidPath(), []byte(strconv.Itoa(pid)), 0o644); err != nil {
		return 0, fmt.Errorf("write pid file: %w", err)
	}
	// Reap the child if it exits while this process is still around, so
	// the liveness probe below cannot see a zombie as running.
	go func() { _ = cmd.Wait() }()

	time.Sleep(startupGrace)
	if !Alive(pid) {
		_ = os.Remove(d.pidPath())
		return 0, fmt.Errorf("server process exited immediately, check %s", d.logPath())
	}
	return pid, nil
}

// Stop sends SIGTERM and waits for the daemon to exit, escalating to
// SIGKILL after timeout. The PID file is removed either way.
func (d *Daemon) Stop(timeout time.Duration) error {
	pid, err := d.ReadPID()
	if err != nil {
		return err
	}
	if pid == 0 || !Alive(pid) {
		_ = os.Remove(d.pidPath())
		return ErrNotRunning
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("find server process %d: %w", pid, err)
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("signal server (pid %d): %w", pid, err)
	}

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if !Alive(pid) {
			_ = os.Remove(d.pidPath())
			return nil
		}
		time.Sleep(time.Second)
	}

	_ = proc.Signal(syscall.SIGKILL)
	_ = os.Remove(d.pidPath())
	return fmt.Errorf("server did not stop within %s, sent SIGKILL", timeout)
}

// Status describes the daemon process and its health endpoint.
type Status struct {
	Running bool
	PID     int
	Healthy bool
	Version string
}

// Status probes the PID file, the process, and the health endpoint.
func (d *Daemon) Status(healthURL string) Status {
	var st Status
	pid, err := d.ReadPID()
	if err != nil || pid == 0 {
		return st
	}
	st.PID = pid
	st.Running = Alive(pid)
	if !st.Running || healthURL == "" {
		return st
	}

	httpClient := &http.Client{Timeout: 2 * time.Second}
	resp, err := httpClient.Get(healthURL)
	if err != nil {
		return st
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return st
	}
	st.Healthy = true
	var body struct {
		Version string `json:"version"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil {
		st.Version = body.Version
	}
	return st
}

// TailLogs returns the last n log lines, keeping only those containing
// filter when it is non-empty. A missing log file yields nil lines; an
// existing empty one yields an empty slice.
func (d *Daemon) TailLogs(n int, filter string) ([]string, error) {
	data, err := os.ReadFile(d.logPath())
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read log file: %w", err)
	}

	lines := []string{}
	if trimmed := strings.TrimRight(string(data), "\n"); trimmed != "" {
		lines = strings.Split(trimmed, "\n")
	}
	if filter != "" {
		kept := lines[:0]
		for _, line := range lines {
			if strings.Contains(line, filter) {
				kept = append(kept, line)
			}
		}
		lines = kept
	}
	if n > 0 && len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines, nil
}

// FollowLogs copies appended log lines to w until ctx is done, polling
// the file the way tail -f does.
func (d *Daemon) FollowLogs(ctx context.Context, w io.Writer) error {
	f, err := os.Open(d.logPath())
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()
	if _, err := f.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("seek log file: %w", err)
	}

	reader := bufio.NewReader(f)
	for {
		line, err := reader.ReadString('\n')
		if line != "" {
			if _, werr := io.WriteString(w, line); werr != nil {
				return werr
			}
		}
		if err == nil {
			continue
		}
		if !errors.Is(err, io.EOF) {
			return fmt.Errorf("read log file: %w", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(500 * time.Millisecond):
		}
	}
}
