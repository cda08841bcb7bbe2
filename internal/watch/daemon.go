package watch

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/shirou/gopsutil/v4/process"

	"github.com/driftsync/driftsync/internal/pathsync"
	"github.com/driftsync/driftsync/internal/utils"
)

const (
	pidFile = "watch.pid"

	// DaemonEnv marks the re-exec'd child so it runs the watch loop in the
	// foreground instead of spawning another daemon.
	DaemonEnv = "DRIFTSYNC_WATCH_DAEMON"
)

var (
	ErrAlreadyWatching = errors.New("a watch daemon is already running for this root")
	ErrNotWatching     = errors.New("no watch daemon is running for this root")
)

// PidFilePath returns where the root's watch daemon records its process id.
func PidFilePath(root string) string {
	return filepath.Join(root, pathsync.MetaDir, pidFile)
}

// DaemonStatus reports whether a live watch daemon exists for root. A pid
// file pointing at a dead process is cleaned up opportunistically.
func DaemonStatus(root string) (running bool, pid int, err error) {
	path := PidFilePath(root)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, 0, nil
		}
		return false, 0, fmt.Errorf("read pid file: %w", err)
	}

	pid, err = strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		// garbage pid file: treat as stale
		_ = os.Remove(path)
		return false, 0, nil
	}

	alive, err := process.PidExists(int32(pid))
	if err != nil {
		return false, pid, fmt.Errorf("check pid %d: %w", pid, err)
	}
	if !alive {
		_ = os.Remove(path)
		return false, 0, nil
	}
	return true, pid, nil
}

// StartDaemon re-execs the current binary detached from the terminal,
// running the watch loop for root, and records the child pid.
func StartDaemon(root string, extraArgs ...string) (int, error) {
	running, pid, err := DaemonStatus(root)
	if err != nil {
		return 0, err
	}
	if running {
		return pid, ErrAlreadyWatching
	}

	self, err := os.Executable()
	if err != nil {
		return 0, fmt.Errorf("resolve executable: %w", err)
	}

	args := append([]string{"watch", "--root", root}, extraArgs...)
	cmd := exec.Command(self, args...)
	cmd.Env = append(os.Environ(), DaemonEnv+"=1")
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil
	cmd.SysProcAttr = detachAttr()

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("start watch daemon: %w", err)
	}

	pid = cmd.Process.Pid
	if err := WritePidFile(root, pid); err != nil {
		_ = cmd.Process.Kill()
		return 0, err
	}

	// the child is supervised by its own process group now
	_ = cmd.Process.Release()
	return pid, nil
}

// StopDaemon signals the root's watch daemon and removes its pid file.
func StopDaemon(root string) error {
	running, pid, err := DaemonStatus(root)
	if err != nil {
		return err
	}
	if !running {
		return ErrNotWatching
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("find pid %d: %w", pid, err)
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("signal pid %d: %w", pid, err)
	}
	return os.Remove(PidFilePath(root))
}

// WritePidFile records pid for root, creating the marker dir if needed.
func WritePidFile(root string, pid int) error {
	path := PidFilePath(root)
	if err := utils.EnsureParent(path); err != nil {
		return fmt.Errorf("create pid dir: %w", err)
	}
	return os.WriteFile(path, []byte(strconv.Itoa(pid)), 0o644)
}

// RemovePidFile deletes the root's pid file, ignoring a missing file.
func RemovePidFile(root string) error {
	err := os.Remove(PidFilePath(root))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
