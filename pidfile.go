package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/ion-go/internal/config"
)

// pidFilePerms lets other local tools read the serve PID.
const pidFilePerms = 0o644

// errServeNotRunning is returned when no live serve process owns the PID file.
var errServeNotRunning = errors.New("ion-go serve is not running")

// pidLock is the serve instance lock: a PID file held under an exclusive
// flock for the life of the process.
type pidLock struct {
	path string
	f    *os.File
}

// acquirePIDLock writes the current PID to path under a non-blocking
// exclusive flock. It fails when another serve holds the lock.
func acquirePIDLock(path string) (*pidLock, error) {
	if path == "" {
		return nil, fmt.Errorf("PID file path is empty, cannot determine data directory")
	}

	if err := os.MkdirAll(filepath.Dir(path), dataDirPermissions); err != nil {
		return nil, fmt.Errorf("creating PID file directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, pidFilePerms)
	if err != nil {
		return nil, fmt.Errorf("opening PID file: %w", err)
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		f.Close()
		return nil, fmt.Errorf("another ion-go serve is already running (could not lock %s)", path)
	}

	if err := writePID(f); err != nil {
		f.Close()
		return nil, err
	}

	return &pidLock{path: path, f: f}, nil
}

func writePID(f *os.File) error {
	if err := f.Truncate(0); err != nil {
		return fmt.Errorf("truncating PID file: %w", err)
	}

	if _, err := fmt.Fprintf(f, "%d\n", os.Getpid()); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}

	// Readers must see the PID as soon as the lock is held.
	if err := f.Sync(); err != nil {
		return fmt.Errorf("syncing PID file: %w", err)
	}

	return nil
}

// Release removes the PID file and drops the lock.
func (l *pidLock) Release() {
	os.Remove(l.path)
	l.f.Close()
}

// readPID returns the PID recorded at path.
func readPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("reading PID file: %w", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid PID in %s: %w", path, err)
	}

	return pid, nil
}

// signalServe delivers sig to the serve process recorded at pidPath. A PID
// file left behind by a dead process is removed.
func signalServe(pidPath string, sig syscall.Signal) (int, error) {
	pid, err := readPID(pidPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, fmt.Errorf("%w (no PID file at %s)", errServeNotRunning, pidPath)
		}

		return 0, err
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		return 0, fmt.Errorf("finding process %d: %w", pid, err)
	}

	// Signal 0 checks liveness without delivering anything.
	if err := proc.Signal(syscall.Signal(0)); err != nil {
		os.Remove(pidPath)
		return 0, fmt.Errorf("%w (PID %d is gone, stale PID file removed)", errServeNotRunning, pid)
	}

	if err := proc.Signal(sig); err != nil {
		return 0, fmt.Errorf("sending %s to serve (PID %d): %w", sig, pid, err)
	}

	return pid, nil
}

func newReloadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reload",
		Short: "Make a running serve re-read its config file",
		RunE:  runReload,
	}
}

func runReload(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())

	pid, err := signalServe(config.ServePIDPath(), syscall.SIGHUP)
	if err != nil {
		return err
	}

	cc.Statusf("Sent reload to serve (PID %d).\n", pid)

	return nil
}
