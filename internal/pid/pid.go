// Package pid keeps two controllers from writing the same record file.
package pid

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/google/uuid"

	"codeberg.org/mutker/housemon/internal/errors"
)

const (
	prefix      = "housemon-"
	extension   = ".pid"
	defaultPerm = 0o600
)

// Path returns the PID file guarding recordFile, in the system temp dir.
// The name carries the record file's base name for readability and a
// short name-based UUID of its absolute path, so equal base names in
// different directories get different PID files.
func Path(recordFile string) string {
	abs, err := filepath.Abs(recordFile)
	if err != nil {
		abs = filepath.Clean(recordFile)
	}
	id := uuid.NewSHA1(uuid.NameSpaceURL, []byte("file://"+abs)).String()[:8]
	name := strings.TrimSuffix(filepath.Base(abs), filepath.Ext(abs))
	return filepath.Join(os.TempDir(), prefix+name+"-"+id+extension)
}

// Write creates path exclusively and writes the current process ID to it.
// It fails with ErrAlreadyRunning when path names another live process. A
// stale or unreadable PID file is removed and creation retried once; losing
// that retry to another process also reports ErrAlreadyRunning.
func Write(path string) error {
	errFactory := errors.New()
	pid := os.Getpid()

	for attempt := 0; ; attempt++ {
		err := create(path, pid)
		if err == nil {
			return nil
		}
		if !os.IsExist(err) {
			return errFactory.Wrap(errors.ErrInternal, err)
		}

		owner, ok := readPID(path)
		switch {
		case ok && owner == pid:
			return nil
		case ok && alive(owner), attempt > 0:
			return errFactory.WithData(errors.ErrAlreadyRunning, struct {
				Path string
				PID  int
			}{
				Path: path,
				PID:  owner,
			})
		}

		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return errFactory.Wrap(errors.ErrInternal, err)
		}
	}
}

func create(path string, pid int) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, defaultPerm)
	if err != nil {
		return err
	}

	if _, err := f.WriteString(strconv.Itoa(pid)); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}

	return f.Close()
}

// Remove removes the PID file if it still belongs to this process.
func Remove(path string) error {
	owner, ok := readPID(path)
	if !ok || owner != os.Getpid() {
		return nil
	}

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.New().Wrap(errors.ErrInternal, err)
	}

	return nil
}

func readPID(path string) (int, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, false
	}
	return pid, true
}

func alive(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}
