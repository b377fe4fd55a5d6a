package sandbox

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// Workspace stages code files on the host for mounting into containers.
type Workspace struct {
	// Dir is the parent directory. Empty uses os.TempDir.
	Dir string
}

// StageCode writes the job's code to the fixed path, creating its parent
// directory, and returns a cleanup function that removes the file. Callers
// must not stage two jobs at the same path concurrently.
func (w *Workspace) StageCode(path string, job *Job) (func(), error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, &WorkspaceError{Err: err}
	}
	if err := os.WriteFile(path, []byte(job.Code), 0o644); err != nil {
		return nil, &WorkspaceError{Err: fmt.Errorf("write %s: %w", path, err)}
	}
	return func() {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			slog.Warn("failed to delete staged code file", "path", path, "error", err.Error())
		}
	}, nil
}

// WriteCode writes the job's code to a new user_code_*<ext> file and returns
// its absolute path with a cleanup function that removes it.
func (w *Workspace) WriteCode(job *Job) (string, func(), error) {
	dir := ""
	if w != nil {
		dir = w.Dir
	}
	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", nil, &WorkspaceError{Err: err}
		}
	}

	f, err := os.CreateTemp(dir, "user_code_*"+job.Language.Extension)
	if err != nil {
		return "", nil, &WorkspaceError{Err: err}
	}
	path := f.Name()

	cleanup := func() {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			slog.Warn("failed to delete temporary file", "path", path, "error", err.Error())
		}
	}

	if _, err := f.WriteString(job.Code); err != nil {
		f.Close()
		cleanup()
		return "", nil, &WorkspaceError{Err: fmt.Errorf("write %s: %w", path, err)}
	}
	if err := f.Close(); err != nil {
		cleanup()
		return "", nil, &WorkspaceError{Err: fmt.Errorf("close %s: %w", path, err)}
	}

	// Containers run as an unprivileged user and need read access.
	if err := os.Chmod(path, 0o644); err != nil {
		cleanup()
		return "", nil, &WorkspaceError{Err: err}
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		cleanup()
		return "", nil, &WorkspaceError{Err: err}
	}
	return abs, cleanup, nil
}
