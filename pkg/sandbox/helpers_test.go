package sandbox

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/rhuss/vizlaunch/pkg/api"
)

// shellLanguage runs snippets with /bin/sh so tests need no real images.
var shellLanguage = api.Language{
	Name:        "sh",
	Extension:   ".sh",
	Image:       "viz-shell:test",
	Interpreter: "/bin/sh",
	MountPath:   "/app/user_code.sh",
}

func requireShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires /bin/sh")
	}
}

// writeFakeDocker writes a stand-in for the docker binary. `run` executes
// the host side of the -v mount with /bin/sh; `rm` appends its arguments to
// the returned log file.
func writeFakeDocker(t *testing.T) (binary, logPath string) {
	t.Helper()
	requireShell(t)

	dir := t.TempDir()
	logPath = filepath.Join(dir, "calls.log")
	script := `#!/bin/sh
if [ "$1" = "rm" ]; then
  echo "$@" >> "` + logPath + `"
  exit 0
fi
if [ "$1" = "version" ]; then
  echo "27.0.0"
  exit 0
fi
src=""
while [ $# -gt 0 ]; do
  case "$1" in
    -v) src="${2%%:*}"; shift 2 ;;
    *) shift ;;
  esac
done
exec /bin/sh "$src"
`
	binary = filepath.Join(dir, "docker")
	if err := os.WriteFile(binary, []byte(script), 0o755); err != nil {
		t.Fatalf("write fake docker: %v", err)
	}
	return binary, logPath
}

func dirEntries(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}
