package test

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"
)

const integrationEnv = "DLVDAP_INTEGRATION"

var tmpDir string

// Build compiles fixtures/<name>.go without optimizations and returns the
// binary path.
func Build(name string) string {
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		fmt.Fprintln(os.Stderr, "cannot find source file")
		os.Exit(1)
	}

	fixt := Fixture(name)
	binary := filepath.Join(tmpDir, name)

	flags := []string{"build", "-gcflags=all=-N -l", "-o", binary, fixt}

	cmd := exec.Command("go", flags...)
	cmd.Dir = filepath.Dir(filename)
	if out, err := cmd.CombinedOutput(); err != nil {
		fmt.Fprintln(os.Stderr, "failed to build test binary: ", err)
		fmt.Fprintln(os.Stderr, string(out))
		os.Exit(1)
	}
	return binary
}

// Fixture returns the absolute path of fixtures/<name>.go.
func Fixture(name string) string {
	_, filename, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(filename), "fixtures", name+".go")
}

// DelvePath returns the path of the real backend, skipping t unless
// integration tests were requested and the backend is installed.
func DelvePath(t *testing.T) string {
	if os.Getenv(integrationEnv) == "" {
		t.Skipf("set %s=1 to run against a real backend", integrationEnv)
	}
	path, err := exec.LookPath("dlv")
	if err != nil {
		t.Skip("dlv not found in PATH")
	}
	return path
}

func Run(m *testing.M) int {
	var err error
	tmpDir, err = os.MkdirTemp("", "dlvdap-")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	code := m.Run()

	os.RemoveAll(tmpDir)
	return code
}
