//go:build !windows

package platform

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
)

// MaxPathLength is the longest font path accepted before touching the filesystem
const MaxPathLength = 4096

const storeFileName = "fonts.yaml"

// New returns a platform-specific manager
func New() Manager {
	if runtime.GOOS == "darwin" {
		return newDarwinManager()
	}
	return newLinuxManager()
}

// fileRegistry keeps font registrations in YAML stores and treats the font
// directories themselves as the live registration, which is how fontconfig
// and CoreText discover fonts.
type fileRegistry struct {
	machineStoreDir string
}

func (r fileRegistry) storePath(scope Scope) (string, error) {
	if scope == ScopeMachine {
		return filepath.Join(r.machineStoreDir, storeFileName), nil
	}
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("getting user config directory: %w", err)
	}
	return filepath.Join(configDir, "fontreg", storeFileName), nil
}

func (r fileRegistry) OpenStore(scope Scope, create bool) (Store, error) {
	path, err := r.storePath(scope)
	if err != nil {
		return nil, err
	}
	return OpenFileStore(path, create)
}

func (r fileRegistry) AddFontResource(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return &NativeError{Op: "add font resource", Path: path, Err: err}
	}
	return f.Close()
}

func (r fileRegistry) RemoveFontResource(path string) error {
	return nil
}

func (r fileRegistry) HasPrivilege(scope Scope) bool {
	return scope == ScopeUser || os.Geteuid() == 0
}

func runCommand(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("running %s: %s: %w", name, output, err)
	}
	return nil
}
