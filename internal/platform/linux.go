//go:build !windows

package platform

import (
	"fmt"
	"os"
	"path/filepath"
)

type linuxManager struct {
	fileRegistry
}

func newLinuxManager() Manager {
	return &linuxManager{fileRegistry{machineStoreDir: "/etc/fontreg"}}
}

func (m *linuxManager) GetFontPaths() (FontPaths, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return FontPaths{}, fmt.Errorf("getting user home directory: %w", err)
	}

	paths := FontPaths{
		SystemDir: "/usr/local/share/fonts",
		UserDir:   filepath.Join(homeDir, ".local/share/fonts"),
	}

	// Ensure user fonts directory exists
	if err := os.MkdirAll(paths.UserDir, 0755); err != nil {
		return FontPaths{}, fmt.Errorf("creating user fonts directory: %w", err)
	}
	// The system directory needs root; its absence surfaces on first write
	_ = os.MkdirAll(paths.SystemDir, 0755)

	return paths, nil
}

func (m *linuxManager) NotifyFontChange() {
	_ = runCommand("fc-cache")
}

// fontconfig has no cache service to stop; clearing its cache directory is enough
func (m *linuxManager) StopFontCache() error {
	return nil
}

func (m *linuxManager) StartFontCache() error {
	// First try fc-cache
	if err := runCommand("fc-cache", "-f"); err == nil {
		return nil
	}

	// If fc-cache fails, try with sudo (some distros require this)
	if os.Geteuid() != 0 {
		if err := runCommand("sudo", "-n", "fc-cache", "-f"); err != nil {
			return fmt.Errorf("updating font cache: %w", err)
		}
	}

	return nil
}

func (m *linuxManager) CacheLayout() (CacheLayout, error) {
	cacheDir, err := os.UserCacheDir()
	if err != nil {
		return CacheLayout{}, fmt.Errorf("getting user cache directory: %w", err)
	}
	return CacheLayout{Root: cacheDir, DirName: "fontconfig"}, nil
}
