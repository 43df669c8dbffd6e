//go:build !windows

package platform

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

type darwinManager struct {
	fileRegistry
}

func newDarwinManager() Manager {
	return &darwinManager{fileRegistry{machineStoreDir: "/Library/Application Support/fontreg"}}
}

func (m *darwinManager) GetFontPaths() (FontPaths, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return FontPaths{}, fmt.Errorf("getting user home directory: %w", err)
	}

	paths := FontPaths{
		SystemDir: "/Library/Fonts",
		UserDir:   filepath.Join(homeDir, "Library/Fonts"),
	}

	// Ensure user fonts directory exists
	if err := os.MkdirAll(paths.UserDir, 0755); err != nil {
		return FontPaths{}, fmt.Errorf("creating user fonts directory: %w", err)
	}

	return paths, nil
}

// NotifyFontChange touches the user fonts directory, which macOS watches
func (m *darwinManager) NotifyFontChange() {
	paths, err := m.GetFontPaths()
	if err != nil {
		return
	}
	now := time.Now()
	_ = os.Chtimes(paths.UserDir, now, now)
}

func (m *darwinManager) StopFontCache() error {
	// Older macOS versions ship atsutil; newer ones restart the font server on demand
	if _, err := exec.LookPath("atsutil"); err != nil {
		return nil
	}
	if err := runCommand("atsutil", "databases", "-remove"); err != nil {
		return fmt.Errorf("removing font databases: %w", err)
	}
	return nil
}

func (m *darwinManager) StartFontCache() error {
	if _, err := exec.LookPath("atsutil"); err != nil {
		return nil
	}
	if err := runCommand("atsutil", "server", "-shutdown"); err != nil {
		return fmt.Errorf("restarting font server: %w", err)
	}
	return nil
}

func (m *darwinManager) CacheLayout() (CacheLayout, error) {
	cacheDir, err := os.UserCacheDir()
	if err != nil {
		return CacheLayout{}, fmt.Errorf("getting user cache directory: %w", err)
	}
	return CacheLayout{Root: cacheDir, DirName: "fontconfig"}, nil
}
