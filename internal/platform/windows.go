//go:build windows

package platform

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"syscall"
	"time"
	"unsafe"

	"golang.org/x/sys/windows"
	"golang.org/x/sys/windows/registry"
	"golang.org/x/sys/windows/svc"
	"golang.org/x/sys/windows/svc/mgr"
)

// MaxPathLength is the longest font path accepted before touching the filesystem
const MaxPathLength = 260

const (
	fontsKeyPath     = `Software\Microsoft\Windows NT\CurrentVersion\Fonts`
	fontCacheService = "FontCache"

	hwndBroadcast     = 0xffff
	wmFontChange      = 0x001D
	smtoNormal        = 0x0000
	shcneAssocChanged = 0x08000000
	shcnfIDList       = 0x0000
)

var (
	gdi32                   = windows.NewLazySystemDLL("gdi32.dll")
	procAddFontResourceW    = gdi32.NewProc("AddFontResourceW")
	procRemoveFontResourceW = gdi32.NewProc("RemoveFontResourceW")

	user32                  = windows.NewLazySystemDLL("user32.dll")
	procSendMessageTimeoutW = user32.NewProc("SendMessageTimeoutW")

	shell32            = windows.NewLazySystemDLL("shell32.dll")
	procSHChangeNotify = shell32.NewProc("SHChangeNotify")
)

type windowsManager struct{}

// New returns a platform-specific manager
func New() Manager {
	return &windowsManager{}
}

func (m *windowsManager) GetFontPaths() (FontPaths, error) {
	localAppData, err := windows.KnownFolderPath(windows.FOLDERID_LocalAppData, 0)
	if err != nil {
		return FontPaths{}, fmt.Errorf("getting local application data directory: %w", err)
	}
	windowsDir, err := windows.GetWindowsDirectory()
	if err != nil {
		return FontPaths{}, fmt.Errorf("getting windows directory: %w", err)
	}

	paths := FontPaths{
		SystemDir: filepath.Join(windowsDir, "Fonts"),
		UserDir:   filepath.Join(localAppData, "Microsoft", "Windows", "Fonts"),
	}

	if err := os.MkdirAll(paths.UserDir, 0755); err != nil {
		return FontPaths{}, fmt.Errorf("creating user fonts directory: %w", err)
	}
	return paths, nil
}

func (m *windowsManager) OpenStore(scope Scope, create bool) (Store, error) {
	root := registry.CURRENT_USER
	if scope == ScopeMachine {
		root = registry.LOCAL_MACHINE
	}
	access := uint32(registry.QUERY_VALUE | registry.SET_VALUE)

	if create {
		k, _, err := registry.CreateKey(root, fontsKeyPath, access)
		if err != nil {
			return nil, fmt.Errorf("creating %s fonts key: %w", scope, err)
		}
		return &registryStore{key: k}, nil
	}

	k, err := registry.OpenKey(root, fontsKeyPath, access)
	if errors.Is(err, registry.ErrNotExist) {
		return nil, fmt.Errorf("opening %s fonts key: %w", scope, fs.ErrNotExist)
	}
	if err != nil {
		return nil, fmt.Errorf("opening %s fonts key: %w", scope, err)
	}
	return &registryStore{key: k}, nil
}

func (m *windowsManager) AddFontResource(path string) error {
	p, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return &NativeError{Op: "AddFontResourceW", Path: path, Err: err}
	}
	r, _, callErr := procAddFontResourceW.Call(uintptr(unsafe.Pointer(p)))
	if r == 0 {
		return &NativeError{Op: "AddFontResourceW", Path: path, Code: errnoCode(callErr), Err: callErr}
	}
	return nil
}

func (m *windowsManager) RemoveFontResource(path string) error {
	p, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return &NativeError{Op: "RemoveFontResourceW", Path: path, Err: err}
	}
	r, _, callErr := procRemoveFontResourceW.Call(uintptr(unsafe.Pointer(p)))
	if r == 0 {
		return &NativeError{Op: "RemoveFontResourceW", Path: path, Code: errnoCode(callErr), Err: callErr}
	}
	return nil
}

// NotifyFontChange broadcasts WM_FONTCHANGE to top-level windows and asks the
// shell to refresh.
func (m *windowsManager) NotifyFontChange() {
	var result uintptr
	procSendMessageTimeoutW.Call(
		hwndBroadcast,
		wmFontChange,
		0,
		0,
		smtoNormal,
		1000,
		uintptr(unsafe.Pointer(&result)),
	)
	procSHChangeNotify.Call(shcneAssocChanged, shcnfIDList, 0, 0)
}

func (m *windowsManager) StopFontCache() error {
	return withFontCacheService(func(s *mgr.Service) error {
		status, err := s.Control(svc.Stop)
		if errors.Is(err, windows.ERROR_SERVICE_NOT_ACTIVE) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("stopping %s service: %w", fontCacheService, err)
		}

		deadline := time.Now().Add(10 * time.Second)
		for status.State != svc.Stopped {
			if time.Now().After(deadline) {
				return fmt.Errorf("timed out waiting for %s service to stop", fontCacheService)
			}
			time.Sleep(100 * time.Millisecond)
			if status, err = s.Query(); err != nil {
				return fmt.Errorf("querying %s service: %w", fontCacheService, err)
			}
		}
		return nil
	})
}

func (m *windowsManager) StartFontCache() error {
	return withFontCacheService(func(s *mgr.Service) error {
		err := s.Start()
		if err != nil && !errors.Is(err, windows.ERROR_SERVICE_ALREADY_RUNNING) {
			return fmt.Errorf("starting %s service: %w", fontCacheService, err)
		}
		return nil
	})
}

func (m *windowsManager) CacheLayout() (CacheLayout, error) {
	localAppData, err := windows.KnownFolderPath(windows.FOLDERID_LocalAppData, 0)
	if err != nil {
		return CacheLayout{}, fmt.Errorf("getting local application data directory: %w", err)
	}
	return CacheLayout{Root: localAppData, DirName: "FontCache"}, nil
}

func (m *windowsManager) HasPrivilege(scope Scope) bool {
	if scope == ScopeUser {
		return true
	}
	return windows.GetCurrentProcessToken().IsElevated()
}

func withFontCacheService(fn func(s *mgr.Service) error) error {
	m, err := mgr.Connect()
	if err != nil {
		return fmt.Errorf("connecting to service manager: %w", err)
	}
	defer m.Disconnect()

	s, err := m.OpenService(fontCacheService)
	if err != nil {
		return fmt.Errorf("opening %s service: %w", fontCacheService, err)
	}
	defer s.Close()

	return fn(s)
}

func errnoCode(err error) uint32 {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return uint32(errno)
	}
	return 0
}

type registryStore struct {
	key registry.Key
}

func (s *registryStore) ValueNames() ([]string, error) {
	names, err := s.key.ReadValueNames(0)
	if err != nil {
		return nil, fmt.Errorf("reading font value names: %w", err)
	}
	return names, nil
}

func (s *registryStore) GetValue(name string) (string, error) {
	v, _, err := s.key.GetStringValue(name)
	// Non-string values are not font registrations
	if errors.Is(err, registry.ErrNotExist) || errors.Is(err, registry.ErrUnexpectedType) {
		return "", fmt.Errorf("%s: %w", name, ErrValueNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("reading font value %s: %w", name, err)
	}
	return v, nil
}

func (s *registryStore) SetValue(name, value string) error {
	if err := s.key.SetStringValue(name, value); err != nil {
		return fmt.Errorf("writing font value %s: %w", name, err)
	}
	return nil
}

func (s *registryStore) DeleteValue(name string) error {
	err := s.key.DeleteValue(name)
	if errors.Is(err, registry.ErrNotExist) {
		return fmt.Errorf("%s: %w", name, ErrValueNotFound)
	}
	if err != nil {
		return fmt.Errorf("deleting font value %s: %w", name, err)
	}
	return nil
}

func (s *registryStore) Close() error {
	return s.key.Close()
}
