package platform

import (
	"errors"
	"fmt"
	"strings"
)

// Scope selects the registration store partition and managed font directory
type Scope int

const (
	ScopeUser Scope = iota
	ScopeMachine
)

func (s Scope) String() string {
	switch s {
	case ScopeUser:
		return "user"
	case ScopeMachine:
		return "machine"
	default:
		return fmt.Sprintf("scope(%d)", int(s))
	}
}

// ParseScope accepts "user", "machine" and the "all-users" alias
func ParseScope(s string) (Scope, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "user":
		return ScopeUser, nil
	case "machine", "all-users":
		return ScopeMachine, nil
	default:
		return ScopeUser, fmt.Errorf("unknown scope %q", s)
	}
}

// FontPaths represents system and user font directories
type FontPaths struct {
	SystemDir string // System-wide font directory
	UserDir   string // User-specific font directory
}

// Dir returns the managed directory for scope
func (p FontPaths) Dir(scope Scope) string {
	if scope == ScopeMachine {
		return p.SystemDir
	}
	return p.UserDir
}

// CacheLayout describes where the OS keeps font caches for the current user
type CacheLayout struct {
	Root    string // Directory tree searched for cache directories
	DirName string // Name of the cache directories to purge
}

// ErrValueNotFound is returned by Store.GetValue for a missing display name.
var ErrValueNotFound = errors.New("registration value not found")

// Store is one scope's persistent display-name to font-file mapping.
// Value names compare case-insensitively.
type Store interface {
	// ValueNames returns the display names in enumeration order
	ValueNames() ([]string, error)

	GetValue(name string) (string, error)
	SetValue(name, value string) error
	DeleteValue(name string) error
	Close() error
}

// NativeError reports a failed call into the OS font subsystem
type NativeError struct {
	Op   string
	Path string
	Code uint32
	Err  error
}

func (e *NativeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s: errorcode %d: %v", e.Op, e.Path, e.Code, e.Err)
	}
	return fmt.Sprintf("%s %s: errorcode %d", e.Op, e.Path, e.Code)
}

func (e *NativeError) Unwrap() error {
	return e.Err
}

// Manager handles platform-specific operations
type Manager interface {
	// GetFontPaths returns the system and user font directories, creating them if needed
	GetFontPaths() (FontPaths, error)

	// OpenStore opens the registration store for scope. Without create, a
	// missing store yields an error matching fs.ErrNotExist.
	OpenStore(scope Scope, create bool) (Store, error)

	// AddFontResource makes a font file available to running processes
	AddFontResource(path string) error

	// RemoveFontResource withdraws a font file from running processes
	RemoveFontResource(path string) error

	// NotifyFontChange tells the desktop that the font list changed. Best effort.
	NotifyFontChange()

	// StopFontCache stops the OS font cache service, if there is one
	StopFontCache() error

	// StartFontCache starts or refreshes the OS font cache
	StartFontCache() error

	// CacheLayout locates the per-user font cache directories
	CacheLayout() (CacheLayout, error)

	// HasPrivilege reports whether the process may modify scope
	HasPrivilege(scope Scope) bool
}
