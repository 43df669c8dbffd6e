package fm

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// Manager runs batches of font operations for one scope
type Manager interface {
	// Install installs every font the arguments expand to
	Install(ctx context.Context, args ...string) ([]Result, error)

	// InstallByReference registers fonts in place without copying them
	InstallByReference(ctx context.Context, args ...string) ([]Result, error)

	// Uninstall removes each identified font
	Uninstall(ctx context.Context, args ...string) ([]Result, error)

	// InstallFromList installs the fonts listed one per line in reader
	InstallFromList(ctx context.Context, reader io.Reader) ([]Result, error)

	// Identify resolves an identifier to the installed font it denotes
	Identify(nameOrPath string) (*FontIdentification, error)

	// List returns all installed fonts
	List() ([]FontIdentification, error)

	// RegisterSource adds a new source to expand install arguments
	RegisterSource(source Source) error

	// PurgeFontCache clears the per-user font caches
	PurgeFontCache(ctx context.Context) CacheReport
}

// DefaultManager provides the standard batch implementation on top of an
// Installer. Items run strictly one after another; a failing item is logged
// and the batch moves on, except for failures that doom every later item.
type DefaultManager struct {
	installer    *Installer
	sources      []Source
	cacheOptions CacheOptions
	logger       *slog.Logger
}

type ManagerOption func(*DefaultManager)

// WithSources replaces the default sources
func WithSources(sources ...Source) ManagerOption {
	return func(m *DefaultManager) {
		m.sources = sources
	}
}

func WithCacheOptions(opts CacheOptions) ManagerOption {
	return func(m *DefaultManager) {
		m.cacheOptions = opts
	}
}

// NewManager creates a batch manager driving installer
func NewManager(installer *Installer, opts ...ManagerOption) *DefaultManager {
	m := &DefaultManager{
		installer:    installer,
		sources:      DefaultSources(),
		cacheOptions: DefaultCacheOptions,
		logger:       installer.logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// RegisterSource adds a source that takes precedence over the ones already
// registered
func (m *DefaultManager) RegisterSource(source Source) error {
	if source == nil {
		return fmt.Errorf("cannot register nil source")
	}

	for _, existing := range m.sources {
		if existing.Name() == source.Name() {
			return fmt.Errorf("source %q is already registered", source.Name())
		}
	}

	m.sources = append([]Source{source}, m.sources...)
	return nil
}

func (m *DefaultManager) Install(ctx context.Context, args ...string) ([]Result, error) {
	return m.installAll(ctx, args, false)
}

func (m *DefaultManager) InstallByReference(ctx context.Context, args ...string) ([]Result, error) {
	return m.installAll(ctx, args, true)
}

func (m *DefaultManager) installAll(ctx context.Context, args []string, byReference bool) ([]Result, error) {
	var results []Result
	var resolved []*Resolved
	defer func() {
		for _, r := range resolved {
			r.Cleanup()
		}
	}()

	for _, arg := range args {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		r, err := m.expand(ctx, arg)
		if err != nil {
			m.logger.Error("invalid path", "font", arg, "error", err)
			results = append(results, Result{Font: arg, Err: err})
			continue
		}
		resolved = append(resolved, r)
		if len(r.Paths) == 0 {
			m.logger.Warn("no font files found", "font", arg)
		}

		if byReference && r.Temporary {
			err := newError(KindUnsupportedFormat, arg, fmt.Errorf("extracted archive fonts cannot be installed by reference"))
			m.logger.Error("font install failed", "font", arg, "error", err)
			results = append(results, Result{Font: arg, Err: err})
			continue
		}

		for _, path := range r.Paths {
			if err := ctx.Err(); err != nil {
				return results, err
			}
			install := m.installer.Install
			if byReference {
				install = m.installer.InstallByReference
			}
			res, err := install(path)
			results = append(results, res)
			if IsFatal(err) {
				return results, err
			}
		}
	}
	return results, nil
}

// expand hands arg to the first source that claims it
func (m *DefaultManager) expand(ctx context.Context, arg string) (*Resolved, error) {
	for _, source := range m.sources {
		if !source.Matches(arg) {
			continue
		}
		r, err := source.Resolve(ctx, arg)
		if err != nil {
			return nil, newError(KindNotFound, arg, fmt.Errorf("%s source: %w", source.Name(), err))
		}
		return r, nil
	}
	return nil, newError(KindNotFound, arg, fmt.Errorf("no font file, directory or archive at %q", arg))
}

func (m *DefaultManager) Uninstall(ctx context.Context, args ...string) ([]Result, error) {
	var results []Result
	for _, arg := range args {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		res, err := m.installer.Uninstall(arg)
		results = append(results, res)
		if IsFatal(err) {
			return results, err
		}
	}
	return results, nil
}

// ParseListLine returns the identifier on one line of a font list, or "" for
// blank lines and comments
func ParseListLine(line string) string {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return ""
	}
	return line
}

// InstallFromList implements bulk font installation from a list file
func (m *DefaultManager) InstallFromList(ctx context.Context, reader io.Reader) ([]Result, error) {
	scanner := bufio.NewScanner(reader)
	var args []string
	for scanner.Scan() {
		if arg := ParseListLine(scanner.Text()); arg != "" {
			args = append(args, arg)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading font list: %w", err)
	}
	return m.Install(ctx, args...)
}

func (m *DefaultManager) Identify(nameOrPath string) (*FontIdentification, error) {
	return m.installer.Identify(nameOrPath)
}

func (m *DefaultManager) List() ([]FontIdentification, error) {
	return m.installer.List()
}

func (m *DefaultManager) PurgeFontCache(ctx context.Context) CacheReport {
	return PurgeFontCache(ctx, m.installer.platform, m.cacheOptions, m.logger)
}
