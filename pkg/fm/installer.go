package fm

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/logandonley/fontreg/internal/metrics"
	"github.com/logandonley/fontreg/internal/platform"
)

// Outcome is how a single install or uninstall ended
type Outcome int

const (
	OutcomeFailed Outcome = iota
	OutcomeInstalled
	OutcomeAlreadyInstalled
	OutcomeUninstalled
	OutcomeNotFound
)

func (o Outcome) String() string {
	switch o {
	case OutcomeInstalled:
		return "installed"
	case OutcomeAlreadyInstalled:
		return "already installed"
	case OutcomeUninstalled:
		return "uninstalled"
	case OutcomeNotFound:
		return "not found"
	default:
		return "failed"
	}
}

// Result describes what happened to one font. Identification is set whenever
// the font could be identified, including on the already-installed path and
// on failures after identification.
type Result struct {
	Font           string
	Outcome        Outcome
	Identification *FontIdentification
	Err            error
}

// Succeeded is true for installed, already installed and uninstalled fonts
func (r Result) Succeeded() bool {
	switch r.Outcome {
	case OutcomeInstalled, OutcomeAlreadyInstalled, OutcomeUninstalled:
		return true
	default:
		return false
	}
}

// Installer moves fonts between the installed and uninstalled states for one
// scope. It is not safe for concurrent use; correctness against other
// processes relies on retries and on tolerating work that is already done.
type Installer struct {
	platform platform.Manager
	scope    Scope
	dir      string
	resolver *resolver
	logger   *slog.Logger
	metrics  *metrics.Metrics

	copyPolicy    RetryPolicy
	deletePolicy  RetryPolicy
	maxPath       int
	orphanCleanup bool
}

type Option func(*Installer)

func WithLogger(logger *slog.Logger) Option {
	return func(i *Installer) {
		i.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(i *Installer) {
		i.metrics = m
	}
}

func WithCopyPolicy(p RetryPolicy) Option {
	return func(i *Installer) {
		i.copyPolicy = p
	}
}

func WithDeletePolicy(p RetryPolicy) Option {
	return func(i *Installer) {
		i.deletePolicy = p
	}
}

// WithMaxPathLength overrides the platform's path length limit
func WithMaxPathLength(n int) Option {
	return func(i *Installer) {
		i.maxPath = n
	}
}

// WithOrphanCleanup controls whether uninstall deletes a font file found in
// the managed directory that has no registration. Enabled by default.
func WithOrphanCleanup(enabled bool) Option {
	return func(i *Installer) {
		i.orphanCleanup = enabled
	}
}

// NewInstaller creates an Installer for scope. It fails with
// KindInsufficientPrivilege when the process may not modify scope.
func NewInstaller(p platform.Manager, scope Scope, opts ...Option) (*Installer, error) {
	if !p.HasPrivilege(scope) {
		return nil, newError(KindInsufficientPrivilege, "", fmt.Errorf("managing %s fonts requires administrator rights", scope))
	}

	paths, err := p.GetFontPaths()
	if err != nil {
		return nil, fmt.Errorf("getting font paths: %w", err)
	}
	dir := paths.Dir(scope)

	i := &Installer{
		platform:      p,
		scope:         scope,
		dir:           dir,
		logger:        slog.Default(),
		copyPolicy:    DefaultCopyPolicy,
		deletePolicy:  DefaultDeletePolicy,
		maxPath:       platform.MaxPathLength,
		orphanCleanup: true,
	}
	i.resolver = &resolver{
		dir: dir,
		open: func(create bool) (platform.Store, error) {
			return p.OpenStore(scope, create)
		},
	}
	for _, opt := range opts {
		opt(i)
	}
	i.logger = i.logger.With("scope", scope.String())
	return i, nil
}

// Scope returns the scope the installer acts on
func (i *Installer) Scope() Scope {
	return i.scope
}

// Directory returns the managed font directory
func (i *Installer) Directory() string {
	return i.dir
}

// Identify resolves any identifier form (absolute or relative path, file name,
// name without extension, display name) to the installed font it denotes. A
// font that is not installed yields nil without error.
func (i *Installer) Identify(nameOrPath string) (*FontIdentification, error) {
	return i.resolver.identify(nameOrPath, nil)
}

// List returns every registered font in store enumeration order
func (i *Installer) List() ([]FontIdentification, error) {
	entries, err := i.resolver.load()
	if err != nil {
		return nil, err
	}
	fonts := make([]FontIdentification, 0, len(entries))
	for _, e := range entries {
		fonts = append(fonts, *i.resolver.identification(e))
	}
	return fonts, nil
}

// ensureStore creates the scope's registration namespace if it is missing
func (i *Installer) ensureStore() error {
	store, err := i.platform.OpenStore(i.scope, true)
	if err != nil {
		return newError(KindStoreAccessFailure, "", err)
	}
	return store.Close()
}

func (i *Installer) withStore(font string, fn func(platform.Store) error) error {
	store, err := i.platform.OpenStore(i.scope, true)
	if err != nil {
		return newError(KindStoreAccessFailure, font, err)
	}
	defer store.Close()
	return fn(store)
}

func (i *Installer) observe(operation string, res Result) {
	i.metrics.ObserveTransition(operation, i.scope.String(), res.Outcome.String())
}

// copyFont copies source to dest unless dest already exists. The copy lands
// in a uniquely named temp file first so an interrupted copy never leaves a
// truncated font under the final name.
func (i *Installer) copyFont(source, dest string) error {
	return retryNotify(i.copyPolicy, func() error {
		if _, err := os.Stat(dest); err == nil {
			return nil
		}
		err := copyFile(source, dest)
		if errors.Is(err, fs.ErrNotExist) {
			if _, statErr := os.Stat(source); statErr != nil {
				return permanent(err)
			}
		}
		return err
	}, func(err error) {
		i.metrics.ObserveRetry("copy")
		i.logger.Debug("copy attempt failed", "source", source, "dest", dest, "error", err)
	})
}

func copyFile(source, dest string) error {
	in, err := os.Open(source)
	if err != nil {
		return fmt.Errorf("opening font file: %w", err)
	}
	defer in.Close()

	tmp := filepath.Join(filepath.Dir(dest), "."+filepath.Base(dest)+"."+uuid.NewString()+".tmp")
	out, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return fmt.Errorf("creating destination file: %w", err)
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(tmp)
		return fmt.Errorf("copying file contents: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("closing destination file: %w", err)
	}
	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("moving font into place: %w", err)
	}
	return nil
}

// deleteFile removes p, treating a file or directory that is already gone as deleted
func (i *Installer) deleteFile(p string) error {
	return retryNotify(i.deletePolicy, func() error {
		err := os.Remove(p)
		if err == nil || errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}, func(err error) {
		i.metrics.ObserveRetry("delete")
		i.logger.Debug("delete attempt failed", "path", p, "error", err)
	})
}
