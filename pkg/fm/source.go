package fm

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// maxArchiveSize caps how much of a downloaded archive is read into memory
const maxArchiveSize = 512 << 20

// Source expands one install argument into font files
type Source interface {
	// Name returns the identifier for this source
	Name() string

	// Matches reports whether the source handles arg
	Matches(arg string) bool

	// Resolve produces the font files arg stands for
	Resolve(ctx context.Context, arg string) (*Resolved, error)
}

// Resolved lists the font files behind one install argument. Temporary
// files only live until Cleanup is called.
type Resolved struct {
	Paths     []string
	Temporary bool
	cleanup   func()
}

// Cleanup removes any temporary files. It is safe to call more than once.
func (r *Resolved) Cleanup() {
	if r == nil || r.cleanup == nil {
		return
	}
	r.cleanup()
	r.cleanup = nil
}

// Common HTTP client with reasonable defaults
var defaultClient = &http.Client{
	Timeout: 30 * time.Second,
	Transport: &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 100,
		IdleConnTimeout:     90 * time.Second,
	},
}

// DefaultSources returns the built-in sources in precedence order
func DefaultSources() []Source {
	return []Source{
		NewArchiveSource(defaultClient),
		DirectorySource{},
		FileSource{},
	}
}

// FileSource passes an existing font file through unchanged
type FileSource struct{}

func (FileSource) Name() string {
	return "file"
}

func (FileSource) Matches(arg string) bool {
	info, err := os.Stat(arg)
	return err == nil && info.Mode().IsRegular()
}

func (FileSource) Resolve(_ context.Context, arg string) (*Resolved, error) {
	return &Resolved{Paths: []string{arg}}, nil
}

// DirectorySource expands a directory to every supported font file below it
type DirectorySource struct{}

func (DirectorySource) Name() string {
	return "directory"
}

func (DirectorySource) Matches(arg string) bool {
	info, err := os.Stat(arg)
	return err == nil && info.IsDir()
}

func (DirectorySource) Resolve(_ context.Context, arg string) (*Resolved, error) {
	var paths []string
	err := filepath.WalkDir(arg, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && isFontFile(d.Name()) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking directory %s: %w", arg, err)
	}
	return &Resolved{Paths: paths}, nil
}

// ArchiveSource extracts the fonts in a local .zip file or a zip downloaded
// over http(s) into a temporary directory.
type ArchiveSource struct {
	client *http.Client
}

func NewArchiveSource(client *http.Client) *ArchiveSource {
	if client == nil {
		client = defaultClient
	}
	return &ArchiveSource{client: client}
}

func (s *ArchiveSource) Name() string {
	return "archive"
}

func (s *ArchiveSource) Matches(arg string) bool {
	if isURL(arg) {
		return true
	}
	if !strings.EqualFold(filepath.Ext(arg), ".zip") {
		return false
	}
	info, err := os.Stat(arg)
	return err == nil && info.Mode().IsRegular()
}

func (s *ArchiveSource) Resolve(ctx context.Context, arg string) (*Resolved, error) {
	var data []byte
	var err error
	if isURL(arg) {
		data, err = s.download(ctx, arg)
	} else {
		data, err = os.ReadFile(arg)
	}
	if err != nil {
		return nil, err
	}

	zipReader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("reading zip data: %w", err)
	}

	dir, err := os.MkdirTemp("", "fontreg-archive-*")
	if err != nil {
		return nil, fmt.Errorf("creating extraction directory: %w", err)
	}
	resolved := &Resolved{
		Temporary: true,
		cleanup:   func() { os.RemoveAll(dir) },
	}

	for _, file := range zipReader.File {
		// Skip directories and hidden files
		name := filepath.Base(file.Name)
		if file.FileInfo().IsDir() || strings.HasPrefix(name, ".") || !isFontFile(name) {
			continue
		}
		dest := filepath.Join(dir, name)
		if _, err := os.Stat(dest); err == nil {
			continue
		}
		if err := extractFile(file, dest); err != nil {
			resolved.Cleanup()
			return nil, fmt.Errorf("extracting font file %s: %w", file.Name, err)
		}
		resolved.Paths = append(resolved.Paths, dest)
	}

	if len(resolved.Paths) == 0 {
		resolved.Cleanup()
		return nil, fmt.Errorf("no valid font files found in archive")
	}
	return resolved, nil
}

func (s *ArchiveSource) download(ctx context.Context, rawURL string) ([]byte, error) {
	if _, err := url.Parse(rawURL); err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("downloading archive: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	buf := new(bytes.Buffer)
	if _, err := io.Copy(buf, io.LimitReader(resp.Body, maxArchiveSize)); err != nil {
		return nil, fmt.Errorf("reading archive: %w", err)
	}
	return buf.Bytes(), nil
}

func extractFile(file *zip.File, dest string) error {
	src, err := file.Open()
	if err != nil {
		return fmt.Errorf("opening file in archive: %w", err)
	}
	defer src.Close()

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("creating destination file: %w", err)
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		return fmt.Errorf("copying file contents: %w", err)
	}
	return out.Close()
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}
