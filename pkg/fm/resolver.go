package fm

import (
	"errors"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/logandonley/fontreg/internal/platform"
)

type storeEntry struct {
	name  string
	value string
}

// matchFilter narrows a strategy's candidates before ambiguity is judged
type matchFilter func(*FontIdentification) bool

func (f matchFilter) allows(id *FontIdentification) bool {
	return f == nil || f(id)
}

// strategy is one way of reading an identifier. input derives the key the
// strategy matches on from a normalized identifier, or "" when the identifier
// has the wrong shape for it.
type strategy struct {
	name  string
	input func(key string) string
	match func(r *resolver, entries []storeEntry, input string, accept matchFilter) (*FontIdentification, error)
}

// strategies are tried in order; the first identification wins
var strategies = []strategy{
	{name: "full path", input: fullPathInput, match: (*resolver).byFullPath},
	{name: "name with extension", input: nameWithExtensionInput, match: (*resolver).byNameWithExtension},
	{name: "name", input: nameInput, match: (*resolver).byName},
}

func fullPathInput(key string) string {
	if filepath.IsAbs(key) {
		return key
	}
	return ""
}

func nameWithExtensionInput(key string) string {
	if name := baseName(key); extension(name) != "" {
		return name
	}
	return ""
}

func nameInput(key string) string {
	return stem(baseName(key))
}

// resolver matches identifiers against one scope's registration store
type resolver struct {
	dir  string
	open func(create bool) (platform.Store, error)
}

// identify runs every strategy against the store. A font that is not
// installed yields nil without error.
func (r *resolver) identify(nameOrPath string, accept matchFilter) (*FontIdentification, error) {
	key := NormalizePath(nameOrPath)
	entries, err := r.load()
	if err != nil {
		return nil, err
	}
	for _, s := range strategies {
		input := s.input(key)
		if input == "" {
			continue
		}
		id, err := s.match(r, entries, input, accept)
		if err != nil || id != nil {
			return id, err
		}
	}
	return nil, nil
}

// load reads the store in enumeration order. A store that was never created
// reads as empty; entries with blank values are skipped.
func (r *resolver) load() ([]storeEntry, error) {
	store, err := r.open(false)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, newError(KindStoreAccessFailure, "", err)
	}
	defer store.Close()

	names, err := store.ValueNames()
	if err != nil {
		return nil, newError(KindStoreAccessFailure, "", err)
	}

	entries := make([]storeEntry, 0, len(names))
	for _, name := range names {
		value, err := store.GetValue(name)
		if errors.Is(err, platform.ErrValueNotFound) {
			continue
		}
		if err != nil {
			return nil, newError(KindStoreAccessFailure, name, err)
		}
		if strings.TrimSpace(value) == "" {
			continue
		}
		entries = append(entries, storeEntry{name: name, value: value})
	}
	return entries, nil
}

// byFullPath matches entries whose value resolves to exactly path
func (r *resolver) byFullPath(entries []storeEntry, path string, accept matchFilter) (*FontIdentification, error) {
	var found []*FontIdentification
	for _, e := range entries {
		id := r.identification(e)
		if samePath(id.FontPath, path) && accept.allows(id) {
			found = append(found, id)
		}
	}
	return pick(path, found)
}

// byNameWithExtension matches a file name such as "Foo.otf" against values
// stored as "Foo.otf", "Foo", or the file's path inside the managed directory.
func (r *resolver) byNameWithExtension(entries []storeEntry, name string, accept matchFilter) (*FontIdentification, error) {
	fileStem := stem(name)
	qualified := NormalizePath(filepath.Join(r.dir, name))

	var found []*FontIdentification
	for _, e := range entries {
		raw := NormalizePath(strings.TrimSpace(e.value))
		id := r.identification(e)
		matched := samePath(raw, name) || samePath(raw, fileStem) || samePath(id.FontPath, qualified)
		if matched && accept.allows(id) {
			found = append(found, id)
		}
	}
	return pick(name, found)
}

// byName matches display names case-insensitively. Exact matches win over
// names that only add an OS decoration such as " (OpenType)".
func (r *resolver) byName(entries []storeEntry, name string, accept matchFilter) (*FontIdentification, error) {
	if strings.TrimSpace(name) == "" {
		return nil, nil
	}
	want := foldName(name)

	var exact, decorated []*FontIdentification
	for _, e := range entries {
		got := foldName(e.name)
		switch {
		case got == want:
			if id := r.identification(e); accept.allows(id) {
				exact = append(exact, id)
			}
		case strings.HasPrefix(got, want+" ("):
			if id := r.identification(e); accept.allows(id) {
				decorated = append(decorated, id)
			}
		}
	}
	if len(exact) > 0 {
		return pick(name, exact)
	}
	return pick(name, decorated)
}

func (r *resolver) identification(e storeEntry) *FontIdentification {
	p := r.resolveValue(e.value)
	return &FontIdentification{
		FontPath:          p,
		FontExtension:     strings.ToLower(extension(p)),
		RegistryValueName: e.name,
		RegistryRawValue:  e.value,
	}
}

// resolveValue turns a stored value into an absolute path; bare file names
// live in the managed directory.
func (r *resolver) resolveValue(raw string) string {
	v := separators.Replace(strings.TrimSpace(raw))
	if !filepath.IsAbs(v) {
		v = filepath.Join(r.dir, v)
	}
	return NormalizePath(v)
}

func pick(font string, found []*FontIdentification) (*FontIdentification, error) {
	switch len(found) {
	case 0:
		return nil, nil
	case 1:
		return found[0], nil
	default:
		names := make([]string, 0, len(found))
		for _, id := range found {
			names = append(names, id.RegistryValueName)
		}
		return nil, ambiguousError(font, names)
	}
}
