package fm

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/logandonley/fontreg/internal/platform"
)

// Uninstall removes a font given any identifier form: a path inside or outside
// the managed directory, a file name with or without extension, or the display
// name it is registered under.
//
// Uninstalling a font that is not installed is not an error; the result
// reports OutcomeNotFound. The font file is deleted only when it lies inside
// the managed directory. Fonts installed by reference keep their file.
func (i *Installer) Uninstall(nameOrPath string) (Result, error) {
	key := NormalizePath(nameOrPath)
	res := Result{Font: baseName(key)}

	err := i.uninstallFrom(&res, key)
	res.Err = err
	i.observe("uninstall", res)

	switch {
	case err != nil:
		i.logger.Error("font uninstall failed", "font", res.Font, "error", err)
	case res.Outcome == OutcomeNotFound:
		i.logger.Info("font not found", "font", res.Font)
	default:
		i.logger.Info("font uninstalled", "font", res.Font, "path", res.Identification.FontPath)
	}
	return res, err
}

func (i *Installer) uninstallFrom(res *Result, key string) error {
	if err := i.ensureStore(); err != nil {
		return err
	}

	entries, err := i.resolver.load()
	if err != nil {
		return err
	}

	var id *FontIdentification
	name := key
	if filepath.IsAbs(key) {
		id, err = i.resolver.byFullPath(entries, key, nil)
		if err != nil {
			return err
		}
		// An unregistered path, inside the managed directory or not, is only
		// ever used for its last element
		if id == nil {
			i.logger.Debug("path not registered, matching by file name",
				"path", key, "managed", withinDir(i.dir, key))
			name = filepath.Base(key)
		}
	}

	fileName := name
	if id == nil {
		id, fileName, err = i.identifyByName(entries, name)
		if err != nil {
			return err
		}
	}

	if id == nil {
		orphan, err := i.cleanupOrphan(fileName)
		if err != nil {
			return err
		}
		if orphan == nil {
			res.Outcome = OutcomeNotFound
			return nil
		}
		res.Identification = orphan
		res.Outcome = OutcomeUninstalled
		i.platform.NotifyFontChange()
		return nil
	}
	res.Identification = id

	if !isSupported(id.FontExtension) {
		i.logger.Warn("unsupported font type identified", "font", res.Font, "extension", id.FontExtension)
	}

	// The registrar usually clears stale registrations itself, so the store
	// and file cleanup below runs even when this fails
	if err := i.platform.RemoveFontResource(id.FontPath); err != nil {
		i.logger.Warn("failed to remove font resource", "font", res.Font, "error", err)
	}

	err = i.withStore(res.Font, func(store platform.Store) error {
		err := store.DeleteValue(id.RegistryValueName)
		if err != nil && !errors.Is(err, platform.ErrValueNotFound) {
			return newError(KindStoreAccessFailure, res.Font, err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	switch {
	case !withinDir(i.dir, id.FontPath):
		i.logger.Debug("font installed by reference, keeping file", "font", res.Font, "path", id.FontPath)
	case !fileExists(id.FontPath):
		i.logger.Info("font file not found", "font", res.Font, "path", id.FontPath)
	default:
		if err := i.deleteFile(id.FontPath); err != nil {
			return newError(KindDeleteFailure, res.Font, err)
		}
	}

	i.platform.NotifyFontChange()
	res.Outcome = OutcomeUninstalled
	return nil
}

// identifyByName resolves a bare identifier. Without an extension, font files
// of that stem in the managed directory pick the extension; more than one is
// ambiguous. It also returns the file name a degraded cleanup should look for.
func (i *Installer) identifyByName(entries []storeEntry, name string) (*FontIdentification, string, error) {
	if extension(name) == "" {
		found := i.probeExtensions(name)
		if len(found) > 1 {
			return nil, name, newError(KindAmbiguousMatch, name,
				fmt.Errorf("font files exist with extensions %s; specify the extension", strings.Join(found, ", ")))
		}
		if len(found) == 0 {
			id, err := i.resolver.byName(entries, name, nil)
			return id, name, err
		}
		name += strings.ToLower(found[0])
	}

	id, err := i.resolver.byNameWithExtension(entries, name, nil)
	if err != nil || id != nil {
		return id, name, err
	}
	id, err = i.resolver.byName(entries, stem(name), nil)
	return id, name, err
}

// probeExtensions lists the extensions, as spelled on disk, of the font
// files named fileStem in the managed directory
func (i *Installer) probeExtensions(fileStem string) []string {
	var found []string
	for _, name := range i.dirFonts() {
		if stem(name) == fileStem {
			found = append(found, extension(name))
		}
	}
	return found
}

// locateInDir returns the file in the managed directory called fileName,
// matching the extension case-insensitively
func (i *Installer) locateInDir(fileName string) (string, bool) {
	if p := filepath.Join(i.dir, fileName); fileExists(p) {
		return p, true
	}
	ext := extension(fileName)
	if ext == "" {
		return "", false
	}
	for _, name := range i.dirFonts() {
		if stem(name) == stem(fileName) && strings.EqualFold(extension(name), ext) {
			return filepath.Join(i.dir, name), true
		}
	}
	return "", false
}

// dirFonts lists the supported font files directly in the managed directory
func (i *Installer) dirFonts() []string {
	entries, err := os.ReadDir(i.dir)
	if err != nil {
		i.logger.Debug("cannot read font directory", "path", i.dir, "error", err)
		return nil
	}
	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() && isFontFile(e.Name()) {
			names = append(names, e.Name())
		}
	}
	return names
}

// cleanupOrphan deletes a font file that sits directly in the managed
// directory without a registration, repairing a store that fell out of sync
// with the directory.
func (i *Installer) cleanupOrphan(fileName string) (*FontIdentification, error) {
	if !i.orphanCleanup || fileName == "" || strings.ContainsAny(fileName, `/\`) {
		return nil, nil
	}
	p, ok := i.locateInDir(fileName)
	if !ok {
		return nil, nil
	}

	id := &FontIdentification{
		FontPath:      p,
		FontExtension: strings.ToLower(extension(p)),
	}
	if err := i.platform.RemoveFontResource(p); err != nil {
		i.logger.Debug("failed to remove unregistered font resource", "font", fileName, "error", err)
	}
	if err := i.deleteFile(p); err != nil {
		return id, newError(KindDeleteFailure, fileName, err)
	}
	i.logger.Info("removed unregistered font file", "font", fileName)
	return id, nil
}

func fileExists(p string) bool {
	info, err := os.Stat(p)
	return err == nil && info.Mode().IsRegular()
}
