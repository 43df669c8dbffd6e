package fm

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/logandonley/fontreg/internal/platform"
)

// Install copies the font at fontPath into the managed directory, registers
// it with the OS and records it in the registration store.
//
// Installing a font that is already installed succeeds without changes and
// returns the existing identification.
func (i *Installer) Install(fontPath string) (Result, error) {
	return i.install(fontPath, false)
}

// InstallByReference registers the font at fontPath where it is, without
// copying it. Uninstalling such a font removes its registration but never the
// file.
func (i *Installer) InstallByReference(fontPath string) (Result, error) {
	return i.install(fontPath, true)
}

func (i *Installer) install(fontPath string, byReference bool) (Result, error) {
	source := absPath(fontPath)
	res := Result{Font: filepath.Base(source)}

	err := i.installInto(&res, fontPath, source, byReference)
	res.Err = err
	i.observe("install", res)

	switch {
	case err != nil:
		i.logger.Error("font install failed", "font", res.Font, "error", err)
	case res.Outcome == OutcomeAlreadyInstalled:
		i.logger.Info("font already installed", "font", res.Font, "name", res.Identification.RegistryValueName)
	default:
		i.logger.Info("font installed", "font", res.Font, "name", res.Identification.RegistryValueName, "path", res.Identification.FontPath)
	}
	return res, err
}

func (i *Installer) installInto(res *Result, fontPath, source string, byReference bool) error {
	logName := res.Font

	existing, err := i.identifyForInstall(fontPath)
	if err != nil {
		return err
	}
	if existing != nil {
		res.Outcome = OutcomeAlreadyInstalled
		res.Identification = existing
		return nil
	}

	info, err := os.Stat(source)
	if err != nil || info.IsDir() {
		return newError(KindNotFound, logName, fmt.Errorf("font file %s not found", source))
	}

	base := filepath.Base(source)
	fileName := stem(base) + strings.ToLower(extension(base))
	ext := extension(fileName)
	if !isSupported(ext) {
		return newError(KindUnsupportedFormat, logName, fmt.Errorf("extension %q is not one of %s", ext, strings.Join(SupportedExtensions, ", ")))
	}

	if err := i.ensureStore(); err != nil {
		return err
	}

	target := filepath.Join(i.dir, fileName)
	if byReference {
		target = source
	}
	id := &FontIdentification{
		FontPath:          NormalizePath(target),
		FontExtension:     ext,
		RegistryValueName: displayName(fileName),
		RegistryRawValue:  target,
	}
	res.Identification = id

	if len(source) > i.maxPath || len(target) > i.maxPath {
		return newError(KindPathTooLong, logName, fmt.Errorf("font path exceeds %d characters", i.maxPath))
	}

	if err := i.checkNameFree(id); err != nil {
		return err
	}

	if !byReference {
		if err := i.copyFont(source, target); err != nil {
			return newError(KindCopyFailure, logName, err)
		}
	}

	if err := i.platform.AddFontResource(source); err != nil {
		return newError(KindRegistrationFailure, logName, err)
	}

	err = i.withStore(logName, func(store platform.Store) error {
		if err := store.SetValue(id.RegistryValueName, id.RegistryRawValue); err != nil {
			return newError(KindStoreAccessFailure, logName, err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	i.platform.NotifyFontChange()
	res.Outcome = OutcomeInstalled
	return nil
}

// identifyForInstall is the idempotency check. When the caller names a file
// extension, only fonts of that type count as already installed, so Foo.ttf
// is not mistaken for an installed Foo.otf.
func (i *Installer) identifyForInstall(fontPath string) (*FontIdentification, error) {
	ext := strings.ToLower(extension(baseName(NormalizePath(fontPath))))
	var accept matchFilter
	if ext != "" {
		accept = func(id *FontIdentification) bool {
			return id.FontExtension == ext
		}
	}
	return i.resolver.identify(fontPath, accept)
}

// checkNameFree keeps display names unique per scope. An entry under the
// same name pointing elsewhere is never overwritten.
func (i *Installer) checkNameFree(id *FontIdentification) error {
	entries, err := i.resolver.load()
	if err != nil {
		return err
	}
	for _, e := range entries {
		if foldName(e.name) != foldName(id.RegistryValueName) {
			continue
		}
		if samePath(i.resolver.resolveValue(e.value), id.FontPath) {
			return nil
		}
		return newError(KindAmbiguousMatch, id.RegistryValueName,
			fmt.Errorf("display name already registered for %s", e.value))
	}
	return nil
}
