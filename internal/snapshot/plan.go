package snapshot

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// captureSuffix marks a screenshot file: <screen>-actual.<ext>.
const captureSuffix = "-actual"

// imageExts lists decodable extensions in lookup preference order.
var imageExts = []string{".png", ".jpg", ".jpeg", ".webp", ".bmp", ".gif", ".tif", ".tiff"}

func isImageExt(ext string) bool {
	ext = strings.ToLower(ext)
	for _, e := range imageExts {
		if e == ext {
			return true
		}
	}
	return false
}

// ScreenNameFromCapture extracts the screen name from a capture file name
// following the <screen>-actual.<ext> convention.
func ScreenNameFromCapture(filename string) (string, bool) {
	ext := filepath.Ext(filename)
	if !isImageExt(ext) {
		return "", false
	}
	name, ok := strings.CutSuffix(strings.TrimSuffix(filename, ext), captureSuffix)
	if !ok || name == "" {
		return "", false
	}
	return name, true
}

// PlanScreens pairs the captures in captureDir with prototypes in
// referenceDir. Prototypes come from mapping (screen -> file, relative to
// referenceDir unless absolute) or from <screen>.<ext> in referenceDir.
// Prototypes that were never captured are planned with an empty ActualPath
// so they show up as missing captures instead of disappearing.
// Jobs are sorted by screen name.
func PlanScreens(captureDir, referenceDir string, mapping map[string]string) ([]ScreenJob, error) {
	entries, err := os.ReadDir(captureDir)
	if err != nil {
		return nil, fmt.Errorf("read captures %s: %w", captureDir, err)
	}

	prototypes, err := listPrototypes(referenceDir)
	if err != nil {
		return nil, err
	}
	mapped := make(map[string]struct{}, len(mapping))
	for screen, file := range mapping {
		if !filepath.IsAbs(file) {
			file = filepath.Join(referenceDir, file)
		}
		mapped[file] = struct{}{}
		prototypes[screen] = file
	}
	// a mapped prototype belongs to its mapped screen only
	for screen, file := range prototypes {
		if _, ok := mapping[screen]; ok {
			continue
		}
		if _, ok := mapped[file]; ok {
			delete(prototypes, screen)
		}
	}

	jobs := make(map[string]ScreenJob)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		screen, ok := ScreenNameFromCapture(entry.Name())
		if !ok {
			continue
		}
		if prev, dup := jobs[screen]; dup {
			return nil, fmt.Errorf("%w: %q captured as %s and %s",
				ErrDuplicateScreen, screen, filepath.Base(prev.ActualPath), entry.Name())
		}

		ref, ok := prototypes[screen]
		if !ok {
			// expected location, reported as a missing baseline when compared
			ref = filepath.Join(referenceDir, screen+".png")
		}
		jobs[screen] = ScreenJob{
			Name:          screen,
			ActualPath:    filepath.Join(captureDir, entry.Name()),
			ReferencePath: ref,
		}
	}

	for screen, ref := range prototypes {
		if _, ok := jobs[screen]; !ok {
			jobs[screen] = ScreenJob{Name: screen, ReferencePath: ref}
		}
	}

	out := make([]ScreenJob, 0, len(jobs))
	for _, job := range jobs {
		out = append(out, job)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Name < out[j].Name
	})

	return out, nil
}

// listPrototypes maps screen name to prototype path for every image in dir.
// When several formats exist for one screen the preferred extension wins.
func listPrototypes(dir string) (map[string]string, error) {
	found := make(map[string]string)
	if dir == "" {
		return found, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return found, nil
		}
		return nil, fmt.Errorf("read prototypes %s: %w", dir, err)
	}

	rank := func(path string) int {
		ext := strings.ToLower(filepath.Ext(path))
		for i, e := range imageExts {
			if e == ext {
				return i
			}
		}
		return len(imageExts)
	}

	for _, entry := range entries {
		if entry.IsDir() || !isImageExt(filepath.Ext(entry.Name())) {
			continue
		}
		screen := strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name()))
		if strings.HasSuffix(screen, captureSuffix) {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if prev, ok := found[screen]; ok && rank(prev) <= rank(path) {
			continue
		}
		found[screen] = path
	}

	return found, nil
}
