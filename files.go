package imgdate

import (
	"os"
	"path/filepath"
	"regexp"
)

var supported = regexp.MustCompile(`(?i)\.(jpe?g|png|gif|tiff?|bmp)$`)

// IsSupported reports whether name has a recognized image extension.
func IsSupported(name string) bool {
	return supported.MatchString(name)
}

// ListImages returns the names of the image files in dir, sorted by name.
// Subdirectories are not searched.
func ListImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if !e.Type().IsRegular() && e.Type()&os.ModeSymlink == 0 {
			continue
		}
		if IsSupported(e.Name()) {
			files = append(files, e.Name())
		}
	}
	return files, nil
}

// DefaultDir returns the Pictures folder of the user's home directory, or the
// home directory itself when there is none.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	if info, err := os.Stat(filepath.Join(home, "Pictures")); err == nil && info.IsDir() {
		return filepath.Join(home, "Pictures")
	}
	return home
}
