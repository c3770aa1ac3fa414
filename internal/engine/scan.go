package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ListInputFiles returns the regular files directly inside dir whose
// extension matches ext (case-insensitive), sorted by name. Office lock files
// ("~$name.xlsx") are ignored.
func ListInputFiles(dir, ext string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read directory %s: %w", dir, err)
	}

	var files []string
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, "~$") || strings.HasPrefix(name, ".") {
			continue
		}
		if !strings.EqualFold(filepath.Ext(name), ext) {
			continue
		}
		files = append(files, filepath.Join(dir, name))
	}
	sort.Strings(files)
	return files, nil
}
