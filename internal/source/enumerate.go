// Package source enumerates ingestible files under a data root.
package source

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// List returns the absolute paths of all files under root (recursing through
// subdirectories) whose name ends with ext (e.g. ".json").
//
// The result is sorted so repeated runs enumerate files in a stable order.
// A missing root or a root with no matches yields an empty slice, not an
// error: an empty data directory is a normal state for this pipeline.
func List(root, ext string) ([]string, error) {
	if _, err := os.Stat(root); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("source: stat %s: %w", root, err)
	}

	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if !strings.HasSuffix(d.Name(), ext) {
			return nil
		}
		abs, err := filepath.Abs(path)
		if err != nil {
			return err
		}
		files = append(files, abs)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("source: walk %s: %w", root, err)
	}

	sort.Strings(files)
	return files, nil
}
