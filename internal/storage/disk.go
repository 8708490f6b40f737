package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
)

// DiskUsageBytes sums the sizes of regular files under paths. Missing and
// empty paths count as zero. A path nested inside another one is counted once,
// so passing both the data dir and a vector store kept inside it is safe.
func DiskUsageBytes(paths ...string) (int64, error) {
	var total int64
	for _, root := range distinctRoots(paths) {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					return nil
				}
				return err
			}
			if !d.Type().IsRegular() {
				return nil
			}
			info, err := d.Info()
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					return nil
				}
				return err
			}
			total += info.Size()
			return nil
		})
		if err != nil {
			return 0, fmt.Errorf("disk usage of %s: %w", root, err)
		}
	}
	return total, nil
}

// distinctRoots cleans paths and drops blanks, duplicates and any path that
// lies under another one in the list.
func distinctRoots(paths []string) []string {
	var roots []string
	for _, p := range paths {
		if p == "" {
			continue
		}
		if abs, err := filepath.Abs(p); err == nil {
			p = abs
		}
		roots = append(roots, filepath.Clean(p))
	}
	var out []string
	for i, p := range roots {
		covered := false
		for j, q := range roots {
			if i == j {
				continue
			}
			if within(p, q) && (p != q || j < i) {
				covered = true
				break
			}
		}
		if !covered {
			out = append(out, p)
		}
	}
	return out
}

func within(path, dir string) bool {
	if path == dir {
		return true
	}
	return strings.HasPrefix(path, dir+string(filepath.Separator))
}
