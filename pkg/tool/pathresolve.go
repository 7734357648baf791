package tool

import (
	"os"
	"path/filepath"
)

// resolveSymlinks returns the absolute, symlink-resolved form of path
// (spec.md §4.4 step 3: "Symlink resolution is performed before the
// check"). Since a write target frequently does not exist yet, this walks
// up from path to the nearest existing ancestor, resolves that ancestor's
// symlinks, and rejoins the non-existent suffix — so a not-yet-created
// file under a symlinked directory is still checked against the symlink's
// real target, not its apparent location.
func resolveSymlinks(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}

	var suffix []string
	cur := abs
	for {
		if _, err := os.Lstat(cur); err == nil {
			break
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			break
		}
		suffix = append([]string{filepath.Base(cur)}, suffix...)
		cur = parent
	}

	resolved, err := filepath.EvalSymlinks(cur)
	if err != nil {
		return "", err
	}
	for _, seg := range suffix {
		resolved = filepath.Join(resolved, seg)
	}
	return resolved, nil
}
