package workflow

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrDestinationExists is returned when a move would replace an existing entry.
var ErrDestinationExists = errors.New("destination already exists")

// Move renames the symlink at link into destDir, keeping its base name, and
// returns the new path. destDir is created when missing. The link itself is
// moved, never its target. An existing entry at the destination is never
// replaced; ErrDestinationExists is returned instead.
func Move(link, destDir string) (string, error) {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", fmt.Errorf("create %s: %w", destDir, err)
	}
	dest := filepath.Join(destDir, filepath.Base(link))
	if err := renameNoReplace(link, dest); err != nil {
		if errors.Is(err, os.ErrExist) {
			return "", fmt.Errorf("%w: move %s to %s", ErrDestinationExists, link, dest)
		}
		return "", fmt.Errorf("move %s to %s: %w", link, dest, err)
	}
	return dest, nil
}

// MoveToState moves link into the sibling state directory under controllerDir.
func MoveToState(link, controllerDir string, state State) (string, error) {
	return Move(link, filepath.Join(controllerDir, state.String()))
}
