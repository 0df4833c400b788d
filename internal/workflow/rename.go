package workflow

import (
	"errors"
	"io/fs"
	"os"
)

// renameChecked refuses to rename over an existing entry. The check and the
// rename are two steps, so it is only used where renameat2 is unavailable.
func renameChecked(oldpath, newpath string) error {
	if _, err := os.Lstat(newpath); err == nil {
		return os.ErrExist
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return os.Rename(oldpath, newpath)
}
