//go:build !linux

package workflow

func renameNoReplace(oldpath, newpath string) error {
	return renameChecked(oldpath, newpath)
}
