package testsupport

import (
	"os"
	"path/filepath"
	"testing"
)

// Archive builds a controller/state tree under an archive root.
type Archive struct {
	t    testing.TB
	Root string
}

// NewArchive wraps root, which must already exist.
func NewArchive(t testing.TB, root string) *Archive {
	t.Helper()
	return &Archive{t: t, Root: root}
}

// ControllerDir returns <root>/<controller>, creating it.
func (a *Archive) ControllerDir(controller string) string {
	a.t.Helper()
	dir := filepath.Join(a.Root, controller)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		a.t.Fatalf("mkdir %s: %v", dir, err)
	}
	return dir
}

// AddTarball writes a valid tarball under the controller and queues it in state.
// It returns the queued link path.
func (a *Archive) AddTarball(controller, state, name string, opts ...TarballOption) string {
	a.t.Helper()
	target := WriteTarball(a.t, a.ControllerDir(controller), name, opts...)
	return a.Link(controller, state, target)
}

// AddCorruptTarball writes an undecodable tarball and queues it in state.
func (a *Archive) AddCorruptTarball(controller, state, name string) string {
	a.t.Helper()
	target := WriteCorruptTarball(a.t, a.ControllerDir(controller), name)
	return a.Link(controller, state, target)
}

// Link creates <root>/<controller>/<state>/<base(target)> pointing at target.
func (a *Archive) Link(controller, state, target string) string {
	a.t.Helper()
	dir := filepath.Join(a.ControllerDir(controller), state)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		a.t.Fatalf("mkdir %s: %v", dir, err)
	}
	link := filepath.Join(dir, filepath.Base(target))
	if err := os.Symlink(target, link); err != nil {
		a.t.Fatalf("symlink %s: %v", link, err)
	}
	return link
}

// Entries lists the names in <root>/<controller>/<state>; missing dirs yield nil.
func (a *Archive) Entries(controller, state string) []string {
	a.t.Helper()
	entries, err := os.ReadDir(filepath.Join(a.Root, controller, state))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		a.t.Fatalf("read %s/%s: %v", controller, state, err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	return names
}
