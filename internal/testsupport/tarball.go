package testsupport

import (
	"archive/tar"
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/ulikunitz/xz"
)

// DefaultController is the host name written into generated metadata.log files.
const DefaultController = "hosta.example.com"

// TarballOption customizes a generated tarball.
type TarballOption func(*tarballSpec)

type tarballSpec struct {
	metadata   *string
	files      map[string]string
	padding    int
	controller string
	topDir     string
}

// WithMetadata replaces the generated metadata.log content.
func WithMetadata(content string) TarballOption {
	return func(s *tarballSpec) { s.metadata = &content }
}

// WithoutMetadata omits metadata.log from the archive.
func WithoutMetadata() TarballOption {
	empty := ""
	return func(s *tarballSpec) { s.metadata = &empty }
}

// WithFile adds a member at rel (relative to the top-level directory).
func WithFile(rel, content string) TarballOption {
	return func(s *tarballSpec) { s.files[rel] = content }
}

// WithPadding adds a member of n incompressible-ish bytes to grow the tarball.
func WithPadding(n int) TarballOption {
	return func(s *tarballSpec) { s.padding = n }
}

// WithMetadataController sets the [run] controller of the generated metadata.
func WithMetadataController(host string) TarballOption {
	return func(s *tarballSpec) { s.controller = host }
}

// WithTopDir stores members below dir instead of the tarball name.
func WithTopDir(dir string) TarballOption {
	return func(s *tarballSpec) { s.topDir = dir }
}

// Metadata renders a valid metadata.log for run name.
func Metadata(name, controller string) string {
	return fmt.Sprintf(`[pbench]
name = %s
script = fio
config = ci
date = 2024-03-01T12:00:00

[run]
controller = %s
start_run = 2024-03-01T12:00:00.123456
end_run = 2024-03-01T12:10:00.654321

[tools]
hosts = %s
group = default
`, name, controller, controller)
}

// WriteTarball writes <dir>/<name>.tar.xz and its .md5 file and returns the
// tarball path.
func WriteTarball(t testing.TB, dir, name string, opts ...TarballOption) string {
	t.Helper()

	spec := &tarballSpec{files: map[string]string{}, controller: DefaultController, topDir: name}
	for _, opt := range opts {
		opt(spec)
	}
	metadata := Metadata(name, spec.controller)
	if spec.metadata != nil {
		metadata = *spec.metadata
	}
	if metadata != "" {
		spec.files["metadata.log"] = metadata
	}
	if spec.padding > 0 {
		pad := make([]byte, spec.padding)
		var x uint32 = 2463534242
		for i := range pad {
			x ^= x << 13
			x ^= x >> 17
			x ^= x << 5
			pad[i] = byte(x)
		}
		spec.files["padding.bin"] = string(pad)
	}

	var buf bytes.Buffer
	xzw, err := xz.NewWriter(&buf)
	if err != nil {
		t.Fatalf("xz writer: %v", err)
	}
	tw := tar.NewWriter(xzw)
	mtime := time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)
	writeHeader := func(hdr *tar.Header) {
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("tar header %s: %v", hdr.Name, err)
		}
	}
	writeHeader(&tar.Header{Name: spec.topDir + "/", Typeflag: tar.TypeDir, Mode: 0o755, ModTime: mtime})

	names := make([]string, 0, len(spec.files))
	for rel := range spec.files {
		names = append(names, rel)
	}
	sort.Strings(names)
	dirs := map[string]bool{}
	for _, rel := range names {
		for parent := filepath.Dir(rel); parent != "."; parent = filepath.Dir(parent) {
			if dirs[parent] {
				break
			}
			dirs[parent] = true
			writeHeader(&tar.Header{Name: spec.topDir + "/" + parent + "/", Typeflag: tar.TypeDir, Mode: 0o755, ModTime: mtime})
		}
		content := spec.files[rel]
		writeHeader(&tar.Header{Name: spec.topDir + "/" + rel, Typeflag: tar.TypeReg, Mode: 0o644, Size: int64(len(content)), ModTime: mtime})
		if _, err := tw.Write([]byte(content)); err != nil {
			t.Fatalf("tar write %s: %v", rel, err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("tar close: %v", err)
	}
	if err := xzw.Close(); err != nil {
		t.Fatalf("xz close: %v", err)
	}

	return writeWithChecksum(t, filepath.Join(dir, name+".tar.xz"), buf.Bytes())
}

// WriteCorruptTarball writes a .tar.xz whose container cannot be decoded,
// with a matching .md5 file.
func WriteCorruptTarball(t testing.TB, dir, name string) string {
	t.Helper()
	return writeWithChecksum(t, filepath.Join(dir, name+".tar.xz"), []byte("this is not an xz stream"))
}

// WriteSizedFile writes size bytes to path; for ordering tests where the
// content is never opened. A .md5 file is written alongside.
func WriteSizedFile(t testing.TB, path string, size int64) string {
	t.Helper()
	return writeWithChecksum(t, path, bytes.Repeat([]byte{0x42}, int(size)))
}

func writeWithChecksum(t testing.TB, path string, data []byte) string {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	sum := md5.Sum(data)
	line := fmt.Sprintf("%s  %s\n", hex.EncodeToString(sum[:]), filepath.Base(path))
	if err := os.WriteFile(path+".md5", []byte(line), 0o644); err != nil {
		t.Fatalf("write %s.md5: %v", path, err)
	}
	return path
}
