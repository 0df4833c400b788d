package tarball

import (
	"archive/tar"
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/ulikunitz/xz"

	"pbench/internal/fileutil"
	"pbench/internal/workitem"
)

// Suffix is the only supported tarball extension.
const Suffix = ".tar.xz"

const metadataFile = "metadata.log"

// Member describes one archive entry.
type Member struct {
	// Name is the entry path relative to the tarball's top-level directory.
	Name     string
	Size     int64
	Mode     os.FileMode
	ModTime  time.Time
	Type     string
	LinkName string
}

// Tarball is an opened, validated result tarball.
type Tarball struct {
	Path       string
	Name       string
	Controller string
	MD5        string
	Size       int64
	Metadata   Metadata
	Members    []Member
	// MetadataPath is where metadata.log was extracted.
	MetadataPath string
}

// Open validates the tarball at path, owned by controller, and extracts its
// metadata.log below extractRoot.
func Open(ctx context.Context, tarballPath, controller, extractRoot string) (*Tarball, error) {
	base := filepath.Base(tarballPath)
	name, ok := strings.CutSuffix(base, Suffix)
	if !ok || name == "" {
		return nil, workitem.Wrap(workitem.ErrUnsupportedFormat, "open tarball", fmt.Sprintf("%s is not a %s archive", base, Suffix), nil)
	}

	info, err := os.Stat(tarballPath)
	if err != nil {
		return nil, workitem.Wrap(workitem.ErrMissingFile, "open tarball", tarballPath, err)
	}
	md5sum, err := fileutil.ReadChecksum(tarballPath + ".md5")
	if err != nil {
		return nil, workitem.Wrap(workitem.ErrMissingFile, "read checksum", tarballPath+".md5", err)
	}

	tb := &Tarball{
		Path:       tarballPath,
		Name:       name,
		Controller: controller,
		MD5:        md5sum,
		Size:       info.Size(),
	}

	var metadata []byte
	err = walk(ctx, tarballPath, name, func(header *tar.Header, member string, body io.Reader) error {
		tb.Members = append(tb.Members, memberFrom(header, member))
		if member != metadataFile || header.Typeflag != tar.TypeReg {
			return nil
		}
		data, err := io.ReadAll(body)
		if err != nil {
			return workitem.Wrap(workitem.ErrUnpack, "read member", metadataFile, err)
		}
		metadata = data
		return nil
	})
	if err != nil {
		return nil, err
	}
	if metadata == nil {
		return nil, workitem.Wrap(workitem.ErrMissingFile, "open tarball", fmt.Sprintf("%s/%s not found in archive", name, metadataFile), nil)
	}

	tb.Metadata, err = ParseMetadata(metadata)
	if err != nil {
		return nil, err
	}
	if tb.Metadata.Name != name {
		return nil, workitem.Wrap(workitem.ErrBadMetadata, "check metadata",
			fmt.Sprintf("run name %q does not match tarball %q", tb.Metadata.Name, name), nil)
	}

	if extractRoot != "" {
		dir := filepath.Join(extractRoot, name)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create extract dir: %w", err)
		}
		tb.MetadataPath = filepath.Join(dir, metadataFile)
		if err := os.WriteFile(tb.MetadataPath, metadata, 0o644); err != nil {
			return nil, fmt.Errorf("extract %s: %w", metadataFile, err)
		}
	}
	return tb, nil
}

// walk streams every member of the archive to fn. Members must sit below the
// top-level directory name; member is the path relative to it, or "" for the
// directory itself.
func walk(ctx context.Context, tarballPath, name string, fn func(header *tar.Header, member string, body io.Reader) error) error {
	f, err := os.Open(tarballPath)
	if err != nil {
		return workitem.Wrap(workitem.ErrMissingFile, "open tarball", tarballPath, err)
	}
	defer f.Close()

	xzr, err := xz.NewReader(bufio.NewReader(f))
	if err != nil {
		return workitem.Wrap(workitem.ErrUnpack, "decompress", filepath.Base(tarballPath), err)
	}
	tr := tar.NewReader(xzr)
	entries := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		header, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return workitem.Wrap(workitem.ErrUnpack, "read archive", filepath.Base(tarballPath), err)
		}
		entries++

		clean := strings.TrimPrefix(path.Clean(strings.TrimPrefix(header.Name, "./")), "/")
		member, inside := memberPath(clean, name)
		if !inside {
			return workitem.Wrap(workitem.ErrUnsupportedFormat, "read archive",
				fmt.Sprintf("member %q is outside top-level directory %q", header.Name, name), nil)
		}
		if err := fn(header, member, tr); err != nil {
			return err
		}
	}
	if entries == 0 {
		return workitem.Wrap(workitem.ErrUnsupportedFormat, "read archive", "archive has no members", nil)
	}
	return nil
}

func memberPath(clean, name string) (string, bool) {
	if clean == name {
		return "", true
	}
	rest, ok := strings.CutPrefix(clean, name+"/")
	if !ok || rest == "" || rest == ".." || strings.HasPrefix(rest, "../") {
		return "", false
	}
	return rest, true
}

func memberFrom(header *tar.Header, member string) Member {
	return Member{
		Name:     member,
		Size:     header.Size,
		Mode:     header.FileInfo().Mode(),
		ModTime:  header.ModTime.UTC(),
		Type:     memberType(header.Typeflag),
		LinkName: header.Linkname,
	}
}

func memberType(flag byte) string {
	switch flag {
	case tar.TypeReg:
		return "file"
	case tar.TypeDir:
		return "dir"
	case tar.TypeSymlink:
		return "symlink"
	case tar.TypeLink:
		return "hardlink"
	default:
		return "other"
	}
}
