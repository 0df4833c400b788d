package tarball

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"pbench/internal/indexing"
	"pbench/internal/templates"
	"pbench/internal/workitem"
)

// DocumentNamespace seeds the name-based document ids.
var DocumentNamespace = uuid.MustParse("6f1d8b52-5a4e-4c39-9d1b-3c0e6a7f2b10")

// maxToolContent bounds the tool-data file content copied into a document.
const maxToolContent = 64 * 1024

// FileMetadata describes the tarball file itself.
type FileMetadata struct {
	ControllerDir string `json:"controller_dir"`
	MD5           string `json:"md5"`
	FileName      string `json:"file-name"`
	FileSize      int64  `json:"file-size"`
}

// RunInfo is the run section of a run document.
type RunInfo struct {
	ID         string    `json:"id"`
	Controller string    `json:"controller"`
	Name       string    `json:"name"`
	Script     string    `json:"script"`
	Config     string    `json:"config,omitempty"`
	User       string    `json:"user,omitempty"`
	Date       time.Time `json:"date"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end,omitzero"`
}

// RunDocument summarizes one tarball.
type RunDocument struct {
	Timestamp time.Time                    `json:"@timestamp"`
	File      FileMetadata                 `json:"@metadata"`
	Run       RunInfo                      `json:"run"`
	Hosts     []string                     `json:"host_tools_info,omitempty"`
	Sections  map[string]map[string]string `json:"sections"`
}

// TOCDocument describes one archive member.
type TOCDocument struct {
	Timestamp time.Time `json:"@timestamp"`
	Parent    string    `json:"parent"`
	Directory string    `json:"directory"`
	Name      string    `json:"name"`
	Size      int64     `json:"size"`
	Mode      string    `json:"mode"`
	ModTime   time.Time `json:"mtime"`
	Type      string    `json:"type"`
	LinkPath  string    `json:"linkpath,omitempty"`
}

// ToolDocument carries one file collected by a tool.
type ToolDocument struct {
	Timestamp time.Time `json:"@timestamp"`
	RunID     string    `json:"run_id"`
	Iteration string    `json:"iteration,omitempty"`
	Sample    string    `json:"sample,omitempty"`
	Host      string    `json:"host"`
	Tool      string    `json:"tool"`
	Path      string    `json:"path"`
	Size      int64     `json:"size"`
	Content   string    `json:"content,omitempty"`
}

// DocumentID derives the stable id of a document from the tarball checksum
// and the member it describes ("" for the run itself).
func DocumentID(md5sum, member string) string {
	return uuid.NewSHA1(DocumentNamespace, []byte(md5sum+"/"+member)).String()
}

// RunActions yields the run document followed by one table-of-contents
// document per archive member.
func (tb *Tarball) RunActions(prefix string) iter.Seq2[indexing.Action, error] {
	return func(yield func(indexing.Action, error) bool) {
		start := tb.Metadata.Start
		run := indexing.Action{
			Index:  templates.IndexName(prefix, templates.Run, start),
			ID:     DocumentID(tb.MD5, ""),
			Source: tb.runDocument(),
		}
		if !yield(run, nil) {
			return
		}

		tocIndex := templates.IndexName(prefix, templates.TOC, start)
		for _, member := range tb.Members {
			if member.Name == "" {
				continue
			}
			dir, name := splitMember(member.Name)
			doc := TOCDocument{
				Timestamp: start,
				Parent:    tb.MD5,
				Directory: dir,
				Name:      name,
				Size:      member.Size,
				Mode:      fmt.Sprintf("%#o", member.Mode.Perm()),
				ModTime:   member.ModTime,
				Type:      member.Type,
				LinkPath:  member.LinkName,
			}
			if !yield(indexing.Action{Index: tocIndex, ID: DocumentID(tb.MD5, member.Name), Source: doc}, nil) {
				return
			}
		}
	}
}

// ToolDataActions streams the archive again and yields one document per
// regular file below a tools-* directory.
func (tb *Tarball) ToolDataActions(ctx context.Context, prefix string) iter.Seq2[indexing.Action, error] {
	return func(yield func(indexing.Action, error) bool) {
		index := templates.IndexName(prefix, templates.ToolData, tb.Metadata.Start)
		stopped := false
		err := walk(ctx, tb.Path, tb.Name, func(header *tar.Header, member string, body io.Reader) error {
			if header.Typeflag != tar.TypeReg {
				return nil
			}
			doc, ok := toolDocument(member)
			if !ok {
				return nil
			}
			content, err := readContent(body, header.Size)
			if err != nil {
				return workitem.Wrap(workitem.ErrUnpack, "read member", member, err)
			}
			doc.Timestamp = tb.Metadata.Start
			doc.RunID = tb.MD5
			doc.Size = header.Size
			doc.Content = content
			if !yield(indexing.Action{Index: index, ID: DocumentID(tb.MD5, member), Source: doc}, nil) {
				stopped = true
				return errStop
			}
			return nil
		})
		if err != nil && !stopped {
			yield(indexing.Action{}, err)
		}
	}
}

var errStop = errors.New("stop iteration")

func (tb *Tarball) runDocument() RunDocument {
	return RunDocument{
		Timestamp: tb.Metadata.Start,
		File: FileMetadata{
			ControllerDir: tb.Controller,
			MD5:           tb.MD5,
			FileName:      tb.Name + Suffix,
			FileSize:      tb.Size,
		},
		Run: RunInfo{
			ID:         tb.MD5,
			Controller: tb.Metadata.Controller,
			Name:       tb.Metadata.Name,
			Script:     tb.Metadata.Script,
			Config:     tb.Metadata.Config,
			User:       tb.Metadata.User,
			Date:       tb.Metadata.Date,
			Start:      tb.Metadata.Start,
			End:        tb.Metadata.End,
		},
		Hosts:    tb.Metadata.Hosts,
		Sections: tb.Metadata.Sections,
	}
}

func splitMember(member string) (dir, name string) {
	idx := strings.LastIndex(member, "/")
	if idx < 0 {
		return "/", member
	}
	return "/" + member[:idx], member[idx+1:]
}

// toolDocument recognizes <iteration>/<sample>/tools-<group>/<host>/<tool>/...
// and fills in the location fields.
func toolDocument(member string) (ToolDocument, bool) {
	parts := strings.Split(member, "/")
	for i, part := range parts {
		if !strings.HasPrefix(part, "tools-") {
			continue
		}
		if len(parts) < i+4 {
			return ToolDocument{}, false
		}
		doc := ToolDocument{Host: parts[i+1], Tool: parts[i+2], Path: member}
		if i >= 1 {
			doc.Sample = parts[i-1]
		}
		if i >= 2 {
			doc.Iteration = parts[i-2]
		}
		return doc, true
	}
	return ToolDocument{}, false
}

func readContent(body io.Reader, size int64) (string, error) {
	data, err := io.ReadAll(io.LimitReader(body, maxToolContent))
	if err != nil {
		return "", err
	}
	if size > maxToolContent || !utf8.Valid(data) {
		return "", nil
	}
	return string(data), nil
}

// Extractor opens tarballs and produces their action sequences.
type Extractor struct {
	// Prefix is the index name prefix.
	Prefix string
}

// Extract opens the tarball at target and returns its run-data actions, or its
// tool-data actions when toolData is set.
func (e Extractor) Extract(ctx context.Context, target, controller, extractRoot string, toolData bool) (iter.Seq2[indexing.Action, error], error) {
	tb, err := Open(ctx, target, controller, extractRoot)
	if err != nil {
		return nil, err
	}
	if toolData {
		return tb.ToolDataActions(ctx, e.Prefix), nil
	}
	return tb.RunActions(e.Prefix), nil
}
