package templates_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"pbench/internal/store"
	"pbench/internal/templates"
)

func TestLoadRendersUnderPrefix(t *testing.T) {
	set, err := templates.Load("pbench")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	var out bytes.Buffer
	if err := set.DumpIndexPatterns(&out); err != nil {
		t.Fatalf("DumpIndexPatterns: %v", err)
	}
	want := []string{
		"pbench.v1.run.*",
		"pbench.v1.toc.*",
		"pbench.v1.tool-data.*",
		"pbench.v1.server-reports.*",
	}
	if diff := cmp.Diff(want, strings.Fields(out.String())); diff != "" {
		t.Fatalf("index patterns mismatch (-want +got):\n%s", diff)
	}
}

func TestDumpTemplatesEmitsJSONBodies(t *testing.T) {
	set, err := templates.Load("ci")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	var out bytes.Buffer
	if err := set.DumpTemplates(&out); err != nil {
		t.Fatalf("DumpTemplates: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != len(set.Templates()) {
		t.Fatalf("expected %d lines, got %d", len(set.Templates()), len(lines))
	}
	name, body, ok := strings.Cut(lines[0], ": ")
	if !ok || name != "ci.v1.run" {
		t.Fatalf("unexpected first line %q", lines[0])
	}
	var decoded struct {
		IndexPatterns []string       `json:"index_patterns"`
		Mappings      map[string]any `json:"mappings"`
	}
	if err := json.Unmarshal([]byte(body), &decoded); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(decoded.IndexPatterns) != 1 || decoded.IndexPatterns[0] != "ci.v1.run.*" || decoded.Mappings["dynamic"] != false {
		t.Fatalf("unexpected body %+v", decoded)
	}
}

func TestParseRejectsBadDefinitions(t *testing.T) {
	cases := map[string]string{
		"not yaml":    "templates: [",
		"empty":       "templates: []",
		"bad name":    "templates:\n  - name: Bad_Name\n    version: 1\n    mappings: {a: 1}\n",
		"no version":  "templates:\n  - name: run\n    mappings: {a: 1}\n",
		"duplicate":   "templates:\n  - name: run\n    version: 1\n    mappings: {a: 1}\n  - name: run\n    version: 1\n    mappings: {a: 1}\n",
		"no mappings": "templates:\n  - name: run\n    version: 1\n",
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := templates.Parse("pbench", []byte(data)); !errors.Is(err, templates.ErrLoad) {
				t.Fatalf("expected ErrLoad, got %v", err)
			}
		})
	}
}

func TestIndexNameUsesMonth(t *testing.T) {
	ts := time.Date(2024, time.March, 31, 23, 30, 0, 0, time.UTC)
	if got := templates.IndexName("pbench", templates.TOC, ts); got != "pbench.v1.toc.2024-03" {
		t.Fatalf("unexpected index name %q", got)
	}
}

func TestUpdateRegistersTemplatesOnce(t *testing.T) {
	s, err := store.OpenPath(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("OpenPath: %v", err)
	}
	defer s.Close()

	set, err := templates.Load("pbench")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	ctx := context.Background()
	changed, err := set.Update(ctx, s)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if changed != len(set.Templates()) {
		t.Fatalf("expected all %d templates registered, got %d", len(set.Templates()), changed)
	}
	changed, err = set.Update(ctx, s)
	if err != nil {
		t.Fatalf("second Update: %v", err)
	}
	if changed != 0 {
		t.Fatalf("expected no changes on second update, got %d", changed)
	}
}

type refusingRegistry struct{}

func (refusingRegistry) PutTemplate(context.Context, store.TemplateRecord) (bool, error) {
	return false, errors.New("backend read-only")
}

func TestUpdateWrapsRefusalInTemplateError(t *testing.T) {
	set, err := templates.Load("pbench")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	_, err = set.Update(context.Background(), refusingRegistry{})
	var tmplErr *templates.TemplateError
	if !errors.As(err, &tmplErr) {
		t.Fatalf("expected TemplateError, got %v", err)
	}
	if tmplErr.Name != "pbench.v1.run" {
		t.Fatalf("unexpected failing template %q", tmplErr.Name)
	}
}
