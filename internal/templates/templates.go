package templates

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed definitions.yaml
var definitionsYAML []byte

// Template names used by the document producers.
const (
	Run           = "run"
	TOC           = "toc"
	ToolData      = "tool-data"
	ServerReports = "server-reports"
)

// Version is the index naming generation.
const Version = "v1"

// ErrLoad marks a failure to load or render the template definitions.
var ErrLoad = errors.New("template load failed")

var namePattern = regexp.MustCompile(`^[a-z][a-z0-9-]*$`)

// Template is one rendered index template.
type Template struct {
	// Name is the short definition name, e.g. "run".
	Name string
	// FullName is <prefix>.v1.<name>.
	FullName string
	// Pattern is the index pattern the template applies to.
	Pattern string
	Version int
	// Body is the JSON template document.
	Body []byte
}

type definitionFile struct {
	Templates []definition `yaml:"templates"`
}

type definition struct {
	Name     string         `yaml:"name"`
	Version  int            `yaml:"version"`
	Settings map[string]any `yaml:"settings"`
	Mappings map[string]any `yaml:"mappings"`
}

type templateBody struct {
	IndexPatterns []string       `json:"index_patterns"`
	Version       int            `json:"version"`
	Settings      map[string]any `json:"settings,omitempty"`
	Mappings      map[string]any `json:"mappings"`
}

// Set is the rendered template collection for one index prefix.
type Set struct {
	prefix    string
	templates []Template
	byName    map[string]Template
}

// Load renders the embedded definitions under prefix.
func Load(prefix string) (*Set, error) {
	return Parse(prefix, definitionsYAML)
}

// Parse renders the YAML definitions in data under prefix.
func Parse(prefix string, data []byte) (*Set, error) {
	if prefix == "" {
		return nil, fmt.Errorf("%w: empty index prefix", ErrLoad)
	}
	var file definitionFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("%w: parse definitions: %w", ErrLoad, err)
	}
	if len(file.Templates) == 0 {
		return nil, fmt.Errorf("%w: no template definitions", ErrLoad)
	}

	set := &Set{prefix: prefix, byName: make(map[string]Template, len(file.Templates))}
	for _, def := range file.Templates {
		if !namePattern.MatchString(def.Name) {
			return nil, fmt.Errorf("%w: invalid template name %q", ErrLoad, def.Name)
		}
		if _, dup := set.byName[def.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate template %q", ErrLoad, def.Name)
		}
		if def.Version <= 0 {
			return nil, fmt.Errorf("%w: template %q has no version", ErrLoad, def.Name)
		}
		if len(def.Mappings) == 0 {
			return nil, fmt.Errorf("%w: template %q has no mappings", ErrLoad, def.Name)
		}

		fullName := fmt.Sprintf("%s.%s.%s", prefix, Version, def.Name)
		pattern := fullName + ".*"
		body, err := json.Marshal(templateBody{
			IndexPatterns: []string{pattern},
			Version:       def.Version,
			Settings:      def.Settings,
			Mappings:      def.Mappings,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: render template %q: %w", ErrLoad, def.Name, err)
		}
		tmpl := Template{Name: def.Name, FullName: fullName, Pattern: pattern, Version: def.Version, Body: body}
		set.templates = append(set.templates, tmpl)
		set.byName[def.Name] = tmpl
	}
	return set, nil
}

// Prefix returns the index prefix the set was rendered under.
func (s *Set) Prefix() string { return s.prefix }

// Templates returns the rendered templates in definition order.
func (s *Set) Templates() []Template {
	out := make([]Template, len(s.templates))
	copy(out, s.templates)
	return out
}

// Lookup returns the template with the given short name.
func (s *Set) Lookup(name string) (Template, bool) {
	tmpl, ok := s.byName[name]
	return tmpl, ok
}

// IndexName returns the monthly index name for template at t.
func IndexName(prefix, template string, t time.Time) string {
	return fmt.Sprintf("%s.%s.%s.%s", prefix, Version, template, t.UTC().Format("2006-01"))
}

// DumpIndexPatterns writes each template's index pattern on its own line.
func (s *Set) DumpIndexPatterns(w io.Writer) error {
	for _, tmpl := range s.templates {
		if _, err := fmt.Fprintln(w, tmpl.Pattern); err != nil {
			return err
		}
	}
	return nil
}

// DumpTemplates writes "<full name>: <json body>" for each template.
func (s *Set) DumpTemplates(w io.Writer) error {
	for _, tmpl := range s.templates {
		if _, err := fmt.Fprintf(w, "%s: %s\n", tmpl.FullName, tmpl.Body); err != nil {
			return err
		}
	}
	return nil
}
