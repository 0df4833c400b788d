package tarball

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/ini.v1"

	"pbench/internal/workitem"
)

// Metadata is the validated content of metadata.log.
type Metadata struct {
	Name       string
	Script     string
	Config     string
	User       string
	Controller string
	Date       time.Time
	Start      time.Time
	End        time.Time
	// Hosts are the tool hosts named by [tools] hosts, NFC-normalized.
	Hosts []string
	// Sections holds every key of every section verbatim.
	Sections map[string]map[string]string
}

var dateLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02_15:04:05",
	"2006-01-02T15:04:05.999999999Z07:00",
}

// ParseMetadata parses and validates the bytes of a metadata.log file.
func ParseMetadata(data []byte) (Metadata, error) {
	file, err := ini.Load(data)
	if err != nil {
		return Metadata{}, workitem.Wrap(workitem.ErrBadMetadata, "parse metadata.log", "", err)
	}

	pbench, err := requireSection(file, "pbench")
	if err != nil {
		return Metadata{}, err
	}
	run, err := requireSection(file, "run")
	if err != nil {
		return Metadata{}, err
	}

	md := Metadata{
		Name:     pbench.Key("name").String(),
		Script:   pbench.Key("script").String(),
		Config:   pbench.Key("config").String(),
		User:     pbench.Key("user").String(),
		Sections: make(map[string]map[string]string),
	}
	if md.Name == "" || md.Script == "" {
		return Metadata{}, workitem.Wrap(workitem.ErrBadMetadata, "parse metadata.log", "[pbench] requires name and script", nil)
	}

	if md.Date, err = requireDate(pbench, "date"); err != nil {
		return Metadata{}, err
	}
	if md.Start, err = requireDate(run, "start_run"); err != nil {
		return Metadata{}, err
	}
	if run.HasKey("end_run") {
		if md.End, err = requireDate(run, "end_run"); err != nil {
			return Metadata{}, err
		}
		if md.End.Before(md.Start) {
			return Metadata{}, workitem.Wrap(workitem.ErrBadDate, "parse metadata.log", "end_run precedes start_run", nil)
		}
	}

	if !run.HasKey("controller") {
		return Metadata{}, workitem.Wrap(workitem.ErrBadMetadata, "parse metadata.log", "[run] requires controller", nil)
	}
	if md.Controller, err = NormalizeHostname(run.Key("controller").String()); err != nil {
		return Metadata{}, workitem.Wrap(workitem.ErrBadHostname, "parse metadata.log", "[run] controller", err)
	}
	if tools, err := file.GetSection("tools"); err == nil {
		for _, host := range strings.Fields(tools.Key("hosts").String()) {
			normalized, err := NormalizeHostname(host)
			if err != nil {
				return Metadata{}, workitem.Wrap(workitem.ErrBadHostname, "parse metadata.log", "[tools] hosts", err)
			}
			md.Hosts = append(md.Hosts, normalized)
		}
	}

	for _, section := range file.Sections() {
		if section.Name() == ini.DefaultSection && len(section.Keys()) == 0 {
			continue
		}
		md.Sections[section.Name()] = section.KeysHash()
	}
	return md, nil
}

func requireSection(file *ini.File, name string) (*ini.Section, error) {
	section, err := file.GetSection(name)
	if err != nil {
		return nil, workitem.Wrap(workitem.ErrBadMetadata, "parse metadata.log", fmt.Sprintf("missing [%s] section", name), nil)
	}
	return section, nil
}

func requireDate(section *ini.Section, key string) (time.Time, error) {
	value := strings.TrimSpace(section.Key(key).String())
	if value == "" {
		return time.Time{}, workitem.Wrap(workitem.ErrBadMetadata, "parse metadata.log",
			fmt.Sprintf("[%s] %s is missing", section.Name(), key), nil)
	}
	t, err := parseDate(value)
	if err != nil {
		return time.Time{}, workitem.Wrap(workitem.ErrBadDate, "parse metadata.log",
			fmt.Sprintf("[%s] %s", section.Name(), key), err)
	}
	return t, nil
}

func parseDate(value string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", value)
}
