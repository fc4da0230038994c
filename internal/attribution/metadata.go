package attribution

import (
	"bytes"
	"errors"
	"io/fs"
	"regexp"
	"strings"

	yaml "go.yaml.in/yaml/v3"

	"modlog/internal/loader"
)

// Metadata file names, in probe order.
var (
	MetadataNames       = []string{"plugin.json", "plugin.hjson", "mod.json", "mod.hjson"}
	PluginMetadataNames = []string{"plugin.json", "plugin.hjson"}
)

// Meta is the subset of plugin metadata the facade cares about.
//
// JSON and the brace-less hjson style both decode as YAML once hjson
// comments are removed (see stripComments).
type Meta struct {
	Name        string `yaml:"name"`
	DisplayName string `yaml:"displayName"`
	Author      string `yaml:"author"`
	Description string `yaml:"description"`
	Subtitle    string `yaml:"subtitle"`
	Version     string `yaml:"version"`
	Main        string `yaml:"main"`
}

var colorTag = regexp.MustCompile(`\[(#?[A-Za-z0-9_]*)\]`)

// stripColors removes markup such as "[red]" or "[#ff0000]"; "[[" is a literal "[".
func stripColors(s string) string {
	parts := strings.Split(s, "[[")
	for i, p := range parts {
		parts[i] = colorTag.ReplaceAllString(p, "")
	}
	return strings.Join(parts, "[")
}

// stripComments blanks out hjson "//" and "/* */" comments. A comment starts
// at the beginning of a line or after whitespace, never inside a double-quoted
// string, so values such as http://host survive. Newlines are kept.
func stripComments(b []byte) []byte {
	out := make([]byte, 0, len(b))
	inString := false
	for i := 0; i < len(b); i++ {
		c := b[i]
		if inString {
			out = append(out, c)
			switch c {
			case '\\':
				if i+1 < len(b) {
					i++
					out = append(out, b[i])
				}
			case '"':
				inString = false
			}
			continue
		}
		if c == '/' && i+1 < len(b) && (i == 0 || isSpace(b[i-1])) {
			switch b[i+1] {
			case '/':
				for i < len(b) && b[i] != '\n' {
					i++
				}
				if i < len(b) {
					out = append(out, '\n')
				}
				continue
			case '*':
				end := bytes.Index(b[i+2:], []byte("*/"))
				if end < 0 {
					end = len(b) - i - 2
				}
				block := b[i : i+2+end]
				out = append(out, bytes.Repeat([]byte("\n"), bytes.Count(block, []byte("\n")))...)
				i += 2 + end + 1
				continue
			}
		}
		if c == '"' {
			inString = true
		}
		out = append(out, c)
	}
	return out
}

func isSpace(c byte) bool { return c == ' ' || c == '\t' || c == '\n' || c == '\r' }

func (m *Meta) cleanup() {
	if m.DisplayName == "" {
		m.DisplayName = m.Name
	}
	m.DisplayName = strings.TrimSpace(stripColors(m.DisplayName))
	m.Author = stripColors(m.Author)
	m.Description = stripColors(m.Description)
	m.Subtitle = stripColors(m.Subtitle)
	m.Name = strings.ReplaceAll(strings.ToLower(strings.TrimSpace(m.Name)), " ", "-")
}

// MetadataReader extracts display names from the metadata file bundled in a unit.
// Nothing is cached: every call reads the unit's resources again.
type MetadataReader struct {
	names []string
}

// NewMetadataReader probes names in order; with no names, MetadataNames is used.
func NewMetadataReader(names ...string) *MetadataReader {
	if len(names) == 0 {
		names = MetadataNames
	}
	return &MetadataReader{names: append([]string(nil), names...)}
}

// Read returns the cleaned metadata of the first metadata file found in u.
func (r *MetadataReader) Read(u loader.Unit) (Meta, error) {
	if u == nil {
		return Meta{}, errors.New("nil unit")
	}
	res := u.Resources()
	if res == nil {
		return Meta{}, fs.ErrNotExist
	}
	for _, name := range r.names {
		b, err := fs.ReadFile(res, name)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return Meta{}, err
		}
		var m Meta
		if err := yaml.Unmarshal(stripComments(b), &m); err != nil {
			return Meta{}, err
		}
		if m.Name == "" {
			return Meta{}, errors.New(name + ": missing name")
		}
		m.cleanup()
		return m, nil
	}
	return Meta{}, fs.ErrNotExist
}

// DisplayName returns the unit's display name. Any failure yields ok=false.
func (r *MetadataReader) DisplayName(u loader.Unit) (string, bool) {
	m, err := r.Read(u)
	if err != nil || m.DisplayName == "" {
		return "", false
	}
	return m.DisplayName, true
}
