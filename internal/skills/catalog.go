package skills

import (
	"fmt"
	"io/fs"
	"path"
	"strings"
)

// BaseDoc is the catalog document holding the global base prompt layer.
// It is loaded separately and never part of the matchable index.
const BaseDoc = "_base.md"

// ParseDoc parses one catalog document: a header block of "key: value"
// lines terminated by the first blank line, followed by the free-text body.
// Triggers use array syntax: "triggers: [slammed, busy, no time]".
func ParseDoc(name string, data []byte) (Skill, error) {
	lines := strings.Split(strings.ReplaceAll(string(data), "\r\n", "\n"), "\n")

	skill := Skill{
		ID: strings.TrimSuffix(path.Base(name), path.Ext(name)),
	}

	bodyStart := len(lines)
	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			bodyStart = i + 1
			break
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			// Not a header line: the rest of the document is body.
			bodyStart = i
			break
		}
		value = strings.TrimSpace(value)
		switch strings.ToLower(strings.TrimSpace(key)) {
		case "id":
			skill.ID = value
		case "applies_when", "applies when":
			skill.AppliesWhen = value
		case "domain":
			skill.Domain = value
		case "triggers":
			skill.Triggers = parseTriggerList(value)
		}
	}

	skill.Body = strings.TrimSpace(strings.Join(lines[bodyStart:], "\n"))
	if skill.ID == "" {
		return Skill{}, fmt.Errorf("catalog doc %s: missing id", name)
	}
	return skill, nil
}

func parseTriggerList(value string) []string {
	value = strings.TrimPrefix(strings.TrimSuffix(strings.TrimSpace(value), "]"), "[")
	var triggers []string
	for _, t := range strings.Split(value, ",") {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			triggers = append(triggers, t)
		}
	}
	return triggers
}

// LoadCatalog reads every skill document from fsys, excluding BaseDoc.
func LoadCatalog(fsys fs.FS) ([]Skill, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("reading skill catalog: %w", err)
	}

	var catalog []Skill
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || name == BaseDoc || !strings.HasSuffix(name, ".md") {
			continue
		}
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("reading skill %s: %w", name, err)
		}
		skill, err := ParseDoc(name, data)
		if err != nil {
			return nil, err
		}
		catalog = append(catalog, skill)
	}
	return catalog, nil
}

// LoadBase reads the global base layer. A missing base document degrades to
// an empty layer rather than failing the composition.
func LoadBase(fsys fs.FS) string {
	data, err := fs.ReadFile(fsys, BaseDoc)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
