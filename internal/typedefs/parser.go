// Package typedefs loads built-in bit type definitions from a directory of
// Markdown files. Each file carries the type in YAML frontmatter; the body
// becomes the type description.
package typedefs

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/starford/bitkeep/internal/models"
)

// ErrNoFrontmatter is returned for files without a leading --- block.
var ErrNoFrontmatter = errors.New("typedefs: missing frontmatter")

type frontmatter struct {
	ID         string                      `yaml:"id"`
	Name       string                      `yaml:"name"`
	Icon       string                      `yaml:"icon"`
	Properties []models.PropertyDefinition `yaml:"properties"`
}

// Parse decodes one type file. When the frontmatter has no id, the file name
// without extension is used. Property order is list order.
func Parse(name string, data []byte) (models.BitTypeDefinition, error) {
	block, body, err := splitFrontmatter(data)
	if err != nil {
		return models.BitTypeDefinition{}, err
	}

	var fm frontmatter
	if err := yaml.Unmarshal(block, &fm); err != nil {
		return models.BitTypeDefinition{}, fmt.Errorf("typedefs: %s: %w", name, err)
	}
	if fm.ID == "" {
		fm.ID = strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	}

	def := models.BitTypeDefinition{
		ID:          fm.ID,
		Origin:      models.OriginBuiltin,
		Name:        fm.Name,
		IconName:    fm.Icon,
		Description: strings.TrimSpace(body),
		Properties:  fm.Properties,
	}
	for i := range def.Properties {
		def.Properties[i].Order = i
	}
	if err := def.Validate(); err != nil {
		return models.BitTypeDefinition{}, fmt.Errorf("typedefs: %s: %w", name, err)
	}
	return def, nil
}

// splitFrontmatter separates the YAML block between the leading --- delimiters
// from the Markdown body.
func splitFrontmatter(data []byte) ([]byte, string, error) {
	const delim = "---"
	trimmed := bytes.TrimLeft(data, "\n\r")

	if !bytes.HasPrefix(trimmed, []byte(delim)) {
		return nil, "", ErrNoFrontmatter
	}

	rest := trimmed[len(delim):]
	idx := bytes.Index(rest, []byte("\n"+delim))
	if idx < 0 {
		return nil, "", ErrNoFrontmatter
	}

	block := rest[:idx]
	afterDelim := rest[idx+1+len(delim):]
	return block, strings.TrimLeft(string(afterDelim), "\n\r"), nil
}
