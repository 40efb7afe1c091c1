// Package metadata implements the project-metadata collaborator against a
// YAML file. Only the version scalar is rewritten; surrounding keys,
// ordering and comments survive round trips.
package metadata

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/relcut/relcut/pkg/api"
)

// DefaultKey is the mapping key holding the declared version.
const DefaultKey = "version"

// YAMLFile reads and rewrites the declared version in a YAML metadata file.
type YAMLFile struct {
	// Path is the metadata file location, e.g. "project.yaml".
	Path string

	// Key is the top-level mapping key holding the version. Empty means
	// DefaultKey.
	Key string
}

var _ api.MetadataStore = (*YAMLFile)(nil)

// NewYAMLFile returns a YAMLFile for path using the default version key.
func NewYAMLFile(path string) *YAMLFile {
	return &YAMLFile{Path: path}
}

func (f *YAMLFile) key() string {
	if f.Key == "" {
		return DefaultKey
	}
	return f.Key
}

// CurrentVersion returns the declared version string.
func (f *YAMLFile) CurrentVersion(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	node, err := f.load()
	if err != nil {
		return "", err
	}

	value := findValue(node, f.key())
	if value == nil {
		return "", fmt.Errorf("metadata %s: key %q not found", f.Path, f.key())
	}
	return value.Value, nil
}

// SetVersion rewrites the declared version in place.
func (f *YAMLFile) SetVersion(ctx context.Context, version string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	node, err := f.load()
	if err != nil {
		return err
	}

	value := findValue(node, f.key())
	if value == nil {
		return fmt.Errorf("metadata %s: key %q not found", f.Path, f.key())
	}
	value.SetString(version)

	out, err := yaml.Marshal(node)
	if err != nil {
		return err
	}
	return os.WriteFile(f.Path, out, 0o644)
}

func (f *YAMLFile) load() (*yaml.Node, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, err
	}

	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, fmt.Errorf("metadata %s: %w", f.Path, err)
	}
	return &node, nil
}

// findValue returns the value node for key in the document's top-level
// mapping, or nil when absent.
func findValue(doc *yaml.Node, key string) *yaml.Node {
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil
	}
	mapping := doc.Content[0]
	if mapping.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value == key {
			return mapping.Content[i+1]
		}
	}
	return nil
}
