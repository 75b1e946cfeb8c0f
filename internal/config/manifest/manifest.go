// Package manifest parses the tool manifest file seeded into the catalog at
// startup. The manifest is the single source of truth for which tools this
// deployment can run and what execution defaults they carry.
package manifest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"

	"github.com/logicadigitalmarketing1-wq/kali-web-app-sub000/internal/domain/catalog"
)

// manifestFile is the wire shape of the manifest document.
//
// Keys are folded to lower case by the loader at every nesting level, so
// manifests use snake_case keys throughout, default_params included.
type manifestFile struct {
	Tools []toolSpec `mapstructure:"tools"`
}

// toolSpec describes one catalog entry.
type toolSpec struct {
	Slug    string `mapstructure:"slug"`
	Name    string `mapstructure:"name"`
	Enabled *bool  `mapstructure:"enabled"`

	DefaultTimeout time.Duration  `mapstructure:"default_timeout"`
	DefaultParams  map[string]any `mapstructure:"default_params"`
}

// Load reads and parses the manifest file at path.
func Load(path string) ([]*catalog.Tool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read tool manifest: %w", err)
	}

	tools, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse tool manifest %s: %w", path, err)
	}

	return tools, nil
}

// Parse decodes a YAML manifest document and translates it into catalog
// tools ready for seeding.
func Parse(data []byte) ([]*catalog.Tool, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewBuffer(data)); err != nil {
		return nil, fmt.Errorf("failed to read manifest config: %w", err)
	}

	var mf manifestFile
	if err := v.Unmarshal(&mf); err != nil {
		return nil, fmt.Errorf("failed to unmarshal manifest config: %w", err)
	}

	return translate(mf)
}

// translate converts the wire document into domain tools, validating slugs
// along the way. Every seeded tool carries a manifest, possibly with empty
// defaults; only its presence makes the tool runnable.
func translate(mf manifestFile) ([]*catalog.Tool, error) {
	tools := make([]*catalog.Tool, 0, len(mf.Tools))
	seen := make(map[string]struct{}, len(mf.Tools))

	for i, spec := range mf.Tools {
		if spec.Slug == "" {
			return nil, fmt.Errorf("tool entry %d has no slug", i)
		}
		if _, ok := seen[spec.Slug]; ok {
			return nil, fmt.Errorf("duplicate tool slug %q", spec.Slug)
		}
		seen[spec.Slug] = struct{}{}

		name := spec.Name
		if name == "" {
			name = spec.Slug
		}

		enabled := true
		if spec.Enabled != nil {
			enabled = *spec.Enabled
		}

		var params json.RawMessage
		if len(spec.DefaultParams) > 0 {
			encoded, err := json.Marshal(spec.DefaultParams)
			if err != nil {
				return nil, fmt.Errorf("encoding default params for %q: %w", spec.Slug, err)
			}
			params = encoded
		}

		tools = append(tools, catalog.NewTool(name, spec.Slug, enabled, &catalog.ToolManifest{
			DefaultParams:  params,
			DefaultTimeout: spec.DefaultTimeout,
		}))
	}

	return tools, nil
}
