// Package templates provides embedded request templates.
//
// These templates prefill common certificate requests and are embedded
// in the binary for convenience. Users can also copy and customize them
// and pass the file to "certwizard new --template".
package templates

import (
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/remiblancher/certwizard/internal/request"
)

// FS contains all embedded template YAML files.
//
//go:embed *.yaml
var FS embed.FS

const ext = ".yaml"

// Names returns the names of the embedded templates, sorted.
func Names() []string {
	entries, err := fs.ReadDir(FS, ".")
	if err != nil {
		return nil
	}
	var names []string
	for _, e := range entries {
		if name, ok := strings.CutSuffix(e.Name(), ext); ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Load parses the embedded template called name.
func Load(name string) (*request.Template, error) {
	data, err := FS.ReadFile(name + ext)
	if err != nil {
		return nil, fmt.Errorf("unknown template %q (available: %s)", name, strings.Join(Names(), ", "))
	}
	t, err := request.ParseTemplate(data)
	if err != nil {
		return nil, fmt.Errorf("template %s: %w", name, err)
	}
	return t, nil
}
