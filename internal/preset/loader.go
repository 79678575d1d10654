package preset

import (
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/auralis-audio/auralis/internal/errors"
)

// LoadDirectory registers every *.yaml preset definition found in dir.
// Files are value-type definitions (see Definition's yaml tags); a file
// whose name collides with a built-in shadows it. A missing or empty dir is
// not an error so the presets directory stays optional.
func LoadDirectory(r *Resolver, dir string) (int, error) {
	if dir == "" {
		return 0, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, errors.New(err).
			Component("preset").
			Category(errors.CategoryFileIO).
			Build()
	}

	loaded := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path) //nolint:gosec // operator-controlled presets directory
		if err != nil {
			return loaded, errors.New(err).
				Component("preset").
				Category(errors.CategoryFileIO).
				FileContext(path, 0).
				Build()
		}

		var def Definition
		if err := yaml.Unmarshal(data, &def); err != nil {
			return loaded, errors.Newf("parsing preset %s: %w", entry.Name(), err).
				Component("preset").
				Category(errors.CategoryValidation).
				Build()
		}
		if def.Name == "" {
			def.Name = strings.TrimSuffix(entry.Name(), ".yaml")
		}
		if err := r.Register(def); err != nil {
			return loaded, err
		}
		loaded++
	}
	return loaded, nil
}
