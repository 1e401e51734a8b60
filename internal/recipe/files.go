package recipe

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Extensions recognised as recipe files, in lookup order.
var Extensions = []string{".json", ".yaml", ".yml"}

// ErrNotFound is returned by Find when no file exists for a recipe name.
var ErrNotFound = errors.New("recipe file not found")

// ErrExists is returned by Save when the recipe name is already taken.
var ErrExists = errors.New("recipe file already exists")

// FileName returns the file a recipe is saved to.
func FileName(name string) string {
	return name + ".json"
}

// Marshal renders a recipe in the persisted JSON format.
func Marshal(r *Recipe) ([]byte, error) {
	data, err := json.MarshalIndent(r.ToDefinition(), "", "    ")
	if err != nil {
		return nil, fmt.Errorf("marshal recipe %s: %w", r.Name, err)
	}
	return append(data, '\n'), nil
}

// Save writes r to dir/<name>.json and returns the path. It fails with
// ErrExists when a file for the name is already present in any of the
// Extensions.
func Save(dir string, r *Recipe) (string, error) {
	return save(dir, r, false)
}

// Overwrite is Save without the existence check: dir/<name>.json is
// replaced.
func Overwrite(dir string, r *Recipe) (string, error) {
	return save(dir, r, true)
}

func save(dir string, r *Recipe, overwrite bool) (string, error) {
	if err := r.Validate(); err != nil {
		return "", err
	}
	data, err := Marshal(r)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create recipes dir: %w", err)
	}
	path := filepath.Join(dir, FileName(r.Name))
	if overwrite {
		if err := os.WriteFile(path, data, 0o600); err != nil {
			return "", fmt.Errorf("write recipe %s: %w", path, err)
		}
		return path, nil
	}

	if existing, err := Find(dir, r.Name); err == nil {
		return "", fmt.Errorf("%w: %s", ErrExists, existing)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if errors.Is(err, fs.ErrExist) {
		return "", fmt.Errorf("%w: %s", ErrExists, path)
	}
	if err != nil {
		return "", fmt.Errorf("write recipe %s: %w", path, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("write recipe %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("write recipe %s: %w", path, err)
	}
	return path, nil
}

// Find returns the path of the recipe file for name in dir. A trailing
// recipe extension on name is ignored; any other dot is part of the name.
func Find(dir, name string) (string, error) {
	name = trimExtension(name)
	for _, ext := range Extensions {
		path := filepath.Join(dir, name+ext)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrNotFound, filepath.Join(dir, FileName(name)))
}

func trimExtension(name string) string {
	ext := filepath.Ext(name)
	for _, known := range Extensions {
		if strings.EqualFold(ext, known) {
			return strings.TrimSuffix(name, ext)
		}
	}
	return name
}

// LoadFile reads, schema-checks and converts one recipe file. Every failure
// is a *ConfigurationError carrying the path.
func LoadFile(path string) (*Recipe, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigurationError{Path: path, Message: "cannot read file", Err: err}
	}
	r, err := Parse(data, filepath.Ext(path))
	if err != nil {
		return nil, withPath(err, path)
	}
	return r, nil
}

// Parse decodes a recipe document in the format implied by ext.
func Parse(data []byte, ext string) (*Recipe, error) {
	doc, err := decodeDocument(data, ext)
	if err != nil {
		return nil, err
	}
	if errs := ValidateDocument(doc); len(errs) > 0 {
		return nil, errs[0]
	}
	return decodeDefinition(data, ext)
}

// ValidateFile checks one recipe file and reports every schema violation,
// or the first rule violation when the schema passes. The recipe is
// returned when the file is valid.
func ValidateFile(path string) (*Recipe, []*ConfigurationError) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, []*ConfigurationError{{Path: path, Message: "cannot read file", Err: err}}
	}
	ext := filepath.Ext(path)

	doc, err := decodeDocument(data, ext)
	if err != nil {
		return nil, []*ConfigurationError{withPath(err, path)}
	}
	if errs := ValidateDocument(doc); len(errs) > 0 {
		for _, e := range errs {
			e.Path = path
		}
		return nil, errs
	}
	r, err := decodeDefinition(data, ext)
	if err != nil {
		return nil, []*ConfigurationError{withPath(err, path)}
	}
	return r, nil
}

func decodeDocument(data []byte, ext string) (any, error) {
	var doc any
	if isYAML(ext) {
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, &ConfigurationError{Message: "malformed YAML", Err: err}
		}
		return doc, nil
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, &ConfigurationError{Message: "malformed JSON", Err: err}
	}
	return doc, nil
}

func decodeDefinition(data []byte, ext string) (*Recipe, error) {
	var def Definition
	if isYAML(ext) {
		if err := yaml.Unmarshal(data, &def); err != nil {
			return nil, &ConfigurationError{Recipe: def.Name, Message: "malformed YAML", Err: err}
		}
	} else if err := json.Unmarshal(data, &def); err != nil {
		return nil, &ConfigurationError{Recipe: def.Name, Message: "malformed JSON", Err: err}
	}
	return def.Recipe()
}

func isYAML(ext string) bool {
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

func withPath(err error, path string) *ConfigurationError {
	var ce *ConfigurationError
	if errors.As(err, &ce) {
		ce.Path = path
		return ce
	}
	return &ConfigurationError{Path: path, Message: "invalid definition", Err: err}
}

// LoadDir loads every recipe file in dir, in file name order. Files that fail
// are reported in errs and skipped; they never prevent the others loading.
// A missing directory yields no recipes and no errors.
func LoadDir(dir string) (recipes []*Recipe, errs []error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, []error{fmt.Errorf("read recipes dir %s: %w", dir, err)}
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !isRecipeFile(e.Name()) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		r, err := LoadFile(filepath.Join(dir, name))
		if err != nil {
			errs = append(errs, err)
			continue
		}
		recipes = append(recipes, r)
	}
	return recipes, errs
}

func isRecipeFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range Extensions {
		if ext == e {
			return true
		}
	}
	return false
}
