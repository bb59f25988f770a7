// Package directories loads the set of ACME directory endpoints to probe.
package directories

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Directory is one ACME server entry declared in the directories file.
type Directory struct {
	ID           string `json:"id" yaml:"id"`
	Name         string `json:"name" yaml:"name"`
	DirectoryURL string `json:"directory_url" yaml:"directory_url"`
	Enabled      *bool  `json:"enabled" yaml:"enabled"`
}

type configFile struct {
	Directories []Directory `json:"directories" yaml:"directories"`
}

// Registry holds directory definitions loaded from a config file.
type Registry struct {
	mu          sync.RWMutex
	directories []Directory
	idx         map[string]Directory
}

// LoadRegistry loads the directory registry from a YAML/JSON file.
func LoadRegistry(path string) (*Registry, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("directories file path is empty")
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open directories file: %w", err)
	}
	defer file.Close()

	raw, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("read directories file: %w", err)
	}

	parsed, err := parseRegistry(raw, filepath.Ext(path))
	if err != nil {
		return nil, err
	}
	if len(parsed.Directories) == 0 {
		return nil, errors.New("directories file contains no directories entries")
	}

	reg := &Registry{
		directories: make([]Directory, len(parsed.Directories)),
		idx:         make(map[string]Directory, len(parsed.Directories)),
	}
	for i := range parsed.Directories {
		d := sanitizeDirectory(parsed.Directories[i])
		if err := validateDirectory(d); err != nil {
			return nil, fmt.Errorf("directories[%d]: %w", i, err)
		}
		if _, exists := reg.idx[d.ID]; exists {
			return nil, fmt.Errorf("duplicate directory id %q", d.ID)
		}
		reg.directories[i] = d
		reg.idx[d.ID] = d
	}
	return reg, nil
}

type unmarshalFn func([]byte, any) error

func parseRegistry(data []byte, ext string) (configFile, error) {
	ext = strings.ToLower(strings.TrimSpace(ext))
	decoders := []struct {
		name string
		ext  string
		fn   unmarshalFn
	}{
		{name: "yaml", ext: ".yaml", fn: yaml.Unmarshal},
		{name: "yaml", ext: ".yml", fn: yaml.Unmarshal},
		{name: "json", ext: ".json", fn: json.Unmarshal},
	}

	for _, d := range decoders {
		if ext != "" && ext != d.ext {
			continue
		}
		var cfg configFile
		if err := d.fn(data, &cfg); err == nil {
			return cfg, nil
		}
	}
	return configFile{}, errors.New("directories file format not recognized (expected YAML or JSON)")
}

func sanitizeDirectory(d Directory) Directory {
	d.ID = strings.TrimSpace(d.ID)
	d.Name = strings.TrimSpace(d.Name)
	d.DirectoryURL = strings.TrimSpace(d.DirectoryURL)
	if d.Name == "" {
		d.Name = d.ID
	}
	if d.Enabled == nil {
		def := true
		d.Enabled = &def
	}
	return d
}

func validateDirectory(d Directory) error {
	if d.ID == "" {
		return errors.New("id is required")
	}
	if d.DirectoryURL == "" {
		return fmt.Errorf("directory_url is required for directory %q", d.ID)
	}
	u, err := url.Parse(d.DirectoryURL)
	if err != nil {
		return fmt.Errorf("directory_url for %q: %w", d.ID, err)
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return fmt.Errorf("directory_url for %q must be http(s), got %q", d.ID, u.Scheme)
	}
	return nil
}

// ByID returns the directory by id.
func (r *Registry) ByID(id string) (Directory, bool) {
	if r == nil {
		return Directory{}, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.idx[strings.TrimSpace(id)]
	return d, ok
}

// All returns every configured directory.
func (r *Registry) All() []Directory {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Directory, len(r.directories))
	copy(out, r.directories)
	return out
}

// Enabled returns directories that are enabled.
func (r *Registry) Enabled() []Directory {
	all := r.All()
	out := make([]Directory, 0, len(all))
	for _, d := range all {
		if d.EnabledValue() {
			out = append(out, d)
		}
	}
	return out
}

// EnabledValue returns enabled flag defaulting to true.
func (d Directory) EnabledValue() bool {
	if d.Enabled == nil {
		return true
	}
	return *d.Enabled
}
