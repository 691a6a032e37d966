package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
)

// File is a koanf provider reading a TOML file. Tables are flattened into
// environment-style keys, so
//
//	[postgres]
//	host = "db"
//
// yields POSTGRES_HOST.
type File struct {
	path string
}

// TOMLFile returns a provider for the TOML file at path.
func TOMLFile(path string) *File {
	return &File{path: path}
}

// ReadBytes is not supported; the provider parses its own format.
func (f *File) ReadBytes() ([]byte, error) {
	return nil, errors.New("toml file provider does not support ReadBytes")
}

// Read parses the file and returns the flattened key map.
func (f *File) Read() (map[string]any, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, err
	}
	var tree map[string]any
	if err := toml.Unmarshal(data, &tree); err != nil {
		return nil, fmt.Errorf("parse toml: %w", err)
	}
	out := make(map[string]any)
	flatten("", tree, out)
	return out, nil
}

func flatten(prefix string, in map[string]any, out map[string]any) {
	for k, v := range in {
		key := strings.ToUpper(k)
		if prefix != "" {
			key = prefix + "_" + key
		}
		if sub, ok := v.(map[string]any); ok {
			flatten(key, sub, out)
			continue
		}
		out[key] = v
	}
}
