// Package seed loads initial records from a YAML file into a store.
package seed

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/stevemurr/simple-resource-server/store"
)

// File is the on-disk seed format:
//
//	records:
//	  - title: First Post
//	    content: Hello World
type File struct {
	Records []map[string]any `yaml:"records"`
}

// Load reads and parses the seed file at path.
func Load(path string) ([]map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	return Parse(bytes.NewReader(data))
}

// Parse decodes seed records from r. An empty document yields no records.
func Parse(r io.Reader) ([]map[string]any, error) {
	var f File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("parse seed file: %w", err)
	}
	return f.Records, nil
}

// Apply creates every record in order, so seeds pass the store's policy and
// receive ids in file order. It stops at the first failure.
func Apply(s store.Store, records []map[string]any) (int, error) {
	for i, fields := range records {
		if _, err := s.Create(fields); err != nil {
			return i, fmt.Errorf("seed record %d: %w", i, err)
		}
	}
	return len(records), nil
}
