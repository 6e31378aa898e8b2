// Package load reads workflow definitions from YAML files.
//
// The file shape mirrors dag.Definition:
//
//	name: release
//	entry_node_id: build
//	nodes:
//	  build:
//	    handler: shell
//	    params:
//	      cmd: make build
//	  test:
//	    handler: shell
//	edges:
//	  build: [test]
//
// Loading is purely syntactic; callers run Definition.Validate before
// activating the result.
package load

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/dshills/taskgraph-go/dag"
)

// Load reads and parses a workflow definition from the YAML file at path.
func Load(path string) (dag.Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return dag.Definition{}, fmt.Errorf("read definition file: %w", err)
	}
	def, err := Parse(data)
	if err != nil {
		return dag.Definition{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return def, nil
}

// Parse parses a workflow definition from YAML bytes. Unknown fields are
// rejected so typos in definition files surface as errors instead of
// silently dropped configuration.
func Parse(data []byte) (dag.Definition, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var def dag.Definition
	if err := dec.Decode(&def); err != nil {
		return dag.Definition{}, fmt.Errorf("decode definition: %w", err)
	}
	return def, nil
}
