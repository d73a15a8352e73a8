// Copyright (c) 2020 Siemens AG
//
// Permission is hereby granted, free of charge, to any person obtaining a copy of
// this software and associated documentation files (the "Software"), to deal in
// the Software without restriction, including without limitation the rights to
// use, copy, modify, merge, publish, distribute, sublicense, and/or sell copies of
// the Software, and to permit persons to whom the Software is furnished to do so,
// subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY, FITNESS
// FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE AUTHORS OR
// COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY, WHETHER
// IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM, OUT OF OR IN
// CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE SOFTWARE.
//
// Author(s): Jonas Plum

package fscatalog

import (
	"context"
	_ "embed" // catalog schema
	"encoding/json"
	"fmt"
	"regexp"
	"sync"

	"github.com/pkg/errors"
	"github.com/qri-io/jsonschema"
	"github.com/tidwall/gjson"
)

//go:embed catalog.schema.json
var catalogSchema []byte

var (
	schemaOnce   sync.Once
	parsedSchema *jsonschema.Schema
	schemaErr    error

	sha256Pattern = regexp.MustCompile(`^[0-9a-f]{64}$`)
)

func loadSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		parsedSchema = &jsonschema.Schema{}
		schemaErr = json.Unmarshal(catalogSchema, parsedSchema)
	})
	return parsedSchema, schemaErr
}

// Validate checks a catalog document. It returns the flaws found; the
// error is only set if the document could not be checked at all.
func Validate(ctx context.Context, b []byte) ([]string, error) {
	if !json.Valid(b) {
		return nil, errors.New("catalog is not valid JSON")
	}
	schema, err := loadSchema()
	if err != nil {
		return nil, errors.Wrap(err, "could not load catalog schema")
	}

	keyErrors, err := schema.ValidateBytes(ctx, b)
	if err != nil {
		return nil, err
	}
	var flaws []string
	for _, keyError := range keyErrors {
		flaws = append(flaws, fmt.Sprintf("%s: %s", keyError.PropertyPath, keyError.Message))
	}
	return append(flaws, hashFlaws(b)...), nil
}

// hashFlaws reports sha256 fields that are neither a digest nor one of the
// sentinels.
func hashFlaws(b []byte) []string {
	var flaws []string
	var walk func(p string, node gjson.Result)
	walk = func(p string, node gjson.Result) {
		if !node.IsObject() {
			return
		}
		if node.Get("size").Type == gjson.Number && node.Get("modified").Exists() {
			if h := node.Get("sha256"); h.Exists() && !validHash(h.String()) {
				flaws = append(flaws, fmt.Sprintf("%s: invalid sha256 %q", p, h.String()))
			}
			return
		}
		node.ForEach(func(name, child gjson.Result) bool {
			walk(joinPath(p, name.String()), child)
			return true
		})
	}
	gjson.ParseBytes(b).ForEach(func(label, tree gjson.Result) bool {
		walk(label.String(), tree)
		return true
	})
	return flaws
}

func validHash(h string) bool {
	return h == HashSkipped || h == HashError || sha256Pattern.MatchString(h)
}
