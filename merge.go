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
	"encoding/json"

	"github.com/imdario/mergo"
	"github.com/pkg/errors"
)

// DecodeDocument parses a catalog document.
func DecodeDocument(b []byte) (Document, error) {
	doc := Document{}
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, errors.Wrap(err, "could not decode catalog")
	}
	return doc, nil
}

// MergeDocuments deep merges catalogs, e.g. the chunks of a split catalog
// or a catalog and the one of a resumed run. Directories are merged; any
// other node of a later document replaces the node of an earlier one. The
// inputs are not modified.
func MergeDocuments(docs ...Document) (Document, error) {
	merged := Document{}
	for i, doc := range docs {
		if err := mergo.Merge(&merged, cloneDocument(doc), mergo.WithOverride); err != nil {
			return nil, errors.Wrapf(err, "could not merge document %d", i+1)
		}
	}
	return merged, nil
}

func cloneDocument(doc Document) Document {
	c := make(Document, len(doc))
	for label, tree := range doc {
		c[label] = cloneDirectory(tree)
	}
	return c
}

func cloneDirectory(dir Directory) Directory {
	c := make(Directory, len(dir))
	for name, node := range dir {
		switch n := node.(type) {
		case Directory:
			c[name] = cloneDirectory(n)
		case *File:
			f := *n
			c[name] = &f
		default:
			c[name] = n
		}
	}
	return c
}
