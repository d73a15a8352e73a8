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
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/afero"

	"github.com/forensicanalysis/fscatalog/sqlitefs/spooled"
)

// DefaultSplitItems is the number of leaves per output file.
const DefaultSplitItems = 10000

// documents above this size are buffered on disk while encoding
const spoolSize = 64 * 1024 * 1024

// WriteDocument writes doc as indented JSON to out. If doc has more than
// splitItems leaves, it is split with SplitDocument and written to
// <base>_001<ext>, <base>_002<ext> and so on. Files of an earlier catalog
// at out that were not overwritten are removed. It returns the names of
// the written files.
func WriteDocument(fs afero.Fs, out string, doc Document, splitItems int) ([]string, error) {
	chunks := SplitDocument(doc, splitItems)
	if len(chunks) == 1 {
		if err := writeJSON(fs, out, chunks[0]); err != nil {
			return nil, err
		}
		return []string{out}, removeStale(fs, out, 0)
	}

	var names []string
	for i, chunk := range chunks {
		name := ChunkName(out, i+1)
		if err := writeJSON(fs, name, chunk); err != nil {
			return names, err
		}
		names = append(names, name)
	}
	if err := fs.Remove(out); err != nil && !os.IsNotExist(err) {
		return names, errors.Wrap(err, "could not remove stale catalog")
	}
	return names, removeStale(fs, out, len(chunks))
}

// ChunkName returns the name of the i-th file of a split catalog at out.
func ChunkName(out string, i int) string {
	ext := filepath.Ext(out)
	return fmt.Sprintf("%s_%03d%s", strings.TrimSuffix(out, ext), i, ext)
}

// removeStale deletes the chunks after the first written ones.
func removeStale(fs afero.Fs, out string, written int) error {
	for i := written + 1; ; i++ {
		name := ChunkName(out, i)
		if err := fs.Remove(name); err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return errors.Wrapf(err, "could not remove stale chunk %s", name)
		}
	}
}

// SplitDocument splits doc into documents of at most splitItems leaves
// each. Leaves are assigned in order of sorted volume labels and names,
// depth first. Every chunk carries the directories that lead to its leaves,
// so merging all chunks yields doc again. A splitItems <= 0 disables
// splitting.
func SplitDocument(doc Document, splitItems int) []Document {
	if splitItems <= 0 || doc.Leaves() <= splitItems {
		return []Document{doc}
	}

	s := &splitter{limit: splitItems}
	labels := make([]string, 0, len(doc))
	for label := range doc {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	for _, label := range labels {
		tree := doc[label]
		if tree.Leaves() == 0 {
			s.skeleton(label, nil, tree)
			continue
		}
		s.directory(label, nil, tree)
	}
	return s.chunks
}

type splitter struct {
	limit  int
	count  int
	chunks []Document
}

// last returns the open chunk.
func (s *splitter) last() Document {
	if len(s.chunks) == 0 {
		s.chunks = append(s.chunks, Document{})
	}
	return s.chunks[len(s.chunks)-1]
}

// forLeaf returns the chunk for the next leaf and starts a new one when the
// open chunk is full.
func (s *splitter) forLeaf() Document {
	if len(s.chunks) == 0 || s.count == s.limit {
		s.chunks = append(s.chunks, Document{})
		s.count = 0
	}
	s.count++
	return s.chunks[len(s.chunks)-1]
}

func (s *splitter) directory(label string, parents []string, dir Directory) {
	for _, name := range sortedNames(dir) {
		switch child := dir[name].(type) {
		case Directory:
			p := append(parents[:len(parents):len(parents)], name)
			if child.Leaves() == 0 {
				s.skeleton(label, p, child)
			} else {
				s.directory(label, p, child)
			}
		default:
			ensure(s.forLeaf(), label, parents)[name] = child
		}
	}
}

// skeleton copies a directory without leaves into the open chunk.
func (s *splitter) skeleton(label string, p []string, dir Directory) {
	ensure(s.last(), label, p)
	for _, name := range sortedNames(dir) {
		if sub, ok := dir[name].(Directory); ok {
			s.skeleton(label, append(p[:len(p):len(p)], name), sub)
		}
	}
}

// ensure returns the directory at p below the volume label of doc,
// creating missing directories.
func ensure(doc Document, label string, p []string) Directory {
	dir, ok := doc[label]
	if !ok {
		dir = Directory{}
		doc[label] = dir
	}
	for _, name := range p {
		sub, ok := dir[name].(Directory)
		if !ok {
			sub = Directory{}
			dir[name] = sub
		}
		dir = sub
	}
	return dir
}

func sortedNames(dir Directory) []string {
	names := make([]string, 0, len(dir))
	for name := range dir {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func writeJSON(fs afero.Fs, name string, v interface{}) error {
	buf, cleanup := spooled.New(spoolSize, "")
	defer cleanup() // nolint:errcheck

	enc := json.NewEncoder(buf)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return errors.Wrapf(err, "could not encode %s", name)
	}

	tmp := name + ".tmp"
	f, err := fs.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return errors.Wrapf(err, "could not create %s", tmp)
	}
	defer f.Close()

	if _, err := io.Copy(f, buf); err != nil {
		return errors.Wrapf(err, "could not write %s", tmp)
	}
	if err := f.Sync(); err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return fs.Rename(tmp, name)
}
