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
	"time"
)

// Markers replace a node whose content was not cataloged.
const (
	MarkerNoise  Marker = "ignored_os_noise"
	MarkerDenied Marker = "access_denied"
	MarkerEmpty  Marker = "File (Empty)"
)

// TimeFormat is the layout of the modified field of file records.
const TimeFormat = "2006-01-02T15:04:05.000Z"

// A Node is one entry of the catalog: a Directory, a *File or a Marker.
type Node interface {
	isNode()
}

// Directory maps entry names to nodes. Names are unique within a directory.
type Directory map[string]Node

// File is the record of a regular file.
type File struct {
	Size         int64   `json:"size"`
	Modified     string  `json:"modified"`
	SHA256       string  `json:"sha256,omitempty"`
	Content      *string `json:"content,omitempty"`
	ContentError string  `json:"contentError,omitempty"`
}

// Marker is a string tag that stands in for a node.
type Marker string

// Document is the complete catalog, keyed by volume label.
type Document map[string]Directory

func (Directory) isNode() {}
func (*File) isNode()     {}
func (Marker) isNode()    {}

// NewFile creates a file record with the modification time in TimeFormat.
func NewFile(size int64, modified time.Time) *File {
	return &File{Size: size, Modified: modified.UTC().Format(TimeFormat)}
}

// SetContent attaches captured text content.
func (f *File) SetContent(content string) *File {
	f.Content = &content
	return f
}

// Leaves counts the files and markers below d.
func (d Directory) Leaves() int {
	count := 0
	stack := []Directory{d}
	for len(stack) > 0 {
		dir := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, child := range dir {
			if sub, ok := child.(Directory); ok {
				stack = append(stack, sub)
				continue
			}
			count++
		}
	}
	return count
}

// Leaves counts the files and markers of all volumes.
func (doc Document) Leaves() int {
	count := 0
	for _, tree := range doc {
		count += tree.Leaves()
	}
	return count
}

// UnmarshalJSON decodes a directory, resolving every child to a Directory,
// a *File or a Marker.
func (d *Directory) UnmarshalJSON(b []byte) error {
	raw := map[string]json.RawMessage{}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	dir := make(Directory, len(raw))
	for name, value := range raw {
		node, err := decodeNode(value)
		if err != nil {
			return err
		}
		dir[name] = node
	}
	*d = dir
	return nil
}

func decodeNode(b json.RawMessage) (Node, error) {
	var marker string
	if err := json.Unmarshal(b, &marker); err == nil {
		return Marker(marker), nil
	}

	raw := map[string]json.RawMessage{}
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, err
	}
	if isFileRecord(raw) {
		file := &File{}
		if err := json.Unmarshal(b, file); err != nil {
			return nil, err
		}
		return file, nil
	}

	var dir Directory
	if err := dir.UnmarshalJSON(b); err != nil {
		return nil, err
	}
	return dir, nil
}

// isFileRecord tells a file record from a directory that happens to contain
// entries called "size" and "modified": in a directory those are nodes,
// which are never JSON numbers.
func isFileRecord(raw map[string]json.RawMessage) bool {
	size, ok := raw["size"]
	if !ok {
		return false
	}
	if _, ok := raw["modified"]; !ok {
		return false
	}
	var n json.Number
	return json.Unmarshal(size, &n) == nil
}
