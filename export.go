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
	"path"
	"sort"

	"github.com/pkg/errors"

	"github.com/forensicanalysis/fscatalog/elementstore"
)

// CatalogFile is the name of the catalog document in the archive of an
// element store.
const CatalogFile = "/catalog.json"

type fileElement struct {
	Type         string
	Volume       string
	Path         string
	Name         string
	Size         int64
	Modified     string
	Hashes       map[string]interface{}
	Content      string
	ContentError string
	Status       string
}

type directoryElement struct {
	Type   string
	Volume string
	Path   string
	Name   string
	Status string
}

// ExportElements stores doc in an element store: a file element for every
// file record and empty file, a directory element for every directory that
// was ignored or could not be listed. The document itself is added to the
// store's archive as CatalogFile. It returns the number of elements.
func ExportElements(store *elementstore.Store, doc Document) (int, error) {
	labels := make([]string, 0, len(doc))
	for label := range doc {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	count := 0
	for _, label := range labels {
		n, err := exportDirectory(store, label, "", doc[label])
		count += n
		if err != nil {
			return count, err
		}
	}

	if err := writeJSON(store.Fs(), CatalogFile, doc); err != nil {
		return count, errors.Wrap(err, "could not add catalog to store")
	}
	return count, nil
}

func exportDirectory(store *elementstore.Store, label, dirPath string, dir Directory) (int, error) {
	count := 0
	for _, name := range sortedNames(dir) {
		nodePath := joinPath(dirPath, name)
		var element interface{}
		switch node := dir[name].(type) {
		case Directory:
			n, err := exportDirectory(store, label, nodePath, node)
			count += n
			if err != nil {
				return count, err
			}
			continue
		case *File:
			element = newFileElement(label, nodePath, node)
		case Marker:
			if node == MarkerEmpty {
				element = &fileElement{Type: "file", Volume: label, Path: nodePath, Name: path.Base(nodePath), Status: string(node)}
			} else {
				element = &directoryElement{Type: "directory", Volume: label, Path: nodePath, Name: path.Base(nodePath), Status: string(node)}
			}
		default:
			continue
		}

		if _, err := store.InsertStruct(element); err != nil {
			return count, errors.Wrapf(err, "could not insert %s/%s", label, nodePath)
		}
		count++
	}
	return count, nil
}

func newFileElement(label, nodePath string, f *File) *fileElement {
	element := &fileElement{
		Type:         "file",
		Volume:       label,
		Path:         nodePath,
		Name:         path.Base(nodePath),
		Size:         f.Size,
		Modified:     f.Modified,
		ContentError: f.ContentError,
	}
	if f.SHA256 != "" {
		element.Hashes = map[string]interface{}{"SHA-256": f.SHA256}
	}
	if f.Content != nil {
		element.Content = *f.Content
	}
	return element
}
