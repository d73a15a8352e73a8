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
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"path"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"golang.org/x/text/encoding/unicode"
)

const (
	// MaxContentSize bounds the files whose content is captured.
	MaxContentSize = 100000
	progressEvery  = 1000

	contentReadFailed = "read_failed"
)

// Tracker records completed directories for resumable runs.
type Tracker interface {
	IsDone(path string) bool
	MarkDone(path string) error
}

// Progress holds the counters of a run. It is never persisted.
type Progress struct {
	Scanned     int64
	Directories int64
	Files       int64
	Noise       int64
	Denied      int64
	Resumed     int64
	Errors      int64
	Interrupted bool
}

// Walker builds the catalog tree of one filesystem.
type Walker struct {
	Filter     *Filter
	Hash       bool
	Extensions map[string]bool
	Verbose    bool
	// Session is consulted before and updated after every directory. It is
	// optional.
	Session Tracker
	// Output receives the progress line. It is optional.
	Output   io.Writer
	Progress *Progress
	Logger   logrus.FieldLogger
}

type frame struct {
	path    string // catalog path, "" for the root
	fsPath  string // path on the filesystem, keeps undecoded names
	key     string // name in the parent tree
	entries []os.FileInfo
	next    int
	tree    Directory
	names   map[string]bool // keys taken, including pending subdirectories
}

// ParseExtensions turns a comma separated list like "txt, .Conf" into the
// set of lower case extensions without dot.
func ParseExtensions(list string) map[string]bool {
	extensions := map[string]bool{}
	for _, ext := range strings.Split(list, ",") {
		ext = strings.ToLower(strings.TrimLeft(strings.TrimSpace(ext), "."))
		if ext != "" {
			extensions[ext] = true
		}
	}
	return extensions
}

// Walk catalogs fs from its root. Cancelling ctx stops the walk at the next
// entry; the tree built so far is returned without error. Only a root that
// cannot be listed is an error.
func (w *Walker) Walk(ctx context.Context, fs afero.Fs) (Directory, error) {
	if w.Progress == nil {
		w.Progress = &Progress{}
	}
	if w.Logger == nil {
		w.Logger = logrus.StandardLogger()
	}
	if w.Output == nil {
		w.Output = ioutil.Discard
	}

	if w.Session != nil && w.Session.IsDone("") {
		w.Progress.Resumed++
		return Directory{}, nil
	}

	entries, err := readDir(fs, "/")
	if err != nil {
		return nil, errors.Wrap(err, "could not open root directory")
	}
	visited := map[fileID]bool{}
	if info, err := fs.Stat("/"); err == nil {
		if id, ok := identity(info); ok {
			visited[id] = true
		}
	}

	stack := []*frame{{fsPath: "/", entries: entries, tree: Directory{}, names: map[string]bool{}}}
	for {
		top := stack[len(stack)-1]

		if top.next == len(top.entries) {
			stack = stack[:len(stack)-1]
			w.complete(top)
			if len(stack) == 0 {
				return top.tree, nil
			}
			if len(top.tree) > 0 {
				stack[len(stack)-1].tree[top.key] = top.tree
			}
			continue
		}

		if ctx.Err() != nil {
			w.Progress.Interrupted = true
			return unwind(stack), nil
		}

		info := top.entries[top.next]
		top.next++
		if child := w.visit(fs, top, info, visited); child != nil {
			stack = append(stack, child)
		}
	}
}

// unwind attaches the partial trees of all open frames to their parents.
// None of them is marked done.
func unwind(stack []*frame) Directory {
	for i := len(stack) - 1; i > 0; i-- {
		if len(stack[i].tree) > 0 {
			stack[i-1].tree[stack[i].key] = stack[i].tree
		}
	}
	return stack[0].tree
}

func (w *Walker) complete(f *frame) {
	if w.Session == nil {
		return
	}
	if err := w.Session.MarkDone(f.path); err != nil {
		w.Progress.Errors++
		w.Logger.WithError(err).WithField("path", f.path).Errorln("Could not update session")
	}
}

// visit adds one entry to the tree of dir. It returns the frame of a
// directory that has to be descended.
func (w *Walker) visit(fs afero.Fs, dir *frame, info os.FileInfo, visited map[fileID]bool) *frame {
	if info == nil || info.Name() == "" || info.Name() == "." || info.Name() == ".." {
		return nil
	}

	fsPath := path.Join(dir.fsPath, info.Name())
	key := uniqueName(dir.names, decodeName(info.Name()))
	nodePath := joinPath(dir.path, key)

	if w.Filter.Classify(nodePath) == Noise {
		if info.IsDir() {
			w.Progress.Noise++
			dir.tree[key] = MarkerNoise
		}
		return nil
	}

	w.count(nodePath)

	switch {
	case info.IsDir():
		if w.Session != nil && w.Session.IsDone(nodePath) {
			w.Progress.Resumed++
			return nil
		}
		if id, ok := identity(info); ok {
			if visited[id] {
				w.Logger.WithField("path", nodePath).Warningln("Directory already visited, skipping loop")
				return nil
			}
			visited[id] = true
		}
		entries, err := readDir(fs, fsPath)
		if err != nil {
			w.Progress.Denied++
			w.Logger.WithError(err).WithField("path", nodePath).Errorln("Could not list directory")
			dir.tree[key] = MarkerDenied
			return nil
		}
		w.Progress.Directories++
		return &frame{path: nodePath, fsPath: fsPath, key: key, entries: entries, tree: Directory{}, names: map[string]bool{}}
	case info.Mode().IsRegular():
		w.Progress.Files++
		dir.tree[key] = w.file(fs, fsPath, nodePath, info)
	}
	return nil
}

func (w *Walker) count(nodePath string) {
	w.Progress.Scanned++
	if w.Verbose {
		w.Logger.Debugf("      [Scanning] %s", nodePath)
		return
	}
	if w.Progress.Scanned%progressEvery == 0 {
		fmt.Fprintf(w.Output, "\r       [*] Scanned %d items...", w.Progress.Scanned)
	}
}

func (w *Walker) file(fs afero.Fs, fsPath, nodePath string, info os.FileInfo) Node {
	size := info.Size()
	record := NewFile(size, info.ModTime())

	if w.Hash {
		record.SHA256 = w.hash(fs, fsPath, size)
		if record.SHA256 == HashError {
			w.Progress.Errors++
			w.Logger.WithField("path", nodePath).Errorln("Could not hash file")
		}
	}

	ext := strings.ToLower(strings.TrimPrefix(path.Ext(nodePath), "."))
	if w.Extensions[ext] && size < MaxContentSize {
		content, err := readContent(fs, fsPath, size)
		if err != nil {
			w.Progress.Errors++
			w.Logger.WithError(err).WithField("path", nodePath).Errorln("Could not read content")
			record.ContentError = contentReadFailed
		} else {
			record.SetContent(content)
		}
	}

	if record.Content != nil || w.Hash || size > 0 {
		return record
	}
	return MarkerEmpty
}

func (w *Walker) hash(fs afero.Fs, fsPath string, size int64) string {
	if size > MaxHashSize {
		return HashSkipped
	}
	f, err := fs.Open(fsPath)
	if err != nil {
		return HashError
	}
	defer f.Close()
	return HashContent(f, size)
}

func readContent(fs afero.Fs, fsPath string, size int64) (string, error) {
	f, err := fs.Open(fsPath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	b, err := ioutil.ReadAll(io.LimitReader(f, size))
	if err != nil {
		return "", err
	}
	content, err := unicode.UTF8.NewDecoder().Bytes(b)
	if err != nil {
		return "", err
	}
	return strings.ReplaceAll(string(content), "\x00", ""), nil
}

func readDir(fs afero.Fs, name string) ([]os.FileInfo, error) {
	f, err := fs.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	entries, err := f.Readdir(-1)
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i] == nil || entries[j] == nil {
			return entries[j] == nil && entries[i] != nil
		}
		return entries[i].Name() < entries[j].Name()
	})
	return entries, nil
}

// decodeName replaces invalid UTF-8 in a raw entry name with U+FFFD.
func decodeName(name string) string {
	if utf8.ValidString(name) {
		return name
	}
	decoded, err := unicode.UTF8.NewDecoder().String(name)
	if err != nil {
		return strings.ToValidUTF8(name, "�")
	}
	return decoded
}

// uniqueName suffixes names that collide after decoding and records the
// result in taken.
func uniqueName(taken map[string]bool, name string) string {
	candidate := name
	for i := 2; taken[candidate]; i++ {
		candidate = fmt.Sprintf("%s~%d", name, i)
	}
	taken[candidate] = true
	return candidate
}

func joinPath(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + "/" + name
}
