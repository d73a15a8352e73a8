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

package volume

import (
	"io"

	"github.com/pkg/errors"
	"github.com/spf13/afero"

	"github.com/forensicanalysis/fscatalog/sqlitefs"
)

// FsSource is media that already is a filesystem: a host directory, an
// SQLite archive or any afero.Fs. It has no partition table and a single
// volume at offset 0.
type FsSource struct {
	name   string
	fs     afero.Fs
	typ    Type
	closer io.Closer
}

// NewFsSource wraps fs as a Source of the given type.
func NewFsSource(name string, t Type, fs afero.Fs) *FsSource {
	return &FsSource{name: name, fs: fs, typ: t}
}

// NewDirectory opens a host directory read-only.
func NewDirectory(dir string) *FsSource {
	fs := afero.NewReadOnlyFs(afero.NewBasePathFs(afero.NewOsFs(), dir))
	return NewFsSource(dir, TypeDirectory, fs)
}

// OpenArchive opens an sqlar archive read-only.
func OpenArchive(path string) (*FsSource, error) {
	fs, err := sqlitefs.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "could not open archive")
	}
	s := NewFsSource(path, TypeSQLAR, fs)
	s.closer = fs
	return s, nil
}

func (s *FsSource) Name() string {
	return s.name
}

func (s *FsSource) Partitions() ([]Partition, error) {
	return nil, ErrNoVolumeSystem
}

func (s *FsSource) Detect(offset int64) (Type, error) {
	if offset != 0 {
		return "", ErrUnknownFilesystem
	}
	return s.typ, nil
}

func (s *FsSource) Mount(offset int64, t Type) (afero.Fs, error) {
	if offset != 0 || t != s.typ {
		return nil, errors.Wrap(ErrNoDriver, string(t))
	}
	return s.fs, nil
}

func (s *FsSource) Close() error {
	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}
