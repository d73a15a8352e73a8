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

// Package volume opens evidence media and enumerates the filesystems on it.
//
// A Source is the media: a raw disk image, possibly split into numbered
// segments, an SQLite archive or a host directory. Enumerate walks the
// partition table of a Source, or treats the whole Source as one
// filesystem when there is none, and hands every mounted filesystem to a
// callback as an afero.Fs.
package volume

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

// Type names a filesystem type.
type Type string

const (
	TypeFAT12     Type = "fat12"
	TypeFAT16     Type = "fat16"
	TypeFAT32     Type = "fat32"
	TypeExFAT     Type = "exfat"
	TypeNTFS      Type = "ntfs"
	TypeExt       Type = "ext"
	TypeISO9660   Type = "iso9660"
	TypeSQLAR     Type = "sqlar"
	TypeDirectory Type = "directory"
)

var (
	// ErrNoVolumeSystem is returned by Partitions when the media has no
	// partition table.
	ErrNoVolumeSystem = errors.New("no volume system found")
	// ErrUnsupportedMedia is returned by Open for container formats that
	// cannot be read.
	ErrUnsupportedMedia = errors.New("unsupported media format")
	// ErrUnknownFilesystem is returned by Detect.
	ErrUnknownFilesystem = errors.New("unknown filesystem")
	// ErrNoDriver is returned by Mount for detected types that cannot be
	// read.
	ErrNoDriver = errors.New("no driver for filesystem")
)

// Partition is an entry of a partition table.
type Partition struct {
	Index       int
	Offset      int64
	Size        int64
	Description string
	Allocated   bool
}

// Source is opened evidence media.
type Source interface {
	Name() string
	// Partitions lists the partition table. Media without one returns
	// ErrNoVolumeSystem.
	Partitions() ([]Partition, error)
	// Detect identifies the filesystem starting at offset.
	Detect(offset int64) (Type, error)
	// Mount opens the filesystem starting at offset as the given type.
	Mount(offset int64, t Type) (afero.Fs, error)
	Close() error
}

var (
	segmentPattern   = regexp.MustCompile(`(?i)\.(\d{3})$`)
	unsupportedMedia = map[string]bool{".e01": true, ".ex01": true, ".s01": true, ".l01": true, ".aff": true, ".vmdk": true} // nolint:gochecknoglobals
)

// Open opens the media at path. Split raw images are opened from their
// first segment, e.g. disk.001.
func Open(path string) (Source, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return NewDirectory(path), nil
	}

	ext := strings.ToLower(filepath.Ext(path))
	switch {
	case unsupportedMedia[ext]:
		return nil, errors.Wrap(ErrUnsupportedMedia, path)
	case ext == ".sqlar" || ext == ".forensicstore":
		return OpenArchive(path)
	case segmentPattern.MatchString(path):
		segments, err := Segments(path)
		if err != nil {
			return nil, err
		}
		return OpenImage(segments...)
	default:
		return OpenImage(path)
	}
}
