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
	"os"
	"path"
	"sync"
	"syscall"
	"time"

	"github.com/diskfs/go-diskfs/filesystem"
	"github.com/diskfs/go-diskfs/filesystem/ext4"
	"github.com/diskfs/go-diskfs/filesystem/fat32"
	"github.com/diskfs/go-diskfs/filesystem/iso9660"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

const (
	isoBlockSize = 2048
	// directory listings kept by a DiskFs
	listingCacheSize = 256
)

// diskFileSystem is the read part of a go-diskfs filesystem.
type diskFileSystem interface {
	ReadDir(path string) ([]os.FileInfo, error)
	OpenFile(path string, flag int) (filesystem.File, error)
}

// mountDisk opens the filesystem of type t in the byte range
// [offset, offset+size) of r.
func mountDisk(r io.ReaderAt, offset, size int64, t Type) (afero.Fs, error) {
	file := newReaderFile(r, offset+size)

	var fs diskFileSystem
	var err error
	switch t {
	case TypeFAT32:
		fs, err = fat32.Read(file, size, offset, sectorSize)
	case TypeISO9660:
		fs, err = iso9660.Read(file, size, offset, isoBlockSize)
	case TypeExt:
		// the ext4 driver reads inodes and data without the start offset
		section := newReaderFile(io.NewSectionReader(r, offset, size), size)
		fs, err = ext4.Read(section, size, 0, sectorSize)
	default:
		return nil, errors.Wrap(ErrNoDriver, string(t))
	}
	if err != nil {
		return nil, errors.Wrapf(err, "could not mount %s at offset %d", t, offset)
	}
	return &DiskFs{fs: fs, name: string(t)}, nil
}

// DiskFs is a read-only afero.Fs over a go-diskfs filesystem. The drivers
// resolve every path from the root, so the listings of recently used
// directories are cached.
type DiskFs struct {
	fs   diskFileSystem
	name string

	mu       sync.Mutex
	listings map[string][]os.FileInfo
	order    []string
}

func (d *DiskFs) Name() string {
	return d.name
}

// list returns the entries of dir without "." and "..".
func (d *DiskFs) list(dir string) ([]os.FileInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if entries, ok := d.listings[dir]; ok {
		return entries, nil
	}

	entries, err := d.fs.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	children := make([]os.FileInfo, 0, len(entries))
	for _, entry := range entries {
		if entry.Name() != "." && entry.Name() != ".." {
			children = append(children, entry)
		}
	}

	if d.listings == nil {
		d.listings = map[string][]os.FileInfo{}
	}
	if len(d.order) == listingCacheSize {
		delete(d.listings, d.order[0])
		d.order = d.order[1:]
	}
	d.listings[dir] = children
	d.order = append(d.order, dir)
	return children, nil
}

func (d *DiskFs) Stat(name string) (os.FileInfo, error) {
	name = cleanPath(name)
	if name == "/" {
		return &rootInfo{}, nil
	}

	entries, err := d.list(path.Dir(name))
	if err != nil {
		return nil, &os.PathError{Op: "stat", Path: name, Err: err}
	}
	base := path.Base(name)
	for _, entry := range entries {
		if entry.Name() == base {
			return entry, nil
		}
	}
	return nil, &os.PathError{Op: "stat", Path: name, Err: os.ErrNotExist}
}

func (d *DiskFs) Open(name string) (afero.File, error) {
	name = cleanPath(name)
	info, err := d.Stat(name)
	if err != nil {
		return nil, err
	}

	if info.IsDir() {
		children, err := d.list(name)
		if err != nil {
			return nil, &os.PathError{Op: "readdir", Path: name, Err: err}
		}
		return &diskFile{name: name, info: info, children: children}, nil
	}

	f, err := d.fs.OpenFile(name, os.O_RDONLY)
	if err != nil {
		return nil, &os.PathError{Op: "open", Path: name, Err: err}
	}
	return &diskFile{name: name, info: info, file: f}, nil
}

func (d *DiskFs) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	if flag&(os.O_WRONLY|os.O_RDWR|os.O_APPEND|os.O_CREATE|os.O_TRUNC) != 0 {
		return nil, readOnly("open", name)
	}
	return d.Open(name)
}

func (d *DiskFs) Create(name string) (afero.File, error)           { return nil, readOnly("create", name) }
func (d *DiskFs) Mkdir(name string, perm os.FileMode) error         { return readOnly("mkdir", name) }
func (d *DiskFs) MkdirAll(p string, perm os.FileMode) error         { return readOnly("mkdir", p) }
func (d *DiskFs) Remove(name string) error                          { return readOnly("remove", name) }
func (d *DiskFs) RemoveAll(p string) error                          { return readOnly("remove", p) }
func (d *DiskFs) Rename(oldname, newname string) error              { return readOnly("rename", oldname) }
func (d *DiskFs) Chmod(name string, mode os.FileMode) error         { return readOnly("chmod", name) }
func (d *DiskFs) Chown(name string, uid, gid int) error             { return readOnly("chown", name) }
func (d *DiskFs) Chtimes(name string, atime, mtime time.Time) error { return readOnly("chtimes", name) }

func readOnly(op, name string) error {
	return &os.PathError{Op: op, Path: name, Err: syscall.EPERM}
}

func cleanPath(name string) string {
	return path.Clean("/" + name)
}

type rootInfo struct{}

func (rootInfo) Name() string       { return "/" }
func (rootInfo) Size() int64        { return 0 }
func (rootInfo) Mode() os.FileMode  { return os.ModeDir | 0555 }
func (rootInfo) ModTime() time.Time { return time.Time{} }
func (rootInfo) IsDir() bool        { return true }
func (rootInfo) Sys() interface{}   { return nil }

// diskFile is an open file or directory of a DiskFs.
type diskFile struct {
	name string
	info os.FileInfo

	children []os.FileInfo
	offset   int

	mu   sync.Mutex
	file filesystem.File
}

func (f *diskFile) Name() string               { return f.name }
func (f *diskFile) Stat() (os.FileInfo, error) { return f.info, nil }
func (f *diskFile) Sync() error                { return nil }

func (f *diskFile) Read(p []byte) (int, error) {
	if f.file == nil {
		return 0, &os.PathError{Op: "read", Path: f.name, Err: syscall.EISDIR}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.file.Read(p)
}

func (f *diskFile) ReadAt(p []byte, off int64) (int, error) {
	if f.file == nil {
		return 0, &os.PathError{Op: "read", Path: f.name, Err: syscall.EISDIR}
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	current, err := f.file.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, err
	}
	defer f.file.Seek(current, io.SeekStart) // nolint:errcheck

	if _, err := f.file.Seek(off, io.SeekStart); err != nil {
		return 0, err
	}
	return io.ReadFull(f.file, p)
}

func (f *diskFile) Seek(offset int64, whence int) (int64, error) {
	if f.file == nil {
		return 0, &os.PathError{Op: "seek", Path: f.name, Err: syscall.EISDIR}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.file.Seek(offset, whence)
}

func (f *diskFile) Readdir(count int) ([]os.FileInfo, error) {
	if f.file != nil {
		return nil, &os.PathError{Op: "readdir", Path: f.name, Err: syscall.ENOTDIR}
	}
	rest := f.children[f.offset:]
	if count <= 0 {
		f.offset = len(f.children)
		return append([]os.FileInfo(nil), rest...), nil
	}
	if len(rest) == 0 {
		return nil, io.EOF
	}
	if count < len(rest) {
		rest = rest[:count]
	}
	f.offset += len(rest)
	return append([]os.FileInfo(nil), rest...), nil
}

func (f *diskFile) Readdirnames(n int) ([]string, error) {
	infos, err := f.Readdir(n)
	names := make([]string, 0, len(infos))
	for _, info := range infos {
		names = append(names, info.Name())
	}
	return names, err
}

func (f *diskFile) Close() error {
	if f.file == nil {
		return nil
	}
	return f.file.Close()
}

func (f *diskFile) Write(p []byte) (int, error)              { return 0, readOnly("write", f.name) }
func (f *diskFile) WriteAt(p []byte, off int64) (int, error) { return 0, readOnly("write", f.name) }
func (f *diskFile) WriteString(s string) (int, error)        { return 0, readOnly("write", f.name) }
func (f *diskFile) Truncate(size int64) error                { return readOnly("truncate", f.name) }
