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

package sqlitefs

import (
	"bytes"
	"compress/zlib"
	"io"
	"os"
	"path"

	"crawshaw.io/sqlite"
	"crawshaw.io/sqlite/sqlitex"
	"github.com/pkg/errors"

	"github.com/forensicanalysis/fscatalog/sqlitefs/spooled"
)

// ErrNotImplemented is returned for operations archives do not support.
var ErrNotImplemented = errors.New("not implemented")

const spoolSize = 16 * 1024 * 1024

// entry is an open archive member: a directory listing, a reader or a
// writer.
type entry struct {
	name string
	info os.FileInfo

	children []os.FileInfo
	offset   int

	reader io.Reader
	closer []io.Closer

	fs         *FS
	raw        *spooled.TemporaryFile
	compressed *spooled.TemporaryFile
	zw         *zlib.Writer
	closed     bool
}

func newDirEntry(name string, info os.FileInfo, children []os.FileInfo) *entry {
	return &entry{name: name, info: info, children: children}
}

func newReadEntry(fs *FS, name string, info *Info, rowid int64) (*entry, error) {
	e := &entry{name: name, info: info}

	var stored int64
	err := sqlitex.Exec(fs.conn, "SELECT ifnull(length(data), 0) FROM sqlar WHERE rowid = ?", func(stmt *sqlite.Stmt) error {
		stored = stmt.ColumnInt64(0)
		return nil
	}, rowid)
	if err != nil {
		return nil, err
	}
	if stored == 0 {
		e.reader = bytes.NewReader(nil)
		return e, nil
	}

	blob, err := fs.conn.OpenBlob("", "sqlar", "data", rowid, false)
	if err != nil {
		return nil, err
	}
	e.closer = append(e.closer, blob)

	// sqlar stores content uncompressed when compression does not help
	if stored == info.Size() {
		e.reader = blob
		return e, nil
	}
	zr, err := zlib.NewReader(blob)
	if err != nil {
		blob.Close()
		return nil, errors.Wrapf(err, "could not decompress %s", name)
	}
	e.reader = zr
	e.closer = append([]io.Closer{zr}, e.closer...)
	return e, nil
}

func newWriteEntry(fs *FS, name string) *entry {
	e := &entry{fs: fs, name: name}
	e.raw, _ = spooled.New(spoolSize, "")
	e.compressed, _ = spooled.New(spoolSize, "")
	e.zw = zlib.NewWriter(e.compressed)
	return e
}

func (e *entry) Name() string {
	return path.Base("/" + e.name)
}

func (e *entry) Stat() (os.FileInfo, error) {
	if e.info == nil {
		return e.fs.Stat(e.name)
	}
	return e.info, nil
}

func (e *entry) Read(p []byte) (n int, err error) {
	if e.reader == nil {
		return 0, &os.PathError{Op: "read", Path: e.name, Err: os.ErrInvalid}
	}
	return e.reader.Read(p)
}

// ReadAt works on content that is stored uncompressed.
func (e *entry) ReadAt(p []byte, off int64) (n int, err error) {
	if ra, ok := e.reader.(io.ReaderAt); ok {
		return ra.ReadAt(p, off)
	}
	return 0, ErrNotImplemented
}

func (e *entry) Seek(offset int64, whence int) (int64, error) {
	if s, ok := e.reader.(io.Seeker); ok {
		return s.Seek(offset, whence)
	}
	return 0, ErrNotImplemented
}

func (e *entry) Readdir(count int) ([]os.FileInfo, error) {
	if e.info == nil || !e.info.IsDir() {
		return nil, &os.PathError{Op: "readdir", Path: e.name, Err: errors.New("not a directory")}
	}
	rest := e.children[e.offset:]
	if count <= 0 {
		e.offset = len(e.children)
		return rest, nil
	}
	if len(rest) == 0 {
		return nil, io.EOF
	}
	if count < len(rest) {
		rest = rest[:count]
	}
	e.offset += len(rest)
	return rest, nil
}

func (e *entry) Readdirnames(n int) ([]string, error) {
	infos, err := e.Readdir(n)
	names := make([]string, 0, len(infos))
	for _, info := range infos {
		names = append(names, info.Name())
	}
	return names, err
}

func (e *entry) Write(p []byte) (n int, err error) {
	if e.zw == nil || e.closed {
		return 0, &os.PathError{Op: "write", Path: e.name, Err: os.ErrInvalid}
	}
	if _, err := e.zw.Write(p); err != nil {
		return 0, err
	}
	return e.raw.Write(p)
}

func (e *entry) WriteAt(p []byte, off int64) (n int, err error) {
	return 0, ErrNotImplemented
}

func (e *entry) WriteString(s string) (ret int, err error) {
	return e.Write([]byte(s))
}

func (e *entry) Truncate(size int64) error {
	return ErrNotImplemented
}

func (e *entry) Sync() error {
	if e.zw != nil && !e.closed {
		return e.zw.Flush()
	}
	return nil
}

func (e *entry) Close() error {
	if e.zw != nil {
		return e.commit()
	}
	for _, c := range e.closer {
		if err := c.Close(); err != nil {
			return err
		}
	}
	e.closer = nil
	return nil
}

// commit stores the written content in the archive.
func (e *entry) commit() error {
	if e.closed {
		return nil
	}
	e.closed = true
	defer e.raw.Close()
	defer e.compressed.Close()

	if err := e.zw.Close(); err != nil {
		return err
	}

	data := e.raw
	if e.compressed.Size() < e.raw.Size() {
		data = e.compressed
	}

	err := sqlitex.Exec(e.fs.conn, "UPDATE sqlar SET sz = ?, data = zeroblob(?) WHERE name = ?", nil,
		e.raw.Size(), data.Size(), e.name)
	if err != nil {
		return err
	}
	if data.Size() == 0 {
		return nil
	}

	var rowid int64
	err = sqlitex.Exec(e.fs.conn, "SELECT rowid FROM sqlar WHERE name = ?", func(stmt *sqlite.Stmt) error {
		rowid = stmt.ColumnInt64(0)
		return nil
	}, e.name)
	if err != nil {
		return err
	}

	blob, err := e.fs.conn.OpenBlob("", "sqlar", "data", rowid, true)
	if err != nil {
		return err
	}
	if _, err := io.Copy(blob, data); err != nil {
		blob.Close()
		return err
	}
	return blob.Close()
}
