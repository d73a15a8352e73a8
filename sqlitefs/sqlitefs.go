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

// Package sqlitefs implements an afero filesystem on top of an SQLite
// archive. The layout is the sqlar table used by the sqlite3 command line
// shell: names are relative slash separated paths, mode holds the unix
// st_mode and data is zlib compressed unless compression does not help.
//
// Directories that only exist as a prefix of stored names are reported as
// directories as well.
package sqlitefs

import (
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"crawshaw.io/sqlite"
	"crawshaw.io/sqlite/sqlitex"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

// FS is an SQLite archive.
type FS struct {
	conn     *sqlite.Conn
	readOnly bool
	shared   bool
}

const table = `CREATE TABLE IF NOT EXISTS sqlar(
  name TEXT PRIMARY KEY,  -- name of the file
  mode INT,               -- access permissions
  mtime INT,              -- last modification time
  sz INT,                 -- original file size
  data BLOB               -- compressed content
);`

const (
	modeType    = 0170000
	modeDir     = 0040000
	modeRegular = 0100000
	modeSymlink = 0120000
)

// New opens or creates a writable archive. The journal stays in rollback
// mode so the archive is a single file.
func New(url string) (*FS, error) {
	conn, err := sqlite.OpenConn(url, sqlite.SQLITE_OPEN_READWRITE|sqlite.SQLITE_OPEN_CREATE|sqlite.SQLITE_OPEN_URI|sqlite.SQLITE_OPEN_NOMUTEX)
	if err != nil {
		return nil, err
	}
	fs := &FS{conn: conn}
	if err := sqlitex.ExecTransient(conn, table, nil); err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "could not create sqlar table")
	}
	return fs, nil
}

// NewConn adds the archive table to an open database. Close leaves the
// connection open.
func NewConn(conn *sqlite.Conn) (*FS, error) {
	if err := sqlitex.ExecTransient(conn, table, nil); err != nil {
		return nil, errors.Wrap(err, "could not create sqlar table")
	}
	return &FS{conn: conn, shared: true}, nil
}

// Open opens an existing archive read-only.
func Open(url string) (*FS, error) {
	conn, err := sqlite.OpenConn(url, sqlite.SQLITE_OPEN_READONLY|sqlite.SQLITE_OPEN_URI|sqlite.SQLITE_OPEN_NOMUTEX)
	if err != nil {
		return nil, err
	}
	fs := &FS{conn: conn, readOnly: true}

	found := false
	err = sqlitex.Exec(conn, "SELECT 1 FROM sqlite_master WHERE type = 'table' AND name = 'sqlar'", func(*sqlite.Stmt) error {
		found = true
		return nil
	})
	if err != nil || !found {
		conn.Close()
		if err == nil {
			err = errors.New("no sqlar table")
		}
		return nil, errors.Wrap(err, url)
	}
	return fs, nil
}

func (fs *FS) Name() string {
	return "SQLiteFS"
}

func (fs *FS) Close() error {
	if fs.shared {
		return nil
	}
	return fs.conn.Close()
}

func (fs *FS) writable(op, name string) error {
	if fs.readOnly {
		return &os.PathError{Op: op, Path: name, Err: os.ErrPermission}
	}
	return nil
}

func (fs *FS) Chmod(name string, mode os.FileMode) error {
	if err := fs.writable("chmod", name); err != nil {
		return err
	}
	return sqlitex.Exec(fs.conn, "UPDATE sqlar SET mode = (mode & ?) | ? WHERE name = ?", nil,
		int64(modeType), int64(mode.Perm()), normalizeFilename(name))
}

// Chown is a no-op, archives do not store owners.
func (fs *FS) Chown(name string, uid, gid int) error {
	return fs.writable("chown", name)
}

func (fs *FS) Chtimes(name string, atime time.Time, mtime time.Time) error {
	if err := fs.writable("chtimes", name); err != nil {
		return err
	}
	return sqlitex.Exec(fs.conn, "UPDATE sqlar SET mtime = ? WHERE name = ?", nil,
		mtime.Unix(), normalizeFilename(name))
}

func (fs *FS) Create(name string) (afero.File, error) {
	return fs.OpenFile(name, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0666)
}

func (fs *FS) Mkdir(name string, perm os.FileMode) error {
	if err := fs.writable("mkdir", name); err != nil {
		return err
	}
	name = normalizeFilename(name)
	if name == "" {
		return nil
	}
	if _, err := fs.Stat(name); err == nil {
		return &os.PathError{Op: "mkdir", Path: name, Err: os.ErrExist}
	}
	return sqlitex.Exec(fs.conn, "INSERT INTO sqlar (name, mode, mtime, sz, data) VALUES (?, ?, ?, 0, NULL)", nil,
		name, unixMode(perm, true), time.Now().Unix())
}

func (fs *FS) MkdirAll(p string, perm os.FileMode) error {
	all := ""
	for _, part := range strings.Split(normalizeFilename(p), "/") {
		if part == "" {
			continue
		}
		all = path.Join(all, part)
		info, err := fs.Stat(all)
		switch {
		case err == nil && !info.IsDir():
			return &os.PathError{Op: "mkdir", Path: all, Err: errors.New("not a directory")}
		case err == nil:
			continue
		}
		if err := fs.Mkdir(all, perm); err != nil {
			return err
		}
	}
	return nil
}

func (fs *FS) Open(name string) (afero.File, error) {
	return fs.OpenFile(name, os.O_RDONLY, 0)
}

func (fs *FS) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	name = normalizeFilename(name)

	if flag&(os.O_WRONLY|os.O_RDWR|os.O_CREATE|os.O_TRUNC|os.O_APPEND) != 0 {
		if err := fs.writable("open", name); err != nil {
			return nil, err
		}
		if flag&os.O_APPEND != 0 {
			return nil, ErrNotImplemented
		}
		return fs.create(name, flag, perm)
	}

	info, rowid, err := fs.stat(name)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		children, err := fs.children(name)
		if err != nil {
			return nil, err
		}
		return newDirEntry(name, info, children), nil
	}
	return newReadEntry(fs, name, info, rowid)
}

func (fs *FS) create(name string, flag int, perm os.FileMode) (afero.File, error) {
	if name == "" {
		return nil, &os.PathError{Op: "open", Path: "/", Err: errors.New("is a directory")}
	}
	info, _, err := fs.stat(name)
	switch {
	case err == nil && info.IsDir():
		return nil, &os.PathError{Op: "open", Path: name, Err: errors.New("is a directory")}
	case err == nil && flag&os.O_EXCL != 0:
		return nil, &os.PathError{Op: "open", Path: name, Err: os.ErrExist}
	case err != nil && flag&os.O_CREATE == 0:
		return nil, err
	}

	// the row exists from here on, the content follows on Close
	err = sqlitex.Exec(fs.conn, "INSERT OR REPLACE INTO sqlar (name, mode, mtime, sz, data) VALUES (?, ?, ?, 0, zeroblob(0))", nil,
		name, unixMode(perm, false), time.Now().Unix())
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create %s", name)
	}
	return newWriteEntry(fs, name), nil
}

func (fs *FS) Remove(name string) error {
	if err := fs.writable("remove", name); err != nil {
		return err
	}
	name = normalizeFilename(name)
	if _, _, err := fs.stat(name); err != nil {
		return err
	}
	return sqlitex.Exec(fs.conn, "DELETE FROM sqlar WHERE name = ?", nil, name)
}

func (fs *FS) RemoveAll(p string) error {
	if err := fs.writable("removeall", p); err != nil {
		return err
	}
	p = normalizeFilename(p)
	if p == "" {
		return sqlitex.Exec(fs.conn, "DELETE FROM sqlar", nil)
	}
	return sqlitex.Exec(fs.conn, "DELETE FROM sqlar WHERE name = ? OR substr(name, 1, length(?)) = ?", nil,
		p, p+"/", p+"/")
}

func (fs *FS) Rename(oldname, newname string) error {
	if err := fs.writable("rename", oldname); err != nil {
		return err
	}
	oldname = normalizeFilename(oldname)
	newname = normalizeFilename(newname)
	if oldname == "" || newname == "" {
		return &os.LinkError{Op: "rename", Old: oldname, New: newname, Err: os.ErrInvalid}
	}
	if _, _, err := fs.stat(oldname); err != nil {
		return err
	}

	err := sqlitex.Exec(fs.conn, "DELETE FROM sqlar WHERE name = ?", nil, newname)
	if err != nil {
		return err
	}
	return sqlitex.Exec(fs.conn, `UPDATE sqlar SET name = ? || substr(name, length(?) + 1)
		WHERE name = ? OR substr(name, 1, length(?)) = ?`, nil,
		newname, oldname, oldname, oldname+"/", oldname+"/")
}

func (fs *FS) Stat(name string) (os.FileInfo, error) {
	info, _, err := fs.stat(normalizeFilename(name))
	return info, err
}

func (fs *FS) stat(name string) (*Info, int64, error) {
	if name == "" {
		return &Info{name: "/", mode: os.ModeDir | 0755}, 0, nil
	}

	var info *Info
	var rowid int64
	err := sqlitex.Exec(fs.conn, "SELECT rowid, name, mode, mtime, sz FROM sqlar WHERE name = ?", func(stmt *sqlite.Stmt) error {
		rowid = stmt.ColumnInt64(0)
		info = rowInfo(stmt, 1)
		return nil
	}, name)
	if err != nil {
		return nil, 0, err
	}
	if info != nil {
		return info, rowid, nil
	}

	implicit := false
	err = sqlitex.Exec(fs.conn, "SELECT 1 FROM sqlar WHERE substr(name, 1, length(?)) = ? LIMIT 1", func(*sqlite.Stmt) error {
		implicit = true
		return nil
	}, name+"/", name+"/")
	if err != nil {
		return nil, 0, err
	}
	if implicit {
		return &Info{name: path.Base(name), mode: os.ModeDir | 0755}, 0, nil
	}
	return nil, 0, &os.PathError{Op: "stat", Path: name, Err: os.ErrNotExist}
}

// children lists the direct entries of dir, including implicit directories.
func (fs *FS) children(dir string) ([]os.FileInfo, error) {
	prefix := ""
	if dir != "" {
		prefix = dir + "/"
	}

	entries := map[string]*Info{}
	err := sqlitex.Exec(fs.conn, "SELECT name, mode, mtime, sz FROM sqlar WHERE ? = '' OR substr(name, 1, length(?)) = ?", func(stmt *sqlite.Stmt) error {
		rest := strings.TrimPrefix(stmt.ColumnText(0), prefix)
		if rest == "" {
			return nil
		}
		if i := strings.Index(rest, "/"); i >= 0 {
			if _, ok := entries[rest[:i]]; !ok {
				entries[rest[:i]] = &Info{name: rest[:i], mode: os.ModeDir | 0755}
			}
			return nil
		}
		entries[rest] = rowInfo(stmt, 0)
		return nil
	}, prefix, prefix, prefix)
	if err != nil {
		return nil, err
	}

	children := make([]os.FileInfo, 0, len(entries))
	for _, info := range entries {
		children = append(children, info)
	}
	sort.Slice(children, func(i, j int) bool { return children[i].Name() < children[j].Name() })
	return children, nil
}

// rowInfo reads name, mode, mtime and sz starting at column col.
func rowInfo(stmt *sqlite.Stmt, col int) *Info {
	return &Info{
		name:  path.Base(stmt.ColumnText(col)),
		mode:  fileMode(stmt.ColumnInt64(col + 1)),
		mtime: time.Unix(stmt.ColumnInt64(col+2), 0),
		sz:    stmt.ColumnInt64(col + 3),
	}
}

// Info describes an archive entry.
type Info struct {
	sz    int64
	mtime time.Time
	mode  os.FileMode
	name  string
}

func (i *Info) Name() string       { return i.name }
func (i *Info) Size() int64        { return i.sz }
func (i *Info) Mode() os.FileMode  { return i.mode }
func (i *Info) ModTime() time.Time { return i.mtime }
func (i *Info) IsDir() bool        { return i.mode.IsDir() }
func (i *Info) Sys() interface{}   { return nil }

func unixMode(perm os.FileMode, dir bool) int64 {
	if dir {
		return modeDir | int64(perm.Perm())
	}
	return modeRegular | int64(perm.Perm())
}

func fileMode(mode int64) os.FileMode {
	perm := os.FileMode(mode & 0777)
	switch mode & modeType {
	case modeDir:
		return perm | os.ModeDir
	case modeSymlink:
		return perm | os.ModeSymlink
	}
	return perm
}

func normalizeFilename(name string) string {
	name = filepath.ToSlash(name)
	name = path.Clean("/" + name)
	return strings.TrimPrefix(name, "/")
}
