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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"os"
	"path"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forensicanalysis/fscatalog/session"
)

var fixtureTime = time.Date(2020, 4, 1, 12, 30, 0, 0, time.UTC) // nolint:gochecknoglobals

const (
	helloDigest = "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"
	emptyDigest = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(ioutil.Discard)
	return logger
}

func writeFixture(t *testing.T, fs afero.Fs, files map[string]string) {
	for name, content := range files {
		require.NoError(t, afero.WriteFile(fs, name, []byte(content), 0644))
		require.NoError(t, fs.Chtimes(name, fixtureTime, fixtureTime))
	}
}

// evidenceFs is a small linux root filesystem.
func evidenceFs(t *testing.T) afero.Fs {
	fs := afero.NewMemMapFs()
	writeFixture(t, fs, map[string]string{
		"/home/user/notes.txt": "hello",
		"/home/user/empty.log": "",
		"/home/user/big.bin":   "0123456789",
		"/etc/config.CONF":     "a=1\x00",
		"/proc/1/status":       "State: R",
		"/tmp/session.lock":    "1",
		"/usr/lib/libc.so":     "ELF",
		"/usr/bin/ls":          "ELF",
		"/lib64":               "not a directory",
	})
	return fs
}

func fixtureFile(size int64) *File {
	return NewFile(size, fixtureTime)
}

// failingFs fails to open the listed paths.
type failingFs struct {
	afero.Fs
	fail map[string]bool
}

func (fs *failingFs) Open(name string) (afero.File, error) {
	if fs.fail[name] {
		return nil, &os.PathError{Op: "open", Path: name, Err: os.ErrPermission}
	}
	return fs.Fs.Open(name)
}

// cancelFs cancels a context when a path is opened.
type cancelFs struct {
	afero.Fs
	path   string
	cancel context.CancelFunc
}

func (fs *cancelFs) Open(name string) (afero.File, error) {
	if name == fs.path {
		fs.cancel()
	}
	return fs.Fs.Open(name)
}

func TestWalker_Walk(t *testing.T) {
	tests := []struct {
		name   string
		walker *Walker
		want   Directory
	}{
		{
			"filter and content",
			&Walker{Filter: NewFilter(true), Extensions: ParseExtensions("txt,conf")},
			Directory{
				"etc": Directory{"config.CONF": fixtureFile(4).SetContent("a=1")},
				"home": Directory{"user": Directory{
					"big.bin":   fixtureFile(10),
					"empty.log": MarkerEmpty,
					"notes.txt": fixtureFile(5).SetContent("hello"),
				}},
				"proc": MarkerNoise,
				"tmp":  MarkerNoise,
				"usr": Directory{
					"bin": Directory{"ls": fixtureFile(3)},
					"lib": MarkerNoise,
				},
			},
		},
		{
			"no filter",
			&Walker{Filter: NewFilter(false)},
			Directory{
				"etc": Directory{"config.CONF": fixtureFile(4)},
				"home": Directory{"user": Directory{
					"big.bin":   fixtureFile(10),
					"empty.log": MarkerEmpty,
					"notes.txt": fixtureFile(5),
				}},
				"lib64": fixtureFile(15),
				"proc":  Directory{"1": Directory{"status": fixtureFile(8)}},
				"tmp":   Directory{"session.lock": fixtureFile(1)},
				"usr": Directory{
					"bin": Directory{"ls": fixtureFile(3)},
					"lib": Directory{"libc.so": fixtureFile(3)},
				},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.walker.Logger = quietLogger()
			got, err := tt.walker.Walk(context.Background(), evidenceFs(t))
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Walk() mismatch (-want +got):\n%s", diff)
			}
			assert.False(t, tt.walker.Progress.Interrupted)
		})
	}
}

func TestWalker_Hash(t *testing.T) {
	w := &Walker{Filter: NewFilter(true), Hash: true, Logger: quietLogger()}
	tree, err := w.Walk(context.Background(), evidenceFs(t))
	require.NoError(t, err)

	user := tree["home"].(Directory)["user"].(Directory)
	notes := user["notes.txt"].(*File)
	assert.Equal(t, helloDigest, notes.SHA256)
	assert.Nil(t, notes.Content)

	// with hashing, empty files are records with the digest of no input
	empty, ok := user["empty.log"].(*File)
	require.True(t, ok, "empty file is %v", user["empty.log"])
	assert.Equal(t, emptyDigest, empty.SHA256)
	assert.EqualValues(t, 0, empty.Size)
}

func TestWalker_Denied(t *testing.T) {
	fs := &failingFs{Fs: evidenceFs(t), fail: map[string]bool{
		"/etc":                 true,
		"/home/user/notes.txt": true,
	}}
	w := &Walker{Filter: NewFilter(true), Hash: true, Extensions: ParseExtensions("txt"), Logger: quietLogger()}
	tree, err := w.Walk(context.Background(), fs)
	require.NoError(t, err)

	assert.Equal(t, MarkerDenied, tree["etc"])
	notes := tree["home"].(Directory)["user"].(Directory)["notes.txt"].(*File)
	assert.Equal(t, HashError, notes.SHA256)
	assert.Equal(t, "read_failed", notes.ContentError)
	assert.Nil(t, notes.Content)
	assert.EqualValues(t, 1, w.Progress.Denied)
	assert.EqualValues(t, 2, w.Progress.Errors)
}

func TestWalker_RootDenied(t *testing.T) {
	fs := &failingFs{Fs: evidenceFs(t), fail: map[string]bool{"/": true}}
	w := &Walker{Logger: quietLogger()}
	_, err := w.Walk(context.Background(), fs)
	assert.Error(t, err)
}

func TestWalker_NoFileBelowNoise(t *testing.T) {
	w := &Walker{Filter: NewFilter(true), Logger: quietLogger()}
	tree, err := w.Walk(context.Background(), evidenceFs(t))
	require.NoError(t, err)

	var check func(p string, dir Directory)
	check = func(p string, dir Directory) {
		for name, node := range dir {
			nodePath := joinPath(p, name)
			if sub, ok := node.(Directory); ok {
				check(nodePath, sub)
				continue
			}
			if _, ok := node.(*File); ok {
				assert.NotEqual(t, Noise, w.Filter.Classify(nodePath), nodePath)
			}
		}
	}
	check("", tree)
	_, ok := tree["lib64"]
	assert.False(t, ok, "noise file listed")
}

func TestWalker_Deterministic(t *testing.T) {
	fs := evidenceFs(t)
	var outputs [][]byte
	for i := 0; i < 3; i++ {
		w := &Walker{Filter: NewFilter(true), Hash: true, Extensions: ParseExtensions("txt"), Logger: quietLogger()}
		tree, err := w.Walk(context.Background(), fs)
		require.NoError(t, err)
		b, err := json.Marshal(Document{"Raw_Filesystem": tree})
		require.NoError(t, err)
		outputs = append(outputs, b)
	}
	assert.Equal(t, outputs[0], outputs[1])
	assert.Equal(t, outputs[0], outputs[2])
}

func TestWalker_Resume(t *testing.T) {
	sessionFs := afero.NewMemMapFs()
	fs := evidenceFs(t)

	store := session.Open(sessionFs, "/catalog.json.session", quietLogger())
	w := &Walker{Filter: NewFilter(true), Session: store.Volume("Raw_Filesystem"), Logger: quietLogger()}
	_, err := w.Walk(context.Background(), fs)
	require.NoError(t, err)

	want := []string{
		"Raw_Filesystem/",
		"Raw_Filesystem/etc",
		"Raw_Filesystem/home",
		"Raw_Filesystem/home/user",
		"Raw_Filesystem/usr",
		"Raw_Filesystem/usr/bin",
	}
	assert.Equal(t, want, store.Keys())

	reloaded := session.Open(sessionFs, "/catalog.json.session", quietLogger())
	assert.Equal(t, want, reloaded.Keys())

	w = &Walker{Filter: NewFilter(true), Session: reloaded.Volume("Raw_Filesystem"), Logger: quietLogger()}
	tree, err := w.Walk(context.Background(), fs)
	require.NoError(t, err)
	assert.Empty(t, tree)
	assert.EqualValues(t, 1, w.Progress.Resumed)

	partial := session.Open(afero.NewMemMapFs(), "/partial.session", quietLogger())
	require.NoError(t, partial.MarkDone("Raw_Filesystem/home/user"))
	w = &Walker{Filter: NewFilter(true), Session: partial.Volume("Raw_Filesystem"), Logger: quietLogger()}
	tree, err = w.Walk(context.Background(), fs)
	require.NoError(t, err)
	_, ok := tree["home"]
	assert.False(t, ok, "completed directory walked again")
	assert.Contains(t, tree, "etc")
}

func TestWalker_Cancel(t *testing.T) {
	t.Run("before start", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		store := session.Open(afero.NewMemMapFs(), "/s", quietLogger())
		w := &Walker{Session: store.Volume("v"), Logger: quietLogger()}
		tree, err := w.Walk(ctx, evidenceFs(t))
		require.NoError(t, err)
		assert.Empty(t, tree)
		assert.True(t, w.Progress.Interrupted)
		assert.Equal(t, 0, store.Len())
	})

	t.Run("during walk", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		fs := &cancelFs{Fs: evidenceFs(t), path: "/etc/config.CONF", cancel: cancel}
		store := session.Open(afero.NewMemMapFs(), "/s", quietLogger())
		w := &Walker{Filter: NewFilter(true), Extensions: ParseExtensions("conf"), Session: store.Volume("v"), Logger: quietLogger()}
		tree, err := w.Walk(ctx, fs)
		require.NoError(t, err)

		assert.True(t, w.Progress.Interrupted)
		assert.Equal(t, Directory{"etc": Directory{"config.CONF": fixtureFile(4).SetContent("a=1")}}, tree)
		assert.Equal(t, []string{"v/etc"}, store.Keys())
	})
}

func TestWalker_Progress(t *testing.T) {
	fs := afero.NewMemMapFs()
	for i := 0; i < 1000; i++ {
		require.NoError(t, afero.WriteFile(fs, fmt.Sprintf("/data/%04d.dat", i), []byte("x"), 0644))
	}

	out := &bytes.Buffer{}
	w := &Walker{Output: out, Logger: quietLogger()}
	_, err := w.Walk(context.Background(), fs)
	require.NoError(t, err)

	assert.EqualValues(t, 1001, w.Progress.Scanned)
	assert.Equal(t, "\r       [*] Scanned 1000 items...", out.String())

	out.Reset()
	w = &Walker{Output: out, Verbose: true, Logger: quietLogger()}
	_, err = w.Walk(context.Background(), fs)
	require.NoError(t, err)
	assert.Empty(t, out.String())
}

func TestParseExtensions(t *testing.T) {
	tests := []struct {
		name string
		list string
		want map[string]bool
	}{
		{"empty", "", map[string]bool{}},
		{"simple", "txt,conf", map[string]bool{"txt": true, "conf": true}},
		{"normalized", " .TXT, Log ,,", map[string]bool{"txt": true, "log": true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseExtensions(tt.list))
		})
	}
}

func Test_decodeName(t *testing.T) {
	assert.Equal(t, "notes.txt", decodeName("notes.txt"))
	assert.Equal(t, "caf�.txt", decodeName("caf\xe9.txt"))

	taken := map[string]bool{}
	first := uniqueName(taken, decodeName("a\xff"))
	second := uniqueName(taken, decodeName("a\xfe"))
	third := uniqueName(taken, decodeName("a\xfd"))

	assert.Equal(t, "a�", first)
	assert.Equal(t, "a�~2", second)
	assert.Equal(t, "a�~3", third)
	assert.True(t, strings.HasPrefix(third, first))
}

// sizedFs reports the listed sizes for files and counts opens.
type sizedFs struct {
	afero.Fs
	sizes  map[string]int64
	opened map[string]int
}

func (fs *sizedFs) Open(name string) (afero.File, error) {
	fs.opened[name]++
	f, err := fs.Fs.Open(name)
	if err != nil {
		return nil, err
	}
	return &sizedFile{File: f, fs: fs, dir: name}, nil
}

type sizedFile struct {
	afero.File
	fs  *sizedFs
	dir string
}

func (f *sizedFile) Readdir(count int) ([]os.FileInfo, error) {
	infos, err := f.File.Readdir(count)
	for i, info := range infos {
		if size, ok := f.fs.sizes[path.Join(f.dir, info.Name())]; ok {
			infos[i] = sizedInfo{FileInfo: info, size: size}
		}
	}
	return infos, err
}

type sizedInfo struct {
	os.FileInfo
	size int64
}

func (i sizedInfo) Size() int64 { return i.size }

func TestWalker_HashLimit(t *testing.T) {
	tests := []struct {
		name  string
		size  int64
		want  string
		opens int
	}{
		{"at limit", 104857600, helloDigest, 1},
		{"above limit", 104857601, HashSkipped, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			base := afero.NewMemMapFs()
			writeFixture(t, base, map[string]string{"/evidence/disk.bin": "hello"})
			fs := &sizedFs{Fs: base, sizes: map[string]int64{"/evidence/disk.bin": tt.size}, opened: map[string]int{}}

			w := &Walker{Hash: true, Filter: NewFilter(false), Logger: quietLogger()}
			tree, err := w.Walk(context.Background(), fs)
			require.NoError(t, err)

			record, ok := tree["evidence"].(Directory)["disk.bin"].(*File)
			require.True(t, ok, "disk.bin: %v", tree)
			assert.Equal(t, tt.size, record.Size)
			assert.Equal(t, tt.want, record.SHA256)
			assert.Equal(t, tt.opens, fs.opened["/evidence/disk.bin"])
			assert.EqualValues(t, 0, w.Progress.Errors)
		})
	}
}
