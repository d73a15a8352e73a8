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

package cmd

import (
	"bytes"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/forensicanalysis/fscatalog/elementstore"
)

const (
	notesElement  = `{"id":"file--1","name":"notes.txt","path":"home/user/notes.txt","type":"file","volume":"Raw_Filesystem"}`
	passwdElement = `{"id":"file--2","name":"passwd","path":"etc/passwd","type":"file","volume":"Raw_Filesystem"}`
	procElement   = `{"id":"directory--3","path":"proc","status":"ignored_os_noise","type":"directory","volume":"Raw_Filesystem"}`
)

func stdout(f func()) []byte {
	old := os.Stdout // keep backup of the real stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	f()

	outC := make(chan []byte)
	go func() {
		var buf bytes.Buffer
		io.Copy(&buf, r) // nolint
		outC <- buf.Bytes()
	}()

	w.Close()
	os.Stdout = old
	return <-outC
}

func setup(t *testing.T) (string, string) {
	dir, err := ioutil.TempDir("", "fscatalogcmd")
	if err != nil {
		t.Fatal(err)
	}

	storePath := filepath.Join(dir, "example1.forensicstore")
	store, err := elementstore.New(storePath)
	if err != nil {
		t.Fatal(err)
	}
	for _, element := range []string{notesElement, passwdElement, procElement} {
		if _, err := store.Insert(elementstore.JSONElement(element)); err != nil {
			t.Fatal(err)
		}
	}
	if err := store.Close(); err != nil {
		t.Fatal(err)
	}

	return dir, storePath
}

func Test_allCommand(t *testing.T) {
	dir, storePath := setup(t)
	defer os.RemoveAll(dir)

	tests := []struct {
		name    string
		args    []string
		want    string
		wantErr bool
	}{
		{"all", []string{storePath}, "[" + notesElement + "," + passwdElement + "," + procElement + "]", false},
	}
	for _, tt := range tests {
		cmd := allCommand()
		cmd.Flags().Parse(tt.args)

		output := stdout(func() {
			err := cmd.RunE(cmd, tt.args)
			if (err != nil) != tt.wantErr {
				t.Errorf("allCommand() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
		})

		if string(output) != tt.want {
			t.Errorf("allCommand got = %v, want %v", string(output), tt.want)
		}
	}
}

func Test_getCommand(t *testing.T) {
	dir, storePath := setup(t)
	defer os.RemoveAll(dir)

	tests := []struct {
		name    string
		args    []string
		want    string
		wantErr bool
	}{
		{"get", []string{"file--2", storePath}, passwdElement + "\n", false},
		{"missing", []string{"file--9", storePath}, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := getCommand()
			cmd.Flags().Parse(tt.args)

			output := stdout(func() {
				err := cmd.RunE(cmd, tt.args)
				if (err != nil) != tt.wantErr {
					t.Errorf("getCommand() error = %v, wantErr %v", err, tt.wantErr)
					return
				}
			})

			if string(output) != tt.want {
				t.Errorf("getCommand got = %v, want %v", string(output), tt.want)
			}
		})
	}
}

func Test_printElements(t *testing.T) {
	type args struct {
		elements []elementstore.JSONElement
	}
	tests := []struct {
		name string
		args args
		want string
	}{
		{"printElements", args{elements: []elementstore.JSONElement{[]byte(`"test"`), []byte(`"foo"`)}}, `["test","foo"]`},
		{"empty", args{elements: nil}, `[]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			output := stdout(func() {
				printElements(tt.args.elements)
			})

			if string(output) != tt.want {
				t.Errorf("printElements got = %v, want %v", string(output), tt.want)
			}
		})
	}
}

func Test_selectCommand(t *testing.T) {
	dir, storePath := setup(t)
	defer os.RemoveAll(dir)

	tests := []struct {
		name    string
		args    []string
		want    string
		wantErr bool
	}{
		{"select file", []string{"file", storePath}, "[" + notesElement + "," + passwdElement + "]", false},
		{"select directory", []string{"directory", storePath}, "[" + procElement + "]", false},
		{"select unknown", []string{"process", storePath}, "[]", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := selectCommand()
			cmd.Flags().Parse(tt.args)

			output := stdout(func() {
				err := cmd.RunE(cmd, tt.args)
				if (err != nil) != tt.wantErr {
					t.Errorf("selectCommand() error = %v, wantErr %v", err, tt.wantErr)
					return
				}
			})

			if string(output) != tt.want {
				t.Errorf("selectCommand got = %v, want %v", string(output), tt.want)
			}
		})
	}
}

func Test_searchCommand(t *testing.T) {
	dir, storePath := setup(t)
	defer os.RemoveAll(dir)

	cmd := searchCommand()
	output := stdout(func() {
		if err := cmd.RunE(cmd, []string{"passwd", storePath}); err != nil {
			t.Errorf("searchCommand() error = %v", err)
		}
	})

	want := "[" + passwdElement + "]"
	if string(output) != want {
		t.Errorf("searchCommand got = %v, want %v", string(output), want)
	}
}

func Test_requireStoreArgs(t *testing.T) {
	dir, storePath := setup(t)
	defer os.RemoveAll(dir)

	tests := []struct {
		name    string
		n       int
		args    []string
		wantErr bool
	}{
		{"ok", 2, []string{"file--1", storePath}, false},
		{"too few", 2, []string{storePath}, true},
		{"missing store", 1, []string{filepath.Join(dir, "missing.forensicstore")}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := requireStoreArgs(tt.n)(nil, tt.args)
			if (err != nil) != tt.wantErr {
				t.Errorf("requireStoreArgs() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
