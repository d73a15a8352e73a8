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
	"context"
	"encoding/json"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forensicanalysis/fscatalog"
	"github.com/forensicanalysis/fscatalog/elementstore"
)

const helloDigest = "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"

func tempDir(t *testing.T) string {
	dir, err := ioutil.TempDir("", strings.ReplaceAll(t.Name(), "/", "_"))
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	return dir
}

func writeFiles(t *testing.T, dir string, files map[string]string) {
	for name, content := range files {
		p := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0750))
		require.NoError(t, ioutil.WriteFile(p, []byte(content), 0600))
	}
}

// evidenceDir is a directory image with one user file and one noise directory.
func evidenceDir(t *testing.T) string {
	dir := tempDir(t)
	writeFiles(t, dir, map[string]string{
		"home/user/notes.txt": "hello",
		"tmp/junk.txt":        "junk",
	})
	return dir
}

func execute(command *cobra.Command, args ...string) (string, error) {
	var buf bytes.Buffer
	command.SetArgs(args)
	command.SetOut(&buf)
	command.SetErr(&buf)
	err := command.Execute()
	return buf.String(), err
}

func readDocument(t *testing.T, name string) fscatalog.Document {
	b, err := ioutil.ReadFile(name) // #nosec
	require.NoError(t, err)
	doc, err := fscatalog.DecodeDocument(b)
	require.NoError(t, err)
	return doc
}

func userDir(t *testing.T, doc fscatalog.Document) fscatalog.Directory {
	volume, ok := doc["Raw_Filesystem"]
	require.True(t, ok, "volume missing: %v", doc)
	home, ok := volume["home"].(fscatalog.Directory)
	require.True(t, ok)
	user, ok := home["user"].(fscatalog.Directory)
	require.True(t, ok)
	return user
}

func TestCatalog(t *testing.T) {
	image := evidenceDir(t)

	tests := []struct {
		name      string
		args      []string
		wantTmp   bool
		wantHash  string
		wantValue string
	}{
		{"default", nil, false, "", ""},
		{"hash and read", []string{"--hash", "--read", "txt"}, false, helloDigest, "hello"},
		{"no filter", []string{"--no-filter"}, true, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := filepath.Join(tempDir(t), "catalog.json")

			output, err := execute(Catalog(), append([]string{image, "--out", out}, tt.args...)...)
			require.NoError(t, err, output)
			assert.Contains(t, output, "JSON Map saved to "+out)

			doc := readDocument(t, out)
			notes, ok := userDir(t, doc)["notes.txt"].(*fscatalog.File)
			require.True(t, ok)
			assert.Equal(t, int64(5), notes.Size)
			assert.Equal(t, tt.wantHash, notes.SHA256)
			if tt.wantValue != "" {
				require.NotNil(t, notes.Content)
				assert.Equal(t, tt.wantValue, *notes.Content)
			} else {
				assert.Nil(t, notes.Content)
			}

			tmp := doc["Raw_Filesystem"]["tmp"]
			if tt.wantTmp {
				assert.IsType(t, fscatalog.Directory{}, tmp)
			} else {
				assert.Equal(t, fscatalog.MarkerNoise, tmp)
			}

			b, err := ioutil.ReadFile(out + ".audit.log")
			require.NoError(t, err)
			assert.Contains(t, string(b), "Analysis started")
			assert.Contains(t, string(b), "run=")

			flaws, err := fscatalog.Validate(context.Background(), mustRead(t, out))
			require.NoError(t, err)
			assert.Empty(t, flaws)
		})
	}
}

func mustRead(t *testing.T, name string) []byte {
	b, err := ioutil.ReadFile(name) // #nosec
	require.NoError(t, err)
	return b
}

func TestCatalog_Resume(t *testing.T) {
	image := evidenceDir(t)
	out := filepath.Join(tempDir(t), "catalog.json")

	_, err := execute(Catalog(), image, "--out", out, "--resume")
	require.NoError(t, err)
	_, err = os.Stat(out + ".session")
	require.NoError(t, err)

	// every volume is done, the second run only merges the first catalog
	output, err := execute(Catalog(), image, "--out", out, "--resume")
	require.NoError(t, err)
	assert.Contains(t, output, "[Resume]")

	notes, ok := userDir(t, readDocument(t, out))["notes.txt"].(*fscatalog.File)
	require.True(t, ok)
	assert.Equal(t, int64(5), notes.Size)
}

func writeKeys(t *testing.T, name string, keys ...string) {
	b, err := json.Marshal(keys)
	require.NoError(t, err)
	require.NoError(t, ioutil.WriteFile(name, b, 0600))
}

func TestCatalog_ResumeWithoutCatalog(t *testing.T) {
	image := evidenceDir(t)
	out := filepath.Join(tempDir(t), "catalog.json")

	_, err := execute(Catalog(), image, "--out", out, "--resume")
	require.NoError(t, err)
	require.NoError(t, os.Remove(out))

	// the session claims every directory, but no catalog holds them
	output, err := execute(Catalog(), image, "--out", out, "--resume")
	require.NoError(t, err)
	assert.Contains(t, output, "No catalog holds Raw_Filesystem/")

	notes, ok := userDir(t, readDocument(t, out))["notes.txt"].(*fscatalog.File)
	require.True(t, ok)
	assert.Equal(t, int64(5), notes.Size)
}

func TestCatalog_ResumeUncommitted(t *testing.T) {
	image := evidenceDir(t)
	out := filepath.Join(tempDir(t), "catalog.json")

	_, err := execute(Catalog(), image, "--out", out, "--resume")
	require.NoError(t, err)

	// a later run completed etc but stopped before writing its catalog
	writeFiles(t, image, map[string]string{"etc/hostname": "host"})
	writeKeys(t, out+checkpointSuffix, "Raw_Filesystem/home", "Raw_Filesystem/home/user")
	writeKeys(t, out+sessionSuffix, "Raw_Filesystem/etc", "Raw_Filesystem/home", "Raw_Filesystem/home/user")

	output, err := execute(Catalog(), image, "--out", out, "--resume")
	require.NoError(t, err)
	assert.Contains(t, output, "No catalog holds Raw_Filesystem/etc")
	assert.Contains(t, output, "[Resume] Merging 1 previous catalog files")

	doc := readDocument(t, out)
	etc, ok := doc["Raw_Filesystem"]["etc"].(fscatalog.Directory)
	require.True(t, ok, "etc missing: %v", doc)
	assert.Contains(t, etc, "hostname")
	assert.Contains(t, userDir(t, doc), "notes.txt")

	var committed []string
	require.NoError(t, json.Unmarshal(mustRead(t, out+checkpointSuffix), &committed))
	assert.Contains(t, committed, "Raw_Filesystem/etc")
	assert.Contains(t, committed, "Raw_Filesystem/")
}

func TestCatalog_ResumeOtherImage(t *testing.T) {
	imageA := tempDir(t)
	writeFiles(t, imageA, map[string]string{"a/1.txt": "1", "a/2.txt": "2", "a/3.txt": "3"})
	imageB := evidenceDir(t)
	out := filepath.Join(tempDir(t), "catalog.json")

	_, err := execute(Catalog(), imageA, "--out", out, "--split-items", "1")
	require.NoError(t, err)
	_, err = os.Stat(strings.TrimSuffix(out, ".json") + "_003.json")
	require.NoError(t, err)
	_, err = os.Stat(out + sessionSuffix)
	assert.True(t, os.IsNotExist(err))

	output, err := execute(Catalog(), imageB, "--out", out, "--resume")
	require.NoError(t, err)
	assert.NotContains(t, output, "Merging")

	doc := readDocument(t, out)
	assert.NotContains(t, doc["Raw_Filesystem"], "a")
	assert.Contains(t, userDir(t, doc), "notes.txt")
	for i := 1; i <= 3; i++ {
		_, err := os.Stat(fscatalog.ChunkName(out, i))
		assert.True(t, os.IsNotExist(err), "chunk %d left behind", i)
	}
}

func TestCatalog_ResumeRemoved(t *testing.T) {
	image := evidenceDir(t)
	out := filepath.Join(tempDir(t), "catalog.json")

	_, err := execute(Catalog(), image, "--out", out, "--resume")
	require.NoError(t, err)
	for _, suffix := range []string{sessionSuffix, checkpointSuffix} {
		_, err = os.Stat(out + suffix)
		require.NoError(t, err)
	}

	_, err = execute(Catalog(), image, "--out", out)
	require.NoError(t, err)
	for _, suffix := range []string{sessionSuffix, checkpointSuffix} {
		_, err = os.Stat(out + suffix)
		assert.True(t, os.IsNotExist(err), suffix)
	}
}

func TestCatalog_Forensicstore(t *testing.T) {
	image := evidenceDir(t)
	out := filepath.Join(tempDir(t), "catalog.forensicstore")

	_, err := execute(Catalog(), image, "--out", out, "--format", "forensicstore")
	require.NoError(t, err)

	store, err := elementstore.Open(out)
	require.NoError(t, err)
	defer store.Close()

	names, err := store.Field("file", "name")
	require.NoError(t, err)
	require.Len(t, names, 1)
	assert.Equal(t, "notes.txt", names[0].String())

	statuses, err := store.Field("directory", "status")
	require.NoError(t, err)
	require.Len(t, statuses, 1)
	assert.Equal(t, string(fscatalog.MarkerNoise), statuses[0].String())

	// a second run without --resume must not overwrite the store
	_, err = execute(Catalog(), image, "--out", out, "--format", "forensicstore")
	assert.Error(t, err)
}

func TestCatalog_Args(t *testing.T) {
	dir := tempDir(t)
	tests := []struct {
		name string
		args []string
	}{
		{"no image", []string{"--out", filepath.Join(dir, "a.json")}},
		{"missing image", []string{filepath.Join(dir, "missing"), "--out", filepath.Join(dir, "a.json")}},
		{"no output", []string{dir}},
		{"bad format", []string{dir, "--out", filepath.Join(dir, "a.json"), "--format", "xml"}},
		{"unsupported media", []string{filepath.Join(dir, "disk.E01"), "--out", filepath.Join(dir, "a.json")}},
	}
	writeFiles(t, dir, map[string]string{"disk.E01": "EVF"})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(Catalog(), tt.args...)
			assert.Error(t, err)
		})
	}
}

func TestLoadConfig(t *testing.T) {
	dir := tempDir(t)
	configFile := filepath.Join(dir, "config.json")
	writeFiles(t, dir, map[string]string{
		"config.json": `{"output": "file.json", "hash": true, "split_items": 5, "read": "txt", "noise": ["data"]}`,
		"broken.json": `{"output": `,
	})

	t.Setenv("FSCATALOG_SPLIT_ITEMS", "7")
	t.Setenv("FSCATALOG_READ", "log")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fromFlags := defaultConfig()
	fromFlags.addFlags(flags)
	require.NoError(t, flags.Parse([]string{"--out", "flag.json", "--format", "Forensicstore"}))

	config, err := loadConfig(flags, fromFlags, configFile)
	require.NoError(t, err)
	assert.Equal(t, Config{
		Output:     "flag.json",
		Hash:       true,
		Read:       "log",
		SplitItems: 7,
		Format:     FormatForensicstore,
		Noise:      []string{"data"},
	}, config)
	assert.Equal(t, fscatalog.Noise, config.filter().Classify("data/x"))

	_, err = loadConfig(flags, fromFlags, filepath.Join(dir, "broken.json"))
	assert.Error(t, err)
	_, err = loadConfig(flags, fromFlags, filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}

func TestConfig_filter(t *testing.T) {
	tests := []struct {
		name   string
		config Config
		path   string
		want   fscatalog.Class
	}{
		{"default", Config{}, "proc/1", fscatalog.Noise},
		{"no filter", Config{NoFilter: true}, "proc/1", fscatalog.Normal},
		{"vital", Config{Vital: []string{"proc/1"}}, "proc/1/status", fscatalog.Vital},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.config.filter().Classify(tt.path))
		})
	}
}

const (
	catalogA = `{"Raw_Filesystem": {"home": {"a.txt": {"size": 1, "modified": "2020-04-01T12:30:00.000Z"}}}}`
	catalogB = `{"Raw_Filesystem": {"home": {"b.txt": {"size": 2, "modified": "2020-04-01T12:30:00.000Z"}}, "proc": "ignored_os_noise"}}`
	catalogC = `{"Raw_Filesystem": {"home": {"c.txt": {"size": 3, "modified": "2020-04-01T12:30:00.000Z", "sha256": "abc"}}}}`
)

func TestMerge(t *testing.T) {
	dir := tempDir(t)
	writeFiles(t, dir, map[string]string{"a.json": catalogA, "b.json": catalogB, "broken.json": "{"})
	out := filepath.Join(dir, "merged.json")

	output, err := execute(Merge(), filepath.Join(dir, "a.json"), filepath.Join(dir, "b.json"), "-o", out)
	require.NoError(t, err)
	assert.Contains(t, output, "merged 2 catalogs into "+out)

	doc := readDocument(t, out)
	home, ok := doc["Raw_Filesystem"]["home"].(fscatalog.Directory)
	require.True(t, ok)
	assert.Len(t, home, 2)
	assert.Equal(t, fscatalog.MarkerNoise, doc["Raw_Filesystem"]["proc"])

	_, err = execute(Merge(), filepath.Join(dir, "a.json"), filepath.Join(dir, "broken.json"), "-o", out)
	assert.Error(t, err)
	_, err = execute(Merge())
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	dir := tempDir(t)
	writeFiles(t, dir, map[string]string{"a.json": catalogA, "c.json": catalogC, "broken.json": "{"})

	tests := []struct {
		name       string
		args       []string
		wantErr    bool
		wantOutput string
	}{
		{"valid", []string{filepath.Join(dir, "a.json")}, false, ""},
		{"invalid hash", []string{filepath.Join(dir, "c.json")}, true, "invalid sha256"},
		{"no fail", []string{filepath.Join(dir, "c.json"), "--no-fail"}, false, "invalid sha256"},
		{"broken", []string{filepath.Join(dir, "broken.json")}, true, ""},
		{"missing", []string{filepath.Join(dir, "missing.json")}, true, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			output, err := execute(Validate(), tt.args...)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			assert.Contains(t, output, tt.wantOutput)
		})
	}
}

func TestNewLogger(t *testing.T) {
	out := filepath.Join(tempDir(t), "catalog.json")

	var buf bytes.Buffer
	logger, closeLog, err := newLogger(out, false, &buf)
	require.NoError(t, err)
	logger.Infoln("first entry")
	logger.Debugln("hidden entry")
	require.NoError(t, closeLog())

	assert.Contains(t, buf.String(), "first entry")
	assert.NotContains(t, buf.String(), "hidden entry")

	// the audit log is appended by every run
	logger, closeLog, err = newLogger(out, true, &buf)
	require.NoError(t, err)
	logger.Infoln("second entry")
	logger.Debugln("verbose entry")
	require.NoError(t, closeLog())
	assert.Contains(t, buf.String(), "verbose entry")

	b, err := ioutil.ReadFile(out + ".audit.log")
	require.NoError(t, err)
	audit := string(b)
	assert.Contains(t, audit, "first entry")
	assert.Contains(t, audit, "second entry")
	assert.NotContains(t, audit, "verbose entry")
	assert.Equal(t, 2, strings.Count(audit, "run="))
}
