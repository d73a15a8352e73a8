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

// Package session records which directories of a catalog run are complete,
// so an interrupted run can be resumed.
//
// The session file is a JSON array of keys. It is rewritten as a whole after
// every completed directory: the new content goes to a temporary file which
// is synced and renamed over the session file. A session file that cannot be
// parsed is ignored and the run starts fresh.
package session

import (
	"encoding/json"
	"os"
	"sort"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

const sessionFilePerm = 0600

// Store is the durable set of completed directory keys.
type Store struct {
	fs   afero.Fs
	path string

	// mu guards done and serialises rewrites of the session file
	mu   sync.Mutex
	done map[string]struct{}

	logger logrus.FieldLogger
}

// Open loads the session file at path. A missing file yields an empty
// session, an unreadable or corrupt one is logged and replaced.
func Open(fs afero.Fs, path string, logger logrus.FieldLogger) *Store {
	s := &Store{
		fs:     fs,
		path:   path,
		done:   map[string]struct{}{},
		logger: logger.WithField("session", path),
	}
	s.load()
	return s
}

func (s *Store) load() {
	b, err := afero.ReadFile(s.fs, s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.WithError(err).Warningln("Session file unreadable, starting fresh")
		}
		return
	}

	var keys []string
	if err := json.Unmarshal(b, &keys); err != nil {
		s.logger.WithError(err).Warningln("Session file corrupt, starting fresh")
		return
	}
	for _, key := range keys {
		s.done[key] = struct{}{}
	}
	s.logger.Infof("Session loaded. Skipping %d previously scanned directories.", len(keys))
}

// IsDone reports whether key was marked done.
func (s *Store) IsDone(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.done[key]
	return ok
}

// MarkDone adds key and rewrites the session file. The key stays in memory
// even if the file could not be written.
func (s *Store) MarkDone(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.done[key] = struct{}{}
	return s.save()
}

// Reset replaces the completed keys with keys and rewrites the session
// file.
func (s *Store) Reset(keys []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.done = make(map[string]struct{}, len(keys))
	for _, key := range keys {
		s.done[key] = struct{}{}
	}
	return s.save()
}

// Len returns the number of completed keys.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.done)
}

// Keys returns the completed keys in sorted order.
func (s *Store) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.keys()
}

func (s *Store) keys() []string {
	keys := make([]string, 0, len(s.done))
	for key := range s.done {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func (s *Store) save() error {
	b, err := json.Marshal(s.keys())
	if err != nil {
		return err
	}

	tmp := s.path + ".tmp"
	file, err := s.fs.OpenFile(tmp, os.O_CREATE|os.O_RDWR|os.O_TRUNC, sessionFilePerm)
	if err != nil {
		return errors.Wrap(err, "could not create session file")
	}
	defer file.Close()

	if _, err := file.Write(b); err != nil {
		return errors.Wrap(err, "could not write session file")
	}
	if err := file.Sync(); err != nil {
		return errors.Wrap(err, "could not sync session file")
	}
	if err := file.Close(); err != nil {
		return err
	}
	return s.fs.Rename(tmp, s.path)
}

// Volume returns a view of the store whose keys are scoped to one volume
// label, so equal paths on different volumes stay apart.
func (s *Store) Volume(label string) *Volume {
	return &Volume{store: s, prefix: label + "/"}
}

// Volume is the part of a session that belongs to one volume.
type Volume struct {
	store  *Store
	prefix string
}

// IsDone reports whether the volume relative path was marked done.
func (v *Volume) IsDone(path string) bool {
	return v.store.IsDone(v.prefix + path)
}

// MarkDone marks the volume relative path as done.
func (v *Volume) MarkDone(path string) error {
	return v.store.MarkDone(v.prefix + path)
}
