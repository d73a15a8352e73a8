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
	"io"

	"github.com/sirupsen/logrus"

	"github.com/forensicanalysis/fscatalog/session"
	"github.com/forensicanalysis/fscatalog/volume"
)

// Options configure an Engine.
type Options struct {
	// Hash enables SHA-256 digests of file content.
	Hash bool
	// Extensions lists the lower case extensions, without dot, of the files
	// whose content is captured.
	Extensions map[string]bool
	// Filter classifies paths. A nil Filter catalogs everything.
	Filter  *Filter
	Verbose bool
	// Session enables resuming. It is optional.
	Session *session.Store
	// Output receives the progress line. It is optional.
	Output io.Writer
}

// Engine catalogs all volumes of a source.
type Engine struct {
	options  Options
	logger   logrus.FieldLogger
	progress Progress
}

// New creates an Engine.
func New(options Options, logger logrus.FieldLogger) *Engine {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Engine{options: options, logger: logger}
}

// Progress returns the counters of the last Run.
func (e *Engine) Progress() Progress {
	return e.progress
}

// Run enumerates the volumes of src and walks each of them. Volumes whose
// root cannot be listed are logged and left out, as are volumes a resumed
// session already completed. When ctx is cancelled, the volumes walked so
// far are returned and Progress().Interrupted is set.
func (e *Engine) Run(ctx context.Context, src volume.Source) Document {
	e.progress = Progress{}
	doc := Document{}

	volume.Enumerate(src, e.logger, func(v volume.Volume) bool {
		if ctx.Err() != nil {
			e.progress.Interrupted = true
			return false
		}

		log := e.logger.WithField("volume", v.Label)
		walker := &Walker{
			Filter:     e.options.Filter,
			Hash:       e.options.Hash,
			Extensions: e.options.Extensions,
			Verbose:    e.options.Verbose,
			Output:     e.options.Output,
			Progress:   &e.progress,
			Logger:     log,
		}
		if e.options.Session != nil {
			tracker := e.options.Session.Volume(v.Label)
			if tracker.IsDone("") {
				e.progress.Resumed++
				log.Infoln("[Resume] Volume already complete, skipping")
				return true
			}
			walker.Session = tracker
		}

		log.Infof("[Scan] Walking %s (%s)", v.Label, v.Type)
		tree, err := walker.Walk(ctx, v.FS)
		if err != nil {
			e.progress.Errors++
			log.WithError(err).Errorln("Could not walk volume")
			return true
		}
		doc[v.Label] = tree
		return !e.progress.Interrupted
	})

	e.logger.WithFields(logrus.Fields{
		"volumes":     len(doc),
		"scanned":     e.progress.Scanned,
		"directories": e.progress.Directories,
		"files":       e.progress.Files,
		"noise":       e.progress.Noise,
		"denied":      e.progress.Denied,
		"resumed":     e.progress.Resumed,
		"errors":      e.progress.Errors,
	}).Infoln("Scan finished")
	if e.progress.Interrupted {
		e.logger.Warningln("Scan interrupted, the catalog is partial")
	}
	return doc
}
