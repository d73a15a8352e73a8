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
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/forensicanalysis/fscatalog"
	"github.com/forensicanalysis/fscatalog/elementstore"
	"github.com/forensicanalysis/fscatalog/session"
	"github.com/forensicanalysis/fscatalog/volume"
)

// Catalog is the fscatalog catalog commandline subcommand
func Catalog() *cobra.Command {
	flagConfig := defaultConfig()
	var configFile string
	catalogCommand := &cobra.Command{
		Use:   "catalog <image>",
		Short: "Catalog the files of a disk image",
		Long: `Catalog the files of a disk image, a split image (disk.001), an SQLite
archive or a directory. The catalog is written as JSON or as a forensicstore.`,
		Args: requireOneImage,
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := loadConfig(cmd.Flags(), flagConfig, configFile)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runCatalog(ctx, args[0], config, cmd.OutOrStdout())
		},
	}
	flagConfig.addFlags(catalogCommand.Flags())
	catalogCommand.Flags().StringVar(&configFile, "config", "", "JSON config file")
	return catalogCommand
}

func runCatalog(ctx context.Context, image string, config Config, stdout io.Writer) error {
	if err := os.MkdirAll(filepath.Dir(config.Output), 0750); err != nil {
		return err
	}
	logger, closeLog, err := newLogger(config.Output, config.Verbose, stdout)
	if err != nil {
		return err
	}
	defer closeLog() // nolint:errcheck

	logger.WithField("image", image).Infoln("Analysis started")

	src, err := volume.Open(image)
	if err != nil {
		logger.WithError(err).Errorln("Could not open image")
		return err
	}
	defer src.Close()

	fs := afero.NewOsFs()
	options := fscatalog.Options{
		Hash:       config.Hash,
		Extensions: fscatalog.ParseExtensions(config.Read),
		Filter:     config.filter(),
		Verbose:    config.Verbose,
		Output:     stdout,
	}
	var previous []fscatalog.Document
	if config.Resume {
		options.Session, previous, err = openSession(fs, config, logger)
	} else {
		err = removeSession(fs, config.Output)
	}
	if err != nil {
		logger.WithError(err).Errorln("Could not prepare session")
		return err
	}

	engine := fscatalog.New(options, logger)
	doc := engine.Run(ctx, src)
	fmt.Fprintln(stdout)

	if len(previous) > 0 {
		logger.Infof("[Resume] Merging %d previous catalog files", len(previous))
		doc, err = fscatalog.MergeDocuments(append(previous, doc)...)
		if err != nil {
			return err
		}
	}

	switch config.Format {
	case FormatForensicstore:
		err = writeStore(config, doc, logger)
	default:
		var names []string
		names, err = fscatalog.WriteDocument(fs, config.Output, doc, config.SplitItems)
		for _, name := range names {
			logger.Infof("[+] JSON Map saved to %s", name)
		}
	}
	if err != nil {
		logger.WithError(err).Errorln("Could not write catalog")
		return err
	}

	if options.Session != nil {
		checkpoint := session.Open(fs, config.Output+checkpointSuffix, logger)
		if err := checkpoint.Reset(options.Session.Keys()); err != nil {
			logger.WithError(err).Errorln("Could not write checkpoint")
			return err
		}
	}

	if engine.Progress().Interrupted {
		logger.Warningln("Scan interrupted, run again with --resume to continue")
	}
	return nil
}

const (
	// completed directories, written while scanning
	sessionSuffix = ".session"
	// directories held by the catalog at the output path
	checkpointSuffix = ".checkpoint"
)

// openSession loads the session of an earlier run and the catalogs it
// wrote. Completed directories that no written catalog holds are scanned
// again. Without a session the earlier catalogs are not merged.
func openSession(fs afero.Fs, config Config, logger logrus.FieldLogger) (*session.Store, []fscatalog.Document, error) {
	store := session.Open(fs, config.Output+sessionSuffix, logger)
	if store.Len() == 0 {
		return store, nil, nil
	}

	previous, err := previousCatalogs(fs, config)
	if err != nil {
		return nil, nil, err
	}
	committed := map[string]bool{}
	if len(previous) > 0 {
		for _, key := range session.Open(fs, config.Output+checkpointSuffix, logger).Keys() {
			committed[key] = true
		}
	}

	var keep, lost []string
	for _, key := range store.Keys() {
		if committed[key] {
			keep = append(keep, key)
		} else {
			lost = append(lost, key)
		}
	}
	if len(lost) > 0 {
		shown := lost
		if len(shown) > 10 {
			shown = shown[:10]
		}
		logger.WithField("directories", len(lost)).Warningf("[Resume] No catalog holds %s, scanning again", strings.Join(shown, ", "))
	}
	if len(keep) == 0 {
		previous = nil
	}
	return store, previous, store.Reset(keep)
}

// removeSession deletes the session files of an earlier run.
func removeSession(fs afero.Fs, out string) error {
	for _, name := range []string{out + sessionSuffix, out + checkpointSuffix} {
		if err := fs.Remove(name); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

func previousCatalogs(fs afero.Fs, config Config) ([]fscatalog.Document, error) {
	if config.Format == FormatForensicstore {
		if _, err := os.Stat(config.Output); os.IsNotExist(err) {
			return nil, nil
		}
		store, err := elementstore.Open(config.Output)
		if err != nil {
			return nil, err
		}
		defer store.Close()
		b, err := afero.ReadFile(store.Fs(), fscatalog.CatalogFile)
		if err != nil {
			return nil, err
		}
		doc, err := fscatalog.DecodeDocument(b)
		if err != nil {
			return nil, err
		}
		return []fscatalog.Document{doc}, nil
	}

	names := []string{config.Output}
	for i := 1; ; i++ {
		chunk := fscatalog.ChunkName(config.Output, i)
		if exists, _ := afero.Exists(fs, chunk); !exists {
			break
		}
		names = append(names, chunk)
	}

	var docs []fscatalog.Document
	for _, name := range names {
		b, err := afero.ReadFile(fs, name)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		doc, err := fscatalog.DecodeDocument(b)
		if err != nil {
			return nil, errors.Wrap(err, name)
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func writeStore(config Config, doc fscatalog.Document, logger logrus.FieldLogger) error {
	if config.Resume {
		if err := os.Remove(config.Output); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	store, err := elementstore.New(config.Output)
	if err != nil {
		return err
	}
	n, err := fscatalog.ExportElements(store, doc)
	if err != nil {
		store.Close()
		return err
	}
	if err := store.Close(); err != nil {
		return err
	}
	logger.Infof("[+] %d elements saved to %s", n, config.Output)
	return nil
}

func requireOneImage(_ *cobra.Command, args []string) error {
	if len(args) != 1 {
		return errors.New("requires exactly one image")
	}
	if _, err := os.Stat(args[0]); os.IsNotExist(err) {
		return errors.Wrap(os.ErrNotExist, args[0])
	}
	return nil
}
