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
	"encoding/json"
	"fmt"
	"io/ioutil"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/forensicanalysis/fscatalog"
)

// Merge is the fscatalog merge commandline subcommand
func Merge() *cobra.Command {
	var out string
	var splitItems int
	mergeCommand := &cobra.Command{
		Use:   "merge <catalog>...",
		Short: "Merge catalogs, e.g. split catalog files",
		Args:  requireCatalogs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var docs []fscatalog.Document
			for _, arg := range args {
				b, err := ioutil.ReadFile(arg) // #nosec
				if err != nil {
					return err
				}
				doc, err := fscatalog.DecodeDocument(b)
				if err != nil {
					return errors.Wrap(err, arg)
				}
				docs = append(docs, doc)
			}

			merged, err := fscatalog.MergeDocuments(docs...)
			if err != nil {
				return err
			}
			names, err := fscatalog.WriteDocument(afero.NewOsFs(), out, merged, splitItems)
			if err != nil {
				return err
			}
			for _, name := range names {
				fmt.Fprintf(cmd.OutOrStdout(), "merged %d catalogs into %s\n", len(docs), name)
			}
			return nil
		},
	}
	mergeCommand.Flags().StringVarP(&out, "out", "o", "merged.json", "output path")
	mergeCommand.Flags().IntVar(&splitItems, "split-items", 0, "split the catalog every N items")
	return mergeCommand
}

// Validate is the fscatalog validate commandline subcommand
func Validate() *cobra.Command {
	var noFail bool
	validateCommand := &cobra.Command{
		Use:   "validate <catalog>...",
		Short: "Validate catalogs",
		Args:  requireCatalogs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var flaws []string
			for _, arg := range args {
				b, err := ioutil.ReadFile(arg) // #nosec
				if err != nil {
					return err
				}
				fileFlaws, err := fscatalog.Validate(context.Background(), b)
				if err != nil {
					return errors.Wrap(err, arg)
				}
				for _, flaw := range fileFlaws {
					flaws = append(flaws, arg+": "+flaw)
				}
			}

			if len(flaws) > 0 {
				b, err := json.Marshal(flaws)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\n", b)
				if noFail {
					return nil
				}
				return errors.Errorf("%d flaws found", len(flaws))
			}
			return nil
		},
	}
	validateCommand.Flags().BoolVar(&noFail, "no-fail", false, "return exit code 0")
	return validateCommand
}

func requireCatalogs(_ *cobra.Command, args []string) error {
	if len(args) == 0 {
		return errors.New("requires at least one catalog")
	}
	for _, arg := range args {
		if _, err := os.Stat(arg); os.IsNotExist(err) {
			return errors.Wrap(os.ErrNotExist, arg)
		}
	}
	return nil
}
