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
	"fmt"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/forensicanalysis/fscatalog/elementstore"
)

// Element is the fscatalog element commandline subcommand
func Element() *cobra.Command {
	elementCommand := &cobra.Command{
		Use:   "element",
		Short: "Query the elements of a forensicstore catalog",
	}
	elementCommand.AddCommand(getCommand(), selectCommand(), allCommand(), searchCommand())
	return elementCommand
}

func getCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id> <forensicstore>",
		Short: "Retrieve a single element",
		Args:  requireStoreArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := elementstore.Open(args[1])
			if err != nil {
				return err
			}
			defer store.Close()
			element, err := store.Get(args[0])
			if err != nil {
				return err
			}
			fmt.Printf("%s\n", element)
			return nil
		},
	}
}

func selectCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "select <type> <forensicstore>",
		Short: "Retrieve a list of all elements of a specific type",
		Args:  requireStoreArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := elementstore.Open(args[1])
			if err != nil {
				return err
			}
			defer store.Close()
			elements, err := store.Select([]map[string]string{{"type": args[0]}})
			if err != nil {
				return err
			}
			printElements(elements)
			return nil
		},
	}
}

func allCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "all <forensicstore>",
		Short: "Retrieve all elements",
		Args:  requireStoreArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := elementstore.Open(args[0])
			if err != nil {
				return err
			}
			defer store.Close()
			elements, err := store.All()
			if err != nil {
				return err
			}
			printElements(elements)
			return nil
		},
	}
}

func searchCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "search <query> <forensicstore>",
		Short: "Full text search for elements",
		Args:  requireStoreArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := elementstore.Open(args[1])
			if err != nil {
				return err
			}
			defer store.Close()
			elements, err := store.Search(args[0])
			if err != nil {
				return err
			}
			printElements(elements)
			return nil
		},
	}
}

func printElements(elements []elementstore.JSONElement) {
	parts := make([]string, 0, len(elements))
	for _, element := range elements {
		parts = append(parts, string(element))
	}
	fmt.Print("[" + strings.Join(parts, ",") + "]")
}

// requireStoreArgs checks the argument count; the last argument is a store.
func requireStoreArgs(n int) cobra.PositionalArgs {
	return func(_ *cobra.Command, args []string) error {
		if len(args) != n {
			return errors.Errorf("requires %d arguments", n)
		}
		if _, err := os.Stat(args[n-1]); os.IsNotExist(err) {
			return errors.Wrap(os.ErrNotExist, args[n-1])
		}
		return nil
	}
}
