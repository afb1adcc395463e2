// This file is part of dyldsym.
//
// Copyright (C) 2024 dyldsym Authors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package cmd

import (
	"fmt"
	"io"
	"iter"
	"os"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/goretk/dyldsym"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(imagesCmd)
}

// Only the last column is colored; tabwriter counts escape sequences as cell width.
var colorPath = color.New(color.Bold, color.FgHiMagenta).SprintFunc()

// imagesCmd represents the images command
var imagesCmd = &cobra.Command{
	Use:           "images",
	Short:         "List loaded images",
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		catalog, closeFn, err := openCatalog(nil)
		if err != nil {
			return err
		}
		defer closeFn()

		return writeImages(os.Stdout, catalog.Images())
	},
}

func writeImages(out io.Writer, images iter.Seq[*dyldsym.Image]) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "INDEX\tBASE\tSLIDE\tPATH")
	for img := range images {
		fmt.Fprintf(w, "%d\t%#x\t%#x\t%s\n", img.Index, img.Base, img.Slide, colorPath(img.Name))
	}
	return w.Flush()
}
