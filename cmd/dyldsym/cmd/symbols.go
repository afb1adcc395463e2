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
	"errors"
	"fmt"

	"github.com/apex/log"
	"github.com/fatih/color"
	"github.com/goretk/dyldsym"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func init() {
	rootCmd.AddCommand(symbolsCmd)

	symbolsCmd.Flags().BoolP("demangle", "d", false, "Demangle symbol names")
	symbolsCmd.Flags().BoolP("all", "a", false, "Include definitions outside the first section")
	symbolsCmd.Flags().BoolP("external", "e", false, "Only external definitions")
	symbolsCmd.Flags().Int("disass", 0, "Disassemble the first N instructions of each symbol")
	viper.BindPFlag("symbols.demangle", symbolsCmd.Flags().Lookup("demangle"))
	viper.BindPFlag("symbols.all", symbolsCmd.Flags().Lookup("all"))
	viper.BindPFlag("symbols.external", symbolsCmd.Flags().Lookup("external"))
	viper.BindPFlag("symbols.disass", symbolsCmd.Flags().Lookup("disass"))
}

var (
	colorImage = color.New(color.Bold, color.FgHiBlue).SprintfFunc()
	colorAddr  = color.New(color.Faint).SprintfFunc()
	colorName  = color.New(color.FgHiGreen).SprintFunc()
	colorKind  = color.New(color.FgHiYellow).SprintFunc()
	colorInst  = color.New(color.FgCyan).SprintfFunc()
)

// symbolsCmd represents the symbols command
var symbolsCmd = &cobra.Command{
	Use:           "symbols [IMAGE...]",
	Short:         "List the symbols defined by loaded images",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		filter := dyldsym.DefinedInFirstSection
		if viper.GetBool("symbols.all") {
			filter = dyldsym.DefinedNamed
		}
		if viper.GetBool("symbols.external") {
			filter = dyldsym.ExternalOnly
		}
		disass := viper.GetInt("symbols.disass")

		var demangler dyldsym.Demangler
		if viper.GetBool("symbols.demangle") {
			d, err := dyldsym.NewSymbolDemangler(dyldsym.DefaultDemangleCacheSize)
			if err != nil {
				return err
			}
			demangler = d
		}

		catalog, closeFn, err := openCatalog(filter)
		if err != nil {
			return err
		}
		defer closeFn()

		var images []*dyldsym.Image
		if len(args) == 0 {
			for img := range catalog.Images() {
				images = append(images, img)
			}
		} else {
			for _, name := range args {
				img, err := catalog.ImageByName(name)
				if err != nil {
					return err
				}
				images = append(images, img)
			}
		}

		var errs []error
		for _, img := range images {
			fmt.Println(colorImage("Image: %s, Index: %d", img.Name, img.Index))
			for sym, err := range img.Symbols() {
				if err != nil {
					log.WithError(err).Warnf("skipping %s", img.Name)
					errs = append(errs, err)
					break
				}
				fmt.Printf("  %s  %s  %-8s %-8s %s\n",
					colorAddr("%#016x", sym.Address),
					colorKind(fmt.Sprintf("%-9s", sym.Kind())),
					sym.Binding(),
					sym.Scope(),
					colorName(dyldsym.DisplayName(sym, demangler)))
				if disass > 0 {
					printInstructions(img, sym, disass)
				}
			}
		}
		return errors.Join(errs...)
	},
}

func printInstructions(img *dyldsym.Image, sym dyldsym.Symbol, n int) {
	insts, err := img.Disassemble(sym, n)
	if err != nil {
		log.WithError(err).Debugf("cannot disassemble %s", sym.Name)
		return
	}
	for _, inst := range insts {
		fmt.Println(colorInst("      %#x:  %s", inst.Addr, inst.Text))
	}
}
