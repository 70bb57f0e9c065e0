package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"grismfit/internal/spectra"
)

// templatesCmd lists the built-in library
var templatesCmd = &cobra.Command{
	Use:   "templates",
	Short: "List the built-in template library",
	RunE:  runTemplates,
}

func runTemplates(cmd *cobra.Command, args []string) error {
	lib := spectra.Library{}
	base := spectra.DefaultLibraryParams().WithFWHM(cfg.Templates.FWHM, cfg.Templates.Velocity)

	modes := []struct {
		label  string
		params spectra.LibraryParams
	}{
		{"coarse search set (line complexes)", base.WithLineComplexes(true)},
		{"extraction set (individual lines)", base.WithLineComplexes(false)},
		{"stellar set", base.WithStars(true)},
	}
	for _, mode := range modes {
		set, err := lib.Templates(mode.params)
		if err != nil {
			return err
		}
		fmt.Printf("%s: %d templates\n", mode.label, set.Len())
		for i := 0; i < set.Len(); i++ {
			t := set.At(i)
			kind := "continuum"
			if t.IsLine() {
				kind = "line"
			}
			fmt.Printf("  %-28s %-10s %6d points\n", t.Name, kind, len(t.Wave))
		}
		fmt.Println()
	}

	fmt.Println("line complexes (vacuum rest wavelengths, A):")
	for _, lc := range spectra.LineComplexes() {
		fmt.Printf("  %-22s %v\n", lc.Name, lc.Waves)
	}
	return nil
}
