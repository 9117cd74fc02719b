// Copyright 2026 The TreeCrowns Authors. SPDX-License-Identifier: Apache-2.0

// treecrowns_split partitions a directory of `<id>.jpg` images and their `<id>.xml` annotations into
// `train/`, `valid/` and `test/` sub-directories.
//
// Usage:
//
//	treecrowns_split -source=~/data/crowns -train=0.8 -valid=0.1 -test=0.1 -seed=42 -manifest=split.csv
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/janpfeifer/must"
	"github.com/treecrowns/treecrowns/internal/fsutil"
	"github.com/treecrowns/treecrowns/internal/report"
	"github.com/treecrowns/treecrowns/pkg/split"
	"k8s.io/klog/v2"
)

var (
	flagSource = flag.String("source", "", "Directory with the `.jpg` images and `.xml` annotations to split.")
	flagOutput = flag.String("output", "", "Directory where the train/valid/test sub-directories are created. "+
		"Defaults to --source.")
	flagTrain    = flag.Float64("train", 0.8, "Fraction of the pairs copied to train/.")
	flagValid    = flag.Float64("valid", 0.1, "Fraction of the pairs copied to valid/.")
	flagTest     = flag.Float64("test", 0.1, "Fraction of the pairs copied to test/. The test subset takes whatever is left.")
	flagSeed     = flag.Int64("seed", -1, "Seed for the shuffle. If negative, the clock is used and the split is not reproducible.")
	flagManifest = flag.String("manifest", "", "If set, a CSV file with the subset of each pair is written to this path.")
	flagProgress = flag.Bool("progress", true, "Display a progress bar while copying.")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()
	if *flagSource == "" {
		if flag.NArg() != 1 {
			klog.Errorf("Missing --source directory. See 'treecrowns_split -help'.")
			os.Exit(1)
		}
		*flagSource = flag.Arg(0)
	}

	sourceDir := must.M1(fsutil.ReplaceTildeInDir(*flagSource))
	cfg := split.Build(sourceDir).
		Ratios(*flagTrain, *flagValid, *flagTest).
		Progress(*flagProgress)
	if *flagOutput != "" {
		cfg.OutputDir(must.M1(fsutil.ReplaceTildeInDir(*flagOutput)))
	}
	if *flagManifest != "" {
		cfg.Manifest(must.M1(fsutil.ReplaceTildeInDir(*flagManifest)))
	}
	if *flagSeed >= 0 {
		cfg.Seed(*flagSeed)
	}
	r, err := cfg.Done()
	if err != nil {
		klog.Fatalf("Failed to split %q: %+v", sourceDir, err)
	}
	printReport(r)
}

func printReport(r *split.Report) {
	fmt.Printf("Found %s images and %s annotations in %q: %s pairs.\n",
		report.Count(r.NumImages), report.Count(r.NumAnnotations), r.SourceDir, report.Count(r.NumPairs()))
	table := report.New("Subset", "Pairs", "Fraction", "Directory").
		Align(lipgloss.Left, lipgloss.Right, lipgloss.Right, lipgloss.Left)
	numPairs := r.NumPairs()
	for _, subset := range split.Subsets {
		n := len(r.Subsets[subset])
		fraction := 0.0
		if numPairs > 0 {
			fraction = float64(n) / float64(numPairs)
		}
		cells := []string{subset.String(), report.Count(n), report.Percent(fraction), r.SubsetDir(subset)}
		if n == 0 && numPairs > 0 {
			table.HighlightedRow(cells...)
		} else {
			table.Row(cells...)
		}
	}
	fmt.Println(table)
	fmt.Printf("Copied %s.\n", report.Bytes(r.BytesCopied))
}
