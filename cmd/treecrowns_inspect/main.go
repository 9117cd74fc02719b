// Copyright 2026 The TreeCrowns Authors. SPDX-License-Identifier: Apache-2.0

// treecrowns_inspect loads every example of a tree-crown dataset, the same way a training program would,
// and prints a table with the original size, number of boxes and mask coverage of each image.
//
// Examples that fail to load (corrupt image, malformed annotation) are highlighted.
//
// Usage:
//
//	treecrowns_inspect -images=~/data/crowns/train -annotations=~/data/crowns/train -masks
//	treecrowns_inspect -images=~/data/crowns -manifest=split.csv -subset=valid -parallel=8
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path"
	"time"

	"github.com/gomlx/gomlx/pkg/ml/datasets"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/janpfeifer/must"
	"github.com/schollz/progressbar/v3"
	"github.com/treecrowns/treecrowns/internal/fsutil"
	"github.com/treecrowns/treecrowns/internal/report"
	"github.com/treecrowns/treecrowns/pkg/masks"
	"github.com/treecrowns/treecrowns/pkg/split"
	"github.com/treecrowns/treecrowns/pkg/treedataset"
	"k8s.io/klog/v2"
)

var (
	flagImages      = flag.String("images", "", "Directory with the `.jpg` images.")
	flagAnnotations = flag.String("annotations", "", "Directory with the `.xml` annotations. If empty, no boxes are loaded.")
	flagWidth       = flag.Int("width", treedataset.DefaultWidth, "Width images are resized to.")
	flagHeight      = flag.Int("height", treedataset.DefaultHeight, "Height images are resized to.")
	flagManifest    = flag.String("manifest", "", "CSV manifest written by treecrowns_split. If set, only the images "+
		"of --subset are inspected, and they are read from --images (not from the subset directory).")
	flagSubset    = flag.String("subset", "train", "Subset of the --manifest to inspect: train, valid or test.")
	flagMasks     = flag.Bool("masks", true, "Rasterize the boxes into masks and report their coverage.")
	flagParallel  = flag.Int("parallel", 0, "Number of examples loaded in parallel. If 0, it uses the number of cores.")
	flagMaxRows   = flag.Int("max_rows", 0, "Maximum number of examples listed in the table. Failed examples are always listed. 0 lists all.")
	flagBenchmark = flag.Bool("benchmark", false, "Also measure how fast the dataset yields examples to a training loop.")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()
	if *flagImages == "" {
		klog.Errorf("Missing --images directory. See 'treecrowns_inspect -help'.")
		os.Exit(1)
	}

	imagesDir := must.M1(fsutil.ReplaceTildeInDir(*flagImages))
	cfg := treedataset.New(path.Base(imagesDir), imagesDir).Size(*flagWidth, *flagHeight)
	if *flagAnnotations != "" {
		cfg.Annotations(must.M1(fsutil.ReplaceTildeInDir(*flagAnnotations)))
	}
	if *flagMasks {
		cfg.MaskTransform(masks.FromBoxes(*flagWidth, *flagHeight, dtypes.Float32))
	}
	if *flagManifest != "" {
		subset := must.M1(split.SubsetFromString(*flagSubset))
		manifestPath := must.M1(fsutil.ReplaceTildeInDir(*flagManifest))
		if !must.M1(fsutil.FileExists(manifestPath)) {
			klog.Fatalf("Manifest %q not found: create it with 'treecrowns_split -manifest=...'.", manifestPath)
		}
		imagesPerSubset := must.M1(split.ReadManifest(manifestPath))
		cfg.ImageList(imagesPerSubset[subset])
	}
	ds, err := cfg.Done()
	if err != nil {
		klog.Fatalf("Failed to create dataset: %+v", err)
	}
	fmt.Println(ds)

	start := time.Now()
	stats := inspectAll(ds, *flagParallel, *flagMasks)
	elapsed := time.Since(start)
	printStats(stats, *flagMaxRows, *flagMasks)
	fmt.Printf("Loaded %s examples in %s.\n", report.Count(len(stats)), elapsed.Round(time.Millisecond))

	if *flagBenchmark {
		benchmark(ds, *flagParallel)
	}
}

// benchmark reads one epoch through datasets.CustomParallel, as a training loop would.
func benchmark(ds *treedataset.Dataset, parallelism int) {
	ds.Reset()
	pDS := datasets.CustomParallel(ds).Parallelism(parallelism).Start()
	defer pDS.Done()
	start := time.Now()
	var count int
	for {
		_, _, _, err := pDS.Yield()
		if err == io.EOF {
			break
		}
		if err != nil {
			klog.Errorf("Benchmark stopped after %d examples: %+v", count, err)
			return
		}
		count++
	}
	elapsed := time.Since(start)
	fmt.Printf("Benchmark: %s examples in %s (%.1f examples/s).\n",
		report.Count(count), elapsed.Round(time.Millisecond), float64(count)/elapsed.Seconds())
}

func newProgressBar(total int) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription("Loading"),
		progressbar.OptionUseANSICodes(true),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("images"),
		progressbar.OptionSetTheme(progressbar.ThemeUnicode),
		progressbar.OptionClearOnFinish(),
	)
}
