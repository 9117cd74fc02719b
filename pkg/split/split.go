// Copyright 2026 The TreeCrowns Authors. SPDX-License-Identifier: Apache-2.0

// Package split partitions a flat directory of `<id>.jpg` images and `<id>.xml` annotations into
// `train/`, `valid/` and `test/` sub-directories.
//
// Example:
//
//	report, err := split.Build(baseDir).Ratios(0.8, 0.1, 0.1).Seed(42).Done()
//	if err != nil {
//		klog.Fatalf("Failed to split %q: %+v", baseDir, err)
//	}
//	fmt.Println(report)
package split

import (
	"fmt"
	"math"
	"math/rand"
	"os"
	"path"
	"time"

	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"github.com/treecrowns/treecrowns/internal/fsutil"
	"k8s.io/klog/v2"
)

// Subset identifies one of the output partitions.
type Subset int

const (
	Train Subset = iota
	Valid
	Test
	NumSubsets
)

// Subsets lists all subsets, in output order.
var Subsets = [NumSubsets]Subset{Train, Valid, Test}

// String returns the sub-directory name of the subset.
func (s Subset) String() string {
	switch s {
	case Train:
		return "train"
	case Valid:
		return "valid"
	case Test:
		return "test"
	}
	return "unknown"
}

// SubsetFromString is the inverse of Subset.String.
func SubsetFromString(name string) (Subset, error) {
	for _, s := range Subsets {
		if s.String() == name {
			return s, nil
		}
	}
	return NumSubsets, errors.Errorf("unknown subset %q, valid values are train, valid and test", name)
}

// Default ratios, as used for the NeonTree corpus.
const (
	DefaultTrainRatio = 0.8
	DefaultValidRatio = 0.1
	DefaultTestRatio  = 0.1
)

// Config holds the configuration of a split. Create it with Build, configure it with the
// chained methods and execute it with Done.
type Config struct {
	sourceDir, outputDir string
	ratios               [NumSubsets]float64
	rng                  *rand.Rand
	manifestPath         string
	progress             bool
}

// Build starts the configuration of the split of the pairs found in sourceDir.
// By default, the subsets are created under sourceDir itself, with ratios 0.8/0.1/0.1 and a
// clock-seeded shuffle.
func Build(sourceDir string) *Config {
	return &Config{
		sourceDir: sourceDir,
		outputDir: sourceDir,
		ratios:    [NumSubsets]float64{DefaultTrainRatio, DefaultValidRatio, DefaultTestRatio},
	}
}

// Ratios sets the fraction of pairs that go into each subset.
//
// The test ratio is only checked: test always takes what is left after train and valid are
// filled (`floor(n*ratio)` each). A warning is logged if the ratios don't sum to 1.
func (c *Config) Ratios(train, valid, test float64) *Config {
	c.ratios = [NumSubsets]float64{train, valid, test}
	return c
}

// Seed makes the shuffle reproducible. Without it the shuffle is seeded from the clock.
func (c *Config) Seed(seed int64) *Config {
	c.rng = rand.New(rand.NewSource(seed))
	return c
}

// WithRand uses the given random number generator for the shuffle.
func (c *Config) WithRand(rng *rand.Rand) *Config {
	c.rng = rng
	return c
}

// OutputDir sets where the train/valid/test sub-directories are created. Defaults to the source directory.
func (c *Config) OutputDir(dir string) *Config {
	c.outputDir = dir
	return c
}

// Manifest makes Done also write a CSV file with the assignment of each pair. See WriteManifest.
func (c *Config) Manifest(filePath string) *Config {
	c.manifestPath = filePath
	return c
}

// Progress displays a progress bar while copying the files.
func (c *Config) Progress(enabled bool) *Config {
	c.progress = enabled
	return c
}

// Report describes what a split did.
type Report struct {
	SourceDir, OutputDir string

	// NumImages and NumAnnotations found in the source directory.
	NumImages, NumAnnotations int

	// Subsets holds the pairs copied into each subset, in shuffled order.
	Subsets [NumSubsets][]Pair

	// BytesCopied is the total size of the copied files.
	BytesCopied int64
}

// NumPairs is the number of paired files found, which is the same as the number of pairs split.
func (r *Report) NumPairs() int {
	var n int
	for _, pairs := range r.Subsets {
		n += len(pairs)
	}
	return n
}

// SubsetDir returns the directory the subset's pairs were copied to.
func (r *Report) SubsetDir(subset Subset) string {
	return path.Join(r.OutputDir, subset.String())
}

// String implements fmt.Stringer.
func (r *Report) String() string {
	return fmt.Sprintf("Found %d images and %d XML files, %d paired. Train: %d, Valid: %d, Test: %d",
		r.NumImages, r.NumAnnotations, r.NumPairs(),
		len(r.Subsets[Train]), len(r.Subsets[Valid]), len(r.Subsets[Test]))
}

// Done executes the split: it finds the pairs, shuffles them, creates the subset directories if missing
// and copies (not moves) both files of each pair into its subset directory.
//
// There is no rollback: if it fails midway, the files already copied are left in place.
func (c *Config) Done() (*Report, error) {
	for _, ratio := range c.ratios {
		if !isValidRatio(ratio) {
			return nil, errors.Errorf("split ratios must be finite and non-negative, got %v", c.ratios)
		}
	}
	if sum := c.ratios[Train] + c.ratios[Valid] + c.ratios[Test]; math.Abs(sum-1.0) > 1e-6 {
		klog.Warningf("split ratios %v sum to %g, not 1: the test subset takes whatever is left", c.ratios, sum)
	}

	listing, err := FindPairs(c.sourceDir)
	if err != nil {
		return nil, errors.WithMessagef(err, "failed to split %q", c.sourceDir)
	}
	klog.V(1).Infof("split: found %d images and %d annotations in %q, %d paired",
		listing.NumImages, listing.NumAnnotations, c.sourceDir, len(listing.Pairs))

	rng := c.rng
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UTC().UnixNano()))
	}
	pairs := listing.Pairs
	rng.Shuffle(len(pairs), func(i, j int) { pairs[i], pairs[j] = pairs[j], pairs[i] })

	numTrain, numValid, _, err := Counts(len(pairs), c.ratios[Train], c.ratios[Valid])
	if err != nil {
		return nil, err
	}
	report := &Report{
		SourceDir:      c.sourceDir,
		OutputDir:      c.outputDir,
		NumImages:      listing.NumImages,
		NumAnnotations: listing.NumAnnotations,
	}
	report.Subsets[Train] = pairs[:numTrain]
	report.Subsets[Valid] = pairs[numTrain : numTrain+numValid]
	report.Subsets[Test] = pairs[numTrain+numValid:]

	sourceInfo, err := os.Stat(c.sourceDir)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to stat source directory %q", c.sourceDir)
	}
	for _, subset := range Subsets {
		subsetDir := report.SubsetDir(subset)
		if subsetInfo, err := os.Stat(subsetDir); err == nil && os.SameFile(sourceInfo, subsetInfo) {
			return nil, errors.Wrapf(fsutil.ErrSameFile, "directory of subset %s %q is the source directory",
				subset, subsetDir)
		}
	}
	for _, subset := range Subsets {
		if err = os.MkdirAll(report.SubsetDir(subset), 0755); err != nil {
			return nil, errors.Wrapf(err, "failed to create directory for subset %s", subset)
		}
	}

	var pBar *progressbar.ProgressBar
	if c.progress {
		pBar = progressbar.NewOptions(2*len(pairs),
			progressbar.OptionSetDescription("Copying"),
			progressbar.OptionUseANSICodes(true),
			progressbar.OptionEnableColorCodes(true),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("files"),
			progressbar.OptionSetTheme(progressbar.ThemeUnicode),
		)
	}
	for _, subset := range Subsets {
		subsetDir := report.SubsetDir(subset)
		for _, pair := range report.Subsets[subset] {
			for _, name := range [2]string{pair.Image, pair.Annotation} {
				n, err := fsutil.CopyFile(path.Join(c.sourceDir, name), path.Join(subsetDir, name))
				if err != nil {
					return nil, errors.WithMessagef(err, "failed copying pair %q to %s", pair.ID, subset)
				}
				report.BytesCopied += n
				if pBar != nil {
					_ = pBar.Add(1)
				}
			}
		}
		klog.V(1).Infof("split: copied %d pairs to %q", len(report.Subsets[subset]), subsetDir)
	}
	if pBar != nil {
		_ = pBar.Close()
		fmt.Println()
	}

	if c.manifestPath != "" {
		if err = WriteManifest(c.manifestPath, report); err != nil {
			return nil, err
		}
	}
	return report, nil
}
