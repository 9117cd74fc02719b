// Copyright 2026 The TreeCrowns Authors. SPDX-License-Identifier: Apache-2.0

package split

import (
	"fmt"
	"os"
	"path"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/treecrowns/treecrowns/internal/fsutil"
)

// writeCorpus creates numPairs paired files plus the given extra (unpaired) files in dir.
func writeCorpus(t *testing.T, dir string, numPairs int, extra ...string) {
	t.Helper()
	for ii := 0; ii < numPairs; ii++ {
		id := fmt.Sprintf("tile_%03d", ii)
		require.NoError(t, os.WriteFile(path.Join(dir, id+ImageExt), []byte("jpg "+id), 0644))
		require.NoError(t, os.WriteFile(path.Join(dir, id+AnnotationExt), []byte("<annotation/>"), 0644))
	}
	for _, name := range extra {
		require.NoError(t, os.WriteFile(path.Join(dir, name), []byte(name), 0644))
	}
}

// listSubset returns the sorted file names in the subset directory.
func listSubset(t *testing.T, outputDir string, subset Subset) []string {
	t.Helper()
	entries, err := os.ReadDir(path.Join(outputDir, subset.String()))
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	return names
}

func TestCounts(t *testing.T) {
	testCases := []struct {
		n                              int
		trainRatio, validRatio         float64
		wantTrain, wantValid, wantTest int
	}{
		{10, 0.8, 0.1, 8, 1, 1},
		{7, 0.8, 0.1, 5, 0, 2},
		{0, 0.8, 0.1, 0, 0, 0},
		{100, 0.7, 0.2, 70, 20, 10},
		{10, 0.9, 0.5, 9, 1, 0},
		{10, 1.2, 0.1, 10, 0, 0},
		{10, 0.5, 0.2, 5, 2, 3},
	}
	for _, tc := range testCases {
		train, valid, test, err := Counts(tc.n, tc.trainRatio, tc.validRatio)
		require.NoError(t, err)
		assert.Equalf(t, [3]int{tc.wantTrain, tc.wantValid, tc.wantTest}, [3]int{train, valid, test},
			"Counts(%d, %g, %g)", tc.n, tc.trainRatio, tc.validRatio)
	}

	// Counts always add up to n when ratios sum to 1.
	for n := 0; n < 200; n++ {
		for _, ratios := range [][2]float64{{0.8, 0.1}, {0.7, 0.15}, {1.0 / 3, 1.0 / 3}, {0, 0}, {1, 0}} {
			train, valid, test, err := Counts(n, ratios[0], ratios[1])
			require.NoError(t, err)
			require.Equal(t, n, train+valid+test)
			require.GreaterOrEqual(t, test, 0)
		}
	}

	_, _, _, err := Counts(10, -0.1, 0.5)
	require.Error(t, err)
}

func TestFindPairs(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"d.jpg", "a.jpg", "a.xml", "b.jpg", "c.xml", "d.xml", "e.png", "notes.txt"} {
		require.NoError(t, os.WriteFile(path.Join(dir, name), nil, 0644))
	}
	listing, err := FindPairs(dir)
	require.NoError(t, err)
	assert.Equal(t, 3, listing.NumImages)
	assert.Equal(t, 3, listing.NumAnnotations)
	assert.Equal(t, []Pair{
		{ID: "a", Image: "a.jpg", Annotation: "a.xml"},
		{ID: "d", Image: "d.jpg", Annotation: "d.xml"},
	}, listing.Pairs)

	_, err = FindPairs(path.Join(dir, "missing"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestSplit(t *testing.T) {
	sourceDir := t.TempDir()
	outputDir := t.TempDir()
	writeCorpus(t, sourceDir, 20, "orphan.jpg", "lonely.xml")

	report, err := Build(sourceDir).OutputDir(outputDir).Ratios(0.8, 0.1, 0.1).Seed(42).Done()
	require.NoError(t, err)
	assert.Equal(t, 21, report.NumImages)
	assert.Equal(t, 21, report.NumAnnotations)
	assert.Equal(t, 20, report.NumPairs())
	assert.Len(t, report.Subsets[Train], 16)
	assert.Len(t, report.Subsets[Valid], 2)
	assert.Len(t, report.Subsets[Test], 2)
	assert.Greater(t, report.BytesCopied, int64(0))
	assert.Equal(t, path.Join(outputDir, "valid"), report.SubsetDir(Valid))

	// The subsets are a partition of the paired files.
	seen := make(map[string]Subset)
	for _, subset := range Subsets {
		files := listSubset(t, outputDir, subset)
		require.Len(t, files, 2*len(report.Subsets[subset]))
		for _, name := range files {
			previous, found := seen[name]
			require.Falsef(t, found, "file %q is both in %s and %s", name, previous, subset)
			seen[name] = subset
		}
		for _, pair := range report.Subsets[subset] {
			assert.Equal(t, subset, seen[pair.Image])
			assert.Equal(t, subset, seen[pair.Annotation])
		}
	}
	assert.Len(t, seen, 40)
	assert.NotContains(t, seen, "orphan.jpg")
	assert.NotContains(t, seen, "lonely.xml")

	// Files are copied, not moved.
	listing, err := FindPairs(sourceDir)
	require.NoError(t, err)
	assert.Len(t, listing.Pairs, 20)
	contents, err := os.ReadFile(path.Join(outputDir, Train.String(), report.Subsets[Train][0].Image))
	require.NoError(t, err)
	assert.Equal(t, "jpg "+report.Subsets[Train][0].ID, string(contents))
}

func TestSplitInPlaceAndReproducible(t *testing.T) {
	var assignments [2][NumSubsets][]Pair
	for ii := range assignments {
		dir := t.TempDir()
		writeCorpus(t, dir, 10)
		report, err := Build(dir).Seed(7).Done()
		require.NoError(t, err)
		assignments[ii] = report.Subsets
		for _, subset := range Subsets {
			assert.Len(t, listSubset(t, dir, subset), 2*len(report.Subsets[subset]))
		}
	}
	assert.Equal(t, assignments[0], assignments[1])
}

func TestSplitEmpty(t *testing.T) {
	dir := t.TempDir()
	writeCorpus(t, dir, 0, "orphan.jpg")
	report, err := Build(dir).Done()
	require.NoError(t, err)
	assert.Equal(t, 0, report.NumPairs())
	for _, subset := range Subsets {
		assert.Empty(t, listSubset(t, dir, subset))
	}
}

func TestSplitErrors(t *testing.T) {
	_, err := Build(path.Join(t.TempDir(), "missing")).Done()
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = Build(t.TempDir()).Ratios(0.8, -0.1, 0.3).Done()
	require.Error(t, err)
}

func TestSplitOutputOverlapsSource(t *testing.T) {
	root := t.TempDir()
	sourceDir := path.Join(root, Train.String())
	require.NoError(t, os.Mkdir(sourceDir, 0755))
	writeCorpus(t, sourceDir, 10)

	_, err := Build(sourceDir).OutputDir(root).Seed(3).Done()
	require.ErrorIs(t, err, fsutil.ErrSameFile)

	// Source files are left untouched, and nothing was copied elsewhere.
	for ii := 0; ii < 10; ii++ {
		id := fmt.Sprintf("tile_%03d", ii)
		contents, err := os.ReadFile(path.Join(sourceDir, id+ImageExt))
		require.NoError(t, err)
		require.Equal(t, "jpg "+id, string(contents))
	}
	for _, subset := range []Subset{Valid, Test} {
		assert.NoDirExists(t, path.Join(root, subset.String()))
	}
}

func TestManifest(t *testing.T) {
	sourceDir := t.TempDir()
	outputDir := t.TempDir()
	writeCorpus(t, sourceDir, 10)
	manifestPath := path.Join(outputDir, "split.csv")

	report, err := Build(sourceDir).OutputDir(outputDir).Ratios(0.6, 0.2, 0.2).Seed(1).Manifest(manifestPath).Done()
	require.NoError(t, err)

	imagesPerSubset, err := ReadManifest(manifestPath)
	require.NoError(t, err)
	for _, subset := range Subsets {
		var want []string
		for _, pair := range report.Subsets[subset] {
			want = append(want, pair.Image)
		}
		assert.Equalf(t, want, imagesPerSubset[subset], "subset %s", subset)
	}

	_, err = ReadManifest(path.Join(outputDir, "missing.csv"))
	require.Error(t, err)

	// A directory without pairs writes a header-only manifest, read back as no images.
	emptyDir := t.TempDir()
	writeCorpus(t, emptyDir, 0, "orphan.jpg")
	emptyManifest := path.Join(emptyDir, "split.csv")
	_, err = Build(emptyDir).Manifest(emptyManifest).Done()
	require.NoError(t, err)
	imagesPerSubset, err = ReadManifest(emptyManifest)
	require.NoError(t, err)
	for _, subset := range Subsets {
		assert.Empty(t, imagesPerSubset[subset])
	}

	// Missing columns.
	badManifest := path.Join(emptyDir, "bad.csv")
	require.NoError(t, os.WriteFile(badManifest, []byte("id,image\ntile_000,tile_000.jpg\n"), 0644))
	_, err = ReadManifest(badManifest)
	require.Error(t, err)
}

func TestSubsetFromString(t *testing.T) {
	for _, subset := range Subsets {
		got, err := SubsetFromString(subset.String())
		require.NoError(t, err)
		assert.Equal(t, subset, got)
	}
	_, err := SubsetFromString("holdout")
	require.Error(t, err)
}
