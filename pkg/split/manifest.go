// Copyright 2026 The TreeCrowns Authors. SPDX-License-Identifier: Apache-2.0

package split

import (
	"encoding/csv"
	"os"
	"slices"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/pkg/errors"
)

// Column names of the manifest CSV.
const (
	ManifestIDCol         = "id"
	ManifestImageCol      = "image"
	ManifestAnnotationCol = "annotation"
	ManifestSubsetCol     = "split"
)

var manifestTypes = map[string]series.Type{
	ManifestIDCol:         series.String,
	ManifestImageCol:      series.String,
	ManifestAnnotationCol: series.String,
	ManifestSubsetCol:     series.String,
}

// ManifestDataFrame converts the assignment in report to a data frame with one row per pair,
// subsets in order train, valid, test.
func ManifestDataFrame(report *Report) dataframe.DataFrame {
	numPairs := report.NumPairs()
	ids := make([]string, 0, numPairs)
	imageFiles := make([]string, 0, numPairs)
	annotationFiles := make([]string, 0, numPairs)
	subsets := make([]string, 0, numPairs)
	for _, subset := range Subsets {
		for _, pair := range report.Subsets[subset] {
			ids = append(ids, pair.ID)
			imageFiles = append(imageFiles, pair.Image)
			annotationFiles = append(annotationFiles, pair.Annotation)
			subsets = append(subsets, subset.String())
		}
	}
	return dataframe.New(
		series.New(ids, series.String, ManifestIDCol),
		series.New(imageFiles, series.String, ManifestImageCol),
		series.New(annotationFiles, series.String, ManifestAnnotationCol),
		series.New(subsets, series.String, ManifestSubsetCol),
	)
}

// WriteManifest saves the assignment in report as a CSV file with the columns
// `id,image,annotation,split`.
func WriteManifest(filePath string, report *Report) error {
	df := ManifestDataFrame(report)
	if df.Err != nil {
		return errors.Wrap(df.Err, "failed to build split manifest")
	}
	f, err := os.Create(filePath)
	if err != nil {
		return errors.Wrapf(err, "failed to create split manifest")
	}
	if err = df.WriteCSV(f); err != nil {
		_ = f.Close()
		return errors.Wrapf(err, "failed to write split manifest to %q", filePath)
	}
	return errors.Wrapf(f.Close(), "failed to close split manifest %q", filePath)
}

// ReadManifest reads a manifest written by WriteManifest and returns the image file names of each subset,
// in the order they are listed.
//
// The result can be given to treedataset.Config.ImageList to build a dataset over one subset.
func ReadManifest(filePath string) (map[Subset][]string, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open split manifest")
	}
	defer func() { _ = f.Close() }()
	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse split manifest %q", filePath)
	}
	if len(records) == 0 {
		return nil, errors.Errorf("split manifest %q has no header", filePath)
	}
	for _, col := range []string{ManifestImageCol, ManifestSubsetCol} {
		if !slices.Contains(records[0], col) {
			return nil, errors.Errorf("split manifest %q has no %q column", filePath, col)
		}
	}
	imagesPerSubset := make(map[Subset][]string, NumSubsets)
	if len(records) == 1 {
		// Split of a directory without pairs: header only.
		return imagesPerSubset, nil
	}

	df := dataframe.LoadRecords(records, dataframe.WithTypes(manifestTypes))
	if df.Err != nil {
		return nil, errors.Wrapf(df.Err, "failed to parse split manifest %q", filePath)
	}
	imageFiles := df.Col(ManifestImageCol).Records()
	for rowIdx, subsetName := range df.Col(ManifestSubsetCol).Records() {
		subset, err := SubsetFromString(subsetName)
		if err != nil {
			return nil, errors.WithMessagef(err, "split manifest %q row %d", filePath, rowIdx+1)
		}
		imagesPerSubset[subset] = append(imagesPerSubset[subset], imageFiles[rowIdx])
	}
	return imagesPerSubset, nil
}
