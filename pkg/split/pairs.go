// Copyright 2026 The TreeCrowns Authors. SPDX-License-Identifier: Apache-2.0

package split

import (
	"math"
	"strings"

	"github.com/pkg/errors"
	"github.com/treecrowns/treecrowns/internal/fsutil"
	"k8s.io/klog/v2"
)

const (
	// ImageExt is the extension of the image files considered.
	ImageExt = ".jpg"

	// AnnotationExt is the extension of the annotation files considered.
	AnnotationExt = ".xml"
)

// Pair is an image and its same-named annotation file, split as one unit.
type Pair struct {
	// ID is the file name without extension, shared by both files.
	ID string

	// Image and Annotation are file names (not paths), relative to the source directory.
	Image, Annotation string
}

// Listing is the result of scanning a source directory.
type Listing struct {
	// NumImages and NumAnnotations count all files with the image and annotation extensions.
	NumImages, NumAnnotations int

	// Pairs sorted by image file name. Unpaired files are not included.
	Pairs []Pair
}

// FindPairs lists dir and pairs each `<id>.jpg` with `<id>.xml`.
//
// Images without an annotation and annotations without an image are dropped, they only show up in the counts.
// It fails if dir doesn't exist or can't be read.
func FindPairs(dir string) (*Listing, error) {
	imageFiles, err := fsutil.FilesWithSuffix(dir, ImageExt)
	if err != nil {
		return nil, err
	}
	annotationFiles, err := fsutil.FilesWithSuffix(dir, AnnotationExt)
	if err != nil {
		return nil, err
	}
	hasAnnotation := make(map[string]bool, len(annotationFiles))
	for _, name := range annotationFiles {
		hasAnnotation[name] = true
	}

	listing := &Listing{
		NumImages:      len(imageFiles),
		NumAnnotations: len(annotationFiles),
		Pairs:          make([]Pair, 0, len(imageFiles)),
	}
	for _, imageFile := range imageFiles {
		id := strings.TrimSuffix(imageFile, ImageExt)
		annotationFile := id + AnnotationExt
		if !hasAnnotation[annotationFile] {
			klog.V(2).Infof("split: image %q has no annotation, skipping", imageFile)
			continue
		}
		listing.Pairs = append(listing.Pairs, Pair{ID: id, Image: imageFile, Annotation: annotationFile})
	}
	return listing, nil
}

// Counts returns how many of n examples go to each subset: train and valid are `floor(n*ratio)`, and test gets
// the remainder.
//
// Counts are clamped so that the subsets are contiguous, non-overlapping ranges of [0, n): if
// trainRatio+validRatio > 1, valid and then test shrink.
func Counts(n int, trainRatio, validRatio float64) (train, valid, test int, err error) {
	if n < 0 {
		err = errors.Errorf("invalid number of examples %d", n)
		return
	}
	if !isValidRatio(trainRatio) || !isValidRatio(validRatio) {
		err = errors.Errorf("ratios must be finite and non-negative, got train=%g, valid=%g", trainRatio, validRatio)
		return
	}
	train = min(int(math.Floor(float64(n)*trainRatio)), n)
	valid = min(int(math.Floor(float64(n)*validRatio)), n-train)
	test = n - train - valid
	return
}

func isValidRatio(r float64) bool {
	return r >= 0 && !math.IsInf(r, 0) && !math.IsNaN(r)
}
