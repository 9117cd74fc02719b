// Copyright 2026 The TreeCrowns Authors. SPDX-License-Identifier: Apache-2.0

// Package treedataset implements an index-addressable dataset over a directory of aerial images and
// (optionally) their tree-crown annotations, yielding image and mask tensors.
//
// A Dataset can be read by index (Dataset.Get, Dataset.Item), or used as a train.Dataset, yielding one example
// at a time, so it can be combined with the GoMLX datasets package (`datasets.CustomParallel`, `datasets.Batch`).
package treedataset

import (
	"fmt"
	"image"
	"io"
	"path"
	"strings"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	timage "github.com/gomlx/gomlx/pkg/core/tensors/images"
	"github.com/gomlx/gomlx/pkg/ml/train"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
	"github.com/treecrowns/treecrowns/internal/fsutil"
	"github.com/treecrowns/treecrowns/pkg/annotations"
	"k8s.io/klog/v2"
)

const (
	// ImageExt is the extension of the image files included in the dataset.
	ImageExt = ".jpg"

	// AnnotationExt is the extension of the annotation files.
	AnnotationExt = ".xml"

	// DefaultWidth and DefaultHeight of the images yielded.
	DefaultWidth, DefaultHeight = 512, 512
)

// ImageTransform converts the resized RGB image to the tensor yielded by the dataset.
type ImageTransform func(img image.Image) (*tensors.Tensor, error)

// MaskTransform builds the mask tensor of an example from its bounding boxes.
//
// The boxes are in the coordinates of the original image, whose size (before resizing) is given
// by originalSize. boxes is empty (never nil) for images without annotation.
type MaskTransform func(boxes []annotations.BoundingBox, originalSize image.Point) (*tensors.Tensor, error)

// Config for a Dataset. Create it with New, configure it with the chained methods and build the Dataset with Done.
type Config struct {
	name, imageDir, annotationDir string
	width, height                 int
	dtype                         dtypes.DType
	imageTransform                ImageTransform
	maskTransform                 MaskTransform
	imageList                     []string
	hasImageList                  bool
}

// New starts the configuration of a dataset over the `.jpg` images in imageDir.
//
// Defaults: no annotations, images resized to 512x512, float32 tensors, images encoded as
// `[height, width, 3]` tensors with values in [0, 1] and all-zero `[height, width, 1]` masks.
func New(name, imageDir string) *Config {
	return &Config{
		name:     name,
		imageDir: imageDir,
		width:    DefaultWidth,
		height:   DefaultHeight,
		dtype:    dtypes.Float32,
	}
}

// Annotations sets the directory with the `<id>.xml` annotations. If empty (the default), no boxes are loaded.
func (c *Config) Annotations(dir string) *Config {
	c.annotationDir = dir
	return c
}

// Size sets the width and height images are resized to.
func (c *Config) Size(width, height int) *Config {
	c.width, c.height = width, height
	return c
}

// DType sets the dtype of the default image and mask encodings. It is not used by custom transforms.
func (c *Config) DType(dtype dtypes.DType) *Config {
	c.dtype = dtype
	return c
}

// ImageTransform sets the function that converts the resized image to a tensor.
func (c *Config) ImageTransform(fn ImageTransform) *Config {
	c.imageTransform = fn
	return c
}

// MaskTransform sets the function that builds the mask from the bounding boxes.
func (c *Config) MaskTransform(fn MaskTransform) *Config {
	c.maskTransform = fn
	return c
}

// ImageList uses the given image file names (relative to the image directory) instead of listing it.
// Names not ending in `.jpg` are ignored. See split.ReadManifest for a source of such lists.
func (c *Config) ImageList(files []string) *Config {
	c.imageList = files
	c.hasImageList = true
	return c
}

// Dataset is a read-only view over the images (and annotations) found when it was built.
//
// Get and Item are safe for concurrent use. Yield is also safe, so the Dataset can be wrapped with
// `datasets.CustomParallel`.
type Dataset struct {
	name                    string
	imageDir, annotationDir string
	width, height           int
	dtype                   dtypes.DType
	imageTransform          ImageTransform
	maskTransform           MaskTransform
	toTensor                *timage.ToTensorConfig
	ids                     []string
	indices                 map[string]int
	imageFiles, annotations map[string]string

	// muNext protects next, the cursor used by Yield.
	muNext sync.Mutex
	next   int
}

var _ train.Dataset = (*Dataset)(nil)

// Done builds the Dataset: it lists the image directory (unless an explicit image list was given) and the
// annotation directory, and maps each file-id (file name without extension) to its files.
//
// The order of the examples is the order of the image list, or the sorted directory listing.
func (c *Config) Done() (*Dataset, error) {
	if c.width <= 0 || c.height <= 0 {
		return nil, errors.Errorf("invalid image size %dx%d for dataset %q", c.width, c.height, c.name)
	}
	ds := &Dataset{
		name:           c.name,
		imageDir:       c.imageDir,
		annotationDir:  c.annotationDir,
		width:          c.width,
		height:         c.height,
		dtype:          c.dtype,
		imageTransform: c.imageTransform,
		maskTransform:  c.maskTransform,
		toTensor:       timage.ToTensor(c.dtype),
		indices:        make(map[string]int),
		imageFiles:     make(map[string]string),
		annotations:    make(map[string]string),
	}

	imageFiles := c.imageList
	if !c.hasImageList {
		var err error
		imageFiles, err = fsutil.FilesWithSuffix(c.imageDir, ImageExt)
		if err != nil {
			return nil, errors.WithMessagef(err, "failed to build dataset %q", c.name)
		}
	}
	for _, fileName := range imageFiles {
		if !strings.HasSuffix(fileName, ImageExt) {
			continue
		}
		id := strings.TrimSuffix(fileName, ImageExt)
		if _, found := ds.indices[id]; !found {
			ds.indices[id] = len(ds.ids)
			ds.ids = append(ds.ids, id)
		}
		ds.imageFiles[id] = fileName
	}

	if c.annotationDir != "" {
		annotationFiles, err := fsutil.FilesWithSuffix(c.annotationDir, AnnotationExt)
		if err != nil {
			return nil, errors.WithMessagef(err, "failed to build dataset %q", c.name)
		}
		for _, fileName := range annotationFiles {
			ds.annotations[strings.TrimSuffix(fileName, AnnotationExt)] = fileName
		}
	}
	klog.V(1).Infof("dataset %q: %d images, %d annotations", ds.name, len(ds.ids), len(ds.annotations))
	return ds, nil
}

// Name implements train.Dataset.
func (ds *Dataset) Name() string { return ds.name }

// ShortName implements train.HasShortName: the first 3 characters of the name.
func (ds *Dataset) ShortName() string {
	runes := []rune(ds.name)
	if len(runes) <= 3 {
		return ds.name
	}
	return string(runes[:3])
}

// Len returns the number of images in the dataset.
func (ds *Dataset) Len() int { return len(ds.ids) }

// Size returns the width and height the images are resized to.
func (ds *Dataset) Size() (width, height int) { return ds.width, ds.height }

// IDs returns the file-ids of the examples, in order.
func (ds *Dataset) IDs() []string {
	ids := make([]string, len(ds.ids))
	copy(ids, ds.ids)
	return ids
}

// IndexOf returns the index of the example with the given file-id.
func (ds *Dataset) IndexOf(id string) (index int, found bool) {
	index, found = ds.indices[id]
	return
}

// HasAnnotation returns whether the example with the given file-id has an annotation file.
func (ds *Dataset) HasAnnotation(id string) bool {
	_, found := ds.annotations[id]
	return found
}

// Item is one example, before it is encoded as tensors.
type Item struct {
	ID string

	// ImagePath is the image file; AnnotationPath is empty if the example has no annotation.
	ImagePath, AnnotationPath string

	// OriginalSize of the image file, before resizing.
	OriginalSize image.Point

	// Image resized to the dataset size, opaque RGB.
	Image image.Image

	// Boxes in the original image coordinates. Empty if there is no annotation.
	Boxes []annotations.BoundingBox
}

// Item loads the example at the given index: it reads the image, resizes it with bilinear
// interpolation and parses its annotation, if there is one.
//
// It fails if the image is missing or can't be decoded, or if the annotation is malformed.
func (ds *Dataset) Item(index int) (*Item, error) {
	if index < 0 || index >= len(ds.ids) {
		return nil, errors.Errorf("index %d out of range for dataset %q with %d examples", index, ds.name, len(ds.ids))
	}
	id := ds.ids[index]
	item := &Item{
		ID:        id,
		ImagePath: path.Join(ds.imageDir, ds.imageFiles[id]),
		Boxes:     []annotations.BoundingBox{},
	}
	img, err := imaging.Open(item.ImagePath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read image %q", item.ImagePath)
	}
	item.OriginalSize = img.Bounds().Size()
	item.Image = imaging.Resize(toRGB(img), ds.width, ds.height, imaging.Linear)

	if annotationFile, found := ds.annotations[id]; found {
		item.AnnotationPath = path.Join(ds.annotationDir, annotationFile)
		item.Boxes, err = annotations.ParseFile(item.AnnotationPath)
		if err != nil {
			return nil, errors.WithMessagef(err, "example %q", id)
		}
	}
	return item, nil
}

// toRGB drops the alpha channel: colors are kept, and all pixels become opaque.
func toRGB(img image.Image) *image.NRGBA {
	rgb := imaging.Clone(img)
	for ii := 3; ii < len(rgb.Pix); ii += 4 {
		rgb.Pix[ii] = 0xFF
	}
	return rgb
}

// Get returns the image and mask tensors of the example at the given index.
//
// The image is encoded by the configured ImageTransform, or else as a `[height, width, 3]` tensor with values
// in [0, 1]. The mask is built by the configured MaskTransform, or else it is an all-zero `[height, width, 1]`
// tensor.
func (ds *Dataset) Get(index int) (img, mask *tensors.Tensor, err error) {
	var item *Item
	item, err = ds.Item(index)
	if err != nil {
		return
	}
	img, err = ds.EncodeImage(item.Image)
	if err != nil {
		err = errors.WithMessagef(err, "example %q", item.ID)
		return
	}
	mask, err = ds.EncodeMask(item.Boxes, item.OriginalSize)
	if err != nil {
		err = errors.WithMessagef(err, "example %q", item.ID)
		return
	}
	return
}

// EncodeImage converts a resized image to a tensor, using the ImageTransform if one was configured.
func (ds *Dataset) EncodeImage(img image.Image) (*tensors.Tensor, error) {
	if ds.imageTransform != nil {
		t, err := ds.imageTransform(img)
		if err != nil {
			return nil, errors.WithMessage(err, "image transform failed")
		}
		if t == nil {
			return nil, errors.New("image transform returned a nil tensor")
		}
		return t, nil
	}
	var t *tensors.Tensor
	err := exceptions.TryCatch[error](func() { t = ds.toTensor.Single(img) })
	if err != nil {
		return nil, errors.WithMessage(err, "failed to convert image to tensor")
	}
	if t == nil {
		return nil, errors.Errorf("image to tensor conversion does not support dtype %s", ds.dtype)
	}
	return t, nil
}

// EncodeMask builds the mask tensor, using the MaskTransform if one was configured.
func (ds *Dataset) EncodeMask(boxes []annotations.BoundingBox, originalSize image.Point) (*tensors.Tensor, error) {
	if boxes == nil {
		boxes = []annotations.BoundingBox{}
	}
	if ds.maskTransform != nil {
		t, err := ds.maskTransform(boxes, originalSize)
		if err != nil {
			return nil, errors.WithMessage(err, "mask transform failed")
		}
		if t == nil {
			return nil, errors.New("mask transform returned a nil tensor")
		}
		return t, nil
	}
	var t *tensors.Tensor
	err := exceptions.TryCatch[error](func() { t = tensors.FromShape(shapes.Make(ds.dtype, ds.height, ds.width, 1)) })
	if err != nil {
		return nil, errors.WithMessagef(err, "failed to create empty mask of dtype %s", ds.dtype)
	}
	return t, nil
}

// nextIndex returns the next index to yield and increments it. It returns -1 at the end of the epoch.
func (ds *Dataset) nextIndex() int {
	ds.muNext.Lock()
	defer ds.muNext.Unlock()
	if ds.next >= len(ds.ids) {
		return -1
	}
	index := ds.next
	ds.next++
	return index
}

// Reset implements train.Dataset. It restarts the epoch.
func (ds *Dataset) Reset() {
	ds.muNext.Lock()
	ds.next = 0
	ds.muNext.Unlock()
}

// Yield implements train.Dataset. It yields one example at a time, in order, and io.EOF at the end of the epoch:
//
//   - spec: the *Dataset itself.
//   - inputs: the image tensor.
//   - labels: the mask tensor.
func (ds *Dataset) Yield() (spec any, inputs, labels []*tensors.Tensor, err error) {
	index := ds.nextIndex()
	if index < 0 {
		err = io.EOF
		return
	}
	img, mask, err := ds.Get(index)
	if err != nil {
		err = errors.WithMessagef(err, "while yielding example #%d of %q", index, ds.name)
		return
	}
	spec = ds
	inputs = []*tensors.Tensor{img}
	labels = []*tensors.Tensor{mask}
	return
}

// String implements fmt.Stringer.
func (ds *Dataset) String() string {
	return fmt.Sprintf("treedataset %q: %d images (%d annotated) from %q, resized to %dx%d",
		ds.name, len(ds.ids), ds.numAnnotated(), ds.imageDir, ds.width, ds.height)
}

func (ds *Dataset) numAnnotated() int {
	var n int
	for _, id := range ds.ids {
		if ds.HasAnnotation(id) {
			n++
		}
	}
	return n
}
