// Copyright 2026 The TreeCrowns Authors. SPDX-License-Identifier: Apache-2.0

// Package masks builds binary segmentation masks from bounding boxes.
//
// FromBoxes returns a function with the signature of treedataset.MaskTransform, so it can be plugged
// directly into a dataset:
//
//	ds, err := treedataset.New("train", dir).
//		Annotations(dir).
//		MaskTransform(masks.FromBoxes(512, 512, dtypes.Float32)).
//		Done()
package masks

import (
	"image"

	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
	"github.com/treecrowns/treecrowns/pkg/annotations"
)

// maskValue are the dtypes supported for masks.
type maskValue interface {
	float32 | float64 | uint8 | int32
}

// FromBoxes returns a mask builder that rasterizes the boxes into a `[height, width, 1]` tensor of the given
// dtype: 1 inside any box, 0 elsewhere.
//
// Boxes are scaled from the original image size to width x height and clipped to the mask. Empty boxes
// are ignored. Only float32, float64, uint8 and int32 are supported.
func FromBoxes(width, height int, dtype dtypes.DType) func(boxes []annotations.BoundingBox, originalSize image.Point) (*tensors.Tensor, error) {
	return func(boxes []annotations.BoundingBox, originalSize image.Point) (*tensors.Tensor, error) {
		if width <= 0 || height <= 0 {
			return nil, errors.Errorf("invalid mask size %dx%d", width, height)
		}
		bounds := image.Rect(0, 0, width, height)
		rects := make([]image.Rectangle, 0, len(boxes))
		for _, box := range boxes {
			rect := box.Scale(originalSize, bounds.Size()).Rect().Intersect(bounds)
			if !rect.Empty() {
				rects = append(rects, rect)
			}
		}
		switch dtype {
		case dtypes.Float32:
			return rasterize[float32](rects, width, height, dtype)
		case dtypes.Float64:
			return rasterize[float64](rects, width, height, dtype)
		case dtypes.Uint8:
			return rasterize[uint8](rects, width, height, dtype)
		case dtypes.Int32:
			return rasterize[int32](rects, width, height, dtype)
		}
		return nil, errors.Errorf("masks: dtype %s not supported", dtype)
	}
}

func rasterize[T maskValue](rects []image.Rectangle, width, height int, dtype dtypes.DType) (*tensors.Tensor, error) {
	t := tensors.FromShape(shapes.Make(dtype, height, width, 1))
	err := tensors.MutableFlatData[T](t, func(flat []T) {
		for _, rect := range rects {
			for y := rect.Min.Y; y < rect.Max.Y; y++ {
				row := flat[y*width : (y+1)*width]
				for x := rect.Min.X; x < rect.Max.X; x++ {
					row[x] = 1
				}
			}
		}
	})
	if err != nil {
		return nil, errors.WithMessage(err, "failed to fill mask")
	}
	return t, nil
}

// Coverage returns the fraction of mask elements that are non-zero.
func Coverage(mask *tensors.Tensor) (float64, error) {
	if mask == nil || mask.Size() == 0 {
		return 0, errors.New("masks.Coverage: empty mask")
	}
	switch mask.DType() {
	case dtypes.Float32:
		return coverage[float32](mask)
	case dtypes.Float64:
		return coverage[float64](mask)
	case dtypes.Uint8:
		return coverage[uint8](mask)
	case dtypes.Int32:
		return coverage[int32](mask)
	}
	return 0, errors.Errorf("masks.Coverage: dtype %s not supported", mask.DType())
}

func coverage[T maskValue](mask *tensors.Tensor) (float64, error) {
	var count int
	err := tensors.ConstFlatData[T](mask, func(flat []T) {
		for _, v := range flat {
			if v != 0 {
				count++
			}
		}
	})
	if err != nil {
		return 0, errors.WithMessage(err, "masks.Coverage")
	}
	return float64(count) / float64(mask.Size()), nil
}
