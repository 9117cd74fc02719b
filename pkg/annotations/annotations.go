// Copyright 2026 The TreeCrowns Authors. SPDX-License-Identifier: Apache-2.0

// Package annotations parses Pascal VOC style XML annotation files into bounding boxes.
//
// Only the elements needed for detection are read: each `<object>` directly under the root element must
// have a `<bndbox>` with integer `<xmin>`, `<ymin>`, `<xmax>` and `<ymax>`. Other elements are ignored.
package annotations

import (
	"encoding/xml"
	"fmt"
	"image"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// BoundingBox is an integer pixel rectangle, in the coordinates of the original (not resized) image.
type BoundingBox struct {
	XMin, YMin, XMax, YMax int
}

// String implements fmt.Stringer.
func (b BoundingBox) String() string {
	return fmt.Sprintf("(%d,%d)-(%d,%d)", b.XMin, b.YMin, b.XMax, b.YMax)
}

// Rect returns the box as an image.Rectangle. Notice image.Rect canonicalizes inverted coordinates.
func (b BoundingBox) Rect() image.Rectangle {
	return image.Rect(b.XMin, b.YMin, b.XMax, b.YMax)
}

// Scale maps the box from an image of size `from` to an image of size `to`, rounding to the nearest pixel.
// It returns the box unchanged if `from` has a zero dimension.
func (b BoundingBox) Scale(from, to image.Point) BoundingBox {
	if from.X == 0 || from.Y == 0 {
		return b
	}
	sx := float64(to.X) / float64(from.X)
	sy := float64(to.Y) / float64(from.Y)
	round := func(v int, s float64) int {
		scaled := float64(v) * s
		if scaled < 0 {
			return int(scaled - 0.5)
		}
		return int(scaled + 0.5)
	}
	return BoundingBox{
		XMin: round(b.XMin, sx),
		YMin: round(b.YMin, sy),
		XMax: round(b.XMax, sx),
		YMax: round(b.YMax, sy),
	}
}

// Object is one annotated instance.
type Object struct {
	// Name is the class label, usually "Tree". Empty if not given.
	Name string
	Box  BoundingBox
}

// Annotation is the content of one annotation file.
type Annotation struct {
	// Filename of the image annotated, if given.
	Filename string

	// Size of the annotated image as declared in the file (`<size><width>/<height>`).
	// Zero if not declared or not parseable: it is informational only.
	Size image.Point

	// Objects in document order.
	Objects []Object
}

// Boxes returns the bounding boxes of all objects, in document order. It is never nil.
func (a *Annotation) Boxes() []BoundingBox {
	boxes := make([]BoundingBox, 0, len(a.Objects))
	for _, obj := range a.Objects {
		boxes = append(boxes, obj.Box)
	}
	return boxes
}

// Raw XML structure. Coordinates are read as optional strings so missing elements can be told apart
// from zeros.
type xmlAnnotation struct {
	Filename string `xml:"filename"`
	Size     struct {
		Width  string `xml:"width"`
		Height string `xml:"height"`
	} `xml:"size"`
	Objects []struct {
		Name   string `xml:"name"`
		BndBox *struct {
			XMin *string `xml:"xmin"`
			YMin *string `xml:"ymin"`
			XMax *string `xml:"xmax"`
			YMax *string `xml:"ymax"`
		} `xml:"bndbox"`
	} `xml:"object"`
}

// Decode reads a full annotation from r.
//
// It fails if the XML is malformed or if any object is missing its `bndbox` or one of its coordinates,
// or if a coordinate is not an integer. There is no partial result on failure.
func Decode(r io.Reader) (*Annotation, error) {
	var raw xmlAnnotation
	if err := xml.NewDecoder(r).Decode(&raw); err != nil {
		return nil, errors.Wrap(err, "failed to decode annotation XML")
	}
	ann := &Annotation{
		Filename: strings.TrimSpace(raw.Filename),
		Objects:  make([]Object, 0, len(raw.Objects)),
	}
	if w, errW := strconv.Atoi(strings.TrimSpace(raw.Size.Width)); errW == nil {
		if h, errH := strconv.Atoi(strings.TrimSpace(raw.Size.Height)); errH == nil {
			ann.Size = image.Pt(w, h)
		}
	}
	for objIdx, obj := range raw.Objects {
		if obj.BndBox == nil {
			return nil, errors.Errorf("object #%d has no <bndbox> element", objIdx)
		}
		var box BoundingBox
		fields := []struct {
			name  string
			value *string
			to    *int
		}{
			{"xmin", obj.BndBox.XMin, &box.XMin},
			{"ymin", obj.BndBox.YMin, &box.YMin},
			{"xmax", obj.BndBox.XMax, &box.XMax},
			{"ymax", obj.BndBox.YMax, &box.YMax},
		}
		for _, field := range fields {
			if field.value == nil {
				return nil, errors.Errorf("object #%d <bndbox> has no <%s> element", objIdx, field.name)
			}
			v, err := strconv.Atoi(strings.TrimSpace(*field.value))
			if err != nil {
				return nil, errors.Wrapf(err, "object #%d <bndbox><%s> is not an integer", objIdx, field.name)
			}
			*field.to = v
		}
		ann.Objects = append(ann.Objects, Object{Name: strings.TrimSpace(obj.Name), Box: box})
	}
	return ann, nil
}

// DecodeFile opens filePath and decodes it with Decode.
func DecodeFile(filePath string) (*Annotation, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open annotation file")
	}
	defer func() { _ = f.Close() }()
	ann, err := Decode(f)
	if err != nil {
		return nil, errors.WithMessagef(err, "annotation file %q", filePath)
	}
	return ann, nil
}

// Parse returns the bounding boxes of all objects in the annotation read from r, in document order.
// An annotation without objects yields an empty slice.
func Parse(r io.Reader) ([]BoundingBox, error) {
	ann, err := Decode(r)
	if err != nil {
		return nil, err
	}
	return ann.Boxes(), nil
}

// ParseFile is like Parse, but reads from the given file.
func ParseFile(filePath string) ([]BoundingBox, error) {
	ann, err := DecodeFile(filePath)
	if err != nil {
		return nil, err
	}
	return ann.Boxes(), nil
}
