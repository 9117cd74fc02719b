// Copyright 2026 The TreeCrowns Authors. SPDX-License-Identifier: Apache-2.0

package annotations

import (
	"fmt"
	"image"
	"os"
	"path"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// vocXML builds a minimal VOC annotation with one object per box.
func vocXML(boxes ...BoundingBox) string {
	var sb strings.Builder
	sb.WriteString("<annotation>\n  <filename>tile.jpg</filename>\n")
	sb.WriteString("  <size><width>400</width><height>400</height><depth>3</depth></size>\n")
	for _, b := range boxes {
		_, _ = fmt.Fprintf(&sb, "  <object>\n    <name>Tree</name>\n    <difficult>0</difficult>\n"+
			"    <bndbox><xmin>%d</xmin><ymin>%d</ymin><xmax>%d</xmax><ymax>%d</ymax></bndbox>\n  </object>\n",
			b.XMin, b.YMin, b.XMax, b.YMax)
	}
	sb.WriteString("</annotation>\n")
	return sb.String()
}

func TestParse(t *testing.T) {
	want := []BoundingBox{{10, 20, 50, 60}, {0, 3, 399, 17}}
	boxes, err := Parse(strings.NewReader(vocXML(want...)))
	require.NoError(t, err)
	assert.Equal(t, want, boxes)

	// No objects: empty, not nil.
	boxes, err = Parse(strings.NewReader(vocXML()))
	require.NoError(t, err)
	assert.NotNil(t, boxes)
	assert.Empty(t, boxes)

	// Whitespace around numbers and a different root element are accepted.
	boxes, err = Parse(strings.NewReader(
		"<doc><object><bndbox><xmin> 1 </xmin><ymin>2</ymin><xmax>3</xmax><ymax>\n4\n</ymax></bndbox></object></doc>"))
	require.NoError(t, err)
	assert.Equal(t, []BoundingBox{{1, 2, 3, 4}}, boxes)

	// Only objects directly under the root are boxes.
	boxes, err = Parse(strings.NewReader(
		"<annotation><part><object><bndbox><xmin>1</xmin><ymin>2</ymin><xmax>3</xmax><ymax>4</ymax></bndbox></object></part></annotation>"))
	require.NoError(t, err)
	assert.Empty(t, boxes)
}

func TestParseErrors(t *testing.T) {
	testCases := map[string]string{
		"malformed":      "<annotation><object>",
		"missing bndbox": "<annotation><object><name>Tree</name></object></annotation>",
		"missing ymax":   "<annotation><object><bndbox><xmin>1</xmin><ymin>2</ymin><xmax>3</xmax></bndbox></object></annotation>",
		"not integer":    "<annotation><object><bndbox><xmin>1.5</xmin><ymin>2</ymin><xmax>3</xmax><ymax>4</ymax></bndbox></object></annotation>",
		"empty value":    "<annotation><object><bndbox><xmin></xmin><ymin>2</ymin><xmax>3</xmax><ymax>4</ymax></bndbox></object></annotation>",
	}
	for name, contents := range testCases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(contents))
			require.Error(t, err)
		})
	}

	// A broken second object fails the whole file.
	contents := strings.Replace(vocXML(BoundingBox{1, 1, 2, 2}, BoundingBox{3, 3, 4, 4}),
		"<ymax>4</ymax>", "", 1)
	_, err := Parse(strings.NewReader(contents))
	require.ErrorContains(t, err, "object #1")
}

func TestDecodeFile(t *testing.T) {
	dir := t.TempDir()
	filePath := path.Join(dir, "tile.xml")
	require.NoError(t, os.WriteFile(filePath, []byte(vocXML(BoundingBox{10, 10, 50, 50})), 0644))

	ann, err := DecodeFile(filePath)
	require.NoError(t, err)
	assert.Equal(t, "tile.jpg", ann.Filename)
	assert.Equal(t, image.Pt(400, 400), ann.Size)
	require.Len(t, ann.Objects, 1)
	assert.Equal(t, "Tree", ann.Objects[0].Name)

	boxes, err := ParseFile(filePath)
	require.NoError(t, err)
	assert.Equal(t, []BoundingBox{{10, 10, 50, 50}}, boxes)

	_, err = ParseFile(path.Join(dir, "missing.xml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestBoundingBoxScale(t *testing.T) {
	box := BoundingBox{XMin: 100, YMin: 60, XMax: 400, YMax: 300}
	scaled := box.Scale(image.Pt(800, 600), image.Pt(512, 512))
	assert.Equal(t, BoundingBox{XMin: 64, YMin: 51, XMax: 256, YMax: 256}, scaled)
	assert.Equal(t, image.Rect(64, 51, 256, 256), scaled.Rect())

	// Degenerate original size leaves the box unchanged.
	assert.Equal(t, box, box.Scale(image.Point{}, image.Pt(512, 512)))
}
