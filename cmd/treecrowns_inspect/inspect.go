// Copyright 2026 The TreeCrowns Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"image"

	"github.com/charmbracelet/lipgloss"
	"github.com/pkg/errors"
	"github.com/treecrowns/treecrowns/internal/report"
	"github.com/treecrowns/treecrowns/internal/workerspool"
	"github.com/treecrowns/treecrowns/pkg/masks"
	"github.com/treecrowns/treecrowns/pkg/treedataset"
	"k8s.io/klog/v2"
)

// itemStats of one example.
type itemStats struct {
	id           string
	annotated    bool
	originalSize image.Point
	numBoxes     int
	coverage     float64
	err          error
}

// inspectItem loads and encodes the example at index, whose file-id is id.
func inspectItem(ds *treedataset.Dataset, index int, id string, withMasks bool) (stats itemStats) {
	stats.id = id
	stats.annotated = ds.HasAnnotation(stats.id)
	item, err := ds.Item(index)
	if err != nil {
		stats.err = err
		return
	}
	stats.originalSize = item.OriginalSize
	stats.numBoxes = len(item.Boxes)
	if _, err = ds.EncodeImage(item.Image); err != nil {
		stats.err = err
		return
	}
	mask, err := ds.EncodeMask(item.Boxes, item.OriginalSize)
	if err != nil {
		stats.err = err
		return
	}
	if withMasks {
		stats.coverage, err = masks.Coverage(mask)
		if err != nil {
			stats.err = errors.WithMessagef(err, "example %q", stats.id)
		}
	}
	return
}

// inspectAll loads all examples of the dataset using up to parallelism goroutines (0 for the number of cores).
// The results are in dataset order.
func inspectAll(ds *treedataset.Dataset, parallelism int, withMasks bool) []itemStats {
	pool := workerspool.NewDefault()
	if parallelism > 0 {
		pool = workerspool.New(parallelism)
	}
	klog.V(1).Infof("loading %d examples, up to %d at a time", ds.Len(), pool.MaxParallelism())
	ids := ds.IDs()
	stats := make([]itemStats, len(ids))
	pBar := newProgressBar(ds.Len())
	pool.Map(ds.Len(), func(index int) {
		stats[index] = inspectItem(ds, index, ids[index], withMasks)
		_ = pBar.Add(1)
	})
	_ = pBar.Finish()
	return stats
}

func printStats(stats []itemStats, maxRows int, withMasks bool) {
	headers := []string{"ID", "Original Size", "Annotated", "Boxes"}
	if withMasks {
		headers = append(headers, "Coverage")
	}
	headers = append(headers, "Error")
	table := report.New(headers...).
		Align(lipgloss.Left, lipgloss.Right, lipgloss.Center, lipgloss.Right, lipgloss.Right, lipgloss.Left)
	if !withMasks {
		table.Align(lipgloss.Left, lipgloss.Right, lipgloss.Center, lipgloss.Right, lipgloss.Left)
	}

	var numFailed, numBoxes, numAnnotated, numOmitted int
	for _, s := range stats {
		numBoxes += s.numBoxes
		if s.annotated {
			numAnnotated++
		}
		if s.err != nil {
			numFailed++
		} else if maxRows > 0 && table.NumRows() >= maxRows {
			numOmitted++
			continue
		}

		annotated := "-"
		if s.annotated {
			annotated = "✓"
		}
		cells := []string{s.id, "", annotated, ""}
		if s.err == nil {
			cells[1] = fmt.Sprintf("%dx%d", s.originalSize.X, s.originalSize.Y)
			cells[3] = report.Count(s.numBoxes)
		}
		if withMasks {
			coverage := ""
			if s.err == nil {
				coverage = report.Percent(s.coverage)
			}
			cells = append(cells, coverage)
		}
		if s.err != nil {
			cells = append(cells, s.err.Error())
			table.HighlightedRow(cells...)
		} else {
			cells = append(cells, "")
			table.Row(cells...)
		}
	}
	fmt.Println(table)
	if numOmitted > 0 {
		fmt.Printf("(%s examples omitted, see --max_rows)\n", report.Count(numOmitted))
	}
	fmt.Printf("%s examples, %s annotated, %s boxes, %s failed.\n",
		report.Count(len(stats)), report.Count(numAnnotated), report.Count(numBoxes), report.Count(numFailed))
}
