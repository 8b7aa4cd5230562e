// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package umicount

import (
	"fmt"
	"strings"
)

// Stats represents statistics of a counting run.
type Stats struct {
	// Alignments is the number of records read.
	Alignments int64
	// SkippedUnmapped counts unmapped records and records without a reference.
	SkippedUnmapped int64
	// SkippedSecondary counts secondary alignments.
	SkippedSecondary int64
	// SkippedSupplementary counts supplementary alignments. The primary
	// alignment of a chimeric read carries the same tags and is counted.
	SkippedSupplementary int64
	// SkippedMate counts second mates of properly paired reads; their first
	// mate is counted instead.
	SkippedMate int64
	// SkippedMultiMapped counts reads dropped by Opts.UniqueOnly.
	SkippedMultiMapped int64
	// Untagged counts mapped records without a feature.
	Untagged int64
	// Tagged counts records with a feature.
	Tagged int64

	// MissingUMI and MissingCell count tagged records without a UMI or cell
	// barcode.
	MissingUMI  int64
	MissingCell int64
	// InvalidBarcodes counts barcodes with bases other than ACGTN, or longer
	// than barcode.MaxLen.
	InvalidBarcodes int64
	// DiscardedUMIs and DiscardedCells count records whose barcode is not in
	// the corresponding whitelist.
	DiscardedUMIs  int64
	DiscardedCells int64

	// Counted is the number of records added to the store.
	Counted int64
	// CellsFlushed is the number of cells flushed in streaming mode.
	CellsFlushed int64
	// Entries is the number of (feature, cell, sample) entries that passed the
	// thresholds. UMIEntries and ReadEntries are the number of lines in the
	// UMI and read matrices.
	Entries     int64
	UMIEntries  int64
	ReadEntries int64
}

// String returns a multi-line summary.
func (s Stats) String() string {
	b := strings.Builder{}
	line := func(name string, v int64) { fmt.Fprintf(&b, "%s: %d\n", name, v) }
	line("alignments", s.Alignments)
	line("skipped unmapped", s.SkippedUnmapped)
	line("skipped secondary", s.SkippedSecondary)
	line("skipped supplementary", s.SkippedSupplementary)
	line("skipped second mate", s.SkippedMate)
	line("skipped multi-mapped", s.SkippedMultiMapped)
	line("untagged", s.Untagged)
	line("tagged", s.Tagged)
	line("missing umi", s.MissingUMI)
	line("missing cell", s.MissingCell)
	line("invalid barcodes", s.InvalidBarcodes)
	line("discarded umis", s.DiscardedUMIs)
	line("discarded cells", s.DiscardedCells)
	line("counted", s.Counted)
	line("cells flushed", s.CellsFlushed)
	line("entries", s.Entries)
	line("umi matrix entries", s.UMIEntries)
	line("read matrix entries", s.ReadEntries)
	return b.String()
}
