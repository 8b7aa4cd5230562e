// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package umicount

import (
	"fmt"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/umicount/encoding/mtx"
	"github.com/grailbio/umicount/hashtable"
)

// Opts defines the parameters of a counting run.
type Opts struct {
	// OutPath is the MatrixMarket file of UMI counts. It must be a local path.
	// The side files OutPath+"_rows" and OutPath+"_cols" are written next to
	// it.
	OutPath string
	// ReadsOutPath, if nonempty, is a second MatrixMarket file holding read
	// counts. It shares the row and column numbering of OutPath.
	ReadsOutPath string
	// CountsPath, if nonempty, receives one TSV line per emitted entry with
	// the unrounded counts.
	CountsPath string

	// FeatureTag, CellTag, UMITag and SampleTag are the two-letter aux tags
	// holding the feature list, the cell barcode, the UMI and the sample
	// barcode. SampleTag may be empty.
	FeatureTag string
	CellTag    string
	UMITag     string
	SampleTag  string
	// NHTag holds the number of placements of a multi-mapped read.
	NHTag string
	// FeatureFromRef uses the name of the reference a read is aligned to as
	// its feature, ignoring FeatureTag. Useful for transcriptome alignments.
	FeatureFromRef bool

	// MinReads and MinUMIs are the minimum read and UMI counts of an entry.
	MinReads float64
	MinUMIs  float64
	// UniqueOnly drops reads with NH > 1.
	UniqueOnly bool

	// MaxFeatures, MaxCells and MaxSamples bound the number of distinct
	// features, cells and samples.
	MaxFeatures int
	MaxCells    int
	MaxSamples  int
	// MaxFeatureLen is the maximum length of a feature name.
	MaxFeatureLen int

	// Streaming assumes the input is grouped by cell and keeps only one cell
	// in memory.
	Streaming bool
	// CellSuffix is appended to every barcode written to the column side
	// file, e.g. "-1".
	CellSuffix string

	// UMIWhitelistPath and CellWhitelistPath, if nonempty, name files of known
	// barcodes, one per line. Reads with other barcodes are discarded.
	UMIWhitelistPath  string
	CellWhitelistPath string
	// PreloadCells assigns matrix columns to all whitelisted cells in file
	// order, whether or not they appear in the input.
	PreloadCells bool

	// Compression of the output matrices: "", "gzip" or "bgzf".
	Compression string
	// LabelHash names the string hash function used to index feature names.
	// See hashtable.HasherNames.
	LabelHash string
	// ProgressInterval is the number of alignments between progress messages.
	// Zero disables them.
	ProgressInterval int
}

// DefaultOpts sets the default values to Opts.
var DefaultOpts = Opts{
	FeatureTag:       "GX",
	CellTag:          "CR",
	UMITag:           "UM",
	NHTag:            "NH",
	MaxFeatures:      200000,
	MaxCells:         1 << 20,
	MaxSamples:       1,
	MaxFeatureLen:    64,
	LabelHash:        "farm",
	ProgressInterval: 10000000,
}

func checkTag(name, tag string, optional bool) error {
	if tag == "" && optional {
		return nil
	}
	if len(tag) != 2 {
		return errors.E(errors.Invalid, fmt.Sprintf("%s: tag name %q must be two characters", name, tag))
	}
	return nil
}

// Validate checks the options. It must be called before any data is read.
func (o *Opts) Validate() error {
	if o.OutPath == "" {
		return errors.E(errors.Invalid, "output path is required")
	}
	if o.ReadsOutPath == o.OutPath {
		return errors.E(errors.Invalid, "UMI and read matrices must have different paths", o.OutPath)
	}
	if err := checkTag("feature", o.FeatureTag, o.FeatureFromRef); err != nil {
		return err
	}
	if err := checkTag("cell", o.CellTag, false); err != nil {
		return err
	}
	if err := checkTag("umi", o.UMITag, false); err != nil {
		return err
	}
	if err := checkTag("sample", o.SampleTag, true); err != nil {
		return err
	}
	if err := checkTag("nh", o.NHTag, false); err != nil {
		return err
	}
	if o.MinReads < 0 || o.MinUMIs < 0 {
		return errors.E(errors.Invalid, fmt.Sprintf("negative thresholds: min reads %v, min umis %v", o.MinReads, o.MinUMIs))
	}
	if o.MaxFeatures <= 0 || o.MaxCells <= 0 || o.MaxSamples <= 0 || o.MaxFeatureLen <= 0 {
		return errors.E(errors.Invalid, fmt.Sprintf("limits must be positive: features %d, cells %d, samples %d, feature length %d",
			o.MaxFeatures, o.MaxCells, o.MaxSamples, o.MaxFeatureLen))
	}
	if o.SampleTag == "" && o.MaxSamples > 1 {
		return errors.E(errors.Invalid, "multiple samples require a sample tag")
	}
	if o.PreloadCells && o.CellWhitelistPath == "" {
		return errors.E(errors.Invalid, "preloading cells requires a cell whitelist")
	}
	if o.PreloadCells && o.Streaming {
		// Preloaded cell IDs follow the whitelist, not the input order.
		return errors.E(errors.Invalid, "preloading cells is incompatible with streaming mode")
	}
	if !mtx.ValidCodec(o.Compression) {
		return errors.E(errors.Invalid, fmt.Sprintf("unknown compression %q", o.Compression))
	}
	if _, err := hashtable.HasherByName(o.LabelHash); err != nil {
		return errors.E(errors.Invalid, err)
	}
	if o.ProgressInterval < 0 {
		return errors.E(errors.Invalid, "negative progress interval")
	}
	return nil
}
