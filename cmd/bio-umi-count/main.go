// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package main

/*
bio-umi-count builds a sparse feature-by-cell matrix of UMI counts from a BAM
file whose records carry feature, cell barcode and UMI tags.

Example:
  bio-umi-count -out counts.mtx -reads-out reads.mtx -sorted possorted.bam

Writes counts.mtx, counts.mtx_rows (feature names) and counts.mtx_cols (cell
barcodes), plus the same three files for reads.mtx.
*/

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/umicount/encoding/bamprovider"
	"github.com/grailbio/umicount/hashtable"
	"github.com/grailbio/umicount/umicount"
)

var (
	outPath           = flag.String("out", "", "Output MatrixMarket file of UMI counts. Required")
	readsOutPath      = flag.String("reads-out", "", "Optional MatrixMarket file of read counts")
	countsPath        = flag.String("counts", "", "Optional TSV file listing the unrounded counts of every entry")
	featureTag        = flag.String("feature-tag", umicount.DefaultOpts.FeatureTag, "Aux tag holding a comma-separated list of features")
	cellTag           = flag.String("cell-tag", umicount.DefaultOpts.CellTag, "Aux tag holding the cell barcode")
	umiTag            = flag.String("umi-tag", umicount.DefaultOpts.UMITag, "Aux tag holding the UMI")
	sampleTag         = flag.String("sample-tag", umicount.DefaultOpts.SampleTag, "Aux tag holding the sample barcode. Empty means a single sample")
	nhTag             = flag.String("nh-tag", umicount.DefaultOpts.NHTag, "Aux tag holding the number of placements of a read")
	featureFromRef    = flag.Bool("feature-from-ref", umicount.DefaultOpts.FeatureFromRef, "Use the reference name as the feature, e.g. for transcriptome alignments")
	minReads          = flag.Float64("min-reads", umicount.DefaultOpts.MinReads, "Minimum number of reads of an entry")
	minUMIs           = flag.Float64("min-umis", umicount.DefaultOpts.MinUMIs, "Minimum number of UMIs of an entry")
	uniqueOnly        = flag.Bool("unique", umicount.DefaultOpts.UniqueOnly, "Count only uniquely mapped reads (NH <= 1)")
	maxFeatures       = flag.Int("max-features", umicount.DefaultOpts.MaxFeatures, "Maximum number of distinct features")
	maxCells          = flag.Int("max-cells", umicount.DefaultOpts.MaxCells, "Maximum number of distinct cells")
	maxSamples        = flag.Int("max-samples", umicount.DefaultOpts.MaxSamples, "Maximum number of distinct samples")
	maxFeatureLen     = flag.Int("max-feature-len", umicount.DefaultOpts.MaxFeatureLen, "Maximum length of a feature name")
	sorted            = flag.Bool("sorted", umicount.DefaultOpts.Streaming, "Input is grouped by cell; keep only one cell in memory")
	cellSuffix        = flag.String("cell-suffix", umicount.DefaultOpts.CellSuffix, "Suffix appended to the cell barcodes in the column file, e.g. -1")
	umiWhitelistPath  = flag.String("known-umis", "", "File of known UMIs, one per line. Reads with other UMIs are discarded")
	cellWhitelistPath = flag.String("known-cells", "", "File of known cell barcodes, one per line. Reads from other cells are discarded")
	preloadCells      = flag.Bool("preload-cells", umicount.DefaultOpts.PreloadCells, "Assign a matrix column to every known cell, in file order")
	compression       = flag.String("compression", umicount.DefaultOpts.Compression, "Compress the matrices: '', 'gzip' or 'bgzf'")
	labelHash         = flag.String("label-hash", umicount.DefaultOpts.LabelHash, "Hash function for feature names: "+strings.Join(hashtable.HasherNames(), ", "))
	progress          = flag.Int("progress", umicount.DefaultOpts.ProgressInterval, "Log progress every N alignments; 0 disables")
)

func bioUMICountUsage() {
	fmt.Printf("Usage: %s [OPTIONS] bampath\n", os.Args[0])
	fmt.Printf("bampath may be - for the standard input.\n")
	fmt.Printf("Other options:\n")
	flag.PrintDefaults()
}

func main() {
	flag.Usage = bioUMICountUsage
	shutdown := grail.Init()
	defer shutdown()

	if flag.NArg() != 1 {
		log.Fatalf("Expected exactly one positional argument (bampath), got: '%s'", strings.Join(flag.Args(), " "))
	}
	ctx := vcontext.Background()
	opts := umicount.Opts{
		OutPath:           *outPath,
		ReadsOutPath:      *readsOutPath,
		CountsPath:        *countsPath,
		FeatureTag:        *featureTag,
		CellTag:           *cellTag,
		UMITag:            *umiTag,
		SampleTag:         *sampleTag,
		NHTag:             *nhTag,
		FeatureFromRef:    *featureFromRef,
		MinReads:          *minReads,
		MinUMIs:           *minUMIs,
		UniqueOnly:        *uniqueOnly,
		MaxFeatures:       *maxFeatures,
		MaxCells:          *maxCells,
		MaxSamples:        *maxSamples,
		MaxFeatureLen:     *maxFeatureLen,
		Streaming:         *sorted,
		CellSuffix:        *cellSuffix,
		UMIWhitelistPath:  *umiWhitelistPath,
		CellWhitelistPath: *cellWhitelistPath,
		PreloadCells:      *preloadCells,
		Compression:       *compression,
		LabelHash:         *labelHash,
		ProgressInterval:  *progress,
	}
	if err := opts.Validate(); err != nil {
		log.Fatalf("%v", err)
	}
	provider := bamprovider.NewProvider(flag.Arg(0))
	_, err := umicount.Count(ctx, provider, opts)
	if e := provider.Close(); e != nil && err == nil {
		err = e
	}
	if err != nil {
		log.Fatalf("%v", err)
	}
	log.Debug.Printf("exiting")
}
