// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package umicount counts reads and distinct UMIs per feature, cell and
// sample, and writes the counts as sparse MatrixMarket matrices.
package umicount

import (
	"context"
	"math"
	"strings"

	"github.com/grailbio/base/log"
	"github.com/grailbio/hts/sam"
	gbam "github.com/grailbio/umicount/encoding/bam"
	"github.com/grailbio/umicount/encoding/bamprovider"
	"github.com/grailbio/umicount/encoding/barcode"
	"github.com/grailbio/umicount/hashtable"
	"github.com/grailbio/umicount/label"
	"github.com/grailbio/umicount/umi"
	"github.com/pkg/errors"
)

// Number of discarded barcodes reported individually.
const maxLoggedDiscards = 10

// logProgress reports the number of alignments read every
// Opts.ProgressInterval alignments.
var logProgress = log.Debug.Printf

// Counter turns alignment records into count matrices. It owns the label
// tables, the store and the output files of one run. Thread compatible.
type Counter struct {
	opts  Opts
	stats Stats

	featureTag, cellTag, umiTag, sampleTag, nhTag sam.Tag

	features *label.Table[string]
	cells    *label.Table[uint64]
	umis     *label.Table[uint64]
	samples  *label.Table[uint64]
	// columns maps (sample, cell) pairs to matrix columns. Nil in single
	// sample mode, where the cell ID is the column.
	columns *label.Table[uint64]

	umiWhitelist, cellWhitelist *umi.Whitelist

	store *Store
	out   *output
	// Cell accepting records in streaming mode.
	live label.ID

	featBuf    []string
	nDiscarded int
}

// NewCounter validates opts, loads the whitelists and creates the output
// files.
func NewCounter(ctx context.Context, opts Opts) (*Counter, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	hasher, err := hashtable.HasherByName(opts.LabelHash)
	if err != nil {
		return nil, err
	}
	c := &Counter{
		opts:       opts,
		featureTag: sam.NewTag(opts.FeatureTag),
		cellTag:    sam.NewTag(opts.CellTag),
		umiTag:     sam.NewTag(opts.UMITag),
		nhTag:      sam.NewTag(opts.NHTag),
		features:   label.NewStringTable(0, hasher),
		cells:      label.NewBarcodeTable(0),
		umis:       label.NewBarcodeTable(0),
		samples:    label.NewBarcodeTable(0),
		store: NewStore(StoreOpts{
			MaxFeatures: opts.MaxFeatures,
			MaxCells:    opts.MaxCells,
			MaxSamples:  opts.MaxSamples,
			Streaming:   opts.Streaming,
		}),
	}
	if opts.FeatureFromRef {
		c.featureTag = sam.Tag{}
	}
	if opts.SampleTag != "" {
		c.sampleTag = sam.NewTag(opts.SampleTag)
	}
	if opts.MaxSamples > 1 {
		c.columns = label.NewBarcodeTable(0)
	}
	if opts.UMIWhitelistPath != "" {
		if c.umiWhitelist, err = umi.LoadWhitelist(ctx, opts.UMIWhitelistPath, barcode.MaxLen); err != nil {
			return nil, err
		}
	}
	if opts.CellWhitelistPath != "" {
		if c.cellWhitelist, err = umi.LoadWhitelist(ctx, opts.CellWhitelistPath, barcode.MaxLen); err != nil {
			return nil, err
		}
		if opts.PreloadCells {
			if n := c.cellWhitelist.Len(); n > opts.MaxCells {
				return nil, errors.Wrapf(ErrCapacity, "%d whitelisted cells (max %d)", n, opts.MaxCells)
			}
			for _, code := range c.cellWhitelist.Codes() {
				c.cells.Intern(code)
			}
		}
	}
	if c.out, err = newOutput(ctx, &c.opts); err != nil {
		return nil, err
	}
	return c, nil
}

// Stats returns the statistics so far.
func (c *Counter) Stats() Stats { return c.stats }

// splitFeatures splits a comma-separated feature list, dropping empty names
// and consecutive duplicates.
func splitFeatures(list string, buf []string) []string {
	buf = buf[:0]
	for len(list) > 0 {
		f := list
		if i := strings.IndexByte(list, ','); i >= 0 {
			f, list = list[:i], list[i+1:]
		} else {
			list = ""
		}
		if f == "" || (len(buf) > 0 && buf[len(buf)-1] == f) {
			continue
		}
		buf = append(buf, f)
	}
	return buf
}

// Weight returns the weight of a read assigned to nFeatures features with nh
// placements.
func Weight(nFeatures, nh int) float32 {
	return float32(1 / (float64(nFeatures) * float64(nh)))
}

func (c *Counter) logDiscard(format string, args ...interface{}) {
	c.nDiscarded++
	if c.nDiscarded <= maxLoggedDiscards {
		log.Error.Printf(format, args...)
		if c.nDiscarded == maxLoggedDiscards {
			log.Error.Printf("further discarded records are not logged")
		}
	}
}

// barcodeTag reads and encodes a barcode tag. It returns 0 if the record
// should be discarded.
func (c *Counter) barcodeTag(r *sam.Record, tag sam.Tag, missing *int64) uint64 {
	s, ok := gbam.TagString(r, tag)
	if !ok || s == "" {
		*missing++
		return 0
	}
	if err := barcode.Valid(s, barcode.MaxLen); err != nil {
		c.stats.InvalidBarcodes++
		c.logDiscard("%s: %v", r.Name, err)
		return 0
	}
	return barcode.Encode(s)
}

// Add counts one alignment record.
func (c *Counter) Add(r *sam.Record) error {
	c.stats.Alignments++
	if n := c.opts.ProgressInterval; n > 0 && c.stats.Alignments%int64(n) == 0 {
		logProgress("%d alignments processed, %d counted", c.stats.Alignments, c.stats.Counted)
	}
	switch {
	case r.Ref == nil || r.Ref.ID() < 0 || gbam.IsUnmapped(r):
		c.stats.SkippedUnmapped++
		return nil
	case !gbam.IsPrimary(r):
		if gbam.IsSecondary(r) {
			c.stats.SkippedSecondary++
		} else {
			c.stats.SkippedSupplementary++
		}
		return nil
	case !gbam.HasNoMappedMate(r) && gbam.IsProperPair(r) && gbam.IsRead2(r):
		c.stats.SkippedMate++
		return nil
	}
	nh := int64(1)
	if v, ok := gbam.TagInt(r, c.nhTag); ok && v > 1 {
		nh = v
	}
	if c.opts.UniqueOnly && nh > 1 {
		c.stats.SkippedMultiMapped++
		return nil
	}

	var list string
	if c.opts.FeatureFromRef {
		list, _ = gbam.RefName(r)
	} else {
		list, _ = gbam.TagString(r, c.featureTag)
	}
	c.featBuf = splitFeatures(list, c.featBuf)
	if len(c.featBuf) == 0 {
		c.stats.Untagged++
		return nil
	}
	c.stats.Tagged++

	umiCode := c.barcodeTag(r, c.umiTag, &c.stats.MissingUMI)
	if umiCode == 0 {
		return nil
	}
	if c.umiWhitelist != nil && !c.umiWhitelist.Contains(umiCode) {
		c.stats.DiscardedUMIs++
		c.logDiscard("%s: skipping umi %s", r.Name, mustDecode(umiCode))
		return nil
	}
	cellCode := c.barcodeTag(r, c.cellTag, &c.stats.MissingCell)
	if cellCode == 0 {
		return nil
	}
	if c.cellWhitelist != nil && !c.cellWhitelist.Contains(cellCode) {
		c.stats.DiscardedCells++
		c.logDiscard("%s: skipping cell %s", r.Name, mustDecode(cellCode))
		return nil
	}
	var sampleCode uint64
	if c.sampleTag != (sam.Tag{}) {
		if s, ok := gbam.TagString(r, c.sampleTag); ok && s != "" {
			if err := barcode.Valid(s, barcode.MaxLen); err != nil {
				c.stats.InvalidBarcodes++
				c.logDiscard("%s: %v", r.Name, err)
				return nil
			}
			sampleCode = barcode.Encode(s)
		}
	}

	cell := c.cells.Intern(cellCode)
	if c.opts.Streaming && cell != c.live {
		if cell < c.live {
			return errors.Wrapf(ErrOrder, "%s: cell %s appears again after cell %s",
				r.Name, mustDecode(cellCode), c.cellName(c.live))
		}
		if err := c.flushLive(); err != nil {
			return err
		}
		c.live = cell
	}
	sample := c.samples.Intern(sampleCode)
	umiID := c.umis.Intern(umiCode)
	w := Weight(len(c.featBuf), int(nh))
	for _, f := range c.featBuf {
		if len(f) > c.opts.MaxFeatureLen {
			return errors.Errorf("%s: feature name %q is longer than %d", r.Name, f, c.opts.MaxFeatureLen)
		}
		if err := c.store.Record(c.features.Intern(f), umiID, cell, sample, w); err != nil {
			return errors.Wrapf(err, "%s", r.Name)
		}
	}
	c.stats.Counted++
	return nil
}

func mustDecode(code uint64) string {
	s, err := barcode.Decode(code, barcode.MaxLen)
	if err != nil {
		log.Panicf("decode %d: %v", code, err)
	}
	return s
}

func (c *Counter) cellName(cell label.ID) string {
	code, _ := c.cells.Resolve(cell)
	return mustDecode(code)
}

// sampleName returns the barcode of a sample, or NoSample for records without
// a sample tag.
func (c *Counter) sampleName(sample label.ID) string {
	code, _ := c.samples.Resolve(sample)
	if code == 0 {
		return NoSample
	}
	return mustDecode(code)
}

func (c *Counter) flushLive() error {
	if c.live == label.Invalid {
		return nil
	}
	c.stats.CellsFlushed++
	return c.store.FlushCell(c.live, c.emit)
}

func columnKey(cell, sample label.ID) uint64 {
	return uint64(sample)<<32 | uint64(cell)
}

// emit writes one entry of the store to the outputs.
func (c *Counter) emit(feature, cell, sample label.ID, k Counts) error {
	if float64(k.Reads) < c.opts.MinReads || float64(k.UMIs) < c.opts.MinUMIs {
		return nil
	}
	c.stats.Entries++
	if c.out.countsTSV != nil {
		name, _ := c.features.Resolve(feature)
		c.out.writeCounts(name, c.cellName(cell)+c.opts.CellSuffix, c.sampleName(sample), k)
	}
	col := uint32(cell)
	if c.columns != nil {
		col = uint32(c.columns.Intern(columnKey(cell, sample)))
	}
	if v := math.Round(float64(k.UMIs)); v >= 1 {
		if err := c.out.umis.Write(uint32(feature), col, int64(v)); err != nil {
			return err
		}
		c.stats.UMIEntries++
	}
	if c.out.reads != nil {
		if v := math.Round(float64(k.Reads)); v >= 1 {
			if err := c.out.reads.Write(uint32(feature), col, int64(v)); err != nil {
				return err
			}
			c.stats.ReadEntries++
		}
	}
	return nil
}

// columnLabels returns the column names of the matrices, in column order.
func (c *Counter) columnLabels() []string {
	if c.columns == nil {
		labels := make([]string, c.cells.Len())
		for i, code := range c.cells.Keys() {
			labels[i] = mustDecode(code)
		}
		return labels
	}
	labels := make([]string, c.columns.Len())
	for i, key := range c.columns.Keys() {
		labels[i] = c.sampleName(label.ID(key>>32)) + "_" + c.cellName(label.ID(uint32(key)))
	}
	return labels
}

func (c *Counter) logTables() {
	for _, t := range []struct {
		name  string
		stats hashtable.Stats
	}{
		{"features", c.features.Stats()},
		{"cells", c.cells.Stats()},
		{"umis", c.umis.Stats()},
	} {
		log.Debug.Printf("%s table: %d entries, %d/%d buckets used, longest chain %d",
			t.name, t.stats.Entries, t.stats.UsedBuckets, t.stats.Buckets, t.stats.LongestChain)
	}
}

// Finish flushes the store and completes the output files. It returns
// ErrEmpty, after writing the side files and removing the matrices, if no
// record carried a feature or no entry was emitted.
func (c *Counter) Finish(ctx context.Context) (err error) {
	if err = c.store.FlushAll(c.emit); err != nil {
		return c.Abort(ctx, err)
	}
	if c.opts.Streaming && c.live != label.Invalid {
		c.stats.CellsFlushed++
		c.live = label.Invalid
	}
	c.logTables()
	if err = c.out.closeCounts(ctx); err != nil {
		return c.Abort(ctx, err)
	}
	if err = c.out.writeLabels(ctx, c.features.Keys(), c.columnLabels()); err != nil {
		c.out.abortMatrices()
		return err
	}
	switch {
	case c.stats.Tagged == 0:
		c.out.removeMatrices()
		return errors.Wrapf(ErrEmpty, "no alignment has feature tag %s", c.opts.FeatureTag)
	case c.stats.UMIEntries == 0:
		c.out.removeMatrices()
		return errors.Wrapf(ErrEmpty, "%d tagged alignments, no entry passed the thresholds", c.stats.Tagged)
	}
	ncols := c.cells.Len()
	if c.columns != nil {
		ncols = c.columns.Len()
	}
	return c.out.finalize(ctx, c.features.Len(), ncols)
}

// Abort writes the side files for diagnosis, closes the output files without
// finalizing the matrices, and returns cause.
func (c *Counter) Abort(ctx context.Context, cause error) error {
	if err := c.out.closeCounts(ctx); err != nil {
		log.Error.Printf("%s: %v", c.opts.CountsPath, err)
	}
	if err := c.out.writeLabels(ctx, c.features.Keys(), c.columnLabels()); err != nil {
		log.Error.Printf("write side files: %v", err)
	}
	c.out.abortMatrices()
	return cause
}

// Count reads every record of the provider and writes the count matrices
// described by opts.
func Count(ctx context.Context, provider bamprovider.Provider, opts Opts) (Stats, error) {
	c, err := NewCounter(ctx, opts)
	if err != nil {
		return Stats{}, err
	}
	header, err := provider.GetHeader()
	if err != nil {
		return Stats{}, c.Abort(ctx, err)
	}
	log.Debug.Printf("reading alignments against %d references", len(header.Refs()))
	iter := provider.NewIterator()
	for iter.Scan() {
		if err = c.Add(iter.Record()); err != nil {
			break
		}
	}
	if e := iter.Close(); e != nil && err == nil {
		err = e
	}
	if err != nil {
		return c.Stats(), c.Abort(ctx, err)
	}
	err = c.Finish(ctx)
	stats := c.Stats()
	log.Printf("%v", stats)
	return stats, err
}
