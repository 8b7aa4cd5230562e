// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package umicount

import (
	"context"
	"os"
	"strconv"

	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/tsv"
	"github.com/grailbio/umicount/encoding/mtx"
	"github.com/pkg/errors"
)

// output holds the files written by a Counter.
type output struct {
	opts  *Opts
	umis  *mtx.Writer
	reads *mtx.Writer // nil unless Opts.ReadsOutPath is set

	counts    file.File // nil unless Opts.CountsPath is set
	countsTSV *tsv.Writer
}

func newOutput(ctx context.Context, opts *Opts) (o *output, err error) {
	o = &output{opts: opts}
	if o.umis, err = mtx.Create(opts.OutPath); err != nil {
		return nil, err
	}
	if opts.ReadsOutPath != "" {
		if o.reads, err = mtx.Create(opts.ReadsOutPath); err != nil {
			o.umis.Abort() // nolint: errcheck
			return nil, err
		}
	}
	if opts.CountsPath != "" {
		if o.counts, err = file.Create(ctx, opts.CountsPath); err != nil {
			o.abortMatrices()
			return nil, errors.Wrapf(err, "create %s", opts.CountsPath)
		}
		o.countsTSV = tsv.NewWriter(o.counts.Writer(ctx))
		o.countsTSV.WriteString("#feature\tcell\tsample\tumis\treads")
		o.countsTSV.EndLine()
	}
	return o, nil
}

// NoSample names the sample of records without a sample barcode in the counts
// file and in multi-sample column labels.
const NoSample = "."

func formatCount(v float32) string {
	return strconv.FormatFloat(float64(v), 'g', -1, 32)
}

// writeCounts appends one line to the counts TSV, if any.
func (o *output) writeCounts(feature, cell, sample string, c Counts) {
	if o.countsTSV == nil {
		return
	}
	o.countsTSV.WriteString(feature)
	o.countsTSV.WriteString(cell)
	o.countsTSV.WriteString(sample)
	o.countsTSV.WriteString(formatCount(c.UMIs))
	o.countsTSV.WriteString(formatCount(c.Reads))
	o.countsTSV.EndLine()
}

func (o *output) closeCounts(ctx context.Context) (err error) {
	if o.counts == nil {
		return nil
	}
	defer file.CloseAndReport(ctx, o.counts, &err)
	o.counts = nil
	return o.countsTSV.Flush()
}

func (o *output) abortMatrices() {
	for _, w := range []*mtx.Writer{o.umis, o.reads} {
		if w == nil {
			continue
		}
		if err := w.Abort(); err != nil {
			log.Error.Printf("%s: %v", w.Path(), err)
		}
	}
}

// writeLabels writes the row and column side files of the UMI matrix, and
// of the reads matrix if any.
func (o *output) writeLabels(ctx context.Context, rows, cols []string) error {
	for _, w := range []*mtx.Writer{o.umis, o.reads} {
		if w == nil {
			continue
		}
		if err := mtx.WriteLabels(ctx, w.Path()+mtx.RowsSuffix, rows, ""); err != nil {
			return err
		}
		if err := mtx.WriteLabels(ctx, w.Path()+mtx.ColsSuffix, cols, o.opts.CellSuffix); err != nil {
			return err
		}
	}
	return nil
}

// finalize patches the matrix headers and compresses the matrices.
func (o *output) finalize(ctx context.Context, rows, cols int) error {
	for _, w := range []*mtx.Writer{o.umis, o.reads} {
		if w == nil {
			continue
		}
		if err := w.Finalize(int64(rows), int64(cols)); err != nil {
			return err
		}
		dst, err := mtx.Compress(ctx, w.Path(), o.opts.Compression)
		if err != nil {
			return err
		}
		log.Printf("%s: %d x %d matrix, %d entries", dst, rows, cols, w.Entries())
	}
	return nil
}

// removeMatrices aborts and deletes the matrices. Used when there is nothing
// to report.
func (o *output) removeMatrices() {
	o.abortMatrices()
	for _, w := range []*mtx.Writer{o.umis, o.reads} {
		if w == nil {
			continue
		}
		if err := os.Remove(w.Path()); err != nil {
			log.Error.Printf("%s: %v", w.Path(), err)
		}
	}
}
