// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package mtx

import (
	"context"
	"io"
	"os"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/tsv"
	"github.com/grailbio/hts/bgzf"
	"github.com/klauspost/compress/gzip"
)

// RowsSuffix and ColsSuffix are appended to the matrix path to name the side
// files that map row and column indexes back to labels.
const (
	RowsSuffix = "_rows"
	ColsSuffix = "_cols"
)

// WriteLabels writes one "<index>\t<label><suffix>" line per label to path.
// labels[i] gets index i+1.
func WriteLabels(ctx context.Context, path string, labels []string, suffix string) (err error) {
	out, err := file.Create(ctx, path)
	if err != nil {
		return errors.E(err, "mtx: create", path)
	}
	defer file.CloseAndReport(ctx, out, &err)
	w := tsv.NewWriter(out.Writer(ctx))
	for i, l := range labels {
		w.WriteUint32(uint32(i + 1))
		w.WriteString(l + suffix)
		w.EndLine()
	}
	if err = w.Flush(); err != nil {
		return errors.E(err, "mtx: write", path)
	}
	return nil
}

// Compression codecs accepted by Compress.
const (
	CodecNone = ""
	CodecGzip = "gzip"
	CodecBGZF = "bgzf"
)

// ValidCodec checks if codec is accepted by Compress.
func ValidCodec(codec string) bool {
	switch codec {
	case CodecNone, CodecGzip, CodecBGZF:
		return true
	}
	return false
}

// Compress replaces the file at path with path+".gz", compressed with the given
// codec. Both codecs produce files readable by gunzip. It returns the name of
// the resulting file; with CodecNone the file is left alone.
func Compress(ctx context.Context, path, codec string) (dstPath string, err error) {
	var newWriter func(io.Writer) io.WriteCloser
	switch codec {
	case CodecNone:
		return path, nil
	case CodecGzip:
		newWriter = func(w io.Writer) io.WriteCloser { return gzip.NewWriter(w) }
	case CodecBGZF:
		newWriter = func(w io.Writer) io.WriteCloser { return bgzf.NewWriter(w, 1) }
	default:
		return "", errors.E(errors.Invalid, "mtx: unknown compression codec", codec)
	}
	dstPath = path + ".gz"
	in, err := os.Open(path)
	if err != nil {
		return "", errors.E(err, "mtx: open", path)
	}
	defer in.Close() // nolint: errcheck
	out, err := file.Create(ctx, dstPath)
	if err != nil {
		return "", errors.E(err, "mtx: create", dstPath)
	}
	zw := newWriter(out.Writer(ctx))
	if _, err = io.Copy(zw, in); err != nil {
		zw.Close()     // nolint: errcheck
		out.Close(ctx) // nolint: errcheck
		return "", errors.E(err, "mtx: compress", path)
	}
	if err = zw.Close(); err != nil {
		out.Close(ctx) // nolint: errcheck
		return "", errors.E(err, "mtx: compress", path)
	}
	if err = out.Close(ctx); err != nil {
		return "", errors.E(err, "mtx: close", dstPath)
	}
	if err = os.Remove(path); err != nil {
		return "", errors.E(err, "mtx: remove", path)
	}
	return dstPath, nil
}
