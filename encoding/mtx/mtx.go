// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package mtx writes sparse matrices in the MatrixMarket coordinate format.
//
// The number of entries is known only after the last entry is written, so the
// Writer reserves a fixed-width dimension line right after the banner and
// patches it in place when the matrix is finalized. Entries are streamed to
// disk and never held in memory.
//
// A finalized file looks like:
//
//   %%MatrixMarket matrix coordinate real general
//             3           2           4
//   1 1 5
//   ...
package mtx

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/grailbio/base/errors"
)

// Banner is the first line of every file written by this package.
const Banner = "%%MatrixMarket matrix coordinate real general"

// HeaderFieldWidth is the number of characters reserved for each of the
// rows, columns and entries fields of the dimension line. Eleven digits allow
// counts up to 10^11-1.
const HeaderFieldWidth = 11

// Header is the dimension line of a matrix file.
type Header struct {
	Rows, Cols, Entries int64
}

func (h Header) format() ([]byte, error) {
	for _, v := range []int64{h.Rows, h.Cols, h.Entries} {
		if v < 0 || len(strconv.FormatInt(v, 10)) > HeaderFieldWidth {
			return nil, errors.E(errors.Invalid, fmt.Sprintf("mtx: dimension %d does not fit in %d characters", v, HeaderFieldWidth))
		}
	}
	return []byte(fmt.Sprintf("%*d %*d %*d\n",
		HeaderFieldWidth, h.Rows, HeaderFieldWidth, h.Cols, HeaderFieldWidth, h.Entries)), nil
}

type writerState int

const (
	headerReserved writerState = iota
	finalized
	closed
)

// Writer streams one matrix to a local file. Thread compatible.
type Writer struct {
	path         string
	f            *os.File
	w            *bufio.Writer
	headerOffset int64
	entries      int64
	state        writerState
	buf          []byte
}

// Create opens path for writing and reserves the dimension line.
func Create(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, errors.E(err, "mtx: create", path)
	}
	w := &Writer{
		path:         path,
		f:            f,
		w:            bufio.NewWriterSize(f, 1<<20),
		headerOffset: int64(len(Banner) + 1),
	}
	placeholder, _ := Header{}.format()
	w.w.WriteString(Banner)
	w.w.WriteByte('\n')
	if _, err := w.w.Write(placeholder); err != nil {
		f.Close() // nolint: errcheck
		return nil, errors.E(err, "mtx: write header", path)
	}
	return w, nil
}

// Path returns the pathname passed to Create.
func (w *Writer) Path() string { return w.path }

// Entries returns the number of entries written so far.
func (w *Writer) Entries() int64 { return w.entries }

// Write appends the entry (row, col) = value. Rows and columns are 1-based.
func (w *Writer) Write(row, col uint32, value int64) error {
	if w.state != headerReserved {
		return errors.E(errors.Invalid, "mtx: write after finalize", w.path)
	}
	b := w.buf[:0]
	b = strconv.AppendUint(b, uint64(row), 10)
	b = append(b, ' ')
	b = strconv.AppendUint(b, uint64(col), 10)
	b = append(b, ' ')
	b = strconv.AppendInt(b, value, 10)
	b = append(b, '\n')
	w.buf = b
	if _, err := w.w.Write(b); err != nil {
		return errors.E(err, "mtx: write", w.path)
	}
	w.entries++
	return nil
}

// Finalize flushes the entries, overwrites the reserved dimension line with the
// real dimensions and the number of entries written, and closes the file.
func (w *Writer) Finalize(rows, cols int64) (err error) {
	if w.state != headerReserved {
		return errors.E(errors.Invalid, "mtx: finalized twice", w.path)
	}
	w.state = finalized
	defer func() {
		if e := w.f.Close(); e != nil && err == nil {
			err = errors.E(e, "mtx: close", w.path)
		}
		w.state = closed
	}()
	header, err := Header{Rows: rows, Cols: cols, Entries: w.entries}.format()
	if err != nil {
		return errors.E(errors.Invalid, err, w.path)
	}
	if err = w.w.Flush(); err != nil {
		return errors.E(err, "mtx: flush", w.path)
	}
	if _, err = w.f.WriteAt(header, w.headerOffset); err != nil {
		return errors.E(err, "mtx: patch header", w.path)
	}
	return nil
}

// Abort closes the file without patching the header. It is a no-op after
// Finalize.
func (w *Writer) Abort() error {
	if w.state == closed {
		return nil
	}
	w.state = closed
	if err := w.w.Flush(); err != nil {
		w.f.Close() // nolint: errcheck
		return errors.E(err, "mtx: flush", w.path)
	}
	if err := w.f.Close(); err != nil {
		return errors.E(err, "mtx: close", w.path)
	}
	return nil
}

// ReadHeader reads the dimension line of a matrix file.
func ReadHeader(path string) (h Header, err error) {
	f, err := os.Open(path)
	if err != nil {
		return h, errors.E(err, "mtx: open", path)
	}
	defer f.Close() // nolint: errcheck
	sc := bufio.NewScanner(f)
	if !sc.Scan() || !strings.HasPrefix(sc.Text(), "%%MatrixMarket") {
		return h, errors.E(errors.Invalid, "mtx: missing MatrixMarket banner", path)
	}
	for sc.Scan() {
		line := sc.Text()
		if strings.HasPrefix(line, "%") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 3 {
			return h, errors.E(errors.Invalid, fmt.Sprintf("mtx: malformed dimension line %q", line), path)
		}
		vals := [3]int64{}
		for i, f := range fields {
			if vals[i], err = strconv.ParseInt(f, 10, 64); err != nil {
				return h, errors.E(errors.Invalid, err, fmt.Sprintf("mtx: malformed dimension line %q", line), path)
			}
		}
		return Header{Rows: vals[0], Cols: vals[1], Entries: vals[2]}, nil
	}
	if err := sc.Err(); err != nil {
		return h, errors.E(err, "mtx: read", path)
	}
	return h, errors.E(errors.Invalid, "mtx: missing dimension line", path)
}
