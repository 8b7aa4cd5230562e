// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package bamprovider

import (
	"io"
	"os"
	"sync"

	"github.com/grailbio/base/errorreporter"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/hts/bam"
	"github.com/grailbio/hts/sam"
	"v.io/x/lib/vlog"
)

// BAMProvider implements Provider for BAM files. The path is opened with
// grailbio/base/file, or is Stdin.
type BAMProvider struct {
	// Path of the *.bam file. Must be nonempty.
	Path string
	err  errorreporter.T

	mu      sync.Mutex
	nActive int
	header  *sam.Header
	// Open iterator on the standard input. The stream can be read only once,
	// so GetHeader and the first NewIterator share it.
	stdin *bamIterator
}

type bamIterator struct {
	provider *BAMProvider
	in       file.File // nil when reading the standard input
	reader   *bam.Reader

	active bool
	err    error
	next   *sam.Record
}

func (b *BAMProvider) open() (*bamIterator, error) {
	iter := &bamIterator{provider: b}
	var (
		r   io.Reader
		err error
	)
	if b.Path == Stdin {
		r = os.Stdin
	} else {
		ctx := vcontext.Background()
		if iter.in, err = file.Open(ctx, b.Path); err != nil {
			return nil, errors.E(err, "bamprovider: open", b.Path)
		}
		r = iter.in.Reader(ctx)
	}
	if iter.reader, err = bam.NewReader(r, 1); err != nil {
		iter.internalClose()
		return nil, errors.E(err, "bamprovider: read header", b.Path)
	}
	vlog.VI(1).Infof("%s: opened BAM with %d references", b.Path, len(iter.reader.Header().Refs()))
	return iter, nil
}

// GetHeader implements the Provider interface.
func (b *BAMProvider) GetHeader() (*sam.Header, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.header != nil {
		return b.header, nil
	}
	iter, err := b.open()
	if err != nil {
		b.err.Set(err)
		return nil, err
	}
	b.header = iter.reader.Header()
	if b.Path == Stdin {
		b.stdin = iter
	} else {
		iter.internalClose()
	}
	return b.header, nil
}

// NewIterator implements the Provider interface.
func (b *BAMProvider) NewIterator() Iterator {
	b.mu.Lock()
	defer b.mu.Unlock()
	var iter *bamIterator
	switch {
	case b.Path == Stdin && b.stdin != nil:
		iter, b.stdin = b.stdin, nil
	case b.Path == Stdin && b.header != nil:
		err := errors.E(errors.Invalid, "bamprovider: standard input can be read only once")
		b.err.Set(err)
		return NewErrorIterator(err)
	default:
		var err error
		if iter, err = b.open(); err != nil {
			b.err.Set(err)
			return NewErrorIterator(err)
		}
		if b.header == nil {
			b.header = iter.reader.Header()
		}
	}
	iter.active = true
	b.nActive++
	return iter
}

// Close implements the Provider interface.
func (b *BAMProvider) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.nActive > 0 {
		vlog.Fatalf("%d iterators still active for %+v", b.nActive, b)
	}
	if b.stdin != nil {
		b.stdin.internalClose()
		b.stdin = nil
	}
	return b.err.Err()
}

// Scan implements the Iterator interface.
func (i *bamIterator) Scan() bool {
	if !i.active {
		vlog.Fatal("Reusing iterator")
	}
	if i.err != nil {
		return false
	}
	i.next, i.err = i.reader.Read()
	return i.err == nil
}

// Record implements the Iterator interface.
func (i *bamIterator) Record() *sam.Record {
	return i.next
}

// Err implements the Iterator interface.
func (i *bamIterator) Err() error {
	if i.err == io.EOF {
		return nil
	}
	return i.err
}

// Close implements the Iterator interface.
func (i *bamIterator) Close() error {
	if !i.active {
		vlog.Fatal(i)
	}
	i.active = false
	i.internalClose()
	b := i.provider
	b.mu.Lock()
	b.nActive--
	if b.nActive < 0 {
		vlog.Fatalf("Negative active count for %+v", b)
	}
	b.mu.Unlock()
	return i.Err()
}

func (i *bamIterator) internalClose() {
	if i.reader != nil {
		if err := i.reader.Close(); err != nil && i.err == nil {
			i.err = err
		}
		i.reader = nil
	}
	if i.in != nil {
		if err := i.in.Close(vcontext.Background()); err != nil && i.err == nil {
			i.err = err
		}
		i.in = nil
	}
	i.provider.err.Set(i.Err())
}
