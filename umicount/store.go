// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package umicount

import (
	"math"
	"sort"

	"github.com/grailbio/umicount/label"
	"github.com/grailbio/umicount/rangelist"
	"github.com/pkg/errors"
)

var (
	// ErrCapacity is returned when a label ID is zero or exceeds the configured
	// maximum.
	ErrCapacity = errors.New("label id out of range")
	// ErrOverflow is returned when a float32 count can no longer absorb a
	// read's weight, at the top of the float32 range or once the count is so
	// large that adding the weight leaves it unchanged.
	ErrOverflow = errors.New("count overflow")
	// ErrOrder is returned in streaming mode when input is not grouped by cell.
	ErrOrder = errors.New("input is not grouped by cell")
	// ErrEmpty is returned when a run produces no matrix entries.
	ErrEmpty = errors.New("no entries")
)

// StoreOpts configures a Store.
type StoreOpts struct {
	// MaxFeatures, MaxCells and MaxSamples bound the label IDs accepted by
	// Record. IDs are 1-based, so they are also the maximum number of distinct
	// labels.
	MaxFeatures, MaxCells, MaxSamples int
	// Streaming keeps only one cell in memory. The caller must call FlushCell
	// before recording a different cell.
	Streaming bool
}

// Counts is the accumulated weight of one (feature, cell, sample) entry.
type Counts struct {
	// Reads is the weighted number of reads.
	Reads float32
	// UMIs is the weighted number of distinct UMIs.
	UMIs float32
}

// EmitFunc receives one entry during a flush. Entries of one cell arrive in
// ascending feature order.
type EmitFunc func(feature, cell, sample label.ID, c Counts) error

type featureSlot struct {
	umis rangelist.Set
	Counts
}

type cellSlot struct {
	id       label.ID
	features map[label.ID]*featureSlot
	// Features with nonzero counts, in first-seen order.
	active []label.ID
	umis   float64
}

func (c *cellSlot) flush(sample label.ID, emit EmitFunc) error {
	sort.Slice(c.active, func(i, j int) bool { return c.active[i] < c.active[j] })
	var err error
	for _, f := range c.active {
		slot := c.features[f]
		if err == nil {
			err = emit(f, c.id, sample, slot.Counts)
		}
		slot.umis.Reset()
		slot.Counts = Counts{}
	}
	c.active = c.active[:0]
	c.umis = 0
	return err
}

type sampleSlot struct {
	// cells[i] is the slot for cell ID i. In streaming mode only cells[0] is
	// used, and it is rebound to each cell in turn.
	cells []*cellSlot
	umis  float64
}

// Store accumulates UMI and read counts per feature, cell and sample.
//
// Every distinct UMI contributes its first read's weight to the UMI count of
// an entry; every read contributes its weight to the read count. Thread
// compatible.
type Store struct {
	opts    StoreOpts
	samples []*sampleSlot
	total   float64

	// Streaming state: the cell accepting records, and the last cell flushed.
	live, lastFlushed label.ID
}

// NewStore creates an empty store.
func NewStore(opts StoreOpts) *Store {
	return &Store{
		opts:    opts,
		samples: make([]*sampleSlot, opts.MaxSamples+1),
	}
}

func checkID(what string, id label.ID, max int) error {
	if id == label.Invalid || int(id) > max {
		return errors.Wrapf(ErrCapacity, "%s id %d (max %d)", what, id, max)
	}
	return nil
}

// Record adds one read with the given weight to the entry (feature, cell,
// sample). If umi has not been seen for the entry, the weight is also added to
// the entry's UMI count and to the cell, sample and global UMI totals.
func (s *Store) Record(feature, umi, cell, sample label.ID, weight float32) error {
	if err := checkID("feature", feature, s.opts.MaxFeatures); err != nil {
		return err
	}
	if err := checkID("cell", cell, s.opts.MaxCells); err != nil {
		return err
	}
	if err := checkID("sample", sample, s.opts.MaxSamples); err != nil {
		return err
	}
	if umi == label.Invalid {
		return errors.Wrap(ErrCapacity, "umi id 0")
	}
	if !(weight > 0) || math.IsInf(float64(weight), 0) {
		return errors.Errorf("invalid weight %v", weight)
	}
	if s.opts.Streaming {
		if cell <= s.lastFlushed {
			return errors.Wrapf(ErrOrder, "cell %d appears after cell %d was flushed", cell, s.lastFlushed)
		}
		if s.live != label.Invalid && cell != s.live {
			return errors.Wrapf(ErrOrder, "cell %d recorded while cell %d is live", cell, s.live)
		}
		s.live = cell
	}

	ss := s.samples[sample]
	if ss == nil {
		n := s.opts.MaxCells + 1
		if s.opts.Streaming {
			n = 1
		}
		ss = &sampleSlot{cells: make([]*cellSlot, n)}
		s.samples[sample] = ss
	}
	ci := int(cell)
	if s.opts.Streaming {
		ci = 0
	}
	cs := ss.cells[ci]
	if cs == nil {
		cs = &cellSlot{features: map[label.ID]*featureSlot{}}
		ss.cells[ci] = cs
	}
	cs.id = cell
	fs := cs.features[feature]
	if fs == nil {
		fs = &featureSlot{}
		cs.features[feature] = fs
	}
	newUMI := !fs.umis.Contains(uint32(umi))
	if saturated(fs.Reads, weight) || (newUMI && saturated(fs.UMIs, weight)) {
		return errors.Wrapf(ErrOverflow, "feature %d cell %d sample %d: reads %v umis %v, weight %v",
			feature, cell, sample, fs.Reads, fs.UMIs, weight)
	}
	if fs.Reads == 0 {
		cs.active = append(cs.active, feature)
	}
	fs.Reads += weight
	if newUMI {
		fs.umis.Add(uint32(umi))
		fs.UMIs += weight
		cs.umis += float64(weight)
		ss.umis += float64(weight)
		s.total += float64(weight)
	}
	return nil
}

// saturated reports whether adding weight to the float32 count v would
// overflow or be lost to rounding.
func saturated(v, weight float32) bool {
	sum := v + weight
	return sum == v || float64(sum) >= math.MaxFloat32
}

func (s *Store) cellSlot(cell, sample label.ID) *cellSlot {
	if int(sample) >= len(s.samples) || s.samples[sample] == nil {
		return nil
	}
	cells := s.samples[sample].cells
	if s.opts.Streaming {
		if cs := cells[0]; cs != nil && cs.id == cell && cell == s.live {
			return cs
		}
		return nil
	}
	if int(cell) >= len(cells) {
		return nil
	}
	return cells[cell]
}

// Counts returns the counts of an entry. It returns false if the entry has no
// reads, including entries already flushed in streaming mode.
func (s *Store) Counts(feature, cell, sample label.ID) (Counts, bool) {
	cs := s.cellSlot(cell, sample)
	if cs == nil {
		return Counts{}, false
	}
	fs := cs.features[feature]
	if fs == nil || fs.Reads == 0 {
		return Counts{}, false
	}
	return fs.Counts, true
}

// CellTotal returns the UMI total of a cell within a sample. Flushed cells
// report zero.
func (s *Store) CellTotal(cell, sample label.ID) float64 {
	if cs := s.cellSlot(cell, sample); cs != nil {
		return cs.umis
	}
	return 0
}

// SampleTotal returns the UMI total of a sample.
func (s *Store) SampleTotal(sample label.ID) float64 {
	if int(sample) >= len(s.samples) || s.samples[sample] == nil {
		return 0
	}
	return s.samples[sample].umis
}

// Total returns the UMI total over all samples.
func (s *Store) Total() float64 { return s.total }

// Live returns the cell currently accepting records in streaming mode, or
// label.Invalid.
func (s *Store) Live() label.ID { return s.live }

// FlushCell emits every entry of the live cell, sample by sample, and clears
// the cell slot for reuse. Only valid in streaming mode. After the flush, the
// store rejects cell IDs <= cell.
func (s *Store) FlushCell(cell label.ID, emit EmitFunc) error {
	if !s.opts.Streaming {
		return errors.New("FlushCell requires streaming mode")
	}
	if cell != s.live {
		return errors.Wrapf(ErrOrder, "flush of cell %d while cell %d is live", cell, s.live)
	}
	var err error
	for i, ss := range s.samples {
		if ss == nil || ss.cells[0] == nil || ss.cells[0].id != cell {
			continue
		}
		if e := ss.cells[0].flush(label.ID(i), emit); e != nil && err == nil {
			err = e
		}
	}
	s.live = label.Invalid
	s.lastFlushed = cell
	return err
}

// FlushAll emits every entry in the store, ordered by sample, cell and feature,
// and clears it. In streaming mode it flushes the live cell, if any.
func (s *Store) FlushAll(emit EmitFunc) error {
	if s.opts.Streaming {
		if s.live == label.Invalid {
			return nil
		}
		return s.FlushCell(s.live, emit)
	}
	for i, ss := range s.samples {
		if ss == nil {
			continue
		}
		for _, cs := range ss.cells {
			if cs == nil {
				continue
			}
			if err := cs.flush(label.ID(i), emit); err != nil {
				return err
			}
		}
	}
	return nil
}
