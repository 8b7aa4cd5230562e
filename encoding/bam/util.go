// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package bam

import "github.com/grailbio/hts/sam"

// IsProperPair returns true if the read is part of a proper pair.
func IsProperPair(r *sam.Record) bool { return r.Flags&sam.ProperPair != 0 }

// IsUnmapped returns true if the read is unmapped.
func IsUnmapped(r *sam.Record) bool { return r.Flags&sam.Unmapped != 0 }

// IsRead2 returns true if the read is the second of a pair.
func IsRead2(r *sam.Record) bool { return r.Flags&sam.Read2 != 0 }

// IsSecondary returns true if the alignment is secondary.
func IsSecondary(r *sam.Record) bool { return r.Flags&sam.Secondary != 0 }

// IsSupplementary returns true if the alignment is supplementary.
func IsSupplementary(r *sam.Record) bool { return r.Flags&sam.Supplementary != 0 }

// IsPrimary returns true if the alignment is neither secondary nor
// supplementary.
func IsPrimary(r *sam.Record) bool { return r.Flags&(sam.Secondary|sam.Supplementary) == 0 }

// HasNoMappedMate returns true if record is unpaired or has an unmapped mate.
func HasNoMappedMate(r *sam.Record) bool {
	return (r.Flags&sam.Paired) == 0 || (r.Flags&sam.MateUnmapped) != 0
}

// RefName returns the name of the reference the record is aligned to. It
// returns false if the record has no reference.
func RefName(r *sam.Record) (string, bool) {
	if r.Ref == nil || r.Ref.ID() < 0 {
		return "", false
	}
	return r.Ref.Name(), true
}

// TagString returns the value of a string ('Z' or 'A') aux field.
func TagString(r *sam.Record, tag sam.Tag) (string, bool) {
	aux := r.AuxFields.Get(tag)
	if aux == nil {
		return "", false
	}
	switch v := aux.Value().(type) {
	case string:
		return v, true
	case byte:
		if aux.Type() == 'A' {
			return string([]byte{v}), true
		}
	}
	return "", false
}

// TagInt returns the value of an integer aux field of any width.
func TagInt(r *sam.Record, tag sam.Tag) (int64, bool) {
	aux := r.AuxFields.Get(tag)
	if aux == nil {
		return 0, false
	}
	switch v := aux.Value().(type) {
	case int8:
		return int64(v), true
	case uint8:
		if aux.Type() == 'A' {
			return 0, false
		}
		return int64(v), true
	case int16:
		return int64(v), true
	case uint16:
		return int64(v), true
	case int32:
		return int64(v), true
	case uint32:
		return int64(v), true
	}
	return 0, false
}
