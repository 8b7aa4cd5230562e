// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package bamprovider provides utilities for scanning alignment records.
//
// The Provider is an interface for reading the records of a BAM file in file
// order. BAMProvider reads any path grailbio/base/file can open, or the standard
// input.
// NewFakeProvider serves in-memory records to unittests.
package bamprovider
