// Copyright 2025 The Lattice ML Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package model reads and writes the LGRF binary model container and
// wraps a loaded graph with a ready-to-run execution plan.
//
// LGRF v1 layout, all integers little-endian:
//
//	magic     4 bytes "LGRF"
//	version   uint32
//	nodes     uint32 count, then node records
//	inputs    uint32 count, then uint32 node indices
//	outputs   uint32 count, then uint32 node indices
//
// Each node record starts with a kind byte and a name string (uint32
// length + bytes). Value nodes carry dtype and int32 dims (-1 for a
// dynamic dimension). Constant nodes carry dtype, uint32 dims and the
// raw element payload. Operator nodes carry the operator name, an
// attribute list and uint32 input/output indices; input index
// 0xFFFFFFFF marks an absent optional input.
package model

const (
	magicLen = 4
	magic    = "LGRF"

	// Version is the container version this package reads and writes.
	Version uint32 = 1
)

const (
	kindValue    = 0
	kindConstant = 1
	kindOperator = 2
)

const (
	attrTagInt    = 0
	attrTagFloat  = 1
	attrTagInts   = 2
	attrTagFloats = 3
	attrTagString = 4
)

// absentInput marks an optional operator input that was not provided.
const absentInput = 0xFFFFFFFF

// Parser sanity limits. These bound allocations before payload data has
// been validated against the remaining input size.
const (
	maxRank    = 16
	maxNameLen = 1 << 16
)
