// Copyright 2025 The Lattice ML Authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package ops

// AttrKind identifies the payload type of an attribute.
type AttrKind uint8

// Attribute payload kinds, mirrored by the binary model format.
const (
	AttrInt AttrKind = iota
	AttrFloat
	AttrInts
	AttrFloats
	AttrString
)

// Attr is one validated operator attribute.
type Attr struct {
	Name   string
	Kind   AttrKind
	I      int64
	F      float32
	Ints   []int64
	Floats []float32
	S      string
}

// Attrs is an operator's attribute set. Lookups are linear; attribute sets
// are tiny and built once at load time.
type Attrs []Attr

// Int returns the named integer attribute or def when absent.
func (a Attrs) Int(name string, def int64) int64 {
	for i := range a {
		if a[i].Name == name && a[i].Kind == AttrInt {
			return a[i].I
		}
	}
	return def
}

// Float returns the named float attribute or def when absent.
func (a Attrs) Float(name string, def float32) float32 {
	for i := range a {
		if a[i].Name == name && a[i].Kind == AttrFloat {
			return a[i].F
		}
	}
	return def
}

// IntList returns the named integer-list attribute, or nil when absent.
func (a Attrs) IntList(name string) []int64 {
	for i := range a {
		if a[i].Name == name && a[i].Kind == AttrInts {
			return a[i].Ints
		}
	}
	return nil
}

// FloatList returns the named float-list attribute, or nil when absent.
func (a Attrs) FloatList(name string) []float32 {
	for i := range a {
		if a[i].Name == name && a[i].Kind == AttrFloats {
			return a[i].Floats
		}
	}
	return nil
}

// Str returns the named string attribute or def when absent.
func (a Attrs) Str(name, def string) string {
	for i := range a {
		if a[i].Name == name && a[i].Kind == AttrString {
			return a[i].S
		}
	}
	return def
}

// Attribute constructors, used by the model builder and tests.

// IntAttr builds an integer attribute.
func IntAttr(name string, v int64) Attr { return Attr{Name: name, Kind: AttrInt, I: v} }

// FloatAttr builds a float attribute.
func FloatAttr(name string, v float32) Attr { return Attr{Name: name, Kind: AttrFloat, F: v} }

// IntsAttr builds an integer-list attribute.
func IntsAttr(name string, v ...int64) Attr { return Attr{Name: name, Kind: AttrInts, Ints: v} }

// FloatsAttr builds a float-list attribute.
func FloatsAttr(name string, v ...float32) Attr { return Attr{Name: name, Kind: AttrFloats, Floats: v} }

// StringAttr builds a string attribute.
func StringAttr(name, v string) Attr { return Attr{Name: name, Kind: AttrString, S: v} }
