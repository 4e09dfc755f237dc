// Package layout describes the payload of a stream endpoint.
//
// A Layout is an ordered list of named fields, each either a fixed number of
// bits or a nested group of fields, plus a flag marking whether the stream
// carries discrete packets. Layouts are validated once at construction and are
// read-only afterwards, so many endpoints can share one.
//
// # Packing Rules
//
// Payload values are bit vectors. Fields are packed in declaration order:
//   - The first field occupies the least significant bits
//   - Each following field starts where the previous one ends
//   - Groups are packed recursively and occupy the sum of their children
//
// Field paths are resolved to a Ref (offset, width) once, so run-time access
// never looks fields up by name:
//
//	l, err := layout.New([]layout.Field{
//	    layout.Bits("data", 8),
//	    layout.Group("hdr", layout.Bits("len", 4), layout.Bits("kind", 4)),
//	}, true)
//	kind, _ := l.Ref("hdr.kind") // Offset 12, Width 4
//
// # Chunked Layouts
//
// Chunked(l, n) repeats l as fields chunk0..chunk{n-1}. Width converters use it
// for the wide side of a pack or unpack stage.
//
// # WIT Records
//
// FromWIT derives a layout from a WIT record type, mapping each primitive to
// its natural bit width.
package layout
