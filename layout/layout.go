package layout

import (
	"strconv"
	"strings"

	"github.com/wippyai/gateware/errors"
	"github.com/wippyai/gateware/internal/bitvec"
)

// Reserved names are the endpoint's own signals and cannot be payload fields.
var reserved = map[string]struct{}{
	"valid":           {},
	"ready":           {},
	"payload":         {},
	"start_of_packet": {},
	"end_of_packet":   {},
	"description":     {},
}

// IsReserved reports whether name is one of the endpoint signal names.
func IsReserved(name string) bool {
	_, ok := reserved[name]
	return ok
}

// Field is a named payload field: a leaf of Width bits, or a group when
// Fields is non-empty (Width is then ignored).
type Field struct {
	Name   string
	Fields []Field
	Width  int
}

// Bits declares a leaf field.
func Bits(name string, width int) Field {
	return Field{Name: name, Width: width}
}

// Group declares a nested field.
func Group(name string, fields ...Field) Field {
	return Field{Name: name, Fields: fields}
}

// IsGroup reports whether the field nests other fields.
func (f Field) IsGroup() bool {
	return len(f.Fields) > 0
}

// PackedWidth returns the number of payload bits the field occupies.
func (f Field) PackedWidth() int {
	if !f.IsGroup() {
		return f.Width
	}
	w := 0
	for _, c := range f.Fields {
		w += c.PackedWidth()
	}
	return w
}

func (f Field) clone() Field {
	out := Field{Name: f.Name, Width: f.Width}
	if f.IsGroup() {
		out.Fields = make([]Field, len(f.Fields))
		for i, c := range f.Fields {
			out.Fields[i] = c.clone()
		}
	}
	return out
}

// Ref locates a field inside a packed payload.
type Ref struct {
	Offset int
	Width  int
}

// Get extracts the field from a payload.
func (r Ref) Get(v bitvec.Vector) bitvec.Vector {
	return v.Slice(r.Offset, r.Width)
}

// Uint64 extracts the field as an integer (low 64 bits).
func (r Ref) Uint64(v bitvec.Vector) uint64 {
	return v.Slice(r.Offset, r.Width).Uint64()
}

// Set returns a copy of v with the field replaced by x.
func (r Ref) Set(v, x bitvec.Vector) bitvec.Vector {
	return v.Insert(r.Offset, x.Resize(r.Width))
}

// Layout is a validated, packed payload description.
type Layout struct {
	refs       map[string]Ref
	fields     []Field
	top        []Ref
	width      int
	packetized bool
}

// New validates fields and computes their packed offsets.
func New(fields []Field, packetized bool) (*Layout, error) {
	for _, f := range fields {
		if IsReserved(f.Name) {
			return nil, errors.ReservedName([]string{f.Name}, f.Name)
		}
	}
	if err := validate(fields, nil); err != nil {
		return nil, err
	}
	return build(fields, packetized), nil
}

// Must panics if err is non-nil. It is intended for layouts declared as
// package-level variables.
func Must(l *Layout, err error) *Layout {
	if err != nil {
		panic(err)
	}
	return l
}

func validate(fields []Field, path []string) error {
	seen := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		p := append(append([]string(nil), path...), f.Name)
		if f.Name == "" {
			return errors.New(errors.PhaseElaborate, errors.KindInvalidInput).
				Path(path...).
				Detail("field name must not be empty").
				Build()
		}
		if _, dup := seen[f.Name]; dup {
			return errors.DuplicateName(p, f.Name)
		}
		seen[f.Name] = struct{}{}

		if f.IsGroup() {
			if err := validate(f.Fields, p); err != nil {
				return err
			}
			continue
		}
		if f.Width <= 0 {
			return errors.InvalidWidth(p, f.Width)
		}
	}
	return nil
}

func build(fields []Field, packetized bool) *Layout {
	l := &Layout{
		fields:     make([]Field, len(fields)),
		top:        make([]Ref, len(fields)),
		refs:       make(map[string]Ref),
		packetized: packetized,
	}
	offset := 0
	for i, f := range fields {
		l.fields[i] = f.clone()
		w := f.PackedWidth()
		l.top[i] = Ref{Offset: offset, Width: w}
		l.index(f, f.Name, offset)
		offset += w
	}
	l.width = offset
	return l
}

func (l *Layout) index(f Field, path string, offset int) {
	l.refs[path] = Ref{Offset: offset, Width: f.PackedWidth()}
	if !f.IsGroup() {
		return
	}
	for _, c := range f.Fields {
		l.index(c, path+"."+c.Name, offset)
		offset += c.PackedWidth()
	}
}

// Width returns the total payload width in bits.
func (l *Layout) Width() int {
	return l.width
}

// Packetized reports whether endpoints of this layout carry packet markers.
func (l *Layout) Packetized() bool {
	return l.packetized
}

// Len returns the number of top-level fields.
func (l *Layout) Len() int {
	return len(l.fields)
}

// Field returns the i-th top-level field.
func (l *Layout) Field(i int) Field {
	return l.fields[i].clone()
}

// Fields returns a copy of the top-level fields.
func (l *Layout) Fields() []Field {
	out := make([]Field, len(l.fields))
	for i, f := range l.fields {
		out[i] = f.clone()
	}
	return out
}

// TopRef returns the packed location of the i-th top-level field.
func (l *Layout) TopRef(i int) Ref {
	return l.top[i]
}

// Lookup returns the index of a top-level field.
func (l *Layout) Lookup(name string) (int, bool) {
	for i, f := range l.fields {
		if f.Name == name {
			return i, true
		}
	}
	return 0, false
}

// Ref resolves a dotted field path.
func (l *Layout) Ref(path string) (Ref, error) {
	r, ok := l.refs[path]
	if !ok {
		return Ref{}, errors.NotFound(errors.PhaseElaborate, "field", path)
	}
	return r, nil
}

// MustRef resolves a dotted field path and panics if it does not exist.
func (l *Layout) MustRef(path string) Ref {
	r, err := l.Ref(path)
	if err != nil {
		panic(err)
	}
	return r
}

// WithPacketized returns a layout with the same fields and the given flag.
func (l *Layout) WithPacketized(packetized bool) *Layout {
	if l.packetized == packetized {
		return l
	}
	return build(l.fields, packetized)
}

// Zero returns an all-zero payload of the layout's width.
func (l *Layout) Zero() bitvec.Vector {
	return bitvec.New(l.width)
}

// Encode packs top-level field values in declaration order.
// Missing trailing values are zero; extra values are ignored.
func (l *Layout) Encode(values ...uint64) bitvec.Vector {
	v := l.Zero()
	for i, r := range l.top {
		if i >= len(values) {
			break
		}
		v = r.Set(v, bitvec.FromUint64(r.Width, values[i]))
	}
	return v
}

// Decode unpacks top-level field values in declaration order.
func (l *Layout) Decode(v bitvec.Vector) []uint64 {
	out := make([]uint64, len(l.top))
	for i, r := range l.top {
		out[i] = r.Uint64(v)
	}
	return out
}

// SameShape reports whether both layouts have the same fields and widths.
func (l *Layout) SameShape(o *Layout) bool {
	if len(l.fields) != len(o.fields) {
		return false
	}
	for i := range l.fields {
		if !sameField(l.fields[i], o.fields[i]) {
			return false
		}
	}
	return true
}

func sameField(a, b Field) bool {
	if a.Name != b.Name || a.IsGroup() != b.IsGroup() {
		return false
	}
	if !a.IsGroup() {
		return a.Width == b.Width
	}
	if len(a.Fields) != len(b.Fields) {
		return false
	}
	for i := range a.Fields {
		if !sameField(a.Fields[i], b.Fields[i]) {
			return false
		}
	}
	return true
}

// String renders the layout as {name:width,...}, with a trailing +pkt when packetized.
func (l *Layout) String() string {
	var b strings.Builder
	writeFields(&b, l.fields)
	if l.packetized {
		b.WriteString("+pkt")
	}
	return b.String()
}

func writeFields(b *strings.Builder, fields []Field) {
	b.WriteByte('{')
	for i, f := range fields {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(f.Name)
		b.WriteByte(':')
		if f.IsGroup() {
			writeFields(b, f.Fields)
		} else {
			b.WriteString(strconv.Itoa(f.Width))
		}
	}
	b.WriteByte('}')
}

// ChunkName returns the name of the i-th chunk in a chunked layout.
func ChunkName(i int) string {
	return "chunk" + strconv.Itoa(i)
}

// Chunked repeats l's fields n times as groups chunk0..chunk{n-1}.
// Chunk i starts at bit i*l.Width().
func Chunked(l *Layout, n int) *Layout {
	fields := make([]Field, n)
	for i := range fields {
		fields[i] = Field{Name: ChunkName(i), Fields: l.Fields()}
	}
	return build(fields, l.packetized)
}
