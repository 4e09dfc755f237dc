package layout

import (
	"fmt"
	"io"
	"math/bits"
	"os"
	"strconv"

	"go.bytecodealliance.org/wit"

	"github.com/wippyai/gateware/errors"
)

// Importer converts WIT types into layout fields, caching named type
// definitions so shared records are only walked once.
type Importer struct {
	cache map[*wit.TypeDef]Field
}

func NewImporter() *Importer {
	return &Importer{
		cache: make(map[*wit.TypeDef]Field),
	}
}

// FromWIT derives a layout from a WIT record or tuple type.
func FromWIT(t wit.Type, packetized bool) (*Layout, error) {
	return NewImporter().Layout(t, packetized)
}

// DecodeWITJSON reads a WIT package in the JSON form written by
// `wasm-tools component wit --json` and derives a layout from the type
// named typeName.
func DecodeWITJSON(r io.Reader, typeName string, packetized bool) (*Layout, error) {
	res, err := wit.DecodeJSON(r)
	if err != nil {
		return nil, errors.ParseFailed("WIT JSON", err)
	}
	for _, td := range res.TypeDefs {
		if td.TypeName() == typeName {
			return FromWIT(td, packetized)
		}
	}
	return nil, errors.NotFound(errors.PhaseConfig, "WIT type", typeName)
}

// LoadWITJSON is DecodeWITJSON on the file at path.
func LoadWITJSON(path, typeName string, packetized bool) (*Layout, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindNotFound, err, "open "+path)
	}
	defer f.Close()
	return DecodeWITJSON(f, typeName, packetized)
}

// Layout derives a layout from a WIT record or tuple type. The record's
// fields become the layout's top-level fields.
func (im *Importer) Layout(t wit.Type, packetized bool) (*Layout, error) {
	f, err := im.field("", t, nil)
	if err != nil {
		return nil, err
	}
	if !f.IsGroup() {
		return nil, errors.Unsupported(errors.PhaseElaborate,
			fmt.Sprintf("WIT type %T is not a record or tuple", t))
	}
	return New(f.Fields, packetized)
}

func (im *Importer) field(name string, t wit.Type, path []string) (Field, error) {
	switch typ := t.(type) {
	case wit.Bool:
		return Bits(name, 1), nil
	case wit.U8, wit.S8:
		return Bits(name, 8), nil
	case wit.U16, wit.S16:
		return Bits(name, 16), nil
	case wit.U32, wit.S32, wit.F32, wit.Char:
		return Bits(name, 32), nil
	case wit.U64, wit.S64, wit.F64:
		return Bits(name, 64), nil
	case *wit.TypeDef:
		f, err := im.typeDef(typ, path)
		if err != nil {
			return Field{}, err
		}
		f.Name = name
		return f, nil
	default:
		return Field{}, unsupported(path, t)
	}
}

func (im *Importer) typeDef(t *wit.TypeDef, path []string) (Field, error) {
	if cached, ok := im.cache[t]; ok {
		return cached.clone(), nil
	}

	var (
		f   Field
		err error
	)

	switch kind := t.Kind.(type) {
	case *wit.Record:
		f, err = im.record(kind, path)
	case *wit.Tuple:
		f, err = im.tuple(kind, path)
	case *wit.Flags:
		if len(kind.Flags) == 0 {
			return Field{}, errors.InvalidWidth(path, 0)
		}
		f = Bits("", len(kind.Flags))
	case *wit.Enum:
		if len(kind.Cases) == 0 {
			return Field{}, errors.InvalidWidth(path, 0)
		}
		f = Bits("", max(1, bits.Len(uint(len(kind.Cases)-1))))
	case wit.Type:
		f, err = im.field("", kind, path)
	default:
		return Field{}, unsupported(path, t.Kind)
	}
	if err != nil {
		return Field{}, err
	}

	im.cache[t] = f
	return f.clone(), nil
}

func (im *Importer) record(r *wit.Record, path []string) (Field, error) {
	if len(r.Fields) == 0 {
		return Field{}, errors.InvalidWidth(path, 0)
	}
	group := Field{Fields: make([]Field, 0, len(r.Fields))}
	for _, rf := range r.Fields {
		child, err := im.field(rf.Name, rf.Type, append(path[:len(path):len(path)], rf.Name))
		if err != nil {
			return Field{}, err
		}
		group.Fields = append(group.Fields, child)
	}
	return group, nil
}

func (im *Importer) tuple(t *wit.Tuple, path []string) (Field, error) {
	if len(t.Types) == 0 {
		return Field{}, errors.InvalidWidth(path, 0)
	}
	group := Field{Fields: make([]Field, 0, len(t.Types))}
	for i, typ := range t.Types {
		name := "f" + strconv.Itoa(i)
		child, err := im.field(name, typ, append(path[:len(path):len(path)], name))
		if err != nil {
			return Field{}, err
		}
		group.Fields = append(group.Fields, child)
	}
	return group, nil
}

func unsupported(path []string, t any) *errors.Error {
	return errors.New(errors.PhaseElaborate, errors.KindUnsupported).
		Path(path...).
		Detail("WIT type %T has no fixed bit width", t).
		Build()
}
