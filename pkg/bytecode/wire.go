package bytecode

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/chazu/altair/pkg/ast"
)

// Wire format magic for serialized code objects: "ALBC" (ALtair ByteCode).
const wireMagic = "ALBC"

// cborEncMode is configured for canonical encoding so that equal code
// objects serialize to identical bytes (content hashing depends on this).
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("bytecode: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// wireConst tags constant values explicitly so decoding reproduces the
// exact Go types (CBOR alone cannot distinguish int64 from uint64 or a
// tuple from a list).
type wireConst struct {
	Kind  uint8       `cbor:"1,keyasint"`
	Int   int64       `cbor:"2,keyasint,omitempty"`
	Float float64     `cbor:"3,keyasint,omitempty"`
	Str   string      `cbor:"4,keyasint,omitempty"`
	Bool  bool        `cbor:"5,keyasint,omitempty"`
	Tuple []wireConst `cbor:"6,keyasint,omitempty"`
}

const (
	wireConstNil = iota
	wireConstInt
	wireConstFloat
	wireConstStr
	wireConstBool
	wireConstTuple
)

type wireCode struct {
	Magic       string      `cbor:"1,keyasint"`
	Version     uint16      `cbor:"2,keyasint"`
	Flags       uint16      `cbor:"3,keyasint"`
	Name        string      `cbor:"4,keyasint"`
	Code        []byte      `cbor:"5,keyasint"`
	Constants   []wireConst `cbor:"6,keyasint"`
	ArgCount    uint8       `cbor:"7,keyasint"`
	KwOnlyCount uint8       `cbor:"8,keyasint"`
	VarNames    []string    `cbor:"9,keyasint"`
}

func constToWire(v any) (wireConst, error) {
	switch x := v.(type) {
	case nil:
		return wireConst{Kind: wireConstNil}, nil
	case int64:
		return wireConst{Kind: wireConstInt, Int: x}, nil
	case float64:
		return wireConst{Kind: wireConstFloat, Float: x}, nil
	case string:
		return wireConst{Kind: wireConstStr, Str: x}, nil
	case bool:
		return wireConst{Kind: wireConstBool, Bool: x}, nil
	case ast.Tuple:
		elts := make([]wireConst, len(x))
		for i, elt := range x {
			w, err := constToWire(elt)
			if err != nil {
				return wireConst{}, err
			}
			elts[i] = w
		}
		return wireConst{Kind: wireConstTuple, Tuple: elts}, nil
	default:
		return wireConst{}, fmt.Errorf("bytecode: unsupported constant type %T", v)
	}
}

func constFromWire(w wireConst) (any, error) {
	switch w.Kind {
	case wireConstNil:
		return nil, nil
	case wireConstInt:
		return w.Int, nil
	case wireConstFloat:
		return w.Float, nil
	case wireConstStr:
		return w.Str, nil
	case wireConstBool:
		return w.Bool, nil
	case wireConstTuple:
		elts := make(ast.Tuple, len(w.Tuple))
		for i, e := range w.Tuple {
			v, err := constFromWire(e)
			if err != nil {
				return nil, err
			}
			elts[i] = v
		}
		return elts, nil
	default:
		return nil, fmt.Errorf("bytecode: unknown wire constant kind %d", w.Kind)
	}
}

// Marshal serializes a code object to canonical CBOR bytes.
func Marshal(c *CodeObject) ([]byte, error) {
	consts := make([]wireConst, len(c.Constants))
	for i, v := range c.Constants {
		w, err := constToWire(v)
		if err != nil {
			return nil, err
		}
		consts[i] = w
	}
	return cborEncMode.Marshal(&wireCode{
		Magic:       wireMagic,
		Version:     c.Version,
		Flags:       uint16(c.Flags),
		Name:        c.Name,
		Code:        c.Code,
		Constants:   consts,
		ArgCount:    c.ArgCount,
		KwOnlyCount: c.KwOnlyCount,
		VarNames:    c.VarNames,
	})
}

// Unmarshal deserializes a code object from CBOR bytes.
func Unmarshal(data []byte) (*CodeObject, error) {
	var w wireCode
	if err := cbor.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("bytecode: unmarshal code object: %w", err)
	}
	if w.Magic != wireMagic {
		return nil, fmt.Errorf("bytecode: invalid magic %q, expected %q", w.Magic, wireMagic)
	}
	if w.Version > BytecodeVersion {
		return nil, fmt.Errorf("bytecode: version %d is newer than supported version %d", w.Version, BytecodeVersion)
	}
	c := &CodeObject{
		Version:     w.Version,
		Flags:       CodeFlags(w.Flags),
		Name:        w.Name,
		Code:        w.Code,
		ArgCount:    w.ArgCount,
		KwOnlyCount: w.KwOnlyCount,
		VarNames:    w.VarNames,
	}
	c.Constants = make([]any, len(w.Constants))
	for i, wc := range w.Constants {
		v, err := constFromWire(wc)
		if err != nil {
			return nil, err
		}
		c.Constants[i] = v
	}
	return c, nil
}
