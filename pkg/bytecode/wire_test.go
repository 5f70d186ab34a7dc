package bytecode

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/chazu/altair/pkg/ast"
)

func sampleCode(t *testing.T) *CodeObject {
	t.Helper()
	fn := &ast.Function{
		Name:   "sample",
		Params: []string{"n"},
		Body: []ast.Stmt{
			&ast.Assign{Target: "x", Value: &ast.BinOp{
				Op:   ast.OpAdd,
				Left: &ast.Name{Ident: "n"}, Right: &ast.Literal{Value: int64(1)},
			}},
			&ast.Return{Value: &ast.Name{Ident: "x"}},
		},
	}
	code, err := Compile(fn)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	return code
}

func TestMarshalRoundTrip(t *testing.T) {
	code := sampleCode(t)
	code.Constants = append(code.Constants,
		"hello", 3.14, true, nil, ast.Tuple{int64(1), "two", ast.Tuple{false}})

	data, err := Marshal(code)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	got, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if diff := cmp.Diff(code, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestMarshalDeterministic(t *testing.T) {
	// Content hashing requires identical objects to serialize identically.
	code := sampleCode(t)
	a, err := Marshal(code)
	if err != nil {
		t.Fatal(err)
	}
	b, err := Marshal(code)
	if err != nil {
		t.Fatal(err)
	}
	if string(a) != string(b) {
		t.Error("repeated Marshal produced different bytes")
	}
}

func TestUnmarshalRejectsBadMagic(t *testing.T) {
	code := sampleCode(t)
	data, err := Marshal(code)
	if err != nil {
		t.Fatal(err)
	}
	// Corrupt the magic in place.
	idx := strings.Index(string(data), wireMagic)
	if idx < 0 {
		t.Fatal("magic not found in serialized form")
	}
	data[idx] = 'X'
	if _, err := Unmarshal(data); err == nil {
		t.Error("corrupted magic did not error")
	}
}

func TestUnmarshalRejectsNewerVersion(t *testing.T) {
	code := sampleCode(t)
	code.Version = BytecodeVersion + 1
	data, err := Marshal(code)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Unmarshal(data); err == nil {
		t.Error("newer version did not error")
	}
}

func TestUnmarshalRejectsGarbage(t *testing.T) {
	if _, err := Unmarshal([]byte{0xDE, 0xAD, 0xBE, 0xEF}); err == nil {
		t.Error("garbage input did not error")
	}
}

func TestConstantTypesPreserved(t *testing.T) {
	code := NewCodeObject("consts")
	code.Constants = []any{int64(-5), 2.0, "s", false, nil, ast.Tuple{}}

	data, err := Marshal(code)
	if err != nil {
		t.Fatal(err)
	}
	got, err := Unmarshal(data)
	if err != nil {
		t.Fatal(err)
	}
	if v, ok := got.Constants[0].(int64); !ok || v != -5 {
		t.Errorf("int constant decoded as %#v", got.Constants[0])
	}
	if v, ok := got.Constants[1].(float64); !ok || v != 2.0 {
		t.Errorf("float constant decoded as %#v", got.Constants[1])
	}
	if _, ok := got.Constants[5].(ast.Tuple); !ok {
		t.Errorf("tuple constant decoded as %#v", got.Constants[5])
	}
}

func TestDisassembleSmoke(t *testing.T) {
	code := sampleCode(t)
	out := code.Disassemble()
	for _, want := range []string{"sample", "LOAD_LOCAL", "STORE_LOCAL", "RETURN", "Constants"} {
		if !strings.Contains(out, want) {
			t.Errorf("disassembly missing %q:\n%s", want, out)
		}
	}
}
