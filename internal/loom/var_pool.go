package loom

import (
	"fmt"
	"go/types"

	"github.com/loomwire/loom/internal/pkg/strings"
)

// VarPool allocates collision-free identifiers for provider names, import
// aliases, and generated locals.
type VarPool struct {
	vars map[string]int
}

func NewVarPool() *VarPool {
	return &VarPool{
		vars: make(map[string]int),
	}
}

// Register reserves an existing name so later allocations never shadow it.
func (p *VarPool) Register(name string) {
	if name == "" || name == "_" {
		return
	}
	// Set the count to at least 1 so the name won't be reused without a suffix
	if count, ok := p.vars[name]; !ok || count == 0 {
		p.vars[name] = 1
	}
}

// GetName allocates an identifier derived from base, suffixing on
// collision.
func (p *VarPool) GetName(base string) string {
	if base == "" || base == "_" {
		base = "val"
	}
	if goReservedKeywords[base] {
		base += "Value"
	}

	count := p.vars[base]
	p.vars[base] = count + 1

	if count == 0 {
		return base
	}

	return fmt.Sprintf("%s%d", base, count-1)
}

// Get allocates an identifier derived from a type's name.
func (p *VarPool) Get(t types.Type) string {
	return p.GetName(p.baseName(t))
}

// goReservedKeywords contains Go reserved keywords that cannot be used as variable names
var goReservedKeywords = map[string]bool{
	"break": true, "default": true, "func": true, "interface": true, "select": true,
	"case": true, "defer": true, "go": true, "map": true, "struct": true,
	"chan": true, "else": true, "goto": true, "package": true, "switch": true,
	"const": true, "fallthrough": true, "if": true, "range": true, "type": true,
	"continue": true, "for": true, "import": true, "return": true, "var": true,
}

// baseName extracts a base identifier from a type for variable naming.
func (p *VarPool) baseName(t types.Type) string {
	// For pointers, recurse on the element type
	for ptr, ok := t.(*types.Pointer); ok; ptr, ok = t.(*types.Pointer) {
		t = ptr.Elem()
	}

	switch t := t.(type) {
	case *types.Named:
		if obj := t.Obj(); obj != nil && obj.Pkg() != nil {
			if obj.Pkg().Path() == "context" && obj.Name() == "Context" {
				return "ctx"
			}
		}

		return strings.ToLowerCamel(t.Obj().Name())
	case *types.Basic:
		switch t.Kind() {
		case types.Int, types.Int8, types.Int16, types.Int32, types.Int64,
			types.Uint, types.Uint8, types.Uint16, types.Uint32, types.Uint64,
			types.Float32, types.Float64,
			types.UntypedInt, types.UntypedFloat, types.UntypedRune:
			return "num"
		case types.String, types.UntypedString:
			return "str"
		case types.Bool, types.UntypedBool:
			return "flag"
		case types.Complex64, types.Complex128, types.UntypedComplex:
			return "complex"
		case types.Uintptr, types.UnsafePointer:
			return "ptr"
		case types.UntypedNil:
			return "null"
		case types.Invalid:
			return "invalid"
		default:
			return strings.ToLowerCamel(t.Name())
		}
	default:
		return "val"
	}
}
