package loom

import (
	"fmt"
	"go/types"

	"golang.org/x/tools/go/types/typeutil"
)

// UnsupportedTypeError reports a type no classification rule accepts.
type UnsupportedTypeError struct {
	Type types.Type
}

func (e *UnsupportedTypeError) Error() string {
	return fmt.Sprintf("unsupported type %s: not constructible, suppliable, or configuration data", e.Type)
}

// Classifier assigns provider kinds to types. Results are memoized per
// instance, so an instance is only valid for one loaded type snapshot.
type Classifier struct {
	memo typeutil.Map // types.Type → *classifyResult
}

type classifyResult struct {
	class Classification
	err   error
}

func NewClassifier() *Classifier {
	return &Classifier{}
}

// Classify maps t to a provider kind through an ordered rule chain:
//
//  1. Pointers unwrap once; non-factory elements become optional.
//  2. Basic types are config.
//  3. Named types with basic underlying (enum-like) are config, even when
//     a constructor exists.
//  4. Named structs with a resolvable constructor are factories.
//  5. Function shapes, named or inline, are external.
//  6. Interfaces, named or inline, are external.
//  7. Structs without a constructor are config records.
//  8. Slices and arrays classify their element, then count as config.
//  9. Maps whose key and element classify config are config records.
//  10. Unions are config when every term classifies config.
//
// Anything else fails with UnsupportedTypeError.
func (cl *Classifier) Classify(t types.Type) (Classification, error) {
	if cached, ok := cl.memo.At(t).(*classifyResult); ok {
		return cached.class, cached.err
	}

	class, err := cl.classify(t)
	cl.memo.Set(t, &classifyResult{class: class, err: err})

	return class, err
}

func (cl *Classifier) classify(t types.Type) (Classification, error) {
	switch typ := types.Unalias(t).(type) {
	case *types.Pointer:
		class, err := cl.Classify(typ.Elem())
		if err != nil {
			return Classification{}, err
		}

		// A pointer to a constructible type is the constructor's natural
		// return shape; only data and external values become optional.
		if class.Kind != KindFactory {
			class.Optional = true
		}

		return class, nil

	case *types.Basic:
		if typ.Kind() == types.Invalid {
			return Classification{}, &UnsupportedTypeError{Type: typ}
		}

		return Classification{Kind: KindConfig, Type: typ}, nil

	case *types.Named:
		return cl.classifyNamed(typ)

	case *types.Signature:
		return Classification{Kind: KindExternal, Type: typ}, nil

	case *types.Interface:
		return Classification{Kind: KindExternal, Type: typ}, nil

	case *types.Struct:
		return Classification{Kind: KindConfig, Type: typ}, nil

	case *types.Slice:
		if _, err := cl.Classify(typ.Elem()); err != nil {
			return Classification{}, fmt.Errorf("slice element: %w", err)
		}

		return Classification{Kind: KindConfig, Type: typ}, nil

	case *types.Array:
		if _, err := cl.Classify(typ.Elem()); err != nil {
			return Classification{}, fmt.Errorf("array element: %w", err)
		}

		return Classification{Kind: KindConfig, Type: typ}, nil

	case *types.Map:
		keyClass, err := cl.Classify(typ.Key())
		if err != nil {
			return Classification{}, fmt.Errorf("map key: %w", err)
		}
		elemClass, err := cl.Classify(typ.Elem())
		if err != nil {
			return Classification{}, fmt.Errorf("map element: %w", err)
		}

		if keyClass.Kind != KindConfig || elemClass.Kind != KindConfig {
			return Classification{}, &UnsupportedTypeError{Type: typ}
		}

		return Classification{Kind: KindConfig, Type: typ}, nil

	case *types.Union:
		for i := 0; i < typ.Len(); i++ {
			class, err := cl.Classify(typ.Term(i).Type())
			if err != nil {
				return Classification{}, fmt.Errorf("union term %d: %w", i, err)
			}
			if class.Kind != KindConfig {
				return Classification{}, &UnsupportedTypeError{Type: typ}
			}
		}

		return Classification{Kind: KindConfig, Type: typ}, nil

	default:
		return Classification{}, &UnsupportedTypeError{Type: t}
	}
}

func (cl *Classifier) classifyNamed(typ *types.Named) (Classification, error) {
	switch under := typ.Underlying().(type) {
	case *types.Basic:
		// Enum-like declarations stay config even when a constructor
		// exists.
		return Classification{Kind: KindConfig, Type: typ}, nil

	case *types.Interface:
		return Classification{Kind: KindExternal, Type: typ}, nil

	case *types.Signature:
		return Classification{Kind: KindExternal, Type: typ}, nil

	case *types.Struct:
		if ctor, returnsErr, ok := resolveConstructor(typ); ok {
			return Classification{
				Kind:           KindFactory,
				Type:           typ,
				Ctor:           ctor,
				CtorReturnsErr: returnsErr,
			}, nil
		}

		return Classification{Kind: KindConfig, Type: typ}, nil

	default:
		// Named slices, maps, and the rest classify by their underlying
		// shape but keep the declared type for rendering.
		class, err := cl.Classify(under)
		if err != nil {
			return Classification{}, err
		}

		class.Type = typ
		return class, nil
	}
}

// resolveConstructor finds the conventional constructor for a named struct:
// a func New<Name> in the defining package's scope returning T, *T,
// (T, error), or (*T, error).
func resolveConstructor(typ *types.Named) (ctor *types.Func, returnsErr bool, ok bool) {
	obj := typ.Obj()
	if obj == nil || obj.Pkg() == nil {
		return nil, false, false
	}

	fn, isFunc := obj.Pkg().Scope().Lookup("New" + obj.Name()).(*types.Func)
	if !isFunc {
		return nil, false, false
	}

	sig, isSig := fn.Type().(*types.Signature)
	if !isSig || sig.Recv() != nil {
		return nil, false, false
	}

	results := sig.Results()
	switch results.Len() {
	case 1:
		if !constructs(results.At(0).Type(), typ) {
			return nil, false, false
		}

		return fn, false, true
	case 2:
		if !constructs(results.At(0).Type(), typ) || !isErrorType(results.At(1).Type()) {
			return nil, false, false
		}

		return fn, true, true
	default:
		return nil, false, false
	}
}

// constructs reports whether result is typ or a pointer to it.
func constructs(result types.Type, typ *types.Named) bool {
	result = types.Unalias(result)
	if ptr, isPtr := result.(*types.Pointer); isPtr {
		result = types.Unalias(ptr.Elem())
	}

	named, isNamed := result.(*types.Named)
	return isNamed && named.Obj() == typ.Obj()
}

func isErrorType(t types.Type) bool {
	return types.Identical(t, types.Universe.Lookup("error").Type())
}
