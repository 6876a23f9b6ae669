package loom

import (
	"fmt"
	"go/ast"
	"go/token"
	"go/types"
)

// typeExpr renders a types.Type as an AST expression usable in code
// generated into package pkg, allocating import aliases in imports as
// needed.
func typeExpr(pkg string, t types.Type, varPool *VarPool, imports map[string]*Import) (ast.Expr, error) {
	switch typ := t.(type) {
	case *types.Basic:
		return ast.NewIdent(typ.Name()), nil
	case *types.Pointer:
		expr, err := typeExpr(pkg, typ.Elem(), varPool, imports)
		if err != nil {
			return nil, fmt.Errorf("pointer element: %w", err)
		}

		return &ast.StarExpr{
			X: expr,
		}, nil
	case *types.Named:
		return qualifiedIdent(pkg, typ.Obj(), varPool, imports), nil
	case *types.Alias:
		return qualifiedIdent(pkg, typ.Obj(), varPool, imports), nil
	case *types.Slice:
		expr, err := typeExpr(pkg, typ.Elem(), varPool, imports)
		if err != nil {
			return nil, fmt.Errorf("slice element: %w", err)
		}

		return &ast.ArrayType{
			Elt: expr,
		}, nil
	case *types.Array:
		expr, err := typeExpr(pkg, typ.Elem(), varPool, imports)
		if err != nil {
			return nil, fmt.Errorf("array element: %w", err)
		}

		return &ast.ArrayType{
			Len: &ast.BasicLit{
				Kind:  token.INT,
				Value: fmt.Sprintf("%d", typ.Len()),
			},
			Elt: expr,
		}, nil
	case *types.Map:
		keyExpr, err := typeExpr(pkg, typ.Key(), varPool, imports)
		if err != nil {
			return nil, fmt.Errorf("map key: %w", err)
		}
		valueExpr, err := typeExpr(pkg, typ.Elem(), varPool, imports)
		if err != nil {
			return nil, fmt.Errorf("map value: %w", err)
		}

		return &ast.MapType{
			Key:   keyExpr,
			Value: valueExpr,
		}, nil
	case *types.Interface:
		methodFields := make([]*ast.Field, 0, typ.NumMethods())
		for method := range typ.Methods() {
			expr, err := typeExpr(pkg, method.Signature(), varPool, imports)
			if err != nil {
				return nil, fmt.Errorf("method signature: %w", err)
			}

			methodFields = append(methodFields, &ast.Field{
				Names: []*ast.Ident{ast.NewIdent(method.Name())},
				Type:  expr,
			})
		}

		return &ast.InterfaceType{
			Methods: &ast.FieldList{
				List: methodFields,
			},
		}, nil
	case *types.Chan:
		var dir ast.ChanDir
		switch typ.Dir() {
		case types.SendRecv:
			dir = ast.SEND | ast.RECV
		case types.SendOnly:
			dir = ast.SEND
		case types.RecvOnly:
			dir = ast.RECV
		}
		expr, err := typeExpr(pkg, typ.Elem(), varPool, imports)
		if err != nil {
			return nil, fmt.Errorf("chan element: %w", err)
		}

		return &ast.ChanType{
			Dir:   dir,
			Value: expr,
		}, nil
	case *types.Signature:
		paramFields := make([]*ast.Field, 0, typ.Params().Len())
		for i := 0; i < typ.Params().Len(); i++ {
			expr, err := typeExpr(pkg, typ.Params().At(i).Type(), varPool, imports)
			if err != nil {
				return nil, fmt.Errorf("param %d: %w", i, err)
			}

			paramFields = append(paramFields, &ast.Field{
				Type: expr,
			})
		}
		resultFields := make([]*ast.Field, 0, typ.Results().Len())
		for i := 0; i < typ.Results().Len(); i++ {
			expr, err := typeExpr(pkg, typ.Results().At(i).Type(), varPool, imports)
			if err != nil {
				return nil, fmt.Errorf("result %d: %w", i, err)
			}

			resultFields = append(resultFields, &ast.Field{
				Type: expr,
			})
		}

		return &ast.FuncType{
			Params: &ast.FieldList{
				List: paramFields,
			},
			Results: &ast.FieldList{
				List: resultFields,
			},
		}, nil
	case *types.Struct:
		fields := make([]*ast.Field, 0, typ.NumFields())
		for field := range typ.Fields() {
			expr, err := typeExpr(pkg, field.Type(), varPool, imports)
			if err != nil {
				return nil, fmt.Errorf("field %s: %w", field.Name(), err)
			}

			fields = append(fields, &ast.Field{
				Names: []*ast.Ident{ast.NewIdent(field.Name())},
				Type:  expr,
			})
		}

		return &ast.StructType{
			Fields: &ast.FieldList{
				List: fields,
			},
		}, nil
	default:
		return nil, fmt.Errorf("unsupported type: %s", t.String())
	}
}

// qualifiedIdent renders a declared type name, qualifying it with an
// import alias when it comes from another package.
func qualifiedIdent(pkg string, obj *types.TypeName, varPool *VarPool, imports map[string]*Import) ast.Expr {
	objPkg := obj.Pkg()
	if objPkg == nil || objPkg.Path() == pkg {
		return ast.NewIdent(obj.Name())
	}

	imp := importFor(objPkg, varPool, imports)

	return &ast.SelectorExpr{
		X:   ast.NewIdent(imp.Name),
		Sel: ast.NewIdent(obj.Name()),
	}
}

// importFor returns the import record for a referenced package, allocating
// an alias on first use.
func importFor(pkg *types.Package, varPool *VarPool, imports map[string]*Import) *Import {
	imp, ok := imports[pkg.Path()]
	if !ok {
		alias := varPool.GetName(pkg.Name())
		imp = &Import{
			Name:          alias,
			IsDefaultName: alias == pkg.Name(),
		}
		imports[pkg.Path()] = imp
	}

	return imp
}
