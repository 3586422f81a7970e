// Package analyzer extracts declaration-level facts from parsed Go files.
//
// Traversal is linear over top-level declarations and matching is plain
// string comparison. The analyzer never evaluates or resolves anything in
// the input; it only reads the shape the parser already produced.
package analyzer

import (
	"bytes"
	"go/ast"
	"go/printer"
	"go/token"
	"strings"
)

// Kind classifies a found declaration.
type Kind string

const (
	KindStruct    Kind = "struct"
	KindInterface Kind = "interface"
	KindFunc      Kind = "func"
	KindValue     Kind = "value"
)

// Attribute is one named member of a component: a struct field, an
// interface method, or a function parameter.
type Attribute struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Embedded bool   `json:"embedded,omitempty"`
}

// Component is a named top-level declaration and its attributes.
type Component struct {
	Name       string      `json:"name"`
	Kind       Kind        `json:"kind"`
	File       string      `json:"file"`
	Line       int         `json:"line"`
	Attributes []Attribute `json:"attributes"`
}

// Find locates the top-level declaration called name in file. It returns
// false when no declaration with that name exists.
func Find(fset *token.FileSet, file *ast.File, name string) (*Component, bool) {
	for _, decl := range file.Decls {
		switch d := decl.(type) {
		case *ast.FuncDecl:
			// Methods are addressed through their receiver type, not here.
			if d.Recv == nil && d.Name.Name == name {
				return funcComponent(fset, d), true
			}
		case *ast.GenDecl:
			if c, ok := fromGenDecl(fset, d, name); ok {
				return c, true
			}
		}
	}
	return nil, false
}

func fromGenDecl(fset *token.FileSet, d *ast.GenDecl, name string) (*Component, bool) {
	for _, spec := range d.Specs {
		switch s := spec.(type) {
		case *ast.TypeSpec:
			if s.Name.Name != name {
				continue
			}
			switch t := s.Type.(type) {
			case *ast.StructType:
				return structComponent(fset, s.Name, t), true
			case *ast.InterfaceType:
				return interfaceComponent(fset, s.Name, t), true
			default:
				return &Component{
					Name: name,
					Kind: KindValue,
					File: position(fset, s.Pos()).Filename,
					Line: position(fset, s.Pos()).Line,
					Attributes: []Attribute{
						{Name: name, Type: typeString(fset, s.Type)},
					},
				}, true
			}
		case *ast.ValueSpec:
			for _, ident := range s.Names {
				if ident.Name == name {
					return valueComponent(fset, ident, s), true
				}
			}
		}
	}
	return nil, false
}

func structComponent(fset *token.FileSet, name *ast.Ident, t *ast.StructType) *Component {
	c := &Component{
		Name: name.Name,
		Kind: KindStruct,
		File: position(fset, name.Pos()).Filename,
		Line: position(fset, name.Pos()).Line,
	}
	for _, field := range t.Fields.List {
		typ := typeString(fset, field.Type)
		if len(field.Names) == 0 {
			// Embedded field: the attribute name is the type name.
			c.Attributes = append(c.Attributes, Attribute{
				Name: embeddedName(field.Type), Type: typ, Embedded: true,
			})
			continue
		}
		for _, ident := range field.Names {
			c.Attributes = append(c.Attributes, Attribute{Name: ident.Name, Type: typ})
		}
	}
	return c
}

func interfaceComponent(fset *token.FileSet, name *ast.Ident, t *ast.InterfaceType) *Component {
	c := &Component{
		Name: name.Name,
		Kind: KindInterface,
		File: position(fset, name.Pos()).Filename,
		Line: position(fset, name.Pos()).Line,
	}
	for _, method := range t.Methods.List {
		typ := typeString(fset, method.Type)
		if len(method.Names) == 0 {
			c.Attributes = append(c.Attributes, Attribute{
				Name: embeddedName(method.Type), Type: typ, Embedded: true,
			})
			continue
		}
		for _, ident := range method.Names {
			c.Attributes = append(c.Attributes, Attribute{Name: ident.Name, Type: typ})
		}
	}
	return c
}

func funcComponent(fset *token.FileSet, d *ast.FuncDecl) *Component {
	c := &Component{
		Name: d.Name.Name,
		Kind: KindFunc,
		File: position(fset, d.Pos()).Filename,
		Line: position(fset, d.Pos()).Line,
	}
	if d.Type.Params == nil {
		return c
	}
	for _, param := range d.Type.Params.List {
		typ := typeString(fset, param.Type)
		if len(param.Names) == 0 {
			c.Attributes = append(c.Attributes, Attribute{Name: "_", Type: typ})
			continue
		}
		for _, ident := range param.Names {
			c.Attributes = append(c.Attributes, Attribute{Name: ident.Name, Type: typ})
		}
	}
	return c
}

func valueComponent(fset *token.FileSet, ident *ast.Ident, s *ast.ValueSpec) *Component {
	typ := ""
	if s.Type != nil {
		typ = typeString(fset, s.Type)
	}
	return &Component{
		Name: ident.Name,
		Kind: KindValue,
		File: position(fset, ident.Pos()).Filename,
		Line: position(fset, ident.Pos()).Line,
		Attributes: []Attribute{
			{Name: ident.Name, Type: typ},
		},
	}
}

// Attribute returns the attribute called name, matched exactly.
func (c *Component) Attribute(name string) (Attribute, bool) {
	for _, attr := range c.Attributes {
		if attr.Name == name {
			return attr, true
		}
	}
	return Attribute{}, false
}

// MatchType compares an attribute's rendered type against expected. Exact
// mode requires equality; otherwise a substring match suffices.
func (a Attribute) MatchType(expected string, exact bool) bool {
	if exact {
		return a.Type == expected
	}
	return strings.Contains(a.Type, expected)
}

// typeString renders a type expression the way it appears in source.
func typeString(fset *token.FileSet, expr ast.Expr) string {
	var buf bytes.Buffer
	if err := printer.Fprint(&buf, fset, expr); err != nil {
		return ""
	}
	return buf.String()
}

// embeddedName extracts the bare name of an embedded field's type.
func embeddedName(expr ast.Expr) string {
	switch t := expr.(type) {
	case *ast.Ident:
		return t.Name
	case *ast.StarExpr:
		return embeddedName(t.X)
	case *ast.SelectorExpr:
		return t.Sel.Name
	case *ast.IndexExpr:
		return embeddedName(t.X)
	case *ast.IndexListExpr:
		return embeddedName(t.X)
	default:
		return ""
	}
}

func position(fset *token.FileSet, pos token.Pos) token.Position {
	if fset == nil {
		return token.Position{}
	}
	return fset.Position(pos)
}
