package analyzer

import (
	"go/ast"
	"go/parser"
	"go/token"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const widgetSource = `package ui

import "time"

type Base struct {
	ID string
}

type Button struct {
	Base
	Label   string
	OnClick func()
	Timeout time.Duration
}

type Renderer interface {
	Render(b *Button) (string, error)
	Close() error
}

func NewButton(label string, onClick func()) *Button {
	return &Button{Label: label, OnClick: onClick}
}

const DefaultLabel = "ok"
`

func parseWidget(t *testing.T) (*token.FileSet, *ast.File) {
	t.Helper()
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "widget.go", widgetSource, parser.SkipObjectResolution)
	require.NoError(t, err)
	return fset, file
}

func TestFindStruct(t *testing.T) {
	fset, file := parseWidget(t)

	c, ok := Find(fset, file, "Button")
	require.True(t, ok)
	assert.Equal(t, KindStruct, c.Kind)
	assert.Equal(t, "widget.go", c.File)
	require.Len(t, c.Attributes, 4)

	embedded := c.Attributes[0]
	assert.Equal(t, "Base", embedded.Name)
	assert.True(t, embedded.Embedded)

	attr, ok := c.Attribute("OnClick")
	require.True(t, ok)
	assert.Equal(t, "func()", attr.Type)

	attr, ok = c.Attribute("Timeout")
	require.True(t, ok)
	assert.Equal(t, "time.Duration", attr.Type)
}

func TestFindInterface(t *testing.T) {
	fset, file := parseWidget(t)

	c, ok := Find(fset, file, "Renderer")
	require.True(t, ok)
	assert.Equal(t, KindInterface, c.Kind)
	require.Len(t, c.Attributes, 2)

	attr, ok := c.Attribute("Render")
	require.True(t, ok)
	assert.Equal(t, "func(b *Button) (string, error)", attr.Type)
}

func TestFindFunc(t *testing.T) {
	fset, file := parseWidget(t)

	c, ok := Find(fset, file, "NewButton")
	require.True(t, ok)
	assert.Equal(t, KindFunc, c.Kind)
	require.Len(t, c.Attributes, 2)
	assert.Equal(t, "label", c.Attributes[0].Name)
	assert.Equal(t, "string", c.Attributes[0].Type)
	assert.Equal(t, "onClick", c.Attributes[1].Name)
	assert.Equal(t, "func()", c.Attributes[1].Type)
}

func TestFindConst(t *testing.T) {
	fset, file := parseWidget(t)

	c, ok := Find(fset, file, "DefaultLabel")
	require.True(t, ok)
	assert.Equal(t, KindValue, c.Kind)
}

func TestFindAbsent(t *testing.T) {
	fset, file := parseWidget(t)

	_, ok := Find(fset, file, "Checkbox")
	assert.False(t, ok)

	// Methods are not top-level components.
	_, ok = Find(fset, file, "Render")
	assert.False(t, ok)
}

func TestMatchType(t *testing.T) {
	attr := Attribute{Name: "Timeout", Type: "time.Duration"}

	assert.True(t, attr.MatchType("time.Duration", true))
	assert.False(t, attr.MatchType("Duration", true))
	assert.True(t, attr.MatchType("Duration", false))
	assert.False(t, attr.MatchType("int64", false))
}
