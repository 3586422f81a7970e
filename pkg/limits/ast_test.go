package limits

import (
	"go/ast"
	"go/parser"
	"go/token"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/treegate/pkg/fault"
)

// nestedExpr builds an expression of the given depth: ((((x)))).
func nestedExpr(depth int) ast.Expr {
	var e ast.Expr = &ast.Ident{Name: "x"}
	for i := 0; i < depth; i++ {
		e = &ast.ParenExpr{X: e}
	}
	return e
}

func parseSource(t *testing.T, src string) *ast.File {
	t.Helper()
	file, err := parser.ParseFile(token.NewFileSet(), "src.go", src, parser.SkipObjectResolution)
	require.NoError(t, err)
	return file
}

func TestValidateASTWithinCeilings(t *testing.T) {
	l := New(Config{})
	defer l.Destroy()

	file := parseSource(t, `package ui

type Button struct {
	Label   string
	OnClick func()
}

func Render(b Button) string { return b.Label }
`)

	stats, err := l.ValidateAST(file, 0)
	require.NoError(t, err)
	assert.Positive(t, stats.NodeCount)
	assert.Positive(t, stats.MaxDepth)

	// Node count matches an independent structural count.
	independent := 0
	ast.Inspect(file, func(n ast.Node) bool {
		if n != nil {
			independent++
		}
		return true
	})
	assert.Equal(t, independent, stats.NodeCount)
}

func TestValidateASTDepthCeiling(t *testing.T) {
	l := New(Config{MaxASTDepth: 10})
	defer l.Destroy()

	_, err := l.ValidateAST(nestedExpr(20), 0)
	require.ErrorIs(t, err, fault.ErrResourceExceeded)

	le, ok := fault.AsLimit(err)
	require.True(t, ok)
	assert.Equal(t, int64(10), le.Limit)
	assert.Equal(t, int64(11), le.Observed)
}

func TestValidateASTStartDepthAlreadyOver(t *testing.T) {
	l := New(Config{MaxASTDepth: 10})
	defer l.Destroy()

	// Rejected before any traversal: even a huge tree costs nothing here.
	_, err := l.ValidateAST(nestedExpr(100000), 11)
	require.ErrorIs(t, err, fault.ErrResourceExceeded)

	le, ok := fault.AsLimit(err)
	require.True(t, ok)
	assert.Equal(t, int64(11), le.Observed)
}

func TestValidateASTNodeCeilingAbortsEarly(t *testing.T) {
	// A wide, shallow tree: many siblings under one block.
	stmts := make([]ast.Stmt, 200)
	for i := range stmts {
		stmts[i] = &ast.ExprStmt{X: &ast.Ident{Name: "x"}}
	}
	block := &ast.BlockStmt{List: stmts}

	l := New(Config{MaxASTNodes: 50, MaxASTDepth: 50})
	defer l.Destroy()

	_, err := l.ValidateAST(block, 0)
	require.ErrorIs(t, err, fault.ErrResourceExceeded)

	le, ok := fault.AsLimit(err)
	require.True(t, ok)
	assert.Equal(t, int64(50), le.Limit)
	// The walk stopped the instant the ceiling was crossed.
	assert.Equal(t, int64(51), le.Observed)
}

func TestValidateASTNilTree(t *testing.T) {
	l := New(Config{})
	defer l.Destroy()

	stats, err := l.ValidateAST(nil, 0)
	require.NoError(t, err)
	assert.Zero(t, stats.NodeCount)
}

func TestValidateASTScopedStricter(t *testing.T) {
	parent := New(Config{})
	defer parent.Destroy()

	child := parent.CreateScoped(Overrides{MaxASTNodes: 3})
	defer child.Destroy()

	_, err := child.ValidateAST(nestedExpr(5), 0)
	assert.ErrorIs(t, err, fault.ErrResourceExceeded)

	_, err = parent.ValidateAST(nestedExpr(5), 0)
	assert.NoError(t, err)
}
