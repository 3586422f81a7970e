package limits

import (
	"go/ast"

	"github.com/fyrsmithlabs/treegate/pkg/fault"
)

// TreeStats summarizes a validated syntax tree.
type TreeStats struct {
	NodeCount int `json:"node_count"`
	MaxDepth  int `json:"max_depth"`
}

// ValidateAST walks a syntax tree and enforces the depth and node-count
// ceilings. The walk aborts the instant a ceiling is crossed, so its cost
// is bounded by the ceilings, never by the size of a pathological tree.
//
// startDepth lets callers validate a subtree that already sits below other
// levels; a startDepth beyond the ceiling rejects before any traversal.
func (l *Limiter) ValidateAST(root ast.Node, startDepth int) (TreeStats, error) {
	if startDepth > l.cfg.MaxASTDepth {
		return TreeStats{}, fault.Exceeded("ast depth",
			int64(l.cfg.MaxASTDepth), int64(startDepth), "")
	}
	if root == nil {
		return TreeStats{}, nil
	}

	stats := TreeStats{MaxDepth: startDepth}
	depth := startDepth
	var walkErr error

	// ast.Inspect pushes with a non-nil node and pops with nil, which gives
	// an exact running depth. Returning false once walkErr is set prunes
	// the remaining traversal.
	ast.Inspect(root, func(n ast.Node) bool {
		if walkErr != nil {
			return false
		}
		if n == nil {
			depth--
			return true
		}

		depth++
		if depth > stats.MaxDepth {
			stats.MaxDepth = depth
		}
		if depth > l.cfg.MaxASTDepth {
			walkErr = fault.Exceeded("ast depth",
				int64(l.cfg.MaxASTDepth), int64(depth), "")
			return false
		}

		stats.NodeCount++
		if stats.NodeCount > l.cfg.MaxASTNodes {
			walkErr = fault.Exceeded("ast nodes",
				int64(l.cfg.MaxASTNodes), int64(stats.NodeCount), "")
			return false
		}
		return true
	})

	if walkErr != nil {
		return TreeStats{}, walkErr
	}
	return stats, nil
}
