// Package team implements the Team component: sequential task execution via
// the Agent Runtime, per-task retry, and routing-rule evaluation that picks
// the next team.
package team

import (
	"log/slog"
	"strconv"
	"strings"

	"github.com/forgeai/forge/internal/configtree"
)

// evalContext is the small, read-only view a routing condition evaluates
// against: whether every/any task succeeded, plus the dotted-path data tree
// produced by the team's tasks.
type evalContext struct {
	AllSuccess bool
	AnyFailure bool
	Data       configtree.Node
}

// evaluateCondition evaluates one routing condition string. Recognized forms:
//   - "all_success"
//   - "any_failure"
//   - a dotted path optionally followed by a comparison: "<path>",
//     "<path> > <int>", "<path> == <literal>", "<path> != <literal>"
//   - existence is "<path>" alone: true iff the path resolves to a non-absent
//     node.
//
// The grammar is deliberately total: any string that doesn't parse is logged
// as a warning and treated as false —
// it never panics and never returns an error to the caller.
func evaluateCondition(cond string, ctx evalContext, logger *slog.Logger) bool {
	cond = strings.TrimSpace(cond)
	switch cond {
	case "all_success":
		return ctx.AllSuccess
	case "any_failure":
		return ctx.AnyFailure
	case "":
		return false
	}

	for _, op := range []string{"==", "!=", ">=", "<=", ">", "<"} {
		if idx := strings.Index(cond, op); idx >= 0 {
			path := strings.TrimSpace(cond[:idx])
			rhs := strings.TrimSpace(cond[idx+len(op):])
			result, ok := evaluateComparison(path, op, rhs, ctx)
			if !ok {
				logger.Warn("routing: condition failed to evaluate, treating as false", "condition", cond)
				return false
			}
			return result
		}
	}

	// Bare dotted path: existence check, with special-cased ".length" for
	// lists/maps so "data.changes.length > 0" style paths resolve above.
	return !resolvePath(cond, ctx.Data).IsAbsent()
}

func evaluateComparison(path, op, rhs string, ctx evalContext) (bool, bool) {
	node := resolvePath(path, ctx.Data)
	if node.IsAbsent() {
		return false, false
	}

	if lhsInt, ok := node.Int(); ok {
		rhsInt, err := strconv.Atoi(rhs)
		if err != nil {
			return false, false
		}
		return compareInts(lhsInt, op, rhsInt), true
	}

	lhsStr := node.String()
	rhsStr := strings.Trim(rhs, `"'`)
	switch op {
	case "==":
		return lhsStr == rhsStr, true
	case "!=":
		return lhsStr != rhsStr, true
	default:
		return false, false
	}
}

func compareInts(lhs int, op string, rhs int) bool {
	switch op {
	case "==":
		return lhs == rhs
	case "!=":
		return lhs != rhs
	case ">":
		return lhs > rhs
	case ">=":
		return lhs >= rhs
	case "<":
		return lhs < rhs
	case "<=":
		return lhs <= rhs
	}
	return false
}

// resolvePath resolves a dotted path against data, with one extension beyond
// configtree.Node.Get: a trailing ".length" segment resolves to the item or
// field count of the node one level up, as an integer scalar.
func resolvePath(path string, data configtree.Node) configtree.Node {
	if strings.HasSuffix(path, ".length") {
		base := strings.TrimSuffix(path, ".length")
		node := data.Get(base)
		switch {
		case node.IsList():
			return configtree.Scalar(len(node.Items()))
		case node.IsMap():
			return configtree.Scalar(len(node.Fields()))
		default:
			return configtree.Absent
		}
	}
	return data.Get(path)
}
