package builtins

import (
	"context"
	"encoding/json"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"strconv"
)

// CalculatorTool evaluates a basic arithmetic expression.
type CalculatorTool struct{}

func (CalculatorTool) Name() string        { return "calculator" }
func (CalculatorTool) Description() string { return "Evaluates an arithmetic expression (+, -, *, /, %, parentheses)." }

func (CalculatorTool) Parameters() json.RawMessage {
	return json.RawMessage(`{
  "type": "object",
  "properties": {
    "expression": {"type": "string", "description": "An arithmetic expression, e.g. \"(3 + 4) * 2\"."}
  },
  "required": ["expression"]
}`)
}

func (CalculatorTool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	var input struct {
		Expression string `json:"expression"`
	}
	if err := json.Unmarshal(args, &input); err != nil {
		return "", err
	}
	expr, err := parser.ParseExpr(input.Expression)
	if err != nil {
		return "", fmt.Errorf("invalid expression: %w", err)
	}
	result, err := evalNumeric(expr)
	if err != nil {
		return "", err
	}
	return strconv.FormatFloat(result, 'g', -1, 64), nil
}

// evalNumeric walks a parsed arithmetic expression's AST. go/parser and
// go/ast give a tested grammar and precedence table for free; there is no
// arithmetic-expression library in the pack, so this is the one builtin
// grounded on the standard library rather than a third-party evaluator.
func evalNumeric(expr ast.Expr) (float64, error) {
	switch e := expr.(type) {
	case *ast.BasicLit:
		if e.Kind != token.INT && e.Kind != token.FLOAT {
			return 0, fmt.Errorf("unsupported literal %q", e.Value)
		}
		return strconv.ParseFloat(e.Value, 64)
	case *ast.ParenExpr:
		return evalNumeric(e.X)
	case *ast.UnaryExpr:
		v, err := evalNumeric(e.X)
		if err != nil {
			return 0, err
		}
		switch e.Op {
		case token.SUB:
			return -v, nil
		case token.ADD:
			return v, nil
		default:
			return 0, fmt.Errorf("unsupported unary operator %s", e.Op)
		}
	case *ast.BinaryExpr:
		left, err := evalNumeric(e.X)
		if err != nil {
			return 0, err
		}
		right, err := evalNumeric(e.Y)
		if err != nil {
			return 0, err
		}
		switch e.Op {
		case token.ADD:
			return left + right, nil
		case token.SUB:
			return left - right, nil
		case token.MUL:
			return left * right, nil
		case token.QUO:
			if right == 0 {
				return 0, fmt.Errorf("division by zero")
			}
			return left / right, nil
		case token.REM:
			if right == 0 {
				return 0, fmt.Errorf("division by zero")
			}
			return float64(int64(left) % int64(right)), nil
		default:
			return 0, fmt.Errorf("unsupported operator %s", e.Op)
		}
	default:
		return 0, fmt.Errorf("unsupported expression")
	}
}
