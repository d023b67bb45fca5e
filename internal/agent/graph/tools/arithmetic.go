package tools

import (
	"context"
	"math"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"
)

// ===================================
// Arithmetic Tools
// ===================================

const (
	ToolAdd      = "add"
	ToolMultiply = "multiply"
	ToolDivide   = "divide"
)

type ArithmeticInput struct {
	A float64 `json:"a"`
	B float64 `json:"b"`
}

// ArithmeticOutput carries either a result or an error the model can read.
type ArithmeticOutput struct {
	Result *float64 `json:"result,omitempty"`
	Error  string   `json:"error,omitempty"`
}

func arithmeticParams() *schema.ParamsOneOf {
	return schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
		"a": {Type: schema.Number, Desc: "First operand", Required: true},
		"b": {Type: schema.Number, Desc: "Second operand", Required: true},
	})
}

func newArithmeticTool(name, desc string, op func(a, b float64) ArithmeticOutput) tool.InvokableTool {
	return utils.NewTool(
		&schema.ToolInfo{Name: name, Desc: desc, ParamsOneOf: arithmeticParams()},
		func(ctx context.Context, in *ArithmeticInput) (*ArithmeticOutput, error) {
			out := op(in.A, in.B)
			return &out, nil
		},
	)
}

func result(v float64) ArithmeticOutput {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return ArithmeticOutput{Error: "result is not a finite number"}
	}
	return ArithmeticOutput{Result: &v}
}

func NewAddTool() tool.InvokableTool {
	return newArithmeticTool(ToolAdd, "Adds a and b.", func(a, b float64) ArithmeticOutput {
		return result(a + b)
	})
}

func NewMultiplyTool() tool.InvokableTool {
	return newArithmeticTool(ToolMultiply, "Multiplies a and b.", func(a, b float64) ArithmeticOutput {
		return result(a * b)
	})
}

// NewDivideTool reports division by zero as a result, so the model can recover.
func NewDivideTool() tool.InvokableTool {
	return newArithmeticTool(ToolDivide, "Divides a by b.", func(a, b float64) ArithmeticOutput {
		if b == 0 {
			return ArithmeticOutput{Error: "division by zero"}
		}
		return result(a / b)
	})
}
