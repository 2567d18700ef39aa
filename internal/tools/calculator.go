package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/clinvault/clinvault-backend/internal/platform/logger"
)

// Calculator performs basic arithmetic on two operands. Error strings are
// part of the tool wire contract.
type Calculator struct {
	log *logger.Logger
}

func NewCalculator(log *logger.Logger) *Calculator {
	return &Calculator{log: log.With("component", "calculator_tool")}
}

func (c *Calculator) Name() string { return "calculator" }

func (c *Calculator) Description() string {
	return "Perform basic arithmetic operations: add, subtract, multiply, divide"
}

func (c *Calculator) Execute(ctx context.Context, args map[string]any) (any, error) {
	operation, _ := args["operation"].(string)
	a, err := numberArg(args, "a")
	if err != nil {
		return nil, err
	}
	b, err := numberArg(args, "b")
	if err != nil {
		return nil, err
	}

	c.log.Info("Calculator tool called", "operation", operation, "a", a, "b", b)

	switch operation {
	case "add":
		return a + b, nil
	case "subtract":
		return a - b, nil
	case "multiply":
		return a * b, nil
	case "divide":
		if b == 0 {
			return nil, errors.New("Division by zero")
		}
		return a / b, nil
	default:
		return nil, fmt.Errorf("Unknown operation: %s", operation)
	}
}

func numberArg(args map[string]any, key string) (float64, error) {
	v, ok := args[key]
	if !ok {
		return 0, fmt.Errorf("missing argument: %s", key)
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case json.Number:
		return n.Float64()
	}
	return 0, fmt.Errorf("argument %s is not a number", key)
}
