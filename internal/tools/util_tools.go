package tools

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"
)

func (r *Registry) registerUtilityTools() {
	r.register(Tool{
		Info: &schema.ToolInfo{
			Name: "get_current_time",
			Desc: "Get the current date and time, optionally in a named IANA timezone.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"timezone": {Type: schema.String, Desc: "IANA timezone name, e.g. Europe/Berlin. Defaults to UTC."},
			}),
		},
		Run: runGetCurrentTime,
	})

	r.register(Tool{
		Info: &schema.ToolInfo{
			Name: "calculate",
			Desc: "Evaluate an arithmetic expression. Supports + - * /, parentheses, percentages like 15% and phrases like '15% of 2400'.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"expression": {Type: schema.String, Desc: "The expression to evaluate", Required: true},
			}),
		},
		Run: runCalculate,
	})
}

func runGetCurrentTime(ctx context.Context, userID string, args map[string]any) (string, error) {
	loc := time.UTC
	if name := strings.TrimSpace(stringArg(args, "timezone")); name != "" {
		parsed, err := time.LoadLocation(name)
		if err != nil {
			return "", fmt.Errorf("unknown timezone %q", name)
		}
		loc = parsed
	}
	return time.Now().In(loc).Format("Monday, 2 January 2006, 15:04 MST"), nil
}

func runCalculate(ctx context.Context, userID string, args map[string]any) (string, error) {
	expr := strings.TrimSpace(stringArg(args, "expression"))
	if expr == "" {
		return "", fmt.Errorf("expression is required")
	}

	result, err := evaluate(expr)
	if err != nil {
		return "", err
	}
	return formatNumber(result), nil
}

// formatNumber drops a trailing .0 so whole results read naturally when
// spoken.
func formatNumber(v float64) string {
	if v == float64(int64(v)) {
		return strconv.FormatInt(int64(v), 10)
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
