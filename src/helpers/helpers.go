// Package helpers holds small parsing utilities shared by the commands.
package helpers

import (
	"strconv"
	"strings"

	"github.com/Protocol-Lattice/defi-agent/src/tools"
)

// ParseAttributes turns "userId=alice,amount=1.5,final=true" into typed attributes.
// Numbers become float64 and booleans bool; malformed pairs are skipped.
func ParseAttributes(raw string) map[string]any {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	attrs := make(map[string]any)
	for _, pair := range strings.Split(raw, ",") {
		parts := strings.SplitN(pair, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		if key == "" {
			continue
		}
		if f, err := strconv.ParseFloat(value, 64); err == nil && !strings.HasPrefix(value, "0x") {
			attrs[key] = f
			continue
		}
		if b, err := strconv.ParseBool(value); err == nil {
			attrs[key] = b
			continue
		}
		attrs[key] = value
	}
	if len(attrs) == 0 {
		return nil
	}
	return attrs
}

func ToolNames(toolset []tools.Tool) string {
	if len(toolset) == 0 {
		return "<none>"
	}
	names := make([]string, len(toolset))
	for i, tool := range toolset {
		names[i] = tool.Spec().Name
	}
	return strings.Join(names, ", ")
}

func ParseCSVList(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
