package capability

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Echo 本地开发用的占位实现，按意图回显一句确认
func Echo(name string) Capability {
	return Func{N: name, Fn: func(ctx context.Context, req Request) (Response, error) {
		if err := ctx.Err(); err != nil {
			return Response{}, err
		}
		var parts []string
		for _, k := range []string{"title", "when", "target", "topic", "recipient", "participants", "person"} {
			if v := req.Params[k]; v != "" {
				parts = append(parts, fmt.Sprintf("%s=%s", k, v))
			}
		}
		summary := fmt.Sprintf("%s handled %s", name, req.Kind)
		if len(parts) > 0 {
			summary += " (" + strings.Join(parts, ", ") + ")"
		}
		data, _ := json.Marshal(map[string]any{"kind": req.Kind, "params": req.Params})
		return Response{Summary: summary, Data: data}, nil
	}}
}
