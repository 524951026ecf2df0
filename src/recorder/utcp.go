package recorder

import (
	"context"

	utcp "github.com/universal-tool-calling-protocol/go-utcp"

	"github.com/Protocol-Lattice/defi-agent/src/memory/model"
)

// ToolCaller is the calling surface of a UTCP client.
type ToolCaller interface {
	CallTool(ctx context.Context, toolName string, args map[string]any) (any, error)
}

var _ ToolCaller = utcp.UtcpClientInterface(nil)

// RecordingCaller records every call made through a ToolCaller.
type RecordingCaller struct {
	caller ToolCaller
	rec    *Recorder
}

func NewRecordingCaller(caller ToolCaller, rec *Recorder) *RecordingCaller {
	return &RecordingCaller{caller: caller, rec: rec}
}

func (c *RecordingCaller) CallTool(ctx context.Context, toolName string, args map[string]any) (any, error) {
	var (
		out any
		err error
	)
	c.rec.observe(ctx, toolName, args, func(ctx context.Context) (Result, error) {
		out, err = c.caller.CallTool(ctx, toolName, args)
		return resultFromOutput(out), err
	})
	return out, err
}

// resultFromOutput reads status and transaction fields from map-shaped tool output.
func resultFromOutput(out any) Result {
	res := Result{Output: out}
	m, ok := out.(map[string]any)
	if !ok {
		return res
	}
	res.Status = model.StringFromAny(m["status"])
	for _, k := range txMetadataKeys {
		if v := model.StringFromAny(m[k]); v != "" {
			res.TransactionID = v
			break
		}
	}
	if res.Failed() {
		res.Error = model.StringFromAny(m["error"])
	}
	return res
}
