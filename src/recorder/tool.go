package recorder

import (
	"context"

	"github.com/Protocol-Lattice/defi-agent/src/tools"
)

var txMetadataKeys = []string{"transactionId", "transaction_id", "txHash", "tx_hash"}

type instrumentedTool struct {
	inner tools.Tool
	rec   *Recorder
}

// Instrument decorates tool so every invocation is recorded.
func (r *Recorder) Instrument(tool tools.Tool) tools.Tool {
	return &instrumentedTool{inner: tool, rec: r}
}

func (t *instrumentedTool) Spec() tools.ToolSpec { return t.inner.Spec() }

func (t *instrumentedTool) Invoke(ctx context.Context, req tools.ToolRequest) (tools.ToolResponse, error) {
	var (
		resp tools.ToolResponse
		err  error
	)
	t.rec.observe(ctx, t.inner.Spec().Name, req.Arguments, func(ctx context.Context) (Result, error) {
		resp, err = t.inner.Invoke(ctx, req)
		return resultFromResponse(resp), err
	})
	return resp, err
}

func resultFromResponse(resp tools.ToolResponse) Result {
	res := Result{Status: resp.Metadata["status"], Output: resp.Content}
	for _, k := range txMetadataKeys {
		if v := resp.Metadata[k]; v != "" {
			res.TransactionID = v
			break
		}
	}
	if res.Failed() {
		res.Error = resp.Metadata["error"]
		if res.Error == "" {
			res.Error = resp.Content
		}
	}
	return res
}
