// Package recorder turns tool executions into memories without ever failing the tool.
package recorder

import (
	"context"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/Protocol-Lattice/defi-agent/src/concurrent"
	"github.com/Protocol-Lattice/defi-agent/src/memory/model"
)

const (
	StatusSuccess = "success"
	StatusError   = "error"

	baseImportance    = 0.5
	errorBonus        = 0.3
	transactionBonus  = 0.2
	maxOutputRunes    = 160
	defaultPreTimeout = 2 * time.Second
)

// Manager is the part of the memory engine the recorder writes to and reads from.
type Manager interface {
	Create(ctx context.Context, content string, kind model.Kind, importance float64, attributes map[string]any) (string, error)
	Retrieve(ctx context.Context, query string, limit int) ([]model.MemoryRecord, error)
}

// Result is the outcome of a side-effecting tool call.
type Result struct {
	Status        string `json:"status"`
	TransactionID string `json:"transactionId,omitempty"`
	Output        any    `json:"output,omitempty"`
	Error         string `json:"error,omitempty"`
}

// Failed reports whether the result carries the error status.
func (r Result) Failed() bool { return strings.EqualFold(strings.TrimSpace(r.Status), StatusError) }

// Action is a tool operation that can be wrapped.
type Action func(ctx context.Context, params map[string]any) (Result, error)

// Recorder writes a memory for every observed tool execution.
type Recorder struct {
	mgr          Manager
	logger       *log.Logger
	contextLimit int
	preTimeout   time.Duration
	pool         *concurrent.Pool

	recorded atomic.Int64
	failed   atomic.Int64
	dropped  atomic.Int64
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithContextLimit enables the pre-execution hook, retrieving up to n memories
// relevant to the pending call. Zero disables it.
func WithContextLimit(n int) Option { return func(r *Recorder) { r.contextLimit = n } }

// WithPreTimeout bounds the pre-execution retrieval.
func WithPreTimeout(d time.Duration) Option {
	return func(r *Recorder) {
		if d > 0 {
			r.preTimeout = d
		}
	}
}

// WithAsync writes memories on pool instead of the caller's goroutine.
func WithAsync(pool *concurrent.Pool) Option { return func(r *Recorder) { r.pool = pool } }

func WithLogger(l *log.Logger) Option {
	return func(r *Recorder) {
		if l != nil {
			r.logger = l
		}
	}
}

// New builds a recorder over mgr.
func New(mgr Manager, opts ...Option) *Recorder {
	r := &Recorder{
		mgr:        mgr,
		logger:     log.New(os.Stderr, "tool-recorder: ", log.LstdFlags),
		preTimeout: defaultPreTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Stats are the recorder counters.
type Stats struct {
	Recorded int64 `json:"recorded"`
	Failed   int64 `json:"failed"`
	Dropped  int64 `json:"dropped"`
}

func (r *Recorder) Stats() Stats {
	return Stats{Recorded: r.recorded.Load(), Failed: r.failed.Load(), Dropped: r.dropped.Load()}
}

// Classify maps a result onto the memory kind it is stored as.
func Classify(res Result) model.Kind {
	if res.Failed() {
		return model.KindReflection
	}
	return model.KindTransactionRecord
}

// Importance starts at 0.5, adds 0.3 for errors or 0.2 for successes carrying a
// transaction id, then adds delta and clamps to [0,1].
func Importance(res Result, delta *float64) float64 {
	v := baseImportance
	switch {
	case res.Failed():
		v += errorBonus
	case strings.TrimSpace(res.TransactionID) != "":
		v += transactionBonus
	}
	if delta != nil {
		v += *delta
	}
	return model.Clamp01(v)
}

// Summarize renders a one-line description of the call.
func Summarize(toolName string, params map[string]any, res Result) string {
	var sb strings.Builder
	sb.WriteString("Tool ")
	sb.WriteString(toolName)
	if res.Failed() {
		sb.WriteString(" failed")
		if msg := oneLine(res.Error); msg != "" {
			sb.WriteString(": ")
			sb.WriteString(msg)
		}
	} else {
		sb.WriteString(" succeeded")
		if tx := strings.TrimSpace(res.TransactionID); tx != "" {
			sb.WriteString(" with transaction ")
			sb.WriteString(tx)
		}
		if res.Output != nil {
			if out := oneLine(fmt.Sprint(res.Output)); out != "" {
				sb.WriteString(": ")
				sb.WriteString(out)
			}
		}
	}
	if p := renderParams(params); p != "" {
		sb.WriteString(" (")
		sb.WriteString(p)
		sb.WriteString(")")
	}
	return sb.String()
}

// Attributes merges params with the reserved tool, status and transactionId keys.
func Attributes(toolName string, params map[string]any, res Result) map[string]any {
	attrs := make(map[string]any, len(params)+4)
	for k, v := range params {
		attrs[k] = v
	}
	attrs["tool"] = toolName
	status := StatusSuccess
	if res.Failed() {
		status = StatusError
	}
	attrs["status"] = status
	if tx := strings.TrimSpace(res.TransactionID); tx != "" {
		attrs["transactionId"] = tx
	}
	if res.Failed() && res.Error != "" {
		attrs["error"] = oneLine(res.Error)
	}
	return attrs
}

// Record stores the execution as a memory and returns its id. Failures are logged and
// returned to this caller; wrapped actions never see them.
func (r *Recorder) Record(ctx context.Context, toolName string, params map[string]any, res Result, delta *float64) (string, error) {
	id, err := r.mgr.Create(ctx,
		Summarize(toolName, params, res),
		Classify(res),
		Importance(res, delta),
		Attributes(toolName, params, res),
	)
	if err != nil {
		r.failed.Add(1)
		r.logger.Printf("warn: record %s: %v", toolName, err)
		return "", err
	}
	r.recorded.Add(1)
	return id, nil
}

// Context retrieves memories relevant to a pending call. It is advisory: errors and
// panics are logged and yield no memories.
func (r *Recorder) Context(ctx context.Context, toolName string, params map[string]any) (records []model.MemoryRecord) {
	if r.contextLimit <= 0 {
		return nil
	}
	defer func() {
		if p := recover(); p != nil {
			r.logger.Printf("warn: context for %s: panic: %v", toolName, p)
			records = nil
		}
	}()
	query := strings.TrimSpace(toolName + " " + renderParams(params))
	cctx, cancel := context.WithTimeout(ctx, r.preTimeout)
	defer cancel()
	records, err := r.mgr.Retrieve(cctx, query, r.contextLimit)
	if err != nil {
		r.logger.Printf("warn: context for %s: %v", toolName, err)
		return nil
	}
	return records
}

// Wrap returns action decorated with the pre-execution hook and post-execution recording.
// The returned action yields exactly what action yields.
func (r *Recorder) Wrap(toolName string, action Action) Action {
	return func(ctx context.Context, params map[string]any) (Result, error) {
		var (
			res Result
			err error
		)
		r.observe(ctx, toolName, params, func(ctx context.Context) (Result, error) {
			res, err = action(ctx, params)
			return res, err
		})
		return res, err
	}
}

// observe runs the pre-hook, the call and the recording step. run's return values
// are only inspected, never altered.
func (r *Recorder) observe(ctx context.Context, toolName string, params map[string]any, run func(context.Context) (Result, error)) {
	if mems := r.Context(ctx, toolName, params); len(mems) > 0 {
		ctx = withMemories(ctx, mems)
	}
	res, err := run(ctx)

	observed := res
	if err != nil {
		observed.Status = StatusError
		if observed.Error == "" {
			observed.Error = err.Error()
		}
	} else if strings.TrimSpace(observed.Status) == "" {
		observed.Status = StatusSuccess
	}
	params = cloneParams(params)
	delta := importanceDelta(ctx)

	if r.pool == nil {
		r.recordQuietly(context.WithoutCancel(ctx), toolName, params, observed, delta)
		return
	}
	if !r.pool.Go(ctx, func(ctx context.Context) {
		r.recordQuietly(ctx, toolName, params, observed, delta)
	}) {
		r.dropped.Add(1)
		r.logger.Printf("warn: recording backlog full, dropped %s", toolName)
	}
}

// recordQuietly runs Record and absorbs everything it can raise, panics included.
func (r *Recorder) recordQuietly(ctx context.Context, toolName string, params map[string]any, res Result, delta *float64) {
	defer func() {
		if p := recover(); p != nil {
			r.failed.Add(1)
			r.logger.Printf("warn: record %s: panic: %v", toolName, p)
		}
	}()
	_, _ = r.Record(ctx, toolName, params, res, delta)
}

// Flush waits for asynchronous writes.
func (r *Recorder) Flush(ctx context.Context) error {
	if r.pool == nil {
		return nil
	}
	return r.pool.Wait(ctx)
}

func cloneParams(params map[string]any) map[string]any {
	if params == nil {
		return nil
	}
	cp := make(map[string]any, len(params))
	for k, v := range params {
		cp[k] = v
	}
	return cp
}

func renderParams(params map[string]any) string {
	if len(params) == 0 {
		return ""
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+oneLine(model.StringFromAny(params[k])))
	}
	return strings.Join(parts, ", ")
}

func oneLine(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) > maxOutputRunes {
		r := []rune(s)
		s = string(r[:maxOutputRunes]) + "..."
	}
	return s
}
