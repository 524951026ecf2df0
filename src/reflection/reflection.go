// Package reflection asks a model to judge past outcomes on a topic and stores the
// lesson it draws as a reflection memory.
package reflection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/Protocol-Lattice/defi-agent/src/memory/model"
	"github.com/Protocol-Lattice/defi-agent/src/memory/prompt"
	"github.com/Protocol-Lattice/defi-agent/src/models"
)

const (
	DefaultSourceLimit = 10

	baseImportance = 0.5
	failureBonus   = 0.3
)

var (
	// ErrNothingToReflect is returned when no non-reflection memory matches the topic.
	ErrNothingToReflect = errors.New("no experiences to reflect on")
	// ErrMalformedVerdict is returned when the model reply carries no usable JSON verdict.
	ErrMalformedVerdict = errors.New("malformed verdict")
)

const judgePrompt = `You review the past actions of a DeFi agent.

TOPIC:
%s

EXPERIENCES (most relevant first):
%s

Judge how well these actions served the user. Respond ONLY with valid JSON:
{"score": <0.0-1.0, 1 means the actions went well>, "lesson": "<one sentence the agent should remember>", "reasoning": "<why>"}`

// Memory is the part of the engine a Reflector reads from and writes to.
type Memory interface {
	Create(ctx context.Context, content string, kind model.Kind, importance float64, attributes map[string]any) (string, error)
	RetrieveScored(ctx context.Context, query string, limit int) ([]model.ScoredMemory, error)
}

// Verdict is the model's judgement of a topic.
type Verdict struct {
	Score     float64 `json:"score"`
	Lesson    string  `json:"lesson"`
	Reasoning string  `json:"reasoning"`
}

// Reflection is a stored verdict.
type Reflection struct {
	ID      string
	Verdict Verdict
	Sources []string
}

// Reflector turns retrieved experiences into reflection memories.
type Reflector struct {
	mem    Memory
	model  models.LLM
	limit  int
	logger *log.Logger
}

// Option configures a Reflector.
type Option func(*Reflector)

// WithSourceLimit caps how many memories are shown to the model.
func WithSourceLimit(n int) Option { return func(r *Reflector) { r.limit = n } }

func WithLogger(l *log.Logger) Option {
	return func(r *Reflector) {
		if l != nil {
			r.logger = l
		}
	}
}

func New(mem Memory, llm models.LLM, opts ...Option) *Reflector {
	r := &Reflector{
		mem:    mem,
		model:  llm,
		limit:  DefaultSourceLimit,
		logger: log.New(os.Stderr, "reflection: ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.limit <= 0 {
		r.limit = DefaultSourceLimit
	}
	return r
}

// Reflect judges the experiences relevant to topic and stores the resulting lesson.
// Earlier reflections are not fed back to the model.
func (r *Reflector) Reflect(ctx context.Context, topic string) (Reflection, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return Reflection{}, errors.New("topic is empty")
	}
	scored, err := r.mem.RetrieveScored(ctx, topic, r.limit)
	if err != nil {
		return Reflection{}, fmt.Errorf("retrieve experiences: %w", err)
	}
	var (
		lines   []string
		sources []string
	)
	for _, s := range scored {
		if s.Record.Kind == model.KindReflection {
			continue
		}
		lines = append(lines, prompt.FormatLine(s.Record))
		sources = append(sources, s.Record.ID)
	}
	if len(lines) == 0 {
		return Reflection{}, ErrNothingToReflect
	}

	reply, err := r.model.Generate(ctx, fmt.Sprintf(judgePrompt, topic, strings.Join(lines, "\n")))
	if err != nil {
		return Reflection{}, fmt.Errorf("judge: %w", err)
	}
	verdict, err := ParseVerdict(reply)
	if err != nil {
		return Reflection{}, err
	}

	content := fmt.Sprintf("Reflection on %s: %s", topic, verdict.Lesson)
	id, err := r.mem.Create(ctx, content, model.KindReflection, Importance(verdict), map[string]any{
		"topic":     topic,
		"score":     verdict.Score,
		"reasoning": verdict.Reasoning,
		"sources":   strings.Join(sources, ","),
	})
	if err != nil {
		return Reflection{}, fmt.Errorf("store reflection: %w", err)
	}
	r.logger.Printf("stored reflection %s on %q (score %.2f, %d sources)", id, topic, verdict.Score, len(sources))
	return Reflection{ID: id, Verdict: verdict, Sources: sources}, nil
}

// Importance weighs lessons from poor outcomes above lessons from good ones.
func Importance(v Verdict) float64 {
	return model.Clamp01(baseImportance + failureBonus*(1-model.Clamp01(v.Score)))
}

// ParseVerdict extracts the first JSON object of reply. The score is clamped to [0,1]
// and the lesson must not be blank.
func ParseVerdict(reply string) (Verdict, error) {
	raw := extractJSON(reply)
	if raw == "" {
		return Verdict{}, fmt.Errorf("%w: no JSON object in reply", ErrMalformedVerdict)
	}
	var v Verdict
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return Verdict{}, fmt.Errorf("%w: %v", ErrMalformedVerdict, err)
	}
	v.Lesson = strings.TrimSpace(v.Lesson)
	if v.Lesson == "" {
		return Verdict{}, fmt.Errorf("%w: empty lesson", ErrMalformedVerdict)
	}
	v.Score = model.Clamp01(v.Score)
	v.Reasoning = strings.TrimSpace(v.Reasoning)
	return v, nil
}

// extractJSON returns the first balanced {...} span of s, ignoring braces inside strings.
func extractJSON(s string) string {
	start, depth := -1, 0
	inString, escaped := false, false
	for i, ch := range s {
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			if start != -1 {
				inString = true
			}
		case '{':
			if start == -1 {
				start = i
			}
			depth++
		case '}':
			if start == -1 {
				continue
			}
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}
