// Package guard checks questions and answers against the assistant's usage policy.
package guard

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/katakuxiko/sasgpt/internal/config"
	"go.uber.org/zap"
)

// Verdict is the result of one policy check.
type Verdict struct {
	Allowed bool
	Reason  string
}

var allow = Verdict{Allowed: true}

// Filter checks the input before generation and the output after it.
type Filter interface {
	CheckInput(ctx context.Context, question string) (Verdict, error)
	CheckOutput(ctx context.Context, question, answer string) (Verdict, error)
}

// Completer is the LLM call used by self-check rails.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

type Nop struct{}

func (Nop) CheckInput(context.Context, string) (Verdict, error)          { return allow, nil }
func (Nop) CheckOutput(context.Context, string, string) (Verdict, error) { return allow, nil }

// DefaultBlockedInput catches common prompt-injection phrasings.
var DefaultBlockedInput = []string{
	`(?i)ignore\s+(all\s+)?(the\s+)?(previous|above|prior)\s+instructions`,
	`(?i)(system|developer)\s+prompt`,
	`忽略(之前|以上|先前)的?(所有)?(指示|指令)`,
}

// Rules rejects text matching any deny-list pattern.
type Rules struct {
	input  []*regexp.Regexp
	output []*regexp.Regexp
}

func NewRules(input, output []string) (*Rules, error) {
	in, err := compileAll(input)
	if err != nil {
		return nil, fmt.Errorf("blocked_input: %w", err)
	}
	out, err := compileAll(output)
	if err != nil {
		return nil, fmt.Errorf("blocked_output: %w", err)
	}
	return &Rules{input: in, output: out}, nil
}

func (r *Rules) CheckInput(_ context.Context, question string) (Verdict, error) {
	return matchAny(r.input, question, "input"), nil
}

func (r *Rules) CheckOutput(_ context.Context, _, answer string) (Verdict, error) {
	return matchAny(r.output, answer, "output"), nil
}

func compileAll(patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("pattern %q: %w", p, err)
		}
		out = append(out, re)
	}
	return out, nil
}

func matchAny(res []*regexp.Regexp, s, side string) Verdict {
	for _, re := range res {
		if re.MatchString(s) {
			return Verdict{Reason: fmt.Sprintf("%s matches blocked pattern %q", side, re.String())}
		}
	}
	return allow
}

// Chain runs filters in order; the first rejection or error wins.
type Chain []Filter

func (c Chain) CheckInput(ctx context.Context, question string) (Verdict, error) {
	for _, f := range c {
		v, err := f.CheckInput(ctx, question)
		if err != nil || !v.Allowed {
			return v, err
		}
	}
	return allow, nil
}

func (c Chain) CheckOutput(ctx context.Context, question, answer string) (Verdict, error) {
	for _, f := range c {
		v, err := f.CheckOutput(ctx, question, answer)
		if err != nil || !v.Allowed {
			return v, err
		}
	}
	return allow, nil
}

// FromConfig builds the filter named by cfg.Provider. llm is only needed for self_check.
func FromConfig(cfg config.GuardConfig, llm Completer, logger *zap.Logger) (Filter, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	rules := func() (Filter, error) {
		in := cfg.BlockedInput
		if len(in) == 0 {
			in = DefaultBlockedInput
		}
		return NewRules(in, cfg.BlockedOutput)
	}
	selfCheck := func() (Filter, error) {
		if llm == nil {
			return nil, fmt.Errorf("guard %q requires an llm", cfg.Provider)
		}
		return NewSelfCheck(llm, logger), nil
	}

	switch strings.TrimSpace(cfg.Provider) {
	case "", "none":
		return Nop{}, nil
	case "rules":
		return rules()
	case "self_check":
		return selfCheck()
	case "rules+self_check":
		r, err := rules()
		if err != nil {
			return nil, err
		}
		s, err := selfCheck()
		if err != nil {
			return nil, err
		}
		return Chain{r, s}, nil
	default:
		return nil, fmt.Errorf("unknown guard provider %q", cfg.Provider)
	}
}
