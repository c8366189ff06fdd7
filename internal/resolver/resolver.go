// Package resolver derives the country scope of a run from a free-text query.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/joelkehle/telecom-radar/internal/llm"
	"github.com/joelkehle/telecom-radar/internal/logging"
)

// ErrScopeResolution wraps a model transport failure during resolution.
var ErrScopeResolution = errors.New("scope resolution failed")

// CountrySet is an ordered list of unique country names. Treat as read-only.
type CountrySet []string

func (c CountrySet) Empty() bool { return len(c) == 0 }

type Outcome int

const (
	OutcomeParsed Outcome = iota
	OutcomeFallbackEmpty
)

func (o Outcome) String() string {
	if o == OutcomeFallbackEmpty {
		return "fallback_empty"
	}
	return "parsed"
}

// Resolution is the tagged result of one resolver call.
type Resolution struct {
	Countries CountrySet
	Outcome   Outcome
	Raw       string
	ParseErr  error
}

type Resolver struct {
	caller llm.Caller
	log    *zap.Logger
}

func New(caller llm.Caller, log *zap.Logger) *Resolver {
	return &Resolver{caller: caller, log: logging.OrNop(log).With(zap.String("component", "resolver"))}
}

// Resolve asks the model which of candidates the query is about. A reply that
// is not a list yields OutcomeFallbackEmpty; a transport error is returned.
func (r *Resolver) Resolve(ctx context.Context, column string, candidates []string, query string) (Resolution, error) {
	raw, err := r.caller.Generate(ctx, BuildPrompt(column, candidates, query))
	if err != nil {
		r.log.Error("resolve transport_error", zap.String("class", string(llm.ClassifyError(err))), zap.Error(err))
		return Resolution{}, eris.Wrapf(ErrScopeResolution, "%v", err)
	}
	res := Parse(raw)
	if res.Outcome == OutcomeFallbackEmpty {
		r.log.Warn("resolve parse_fallback", zap.String("raw", truncate(raw, 200)), zap.Error(res.ParseErr))
	} else {
		r.log.Info("resolve parsed", zap.Strings("countries", res.Countries))
	}
	return res, nil
}

// Parse interprets a model reply as a country list.
func Parse(raw string) Resolution {
	items, err := parseList(llm.StripCodeFences(raw))
	if err != nil {
		return Resolution{Countries: CountrySet{}, Outcome: OutcomeFallbackEmpty, Raw: raw, ParseErr: err}
	}
	return Resolution{Countries: dedupe(items), Outcome: OutcomeParsed, Raw: raw}
}

func BuildPrompt(column string, candidates []string, query string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "The dataset has a column named %q with these distinct values:\n", column)
	for _, c := range candidates {
		fmt.Fprintf(&sb, "- %s\n", c)
	}
	sb.WriteString("\nUser question:\n")
	sb.WriteString(strings.TrimSpace(query))
	sb.WriteString("\n\nReturn only the values from the list above that the question is about, as a Python list of strings, for example ['India', 'Pakistan']. Return [] if none apply. Do not add any other text.")
	return sb.String()
}

func dedupe(items []string) CountrySet {
	seen := map[string]struct{}{}
	out := CountrySet{}
	for _, it := range items {
		v := strings.TrimSpace(it)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
