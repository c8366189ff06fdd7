package llm

import (
	"context"
	"errors"
	"net"
	"regexp"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/joelkehle/telecom-radar/internal/config"
)

const systemPrompt = "You are an analyst of telecommunications infrastructure and network measurement data. You write concise, factual Markdown and do not invent facts."

var statusCodeRe = regexp.MustCompile(`(?:status(?:\s+code)?[:=\s]+)(\d{3})`)

// FailureClass labels a transport failure for logs.
type FailureClass string

const (
	FailureTimeout   FailureClass = "timeout"
	FailureRateLimit FailureClass = "rate_limit"
	FailureServer    FailureClass = "server"
	FailureClient    FailureClass = "client"
)

// Caller sends one prompt and returns the model's text reply.
type Caller interface {
	Generate(ctx context.Context, prompt string) (string, error)
	ModelName() string
}

// NewCaller builds the provider named in cfg, wrapped with the configured
// timeout and rate limit.
func NewCaller(ctx context.Context, cfg config.LLMConfig) (Caller, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, eris.Wrap(config.ErrConfiguration, "llm api key not configured")
	}
	var (
		inner Caller
		err   error
	)
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", "anthropic":
		inner = NewAnthropicCaller(cfg.APIKey, cfg.Model)
	case "openai":
		inner, err = NewOpenAICaller(ctx, cfg.BaseURL, cfg.APIKey, cfg.Model)
		if err != nil {
			return nil, err
		}
	default:
		return nil, eris.Wrapf(config.ErrConfiguration, "unknown llm provider %q", cfg.Provider)
	}
	return WithLimits(inner, cfg.Timeout, cfg.RequestsPerMinute), nil
}

type limitedCaller struct {
	inner   Caller
	timeout time.Duration
	limiter *rate.Limiter
}

// WithLimits bounds every call by timeout and, when rpm > 0, by a request rate.
func WithLimits(c Caller, timeout time.Duration, rpm int) Caller {
	lc := &limitedCaller{inner: c, timeout: timeout}
	if rpm > 0 {
		lc.limiter = rate.NewLimiter(rate.Limit(float64(rpm)/60.0), 1)
	}
	return lc
}

func (l *limitedCaller) ModelName() string { return l.inner.ModelName() }

func (l *limitedCaller) Generate(ctx context.Context, prompt string) (string, error) {
	if l.limiter != nil {
		if err := l.limiter.Wait(ctx); err != nil {
			return "", eris.Wrap(err, "llm rate limit wait")
		}
	}
	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}
	return l.inner.Generate(ctx, prompt)
}

// StripCodeFences removes a surrounding ``` fence and its language tag.
func StripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	parts := strings.SplitN(s, "\n", 2)
	if len(parts) == 2 {
		s = parts[1]
	} else {
		s = strings.TrimPrefix(s, "```")
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
}

// ClassifyError labels a transport error. It never drives retries.
func ClassifyError(err error) FailureClass {
	if errors.Is(err, context.DeadlineExceeded) {
		return FailureTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return FailureTimeout
	}
	msg := strings.ToLower(err.Error())
	if m := statusCodeRe.FindStringSubmatch(msg); len(m) == 2 {
		switch {
		case m[1] == "429":
			return FailureRateLimit
		case strings.HasPrefix(m[1], "5"):
			return FailureServer
		case strings.HasPrefix(m[1], "4"):
			return FailureClient
		}
	}
	switch {
	case strings.Contains(msg, "429"), strings.Contains(msg, "rate limit"):
		return FailureRateLimit
	case strings.Contains(msg, "401"), strings.Contains(msg, "403"), strings.Contains(msg, "400"):
		return FailureClient
	default:
		return FailureServer
	}
}
