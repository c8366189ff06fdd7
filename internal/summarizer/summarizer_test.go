package summarizer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joelkehle/telecom-radar/internal/source"
)

type fakeCaller struct {
	reply   string
	err     error
	prompts []string
}

func (f *fakeCaller) ModelName() string { return "fake-model" }
func (f *fakeCaller) Generate(_ context.Context, prompt string) (string, error) {
	f.prompts = append(f.prompts, prompt)
	return f.reply, f.err
}

func TestEachSourceMakesExactlyOneCall(t *testing.T) {
	fc := &fakeCaller{reply: "```markdown\n### India\n- Jio\n```"}
	s := New(fc, nil)
	ctx := context.Background()
	raw := source.RawContext{Text: "| Country |\n|---|\n| India |"}

	out, err := s.Relational(ctx, "operators in India", raw)
	require.NoError(t, err)
	assert.Equal(t, "### India\n- Jio", out)
	_, err = s.Directory(ctx, raw)
	require.NoError(t, err)
	_, err = s.Measurement(ctx, raw)
	require.NoError(t, err)
	_, err = s.Telemetry(ctx, raw, "30d")
	require.NoError(t, err)

	require.Len(t, fc.prompts, 4)
	assert.Contains(t, fc.prompts[0], "operators in India")
	assert.Contains(t, fc.prompts[1], "Total data centers")
	assert.Contains(t, fc.prompts[2], "High-anomaly alerts")
	assert.Contains(t, fc.prompts[3], "last 30d")
	assert.Equal(t, "fake-model", s.ModelName())
}

func TestFailurePropagatesWithoutRetry(t *testing.T) {
	fc := &fakeCaller{err: errors.New("status code: 500")}
	_, err := New(fc, nil).Directory(context.Background(), source.Placeholder(source.Directory))
	require.Error(t, err)
	assert.Len(t, fc.prompts, 1)
}

func TestPlaceholderPromptSaysSo(t *testing.T) {
	p, err := Prompt(source.Placeholder(source.Measurement), Input{})
	require.NoError(t, err)
	assert.Contains(t, p, source.NoDataPlaceholder)
	assert.Contains(t, p, "do not invent data")
}

func TestPromptUnknownSource(t *testing.T) {
	_, err := Prompt(source.RawContext{Source: source.Kind(42)}, Input{})
	require.Error(t, err)
}
