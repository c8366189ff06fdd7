package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joelkehle/telecom-radar/internal/report"
)

func TestFailReportWritesEnvelopeWithJSON(t *testing.T) {
	prev := reportOpts.asJSON
	t.Cleanup(func() { reportOpts.asJSON = prev })

	reportOpts.asJSON = true
	var buf bytes.Buffer
	cause := errors.New("report failed at scope: status code: 401")
	err := failReport(&buf, cause)
	require.ErrorIs(t, err, cause)

	var out map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	assert.Equal(t, false, out["success"])
	assert.Equal(t, "report failed at scope: status code: 401", out["error"])
	assert.NotContains(t, out, "report")
}

func TestFailReportPlainWithoutJSON(t *testing.T) {
	prev := reportOpts.asJSON
	t.Cleanup(func() { reportOpts.asJSON = prev })

	reportOpts.asJSON = false
	var buf bytes.Buffer
	require.Error(t, failReport(&buf, errors.New("boom")))
	assert.Empty(t, buf.String())
}

func TestWriteEnvelopeSuccess(t *testing.T) {
	var buf bytes.Buffer
	res := report.Result{Markdown: "## Data Centers\nHub", Metadata: report.Metadata{RunID: "run-1"}}
	require.NoError(t, writeEnvelope(&buf, &res, nil))

	var out struct {
		Success  bool            `json:"success"`
		Report   string          `json:"report"`
		Metadata report.Metadata `json:"metadata"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	assert.True(t, out.Success)
	assert.Equal(t, "## Data Centers\nHub", out.Report)
	assert.Equal(t, "run-1", out.Metadata.RunID)
}
