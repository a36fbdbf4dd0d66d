package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutcomeJSON(t *testing.T) {
	data, err := json.Marshal(map[string]Outcome{"outcome": OutcomeVerificationFailed})
	require.NoError(t, err)
	assert.JSONEq(t, `{"outcome":"verification_failed"}`, string(data))

	var decoded struct {
		Outcome Outcome `json:"outcome"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"outcome":"NO_CATALOG"}`), &decoded))
	assert.Equal(t, OutcomeNoCatalog, decoded.Outcome)

	assert.Error(t, json.Unmarshal([]byte(`{"outcome":"maybe"}`), &decoded))
}

func TestParseEnvironment(t *testing.T) {
	env, err := ParseEnvironment("Sandbox")
	require.NoError(t, err)
	assert.Equal(t, EnvironmentSandbox, env)

	_, err = ParseEnvironment("staging")
	assert.Error(t, err)

	assert.Equal(t, EnvironmentSandbox, EnvironmentFor(true))
	assert.Equal(t, EnvironmentProduction, EnvironmentFor(false))
}

func TestNewVerificationRecord(t *testing.T) {
	rec := NewVerificationRecord(OutcomeEvent{
		TransactionID: "t1",
		ProductID:     "com.app.pro",
		Outcome:       OutcomeSuccess,
		Environment:   EnvironmentSandbox,
		Attempts:      2,
	})
	assert.Equal(t, "success", rec.Outcome)
	assert.Equal(t, "sandbox", rec.Environment)
	assert.Equal(t, 2, rec.Attempts)
}
