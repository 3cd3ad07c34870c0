package transfer

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestState_Transitions(t *testing.T) {
	s := State{}.WithRecipient(testRecipient).WithAmount("1")
	assert.Equal(t, PhaseIdle, s.Phase)
	assert.True(t, s.CanSubmit(true))
	assert.False(t, s.CanSubmit(false), "disconnected wallet disables submit")

	begun := s.Begin()
	assert.Equal(t, PhaseValidating, begun.Phase)
	assert.Equal(t, StatusProcessing, begun.Status)
	assert.False(t, begun.CanSubmit(true), "in-flight submission disables submit")
	assert.Equal(t, PhaseIdle, s.Phase, "transitions do not mutate the receiver")

	failed := begun.Advance(PhaseSubmitting).Fail(errors.New("boom"))
	assert.Equal(t, PhaseFailed, failed.Phase)
	assert.Equal(t, NetworkUnavailable.Message(), failed.Error)
	assert.Empty(t, failed.Status)
	assert.Equal(t, testRecipient, failed.Recipient)
	assert.True(t, failed.CanSubmit(true))

	edited := failed.WithAmount("2")
	assert.Equal(t, PhaseIdle, edited.Phase)

	retried := failed.Begin()
	assert.Empty(t, retried.Error, "a new attempt clears the previous error")

	done := retried.Advance(PhaseConfirming).Succeed("sig")
	assert.Equal(t, PhaseSuccess, done.Phase)
	assert.Empty(t, done.Recipient)
	assert.Empty(t, done.Amount)
	assert.False(t, done.CanSubmit(true), "cleared fields disable submit")
	assert.Equal(t, PhaseIdle, done.WithRecipient("x").Phase)
}

func TestState_StatusAndErrorExclusive(t *testing.T) {
	states := []State{
		State{}.Begin(),
		State{}.Begin().Advance(PhaseSubmitting),
		State{}.Begin().Advance(PhaseConfirming),
		State{}.Begin().Fail(errors.New("x")),
		State{}.Begin().Fail(errors.New("x")).Begin(),
		State{}.Begin().Succeed("sig"),
		State{}.Begin().Fail(errors.New("x")).Begin().Succeed("sig"),
	}
	for _, s := range states {
		assert.False(t, s.Status != "" && s.Error != "", "state %+v", s)
	}
}

func TestPhase_JSON(t *testing.T) {
	data, err := json.Marshal(State{Phase: PhaseConfirming})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"phase":"confirming"`)

	var s State
	require.NoError(t, json.Unmarshal([]byte(`{"phase":"failed","error":"x"}`), &s))
	assert.Equal(t, PhaseFailed, s.Phase)

	assert.Error(t, json.Unmarshal([]byte(`{"phase":"sideways"}`), &s))
}
