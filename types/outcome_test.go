package types

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTestOutcome(t *testing.T) {
	tests := []struct {
		name         string
		status       TestStatus
		errMsg       string
		duration     time.Duration
		wantErrMsg   string
		wantDuration int64
	}{
		{
			name:         "failure keeps message",
			status:       TestStatusFailure,
			errMsg:       "boom",
			duration:     1500 * time.Millisecond,
			wantErrMsg:   "boom",
			wantDuration: 1500,
		},
		{
			name:         "success drops message",
			status:       TestStatusSuccess,
			errMsg:       "ignored",
			duration:     time.Second,
			wantErrMsg:   "",
			wantDuration: 1000,
		},
		{
			name:         "skipped drops message",
			status:       TestStatusSkipped,
			errMsg:       "ignored",
			wantErrMsg:   "",
			wantDuration: 0,
		},
		{
			name:         "negative duration clamped",
			status:       TestStatusSuccess,
			duration:     -time.Second,
			wantDuration: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := NewTestOutcome("TestX", tt.status, tt.errMsg, tt.duration)
			assert.Equal(t, tt.wantErrMsg, o.ErrorMessage)
			assert.Equal(t, tt.wantDuration, o.DurationMillis)
			assert.NoError(t, o.Validate())
		})
	}
}

func TestCountsInvariant(t *testing.T) {
	statuses := []TestStatus{TestStatusSuccess, TestStatusFailure, TestStatusSkipped}

	var rs ResultSet
	for i := 0; i < 50; i++ {
		status := statuses[(i*7)%len(statuses)]
		rs.Append(NewTestOutcome("Test"+string(rune('A'+i%26)), status, "err", time.Millisecond))

		c := rs.Counts()
		require.Equal(t, i+1, c.Total)
		require.Equal(t, c.Total, c.Passed+c.Failed+c.Skipped)
	}
}

func TestResultSetCounts(t *testing.T) {
	rs := NewResultSet(
		NewTestOutcome("TestA", TestStatusSuccess, "", time.Second),
		NewTestOutcome("TestB", TestStatusFailure, "bad", 2*time.Second),
		NewTestOutcome("TestC", TestStatusSkipped, "", 0),
		NewTestOutcome("TestD", TestStatusSuccess, "", 0),
	)

	c := rs.Counts()
	assert.Equal(t, Counts{Total: 4, Passed: 2, Failed: 1, Skipped: 1}, c)
	assert.Equal(t, 3*time.Second, rs.Duration())
	assert.Equal(t, TestStatusFailure, rs.Status())
	assert.Equal(t, []string{"TestA", "TestB", "TestC", "TestD"}, rs.Names())
	require.Len(t, rs.Failures(), 1)
	assert.Equal(t, "bad", rs.Failures()[0].ErrorMessage)
	assert.InDelta(t, 50.0, c.Percentage(c.Passed), 0.001)
}

func TestResultSetStatus(t *testing.T) {
	assert.Equal(t, TestStatusSuccess, NewResultSet().Status())
	assert.Equal(t, TestStatusSkipped, NewResultSet(
		NewTestOutcome("TestA", TestStatusSkipped, "", 0),
	).Status())
	assert.Equal(t, TestStatusSuccess, NewResultSet(
		NewTestOutcome("TestA", TestStatusSkipped, "", 0),
		NewTestOutcome("TestB", TestStatusSuccess, "", 0),
	).Status())
}

func TestResultSetOutcomesIsCopy(t *testing.T) {
	rs := NewResultSet(NewTestOutcome("TestA", TestStatusSuccess, "", 0))
	out := rs.Outcomes()
	out[0].Name = "changed"
	assert.Equal(t, "TestA", rs.Outcomes()[0].Name)
}

func TestResultSetCopiesDoNotShareAppends(t *testing.T) {
	var base ResultSet
	base.Append(NewTestOutcome("TestA", TestStatusSuccess, "", 0))
	base.Append(NewTestOutcome("TestB", TestStatusSuccess, "", 0))

	left, right := base, base
	left.Append(NewTestOutcome("TestLeft", TestStatusSuccess, "", 0))
	right.Append(NewTestOutcome("TestRight", TestStatusFailure, "boom", 0))

	assert.Equal(t, []string{"TestA", "TestB"}, base.Names())
	assert.Equal(t, []string{"TestA", "TestB", "TestLeft"}, left.Names())
	assert.Equal(t, []string{"TestA", "TestB", "TestRight"}, right.Names())

	var decoded ResultSet
	require.NoError(t, json.Unmarshal([]byte(`[{"name":"TestA","status":"SUCCESS","durationMillis":1}]`), &decoded))
	snapshot := decoded
	decoded.Append(NewTestOutcome("TestB", TestStatusSkipped, "", 0))
	other := snapshot
	other.Append(NewTestOutcome("TestC", TestStatusSuccess, "", 0))
	assert.Equal(t, []string{"TestA", "TestB"}, decoded.Names())
	assert.Equal(t, []string{"TestA", "TestC"}, other.Names())
}

func TestResultSetSuperset(t *testing.T) {
	small := NewResultSet(NewTestOutcome("TestA", TestStatusSuccess, "", 0))
	big := NewResultSet(
		NewTestOutcome("TestA", TestStatusSuccess, "", 0),
		NewTestOutcome("TestB", TestStatusFailure, "x", 0),
	)

	assert.True(t, big.IsSupersetOf(small))
	assert.False(t, small.IsSupersetOf(big))
	assert.True(t, big.IsSupersetOf(NewResultSet()))
	assert.True(t, big.Contains("TestB"))
	assert.False(t, big.Contains("TestC"))
}

func TestResultSetJSON(t *testing.T) {
	t.Run("empty set encodes as array", func(t *testing.T) {
		data, err := json.Marshal(ResultSet{})
		require.NoError(t, err)
		assert.JSONEq(t, `[]`, string(data))
	})

	t.Run("decode drops message on success", func(t *testing.T) {
		var rs ResultSet
		err := json.Unmarshal([]byte(`[
			{"name":"TestA","status":"SUCCESS","errorMessage":"stale","durationMillis":5},
			{"name":"TestB","status":"FAILURE","errorMessage":"broken","durationMillis":7}
		]`), &rs)
		require.NoError(t, err)
		require.Equal(t, 2, rs.Len())
		assert.Empty(t, rs.Outcomes()[0].ErrorMessage)
		assert.Equal(t, "broken", rs.Outcomes()[1].ErrorMessage)
		assert.Equal(t, Counts{Total: 2, Passed: 1, Failed: 1}, rs.Counts())
	})

	t.Run("unknown status rejected", func(t *testing.T) {
		var rs ResultSet
		err := json.Unmarshal([]byte(`[{"name":"TestA","status":"PASSED","durationMillis":1}]`), &rs)
		assert.Error(t, err)
	})

	t.Run("negative duration rejected", func(t *testing.T) {
		var rs ResultSet
		err := json.Unmarshal([]byte(`[{"name":"TestA","status":"SUCCESS","durationMillis":-1}]`), &rs)
		assert.Error(t, err)
	})
}

func TestPollResponseKinds(t *testing.T) {
	rs := NewResultSet(NewTestOutcome("TestA", TestStatusSuccess, "", 0))

	partial := NewPartial(rs)
	assert.Equal(t, PollPartial, partial.Kind())
	assert.False(t, partial.IsFinal())
	assert.Equal(t, "partial", partial.Kind().String())

	final := NewFinal(rs)
	assert.True(t, final.IsFinal())
	assert.Equal(t, 1, final.Results().Len())
}
