package testutil

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/gpsform/internal/record"
)

func TestScriptedSink_DefaultsToSuccess(t *testing.T) {
	s := NewScriptedSink()

	require.NoError(t, s.Send(context.Background(), record.FormRecord{ID: 1}))
	assert.Equal(t, 1, s.CallCount())
}

func TestScriptedSink_OutcomesInOrder(t *testing.T) {
	s := NewScriptedSink(errors.New("boom"), nil)

	err := s.Send(context.Background(), record.FormRecord{ID: 7})
	require.Error(t, err)
	assert.True(t, record.IsDeliveryError(err))

	var derr *record.Error
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, int64(7), derr.RecordID)

	assert.NoError(t, s.Send(context.Background(), record.FormRecord{ID: 8}))
	assert.NoError(t, s.Send(context.Background(), record.FormRecord{ID: 9}))

	calls := s.Calls()
	require.Len(t, calls, 3)
	assert.Equal(t, []int64{7, 8, 9}, []int64{calls[0].ID, calls[1].ID, calls[2].ID})
}

func TestFailingSink(t *testing.T) {
	s := FailingSink(503)

	err := s.Send(context.Background(), record.FormRecord{ID: 2})
	var derr *record.Error
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, 503, derr.StatusCode)
	assert.Equal(t, int64(2), derr.RecordID)

	s.Succeed()
	assert.NoError(t, s.Send(context.Background(), record.FormRecord{ID: 2}))
}

func TestScriptedSink_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewScriptedSink().Send(ctx, record.FormRecord{ID: 1})
	assert.True(t, record.IsDeliveryError(err))
	assert.ErrorIs(t, err, context.Canceled)
}
