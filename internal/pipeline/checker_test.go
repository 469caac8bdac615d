package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/usbrevue/internal/core"
)

func TestCheckAllRoundTrip(t *testing.T) {
	res, err := Check(context.Background(), &MockSource{frames: [][]byte{bulk(1, 1, 2, 3), control(2), bulk(3)}})
	require.NoError(t, err)
	assert.Equal(t, uint64(3), res.Records)
	assert.True(t, res.OK())
}

func TestCheckReportsUndecodable(t *testing.T) {
	truncated := bulk(1, 1, 2, 3)
	truncated = truncated[:len(truncated)-1]

	res, err := Check(context.Background(), &MockSource{frames: [][]byte{bulk(1), truncated}})
	require.NoError(t, err)
	require.Len(t, res.Mismatches, 1)

	m := res.Mismatches[0]
	assert.Equal(t, uint64(2), m.Record)
	assert.Equal(t, -1, m.Offset)
	assert.True(t, errors.Is(m.Err, core.ErrMalformedRecord))
	assert.Contains(t, m.String(), "record 2")
}

func TestCheckCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Check(ctx, &MockSource{frames: [][]byte{bulk(1)}})
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestFirstDiff(t *testing.T) {
	assert.Equal(t, -1, firstDiff([]byte{1, 2}, []byte{1, 2}))
	assert.Equal(t, 1, firstDiff([]byte{1, 2}, []byte{1, 3}))
	assert.Equal(t, 2, firstDiff([]byte{1, 2}, []byte{1, 2, 3}))
	assert.Equal(t, 0, firstDiff(nil, []byte{0}))
	assert.Equal(t, "record 4: differs at offset 9", Mismatch{Record: 4, Offset: 9}.String())
}
