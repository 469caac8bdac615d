package rule

import (
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/usbrevue/internal/core"
)

// bulkRecord returns a decoded bulk record with the given payload.
func bulkRecord(t *testing.T, payload []byte) *core.Record {
	t.Helper()
	h := make([]byte, core.HeaderLen)
	binary.LittleEndian.PutUint64(h[0:], 0xffff8800)
	h[8] = 'C'
	h[9] = byte(core.XferBulk)
	h[10] = 0x81
	h[11] = 2
	binary.LittleEndian.PutUint16(h[12:], 1)
	h[14] = '-'
	binary.LittleEndian.PutUint32(h[32:], uint32(len(payload)))
	binary.LittleEndian.PutUint32(h[36:], uint32(len(payload)))
	r, err := core.Decode(h, payload)
	require.NoError(t, err)
	return r
}

func TestParseAndApply(t *testing.T) {
	tests := []struct {
		expr  string
		field string
		want  any
	}{
		{"devnum=5", "devnum", uint8(5)},
		{"busnum = 0x10", "busnum", uint16(16)},
		{"status=-115", "status", int32(-115)},
		{"urb=0xffffffffffffffff", "urb", uint64(0xffffffffffffffff)},
		{"event_type=S", "event_type", byte('S')},
		{"event_type='E'", "event_type", byte('E')},
		{"flag_data=0x3d", "flag_data", byte('=')},
		{"length=100", "length", uint32(100)},
		{"data=0xdeadbeef", "data", []byte{0xde, 0xad, 0xbe, 0xef}},
		{"xfer_type=1", "xfer_type", uint8(1)},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			r, err := Parse(tt.expr)
			require.NoError(t, err)
			assert.Equal(t, tt.field, r.Target())

			rec := bulkRecord(t, []byte{1, 2, 3, 4})
			ok, err := r.Apply(rec)
			require.NoError(t, err)
			assert.True(t, ok)

			got, err := rec.Get(tt.field)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseInvalid(t *testing.T) {
	for _, expr := range []string{
		"devnum",
		"nosuchfield=1",
		"devnum=abc",
		"devnum=",
		"data=0x123",
		"data=zz",
		"setup=0x0102",
		"status[1]=2",
		"data[x]=1",
		"data[-1]=1",
		"data[0]=256",
	} {
		t.Run(expr, func(t *testing.T) {
			_, err := Parse(expr)
			assert.True(t, errors.Is(err, ErrInvalidRule), "got %v", err)
		})
	}

	_, err := Parse("nosuchfield=1")
	assert.True(t, errors.Is(err, core.ErrUnknownField))
}

func TestApplyReportsCodecErrors(t *testing.T) {
	rec := bulkRecord(t, []byte{1, 2})

	r, err := Parse("devnum=256")
	require.NoError(t, err)
	_, err = r.Apply(rec)
	assert.True(t, errors.Is(err, core.ErrOutOfRange), "got %v", err)

	r, err = Parse("interval=8")
	require.NoError(t, err)
	_, err = r.Apply(rec)
	assert.True(t, errors.Is(err, core.ErrWrongTransferType), "got %v", err)

	r, err = Parse("length=1")
	require.NoError(t, err)
	_, err = r.Apply(rec)
	assert.True(t, errors.Is(err, core.ErrInvariantViolation), "got %v", err)
}

func TestDataIndex(t *testing.T) {
	rec := bulkRecord(t, []byte{1, 2, 3})

	r, err := Parse("data[1]=0xff")
	require.NoError(t, err)
	assert.Equal(t, "data[1]", r.Target())
	ok, err := r.Apply(rec)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte{1, 0xff, 3}, rec.Data())

	r, err = Parse("data[3]=7")
	require.NoError(t, err)
	ok, err = r.Apply(rec)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, []byte{1, 0xff, 3}, rec.Data())
}

func TestParseListAndSet(t *testing.T) {
	rules, err := ParseList("devnum=9, data[0]=0x41,,data[10]=1")
	require.NoError(t, err)
	require.Len(t, rules, 3)

	s := NewSet(rules...)
	rec := bulkRecord(t, []byte{0})
	n, err := s.Apply(rec)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, uint8(9), rec.DevNum)
	assert.Equal(t, []byte{'A'}, rec.Data())

	_, err = ParseList("devnum=1,bogus")
	assert.True(t, errors.Is(err, ErrInvalidRule))
}

func TestSetStopsAtFirstError(t *testing.T) {
	rules, err := ParseList("devnum=4,interval=1,busnum=9")
	require.NoError(t, err)

	rec := bulkRecord(t, nil)
	n, err := NewSet(rules...).Apply(rec)
	assert.Error(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, uint8(4), rec.DevNum)
	assert.Equal(t, uint16(1), rec.BusNum)
}

func TestParseRoutine(t *testing.T) {
	rt, err := ParseRoutine([]byte(`
select: "xfer_type==3"
rules:
  - set: devnum
    value: 12
  - set: data
    value: 0x0102
  - set: event_type
    value: E
`))
	require.NoError(t, err)
	assert.Equal(t, "xfer_type==3", rt.Select)
	require.Len(t, rt.Rules, 3)
	assert.Equal(t, "0x0102", rt.Rules[1].Value)

	s, err := rt.Set()
	require.NoError(t, err)
	require.Equal(t, 3, s.Len())

	rec := bulkRecord(t, []byte{9, 9})
	_, err = s.Apply(rec)
	require.NoError(t, err)
	assert.Equal(t, uint8(12), rec.DevNum)
	assert.Equal(t, []byte{1, 2}, rec.Data())
	assert.Equal(t, byte('E'), rec.EventType)
}

func TestParseRoutineInvalid(t *testing.T) {
	_, err := ParseRoutine([]byte("rules: [\n"))
	assert.True(t, errors.Is(err, ErrInvalidRule))

	_, err = ParseRoutine([]byte("unknown_key: 1\n"))
	assert.True(t, errors.Is(err, ErrInvalidRule))

	rt, err := ParseRoutine([]byte("rules:\n  - value: 1\n"))
	require.NoError(t, err)
	_, err = rt.Set()
	assert.True(t, errors.Is(err, ErrInvalidRule))
}

func TestLoadRoutine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "routine.yml")
	require.NoError(t, os.WriteFile(path, []byte("rules:\n  - set: busnum\n    value: 3\n"), 0644))

	rt, err := LoadRoutine(path)
	require.NoError(t, err)
	assert.Empty(t, rt.Select)
	assert.Len(t, rt.Rules, 1)

	_, err = LoadRoutine(filepath.Join(t.TempDir(), "missing.yml"))
	assert.Error(t, err)
}
