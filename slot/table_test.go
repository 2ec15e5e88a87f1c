package slot

import (
	"testing"

	"github.com/flowcap/ingest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBeginFileFirstHeaderLandsOnSlotZero(t *testing.T) {
	tbl := NewTable()
	id := tbl.BeginFile("file:///a.pcap", "", "file", nil)
	assert.Equal(t, uint8(0), id)
	assert.Equal(t, uint8(0), tbl.Active())
}

func TestBeginFileAdvancesExactlyOncePerFile(t *testing.T) {
	tbl := NewTable()
	var last uint8 = 0xFF
	for i := 0; i < 300; i++ {
		id := tbl.BeginFile("file:///x.pcap", "", "file", nil)
		assert.Equal(t, last+1, id)
		last = id
	}
}

func TestBeginFileWraparoundReusesSlotZeroTwice(t *testing.T) {
	tbl := NewTable()
	seenZero := 0
	for i := 0; i < 257; i++ {
		id := tbl.BeginFile("file:///x.pcap", "", "file", nil)
		if id == 0 {
			seenZero++
		}
	}
	// slot 0 is taken on the very first call, then again after a full
	// 256-wide wrap: 257 accepted headers -> slot 0 reused exactly twice.
	assert.Equal(t, 2, seenZero)
}

func TestBeginFileReleasesPriorOccupantActions(t *testing.T) {
	tbl := NewTable()
	a1, err := ingest.ParseActionSet([]string{"x=1"})
	require.NoError(t, err)

	for i := 0; i < Size; i++ {
		tbl.BeginFile("file:///x.pcap", "", "file", nil)
	}
	id := tbl.BeginFile("file:///first.pcap", "", "file", a1)
	assert.Equal(t, int32(2), a1.RefCount()) // 1 from Parse + 1 from BeginFile's Acquire
	_ = id

	// Wrap all the way back around to the same slot: the prior occupant's
	// ActionSet reference must be released exactly once.
	for i := 0; i < Size-1; i++ {
		tbl.BeginFile("file:///x.pcap", "", "file", nil)
	}
	tbl.BeginFile("file:///second.pcap", "", "file", nil)
	assert.Equal(t, int32(1), a1.RefCount())
}

func TestMutateOnlyAffectsActiveSlot(t *testing.T) {
	tbl := NewTable()
	first := tbl.BeginFile("file:///a.pcap", "", "file", nil)
	tbl.BeginFile("file:///b.pcap", "", "file", nil) // first is no longer active

	tbl.Mutate(first, func(s *FileSlot) { s.LastPackets = 99 })
	s, ok := tbl.Get(first)
	require.True(t, ok)
	assert.Equal(t, uint64(0), s.LastPackets, "stale slot id must not be mutated")
}

func TestFieldOpsAppendsOnlyToActiveSlot(t *testing.T) {
	tbl := NewTable()
	id := tbl.BeginFile("file:///a.pcap", "", "file", nil)
	buf := tbl.FieldOps(id)
	require.NotNil(t, buf)
	buf.Append("node", "host1")

	tbl.BeginFile("file:///b.pcap", "", "file", nil)
	assert.Nil(t, tbl.FieldOps(id), "id is no longer the active slot")
}
