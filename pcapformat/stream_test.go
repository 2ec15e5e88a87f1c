package pcapformat

import (
	"bytes"
	"context"
	"encoding/binary"
	"testing"

	"github.com/flowcap/ingest"
	"github.com/flowcap/ingest/downstream/fake"
	"github.com/flowcap/ingest/slot"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordSpec struct {
	tsSec, tsFrac uint32
	capLen        uint32 // 0 means "use len(body)"
	origLen       uint32 // 0 means "use len(body)"
	body          []byte
}

func buildCaptureFile(magic uint32, recs []recordSpec) []byte {
	buf := new(bytes.Buffer)
	binary.Write(buf, binary.LittleEndian, magic)
	binary.Write(buf, binary.LittleEndian, uint16(2))
	binary.Write(buf, binary.LittleEndian, uint16(4))
	binary.Write(buf, binary.LittleEndian, int32(0))
	binary.Write(buf, binary.LittleEndian, uint32(0))
	binary.Write(buf, binary.LittleEndian, uint32(262144))
	binary.Write(buf, binary.LittleEndian, uint32(1))

	for _, r := range recs {
		capLen := r.capLen
		if capLen == 0 {
			capLen = uint32(len(r.body))
		}
		origLen := r.origLen
		if origLen == 0 {
			origLen = uint32(len(r.body))
		}
		binary.Write(buf, binary.LittleEndian, r.tsSec)
		binary.Write(buf, binary.LittleEndian, r.tsFrac)
		binary.Write(buf, binary.LittleEndian, capLen)
		binary.Write(buf, binary.LittleEndian, origLen)
		// The wire body is always exactly capLen bytes, padded out with
		// zero bytes when the caller's fixture is shorter —
		// this matters for oversized records, which the parser skips
		// byte-for-byte rather than emitting.
		wire := make([]byte, capLen)
		copy(wire, r.body)
		buf.Write(wire)
	}
	return buf.Bytes()
}

func newTestDeps() (Deps, *fake.Batcher) {
	b := fake.NewBatcher()
	return Deps{
		Slots:   slot.NewTable(),
		Batcher: b,
	}, b
}

func feedInChunksOf(t *testing.T, p *Parser, data []byte, chunkSize int) {
	t.Helper()
	for len(data) > 0 {
		n := chunkSize
		if n > len(data) {
			n = len(data)
		}
		require.NoError(t, p.Feed(context.Background(), data[:n]))
		data = data[n:]
	}
}

func TestStreamParserChunkBoundaryIndependence(t *testing.T) {
	recs := []recordSpec{
		{tsSec: 1000, tsFrac: 1, body: []byte("alpha-packet")},
		{tsSec: 1000, tsFrac: 2, body: []byte("beta-packet-longer")},
		{tsSec: 1000, tsFrac: 3, body: []byte("g")},
	}
	data := buildCaptureFile(MagicMicroNative, recs)

	depsWhole, batchWhole := newTestDeps()
	pWhole := New("file:///a.pcap", "", "file", nil, Options{}, depsWhole)
	require.NoError(t, pWhole.Feed(context.Background(), data))
	require.NoError(t, pWhole.Finish())

	depsByte, batchByte := newTestDeps()
	pByte := New("file:///a.pcap", "", "file", nil, Options{}, depsByte)
	feedInChunksOf(t, pByte, data, 1)
	require.NoError(t, pByte.Finish())

	wholeRecs := batchWhole.Records()
	byteRecs := batchByte.Records()
	require.Len(t, wholeRecs, 3)
	require.Len(t, byteRecs, 3)
	for i := range wholeRecs {
		assert.Equal(t, wholeRecs[i].Body, byteRecs[i].Body)
		assert.Equal(t, wholeRecs[i].Timestamp, byteRecs[i].Timestamp)
		assert.Equal(t, wholeRecs[i].CapturedLen, byteRecs[i].CapturedLen)
	}
	assert.Equal(t, pWhole.TotalPackets(), pByte.TotalPackets())
}

func TestStreamParserHeaderSplitAcrossThreeChunks(t *testing.T) {
	recs := []recordSpec{{tsSec: 5, tsFrac: 0, body: []byte("hello")}}
	data := buildCaptureFile(MagicMicroNative, recs)

	deps, batcher := newTestDeps()
	p := New("file:///b.pcap", "", "file", nil, Options{}, deps)
	require.NoError(t, p.Feed(context.Background(), data[:10]))
	require.NoError(t, p.Feed(context.Background(), data[10:20]))
	require.NoError(t, p.Feed(context.Background(), data[20:]))
	require.NoError(t, p.Finish())

	require.Len(t, batcher.Records(), 1)
	assert.Equal(t, []byte("hello"), batcher.Records()[0].Body)
}

func TestStreamParserOversizePacketSkippedThenResumes(t *testing.T) {
	recs := []recordSpec{
		{tsSec: 1, capLen: MaxCapturedLen + 1, origLen: MaxCapturedLen + 1},
		{tsSec: 2, body: []byte("next-packet")},
	}
	data := buildCaptureFile(MagicMicroNative, recs)

	deps, batcher := newTestDeps()
	p := New("file:///c.pcap", "", "file", nil, Options{}, deps)
	require.NoError(t, p.Feed(context.Background(), data))
	require.NoError(t, p.Finish())

	require.Len(t, batcher.Records(), 1)
	assert.Equal(t, []byte("next-packet"), batcher.Records()[0].Body)
}

func TestStreamParserTruncatedRecordFatalByDefault(t *testing.T) {
	recs := []recordSpec{{tsSec: 1, capLen: 4, origLen: 8, body: []byte("abcd")}}
	data := buildCaptureFile(MagicMicroNative, recs)

	deps, _ := newTestDeps()
	p := New("file:///d.pcap", "", "file", nil, Options{}, deps)
	err := p.Feed(context.Background(), data)
	require.Error(t, err)
	var ierr *ingest.Error
	require.ErrorAs(t, err, &ierr)
	assert.Equal(t, ingest.TruncatedRecord, ierr.Kind)
	assert.True(t, ierr.Fatal)
}

func TestStreamParserTruncatedRecordToleratedWhenAllowed(t *testing.T) {
	recs := []recordSpec{{tsSec: 1, capLen: 4, origLen: 8, body: []byte("abcd")}}
	data := buildCaptureFile(MagicMicroNative, recs)

	deps, batcher := newTestDeps()
	p := New("file:///e.pcap", "", "file", nil, Options{AllowTruncated: true}, deps)
	require.NoError(t, p.Feed(context.Background(), data))
	require.NoError(t, p.Finish())

	require.Len(t, batcher.Records(), 1)
	assert.Equal(t, uint32(4), batcher.Records()[0].CapturedLen)
	assert.Equal(t, uint32(8), batcher.Records()[0].OriginalLen)
}

func TestStreamParserUnknownFormatFatalByDefault(t *testing.T) {
	data := buildCaptureFile(0xCAFEBABE, []recordSpec{{tsSec: 1, body: []byte("x")}})

	deps, _ := newTestDeps()
	p := New("file:///f.pcap", "", "file", nil, Options{}, deps)
	err := p.Feed(context.Background(), data)
	require.Error(t, err)
	var ierr *ingest.Error
	require.ErrorAs(t, err, &ierr)
	assert.Equal(t, ingest.UnknownFormat, ierr.Kind)
	assert.True(t, ierr.Fatal)
	assert.False(t, p.Abandoned())
}

func TestStreamParserUnknownFormatAbandonedWhenTolerated(t *testing.T) {
	data := buildCaptureFile(0xCAFEBABE, []recordSpec{{tsSec: 1, body: []byte("x")}})

	deps, batcher := newTestDeps()
	p := New("file:///g.pcap", "", "file", nil, Options{TolerateErrors: true}, deps)
	require.NoError(t, p.Feed(context.Background(), data))
	assert.True(t, p.Abandoned())
	assert.Empty(t, batcher.Records())
}

func TestStreamParserBpfFilterDropsMatchingPackets(t *testing.T) {
	recs := []recordSpec{
		{tsSec: 1, body: []byte("keep-me")},
		{tsSec: 2, body: []byte("drop-this-one")},
	}
	data := buildCaptureFile(MagicMicroNative, recs)

	deps, batcher := newTestDeps()
	deps.Bpf = fake.BpfCompiler{}
	deps.BpfExpr = "contains:drop"
	p := New("file:///h.pcap", "", "file", nil, Options{}, deps)
	require.NoError(t, p.Feed(context.Background(), data))
	require.NoError(t, p.Finish())

	got := batcher.Records()
	require.Len(t, got, 1)
	assert.Equal(t, []byte("keep-me"), got[0].Body)
}

func TestStreamParserEndOfFileOnlyWhenSomethingBatched(t *testing.T) {
	data := buildCaptureFile(MagicMicroNative, nil)

	deps, batcher := newTestDeps()
	p := New("file:///i.pcap", "", "file", nil, Options{}, deps)
	require.NoError(t, p.Feed(context.Background(), data))
	require.NoError(t, p.Finish())
	assert.Empty(t, batcher.EndOfFiles())
}

func TestStreamParserGarlandUnwrapStripsTapHeader(t *testing.T) {
	wire := append(make([]byte, 18), []byte("ethernet-frame")...)
	recs := []recordSpec{{tsSec: 1, body: wire}}
	data := buildCaptureFile(MagicMicroNative, recs)

	deps, batcher := newTestDeps()
	p := New("garland:///tap0", "", "garland", nil, Options{GarlandUnwrap: true}, deps)
	require.NoError(t, p.Feed(context.Background(), data))
	require.NoError(t, p.Finish())

	require.Len(t, batcher.Records(), 1)
	assert.Equal(t, []byte("ethernet-frame"), batcher.Records()[0].Body)
}

func TestStreamParserGarlandUnwrapDropsCorruptFrame(t *testing.T) {
	recs := []recordSpec{{tsSec: 1, body: make([]byte, 5)}}
	data := buildCaptureFile(MagicMicroNative, recs)

	deps, batcher := newTestDeps()
	p := New("garland:///tap0", "", "garland", nil, Options{GarlandUnwrap: true}, deps)
	require.NoError(t, p.Feed(context.Background(), data))
	require.NoError(t, p.Finish())

	assert.Empty(t, batcher.Records())
}

func TestStreamParserSchemeEthertypeStripsMatchingFrame(t *testing.T) {
	frame := make([]byte, 14)
	frame[12], frame[13] = 0xFF, 0x12 // EtherType 0xFF12
	wire := append(append(make([]byte, 18), frame...), []byte("payload")...)
	wire[12], wire[13] = 0xFF, 0x12 // the captured packet's own EtherType selects the shim
	recs := []recordSpec{{tsSec: 1, body: wire}}
	data := buildCaptureFile(MagicMicroNative, recs)

	deps, batcher := newTestDeps()
	p := New("file:///k.pcap", "", "file", nil, Options{SchemeEthertype: 0xFF12}, deps)
	require.NoError(t, p.Feed(context.Background(), data))
	require.NoError(t, p.Finish())

	require.Len(t, batcher.Records(), 1)
	assert.Equal(t, append(frame, []byte("payload")...), batcher.Records()[0].Body)
}

func TestStreamParserSchemeEthertypeLeavesNonMatchingFrameAlone(t *testing.T) {
	frame := make([]byte, 14)
	frame[12], frame[13] = 0x08, 0x00 // EtherType 0x0800 (IPv4), does not match
	recs := []recordSpec{{tsSec: 1, body: frame}}
	data := buildCaptureFile(MagicMicroNative, recs)

	deps, batcher := newTestDeps()
	p := New("file:///l.pcap", "", "file", nil, Options{SchemeEthertype: 0xFF12}, deps)
	require.NoError(t, p.Feed(context.Background(), data))
	require.NoError(t, p.Finish())

	require.Len(t, batcher.Records(), 1)
	assert.Equal(t, frame, batcher.Records()[0].Body)
}

func TestStreamParserNanosecondTimestampResolution(t *testing.T) {
	recs := []recordSpec{{tsSec: 100, tsFrac: 123456789, body: []byte("ns")}}
	data := buildCaptureFile(MagicNanoNative, recs)

	deps, batcher := newTestDeps()
	p := New("file:///j.pcap", "", "file", nil, Options{}, deps)
	require.NoError(t, p.Feed(context.Background(), data))
	require.NoError(t, p.Finish())

	require.Len(t, batcher.Records(), 1)
	assert.Equal(t, int64(100), batcher.Records()[0].Timestamp.Unix())
	assert.Equal(t, 123456789, batcher.Records()[0].Timestamp.Nanosecond())
}
