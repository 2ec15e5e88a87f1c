package pcapformat

import (
	"context"
	"log/slog"
	"time"

	"github.com/flowcap/ingest"
	"github.com/flowcap/ingest/backpressure"
	"github.com/flowcap/ingest/downstream"
	"github.com/flowcap/ingest/filterstage"
	"github.com/flowcap/ingest/garland"
	"github.com/flowcap/ingest/internal/ingestlog"
	"github.com/flowcap/ingest/packet"
	"github.com/flowcap/ingest/rules"
	"github.com/flowcap/ingest/slot"
)

// MaxCapturedLen is the accumulator ceiling and the boundary past which a
// packet body is skipped rather than emitted (§3, §4.F).
const MaxCapturedLen = 0xFFFF

type stateKind int

const (
	// AwaitingFileHeader needs the first HeaderLen bytes of a new file.
	awaitingFileHeader stateKind = iota
	// AwaitingRecordHeader needs the next RecordHeaderLen bytes.
	awaitingRecordHeader
	// AwaitingPacketBody needs packetLen more bytes to complete a body.
	awaitingPacketBody
	// SkippingOversizedBody is discarding a body too large to emit.
	skippingOversizedBody
)

// Options carries the policy flags that change StreamParser behaviour.
type Options struct {
	TolerateErrors  bool   // §7 UnknownFormat: abandon file, keep ingesting, instead of failing fatally
	AllowTruncated  bool   // §3 captured_len != original_len: tolerate instead of fail
	GarlandUnwrap   bool   // unconditionally strip the Garland tap header before every body is emitted; set by scheme/garland, which treats an entire file as tap-wrapped
	SchemeEthertype uint16 // §6 scheme_ethertype: a frame whose EtherType field matches this strips the same 18-byte header, gated per-packet rather than per-file (garland.MatchesEthertype); 0 disables the check
}

// Deps bundles the collaborators a Parser needs, all external to this
// package per §1.
type Deps struct {
	Slots   *slot.Table
	Rules   *rules.Engine // optional
	Batcher downstream.Batcher
	Bpf     downstream.BpfCompiler // optional; nil means no filter ever compiles
	BpfExpr string
	Gate    *backpressure.Gate // optional; consulted before each batch (§4.F, §4.G)
	Log     *slog.Logger
}

// Parser is a resumable StreamParser instance for exactly one file. Create
// one per ingest call and feed it chunks of arbitrary size in order; it
// buffers a partial header or body in its accumulator between calls
// (§4.F).
type Parser struct {
	deps Deps
	opts Options

	uri        string
	extraInfo  string
	schemeName string
	actions    *ingest.ActionSet

	state      stateKind
	accum      []byte // reused buffer, never reallocated per chunk
	byteOffset uint64

	needsByteSwap bool
	nanosecondTS  bool
	packetLen     uint32
	pendingTsSec  uint32
	pendingTsFrac uint32
	pendingOrig   uint32
	remaining     uint32 // SkippingOversizedBody countdown

	slotID       uint8
	filter       *filterstage.Stage
	totalPackets uint64
	abandoned    bool

	// bytesBeforeFirstHeader tracks the §9 "HACK": bytes consumed while
	// still AwaitingFileHeader accrue to LastBytes of the slot that is
	// about to become active, attributed once BeginFile runs.
	bytesBeforeFirstHeader uint64
}

// New creates a Parser for one file. actions may be nil.
func New(uri, extraInfo, schemeName string, actions *ingest.ActionSet, opts Options, deps Deps) *Parser {
	if deps.Log == nil {
		deps.Log = slog.Default()
	}
	return &Parser{
		deps:       deps,
		opts:       opts,
		uri:        uri,
		extraInfo:  extraInfo,
		schemeName: schemeName,
		actions:    actions,
		state:      awaitingFileHeader,
		accum:      make([]byte, 0, MaxCapturedLen),
	}
}

// TotalPackets returns the number of packets emitted so far on this file.
func (p *Parser) TotalPackets() uint64 { return p.totalPackets }

// ByteOffset returns the cumulative number of bytes consumed from the
// start of the file.
func (p *Parser) ByteOffset() uint64 { return p.byteOffset }

// Feed consumes chunk, driving state transitions until it is exhausted or
// the parser needs more bytes than chunk has left. The accumulator is
// allocated once and reused (§4.F); the only other allocation is a copy of
// each body that straddled a chunk boundary. The batch
// of packets this call submits is flushed at the end of the call (§4.F
// "at end of each call ... flush the batch"), so the gate is polled once
// up front, before that batch is admitted — matching §4.G's "invoked
// before each batch" rather than once per file (which only paces once for
// an entire multi-chunk loader call).
func (p *Parser) Feed(ctx context.Context, chunk []byte) error {
	if p.deps.Gate != nil {
		if err := p.deps.Gate.Wait(ctx); err != nil {
			return err
		}
	}
	batched := false
	for len(chunk) > 0 {
		var err error
		var advanced bool
		chunk, advanced, err = p.step(chunk, &batched)
		if err != nil {
			return err
		}
		if !advanced {
			break
		}
	}
	if batched {
		p.markDidBatch()
	}
	return nil
}

// step executes exactly one state transition (or partial progress within
// one), returning the remainder of chunk and whether it made forward
// progress (false means it consumed everything it could and is waiting
// for more bytes on a future call).
func (p *Parser) step(chunk []byte, batched *bool) ([]byte, bool, error) {
	switch p.state {
	case awaitingFileHeader:
		return p.stepFileHeader(chunk)
	case awaitingRecordHeader:
		return p.stepRecordHeader(chunk)
	case awaitingPacketBody:
		return p.stepPacketBody(chunk, batched)
	case skippingOversizedBody:
		return p.stepSkipBody(chunk)
	default:
		return chunk, false, nil
	}
}

func (p *Parser) stepFileHeader(chunk []byte) ([]byte, bool, error) {
	need := HeaderLen - len(p.accum)
	take := need
	if take > len(chunk) {
		take = len(chunk)
	}
	// §9 HACK: bytes read while still waiting for the very first header
	// accrue as LastBytes of the slot that is about to become active,
	// not any slot that exists yet.
	p.bytesBeforeFirstHeader += uint64(take)
	p.accum = append(p.accum, chunk[:take]...)
	chunk = chunk[take:]
	if len(p.accum) < HeaderLen {
		return chunk, false, nil
	}

	hdr, err := ParseFileHeader(p.accum[:HeaderLen])
	p.accum = p.accum[:0]
	if err != nil {
		if p.opts.TolerateErrors {
			p.deps.Log.Warn("abandoning file: unknown capture format", "uri", p.uri, "err", err)
			p.abandoned = true
			return nil, false, nil // abandon this file; caller must stop feeding it further chunks
		}
		return chunk, false, wrapFatal(ingest.UnknownFormat, p.uri, err)
	}

	p.needsByteSwap = hdr.NeedsByteSwap
	p.nanosecondTS = hdr.NanosecondTS
	p.byteOffset = HeaderLen

	p.slotID = p.deps.Slots.BeginFile(p.uri, p.extraInfo, p.schemeName, p.actions)
	p.deps.Slots.Mutate(p.slotID, func(s *slot.FileSlot) {
		s.LastBytes += p.bytesBeforeFirstHeader
	})

	if p.deps.Rules != nil {
		if buf := p.deps.Slots.FieldOps(p.slotID); buf != nil {
			p.deps.Rules.Apply(p.uri, buf)
		}
	}

	if p.deps.BpfExpr != "" && p.deps.Bpf != nil {
		pred, err := p.deps.Bpf.Compile(p.deps.BpfExpr, hdr.DLT)
		if err != nil {
			return chunk, false, wrapFatal(ingest.BpfCompileFailure, p.uri, err)
		}
		p.filter = filterstage.New(pred)
	} else {
		p.filter = nil
	}

	p.deps.Log.Log(context.Background(), ingestlog.LevelLifecycle, "file header accepted", "uri", p.uri, "slot", p.slotID, "dlt", hdr.DLT, "snaplen", hdr.SnapLen)

	p.state = awaitingRecordHeader
	return chunk, true, nil
}

func (p *Parser) stepRecordHeader(chunk []byte) ([]byte, bool, error) {
	need := RecordHeaderLen - len(p.accum)
	take := need
	if take > len(chunk) {
		take = len(chunk)
	}
	p.accum = append(p.accum, chunk[:take]...)
	chunk = chunk[take:]
	if len(p.accum) < RecordHeaderLen {
		return chunk, false, nil
	}

	rh := ParseRecordHeader(p.accum[:RecordHeaderLen], p.needsByteSwap)
	p.accum = p.accum[:0]

	p.pendingTsSec = rh.TsSec
	p.pendingTsFrac = rh.TsFrac
	p.pendingOrig = rh.OrigLen

	// byte_offset advances to the next record header regardless of
	// whether this one is emitted or skipped (§4.F).
	nextOffset := p.byteOffset + RecordHeaderLen + uint64(rh.CapLen)

	if rh.CapLen > MaxCapturedLen {
		p.remaining = rh.CapLen
		p.byteOffset = nextOffset
		p.state = skippingOversizedBody
		p.deps.Log.Debug("oversize packet skipped", "uri", p.uri, "caplen", rh.CapLen)
		return chunk, true, nil
	}

	if rh.CapLen != rh.OrigLen && !p.opts.AllowTruncated {
		return chunk, false, wrapFatal(ingest.TruncatedRecord, p.uri, errTruncated(rh.CapLen, rh.OrigLen))
	}

	p.packetLen = rh.CapLen
	p.byteOffset = nextOffset
	p.state = awaitingPacketBody
	return chunk, true, nil
}

func (p *Parser) stepPacketBody(chunk []byte, batched *bool) ([]byte, bool, error) {
	want := int(p.packetLen)
	haveAccum := len(p.accum) > 0

	if !haveAccum && len(chunk) >= want {
		// Zero-copy path: the body is fully contained in this chunk.
		body := chunk[:want]
		chunk = chunk[want:]
		p.emit(body, batched)
		p.state = awaitingRecordHeader
		return chunk, true, nil
	}

	need := want - len(p.accum)
	take := need
	if take > len(chunk) {
		take = len(chunk)
	}
	p.accum = append(p.accum, chunk[:take]...)
	chunk = chunk[take:]
	if len(p.accum) < want {
		return chunk, false, nil
	}
	body := append([]byte(nil), p.accum[:want]...) // copy: accumulator is reused next call
	p.accum = p.accum[:0]
	p.emit(body, batched)
	p.state = awaitingRecordHeader
	return chunk, true, nil
}

func (p *Parser) emit(body []byte, batched *bool) {
	p.totalPackets++
	ts := recordTimestamp(p.pendingTsSec, p.pendingTsFrac, p.nanosecondTS)

	p.deps.Slots.Mutate(p.slotID, func(s *slot.FileSlot) {
		s.LastPackets++
		s.LastPacketTS = ts
	})

	if p.opts.GarlandUnwrap || garland.MatchesEthertype(body, p.opts.SchemeEthertype) {
		unwrapped, err := garland.Unwrap(body)
		if err != nil {
			p.deps.Log.Debug("garland frame dropped", "uri", p.uri, "err", err)
			return
		}
		body = unwrapped
	}

	if p.filter != nil && p.filter.Apply(body) {
		return
	}

	rec := packet.Record{
		Timestamp:   ts,
		ByteOffset:  p.byteOffset - uint64(p.packetLen) - RecordHeaderLen,
		SlotID:      p.slotID,
		CapturedLen: p.packetLen,
		OriginalLen: p.pendingOrig,
		Body:        body,
	}
	if err := p.deps.Batcher.Submit(rec); err != nil {
		p.deps.Log.Error("batcher rejected packet", "uri", p.uri, "err", err)
		return
	}
	*batched = true
}

func (p *Parser) stepSkipBody(chunk []byte) ([]byte, bool, error) {
	n := uint32(len(chunk))
	if n > p.remaining {
		n = p.remaining
	}
	chunk = chunk[n:]
	p.remaining -= n
	if p.remaining == 0 {
		p.state = awaitingRecordHeader
	}
	return chunk, true, nil
}

func (p *Parser) markDidBatch() {
	p.deps.Slots.Mutate(p.slotID, func(s *slot.FileSlot) { s.DidBatch = true })
}

// Finish is called once the underlying source is exhausted. If any packets
// were submitted on this file it emits the end-of-file marker so the
// batcher can finalise its per-file buffers (§4.F edge case).
func (p *Parser) Finish() error {
	if p.state == awaitingFileHeader {
		// No header was accepted, so this file never took a slot of its own.
		return nil
	}
	fs, ok := p.deps.Slots.Get(p.slotID)
	if ok && fs.DidBatch {
		return p.deps.Batcher.EndOfFile(p.slotID)
	}
	return nil
}

// Abandoned reports whether this file was abandoned after an unrecognised
// header under a tolerate-errors policy (§7). Callers must stop feeding
// further chunks once this is true.
func (p *Parser) Abandoned() bool { return p.abandoned }

func recordTimestamp(sec, frac uint32, nanosecond bool) time.Time {
	if nanosecond {
		return time.Unix(int64(sec), int64(frac)).UTC()
	}
	return time.Unix(int64(sec), int64(frac)*1000).UTC()
}

// wrapFatal builds an *ingest.Error marked fatal — every caller in this
// file only reaches it on the branch where the relevant tolerate/allow
// policy flag was already checked false.
func wrapFatal(kind ingest.ErrorKind, uri string, cause error) error {
	return ingest.NewError(kind, uri, true, cause)
}

type truncatedErr struct{ capLen, origLen uint32 }

func (e truncatedErr) Error() string {
	return "captured_len != original_len"
}

func errTruncated(capLen, origLen uint32) error {
	return truncatedErr{capLen: capLen, origLen: origLen}
}
