// Package fusion implements the streaming fusion engine of §4.2/§4.3: a
// single-owner value with no package-level mutable state (the
// redesign point named in spec.md §9), holding the flow/protocol
// caches, the HTTP accumulator, the method counters, and the bounded
// fusion history.
package fusion

import (
	"strings"

	"github.com/tfg-ids/fusion/internal/record"
)

const DefaultHistorySize = 100

// Recorder is the durability hook the engine calls on every raw record
// and every emitted fused record, and on every cache mutation (§4.5).
// internal/durability implements this; the engine itself does no file
// I/O, keeping it unit-testable in isolation.
type Recorder interface {
	AppendFlow(record.Flow)
	AppendProtocol(record.Protocol)
	AppendMerge(record.Fused)
	DumpLost(flow []KeyedEntry[record.Flow], proto []KeyedEntry[record.Protocol])
}

type nopRecorder struct{}

func (nopRecorder) AppendFlow(record.Flow)                                           {}
func (nopRecorder) AppendProtocol(record.Protocol)                                   {}
func (nopRecorder) AppendMerge(record.Fused)                                         {}
func (nopRecorder) DumpLost([]KeyedEntry[record.Flow], []KeyedEntry[record.Protocol]) {}

type httpAccumEntry struct {
	sumResponseBodyLen int64
	maxTransDepth       int
	last                record.Protocol
}

type methodKey struct {
	Saddr string
	Sport int
	Daddr string
	Dport int
	Name  string
}

// Engine owns every cache, accumulator, counter map, and the fusion
// history; it is the single non-global value SPEC_FULL.md §9 calls for.
type Engine struct {
	Capacity int // Q, flow/protocol cache capacity

	flowCache  *KeyedDeque[record.Flow]
	protoCache *KeyedDeque[record.Protocol]

	httpAccum         map[record.Key]*httpAccumEntry
	httpMethodCounter map[methodKey]int
	ftpCmdCounter     map[methodKey]int

	history *History

	rec Recorder
}

func NewEngine(capacity, historySize int, rec Recorder) *Engine {
	if rec == nil {
		rec = nopRecorder{}
	}
	return &Engine{
		Capacity:          capacity,
		flowCache:         NewKeyedDeque[record.Flow](capacity),
		protoCache:        NewKeyedDeque[record.Protocol](capacity),
		httpAccum:         make(map[record.Key]*httpAccumEntry),
		httpMethodCounter: make(map[methodKey]int),
		ftpCmdCounter:     make(map[methodKey]int),
		history:           NewHistory(historySize),
		rec:               rec,
	}
}

// CompactCounters clears the HTTP-method and FTP-command counter maps.
// Nothing calls this automatically (§9 open question: left unbounded by
// default); cmd/fusionengine calls it on a ticker when the
// FusionEngine Counter-Compact-Interval setting is a positive duration.
func (e *Engine) CompactCounters() {
	e.httpMethodCounter = make(map[methodKey]int)
	e.ftpCmdCounter = make(map[methodKey]int)
}

func (e *Engine) dumpLost() {
	e.rec.DumpLost(e.flowCache.Snapshot(), e.protoCache.Snapshot())
}

// emit finalizes a fused record: derives the seven ct_*_ltm counters
// over history as it stands before this record (§4.3 "counter purity"),
// records it to the merge log, and appends it to history.
func (e *Engine) emit(f record.Fused) record.Fused {
	ctSrvSrc, ctSrvDst, ctDstLtm, ctSrcLtm, ctSrcDportLtm, ctDstSportLtm, ctDstSrcLtm :=
		e.history.Counters(f.Saddr, f.Sport, f.Daddr, f.Dport, f.Service, f.Ltime)
	f.CtSrvSrc = ctSrvSrc
	f.CtSrvDst = ctSrvDst
	f.CtDstLtm = ctDstLtm
	f.CtSrcLtm = ctSrcLtm
	f.CtSrcDportLtm = ctSrcDportLtm
	f.CtDstSportLtm = ctDstSportLtm
	f.CtDstSrcLtm = ctDstSrcLtm

	e.rec.AppendMerge(f)
	e.history.Append(f)
	return f
}

// HandleFlow processes one flow record per §4.2 "Flow record handling".
// It returns the emitted fused record, if one was produced this call.
func (e *Engine) HandleFlow(f record.Flow) (record.Fused, bool) {
	e.rec.AppendFlow(f)

	if !f.Supported() {
		fused := record.FromFlow(f)
		fused.Service = "-"
		return e.emit(fused), true
	}

	key := f.Key()

	if acc, ok := e.httpAccum[key]; ok {
		delete(e.httpAccum, key)
		p := acc.last
		p.TransDepth = acc.maxTransDepth
		p.ResponseBodyLen = acc.sumResponseBodyLen
		return e.emit(e.merge(f, p)), true
	}

	if p, ok := e.protoCache.Take(key); ok {
		e.dumpLost()
		return e.emit(e.merge(f, p)), true
	}

	e.flowCache.Append(key, f)
	e.dumpLost()
	return record.Fused{}, false
}

// HandleProtocol processes one protocol record per §4.2 "Protocol
// record handling". It returns the emitted fused record, if one was
// produced this call.
func (e *Engine) HandleProtocol(p record.Protocol) (record.Fused, bool) {
	e.rec.AppendProtocol(p)

	key := p.Key()

	switch p.Kind {
	case record.KindHTTP:
		// The HTTP method counter increments "on each HTTP protocol
		// record seen" (§3), not just once at merge time, so that a
		// key accumulating several transactions before its flow record
		// arrives reports the full transaction count (S2).
		mk := methodKey{p.OrigH, p.OrigP, p.RespH, p.RespP, strings.ToUpper(p.Method)}
		e.httpMethodCounter[mk]++

		acc, ok := e.httpAccum[key]
		if !ok {
			acc = &httpAccumEntry{}
			e.httpAccum[key] = acc
		}
		acc.sumResponseBodyLen += p.ResponseBodyLen
		if p.TransDepth > acc.maxTransDepth {
			acc.maxTransDepth = p.TransDepth
		}
		acc.last = p
		e.protoCache.Append(key, p)
		e.dumpLost()
		return record.Fused{}, false

	case record.KindFTP:
		// The FTP command counter increments "on each FTP protocol
		// record seen" (§3), independent of whether this record ends
		// up merged immediately or cached for a later flow arrival.
		if cmd := strings.TrimSpace(p.Command); cmd != "" {
			mk := methodKey{p.OrigH, p.OrigP, p.RespH, p.RespP, strings.ToUpper(cmd)}
			e.ftpCmdCounter[mk]++
		}
		if f, ok := e.flowCache.Peek(key); ok {
			return e.emit(e.merge(f, p)), true
		}
		e.protoCache.Append(key, p)
		e.dumpLost()
		return record.Fused{}, false

	default: // conn
		if f, ok := e.flowCache.Take(key); ok {
			e.dumpLost()
			return e.emit(e.merge(f, p)), true
		}
		e.protoCache.Append(key, p)
		e.dumpLost()
		return record.Fused{}, false
	}
}

// merge implements §4.2 step 6: build the fused record from a flow and
// its matched protocol record.
func (e *Engine) merge(f record.Flow, p record.Protocol) record.Fused {
	fused := record.FromFlow(f)

	switch p.Kind {
	case record.KindHTTP:
		mk := methodKey{f.Saddr, f.Sport, f.Daddr, f.Dport, strings.ToUpper(p.Method)}
		fused.Service = "http"
		fused.TransDepth = p.TransDepth
		fused.ResponseBodyLen = p.ResponseBodyLen
		fused.CtFlwHttpMthd = e.httpMethodCounter[mk]

	case record.KindFTP:
		fused.Service = "ftp"
		user := strings.TrimSpace(p.User)
		pass := strings.TrimSpace(p.Password)
		if user != "" && pass != "" {
			fused.IsFtpLogin = 1
		}
		// ct_ftp_cmd is the running total of FTP commands seen for
		// this flow key across all commands, not just the one carried
		// by the protocol record that triggered this merge (§3, S3).
		total := 0
		for k, v := range e.ftpCmdCounter {
			if k.Saddr == f.Saddr && k.Sport == f.Sport && k.Daddr == f.Daddr && k.Dport == f.Dport {
				total += v
			}
		}
		fused.CtFtpCmd = total

	default: // conn
		if p.Service != "" {
			fused.Service = p.Service
		} else {
			fused.Service = "-"
		}
	}

	return fused
}
