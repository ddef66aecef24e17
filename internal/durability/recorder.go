// Package durability implements the per-run append logs and lost-record
// dumps of §4.5: fusion.Recorder backed by real files under a per-run
// directory, adapted from ingest/entryWriter.go's buffered-writer +
// explicit-sync discipline.
package durability

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/tfg-ids/fusion/internal/fusion"
	"github.com/tfg-ids/fusion/internal/log"
	"github.com/tfg-ids/fusion/internal/record"
)

// Recorder owns the flow/protocol/merge append logs and the lost-record
// dumps for one process run. The attack log is not part of it; the
// scoring consumer opens and appends to that file itself.
type Recorder struct {
	mtx sync.Mutex

	flowLog  *appendLog
	protoLog *appendLog
	mergeLog *appendLog

	lostDir string

	flushEach bool
	lg        *log.Logger
}

// Open creates the per-run directory layout under root (flow/, protocol/,
// merge/, lost/<ts>/) and the three append logs, truncating nothing that
// already belongs to a different run (§3 "Lifecycles": truncated only
// across process restarts, i.e. this Open call IS that restart boundary).
func Open(root string, runTimestamp string, flushEach bool, lg *log.Logger) (*Recorder, error) {
	dirs := []string{"flow", "protocol", "merge", filepath.Join("lost", runTimestamp)}
	for _, d := range dirs {
		if err := os.MkdirAll(filepath.Join(root, d), 0o755); err != nil {
			return nil, fmt.Errorf("creating %s: %w", d, err)
		}
	}

	flowLog, err := newAppendLog(filepath.Join(root, "flow", runTimestamp+".jsonl"), flushEach)
	if err != nil {
		return nil, err
	}
	protoLog, err := newAppendLog(filepath.Join(root, "protocol", runTimestamp+".jsonl"), flushEach)
	if err != nil {
		return nil, err
	}
	mergeLog, err := newAppendLog(filepath.Join(root, "merge", runTimestamp+".jsonl"), flushEach)
	if err != nil {
		return nil, err
	}

	return &Recorder{
		flowLog:   flowLog,
		protoLog:  protoLog,
		mergeLog:  mergeLog,
		lostDir:   filepath.Join(root, "lost", runTimestamp),
		flushEach: flushEach,
		lg:        lg,
	}, nil
}

func (r *Recorder) Close() error {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	var err error
	for _, l := range []*appendLog{r.flowLog, r.protoLog, r.mergeLog} {
		if e := l.Close(); e != nil {
			err = e
		}
	}
	return err
}

func (r *Recorder) AppendFlow(f record.Flow) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	if err := r.flowLog.WriteJSON(f); err != nil && r.lg != nil {
		r.lg.Error("failed to append flow record", log.KVErr(err))
	}
}

func (r *Recorder) AppendProtocol(p record.Protocol) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	if err := r.protoLog.WriteJSON(p); err != nil && r.lg != nil {
		r.lg.Error("failed to append protocol record", log.KVErr(err))
	}
}

// AppendMerge writes the fused record in the §6 canonical field order.
func (r *Recorder) AppendMerge(f record.Fused) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	if err := r.mergeLog.WriteJSON(canonicalOrderedMap(f)); err != nil && r.lg != nil {
		r.lg.Error("failed to append merge record", log.KVErr(err))
	}
}

// DumpLost rewrites the two lost logs in full from the current cache
// contents (§4.5: "rewritten in full on every cache mutation").
func (r *Recorder) DumpLost(flowEntries []fusion.KeyedEntry[record.Flow], protoEntries []fusion.KeyedEntry[record.Protocol]) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	if err := rewriteLostLog(filepath.Join(r.lostDir, "flow.log"), flowEntries); err != nil && r.lg != nil {
		r.lg.Error("failed to rewrite lost flow log", log.KVErr(err))
	}
	if err := rewriteLostLog(filepath.Join(r.lostDir, "protocol.log"), protoEntries); err != nil && r.lg != nil {
		r.lg.Error("failed to rewrite lost protocol log", log.KVErr(err))
	}
}

func rewriteLostLog[T any](path string, entries []fusion.KeyedEntry[T]) error {
	f, err := os.Create(path) // truncate-and-write, per §4.5
	if err != nil {
		return err
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for _, e := range entries {
		if err := enc.Encode(e.Value); err != nil {
			return err
		}
	}
	return w.Flush()
}

func canonicalOrderedMap(f record.Fused) *orderedFused {
	return &orderedFused{f: f}
}

// orderedFused implements json.Marshaler to guarantee the §6 canonical
// field order regardless of struct field order/JSON encoder behavior.
type orderedFused struct {
	f record.Fused
}

func (o *orderedFused) MarshalJSON() ([]byte, error) {
	f := o.f
	values := map[string]interface{}{
		"saddr": f.Saddr, "sport": f.Sport, "daddr": f.Daddr, "dport": f.Dport,
		"proto": f.Proto, "state": f.State, "dur": f.Dur, "sbytes": f.Sbytes,
		"dbytes": f.Dbytes, "sttl": f.Sttl, "dttl": f.Dttl, "sloss": f.Sloss,
		"dloss": f.Dloss, "service": f.Service, "sload": f.Sload, "dload": f.Dload,
		"spkts": f.Spkts, "dpkts": f.Dpkts, "stcpb": f.Stcpb, "dtcpb": f.Dtcpb,
		"smeansz": f.Smeansz, "dmeansz": f.Dmeansz, "trans_depth": f.TransDepth,
		"response_body_len": f.ResponseBodyLen, "sjit": f.Sjit, "djit": f.Djit,
		"stime": f.Stime, "ltime": f.Ltime, "sintpkt": f.Sintpkt, "dintpkt": f.Dintpkt,
		"tcprtt": f.Tcprtt, "synack": f.Synack, "ackdat": f.Ackdat,
		"is_sm_ips_ports": f.IsSmIpsPorts, "ct_flw_http_mthd": f.CtFlwHttpMthd,
		"is_ftp_login": f.IsFtpLogin, "ct_ftp_cmd": f.CtFtpCmd,
		"ct_srv_src": f.CtSrvSrc, "ct_srv_dst": f.CtSrvDst, "ct_dst_ltm": f.CtDstLtm,
		"ct_src_ltm": f.CtSrcLtm, "ct_src_dport_ltm": f.CtSrcDportLtm,
		"ct_dst_sport_ltm": f.CtDstSportLtm, "ct_dst_src_ltm": f.CtDstSrcLtm,
	}
	var b []byte
	b = append(b, '{')
	for i, name := range record.CanonicalFields {
		if i > 0 {
			b = append(b, ',')
		}
		key, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(values[name])
		if err != nil {
			return nil, err
		}
		b = append(b, key...)
		b = append(b, ':')
		b = append(b, val...)
	}
	b = append(b, '}')
	return b, nil
}
