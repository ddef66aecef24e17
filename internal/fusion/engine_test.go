package fusion

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tfg-ids/fusion/internal/record"
)

func baseFlow() record.Flow {
	return record.Flow{
		Stime: 1000, Ltime: 1000, Proto: "tcp",
		Saddr: "10.0.0.1", Sport: 1234, Daddr: "10.0.0.2", Dport: 80,
		State: "CON",
	}
}

func httpProto(method string, transDepth int, bodyLen int64) record.Protocol {
	return record.Protocol{
		Kind: record.KindHTTP, OrigH: "10.0.0.1", OrigP: 1234, RespH: "10.0.0.2", RespP: 80,
		Method: method, TransDepth: transDepth, ResponseBodyLen: bodyLen,
	}
}

func ftpProto(cmd, user, pass string) record.Protocol {
	return record.Protocol{
		Kind: record.KindFTP, OrigH: "10.0.0.1", OrigP: 1234, RespH: "10.0.0.2", RespP: 21,
		Command: cmd, User: user, Password: pass,
	}
}

// S2: three HTTP records with the same method precede the flow record;
// the emitted fused record must report the max trans_depth, summed
// response_body_len, and a count of 3 for ct_flw_http_mthd.
func TestEngine_HTTPAccumulationBeforeFlow(t *testing.T) {
	e := NewEngine(16, DefaultHistorySize, nil)

	_, emitted := e.HandleProtocol(httpProto("GET", 1, 100))
	require.False(t, emitted)
	_, emitted = e.HandleProtocol(httpProto("GET", 2, 250))
	require.False(t, emitted)
	_, emitted = e.HandleProtocol(httpProto("GET", 2, 50))
	require.False(t, emitted)

	f := baseFlow()
	f.Dport = 80
	fused, emitted := e.HandleFlow(f)
	require.True(t, emitted)

	assert.Equal(t, 2, fused.TransDepth)
	assert.Equal(t, int64(400), fused.ResponseBodyLen)
	assert.Equal(t, 3, fused.CtFlwHttpMthd)
	assert.Equal(t, "http", fused.Service)
}

// S3: two different FTP commands (USER, RETR) precede the flow record,
// and a login (non-empty user+password) appears on one of them; the
// emitted record must report is_ftp_login=1 and ct_ftp_cmd=2.
func TestEngine_FTPCommandCountBeforeFlow(t *testing.T) {
	e := NewEngine(16, DefaultHistorySize, nil)

	_, emitted := e.HandleProtocol(ftpProto("USER", "anonymous", "guest@"))
	require.False(t, emitted)
	_, emitted = e.HandleProtocol(ftpProto("RETR", "", ""))
	require.False(t, emitted)

	f := baseFlow()
	f.Dport = 21
	fused, emitted := e.HandleFlow(f)
	require.True(t, emitted)

	assert.Equal(t, 1, fused.IsFtpLogin)
	assert.Equal(t, 2, fused.CtFtpCmd)
	assert.Equal(t, "ftp", fused.Service)
}

// S4: an unsupported protocol (e.g. arp) flow record must be emitted
// immediately with service "-" and no correlation attempted.
func TestEngine_UnsupportedProtoEmitsImmediately(t *testing.T) {
	e := NewEngine(16, DefaultHistorySize, nil)

	f := baseFlow()
	f.Proto = "arp"
	fused, emitted := e.HandleFlow(f)

	require.True(t, emitted)
	assert.Equal(t, "-", fused.Service)
	assert.Equal(t, 0, fused.CtFlwHttpMthd)
}

// S5: a conn protocol record for an ICMP flow must correlate by the
// 3-tuple (proto, saddr, daddr) since ICMP has no ports, using the
// record's own reported proto rather than an assumed "tcp".
func TestEngine_ICMPCorrelatesByProtoReportedOnRecord(t *testing.T) {
	e := NewEngine(16, DefaultHistorySize, nil)

	f := baseFlow()
	f.Proto = "icmp"
	f.Sport = 0
	f.Dport = 0
	_, emitted := e.HandleFlow(f)
	require.False(t, emitted)

	p := record.Protocol{Kind: record.KindConn, Proto: "icmp", OrigH: "10.0.0.1", RespH: "10.0.0.2", Service: "icmp"}
	fused, emitted := e.HandleProtocol(p)
	require.True(t, emitted)
	assert.Equal(t, "icmp", fused.Service)
}

// Counter purity: the ct_*_ltm counters for a record being emitted must
// reflect history as it stood before that record was appended, never
// counting the record against itself. Both flows use an unsupported
// proto so that each HandleFlow call emits immediately.
func TestEngine_CounterPurityExcludesCurrentRecord(t *testing.T) {
	e := NewEngine(16, DefaultHistorySize, nil)

	f1 := baseFlow()
	f1.Proto = "arp"
	f1.Ltime = 5000
	fused1, emitted := e.HandleFlow(f1)
	require.True(t, emitted)
	assert.Equal(t, 0, fused1.CtSrcLtm)

	f2 := baseFlow()
	f2.Proto = "arp"
	f2.Ltime = 5000
	f2.Dport = 443
	fused2, emitted := e.HandleFlow(f2)
	require.True(t, emitted)
	assert.Equal(t, 1, fused2.CtSrcLtm, "should count only the prior record, not itself")
}

// History boundedness: the fusion history never holds more than its
// configured capacity.
func TestHistory_BoundedAtCapacity(t *testing.T) {
	h := NewHistory(3)
	for i := 0; i < 10; i++ {
		h.Append(record.Fused{Saddr: "a"})
	}
	assert.Equal(t, 3, h.Len())
}

// Conn flow/protocol correlation in either arrival order must produce
// the same fused service field.
func TestEngine_ConnCorrelatesRegardlessOfArrivalOrder(t *testing.T) {
	e1 := NewEngine(16, DefaultHistorySize, nil)
	f := baseFlow()
	p := record.Protocol{Kind: record.KindConn, Proto: "tcp", OrigH: f.Saddr, OrigP: f.Sport, RespH: f.Daddr, RespP: f.Dport, Service: "http-alt"}

	_, emitted := e1.HandleFlow(f)
	require.False(t, emitted)
	fused, emitted := e1.HandleProtocol(p)
	require.True(t, emitted)
	assert.Equal(t, "http-alt", fused.Service)

	e2 := NewEngine(16, DefaultHistorySize, nil)
	_, emitted = e2.HandleProtocol(p)
	require.False(t, emitted)
	fused2, emitted := e2.HandleFlow(f)
	require.True(t, emitted)
	assert.Equal(t, "http-alt", fused2.Service)
}

// Cache overflow evicts the oldest entry first.
func TestKeyedDeque_EvictsOldestOnOverflow(t *testing.T) {
	d := NewKeyedDeque[string](2)
	k1 := record.Key{Proto: "tcp", Saddr: "a", Sport: 1, Daddr: "b", Dport: 1}
	k2 := record.Key{Proto: "tcp", Saddr: "a", Sport: 2, Daddr: "b", Dport: 2}
	k3 := record.Key{Proto: "tcp", Saddr: "a", Sport: 3, Daddr: "b", Dport: 3}

	d.Append(k1, "one")
	d.Append(k2, "two")
	evicted, didEvict := d.Append(k3, "three")

	assert.True(t, didEvict)
	assert.Equal(t, "one", evicted.Value)
	assert.Equal(t, 2, d.Len())

	_, ok := d.Take(k1)
	assert.False(t, ok)
}
