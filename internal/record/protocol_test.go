package record

import "testing"

func TestParseKind(t *testing.T) {
	cases := []struct {
		in      string
		want    Kind
		wantOk  bool
	}{
		{"conn", KindConn, true},
		{" HTTP ", KindHTTP, true},
		{"ftp", KindFTP, true},
		{"dns", 0, false},
		{"", 0, false},
	}
	for _, c := range cases {
		got, ok := ParseKind(c.in)
		if ok != c.wantOk || (ok && got != c.want) {
			t.Errorf("ParseKind(%q) = (%v, %v), want (%v, %v)", c.in, got, ok, c.want, c.wantOk)
		}
	}
}

func TestKind_String(t *testing.T) {
	cases := map[Kind]string{
		KindConn: "conn",
		KindHTTP: "http",
		KindFTP:  "ftp",
		Kind(99): "unknown",
	}
	for k, want := range cases {
		if got := k.String(); got != want {
			t.Errorf("Kind(%d).String() = %q, want %q", k, got, want)
		}
	}
}

func TestProtocolFromFields_Conn(t *testing.T) {
	p := ProtocolFromFields(KindConn, map[string]interface{}{
		"id.orig_h": "10.0.0.1",
		"id.orig_p": float64(1234),
		"id.resp_h": "10.0.0.2",
		"id.resp_p": "443",
		"proto":     " TCP ",
		"service":   "https",
	})
	if p.OrigH != "10.0.0.1" || p.OrigP != 1234 {
		t.Fatalf("orig = %s:%d, want 10.0.0.1:1234", p.OrigH, p.OrigP)
	}
	if p.RespH != "10.0.0.2" || p.RespP != 443 {
		t.Fatalf("resp = %s:%d, want 10.0.0.2:443", p.RespH, p.RespP)
	}
	if p.Proto != "tcp" {
		t.Fatalf("proto = %q, want lower-trimmed tcp", p.Proto)
	}
	if p.Service != "https" {
		t.Fatalf("service = %q, want https", p.Service)
	}
}

func TestProtocolFromFields_HTTP(t *testing.T) {
	p := ProtocolFromFields(KindHTTP, map[string]interface{}{
		"id.orig_h":         "10.0.0.1",
		"id.orig_p":         float64(5555),
		"id.resp_h":         "10.0.0.2",
		"id.resp_p":         float64(80),
		"trans_depth":       float64(1),
		"response_body_len": float64(2048),
		"method":            "GET",
	})
	if p.TransDepth != 1 {
		t.Fatalf("trans_depth = %d, want 1", p.TransDepth)
	}
	if p.ResponseBodyLen != 2048 {
		t.Fatalf("response_body_len = %d, want 2048", p.ResponseBodyLen)
	}
	if p.Method != "GET" {
		t.Fatalf("method = %q, want GET", p.Method)
	}
}

func TestProtocolFromFields_FTP(t *testing.T) {
	p := ProtocolFromFields(KindFTP, map[string]interface{}{
		"id.orig_h": "10.0.0.1",
		"id.resp_h": "10.0.0.2",
		"user":      "anonymous",
		"password":  "guest",
		"command":   "RETR",
	})
	if p.User != "anonymous" || p.Password != "guest" || p.Command != "RETR" {
		t.Fatalf("ftp fields = %+v", p)
	}
}

func TestProtocol_Key_HTTPAndFTPForceTCPRegardlessOfProtoField(t *testing.T) {
	p := Protocol{Kind: KindHTTP, OrigH: "10.0.0.1", OrigP: 1234, RespH: "10.0.0.2", RespP: 80, Proto: "udp"}
	k := p.Key()
	if k.Proto != "tcp" {
		t.Fatalf("http key proto = %q, want forced tcp", k.Proto)
	}
}

func TestProtocol_Key_ConnUsesReportedProto(t *testing.T) {
	p := Protocol{Kind: KindConn, OrigH: "10.0.0.1", OrigP: 1234, RespH: "10.0.0.2", RespP: 53, Proto: "udp"}
	k := p.Key()
	if k.Proto != "udp" {
		t.Fatalf("conn key proto = %q, want udp", k.Proto)
	}
}

func TestProtocol_Key_MatchesFlowKeyForSameTuple(t *testing.T) {
	f := Flow{Proto: "tcp", Saddr: "10.0.0.1", Sport: 1234, Daddr: "10.0.0.2", Dport: 443}
	p := Protocol{Kind: KindConn, Proto: "tcp", OrigH: "10.0.0.1", OrigP: 1234, RespH: "10.0.0.2", RespP: 443}
	if f.Key() != p.Key() {
		t.Fatalf("flow key %+v should correlate with protocol key %+v", f.Key(), p.Key())
	}
}

func TestToNumber(t *testing.T) {
	cases := []struct {
		in   interface{}
		want float64
	}{
		{float64(1.5), 1.5},
		{int(3), 3},
		{int64(4), 4},
		{"5.5", 5.5},
		{nil, 0},
		{true, 0},
	}
	for _, c := range cases {
		if got := toNumber(c.in); got != c.want {
			t.Errorf("toNumber(%v) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestStr(t *testing.T) {
	if got := str("hello"); got != "hello" {
		t.Fatalf("str(string) = %q", got)
	}
	if got := str(nil); got != "" {
		t.Fatalf("str(nil) = %q, want empty", got)
	}
	if got := str(float64(1)); got != "" {
		t.Fatalf("str(non-string) = %q, want empty", got)
	}
}
