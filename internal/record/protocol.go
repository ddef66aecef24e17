package record

import "strings"

// Kind tags a Protocol record with its Zeek-style log source (§3). It is
// the tagged-variant dispatch point called for in SPEC_FULL.md §9.
type Kind int

const (
	KindConn Kind = iota
	KindHTTP
	KindFTP
)

func (k Kind) String() string {
	switch k {
	case KindConn:
		return "conn"
	case KindHTTP:
		return "http"
	case KindFTP:
		return "ftp"
	default:
		return "unknown"
	}
}

func ParseKind(s string) (Kind, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "conn":
		return KindConn, true
	case "http":
		return KindHTTP, true
	case "ftp":
		return KindFTP, true
	default:
		return 0, false
	}
}

// Protocol is a single protocol-analyzer observation: a conn summary, an
// HTTP transaction, or an FTP command (§3).
type Protocol struct {
	Kind Kind

	OrigH string
	OrigP int
	RespH string
	RespP int

	// conn
	Proto   string
	Service string

	// http
	TransDepth      int
	ResponseBodyLen int64
	Method          string

	// ftp
	User     string
	Password string
	Command  string
}

// ProtocolFromFields builds a Protocol from a decoded JSON object plus
// the stamped log_kind (§4.1 "Protocol adapter").
func ProtocolFromFields(kind Kind, m map[string]interface{}) Protocol {
	p := Protocol{
		Kind:  kind,
		OrigH: str(m["id.orig_h"]),
		OrigP: NormalizePort(m["id.orig_p"]),
		RespH: str(m["id.resp_h"]),
		RespP: NormalizePort(m["id.resp_p"]),
	}
	switch kind {
	case KindConn:
		p.Proto = strings.ToLower(strings.TrimSpace(str(m["proto"])))
		p.Service = str(m["service"])
	case KindHTTP:
		p.TransDepth = int(toNumber(m["trans_depth"]))
		p.ResponseBodyLen = int64(toNumber(m["response_body_len"]))
		p.Method = str(m["method"])
	case KindFTP:
		p.User = str(m["user"])
		p.Password = str(m["password"])
		p.Command = str(m["command"])
	}
	return p
}

// Key returns the composite correlation key for this protocol record.
// Proto is forced to tcp for http/ftp regardless of any reported proto
// field, per §3.
func (p Protocol) Key() Key {
	proto := "tcp"
	if p.Kind == KindConn {
		proto = p.Proto
	}
	return keyFor(proto, p.OrigH, p.OrigP, p.RespH, p.RespP)
}

func str(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	default:
		return ""
	}
}

func toNumber(v interface{}) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case int:
		return float64(x)
	case int64:
		return float64(x)
	case string:
		return toFloat(x)
	default:
		return 0
	}
}
