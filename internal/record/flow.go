// Package record defines the flow, protocol, and fused record types and
// the composite-key correlation rules of §3.
package record

import (
	"strconv"
	"strings"
)

// Flow is a single Argus-style flow observation as received from the
// flow adapter. Field names mirror the tabular exporter's columns.
type Flow struct {
	Stime   int64
	Ltime   int64
	Proto   string
	Saddr   string
	Sport   int
	Daddr   string
	Dport   int
	State   string
	Dur     float64
	Sbytes  int64
	Dbytes  int64
	Sttl    int
	Dttl    int
	Sloss   int
	Dloss   int
	Sload   float64
	Dload   float64
	Spkts   int64
	Dpkts   int64
	Stcpb   int64
	Dtcpb   int64
	Smeansz int
	Dmeansz int
	Sjit    float64
	Djit    float64
	Sintpkt float64
	Dintpkt float64
	Tcprtt  float64
	Synack  float64
	Ackdat  float64
}

// FlowFromFields builds a Flow from a field_name -> string value mapping, as
// produced by the flow adapter's tabular decode. Unparseable numeric
// fields silently fall back to zero (§4.2 "Numeric semantics").
func FlowFromFields(m map[string]string) Flow {
	return Flow{
		Stime:   toEpochSeconds(m["stime"]),
		Ltime:   toEpochSeconds(m["ltime"]),
		Proto:   strings.ToLower(strings.TrimSpace(m["proto"])),
		Saddr:   m["saddr"],
		Sport:   normalizePort(m["sport"]),
		Daddr:   m["daddr"],
		Dport:   normalizePort(m["dport"]),
		State:   m["state"],
		Dur:     toFloat(m["dur"]),
		Sbytes:  toInt(m["sbytes"]),
		Dbytes:  toInt(m["dbytes"]),
		Sttl:    int(toInt(m["sttl"])),
		Dttl:    int(toInt(m["dttl"])),
		Sloss:   int(toInt(m["sloss"])),
		Dloss:   int(toInt(m["dloss"])),
		Sload:   toFloat(m["sload"]),
		Dload:   toFloat(m["dload"]),
		Spkts:   toInt(m["spkts"]),
		Dpkts:   toInt(m["dpkts"]),
		Stcpb:   toInt(m["stcpb"]),
		Dtcpb:   toInt(m["dtcpb"]),
		Smeansz: int(toInt(m["smeansz"])),
		Dmeansz: int(toInt(m["dmeansz"])),
		Sjit:    toFloat(m["sjit"]),
		Djit:    toFloat(m["djit"]),
		Sintpkt: toFloat(m["sintpkt"]),
		Dintpkt: toFloat(m["dintpkt"]),
		Tcprtt:  toFloat(m["tcprtt"]),
		Synack:  toFloat(m["synack"]),
		Ackdat:  toFloat(m["ackdat"]),
	}
}

// Key returns the composite flow key (§3). For icmp it is the 3-tuple
// (proto, saddr, daddr); otherwise the 5-tuple including ports.
func (f Flow) Key() Key {
	return keyFor(f.Proto, f.Saddr, f.Sport, f.Daddr, f.Dport)
}

// Supported reports whether proto is one the engine correlates
// (tcp/udp/icmp); anything else is emitted immediately per §4.2 step 3.
func (f Flow) Supported() bool {
	switch f.Proto {
	case "tcp", "udp", "icmp":
		return true
	default:
		return false
	}
}

func keyFor(proto, saddr string, sport int, daddr string, dport int) Key {
	proto = strings.ToLower(strings.TrimSpace(proto))
	if proto == "icmp" {
		return Key{Proto: "icmp", Saddr: saddr, Daddr: daddr}
	}
	return Key{Proto: proto, Saddr: saddr, Sport: sport, Daddr: daddr, Dport: dport}
}

// Key is the composite correlation key of §3.
type Key struct {
	Proto string
	Saddr string
	Sport int
	Daddr string
	Dport int
}

// normalizePort implements the §3 port-normalization rule: null -> 0,
// hex (0x...) parsed base 16, otherwise decimal; unparseable -> 0.
func normalizePort(s string) int {
	s = strings.TrimSpace(s)
	if s == "" || s == "null" {
		return 0
	}
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		v, err := strconv.ParseInt(s[2:], 16, 64)
		if err != nil {
			return 0
		}
		return int(v)
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return int(v)
}

// NormalizePort exports normalizePort for callers outside this package
// (protocol-record port fields use the identical rule).
func NormalizePort(v interface{}) int {
	switch x := v.(type) {
	case nil:
		return 0
	case string:
		return normalizePort(x)
	case float64:
		return int(x)
	case int:
		return x
	case int64:
		return int(x)
	default:
		return 0
	}
}

func toInt(s string) int64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil {
			return 0
		}
		return int64(f)
	}
	return v
}

func toFloat(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

// toEpochSeconds coerces stime/ltime to integer seconds, accepting
// plain numbers, decimal-string numbers, and falling back through
// ToEpochSeconds (ISO-8601-like strings) per §4.2. Unparseable values
// fall back to zero, and the record is kept; neither the adapters nor
// the fusion engine drop a record for an unparseable timestamp.
func toEpochSeconds(s string) int64 {
	sec, _ := ToEpochSeconds(s)
	return sec
}
