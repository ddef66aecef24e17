package record

// Fused is the canonical fused record of §6. Field order in this struct
// has no runtime meaning by itself; CanonicalFields/CSVFields below are
// what enforce the byte-stable column orders the spec names.
type Fused struct {
	Saddr             string
	Sport             int
	Daddr             string
	Dport             int
	Proto             string
	State             string
	Dur               float64
	Sbytes            int64
	Dbytes            int64
	Sttl              int
	Dttl              int
	Sloss             int
	Dloss             int
	Service           string
	Sload             float64
	Dload             float64
	Spkts             int64
	Dpkts             int64
	Stcpb             int64
	Dtcpb             int64
	Smeansz           int
	Dmeansz           int
	TransDepth        int
	ResponseBodyLen   int64
	Sjit              float64
	Djit              float64
	Stime             int64
	Ltime             int64
	Sintpkt           float64
	Dintpkt           float64
	Tcprtt            float64
	Synack            float64
	Ackdat            float64
	IsSmIpsPorts      int
	CtFlwHttpMthd     int
	IsFtpLogin        int
	CtFtpCmd          int
	CtSrvSrc          int
	CtSrvDst          int
	CtDstLtm          int
	CtSrcLtm          int
	CtSrcDportLtm     int
	CtDstSportLtm     int
	CtDstSrcLtm       int
}

// FromFlow initializes a Fused record from a Flow, applying
// is_sm_ips_ports and defaulting the HTTP/FTP-specific fields (§4.2
// step 3 / merge step "initialise the six HTTP/FTP fields").
func FromFlow(f Flow) Fused {
	return Fused{
		Saddr:        f.Saddr,
		Sport:        f.Sport,
		Daddr:        f.Daddr,
		Dport:        f.Dport,
		Proto:        f.Proto,
		State:        f.State,
		Dur:          f.Dur,
		Sbytes:       f.Sbytes,
		Dbytes:       f.Dbytes,
		Sttl:         f.Sttl,
		Dttl:         f.Dttl,
		Sloss:        f.Sloss,
		Dloss:        f.Dloss,
		Service:      "-",
		Sload:        f.Sload,
		Dload:        f.Dload,
		Spkts:        f.Spkts,
		Dpkts:        f.Dpkts,
		Stcpb:        f.Stcpb,
		Dtcpb:        f.Dtcpb,
		Smeansz:      f.Smeansz,
		Dmeansz:      f.Dmeansz,
		Sjit:         f.Sjit,
		Djit:         f.Djit,
		Stime:        f.Stime,
		Ltime:        f.Ltime,
		Sintpkt:      f.Sintpkt,
		Dintpkt:      f.Dintpkt,
		Tcprtt:       f.Tcprtt,
		Synack:       f.Synack,
		Ackdat:       f.Ackdat,
		IsSmIpsPorts: boolInt(f.Saddr == f.Daddr && f.Sport == f.Dport),
	}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// CanonicalFields returns the §6 "Fused record schema" column order.
var CanonicalFields = []string{
	"saddr", "sport", "daddr", "dport", "proto", "state", "dur", "sbytes",
	"dbytes", "sttl", "dttl", "sloss", "dloss", "service", "sload",
	"dload", "spkts", "dpkts", "stcpb", "dtcpb", "smeansz", "dmeansz",
	"trans_depth", "response_body_len", "sjit", "djit", "stime", "ltime",
	"sintpkt", "dintpkt", "tcprtt", "synack", "ackdat", "is_sm_ips_ports",
	"ct_flw_http_mthd", "is_ftp_login", "ct_ftp_cmd", "ct_srv_src",
	"ct_srv_dst", "ct_dst_ltm", "ct_src_ltm", "ct_src_dport_ltm",
	"ct_dst_sport_ltm", "ct_dst_src_ltm",
}

// CSVFields returns the §6 "scoring queue" column order, which differs
// from CanonicalFields.
var CSVFields = []string{
	"stime", "proto", "saddr", "sport", "daddr", "dport", "state",
	"ltime", "spkts", "dpkts", "sbytes", "dbytes", "sttl", "dttl",
	"sload", "dload", "sloss", "dloss", "sintpkt", "dintpkt", "sjit",
	"djit", "stcpb", "dtcpb", "tcprtt", "synack", "ackdat", "smeansz",
	"dmeansz", "dur", "ct_state_ttl", "ct_flw_http_mthd", "is_ftp_login",
	"ct_ftp_cmd", "ct_srv_src", "ct_srv_dst", "ct_dst_ltm", "ct_src_ltm",
	"ct_src_dport_ltm", "ct_dst_sport_ltm", "ct_dst_src_ltm",
}
