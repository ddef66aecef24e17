// Package scoring implements the batched ML scoring consumer of §4.4:
// decoding the CSV scoring-queue line, deriving ct_state_ttl, building
// the model input vector via the feature store's categorical maps,
// invoking a Predictor in batches, and classifying the verdict against
// the allow list.
package scoring

import (
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"

	"github.com/tfg-ids/fusion/internal/record"
)

// Row is one decoded scoring-queue CSV line, field names matching the
// §6 CSV column order plus the "dsport" alias of "dport".
type Row struct {
	Fields map[string]string
}

// DecodeCSVLine parses one scoring-queue line against record.CSVFields,
// aliasing "dport" to "dsport" since the training pipeline's numeric
// feature list names the destination port column "dsport" (§6).
func DecodeCSVLine(line string) (Row, error) {
	r := csv.NewReader(strings.NewReader(line))
	fields, err := r.Read()
	if err != nil {
		return Row{}, fmt.Errorf("parsing scoring CSV line: %w", err)
	}
	if len(fields) != len(record.CSVFields) {
		return Row{}, fmt.Errorf("expected %d columns, got %d", len(record.CSVFields), len(fields))
	}
	m := make(map[string]string, len(fields)+1)
	for i, name := range record.CSVFields {
		m[name] = fields[i]
	}
	m["dsport"] = m["dport"]
	return Row{Fields: m}, nil
}

// CalculateCtStateTTL reproduces the original system's ct_state_ttl
// formula: a placeholder state component (always 0, since the original
// implementation never filled in a state-to-code mapping) plus TTL
// range buckets for the source and destination TTLs.
func CalculateCtStateTTL(sttl, dttl int) int {
	const stateCode = 0
	return stateCode*1000 + ttlRange(sttl)*100 + ttlRange(dttl)
}

func ttlRange(ttl int) int {
	switch {
	case ttl <= 0:
		return 0
	case ttl <= 64:
		return 1
	case ttl <= 128:
		return 2
	default:
		return 3
	}
}

func (r Row) Int(name string) int {
	v, _ := strconv.Atoi(strings.TrimSpace(r.Fields[name]))
	return v
}

func (r Row) Float(name string) float64 {
	v, _ := strconv.ParseFloat(strings.TrimSpace(r.Fields[name]), 64)
	return v
}

func (r Row) String(name string) string {
	return r.Fields[name]
}

// BuildCSVLine renders a fused record as one scoring-queue line in the
// §6 CSV column order, computing ct_state_ttl on the fly since it is
// deliberately absent from the Fused struct (§6: present in the CSV
// schema but not the canonical JSON schema).
func BuildCSVLine(f record.Fused) (string, error) {
	ctStateTTL := CalculateCtStateTTL(f.Sttl, f.Dttl)
	values := map[string]string{
		"stime":             strconv.FormatInt(f.Stime, 10),
		"proto":             f.Proto,
		"saddr":             f.Saddr,
		"sport":             strconv.Itoa(f.Sport),
		"daddr":             f.Daddr,
		"dport":             strconv.Itoa(f.Dport),
		"state":             f.State,
		"ltime":             strconv.FormatInt(f.Ltime, 10),
		"spkts":             strconv.FormatInt(f.Spkts, 10),
		"dpkts":             strconv.FormatInt(f.Dpkts, 10),
		"sbytes":            strconv.FormatInt(f.Sbytes, 10),
		"dbytes":            strconv.FormatInt(f.Dbytes, 10),
		"sttl":              strconv.Itoa(f.Sttl),
		"dttl":              strconv.Itoa(f.Dttl),
		"sload":             strconv.FormatFloat(f.Sload, 'f', -1, 64),
		"dload":             strconv.FormatFloat(f.Dload, 'f', -1, 64),
		"sloss":             strconv.Itoa(f.Sloss),
		"dloss":             strconv.Itoa(f.Dloss),
		"sintpkt":           strconv.FormatFloat(f.Sintpkt, 'f', -1, 64),
		"dintpkt":           strconv.FormatFloat(f.Dintpkt, 'f', -1, 64),
		"sjit":              strconv.FormatFloat(f.Sjit, 'f', -1, 64),
		"djit":              strconv.FormatFloat(f.Djit, 'f', -1, 64),
		"stcpb":             strconv.FormatInt(f.Stcpb, 10),
		"dtcpb":             strconv.FormatInt(f.Dtcpb, 10),
		"tcprtt":            strconv.FormatFloat(f.Tcprtt, 'f', -1, 64),
		"synack":            strconv.FormatFloat(f.Synack, 'f', -1, 64),
		"ackdat":            strconv.FormatFloat(f.Ackdat, 'f', -1, 64),
		"smeansz":           strconv.Itoa(f.Smeansz),
		"dmeansz":           strconv.Itoa(f.Dmeansz),
		"dur":               strconv.FormatFloat(f.Dur, 'f', -1, 64),
		"ct_state_ttl":      strconv.Itoa(ctStateTTL),
		"ct_flw_http_mthd":  strconv.Itoa(f.CtFlwHttpMthd),
		"is_ftp_login":      strconv.Itoa(f.IsFtpLogin),
		"ct_ftp_cmd":        strconv.Itoa(f.CtFtpCmd),
		"ct_srv_src":        strconv.Itoa(f.CtSrvSrc),
		"ct_srv_dst":        strconv.Itoa(f.CtSrvDst),
		"ct_dst_ltm":        strconv.Itoa(f.CtDstLtm),
		"ct_src_ltm":        strconv.Itoa(f.CtSrcLtm),
		"ct_src_dport_ltm":  strconv.Itoa(f.CtSrcDportLtm),
		"ct_dst_sport_ltm":  strconv.Itoa(f.CtDstSportLtm),
		"ct_dst_src_ltm":    strconv.Itoa(f.CtDstSrcLtm),
	}

	row := make([]string, len(record.CSVFields))
	for i, name := range record.CSVFields {
		row[i] = values[name]
	}

	var sb strings.Builder
	w := csv.NewWriter(&sb)
	if err := w.Write(row); err != nil {
		return "", err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}
	return strings.TrimRight(sb.String(), "\r\n"), nil
}
