package fusion

import "github.com/tfg-ids/fusion/internal/record"

// History is the bounded FIFO of the most recent fused records used to
// derive the seven ct_*_ltm counters (§3, §4.3). It never exceeds cap
// entries; Append evicts the oldest on overflow.
type History struct {
	buf []record.Fused
	cap int
}

func NewHistory(cap int) *History {
	return &History{cap: cap}
}

func (h *History) Append(r record.Fused) {
	h.buf = append(h.buf, r)
	if len(h.buf) > h.cap {
		h.buf = h.buf[len(h.buf)-h.cap:]
	}
}

func (h *History) Len() int { return len(h.buf) }

// Counters computes the seven ct_*_ltm counters for a record about to
// be emitted, over the history as it stands *before* that record is
// appended (§4.3 "counters never include the current record itself").
func (h *History) Counters(saddr string, sport int, daddr string, dport int, service string, ltime int64) (ctSrvSrc, ctSrvDst, ctDstLtm, ctSrcLtm, ctSrcDportLtm, ctDstSportLtm, ctDstSrcLtm int) {
	for _, r := range h.buf {
		rLtime := r.Ltime
		if rLtime != ltime {
			continue
		}
		if r.Service == service && r.Saddr == saddr {
			ctSrvSrc++
		}
		if r.Service == service && r.Daddr == daddr {
			ctSrvDst++
		}
		if r.Daddr == daddr {
			ctDstLtm++
		}
		if r.Saddr == saddr {
			ctSrcLtm++
		}
		if r.Saddr == saddr && r.Dport == dport {
			ctSrcDportLtm++
		}
		if r.Daddr == daddr && r.Sport == sport {
			ctDstSportLtm++
		}
		if r.Saddr == saddr && r.Daddr == daddr {
			ctDstSrcLtm++
		}
	}
	return
}
