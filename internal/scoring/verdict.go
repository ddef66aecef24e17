package scoring

import (
	"fmt"

	"github.com/tfg-ids/fusion/internal/allowlist"
)

const (
	attackThreshold  = 0.5
	criticalThreshold = 0.70
)

// Tag identifies one of the four verdict lines of §4.4/§7.
type Tag string

const (
	TagCritical Tag = "🚨"
	TagWarning  Tag = "⚠️"
	TagIgnored  Tag = "⏩ IGNORED"
	TagNormal   Tag = "✅ Normal"
)

// Verdict is the classification result for one scored record.
type Verdict struct {
	Tag            Tag
	Probability    float64
	IsAttack       bool
	AllowReason    string // empty unless IsAttack and an allow-list matched
	Saddr, Daddr   string
	Sport, Dport   int
}

// AllowlistSet names the five CIDR lists plus the metadata literal
// tested, in order, against both saddr and daddr (§4.4 step 5).
type AllowlistSet struct {
	Metadata  string // literal IP, "169.254.169.254"
	GCloud    *allowlist.List
	AWS       *allowlist.List
	GGen      *allowlist.List
	Canonical *allowlist.List
	SUSE      *allowlist.List
}

// Reason returns the allow-list exclusion reason for the pair (saddr,
// daddr), testing the metadata literal then each of the five CIDR
// lists in the fixed order named in §4.4 — each category checked
// against BOTH addresses before moving to the next category, matching
// process_batch()'s "sip or dip" per-category test order. The first
// category either address matches wins, regardless of which address
// matched it.
func (a AllowlistSet) Reason(saddr, daddr string) string {
	if saddr == a.Metadata || daddr == a.Metadata {
		return "Meta"
	}
	categories := [...]struct {
		name string
		list *allowlist.List
	}{
		{"GCloud", a.GCloud},
		{"AWS", a.AWS},
		{"GGen", a.GGen},
		{"Canonical", a.Canonical},
		{"SUSE", a.SUSE},
	}
	for _, c := range categories {
		if c.list == nil {
			continue
		}
		if c.list.Contains(saddr) || c.list.Contains(daddr) {
			return c.name
		}
	}
	return ""
}

// Classify implements §4.4 step 6: attack iff probability >= 0.5; among
// attacks, tag 🚨 at prob >= 0.70, else ⚠️; an allow-listed attack is
// tagged ⏩ IGNORED(reason) instead, though IsAttack/Probability are
// unchanged (§8 "allow-list short-circuit: ... classification verdict
// is unchanged but logging is suppressed").
func Classify(saddr, daddr string, sport, dport int, probability float64, allowed AllowlistSet) Verdict {
	v := Verdict{Probability: probability, Saddr: saddr, Daddr: daddr, Sport: sport, Dport: dport}
	v.IsAttack = probability >= attackThreshold
	if !v.IsAttack {
		v.Tag = TagNormal
		return v
	}

	if reason := allowed.Reason(saddr, daddr); reason != "" {
		v.AllowReason = reason
		v.Tag = TagIgnored
		return v
	}

	if probability >= criticalThreshold {
		v.Tag = TagCritical
	} else {
		v.Tag = TagWarning
	}
	return v
}

// Line renders the single human-readable verdict line of §4.4/§7.
func (v Verdict) Line() string {
	switch v.Tag {
	case TagIgnored:
		return fmt.Sprintf("%s(%s) %s:%d -> %s:%d prob=%.4f", v.Tag, v.AllowReason, v.Saddr, v.Sport, v.Daddr, v.Dport, v.Probability)
	default:
		return fmt.Sprintf("%s %s:%d -> %s:%d prob=%.4f", v.Tag, v.Saddr, v.Sport, v.Daddr, v.Dport, v.Probability)
	}
}

// AttackLogLine renders the append-only attack-log entry for a
// non-allow-listed attack (§4.4 step 6: `"saddr:sport -> daddr:dport"`).
func (v Verdict) AttackLogLine() string {
	return fmt.Sprintf("%s:%d -> %s:%d", v.Saddr, v.Sport, v.Daddr, v.Dport)
}
