package durability

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tfg-ids/fusion/internal/fusion"
	"github.com/tfg-ids/fusion/internal/record"
)

func TestRecorder_AppendFlowWritesOneJSONLinePerCall(t *testing.T) {
	root := t.TempDir()
	rec, err := Open(root, "run1", true, nil)
	require.NoError(t, err)
	defer rec.Close()

	rec.AppendFlow(record.Flow{Saddr: "10.0.0.1", Sport: 1234, Daddr: "10.0.0.2", Dport: 80, Proto: "tcp"})
	rec.AppendFlow(record.Flow{Saddr: "10.0.0.3", Sport: 4444, Daddr: "10.0.0.4", Dport: 22, Proto: "tcp"})

	lines := readLines(t, filepath.Join(root, "flow", "run1.jsonl"))
	require.Len(t, lines, 2)

	var f record.Flow
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &f))
	assert.Equal(t, "10.0.0.1", f.Saddr)
}

func TestRecorder_AppendMergeUsesCanonicalFieldOrder(t *testing.T) {
	root := t.TempDir()
	rec, err := Open(root, "run1", true, nil)
	require.NoError(t, err)
	defer rec.Close()

	rec.AppendMerge(record.Fused{Saddr: "1.2.3.4", Sport: 10, Daddr: "5.6.7.8", Dport: 20, Proto: "tcp"})

	lines := readLines(t, filepath.Join(root, "merge", "run1.jsonl"))
	require.Len(t, lines, 1)

	var m map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &m))
	assert.Equal(t, "1.2.3.4", m["saddr"])
	assert.Equal(t, float64(20), m["dport"])

	// the canonical field order must hold textually, since Go's
	// encoding/json gives no field-order guarantee for a plain map.
	lastIdx := -1
	for _, name := range record.CanonicalFields {
		idx := strings.Index(lines[0], `"`+name+`":`)
		require.GreaterOrEqualf(t, idx, 0, "field %q missing from merge record", name)
		assert.Greaterf(t, idx, lastIdx, "field %q out of canonical order", name)
		lastIdx = idx
	}
}

func TestRecorder_DumpLostRewritesFileInFull(t *testing.T) {
	root := t.TempDir()
	rec, err := Open(root, "run1", true, nil)
	require.NoError(t, err)
	defer rec.Close()

	entries := []fusion.KeyedEntry[record.Flow]{
		{Key: record.Key{Proto: "tcp", Saddr: "1.1.1.1", Sport: 1, Daddr: "2.2.2.2", Dport: 2}, Value: record.Flow{Saddr: "1.1.1.1"}},
	}
	rec.DumpLost(entries, nil)

	lines := readLines(t, filepath.Join(root, "lost", "run1", "flow.log"))
	require.Len(t, lines, 1)

	rec.DumpLost(nil, nil)
	lines = readLines(t, filepath.Join(root, "lost", "run1", "flow.log"))
	assert.Len(t, lines, 0, "a second dump with no entries must truncate the prior contents")
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		out = append(out, sc.Text())
	}
	require.NoError(t, sc.Err())
	return out
}
