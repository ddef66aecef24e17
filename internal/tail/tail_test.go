package tail

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFollower_DeliversLinesWrittenAfterOpen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "flows.log")
	require.NoError(t, os.WriteFile(path, []byte("old-line-before-open\n"), 0o644))

	f, err := New(path, nil)
	require.NoError(t, err)
	defer f.Close()

	fh, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = fh.WriteString("first\nsecond\n")
	require.NoError(t, err)
	require.NoError(t, fh.Close())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	lines := make(chan string, 8)
	go f.Lines(ctx, lines)

	got := map[string]bool{}
	for len(got) < 2 {
		select {
		case l := <-lines:
			got[l] = true
		case <-ctx.Done():
			t.Fatal("timed out waiting for lines")
		}
	}
	require.True(t, got["first"])
	require.True(t, got["second"])
	require.False(t, got["old-line-before-open"])
}
