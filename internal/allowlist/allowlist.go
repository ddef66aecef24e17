// Package allowlist implements the CIDR/metadata allow-listing of §4.4:
// a trie of known-benign network ranges (cloud provider metadata
// endpoints, well-known scanner ranges, etc.) consulted before a verdict
// is raised, refreshed periodically from one or more HTTPS sources.
// Grounded on ingest/processors/srcrouter.go's nradix.Tree usage, with
// the config-driven static-route list generalized into a periodically
// refetched remote list.
package allowlist

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/asergeyev/nradix"

	"github.com/tfg-ids/fusion/internal/log"
)

// List is a refreshable CIDR trie; Contains is safe for concurrent use
// while a background refresh swaps the tree.
type List struct {
	sources []string
	client  *http.Client
	lg      *log.Logger

	tree atomic.Pointer[nradix.Tree]
}

// NewStatic builds a List from a fixed set of CIDRs/IPs with no
// background refresh, for tests and for deployments with no remote
// source configured.
func NewStatic(entries []string) (*List, error) {
	l := &List{}
	tree, err := buildTree(entries)
	if err != nil {
		return nil, err
	}
	l.tree.Store(tree)
	return l, nil
}

// New builds a List that fetches CIDR/IP entries (one per line, '#'
// comments allowed) from each of sources. It fetches nothing itself:
// the list stays empty until Refresh is called, and Run refreshes it on
// an interval.
func New(sources []string, lg *log.Logger) *List {
	return &List{
		sources: sources,
		client:  &http.Client{Timeout: 30 * time.Second},
		lg:      lg,
	}
}

// Refresh fetches all sources once and swaps in the merged tree. Call it
// once synchronously before serving traffic, then via Run for the
// background ticker.
func (l *List) Refresh(ctx context.Context) error {
	var all []string
	for _, src := range l.sources {
		entries, err := l.fetch(ctx, src)
		if err != nil {
			return fmt.Errorf("fetching %s: %w", src, err)
		}
		all = append(all, entries...)
	}
	tree, err := buildTree(all)
	if err != nil {
		return err
	}
	l.tree.Store(tree)
	return nil
}

// Run refreshes on the given interval until ctx is cancelled, logging
// (not returning) fetch errors so a transient outage does not stop the
// consumer from scoring.
func (l *List) Run(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := l.Refresh(ctx); err != nil && l.lg != nil {
				l.lg.Warn("allowlist: refresh failed", log.KVErr(err))
			}
		}
	}
}

// Contains reports whether ip falls within any allow-listed range.
func (l *List) Contains(ip string) bool {
	tree := l.tree.Load()
	if tree == nil {
		return false
	}
	if net.ParseIP(ip) == nil {
		return false
	}
	v, _ := tree.FindCIDR(ip)
	return v != nil
}

func (l *List) fetch(ctx context.Context, src string) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return nil, err
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}

	var out []string
	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out, sc.Err()
}

func buildTree(entries []string) (*nradix.Tree, error) {
	tree := nradix.NewTree(32)
	var mtx sync.Mutex
	for _, raw := range entries {
		cidr, err := normalizeCIDR(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid allow-list entry %q: %w", raw, err)
		}
		mtx.Lock()
		err = tree.AddCIDR(cidr, true)
		mtx.Unlock()
		if err != nil {
			return nil, fmt.Errorf("adding %q: %w", cidr, err)
		}
	}
	return tree, nil
}

func normalizeCIDR(v string) (string, error) {
	if _, _, err := net.ParseCIDR(v); err == nil {
		return v, nil
	}
	ip := net.ParseIP(v)
	if ip == nil {
		return "", fmt.Errorf("not a CIDR or IP")
	}
	if ip.To4() != nil {
		return ip.String() + "/32", nil
	}
	return ip.String() + "/128", nil
}
