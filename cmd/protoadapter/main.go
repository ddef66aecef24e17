// Command protoadapter tails the Zeek-style conn/http/ftp logs and
// pushes each decoded record, stamped with its log kind, onto the
// protocol queue (§4.1 "Protocol adapter").
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/tfg-ids/fusion/internal/broker"
	"github.com/tfg-ids/fusion/internal/config"
	"github.com/tfg-ids/fusion/internal/log"
	"github.com/tfg-ids/fusion/internal/record"
	"github.com/tfg-ids/fusion/internal/tail"
	"github.com/tfg-ids/fusion/internal/utils"
	"github.com/tfg-ids/fusion/internal/version"
)

const appName = `protoadapter`

var (
	confLoc = flag.String("config-file", "/etc/fusion/protoadapter.conf", "location of the configuration file")
	ver     = flag.Bool("version", false, "print version information and exit")
)

func main() {
	flag.Parse()
	if *ver {
		fmt.Println(version.String())
		os.Exit(0)
	}

	lg := log.New(os.Stderr)
	lg.SetAppname(appName)

	cfg, err := config.LoadProtoAdapterConfig(*confLoc)
	if err != nil {
		lg.FatalCode(1, "failed to load configuration", log.KVErr(err))
		return
	}
	if len(cfg.Global.Log_File) > 0 {
		fout, err := os.OpenFile(cfg.Global.Log_File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o640)
		if err != nil {
			lg.FatalCode(1, "failed to open log file", log.KV("path", cfg.Global.Log_File), log.KVErr(err))
			return
		}
		lg.AddWriter(fout)
	}
	if cfg.Global.Log_Level != "" {
		if err := lg.SetLevelString(cfg.Global.Log_Level); err != nil {
			lg.FatalCode(1, "invalid Log-Level", log.KVErr(err))
			return
		}
	}

	brk := broker.New(cfg.Global.Broker_Address, cfg.Global.Broker_Password, cfg.Global.Broker_DB)
	defer brk.Close()

	ctx, cancel := context.WithCancel(context.Background())
	qc := utils.QuitChannel()
	go func() {
		<-qc
		cancel()
	}()

	var wg sync.WaitGroup
	followers := []struct {
		kind record.Kind
		path string
	}{
		{record.KindConn, cfg.ProtoAdapter.Conn_Log_Path},
		{record.KindHTTP, cfg.ProtoAdapter.HTTP_Log_Path},
		{record.KindFTP, cfg.ProtoAdapter.FTP_Log_Path},
	}

	started := 0
	for _, fl := range followers {
		if fl.path == "" {
			continue
		}
		started++
		wg.Add(1)
		go func(kind record.Kind, path string) {
			defer wg.Done()
			followOne(ctx, kind, path, brk, cfg.ProtoAdapter.Proto_Queue_Key, lg)
		}(fl.kind, fl.path)
	}
	if started == 0 {
		lg.FatalCode(1, "no protocol logs configured")
		return
	}

	lg.Info("protoadapter starting", log.KV("version", version.String()), log.KV("followers", started))
	wg.Wait()
	lg.Info("protoadapter stopped")
}

// followOne tails one log file, decodes each non-blank, non-comment
// line as a Zeek-style JSON record, stamps it with kind, and pushes it
// onto the protocol queue. Lines that are not a JSON object (including
// Zeek TSV lines) are logged at DEBUG as malformed and dropped (§7).
func followOne(ctx context.Context, kind record.Kind, path string, brk broker.Client, queueKey string, lg *log.Logger) {
	f, err := tail.New(path, lg)
	if err != nil {
		lg.Error("failed to open protocol log for tailing", log.KV("kind", kind.String()), log.KV("path", path), log.KVErr(err))
		return
	}
	defer f.Close()

	lines := make(chan string, 256)
	go func() {
		if err := f.Lines(ctx, lines); err != nil && ctx.Err() == nil {
			lg.Error("protocol follower stopped", log.KV("kind", kind.String()), log.KVErr(err))
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			handleLine(ctx, kind, line, brk, queueKey, lg)
		}
	}
}

func handleLine(ctx context.Context, kind record.Kind, line string, brk broker.Client, queueKey string, lg *log.Logger) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || strings.HasPrefix(trimmed, "#") {
		return
	}

	var m map[string]interface{}
	if err := json.Unmarshal([]byte(trimmed), &m); err != nil {
		lg.Debug("malformed protocol log line, skipping", log.KV("kind", kind.String()), log.KVErr(err))
		return
	}
	m["log_kind"] = kind.String()

	payload, err := json.Marshal(m)
	if err != nil {
		lg.Debug("failed to marshal protocol record, skipping", log.KVErr(err))
		return
	}

	pctx, pcancel := context.WithTimeout(ctx, 5*time.Second)
	defer pcancel()
	if err := brk.Push(pctx, queueKey, string(payload)); err != nil {
		lg.Error("failed to push protocol record", log.KVErr(err))
	}
}
