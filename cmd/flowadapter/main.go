// Command flowadapter reads Argus-style flow records from stdin (or a
// file), one per line in a fixed column order, and pushes each as a
// JSON object onto the flow queue (§4.1 "Flow adapter").
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/tfg-ids/fusion/internal/broker"
	"github.com/tfg-ids/fusion/internal/config"
	"github.com/tfg-ids/fusion/internal/log"
	"github.com/tfg-ids/fusion/internal/utils"
	"github.com/tfg-ids/fusion/internal/version"
)

const appName = `flowadapter`

var (
	confLoc     = flag.String("config-file", "/etc/fusion/flowadapter.conf", "location of the configuration file")
	fieldsFlag  = flag.String("fields", "", "comma-separated column order, overrides Field-Order in the config")
	skipHeader  = flag.Bool("skip-header", false, "discard the first line read")
	ver         = flag.Bool("version", false, "print version information and exit")
)

func main() {
	flag.Parse()
	if *ver {
		fmt.Println(version.String())
		os.Exit(0)
	}

	lg := log.New(os.Stderr)
	lg.SetAppname(appName)

	cfg, err := config.LoadFlowAdapterConfig(*confLoc)
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

	fields := cfg.FieldOrder()
	if *fieldsFlag != "" {
		fields = strings.Split(*fieldsFlag, ",")
	}
	if len(fields) == 0 {
		lg.FatalCode(1, "no field order configured; set -fields or FlowAdapter.Field-Order in the config")
		return
	}

	in, err := openInput(cfg.FlowAdapter.Flow_Log_Path)
	if err != nil {
		lg.FatalCode(1, "failed to open input", log.KV("path", cfg.FlowAdapter.Flow_Log_Path), log.KVErr(err))
		return
	}
	defer in.Close()

	brk := broker.New(cfg.Global.Broker_Address, cfg.Global.Broker_Password, cfg.Global.Broker_DB)
	defer brk.Close()

	qc := utils.QuitChannel()
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-qc
		cancel()
	}()

	lg.Info("flowadapter starting", log.KV("version", version.String()), log.KV("queue", cfg.FlowAdapter.Flow_Queue_Key))
	if err := run(ctx, in, fields, *skipHeader, brk, cfg.FlowAdapter.Flow_Queue_Key, lg); err != nil && ctx.Err() == nil {
		lg.Error("flow adapter exited with error", log.KVErr(err))
	}
	lg.Info("flowadapter stopped")
}

func openInput(path string) (io.ReadCloser, error) {
	if path == "" || path == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	return os.Open(path)
}

// run reads lines from in, splits each into fields, maps it to the
// configured column order, marshals it as JSON, and pushes it onto the
// flow queue. Column-count mismatches are logged and skipped (§7); a
// broker push failure is not fatal for a single record but is logged.
func run(ctx context.Context, in io.Reader, fields []string, skipHeader bool, brk broker.Client, queueKey string, lg *log.Logger) error {
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)

	first := true
	for sc.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := sc.Text()
		if first {
			first = false
			if skipHeader {
				continue
			}
		}
		if strings.TrimSpace(line) == "" {
			continue
		}

		cols := strings.Split(line, ",")
		if len(cols) != len(fields) {
			lg.Warn("flow line column-count mismatch, skipping", log.KV("expected", len(fields)), log.KV("got", len(cols)))
			continue
		}

		m := make(map[string]string, len(fields))
		for i, name := range fields {
			m[name] = cols[i]
		}

		payload, err := json.Marshal(m)
		if err != nil {
			lg.Warn("failed to marshal flow record, skipping", log.KVErr(err))
			continue
		}

		pctx, pcancel := context.WithTimeout(ctx, 5*time.Second)
		err = brk.Push(pctx, queueKey, string(payload))
		pcancel()
		if err != nil {
			lg.Error("failed to push flow record", log.KVErr(err))
		}
	}
	return sc.Err()
}
