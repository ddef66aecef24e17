// Command fusionengine pops flow and protocol records off their
// respective broker queues, correlates them into fused records via
// fusion.Engine, and pushes each emitted record's CSV line onto the
// scoring queue (§4.2).
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/tfg-ids/fusion/internal/broker"
	"github.com/tfg-ids/fusion/internal/config"
	"github.com/tfg-ids/fusion/internal/durability"
	"github.com/tfg-ids/fusion/internal/fusion"
	"github.com/tfg-ids/fusion/internal/log"
	"github.com/tfg-ids/fusion/internal/record"
	"github.com/tfg-ids/fusion/internal/scoring"
	"github.com/tfg-ids/fusion/internal/utils"
	"github.com/tfg-ids/fusion/internal/version"
)

const appName = `fusionengine`

var (
	confLoc = flag.String("config-file", "/etc/fusion/fusionengine.conf", "location of the configuration file")
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

	cfg, err := config.LoadFusionEngineConfig(*confLoc)
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

	runID := uuid.New()
	runTimestamp := fmt.Sprintf("%d", runIDTimestamp())
	lg.Info("fusionengine starting", log.KV("version", version.String()), log.KV("run_id", runID.String()))

	rec, err := durability.Open(cfg.FusionEngine.Durability_Root, runTimestamp, cfg.FusionEngine.Flush_Each_Write, lg)
	if err != nil {
		lg.FatalCode(1, "failed to open durability recorder", log.KVErr(err))
		return
	}
	defer rec.Close()

	brk := broker.New(cfg.Global.Broker_Address, cfg.Global.Broker_Password, cfg.Global.Broker_DB)
	defer brk.Close()

	engine := fusion.NewEngine(cfg.FusionEngine.Cache_Capacity, cfg.FusionEngine.History_Size, rec)

	ctx, cancel := context.WithCancel(context.Background())
	qc := utils.QuitChannel()
	go func() {
		<-qc
		cancel()
	}()

	if interval, err := time.ParseDuration(cfg.FusionEngine.Counter_Compact_Interval); err == nil && interval > 0 {
		go runCompactTicker(ctx, engine, interval)
	}

	runLoop(ctx, engine, brk, cfg, lg)
	lg.Info("fusionengine stopped")
}

// runIDTimestamp returns the wall-clock time the process started, used
// only to name this run's append-log directory.
func runIDTimestamp() int64 {
	return time.Now().UnixNano()
}

func runCompactTicker(ctx context.Context, e *fusion.Engine, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			e.CompactCounters()
		}
	}
}

// runLoop implements §4.2/§5's main loop: non-blocking pop on the flow
// queue then the protocol queue, a short sleep when both are empty, and
// a context check between records for shutdown.
func runLoop(ctx context.Context, engine *fusion.Engine, brk broker.Client, cfg *config.FusionEngineConfig, lg *log.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if popAndHandle(ctx, engine, brk, cfg, lg) {
			continue
		}
		time.Sleep(50 * time.Millisecond)
	}
}

func popAndHandle(ctx context.Context, engine *fusion.Engine, brk broker.Client, cfg *config.FusionEngineConfig, lg *log.Logger) bool {
	if payload, ok := tryPop(ctx, brk, cfg.FusionEngine.Flow_Queue_Key); ok {
		handleFlowPayload(engine, brk, cfg, payload, lg)
		return true
	}
	if payload, ok := tryPop(ctx, brk, cfg.FusionEngine.Proto_Queue_Key); ok {
		handleProtoPayload(engine, brk, cfg, payload, lg)
		return true
	}
	return false
}

func tryPop(ctx context.Context, brk broker.Client, queue string) (string, bool) {
	v, ok, err := brk.TryPop(ctx, queue)
	if err != nil {
		return "", false
	}
	return v, ok
}

func handleFlowPayload(engine *fusion.Engine, brk broker.Client, cfg *config.FusionEngineConfig, payload string, lg *log.Logger) {
	var m map[string]string
	if err := json.Unmarshal([]byte(payload), &m); err != nil {
		lg.Warn("malformed flow payload, dropping", log.KVErr(err))
		return
	}
	f := record.FlowFromFields(m)
	fused, emitted := engine.HandleFlow(f)
	if emitted {
		pushScoringLine(brk, cfg.FusionEngine.Scoring_Queue_Key, fused, lg)
	}
}

func handleProtoPayload(engine *fusion.Engine, brk broker.Client, cfg *config.FusionEngineConfig, payload string, lg *log.Logger) {
	var m map[string]interface{}
	if err := json.Unmarshal([]byte(payload), &m); err != nil {
		lg.Warn("malformed protocol payload, dropping", log.KVErr(err))
		return
	}
	kindStr, _ := m["log_kind"].(string)
	kind, ok := record.ParseKind(kindStr)
	if !ok {
		lg.Warn("unknown protocol log_kind, dropping", log.KV("log_kind", kindStr))
		return
	}
	p := record.ProtocolFromFields(kind, m)
	fused, emitted := engine.HandleProtocol(p)
	if emitted {
		pushScoringLine(brk, cfg.FusionEngine.Scoring_Queue_Key, fused, lg)
	}
}

func pushScoringLine(brk broker.Client, queueKey string, fused record.Fused, lg *log.Logger) {
	line, err := scoring.BuildCSVLine(fused)
	if err != nil {
		lg.Error("failed to build scoring CSV line", log.KVErr(err))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := brk.Push(ctx, queueKey, line); err != nil {
		lg.Error("failed to push scoring line", log.KVErr(err))
	}
}
