// Command scoringconsumer drains the scoring queue, batches decoded
// records, scores each batch through a Predictor, and classifies a
// verdict for every row (§4.4/§5 "Scoring consumer").
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/tfg-ids/fusion/internal/allowlist"
	"github.com/tfg-ids/fusion/internal/broker"
	"github.com/tfg-ids/fusion/internal/config"
	"github.com/tfg-ids/fusion/internal/featurestore"
	"github.com/tfg-ids/fusion/internal/log"
	"github.com/tfg-ids/fusion/internal/scoring"
	"github.com/tfg-ids/fusion/internal/utils"
	"github.com/tfg-ids/fusion/internal/version"
)

const appName = `scoringconsumer`

// readQueueDepth is the size of the channel feeding records from the
// broker reader goroutine to the batching loop (§5).
const readQueueDepth = 16384

var (
	confLoc = flag.String("config-file", "/etc/fusion/scoringconsumer.conf", "location of the configuration file")
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

	cfg, err := config.LoadScoringConsumerConfig(*confLoc)
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

	store, err := featurestore.Open(cfg.ScoringConsumer.Feature_Order_Path, cfg.ScoringConsumer.Category_Map_Dir)
	if err != nil {
		lg.FatalCode(1, "failed to load feature store", log.KVErr(err))
		return
	}

	predictor, err := loadPredictor(cfg)
	if err != nil {
		lg.FatalCode(1, "failed to load predictor", log.KVErr(err))
		return
	}
	defer predictor.Close()

	allowed, err := buildAllowlistSet(cfg)
	if err != nil {
		lg.FatalCode(1, "failed to build allow-list", log.KVErr(err))
		return
	}

	var attackLog *os.File
	if cfg.ScoringConsumer.Attack_Log_Path != "" {
		attackLog, err = os.OpenFile(cfg.ScoringConsumer.Attack_Log_Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o640)
		if err != nil {
			lg.FatalCode(1, "failed to open attack log", log.KV("path", cfg.ScoringConsumer.Attack_Log_Path), log.KVErr(err))
			return
		}
		defer attackLog.Close()
	}

	brk := broker.New(cfg.Global.Broker_Address, cfg.Global.Broker_Password, cfg.Global.Broker_DB)
	defer brk.Close()

	ctx, cancel := context.WithCancel(context.Background())
	qc := utils.QuitChannel()
	go func() {
		<-qc
		cancel()
	}()

	refreshInterval, _ := cfg.AllowlistRefresh()
	for _, l := range allLists(allowed) {
		if l == nil {
			continue
		}
		if err := l.Refresh(ctx); err != nil {
			lg.Warn("allowlist: initial refresh failed", log.KVErr(err))
		}
		go l.Run(ctx, refreshInterval)
	}

	lg.Info("scoringconsumer starting", log.KV("version", version.String()), log.KV("backend", cfg.ScoringConsumer.Predictor_Backend))

	records := make(chan string, readQueueDepth)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		readLoop(ctx, brk, cfg.ScoringConsumer.Scoring_Queue_Key, records, lg)
	}()
	go func() {
		defer wg.Done()
		batchLoop(ctx, cfg, records, store, predictor, allowed, attackLog, lg)
	}()
	wg.Wait()
	lg.Info("scoringconsumer stopped")
}

func allLists(a scoring.AllowlistSet) []*allowlist.List {
	return []*allowlist.List{a.GCloud, a.AWS, a.GGen, a.Canonical, a.SUSE}
}

func loadPredictor(cfg *config.ScoringConsumerConfig) (featurestore.Predictor, error) {
	switch cfg.ScoringConsumer.Predictor_Backend {
	case "accelerator":
		return featurestore.NewAcceleratorPredictor(cfg.ScoringConsumer.Accelerator_Address), nil
	default:
		return featurestore.LoadCPUPredictor(cfg.ScoringConsumer.Model_Path)
	}
}

// buildAllowlistSet wires one refreshable List per named provider of
// §4.4 step 5, each fetching from its own configured HTTPS sources. A
// provider with no sources configured is left nil; AllowlistSet.Reason
// skips nil lists.
func buildAllowlistSet(cfg *config.ScoringConsumerConfig) (scoring.AllowlistSet, error) {
	set := scoring.AllowlistSet{Metadata: "169.254.169.254"}
	if len(cfg.ScoringConsumer.Allowlist_GCloud) > 0 {
		set.GCloud = allowlist.New(cfg.ScoringConsumer.Allowlist_GCloud, nil)
	}
	if len(cfg.ScoringConsumer.Allowlist_AWS) > 0 {
		set.AWS = allowlist.New(cfg.ScoringConsumer.Allowlist_AWS, nil)
	}
	if len(cfg.ScoringConsumer.Allowlist_GGen) > 0 {
		set.GGen = allowlist.New(cfg.ScoringConsumer.Allowlist_GGen, nil)
	}
	if len(cfg.ScoringConsumer.Allowlist_Canonical) > 0 {
		set.Canonical = allowlist.New(cfg.ScoringConsumer.Allowlist_Canonical, nil)
	}
	if len(cfg.ScoringConsumer.Allowlist_SUSE) > 0 {
		set.SUSE = allowlist.New(cfg.ScoringConsumer.Allowlist_SUSE, nil)
	}
	return set, nil
}

// readLoop blocks on the scoring queue and forwards each line to
// records, decoupling broker latency from the batching loop (§5).
func readLoop(ctx context.Context, brk broker.Client, queueKey string, records chan<- string, lg *log.Logger) {
	defer close(records)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		v, ok, err := brk.Pop(ctx, queueKey, time.Second)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			lg.Warn("scoring queue pop failed", log.KVErr(err))
			continue
		}
		if !ok {
			continue
		}
		select {
		case records <- v:
		case <-ctx.Done():
			return
		}
	}
}

// batchLoop accumulates lines off records into batches of up to the
// configured batch size, flushing early on a timeout so low-traffic
// periods don't stall scoring indefinitely (§5).
func batchLoop(ctx context.Context, cfg *config.ScoringConsumerConfig, records <-chan string, store *featurestore.Store, predictor featurestore.Predictor, allowed scoring.AllowlistSet, attackLog *os.File, lg *log.Logger) {
	timeout, _ := cfg.BatchTimeout()
	batch := make([]string, 0, cfg.ScoringConsumer.Batch_Size)
	t := time.NewTimer(timeout)
	defer t.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		scoreBatch(batch, store, predictor, allowed, attackLog, lg)
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return
		case line, ok := <-records:
			if !ok {
				flush()
				return
			}
			batch = append(batch, line)
			if len(batch) >= cfg.ScoringConsumer.Batch_Size {
				flush()
				if !t.Stop() {
					<-t.C
				}
				t.Reset(timeout)
			}
		case <-t.C:
			flush()
			t.Reset(timeout)
		}
	}
}

// scoreBatch decodes, vectorizes, scores, and classifies one batch,
// emitting a verdict line per row and appending non-allow-listed
// attacks to the attack log (§4.4/§7).
func scoreBatch(lines []string, store *featurestore.Store, predictor featurestore.Predictor, allowed scoring.AllowlistSet, attackLog *os.File, lg *log.Logger) {
	rows := make([]scoring.Row, 0, len(lines))
	vectors := make([][]float64, 0, len(lines))
	for _, line := range lines {
		row, err := scoring.DecodeCSVLine(line)
		if err != nil {
			lg.Warn("failed to decode scoring line, skipping", log.KVErr(err))
			continue
		}
		vec, err := scoring.Vectorize(row, store)
		if err != nil {
			lg.Warn("failed to vectorize scoring row, skipping", log.KVErr(err))
			continue
		}
		rows = append(rows, row)
		vectors = append(vectors, vec)
	}
	if len(vectors) == 0 {
		return
	}

	probs, err := predictor.PredictProba(vectors)
	if err != nil {
		lg.Error("predictor call failed, dropping batch", log.KVErr(err))
		return
	}
	if len(probs) != len(rows) {
		lg.Error("predictor returned mismatched row count, dropping batch", log.KV("expected", len(rows)), log.KV("got", len(probs)))
		return
	}

	for i, row := range rows {
		v := scoring.Classify(row.String("saddr"), row.String("daddr"), row.Int("sport"), row.Int("dsport"), probs[i], allowed)
		emitVerdict(v, attackLog, lg)
	}
}

func emitVerdict(v scoring.Verdict, attackLog *os.File, lg *log.Logger) {
	switch v.Tag {
	case scoring.TagCritical:
		fmt.Fprintln(os.Stderr, v.Line())
	default:
		// TagWarning, TagIgnored, and the normal (✅) case all print to
		// stdout; only the attack-log append is suppressed for
		// allow-listed attacks, not the verdict line itself.
		fmt.Fprintln(os.Stdout, v.Line())
	}

	if v.IsAttack && v.Tag != scoring.TagIgnored && attackLog != nil {
		if _, err := fmt.Fprintln(attackLog, v.AttackLogLine()); err != nil {
			lg.Warn("failed to append attack log", log.KVErr(err))
		}
	}
}
