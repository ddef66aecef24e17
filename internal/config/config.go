// Package config defines the gcfg-based configuration structs for the
// four commands, following the teacher's INI-style "Global" + named
// subsections idiom (capitalized-underscore field names map 1:1 onto
// INI keys written Like-This).
package config

import (
	"errors"
	"fmt"
	"net"
	"time"

	"gopkg.in/gcfg.v1"
)

// Global holds settings shared by every command: logging, and the
// Redis broker connection every command dials into.
type Global struct {
	Log_Level       string
	Log_File        string
	Broker_Address  string
	Broker_Password string
	Broker_DB       int
}

func (g Global) Verify() error {
	if g.Broker_Address == "" {
		return errors.New("missing Broker-Address")
	}
	if _, _, err := net.SplitHostPort(g.Broker_Address); err != nil {
		return fmt.Errorf("invalid Broker-Address %q: %w", g.Broker_Address, err)
	}
	return nil
}

// FlowAdapterConfig is read by cmd/flowadapter, from a "[FlowAdapter]"
// section alongside "[Global]".
type FlowAdapterConfig struct {
	Global      Global
	FlowAdapter struct {
		Flow_Log_Path  string
		Flow_Queue_Key string
		Field_Order    []string
		Max_Key_Age    string // accepted but not read by any command; cache lookups are never time-windowed
	}
}

// FieldOrder returns the configured column order.
func (c FlowAdapterConfig) FieldOrder() []string {
	return c.FlowAdapter.Field_Order
}

func LoadFlowAdapterConfig(path string) (*FlowAdapterConfig, error) {
	c := new(FlowAdapterConfig)
	if err := gcfg.ReadFileInto(c, path); err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if err := c.Global.Verify(); err != nil {
		return nil, err
	}
	if c.FlowAdapter.Flow_Log_Path == "" {
		return nil, errors.New("missing FlowAdapter.Flow-Log-Path")
	}
	if c.FlowAdapter.Flow_Queue_Key == "" {
		c.FlowAdapter.Flow_Queue_Key = "flow_queue"
	}
	return c, nil
}

// ProtoAdapterConfig is read by cmd/protoadapter, from a
// "[ProtoAdapter]" section alongside "[Global]".
type ProtoAdapterConfig struct {
	Global       Global
	ProtoAdapter struct {
		Conn_Log_Path   string
		HTTP_Log_Path   string
		FTP_Log_Path    string
		Proto_Queue_Key string
	}
}

func LoadProtoAdapterConfig(path string) (*ProtoAdapterConfig, error) {
	c := new(ProtoAdapterConfig)
	if err := gcfg.ReadFileInto(c, path); err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if err := c.Global.Verify(); err != nil {
		return nil, err
	}
	pa := &c.ProtoAdapter
	if pa.Conn_Log_Path == "" && pa.HTTP_Log_Path == "" && pa.FTP_Log_Path == "" {
		return nil, errors.New("at least one of ProtoAdapter.Conn-Log-Path, HTTP-Log-Path, FTP-Log-Path is required")
	}
	if pa.Proto_Queue_Key == "" {
		pa.Proto_Queue_Key = "protocol_queue"
	}
	return c, nil
}

// FusionEngineConfig is read by cmd/fusionengine, from a
// "[FusionEngine]" section alongside "[Global]".
type FusionEngineConfig struct {
	Global       Global
	FusionEngine struct {
		Flow_Queue_Key           string
		Proto_Queue_Key          string
		Scoring_Queue_Key        string
		Cache_Capacity           int
		History_Size             int
		Durability_Root          string
		Flush_Each_Write         bool
		Counter_Compact_Interval string // optional duration; empty disables
	}
}

func LoadFusionEngineConfig(path string) (*FusionEngineConfig, error) {
	c := new(FusionEngineConfig)
	if err := gcfg.ReadFileInto(c, path); err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if err := c.Global.Verify(); err != nil {
		return nil, err
	}
	fe := &c.FusionEngine
	if fe.Flow_Queue_Key == "" {
		fe.Flow_Queue_Key = "flow_queue"
	}
	if fe.Proto_Queue_Key == "" {
		fe.Proto_Queue_Key = "protocol_queue"
	}
	if fe.Scoring_Queue_Key == "" {
		fe.Scoring_Queue_Key = "scoring_queue"
	}
	if fe.Cache_Capacity <= 0 {
		fe.Cache_Capacity = 100_000
	}
	if fe.History_Size <= 0 {
		fe.History_Size = 100
	}
	if fe.Durability_Root == "" {
		return nil, errors.New("missing FusionEngine.Durability-Root")
	}
	return c, nil
}

// ScoringConsumerConfig is read by cmd/scoringconsumer, from a
// "[ScoringConsumer]" section alongside "[Global]".
type ScoringConsumerConfig struct {
	Global          Global
	ScoringConsumer struct {
		Scoring_Queue_Key   string
		Batch_Size          int
		Batch_Timeout       string // duration, e.g. "500ms"
		Feature_Order_Path  string
		Category_Map_Dir    string
		Model_Path          string
		Predictor_Backend   string // "cpu" or "accelerator"
		Accelerator_Address string // only used when Predictor-Backend=accelerator
		Allowlist_GCloud    []string
		Allowlist_AWS       []string
		Allowlist_GGen      []string
		Allowlist_Canonical []string
		Allowlist_SUSE      []string
		Allowlist_Refresh   string // duration, e.g. "24h"
		Attack_Log_Path     string
	}
}

func (c ScoringConsumerConfig) BatchTimeout() (time.Duration, error) {
	if c.ScoringConsumer.Batch_Timeout == "" {
		return 500 * time.Millisecond, nil
	}
	return time.ParseDuration(c.ScoringConsumer.Batch_Timeout)
}

func (c ScoringConsumerConfig) AllowlistRefresh() (time.Duration, error) {
	if c.ScoringConsumer.Allowlist_Refresh == "" {
		return 24 * time.Hour, nil
	}
	return time.ParseDuration(c.ScoringConsumer.Allowlist_Refresh)
}

func LoadScoringConsumerConfig(path string) (*ScoringConsumerConfig, error) {
	c := new(ScoringConsumerConfig)
	if err := gcfg.ReadFileInto(c, path); err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if err := c.Global.Verify(); err != nil {
		return nil, err
	}
	sc := &c.ScoringConsumer
	if sc.Scoring_Queue_Key == "" {
		sc.Scoring_Queue_Key = "scoring_queue"
	}
	if sc.Batch_Size <= 0 {
		sc.Batch_Size = 1024
	}
	if _, err := c.BatchTimeout(); err != nil {
		return nil, fmt.Errorf("invalid ScoringConsumer.Batch-Timeout: %w", err)
	}
	if sc.Feature_Order_Path == "" {
		return nil, errors.New("missing ScoringConsumer.Feature-Order-Path")
	}
	if sc.Model_Path == "" {
		return nil, errors.New("missing ScoringConsumer.Model-Path")
	}
	switch sc.Predictor_Backend {
	case "", "cpu":
		sc.Predictor_Backend = "cpu"
	case "accelerator":
		if sc.Accelerator_Address == "" {
			return nil, errors.New("Predictor-Backend=accelerator requires ScoringConsumer.Accelerator-Address")
		}
	default:
		return nil, fmt.Errorf("unknown ScoringConsumer.Predictor-Backend %q", sc.Predictor_Backend)
	}
	return c, nil
}
