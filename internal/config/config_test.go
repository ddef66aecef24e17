package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConf(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "test.conf")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestLoadFlowAdapterConfig_AppliesDefaultsAndParsesFieldOrder(t *testing.T) {
	path := writeConf(t, `
[Global]
Broker-Address=127.0.0.1:6379

[FlowAdapter]
Flow-Log-Path=/var/log/argus/flows.csv
Field-Order=saddr
Field-Order=sport
Field-Order=daddr
Field-Order=dport
`)
	cfg, err := LoadFlowAdapterConfig(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"saddr", "sport", "daddr", "dport"}, cfg.FieldOrder())
	assert.Equal(t, "flow_queue", cfg.FlowAdapter.Flow_Queue_Key, "default queue key applied when unset")
}

func TestLoadFlowAdapterConfig_MissingLogPathFails(t *testing.T) {
	path := writeConf(t, `
[Global]
Broker-Address=127.0.0.1:6379

[FlowAdapter]
Field-Order=saddr
`)
	_, err := LoadFlowAdapterConfig(path)
	require.Error(t, err)
}

func TestLoadFlowAdapterConfig_MalformedBrokerAddressFails(t *testing.T) {
	path := writeConf(t, `
[Global]
Broker-Address=not-a-host-port

[FlowAdapter]
Flow-Log-Path=/var/log/argus/flows.csv
`)
	_, err := LoadFlowAdapterConfig(path)
	require.Error(t, err)
}

func TestScoringConsumerConfig_BatchTimeoutDefaultsAndOverrides(t *testing.T) {
	var c ScoringConsumerConfig
	d, err := c.BatchTimeout()
	require.NoError(t, err)
	assert.Equal(t, int64(500_000_000), d.Nanoseconds())

	c.ScoringConsumer.Batch_Timeout = "2s"
	d, err = c.BatchTimeout()
	require.NoError(t, err)
	assert.Equal(t, int64(2_000_000_000), d.Nanoseconds())
}

func TestScoringConsumerConfig_AllowlistRefreshDefault(t *testing.T) {
	var c ScoringConsumerConfig
	d, err := c.AllowlistRefresh()
	require.NoError(t, err)
	assert.Equal(t, "24h0m0s", d.String())
}

func TestLoadScoringConsumerConfig_AcceleratorBackendRequiresAddress(t *testing.T) {
	path := writeConf(t, `
[Global]
Broker-Address=127.0.0.1:6379

[ScoringConsumer]
Feature-Order-Path=/etc/fusion/feature_order.json
Model-Path=/etc/fusion/model.json
Predictor-Backend=accelerator
`)
	_, err := LoadScoringConsumerConfig(path)
	require.Error(t, err)
}

func TestLoadScoringConsumerConfig_DefaultsToCPUBackend(t *testing.T) {
	path := writeConf(t, `
[Global]
Broker-Address=127.0.0.1:6379

[ScoringConsumer]
Feature-Order-Path=/etc/fusion/feature_order.json
Model-Path=/etc/fusion/model.json
`)
	cfg, err := LoadScoringConsumerConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "cpu", cfg.ScoringConsumer.Predictor_Backend)
	assert.Equal(t, 1024, cfg.ScoringConsumer.Batch_Size)
}

func TestGlobal_VerifyRejectsMissingOrMalformedBrokerAddress(t *testing.T) {
	assert.Error(t, Global{}.Verify())
	assert.Error(t, Global{Broker_Address: "no-port"}.Verify())
	assert.NoError(t, Global{Broker_Address: "127.0.0.1:6379"}.Verify())
}
