package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/teslamqtt/core/factory"
	coremetrics "github.com/kilianp07/teslamqtt/core/metrics"
)

func TestBuiltinSinksRegistered(t *testing.T) {
	sink, err := coremetrics.NewMetricsSink([]factory.ModuleConfig{{Type: "nop"}})
	require.NoError(t, err)
	assert.IsType(t, coremetrics.NopSink{}, sink)

	sink, err = coremetrics.NewMetricsSink([]factory.ModuleConfig{{Type: "prometheus"}})
	require.NoError(t, err)
	assert.IsType(t, &PromSink{}, sink)

	_, err = coremetrics.NewMetricsSink([]factory.ModuleConfig{{Type: "influx", Conf: map[string]any{"timeout": "later"}}})
	assert.Error(t, err)
}

func TestPromAddress(t *testing.T) {
	assert.Empty(t, PromAddress(nil))
	assert.Equal(t, ":9090", PromAddress([]factory.ModuleConfig{{Type: "nop"}, {Type: "prometheus"}}))
	assert.Equal(t, "127.0.0.1:2112", PromAddress([]factory.ModuleConfig{{Type: "prometheus", Conf: map[string]any{"listen": "127.0.0.1:2112"}}}))
}
