package metrics

import (
	"github.com/kilianp07/teslamqtt/core/factory"
	coremetrics "github.com/kilianp07/teslamqtt/core/metrics"
)

// init registers built-in metrics sinks.
func init() {
	_ = coremetrics.RegisterMetricsSink("nop", func(map[string]any) (coremetrics.MetricsSink, error) {
		return coremetrics.NopSink{}, nil
	})

	_ = coremetrics.RegisterMetricsSink("prometheus", func(map[string]any) (coremetrics.MetricsSink, error) {
		// The listen address is consumed by StartPromServer, not by the sink.
		return NewPromSink()
	})

	_ = coremetrics.RegisterMetricsSink("influx", func(conf map[string]any) (coremetrics.MetricsSink, error) {
		var c InfluxConfig
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		return NewInfluxSinkWithFallback(c), nil
	})
}

// PromAddress returns the listen address of the first prometheus sink, if any.
func PromAddress(cfgs []factory.ModuleConfig) string {
	for _, c := range cfgs {
		if c.Type != "prometheus" {
			continue
		}
		var conf struct {
			Listen string `json:"listen"`
		}
		if err := factory.Decode(c.Conf, &conf); err != nil {
			return ""
		}
		if conf.Listen == "" {
			return ":9090"
		}
		return conf.Listen
	}
	return ""
}
