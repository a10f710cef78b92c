package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Namespace Prometheus 指标命名空间
const Namespace = "groupstack"

// Collector 把轮询器的数值型读数导出为 Prometheus gauge
type Collector struct {
	poller *Poller
	desc   *prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector 创建收集器
func NewCollector(poller *Poller) *Collector {
	return &Collector{
		poller: poller,
		desc: prometheus.NewDesc(
			prometheus.BuildFQName(Namespace, "layer", "attribute"),
			"Last valid value of a protocol layer attribute",
			[]string{"channel", "layer", "attribute"},
			nil,
		),
	}
}

// Describe 实现 prometheus.Collector
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.desc
}

// Collect 实现 prometheus.Collector，文本型读数被跳过
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for _, s := range c.poller.Samples() {
		f, ok := s.Value.Float64()
		if !ok {
			continue
		}
		m, err := prometheus.NewConstMetric(c.desc, prometheus.GaugeValue, f,
			s.Target.Channel, s.Target.Layer, s.Target.Attribute)
		if err != nil {
			logger.Warn("导出指标失败", "target", s.Target.String(), "err", err)
			continue
		}
		ch <- prometheus.NewMetricWithTimestamp(s.At, m)
	}
}

// NewRegistry 创建包含收集器与 Go 运行时指标的注册表
func NewRegistry(c *Collector) (*prometheus.Registry, error) {
	reg := prometheus.NewRegistry()
	if err := reg.Register(c); err != nil {
		return nil, err
	}
	if err := reg.Register(collectors.NewGoCollector()); err != nil {
		return nil, err
	}
	return reg, nil
}
