package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 指标注册表接口
type Metrics interface {
	// RegisterGauge 注册仪表盘指标
	RegisterGauge(name, help string, labels []string) (Gauge, error)

	// RegisterCounter 注册计数器指标
	RegisterCounter(name, help string, labels []string) (Counter, error)

	// RegisterHistogram 注册直方图指标
	RegisterHistogram(name, help string, labels []string, buckets []float64) (Histogram, error)

	// GetRegistry 获取 Prometheus 注册表
	GetRegistry() *prometheus.Registry

	// Handler 返回 Prometheus 文本格式的 HTTP 处理器
	Handler() http.Handler
}

// Gauge 仪表盘接口
type Gauge interface {
	// Set 设置值
	Set(value float64, labels ...string)

	// Inc 增加1
	Inc(labels ...string)

	// Dec 减少1
	Dec(labels ...string)

	// Add 增加值
	Add(value float64, labels ...string)

	// Delete 删除一组标签对应的序列
	Delete(labels ...string) bool
}

// Counter 计数器接口
type Counter interface {
	// Inc 增加1
	Inc(labels ...string)

	// Add 增加值
	Add(value float64, labels ...string)
}

// Histogram 直方图接口
type Histogram interface {
	// Observe 观察值
	Observe(value float64, labels ...string)
}

// metricsImpl Metrics接口的实现
type metricsImpl struct {
	namespace string
	registry  *prometheus.Registry
	mu        sync.Mutex

	// 存储已注册的指标
	gauges     map[string]*prometheus.GaugeVec
	counters   map[string]*prometheus.CounterVec
	histograms map[string]*prometheus.HistogramVec
}

// NewMetrics 创建新的指标注册表，所有指标名加上 namespace 前缀。
// 注册表同时包含 Go 运行时和进程指标。
func NewMetrics(namespace string) Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &metricsImpl{
		namespace:  namespace,
		registry:   registry,
		gauges:     make(map[string]*prometheus.GaugeVec),
		counters:   make(map[string]*prometheus.CounterVec),
		histograms: make(map[string]*prometheus.HistogramVec),
	}
}

// RegisterGauge 注册仪表盘指标
func (m *metricsImpl) RegisterGauge(name, help string, labels []string) (Gauge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.gauges[name]; exists {
		return nil, ErrMetricAlreadyRegistered
	}

	gauge := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: m.namespace,
			Name:      name,
			Help:      help,
		},
		labels,
	)

	if err := m.registry.Register(gauge); err != nil {
		return nil, err
	}

	m.gauges[name] = gauge
	return &gaugeImpl{gauge: gauge}, nil
}

// RegisterCounter 注册计数器指标
func (m *metricsImpl) RegisterCounter(name, help string, labels []string) (Counter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.counters[name]; exists {
		return nil, ErrMetricAlreadyRegistered
	}

	counter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Name:      name,
			Help:      help,
		},
		labels,
	)

	if err := m.registry.Register(counter); err != nil {
		return nil, err
	}

	m.counters[name] = counter
	return &counterImpl{counter: counter}, nil
}

// RegisterHistogram 注册直方图指标
func (m *metricsImpl) RegisterHistogram(name, help string, labels []string, buckets []float64) (Histogram, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.histograms[name]; exists {
		return nil, ErrMetricAlreadyRegistered
	}

	histogram := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: m.namespace,
			Name:      name,
			Help:      help,
			Buckets:   buckets,
		},
		labels,
	)

	if err := m.registry.Register(histogram); err != nil {
		return nil, err
	}

	m.histograms[name] = histogram
	return &histogramImpl{histogram: histogram}, nil
}

// GetRegistry 获取 Prometheus 注册表
func (m *metricsImpl) GetRegistry() *prometheus.Registry {
	return m.registry
}

func (m *metricsImpl) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// gaugeImpl Gauge接口的实现
type gaugeImpl struct {
	gauge *prometheus.GaugeVec
}

// Set 设置值
func (g *gaugeImpl) Set(value float64, labels ...string) {
	g.gauge.WithLabelValues(labels...).Set(value)
}

// Inc 增加1
func (g *gaugeImpl) Inc(labels ...string) {
	g.gauge.WithLabelValues(labels...).Inc()
}

// Dec 减少1
func (g *gaugeImpl) Dec(labels ...string) {
	g.gauge.WithLabelValues(labels...).Dec()
}

// Add 增加值
func (g *gaugeImpl) Add(value float64, labels ...string) {
	g.gauge.WithLabelValues(labels...).Add(value)
}

func (g *gaugeImpl) Delete(labels ...string) bool {
	return g.gauge.DeleteLabelValues(labels...)
}

// counterImpl Counter接口的实现
type counterImpl struct {
	counter *prometheus.CounterVec
}

// Inc 增加1
func (c *counterImpl) Inc(labels ...string) {
	c.counter.WithLabelValues(labels...).Inc()
}

// Add 增加值
func (c *counterImpl) Add(value float64, labels ...string) {
	c.counter.WithLabelValues(labels...).Add(value)
}

// histogramImpl Histogram接口的实现
type histogramImpl struct {
	histogram *prometheus.HistogramVec
}

// Observe 观察值
func (h *histogramImpl) Observe(value float64, labels ...string) {
	h.histogram.WithLabelValues(labels...).Observe(value)
}
