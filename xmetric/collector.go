package xmetric

import (
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/qixi7/xjustnet/xlog"
)

const (
	unknown        = "unknown"
	collectTimeout = 2 * time.Second
)

type labelConfig struct {
	host    string
	alias   string
	program string
}

// Gather 指标收集. scrape时向主循环要一个job, 主循环Run里Pull, 采集goroutine再Push
type Gather struct {
	labelConfig
	registry *prometheus.Registry
	newJob   func() MetricJob
	pullChan chan MetricJob
	pushChan chan MetricJob
	descMu   sync.Mutex
	descs    map[string]*prometheus.Desc
}

func NewGather(newJob func() MetricJob) *Gather {
	g := &Gather{
		registry: prometheus.NewRegistry(),
		newJob:   newJob,
		pullChan: make(chan MetricJob),
		pushChan: make(chan MetricJob, 4),
		descs:    make(map[string]*prometheus.Desc),
	}
	return g
}

// Init 注册采集器, 在设置完标签后调用
func (g *Gather) Init() {
	g.registry.MustRegister(newJobCollector(g))
	prometheus.WrapRegistererWith(g.defaultLabels(), g.registry).MustRegister(collectors.NewGoCollector())
}

func (g *Gather) Registry() *prometheus.Registry {
	return g.registry
}

func (g *Gather) Handler() http.Handler {
	return promhttp.HandlerFor(g.registry, promhttp.HandlerOpts{})
}

// Run 主循环每帧调用
func (g *Gather) Run(delta int64) {
	select {
	case job := <-g.pullChan:
		job.Pull()
		select {
		case g.pushChan <- job:
		default:
			return
		}
	default:
		return
	}
}

func (g *Gather) modGetDesc(name string, labels []string) *prometheus.Desc {
	namekey := name
	for _, v := range labels {
		namekey += "_" + v
	}
	g.descMu.Lock()
	defer g.descMu.Unlock()
	desc, ok := g.descs[namekey]
	if ok {
		return desc
	}
	desc = prometheus.NewDesc(name, name, labels, g.defaultLabels())
	g.descs[namekey] = desc
	return desc
}

func (g *Gather) PushGaugeMetric(ch chan<- prometheus.Metric, name string, value float64, labels []string, labelValues ...string) {
	desc := g.modGetDesc(name, labels)
	metric, err := prometheus.NewConstMetric(desc, prometheus.GaugeValue, value, labelValues...)
	if err != nil {
		xlog.Errorf("PushGaugeMetric, NewConstMetric err=%v", err)
		return
	}
	ch <- metric
}

func (g *Gather) PushCounterMetric(ch chan<- prometheus.Metric, name string, value float64, labels []string, labelValues ...string) {
	desc := g.modGetDesc(name, labels)
	metric, err := prometheus.NewConstMetric(desc, prometheus.CounterValue, value, labelValues...)
	if err != nil {
		xlog.Errorf("PushCounterMetric, NewConstMetric err=%v", err)
		return
	}
	ch <- metric
}

func (g *Gather) Host(host string) *Gather {
	g.host = host
	return g
}

func (g *Gather) Alias(alias string) *Gather {
	g.alias = alias
	return g
}

func (g *Gather) Program(program string) *Gather {
	g.program = program
	return g
}

func (g *Gather) defaultLabels() map[string]string {
	if len(g.program) == 0 {
		g.program = filepath.Base(os.Args[0])
	}
	if len(g.host) == 0 {
		g.host = LocalAddr()
		if g.host == unknown {
			g.host = getHostName()
		}
	}
	if len(g.alias) == 0 {
		g.alias = unknown
	}
	return map[string]string{"host": g.host, "alias": g.alias, "program": g.program}
}

// LocalAddr 第一个非回环的ipv4地址
func LocalAddr() string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return unknown
	}
	for _, addr := range addrs {
		if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() {
			if ipnet.IP.To4() != nil {
				return ipnet.IP.String()
			}
		}
	}
	return unknown
}

func getHostName() string {
	host, err := os.Hostname()
	if err != nil {
		return unknown
	}
	return host
}
