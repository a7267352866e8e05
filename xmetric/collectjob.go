package xmetric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricJob Pull在主循环里取数据, Push在采集goroutine里输出
type MetricJob interface {
	Pull()
	Push(g *Gather, ch chan<- prometheus.Metric)
}

// 不Describe任何desc, 作为unchecked collector注册
type jobCollector struct {
	gather *Gather
}

func newJobCollector(g *Gather) *jobCollector {
	return &jobCollector{gather: g}
}

func (c *jobCollector) Describe(ch chan<- *prometheus.Desc) {
}

func (c *jobCollector) Collect(ch chan<- prometheus.Metric) {
	if c.gather.newJob == nil {
		return
	}
	timer := time.NewTimer(collectTimeout)
	defer timer.Stop()
	select {
	case c.gather.pullChan <- c.gather.newJob():
	case <-timer.C:
		return
	}
	select {
	case job := <-c.gather.pushChan:
		job.Push(c.gather, ch)
	case <-timer.C:
	}
}

// JobList 多个job合成一个, 按顺序Pull/Push
type JobList []MetricJob

func (l JobList) Pull() {
	for _, job := range l {
		job.Pull()
	}
}

func (l JobList) Push(g *Gather, ch chan<- prometheus.Metric) {
	for _, job := range l {
		job.Push(g, ch)
	}
}
