package xnet

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/qixi7/xjustnet/xmetric"
)

// --------------- 性能收集 ---------------

// ServerMetric 一次采集的快照. Pull在主循环执行
type ServerMetric struct {
	srv             *Server
	State           float64
	EventChanLen    float64
	SessionNum      float64
	SessionTotalNum float64
	FreeIDs         float64
	HandshakeOK     float64
	HandshakeFail   float64
	FramesIn        float64
	FramesOut       float64
	BadFrames       float64
	Dropped         float64
	SendChanMaxLen  float64
	SendChanAvgLen  float64
	InFlightWrites  float64
}

func NewServerMetric(s *Server) *ServerMetric {
	return &ServerMetric{srv: s}
}

func (m *ServerMetric) Pull() {
	s := m.srv
	if s == nil {
		return
	}
	m.State = float64(s.State())
	m.EventChanLen = float64(s.EventChanLen())
	m.SessionTotalNum = float64(s.SessionTotalNum())
	m.FreeIDs = float64(s.FreeIDs())
	m.HandshakeOK = float64(s.stat.handshakeOK.Load())
	m.HandshakeFail = float64(s.stat.handshakeFail.Load())
	m.FramesIn = float64(s.stat.framesIn.Load())
	m.FramesOut = float64(s.stat.framesOut.Load())
	m.BadFrames = float64(s.stat.badFrames.Load())
	m.Dropped = float64(s.stat.dropped.Load())

	m.SendChanMaxLen, m.SendChanAvgLen, m.InFlightWrites = 0, 0, 0
	sessions := s.Sessions()
	m.SessionNum = float64(len(sessions))
	for _, sess := range sessions {
		chanLen := float64(sess.Pending())
		if m.SendChanMaxLen < chanLen {
			m.SendChanMaxLen = chanLen
		}
		m.SendChanAvgLen += chanLen
		if sess.InFlightWrite() {
			m.InFlightWrites++
		}
	}
	if m.SessionNum > 0 {
		m.SendChanAvgLen /= m.SessionNum
	}
}

func (m *ServerMetric) Push(gather *xmetric.Gather, ch chan<- prometheus.Metric) {
	netLabel := []string{"network"}
	network := "tcp"
	if m.srv != nil {
		network = m.srv.network()
	}
	gather.PushGaugeMetric(ch, "xjustnet_server_state", m.State, netLabel, network)
	gather.PushGaugeMetric(ch, "xjustnet_server_evenchan_len", m.EventChanLen, netLabel, network)
	gather.PushGaugeMetric(ch, "xjustnet_server_session_num", m.SessionNum, netLabel, network)
	gather.PushCounterMetric(ch, "xjustnet_server_session_totalnum", m.SessionTotalNum, netLabel, network)
	gather.PushGaugeMetric(ch, "xjustnet_server_free_ids", m.FreeIDs, netLabel, network)
	gather.PushCounterMetric(ch, "xjustnet_server_handshake_ok", m.HandshakeOK, netLabel, network)
	gather.PushCounterMetric(ch, "xjustnet_server_handshake_fail", m.HandshakeFail, netLabel, network)
	gather.PushCounterMetric(ch, "xjustnet_server_frames_in", m.FramesIn, netLabel, network)
	gather.PushCounterMetric(ch, "xjustnet_server_frames_out", m.FramesOut, netLabel, network)
	gather.PushCounterMetric(ch, "xjustnet_server_bad_frames", m.BadFrames, netLabel, network)
	gather.PushCounterMetric(ch, "xjustnet_server_dropped_packets", m.Dropped, netLabel, network)
	gather.PushGaugeMetric(ch, "xjustnet_server_sendchan_maxlen", m.SendChanMaxLen, netLabel, network)
	gather.PushGaugeMetric(ch, "xjustnet_server_sendchan_avglen", m.SendChanAvgLen, netLabel, network)
	gather.PushGaugeMetric(ch, "xjustnet_server_inflight_writes", m.InFlightWrites, netLabel, network)
}
