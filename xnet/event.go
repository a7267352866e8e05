package xnet

import (
	"github.com/qixi7/xjustnet/xpacket"
)

// 连接事件
const (
	eventStart = iota
	eventStop
	eventConnected
	eventDisconnected
	eventData

	defaultEvChanSize = 1024
	processBatch      = 1024
)

// ServerHandler 服务器事件回调. PostEvent模式下在调用ProcessEvent的goroutine执行, 否则在连接goroutine执行.
//
// 回调里可以调用Send, Broadcast, DisconnectClient, Addr, State和各种连接查询.
// 不要在回调里调用Start和Stop: OnStart在Start持有的锁里触发, Stop会等连接goroutine和事件投递结束.
type ServerHandler interface {
	OnStart(s *Server)
	OnStop(s *Server)
	OnConnected(s *Server, id uint32)
	OnDisconnected(s *Server, id uint32)
	OnData(s *Server, id uint32, pk *xpacket.ReadablePacket)
}

// ClientHandler 客户端事件回调
type ClientHandler interface {
	OnStart(c *Client)
	OnStop(c *Client)
	OnConnected(c *Client, id uint32)
	OnDisconnected(c *Client)
	OnData(c *Client, pk *xpacket.ReadablePacket)
}

// ServerHandlerFuncs 只关心部分事件时用, nil字段忽略
type ServerHandlerFuncs struct {
	Start        func(s *Server)
	Stop         func(s *Server)
	Connected    func(s *Server, id uint32)
	Disconnected func(s *Server, id uint32)
	Data         func(s *Server, id uint32, pk *xpacket.ReadablePacket)
}

func (h ServerHandlerFuncs) OnStart(s *Server) {
	if h.Start != nil {
		h.Start(s)
	}
}

func (h ServerHandlerFuncs) OnStop(s *Server) {
	if h.Stop != nil {
		h.Stop(s)
	}
}

func (h ServerHandlerFuncs) OnConnected(s *Server, id uint32) {
	if h.Connected != nil {
		h.Connected(s, id)
	}
}

func (h ServerHandlerFuncs) OnDisconnected(s *Server, id uint32) {
	if h.Disconnected != nil {
		h.Disconnected(s, id)
	}
}

func (h ServerHandlerFuncs) OnData(s *Server, id uint32, pk *xpacket.ReadablePacket) {
	if h.Data != nil {
		h.Data(s, id, pk)
	}
}

type ClientHandlerFuncs struct {
	Start        func(c *Client)
	Stop         func(c *Client)
	Connected    func(c *Client, id uint32)
	Disconnected func(c *Client)
	Data         func(c *Client, pk *xpacket.ReadablePacket)
}

func (h ClientHandlerFuncs) OnStart(c *Client) {
	if h.Start != nil {
		h.Start(c)
	}
}

func (h ClientHandlerFuncs) OnStop(c *Client) {
	if h.Stop != nil {
		h.Stop(c)
	}
}

func (h ClientHandlerFuncs) OnConnected(c *Client, id uint32) {
	if h.Connected != nil {
		h.Connected(c, id)
	}
}

func (h ClientHandlerFuncs) OnDisconnected(c *Client) {
	if h.Disconnected != nil {
		h.Disconnected(c)
	}
}

func (h ClientHandlerFuncs) OnData(c *Client, pk *xpacket.ReadablePacket) {
	if h.Data != nil {
		h.Data(c, pk)
	}
}

type netEvent struct {
	evType int
	id     uint32
	pk     *xpacket.ReadablePacket
}

// eventPoster post模式下事件入evChan, 否则直接分发
type eventPoster struct {
	postEvent bool
	evChan    chan netEvent
	dispatch  func(ev netEvent)
}

func newEventPoster(post bool, dispatch func(ev netEvent)) eventPoster {
	p := eventPoster{postEvent: post, dispatch: dispatch}
	if post {
		p.evChan = make(chan netEvent, defaultEvChanSize)
	}
	return p
}

func (p *eventPoster) post(ev netEvent) {
	if p.postEvent {
		p.evChan <- ev
	} else {
		p.dispatch(ev)
	}
}

// ProcessEvent (主线程)处理连接事件, 返回当前是否全部处理
func (p *eventPoster) ProcessEvent() bool {
	if !p.postEvent {
		return true
	}
	for i := 0; i < processBatch; i++ {
		select {
		case ev := <-p.evChan:
			p.dispatch(ev)
		default:
			return true
		}
	}
	return false
}

// EventChanLen 未处理的事件数
func (p *eventPoster) EventChanLen() int {
	return len(p.evChan)
}
