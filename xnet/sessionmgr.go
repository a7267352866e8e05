package xnet

import (
	"sort"
	"sync"

	"go.uber.org/atomic"

	"github.com/qixi7/xjustnet/xcontainer/idpool"
)

// SessionMgr 客户端连接管理. id池, 已握手和握手中的连接都由同一把锁保护
type SessionMgr struct {
	mu              sync.Mutex
	pool            *idpool.Pool
	active          map[uint32]*Session
	pending         map[uint32]*Session
	freeSig         chan struct{} // 有id被释放时通知accept循环
	closing         bool          // Stop已取快照, 不再接纳和提升
	sessionTotalNum atomic.Uint64
}

func newSessionMgr(maxSessionNum uint32) *SessionMgr {
	return &SessionMgr{
		pool:    idpool.New(maxSessionNum),
		active:  make(map[uint32]*Session),
		pending: make(map[uint32]*Session),
		freeSig: make(chan struct{}, 1),
	}
}

// reset id池回到1..max, 清空注册表
func (m *SessionMgr) reset() {
	m.mu.Lock()
	m.pool.Reset()
	m.active = make(map[uint32]*Session)
	m.pending = make(map[uint32]*Session)
	m.closing = false
	m.mu.Unlock()
	select {
	case <-m.freeSig:
	default:
	}
}

func (m *SessionMgr) hasFreeID() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pool.Size() > 0
}

func (m *SessionMgr) signalFree() {
	select {
	case m.freeSig <- struct{}{}:
	default:
	}
}

// admit 取最小的空闲id并登记为握手中
func (m *SessionMgr) admit(s *Session) (uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closing {
		return 0, ErrNotRunning
	}
	id, err := m.pool.Acquire()
	if err != nil {
		return 0, err
	}
	s.setID(id)
	m.pending[id] = s
	return id, nil
}

// promote 握手完成, 从pending移到active. 连接已被关闭或正在停服时返回false
func (m *SessionMgr) promote(s *Session) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := s.ID()
	if m.closing || m.pending[id] != s {
		return false
	}
	delete(m.pending, id)
	m.active[id] = s
	m.sessionTotalNum.Inc()
	return true
}

// remove 删除注册并归还id, 返回它是否已握手完成
func (m *SessionMgr) remove(s *Session) (wasActive bool, removed bool) {
	id := s.ID()
	m.mu.Lock()
	if m.active[id] == s {
		delete(m.active, id)
		wasActive, removed = true, true
	} else if m.pending[id] == s {
		delete(m.pending, id)
		removed = true
	}
	if removed {
		m.pool.Release(id)
	}
	m.mu.Unlock()
	if removed {
		m.signalFree()
	}
	return
}

func (m *SessionMgr) GetSession(id uint32) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active[id]
}

func (m *SessionMgr) IsValidClient(id uint32) bool {
	return m.GetSession(id) != nil
}

func (m *SessionMgr) ConnectedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.active)
}

// Clients 已握手的id, 升序
func (m *SessionMgr) Clients() []uint32 {
	m.mu.Lock()
	ids := make([]uint32, 0, len(m.active))
	for id := range m.active {
		ids = append(ids, id)
	}
	m.mu.Unlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Sessions 已握手的连接, 按id升序
func (m *SessionMgr) Sessions() []*Session {
	m.mu.Lock()
	list := make([]*Session, 0, len(m.active))
	for _, s := range m.active {
		list = append(list, s)
	}
	m.mu.Unlock()
	sort.Slice(list, func(i, j int) bool { return list[i].ID() < list[j].ID() })
	return list
}

// closeAll 标记停服并一次取出已握手和握手中的连接, 之后promote都失败
func (m *SessionMgr) closeAll() (active []*Session, pending []*Session) {
	m.mu.Lock()
	m.closing = true
	active = make([]*Session, 0, len(m.active))
	for _, s := range m.active {
		active = append(active, s)
	}
	pending = make([]*Session, 0, len(m.pending))
	for _, s := range m.pending {
		pending = append(pending, s)
	}
	m.mu.Unlock()
	sort.Slice(active, func(i, j int) bool { return active[i].ID() < active[j].ID() })
	return
}

func (m *SessionMgr) FreeIDs() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pool.Size()
}

// IsFull 已握手的连接数达到上限
func (m *SessionMgr) IsFull() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return uint32(len(m.active)) >= m.pool.Max()
}

func (m *SessionMgr) SessionTotalNum() uint64 {
	return m.sessionTotalNum.Load()
}
