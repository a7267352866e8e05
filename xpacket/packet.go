package xpacket

import "encoding/binary"

// Kind 包类型. wire上是2字节小端
type Kind uint16

const (
	KindCustom Kind = 0x63 // 用户发的包
	KindSystem Kind = 0x73 // 协议内部包
)

func (k Kind) String() string {
	switch k {
	case KindCustom:
		return "CUSTOM"
	case KindSystem:
		return "SYSTEM"
	default:
		return "UNKNOWN"
	}
}

// Valid reports whether k is one of the two known kinds.
func (k Kind) Valid() bool {
	return k == KindCustom || k == KindSystem
}

// SYSTEM包payload的第一个字节. server发出的是奇数, client发出的是偶数
const (
	InfoReceivedIDWell    uint8 = 0x00 // client -> server
	InfoClientIDSend      uint8 = 0x01 // server -> client, 后跟 uint32 id
	InfoDisconnectRequest uint8 = 0x02 // client -> server
	InfoServerHasStopped  uint8 = 0x03 // server -> client
)

const (
	ServerID      uint32 = 0          // server端固定id, 不进id池
	UnassignedID  uint32 = 0xffffffff // client拿到id之前
	HeaderSize           = 6          // kind(2) + sourceID(4)
	kindSize             = 2
	sourceIDSize         = 4
	DefaultPort          = 12345
	DefaultBufLen        = 1024
)

// Encode 拼出一帧: kind + sourceID + payload
func Encode(kind Kind, sourceID uint32, payload []byte) []byte {
	frame := make([]byte, HeaderSize+len(payload))
	binary.LittleEndian.PutUint16(frame[:kindSize], uint16(kind))
	binary.LittleEndian.PutUint32(frame[kindSize:HeaderSize], sourceID)
	copy(frame[HeaderSize:], payload)
	return frame
}

// Decode 拆帧. n是实际收到的字节数, 返回的payload引用frame的内存
func Decode(frame []byte, n int) (Kind, uint32, []byte, error) {
	if n < HeaderSize {
		return 0, 0, nil, ErrFrameTooShort
	}
	if n > len(frame) {
		return 0, 0, nil, ErrFrameTooShort
	}
	kind := Kind(binary.LittleEndian.Uint16(frame[:kindSize]))
	sourceID := binary.LittleEndian.Uint32(frame[kindSize:HeaderSize])
	return kind, sourceID, frame[HeaderSize:n], nil
}

// DecodePacket decodes a frame into a ReadablePacket whose payload is copied
// out of frame, so the caller may clear and reuse its read buffer.
func DecodePacket(frame []byte, n int, maxPayload int) (*ReadablePacket, error) {
	kind, sourceID, payload, err := Decode(frame, n)
	if err != nil {
		return nil, err
	}
	data := make([]byte, len(payload))
	copy(data, payload)
	return NewReadablePacket(kind, sourceID, data, maxPayload)
}

// ---------------- 系统包 ----------------

// NewSystemPacket 创建一个SYSTEM包, 第一个字节写入控制码
func NewSystemPacket(info uint8) *WritablePacket {
	pk := newWritablePacket(KindSystem)
	pk.WriteUint8(info)
	return pk
}

// ClientIDSendFrame server下发id
func ClientIDSendFrame(id uint32) []byte {
	pk := NewSystemPacket(InfoClientIDSend)
	pk.WriteUint32(id)
	return pk.Frame(ServerID)
}

// ReceivedIDWellFrame client确认收到id
func ReceivedIDWellFrame(id uint32) []byte {
	return NewSystemPacket(InfoReceivedIDWell).Frame(id)
}

func DisconnectRequestFrame(id uint32) []byte {
	return NewSystemPacket(InfoDisconnectRequest).Frame(id)
}

func ServerHasStoppedFrame() []byte {
	return NewSystemPacket(InfoServerHasStopped).Frame(ServerID)
}
