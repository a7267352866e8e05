package xpacket

import (
	"encoding/binary"
	"math"
)

// ReadablePacket is a decoded, immutable packet with a sequential read cursor.
// Every Read* advances by the exact encoded width of the value and remembers
// that width so Undo can rewind exactly one read.
type ReadablePacket struct {
	kind     Kind
	sourceID uint32
	data     []byte
	pos      int
	lastRead int
}

// NewReadablePacket wraps payload. A payload larger than maxPayload is
// rejected with ErrBufferOversized; maxPayload <= 0 disables the check.
func NewReadablePacket(kind Kind, sourceID uint32, payload []byte, maxPayload int) (*ReadablePacket, error) {
	if maxPayload > 0 && len(payload) > maxPayload {
		return nil, ErrBufferOversized
	}
	return &ReadablePacket{
		kind:     kind,
		sourceID: sourceID,
		data:     payload,
	}, nil
}

func (p *ReadablePacket) Kind() Kind {
	return p.kind
}

func (p *ReadablePacket) SourceID() uint32 {
	return p.sourceID
}

// Bytes 整个payload, 不受读位置影响
func (p *ReadablePacket) Bytes() []byte {
	return p.data
}

func (p *ReadablePacket) Len() int {
	return len(p.data)
}

// Remaining 还没读的字节数
func (p *ReadablePacket) Remaining() int {
	return len(p.data) - p.pos
}

func (p *ReadablePacket) Pos() int {
	return p.pos
}

// Undo 回退上一次读取
func (p *ReadablePacket) Undo() {
	p.pos -= p.lastRead
	p.lastRead = 0
}

func (p *ReadablePacket) ResetRead() {
	p.pos = 0
	p.lastRead = 0
}

// next 取n字节并前移. 不够时位置不变
func (p *ReadablePacket) next(n int, typ string) ([]byte, error) {
	if p.Remaining() < n {
		return nil, &BufferUnderrunError{Type: typ, Need: n, Remaining: p.Remaining()}
	}
	b := p.data[p.pos : p.pos+n]
	p.pos += n
	p.lastRead = n
	return b, nil
}

func (p *ReadablePacket) ReadUint8() (uint8, error) {
	b, err := p.next(1, "uint8")
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (p *ReadablePacket) ReadInt8() (int8, error) {
	b, err := p.next(1, "int8")
	if err != nil {
		return 0, err
	}
	return int8(b[0]), nil
}

func (p *ReadablePacket) ReadUint16() (uint16, error) {
	b, err := p.next(2, "uint16")
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (p *ReadablePacket) ReadInt16() (int16, error) {
	b, err := p.next(2, "int16")
	if err != nil {
		return 0, err
	}
	return int16(binary.LittleEndian.Uint16(b)), nil
}

func (p *ReadablePacket) ReadUint32() (uint32, error) {
	b, err := p.next(4, "uint32")
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (p *ReadablePacket) ReadInt32() (int32, error) {
	b, err := p.next(4, "int32")
	if err != nil {
		return 0, err
	}
	return int32(binary.LittleEndian.Uint32(b)), nil
}

func (p *ReadablePacket) ReadUint64() (uint64, error) {
	b, err := p.next(8, "uint64")
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (p *ReadablePacket) ReadInt64() (int64, error) {
	b, err := p.next(8, "int64")
	if err != nil {
		return 0, err
	}
	return int64(binary.LittleEndian.Uint64(b)), nil
}

func (p *ReadablePacket) ReadFloat32() (float32, error) {
	b, err := p.next(4, "float32")
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(binary.LittleEndian.Uint32(b)), nil
}

func (p *ReadablePacket) ReadFloat64() (float64, error) {
	b, err := p.next(8, "float64")
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(b)), nil
}

func (p *ReadablePacket) ReadBool() (bool, error) {
	b, err := p.next(1, "bool")
	if err != nil {
		return false, err
	}
	return b[0] != 0, nil
}

// ReadChar 读一个UTF-16 code unit
func (p *ReadablePacket) ReadChar() (uint16, error) {
	b, err := p.next(2, "char")
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (p *ReadablePacket) ReadString() (string, error) {
	b, err := p.readPrefixed("string")
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ReadBytes 返回的slice是payload的拷贝
func (p *ReadablePacket) ReadBytes() ([]byte, error) {
	b, err := p.readPrefixed("bytes")
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out, nil
}

// readPrefixed 读 长度+内容, 作为一次读取记录, Undo会整体回退
func (p *ReadablePacket) readPrefixed(typ string) ([]byte, error) {
	if p.Remaining() < 4 {
		return nil, &BufferUnderrunError{Type: typ, Need: 4, Remaining: p.Remaining()}
	}
	n := int32(binary.LittleEndian.Uint32(p.data[p.pos:]))
	if n < 0 {
		return nil, ErrInvalidString
	}
	total := 4 + int(n)
	if p.Remaining() < total {
		return nil, &BufferUnderrunError{Type: typ, Need: total, Remaining: p.Remaining()}
	}
	b := p.data[p.pos+4 : p.pos+total]
	p.pos += total
	p.lastRead = total
	return b, nil
}

// ReadData 用户自定义结构
func (p *ReadablePacket) ReadData(d NetworkData) error {
	return d.ReadData(p)
}
