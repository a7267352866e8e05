package xpacket

import (
	"encoding/binary"
	"math"
)

// WritablePacket accumulates a payload through typed appends. The zero value
// is not usable; create one with NewWritablePacket or NewSystemPacket.
type WritablePacket struct {
	kind Kind
	buf  []byte
}

// NewWritablePacket 用户包
func NewWritablePacket() *WritablePacket {
	return newWritablePacket(KindCustom)
}

// NewWritablePacketFrom 用已有数据初始化一个用户包
func NewWritablePacketFrom(data []byte) *WritablePacket {
	pk := newWritablePacket(KindCustom)
	pk.buf = append(pk.buf, data...)
	return pk
}

func newWritablePacket(kind Kind) *WritablePacket {
	return &WritablePacket{kind: kind, buf: make([]byte, 0, 64)}
}

func (p *WritablePacket) Kind() Kind {
	return p.kind
}

// Size 当前payload长度
func (p *WritablePacket) Size() int {
	return len(p.buf)
}

// Bytes returns a copy of the payload written so far.
func (p *WritablePacket) Bytes() []byte {
	out := make([]byte, len(p.buf))
	copy(out, p.buf)
	return out
}

// Frame 编码成wire帧
func (p *WritablePacket) Frame(sourceID uint32) []byte {
	return Encode(p.kind, sourceID, p.buf)
}

// Insert 在index处插入数据. index越界时追加到尾部
func (p *WritablePacket) Insert(index int, data []byte) {
	if index < 0 || index >= len(p.buf) {
		p.buf = append(p.buf, data...)
		return
	}
	p.buf = append(p.buf[:index], append(append([]byte{}, data...), p.buf[index:]...)...)
}

func (p *WritablePacket) WriteUint8(v uint8) {
	p.buf = append(p.buf, v)
}

func (p *WritablePacket) WriteInt8(v int8) {
	p.buf = append(p.buf, byte(v))
}

func (p *WritablePacket) WriteUint16(v uint16) {
	p.buf = binary.LittleEndian.AppendUint16(p.buf, v)
}

func (p *WritablePacket) WriteInt16(v int16) {
	p.WriteUint16(uint16(v))
}

func (p *WritablePacket) WriteUint32(v uint32) {
	p.buf = binary.LittleEndian.AppendUint32(p.buf, v)
}

func (p *WritablePacket) WriteInt32(v int32) {
	p.WriteUint32(uint32(v))
}

func (p *WritablePacket) WriteUint64(v uint64) {
	p.buf = binary.LittleEndian.AppendUint64(p.buf, v)
}

func (p *WritablePacket) WriteInt64(v int64) {
	p.WriteUint64(uint64(v))
}

func (p *WritablePacket) WriteFloat32(v float32) {
	p.WriteUint32(math.Float32bits(v))
}

func (p *WritablePacket) WriteFloat64(v float64) {
	p.WriteUint64(math.Float64bits(v))
}

func (p *WritablePacket) WriteBool(v bool) {
	if v {
		p.buf = append(p.buf, 1)
	} else {
		p.buf = append(p.buf, 0)
	}
}

// WriteChar 写一个UTF-16 code unit
func (p *WritablePacket) WriteChar(v uint16) {
	p.WriteUint16(v)
}

// WriteString 长度(int32) + UTF-8
func (p *WritablePacket) WriteString(v string) {
	p.WriteInt32(int32(len(v)))
	p.buf = append(p.buf, v...)
}

// WriteBytes 长度(int32) + 原始字节
func (p *WritablePacket) WriteBytes(v []byte) {
	p.WriteInt32(int32(len(v)))
	p.buf = append(p.buf, v...)
}

// WriteData 用户自定义结构
func (p *WritablePacket) WriteData(d NetworkData) {
	d.WriteData(p)
}
