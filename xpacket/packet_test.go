package xpacket

import (
	"bytes"
	"testing"

	"github.com/gogo/protobuf/types"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []struct {
		name     string
		kind     Kind
		sourceID uint32
		payload  []byte
	}{
		{"system empty", KindSystem, ServerID, nil},
		{"custom small", KindCustom, 7, []byte("hello")},
		{"custom max id", KindCustom, 0xfffffffe, []byte{0, 1, 2, 3}},
		{"custom full buffer", KindCustom, 3, bytes.Repeat([]byte{0xab}, DefaultBufLen-HeaderSize)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			frame := Encode(tc.kind, tc.sourceID, tc.payload)
			require.Len(t, frame, HeaderSize+len(tc.payload))

			kind, src, payload, err := Decode(frame, len(frame))
			require.NoError(t, err)
			assert.Equal(t, tc.kind, kind)
			assert.Equal(t, tc.sourceID, src)
			assert.Equal(t, len(tc.payload), len(payload))
			if len(tc.payload) > 0 {
				assert.Equal(t, tc.payload, payload)
			}
		})
	}
}

func TestWireLayout(t *testing.T) {
	frame := Encode(KindSystem, 0x01020304, []byte{0xee})
	assert.Equal(t, []byte{0x73, 0x00, 0x04, 0x03, 0x02, 0x01, 0xee}, frame)
}

func TestDecodeTooShort(t *testing.T) {
	_, _, _, err := Decode([]byte{0x63, 0, 1, 0, 0}, 5)
	assert.True(t, errors.Is(err, ErrFrameTooShort))

	// 声明长度大于实际buf
	_, _, _, err = Decode(make([]byte, 6), 10)
	assert.True(t, errors.Is(err, ErrFrameTooShort))
}

func TestDecodeUsesReceivedLength(t *testing.T) {
	buf := make([]byte, 64)
	frame := Encode(KindCustom, 9, []byte{1, 2, 3})
	copy(buf, frame)

	_, _, payload, err := Decode(buf, len(frame))
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, payload)
}

func TestDecodePacketCopiesPayload(t *testing.T) {
	buf := Encode(KindCustom, 2, []byte{9, 9})
	pk, err := DecodePacket(buf, len(buf), DefaultBufLen)
	require.NoError(t, err)
	for i := range buf {
		buf[i] = 0
	}
	assert.Equal(t, []byte{9, 9}, pk.Bytes())
	assert.Equal(t, uint32(2), pk.SourceID())
	assert.Equal(t, KindCustom, pk.Kind())
}

func TestReadableRejectsOversized(t *testing.T) {
	_, err := NewReadablePacket(KindCustom, 1, make([]byte, 17), 16)
	assert.True(t, errors.Is(err, ErrBufferOversized))

	pk, err := NewReadablePacket(KindCustom, 1, make([]byte, 16), 16)
	require.NoError(t, err)
	assert.Equal(t, 16, pk.Len())
}

func TestTypedRoundTrip(t *testing.T) {
	w := NewWritablePacket()
	w.WriteUint8(0xfe)
	w.WriteInt8(-3)
	w.WriteUint16(0xbeef)
	w.WriteInt16(-1234)
	w.WriteUint32(0xdeadbeef)
	w.WriteInt32(42)
	w.WriteUint64(1 << 60)
	w.WriteInt64(-1 << 40)
	w.WriteFloat32(1.5)
	w.WriteFloat64(-2.25)
	w.WriteBool(true)
	w.WriteChar('字')
	w.WriteString("héllo")
	w.WriteBytes([]byte{7, 8})

	frame := w.Frame(5)
	r, err := DecodePacket(frame, len(frame), DefaultBufLen)
	require.NoError(t, err)

	u8, _ := r.ReadUint8()
	i8, _ := r.ReadInt8()
	u16, _ := r.ReadUint16()
	i16, _ := r.ReadInt16()
	u32, _ := r.ReadUint32()
	i32, _ := r.ReadInt32()
	u64, _ := r.ReadUint64()
	i64, _ := r.ReadInt64()
	f32, _ := r.ReadFloat32()
	f64, _ := r.ReadFloat64()
	b, _ := r.ReadBool()
	c, _ := r.ReadChar()
	s, err := r.ReadString()
	require.NoError(t, err)
	bs, err := r.ReadBytes()
	require.NoError(t, err)

	assert.Equal(t, uint8(0xfe), u8)
	assert.Equal(t, int8(-3), i8)
	assert.Equal(t, uint16(0xbeef), u16)
	assert.Equal(t, int16(-1234), i16)
	assert.Equal(t, uint32(0xdeadbeef), u32)
	assert.Equal(t, int32(42), i32)
	assert.Equal(t, uint64(1<<60), u64)
	assert.Equal(t, int64(-1<<40), i64)
	assert.Equal(t, float32(1.5), f32)
	assert.Equal(t, -2.25, f64)
	assert.True(t, b)
	assert.Equal(t, uint16('字'), c)
	assert.Equal(t, "héllo", s)
	assert.Equal(t, []byte{7, 8}, bs)
	assert.Equal(t, 0, r.Remaining())
}

func TestReadUnderrunKeepsPosition(t *testing.T) {
	r, err := NewReadablePacket(KindCustom, 1, []byte{1, 2}, 0)
	require.NoError(t, err)

	_, err = r.ReadInt32()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBufferUnderrun))
	var ue *BufferUnderrunError
	require.True(t, errors.As(err, &ue))
	assert.Equal(t, "int32", ue.Type)
	assert.Equal(t, 0, r.Pos())

	v, err := r.ReadUint16()
	require.NoError(t, err)
	assert.Equal(t, uint16(0x0201), v)
}

func TestUndoRewindsOneRead(t *testing.T) {
	w := NewWritablePacket()
	w.WriteUint8(1)
	w.WriteString("ab")
	r, err := NewReadablePacket(KindCustom, 1, w.Bytes(), 0)
	require.NoError(t, err)

	_, _ = r.ReadUint8()
	s, err := r.ReadString()
	require.NoError(t, err)
	assert.Equal(t, "ab", s)
	r.Undo()
	assert.Equal(t, 1, r.Pos())
	// 只回退一次
	r.Undo()
	assert.Equal(t, 1, r.Pos())

	s, err = r.ReadString()
	require.NoError(t, err)
	assert.Equal(t, "ab", s)

	r.ResetRead()
	assert.Equal(t, 0, r.Pos())
}

func TestReadStringTruncated(t *testing.T) {
	w := NewWritablePacket()
	w.WriteInt32(10)
	w.WriteUint8('x')
	r, err := NewReadablePacket(KindCustom, 1, w.Bytes(), 0)
	require.NoError(t, err)

	_, err = r.ReadString()
	assert.True(t, errors.Is(err, ErrBufferUnderrun))
	assert.Equal(t, 0, r.Pos())
}

func TestInsert(t *testing.T) {
	w := NewWritablePacketFrom([]byte{1, 4})
	w.Insert(1, []byte{2, 3})
	assert.Equal(t, []byte{1, 2, 3, 4}, w.Bytes())
	w.Insert(99, []byte{5})
	assert.Equal(t, 5, w.Size())
}

func TestSystemFrames(t *testing.T) {
	frame := ClientIDSendFrame(1)
	pk, err := DecodePacket(frame, len(frame), 0)
	require.NoError(t, err)
	assert.Equal(t, KindSystem, pk.Kind())
	assert.Equal(t, ServerID, pk.SourceID())
	info, _ := pk.ReadUint8()
	id, _ := pk.ReadUint32()
	assert.Equal(t, InfoClientIDSend, info)
	assert.Equal(t, uint32(1), id)

	frame = ReceivedIDWellFrame(1)
	pk, err = DecodePacket(frame, len(frame), 0)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), pk.SourceID())
	info, _ = pk.ReadUint8()
	assert.Equal(t, InfoReceivedIDWell, info)
}

type vec3 struct {
	X, Y, Z float32
}

func (v *vec3) WriteData(pk *WritablePacket) {
	pk.WriteFloat32(v.X)
	pk.WriteFloat32(v.Y)
	pk.WriteFloat32(v.Z)
}

func (v *vec3) ReadData(pk *ReadablePacket) (err error) {
	if v.X, err = pk.ReadFloat32(); err != nil {
		return
	}
	if v.Y, err = pk.ReadFloat32(); err != nil {
		return
	}
	v.Z, err = pk.ReadFloat32()
	return
}

func TestNetworkData(t *testing.T) {
	w := NewWritablePacket()
	w.WriteData(&vec3{1, 2, 3})
	r, err := NewReadablePacket(KindCustom, 1, w.Bytes(), 0)
	require.NoError(t, err)

	var got vec3
	require.NoError(t, r.ReadData(&got))
	assert.Equal(t, vec3{1, 2, 3}, got)
}

func TestProtoMessage(t *testing.T) {
	w := NewWritablePacket()
	require.NoError(t, w.WriteMessage(&types.StringValue{Value: "ping"}))
	w.WriteUint8(9)
	r, err := NewReadablePacket(KindCustom, 1, w.Bytes(), 0)
	require.NoError(t, err)

	var msg types.StringValue
	require.NoError(t, r.ReadMessage(&msg))
	assert.Equal(t, "ping", msg.Value)
	tail, err := r.ReadUint8()
	require.NoError(t, err)
	assert.Equal(t, uint8(9), tail)
}
