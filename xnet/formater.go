package xnet

import (
	"encoding/binary"

	"github.com/qixi7/xjustnet/xconfig"
)

var (
	LE4ByteHead LE4ByteHeader
	BE4ByteHead BE4ByteHeader
)

// HeadFormater 流上每个frame前的长度头
type HeadFormater interface {
	HeadLen() int
	Encode([]byte, int)
	Decode([]byte) int
}

// LE4ByteHeader little endian, four bytes head. 默认
type LE4ByteHeader struct {
}

func (header *LE4ByteHeader) HeadLen() int {
	return 4
}

func (header *LE4ByteHeader) Encode(h []byte, size int) {
	binary.LittleEndian.PutUint32(h, uint32(size))
}

func (header *LE4ByteHeader) Decode(h []byte) int {
	return int(binary.LittleEndian.Uint32(h))
}

// BE4ByteHeader big endian, four bytes head. for client with gateway
type BE4ByteHeader struct {
}

func (header *BE4ByteHeader) HeadLen() int {
	return 4
}

func (header *BE4ByteHeader) Encode(h []byte, size int) {
	binary.BigEndian.PutUint32(h, uint32(size))
}

func (header *BE4ByteHeader) Decode(h []byte) int {
	return int(binary.BigEndian.Uint32(h))
}

// NewHeadFormater 按配置名取包头格式, 未知名字退回LE
func NewHeadFormater(name string) HeadFormater {
	if name == xconfig.HeaderBE4 {
		return &BE4ByteHead
	}
	return &LE4ByteHead
}
