package xpacket

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrFrameTooShort   = errors.New("xpacket: frame shorter than header")
	ErrBufferOversized = errors.New("xpacket: payload exceeds read buffer size")
	ErrBufferUnderrun  = errors.New("xpacket: buffer underrun")
	ErrInvalidString   = errors.New("xpacket: invalid string length")
)

// BufferUnderrunError 读取越界. errors.Is(err, ErrBufferUnderrun) 为 true
type BufferUnderrunError struct {
	Type      string
	Need      int
	Remaining int
}

func (e *BufferUnderrunError) Error() string {
	return fmt.Sprintf("xpacket: unable to read value of type %s: need %d bytes, %d remaining",
		e.Type, e.Need, e.Remaining)
}

func (e *BufferUnderrunError) Is(target error) bool {
	return target == ErrBufferUnderrun
}
