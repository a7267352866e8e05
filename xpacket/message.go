package xpacket

import (
	"github.com/gogo/protobuf/proto"
	"github.com/pkg/errors"
)

// NetworkData 用户自定义结构的序列化接口
type NetworkData interface {
	WriteData(pk *WritablePacket)
	ReadData(pk *ReadablePacket) error
}

// WriteMessage 写一个protobuf消息: 长度 + 编码后的字节
func (p *WritablePacket) WriteMessage(m proto.Message) error {
	b, err := proto.Marshal(m)
	if err != nil {
		return errors.Wrap(err, "xpacket: marshal message")
	}
	p.WriteBytes(b)
	return nil
}

// ReadMessage 读一个protobuf消息. 解码失败时读位置回退
func (p *ReadablePacket) ReadMessage(m proto.Message) error {
	b, err := p.readPrefixed("message")
	if err != nil {
		return err
	}
	if err := proto.Unmarshal(b, m); err != nil {
		p.Undo()
		return errors.Wrap(err, "xpacket: unmarshal message")
	}
	return nil
}
