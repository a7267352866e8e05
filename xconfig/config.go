// Package xconfig loads the engine configuration from toml or yaml files.
package xconfig

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"

	"github.com/qixi7/xjustnet/xlog"
	"github.com/qixi7/xjustnet/xpacket"
)

const (
	NetworkTCP = "tcp"
	NetworkKCP = "kcp"

	HeaderLE4 = "le4"
	HeaderBE4 = "be4"

	DefaultMaxConnections   = 5
	DefaultHandshakeRetries = 3
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultMaxFrameErrors   = 8
	DefaultQueueBufLen      = 64
)

var (
	ErrUnknownFormat = errors.New("xconfig: unknown config file format")
	ErrInvalid       = errors.New("xconfig: invalid config")
)

// Duration 让toml/yaml里可以写 "10s"
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	return d.UnmarshalText([]byte(s))
}

type AdminConfig struct {
	Addr string `toml:"addr" yaml:"addr"` // 空表示不开http
}

type ConsulConfig struct {
	HttpAddr    string `toml:"http_addr" yaml:"http_addr"` // 空表示不注册
	ServiceName string `toml:"service_name" yaml:"service_name"`
}

type Config struct {
	Network          string       `toml:"network" yaml:"network"`
	Host             string       `toml:"host" yaml:"host"`
	Port             int          `toml:"port" yaml:"port"`
	ReadBufferSize   int          `toml:"read_buffer_size" yaml:"read_buffer_size"`
	MaxConnections   uint32       `toml:"max_connections" yaml:"max_connections"`
	HandshakeRetries int          `toml:"handshake_retries" yaml:"handshake_retries"`
	HandshakeTimeout Duration     `toml:"handshake_timeout" yaml:"handshake_timeout"`
	IOTimeout        Duration     `toml:"io_timeout" yaml:"io_timeout"`
	MaxFrameErrors   int          `toml:"max_frame_errors" yaml:"max_frame_errors"`
	Header           string       `toml:"header" yaml:"header"`
	PostEvent        bool         `toml:"post_event" yaml:"post_event"`
	QueueBufLen      int          `toml:"queue_buf_len" yaml:"queue_buf_len"`
	Log              xlog.Config  `toml:"log" yaml:"log"`
	Admin            AdminConfig  `toml:"admin" yaml:"admin"`
	Consul           ConsulConfig `toml:"consul" yaml:"consul"`
}

// Default 默认配置: 端口12345, 读buf 1024, 最多5个连接
func Default() *Config {
	return &Config{
		Network:          NetworkTCP,
		Host:             "127.0.0.1",
		Port:             xpacket.DefaultPort,
		ReadBufferSize:   xpacket.DefaultBufLen,
		MaxConnections:   DefaultMaxConnections,
		HandshakeRetries: DefaultHandshakeRetries,
		HandshakeTimeout: Duration{DefaultHandshakeTimeout},
		MaxFrameErrors:   DefaultMaxFrameErrors,
		Header:           HeaderLE4,
		QueueBufLen:      DefaultQueueBufLen,
		Log:              xlog.DefaultConfig(),
		Consul:           ConsulConfig{ServiceName: "justnet"},
	}
}

// Load 读配置文件, 未写的字段保留默认值. 按扩展名选择toml或yaml
func Load(path string) (*Config, error) {
	cfg := Default()
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "xconfig: read %s", path)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err = toml.Decode(string(b), cfg); err != nil {
			return nil, errors.Wrapf(err, "xconfig: decode %s", path)
		}
	case ".yaml", ".yml":
		if err = yaml.Unmarshal(b, cfg); err != nil {
			return nil, errors.Wrapf(err, "xconfig: decode %s", path)
		}
	default:
		return nil, errors.Wrap(ErrUnknownFormat, path)
	}
	if err = cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 检查配置
func (c *Config) Validate() error {
	switch c.Network {
	case NetworkTCP, NetworkKCP:
	default:
		return errors.Wrapf(ErrInvalid, "unknown network %q", c.Network)
	}
	switch c.Header {
	case HeaderLE4, HeaderBE4:
	default:
		return errors.Wrapf(ErrInvalid, "unknown header %q", c.Header)
	}
	if c.Port < 0 || c.Port > 65535 {
		return errors.Wrapf(ErrInvalid, "port %d out of range", c.Port)
	}
	if c.ReadBufferSize < xpacket.HeaderSize {
		return errors.Wrapf(ErrInvalid, "read_buffer_size %d smaller than frame header", c.ReadBufferSize)
	}
	if c.MaxConnections < 1 {
		return errors.Wrap(ErrInvalid, "max_connections must be positive")
	}
	if c.HandshakeRetries < 0 || c.MaxFrameErrors < 0 {
		return errors.Wrap(ErrInvalid, "negative retry limit")
	}
	if c.HandshakeTimeout.Duration < 0 || c.IOTimeout.Duration < 0 {
		return errors.Wrap(ErrInvalid, "negative timeout")
	}
	return nil
}
