package xconsul

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/hashicorp/consul/api"
	"github.com/pkg/errors"

	"github.com/qixi7/xjustnet/xconfig"
	"github.com/qixi7/xjustnet/xlog"
)

var ErrNoConsul = errors.New("xconsul: consul http address not configured")

type ConsulClient struct {
	HttpAddr    string // consul agent地址: ip:port 或 http://ip:port
	Addr        string
	Port        int
	ServiceID   string
	ServiceName string
	Tags        []string
	Checks      api.AgentServiceChecks
	Client      *api.Client
	Cfg         *api.Config
}

// --------------------- func -----------------------

// consul client service check config
func AgentServiceCheckString(check *api.AgentServiceCheck, kv map[string]string) *api.AgentServiceCheck {
	if len(kv) == 0 {
		return nil
	}
	if check == nil {
		check = new(api.AgentServiceCheck)
	}

	for k, v := range kv {
		switch k {
		case "CheckID":
			check.CheckID = v
		case "Name":
			check.Name = v
		case "Interval":
			check.Interval = v
		case "TimeOut":
			check.Timeout = v
		case "TTL":
			check.TTL = v
		case "HTTP":
			check.HTTP = v
		case "TCP":
			check.TCP = v
		case "Status":
			check.Status = v
		case "Notes":
			check.Notes = v
		case "DeregisterCriticalServiceAfter":
			check.DeregisterCriticalServiceAfter = v
		}
	}

	return check
}

func AgentServiceChecksString(checks ...*api.AgentServiceCheck) api.AgentServiceChecks {
	var res api.AgentServiceChecks
	for _, c := range checks {
		if c != nil {
			res = append(res, c)
		}
	}
	return res
}

// NewServerClient 为监听在host:port的服务器生成注册信息.
// tcp服务器加TCP检查, 开了admin http时加/health检查
func NewServerClient(cfg *xconfig.Config, host string, port int) *ConsulClient {
	var checks []*api.AgentServiceCheck
	if cfg.Network == xconfig.NetworkTCP {
		checks = append(checks, AgentServiceCheckString(nil, map[string]string{
			"TCP":                            net.JoinHostPort(host, strconv.Itoa(port)),
			"Interval":                       "10s",
			"TimeOut":                        "2s",
			"DeregisterCriticalServiceAfter": "30s",
		}))
	}
	if cfg.Admin.Addr != "" {
		checks = append(checks, AgentServiceCheckString(nil, map[string]string{
			"HTTP":                           fmt.Sprintf("http://%s/health", cfg.Admin.Addr),
			"Interval":                       "10s",
			"DeregisterCriticalServiceAfter": "30s",
		}))
	}
	return &ConsulClient{
		HttpAddr:    cfg.Consul.HttpAddr,
		Addr:        host,
		Port:        port,
		ServiceID:   fmt.Sprintf("%s_%s_%d", cfg.Consul.ServiceName, host, port),
		ServiceName: cfg.Consul.ServiceName,
		Tags:        []string{cfg.Network, "v1"},
		Checks:      AgentServiceChecksString(checks...),
	}
}

func (p *ConsulClient) newConfig() *api.Config {
	res := api.DefaultConfig()
	res.WaitTime = time.Second
	res.Address = p.HttpAddr
	p.Cfg = res
	return res
}

func (p *ConsulClient) getConfig() *api.Config {
	if p.Cfg != nil {
		return p.Cfg
	}
	return p.newConfig()
}

func (p *ConsulClient) getClient() (*api.Client, error) {
	if p.Client != nil {
		return p.Client, nil
	}
	if p.HttpAddr == "" {
		return nil, ErrNoConsul
	}
	client, err := api.NewClient(p.getConfig())
	if err != nil {
		xlog.Errorf("ConsulClient.newClient, New client error=%v", err)
		return nil, err
	}
	p.Client = client
	return p.Client, nil
}

func (p *ConsulClient) SetServiceID(serviceID string) {
	p.ServiceID = serviceID
}

func (p *ConsulClient) Register() error {
	client, err := p.getClient()
	if err != nil {
		return err
	}
	reg := &api.AgentServiceRegistration{
		ID:      p.ServiceID,
		Name:    p.ServiceName,
		Tags:    p.Tags,
		Address: p.Addr,
		Port:    p.Port,
		Checks:  p.Checks,
	}
	if err = client.Agent().ServiceRegister(reg); err != nil {
		return errors.Wrapf(err, "register service %s", p.ServiceID)
	}
	xlog.InfoF("register service %s to %s ok", p.ServiceID, p.getConfig().Address)
	return nil
}

// 取消注册
func (p *ConsulClient) DeRegister() error {
	client, err := p.getClient()
	if err != nil {
		return err
	}
	if err = client.Agent().ServiceDeregister(p.ServiceID); err != nil {
		return errors.Wrapf(err, "deregister service %s", p.ServiceID)
	}
	xlog.InfoF("deregister service %s ok", p.ServiceID)
	return nil
}

// CateLogService 健康的服务实例, 客户端用来找服务器
func (p *ConsulClient) CateLogService(service string, tags []string) ([]*api.ServiceEntry, error) {
	client, err := p.getClient()
	if err != nil {
		return nil, err
	}
	serviceData, _, err := client.Health().ServiceMultipleTags(service, tags, true, &api.QueryOptions{})
	if err != nil {
		return nil, err
	}
	return serviceData, nil
}
