package discovery

import (
	"fmt"
	"net"
	"strconv"

	"github.com/google/uuid"
	consulapi "github.com/hashicorp/consul/api"
	"go.uber.org/zap"

	"github.com/fathima-sithara/marketplace-chat/internal/config"
)

type agent interface {
	ServiceRegister(reg *consulapi.AgentServiceRegistration) error
	ServiceDeregister(serviceID string) error
}

// Registration keeps this instance registered in consul with an HTTP health
// check against /health so gateways can route to it.
type Registration struct {
	agent agent
	id    string
	log   *zap.Logger
}

func NewRegistration(cfg config.ConsulConfig, log *zap.Logger) (*Registration, error) {
	consulCfg := consulapi.DefaultConfig()
	consulCfg.Address = cfg.Addr
	client, err := consulapi.NewClient(consulCfg)
	if err != nil {
		return nil, err
	}
	return &Registration{agent: client.Agent(), log: log.Named("consul")}, nil
}

// Register announces name at serviceAddr ("host:port").
func (r *Registration) Register(name, serviceAddr string) error {
	host, portStr, err := net.SplitHostPort(serviceAddr)
	if err != nil {
		return fmt.Errorf("service addr %q: %w", serviceAddr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return fmt.Errorf("service port %q: %w", portStr, err)
	}
	r.id = fmt.Sprintf("%s-%s", name, uuid.NewString())
	reg := &consulapi.AgentServiceRegistration{
		ID:      r.id,
		Name:    name,
		Address: host,
		Port:    port,
		Tags:    []string{"chat", "websocket"},
		Check: &consulapi.AgentServiceCheck{
			HTTP:                           fmt.Sprintf("http://%s/health", serviceAddr),
			Interval:                       "10s",
			Timeout:                        "2s",
			DeregisterCriticalServiceAfter: "1m",
		},
	}
	if err := r.agent.ServiceRegister(reg); err != nil {
		return err
	}
	r.log.Info("registered", zap.String("service_id", r.id), zap.String("addr", serviceAddr))
	return nil
}

func (r *Registration) Deregister() error {
	if r.id == "" {
		return nil
	}
	if err := r.agent.ServiceDeregister(r.id); err != nil {
		return err
	}
	r.log.Info("deregistered", zap.String("service_id", r.id))
	r.id = ""
	return nil
}
