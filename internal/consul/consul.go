package consul

import (
	"fmt"
	"os"

	consulapi "github.com/hashicorp/consul/api"
)

func NewClient() (*consulapi.Client, error) {
	config := consulapi.DefaultConfig()
	if addr := os.Getenv("CONSUL_HTTP_ADDR"); addr != "" {
		config.Address = addr
	}
	client, err := consulapi.NewClient(config)
	if err != nil {
		return nil, fmt.Errorf("creating consul client: %w", err)
	}
	return client, nil
}

// RegisterService announces this instance to Consul with an HTTP health
// check against /ping.
func RegisterService(client *consulapi.Client, serviceName, host string, port int) error {
	registration := &consulapi.AgentServiceRegistration{
		ID:      fmt.Sprintf("%s-%s-%d", serviceName, host, port),
		Name:    serviceName,
		Address: host,
		Port:    port,
		Check: &consulapi.AgentServiceCheck{
			HTTP:                           fmt.Sprintf("http://%s:%d/ping", host, port),
			Interval:                       "10s",
			Timeout:                        "2s",
			DeregisterCriticalServiceAfter: "1m",
		},
	}
	if err := client.Agent().ServiceRegister(registration); err != nil {
		return fmt.Errorf("registering %s with consul: %w", serviceName, err)
	}
	return nil
}

func DeregisterService(client *consulapi.Client, serviceName, host string, port int) error {
	id := fmt.Sprintf("%s-%s-%d", serviceName, host, port)
	if err := client.Agent().ServiceDeregister(id); err != nil {
		return fmt.Errorf("deregistering %s from consul: %w", id, err)
	}
	return nil
}
