package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/kilianp07/fleetcore/config"
	"github.com/kilianp07/fleetcore/core/router"
	"github.com/kilianp07/fleetcore/infra/mqtt"
)

type request struct {
	kind    router.Kind
	payload any
}

// publishRequests sends each request to the control plane as a client
// message over one broker session.
func publishRequests(cfg *config.Config, reqs ...request) error {
	if cfg.MQTT.Broker == "" {
		return fmt.Errorf("mqtt.broker is not configured")
	}
	mqttCfg := cfg.MQTT
	mqttCfg.ClientID = fmt.Sprintf("%s-cli-%d", mqttCfg.ClientID, time.Now().UnixNano())
	mqttCfg.LWTTopic = ""
	client, err := mqtt.NewPahoClient(mqttCfg)
	if err != nil {
		return fmt.Errorf("mqtt client: %w", err)
	}
	defer client.Disconnect()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, r := range reqs {
		if err := client.Request(ctx, r.kind, r.payload); err != nil {
			return fmt.Errorf("%s: %w", r.kind, err)
		}
	}
	return nil
}

// publishRequest loads the configuration and sends a single request.
func publishRequest(kind router.Kind, payload any) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	return publishRequests(cfg, request{kind: kind, payload: payload})
}
