package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/kilianp07/teslamqtt/config"
	"github.com/kilianp07/teslamqtt/core/bridge"
	"github.com/kilianp07/teslamqtt/core/model"
	coremqtt "github.com/kilianp07/teslamqtt/core/mqtt"
	"github.com/kilianp07/teslamqtt/infra/mqtt"
)

var sendTimeout time.Duration

var sendCmd = &cobra.Command{
	Use:   "send <vehicle-id> <command-id|json>",
	Short: "Send a command through the broker and print the response",
	Example: `  tesla-mqtt send 1234 wake-up
  tesla-mqtt send 1234 '{"command":"charge-limit","limit":80}'`,
	Args: cobra.ExactArgs(2),
	RunE: runSend,
}

func init() {
	sendCmd.Flags().DurationVar(&sendTimeout, "timeout", 90*time.Second, "how long to wait for the response")
	rootCmd.AddCommand(sendCmd)
}

// commandPayload accepts either a bare command id or a JSON object.
func commandPayload(arg string) ([]byte, error) {
	arg = strings.TrimSpace(arg)
	if !strings.HasPrefix(arg, "{") {
		return json.Marshal(map[string]string{"command": arg})
	}
	if !json.Valid([]byte(arg)) {
		return nil, fmt.Errorf("invalid json payload")
	}
	return []byte(arg), nil
}

// requesterConfig derives a short-lived client from the bridge settings.
func requesterConfig(cfg mqtt.Config) mqtt.Config {
	cfg.ClientID = "tesla-mqtt-send-" + uuid.NewString()[:8]
	cfg.CleanStart = true
	cfg.SessionExpiry = time.Second
	cfg.WillTopic = ""
	cfg.WillPayload = ""
	cfg.WillRetain = false
	return cfg
}

func runSend(cmd *cobra.Command, args []string) error {
	id, err := model.ParseVehicleID(args[0])
	if err != nil {
		return err
	}
	payload, err := commandPayload(args[1])
	if err != nil {
		return err
	}
	cfg, cleanup, err := setup(config.Config.ValidateBroker)
	if err != nil {
		return err
	}
	defer cleanup()

	client, err := mqtt.NewPahoClient(requesterConfig(cfg.MQTT))
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), sendTimeout)
	defer cancel()

	res, err := request(ctx, client, cfg.Bridge, id, payload)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(res))
	return err
}

// request publishes payload as a command for id and waits for the response
// carrying the same correlation data.
func request(ctx context.Context, client coremqtt.Client, bc bridge.Config, id model.VehicleID, payload []byte) ([]byte, error) {
	bc.SetDefaults()
	responseTopic := bc.TopicPrefix + "/responses/" + uuid.NewString()
	correlation := []byte(uuid.NewString())

	ready := make(chan error, 1)
	if err := client.Connect(ctx, func(ctx context.Context, _ coremqtt.ConnectInfo) {
		select {
		case ready <- client.Subscribe(ctx, responseTopic, 1):
		default:
		}
	}); err != nil {
		return nil, err
	}
	defer func() {
		dctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = client.Disconnect(dctx, coremqtt.DisconnectOptions{ExpireSession: true})
	}()

	select {
	case err := <-ready:
		if err != nil {
			return nil, err
		}
	case <-ctx.Done():
		return nil, fmt.Errorf("waiting for broker: %w", ctx.Err())
	}

	err := client.Publish(ctx, coremqtt.Message{
		Topic:           bc.CommandTopic(id.String()),
		Payload:         payload,
		QoS:             bc.CommandQoS,
		ContentType:     bridge.ContentTypeJSON,
		ResponseTopic:   responseTopic,
		CorrelationData: correlation,
	})
	if err != nil {
		return nil, err
	}
	for {
		select {
		case msg := <-client.Messages():
			if msg.Topic == responseTopic && bytes.Equal(msg.CorrelationData, correlation) {
				return msg.Payload, nil
			}
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for response: %w", ctx.Err())
		}
	}
}
