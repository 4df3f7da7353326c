//go:build !no_containers

package test

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/redhouse-home/heatctl/core/model"
	"github.com/redhouse-home/heatctl/core/pump"
	"github.com/redhouse-home/heatctl/infra/hardware"
	"github.com/redhouse-home/heatctl/infra/logger"
	"github.com/redhouse-home/heatctl/infra/store"
)

func startMosquitto(ctx context.Context, t *testing.T) (tc.Container, string) {
	t.Helper()
	conf := `listener 1883
allow_anonymous true
persistence false
log_dest stdout
`
	path := filepath.Join(t.TempDir(), "mosquitto.conf")
	if err := os.WriteFile(path, []byte(conf), 0o644); err != nil {
		t.Fatalf("write conf: %v", err)
	}
	req := tc.ContainerRequest{
		Image:        "eclipse-mosquitto:2.0",
		ExposedPorts: []string{"1883/tcp"},
		WaitingFor:   wait.ForListeningPort("1883/tcp"),
		Files: []tc.ContainerFile{
			{
				HostFilePath:      path,
				ContainerFilePath: "/mosquitto/config/mosquitto.conf",
				FileMode:          0644,
			},
		},
	}
	cont, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{ContainerRequest: req, Started: true})
	if err != nil {
		t.Skipf("container start: %v", err)
	}
	host, err := cont.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := cont.MappedPort(ctx, "1883")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	broker := fmt.Sprintf("tcp://%s:%s", host, port.Port())
	if err := waitForBroker(broker, 5*time.Second); err != nil {
		t.Skipf("mosquitto not ready: %v", err)
	}
	return cont, broker
}

func waitForBroker(broker string, timeout time.Duration) error {
	opts := paho.NewClientOptions().AddBroker(broker).SetClientID("readycheck")
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		cli := paho.NewClient(opts)
		token := cli.Connect()
		token.Wait()
		if token.Error() == nil {
			cli.Disconnect(100)
			return nil
		}
		lastErr = token.Error()
		time.Sleep(100 * time.Millisecond)
	}
	return lastErr
}

// relaySim plays the pump-side relay bridge: it acks every command it
// receives on the command topic.
type relaySim struct {
	cli paho.Client

	mu       sync.Mutex
	commands []string
}

func startRelaySim(t *testing.T, broker string) *relaySim {
	t.Helper()
	sim := &relaySim{}
	opts := paho.NewClientOptions().AddBroker(broker).SetClientID("relay-sim")
	sim.cli = paho.NewClient(opts)
	if token := sim.cli.Connect(); token.Wait() && token.Error() != nil {
		t.Skipf("relay sim connect: %v", token.Error())
	}
	if token := sim.cli.Subscribe("heatctl/pump/command", 1, func(_ paho.Client, m paho.Message) {
		var cmd struct {
			CommandID string `json:"command_id"`
			Target    string `json:"target"`
			Command   string `json:"command"`
		}
		if err := json.Unmarshal(m.Payload(), &cmd); err != nil {
			return
		}
		sim.mu.Lock()
		sim.commands = append(sim.commands, cmd.Target+"/"+cmd.Command)
		sim.mu.Unlock()
		ack, _ := json.Marshal(map[string]string{"command_id": cmd.CommandID})
		sim.cli.Publish("heatctl/pump/ack", 1, false, ack)
	}); token.Wait() && token.Error() != nil {
		t.Fatalf("subscribe: %v", token.Error())
	}
	return sim
}

func (s *relaySim) seen() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.commands...)
}

func TestPumpControlOverMQTTContainer(t *testing.T) {
	if _, err := exec.LookPath("docker"); err != nil {
		t.Skip("docker not installed")
	}
	ctx := context.Background()

	cont, broker := startMosquitto(ctx, t)
	defer func() { _ = cont.Terminate(ctx) }()

	sim := startRelaySim(t, broker)
	defer sim.cli.Disconnect(100)

	relay, err := hardware.NewMQTTRelay(hardware.MQTTConfig{
		Broker:         broker,
		ClientID:       "heatctl-e2e",
		CommandTopic:   "heatctl/pump/command",
		AckTopic:       "heatctl/pump/ack",
		AckTimeoutSecs: 5,
	}, logger.NopLogger{})
	if err != nil {
		t.Fatalf("relay: %v", err)
	}
	defer relay.Disconnect()

	statePath := filepath.Join(t.TempDir(), "pump_state.json")
	ctrl := pump.NewController(relay, store.NewStateStore(statePath, logger.NopLogger{}), pump.Config{
		CycleDuration:     20 * time.Millisecond,
		ReliefThreshold:   6300 * time.Second,
		MaxExecutionDelay: 30 * time.Minute,
	}, logger.NopLogger{})

	now := time.Now()
	if res := ctrl.Execute(ctx, model.ModeRun, now); !res.OK {
		t.Fatalf("run: %v", res.Err)
	}
	// Low power after run must pulse blocked mode in between.
	if res := ctrl.Execute(ctx, model.ModeLowPower, now); !res.OK {
		t.Fatalf("lowpower: %v", res.Err)
	}
	if res := ctrl.PerformCycle(ctx); !res.OK {
		t.Fatalf("cycle: %v", res.Err)
	}

	want := []string{
		"primary/ON",
		"primary/EVU", "primary/ALE",
		"primary/EVU", "primary/ALE",
	}
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if len(sim.seen()) >= len(want) {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}
	got := sim.seen()
	if len(got) != len(want) {
		t.Fatalf("commands seen: %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("command %d: got %s, want %s", i, got[i], want[i])
		}
	}

	st, err := store.NewStateStore(statePath, logger.NopLogger{}).Load()
	if err != nil {
		t.Fatalf("load state: %v", err)
	}
	if st.LastCommand != "ALE" {
		t.Errorf("persisted last command %q, want ALE", st.LastCommand)
	}
	if st.LastCycleTime == 0 {
		t.Error("cycle time not persisted")
	}
}
