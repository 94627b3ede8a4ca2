package e2e

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/kilianp07/fleetassign/app"
	"github.com/kilianp07/fleetassign/config"
	"github.com/kilianp07/fleetassign/core/factory"
	"github.com/kilianp07/fleetassign/core/model"
	coremqtt "github.com/kilianp07/fleetassign/core/mqtt"
	_ "github.com/kilianp07/fleetassign/infra/metrics"
)

const (
	influxOrg    = "e2e_org"
	influxBucket = "e2e_bucket"
	influxToken  = "e2e-token"
)

const problem = `
fleets:
  - {id: 1, max_capacity: 60, max_volume: 40, cost: 2, green_capacity: 10}
  - {id: 2, max_capacity: 60, max_volume: 40, cost: 3, green_capacity: 0}
  - {id: 3, max_capacity: 60, max_volume: 40, cost: 1, green_capacity: 5}
postcodes:
  - {id: 11, demand: 12, eligible: [1, 1, 0], productivity: [10, 5, 1], delay: [0.2, 0.4, 1], success_rate: [0.9, 0.8, 0.5]}
  - {id: 12, demand: 20, eligible: [0, 1, 1], productivity: [4, 8, 6], delay: [0.1, 0.3, 0.2], success_rate: [0.5, 1, 0.9]}
  - {id: 13, demand: 7, eligible: [1, 1, 1], productivity: [3, 3, 9], delay: [0.5, 0.1, 0.2], success_rate: [0.7, 0.9, 0.95]}
`

// startInflux starts an InfluxDB 2.7 container initialised with the e2e
// organisation, bucket and token.
func startInflux(ctx context.Context, t *testing.T) (tc.Container, string) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "influxdb:2.7",
		ExposedPorts: []string{"8086/tcp"},
		Env: map[string]string{
			"DOCKER_INFLUXDB_INIT_MODE":        "setup",
			"DOCKER_INFLUXDB_INIT_USERNAME":    "e2e",
			"DOCKER_INFLUXDB_INIT_PASSWORD":    "e2e-password",
			"DOCKER_INFLUXDB_INIT_ORG":         influxOrg,
			"DOCKER_INFLUXDB_INIT_BUCKET":      influxBucket,
			"DOCKER_INFLUXDB_INIT_ADMIN_TOKEN": influxToken,
		},
		WaitingFor: wait.ForHTTP("/health").WithPort("8086/tcp").WithStartupTimeout(60 * time.Second),
	}
	cont, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{ContainerRequest: req, Started: true})
	if err != nil {
		t.Skipf("unable to start influx container: %v", err)
	}
	host, _ := cont.Host(ctx)
	port, _ := cont.MappedPort(ctx, "8086")
	return cont, fmt.Sprintf("http://%s:%s", host, port.Port())
}

// startMosquitto spins up a Mosquitto broker accepting anonymous clients.
func startMosquitto(ctx context.Context, t *testing.T) (tc.Container, string) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "eclipse-mosquitto:2.0",
		ExposedPorts: []string{"1883/tcp"},
		Cmd:          []string{"mosquitto", "-c", "/mosquitto-no-auth.conf"},
		WaitingFor:   wait.ForListeningPort("1883/tcp"),
	}
	cont, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{ContainerRequest: req, Started: true})
	if err != nil {
		t.Skipf("unable to start mosquitto: %v", err)
	}
	host, _ := cont.Host(ctx)
	port, _ := cont.MappedPort(ctx, "1883")
	return cont, fmt.Sprintf("tcp://%s:%s", host, port.Port())
}

// subscribe collects every allocation published under prefix.
func subscribe(t *testing.T, broker, prefix string) (func() []coremqtt.FleetAllocation, func()) {
	t.Helper()
	var (
		mu  sync.Mutex
		got []coremqtt.FleetAllocation
	)
	opts := paho.NewClientOptions().AddBroker(broker).SetClientID("e2e-subscriber")
	cli := paho.NewClient(opts)
	tok := cli.Connect()
	require.True(t, tok.WaitTimeout(10*time.Second))
	require.NoError(t, tok.Error())
	tok = cli.Subscribe(prefix+"/#", 1, func(_ paho.Client, m paho.Message) {
		var a coremqtt.FleetAllocation
		if err := json.Unmarshal(m.Payload(), &a); err == nil {
			mu.Lock()
			got = append(got, a)
			mu.Unlock()
		}
	})
	require.True(t, tok.WaitTimeout(10*time.Second))
	require.NoError(t, tok.Error())
	return func() []coremqtt.FleetAllocation {
			mu.Lock()
			defer mu.Unlock()
			return append([]coremqtt.FleetAllocation(nil), got...)
		}, func() {
			cli.Disconnect(250)
		}
}

func Test_E2E_SolveAndEvolve(t *testing.T) {
	if _, err := exec.LookPath("docker"); err != nil {
		t.Skipf("docker not installed: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	influxCont, influxURL := startInflux(ctx, t)
	defer influxCont.Terminate(ctx) //nolint:errcheck
	mqttCont, mqttURL := startMosquitto(ctx, t)
	defer mqttCont.Terminate(ctx) //nolint:errcheck
	t.Logf("InfluxDB started at %s", influxURL)
	t.Logf("Mosquitto started at %s", mqttURL)

	received, unsubscribe := subscribe(t, mqttURL, "e2e")
	defer unsubscribe()

	cfg := config.Default()
	cfg.Solver.Seed = 42
	cfg.Solver.Search.Iterations = 200
	cfg.Solver.Mode = "volume"
	cfg.Genetic.Seed = 42
	cfg.Genetic.Generations = 25
	cfg.RunLog.Backend = "sqlite"
	cfg.RunLog.Path = ":memory:"
	cfg.MQTT.Broker = mqttURL
	cfg.MQTT.ClientID = "e2e-publisher"
	cfg.MQTT.TopicPrefix = "e2e"
	cfg.MQTT.QoS = 1
	cfg.Metrics.Sinks = []factory.ModuleConfig{{Type: "influx", Conf: map[string]any{
		"url": influxURL, "token": influxToken, "org": influxOrg, "bucket": influxBucket,
	}}}
	require.NoError(t, cfg.Validate())

	svc, err := app.New(cfg)
	require.NoError(t, err)
	defer func() { _ = svc.Close() }()

	doc, err := model.DecodeDocument(strings.NewReader(problem), "yaml")
	require.NoError(t, err)
	p, err := doc.Problem()
	require.NoError(t, err)
	cm, err := doc.CostModel()
	require.NoError(t, err)

	solved, err := svc.Solve(ctx, p, "e2e")
	require.NoError(t, err)
	evolved, err := svc.Evolve(ctx, cm, "e2e")
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		seen := map[string]bool{}
		for _, a := range received() {
			seen[a.RunID] = true
		}
		return seen[solved.RunID] && seen[evolved.RunID]
	}, 10*time.Second, 100*time.Millisecond)

	influx := NewInfluxClient(influxURL, influxOrg, influxBucket, influxToken)
	defer influx.Close()
	runs, err := influx.CountField(ctx, "optimisation_run", "duration_ms")
	require.NoError(t, err)
	assert.Equal(t, 2, runs)
	assert.Eventually(t, func() bool {
		n, err := influx.CountField(ctx, "ga_generation", "feasible")
		return err == nil && n == cfg.Genetic.Generations
	}, 10*time.Second, 200*time.Millisecond)
}
