package main

import (
	"context"
	"encoding/json"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kwv/gridbot/gridnav"
)

var testTime = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// chdir moves into a fresh directory for the duration of the test
func chdir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	return dir
}

func TestNewApp(t *testing.T) {
	app := NewApp()
	if app == nil {
		t.Fatal("NewApp returned nil")
		return
	}
	if app.StateTracker == nil {
		t.Error("StateTracker should be initialized")
	}
}

func TestApplyOptions(t *testing.T) {
	app := NewApp()
	opts := AppOptions{
		ConfigFile:  "robot.yaml",
		Simulate:    true,
		SerialPort:  "/dev/ttyACM0",
		Localize:    true,
		Variant:     "rising",
		Waypoints:   "1,2",
		MqttMode:    true,
		HttpMode:    true,
		HttpPort:    9090,
		TraceOutput: "out.svg",
	}
	app.ApplyOptions(opts)

	assert.Equal(t, "robot.yaml", app.ConfigFile)
	assert.True(t, app.Simulate)
	assert.Equal(t, "/dev/ttyACM0", app.SerialPort)
	assert.True(t, app.Localize)
	assert.Equal(t, "rising", app.Variant)
	assert.Equal(t, "1,2", app.Waypoints)
	assert.True(t, app.MqttMode)
	assert.True(t, app.HttpMode)
	assert.Equal(t, 9090, app.HttpPort)
	assert.Equal(t, "out.svg", app.TraceOutput)
}

func TestLoadConfig_DefaultFallback(t *testing.T) {
	chdir(t)
	app := NewApp()
	app.ApplyOptions(AppOptions{ConfigFile: "config.yaml", SerialPort: "/dev/ttyUSB1"})

	cfg, err := app.loadConfig()
	require.NoError(t, err)
	assert.Equal(t, gridnav.DefaultConfig().Robot, cfg.Robot)
	assert.Equal(t, "/dev/ttyUSB1", cfg.Serial.Port, "flag overrides serial.port")
	assert.Same(t, cfg, app.Config)
}

func TestLoadConfig_ExplicitFileMustExist(t *testing.T) {
	app := NewApp()
	app.ApplyOptions(AppOptions{ConfigFile: filepath.Join(t.TempDir(), "robot.yaml")})

	_, err := app.loadConfig()
	assert.ErrorContains(t, err, "config file not found")
}

func TestLoadConfig_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "robot.yaml")
	require.NoError(t, os.WriteFile(path, []byte("serial:\n  port: /dev/ttyS3\nmqtt:\n  publishPrefix: lab\n"), 0644))

	app := NewApp()
	app.ApplyOptions(AppOptions{ConfigFile: path})
	cfg, err := app.loadConfig()
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyS3", cfg.Serial.Port)
	assert.Equal(t, "lab", cfg.MQTT.PublishPrefix)
}

func TestMission(t *testing.T) {
	app := NewApp()
	app.ApplyOptions(AppOptions{Localize: true, Variant: "rising", Waypoints: "30.48,30.48; 60.96,30.48"})

	m, err := app.mission()
	require.NoError(t, err)
	assert.True(t, m.Localize)
	assert.Equal(t, gridnav.RisingEdge, m.Variant)
	assert.Equal(t, []gridnav.Waypoint{{X: 30.48, Y: 30.48}, {X: 60.96, Y: 30.48}}, m.Waypoints)

	app.Variant = "sideways"
	_, err = app.mission()
	assert.Error(t, err)
}

func TestSetupSimulator(t *testing.T) {
	chdir(t)
	app := NewApp()
	app.ApplyOptions(AppOptions{ConfigFile: "config.yaml", Simulate: true})

	require.NoError(t, app.setup())
	require.NotNil(t, app.World)
	require.NotNil(t, app.Robot)
	assert.Nil(t, app.Brick)
	assert.NotNil(t, app.StateTracker.Course(), "simulator course is published to the tracker")

	start := app.Config.Simulation.Start
	assert.Equal(t, start, app.Robot.Odometer.Pose(), "odometer starts at the simulated start pose")

	ctx, cancel := context.WithCancel(context.Background())
	app.start(ctx)
	cancel()
	app.stop()

	assert.True(t, app.StateTracker.HasPose())
}

func TestSetupSimulatorWithLocalization(t *testing.T) {
	chdir(t)
	app := NewApp()
	app.ApplyOptions(AppOptions{ConfigFile: "config.yaml", Simulate: true, Localize: true})

	require.NoError(t, app.setup())
	assert.Equal(t, gridnav.Pose{}, app.Robot.Odometer.Pose(), "localization starts from an unknown pose")
}

func TestSetupSerialMissingPort(t *testing.T) {
	chdir(t)
	app := NewApp()
	app.ApplyOptions(AppOptions{ConfigFile: "config.yaml", SerialPort: "/dev/does-not-exist-gridbot"})

	assert.Error(t, app.setup())
	assert.Nil(t, app.Robot)
}

func tracedApp(t *testing.T) *App {
	t.Helper()
	app := NewApp()
	app.StateTracker.SetCourse(&gridnav.CourseLayout{
		Bound:    testCourse().Bound,
		TileSize: 30.48,
	})
	app.StateTracker.UpdatePose(gridnav.Pose{}, gridnav.GridPosition{}, testTime)
	app.StateTracker.UpdatePose(gridnav.Pose{Y: 30.48}, gridnav.GridPosition{NodeY: 1}, testTime)
	return app
}

func TestWriteTrace(t *testing.T) {
	dir := t.TempDir()
	app := tracedApp(t)

	geo := filepath.Join(dir, "trace.geojson")
	require.NoError(t, app.writeTrace(geo))
	data, err := os.ReadFile(geo)
	require.NoError(t, err)
	var fc struct {
		Type     string            `json:"type"`
		Features []json.RawMessage `json:"features"`
	}
	require.NoError(t, json.Unmarshal(data, &fc))
	assert.Equal(t, "FeatureCollection", fc.Type)
	assert.Len(t, fc.Features, 3, "course, trace and pose")

	svg := filepath.Join(dir, "trace.svg")
	require.NoError(t, app.writeTrace(svg))
	data, err = os.ReadFile(svg)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "<svg"))

	pngPath := filepath.Join(dir, "trace.PNG")
	require.NoError(t, app.writeTrace(pngPath))
	f, err := os.Open(pngPath)
	require.NoError(t, err)
	defer f.Close()
	_, err = png.Decode(f)
	assert.NoError(t, err)

	assert.ErrorContains(t, app.writeTrace(filepath.Join(dir, "trace.txt")), "unsupported trace format")
}

// The service wires remote commands into the controller queue and tracker
// snapshots into the publisher.
func TestServiceWiring(t *testing.T) {
	app := tracedApp(t)
	app.Controller = gridnav.NewController(nil, 2)

	mock := gridnav.NewMockClient()
	mock.SetConnected(true)
	app.Publisher = gridnav.NewPublisher(mock, "lab/gridbot")

	require.NoError(t, app.Controller.HandlePayload([]byte(`{"command":"localize","variant":"falling"}`)))
	assert.Error(t, app.Controller.HandlePayload([]byte(`{"command":"localize","variant":"up"}`)))

	require.NoError(t, app.Publisher.PublishState(app.StateTracker.Snapshot()))
	assert.Len(t, mock.MessagesOn("lab/gridbot/pose"), 1)
	assert.Len(t, mock.MessagesOn("lab/gridbot/localization"), 1)
}

func TestRunServiceStopsRobotWhenMQTTUnavailable(t *testing.T) {
	chdir(t)
	t.Setenv("MQTT_BROKER", "")
	app := NewApp()
	app.ApplyOptions(AppOptions{ConfigFile: "config.yaml", Simulate: true, MqttMode: true})

	err := app.RunService()
	require.ErrorContains(t, err, "MQTT broker not configured")

	// stop samples the final pose and leaves no robot task running
	assert.True(t, app.StateTracker.HasPose())
	fwd, rot := app.Robot.Drive.Velocity()
	assert.Zero(t, fwd)
	assert.Zero(t, rot)

	waited := make(chan struct{})
	go func() {
		app.Robot.Wait()
		close(waited)
	}()
	select {
	case <-waited:
	case <-time.After(time.Second):
		t.Fatal("robot tasks still running after RunService returned")
	}
}
