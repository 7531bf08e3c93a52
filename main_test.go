package main

import (
	"bytes"
	"strings"
	"testing"
)

type mockApp struct {
	opts   AppOptions
	called map[string]bool
}

func newMockApp() *mockApp {
	return &mockApp{
		called: make(map[string]bool),
	}
}

func (m *mockApp) ApplyOptions(opts AppOptions) { m.opts = opts }
func (m *mockApp) RunMission() error            { m.called["RunMission"] = true; return nil }
func (m *mockApp) RunService() error            { m.called["RunService"] = true; return nil }

func TestRun_Flags(t *testing.T) {
	tests := []struct {
		name           string
		args           []string
		expectedCalled string
		verifyOpts     func(*testing.T, AppOptions)
	}{
		{
			name:           "Localize",
			args:           []string{"--localize", "--variant", "rising", "--simulate"},
			expectedCalled: "RunMission",
			verifyOpts: func(t *testing.T, opts AppOptions) {
				if !opts.Localize {
					t.Error("expected Localize true")
				}
				if opts.Variant != "rising" {
					t.Errorf("expected Variant rising, got %s", opts.Variant)
				}
				if !opts.Simulate {
					t.Error("expected Simulate true")
				}
			},
		},
		{
			name:           "Waypoints",
			args:           []string{"--waypoints", "30.48,30.48;60.96,30.48", "--trace-output", "trace.geojson"},
			expectedCalled: "RunMission",
			verifyOpts: func(t *testing.T, opts AppOptions) {
				if opts.Waypoints != "30.48,30.48;60.96,30.48" {
					t.Errorf("unexpected Waypoints %q", opts.Waypoints)
				}
				if opts.TraceOutput != "trace.geojson" {
					t.Errorf("expected TraceOutput trace.geojson, got %s", opts.TraceOutput)
				}
				if opts.Localize {
					t.Error("expected Localize false")
				}
			},
		},
		{
			name:           "SerialPort",
			args:           []string{"--localize", "--serial-port", "/dev/ttyUSB0", "--config", "robot.yaml"},
			expectedCalled: "RunMission",
			verifyOpts: func(t *testing.T, opts AppOptions) {
				if opts.SerialPort != "/dev/ttyUSB0" {
					t.Errorf("expected SerialPort /dev/ttyUSB0, got %s", opts.SerialPort)
				}
				if opts.ConfigFile != "robot.yaml" {
					t.Errorf("expected ConfigFile robot.yaml, got %s", opts.ConfigFile)
				}
			},
		},
		{
			name:           "MqttMode",
			args:           []string{"--mqtt", "--http-port", "9090"},
			expectedCalled: "RunService",
			verifyOpts: func(t *testing.T, opts AppOptions) {
				if !opts.MqttMode {
					t.Error("expected MqttMode true")
				}
				if opts.HttpPort != 9090 {
					t.Errorf("expected HttpPort 9090, got %d", opts.HttpPort)
				}
			},
		},
		{
			name:           "HttpWithMission",
			args:           []string{"--http", "--localize"},
			expectedCalled: "RunService",
			verifyOpts: func(t *testing.T, opts AppOptions) {
				if !opts.HttpMode {
					t.Error("expected HttpMode true")
				}
				if opts.HttpPort != 8080 {
					t.Errorf("expected default HttpPort 8080, got %d", opts.HttpPort)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newMockApp()
			var out bytes.Buffer
			err := run(tt.args, &out, app)
			if err != nil {
				t.Fatalf("run failed: %v", err)
			}

			if !app.called[tt.expectedCalled] {
				t.Errorf("expected %s to be called", tt.expectedCalled)
			}

			if tt.verifyOpts != nil {
				tt.verifyOpts(t, app.opts)
			}
		})
	}
}

func TestRun_InvalidArguments(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"bad variant", []string{"--localize", "--variant", "sideways"}},
		{"bad waypoints", []string{"--waypoints", "1,2;3"}},
		{"unknown flag", []string{"--teleport"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newMockApp()
			var out bytes.Buffer
			if err := run(tt.args, &out, app); err == nil {
				t.Error("expected an error")
			}
			if len(app.called) != 0 {
				t.Errorf("nothing should run, got %v", app.called)
			}
		})
	}
}

func TestRun_Help(t *testing.T) {
	app := newMockApp()
	var out bytes.Buffer
	err := run([]string{"--help"}, &out, app)
	if err == nil {
		t.Error("expected error from --help, got nil")
	}
	if !strings.Contains(out.String(), "Usage of gridbot") {
		t.Errorf("expected usage info in output, got: %s", out.String())
	}
}

func TestRun_Default(t *testing.T) {
	app := newMockApp()
	var out bytes.Buffer
	err := run([]string{}, &out, app)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	expectedPrefix := "gridbot version: " + Version
	if !strings.Contains(out.String(), expectedPrefix) {
		t.Errorf("expected output to contain version, got: %s", out.String())
	}

	if !strings.Contains(out.String(), "Use --localize") {
		t.Errorf("expected output to contain usage hints, got: %s", out.String())
	}
	if len(app.called) != 0 {
		t.Errorf("nothing should run without a mode, got %v", app.called)
	}
}

func TestMain_Execute(t *testing.T) {
	// Smoke test to ensure version is set
	if Version == "" {
		t.Error("expected Version to be set")
	}
}
