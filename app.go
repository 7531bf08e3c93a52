package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/kwv/gridbot/gridnav"
)

const sampleInterval = 100 * time.Millisecond

// App encapsulates the application state and dependencies
type App struct {
	Config       *gridnav.Config
	Robot        *gridnav.Robot
	World        *gridnav.SimWorld
	Brick        *gridnav.SerialBrick
	StateTracker *gridnav.StateTracker
	Controller   *gridnav.Controller
	MQTTClient   *gridnav.MQTTClient
	Publisher    *gridnav.Publisher

	// CLI Flags (effectively dependencies)
	ConfigFile  string
	Simulate    bool
	SerialPort  string
	Localize    bool
	Variant     string
	Waypoints   string
	MqttMode    bool
	HttpMode    bool
	HttpPort    int
	TraceOutput string
}

// NewApp creates a new App instance
func NewApp() *App {
	return &App{
		StateTracker: gridnav.NewStateTracker(nil),
	}
}

// ApplyOptions applies CLI options to the App instance
func (a *App) ApplyOptions(opts AppOptions) {
	a.ConfigFile = opts.ConfigFile
	a.Simulate = opts.Simulate
	a.SerialPort = opts.SerialPort
	a.Localize = opts.Localize
	a.Variant = opts.Variant
	a.Waypoints = opts.Waypoints
	a.MqttMode = opts.MqttMode
	a.HttpMode = opts.HttpMode
	a.HttpPort = opts.HttpPort
	a.TraceOutput = opts.TraceOutput
}

// loadConfig reads the config file. A missing default config.yaml falls back
// to the built-in constants; an explicitly named file must exist.
func (a *App) loadConfig() (*gridnav.Config, error) {
	config, err := gridnav.LoadConfig(a.ConfigFile)
	if err != nil {
		if _, statErr := os.Stat(a.ConfigFile); os.IsNotExist(statErr) && a.ConfigFile == "config.yaml" {
			log.Printf("No %s found, using built-in defaults", a.ConfigFile)
			config = gridnav.DefaultConfig()
		} else {
			return nil, fmt.Errorf("loading config %s: %w", a.ConfigFile, err)
		}
	} else {
		log.Printf("Loaded config from %s", a.ConfigFile)
	}

	if a.SerialPort != "" {
		config.Serial.Port = a.SerialPort
	}
	a.Config = config
	return config, nil
}

// setup builds the hardware backend and the robot on top of it
func (a *App) setup() error {
	config, err := a.loadConfig()
	if err != nil {
		return err
	}

	var hw gridnav.Hardware
	if a.Simulate || config.Serial.Port == "" {
		if !a.Simulate {
			log.Println("No serial port configured, running the simulator")
		}
		a.World = gridnav.NewSimWorld(config.Simulation, config.Sensors, config.Odometer.TileSize)
		a.StateTracker.SetCourse(gridnav.CourseFromWorld(a.World))
		hw = a.World.Hardware()
	} else {
		brick, err := gridnav.OpenSerialBrick(config.Serial)
		if err != nil {
			return err
		}
		a.Brick = brick
		hw = brick.Hardware()
		log.Printf("Connected to hardware bridge on %s", config.Serial.Port)
	}

	robot, err := gridnav.NewRobot(config, hw, gridnav.RealClock{})
	if err != nil {
		a.closeBrick()
		return err
	}
	a.Robot = robot

	// without a localization run the simulator starts where the odometer thinks it is
	if a.World != nil && !a.Localize {
		start := config.Simulation.Start
		if err := robot.Odometer.Anchor(gridnav.SetXYTheta(start.X, start.Y, start.Theta)); err != nil {
			a.closeBrick()
			return fmt.Errorf("anchoring odometer: %w", err)
		}
	}
	return nil
}

// start launches the background tasks: physics, odometry, ranging and state sampling
func (a *App) start(ctx context.Context) {
	a.Robot.Start(ctx)
	if a.World != nil {
		go func() {
			if err := a.World.Run(ctx, a.Robot.Clock); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("[sim] stopped: %v", err)
			}
		}()
	}
	go a.StateTracker.Track(ctx, a.Robot, sampleInterval)
}

// stop halts the robot, waits for its tasks and releases the hardware
func (a *App) stop() {
	a.Robot.Shutdown()
	a.Robot.Wait()
	a.StateTracker.Sample(a.Robot)
	a.closeBrick()
}

func (a *App) closeBrick() {
	if a.Brick == nil {
		return
	}
	if err := a.Brick.Close(); err != nil {
		log.Printf("Error closing serial port: %v", err)
	}
	a.Brick = nil
}

// mission builds the mission from the CLI flags
func (a *App) mission() (gridnav.Mission, error) {
	variant, err := gridnav.ParseEdgeVariant(a.Variant)
	if err != nil {
		return gridnav.Mission{}, err
	}
	var waypoints []gridnav.Waypoint
	if a.Waypoints != "" {
		if waypoints, err = gridnav.ParseWaypoints(a.Waypoints); err != nil {
			return gridnav.Mission{}, err
		}
	}
	return gridnav.Mission{Localize: a.Localize, Variant: variant, Waypoints: waypoints}, nil
}

// RunMission localizes and/or drives the waypoints, then exits
func (a *App) RunMission() error {
	mission, err := a.mission()
	if err != nil {
		return err
	}
	if err := a.setup(); err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a.start(ctx)
	log.Printf("Running mission: localize=%v waypoints=%d", mission.Localize, len(mission.Waypoints))
	missionErr := a.Robot.Execute(ctx, mission)
	cancel()
	a.stop()

	s := a.StateTracker.Snapshot()
	fmt.Printf("Final pose: %s (node %d,%d facing %s)\n", s.Pose, s.Grid.NodeX, s.Grid.NodeY, s.Grid.Direction)
	fmt.Printf("Localization: %s, trace %.1f cm\n", s.Localization.Stage, s.TraceLength)
	if a.World != nil {
		fmt.Printf("Simulated true pose: %s\n", a.World.TruePose())
	}

	if a.TraceOutput != "" {
		if err := a.writeTrace(a.TraceOutput); err != nil {
			log.Printf("Error writing trace: %v", err)
		} else {
			fmt.Printf("Trace written to %s\n", a.TraceOutput)
		}
	}
	return missionErr
}

// RunService runs the control task behind MQTT and/or HTTP until interrupted
func (a *App) RunService() error {
	fmt.Println("Starting gridbot service...")
	if err := a.setup(); err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a.start(ctx)
	a.Controller = gridnav.NewController(a.Robot, 8)
	go a.Controller.Run(ctx)

	// abort undoes start before reporting err
	abort := func(err error) error {
		cancel()
		a.stop()
		return err
	}

	if a.MqttMode {
		mqttClient, err := gridnav.InitMQTT(a.Config, a.Controller.HandlePayload)
		if err != nil {
			return abort(fmt.Errorf("initializing MQTT: %w", err))
		}
		if mqttClient == nil {
			return abort(errors.New("MQTT broker not configured in config.yaml"))
		}
		a.MQTTClient = mqttClient

		a.Publisher = gridnav.NewPublisher(mqttClient.GetClient(), a.Config.MQTT.PublishPrefix)
		go a.Publisher.Run(ctx, a.StateTracker, a.Config.MQTT.PublishInterval)
		fmt.Println("MQTT state publisher initialized")
	}

	var server *http.Server
	if a.HttpMode {
		server = &http.Server{
			Addr:    fmt.Sprintf("0.0.0.0:%d", a.HttpPort),
			Handler: newHTTPServer(a.StateTracker, a.Controller),
		}
		go func() {
			log.Printf("[HTTP] Starting server on %s", server.Addr)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("[HTTP] Server error: %v", err)
				cancel()
			}
		}()
	}

	// flags queue the same commands a remote client would send
	if a.Localize {
		if err := a.Controller.Submit(gridnav.Command{Command: "localize", Variant: a.Variant}); err != nil {
			log.Printf("Error queueing localization: %v", err)
		}
	}
	if a.Waypoints != "" {
		waypoints, _ := gridnav.ParseWaypoints(a.Waypoints)
		for _, wp := range waypoints {
			if err := a.Controller.Submit(gridnav.Command{Command: "goto", X: wp.X, Y: wp.Y}); err != nil {
				log.Printf("Error queueing waypoint: %v", err)
			}
		}
	}

	a.printServiceInfo()
	<-ctx.Done()

	fmt.Println("\nShutting down service...")
	if server != nil {
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("[HTTP] Shutdown error: %v", err)
		}
		done()
	}
	if a.MQTTClient != nil {
		a.MQTTClient.Disconnect()
	}
	a.stop()

	if a.TraceOutput != "" {
		if err := a.writeTrace(a.TraceOutput); err != nil {
			log.Printf("Error writing trace: %v", err)
		}
	}
	fmt.Println("Service stopped")
	return nil
}

func (a *App) printServiceInfo() {
	fmt.Println("\nService Running")
	fmt.Println("===============")

	if a.MqttMode {
		prefix := a.Config.MQTT.PublishPrefix
		fmt.Println("\nMQTT:")
		fmt.Printf("  Commands:     %s\n", a.MQTTClient.CommandTopic())
		fmt.Printf("  Pose:         %s/pose\n", prefix)
		fmt.Printf("  Localization: %s/localization (retained)\n", prefix)
	}

	if a.HttpMode {
		fmt.Printf("\nHTTP endpoints (port %d):\n", a.HttpPort)
		fmt.Println("  GET  /health         - Health check")
		fmt.Println("  GET  /pose           - Latest state snapshot")
		fmt.Println("  GET  /localization   - Localization status")
		fmt.Println("  GET  /trace.geojson  - Course, trace and pose as GeoJSON")
		fmt.Println("  GET  /course.svg     - Vector course snapshot")
		fmt.Println("  GET  /course.png     - Raster course snapshot")
		fmt.Println("  POST /command        - Queue a JSON command")
	}

	fmt.Println("\nPress Ctrl+C to stop")
}

// writeTrace exports the course, trace and pose; the format follows the extension
func (a *App) writeTrace(path string) error {
	s := a.StateTracker.Snapshot()
	course := a.StateTracker.Course()
	trace := a.StateTracker.Trace().LineString()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".geojson", ".json":
		fc := gridnav.TraceFeatureCollection(course, a.StateTracker.Trace().Simplified(0.5), s.Pose)
		data, err := json.MarshalIndent(fc, "", "  ")
		if err != nil {
			return err
		}
		return os.WriteFile(path, data, 0644)
	case ".svg":
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		return gridnav.NewVectorRenderer(course, trace, s.Pose).RenderToSVG(f)
	case ".png":
		r := gridnav.NewRasterRenderer(course, trace, s.Pose)
		r.Label = fmt.Sprintf("%s  %s", s.Pose, s.Localization.Stage)
		return r.SavePNG(path)
	}
	return fmt.Errorf("unsupported trace format %q (use .geojson, .svg or .png)", filepath.Ext(path))
}
