package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/kwv/gridbot/gridnav"
)

// Version is set at build time via -ldflags
var Version = "dev"

// AppOptions holds the parsed command line
type AppOptions struct {
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

// AppRunner is what run dispatches to
type AppRunner interface {
	ApplyOptions(opts AppOptions)
	RunMission() error
	RunService() error
}

func main() {
	if err := run(os.Args[1:], os.Stdout, NewApp()); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		log.Fatalf("gridbot: %v", err)
	}
}

func run(args []string, out io.Writer, app AppRunner) error {
	fs := flag.NewFlagSet("gridbot", flag.ContinueOnError)
	fs.SetOutput(out)

	var opts AppOptions
	fs.StringVar(&opts.ConfigFile, "config", "config.yaml", "Path to configuration file")
	fs.BoolVar(&opts.Simulate, "simulate", false, "Drive the simulated course instead of hardware")
	fs.StringVar(&opts.SerialPort, "serial-port", "", "Serial device of the hardware bridge (overrides serial.port)")
	fs.BoolVar(&opts.Localize, "localize", false, "Localize before driving waypoints")
	fs.StringVar(&opts.Variant, "variant", "falling", "Wall edge variant for localization: falling or rising")
	fs.StringVar(&opts.Waypoints, "waypoints", "", "Waypoints to visit in cm: \"x,y;x,y\"")
	fs.BoolVar(&opts.MqttMode, "mqtt", false, "Accept commands and publish state over MQTT")
	fs.BoolVar(&opts.HttpMode, "http", false, "Enable HTTP server for state and course snapshots")
	fs.IntVar(&opts.HttpPort, "http-port", 8080, "HTTP server port (default 8080)")
	fs.StringVar(&opts.TraceOutput, "trace-output", "", "Write the driven trace on exit (.geojson, .svg or .png)")

	if err := fs.Parse(args); err != nil {
		return err
	}
	fmt.Fprintf(out, "gridbot version: %s\n", Version)

	if _, err := gridnav.ParseEdgeVariant(opts.Variant); err != nil {
		return err
	}
	if opts.Waypoints != "" {
		if _, err := gridnav.ParseWaypoints(opts.Waypoints); err != nil {
			return err
		}
	}

	app.ApplyOptions(opts)

	if opts.MqttMode || opts.HttpMode {
		return app.RunService()
	}

	if opts.Localize || opts.Waypoints != "" {
		return app.RunMission()
	}

	fmt.Fprintln(out, "Nothing to do.")
	fmt.Fprintln(out, "Use --localize to find the course origin")
	fmt.Fprintln(out, "Use --waypoints \"x,y;x,y\" to drive a route")
	fmt.Fprintln(out, "Use --simulate to run against the simulated course")
	fmt.Fprintln(out, "Use --mqtt and/or --http to run as a service")
	return nil
}
