package gridnav

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// RobotConfig holds the chassis description
type RobotConfig struct {
	Odometry      KinematicConstants `yaml:"odometry"`
	Navigation    KinematicConstants `yaml:"navigation"`
	MaxWheelSpeed int                `yaml:"maxWheelSpeed"`
}

// MQTTConfig holds broker connection and topic settings
type MQTTConfig struct {
	Broker          string        `yaml:"broker"`
	ClientID        string        `yaml:"clientId"`
	Username        string        `yaml:"username"`
	Password        string        `yaml:"password"`
	PublishPrefix   string        `yaml:"publishPrefix"`
	PublishInterval time.Duration `yaml:"publishInterval"`
}

// SerialConfig selects the hardware bridge port
type SerialConfig struct {
	Port     string `yaml:"port"`
	BaudRate int    `yaml:"baudRate"`
}

// Config is the full application configuration
type Config struct {
	Robot        RobotConfig        `yaml:"robot"`
	Sensors      SensorConfig       `yaml:"sensors"`
	Odometer     OdometerConfig     `yaml:"odometer"`
	Ranging      RangingConfig      `yaml:"ranging"`
	LineDetector LineDetectorConfig `yaml:"lineDetector"`
	GridSnapper  GridSnapperConfig  `yaml:"gridSnapper"`
	Localizer    LocalizerConfig    `yaml:"localizer"`
	Navigation   NavigationConfig   `yaml:"navigation"`
	MQTT         MQTTConfig         `yaml:"mqtt"`
	Serial       SerialConfig       `yaml:"serial"`
	Simulation   SimulationConfig   `yaml:"simulation"`
}

// DefaultConfig returns the tuned constants of the reference robot
func DefaultConfig() *Config {
	const tile = 30.48
	return &Config{
		Robot: RobotConfig{
			Odometry:      OdometryConstants(),
			Navigation:    NavigationConstants(),
			MaxWheelSpeed: DefaultMaxWheelSpeed,
		},
		Sensors: SensorConfig{
			LightSeparation: 23.6,
			LightOffset:     1.5,
		},
		Odometer: OdometerConfig{
			Period:         25 * time.Millisecond,
			TileSize:       tile,
			NodeOffset:     12,
			GridDecimation: 10,
		},
		Ranging: RangingConfig{
			Period:  50 * time.Millisecond,
			Ceiling: 120,
		},
		LineDetector: LineDetectorConfig{
			Threshold:    485,
			PollInterval: 5 * time.Millisecond,
		},
		GridSnapper: GridSnapperConfig{
			Enabled:  true,
			MaxError: 10,
		},
		Localizer: LocalizerConfig{
			ForwardSpeed:      3,
			RotationSpeed:     30,
			WallDistance:      50,
			WallMargin:        5,
			HeadingCorrection: 18,
			LightThreshold:    460,
			BackupDistance:    10,
			RetreatDistance:   3,
			PollInterval:      10 * time.Millisecond,
			SweepTimeout:      20 * time.Second,
			LineTimeout:       30 * time.Second,
		},
		Navigation: NavigationConfig{
			ForwardSpeed:      7,
			RotationSpeed:     50,
			MinRotationSpeed:  5,
			SlowdownAngle:     20,
			RotationTolerance: 0.5,
			PollInterval:      10 * time.Millisecond,
			ClearanceNear:     25,
			ClearanceFar:      55,
			PalletDiff:        15,
			SweepArc:          90,
			SweepSpeed:        30,
			SweepInterval:     50 * time.Millisecond,
			SweepSamples:      5,
			ScanAngle:         30,
			Increment:         31,
			ArrivalTolerance:  1,
			ObstacleBand:      10,
			DetourStep:        40,
			DetourPass:        60,
			MaxDetourSteps:    3,
			MaxLegs:           40,
			EdgeNodeMin:       1,
			EdgeNodeMax:       11,
			MoveTimeoutSlack:  5 * time.Second,
			TurnTimeout:       20 * time.Second,
		},
		MQTT: MQTTConfig{
			ClientID:        "gridbot",
			PublishPrefix:   "gridbot",
			PublishInterval: time.Second,
		},
		Serial: SerialConfig{
			BaudRate: 115200,
		},
		Simulation: SimulationConfig{
			Wheels:           OdometryConstants(),
			CourseMin:        -tile,
			CourseMax:        12 * tile,
			LineWidth:        1,
			HighSensorHeight: 12,
			MaxRange:         255,
			BeamWidth:        20,
			Step:             5 * time.Millisecond,
			Start:            Pose{X: -15, Y: -15, Theta: 0},
		},
	}
}

// LoadConfig loads the configuration from a YAML file on top of the defaults
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// SaveConfig saves the configuration to a YAML file
func SaveConfig(path string, config *Config) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("marshaling config YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// Validate checks the values the engine cannot run without
func (c *Config) Validate() error {
	if err := c.Robot.Odometry.Validate(); err != nil {
		return fmt.Errorf("robot.odometry: %w", err)
	}
	if err := c.Robot.Navigation.Validate(); err != nil {
		return fmt.Errorf("robot.navigation: %w", err)
	}
	if c.Sensors.LightSeparation <= 0 {
		return fmt.Errorf("sensors.lightSeparation must be positive")
	}
	if c.Odometer.TileSize <= 0 {
		return fmt.Errorf("odometer.tileSize must be positive")
	}
	if c.Odometer.Period <= 0 {
		return fmt.Errorf("odometer.period must be positive")
	}
	if c.LineDetector.Threshold <= 0 || c.LineDetector.Threshold > 1023 {
		return fmt.Errorf("lineDetector.threshold must be within 1..1023")
	}
	if c.Localizer.LightThreshold <= 0 || c.Localizer.LightThreshold > 1023 {
		return fmt.Errorf("localizer.lightThreshold must be within 1..1023")
	}
	if c.Localizer.ForwardSpeed <= 0 || c.Localizer.RotationSpeed <= 0 {
		return fmt.Errorf("localizer speeds must be positive")
	}
	if c.Navigation.ForwardSpeed <= 0 || c.Navigation.RotationSpeed <= 0 || c.Navigation.MinRotationSpeed <= 0 {
		return fmt.Errorf("navigation speeds must be positive")
	}
	if c.Navigation.SlowdownAngle <= 0 {
		return fmt.Errorf("navigation.slowdownAngle must be positive")
	}
	if c.Navigation.SweepArc <= 0 || c.Navigation.SweepArc > 180 {
		return fmt.Errorf("navigation.sweepArc must be within (0, 180]")
	}
	if c.GridSnapper.MaxError <= 0 || c.GridSnapper.MaxError >= 45 {
		return fmt.Errorf("gridSnapper.maxError must be within (0, 45)")
	}
	return nil
}

// SnapperConfig returns the grid snapper settings with the shared sensor geometry filled in
func (c *Config) SnapperConfig() GridSnapperConfig {
	s := c.GridSnapper
	s.SensorSeparation = c.Sensors.LightSeparation
	return s
}
