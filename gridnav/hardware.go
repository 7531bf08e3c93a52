package gridnav

// WheelDrive accepts per-wheel speed commands
type WheelDrive interface {
	SetWheels(left, right WheelCommand) error
}

// Encoders reports cumulative wheel rotation in degrees
type Encoders interface {
	TachoCounts() (left, right int, err error)
	ResetTachos() error
}

// RangeSensor is an ultrasonic distance sensor reporting centimetres
type RangeSensor interface {
	Distance() (int, error)
}

// LightSensor reports a normalized reflectance value in 0..1023
type LightSensor interface {
	NormalizedValue() (int, error)
	SetFloodlight(on bool) error
}

// Hardware bundles every device the engine needs.
// Both the simulator and the serial bridge can provide one.
type Hardware struct {
	Drive      WheelDrive
	Encoders   Encoders
	LowRange   RangeSensor
	HighRange  RangeSensor
	LeftLight  LightSensor
	RightLight LightSensor
}

// LightSensor returns the light sensor on the given side
func (h Hardware) LightSensor(side Side) LightSensor {
	if side == Left {
		return h.LeftLight
	}
	return h.RightLight
}
