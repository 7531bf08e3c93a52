package gridnav

import (
	"errors"
	"fmt"
	"log"
)

var (
	ErrInvalidConstants   = errors.New("invalid kinematic constants")
	ErrTimeout            = errors.New("operation timed out")
	ErrLocalizationFailed = errors.New("localization failed")
	ErrNavigationFailed   = errors.New("navigation failed")
	ErrNotConnected       = errors.New("MQTT client not connected")
)

// LocalizationError reports which localization stage failed and why
type LocalizationError struct {
	Stage LocalizationStage
	Err   error
}

func (e *LocalizationError) Error() string {
	return fmt.Sprintf("localization failed during %s stage: %v", e.Stage, e.Err)
}

func (e *LocalizationError) Unwrap() error { return e.Err }

// Is lets errors.Is match ErrLocalizationFailed as well as the cause
func (e *LocalizationError) Is(target error) bool {
	return target == ErrLocalizationFailed
}

// Logf is the package-level diagnostic logger. It defaults to log.Printf and
// may be replaced by SetLogger.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil mutes it.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}
