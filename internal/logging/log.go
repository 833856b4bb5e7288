// Package logging provides levelled log output for brainsim.
// Messages go to the standard logger unless a rotating log file is configured.
package logging

import (
	"fmt"
	"log"
	"os"

	"github.com/natefinch/lumberjack"
)

// ModeFlag sets the minimum severity that gets written
type ModeFlag uint

const (
	DebugMode ModeFlag = iota
	InfoMode
	WarningMode
	ErrorMode
	SilentMode
)

var (
	mode ModeFlag = InfoMode

	// rotator is non-nil when logs go to a file
	rotator *lumberjack.Logger
)

// Config describes where log output goes
type Config struct {
	// File is the log file path; empty means stderr
	File string

	// MaxSize is the size in megabytes at which the file is rotated
	MaxSize int

	// MaxAge is the number of days old log files are kept
	MaxAge int
}

// SetLogger directs log output to a rotating file when c names one.
func (c *Config) SetLogger() {
	if c == nil || c.File == "" {
		log.SetOutput(os.Stderr)
		rotator = nil
		return
	}
	fmt.Printf("Sending log messages to: %s\n", c.File)
	rotator = &lumberjack.Logger{
		Filename: c.File,
		MaxSize:  c.MaxSize, // megabytes
		MaxAge:   c.MaxAge,  // days
	}
	log.SetOutput(rotator)
}

// SetLogMode sets the severity required for a message to be printed.
// SetLogMode(WarningMode) drops Debugf and Infof; SilentMode drops everything.
func SetLogMode(newMode ModeFlag) {
	mode = newMode
}

func Debugf(format string, args ...interface{}) {
	if mode <= DebugMode {
		log.Printf(" DEBUG "+format, args...)
	}
}

func Infof(format string, args ...interface{}) {
	if mode <= InfoMode {
		log.Printf(" INFO "+format, args...)
	}
}

func Warningf(format string, args ...interface{}) {
	if mode <= WarningMode {
		log.Printf(" WARNING "+format, args...)
	}
}

func Errorf(format string, args ...interface{}) {
	if mode <= ErrorMode {
		log.Printf(" ERROR "+format, args...)
	}
}

// Shutdown closes the log file, if any
func Shutdown() {
	if rotator != nil {
		log.Printf("Closing log file...\n")
		rotator.Close()
		rotator = nil
		log.SetOutput(os.Stderr)
	}
}
