// Package logging configures the process-wide logrus logger.
package logging

import (
	"os"
	"path/filepath"

	"github.com/rifflock/lfshook"
	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"ridetrack/internal/config"
)

// Configure sets level and formatter on the standard logger and, when a log file
// is configured, mirrors every level into a rotating file.
func Configure(c config.Config) error {
	log.SetLevel(c.LogLevel())
	log.SetFormatter(&log.TextFormatter{ForceColors: true, FullTimestamp: false})
	log.SetOutput(os.Stdout)

	if c.Log.File == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(c.Log.File), os.ModePerm); err != nil {
		return err
	}
	rotating := &lumberjack.Logger{
		Filename:   c.Log.File,
		MaxSize:    100,
		MaxBackups: 30,
		MaxAge:     c.Log.MaxAgeDays,
		Compress:   true,
	}
	log.AddHook(lfshook.NewHook(lfshook.WriterMap{
		log.PanicLevel: rotating,
		log.FatalLevel: rotating,
		log.ErrorLevel: rotating,
		log.WarnLevel:  rotating,
		log.InfoLevel:  rotating,
		log.DebugLevel: rotating,
		log.TraceLevel: rotating,
	}, &log.TextFormatter{DisableColors: true, FullTimestamp: true}))
	return nil
}

// Component returns an entry tagged with the component name.
func Component(name string) *log.Entry {
	return log.WithField("component", name)
}
