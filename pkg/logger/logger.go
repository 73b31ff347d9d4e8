package logger

import (
  "go.uber.org/zap"
  "go.uber.org/zap/zapcore"
  "os"
  "strings"
)

var Log *zap.Logger

// Init sets up a global logger. Call once in main().
func Init() error {
  // Production config gives JSON output with level filtering; swap to
  // zap.NewDevelopment() locally if console output reads better.
  cfg := zap.NewProductionConfig()
  cfg.EncoderConfig.TimeKey = "ts"
  cfg.EncoderConfig.MessageKey = "msg"
  if level := os.Getenv("LOG_LEVEL"); level != "" {
    cfg.Level.SetLevel(parseLevel(level))
  }
  var err error
  Log, err = cfg.Build()
  return err
}

// parseLevel is a helper mapping strings to zapcore.Level
func parseLevel(s string) zapcore.Level {
  switch strings.ToLower(s) {
  case "debug":
    return zapcore.DebugLevel
  case "warn":
    return zapcore.WarnLevel
  case "error":
    return zapcore.ErrorLevel
  default:
    return zapcore.InfoLevel
  }
}
