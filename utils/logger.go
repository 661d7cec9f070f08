package utils

import (
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger создает zap-логгер.
// В режиме debug пишет в консоль в человекочитаемом виде, иначе в JSON.
// Если задан dir, дополнительно пишет в dir/info.log, а ошибки в dir/error.log.
func NewLogger(mode, dir string) (*zap.Logger, error) {
	var config zap.Config

	if mode == "debug" {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		config = zap.NewProductionConfig()
		config.EncoderConfig.TimeKey = "timestamp"
		config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	if dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
		config.OutputPaths = append(config.OutputPaths, filepath.Join(dir, "info.log"))
		config.ErrorOutputPaths = append(config.ErrorOutputPaths, filepath.Join(dir, "error.log"))
	}

	return config.Build()
}

// LogOperation логирует операцию с длительностью
func LogOperation(logger *zap.Logger, operation string, startTime time.Time, err error, fields ...zap.Field) {
	fields = append(fields,
		zap.String("operation", operation),
		zap.Duration("duration", time.Since(startTime)),
	)
	if err != nil {
		logger.Error("operation failed", append(fields, zap.Error(err))...)
		return
	}
	logger.Info("operation completed", fields...)
}
