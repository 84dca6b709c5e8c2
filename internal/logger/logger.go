// Package logger builds the process-wide zap logger.
package logger

import (
	"log"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New returns a JSON production logger, or a colored console logger when dev is set.
// The result also replaces zap globals and the standard library logger output.
func New(dev bool) (*zap.Logger, error) {
	var (
		lg  *zap.Logger
		err error
	)
	if dev {
		encoderCfg := zap.NewDevelopmentEncoderConfig()
		encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		encoderCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		core := zapcore.NewCore(
			zapcore.NewConsoleEncoder(encoderCfg),
			zapcore.AddSync(os.Stderr),
			zapcore.DebugLevel,
		)
		lg = zap.New(core, zap.AddCaller())
	} else {
		lg, err = zap.NewProduction()
		if err != nil {
			return nil, err
		}
	}

	zap.ReplaceGlobals(lg)
	log.SetOutput(zap.NewStdLog(lg).Writer())
	return lg, nil
}
