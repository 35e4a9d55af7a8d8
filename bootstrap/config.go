package bootstrap

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"argus/config"
	"argus/ruleset"
)

// InitLogger initializes the zap logger with colored console output at
// the configured level.
func InitLogger(level string) (*zap.Logger, *zap.SugaredLogger, error) {
	encoderConfig := zap.NewDevelopmentEncoderConfig()
	encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeCaller = zapcore.ShortCallerEncoder

	var lvl zapcore.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = zapcore.DebugLevel
	case "warn":
		lvl = zapcore.WarnLevel
	case "error":
		lvl = zapcore.ErrorLevel
	default:
		lvl = zapcore.InfoLevel
	}

	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderConfig),
		zapcore.AddSync(os.Stdout),
		lvl,
	)

	logger := zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
	return logger, logger.Sugar(), nil
}

// InitRuleset loads and compiles the initial ruleset generation.
func InitRuleset(cfg *config.Config, sugar *zap.SugaredLogger) (*ruleset.Provider, error) {
	provider, err := ruleset.NewProvider(
		ruleset.Paths{
			Decoders: cfg.Ruleset.DecodersPath,
			Rules:    cfg.Ruleset.RulesPath,
			Lists:    cfg.Ruleset.ListsPath,
		},
		ruleset.Options{
			RegexTimeout:     cfg.Logtest.RegexTimeout,
			DisablePrefilter: cfg.Logtest.DisablePrefilter,
		},
		sugar,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load ruleset: %w", err)
	}
	return provider, nil
}
