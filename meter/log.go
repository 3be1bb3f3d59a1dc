package meter

import (
	"log/slog"

	"github.com/ineyio/vidquota"
)

// LogMeter logs quota events using slog.
type LogMeter struct {
	Logger *slog.Logger
}

var _ vidquota.Meter = (*LogMeter)(nil)

// NewLogMeter creates a LogMeter with the given logger.
// If logger is nil, slog.Default() is used.
func NewLogMeter(logger *slog.Logger) *LogMeter {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogMeter{Logger: logger}
}

func (m *LogMeter) OnGenerate(e vidquota.GenerateEvent) {
	switch {
	case e.Success && e.CommitError != nil:
		m.Logger.Error("generate_commit_failed",
			"user", e.UserID,
			"model", e.Model,
			"provider", e.Provider,
			"duration_ms", e.Duration.Milliseconds(),
			"error", e.CommitError,
		)
	case e.Success:
		m.Logger.Info("generate",
			"user", e.UserID,
			"model", e.Model,
			"provider", e.Provider,
			"duration_ms", e.Duration.Milliseconds(),
			"used", e.Used,
		)
	default:
		m.Logger.Warn("generate_error",
			"user", e.UserID,
			"model", e.Model,
			"provider", e.Provider,
			"stage", e.Stage,
			"duration_ms", e.Duration.Milliseconds(),
			"error", e.Error,
		)
	}
}

func (m *LogMeter) OnActivate(e vidquota.ActivateEvent) {
	if e.Error != nil {
		m.Logger.Warn("activate_error",
			"user", e.UserID,
			"months", e.Months,
			"error", e.Error,
		)
		return
	}
	m.Logger.Info("activate",
		"user", e.UserID,
		"months", e.Months,
		"price_cents", e.PriceCents,
		"expires_at", e.ExpiresAt,
	)
}
