package meter

import (
	"github.com/rs/zerolog"

	"github.com/ineyio/vidquota"
)

// ZerologMeter logs quota events using zerolog. It is the meter wired by
// cmd/vidquota so events share the server's log stream.
type ZerologMeter struct {
	Logger zerolog.Logger
}

var _ vidquota.Meter = (*ZerologMeter)(nil)

// NewZerologMeter creates a ZerologMeter tagged with component=meter.
func NewZerologMeter(logger zerolog.Logger) *ZerologMeter {
	return &ZerologMeter{Logger: logger.With().Str("component", "meter").Logger()}
}

func (m *ZerologMeter) OnGenerate(e vidquota.GenerateEvent) {
	var ev *zerolog.Event
	switch {
	case e.Success && e.CommitError != nil:
		ev = m.Logger.Error().Err(e.CommitError)
	case e.Success:
		ev = m.Logger.Info().Int64("used", e.Used)
	default:
		ev = m.Logger.Warn().Err(e.Error).Str("stage", e.Stage.String())
	}
	ev.Str("user", e.UserID).
		Str("model", string(e.Model)).
		Str("provider", e.Provider).
		Dur("duration", e.Duration).
		Bool("success", e.Success).
		Msg("generate")
}

func (m *ZerologMeter) OnActivate(e vidquota.ActivateEvent) {
	if e.Error != nil {
		m.Logger.Warn().Err(e.Error).
			Str("user", e.UserID).
			Int("months", e.Months).
			Msg("activate")
		return
	}
	m.Logger.Info().
		Str("user", e.UserID).
		Int("months", e.Months).
		Int64("price_cents", e.PriceCents).
		Time("expires_at", e.ExpiresAt).
		Msg("activate")
}
