package meter

import "github.com/ineyio/vidquota"

// NoopMeter is a meter that does nothing.
type NoopMeter struct{}

var _ vidquota.Meter = (*NoopMeter)(nil)

func (m *NoopMeter) OnGenerate(vidquota.GenerateEvent) {}
func (m *NoopMeter) OnActivate(vidquota.ActivateEvent) {}
