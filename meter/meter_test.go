package meter_test

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/ineyio/vidquota"
	"github.com/ineyio/vidquota/meter"
)

func TestLogMeter_GenerateLevels(t *testing.T) {
	var buf bytes.Buffer
	m := meter.NewLogMeter(slog.New(slog.NewJSONHandler(&buf, nil)))

	m.OnGenerate(vidquota.GenerateEvent{UserID: "u1", Model: vidquota.ModelSeedance20, Success: true, Used: 1})
	assert.Contains(t, buf.String(), `"msg":"generate"`)
	assert.Contains(t, buf.String(), `"used":1`)

	buf.Reset()
	m.OnGenerate(vidquota.GenerateEvent{UserID: "u1", Success: true, CommitError: errors.New("db down")})
	assert.Contains(t, buf.String(), `"level":"ERROR"`)
	assert.Contains(t, buf.String(), "db down")

	buf.Reset()
	m.OnGenerate(vidquota.GenerateEvent{UserID: "u1", Stage: vidquota.StageRemoteCalling, Error: vidquota.ErrProviderTimeout})
	assert.Contains(t, buf.String(), `"msg":"generate_error"`)
	assert.Contains(t, buf.String(), `"stage":"remote_calling"`)
}

func TestLogMeter_Activate(t *testing.T) {
	var buf bytes.Buffer
	m := meter.NewLogMeter(slog.New(slog.NewJSONHandler(&buf, nil)))

	m.OnActivate(vidquota.ActivateEvent{UserID: "u1", Months: 2, PriceCents: 5980, ExpiresAt: time.Now()})
	assert.Contains(t, buf.String(), `"price_cents":5980`)
}

func TestZerologMeter(t *testing.T) {
	var buf bytes.Buffer
	m := meter.NewZerologMeter(zerolog.New(&buf))

	m.OnGenerate(vidquota.GenerateEvent{UserID: "u1", Model: vidquota.ModelSeedance18, Provider: "mock", Success: true, Used: 2})
	out := buf.String()
	assert.Contains(t, out, `"component":"meter"`)
	assert.Contains(t, out, `"model":"1.8"`)
	assert.Contains(t, out, `"used":2`)
	assert.Contains(t, out, `"level":"info"`)

	buf.Reset()
	m.OnGenerate(vidquota.GenerateEvent{UserID: "u1", Stage: vidquota.StageQuotaChecked, Error: vidquota.ErrQuotaExhausted})
	assert.Contains(t, buf.String(), `"level":"warn"`)
	assert.Contains(t, buf.String(), `"stage":"quota_checked"`)

	buf.Reset()
	m.OnActivate(vidquota.ActivateEvent{UserID: "u1", Error: errors.New("boom")})
	assert.Contains(t, buf.String(), `"error":"boom"`)
}

func TestNoopMeter(t *testing.T) {
	var m vidquota.Meter = &meter.NoopMeter{}
	m.OnGenerate(vidquota.GenerateEvent{})
	m.OnActivate(vidquota.ActivateEvent{})
}
