package seedance_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ineyio/vidquota"
	"github.com/ineyio/vidquota/provider/seedance"
)

func TestGenerateVideo_SendsPayloadAndDecodes(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/video/generate", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"task_id": 12345, "data": {"video_url": "https://cdn.example.com/v.mp4"}}`))
	}))
	defer srv.Close()

	p := seedance.New(srv.URL+"/", vidquota.Auth{APIKey: "sk-test"})
	res, err := p.GenerateVideo(context.Background(), vidquota.VideoRequest{
		Model:        vidquota.ModelSeedance18,
		DigitalHuman: "anna",
		VoiceStyle:   "male",
		Script:       "hello",
	})
	require.NoError(t, err)

	assert.Equal(t, map[string]string{
		"model":         "sedance-1.8",
		"digital_human": "anna",
		"voice_style":   "male",
		"script":        "hello",
	}, got)

	require.NotNil(t, vidquota.ExtractVideoURL(res.Raw))
	assert.Equal(t, "https://cdn.example.com/v.mp4", *vidquota.ExtractVideoURL(res.Raw))
	require.NotNil(t, vidquota.ExtractTaskID(res.Raw))
	assert.Equal(t, "12345", *vidquota.ExtractTaskID(res.Raw))
}

func TestGenerateVideo_HTTPErrorIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := seedance.New(srv.URL, vidquota.Auth{}).GenerateVideo(context.Background(), vidquota.VideoRequest{Model: vidquota.ModelSeedance20})
	assert.ErrorIs(t, err, vidquota.ErrProviderUnavailable)
	assert.Contains(t, err.Error(), "overloaded")
}

func TestGenerateVideo_BadJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>oops</html>`))
	}))
	defer srv.Close()

	_, err := seedance.New(srv.URL, vidquota.Auth{}).GenerateVideo(context.Background(), vidquota.VideoRequest{Model: vidquota.ModelSeedance20})
	assert.ErrorIs(t, err, vidquota.ErrBadResponse)
}

func TestGenerateVideo_NonObjectJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`null`))
	}))
	defer srv.Close()

	_, err := seedance.New(srv.URL, vidquota.Auth{}).GenerateVideo(context.Background(), vidquota.VideoRequest{Model: vidquota.ModelSeedance20})
	assert.ErrorIs(t, err, vidquota.ErrBadResponse)
}

func TestGenerateVideo_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := seedance.New(srv.URL, vidquota.Auth{}).GenerateVideo(ctx, vidquota.VideoRequest{Model: vidquota.ModelSeedance20})
	assert.ErrorIs(t, err, vidquota.ErrProviderTimeout)
}

func TestGenerateVideo_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := seedance.New(url, vidquota.Auth{}).GenerateVideo(context.Background(), vidquota.VideoRequest{Model: vidquota.ModelSeedance20})
	assert.ErrorIs(t, err, vidquota.ErrProviderUnavailable)
}
