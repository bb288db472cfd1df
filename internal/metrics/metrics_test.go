package metrics

import (
	"context"
	"errors"
	"io"
	"net/http"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/bft-labs/pktreplay/pkg/playback"
)

func TestMetrics_Playback(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.Dispatched(100)
	m.Dispatched(28)
	m.SendFailed(errors.New("refused"))

	require.Equal(t, 2.0, testutil.ToFloat64(m.dispatchedPackets))
	require.Equal(t, 128.0, testutil.ToFloat64(m.dispatchedBytes))
	require.Equal(t, 1.0, testutil.ToFloat64(m.sendErrors))
}

func TestMetrics_StatusGauge(t *testing.T) {
	m := New(prometheus.NewRegistry())
	require.Equal(t, 1.0, testutil.ToFloat64(m.status.WithLabelValues("stopped")))

	m.StatusChanged(playback.Stopped, playback.Playing)
	m.StatusChanged(playback.Playing, playback.Paused)

	require.Equal(t, 0.0, testutil.ToFloat64(m.status.WithLabelValues("stopped")))
	require.Equal(t, 0.0, testutil.ToFloat64(m.status.WithLabelValues("playing")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.status.WithLabelValues("paused")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.transitions.WithLabelValues("stopped", "playing")))
}

func TestMetrics_CaptureAndIndex(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.Captured(512)
	m.CaptureFailed()
	m.IndexRebuilt(42)
	m.IndexRebuilt(43)

	require.Equal(t, 1.0, testutil.ToFloat64(m.capturedPackets))
	require.Equal(t, 512.0, testutil.ToFloat64(m.capturedBytes))
	require.Equal(t, 1.0, testutil.ToFloat64(m.captureErrors))
	require.Equal(t, 2.0, testutil.ToFloat64(m.indexRebuilds))
	require.Equal(t, 43.0, testutil.ToFloat64(m.indexedPacket))
}

func TestServer_ServesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.Dispatched(10)

	s, err := NewServer("127.0.0.1:0", reg, nil)
	require.NoError(t, err)
	s.Start()
	defer s.Stop(context.Background())

	resp, err := http.Get("http://" + s.Addr() + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), "pktreplay_playback_dispatched_packets_total 1")

	health, err := http.Get("http://" + s.Addr() + "/health")
	require.NoError(t, err)
	health.Body.Close()
	require.Equal(t, http.StatusOK, health.StatusCode)
}
