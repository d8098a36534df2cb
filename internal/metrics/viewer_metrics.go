package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/open-beagle/bdwind-viewer/internal/webrtc"
)

const negotiationResultOK = "ok"

// ViewerMetrics 流会话指标收集器，实现 webrtc.Observer
type ViewerMetrics struct {
	// 连接状态，每个流只有当前状态为1
	streamStatus Gauge

	iceStateChanges  Counter
	sessionsStarted  Counter
	retriesScheduled Counter
	// 会话失败，kind 为错误分类
	sessionFailures Counter

	// 协商结果，result 为 ok 或错误分类
	negotiations       Counter
	negotiationLatency Histogram

	tracks          Counter
	packetsReceived Counter
	bytesReceived   Counter
}

var _ webrtc.Observer = (*ViewerMetrics)(nil)

// NewViewerMetrics 在给定注册表上注册流会话指标
func NewViewerMetrics(metrics Metrics) (*ViewerMetrics, error) {
	vm := &ViewerMetrics{}
	var err error

	if vm.streamStatus, err = metrics.RegisterGauge("stream_status",
		"Current connection status of each stream (1 for the active status)",
		[]string{"stream_id", "status"}); err != nil {
		return nil, fmt.Errorf("failed to register stream_status: %w", err)
	}
	if vm.iceStateChanges, err = metrics.RegisterCounter("ice_state_changes_total",
		"ICE connection state transitions", []string{"stream_id", "state"}); err != nil {
		return nil, fmt.Errorf("failed to register ice_state_changes_total: %w", err)
	}
	if vm.sessionsStarted, err = metrics.RegisterCounter("sessions_started_total",
		"Connection attempts started", []string{"stream_id"}); err != nil {
		return nil, fmt.Errorf("failed to register sessions_started_total: %w", err)
	}
	if vm.retriesScheduled, err = metrics.RegisterCounter("retries_scheduled_total",
		"Reconnect attempts scheduled", []string{"stream_id"}); err != nil {
		return nil, fmt.Errorf("failed to register retries_scheduled_total: %w", err)
	}
	if vm.sessionFailures, err = metrics.RegisterCounter("session_failures_total",
		"Sessions that ended in the failed status by error kind", []string{"stream_id", "kind"}); err != nil {
		return nil, fmt.Errorf("failed to register session_failures_total: %w", err)
	}
	if vm.negotiations, err = metrics.RegisterCounter("negotiations_total",
		"Completed offer/answer negotiations by result", []string{"stream_id", "result"}); err != nil {
		return nil, fmt.Errorf("failed to register negotiations_total: %w", err)
	}
	if vm.negotiationLatency, err = metrics.RegisterHistogram("negotiation_duration_seconds",
		"Time from session start to remote description applied",
		[]string{"stream_id"}, prometheus.ExponentialBuckets(0.05, 2, 10)); err != nil {
		return nil, fmt.Errorf("failed to register negotiation_duration_seconds: %w", err)
	}
	if vm.tracks, err = metrics.RegisterCounter("tracks_total",
		"Remote tracks received", []string{"stream_id", "kind"}); err != nil {
		return nil, fmt.Errorf("failed to register tracks_total: %w", err)
	}
	if vm.packetsReceived, err = metrics.RegisterCounter("rtp_packets_received_total",
		"RTP packets read from remote tracks", []string{"stream_id", "kind"}); err != nil {
		return nil, fmt.Errorf("failed to register rtp_packets_received_total: %w", err)
	}
	if vm.bytesReceived, err = metrics.RegisterCounter("rtp_bytes_received_total",
		"RTP bytes read from remote tracks", []string{"stream_id", "kind"}); err != nil {
		return nil, fmt.Errorf("failed to register rtp_bytes_received_total: %w", err)
	}

	return vm, nil
}

func (vm *ViewerMetrics) StatusChanged(streamID string, from, to webrtc.ConnectionStatus) {
	if from != "" && from != to {
		vm.streamStatus.Delete(streamID, string(from))
	}
	vm.streamStatus.Set(1, streamID, string(to))
}

func (vm *ViewerMetrics) ICEStateChanged(streamID, state string) {
	vm.iceStateChanges.Inc(streamID, state)
}

func (vm *ViewerMetrics) NegotiationFinished(streamID string, elapsed time.Duration, errKind string) {
	result := errKind
	if result == "" {
		result = negotiationResultOK
		vm.negotiationLatency.Observe(elapsed.Seconds(), streamID)
	}
	vm.negotiations.Inc(streamID, result)
}

func (vm *ViewerMetrics) RetryScheduled(streamID string) {
	vm.retriesScheduled.Inc(streamID)
}

func (vm *ViewerMetrics) SessionFailed(streamID, errKind string) {
	vm.sessionFailures.Inc(streamID, errKind)
}

func (vm *ViewerMetrics) SessionStarted(streamID string) {
	vm.sessionsStarted.Inc(streamID)
}

func (vm *ViewerMetrics) TrackAdded(streamID, kind string) {
	vm.tracks.Inc(streamID, kind)
}

func (vm *ViewerMetrics) PacketReceived(streamID, kind string, size int) {
	vm.packetsReceived.Inc(streamID, kind)
	vm.bytesReceived.Add(float64(size), streamID, kind)
}
