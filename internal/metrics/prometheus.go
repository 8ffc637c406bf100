package metrics

import (
	"fmt"
	"sort"
	"strings"
)

// FormatPrometheus formats a snapshot in Prometheus text format.
// See: https://prometheus.io/docs/instrumenting/exposition_formats/
func FormatPrometheus(snap Snapshot) string {
	var sb strings.Builder

	sb.WriteString("# HELP emberchat_uptime_seconds Time since the daemon started\n")
	sb.WriteString("# TYPE emberchat_uptime_seconds gauge\n")
	sb.WriteString(fmt.Sprintf("emberchat_uptime_seconds %d\n", snap.Uptime))
	sb.WriteString("\n")

	sb.WriteString("# HELP emberchat_streams_started_total Streams started\n")
	sb.WriteString("# TYPE emberchat_streams_started_total counter\n")
	sb.WriteString(fmt.Sprintf("emberchat_streams_started_total %d\n", snap.StreamsStarted))
	sb.WriteString("\n")

	sb.WriteString("# HELP emberchat_streams_completed_total Streams that reached a clean terminal event\n")
	sb.WriteString("# TYPE emberchat_streams_completed_total counter\n")
	sb.WriteString(fmt.Sprintf("emberchat_streams_completed_total %d\n", snap.StreamsCompleted))
	sb.WriteString("\n")

	sb.WriteString("# HELP emberchat_stream_errors_total Streams that ended with a terminal error, by kind\n")
	sb.WriteString("# TYPE emberchat_stream_errors_total counter\n")
	for _, kind := range sortedKeys(snap.StreamErrors) {
		sb.WriteString(fmt.Sprintf("emberchat_stream_errors_total{kind=\"%s\"} %d\n", kind, snap.StreamErrors[kind]))
	}
	sb.WriteString("\n")

	sb.WriteString("# HELP emberchat_cancellations_total Explicit stream cancellations\n")
	sb.WriteString("# TYPE emberchat_cancellations_total counter\n")
	sb.WriteString(fmt.Sprintf("emberchat_cancellations_total %d\n", snap.Cancellations))
	sb.WriteString("\n")

	sb.WriteString("# HELP emberchat_prompt_tokens_total Total prompt tokens reported by backends\n")
	sb.WriteString("# TYPE emberchat_prompt_tokens_total counter\n")
	sb.WriteString(fmt.Sprintf("emberchat_prompt_tokens_total %d\n", snap.TotalPromptTokens))
	sb.WriteString("\n")

	sb.WriteString("# HELP emberchat_completion_tokens_total Total completion tokens reported by backends\n")
	sb.WriteString("# TYPE emberchat_completion_tokens_total counter\n")
	sb.WriteString(fmt.Sprintf("emberchat_completion_tokens_total %d\n", snap.TotalCompletionTokens))
	sb.WriteString("\n")

	sb.WriteString("# HELP emberchat_tokens_by_model_total Total tokens by model label\n")
	sb.WriteString("# TYPE emberchat_tokens_by_model_total counter\n")
	for _, model := range sortedKeys(snap.TokensByModel) {
		sb.WriteString(fmt.Sprintf("emberchat_tokens_by_model_total{model=\"%s\"} %d\n", model, snap.TokensByModel[model]))
	}
	sb.WriteString("\n")

	sb.WriteString("# HELP emberchat_backend_requests_total Streams routed per backend kind\n")
	sb.WriteString("# TYPE emberchat_backend_requests_total counter\n")
	for _, kind := range sortedKeys(snap.BackendRequests) {
		sb.WriteString(fmt.Sprintf("emberchat_backend_requests_total{kind=\"%s\"} %d\n", kind, snap.BackendRequests[kind]))
	}
	sb.WriteString("\n")

	sb.WriteString("# HELP emberchat_backend_latency_ms_total Total stream wall-clock duration per backend kind\n")
	sb.WriteString("# TYPE emberchat_backend_latency_ms_total counter\n")
	for _, kind := range sortedKeys(snap.BackendLatency) {
		sb.WriteString(fmt.Sprintf("emberchat_backend_latency_ms_total{kind=\"%s\"} %d\n", kind, snap.BackendLatency[kind]))
	}
	sb.WriteString("\n")

	return sb.String()
}

func sortedKeys[T any](m map[string]T) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
