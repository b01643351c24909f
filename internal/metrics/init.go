package metrics

// InitializeMetrics pre-populates all expected label combinations so that
// every metric is exported from the first Prometheus scrape.
// Call this once at startup after metric registration.
func InitializeMetrics() {
	strategies := []string{"aggressive", "moderate", "conservative"}

	for _, s := range strategies {
		StrategySelections.WithLabelValues(s)
		for _, outcome := range []string{"started", "completed", "stopped", "superseded"} {
			PreloadRunsTotal.WithLabelValues(s, outcome)
		}
	}

	for _, source := range []string{"connection", "probe", "none"} {
		SpeedEstimates.WithLabelValues(source)
	}

	for _, reason := range []string{"request", "status", "read"} {
		ProbeFailures.WithLabelValues(reason)
	}

	for _, event := range []string{"loadedmetadata", "canplay", "progress", "error", "ratechange", "timeupdate"} {
		PlayerEventsTotal.WithLabelValues(event)
	}

	// MediaError codes 1-4
	for _, code := range []string{"1", "2", "3", "4"} {
		PlaybackErrors.WithLabelValues(code)
	}

	for _, kind := range []string{"hls", "mp4"} {
		LoadTime.WithLabelValues(kind)
		PerfTestLoadTime.WithLabelValues(kind)
		for _, status := range []string{"completed", "timeout", "failed"} {
			PerfTestsTotal.WithLabelValues(kind, status)
		}
	}

	for _, op := range []string{"save_result", "get_result", "list_results", "initialize_schema"} {
		DBQueryTotal.WithLabelValues(op, "success")
		DBQueryTotal.WithLabelValues(op, "error")
	}
}
