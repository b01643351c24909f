// Package memory configures and samples Go heap usage.
//
// [ConfigureFromEnv] sets the runtime soft memory limit (GOMEMLIMIT) from a
// container limit passed through the Kubernetes Downward API:
//
//	env:
//	- name: MEMORY_LIMIT
//	  valueFrom:
//	    resourceFieldRef:
//	      resource: limits.memory
//	- name: MEMORY_RATIO
//	  value: "0.9"
//
// An explicit GOMEMLIMIT always wins.
//
// [Monitor] samples the heap on a poller and keeps the latest [Stats]. The
// debug overlay reports those readings as used and limit MiB, and the
// Prometheus gauges hls_preload_memory_used_bytes and
// hls_preload_memory_usage_ratio follow every sample.
package memory
