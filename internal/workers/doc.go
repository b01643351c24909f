/*
Package workers sizes worker pools in containerized environments.

The perf-test runner uses ForIO to bound how many runs fetch media at once.
Counts derive from runtime.GOMAXPROCS, which Go sets from the container CPU
limit, rather than runtime.NumCPU, which reports host CPUs:

	// 2 workers per available CPU, at most 16
	limit := workers.ForIO(16)

# Environment Variable Override

PERFTEST_WORKERS pins the count. The limit still applies:

	env:
	- name: PERFTEST_WORKERS
	  value: "4"

All functions are safe for concurrent use.
*/
package workers
