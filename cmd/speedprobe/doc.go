// Command speedprobe measures network speed from the command line and shows
// which preload strategy the server would pick for it.
//
// Usage:
//
//	speedprobe <command> [flags]
//
// Commands:
//
//	estimate  Fetch the speed probe at -url and report the estimated
//	          downlink, the selected strategy and its buffer settings.
//	          -downlink skips the probe and uses the given Mbps.
//
//	history   List the most recent perf-test results from the server's
//	          database, newest first.
//
// Output is an aligned table when stdout is a terminal and indented JSON
// otherwise, so the command can be piped into jq.
//
// Environment:
//
//	DATA_DIR - Directory holding perftests.db (default: ./data)
package main
