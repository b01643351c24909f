package memory

import (
	"testing"
	"time"

	"go.uber.org/goleak"

	"hls-preload/internal/clock"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestConfigure(t *testing.T) {
	tests := []struct {
		name       string
		env        map[string]string
		runtimeCap int64
		wantSource string
		wantLimit  int64
		wantRatio  float64
		wantSet    bool
	}{
		{
			name:       "nothing set",
			env:        map[string]string{},
			wantSource: SourceNone,
		},
		{
			name:       "GOMEMLIMIT wins",
			env:        map[string]string{"GOMEMLIMIT": "500MiB", "MEMORY_LIMIT": "1073741824"},
			runtimeCap: 500 << 20,
			wantSource: SourceGOMEMLIMIT,
			wantLimit:  500 << 20,
		},
		{
			name:       "container limit default ratio",
			env:        map[string]string{"MEMORY_LIMIT": "1000000000"},
			wantSource: SourceMemoryLimit,
			wantLimit:  900000000,
			wantRatio:  DefaultMemoryRatio,
			wantSet:    true,
		},
		{
			name:       "container limit custom ratio",
			env:        map[string]string{"MEMORY_LIMIT": "1000000000", "MEMORY_RATIO": "0.5"},
			wantSource: SourceMemoryLimit,
			wantLimit:  500000000,
			wantRatio:  0.5,
			wantSet:    true,
		},
		{
			name:       "ratio out of range",
			env:        map[string]string{"MEMORY_LIMIT": "1000000000", "MEMORY_RATIO": "1.5"},
			wantSource: SourceMemoryLimit,
			wantLimit:  900000000,
			wantRatio:  DefaultMemoryRatio,
			wantSet:    true,
		},
		{
			name:       "invalid container limit",
			env:        map[string]string{"MEMORY_LIMIT": "lots"},
			wantSource: SourceNone,
		},
		{
			name:       "negative container limit",
			env:        map[string]string{"MEMORY_LIMIT": "-1"},
			wantSource: SourceNone,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var set int64
			setLimit := func(v int64) int64 {
				if v < 0 {
					return tt.runtimeCap
				}
				set = v
				return 0
			}
			getenv := func(k string) string { return tt.env[k] }

			res := configure(getenv, setLimit)
			if res.Source != tt.wantSource {
				t.Errorf("Source = %q, want %q", res.Source, tt.wantSource)
			}
			if res.GoMemLimit != tt.wantLimit {
				t.Errorf("GoMemLimit = %d, want %d", res.GoMemLimit, tt.wantLimit)
			}
			if res.Ratio != tt.wantRatio {
				t.Errorf("Ratio = %v, want %v", res.Ratio, tt.wantRatio)
			}
			if tt.wantSet && set != tt.wantLimit {
				t.Errorf("runtime limit set to %d, want %d", set, tt.wantLimit)
			}
			if !tt.wantSet && set != 0 {
				t.Errorf("runtime limit unexpectedly set to %d", set)
			}
		})
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{512, "512 B"},
		{1024, "1.0 KiB"},
		{1536, "1.5 KiB"},
		{1 << 20, "1.0 MiB"},
		{3 << 30, "3.0 GiB"},
	}
	for _, tt := range tests {
		if got := FormatBytes(tt.in); got != tt.want {
			t.Errorf("FormatBytes(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestStatsMB(t *testing.T) {
	s := Stats{UsedBytes: 12345678, LimitBytes: 512 << 20}
	if got := s.UsedMB(); got != 11.77 {
		t.Errorf("UsedMB() = %v, want 11.77", got)
	}
	if got := s.LimitMB(); got != 512 {
		t.Errorf("LimitMB() = %v, want 512", got)
	}
	if got := (Stats{}).LimitMB(); got != 0 {
		t.Errorf("LimitMB() without limit = %v, want 0", got)
	}
}

func TestMonitorSamplesOnInterval(t *testing.T) {
	fake := clock.NewFake(time.Unix(0, 0))
	readings := make(chan uint64, 1)
	readings <- 100 << 20
	last := uint64(100 << 20)
	read := func() uint64 {
		select {
		case v := <-readings:
			last = v
		default:
		}
		return last
	}

	m := newMonitor(Config{LimitBytes: 400 << 20, Interval: time.Second, Clock: fake}, read)
	st := m.Stats()
	if st.UsedBytes != 100<<20 || st.LimitBytes != 400<<20 {
		t.Fatalf("initial stats = %+v", st)
	}
	if st.UsageRatio != 0.25 {
		t.Errorf("UsageRatio = %v, want 0.25", st.UsageRatio)
	}

	m.Start()
	defer m.Stop()

	readings <- 200 << 20
	fake.Advance(time.Second)

	deadline := time.Now().Add(2 * time.Second)
	for m.Stats().UsedBytes != 200<<20 {
		if time.Now().After(deadline) {
			t.Fatal("monitor did not sample after one interval")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if got := m.Stats(); got.UsageRatio != 0.5 || !got.SampledAt.Equal(time.Unix(1, 0)) {
		t.Errorf("stats after tick = %+v", got)
	}
}

func TestMonitorStopIdempotent(t *testing.T) {
	m := NewMonitor(Config{Interval: 10 * time.Millisecond})
	m.Stop()
	m.Start()
	m.Stop()
	m.Stop()
}

func TestMonitorRealHeap(t *testing.T) {
	m := NewMonitor(DefaultConfig())
	if m.Stats().UsedBytes <= 0 {
		t.Error("expected a positive heap reading")
	}
}
