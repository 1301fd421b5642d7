package levenshtein

import (
	"testing"
	"time"
)

func TestDefaultSessionOptions(t *testing.T) {
	o := defaultSessionOptions()
	if o.backend != BackendAuto {
		t.Errorf("backend = %v, want auto", o.backend)
	}
	if o.padding != DefaultPadding {
		t.Errorf("padding = %d, want %d", o.padding, DefaultPadding)
	}
	if o.workgroupSize != DefaultWorkgroupSize {
		t.Errorf("workgroupSize = %d, want %d", o.workgroupSize, DefaultWorkgroupSize)
	}
	if o.fenceTimeout != DefaultFenceTimeout || o.pollInterval != DefaultPollInterval {
		t.Errorf("timeouts = %v/%v", o.fenceTimeout, o.pollInterval)
	}
	if o.provider != nil {
		t.Error("provider should be nil by default")
	}
}

func TestSessionOptions(t *testing.T) {
	o := defaultSessionOptions()
	for _, opt := range []SessionOption{
		WithBackend(BackendSoftware),
		WithPadding(16),
		WithWorkgroupSize(32),
		WithWorkers(3),
		WithFenceTimeout(time.Second),
		WithPollInterval(5 * time.Millisecond),
	} {
		opt(&o)
	}
	if o.backend != BackendSoftware || o.padding != 16 || o.workgroupSize != 32 || o.workers != 3 {
		t.Errorf("options not applied: %+v", o)
	}
	if o.fenceTimeout != time.Second || o.pollInterval != 5*time.Millisecond {
		t.Errorf("timeouts not applied: %v/%v", o.fenceTimeout, o.pollInterval)
	}

	WithPollInterval(0)(&o)
	if o.pollInterval != 5*time.Millisecond {
		t.Errorf("WithPollInterval(0) changed interval to %v", o.pollInterval)
	}
}

func TestParseBackend(t *testing.T) {
	tests := []struct {
		in      string
		want    Backend
		wantErr bool
	}{
		{"", BackendAuto, false},
		{"auto", BackendAuto, false},
		{"vulkan", BackendVulkan, false},
		{"gpu", BackendVulkan, false},
		{"software", BackendSoftware, false},
		{"cpu", BackendSoftware, false},
		{"metal", BackendAuto, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseBackend(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseBackend(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseBackend(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}
