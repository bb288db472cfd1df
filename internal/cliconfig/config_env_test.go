package cliconfig

import (
	"reflect"
	"testing"
	"time"
)

func TestApplyEnvConfig(t *testing.T) {
	tests := []struct {
		name     string
		envVars  map[string]string
		changed  map[string]bool
		initial  Config
		expected Config
		wantErr  bool
	}{
		{
			name: "applies all valid env vars",
			envVars: map[string]string{
				"PKTREPLAY_DATA_DIR":             "/env/data",
				"PKTREPLAY_PROFILE":              "debug",
				"PKTREPLAY_MODE":                 "multicast",
				"PKTREPLAY_TARGET":               "239.1.1.1:5000",
				"PKTREPLAY_TICK_INTERVAL":        "25ms",
				"PKTREPLAY_SPEED":                "0.5",
				"PKTREPLAY_MAX_RECORDS_PER_FILE": "10",
				"PKTREPLAY_TTL":                  "3",
				"PKTREPLAY_AUTO_INDEX":           "1",
				"PKTREPLAY_MAX_RECORD_SIZE":      "1024",
			},
			changed: map[string]bool{},
			expected: Config{
				DataDir:           "/env/data",
				Profile:           "debug",
				Mode:              "multicast",
				Target:            "239.1.1.1:5000",
				TickInterval:      25 * time.Millisecond,
				Speed:             0.5,
				MaxRecordsPerFile: 10,
				TTL:               3,
				MaxRecordSize:     1024,
				AutoIndex:         boolPtr(true),
			},
		},
		{
			name: "respects changed flags",
			envVars: map[string]string{
				"PKTREPLAY_DATA_DIR": "/env/data",
				"PKTREPLAY_TARGET":   "10.1.1.1:1",
			},
			changed:  map[string]bool{"data-dir": true},
			initial:  Config{DataDir: "/flag"},
			expected: Config{DataDir: "/flag", Target: "10.1.1.1:1"},
		},
		{
			name:     "handles bool 'false' as false",
			envVars:  map[string]string{"PKTREPLAY_ENABLE_VALIDATION": "false"},
			changed:  map[string]bool{},
			initial:  Config{EnableValidation: boolPtr(true)},
			expected: Config{EnableValidation: boolPtr(false)},
		},
		{
			name:     "auto flush set only when present",
			envVars:  map[string]string{"PKTREPLAY_AUTO_FLUSH": "true"},
			changed:  map[string]bool{},
			expected: Config{AutoFlush: boolPtr(true)},
		},
		{
			name:     "changed auto-flush flag wins over env",
			envVars:  map[string]string{"PKTREPLAY_AUTO_FLUSH": "true"},
			changed:  map[string]bool{"auto-flush": true},
			initial:  Config{AutoFlush: boolPtr(false)},
			expected: Config{AutoFlush: boolPtr(false)},
		},
		{
			name:    "returns error for invalid max record size",
			envVars: map[string]string{"PKTREPLAY_MAX_RECORD_SIZE": "huge"},
			changed: map[string]bool{},
			wantErr: true,
		},
		{
			name:    "returns error for invalid duration",
			envVars: map[string]string{"PKTREPLAY_TICK_INTERVAL": "fast"},
			changed: map[string]bool{},
			wantErr: true,
		},
		{
			name:    "returns error for invalid int",
			envVars: map[string]string{"PKTREPLAY_BUFFER_SIZE": "big"},
			changed: map[string]bool{},
			wantErr: true,
		},
		{
			name:    "returns error for invalid float",
			envVars: map[string]string{"PKTREPLAY_SPEED": "warp"},
			changed: map[string]bool{},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}

			cfg := tt.initial
			err := ApplyEnvConfig(&cfg, tt.changed)

			if tt.wantErr {
				if err == nil {
					t.Error("ApplyEnvConfig() expected error but got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("ApplyEnvConfig() unexpected error: %v", err)
			}
			if !reflect.DeepEqual(cfg, tt.expected) {
				t.Errorf("ApplyEnvConfig() = %+v, want %+v", cfg, tt.expected)
			}
		})
	}
}
