package output

import (
	"testing"
)

func TestIsWSL(t *testing.T) {
	tests := []struct {
		name           string
		procVersion    string
		wslEnv         string
		expectedResult bool
	}{
		{
			name:           "WSL1 detected via /proc/version",
			procVersion:    "Linux version 4.4.0-19041-Microsoft (Microsoft@Microsoft.com) (gcc version 5.4.0) #1237-Microsoft",
			expectedResult: true,
		},
		{
			name:           "WSL2 detected via /proc/version",
			procVersion:    "Linux version 5.15.74.2-microsoft-standard-WSL2 (gcc (GCC) 11.2.0) #1 SMP",
			expectedResult: true,
		},
		{
			name:           "WSL detected via WSL_DISTRO_NAME env var",
			wslEnv:         "Ubuntu",
			expectedResult: true,
		},
		{
			name:           "Native Linux - no WSL indicators",
			procVersion:    "Linux version 5.15.0-56-generic (buildd@lcy02-amd64-044) #62-Ubuntu SMP",
			expectedResult: false,
		},
		{
			name:           "Empty proc version and no env var",
			expectedResult: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := detectWSLFromData(tt.procVersion, tt.wslEnv); got != tt.expectedResult {
				t.Errorf("expected %v, got %v", tt.expectedResult, got)
			}
		})
	}
}

func TestDetectOptimalBackend(t *testing.T) {
	if got := detectOptimalBackend(true); got != BackendOto {
		t.Errorf("WSL: expected %s, got %s", BackendOto, got)
	}
	if got := detectOptimalBackend(false); got != BackendMalgo {
		t.Errorf("native: expected %s, got %s", BackendMalgo, got)
	}
}

func TestTruncateString(t *testing.T) {
	if got := truncateString("abcdef", 3); got != "abc..." {
		t.Errorf("expected abc..., got %s", got)
	}
	if got := truncateString("abc", 3); got != "abc" {
		t.Errorf("expected abc, got %s", got)
	}
}
