// cmd/run_test.go
package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseChromeArg(t *testing.T) {
	tests := []struct {
		arg   string
		name  string
		value any
	}{
		{"disable-gpu", "disable-gpu", true},
		{"--disable-dev-shm-usage", "disable-dev-shm-usage", true},
		{"proxy-server=socks5://localhost:9050", "proxy-server", "socks5://localhost:9050"},
		{"--user-agent=pagepilot/1.0 (test)", "user-agent", "pagepilot/1.0 (test)"},
		{"window-position=0,0", "window-position", "0,0"},
	}
	for _, tc := range tests {
		name, value := parseChromeArg(tc.arg)
		assert.Equal(t, tc.name, name, tc.arg)
		assert.Equal(t, tc.value, value, tc.arg)
	}
}
