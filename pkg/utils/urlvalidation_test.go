package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateServiceURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{name: "forno", url: "https://forno.celo.org"},
		{name: "rate feed with path", url: "https://api.example.com/v1/fx"},
		{name: "localhost", url: "http://localhost:8545"},
		{name: "loopback ipv4", url: "http://127.0.0.1:8545"},
		{name: "loopback ipv6", url: "http://[::1]:8545"},
		{name: "plain http", url: "http://forno.celo.org", wantErr: true},
		{name: "localhost prefix on foreign host", url: "http://localhost.attacker.example", wantErr: true},
		{name: "loopback prefix on foreign host", url: "http://127.0.0.1.nip.io", wantErr: true},
		{name: "no scheme", url: "forno.celo.org", wantErr: true},
		{name: "no host", url: "https://", wantErr: true},
		{name: "empty", url: "", wantErr: true},
		{name: "websocket", url: "wss://forno.celo.org/ws", wantErr: true},
		{name: "unparseable", url: "https://%zz", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateServiceURL(tt.url)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
