package setup

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidators(t *testing.T) {
	tests := []struct {
		name    string
		fn      func(string) error
		in      string
		wantErr bool
	}{
		{name: "required ok", fn: required("key"), in: "abc"},
		{name: "required blank", fn: required("key"), in: "   ", wantErr: true},
		{name: "https url", fn: validateBaseURL, in: "https://api.kucoin.com"},
		{name: "relative url", fn: validateBaseURL, in: "api.kucoin.com", wantErr: true},
		{name: "ftp url", fn: validateBaseURL, in: "ftp://api.kucoin.com", wantErr: true},
		{name: "dashless id", fn: validateDatabaseID, in: "0f1e2d3c4b5a69788796a5b4c3d2e1f0"},
		{name: "dashed id", fn: validateDatabaseID, in: "0f1e2d3c-4b5a-6978-8796-a5b4c3d2e1f0"},
		{name: "short id", fn: validateDatabaseID, in: "0f1e2d3c", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.fn(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestBuildConfig(t *testing.T) {
	cfg := buildConfig(" key ", "secret", "pass", "https://api.kucoin.com", []string{"trade"},
		"token", "0f1e2d3c4b5a69788796a5b4c3d2e1f0", ":3333")

	assert.Equal(t, "key", cfg.KuCoin.APIKey)
	assert.Equal(t, []string{"trade"}, cfg.KuCoin.Partitions)
	assert.Equal(t, "0f1e2d3c-4b5a-6978-8796-a5b4c3d2e1f0", cfg.Notion.DatabaseID)
	assert.Equal(t, ":3333", cfg.Server.Addr)
	assert.NoError(t, cfg.Validate())
}
