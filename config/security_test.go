package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheckConfigPath(t *testing.T) {
	tests := []struct {
		path    string
		wantErr string
	}{
		{path: "gateway.yaml"},
		{path: "configs/gateway.json"},
		{path: "/etc/exchangegate/gateway.yml"},
		{path: "", wantErr: "empty"},
		{path: "gateway.toml", wantErr: "only JSON or YAML"},
		{path: "../gateway.yaml", wantErr: "path traversal"},
		{path: "configs/../../gateway.yaml", wantErr: "path traversal"},
		{path: strings.Repeat("a", maxPathLen) + ".json", wantErr: "too long"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			err := checkConfigPath(tt.path)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			if assert.Error(t, err) {
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestCheckEnvValue(t *testing.T) {
	assert.NoError(t, checkEnvValue("EXCHANGEGATE_HTTP_LISTEN", ":8080"))
	assert.NoError(t, checkEnvValue("EXCHANGEGATE_HTTP_LISTEN", ""))
	assert.Error(t, checkEnvValue("EXCHANGEGATE_HTTP_LISTEN", ":80\x00"))
	assert.Error(t, checkEnvValue("EXCHANGEGATE_HTTP_LISTEN", strings.Repeat("x", maxEnvVarLen+1)))
}

func TestCheckJSONDepth(t *testing.T) {
	assert.NoError(t, checkJSONDepth([]byte(`{"a": [1, {"b": "}}}"}]}`)))
	assert.Error(t, checkJSONDepth([]byte(`{"a": [`)))

	deep := strings.Repeat("[", maxJSONDepth+1) + strings.Repeat("]", maxJSONDepth+1)
	err := checkJSONDepth([]byte(deep))
	if assert.Error(t, err) {
		assert.Contains(t, err.Error(), "too deep")
	}
}
