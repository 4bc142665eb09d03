package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"watchpost/internal/models"
)

func TestValidateRules(t *testing.T) {
	tests := []struct {
		name      string
		rules     []models.AlertRule
		wantField string
	}{
		{
			name:  "valid mix",
			rules: []models.AlertRule{{Kind: models.RuleCPU, Threshold: 90}, {Kind: models.RuleContainerDown, Target: "db"}},
		},
		{
			name:      "threshold out of range",
			rules:     []models.AlertRule{{Kind: models.RuleRAM, Threshold: 120}},
			wantField: "alerts.rules[0].threshold",
		},
		{
			name:      "zero threshold",
			rules:     []models.AlertRule{{Kind: models.RuleDisk}},
			wantField: "alerts.rules[0].threshold",
		},
		{
			name:      "negative duration",
			rules:     []models.AlertRule{{Kind: models.RuleCPU, Threshold: 80, DurationSeconds: -30}},
			wantField: "alerts.rules[0].duration_seconds",
		},
		{
			name:      "binary without target",
			rules:     []models.AlertRule{{Kind: models.RuleServiceDown}},
			wantField: "alerts.rules[0].target",
		},
		{
			name: "duplicate key",
			rules: []models.AlertRule{
				{Kind: models.RuleServiceDown, Target: "nginx"},
				{Kind: models.RuleServiceDown, Target: "nginx"},
			},
			wantField: "alerts.rules[1]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := ValidateRules(tt.rules)
			if tt.wantField == "" {
				assert.Empty(t, errs)
				return
			}
			require.NotEmpty(t, errs)
			assert.Equal(t, tt.wantField, errs[0].Field)
		})
	}
}

func TestValidate_AuthSecretLength(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	cfg.Server.Auth.Enabled = true
	cfg.Server.Auth.Secret = "short"
	err = Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.auth.secret")

	cfg.Server.Auth.Secret = "0123456789abcdef0123456789abcdef"
	assert.NoError(t, Validate(cfg))
}

func TestValidate_StructTags(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	cfg.History.Backend = "postgres"
	cfg.Logging.Level = "trace"
	err = Validate(cfg)
	require.Error(t, err)

	msg := err.Error()
	assert.Contains(t, msg, "history.backend")
	assert.Contains(t, msg, "logging.level")
}
