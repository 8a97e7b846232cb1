package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Faucet: FaucetConfig{
			MaxATN:     5,
			MaxNTN:     50,
			DailyLimit: 10,
		},
		CDP: CDPConfig{
			Mode:                 "auto",
			TargetCR:             2.5,
			MinCR:                2.2,
			MaxCR:                3.0,
			CheckIntervalMinutes: 5,
			EmergencyAction:      "alert",
		},
	}
}

func TestValidateAccepts(t *testing.T) {
	require.NoError(t, validConfig().Validate())

	for _, mode := range []string{"auto", "manual", "disabled"} {
		cfg := validConfig()
		cfg.CDP.Mode = mode
		assert.NoError(t, cfg.Validate(), "mode %s", mode)
	}
	for _, action := range []string{"alert", "repay", "pause"} {
		cfg := validConfig()
		cfg.CDP.EmergencyAction = action
		assert.NoError(t, cfg.Validate(), "action %s", action)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown mode", func(c *Config) { c.CDP.Mode = "turbo" }},
		{"unknown emergency action", func(c *Config) { c.CDP.EmergencyAction = "scream" }},
		{"min above target", func(c *Config) { c.CDP.MinCR = 2.6 }},
		{"target above max", func(c *Config) { c.CDP.TargetCR = 3.5 }},
		{"equal ratios", func(c *Config) { c.CDP.MinCR, c.CDP.TargetCR, c.CDP.MaxCR = 2.5, 2.5, 2.5 }},
		{"zero interval", func(c *Config) { c.CDP.CheckIntervalMinutes = 0 }},
		{"zero daily limit", func(c *Config) { c.Faucet.DailyLimit = 0 }},
		{"zero max atn", func(c *Config) { c.Faucet.MaxATN = 0 }},
		{"negative max ntn", func(c *Config) { c.Faucet.MaxNTN = -1 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
