package config

import "testing"

func baseConfig() *Config {
	return &Config{
		ServerAddr: "127.0.0.1:2342",
		PlayerName: "tester",
		Protocol:   "CHOCOLATE_DOOM_0",
		Extratics:  1,
		LogFormat:  "text",
		LogLevel:   "info",
	}
}

func TestConfigValidateOK(t *testing.T) {
	if err := baseConfig().validate(); err != nil {
		t.Fatalf("expected ok got %v", err)
	}
}

func TestConfigValidateErrors(t *testing.T) {
	tests := []struct {
		name string
		mod  func(*Config)
	}{
		{"badFormat", func(c *Config) { c.LogFormat = "xx" }},
		{"badLevel", func(c *Config) { c.LogLevel = "nope" }},
		{"emptyServer", func(c *Config) { c.ServerAddr = "" }},
		{"badExtraticsLow", func(c *Config) { c.Extratics = -1 }},
		{"badExtraticsHigh", func(c *Config) { c.Extratics = 10 }},
		{"badDiscover", func(c *Config) { c.DiscoverTime = -1 }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := baseConfig()
			tc.mod(c)
			if err := c.validate(); err == nil {
				t.Fatalf("%s: expected error", tc.name)
			}
		})
	}
}
