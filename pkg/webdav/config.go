package webdav

// Config configures the WebDAV endpoint.
//
// When Enabled is false, the /dav routes are not mounted.
type Config struct {
	// Enabled controls whether the WebDAV endpoint is mounted.
	// Default: true
	// Use a pointer to distinguish "not set" from "explicitly false"
	Enabled *bool `mapstructure:"enabled" yaml:"enabled"`

	// AllowOrigin is the CORS Access-Control-Allow-Origin value.
	// Default: "*"
	AllowOrigin string `mapstructure:"allow_origin" yaml:"allow_origin"`

	// AllowHeaders is the CORS Access-Control-Allow-Headers value.
	// Default: "Authorization, Content-Type, Depth, Destination, Overwrite"
	AllowHeaders string `mapstructure:"allow_headers" yaml:"allow_headers"`

	// HeaderOverrides replaces or adds response headers on every WebDAV
	// response. Some clients need platform-specific values for the
	// Microsoft interop headers.
	HeaderOverrides map[string]string `mapstructure:"header_overrides" yaml:"header_overrides"`
}

// IsEnabled returns whether the WebDAV endpoint is enabled.
// Defaults to true if not explicitly set.
func (c *Config) IsEnabled() bool {
	if c.Enabled == nil {
		return true
	}
	return *c.Enabled
}

// applyDefaults fills in zero values with sensible defaults.
func (c *Config) applyDefaults() {
	if c.AllowOrigin == "" {
		c.AllowOrigin = "*"
	}
	if c.AllowHeaders == "" {
		c.AllowHeaders = "Authorization, Content-Type, Depth, Destination, Overwrite"
	}
}
