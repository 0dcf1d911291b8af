package config

const (
	defaultTimezone     = "America/New_York"
	defaultDataDir      = "data"
	defaultPromptsDir   = "prompts"
	defaultProvider     = "nanogpt"
	defaultNanoGPTModel = "chatgpt-4o-latest"
)

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	logDefaults := defaultLoggingConfig()
	return &Config{
		Timezone:   defaultTimezone,
		DataDir:    defaultDataDir,
		PromptsDir: defaultPromptsDir,
		Logging:    logDefaults,
		Providers: ProvidersConfig{
			Default: defaultProvider,
			NanoGPT: &ProviderConfig{
				APIKey: "",
				Model:  defaultNanoGPTModel,
			},
		},
	}
}

func defaultLoggingConfig() LoggingConfig {
	enabled := true
	return LoggingConfig{
		Enabled: &enabled,
		Level:   "info",
		Stdout:  true,
		File:    "logs/milo.log",
	}
}

func (c *Config) applyDefaults() {
	if c.Timezone == "" {
		c.Timezone = defaultTimezone
	}
	if c.DataDir == "" {
		c.DataDir = defaultDataDir
	}
	if c.PromptsDir == "" {
		c.PromptsDir = defaultPromptsDir
	}

	if c.Providers.Default == "" {
		c.Providers.Default = defaultProvider
	}
	if c.Providers.NanoGPT == nil {
		c.Providers.NanoGPT = &ProviderConfig{}
	}
	if c.Providers.NanoGPT.Model == "" {
		c.Providers.NanoGPT.Model = defaultNanoGPTModel
	}

	def := defaultLoggingConfig()
	if c.Logging == (LoggingConfig{}) {
		c.Logging = def
		return
	}

	hasAny := c.Logging.Level != "" || c.Logging.File != "" || c.Logging.Stdout
	if c.Logging.Enabled == nil && hasAny {
		enabled := true
		c.Logging.Enabled = &enabled
	}
	if c.Logging.Level == "" {
		c.Logging.Level = def.Level
	}
	if c.Logging.File == "" {
		c.Logging.File = def.File
	}
	if !c.Logging.Stdout && c.Logging.File == "" {
		c.Logging.Stdout = def.Stdout
	}
	if c.Logging.Enabled == nil {
		c.Logging.Enabled = def.Enabled
	}
}
