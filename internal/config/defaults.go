package config

const (
	defaultDataDir                 = "~/.local/share/muse"
	defaultCacheDir                = "~/.cache/muse"
	defaultLogDir                  = "~/.local/share/muse/logs"
	defaultAPIBind                 = "127.0.0.1:7519"
	defaultGeneratorBaseURL        = "https://openrouter.ai/api/v1/chat/completions"
	defaultGeneratorModel          = "google/gemini-3-flash-preview"
	defaultGeneratorTitle          = "Muse"
	defaultGeneratorTimeoutSeconds = 60
	defaultSpeechBaseURL           = "https://api.openai.com/v1/audio/speech"
	defaultSpeechModel             = "tts-1"
	defaultSpeechVoice             = "alloy"
	defaultSpeechTimeoutSeconds    = 60
	defaultLogFormat               = "text"
	defaultLogLevel                = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:  defaultDataDir,
			CacheDir: defaultCacheDir,
			LogDir:   defaultLogDir,
			APIBind:  defaultAPIBind,
		},
		Generator: Generator{
			BaseURL:        defaultGeneratorBaseURL,
			Model:          defaultGeneratorModel,
			Title:          defaultGeneratorTitle,
			TimeoutSeconds: defaultGeneratorTimeoutSeconds,
		},
		Speech: Speech{
			Enabled:        true,
			BaseURL:        defaultSpeechBaseURL,
			Model:          defaultSpeechModel,
			Voice:          defaultSpeechVoice,
			TimeoutSeconds: defaultSpeechTimeoutSeconds,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
