package config

const (
	defaultDataDir            = "~/.local/share/alokickflow"
	defaultLogDir             = "~/.local/share/alokickflow/logs"
	defaultAPIBind            = "127.0.0.1:7319"
	defaultLogLevel           = "info"
	defaultLogFormat          = "console"
	defaultBatchLimit         = 5
	defaultQueueTickSchedule  = "@every 1m"
	defaultHeartbeatInterval  = 15
	defaultHeartbeatTimeout   = 300
	defaultJobTimeoutSeconds  = 600
	defaultErrorRetryInterval = 5

	defaultDLQMaxRetries          = 3
	defaultDLQBackoffBaseSeconds  = 60
	defaultDLQBackoffCapSeconds   = 3600
	defaultDLQPurgeDefaultAgeDays = 30

	defaultTranscriptionTimeoutSeconds = 120
	defaultTranscriptionMaxMediaBytes  = 512 << 20

	defaultCreativeBaseURL        = "https://openrouter.ai/api/v1/chat/completions"
	defaultCreativeModel          = "anthropic/claude-sonnet-4"
	defaultCreativeSecondaryModel = "google/gemini-2.5-flash"
	defaultCreativeTimeoutSeconds = 60
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
			APIBind: defaultAPIBind,
		},
		Log: Log{
			Level:  defaultLogLevel,
			Format: defaultLogFormat,
		},
		Workflow: Workflow{
			BatchLimit:         defaultBatchLimit,
			QueueTickSchedule:  defaultQueueTickSchedule,
			HeartbeatInterval:  defaultHeartbeatInterval,
			HeartbeatTimeout:   defaultHeartbeatTimeout,
			JobTimeoutSeconds:  defaultJobTimeoutSeconds,
			ErrorRetryInterval: defaultErrorRetryInterval,
		},
		DLQ: DLQ{
			MaxRetries:          defaultDLQMaxRetries,
			BackoffBaseSeconds:  defaultDLQBackoffBaseSeconds,
			BackoffCapSeconds:   defaultDLQBackoffCapSeconds,
			PurgeDefaultAgeDays: defaultDLQPurgeDefaultAgeDays,
		},
		Transcription: Transcription{
			Enabled:        true,
			TimeoutSeconds: defaultTranscriptionTimeoutSeconds,
			MaxMediaBytes:  defaultTranscriptionMaxMediaBytes,
		},
		Creative: Creative{
			BaseURL:        defaultCreativeBaseURL,
			Model:          defaultCreativeModel,
			SecondaryModel: defaultCreativeSecondaryModel,
			TimeoutSeconds: defaultCreativeTimeoutSeconds,
		},
		Entitlements: Entitlements{},
	}
}
