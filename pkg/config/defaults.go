package config

const (
	defaultMaxOpenLogs = 512

	defaultStrategy         = "rolling"
	defaultMaxMessages      = 100
	defaultRotationInterval = 20
	defaultPreambleSize     = 8

	defaultIngestWorkers   = 3
	defaultIngestQueueSize = 256
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Storage: StorageConfig{
			MaxOpenLogs: defaultMaxOpenLogs,
		},
		Context: ContextConfig{
			Strategy:         defaultStrategy,
			MaxMessages:      defaultMaxMessages,
			RotationInterval: defaultRotationInterval,
			PreambleSize:     defaultPreambleSize,
		},
		Ingest: IngestConfig{
			Workers:   defaultIngestWorkers,
			QueueSize: defaultIngestQueueSize,
		},
	}
}
