package config

import "time"

// NewSyncForTest creates a Sync config for testing purposes. Fields not
// under test get the serve defaults.
func NewSyncForTest(pollInterval, dedupWindow, retentionWindow time.Duration) *Sync {
	return &Sync{
		pollInterval:    pollInterval,
		dedupWindow:     dedupWindow,
		gracePeriod:     72 * time.Hour,
		warningLeadTime: 24 * time.Hour,
		scanInterval:    time.Minute,
		pollFanout:      4,
		safetyMargin:    5 * time.Minute,
		retentionWindow: retentionWindow,
	}
}

// NewLoggerForTest creates a Logger config for testing purposes
func NewLoggerForTest(level, format, output string) *Logger {
	return &Logger{
		level:  level,
		format: format,
		output: output,
	}
}
