package server

// Request types for WebSocket commands with validation tags. These use
// go-playground/validator struct tags for automatic validation.

// StartRequest is the request body for recording/start.
type StartRequest struct {
	EnableVAD bool `json:"enable_vad"`

	// SilenceThresholdRMS is required when VAD is enabled and the daemon
	// configuration does not supply one.
	SilenceThresholdRMS    *float64 `json:"silence_threshold_rms" validate:"omitempty,gt=0,lte=1"`
	SilenceDurationMs      *int64   `json:"silence_duration_ms" validate:"omitempty,gte=500,lte=300000"`
	MinRecordingDurationMs *int64   `json:"min_recording_duration_ms" validate:"omitempty,gte=0,lte=60000"`
}

// EventsRequest is the request body for events/recent.
type EventsRequest struct {
	Limit int `json:"limit" validate:"omitempty,gte=1,lte=500"`
}

// WebhookTestRequest is the request body for webhook/test.
type WebhookTestRequest struct {
	URL string `json:"url" validate:"omitempty,url,max=2048"`
}
