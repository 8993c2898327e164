package models

// TaskStatus is the polling payload of a running transcode.
type TaskStatus struct {
	ETA      int64   `json:"eta"`      // seconds
	Progress float64 `json:"progress"` // 0-100
}

// FinalTaskStatus is written once a transcode has terminated, whatever the
// outcome.
var FinalTaskStatus = TaskStatus{ETA: 0, Progress: 100}

// TranscodeRequest describes a transcode submitted through the API or CLI.
type TranscodeRequest struct {
	Input     string `json:"input"`             // urn of an existing record, or a locator
	Output    string `json:"output"`            // locator of the output resource
	Encoder   string `json:"encoder,omitempty"` // defaults to the configured encoder
	Args      string `json:"args,omitempty"`    // encoder argument string
	MediaType string `json:"media_type,omitempty"`
}
