// Package ipc implements the length-prefixed JSON control protocol exposed
// over a filesystem-backed local socket: the wire types, framing, socket
// path resolution, and client/server helpers built on top of them.
package ipc

import "encoding/json"

// Command names recognized by a Handler. Any other value is rejected with
// ErrCodeUnknownCommand.
const (
	CmdPing            = "PING"
	CmdGetStatus       = "GET_STATUS"
	CmdStartRecording  = "START_RECORDING"
	CmdStopRecording   = "STOP_RECORDING"
	CmdCancelRecording = "CANCEL_RECORDING"
	CmdProcessText     = "PROCESS_TEXT"
	CmdTranscribeFile  = "TRANSCRIBE_FILE"
	CmdPauseDaemon     = "PAUSE_DAEMON"
	CmdResumeDaemon    = "RESUME_DAEMON"
	CmdGetConfig       = "GET_CONFIG"
	CmdUpdateConfig    = "UPDATE_CONFIG"
)

// Response status values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Error codes carried in Response.Error for conditions the wire format
// itself defines, as opposed to free-form operational error text.
const (
	ErrCodeUnknownCommand  = "UNKNOWN_COMMAND"
	ErrCodePayloadTooLarge = "PAYLOAD_TOO_LARGE"
)

// Size limits enforced by the framing layer.
const (
	MaxRequestSize  = 10 << 20 // 10 MiB
	MaxResponseSize = 1 << 20  // 1 MiB
)

// Request is one command sent over the local socket:
// { "cmd": "<NAME>", "data": <object|null> }.
type Request struct {
	Cmd  string          `json:"cmd"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Response is the normalized command outcome:
// { "status": "success"|"error", "data": <any|null>, "error": <string|null> }.
// Data and Error marshal to explicit `null` rather than being omitted, since
// clients match on the literal key being present.
type Response struct {
	Status string
	Data   json.RawMessage
	Error  string
}

// wireResponse is Response's exact on-the-wire shape; Error is a pointer so
// an empty Go string still round-trips as JSON `null`, not `""`.
type wireResponse struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
	Error  *string         `json:"error"`
}

// MarshalJSON renders Response with data/error always present as `null`
// when empty, instead of encoding/json's default omitempty-style elision.
func (r Response) MarshalJSON() ([]byte, error) {
	w := wireResponse{Status: r.Status, Data: r.Data}
	if r.Error != "" {
		w.Error = &r.Error
	}
	return json.Marshal(w)
}

// UnmarshalJSON is MarshalJSON's inverse: a `null` or absent error becomes
// the zero string.
func (r *Response) UnmarshalJSON(data []byte) error {
	var w wireResponse
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	r.Status = w.Status
	r.Data = w.Data
	r.Error = ""
	if w.Error != nil {
		r.Error = *w.Error
	}
	return nil
}

// DaemonState is the data payload returned by status-bearing commands.
type DaemonState struct {
	State         string             `json:"state"`
	Transcription string             `json:"transcription,omitempty"`
	RefinedText   string             `json:"refined_text,omitempty"`
	Message       string             `json:"message,omitempty"`
	Telemetry     *TelemetrySnapshot `json:"telemetry,omitempty"`
	Shm           *ShmStatus         `json:"shm,omitempty"`
}

// ShmStatus describes the live shared-memory audio bridge so an external
// reader can map the region and consume [0, write_cursor) without copies.
// WriteCursor and Finalized are monotonic for the lifetime of one region.
type ShmStatus struct {
	Path            string `json:"path"`
	WriteCursor     uint64 `json:"write_cursor"`
	Finalized       bool   `json:"finalized"`
	CapacitySamples int    `json:"capacity_samples"`
}

// TelemetrySnapshot is the optional system-telemetry payload embedded in a DaemonState.
type TelemetrySnapshot struct {
	CPUPercent float64 `json:"cpu_percent"`
	RAMTotalKB uint64  `json:"ram_total_kb"`
	RAMUsedKB  uint64  `json:"ram_used_kb"`
	RAMPercent float64 `json:"ram_percent"`
	GPUTempC   uint32  `json:"gpu_temp_c"`
}

// Success builds a success Response, marshaling data into the Data field.
// A marshal failure degenerates to an error response rather than panicking,
// since Handle implementations must never let an internal encoding problem
// escape as an unchecked exception to the wire.
func Success(data any) Response {
	if data == nil {
		return Response{Status: StatusSuccess}
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return Response{Status: StatusError, Error: err.Error()}
	}
	return Response{Status: StatusSuccess, Data: raw}
}

// Failure builds an error Response carrying message as Error.
func Failure(message string) Response {
	return Response{Status: StatusError, Error: message}
}

// UnknownCommand builds the standard response for an unrecognized cmd.
func UnknownCommand(cmd string) Response {
	return Failure(ErrCodeUnknownCommand + ": " + cmd)
}
