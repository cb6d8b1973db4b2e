package gateway

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
)

// MissingThreadID is the error sent for frames without a thread id.
const MissingThreadID = "Missing threadId"

// UploadsPrefix is the URL path uploaded images are served under.
const UploadsPrefix = "/uploads/"

// Inbound is one client frame.
type Inbound struct {
	ThreadID string `json:"threadId"`
	Content  string `json:"content"`
	Image    string `json:"image,omitempty"`
	Language string `json:"language,omitempty"`
}

// Outbound answers one Inbound frame.
type Outbound struct {
	ThreadID string `json:"threadId"`
	Reply    string `json:"reply"`
}

// ErrorEnvelope is sent instead of Outbound when a frame fails validation.
type ErrorEnvelope struct {
	Error string `json:"error"`
}

// rawInbound defers field decoding so a field of the wrong type can be
// dropped without losing the rest of the frame.
type rawInbound struct {
	ThreadID json.RawMessage `json:"threadId"`
	Content  json.RawMessage `json:"content"`
	Image    json.RawMessage `json:"image"`
	Language json.RawMessage `json:"language"`
}

// decodeInbound parses a frame. Only input that is not a JSON object is a
// *ProtocolError; a known field that is not a string is treated as absent.
func decodeInbound(data []byte) (Inbound, *ProtocolError) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Inbound{}, &ProtocolError{Reason: "frame is not a JSON object"}
	}

	var raw rawInbound
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return Inbound{}, &ProtocolError{Reason: "malformed frame", Err: err}
	}
	return Inbound{
		ThreadID: stringField(raw.ThreadID),
		Content:  stringField(raw.Content),
		Image:    stringField(raw.Image),
		Language: stringField(raw.Language),
	}, nil
}

func stringField(raw json.RawMessage) string {
	var s string
	if len(raw) == 0 || json.Unmarshal(raw, &s) != nil {
		return ""
	}
	return s
}

// imagePath maps an image URL returned by the upload endpoint to the file in
// uploadDir. Only the base name after the last "/uploads/" is kept, so a URL
// can never point outside uploadDir.
func imagePath(uploadDir, url string) string {
	if url == "" {
		return ""
	}
	name := url
	if i := strings.LastIndex(url, UploadsPrefix); i >= 0 {
		name = url[i+len(UploadsPrefix):]
	}
	name = filepath.Base(filepath.FromSlash(name))
	if name == "." || name == ".." || name == string(filepath.Separator) {
		return ""
	}
	return filepath.Join(uploadDir, name)
}
