package analysis

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrCaptureInvalid is returned when a file is not a readable pcap or pcapng capture.
	ErrCaptureInvalid = errors.New("invalid capture file")
	// ErrUnsupportedFormat is returned for export formats other than pdf, csv and json.
	ErrUnsupportedFormat = errors.New("unsupported report format")
)

// ServiceError is a non-2xx answer from the analysis service.
type ServiceError struct {
	Status int
	Detail string
}

func (e *ServiceError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("analysis service returned status %d", e.Status)
	}
	return fmt.Sprintf("analysis service returned status %d: %s", e.Status, e.Detail)
}

// parseDetail extracts the "detail" field of an error body. The field may be
// a string or a list of validation errors; anything else falls back to the
// raw body text.
func parseDetail(body []byte) string {
	var payload struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err != nil || len(payload.Detail) == 0 {
		return strings.TrimSpace(string(body))
	}

	var s string
	if err := json.Unmarshal(payload.Detail, &s); err == nil {
		return s
	}

	var items []struct {
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(payload.Detail, &items); err == nil && len(items) > 0 {
		msgs := make([]string, 0, len(items))
		for _, it := range items {
			msgs = append(msgs, it.Msg)
		}
		return strings.Join(msgs, "; ")
	}
	return string(payload.Detail)
}
