package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"sort"
	"strings"
)

func asBuildError(err error) *BuildError {
	var be *BuildError
	if stderrors.As(err, &be) {
		return be
	}
	return Wrap(ErrCodeInternal, err)
}

// FormatForCLI formats an error for CLI output.
// Uses a concise format suitable for terminal display.
func FormatForCLI(err error) string {
	if err == nil {
		return ""
	}

	be := asBuildError(err)

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Error: %s\n", be.Message))

	if len(be.Details) > 0 {
		keys := make([]string, 0, len(be.Details))
		for k := range be.Details {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			sb.WriteString(fmt.Sprintf("  %s: %s\n", k, be.Details[k]))
		}
	}

	if be.Cause != nil && be.Cause.Error() != be.Message {
		sb.WriteString(fmt.Sprintf("  Cause: %v\n", be.Cause))
	}

	if be.Suggestion != "" {
		sb.WriteString(fmt.Sprintf("  Hint: %s\n", be.Suggestion))
	}

	sb.WriteString(fmt.Sprintf("  Code: %s\n", be.Code))

	return sb.String()
}

// jsonError is the JSON representation of an error.
type jsonError struct {
	Code       string            `json:"code"`
	Message    string            `json:"message"`
	Category   string            `json:"category"`
	Severity   string            `json:"severity"`
	Details    map[string]string `json:"details,omitempty"`
	Suggestion string            `json:"suggestion,omitempty"`
	Cause      string            `json:"cause,omitempty"`
}

// FormatJSON returns a JSON representation of the error.
func FormatJSON(err error) ([]byte, error) {
	if err == nil {
		return json.Marshal(nil)
	}

	be := asBuildError(err)
	je := jsonError{
		Code:       be.Code,
		Message:    be.Message,
		Category:   string(be.Category),
		Severity:   string(be.Severity),
		Details:    be.Details,
		Suggestion: be.Suggestion,
	}
	if be.Cause != nil {
		je.Cause = be.Cause.Error()
	}

	return json.Marshal(je)
}

// LogAttrs formats an error as key-value pairs for slog.
func LogAttrs(err error) []any {
	if err == nil {
		return nil
	}

	var be *BuildError
	if !stderrors.As(err, &be) {
		return []any{"error", err.Error()}
	}

	attrs := []any{
		"error", be.Error(),
		"error_code", be.Code,
		"category", string(be.Category),
		"severity", string(be.Severity),
	}
	for k, v := range be.Details {
		attrs = append(attrs, "detail_"+k, v)
	}
	return attrs
}
