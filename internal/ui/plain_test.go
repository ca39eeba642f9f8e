package ui

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlainRenderer_UpdateProgress_Formats(t *testing.T) {
	tests := []struct {
		name  string
		event ProgressEvent
		want  string
	}{
		{
			name:  "known total",
			event: ProgressEvent{Stage: StageScanning, Current: 50, Total: 100, Message: "public.orders"},
			want:  "[SCAN] 50/100 - public.orders\n",
		},
		{
			name:  "unknown total",
			event: ProgressEvent{Stage: StageSubmitting, Current: 7, Message: "acknowledged"},
			want:  "[SUBMIT] 7 - acknowledged\n",
		},
		{
			name:  "message only",
			event: ProgressEvent{Stage: StageCatalog, Message: "3 columns"},
			want:  "[CATALOG] 3 columns\n",
		},
		{
			name:  "empty event",
			event: ProgressEvent{Stage: StageScanning},
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			r := NewPlainRenderer(NewConfig(buf))

			r.UpdateProgress(tt.event)

			assert.Equal(t, tt.want, buf.String())
		})
	}
}

func TestPlainRenderer_NoANSICodes(t *testing.T) {
	// Given: a plain renderer
	buf := &bytes.Buffer{}
	r := NewPlainRenderer(NewConfig(buf))

	// When: rendering every stage, an error, and the summary
	for _, stage := range []Stage{StageCatalog, StageScanning, StageSubmitting, StageComplete} {
		r.UpdateProgress(ProgressEvent{Stage: stage, Current: 1, Total: 2, Message: "working"})
	}
	r.AddError(ErrorEvent{RowID: "(0,1)", Err: errors.New("boom")})
	r.Complete(CompletionStats{Rows: 2, Acknowledged: 2, Backend: "sqlite", Target: "docs"})

	// Then: output contains no escape sequences
	assert.NotContains(t, buf.String(), "\x1b[")
}

func TestPlainRenderer_AddError(t *testing.T) {
	tests := []struct {
		name  string
		event ErrorEvent
		want  string
	}{
		{"error with row", ErrorEvent{RowID: "(0,3)", Err: errors.New("bad value")}, "ERROR: row (0,3): bad value\n"},
		{"warning", ErrorEvent{Err: errors.New("slow backend"), IsWarn: true}, "WARN: slow backend\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			r := NewPlainRenderer(NewConfig(buf))

			r.AddError(tt.event)

			assert.Equal(t, tt.want, buf.String())
		})
	}
}

func TestPlainRenderer_Complete(t *testing.T) {
	// Given: a plain renderer
	buf := &bytes.Buffer{}
	r := NewPlainRenderer(NewConfig(buf))
	require.NoError(t, r.Start(context.Background()))

	// When: completing with errors
	r.Complete(CompletionStats{
		Relation:     "public.orders",
		Backend:      "elasticsearch",
		Target:       "orders",
		Rows:         10,
		Acknowledged: 9,
		Duration:     1500 * time.Millisecond,
		Errors:       1,
	})
	require.NoError(t, r.Stop())

	// Then: summary and destination lines are written
	out := buf.String()
	assert.Contains(t, out, "Complete: 10 rows scanned, 9 documents acknowledged in 1.5s (1 errors)\n")
	assert.Contains(t, out, `Backend: elasticsearch, index "orders", source public.orders`)
}
