package cmd

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProjectCmd(t *testing.T) {
	tests := []struct {
		name  string
		limit string
		want  []string
	}{
		{
			name:  "all rows",
			limit: "0",
			want:  []string{`{"c1":"a","c2":1,"c3":3.5}`, `{"c1":"b","c2":2}`},
		},
		{
			name:  "limited",
			limit: "1",
			want:  []string{`{"c1":"a","c2":1,"c3":3.5}`},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolate(t)

			stdout, _, err := execute(t, "project",
				"--driver", "sqlite", "--dsn", newSourceDB(t), "--table", "items",
				"--limit", tt.limit)

			require.NoError(t, err)
			assert.Equal(t, tt.want, strings.Split(strings.TrimSpace(stdout), "\n"))
		})
	}
}

func TestProjectCmd_UnknownTable(t *testing.T) {
	isolate(t)

	stdout, _, err := execute(t, "project", "--driver", "sqlite", "--dsn", newSourceDB(t), "--table", "missing")

	assert.Error(t, err)
	assert.Empty(t, stdout)
}
