package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExpandEnv(t *testing.T) {
	t.Setenv("OPERATOR_TEST_HOST", "db.internal")
	t.Setenv("OPERATOR_TEST_PORT", "5432")

	tests := []struct {
		name        string
		input       string
		want        string
		wantMissing []string
	}{
		{
			name:  "braced variable",
			input: "host: ${OPERATOR_TEST_HOST}",
			want:  "host: db.internal",
		},
		{
			name:  "bare variable",
			input: "host: $OPERATOR_TEST_HOST",
			want:  "host: db.internal",
		},
		{
			name:  "multiple variables",
			input: "${OPERATOR_TEST_HOST}:${OPERATOR_TEST_PORT}",
			want:  "db.internal:5432",
		},
		{
			name:        "missing variable expands to empty and is reported",
			input:       "token: ${OPERATOR_TEST_MISSING}",
			want:        "token: ",
			wantMissing: []string{"OPERATOR_TEST_MISSING"},
		},
		{
			name:  "no variables is a no-op",
			input: "listen_addr: :8080",
			want:  "listen_addr: :8080",
		},
		{
			name:        "same missing variable reported once",
			input:       "a: ${OPERATOR_TEST_MISSING}\nb: ${OPERATOR_TEST_MISSING}",
			want:        "a: \nb: ",
			wantMissing: []string{"OPERATOR_TEST_MISSING"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, missing := ExpandEnv([]byte(tt.input))
			assert.Equal(t, tt.want, string(got))
			assert.Equal(t, tt.wantMissing, missing)
		})
	}
}
