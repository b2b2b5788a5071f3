package redact

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEmail_Table(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "ASCII_local_gt_2", in: "foobar@example.com", want: "fo***@example.com"},
		{name: "ASCII_local_len_2", in: "ab@ex.com", want: "***@ex.com"},
		{name: "invalid_no_at", in: "no-at-here", want: "***"},
		{name: "invalid_multiple_at", in: "a@b@c", want: "***"},
		{name: "empty_string", in: "", want: "***"},
		{name: "unicode_local", in: "юзер@пример.рф", want: "юз***@пример.рф"},
		{name: "empty_local", in: "@domain", want: "***@domain"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.want, Email(tt.in))
		})
	}
}

func TestToken(t *testing.T) {
	t.Parallel()

	require.Equal(t, "[NO_TOKEN]", Token(""))
	require.Equal(t, "[REDACTED_TOKEN]", Token("eyJhbGciOi"))
	require.Equal(t, "[REDACTED_PASSWORD]", Password())
}

func TestHeader(t *testing.T) {
	t.Parallel()

	require.Equal(t, "Bearer [REDACTED_TOKEN]", Header("Authorization", "Bearer abc"))
	require.Equal(t, "[REDACTED_TOKEN]", Header("cookie", "sid=1"))
	require.Equal(t, "application/json", Header("Content-Type", "application/json"))
}
