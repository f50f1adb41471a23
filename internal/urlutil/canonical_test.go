package urlutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalize(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "standard url", input: "http://example.com/path", want: "http://example.com/path"},
		{name: "uppercase scheme and host", input: "HTTPS://EXAMPLE.COM/path", want: "https://example.com/path"},
		{name: "default http port", input: "http://example.com:80/path", want: "http://example.com/path"},
		{name: "default https port", input: "https://example.com:443/path", want: "https://example.com/path"},
		{name: "custom port", input: "http://example.com:8080/path", want: "http://example.com:8080/path"},
		{name: "fragment", input: "http://example.com/path#section1", want: "http://example.com/path"},
		{name: "trailing slash", input: "http://example.com/path/", want: "http://example.com/path"},
		{name: "root trailing slash", input: "http://example.com/", want: "http://example.com/"},
		{name: "ipv6 default port", input: "http://[::1]:80/health", want: "http://[::1]/health"},
		{name: "ipv6 uppercase default https port", input: "https://[2001:DB8::1]:443/", want: "https://[2001:db8::1]/"},
		{name: "ipv6 custom port", input: "http://[::1]:8080/x", want: "http://[::1]:8080/x"},
		{name: "surrounding whitespace", input: "  https://example.com ", wantErr: true},
		{name: "trailing whitespace", input: "https://example.com\n", wantErr: true},
		{name: "invalid", input: "://example.com", wantErr: true},
		{name: "relative", input: "/path/to/resource", wantErr: true},
		{name: "unsupported scheme", input: "ftp://example.com", wantErr: true},
		{name: "missing host", input: "http://", wantErr: true},
		{name: "empty", input: "", wantErr: true},
		{name: "not a url", input: "not-a-url", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Canonicalize(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidURL)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate("https://example.com/health"))
	assert.ErrorIs(t, Validate("mailto:someone@example.com"), ErrInvalidURL)
	assert.ErrorIs(t, Validate(" https://example.com/health"), ErrInvalidURL)
}
