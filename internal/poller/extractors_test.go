package poller

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPStatusExtractor(t *testing.T) {
	tests := []struct {
		code int
		want Status
	}{
		{200, StatusUp},
		{204, StatusUp},
		{299, StatusUp},
		{301, StatusDown},
		{404, StatusDegraded},
		{499, StatusDegraded},
		{503, StatusDown},
		{0, StatusDown},
		{100, StatusDown},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, HTTPStatusExtractor(nil, tt.code), "status code %d", tt.code)
	}
}

func TestJSONFieldExtractor(t *testing.T) {
	tests := []struct {
		name string
		path string
		body string
		want Status
	}{
		{"ok", "status", `{"status": "ok"}`, StatusUp},
		{"case insensitive", "status", `{"status": "Healthy"}`, StatusUp},
		{"degraded", "status", `{"status": "warning"}`, StatusDegraded},
		{"unmapped word", "status", `{"status": "exploded"}`, StatusDown},
		{"nested", "data.health.status", `{"data": {"health": {"status": "green"}}}`, StatusUp},
		{"bool true", "healthy", `{"healthy": true}`, StatusUp},
		{"bool false", "healthy", `{"healthy": false}`, StatusDown},
		{"number one", "status", `{"status": 1}`, StatusUp},
		{"number zero", "status", `{"status": 0}`, StatusDown},
		{"other number", "status", `{"status": 200}`, StatusDown},
		{"empty string", "status", `{"status": ""}`, StatusUnknown},
		{"missing field", "status", `{"other": "ok"}`, StatusUnknown},
		{"missing nested", "data.status", `{"data": "ok"}`, StatusUnknown},
		{"array leaf", "status", `{"status": ["ok"]}`, StatusUnknown},
		{"not json", "status", `ok`, StatusUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := JSONFieldExtractor(tt.path)([]byte(tt.body), 200)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRegexExtractor(t *testing.T) {
	e, err := RegexExtractor(`<status>(\w+)</status>`, "HEALTHY")
	require.NoError(t, err)

	assert.Equal(t, StatusUp, e([]byte(`<status>healthy</status>`), 200))
	assert.Equal(t, StatusDown, e([]byte(`<status>sick</status>`), 200))
	assert.Equal(t, StatusUnknown, e([]byte(`nothing here`), 200))
}

func TestRegexExtractor_Errors(t *testing.T) {
	_, err := RegexExtractor(`[invalid`, "ok")
	assert.Error(t, err)

	_, err = RegexExtractor(`status: \w+`, "ok")
	assert.Error(t, err, "pattern without capture group")

	assert.Panics(t, func() { MustRegexExtractor(`[invalid`, "ok") })
}

func TestContainsExtractor(t *testing.T) {
	e := ContainsExtractor("OK")

	assert.Equal(t, StatusUp, e([]byte("status: ok"), 500))
	assert.Equal(t, StatusUp, e([]byte("line1\nOK\n"), 200))
	assert.Equal(t, StatusDown, e([]byte("failing"), 200))
	assert.Equal(t, StatusDown, e(nil, 200))
}

func TestFirstMatch(t *testing.T) {
	unknown := func([]byte, int) Status { return StatusUnknown }
	up := func([]byte, int) Status { return StatusUp }
	down := func([]byte, int) Status { return StatusDown }

	assert.Equal(t, StatusUp, FirstMatch(up, down)(nil, 0))
	assert.Equal(t, StatusDown, FirstMatch(unknown, down)(nil, 0))
	assert.Equal(t, StatusUnknown, FirstMatch(unknown, unknown)(nil, 0))
	assert.Equal(t, StatusUnknown, FirstMatch()(nil, 0))
}

func TestDefaultExtractor(t *testing.T) {
	tests := []struct {
		name string
		body string
		code int
		want Status
	}{
		{"json wins over code", `{"status": "ok"}`, 500, StatusUp},
		{"json down", `{"status": "down"}`, 200, StatusDown},
		{"falls back to code", `{"other": 1}`, 200, StatusUp},
		{"plain text error", `boom`, 503, StatusDown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DefaultExtractor([]byte(tt.body), tt.code))
		})
	}
}
