package component

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthStatus_JSON(t *testing.T) {
	status := HealthStatus{
		Healthy:    false,
		LastCheck:  time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		ErrorCount: 3,
		Uptime:     2 * time.Second,
	}

	data, err := json.Marshal(status)
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(data, &fields))
	assert.Equal(t, false, fields["healthy"])
	assert.Equal(t, float64(3), fields["error_count"])
	assert.Equal(t, "2024-05-01T12:00:00Z", fields["last_check"])
	assert.NotContains(t, fields, "last_error", "empty error is omitted")

	status.LastError = "bus subscription failed"
	data, err = json.Marshal(status)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"last_error":"bus subscription failed"`)
}

func TestFlowMetrics_JSONFieldNames(t *testing.T) {
	data, err := json.Marshal(FlowMetrics{MessagesPerSecond: 20, ErrorRate: 0.5})
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(data, &fields))
	assert.Equal(t, float64(20), fields["messages_per_second"])
	assert.Equal(t, 0.5, fields["error_rate"])
	assert.Contains(t, fields, "bytes_per_second")
	assert.Contains(t, fields, "last_activity")
}
