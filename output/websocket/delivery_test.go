package websocket

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/streamrelay/snapshot"
)

func records(rs ...snapshot.Record) map[string]snapshot.Record {
	out := make(map[string]snapshot.Record, len(rs))
	for _, r := range rs {
		out[r.Name] = r
	}
	return out
}

func topics(b BatchFrame) []string {
	out := make([]string, 0, len(b.Messages))
	for _, m := range b.Messages {
		out = append(out, m.Topic)
	}
	return out
}

func TestBuildBatch_FirstCycleSendsEverything(t *testing.T) {
	lastSent := map[string]uint64{}
	snap := records(
		snapshot.Record{Name: "radarState", Value: 1, Timestamp: 5, Valid: true},
		snapshot.Record{Name: "carState", Value: map[string]any{"speed": 10}, Timestamp: 100, Valid: false},
	)

	batch := buildBatch(snap, nil, lastSent)

	assert.Equal(t, TypeBatch, batch.Type)
	assert.Equal(t, 2, batch.Count)
	require.Equal(t, []string{"carState", "radarState"}, topics(batch), "ordered by name")
	want := BatchMessage{Topic: "carState", Timestamp: 100, Valid: false, Data: map[string]any{"speed": 10}}
	if diff := cmp.Diff(want, batch.Messages[0]); diff != "" {
		t.Errorf("first message mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, map[string]uint64{"carState": 100, "radarState": 5}, lastSent)
}

func TestBuildBatch_SkipsUnchangedTimestamps(t *testing.T) {
	lastSent := map[string]uint64{}
	snap := records(
		snapshot.Record{Name: "carState", Timestamp: 100},
		snapshot.Record{Name: "radarState", Timestamp: 7},
	)
	buildBatch(snap, nil, lastSent)

	again := buildBatch(snap, nil, lastSent)
	assert.Zero(t, again.Count)
	assert.Empty(t, again.Messages)

	snap["carState"] = snapshot.Record{Name: "carState", Timestamp: 200}
	next := buildBatch(snap, nil, lastSent)
	assert.Equal(t, []string{"carState"}, topics(next))
	assert.Equal(t, uint64(200), lastSent["carState"])
}

// Only equality suppresses a send; an older timestamp is new data for this
// consumer.
func TestBuildBatch_DifferentTimestampIsSent(t *testing.T) {
	lastSent := map[string]uint64{"carState": 200}
	snap := records(snapshot.Record{Name: "carState", Timestamp: 150})

	batch := buildBatch(snap, nil, lastSent)
	assert.Equal(t, []string{"carState"}, topics(batch))
}

func TestBuildBatch_Filter(t *testing.T) {
	snap := records(
		snapshot.Record{Name: "carState", Timestamp: 1},
		snapshot.Record{Name: "radarState", Timestamp: 1},
		snapshot.Record{Name: "modelV2", Timestamp: 1},
	)

	tests := []struct {
		name   string
		filter map[string]struct{}
		want   []string
	}{
		{"nil filter matches all", nil, []string{"carState", "modelV2", "radarState"}},
		{"empty filter matches all", map[string]struct{}{}, []string{"carState", "modelV2", "radarState"}},
		{"single", map[string]struct{}{"radarState": {}}, []string{"radarState"}},
		{"unknown name matches nothing", map[string]struct{}{"nope": {}}, []string{}},
		{"mixed", map[string]struct{}{"carState": {}, "nope": {}}, []string{"carState"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lastSent := map[string]uint64{}
			batch := buildBatch(snap, tt.filter, lastSent)
			assert.Equal(t, tt.want, topics(batch))
			assert.Len(t, lastSent, len(tt.want), "only delivered channels are recorded")
		})
	}
}

// Two consumers keep separate send histories.
func TestBuildBatch_PerConsumerHistory(t *testing.T) {
	snap := records(snapshot.Record{Name: "carState", Timestamp: 100})

	first := map[string]uint64{}
	second := map[string]uint64{}

	assert.Equal(t, 1, buildBatch(snap, nil, first).Count)
	assert.Equal(t, 0, buildBatch(snap, nil, first).Count)
	assert.Equal(t, 1, buildBatch(snap, nil, second).Count)
}

func TestBuildBatch_EmptySnapshot(t *testing.T) {
	batch := buildBatch(map[string]snapshot.Record{}, nil, map[string]uint64{})
	assert.Zero(t, batch.Count)
	assert.NotNil(t, batch.Messages)
}
