package convert

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"math"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type canonicalState struct {
	speed float64
}

func (c canonicalState) CanonicalJSON() (any, error) {
	return map[string]any{"vEgo": c.speed}, nil
}

type failingCanonical struct {
	Gear string `json:"gear"`
}

func (failingCanonical) CanonicalJSON() (any, error) {
	return nil, stderrors.New("not available")
}

type panickingMarshaler struct {
	Mode string
}

func (panickingMarshaler) MarshalJSON() ([]byte, error) {
	panic("boom")
}

type gearShifter int

func (g gearShifter) String() string {
	return [...]string{"park", "drive"}[g]
}

type calibration struct {
	RpyCalib  []float64 `json:"rpyCalib"`
	Status    string    `json:"calStatus,omitempty"`
	Raw       []byte    `json:"raw"`
	Ignored   string    `json:"-"`
	Untagged  bool
	internal  int
	Timestamp time.Time `json:"ts"`
}

type header struct {
	Frame int `json:"frame"`
}

type withEmbedded struct {
	header
	Header2 header `json:"header2"`
	Name    string `json:"name"`
}

type ptrCanonical struct {
	speed float64
}

func (c *ptrCanonical) CanonicalJSON() (any, error) {
	return map[string]any{"vEgo": c.speed}, nil
}

type ptrStringer struct {
	mode int
}

func (s *ptrStringer) String() string {
	return fmt.Sprintf("mode-%d", s.mode)
}

type opaque struct {
	id int
}

func TestToJSON_Primitives(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want any
	}{
		{"nil", nil, nil},
		{"bool", true, true},
		{"string", "drive", "drive"},
		{"int", 42, int64(42)},
		{"uint64", uint64(math.MaxUint64), uint64(math.MaxUint64)},
		{"float", 1.5, 1.5},
		{"float32", float32(0.5), 0.5},
		{"json number", json.Number("12.25"), json.Number("12.25")},
		{"NaN", math.NaN(), nil},
		{"+Inf", math.Inf(1), nil},
		{"-Inf", math.Inf(-1), nil},
		{"named int", gearShifter(1), int64(1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ToJSON(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestToJSON_BinaryBecomesNull(t *testing.T) {
	for _, in := range []any{
		[]byte{0xde, 0xad},
		[4]byte{1, 2, 3, 4},
		map[string]any{"blob": []byte("x")},
	} {
		got, err := ToJSON(in)
		require.NoError(t, err)

		data, err := json.Marshal(got)
		require.NoError(t, err)
		assert.NotContains(t, string(data), "3q0", "base64 of raw bytes must never appear")
	}

	got, err := ToJSON(map[string]any{"blob": []byte("x"), "n": 1})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"blob": nil, "n": int64(1)}, got)
}

func TestToJSON_Sequences(t *testing.T) {
	got, err := ToJSON([]any{1, "a", []float64{0.1, 0.2}, nil})
	require.NoError(t, err)
	assert.Equal(t, []any{int64(1), "a", []any{0.1, 0.2}, nil}, got)

	got, err = ToJSON([2]string{"left", "right"})
	require.NoError(t, err)
	assert.Equal(t, []any{"left", "right"}, got)

	got, err = ToJSON([]int{})
	require.NoError(t, err)
	assert.Equal(t, []any{}, got)
}

func TestToJSON_Maps(t *testing.T) {
	got, err := ToJSON(map[any]any{"a": 1, 2: "two", true: nil})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": int64(1), "2": "two", "true": nil}, got)

	got, err = ToJSON(map[gearShifter]int{1: 3})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"drive": int64(3)}, got)
}

func TestToJSON_Canonical(t *testing.T) {
	got, err := ToJSON(canonicalState{speed: 3.5})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"vEgo": 3.5}, got)

	// A failing implementation falls back to the structural rules
	got, err = ToJSON(failingCanonical{Gear: "drive"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"gear": "drive"}, got)
}

func TestToJSON_MarshalerPanicFallsThrough(t *testing.T) {
	got, err := ToJSON(panickingMarshaler{Mode: "cruise"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"Mode": "cruise"}, got)
}

func TestToJSON_Struct(t *testing.T) {
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	got, err := ToJSON(&calibration{
		RpyCalib:  []float64{0, 0.01, -0.02},
		Raw:       []byte{1},
		Ignored:   "x",
		Untagged:  true,
		internal:  7,
		Timestamp: ts,
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"rpyCalib": []any{0.0, 0.01, -0.02},
		"raw":      nil,
		"Untagged": true,
		"ts":       "2024-05-01T12:00:00Z",
	}, got)

	got, err = ToJSON(withEmbedded{header: header{Frame: 1}, Header2: header{Frame: 2}, Name: "cam"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"header2": map[string]any{"frame": int64(2)},
		"name":    "cam",
	}, got, "unexported embedded struct is skipped")
}

func TestToJSON_TextFallback(t *testing.T) {
	got, err := ToJSON(opaque{id: 9})
	require.NoError(t, err)
	assert.Equal(t, "{9}", got)

	got, err = ToJSON(stderrors.New("sensor offline"))
	require.NoError(t, err)
	assert.Equal(t, "sensor offline", got)

	got, err = ToJSON(make(chan int))
	require.NoError(t, err)
	assert.Equal(t, "<chan int>", got)
}

func TestToJSON_DepthLimit(t *testing.T) {
	var nested any = "leaf"
	for i := 0; i < MaxDepth+10; i++ {
		nested = []any{nested}
	}

	got, err := ToJSON(nested)
	require.NoError(t, err)

	_, err = json.Marshal(got)
	require.NoError(t, err)

	level := got
	for {
		seq, ok := level.([]any)
		if !ok {
			break
		}
		level = seq[0]
	}
	placeholder, ok := level.(string)
	require.True(t, ok)
	assert.NotEqual(t, "leaf", placeholder, "nesting past MaxDepth is cut off")
	assert.True(t, strings.HasPrefix(placeholder, "<"), placeholder)
}

func TestToJSON_Cycles(t *testing.T) {
	root := map[string]any{"id": 1}
	root["self"] = root

	got, err := ToJSON(root)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"id": int64(1), "self": nil}, got)

	list := []any{"head", nil}
	list[1] = list
	got, err = ToJSON(list)
	require.NoError(t, err)
	assert.Equal(t, []any{"head", nil}, got)

	type node struct {
		Name string `json:"name"`
		Next *node  `json:"next"`
	}
	n := &node{Name: "a"}
	n.Next = n
	got, err = ToJSON(n)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"name": "a", "next": nil}, got)
}

func TestToJSON_CycleFanOutTerminates(t *testing.T) {
	root := map[string]any{}
	root["a"] = root
	root["b"] = root
	root["c"] = root

	done := make(chan any, 1)
	go func() {
		got, _ := ToJSON(root)
		done <- got
	}()

	select {
	case got := <-done:
		assert.Equal(t, map[string]any{"a": nil, "b": nil, "c": nil}, got)
	case <-time.After(5 * time.Second):
		t.Fatal("conversion of a self-referencing map did not finish")
	}
}

func TestToJSON_SharedValuesWithinBudget(t *testing.T) {
	// A DAG with fan-out 2 at every level: each level doubles the visits
	shared := any("leaf")
	for i := 0; i < 30; i++ {
		shared = []any{shared, shared}
	}

	done := make(chan any, 1)
	go func() {
		got, _ := ToJSON(shared)
		done <- got
	}()

	select {
	case got := <-done:
		_, err := json.Marshal(got)
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("node budget did not stop the conversion")
	}
}

func TestToJSON_PointerReceiverMethods(t *testing.T) {
	huge, ok := new(big.Int).SetString("123456789012345678901234567890", 10)
	require.True(t, ok)

	got, err := ToJSON(map[string]any{"odometer": *huge})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"odometer": json.Number("123456789012345678901234567890")}, got)

	got, err = ToJSON([]any{ptrCanonical{speed: 4}})
	require.NoError(t, err)
	assert.Equal(t, []any{map[string]any{"vEgo": 4.0}}, got)

	got, err = ToJSON(map[string]any{"mode": ptrStringer{mode: 2}})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"mode": "mode-2"}, got)
}

func TestToJSON_AlwaysMarshalable(t *testing.T) {
	inputs := []any{
		map[string]any{"v": math.NaN(), "b": []byte("raw"), "c": make(chan struct{})},
		[]any{math.Inf(1), opaque{}, &opaque{id: 2}},
		struct{ F func() }{F: func() {}},
	}

	for _, in := range inputs {
		got, err := ToJSON(in)
		require.NoError(t, err)
		_, err = json.Marshal(got)
		assert.NoError(t, err)
	}
}
