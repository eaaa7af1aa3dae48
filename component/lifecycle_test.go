package component

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeComponent struct {
	name     string
	startErr error
	events   *[]string
}

func (f *fakeComponent) Meta() Metadata           { return Metadata{Name: f.name} }
func (f *fakeComponent) Health() HealthStatus     { return HealthStatus{Healthy: true} }
func (f *fakeComponent) DataFlow() FlowMetrics    { return FlowMetrics{} }
func (f *fakeComponent) Initialize() error        { return nil }
func (f *fakeComponent) Stop(time.Duration) error { *f.events = append(*f.events, "stop:"+f.name); return nil }
func (f *fakeComponent) Start(context.Context) error {
	if f.startErr != nil {
		return f.startErr
	}
	*f.events = append(*f.events, "start:"+f.name)
	return nil
}

func TestStartAll_OrderAndReverseStop(t *testing.T) {
	var events []string
	a := &fakeComponent{name: "a", events: &events}
	b := &fakeComponent{name: "b", events: &events}

	require.NoError(t, StartAll(context.Background(), time.Second, a, b))
	require.NoError(t, StopAll(time.Second, a, b))

	assert.Equal(t, []string{"start:a", "start:b", "stop:b", "stop:a"}, events)
}

func TestStartAll_RollsBackOnFailure(t *testing.T) {
	var events []string
	a := &fakeComponent{name: "a", events: &events}
	b := &fakeComponent{name: "b", events: &events, startErr: errors.New("listen: address in use")}
	c := &fakeComponent{name: "c", events: &events}

	err := StartAll(context.Background(), time.Second, a, b, c)
	require.Error(t, err)

	assert.Equal(t, []string{"start:a", "stop:a"}, events)
}
