package offline

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSwitch_NotifiesOnTransitionsOnly(t *testing.T) {
	s := NewSwitch(false)
	var got []bool
	unsubscribe := s.Subscribe(func(online bool) { got = append(got, online) })

	s.Set(false)
	s.Set(true)
	s.Set(true)
	s.Set(false)

	assert.Equal(t, []bool{true, false}, got)
	assert.False(t, s.Online())

	unsubscribe()
	unsubscribe()
	s.Set(true)
	assert.Len(t, got, 2)
}

func TestSwitch_ListenersRunInSubscriptionOrder(t *testing.T) {
	s := NewSwitch(false)
	var got []int
	for i := range 5 {
		s.Subscribe(func(bool) { got = append(got, i) })
	}
	s.Set(true)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, got)
}

func TestMonitor_Check(t *testing.T) {
	var fail atomic.Bool
	m := NewMonitor(func(context.Context) error {
		if fail.Load() {
			return errors.New("refused")
		}
		return nil
	}, time.Hour, zerolog.Nop())

	var transitions []bool
	m.Subscribe(func(online bool) { transitions = append(transitions, online) })

	require.False(t, m.Online())
	assert.True(t, m.Check(context.Background()))
	assert.True(t, m.Online())

	fail.Store(true)
	assert.False(t, m.Check(context.Background()))
	assert.Equal(t, []bool{true, false}, transitions)
}

func TestMonitor_RunProbesUntilCancelled(t *testing.T) {
	var probes atomic.Int32
	m := NewMonitor(func(context.Context) error {
		probes.Add(1)
		return nil
	}, 5*time.Millisecond, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return probes.Load() >= 3 }, time.Second, time.Millisecond)
	assert.True(t, m.Online())

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
