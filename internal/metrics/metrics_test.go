package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestCounter(t *testing.T) {
	var c Counter
	c.Inc()
	c.Add(4)
	assert.Equal(t, uint64(5), c.Load())
}

func TestTimer(t *testing.T) {
	timer := StartTimer()
	time.Sleep(time.Millisecond)
	assert.GreaterOrEqual(t, timer.Duration(), time.Millisecond)
}

func TestSyncField(t *testing.T) {
	core, observed := observer.New(zapcore.InfoLevel)
	s := &Sync{}
	s.EventsDelivered.Add(3)
	s.MutationsRolledBack.Inc()

	zap.New(core).Info("stats", s.Field())

	logs := observed.TakeAll()
	require.Len(t, logs, 1)
	fields := logs[0].ContextMap()["sync"].(map[string]interface{})
	assert.EqualValues(t, 3, fields["events_delivered"])
	assert.EqualValues(t, 1, fields["mutations_rolled_back"])
	assert.EqualValues(t, 0, fields["handler_panics"])
}
