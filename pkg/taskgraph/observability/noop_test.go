package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/attribute"
)

func TestNoopMetrics(t *testing.T) {
	m := NoopMetrics{}
	ctx := context.Background()

	assert.NotPanics(t, func() {
		m.RecordNodeExecution(ctx, "node", 100*time.Millisecond, nil)
		m.RecordNodeExecution(ctx, "node", 0, errors.New("test"))
		m.RecordRoute(ctx, "node", "label", "target")
		m.RecordRun(ctx, "terminated", time.Second)
		m.RecordCheckpoint(ctx, "node", 128)
	})
}

func TestNoopSpanManager(t *testing.T) {
	sm := NoopSpanManager{}
	ctx := context.Background()

	runCtx, runSpan := sm.StartRunSpan(ctx, "run-1", "entry")
	assert.Equal(t, ctx, runCtx)
	assert.False(t, runSpan.IsRecording())

	nodeCtx, nodeSpan := sm.StartNodeSpan(ctx, "node", 1)
	assert.Equal(t, ctx, nodeCtx)
	assert.False(t, nodeSpan.IsRecording())

	assert.NotPanics(t, func() {
		sm.EndSpanWithError(nodeSpan, errors.New("x"))
		sm.AddSpanEvent(ctx, "event", attribute.String("k", "v"))
	})
}
