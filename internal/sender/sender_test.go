package sender

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"vandaq/internal/pkg"
)

// recordingStrategy 记下收到的记录组，可配置为总是失败
type recordingStrategy struct {
	name    string
	batches []pkg.RecordBatch
	fail    bool
}

func (r *recordingStrategy) Name() string { return r.name }

func (r *recordingStrategy) Send(_ context.Context, batch pkg.RecordBatch) error {
	if r.fail {
		return fmt.Errorf("下游不可达")
	}
	r.batches = append(r.batches, batch)
	return nil
}

func (r *recordingStrategy) Close() error { return nil }

func TestBuildSkipsDisabled(t *testing.T) {
	rec := &recordingStrategy{name: "recording"}
	Register("recording", func(_ pkg.SenderConfig, _ *zap.Logger) (Strategy, error) {
		return rec, nil
	})
	defer delete(Factories, "recording")

	strategies, err := Build([]pkg.SenderConfig{
		{Type: "recording", Enable: true},
		{Type: "recording", Enable: false},
	}, zap.NewNop())
	require.NoError(t, err)
	assert.Len(t, strategies, 1)
}

func TestBuildRejectsUnregisteredType(t *testing.T) {
	_, err := Build([]pkg.SenderConfig{{Type: "smoke-signal", Enable: true}}, zap.NewNop())
	assert.Error(t, err)

	// 未启用的未知类型不报错：配置里可以留着注释掉的策略块
	strategies, err := Build([]pkg.SenderConfig{{Type: "smoke-signal", Enable: false}}, zap.NewNop())
	require.NoError(t, err)
	assert.Empty(t, strategies)
}

func TestFanOutContinuesPastFailure(t *testing.T) {
	bad := &recordingStrategy{name: "bad", fail: true}
	good := &recordingStrategy{name: "good"}
	batch := pkg.RecordBatch{BatchID: "b-001", Platform: "vessel-1", Instrument: "ctd-1"}

	// 第一个策略失败不阻断后面的策略
	FanOut(context.Background(), []Strategy{bad, good}, batch, zap.NewNop())
	require.Len(t, good.batches, 1)
	assert.Equal(t, "b-001", good.batches[0].BatchID)
}

func TestKafkaFactoryRegistered(t *testing.T) {
	_, ok := Factories["kafka"]
	assert.True(t, ok)
	_, ok = Factories["influxdb"]
	assert.True(t, ok)
}
