package acquirer

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"vandaq/internal/pkg"
)

// flakySource 前 failures 次连接失败，之后成功
type flakySource struct {
	failures int
	attempts int
}

func (f *flakySource) Connect(_ context.Context) error {
	f.attempts++
	if f.attempts <= f.failures {
		return fmt.Errorf("connection refused")
	}
	return nil
}

func (f *flakySource) ReadLine(_ context.Context) (string, error)  { return "", nil }
func (f *flakySource) WriteLine(_ context.Context, _ string) error { return nil }
func (f *flakySource) Close() error                                { return nil }

func TestSupervisorBackoffDoubling(t *testing.T) {
	s := newSupervisor(&flakySource{failures: 100}, zap.NewNop())
	assert.Equal(t, StateDisconnected, s.State())

	ctx := context.Background()
	require.Error(t, s.EnsureConnected(ctx))
	assert.Equal(t, StateBackoff, s.State())
	assert.Equal(t, 2*time.Second, s.backoff)

	// 不实际等退避，直接再触发失败观察翻倍
	s.Fail(fmt.Errorf("still down"))
	assert.Equal(t, 4*time.Second, s.backoff)

	for i := 0; i < 10; i++ {
		s.Fail(fmt.Errorf("still down"))
	}
	assert.Equal(t, maxBackoff, s.backoff, "退避封顶在上限")
}

func TestSupervisorRecoverResetsBackoff(t *testing.T) {
	src := &flakySource{failures: 1}
	s := newSupervisor(src, zap.NewNop())

	ctx := context.Background()
	require.Error(t, s.EnsureConnected(ctx))
	assert.True(t, s.logged, "首次失败已记日志")

	// 退避到期后重连成功
	s.backoff = time.Millisecond
	require.NoError(t, s.EnsureConnected(ctx))
	assert.Equal(t, StateConnected, s.State())
	assert.Equal(t, initialBackoff, s.backoff)
	assert.False(t, s.logged)

	// 已连接时幂等
	require.NoError(t, s.EnsureConnected(ctx))
	assert.Equal(t, 2, src.attempts)
}

func TestBuildSourceUnknownType(t *testing.T) {
	cfg := &pkg.AcquirerConfig{Source: pkg.SourceConfig{Type: "carrier-pigeon"}}
	_, err := BuildSource(cfg, zap.NewNop())
	assert.Error(t, err)
}

func simulatedConfig() *pkg.AcquirerConfig {
	return &pkg.AcquirerConfig{
		Platform:   "vessel-1",
		Instrument: "sim-1",
		Source: pkg.SourceConfig{
			Type: "simulated",
			Para: map[string]interface{}{
				"cycle_secs": 1,
				"signals": map[string]interface{}{
					"temperature": map[string]interface{}{
						"signal": "sine", "period": 60, "min": 10.0, "max": 20.0,
					},
					"heading": map[string]interface{}{
						"signal": "sawtooth", "period": 30, "min": 0.0, "max": 360.0,
					},
				},
			},
		},
		Stream: pkg.StreamConfig{
			Items:     "temperature,heading,x,inst_time",
			Formats:   "f,f,x,%H:%M:%S",
			Units:     "degC,deg,x,x",
			AcqTypes:  "CTD,GYRO,x,x",
			Delimiter: ",",
		},
	}
}

func TestSimulatedSourceLineShape(t *testing.T) {
	src, err := BuildSource(simulatedConfig(), zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, src.Connect(context.Background()))
	defer src.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	line, err := src.ReadLine(ctx)
	require.NoError(t, err)

	parts := strings.Split(line, ",")
	require.Len(t, parts, 4)

	// 波形值落在配置的 [min, max] 内
	temp, err := strconv.ParseFloat(parts[0], 64)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, temp, 10.0)
	assert.LessOrEqual(t, temp, 20.0)

	heading, err := strconv.ParseFloat(parts[1], 64)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, heading, 0.0)
	assert.LessOrEqual(t, heading, 360.0)

	// 忽略列占位为 0，时间列可按格式解析
	assert.Equal(t, "0", parts[2])
	_, err = time.Parse("15:04:05", parts[3])
	assert.NoError(t, err)
}

func TestSimulatedSourceReadLineHonorsContext(t *testing.T) {
	src, err := BuildSource(simulatedConfig(), zap.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = src.ReadLine(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
