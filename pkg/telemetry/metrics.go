package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/myhuemungusD/skatehubba/matchmaking"

// Tracer 매칭 계층 트레이서
func Tracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}

// MatchmakingMetrics 매칭 카운터 모음. nil이면 기록하지 않는다.
type MatchmakingMetrics struct {
	joins     metric.Int64Counter
	cancels   metric.Int64Counter
	matches   metric.Int64Counter
	raceLost  metric.Int64Counter
	malformed metric.Int64Counter
	swept     metric.Int64Counter
}

// NewMatchmakingMetrics 전역 MeterProvider로 카운터 생성
func NewMatchmakingMetrics() (*MatchmakingMetrics, error) {
	return NewMatchmakingMetricsWith(otel.Meter(instrumentationName))
}

// NewMatchmakingMetricsWith 지정한 Meter로 카운터 생성
func NewMatchmakingMetricsWith(meter metric.Meter) (*MatchmakingMetrics, error) {
	m := &MatchmakingMetrics{}
	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&m.joins, "matchmaking.joins", "Tickets added to the waiting queue"},
		{&m.cancels, "matchmaking.cancels", "Players removed from matchmaking"},
		{&m.matches, "matchmaking.matches", "Lobbies created from a claimed pair"},
		{&m.raceLost, "matchmaking.race_lost", "Pair claims lost to a concurrent matcher"},
		{&m.malformed, "matchmaking.malformed_entries", "Undecodable queue members encountered"},
		{&m.swept, "matchmaking.swept", "Records removed by staleness sweeps"},
	}

	for _, c := range counters {
		counter, err := meter.Int64Counter(c.name, metric.WithDescription(c.desc))
		if err != nil {
			return nil, err
		}
		*c.dst = counter
	}
	return m, nil
}

func (m *MatchmakingMetrics) Joined(ctx context.Context, mode string) {
	if m == nil {
		return
	}
	m.joins.Add(ctx, 1, metric.WithAttributes(attribute.String("mode", mode)))
}

func (m *MatchmakingMetrics) Cancelled(ctx context.Context) {
	if m == nil {
		return
	}
	m.cancels.Add(ctx, 1)
}

// Matched source는 "queue" 또는 "trigger"
func (m *MatchmakingMetrics) Matched(ctx context.Context, source, mode string) {
	if m == nil {
		return
	}
	m.matches.Add(ctx, 1, metric.WithAttributes(
		attribute.String("source", source),
		attribute.String("mode", mode),
	))
}

func (m *MatchmakingMetrics) RaceLost(ctx context.Context, source string) {
	if m == nil {
		return
	}
	m.raceLost.Add(ctx, 1, metric.WithAttributes(attribute.String("source", source)))
}

func (m *MatchmakingMetrics) Malformed(ctx context.Context) {
	if m == nil {
		return
	}
	m.malformed.Add(ctx, 1)
}

func (m *MatchmakingMetrics) Swept(ctx context.Context, sweep string, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.swept.Add(ctx, n, metric.WithAttributes(attribute.String("sweep", sweep)))
}
