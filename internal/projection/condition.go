// Package projection 从最近事件重建参与者当前状态（纯函数，无 I/O）
package projection

import (
	"fmt"
	"time"

	"wisefido-ledger/internal/domain"
)

const (
	// DefaultRecentWindow 重建使用的最近事件数
	DefaultRecentWindow = 20

	HeartRateHigh = 100.0
	HeartRateLow  = 50.0

	SourceRiskEngine = "Risk Engine"
	SourceAgent      = "Agent Sub-Routine"

	UnknownAlertCode   = "Unknown Alert Code"
	DefaultNoteMessage = "System Event Registered"

	SeverityAlert = "alert"
	SeverityInfo  = "info"

	// TimeLabelLayout 24 小时制 时:分:秒
	TimeLabelLayout = "15:04:05"
)

// Reconstruct 从 newest-first 的事件计算 condition、两条遥测序列、信息流和 system load
// 相同输入总是得到相同输出
func Reconstruct(participantID string, events []*domain.Event, loc *time.Location) *domain.ConditionSnapshot {
	if loc == nil {
		loc = time.Local
	}
	condition, trigger := EvaluateCondition(events)
	return &domain.ConditionSnapshot{
		ParticipantID:   participantID,
		Condition:       condition,
		Trigger:         trigger,
		HeartRateSeries: TelemetrySeries(events, domain.MetricHeartRate, loc),
		OxygenSeries:    TelemetrySeries(events, domain.MetricSpO2, loc),
		Insights:        Insights(events, loc),
		SystemLoad:      SystemLoad(len(events)),
	}
}

// EvaluateCondition 优先级：critical 告警 > 最近一次心率越界 > stable
// 按 newest-first 顺序取第一个命中的事件作为 trigger
func EvaluateCondition(events []*domain.Event) (domain.Condition, *domain.ConditionTrigger) {
	for _, e := range events {
		if alert, ok := e.Alert(); ok && alert.Severity == domain.SeverityCritical {
			return domain.ConditionCritical, &domain.ConditionTrigger{
				EventID: e.ID,
				Reason:  fmt.Sprintf("critical alert %s", alertMessage(alert.RuleCode)),
			}
		}
	}

	// 只看最近一次心率观测
	for _, e := range events {
		obs, ok := e.Observation()
		if !ok || obs.Metric != domain.MetricHeartRate {
			continue
		}
		if obs.Value > HeartRateHigh || obs.Value < HeartRateLow {
			return domain.ConditionAtRisk, &domain.ConditionTrigger{
				EventID: e.ID,
				Reason:  fmt.Sprintf("heart rate outside %.0f-%.0f", HeartRateLow, HeartRateHigh),
				Value:   obs.Value,
			}
		}
		break
	}

	return domain.ConditionStable, nil
}

// TelemetrySeries 过滤指定 metric 的观测，并反转为时间正序
func TelemetrySeries(events []*domain.Event, metric string, loc *time.Location) []domain.TelemetryPoint {
	points := []domain.TelemetryPoint{}
	for i := len(events) - 1; i >= 0; i-- {
		obs, ok := events[i].Observation()
		if !ok || obs.Metric != metric {
			continue
		}
		points = append(points, domain.TelemetryPoint{
			Time:  TimeLabel(events[i].OccurredAt, loc),
			Value: obs.Value,
		})
	}
	return points
}

// Insights ALERT/NOTE 事件映射为信息流，保持 newest-first
func Insights(events []*domain.Event, loc *time.Location) []domain.Insight {
	out := []domain.Insight{}
	for _, e := range events {
		switch e.Type {
		case domain.EventTypeAlert:
			alert, _ := e.Alert()
			out = append(out, domain.Insight{
				ID:        e.ID,
				Timestamp: TimeLabel(e.OccurredAt, loc),
				Source:    SourceRiskEngine,
				Message:   alertMessage(alert.RuleCode),
				Severity:  SeverityAlert,
			})
		case domain.EventTypeNote:
			note, _ := e.Note()
			msg := note.Text
			if msg == "" {
				msg = DefaultNoteMessage
			}
			out = append(out, domain.Insight{
				ID:        e.ID,
				Timestamp: TimeLabel(e.OccurredAt, loc),
				Source:    SourceAgent,
				Message:   msg,
				Severity:  SeverityInfo,
			})
		}
	}
	return out
}

// SystemLoad 展示用的合成指标：min(100, count*5)
func SystemLoad(eventCount int) int {
	load := eventCount * 5
	if load > 100 {
		return 100
	}
	if load < 0 {
		return 0
	}
	return load
}

// TimeLabel 格式化为 loc 时区的 HH:MM:SS
func TimeLabel(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return t.In(loc).Format(TimeLabelLayout)
}

func alertMessage(ruleCode string) string {
	if ruleCode == "" {
		return UnknownAlertCode
	}
	return ruleCode
}
