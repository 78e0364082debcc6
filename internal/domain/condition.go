package domain

// Condition 由最近事件推导出的风险等级，不落库
type Condition string

const (
	ConditionStable   Condition = "stable"
	ConditionAtRisk   Condition = "at-risk"
	ConditionCritical Condition = "critical"
)

// TelemetryPoint 时序点（time 为 HH:MM:SS 标签）
type TelemetryPoint struct {
	Time  string  `json:"time"`
	Value float64 `json:"value"`
}

// Insight 告警/备注信息流条目
type Insight struct {
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
	Source    string `json:"source"`
	Message   string `json:"message"`
	Severity  string `json:"severity"`
}

// ConditionTrigger 决定当前 condition 的事件
type ConditionTrigger struct {
	EventID string  `json:"eventId"`
	Reason  string  `json:"reason"`
	Value   float64 `json:"value,omitempty"`
}

// ConditionSnapshot 一次重建的完整结果
type ConditionSnapshot struct {
	ParticipantID   string            `json:"participantId,omitempty"`
	Condition       Condition         `json:"condition"`
	Trigger         *ConditionTrigger `json:"trigger,omitempty"`
	HeartRateSeries []TelemetryPoint  `json:"heartRateSeries"`
	OxygenSeries    []TelemetryPoint  `json:"oxygenSeries"`
	Insights        []Insight         `json:"insights"`
	SystemLoad      int               `json:"systemLoad"`
}

// EmptySnapshot 无任何参与者时的基线
func EmptySnapshot() *ConditionSnapshot {
	return &ConditionSnapshot{
		Condition:       ConditionStable,
		HeartRateSeries: []TelemetryPoint{},
		OxygenSeries:    []TelemetryPoint{},
		Insights:        []Insight{},
		SystemLoad:      0,
	}
}
