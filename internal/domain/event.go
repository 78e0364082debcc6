package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType 事件类型（决定 Detail 的具体类型）
type EventType string

const (
	EventTypePresence      EventType = "PRESENCE"
	EventTypeObservation   EventType = "OBSERVATION"
	EventTypeTaskExecution EventType = "TASK_EXECUTION"
	EventTypeAlert         EventType = "ALERT"
	EventTypeNote          EventType = "NOTE"
	EventTypeMessage       EventType = "MESSAGE"
)

// 常用取值
const (
	TaskResultCompleted = "completed"
	SeverityCritical    = "critical"
	MetricHeartRate     = "heart_rate"
	MetricSpO2          = "spo2"
)

// EventTypes 所有合法事件类型
var EventTypes = []EventType{
	EventTypePresence,
	EventTypeObservation,
	EventTypeTaskExecution,
	EventTypeAlert,
	EventTypeNote,
	EventTypeMessage,
}

// Valid 是否为合法事件类型
func (t EventType) Valid() bool {
	for _, et := range EventTypes {
		if t == et {
			return true
		}
	}
	return false
}

// Detail 事件明细（六选一）
type Detail interface {
	EventType() EventType
}

// Presence 到场定位
type Presence struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Accuracy  float64 `json:"accuracy"` // 米
}

// Observation 生命体征观测
type Observation struct {
	Metric string  `json:"metric"`
	Value  float64 `json:"value"`
	Unit   string  `json:"unit"`
}

// TaskExecution 护理任务执行
type TaskExecution struct {
	TaskCode string `json:"taskCode"`
	Result   string `json:"result"`
}

// Alert 规则告警
type Alert struct {
	RuleCode string `json:"ruleCode"`
	Severity string `json:"severity"`
}

// Note 备注
type Note struct {
	Text string `json:"text"`
}

// Message 护理团队消息
type Message struct {
	Text string `json:"text"`
}

func (Presence) EventType() EventType      { return EventTypePresence }
func (Observation) EventType() EventType   { return EventTypeObservation }
func (TaskExecution) EventType() EventType { return EventTypeTaskExecution }
func (Alert) EventType() EventType         { return EventTypeAlert }
func (Note) EventType() EventType          { return EventTypeNote }
func (Message) EventType() EventType       { return EventTypeMessage }

// Event 只追加的事实记录，写入后不可修改
// Detail 可能为 nil（明细行缺失），读取方需容忍
type Event struct {
	ID            string
	ParticipantID string
	ActorID       string
	OccurredAt    time.Time
	Type          EventType
	Detail        Detail
}

// NewEvent 按明细类型构造事件
func NewEvent(id, participantID, actorID string, occurredAt time.Time, detail Detail) *Event {
	return &Event{
		ID:            id,
		ParticipantID: participantID,
		ActorID:       actorID,
		OccurredAt:    occurredAt,
		Type:          detail.EventType(),
		Detail:        detail,
	}
}

// Validate 校验 type 与 detail 一致
func (e *Event) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("event id is required")
	}
	if e.ParticipantID == "" {
		return fmt.Errorf("participant_id is required")
	}
	if !e.Type.Valid() {
		return fmt.Errorf("invalid event type: %q", e.Type)
	}
	if e.OccurredAt.IsZero() {
		return fmt.Errorf("occurred_at is required")
	}
	if e.Detail == nil {
		return fmt.Errorf("event %s has no detail", e.ID)
	}
	if e.Detail.EventType() != e.Type {
		return fmt.Errorf("event type %s does not match detail type %s", e.Type, e.Detail.EventType())
	}
	return nil
}

// Observation 返回观测明细
func (e *Event) Observation() (Observation, bool) {
	d, ok := e.Detail.(Observation)
	return d, ok && e.Type == EventTypeObservation
}

// Alert 返回告警明细
func (e *Event) Alert() (Alert, bool) {
	d, ok := e.Detail.(Alert)
	return d, ok && e.Type == EventTypeAlert
}

// Note 返回备注明细
func (e *Event) Note() (Note, bool) {
	d, ok := e.Detail.(Note)
	return d, ok && e.Type == EventTypeNote
}

// TaskExecution 返回任务执行明细
func (e *Event) TaskExecution() (TaskExecution, bool) {
	d, ok := e.Detail.(TaskExecution)
	return d, ok && e.Type == EventTypeTaskExecution
}

// IsCompletedTask 是否为指定任务的 completed 执行记录
func (e *Event) IsCompletedTask(taskCode string) bool {
	te, ok := e.TaskExecution()
	return ok && te.TaskCode == taskCode && te.Result == TaskResultCompleted
}

type eventJSON struct {
	ID            string          `json:"id"`
	ParticipantID string          `json:"participantId"`
	ActorID       string          `json:"actorId"`
	OccurredAt    time.Time       `json:"occurredAt"`
	Type          EventType       `json:"type"`
	Detail        json.RawMessage `json:"detail"`
}

// MarshalJSON 输出 {..., "type": "...", "detail": {...}}
func (e Event) MarshalJSON() ([]byte, error) {
	detail := json.RawMessage("null")
	if e.Detail != nil {
		b, err := json.Marshal(e.Detail)
		if err != nil {
			return nil, err
		}
		detail = b
	}
	return json.Marshal(eventJSON{
		ID:            e.ID,
		ParticipantID: e.ParticipantID,
		ActorID:       e.ActorID,
		OccurredAt:    e.OccurredAt,
		Type:          e.Type,
		Detail:        detail,
	})
}

// UnmarshalJSON 按 type 解析 detail
func (e *Event) UnmarshalJSON(data []byte) error {
	var raw eventJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	detail, err := DecodeDetail(raw.Type, raw.Detail)
	if err != nil {
		return err
	}
	*e = Event{
		ID:            raw.ID,
		ParticipantID: raw.ParticipantID,
		ActorID:       raw.ActorID,
		OccurredAt:    raw.OccurredAt,
		Type:          raw.Type,
		Detail:        detail,
	}
	return nil
}

// DecodeDetail 按事件类型解析明细 JSON；空或 null 返回 nil
func DecodeDetail(t EventType, data []byte) (Detail, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}
	var (
		d   Detail
		err error
	)
	switch t {
	case EventTypePresence:
		var v Presence
		err = json.Unmarshal(data, &v)
		d = v
	case EventTypeObservation:
		var v Observation
		err = json.Unmarshal(data, &v)
		d = v
	case EventTypeTaskExecution:
		var v TaskExecution
		err = json.Unmarshal(data, &v)
		d = v
	case EventTypeAlert:
		var v Alert
		err = json.Unmarshal(data, &v)
		d = v
	case EventTypeNote:
		var v Note
		err = json.Unmarshal(data, &v)
		d = v
	case EventTypeMessage:
		var v Message
		err = json.Unmarshal(data, &v)
		d = v
	default:
		return nil, fmt.Errorf("unknown event type: %q", t)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s detail: %w", t, err)
	}
	return d, nil
}
