package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"wisefido-ledger/internal/domain"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

const (
	uniqueViolation        = "23505"
	taskCompletedIndexName = "ux_task_completed"
)

// PostgresEventStore 事件存储 PostgreSQL 实现
// events 表 + 六张明细表（按 event_id 一对一）
type PostgresEventStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresEventStore 创建事件存储
func NewPostgresEventStore(db *sql.DB, logger *zap.Logger) *PostgresEventStore {
	return &PostgresEventStore{db: db, logger: logger}
}

// 确保实现了接口
var _ EventStore = (*PostgresEventStore)(nil)

// hydratedSelect 一次 LEFT JOIN 取回事件及其明细
const hydratedSelect = `
	SELECT
		e.event_id::text,
		e.participant_id::text,
		e.actor_id,
		e.occurred_at,
		e.event_type,
		p.latitude,
		p.longitude,
		p.accuracy,
		o.metric,
		o.value,
		o.unit,
		t.task_code,
		t.result,
		a.rule_code,
		a.severity,
		n.text,
		m.text
	FROM events e
	LEFT JOIN event_presence p ON p.event_id = e.event_id
	LEFT JOIN event_observations o ON o.event_id = e.event_id
	LEFT JOIN event_task_executions t ON t.event_id = e.event_id
	LEFT JOIN event_alerts a ON a.event_id = e.event_id
	LEFT JOIN event_notes n ON n.event_id = e.event_id
	LEFT JOIN event_messages m ON m.event_id = e.event_id
`

// CreateParticipant 创建参与者
func (r *PostgresEventStore) CreateParticipant(ctx context.Context, p *domain.Participant) error {
	if p == nil || p.ID == "" {
		return fmt.Errorf("participant id is required")
	}
	createdAt := p.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	var dob interface{}
	if p.DOB != nil {
		dob = *p.DOB
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO participants (participant_id, name, dob, address, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		p.ID, p.Name, dob, p.Address, createdAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create participant: %w", err)
	}
	p.CreatedAt = createdAt
	return nil
}

// LatestParticipant 最近创建的参与者
func (r *PostgresEventStore) LatestParticipant(ctx context.Context) (*domain.Participant, error) {
	var (
		p   domain.Participant
		dob sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT participant_id::text, name, dob, COALESCE(address, ''), created_at
		FROM participants
		ORDER BY created_at DESC
		LIMIT 1
	`).Scan(&p.ID, &p.Name, &dob, &p.Address, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get latest participant: %w", err)
	}
	if dob.Valid {
		p.DOB = &dob.Time
	}
	return &p, nil
}

// ListRecentEvents 最近 limit 条事件（倒序）
func (r *PostgresEventStore) ListRecentEvents(ctx context.Context, participantID string, limit int) ([]*domain.Event, error) {
	if participantID == "" {
		return nil, fmt.Errorf("participant_id is required")
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive")
	}
	query := hydratedSelect + `
		WHERE e.participant_id = $1
		ORDER BY e.occurred_at DESC, e.seq DESC
		LIMIT $2
	`
	return r.queryEvents(ctx, query, participantID, limit)
}

// ListEventsInRange 时间范围内事件（正序，回放用）
func (r *PostgresEventStore) ListEventsInRange(ctx context.Context, participantID string, start, end time.Time) ([]*domain.Event, error) {
	if participantID == "" {
		return nil, fmt.Errorf("participant_id is required")
	}
	query := hydratedSelect + `
		WHERE e.participant_id = $1
		  AND e.occurred_at >= $2
		  AND e.occurred_at <= $3
		ORDER BY e.occurred_at ASC, e.seq ASC
	`
	return r.queryEvents(ctx, query, participantID, start, end)
}

// HasCompletedTask 是否存在 completed 的任务执行
func (r *PostgresEventStore) HasCompletedTask(ctx context.Context, participantID, taskCode string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1
			FROM event_task_executions t
			JOIN events e ON e.event_id = t.event_id
			WHERE t.participant_id = $1
			  AND e.event_type = 'TASK_EXECUTION'
			  AND t.task_code = $2
			  AND t.result = 'completed'
		)
	`, participantID, taskCode).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check completed task: %w", err)
	}
	return exists, nil
}

// AppendEvent 单事务写入事件及明细
func (r *PostgresEventStore) AppendEvent(ctx context.Context, e *domain.Event) (err error) {
	if e == nil {
		return fmt.Errorf("event is required")
	}
	if err := e.Validate(); err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx,
		`INSERT INTO events (event_id, participant_id, actor_id, occurred_at, event_type)
		 VALUES ($1, $2, $3, $4, $5)`,
		e.ID, e.ParticipantID, e.ActorID, e.OccurredAt, string(e.Type),
	); err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}

	if err = insertDetail(ctx, tx, e); err != nil {
		if isTaskCompletedViolation(err) {
			r.logger.Warn("Rejected duplicate task completion",
				zap.String("participant_id", e.ParticipantID),
				zap.String("event_id", e.ID),
			)
			return ErrDuplicateCompletion
		}
		return fmt.Errorf("failed to insert %s detail: %w", e.Type, err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit event: %w", err)
	}
	return nil
}

// CountEvents 事件总数
func (r *PostgresEventStore) CountEvents(ctx context.Context, participantID string) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM events WHERE participant_id = $1`, participantID,
	).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return n, nil
}

func insertDetail(ctx context.Context, tx *sql.Tx, e *domain.Event) error {
	var err error
	switch d := e.Detail.(type) {
	case domain.Presence:
		_, err = tx.ExecContext(ctx,
			`INSERT INTO event_presence (event_id, latitude, longitude, accuracy) VALUES ($1, $2, $3, $4)`,
			e.ID, d.Latitude, d.Longitude, d.Accuracy)
	case domain.Observation:
		_, err = tx.ExecContext(ctx,
			`INSERT INTO event_observations (event_id, metric, value, unit) VALUES ($1, $2, $3, $4)`,
			e.ID, d.Metric, d.Value, d.Unit)
	case domain.TaskExecution:
		_, err = tx.ExecContext(ctx,
			`INSERT INTO event_task_executions (event_id, participant_id, task_code, result) VALUES ($1, $2, $3, $4)`,
			e.ID, e.ParticipantID, d.TaskCode, d.Result)
	case domain.Alert:
		_, err = tx.ExecContext(ctx,
			`INSERT INTO event_alerts (event_id, rule_code, severity) VALUES ($1, $2, $3)`,
			e.ID, d.RuleCode, d.Severity)
	case domain.Note:
		_, err = tx.ExecContext(ctx,
			`INSERT INTO event_notes (event_id, text) VALUES ($1, $2)`,
			e.ID, d.Text)
	case domain.Message:
		_, err = tx.ExecContext(ctx,
			`INSERT INTO event_messages (event_id, text) VALUES ($1, $2)`,
			e.ID, d.Text)
	default:
		err = fmt.Errorf("unsupported detail type %T", e.Detail)
	}
	return err
}

func isTaskCompletedViolation(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != uniqueViolation {
		return false
	}
	return pqErr.Constraint == taskCompletedIndexName
}

func (r *PostgresEventStore) queryEvents(ctx context.Context, query string, args ...interface{}) ([]*domain.Event, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	events := []*domain.Event{}
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate events: %w", err)
	}
	return events, nil
}

// scanEvent 扫描一行并按 event_type 组装明细
func scanEvent(rows *sql.Rows) (*domain.Event, error) {
	var (
		e                     domain.Event
		eventType             string
		lat, lng, acc         sql.NullFloat64
		metric, unit          sql.NullString
		value                 sql.NullFloat64
		taskCode, result      sql.NullString
		ruleCode, severity    sql.NullString
		noteText, messageText sql.NullString
	)
	if err := rows.Scan(
		&e.ID,
		&e.ParticipantID,
		&e.ActorID,
		&e.OccurredAt,
		&eventType,
		&lat, &lng, &acc,
		&metric, &value, &unit,
		&taskCode, &result,
		&ruleCode, &severity,
		&noteText,
		&messageText,
	); err != nil {
		return nil, fmt.Errorf("failed to scan event: %w", err)
	}
	e.Type = domain.EventType(eventType)

	// 明细行缺失时 Detail 保持 nil
	switch e.Type {
	case domain.EventTypePresence:
		if lat.Valid {
			e.Detail = domain.Presence{Latitude: lat.Float64, Longitude: lng.Float64, Accuracy: acc.Float64}
		}
	case domain.EventTypeObservation:
		if metric.Valid {
			e.Detail = domain.Observation{Metric: metric.String, Value: value.Float64, Unit: unit.String}
		}
	case domain.EventTypeTaskExecution:
		if taskCode.Valid {
			e.Detail = domain.TaskExecution{TaskCode: taskCode.String, Result: result.String}
		}
	case domain.EventTypeAlert:
		if severity.Valid {
			e.Detail = domain.Alert{RuleCode: ruleCode.String, Severity: severity.String}
		}
	case domain.EventTypeNote:
		if noteText.Valid {
			e.Detail = domain.Note{Text: noteText.String}
		}
	case domain.EventTypeMessage:
		if messageText.Valid {
			e.Detail = domain.Message{Text: messageText.String}
		}
	}
	return &e, nil
}
