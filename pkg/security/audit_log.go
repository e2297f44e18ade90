package security

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// AuditLevel 审计级别
type AuditLevel int

const (
	AuditLevelInfo AuditLevel = iota
	AuditLevelWarning
	AuditLevelError
	AuditLevelCritical
)

func (l AuditLevel) String() string {
	switch l {
	case AuditLevelInfo:
		return "info"
	case AuditLevelWarning:
		return "warning"
	case AuditLevelError:
		return "error"
	case AuditLevelCritical:
		return "critical"
	default:
		return fmt.Sprintf("level(%d)", int(l))
	}
}

// AuditEventType 审计事件类型
type AuditEventType string

const (
	EventTypeMCPToolCall AuditEventType = "mcp_tool_call"
	EventTypeAuthFailure AuditEventType = "auth_failure"
)

// AuditEvent 审计事件
type AuditEvent struct {
	ID        string                 `json:"id"`
	TraceID   string                 `json:"trace_id,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Level     AuditLevel             `json:"level"`
	EventType AuditEventType         `json:"event_type"`
	User      string                 `json:"user,omitempty"`
	Query     string                 `json:"query,omitempty"`
	Message   string                 `json:"message"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Success   bool                   `json:"success"`
	Duration  int64                  `json:"duration"` // 毫秒
}

// ToolCall describes one finished tool invocation.
type ToolCall struct {
	TraceID  string
	Client   string
	IP       string
	Tool     string
	Query    string
	Duration time.Duration
	Success  bool
	Level    AuditLevel
	Metadata map[string]interface{}
}

// AuditLogger keeps the most recent events in a fixed-size ring buffer.
type AuditLogger struct {
	mu     sync.RWMutex
	buffer []*AuditEvent
	size   int
	index  int
	count  int
	now    func() time.Time
}

// NewAuditLogger 创建审计日志记录器
func NewAuditLogger(size int) *AuditLogger {
	if size < 1 {
		size = 1
	}
	return &AuditLogger{
		buffer: make([]*AuditEvent, size),
		size:   size,
		now:    time.Now,
	}
}

// Log stores event, assigning an ID and timestamp when they are missing.
func (al *AuditLogger) Log(event *AuditEvent) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = al.now()
	}

	al.mu.Lock()
	defer al.mu.Unlock()
	al.buffer[al.index] = event
	al.index = (al.index + 1) % al.size
	if al.count < al.size {
		al.count++
	}
}

// LogToolCall 记录 MCP 工具调用
func (al *AuditLogger) LogToolCall(call ToolCall) {
	metadata := map[string]interface{}{
		"tool_name": call.Tool,
	}
	if call.IP != "" {
		metadata["ip"] = call.IP
	}
	for k, v := range call.Metadata {
		metadata[k] = v
	}

	al.Log(&AuditEvent{
		TraceID:   call.TraceID,
		Level:     call.Level,
		EventType: EventTypeMCPToolCall,
		User:      call.Client,
		Query:     call.Query,
		Message:   fmt.Sprintf("MCP tool: %s", call.Tool),
		Metadata:  metadata,
		Success:   call.Success,
		Duration:  call.Duration.Milliseconds(),
	})
}

// LogAuthFailure 记录认证失败
func (al *AuditLogger) LogAuthFailure(traceID, ip, toolName string) {
	al.Log(&AuditEvent{
		TraceID:   traceID,
		Level:     AuditLevelWarning,
		EventType: EventTypeAuthFailure,
		Message:   fmt.Sprintf("Unauthorized MCP tool call: %s", toolName),
		Metadata: map[string]interface{}{
			"ip":        ip,
			"tool_name": toolName,
		},
	})
}

// chronological returns stored events oldest first. Caller holds the lock.
func (al *AuditLogger) chronological() []*AuditEvent {
	events := make([]*AuditEvent, 0, al.count)
	start := (al.index - al.count + al.size) % al.size
	for i := 0; i < al.count; i++ {
		events = append(events, al.buffer[(start+i)%al.size])
	}
	return events
}

// GetEvents returns up to limit events, oldest first, skipping the offset
// most recent ones.
func (al *AuditLogger) GetEvents(offset, limit int) []*AuditEvent {
	al.mu.RLock()
	defer al.mu.RUnlock()

	events := al.chronological()
	end := len(events) - offset
	if end < 0 {
		end = 0
	}
	start := end - limit
	if start < 0 {
		start = 0
	}
	return events[start:end]
}

func (al *AuditLogger) filter(keep func(*AuditEvent) bool) []*AuditEvent {
	al.mu.RLock()
	defer al.mu.RUnlock()

	events := make([]*AuditEvent, 0)
	for _, event := range al.chronological() {
		if keep(event) {
			events = append(events, event)
		}
	}
	return events
}

// GetEventsByTraceID 获取指定 TraceID 的事件
func (al *AuditLogger) GetEventsByTraceID(traceID string) []*AuditEvent {
	return al.filter(func(e *AuditEvent) bool { return e.TraceID == traceID })
}

// GetEventsByUser 获取用户的事件
func (al *AuditLogger) GetEventsByUser(user string) []*AuditEvent {
	return al.filter(func(e *AuditEvent) bool { return e.User == user })
}

// GetEventsByType 获取指定类型的事件
func (al *AuditLogger) GetEventsByType(eventType AuditEventType) []*AuditEvent {
	return al.filter(func(e *AuditEvent) bool { return e.EventType == eventType })
}

// GetEventsByLevel 获取指定级别的事件
func (al *AuditLogger) GetEventsByLevel(level AuditLevel) []*AuditEvent {
	return al.filter(func(e *AuditEvent) bool { return e.Level == level })
}

// GetEventsByTimeRange returns events with start <= timestamp < end.
func (al *AuditLogger) GetEventsByTimeRange(start, end time.Time) []*AuditEvent {
	return al.filter(func(e *AuditEvent) bool {
		return !e.Timestamp.Before(start) && e.Timestamp.Before(end)
	})
}

// Export 导出审计日志
func (al *AuditLogger) Export() (string, error) {
	events := al.GetEvents(0, al.size)
	data, err := json.MarshalIndent(events, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
