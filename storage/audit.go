package storage

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"gopkg.in/natefinch/lumberjack.v2"
)

type sessionKey struct{}

// WithSessionID tags ctx with the console session the audited action came
// from.
func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionKey{}, id)
}

func SessionID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(sessionKey{}).(string)
	return id, ok
}

// AuditData is the interface for typed audit event data.
type AuditData interface {
	auditData()
}

type AuditEntry struct {
	Time      string    `json:"time"`
	SessionID string    `json:"session_id,omitempty"`
	Event     string    `json:"event"`
	Data      AuditData `json:"data"`
}

type AuditLogin struct {
	User   string `json:"user"`
	Remote string `json:"remote"`
}

func (AuditLogin) auditData() {}

type AuditLoginFailed struct {
	User   string `json:"user"`
	Remote string `json:"remote"`
}

func (AuditLoginFailed) auditData() {}

type AuditReload struct {
	Source   string `json:"source"`
	Released int    `json:"released"`
}

func (AuditReload) auditData() {}

type AuditReInit struct {
	Sources int `json:"sources"`
}

func (AuditReInit) auditData() {}

// AuditLogger writes administrative actions as JSON lines to a rotated file.
type AuditLogger struct {
	mu  sync.Mutex
	out io.WriteCloser
	enc *json.Encoder
}

func NewAuditLogger(path string) *AuditLogger {
	out := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    10,
		MaxBackups: 5,
		Compress:   true,
	}
	return &AuditLogger{
		out: out,
		enc: json.NewEncoder(out),
	}
}

// Log panics if the entry can't be encoded, since all AuditData types are
// plain structs.
func (a *AuditLogger) Log(ctx context.Context, event string, data AuditData) {
	a.mu.Lock()
	defer a.mu.Unlock()
	sessionID, _ := SessionID(ctx)
	if err := a.enc.Encode(AuditEntry{
		Time:      time.Now().UTC().Format(time.RFC3339Nano),
		SessionID: sessionID,
		Event:     event,
		Data:      data,
	}); err != nil {
		if _, ok := err.(*json.UnsupportedTypeError); ok {
			panic(fmt.Sprintf("audit log encode failed: %v", err))
		}
		log.Printf("audit log write failed: %v", err)
	}
}

func (a *AuditLogger) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.out.Close()
}
