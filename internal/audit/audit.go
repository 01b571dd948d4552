// Package audit provides an async, buffered writer for audit events,
// batching writes so request handlers and job workers never block on the
// audit table.
package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alfredhq/backend/internal/store"
)

// Entry is a single audit log entry to be written.
type Entry struct {
	UserID     uuid.UUID
	EventType  string
	Connector  *string
	Result     store.AuditResult
	Metadata   map[string]any
	IPAddress  *netip.Addr
	UserAgent  *string
}

// Writer is an async, buffered audit log writer. Entries are sent to an
// internal channel and flushed by a background goroutine.
type Writer struct {
	store   *store.Queries
	logger  *slog.Logger
	entries chan Entry
	wg      sync.WaitGroup
}

const (
	bufferSize    = 256
	flushInterval = 2 * time.Second
	flushBatch    = 32
)

// NewWriter creates an audit Writer. Call Start to begin processing entries.
func NewWriter(q *store.Queries, logger *slog.Logger) *Writer {
	return &Writer{store: q, logger: logger, entries: make(chan Entry, bufferSize)}
}

// Start launches the background goroutine that flushes audit entries to
// the database and returns immediately. The goroutine exits once the
// context is cancelled or Close is called, after flushing pending entries.
func (w *Writer) Start(ctx context.Context) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.run(ctx)
	}()
}

// Close waits for all pending entries to be flushed.
func (w *Writer) Close() {
	close(w.entries)
	w.wg.Wait()
}

// Log enqueues an audit entry for async writing. It never blocks the
// caller; if the buffer is full the entry is dropped and a warning logged.
func (w *Writer) Log(entry Entry) {
	entry.Metadata = redactMetadata(entry.Metadata)
	select {
	case w.entries <- entry:
	default:
		w.logger.Warn("audit log buffer full, dropping entry", "event_type", entry.EventType)
	}
}

// LogFromRequest is a convenience method that extracts IP and user agent
// from the request, then enqueues the entry. Callers resolve userID from
// their own request context (hostapi.IdentityFromContext) to avoid this
// package depending on the host API's middleware package.
func (w *Writer) LogFromRequest(r *http.Request, userID uuid.UUID, eventType string, connector *string, result store.AuditResult, metadata map[string]any) {
	entry := Entry{UserID: userID, EventType: eventType, Connector: connector, Result: result, Metadata: metadata}

	ip := clientIP(r)
	if ip.IsValid() {
		entry.IPAddress = &ip
	}

	if ua := r.Header.Get("User-Agent"); ua != "" {
		entry.UserAgent = &ua
	}

	w.Log(entry)
}

func (w *Writer) run(ctx context.Context) {
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	batch := make([]Entry, 0, flushBatch)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		w.flush(batch)
		batch = batch[:0]
	}

	for {
		select {
		case entry, ok := <-w.entries:
			if !ok {
				flush()
				return
			}
			batch = append(batch, entry)
			if len(batch) >= flushBatch {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-ctx.Done():
			for {
				select {
				case entry, ok := <-w.entries:
					if !ok {
						flush()
						return
					}
					batch = append(batch, entry)
				default:
					flush()
					return
				}
			}
		}
	}
}

func (w *Writer) flush(entries []Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for _, e := range entries {
		metadata, err := json.Marshal(e.Metadata)
		if err != nil {
			w.logger.Error("marshaling audit metadata", "error", err, "event_type", e.EventType)
			continue
		}

		if _, err := w.store.InsertAuditEvent(ctx, store.InsertAuditEventParams{
			UserID:           e.UserID,
			EventType:        e.EventType,
			Connector:        e.Connector,
			Result:           e.Result,
			RedactedMetadata: metadata,
		}); err != nil {
			w.logger.Error("writing audit event", "error", err, "event_type", e.EventType)
		}
	}
}

var redactedKeyPattern = regexp.MustCompile(`(?i)token|secret|password|authorization|code`)

// redactMetadata scrubs any metadata key whose name suggests it carries a
// credential, replacing the value with a fixed marker rather than dropping
// the key, so callers can still see that a credential-shaped field existed.
func redactMetadata(metadata map[string]any) map[string]any {
	if metadata == nil {
		return nil
	}
	out := make(map[string]any, len(metadata))
	for k, v := range metadata {
		if redactedKeyPattern.MatchString(k) {
			out[k] = "[REDACTED]"
			continue
		}
		out[k] = v
	}
	return out
}

// clientIP extracts the client IP address from the request, preferring
// X-Forwarded-For and X-Real-IP headers over RemoteAddr.
func clientIP(r *http.Request) netip.Addr {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.SplitN(xff, ",", 2)
		if addr, err := netip.ParseAddr(strings.TrimSpace(parts[0])); err == nil {
			return addr
		}
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		if addr, err := netip.ParseAddr(strings.TrimSpace(xri)); err == nil {
			return addr
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	addr, _ := netip.ParseAddr(host)
	return addr
}
