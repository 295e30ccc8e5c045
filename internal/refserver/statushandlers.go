package refserver

import (
	"encoding/json"
	"time"

	"github.com/reactorhttp/reactorhttp/internal/handler"
)

// StatusHandler reports process identity, uptime and connection count -
// a reference introspection endpoint, not a production metrics layer.
// workers is the worker pool size, resolved by the caller (it may depend
// on runtime.NumCPU() and so isn't known until the pool is built).
func StatusHandler(workers int) handler.Handler {
	return handler.Handler{
		Method:  "GET",
		Pattern: "/status",
		Fn: handler.Sync(func(*handler.Request) handler.Response {
			out := map[string]any{
				"pid":         PID(),
				"uptime_ms":   Uptime().Milliseconds(),
				"started_at":  StartedAt().UTC().Format(time.RFC3339Nano),
				"connections": ConnCount(),
				"workers":     workers,
			}
			b, _ := json.Marshal(out)
			resp := handler.Plain(200, string(b))
			return resp.WithHeader("Content-Type", "application/json")
		}),
	}
}
