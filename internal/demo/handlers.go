// Package demo holds a small set of reference handlers - reverse,
// uppercase, hash, timestamp, fibonacci and echo - wired up by
// cmd/server to give the reactor something to serve (the reference
// server's tests reuse Echo). These are illustrative, not part of the
// core dispatch machinery.
package demo

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/reactorhttp/reactorhttp/internal/handler"
	"github.com/reactorhttp/reactorhttp/internal/httperr"
)

// query parses a request's raw query string into a flat map, taking the
// last value for any repeated key.
func query(req *handler.Request) map[string]string {
	out := map[string]string{}
	values, err := url.ParseQuery(req.RawQuery)
	if err != nil {
		return out
	}
	for k, v := range values {
		if len(v) > 0 {
			out[k] = v[len(v)-1]
		}
	}
	return out
}

func badRequest(field, msg string) handler.Response {
	b, _ := json.Marshal(map[string]string{"error": field, "message": msg})
	return handler.Plain(400, string(b)).WithHeader("Content-Type", "application/json")
}

// Hello is the root handler: a minimal, always-200 greeting.
func Hello() handler.Handler {
	return handler.Handler{
		Method:  "GET",
		Pattern: "/",
		Fn: handler.Sync(func(*handler.Request) handler.Response {
			return handler.Plain(200, "hola mundo\n")
		}),
	}
}

// Help lists the registered demo routes.
func Help() handler.Handler {
	text := strings.TrimSpace(`
/                -> hola mundo
/help            -> this listing
/status          -> process + pool status
/reverse?text=   -> reverse text (UTF-8 safe)
/toupper?text=   -> uppercase text
/hash?text=      -> SHA-256 hex of text
/timestamp       -> JSON unix + UTC time
/fibonacci?num=  -> nth Fibonacci number
/echo            -> echoes the request body back
`) + "\n"
	return handler.Handler{
		Method:  "GET",
		Pattern: "/help",
		Fn: handler.Sync(func(*handler.Request) handler.Response {
			return handler.Plain(200, text)
		}),
	}
}

// Reverse reverses the ?text= parameter, rune-safe.
func Reverse() handler.Handler {
	return handler.Handler{
		Method:  "GET",
		Pattern: "/reverse",
		Fn: handler.Sync(func(req *handler.Request) handler.Response {
			txt, ok := query(req)["text"]
			if !ok {
				return badRequest("text", "text is required")
			}
			r := []rune(txt)
			for i, j := 0, len(r)-1; i < j; i, j = i+1, j-1 {
				r[i], r[j] = r[j], r[i]
			}
			return handler.Plain(200, string(r)+"\n")
		}),
	}
}

// ToUpper upper-cases the ?text= parameter.
func ToUpper() handler.Handler {
	return handler.Handler{
		Method:  "GET",
		Pattern: "/toupper",
		Fn: handler.Sync(func(req *handler.Request) handler.Response {
			txt, ok := query(req)["text"]
			if !ok {
				return badRequest("text", "text is required")
			}
			return handler.Plain(200, strings.ToUpper(txt)+"\n")
		}),
	}
}

// Hash SHA-256-hashes the ?text= parameter and returns JSON {algo, hex}.
func Hash() handler.Handler {
	return handler.Handler{
		Method:  "GET",
		Pattern: "/hash",
		Fn: handler.Sync(func(req *handler.Request) handler.Response {
			txt, ok := query(req)["text"]
			if !ok {
				return badRequest("text", "text is required")
			}
			sum := sha256.Sum256([]byte(txt))
			b, _ := json.Marshal(map[string]string{"algo": "sha256", "hex": hex.EncodeToString(sum[:])})
			return handler.Plain(200, string(b)).WithHeader("Content-Type", "application/json")
		}),
	}
}

// Timestamp reports the current unix epoch and UTC time as JSON.
func Timestamp() handler.Handler {
	return handler.Handler{
		Method:  "GET",
		Pattern: "/timestamp",
		Fn: handler.Sync(func(*handler.Request) handler.Response {
			now := time.Now().UTC()
			b, _ := json.Marshal(map[string]any{"unix": now.Unix(), "utc": now.Format(time.RFC3339)})
			return handler.Plain(200, string(b)).WithHeader("Content-Type", "application/json")
		}),
	}
}

// Fibonacci computes the nth Fibonacci number iteratively.
func Fibonacci() handler.Handler {
	return handler.Handler{
		Method:  "GET",
		Pattern: "/fibonacci",
		Fn: handler.Sync(func(req *handler.Request) handler.Response {
			v, ok := query(req)["num"]
			if !ok {
				return badRequest("num", "num is required")
			}
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				return badRequest("num", "num must be an integer >= 0")
			}
			return handler.Plain(200, fmt.Sprintf("%d\n", fibonacci(n)))
		}),
	}
}

func fibonacci(n int) int {
	if n < 2 {
		return n
	}
	a, b := 0, 1
	for i := 2; i <= n; i++ {
		a, b = b, a+b
	}
	return b
}

// Echo writes the request body back verbatim. Both server
// implementations drain the body before a handler runs, so by the time
// Echo sees the request its bytes are already available; a framing or
// drain error on Request.BodyErr is returned as its status instead.
func Echo() handler.Handler {
	return handler.Handler{
		Method:  "POST",
		Pattern: "/echo",
		Fn: handler.Sync(func(req *handler.Request) handler.Response {
			if req.BodyErr != nil {
				var he *httperr.Error
				if errors.As(req.BodyErr, &he) {
					status, body := he.StatusAndBody()
					return handler.Plain(status, body)
				}
				return handler.Plain(400, req.BodyErr.Error())
			}
			if req.Body == nil {
				return handler.Plain(200, "")
			}
			return handler.Plain(200, string(req.Body.Bytes()))
		}),
	}
}
