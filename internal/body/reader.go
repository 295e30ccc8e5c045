// Package body implements the incremental request-body reader: exactly
// one non-blocking read per Step call, accumulating either a
// Content-Length-bounded body or a chunked-encoded one.
package body

import (
	"bytes"
	"errors"
	"strconv"
	"strings"

	"github.com/reactorhttp/reactorhttp/internal/headers"
	"github.com/reactorhttp/reactorhttp/internal/httperr"
)

// ErrWouldBlock is returned by a Source when no data is currently
// available - the non-blocking equivalent of EAGAIN/EWOULDBLOCK.
var ErrWouldBlock = errors.New("body: read would block")

// Source performs one non-blocking read attempt. Implementations
// translate EAGAIN into ErrWouldBlock and a peer-closed read into
// (0, io.EOF).
type Source interface {
	ReadNonBlocking(buf []byte) (n int, err error)
}

type mode int

const (
	modeContentLength mode = iota
	modeChunked
)

type chunkPhase int

const (
	phaseSize chunkPhase = iota
	phaseData
	phaseDataCRLF
	phaseTrailer
	phaseDone
)

// Reader accumulates a request body across however many non-blocking
// Steps it takes for the bytes to arrive.
type Reader struct {
	mode mode

	// Content-Length mode.
	remaining int64

	// Chunked mode.
	phase          chunkPhase
	chunkRemaining int64
	raw            bytes.Buffer // bytes read but not yet parsed into body

	body bytes.Buffer
	done bool
}

// New constructs a Reader from the request headers, selecting
// Content-Length or chunked framing. It returns httperr.ErrLengthRequired
// if neither is present.
func New(h *headers.Headers) (*Reader, error) {
	if n, ok := h.ContentLength(); ok {
		if n == 0 {
			return &Reader{mode: modeContentLength, done: true}, nil
		}
		return &Reader{mode: modeContentLength, remaining: n}, nil
	}
	if h.IsChunked() {
		return &Reader{mode: modeChunked, phase: phaseSize}, nil
	}
	return nil, httperr.ErrLengthRequired
}

// Done reports whether the full body has been assembled.
func (r *Reader) Done() bool { return r.done }

// Bytes returns the accumulated body. Only meaningful once Done.
func (r *Reader) Bytes() []byte { return r.body.Bytes() }

// Step performs exactly one non-blocking read from src and advances the
// body's internal state machine as far as the newly available bytes
// allow. It returns (true, nil) once the body is complete, (false, nil)
// if more data is needed, ErrWouldBlock if src had nothing available
// this round, or a parse error for malformed chunked framing.
func (r *Reader) Step(src Source) (bool, error) {
	if r.done {
		return true, nil
	}

	readLen := 4096
	if r.mode == modeContentLength && r.remaining < int64(readLen) {
		readLen = int(r.remaining) // never ask for more than Content-Length promises
	}
	buf := make([]byte, readLen)
	n, err := src.ReadNonBlocking(buf)
	if n > 0 {
		if r.mode == modeContentLength && int64(n) > r.remaining {
			// The source handed back more than the bounded buffer should
			// ever allow; treat it as a framing violation rather than
			// silently growing the body past Content-Length.
			return false, httperr.HTTPParse("body exceeds declared Content-Length", 400)
		}
		switch r.mode {
		case modeContentLength:
			r.body.Write(buf[:n])
		case modeChunked:
			r.raw.Write(buf[:n])
		}
	}
	if err != nil && !errors.Is(err, ErrWouldBlock) {
		return false, err
	}

	switch r.mode {
	case modeContentLength:
		r.remaining -= int64(n)
		if r.remaining <= 0 {
			r.done = true
		}
	case modeChunked:
		if parseErr := r.parseChunked(); parseErr != nil {
			return false, parseErr
		}
	}

	if r.done {
		return true, nil
	}
	if err != nil {
		return false, err // propagate ErrWouldBlock to the caller
	}
	return false, nil
}

func (r *Reader) parseChunked() error {
	for {
		switch r.phase {
		case phaseSize:
			line, ok := takeLine(&r.raw)
			if !ok {
				return nil
			}
			sizeStr := line
			if idx := strings.IndexByte(sizeStr, ';'); idx >= 0 {
				sizeStr = sizeStr[:idx] // ignore chunk extensions
			}
			size, err := strconv.ParseInt(strings.TrimSpace(sizeStr), 16, 64)
			if err != nil || size < 0 {
				return httperr.ErrMalformedChunk
			}
			r.chunkRemaining = size
			if size == 0 {
				r.phase = phaseTrailer
			} else {
				r.phase = phaseData
			}
		case phaseData:
			avail := r.raw.Bytes()
			take := int64(len(avail))
			if take > r.chunkRemaining {
				take = r.chunkRemaining
			}
			if take > 0 {
				r.body.Write(avail[:take])
				r.raw.Next(int(take))
				r.chunkRemaining -= take
			}
			if r.chunkRemaining > 0 {
				return nil
			}
			r.phase = phaseDataCRLF
		case phaseDataCRLF:
			if r.raw.Len() < 2 {
				return nil
			}
			crlf := make([]byte, 2)
			r.raw.Read(crlf)
			if crlf[0] != '\r' || crlf[1] != '\n' {
				return httperr.ErrMalformedChunk
			}
			r.phase = phaseSize
		case phaseTrailer:
			// Consume trailer headers (if any) up through the final blank line.
			line, ok := takeLine(&r.raw)
			if !ok {
				return nil
			}
			if line == "" {
				r.phase = phaseDone
				r.done = true
				return nil
			}
			// discard trailer header line, keep scanning for the blank line
		case phaseDone:
			return nil
		}
	}
}

// takeLine removes and returns the next CRLF-terminated line from buf
// (without the CRLF), or ("", false) if no full line is buffered yet.
func takeLine(buf *bytes.Buffer) (string, bool) {
	data := buf.Bytes()
	idx := bytes.Index(data, []byte("\r\n"))
	if idx < 0 {
		return "", false
	}
	line := string(data[:idx])
	buf.Next(idx + 2)
	return line, true
}
