package httperr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReasonPhraseKnown(t *testing.T) {
	require.Equal(t, "OK", ReasonPhrase(200))
	require.Equal(t, "Not Found", ReasonPhrase(404))
	require.Equal(t, "Length Required", ReasonPhrase(411))
	require.Equal(t, "Gateway Timeout", ReasonPhrase(504))
}

func TestReasonPhraseSynthesizesUnknown(t *testing.T) {
	require.Equal(t, "Status 799", ReasonPhrase(799))
}

func TestHandlerErrorRendersAs500(t *testing.T) {
	e := Handler("/boom", "GET", errors.New("nil pointer"))
	status, body := e.StatusAndBody()
	require.Equal(t, 500, status)
	require.Contains(t, body, "nil pointer")
}

func TestResourceExhaustedRendersAs503(t *testing.T) {
	e := ResourceExhausted("worker queue", 256)
	status, _ := e.StatusAndBody()
	require.Equal(t, 503, status)
}

func TestTimeoutRendersAs504(t *testing.T) {
	e := Timeout("handler", 5000)
	status, _ := e.StatusAndBody()
	require.Equal(t, 504, status)
}

func TestLengthRequiredIs411(t *testing.T) {
	status, _ := ErrLengthRequired.StatusAndBody()
	require.Equal(t, 411, status)
}

func TestErrorUnwrap(t *testing.T) {
	base := errors.New("root cause")
	e := IO("reading socket", base)
	require.ErrorIs(t, e, base)
}
