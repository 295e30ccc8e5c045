// Package httperr supplies the HTTP reason-phrase table and the error
// taxonomy used to turn internal failures into well-formed responses.
package httperr

import "fmt"

var reasonPhrases = map[int]string{
	200: "OK",
	201: "Created",
	204: "No Content",
	301: "Moved Permanently",
	400: "Bad Request",
	401: "Unauthorized",
	403: "Forbidden",
	404: "Not Found",
	409: "Conflict",
	411: "Length Required",
	415: "Unsupported Media Type",
	418: "I'm a teapot",
	500: "Internal Server Error",
	503: "Service Unavailable",
	504: "Gateway Timeout",
	505: "HTTP Version Not Supported",
}

// ReasonPhrase returns the standard reason phrase for code, or a
// synthetic placeholder for codes this table doesn't carry.
func ReasonPhrase(code int) string {
	if phrase, ok := reasonPhrases[code]; ok {
		return phrase
	}
	return fmt.Sprintf("Status %d", code)
}
