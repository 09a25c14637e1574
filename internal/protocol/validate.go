package protocol

import (
	"errors"
	"net/url"
	"regexp"
	"strings"
)

// Protocol error classes. Handlers map these to ERROR replies; none of them
// tear down the connection.
var (
	ErrUnknownType  = errors.New("unknown message type")
	ErrMissingField = errors.New("missing required field")
	ErrInvalidRoom  = errors.New("invalid room id")
	ErrInvalidURL   = errors.New("invalid url")
	ErrNotHost      = errors.New("not room host")
	ErrNotInRoom    = errors.New("not a member of room")
)

// Room IDs are 1-20 alphanumeric characters. Anything else is rejected before
// it can reach the room key space.
var roomIDPattern = regexp.MustCompile(`^[A-Za-z0-9]{1,20}$`)

// NormalizeRoomID validates a room identifier and canonicalizes it to
// uppercase. Returns ErrInvalidRoom if the identifier does not match the
// allowed pattern.
func NormalizeRoomID(id string) (string, error) {
	if !roomIDPattern.MatchString(id) {
		return "", ErrInvalidRoom
	}
	return strings.ToUpper(id), nil
}

// ValidateHostURL checks that a host URL is non-empty, parseable, and uses
// the http or https scheme.
func ValidateHostURL(raw string) error {
	if raw == "" {
		return ErrInvalidURL
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ErrInvalidURL
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ErrInvalidURL
	}
	if u.Host == "" {
		return ErrInvalidURL
	}
	return nil
}
