package relayws

import (
	"net/http"
	"net/url"
)

// serverTarget tracks the primary server and the one dialed on the next attempt.
// It is guarded by the manager lock.
type serverTarget struct {
	primary url.URL
	current url.URL
	header  http.Header
	set     bool
}

func newServerTarget(primary *url.URL, header http.Header) *serverTarget {
	t := &serverTarget{header: header}
	if primary != nil {
		t.primary = *primary
		t.current = *primary
		t.set = true
	}
	return t
}

// Current returns the address of the next attempt, if any.
func (t *serverTarget) Current() (url.URL, bool) {
	return t.current, t.set
}

func (t *serverTarget) Primary() url.URL {
	return t.primary
}

// OnPrimary reports whether the next attempt goes to the primary server.
func (t *serverTarget) OnPrimary() bool {
	return t.current.String() == t.primary.String()
}

// Redirect overrides the next target until ResetToPrimary.
func (t *serverTarget) Redirect(u url.URL) {
	t.current = u
	t.set = true
}

func (t *serverTarget) ResetToPrimary() {
	t.current = t.primary
}

// Params builds the dial parameters for the current server.
func (t *serverTarget) Params() OpenConnectionParams {
	return OpenConnectionParams{
		URL:    t.current,
		Header: t.header.Clone(),
	}
}

// parseServer accepts absolute ws, wss, http or https URIs.
func parseServer(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "ws", "wss", "http", "https":
	default:
		return nil, &url.Error{Op: "parse", URL: raw, Err: errUnsupportedScheme}
	}
	if u.Host == "" {
		return nil, &url.Error{Op: "parse", URL: raw, Err: errMissingHost}
	}
	return u, nil
}
