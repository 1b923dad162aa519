package transport

import (
	"fmt"
	"net/url"
	"strings"
)

// DefaultPath of the Socket.IO endpoint.
const DefaultPath = "/socket.io/"

// SocketURL derives the websocket endpoint from the REST API base URL: same host,
// any "/api..." path suffix stripped, ws/wss scheme, Engine.IO v4 websocket query.
func SocketURL(apiBase string, path string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(apiBase))
	if err != nil {
		return "", &ConnectError{Message: "invalid api base url", Permanent: true, Err: err}
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", &ConnectError{Message: fmt.Sprintf("unsupported url scheme %q", u.Scheme), Permanent: true}
	}
	if u.Host == "" {
		return "", &ConnectError{Message: "api base url without host", Permanent: true}
	}
	if path == "" {
		path = DefaultPath
	}
	u.Path = stripAPISuffix(u.Path) + "/" + strings.TrimPrefix(path, "/")
	u.RawPath = ""
	u.RawQuery = url.Values{"EIO": {"4"}, "transport": {"websocket"}}.Encode()
	u.Fragment = ""
	u.User = nil
	return u.String(), nil
}

func stripAPISuffix(p string) string {
	p = strings.TrimRight(p, "/")
	for i := 0; i+len("/api") <= len(p); i++ {
		if p[i:i+len("/api")] != "/api" {
			continue
		}
		end := i + len("/api")
		if end == len(p) || p[end] == '/' {
			return p[:i]
		}
	}
	return p
}
