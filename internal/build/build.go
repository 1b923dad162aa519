package build

// Version of dmsocket. Set to tag in CI during release.
var Version = "0.0.0"

// ClientName is sent to the server in the User-Agent header of websocket and REST requests.
var ClientName = "dmsocket"

// UserAgent returns the value for the User-Agent header.
func UserAgent() string {
	return ClientName + "/" + Version
}
