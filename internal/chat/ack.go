package chat

import (
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/encoding/json"
	"github.com/tidwall/gjson"
)

const (
	opSendMessage = "sendMessage"
	opMarkAsRead  = "markAsRead"
)

// legacyAckEvents maps operations to the event name of the deprecated
// {event, data} acknowledgement shape.
var legacyAckEvents = map[string]string{
	opSendMessage: "messageSent",
	opMarkAsRead:  "messagesRead",
}

var legacyAckWarnings sync.Map

type ackResult struct {
	OK      bool
	Data    json.RawMessage
	Message string
	Legacy  bool
}

// decodeAck interprets acknowledgement arguments. The canonical shape is
// {success, data, error}. The legacy {event, data} shape is still understood.
func decodeAck(op string, args []json.RawMessage) (ackResult, error) {
	if len(args) == 0 || !gjson.ValidBytes(args[0]) {
		return ackResult{}, ErrMalformedAck
	}
	res := gjson.ParseBytes(args[0])
	if !res.IsObject() {
		return ackResult{}, ErrMalformedAck
	}

	if success := res.Get("success"); success.Exists() {
		r := ackResult{OK: success.Bool(), Message: res.Get("error").String()}
		if data := res.Get("data"); data.Exists() {
			r.Data = json.RawMessage(data.Raw)
		}
		return r, nil
	}

	if event := res.Get("event"); event.Exists() {
		if event.String() != legacyAckEvents[op] {
			return ackResult{}, ErrMalformedAck
		}
		warnLegacyAck(op)
		data := res.Get("data")
		r := ackResult{OK: true, Legacy: true, Message: res.Get("error").String()}
		if data.Exists() {
			r.Data = json.RawMessage(data.Raw)
			if s := data.Get("success"); s.Exists() {
				r.OK = s.Bool()
			}
		}
		return r, nil
	}

	if e := res.Get("error"); e.Exists() {
		return ackResult{OK: false, Message: e.String()}, nil
	}
	return ackResult{}, ErrMalformedAck
}

func warnLegacyAck(op string) {
	if _, loaded := legacyAckWarnings.LoadOrStore(op, struct{}{}); loaded {
		return
	}
	log.Warn().Str("op", op).Str("event", legacyAckEvents[op]).Msg("server uses deprecated acknowledgement format, expected {success, data, error}")
}
