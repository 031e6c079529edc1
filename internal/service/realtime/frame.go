package realtime

import (
	"errors"

	"github.com/goccy/go-json"
)

var ErrNotObject = errors.New("event payload is not a json object")

type Tick struct {
	Type   string  `json:"type"`
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`
	T      int64   `json:"t"`
}

type ack struct {
	Type   string `json:"type"`
	Symbol string `json:"symbol"`
}

type clientMessage struct {
	Type   string `json:"type"`
	Symbol any    `json:"symbol"`
}

// EncodeEvent turns an event payload into a client frame by adding the "type" field
// alongside the payload's own top-level fields.
func EncodeEvent(eventType string, payload []byte) ([]byte, error) {
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(payload, &fields); err != nil {
		return nil, err
	}
	if fields == nil {
		return nil, ErrNotObject
	}

	typ, err := json.Marshal(eventType)
	if err != nil {
		return nil, err
	}
	fields["type"] = typ
	return json.Marshal(fields)
}

func encodeAck(kind, symbol string) []byte {
	b, _ := json.Marshal(ack{Type: kind, Symbol: symbol})
	return b
}
