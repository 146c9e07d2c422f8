// Package qr maps scanned or typed codes to catalog records.
package qr

import (
	"strings"
	"time"

	"lablink/models"

	jsoniter "github.com/json-iterator/go"
)

const PayloadType = "lablink_item"

// Payload is what label printers encode. Bare codes and UUIDs are accepted too.
type Payload struct {
	Type string `json:"type"`
	ID   string `json:"id,omitempty"`
	Code string `json:"code,omitempty"`
	TS   int64  `json:"ts,omitempty"`
}

// ParsePayload never fails: anything that is not a JSON object is a raw code.
func ParsePayload(raw string) (p Payload, isJSON bool) {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "{") {
		return Payload{}, false
	}
	if err := jsoniter.ConfigFastest.UnmarshalFromString(s, &p); err != nil {
		return Payload{}, false
	}
	p.ID = strings.TrimSpace(p.ID)
	p.Code = strings.TrimSpace(p.Code)
	return p, true
}

// Encode builds the label payload for an item, or for one of its units when unit is set.
func Encode(it *models.Item, unit *models.ItemUnit, now time.Time) (string, error) {
	p := Payload{Type: PayloadType, ID: it.ID, Code: it.Code, TS: now.UnixMilli()}
	if unit != nil {
		p.ID, p.Code = unit.ID, unit.Serial
	}
	return jsoniter.ConfigFastest.MarshalToString(p)
}
