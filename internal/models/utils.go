package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

type Address struct {
	Name    string `json:"name,omitempty"`
	Address string `json:"address"`
}

// Participants is stored as a single jsonb column.
type Participants struct {
	From    []Address `json:"from,omitempty"`
	To      []Address `json:"to,omitempty"`
	Cc      []Address `json:"cc,omitempty"`
	Bcc     []Address `json:"bcc,omitempty"`
	ReplyTo []Address `json:"replyTo,omitempty"`
}

// Value implements the driver.Valuer interface for Participants
func (p Participants) Value() (driver.Value, error) {
	return json.Marshal(p)
}

// Scan implements the sql.Scanner interface for Participants
func (p *Participants) Scan(value interface{}) error {
	if value == nil {
		*p = Participants{}
		return nil
	}

	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, p)
	case string:
		return json.Unmarshal([]byte(v), p)
	default:
		return fmt.Errorf("unsupported participants column type %T", value)
	}
}

// Sender returns the first From address, if any.
func (p Participants) Sender() *Address {
	if len(p.From) == 0 {
		return nil
	}
	return &p.From[0]
}
