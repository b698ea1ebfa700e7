package types

// Event represents a typed event emitted during a settlement state change.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

// Attr returns the attribute value for key, or "" when absent.
func (e *Event) Attr(key string) string {
	if e == nil || e.Attributes == nil {
		return ""
	}
	return e.Attributes[key]
}

// Clone returns a deep copy of the event.
func (e *Event) Clone() *Event {
	if e == nil {
		return nil
	}
	out := &Event{Type: e.Type, Attributes: make(map[string]string, len(e.Attributes))}
	for k, v := range e.Attributes {
		out.Attributes[k] = v
	}
	return out
}
