package cart

import (
	"encoding/json"
	"fmt"
)

const (
	fieldID     = "id"
	fieldAmount = "amount"
)

// MarshalJSON writes the product as a flat object: id plus its display fields.
func (p Product) MarshalJSON() ([]byte, error) {
	return json.Marshal(flatten(p, nil))
}

func (p *Product) UnmarshalJSON(data []byte) error {
	raw, err := decodeObject(data)
	if err != nil {
		return err
	}
	id, err := intField(raw, fieldID)
	if err != nil {
		return err
	}
	delete(raw, fieldID)
	// A catalog record never carries a cart amount; drop it so it cannot shadow ours.
	delete(raw, fieldAmount)
	p.ID = id
	p.Fields = raw
	return nil
}

// MarshalJSON writes the entry as the product object with an amount field.
func (e Entry) MarshalJSON() ([]byte, error) {
	amount := e.Amount
	return json.Marshal(flatten(e.Product, &amount))
}

func (e *Entry) UnmarshalJSON(data []byte) error {
	raw, err := decodeObject(data)
	if err != nil {
		return err
	}
	id, err := intField(raw, fieldID)
	if err != nil {
		return err
	}
	amount, err := intField(raw, fieldAmount)
	if err != nil {
		return err
	}
	delete(raw, fieldID)
	delete(raw, fieldAmount)
	e.ID = id
	e.Amount = amount
	e.Fields = raw
	return nil
}

// Encode serializes the full list for durable storage.
func Encode(es Entries) (string, error) {
	if es == nil {
		es = Entries{}
	}
	b, err := json.Marshal(es)
	if err != nil {
		return "", fmt.Errorf("cart: encode: %w", err)
	}
	return string(b), nil
}

// Decode parses a stored list. Empty input is an empty cart.
func Decode(s string) (Entries, error) {
	if s == "" {
		return Entries{}, nil
	}
	var es Entries
	if err := json.Unmarshal([]byte(s), &es); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorruptCart, err)
	}
	if es == nil {
		es = Entries{}
	}
	return es, nil
}

func flatten(p Product, amount *int) map[string]any {
	out := make(map[string]any, len(p.Fields)+2)
	for k, v := range p.Fields {
		out[k] = v
	}
	out[fieldID] = p.ID
	if amount != nil {
		out[fieldAmount] = *amount
	}
	return out
}

func decodeObject(data []byte) (map[string]json.RawMessage, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	if raw == nil {
		raw = map[string]json.RawMessage{}
	}
	return raw, nil
}

// intField reads an integer field; a missing field reads as zero.
func intField(raw map[string]json.RawMessage, key string) (int, error) {
	v, ok := raw[key]
	if !ok {
		return 0, nil
	}
	var n int
	if err := json.Unmarshal(v, &n); err != nil {
		return 0, fmt.Errorf("field %q: %w", key, err)
	}
	return n, nil
}
