package layer

import (
	"encoding/json"
	"fmt"
)

// MarshalJSON adds the "type" discriminator.
func (t *Text) MarshalJSON() ([]byte, error) {
	type plain Text
	return json.Marshal(struct {
		Type Kind `json:"type"`
		*plain
	}{KindText, (*plain)(t)})
}

// MarshalJSON adds the "type" discriminator.
func (s *Sticker) MarshalJSON() ([]byte, error) {
	type plain Sticker
	return json.Marshal(struct {
		Type Kind `json:"type"`
		*plain
	}{KindSticker, (*plain)(s)})
}

// Unmarshal decodes one layer, dispatching on its "type" field.
// Layers without an id are given a fresh one.
func Unmarshal(data []byte) (Layer, error) {
	var head struct {
		Type Kind `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("decode layer: %w", err)
	}

	var l Layer
	switch head.Type {
	case KindText:
		t := &Text{}
		if err := json.Unmarshal(data, t); err != nil {
			return nil, fmt.Errorf("decode text layer: %w", err)
		}
		l = t
	case KindSticker:
		s := &Sticker{}
		if err := json.Unmarshal(data, s); err != nil {
			return nil, fmt.Errorf("decode sticker layer: %w", err)
		}
		l = s
	default:
		return nil, fmt.Errorf("unknown layer type %q", head.Type)
	}

	if l.Common().ID == "" {
		l.Common().ID = NewID()
	}
	normalize(l)
	return l, nil
}

// List is a layer slice that round-trips through JSON.
type List []Layer

// UnmarshalJSON decodes a JSON array of tagged layers.
func (ls *List) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(List, 0, len(raw))
	for i, r := range raw {
		l, err := Unmarshal(r)
		if err != nil {
			return fmt.Errorf("layer %d: %w", i, err)
		}
		out = append(out, l)
	}
	*ls = out
	return nil
}
