package selection

import (
	"encoding/json"
	"slices"
)

// Set holds the ids marked for out-of-stock. The zero value is empty and ready to use.
type Set struct {
	ids map[int64]struct{}
}

// NewSet builds a set from ids.
func NewSet(ids ...int64) Set {
	s := Set{}
	for _, id := range ids {
		s.Add(id)
	}
	return s
}

func (s *Set) Add(id int64) {
	if s.ids == nil {
		s.ids = make(map[int64]struct{})
	}
	s.ids[id] = struct{}{}
}

func (s *Set) Remove(id int64) {
	delete(s.ids, id)
}

func (s Set) Has(id int64) bool {
	_, ok := s.ids[id]
	return ok
}

func (s Set) Len() int {
	return len(s.ids)
}

// IDs returns the members in ascending order.
func (s Set) IDs() []int64 {
	out := make([]int64, 0, len(s.ids))
	for id := range s.ids {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// Clone returns an independent copy.
func (s Set) Clone() Set {
	return NewSet(s.IDs()...)
}

// MarshalJSON encodes the set as a sorted id array.
func (s Set) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.IDs())
}

// UnmarshalJSON decodes an id array.
func (s *Set) UnmarshalJSON(data []byte) error {
	var ids []int64
	if err := json.Unmarshal(data, &ids); err != nil {
		return err
	}
	*s = NewSet(ids...)
	return nil
}
