// pkg/entity/snapshot.go
package entity

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Snapshot is a complete export of every registered fighter at the end of
// a tick. Fighters are ordered by ID so equal states encode identically.
type Snapshot struct {
	Tick     uint64    `json:"tick"`
	Ended    bool      `json:"ended"`
	Fighters []Fighter `json:"fighters"`
}

// NewSnapshot copies the given fighters into a snapshot sorted by ID.
func NewSnapshot(tick uint64, ended bool, fighters []*Fighter) *Snapshot {
	s := &Snapshot{
		Tick:     tick,
		Ended:    ended,
		Fighters: make([]Fighter, 0, len(fighters)),
	}
	for _, f := range fighters {
		s.Fighters = append(s.Fighters, *f)
	}
	sort.Slice(s.Fighters, func(i, j int) bool {
		return s.Fighters[i].ID < s.Fighters[j].ID
	})
	return s
}

// Fighter returns the fighter with the given ID, if present.
func (s *Snapshot) Fighter(id string) (Fighter, bool) {
	i := sort.Search(len(s.Fighters), func(i int) bool {
		return s.Fighters[i].ID >= id
	})
	if i < len(s.Fighters) && s.Fighters[i].ID == id {
		return s.Fighters[i], true
	}
	return Fighter{}, false
}

// Marshal encodes the snapshot as JSON.
func (s *Snapshot) Marshal() ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}
	return data, nil
}

// UnmarshalSnapshot decodes a snapshot produced by Marshal.
func UnmarshalSnapshot(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	sort.Slice(s.Fighters, func(i, j int) bool {
		return s.Fighters[i].ID < s.Fighters[j].ID
	})
	return &s, nil
}
