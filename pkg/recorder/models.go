// pkg/recorder/models.go
package recorder

import (
	"time"

	"github.com/opd-ai/go-dogfight/pkg/entity"
)

// TickRecord is one recorded snapshot.
type TickRecord struct {
	Tick         uint64 `gorm:"primaryKey;autoIncrement:false"`
	Ended        bool
	FighterCount int
	RecordedAt   time.Time
}

// TableName fixes the table name independent of the naming strategy.
func (TickRecord) TableName() string {
	return "ticks"
}

// FighterRecord is the state of one fighter at the end of a tick.
type FighterRecord struct {
	ID             uint   `gorm:"primaryKey"`
	Tick           uint64 `gorm:"uniqueIndex:idx_tick_fighter;not null"`
	FighterID      string `gorm:"uniqueIndex:idx_tick_fighter;size:64;not null"`
	CurrentHeading uint32
	DesiredHeading uint32
	CurrentSpeed   uint32
	X              uint32
	Y              uint32
}

func (FighterRecord) TableName() string {
	return "fighters"
}

// models lists every table the recorder migrates.
var models = []interface{}{
	&TickRecord{},
	&FighterRecord{},
}

func fighterRecord(tick uint64, f entity.Fighter) FighterRecord {
	return FighterRecord{
		Tick:           tick,
		FighterID:      f.ID,
		CurrentHeading: f.CurrentHeading,
		DesiredHeading: f.DesiredHeading,
		CurrentSpeed:   f.CurrentSpeed,
		X:              f.X,
		Y:              f.Y,
	}
}

func (r FighterRecord) fighter() *entity.Fighter {
	return &entity.Fighter{
		ID:             r.FighterID,
		CurrentHeading: r.CurrentHeading,
		DesiredHeading: r.DesiredHeading,
		CurrentSpeed:   r.CurrentSpeed,
		X:              r.X,
		Y:              r.Y,
	}
}
