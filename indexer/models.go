package indexer

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// QuestEvent is one committed quest event. Attributes holds the JSON encoded
// attribute map exactly as emitted.
type QuestEvent struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	Sequence   uint64    `gorm:"uniqueIndex;not null"`
	QuestID    uint64    `gorm:"index"`
	Type       string    `gorm:"index;not null"`
	Attributes string    `gorm:"type:text"`
	CreatedAt  time.Time
}

// AutoMigrate creates or updates the index schema.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&QuestEvent{})
}
