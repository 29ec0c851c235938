package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// MaxDescriptionLength bounds a task description in characters.
const MaxDescriptionLength = 500

// Task is a personal to-do item. The id is chosen by the client.
type Task struct {
	ID          string       `gorm:"primaryKey;type:varchar(64)" json:"id"`
	OwnerID     snowflake.ID `gorm:"not null;index" json:"owner_id"`
	Description string       `gorm:"type:text;not null" json:"description"`
	CreatedAt   time.Time    `gorm:"not null" json:"created_at"`
}

func (Task) TableName() string { return "tasks" }
