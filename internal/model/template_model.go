package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// InterviewTemplate is the stored definition an interview session is
// seeded from. The session takes an immutable snapshot of its questions
// at start; later template edits never affect a running interview.
type InterviewTemplate struct {
	Id        uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	Name      string    `gorm:"type:varchar(255);not null"`
	Mode      string    `gorm:"type:varchar(32);not null;default:'STRUCTURED'"`
	Questions []TemplateQuestion
	CreatedAt time.Time      `gorm:"autoCreateTime"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime"`
	DeletedAt gorm.DeletedAt `gorm:"index"`
}

func (InterviewTemplate) TableName() string {
	return "interview_templates"
}

type TemplateQuestion struct {
	Id                  uuid.UUID      `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	InterviewTemplateId uuid.UUID      `gorm:"type:uuid;not null;index"`
	Position            int            `gorm:"not null"`
	Text                string         `gorm:"type:text;not null"`
	Rubric              string         `gorm:"type:text"`
	MaxFollowups        int            `gorm:"default:2"`
	CreatedAt           time.Time      `gorm:"autoCreateTime"`
	UpdatedAt           time.Time      `gorm:"autoUpdateTime"`
	DeletedAt           gorm.DeletedAt `gorm:"index"`
}

func (TemplateQuestion) TableName() string {
	return "template_questions"
}
