package evals

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type EvalRun struct {
	ID      uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	Dataset string    `gorm:"column:dataset;not null" json:"dataset"`

	Total            int `gorm:"column:total;not null" json:"total"`
	Correct          int `gorm:"column:correct;not null" json:"correct"`
	Refused          int `gorm:"column:refused;not null" json:"refused"`
	ExpectedRefusals int `gorm:"column:expected_refusals;not null" json:"expected_refusals"`

	Metrics datatypes.JSON `gorm:"type:jsonb;column:metrics" json:"metrics"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
}

func (EvalRun) TableName() string { return "eval_run" }
