package persistence

import (
	"gorm.io/gorm"
)

//Shift persists a logged work session. Rows are owned by exactly one account and are never
//updated after insertion; the primary key preserves insertion order.
type Shift struct {
	gorm.Model
	Account   string `gorm:"index;not null"`
	Date      string `gorm:"not null"`
	StartHour string `gorm:"not null"`
	EndHour   string
	Earnings  float64
	Weather   string
	//Traffic is nil when the congestion measure was unknown
	Traffic *float64
}
