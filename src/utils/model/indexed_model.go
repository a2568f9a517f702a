package model

import "time"

// Model enrolled for indexing, its anchors are kept up to date
type IndexedModel struct {
	ModelId   string `gorm:"primaryKey"`
	CreatedOn time.Time
}

func (IndexedModel) TableName() string {
	return "indexed_models"
}
