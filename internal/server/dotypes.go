package server

import (
	"time"

	"gorm.io/gorm"
)

// CentroidDO ID为类别编号加1
type CentroidDO struct {
	ID        uint `gorm:"primarykey"`
	CreatedAt time.Time
	UpdatedAt time.Time
	Center    []byte `gorm:"type:BLOB"`
}

type SampleDo struct {
	gorm.Model
	Name      string `gorm:"uniqueIndex;type:VARCHAR(256)"`
	Embedding []byte `gorm:"type:MEDIUMBLOB"`
}

type SampleClusterDO struct {
	gorm.Model
	SampleId   uint `gorm:"uniqueIndex"`
	ClusterId  int
	Confidence float64
	Assignment []byte `gorm:"type:BLOB"`
	RunId      string `gorm:"type:VARCHAR(36)"` // 在线分配时为空
}

type RefineRunDO struct {
	gorm.Model
	RunId      string `gorm:"uniqueIndex;type:VARCHAR(36)"`
	StartedAt  time.Time
	FinishedAt time.Time
	NumSamples int
	Iterations int
	Loss       float64
	Delta      float64
	Converged  bool
}
