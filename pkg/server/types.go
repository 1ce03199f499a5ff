package server

import (
	"fmt"
	"time"
)

// SampleEmbedding 一个样本的名称及其嵌入向量
type SampleEmbedding struct {
	Name      string    `json:"name"`
	Embedding []float64 `json:"embedding"`
}

type AssignRequest struct {
	Samples []*SampleEmbedding `json:"samples"`
}

// SampleCluster 样本的聚类结果。Assignment为软分配，ClusterId为其中概率最大的类别，Confidence为对应的概率。
type SampleCluster struct {
	Name       string    `json:"name"`
	ClusterId  int       `json:"clusterId"`
	Confidence float64   `json:"confidence"`
	Assignment []float64 `json:"assignment,omitempty"`
}

type AssignResponse struct {
	Results []*SampleCluster `json:"results"`
}

type Centroids struct {
	Alpha   float64     `json:"alpha"`
	Centers [][]float64 `json:"centers"`
}

// RefineRun 一次自训练的记录
type RefineRun struct {
	RunId      string    `json:"runId"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
	NumSamples int       `json:"numSamples"`
	Iterations int       `json:"iterations"`
	Loss       float64   `json:"loss"`
	Delta      float64   `json:"delta"`
	Converged  bool      `json:"converged"`
}

var ErrSampleNotFound = fmt.Errorf("不存在本样本")

var ErrSampleNotClassified = fmt.Errorf("尚未对样本分类")

var ErrInvalidSample = fmt.Errorf("样本数据有误")

type API interface {
	// Assign 保存样本的嵌入向量，并返回使用当前聚类中心计算的分配结果
	Assign(samples []*SampleEmbedding) (*AssignResponse, error)

	QueryCentroids() (*Centroids, error)

	QuerySampleCluster(name string) (*SampleCluster, error)

	// Refine 触发一次自训练，不等待其完成
	Refine() error
}
