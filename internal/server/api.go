package server

import (
	"fmt"

	"github.com/packagewjx/deepcluster/pkg/core"
	"github.com/packagewjx/deepcluster/pkg/server"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

var _ server.API = &serverImpl{}

func (s *serverImpl) Assign(samples []*server.SampleEmbedding) (*server.AssignResponse, error) {
	s.logger.Printf("接收到%d个样本的分配请求\n", len(samples))
	batch, names, err := s.toBatch(samples)
	if err != nil {
		return nil, err
	}

	// 保存完成之前不允许替换模型，保证自训练结束时能看到所有用旧模型分配的样本
	s.lock.RLock()
	defer s.lock.RUnlock()
	q, err := s.model.Forward(batch)
	if err != nil {
		return nil, errors.Wrap(err, "计算软分配出错")
	}
	results := toSampleClusters(names, q)

	err = s.dao.SaveSamples(samples)
	if err != nil {
		s.logger.Printf("保存样本失败，原因为：%v\n", err)
		return nil, err
	}
	err = s.dao.SaveSampleClusters(results, "")
	if err != nil {
		s.logger.Printf("保存分配结果失败，原因为：%v\n", err)
		return nil, err
	}
	s.markAssigned(names)

	return &server.AssignResponse{Results: results}, nil
}

// markAssigned 自训练期间记录被分配的样本
func (s *serverImpl) markAssigned(names []string) {
	s.assignedLock.Lock()
	defer s.assignedLock.Unlock()
	if s.assignedDuringRefine == nil {
		return
	}
	for _, name := range names {
		s.assignedDuringRefine[name] = struct{}{}
	}
}

func (s *serverImpl) beginTracking() {
	s.assignedLock.Lock()
	s.assignedDuringRefine = make(map[string]struct{})
	s.assignedLock.Unlock()
}

// stopTracking 返回开始记录以来被分配的样本
func (s *serverImpl) stopTracking() map[string]struct{} {
	s.assignedLock.Lock()
	defer s.assignedLock.Unlock()
	names := s.assignedDuringRefine
	s.assignedDuringRefine = nil
	return names
}

func (s *serverImpl) toBatch(samples []*server.SampleEmbedding) (*core.Matrix, []string, error) {
	dim := int(s.config.EmbeddingDim)
	batch := core.NewMatrix(len(samples), dim, nil)
	names := make([]string, len(samples))
	for i, sample := range samples {
		if sample == nil || sample.Name == "" {
			return nil, nil, fmt.Errorf("%w：第%d个样本没有名称", server.ErrInvalidSample, i)
		}
		if len(sample.Embedding) != dim {
			return nil, nil, fmt.Errorf("%w：样本%s的维度为%d，应为%d",
				server.ErrInvalidSample, sample.Name, len(sample.Embedding), dim)
		}
		copy(batch.RawRow(i), sample.Embedding)
		names[i] = sample.Name
	}
	return batch, names, nil
}

func toSampleClusters(names []string, q *core.Matrix) []*server.SampleCluster {
	labels := core.ArgMax(q)
	results := make([]*server.SampleCluster, len(names))
	for i, name := range names {
		assignment := make([]float64, len(q.RawRow(i)))
		copy(assignment, q.RawRow(i))
		results[i] = &server.SampleCluster{
			Name:       name,
			ClusterId:  labels[i],
			Confidence: assignment[labels[i]],
			Assignment: assignment,
		}
	}
	return results
}

func (s *serverImpl) QueryCentroids() (*server.Centroids, error) {
	s.lock.RLock()
	assignment := s.model.Assignment()
	centers := assignment.Centers()
	alpha := assignment.Alpha()
	s.lock.RUnlock()

	rows, _ := centers.Dims()
	result := &server.Centroids{
		Alpha:   alpha,
		Centers: make([][]float64, rows),
	}
	for i := range result.Centers {
		result.Centers[i] = mat.Row(nil, i, centers)
	}
	return result, nil
}

func (s *serverImpl) QuerySampleCluster(name string) (*server.SampleCluster, error) {
	s.logger.Printf("接收到查询样本%s的请求\n", name)
	cluster, err := s.dao.QuerySampleCluster(name)
	if err == server.ErrSampleNotFound || err == server.ErrSampleNotClassified {
		return nil, err
	} else if err != nil {
		s.logger.Printf("查询SampleCluster失败，原因为：%v\n", err)
		return nil, err
	}
	return cluster, nil
}

// Refine 已有待执行的自训练时不会重复触发
func (s *serverImpl) Refine() error {
	select {
	case s.executeRefine <- struct{}{}:
	default:
		s.logger.Println("已有等待执行的自训练")
	}
	return nil
}
