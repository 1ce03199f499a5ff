package server

import (
	"sort"
	"sync"

	"github.com/packagewjx/deepcluster/pkg/server"
	"gonum.org/v1/gonum/mat"
)

// memoryDao 测试使用的内存实现
type memoryDao struct {
	lock     sync.Mutex
	centers  *mat.Dense
	samples  map[string][]float64
	order    []string
	clusters map[string]*server.SampleCluster
	runIds   map[string]string
	runs     []*server.RefineRun
}

var _ Dao = &memoryDao{}

func newMemoryDao() *memoryDao {
	return &memoryDao{
		samples:  make(map[string][]float64),
		clusters: make(map[string]*server.SampleCluster),
		runIds:   make(map[string]string),
	}
}

func (m *memoryDao) SaveCentroids(centers mat.Matrix) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.centers = mat.DenseCopyOf(centers)
	return nil
}

func (m *memoryDao) SaveSamples(samples []*server.SampleEmbedding) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	for _, sample := range samples {
		if _, ok := m.samples[sample.Name]; !ok {
			m.order = append(m.order, sample.Name)
		}
		m.samples[sample.Name] = append([]float64(nil), sample.Embedding...)
	}
	return nil
}

func (m *memoryDao) SaveSampleClusters(arr []*server.SampleCluster, runId string) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	for _, c := range arr {
		if _, ok := m.samples[c.Name]; !ok {
			return server.ErrSampleNotFound
		}
		copied := *c
		m.clusters[c.Name] = &copied
		m.runIds[c.Name] = runId
	}
	return nil
}

func (m *memoryDao) SaveRefineRun(run *server.RefineRun) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.runs = append(m.runs, run)
	return nil
}

func (m *memoryDao) QueryCentroids() (*mat.Dense, error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	if m.centers == nil {
		return nil, ErrNoCentroids
	}
	return mat.DenseCopyOf(m.centers), nil
}

func (m *memoryDao) QueryAllSamples() ([]*server.SampleEmbedding, error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	result := make([]*server.SampleEmbedding, 0, len(m.order))
	for _, name := range m.order {
		result = append(result, &server.SampleEmbedding{Name: name, Embedding: m.samples[name]})
	}
	return result, nil
}

func (m *memoryDao) QuerySampleCluster(name string) (*server.SampleCluster, error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	if _, ok := m.samples[name]; !ok {
		return nil, server.ErrSampleNotFound
	}
	c, ok := m.clusters[name]
	if !ok {
		return nil, server.ErrSampleNotClassified
	}
	copied := *c
	return &copied, nil
}

func (m *memoryDao) QueryLatestRefineRun() (*server.RefineRun, error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	if len(m.runs) == 0 {
		return nil, ErrNoRefineRun
	}
	runs := append([]*server.RefineRun(nil), m.runs...)
	sort.Slice(runs, func(i, j int) bool {
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})
	return runs[0], nil
}
