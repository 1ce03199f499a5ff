package server

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/packagewjx/deepcluster/internal/classify"
	"github.com/packagewjx/deepcluster/internal/dec"
	"github.com/packagewjx/deepcluster/internal/encoder"
	"github.com/packagewjx/deepcluster/pkg/core"
	"github.com/packagewjx/deepcluster/pkg/server"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// initCentroids 依次尝试中心文件、数据库、随机初始化
func (s *serverImpl) initCentroids() error {
	k := int(s.config.NumClusters)
	dim := int(s.config.EmbeddingDim)

	var initial mat.Matrix
	if s.config.InitialCenterCsvFile != "" {
		s.logger.Println("正在读取中心数据")
		f, err := os.Open(s.config.InitialCenterCsvFile)
		if err != nil {
			return errors.Wrap(err, fmt.Sprintf("打开文件%s失败", s.config.InitialCenterCsvFile))
		}
		centers, err := readInitialCenter(f, k, dim)
		_ = f.Close()
		if err != nil {
			return errors.Wrap(err, fmt.Sprintf("读取文件%s失败", s.config.InitialCenterCsvFile))
		}

		s.logger.Println("正在更新数据库的中心数据")
		if err = s.dao.SaveCentroids(centers); err != nil {
			return errors.Wrap(err, "写入聚类中心失败")
		}
		initial = centers
	} else {
		centers, err := s.dao.QueryCentroids()
		if err == ErrNoCentroids {
			s.logger.Println("数据库中没有聚类中心，将随机初始化")
		} else if err != nil {
			return err
		} else {
			initial = centers
		}
	}

	model, err := dec.New(k, dim, encoder.Identity{Dim: dim}, initial, s.config.Alpha,
		rand.New(rand.NewSource(s.config.Seed)))
	if err != nil {
		return errors.Wrap(err, "创建模型失败")
	}
	if initial == nil {
		if err = s.dao.SaveCentroids(model.Assignment().Centers()); err != nil {
			return errors.Wrap(err, "写入聚类中心失败")
		}
	}

	s.lock.Lock()
	s.model = model
	s.lock.Unlock()
	return nil
}

// readInitialCenter 每行一个聚类中心，没有名称列
func readInitialCenter(csvInput io.Reader, k, dim int) (*mat.Dense, error) {
	table, err := classify.NewDataLoader(classify.CSV).Load(csvInput, -1, nil)
	if err != nil {
		return nil, errors.Wrap(err, "读取CSV数据出错")
	}
	rows, cols := table.Data.Dims()
	if rows == 0 {
		return nil, fmt.Errorf("没有读取到任何数据")
	}
	if rows != k || cols != dim {
		return nil, fmt.Errorf("聚类中心应为%dx%d，实际为%dx%d", k, dim, rows, cols)
	}
	return mat.DenseCopyOf(table.Data.Dense()), nil
}

// nextRefineTime 返回now之后最近的一个每天refineTime时刻
func nextRefineTime(now time.Time, refineTime time.Duration) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()).Add(refineTime)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

func (s *serverImpl) refiner(ctx context.Context) {
	s.logger.Println("自训练线程启动")

	for {
		next := nextRefineTime(time.Now(), s.config.RefineTime)
		s.logger.Printf("自训练将于%s执行\n", next.Format("2006-01-02T15:04:05-0700"))
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			s.logger.Println("自训练线程退出")
			return
		case <-timer.C:
		case <-s.executeRefine:
			timer.Stop()
		}

		if _, err := s.refine(ctx); err != nil {
			s.logger.Printf("自训练出错：%v\n", err)
		}
	}
}

// refine 使用数据库中的全部样本优化聚类中心，然后重新分配所有样本。没有样本时返回nil。
func (s *serverImpl) refine(ctx context.Context) (*server.RefineRun, error) {
	run := &server.RefineRun{
		RunId:     uuid.New().String(),
		StartedAt: time.Now(),
	}
	s.logger.Printf("自训练%s开始\n", run.RunId)

	s.beginTracking()
	defer s.stopTracking()

	s.logger.Println("正在获取所有样本")
	samples, err := s.dao.QueryAllSamples()
	if err != nil {
		return nil, errors.Wrap(err, "读取样本出错")
	}
	if len(samples) == 0 {
		s.logger.Println("没有样本，跳过自训练")
		return nil, nil
	}

	k := int(s.config.NumClusters)
	dim := int(s.config.EmbeddingDim)
	embeddings := core.NewMatrix(len(samples), dim, nil)
	names := make([]string, len(samples))
	for i, sample := range samples {
		if len(sample.Embedding) != dim {
			return nil, fmt.Errorf("样本%s的维度为%d，应为%d", sample.Name, len(sample.Embedding), dim)
		}
		copy(embeddings.RawRow(i), sample.Embedding)
		names[i] = sample.Name
	}

	// 在副本上训练，训练期间继续使用旧的中心提供服务
	s.lock.RLock()
	current := s.model.Assignment().Centers()
	s.lock.RUnlock()
	assignment, err := dec.NewClusterAssignment(k, dim, s.config.Alpha, current, nil)
	if err != nil {
		return nil, err
	}
	trainer, err := dec.NewSelfTrainer(assignment, s.config.trainerConfig(), s.logger)
	if err != nil {
		return nil, err
	}

	s.logger.Printf("开始执行自训练，共%d个样本\n", len(samples))
	result, err := trainer.Refine(ctx, embeddings)
	if err != nil {
		return nil, errors.Wrap(err, "自训练出错")
	}
	model, err := dec.New(k, dim, encoder.Identity{Dim: dim}, assignment.Parameters(), s.config.Alpha, nil)
	if err != nil {
		return nil, err
	}

	s.logger.Println("正在保存中心数据")
	if err = s.dao.SaveCentroids(assignment.Parameters()); err != nil {
		return nil, errors.Wrap(err, "保存聚类中心时出现错误")
	}

	q, err := model.Forward(embeddings)
	if err != nil {
		return nil, err
	}
	if collapsed := dec.CollapsedClusters(q); len(collapsed) > 0 {
		s.logger.Printf("以下类别没有分配到任何样本：%v\n", collapsed)
	}

	s.logger.Println("保存新的样本与类别绑定关系")
	if err = s.dao.SaveSampleClusters(toSampleClusters(names, q), run.RunId); err != nil {
		return nil, errors.Wrap(err, "保存样本类别时出现问题")
	}

	if err = s.swapModel(model, run.RunId); err != nil {
		return nil, err
	}

	run.FinishedAt = time.Now()
	run.NumSamples = len(samples)
	run.Iterations = result.Iterations
	run.Loss = result.Loss
	run.Delta = result.Delta
	run.Converged = result.Converged
	if err = s.dao.SaveRefineRun(run); err != nil {
		return nil, errors.Wrap(err, "保存自训练记录时出现问题")
	}

	s.logger.Printf("自训练%s结束，迭代%d轮，KL散度为%f\n", run.RunId, run.Iterations, run.Loss)
	return run, nil
}

// swapModel 替换模型，并用新模型重新分配自训练期间提交的样本。
// 持有写锁期间Assign会等待，之后提交的样本直接使用新模型。
func (s *serverImpl) swapModel(model *dec.DEC, runId string) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.model = model

	assigned := s.stopTracking()
	if len(assigned) == 0 {
		return nil
	}
	s.logger.Printf("自训练期间提交了%d个样本，使用新的中心重新分配\n", len(assigned))

	samples, err := s.dao.QueryAllSamples()
	if err != nil {
		return errors.Wrap(err, "读取样本出错")
	}
	dim := int(s.config.EmbeddingDim)
	rows := make([][]float64, 0, len(assigned))
	names := make([]string, 0, len(assigned))
	for _, sample := range samples {
		if _, ok := assigned[sample.Name]; ok {
			rows = append(rows, sample.Embedding)
			names = append(names, sample.Name)
		}
	}
	batch, err := core.FromRows(dim, rows)
	if err != nil {
		return errors.Wrap(err, "样本维度错误")
	}

	q, err := model.Forward(batch)
	if err != nil {
		return err
	}
	if err = s.dao.SaveSampleClusters(toSampleClusters(names, q), runId); err != nil {
		return errors.Wrap(err, "重新分配样本时出现问题")
	}
	return nil
}
