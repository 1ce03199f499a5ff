package server

import (
	"fmt"
	"log"
	"os"
	"sync"

	"github.com/packagewjx/deepcluster/pkg/server"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	databaseName = "deepcluster"
	maxOneRun    = 5000
)

var ErrNoCentroids = fmt.Errorf("数据库中没有聚类中心")

var ErrNoRefineRun = fmt.Errorf("尚未执行过自训练")

type UpdateDao interface {
	// SaveCentroids 删除已有的聚类中心并保存新的中心
	SaveCentroids(centers mat.Matrix) error
	// SaveSamples 保存样本的嵌入向量，同名样本会被覆盖
	SaveSamples(samples []*server.SampleEmbedding) error
	// SaveSampleClusters 保存样本的聚类结果，样本必须已经保存
	SaveSampleClusters(arr []*server.SampleCluster, runId string) error
	SaveRefineRun(run *server.RefineRun) error
}

type QueryDao interface {
	QueryCentroids() (*mat.Dense, error)
	QueryAllSamples() ([]*server.SampleEmbedding, error)
	QuerySampleCluster(name string) (*server.SampleCluster, error)
	QueryLatestRefineRun() (*server.RefineRun, error)
}

type Dao interface {
	UpdateDao
	QueryDao
}

type daoImpl struct {
	db          *gorm.DB
	idLock      sync.Mutex
	sampleIdMap map[string]uint
	logger      *log.Logger
}

var _ Dao = &daoImpl{}

func NewDao(host string) (Dao, error) {
	user := os.Getenv("MYSQL_USER")
	if user == "" {
		user = "root"
	}
	databaseURL := fmt.Sprintf("%s:%s@tcp(%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		user, os.Getenv("MYSQL_PASSWORD"), host, databaseName)
	db, err := gorm.Open(mysql.Open(databaseURL), &gorm.Config{
		Logger: logger.New(log.New(os.Stdout, "", 0), logger.Config{
			LogLevel: logger.Silent,
		}),
	})
	if err != nil {
		return nil, errors.Wrap(err, "连接数据库错误")
	}

	// 创建表格等
	err = db.AutoMigrate(&CentroidDO{}, &SampleDo{}, &SampleClusterDO{}, &RefineRunDO{})
	if err != nil {
		return nil, errors.Wrap(err, "创建表格时出现异常")
	}

	// 读取样本ID
	sampleIdMap := make(map[string]uint)
	sampleRecords := make([]*SampleDo, 0)
	err = db.Select("id", "name").Find(&sampleRecords).Error
	if err != nil {
		return nil, errors.Wrap(err, "读取样本记录时出错")
	}
	for _, record := range sampleRecords {
		sampleIdMap[record.Name] = record.ID
	}

	return &daoImpl{
		db:          db,
		sampleIdMap: sampleIdMap,
		logger:      log.New(os.Stdout, "Dao: ", log.LstdFlags|log.Lshortfile|log.Lmsgprefix),
	}, nil
}

func (d *daoImpl) SaveCentroids(centers mat.Matrix) error {
	rows, cols := centers.Dims()
	doarr := make([]*CentroidDO, rows)
	for i := 0; i < rows; i++ {
		row := make([]float64, cols)
		mat.Row(row, i, centers)
		doarr[i] = &CentroidDO{
			ID:     uint(i + 1),
			Center: encodeVector(row),
		}
	}

	d.logger.Printf("正在保存%d个聚类中心", rows)

	return d.db.Transaction(func(tx *gorm.DB) error {
		err := tx.Where("1 = 1").Delete(&CentroidDO{}).Error
		if err != nil {
			return errors.Wrap(err, "删除聚类中心出错")
		}
		if len(doarr) == 0 {
			return nil
		}
		return errors.Wrap(tx.Create(doarr).Error, "保存聚类中心出错")
	})
}

func (d *daoImpl) SaveSamples(samples []*server.SampleEmbedding) error {
	newDo := make([]*SampleDo, 0, len(samples))
	pending := make(map[string]*SampleDo)
	updated := 0
	for _, sample := range samples {
		embedding := encodeVector(sample.Embedding)
		if do, ok := pending[sample.Name]; ok {
			do.Embedding = embedding
			continue
		}

		id, err := d.querySampleId(sample.Name)
		if err == server.ErrSampleNotFound {
			do := &SampleDo{Name: sample.Name, Embedding: embedding}
			pending[sample.Name] = do
			newDo = append(newDo, do)
			continue
		} else if err != nil {
			return err
		}

		err = d.db.Model(&SampleDo{}).Where("id = ?", id).Update("embedding", embedding).Error
		if err != nil {
			return errors.Wrap(err, fmt.Sprintf("更新样本%s出错", sample.Name))
		}
		updated++
	}

	d.logger.Printf("插入%d个新样本，更新%d个样本", len(newDo), updated)

	for i := 0; i < len(newDo); i += maxOneRun {
		end := i + maxOneRun
		if end > len(newDo) {
			end = len(newDo)
		}
		err := d.db.Create(newDo[i:end]).Error
		if err != nil {
			return errors.Wrap(err, "插入样本出错")
		}
	}

	d.idLock.Lock()
	for _, do := range newDo {
		d.sampleIdMap[do.Name] = do.ID
	}
	d.idLock.Unlock()
	return nil
}

func (d *daoImpl) SaveSampleClusters(arr []*server.SampleCluster, runId string) error {
	for _, c := range arr {
		sampleId, err := d.querySampleId(c.Name)
		if err != nil {
			return errors.Wrap(err, fmt.Sprintf("查询样本%s的ID时出错", c.Name))
		}

		dest := &SampleClusterDO{}
		d.db.First(dest, &SampleClusterDO{
			SampleId: sampleId,
		})

		dest.SampleId = sampleId
		dest.ClusterId = c.ClusterId
		dest.Confidence = c.Confidence
		dest.Assignment = encodeVector(c.Assignment)
		dest.RunId = runId

		err = d.db.Save(dest).Error
		if err != nil {
			return errors.Wrap(err, fmt.Sprintf("保存SampleClusterDO出错，样本ID为%d，类别为%d", sampleId, c.ClusterId))
		}
	}
	return nil
}

func (d *daoImpl) SaveRefineRun(run *server.RefineRun) error {
	return d.db.Create(&RefineRunDO{
		RunId:      run.RunId,
		StartedAt:  run.StartedAt,
		FinishedAt: run.FinishedAt,
		NumSamples: run.NumSamples,
		Iterations: run.Iterations,
		Loss:       run.Loss,
		Delta:      run.Delta,
		Converged:  run.Converged,
	}).Error
}

func (d *daoImpl) QueryCentroids() (*mat.Dense, error) {
	doarr := []*CentroidDO{}
	err := d.db.Order("id asc").Find(&doarr).Error
	if err != nil {
		return nil, errors.Wrap(err, "查询聚类中心出错")
	}
	if len(doarr) == 0 {
		return nil, ErrNoCentroids
	}

	// 检查数据是否正常
	rows := make([][]float64, len(doarr))
	for i, do := range doarr {
		if do.ID != uint(i+1) {
			return nil, fmt.Errorf("第%d个聚类中心的ID为%d，中间可能出现缺漏", i, do.ID)
		}
		rows[i], err = decodeVector(do.Center)
		if err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("解析第%d个聚类中心出错", i))
		}
		if len(rows[i]) != len(rows[0]) {
			return nil, fmt.Errorf("第%d个聚类中心维度为%d，与第0个的%d不一致", i, len(rows[i]), len(rows[0]))
		}
	}
	if len(rows[0]) == 0 {
		return nil, fmt.Errorf("聚类中心维度为0")
	}

	result := mat.NewDense(len(rows), len(rows[0]), nil)
	for i, row := range rows {
		result.SetRow(i, row)
	}
	return result, nil
}

func (d *daoImpl) QueryAllSamples() ([]*server.SampleEmbedding, error) {
	doArray := []*SampleDo{}
	err := d.db.Order("id asc").Find(&doArray).Error
	if err != nil {
		return nil, errors.Wrap(err, "获取所有样本出错")
	}

	result := make([]*server.SampleEmbedding, len(doArray))
	for i, do := range doArray {
		embedding, err := decodeVector(do.Embedding)
		if err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("解析样本%s出错", do.Name))
		}
		result[i] = &server.SampleEmbedding{
			Name:      do.Name,
			Embedding: embedding,
		}
	}
	return result, nil
}

func (d *daoImpl) QuerySampleCluster(name string) (*server.SampleCluster, error) {
	sampleId, err := d.querySampleId(name)
	if err != nil {
		return nil, err
	}

	record := &SampleClusterDO{}
	err = d.db.First(record, &SampleClusterDO{
		SampleId: sampleId,
	}).Error
	if err == gorm.ErrRecordNotFound {
		return nil, server.ErrSampleNotClassified
	} else if err != nil {
		return nil, errors.Wrap(err, "查询SampleCluster时出错")
	}

	assignment, err := decodeVector(record.Assignment)
	if err != nil {
		return nil, errors.Wrap(err, fmt.Sprintf("解析样本%s的软分配出错", name))
	}
	return &server.SampleCluster{
		Name:       name,
		ClusterId:  record.ClusterId,
		Confidence: record.Confidence,
		Assignment: assignment,
	}, nil
}

func (d *daoImpl) QueryLatestRefineRun() (*server.RefineRun, error) {
	record := &RefineRunDO{}
	err := d.db.Order("started_at desc").First(record).Error
	if err == gorm.ErrRecordNotFound {
		return nil, ErrNoRefineRun
	} else if err != nil {
		return nil, errors.Wrap(err, "查询自训练记录时出错")
	}

	return &server.RefineRun{
		RunId:      record.RunId,
		StartedAt:  record.StartedAt,
		FinishedAt: record.FinishedAt,
		NumSamples: record.NumSamples,
		Iterations: record.Iterations,
		Loss:       record.Loss,
		Delta:      record.Delta,
		Converged:  record.Converged,
	}, nil
}

// 根据样本名称查询ID，先查缓存再查数据库
func (d *daoImpl) querySampleId(name string) (uint, error) {
	d.idLock.Lock()
	id, ok := d.sampleIdMap[name]
	d.idLock.Unlock()
	if ok {
		return id, nil
	}

	sample := &SampleDo{}
	err := d.db.Select("id").First(sample, &SampleDo{Name: name}).Error
	if err == gorm.ErrRecordNotFound {
		return 0, server.ErrSampleNotFound
	} else if err != nil {
		return 0, errors.Wrap(err, fmt.Sprintf("从数据库中查询样本%s出错", name))
	}

	d.idLock.Lock()
	d.sampleIdMap[name] = sample.ID
	d.idLock.Unlock()
	return sample.ID, nil
}
