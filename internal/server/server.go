package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/packagewjx/deepcluster/internal/dec"
	pkgserver "github.com/packagewjx/deepcluster/pkg/server"
	"github.com/pkg/errors"
)

const (
	DefaultPort         = 2000
	DefaultNumClusters  = 10
	DefaultEmbeddingDim = 10
	DefaultRefineTime   = 1 * time.Hour
)

const shutdownTimeout = 10 * time.Second

type ServerConfig struct {
	Port                 uint16        // 本服务器监听端口
	NumClusters          uint          // 聚类数量
	EmbeddingDim         uint          // 嵌入向量维度
	Alpha                float64       // Student's t分布的自由度
	Seed                 int64         // 随机初始化聚类中心以及打乱小批次使用的种子
	RefineTime           time.Duration // 每天执行自训练的时间
	MaxIter              uint
	UpdateInterval       uint
	Tol                  float64
	LearningRate         float64
	InitialCenterCsvFile string // 初始聚类中心文件，每行一个中心。若不是空，则会替换数据库中的中心。若为空，则使用数据库数据，数据库也没有时随机初始化。
	MysqlHost            string
}

func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Port:           DefaultPort,
		NumClusters:    DefaultNumClusters,
		EmbeddingDim:   DefaultEmbeddingDim,
		Alpha:          dec.DefaultAlpha,
		RefineTime:     DefaultRefineTime,
		MaxIter:        dec.DefaultMaxIter,
		UpdateInterval: dec.DefaultUpdateInterval,
		Tol:            dec.DefaultTol,
		LearningRate:   dec.DefaultLearningRate,
	}
}

func (s ServerConfig) String() string {
	marshal, _ := json.Marshal(s)
	return string(marshal)
}

func (config *ServerConfig) Complete() error {
	if config.Port < 1024 {
		return fmt.Errorf("端口号应该在1024到65535之间，现在为%d", config.Port)
	}

	if config.NumClusters == 0 {
		return fmt.Errorf("聚类数量不能为0")
	}
	if config.EmbeddingDim == 0 {
		return fmt.Errorf("嵌入向量维度不能为0")
	}
	if !(config.Alpha > 0) || math.IsInf(config.Alpha, 0) {
		return fmt.Errorf("alpha必须为正数，现在为%v", config.Alpha)
	}

	// 限制自训练时间在24小时内，为一天内的时间
	config.RefineTime %= 24 * time.Hour
	if config.RefineTime < 0 {
		config.RefineTime += 24 * time.Hour
	}

	if err := config.trainerConfig().Complete(); err != nil {
		return err
	}

	if config.MysqlHost == "" {
		config.MysqlHost = fmt.Sprintf("%s:%s",
			os.Getenv("MYSQL_SERVICE_HOST"), os.Getenv("MYSQL_SERVICE_PORT"))
	}

	return nil
}

func (config *ServerConfig) trainerConfig() *dec.TrainerConfig {
	return &dec.TrainerConfig{
		MaxIter:        int(config.MaxIter),
		UpdateInterval: int(config.UpdateInterval),
		Tol:            config.Tol,
		LearningRate:   config.LearningRate,
		BatchSize:      dec.DefaultBatchSize,
		Seed:           config.Seed,
	}
}

type Server interface {
	pkgserver.API
	Start() error
}

func NewServer(config *ServerConfig) (Server, error) {
	if err := config.Complete(); err != nil {
		return nil, err
	}

	dao, err := NewDao(config.MysqlHost)
	if err != nil {
		return nil, err
	}

	return newServer(config, dao), nil
}

func newServer(config *ServerConfig, dao Dao) *serverImpl {
	return &serverImpl{
		config:        config,
		dao:           dao,
		logger:        log.New(os.Stdout, "deepcluster server: ", log.LstdFlags|log.Lshortfile|log.Lmsgprefix),
		executeRefine: make(chan struct{}, 1),
	}
}

type serverImpl struct {
	config        *ServerConfig
	dao           Dao
	logger        *log.Logger
	executeRefine chan struct{}

	// model的聚类中心只在自训练结束后整体替换
	lock  sync.RWMutex
	model *dec.DEC

	// 自训练读取样本之后通过Assign保存的样本，替换模型后需要重新分配
	assignedLock         sync.Mutex
	assignedDuringRefine map[string]struct{}
}

func (s *serverImpl) Start() error {
	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s.logger.Printf("服务器启动。配置：%v\n", s.config)

	if err := s.initCentroids(); err != nil {
		return errors.Wrap(err, "初始化聚类中心失败")
	}

	go s.refiner(rootCtx)

	server := s.buildServer()
	errCh := make(chan error, 1)
	go s.serve(server, errCh)

	// 注册信号接收器
	termSigChan := make(chan os.Signal, 1)
	signal.Notify(termSigChan, syscall.SIGTERM, syscall.SIGINT)

	select {
	case <-termSigChan:
		shutdownCtx, shutdownCancel := context.WithTimeout(rootCtx, shutdownTimeout)
		defer shutdownCancel()
		err := server.Shutdown(shutdownCtx)
		if err != nil {
			return errors.Wrap(err, "关闭HTTP服务器失败")
		}
	case err := <-errCh:
		return errors.Wrap(err, "HTTP服务器异常退出")
	}

	// 等待HTTP服务器结束
	err := <-errCh
	if err != nil {
		return errors.Wrap(err, "HTTP关闭出现错误")
	}

	return nil
}

func (s *serverImpl) buildServer() *http.Server {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /assign", func(writer http.ResponseWriter, request *http.Request) {
		req := &pkgserver.AssignRequest{}
		if err := json.NewDecoder(request.Body).Decode(req); err != nil {
			http.Error(writer, fmt.Sprintf("请求格式错误：%v", err), http.StatusBadRequest)
			return
		}

		resp, err := s.Assign(req.Samples)
		if errors.Is(err, pkgserver.ErrInvalidSample) {
			http.Error(writer, err.Error(), http.StatusBadRequest)
			return
		} else if err != nil {
			http.Error(writer, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJson(writer, resp)
	})

	mux.HandleFunc("GET /centroids", func(writer http.ResponseWriter, request *http.Request) {
		centroids, err := s.QueryCentroids()
		if err != nil {
			http.Error(writer, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJson(writer, centroids)
	})

	mux.HandleFunc("GET /samples/{name}/cluster", func(writer http.ResponseWriter, request *http.Request) {
		cluster, err := s.QuerySampleCluster(request.PathValue("name"))
		if err == pkgserver.ErrSampleNotFound {
			http.NotFound(writer, request)
			return
		} else if err == pkgserver.ErrSampleNotClassified {
			http.Error(writer, err.Error(), http.StatusConflict)
			return
		} else if err != nil {
			http.Error(writer, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJson(writer, cluster)
	})

	mux.HandleFunc("POST /refine", func(writer http.ResponseWriter, request *http.Request) {
		_ = s.Refine()
		writer.WriteHeader(http.StatusAccepted)
		_, _ = writer.Write([]byte("OK"))
	})

	mux.HandleFunc("GET /refine", func(writer http.ResponseWriter, request *http.Request) {
		run, err := s.dao.QueryLatestRefineRun()
		if err == ErrNoRefineRun {
			http.NotFound(writer, request)
			return
		} else if err != nil {
			http.Error(writer, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJson(writer, run)
	})

	mux.HandleFunc("/healthz", func(writer http.ResponseWriter, request *http.Request) {
		_, _ = writer.Write([]byte("OK"))
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", s.config.Port),
		Handler: mux,
	}
	return srv
}

func writeJson(writer http.ResponseWriter, v interface{}) {
	marshal, err := json.Marshal(v)
	if err != nil {
		http.Error(writer, err.Error(), http.StatusInternalServerError)
		return
	}

	writer.Header().Set("Content-Type", "application/json")
	_, _ = writer.Write(marshal)
}

func (s *serverImpl) serve(server *http.Server, errCh chan<- error) {
	s.logger.Printf("API服务器启动")

	err := server.ListenAndServe()
	if err == http.ErrServerClosed {
		err = nil
	}

	s.logger.Printf("API服务器结束")
	errCh <- err
}
