package dataset

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/pkg/errors"
)

// Source 图像文件的来源
type Source interface {
	// List 返回所有图像的名称，按字典序排列
	List(ctx context.Context) ([]string, error)
	Open(ctx context.Context, name string) (io.ReadCloser, error)
}

// DirSource 本地目录中的图像，不递归子目录
type DirSource struct {
	Dir string
}

func (d DirSource) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(d.Dir)
	if err != nil {
		return nil, errors.Wrap(err, fmt.Sprintf("读取目录%s出错", d.Dir))
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.Type().IsRegular() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	return names, nil
}

func (d DirSource) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	f, err := os.Open(filepath.Join(d.Dir, name))
	if err != nil {
		return nil, errors.Wrap(err, fmt.Sprintf("打开文件%s出错", name))
	}
	return f, nil
}

// MinioSource 对象存储中某个前缀下的图像，兼容S3协议
type MinioSource struct {
	Client *minio.Client
	Bucket string
	Prefix string
}

func (m MinioSource) List(ctx context.Context) ([]string, error) {
	names := make([]string, 0)
	for object := range m.Client.ListObjects(ctx, m.Bucket, minio.ListObjectsOptions{Prefix: m.Prefix}) {
		if object.Err != nil {
			return nil, errors.Wrap(object.Err, fmt.Sprintf("列出%s/%s下的对象出错", m.Bucket, m.Prefix))
		}
		name := strings.TrimPrefix(object.Key, m.Prefix)
		if name == "" || strings.HasSuffix(name, "/") {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (m MinioSource) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	object, err := m.Client.GetObject(ctx, m.Bucket, m.Prefix+name, minio.GetObjectOptions{})
	if err != nil {
		return nil, errors.Wrap(err, fmt.Sprintf("获取对象%s出错", name))
	}
	return object, nil
}
