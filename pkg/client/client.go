package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"net/http"
	"net/url"
	"time"

	"github.com/packagewjx/deepcluster/pkg/server"
	"github.com/pkg/errors"
)

const DefaultApiHostBaseUrl = "http://deepcluster.deepcluster"

const defaultTimeout = 30 * time.Second

func NewApiClient(baseUrl string) server.API {
	if baseUrl == "" {
		baseUrl = DefaultApiHostBaseUrl
	}
	return &apiClient{
		baseUrl: baseUrl,
		client:  &http.Client{Timeout: defaultTimeout},
	}
}

var _ server.API = &apiClient{}

type apiClient struct {
	baseUrl string
	client  *http.Client
}

func (a *apiClient) Assign(samples []*server.SampleEmbedding) (*server.AssignResponse, error) {
	body, err := json.Marshal(&server.AssignRequest{Samples: samples})
	if err != nil {
		return nil, errors.Wrap(err, "序列化请求出错")
	}
	response, err := a.client.Post(a.baseUrl+"/assign", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "请求时出现异常")
	}

	dest := &server.AssignResponse{}
	if err = decodeResponse(response, dest); err != nil {
		return nil, err
	}
	return dest, nil
}

func (a *apiClient) QueryCentroids() (*server.Centroids, error) {
	response, err := a.client.Get(a.baseUrl + "/centroids")
	if err != nil {
		return nil, errors.Wrap(err, "请求时出现异常")
	}

	dest := &server.Centroids{}
	if err = decodeResponse(response, dest); err != nil {
		return nil, err
	}
	return dest, nil
}

func (a *apiClient) QuerySampleCluster(name string) (*server.SampleCluster, error) {
	response, err := a.client.Get(fmt.Sprintf("%s/samples/%s/cluster", a.baseUrl, url.PathEscape(name)))
	if err != nil {
		return nil, errors.Wrap(err, "请求时出现异常")
	}

	switch response.StatusCode {
	case http.StatusNotFound:
		_ = response.Body.Close()
		return nil, server.ErrSampleNotFound
	case http.StatusConflict:
		_ = response.Body.Close()
		return nil, server.ErrSampleNotClassified
	}

	dest := &server.SampleCluster{}
	if err = decodeResponse(response, dest); err != nil {
		return nil, err
	}
	return dest, nil
}

func (a *apiClient) Refine() error {
	response, err := a.client.Post(a.baseUrl+"/refine", "text/plain", nil)
	if err != nil {
		return errors.Wrap(err, "请求时出现异常")
	}
	defer func() {
		_ = response.Body.Close()
	}()
	if response.StatusCode != http.StatusAccepted && response.StatusCode != http.StatusOK {
		return fmt.Errorf("触发自训练失败，状态码为%d", response.StatusCode)
	}
	return nil
}

func decodeResponse(response *http.Response, dest interface{}) error {
	defer func() {
		_ = response.Body.Close()
	}()

	body, err := ioutil.ReadAll(response.Body)
	if err != nil {
		return errors.Wrap(err, "读取时出现异常")
	}
	if response.StatusCode != http.StatusOK {
		return fmt.Errorf("请求失败，状态码为%d，内容为%s", response.StatusCode, string(body))
	}

	err = json.Unmarshal(body, dest)
	if err != nil {
		return errors.Wrap(err, fmt.Sprintf("解析json异常，json为\n%s", string(body)))
	}
	return nil
}
