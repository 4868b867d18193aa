package oss

import (
	"bytes"
	"fmt"
	"time"

	"github.com/aliyun/aliyun-oss-go-sdk/oss"

	"github.com/qs3c/mlm_go_server/config"
)

const (
	// DefaultSignedURLExpire 导出链接默认有效期（秒）
	DefaultSignedURLExpire int64 = 3600
	// MaxSignedURLExpire 导出链接最长有效期（秒）
	MaxSignedURLExpire int64 = 7 * 24 * 3600
)

// Client 会员收益导出文件存储
type Client struct {
	bucket *oss.Bucket
}

// Configured 判断 OSS 配置是否完整
func Configured(cfg *config.OSSConfig) bool {
	return cfg != nil && cfg.Endpoint != "" && cfg.AccessKeyID != "" && cfg.BucketName != ""
}

func NewClient(cfg *config.OSSConfig) (*Client, error) {
	client, err := oss.New(cfg.Endpoint, cfg.AccessKeyID, cfg.AccessKeySecret)
	if err != nil {
		return nil, fmt.Errorf("failed to create OSS client: %w", err)
	}

	bucket, err := client.Bucket(cfg.BucketName)
	if err != nil {
		return nil, fmt.Errorf("failed to open bucket %s: %w", cfg.BucketName, err)
	}

	return &Client{bucket: bucket}, nil
}

// ExportObjectKey 会员收益导出文件的 object key
func ExportObjectKey(userID int64, at time.Time) string {
	return fmt.Sprintf("exports/earnings/%d/%s.csv", userID, at.UTC().Format("20060102T150405Z"))
}

// ExportFilename 浏览器下载时的文件名
func ExportFilename(userID int64, at time.Time) string {
	return fmt.Sprintf("earnings-%d-%s.csv", userID, at.UTC().Format("2006-01-02"))
}

// clampExpire 未指定时取默认值，超过上限截断
func clampExpire(expireSeconds []int64) int64 {
	if len(expireSeconds) == 0 || expireSeconds[0] <= 0 {
		return DefaultSignedURLExpire
	}
	if expireSeconds[0] > MaxSignedURLExpire {
		return MaxSignedURLExpire
	}
	return expireSeconds[0]
}

// UploadExport 上传收益导出 CSV，返回 object key
func (c *Client) UploadExport(userID int64, data []byte) (string, error) {
	now := time.Now()
	objectKey := ExportObjectKey(userID, now)

	err := c.bucket.PutObject(objectKey, bytes.NewReader(data),
		oss.ContentType("text/csv; charset=utf-8"),
		oss.ContentDisposition(fmt.Sprintf("attachment; filename=%s", ExportFilename(userID, now))),
	)
	if err != nil {
		return "", fmt.Errorf("failed to upload export for member %d: %w", userID, err)
	}

	return objectKey, nil
}

// GetSignedURL 导出文件的临时下载链接
func (c *Client) GetSignedURL(objectKey string, expireSeconds ...int64) (string, error) {
	signedURL, err := c.bucket.SignURL(objectKey, oss.HTTPGet, clampExpire(expireSeconds))
	if err != nil {
		return "", fmt.Errorf("failed to sign %s: %w", objectKey, err)
	}
	return signedURL, nil
}
