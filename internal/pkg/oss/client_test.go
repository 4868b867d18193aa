package oss

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/qs3c/mlm_go_server/config"
)

func TestConfigured(t *testing.T) {
	tests := []struct {
		name string
		cfg  *config.OSSConfig
		want bool
	}{
		{"nil", nil, false},
		{"empty", &config.OSSConfig{}, false},
		{"missing bucket", &config.OSSConfig{Endpoint: "oss-cn-hangzhou.aliyuncs.com", AccessKeyID: "ak"}, false},
		{"complete", &config.OSSConfig{Endpoint: "oss-cn-hangzhou.aliyuncs.com", AccessKeyID: "ak", BucketName: "b"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Configured(tt.cfg))
		})
	}
}

func TestExportObjectKey(t *testing.T) {
	at := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	assert.Equal(t, "exports/earnings/42/20260304T050607Z.csv", ExportObjectKey(42, at))
}

func TestExportFilename(t *testing.T) {
	at := time.Date(2026, 3, 4, 23, 59, 0, 0, time.UTC)
	assert.Equal(t, "earnings-42-2026-03-04.csv", ExportFilename(42, at))
}

func TestClampExpire(t *testing.T) {
	assert.Equal(t, DefaultSignedURLExpire, clampExpire(nil))
	assert.Equal(t, DefaultSignedURLExpire, clampExpire([]int64{0}))
	assert.Equal(t, int64(600), clampExpire([]int64{600}))
	assert.Equal(t, MaxSignedURLExpire, clampExpire([]int64{MaxSignedURLExpire + 1}))
}
