package middleware

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/qs3c/mlm_go_server/config"
)

var (
	defaultAllowedMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	defaultAllowedHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Payment-Signature"}
)

// CORS 跨域中间件，未配置来源或配置为 * 时允许所有来源
func CORS(cfg config.CORSConfig) gin.HandlerFunc {
	corsConfig := cors.Config{
		AllowMethods: cfg.AllowedMethods,
		AllowHeaders: cfg.AllowedHeaders,
		MaxAge:       24 * time.Hour,
	}
	if len(corsConfig.AllowMethods) == 0 {
		corsConfig.AllowMethods = defaultAllowedMethods
	}
	if len(corsConfig.AllowHeaders) == 0 {
		corsConfig.AllowHeaders = defaultAllowedHeaders
	}

	if len(cfg.AllowedOrigins) == 0 || (len(cfg.AllowedOrigins) == 1 && cfg.AllowedOrigins[0] == "*") {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
		corsConfig.AllowCredentials = true
	}
	return cors.New(corsConfig)
}
