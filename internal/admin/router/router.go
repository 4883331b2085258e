// Package router 组装管理面的 Gin 路由
package router

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"vandaq/internal/admin/api"
)

// SetupRouter 配置 Gin 路由
func SetupRouter() *gin.Engine {
	r := gin.Default()

	// 配置 CORS
	config := cors.DefaultConfig()
	config.AllowOrigins = []string{"*"} // 允许所有来源，生产环境应配置具体来源
	config.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	config.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization"}
	r.Use(cors.New(config))

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})

	// API v1 分组
	apiV1 := r.Group("/api/v1")
	{
		rulesets := apiV1.Group("/rulesets")
		{
			rulesets.GET("", api.GetRuleSets)            // GET /api/v1/rulesets
			rulesets.POST("", api.CreateRuleSet)         // POST /api/v1/rulesets
			rulesets.GET("/:name", api.GetRuleSetByName) // GET /api/v1/rulesets/:name
			rulesets.PUT("/:name", api.UpdateRuleSet)    // PUT /api/v1/rulesets/:name
			rulesets.DELETE("/:name", api.DeleteRuleSet) // DELETE /api/v1/rulesets/:name
		}

		schemas := apiV1.Group("/schemas")
		{
			schemas.GET("", api.GetSchemas)            // GET /api/v1/schemas
			schemas.POST("", api.CreateSchema)         // POST /api/v1/schemas
			schemas.GET("/:name", api.GetSchemaByName) // GET /api/v1/schemas/:name
			schemas.PUT("/:name", api.UpdateSchema)    // PUT /api/v1/schemas/:name
			schemas.DELETE("/:name", api.DeleteSchema) // DELETE /api/v1/schemas/:name
		}
	}

	return r
}
