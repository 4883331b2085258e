package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/mongo"

	"vandaq/internal/admin/db"
	"vandaq/internal/admin/model"
	"vandaq/internal/parser"
	"vandaq/internal/pkg"
)

// toStreamConfig 把文档形态的行结构转成采集侧配置，供入库前编译校验
func toStreamConfig(s model.StreamSchema) pkg.StreamConfig {
	return pkg.StreamConfig{
		Items:     s.Items,
		Formats:   s.Formats,
		Units:     s.Units,
		AcqTypes:  s.AcqTypes,
		Delimiter: s.Delimiter,
	}
}

// GetSchemas 获取行结构列表
func GetSchemas(c *gin.Context) {
	schemas, err := db.GetAllSchemas()
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, "获取行结构列表失败: "+err.Error())
		return
	}
	c.JSON(http.StatusOK, schemas)
}

// GetSchemaByName 按名获取单个行结构
func GetSchemaByName(c *gin.Context) {
	schema, err := db.GetSchemaByName(c.Param("name"))
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			errorResponse(c, http.StatusNotFound, "行结构未找到")
		} else {
			errorResponse(c, http.StatusInternalServerError, "获取行结构失败: "+err.Error())
		}
		return
	}
	c.JSON(http.StatusOK, schema)
}

// CreateSchema 新建行结构，入库前编译校验
func CreateSchema(c *gin.Context) {
	var schema model.StreamSchema
	if err := c.ShouldBindJSON(&schema); err != nil {
		errorResponse(c, http.StatusBadRequest, "无效的请求数据: "+err.Error())
		return
	}
	schema.Name = strings.TrimSpace(schema.Name)
	if schema.Name == "" {
		errorResponse(c, http.StatusBadRequest, "行结构名称不能为空")
		return
	}
	if _, err := parser.CompileSchema(toStreamConfig(schema)); err != nil {
		errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}
	created, err := db.CreateSchema(&schema)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			errorResponse(c, http.StatusConflict, "行结构名称已存在")
		} else {
			errorResponse(c, http.StatusInternalServerError, "创建行结构失败: "+err.Error())
		}
		return
	}
	c.JSON(http.StatusCreated, created)
}

// UpdateSchema 按名整体替换行结构
func UpdateSchema(c *gin.Context) {
	var schema model.StreamSchema
	if err := c.ShouldBindJSON(&schema); err != nil {
		errorResponse(c, http.StatusBadRequest, "无效的请求数据: "+err.Error())
		return
	}
	if _, err := parser.CompileSchema(toStreamConfig(schema)); err != nil {
		errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}
	updated, err := db.UpdateSchema(c.Param("name"), &schema)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			errorResponse(c, http.StatusNotFound, "行结构未找到")
		} else {
			errorResponse(c, http.StatusInternalServerError, "更新行结构失败: "+err.Error())
		}
		return
	}
	c.JSON(http.StatusOK, updated)
}

// DeleteSchema 按名删除行结构
func DeleteSchema(c *gin.Context) {
	if err := db.DeleteSchema(c.Param("name")); err != nil {
		errorResponse(c, http.StatusNotFound, err.Error())
		return
	}
	c.Status(http.StatusNoContent)
}
