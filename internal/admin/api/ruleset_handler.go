// Package api 实现管理面的 HTTP 处理器
package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/mongo"

	"vandaq/internal/admin/db"
	"vandaq/internal/admin/model"
	"vandaq/internal/alarm"
)

func errorResponse(c *gin.Context, code int, message string) {
	c.JSON(code, gin.H{"error": message})
}

// toAlarmRules 把文档形态的规则转成采集侧规则，供入库前编译校验
func toAlarmRules(rules []model.AlarmRule) []alarm.Rule {
	out := make([]alarm.Rule, 0, len(rules))
	for _, r := range rules {
		out = append(out, alarm.Rule{
			Parameter:    r.Parameter,
			Condition:    alarm.Condition(r.Condition),
			Bound:        r.Bound,
			RangeStart:   r.RangeStart,
			RangeEnd:     r.RangeEnd,
			Expect:       r.Expect,
			Expr:         r.Expr,
			Level:        r.AlarmLevel,
			Type:         r.AlarmType,
			Message:      r.AlarmMessage,
			DataImpacted: r.DataImpacted,
		})
	}
	return out
}

// GetRuleSets 获取规则集列表
func GetRuleSets(c *gin.Context) {
	sets, err := db.GetAllRuleSets()
	if err != nil {
		errorResponse(c, http.StatusInternalServerError, "获取规则集列表失败: "+err.Error())
		return
	}
	c.JSON(http.StatusOK, sets)
}

// GetRuleSetByName 按名获取单个规则集，采集进程启动时调用
func GetRuleSetByName(c *gin.Context) {
	set, err := db.GetRuleSetByName(c.Param("name"))
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			errorResponse(c, http.StatusNotFound, "规则集未找到")
		} else {
			errorResponse(c, http.StatusInternalServerError, "获取规则集失败: "+err.Error())
		}
		return
	}
	c.JSON(http.StatusOK, set)
}

// CreateRuleSet 新建规则集，入库前整体编译校验
func CreateRuleSet(c *gin.Context) {
	var set model.RuleSet
	if err := c.ShouldBindJSON(&set); err != nil {
		errorResponse(c, http.StatusBadRequest, "无效的请求数据: "+err.Error())
		return
	}
	set.Name = strings.TrimSpace(set.Name)
	if set.Name == "" {
		errorResponse(c, http.StatusBadRequest, "规则集名称不能为空")
		return
	}
	if _, err := alarm.CompileRules(toAlarmRules(set.Rules)); err != nil {
		errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}
	created, err := db.CreateRuleSet(&set)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			errorResponse(c, http.StatusConflict, "规则集名称已存在")
		} else {
			errorResponse(c, http.StatusInternalServerError, "创建规则集失败: "+err.Error())
		}
		return
	}
	c.JSON(http.StatusCreated, created)
}

// UpdateRuleSet 按名整体替换规则集
func UpdateRuleSet(c *gin.Context) {
	var set model.RuleSet
	if err := c.ShouldBindJSON(&set); err != nil {
		errorResponse(c, http.StatusBadRequest, "无效的请求数据: "+err.Error())
		return
	}
	if _, err := alarm.CompileRules(toAlarmRules(set.Rules)); err != nil {
		errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}
	updated, err := db.UpdateRuleSet(c.Param("name"), &set)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			errorResponse(c, http.StatusNotFound, "规则集未找到")
		} else {
			errorResponse(c, http.StatusInternalServerError, "更新规则集失败: "+err.Error())
		}
		return
	}
	c.JSON(http.StatusOK, updated)
}

// DeleteRuleSet 按名删除规则集
func DeleteRuleSet(c *gin.Context) {
	if err := db.DeleteRuleSet(c.Param("name")); err != nil {
		errorResponse(c, http.StatusNotFound, err.Error())
		return
	}
	c.Status(http.StatusNoContent)
}
