// Package model 定义管理面持久化到 MongoDB 的文档结构
// 注意：json 标签面向 API，bson 标签面向 MongoDB
package model

import (
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// AlarmRule 一条报警规则的文档形态，字段与采集侧规则文件一一对应
type AlarmRule struct {
	Parameter    string  `bson:"parameter" json:"parameter"`
	Condition    string  `bson:"condition" json:"condition"`
	Bound        float64 `bson:"bound,omitempty" json:"bound,omitempty"`
	RangeStart   int     `bson:"range_start,omitempty" json:"range_start,omitempty"`
	RangeEnd     int     `bson:"range_end,omitempty" json:"range_end,omitempty"`
	Expect       string  `bson:"expect,omitempty" json:"expect,omitempty"`
	Expr         string  `bson:"expr,omitempty" json:"expr,omitempty"`
	AlarmLevel   string  `bson:"alarm_level" json:"alarm_level"`
	AlarmType    string  `bson:"alarm_type" json:"alarm_type"`
	AlarmMessage string  `bson:"alarm_message" json:"alarm_message"`
	DataImpacted *bool   `bson:"data_impacted,omitempty" json:"data_impacted,omitempty"`
}

// RuleSet 命名的报警规则集，采集进程启动时可按名拉取
type RuleSet struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	Name        string             `bson:"name" json:"name"`
	Description string             `bson:"description,omitempty" json:"description,omitempty"`
	Rules       []AlarmRule        `bson:"rules" json:"rules"`
	CreatedAt   primitive.DateTime `bson:"createdAt" json:"createdAt"`
	UpdatedAt   primitive.DateTime `bson:"updatedAt" json:"updatedAt"`
}

// StreamSchema 命名的仪器行结构，与采集配置里的 stream 段同构
type StreamSchema struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	Name        string             `bson:"name" json:"name"`
	Description string             `bson:"description,omitempty" json:"description,omitempty"`
	Items       string             `bson:"items" json:"items"`
	Formats     string             `bson:"formats" json:"formats"`
	Units       string             `bson:"units" json:"units"`
	AcqTypes    string             `bson:"acqTypes" json:"acqTypes"`
	Delimiter   string             `bson:"item_delimiter" json:"item_delimiter"`
	CreatedAt   primitive.DateTime `bson:"createdAt" json:"createdAt"`
	UpdatedAt   primitive.DateTime `bson:"updatedAt" json:"updatedAt"`
}
