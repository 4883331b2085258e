// Package collector 实现收集进程：从队列或提交文件取出记录组，
// 经维度缓存解析出星型模式的外键，再按时间桶分子批事务化写入数据仓库。
package collector

import (
	"time"

	"gorm.io/gorm"
)

// DimPlatform 平台维度表
type DimPlatform struct {
	ID       int32  `gorm:"primaryKey"`
	Platform string `gorm:"uniqueIndex;not null"`
}

// TableName 指定表名
func (DimPlatform) TableName() string { return "platform" }

// DimInstrument 仪器维度表
type DimInstrument struct {
	ID         int32  `gorm:"primaryKey"`
	Instrument string `gorm:"uniqueIndex;not null"`
}

// TableName 指定表名
func (DimInstrument) TableName() string { return "instrument" }

// DimParameter 参数维度表
type DimParameter struct {
	ID        int32  `gorm:"primaryKey"`
	Parameter string `gorm:"uniqueIndex;not null"`
}

// TableName 指定表名
func (DimParameter) TableName() string { return "parameter" }

// DimUnit 单位维度表
type DimUnit struct {
	ID   int32  `gorm:"primaryKey"`
	Unit string `gorm:"uniqueIndex;not null"`
}

// TableName 指定表名
func (DimUnit) TableName() string { return "unit" }

// DimAcquisitionType 采集方式维度表
type DimAcquisitionType struct {
	ID              int32  `gorm:"primaryKey"`
	AcquisitionType string `gorm:"uniqueIndex;not null"`
}

// TableName 指定表名
func (DimAcquisitionType) TableName() string { return "acquisition_type" }

// DimAlarmType 报警类型维度表
type DimAlarmType struct {
	ID        int32  `gorm:"primaryKey"`
	AlarmType string `gorm:"uniqueIndex;not null"`
}

// TableName 指定表名
func (DimAlarmType) TableName() string { return "alarm_type" }

// DimAlarmLevel 报警级别维度表
type DimAlarmLevel struct {
	ID         int32  `gorm:"primaryKey"`
	AlarmLevel string `gorm:"uniqueIndex;not null"`
}

// TableName 指定表名
func (DimAlarmLevel) TableName() string { return "alarm_level" }

// DimTime 时间维度表，秒精度，每个被引用的秒恰有一行
type DimTime struct {
	ID   int64     `gorm:"primaryKey"`
	Time time.Time `gorm:"uniqueIndex;not null"`
}

// TableName 指定表名
func (DimTime) TableName() string { return "time" }

// DimGeolocation 地理位置表，复合主键
// 纬度与经度可能来自同一键下的两条独立记录，允许单边暂缺
type DimGeolocation struct {
	SampleTimeID int64    `gorm:"primaryKey;autoIncrement:false;column:sample_time_id"`
	PlatformID   int32    `gorm:"primaryKey;autoIncrement:false;column:platform_id"`
	InstrumentID int32    `gorm:"primaryKey;autoIncrement:false;column:instrument_id"`
	Latitude     *float64 `gorm:"column:latitude"`
	Longitude    *float64 `gorm:"column:longitude"`
}

// TableName 指定表名
func (DimGeolocation) TableName() string { return "geolocation" }

// InstrumentMeasurement 仪器测量向量表：登记某平台某仪器产出的
// (参数, 单位, 采集方式) 组合，供查询侧枚举可用序列
type InstrumentMeasurement struct {
	ID                int32 `gorm:"primaryKey"`
	PlatformID        int32 `gorm:"not null;uniqueIndex:uq_instrument_measurements"`
	InstrumentID      int32 `gorm:"not null;uniqueIndex:uq_instrument_measurements"`
	ParameterID       int32 `gorm:"not null;uniqueIndex:uq_instrument_measurements"`
	UnitID            int32 `gorm:"not null;uniqueIndex:uq_instrument_measurements"`
	AcquisitionTypeID int32 `gorm:"not null;uniqueIndex:uq_instrument_measurements"`
}

// TableName 指定表名
func (InstrumentMeasurement) TableName() string { return "instrument_measurements" }

// FactMeasurement 测量事实表
type FactMeasurement struct {
	ID                int64      `gorm:"primaryKey"`
	AcquisitionTimeID int64      `gorm:"not null;column:acquisition_time_id"`
	InstrumentTimeID  *int64     `gorm:"column:instrument_time_id"`
	SampleTimeID      int64      `gorm:"not null;column:sample_time_id"`
	SampleTime        *time.Time `gorm:"column:sample_time"`
	PlatformID        int32      `gorm:"not null;column:platform_id"`
	InstrumentID      int32      `gorm:"not null;column:instrument_id"`
	ParameterID       int32      `gorm:"not null;column:parameter_id"`
	UnitID            int32      `gorm:"not null;column:unit_id"`
	AcquisitionTypeID int32      `gorm:"not null;column:acquisition_type_id"`
	Value             *float64   `gorm:"column:value"`
	String            *string    `gorm:"column:string;size:100"`
}

// TableName 指定表名
func (FactMeasurement) TableName() string { return "measurement" }

// FactAlarm 报警事实表
// measurement_id 与 parameter_id 可空：纯报警记录没有对应的测量行
type FactAlarm struct {
	ID            int64  `gorm:"primaryKey"`
	MeasurementID *int64 `gorm:"column:measurement_id"`
	PlatformID    int32  `gorm:"not null;column:platform_id"`
	InstrumentID  int32  `gorm:"not null;column:instrument_id"`
	ParameterID   *int32 `gorm:"column:parameter_id"`
	SampleTimeID  int64  `gorm:"not null;column:sample_time_id"`
	AlarmTypeID   int32  `gorm:"not null;column:alarm_type_id"`
	AlarmLevelID  int32  `gorm:"not null;column:alarm_level_id"`
	DataImpacted  bool   `gorm:"not null;column:data_impacted"`
	Message       string `gorm:"not null;column:message"`
}

// TableName 指定表名
func (FactAlarm) TableName() string { return "alarm" }

// Migrate 建表。幂等，已存在的表不动
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&DimPlatform{},
		&DimInstrument{},
		&DimParameter{},
		&DimUnit{},
		&DimAcquisitionType{},
		&DimAlarmType{},
		&DimAlarmLevel{},
		&DimTime{},
		&DimGeolocation{},
		&InstrumentMeasurement{},
		&FactMeasurement{},
		&FactAlarm{},
	)
}
