package collector

import (
	"fmt"

	"gorm.io/gorm"

	"vandaq/internal/pkg"
)

// catalogKey 仪器测量向量表的去重键
type catalogKey struct {
	platformID        int32
	instrumentID      int32
	parameterID       int32
	unitID            int32
	acquisitionTypeID int32
}

// DimCache 维度缓存：进程内 map 前置在维度表查询之前
// 维度表只增不改，缓存到的 id 永久有效，不需要失效逻辑
// 仅由收集进程的单一消费协程读写，不加锁
type DimCache struct {
	db      *gorm.DB
	metrics *pkg.Metrics

	platforms   map[string]int32
	instruments map[string]int32
	parameters  map[string]int32
	units       map[string]int32
	acqTypes    map[string]int32
	alarmTypes  map[string]int32
	alarmLevels map[string]int32
	catalog     map[catalogKey]struct{}
}

// NewDimCache 构造维度缓存并把已有的维度行整表预载进来
func NewDimCache(db *gorm.DB, metrics *pkg.Metrics) (*DimCache, error) {
	c := &DimCache{
		db:          db,
		metrics:     metrics,
		platforms:   make(map[string]int32),
		instruments: make(map[string]int32),
		parameters:  make(map[string]int32),
		units:       make(map[string]int32),
		acqTypes:    make(map[string]int32),
		alarmTypes:  make(map[string]int32),
		alarmLevels: make(map[string]int32),
		catalog:     make(map[catalogKey]struct{}),
	}
	if err := c.preload(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *DimCache) preload() error {
	var platforms []DimPlatform
	if err := c.db.Find(&platforms).Error; err != nil {
		return fmt.Errorf("预载 platform 维度失败: %w", err)
	}
	for _, r := range platforms {
		c.platforms[r.Platform] = r.ID
	}

	var instruments []DimInstrument
	if err := c.db.Find(&instruments).Error; err != nil {
		return fmt.Errorf("预载 instrument 维度失败: %w", err)
	}
	for _, r := range instruments {
		c.instruments[r.Instrument] = r.ID
	}

	var parameters []DimParameter
	if err := c.db.Find(&parameters).Error; err != nil {
		return fmt.Errorf("预载 parameter 维度失败: %w", err)
	}
	for _, r := range parameters {
		c.parameters[r.Parameter] = r.ID
	}

	var units []DimUnit
	if err := c.db.Find(&units).Error; err != nil {
		return fmt.Errorf("预载 unit 维度失败: %w", err)
	}
	for _, r := range units {
		c.units[r.Unit] = r.ID
	}

	var acqTypes []DimAcquisitionType
	if err := c.db.Find(&acqTypes).Error; err != nil {
		return fmt.Errorf("预载 acquisition_type 维度失败: %w", err)
	}
	for _, r := range acqTypes {
		c.acqTypes[r.AcquisitionType] = r.ID
	}

	var alarmTypes []DimAlarmType
	if err := c.db.Find(&alarmTypes).Error; err != nil {
		return fmt.Errorf("预载 alarm_type 维度失败: %w", err)
	}
	for _, r := range alarmTypes {
		c.alarmTypes[r.AlarmType] = r.ID
	}

	var alarmLevels []DimAlarmLevel
	if err := c.db.Find(&alarmLevels).Error; err != nil {
		return fmt.Errorf("预载 alarm_level 维度失败: %w", err)
	}
	for _, r := range alarmLevels {
		c.alarmLevels[r.AlarmLevel] = r.ID
	}

	var catalog []InstrumentMeasurement
	if err := c.db.Find(&catalog).Error; err != nil {
		return fmt.Errorf("预载 instrument_measurements 失败: %w", err)
	}
	for _, r := range catalog {
		c.catalog[catalogKey{r.PlatformID, r.InstrumentID, r.ParameterID, r.UnitID, r.AcquisitionTypeID}] = struct{}{}
	}
	return nil
}

// miss 记一次缓存未命中
func (c *DimCache) miss(dimension string) {
	if c.metrics != nil {
		c.metrics.DimCacheMisses.WithLabelValues(dimension).Inc()
	}
}

// Platform 返回平台维度 id，不存在则建行
func (c *DimCache) Platform(name string) (int32, error) {
	if id, ok := c.platforms[name]; ok {
		return id, nil
	}
	c.miss("platform")
	rec := DimPlatform{Platform: name}
	if err := c.db.Where(&DimPlatform{Platform: name}).FirstOrCreate(&rec).Error; err != nil {
		return 0, fmt.Errorf("解析 platform 维度 %q 失败: %w", name, err)
	}
	c.platforms[name] = rec.ID
	return rec.ID, nil
}

// Instrument 返回仪器维度 id，不存在则建行
func (c *DimCache) Instrument(name string) (int32, error) {
	if id, ok := c.instruments[name]; ok {
		return id, nil
	}
	c.miss("instrument")
	rec := DimInstrument{Instrument: name}
	if err := c.db.Where(&DimInstrument{Instrument: name}).FirstOrCreate(&rec).Error; err != nil {
		return 0, fmt.Errorf("解析 instrument 维度 %q 失败: %w", name, err)
	}
	c.instruments[name] = rec.ID
	return rec.ID, nil
}

// Parameter 返回参数维度 id，不存在则建行
func (c *DimCache) Parameter(name string) (int32, error) {
	if id, ok := c.parameters[name]; ok {
		return id, nil
	}
	c.miss("parameter")
	rec := DimParameter{Parameter: name}
	if err := c.db.Where(&DimParameter{Parameter: name}).FirstOrCreate(&rec).Error; err != nil {
		return 0, fmt.Errorf("解析 parameter 维度 %q 失败: %w", name, err)
	}
	c.parameters[name] = rec.ID
	return rec.ID, nil
}

// Unit 返回单位维度 id，不存在则建行
func (c *DimCache) Unit(name string) (int32, error) {
	if id, ok := c.units[name]; ok {
		return id, nil
	}
	c.miss("unit")
	rec := DimUnit{Unit: name}
	if err := c.db.Where(&DimUnit{Unit: name}).FirstOrCreate(&rec).Error; err != nil {
		return 0, fmt.Errorf("解析 unit 维度 %q 失败: %w", name, err)
	}
	c.units[name] = rec.ID
	return rec.ID, nil
}

// AcquisitionType 返回采集方式维度 id，不存在则建行
func (c *DimCache) AcquisitionType(name string) (int32, error) {
	if id, ok := c.acqTypes[name]; ok {
		return id, nil
	}
	c.miss("acquisition_type")
	rec := DimAcquisitionType{AcquisitionType: name}
	if err := c.db.Where(&DimAcquisitionType{AcquisitionType: name}).FirstOrCreate(&rec).Error; err != nil {
		return 0, fmt.Errorf("解析 acquisition_type 维度 %q 失败: %w", name, err)
	}
	c.acqTypes[name] = rec.ID
	return rec.ID, nil
}

// AlarmType 返回报警类型维度 id，不存在则建行
func (c *DimCache) AlarmType(name string) (int32, error) {
	if id, ok := c.alarmTypes[name]; ok {
		return id, nil
	}
	c.miss("alarm_type")
	rec := DimAlarmType{AlarmType: name}
	if err := c.db.Where(&DimAlarmType{AlarmType: name}).FirstOrCreate(&rec).Error; err != nil {
		return 0, fmt.Errorf("解析 alarm_type 维度 %q 失败: %w", name, err)
	}
	c.alarmTypes[name] = rec.ID
	return rec.ID, nil
}

// AlarmLevel 返回报警级别维度 id，不存在则建行
func (c *DimCache) AlarmLevel(name string) (int32, error) {
	if id, ok := c.alarmLevels[name]; ok {
		return id, nil
	}
	c.miss("alarm_level")
	rec := DimAlarmLevel{AlarmLevel: name}
	if err := c.db.Where(&DimAlarmLevel{AlarmLevel: name}).FirstOrCreate(&rec).Error; err != nil {
		return 0, fmt.Errorf("解析 alarm_level 维度 %q 失败: %w", name, err)
	}
	c.alarmLevels[name] = rec.ID
	return rec.ID, nil
}

// EnsureCatalog 登记一条仪器测量向量，已登记过的组合直接返回
func (c *DimCache) EnsureCatalog(platformID, instrumentID, parameterID, unitID, acquisitionTypeID int32) error {
	key := catalogKey{platformID, instrumentID, parameterID, unitID, acquisitionTypeID}
	if _, ok := c.catalog[key]; ok {
		return nil
	}
	c.miss("instrument_measurements")
	rec := InstrumentMeasurement{
		PlatformID:        platformID,
		InstrumentID:      instrumentID,
		ParameterID:       parameterID,
		UnitID:            unitID,
		AcquisitionTypeID: acquisitionTypeID,
	}
	if err := c.db.Where(&InstrumentMeasurement{
		PlatformID:        platformID,
		InstrumentID:      instrumentID,
		ParameterID:       parameterID,
		UnitID:            unitID,
		AcquisitionTypeID: acquisitionTypeID,
	}).FirstOrCreate(&rec).Error; err != nil {
		return fmt.Errorf("登记仪器测量向量失败: %w", err)
	}
	c.catalog[key] = struct{}{}
	return nil
}
