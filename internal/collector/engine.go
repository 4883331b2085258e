package collector

import (
	"sort"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"vandaq/internal/pkg"
)

// gpsAcquisitionType 地理位置记录的采集方式标记
const gpsAcquisitionType = "GPS"

// Engine 批量插入引擎。把一批记录按 insert_batch_secs 粒度的时间桶
// 切成子批，每个子批一个事务，最小 sample_time 的子批先提交。
// 单个子批失败（完整性冲突）回滚并记日志，后续子批照常处理
type Engine struct {
	db        *gorm.DB
	dims      *DimCache
	times     *TimeCache
	metrics   *pkg.Metrics
	logger    *zap.Logger
	batchSecs int64
}

// NewEngine 构造插入引擎
func NewEngine(db *gorm.DB, dims *DimCache, times *TimeCache, cfg pkg.WarehouseConfig,
	metrics *pkg.Metrics, logger *zap.Logger) *Engine {
	return &Engine{
		db:        db,
		dims:      dims,
		times:     times,
		metrics:   metrics,
		logger:    logger,
		batchSecs: int64(cfg.InsertBatchSeconds),
	}
}

// resolvedRecord 维度键已解析完毕的记录
type resolvedRecord struct {
	src          pkg.MeasurementRecord
	platformID   int32
	instrumentID int32
	parameterID  int32
	unitID       int32
	acqTypeID    int32
	acqTimeID    int64
	sampleTimeID int64
	instTimeID   *int64
}

// geoKey 地理位置行的复合键
type geoKey struct {
	sampleTimeID int64
	platformID   int32
	instrumentID int32
}

// ProcessRecords 处理一批记录：切子批后逐个事务化插入
// 子批内保持记录的相对顺序；子批失败不影响后续子批
func (e *Engine) ProcessRecords(records []pkg.MeasurementRecord) {
	buckets := make(map[int64][]pkg.MeasurementRecord)
	for _, r := range records {
		bucket := r.SampleTime.Unix() - r.SampleTime.Unix()%e.batchSecs
		buckets[bucket] = append(buckets[bucket], r)
	}
	keys := make([]int64, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	for _, k := range keys {
		if err := e.insertSubBatch(buckets[k]); err != nil {
			if e.metrics != nil {
				e.metrics.InsertErrors.Inc()
			}
			e.logger.Error("子批插入失败，回滚后继续",
				zap.Int64("bucket", k),
				zap.Int("records", len(buckets[k])),
				zap.Error(err))
		}
	}
}

// insertSubBatch 插入一个时间桶的记录，整桶一个事务
// 维度解析走引擎自己的连接（不在事务里）：事务回滚不会让缓存里的
// 维度 id 变成悬空引用
func (e *Engine) insertSubBatch(records []pkg.MeasurementRecord) error {
	resolved := make([]resolvedRecord, 0, len(records))
	for _, r := range records {
		rr, err := e.resolve(r)
		if err != nil {
			return err
		}
		resolved = append(resolved, rr)
	}

	return e.db.Transaction(func(tx *gorm.DB) error {
		// 测量事实行，保留与 resolved 的下标映射以便报警回填 id
		measurements := make([]FactMeasurement, 0, len(resolved))
		measIdx := make([]int, 0, len(resolved))
		for i, rr := range resolved {
			if rr.src.Datum.Kind() == pkg.DatumNone {
				continue
			}
			sampleTime := rr.src.SampleTime.UTC().Truncate(time.Second)
			m := FactMeasurement{
				AcquisitionTimeID: rr.acqTimeID,
				InstrumentTimeID:  rr.instTimeID,
				SampleTimeID:      rr.sampleTimeID,
				SampleTime:        &sampleTime,
				PlatformID:        rr.platformID,
				InstrumentID:      rr.instrumentID,
				ParameterID:       rr.parameterID,
				UnitID:            rr.unitID,
				AcquisitionTypeID: rr.acqTypeID,
			}
			if v, ok := rr.src.Datum.Num(); ok {
				m.Value = &v
			} else if s, ok := rr.src.Datum.Str(); ok {
				m.String = &s
			}
			measurements = append(measurements, m)
			measIdx = append(measIdx, i)
		}
		if len(measurements) > 0 {
			if err := tx.Create(&measurements).Error; err != nil {
				return err
			}
		}

		// 生成的测量 id 按下标回填
		measurementID := make(map[int]int64, len(measIdx))
		for j, i := range measIdx {
			measurementID[i] = measurements[j].ID
		}

		if err := e.upsertGeolocation(tx, resolved); err != nil {
			return err
		}

		alarms := make([]FactAlarm, 0)
		for i, rr := range resolved {
			for _, ev := range rr.src.Alarms {
				typeID, err := e.dims.AlarmType(ev.Type)
				if err != nil {
					return err
				}
				levelID, err := e.dims.AlarmLevel(ev.Level)
				if err != nil {
					return err
				}
				a := FactAlarm{
					PlatformID:   rr.platformID,
					InstrumentID: rr.instrumentID,
					SampleTimeID: rr.sampleTimeID,
					AlarmTypeID:  typeID,
					AlarmLevelID: levelID,
					DataImpacted: ev.DataImpacted,
					Message:      ev.Message,
				}
				if id, ok := measurementID[i]; ok {
					mid := id
					a.MeasurementID = &mid
					pid := rr.parameterID
					a.ParameterID = &pid
				}
				alarms = append(alarms, a)
			}
		}
		if len(alarms) > 0 {
			if err := tx.Create(&alarms).Error; err != nil {
				return err
			}
		}

		if e.metrics != nil {
			e.metrics.BatchesCommitted.Inc()
			e.metrics.RecordsInserted.Add(float64(len(measurements)))
			e.metrics.AlarmsInserted.Add(float64(len(alarms)))
		}
		return nil
	})
}

// resolve 解析一条记录的全部维度键并登记仪器测量向量
func (e *Engine) resolve(r pkg.MeasurementRecord) (resolvedRecord, error) {
	rr := resolvedRecord{src: r}
	var err error
	if rr.platformID, err = e.dims.Platform(r.Platform); err != nil {
		return rr, err
	}
	if rr.instrumentID, err = e.dims.Instrument(r.Instrument); err != nil {
		return rr, err
	}
	if rr.parameterID, err = e.dims.Parameter(r.Parameter); err != nil {
		return rr, err
	}
	if rr.unitID, err = e.dims.Unit(r.Unit); err != nil {
		return rr, err
	}
	if rr.acqTypeID, err = e.dims.AcquisitionType(r.AcquisitionType); err != nil {
		return rr, err
	}
	if rr.acqTimeID, err = e.times.GetOrCreate(r.AcquisitionTime); err != nil {
		return rr, err
	}
	if rr.sampleTimeID, err = e.times.GetOrCreate(r.SampleTime); err != nil {
		return rr, err
	}
	if r.InstrumentTime != nil {
		id, err := e.times.GetOrCreate(*r.InstrumentTime)
		if err != nil {
			return rr, err
		}
		rr.instTimeID = &id
	}
	if err := e.dims.EnsureCatalog(rr.platformID, rr.instrumentID, rr.parameterID, rr.unitID, rr.acqTypeID); err != nil {
		return rr, err
	}
	return rr, nil
}

// upsertGeolocation 汇聚子批内的 GPS 经纬度贡献并批量 upsert
// 纬度与经度来自两条独立记录，先按复合键合并再落库；
// 冲突时只用非空值覆盖，已落库的坐标分量不会被缺失的一边抹掉
func (e *Engine) upsertGeolocation(tx *gorm.DB, resolved []resolvedRecord) error {
	staged := make(map[geoKey]*DimGeolocation)
	order := make([]geoKey, 0)
	for _, rr := range resolved {
		if rr.src.AcquisitionType != gpsAcquisitionType {
			continue
		}
		v, ok := rr.src.Datum.Num()
		if !ok {
			continue
		}
		if rr.src.Parameter != "latitude" && rr.src.Parameter != "longitude" {
			continue
		}
		key := geoKey{rr.sampleTimeID, rr.platformID, rr.instrumentID}
		row, ok := staged[key]
		if !ok {
			row = &DimGeolocation{
				SampleTimeID: key.sampleTimeID,
				PlatformID:   key.platformID,
				InstrumentID: key.instrumentID,
			}
			staged[key] = row
			order = append(order, key)
		}
		val := v
		if rr.src.Parameter == "latitude" {
			row.Latitude = &val
		} else {
			row.Longitude = &val
		}
	}
	if len(staged) == 0 {
		return nil
	}

	rows := make([]DimGeolocation, 0, len(staged))
	for _, key := range order {
		rows = append(rows, *staged[key])
	}
	return tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "sample_time_id"}, {Name: "platform_id"}, {Name: "instrument_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"latitude":  gorm.Expr("COALESCE(excluded.latitude, geolocation.latitude)"),
			"longitude": gorm.Expr("COALESCE(excluded.longitude, geolocation.longitude)"),
		}),
	}).Create(&rows).Error
}
