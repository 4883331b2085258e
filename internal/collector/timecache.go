package collector

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"vandaq/internal/pkg"
)

// TimeCache 时间维度缓存。时间维度行数远超其它维度，逐行查询会把
// 插入引擎拖垮，所以未命中时一次预取整个窗口 [ts-w, ts+w]，并把窗内
// 缺失的每一个整秒补齐插入（稠密填充，保证后续区间连接无空洞）
type TimeCache struct {
	db      *gorm.DB
	window  time.Duration
	metrics *pkg.Metrics
	ids     map[int64]int64 // epoch 秒 -> time.id
}

// NewTimeCache 构造时间维度缓存
func NewTimeCache(db *gorm.DB, cacheTimeSecs int, metrics *pkg.Metrics) *TimeCache {
	return &TimeCache{
		db:      db,
		window:  time.Duration(cacheTimeSecs) * time.Second,
		metrics: metrics,
		ids:     make(map[int64]int64),
	}
}

// GetOrCreate 返回时间戳（截断到秒）对应的时间维度 id
// 未命中时预取并稠密填充整个窗口，窗内后续的查询全部命中缓存
func (c *TimeCache) GetOrCreate(ts time.Time) (int64, error) {
	ts = ts.UTC().Truncate(time.Second)
	if id, ok := c.ids[ts.Unix()]; ok {
		return id, nil
	}
	if c.metrics != nil {
		c.metrics.DimCacheMisses.WithLabelValues("time").Inc()
	}
	if err := c.fillWindow(ts); err != nil {
		return 0, err
	}
	id, ok := c.ids[ts.Unix()]
	if !ok {
		return 0, fmt.Errorf("时间维度填充后 %s 仍未命中", ts.Format(time.RFC3339))
	}
	return id, nil
}

// fillWindow 预取 [ts-w, ts+w] 内已有的时间行，补插缺失的整秒，
// 最后把整个窗口并入缓存
func (c *TimeCache) fillWindow(ts time.Time) error {
	from := ts.Add(-c.window)
	to := ts.Add(c.window)

	var existing []DimTime
	if err := c.db.Where("time >= ? AND time <= ?", from, to).Find(&existing).Error; err != nil {
		return fmt.Errorf("预取时间维度窗口失败: %w", err)
	}
	present := make(map[int64]int64, len(existing))
	for _, r := range existing {
		present[r.Time.UTC().Truncate(time.Second).Unix()] = r.ID
	}

	var missing []DimTime
	for sec := from.Unix(); sec <= to.Unix(); sec++ {
		if _, ok := present[sec]; !ok {
			missing = append(missing, DimTime{Time: time.Unix(sec, 0).UTC()})
		}
	}
	if len(missing) > 0 {
		if err := c.db.Create(&missing).Error; err != nil {
			return fmt.Errorf("稠密填充时间维度失败: %w", err)
		}
		for _, r := range missing {
			present[r.Time.Unix()] = r.ID
		}
	}

	for sec, id := range present {
		c.ids[sec] = id
	}
	return nil
}
