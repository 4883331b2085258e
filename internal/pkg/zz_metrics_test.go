package pkg

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

// 测试用例
func TestMetrics(t *testing.T) {
	Convey("Given a metrics set on a fresh registry", t, func() {
		registry := prometheus.NewRegistry()
		m := NewMetrics(registry)

		Convey("When counters are incremented", func() {
			m.BatchesCommitted.Inc()
			m.RecordsInserted.Add(5)
			m.SpoolFiles.WithLabelValues("submitted").Inc()
			m.SpoolFiles.WithLabelValues("rejected").Inc()
			m.DimCacheMisses.WithLabelValues("platform").Inc()
			m.PendingRecords.Set(42)

			Convey("Then values should be observable", func() {
				So(testutil.ToFloat64(m.BatchesCommitted), ShouldEqual, 1)
				So(testutil.ToFloat64(m.RecordsInserted), ShouldEqual, 5)
				So(testutil.ToFloat64(m.SpoolFiles.WithLabelValues("submitted")), ShouldEqual, 1)
				So(testutil.ToFloat64(m.SpoolFiles.WithLabelValues("rejected")), ShouldEqual, 1)
				So(testutil.ToFloat64(m.DimCacheMisses.WithLabelValues("platform")), ShouldEqual, 1)
				So(testutil.ToFloat64(m.PendingRecords), ShouldEqual, 42)
			})
		})

		Convey("When registering twice on the same registry", func() {
			// 重复注册同名指标会 panic，按注册表隔离的用法不应触发
			So(func() { NewMetrics(registry) }, ShouldPanic)
		})
	})
}
