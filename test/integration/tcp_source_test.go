package integration

import (
	"bufio"
	"context"
	"net"
	"strings"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
	"go.uber.org/zap/zaptest"

	"vandaq/internal/acquirer"
	"vandaq/internal/pkg"
)

// TestTCPSourceIntegration 测试 TCP 数据源对行协议仪器的完整读写流程
func TestTCPSourceIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("跳过集成测试")
	}

	Convey("测试 TCP 数据源读写", t, func() {
		logger := zaptest.NewLogger(t)

		// 1. 起一个模拟仪器的 TCP 服务
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		So(err, ShouldBeNil)
		defer ln.Close()

		received := make(chan string, 1)
		go func() {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			defer conn.Close()
			// 仪器先推两行数据
			conn.Write([]byte("12.3,45.6\r\n"))
			conn.Write([]byte("13.1,46.0\n"))
			// 再读回采集侧写下来的命令
			line, err := bufio.NewReader(conn).ReadString('\n')
			if err == nil {
				received <- line
			}
		}()

		// 2. 按配置构建 TCP 数据源
		cfg := &pkg.AcquirerConfig{
			Source: pkg.SourceConfig{
				Type: "tcp",
				Para: map[string]interface{}{
					"address":              ln.Addr().String(),
					"connect_timeout_secs": 5,
					"read_timeout_secs":    5,
				},
			},
		}
		src, err := acquirer.BuildSource(cfg, logger)
		So(err, ShouldBeNil)

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		Convey("连接后应能按行读取并剥掉行尾", func() {
			So(src.Connect(ctx), ShouldBeNil)
			defer src.Close()

			line, err := src.ReadLine(ctx)
			So(err, ShouldBeNil)
			So(line, ShouldEqual, "12.3,45.6")

			line, err = src.ReadLine(ctx)
			So(err, ShouldBeNil)
			So(line, ShouldEqual, "13.1,46.0")

			Convey("写命令应自动补 CRLF 到达仪器", func() {
				So(src.WriteLine(ctx, "GETSTATUS"), ShouldBeNil)
				select {
				case got := <-received:
					So(strings.TrimRight(got, "\r\n"), ShouldEqual, "GETSTATUS")
					So(strings.HasSuffix(got, "\n"), ShouldBeTrue)
				case <-time.After(5 * time.Second):
					t.Fatal("仪器侧未收到命令")
				}
			})
		})

		Convey("未连接时读写应报错", func() {
			fresh, err := acquirer.BuildSource(cfg, logger)
			So(err, ShouldBeNil)
			_, err = fresh.ReadLine(ctx)
			So(err, ShouldNotBeNil)
			So(fresh.WriteLine(ctx, "x"), ShouldNotBeNil)
		})
	})
}
