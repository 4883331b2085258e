// Package command 定义运维 CLI 的子命令
package command

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"vandaq/internal/pkg"
	"vandaq/internal/queue"
)

// NewRootCommand 创建根命令
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "vandaq-cli",
		Short: "VanDAQ 运维 CLI",
		Long:  `VanDAQ 运维 CLI：校验配置、向在线采集进程下发设备命令并读取响应。`,
	}

	rootCmd.AddCommand(NewCheckConfigCommand())
	rootCmd.AddCommand(NewSendCmdCommand())

	return rootCmd
}

// NewCheckConfigCommand 创建 checkconfig 子命令
func NewCheckConfigCommand() *cobra.Command {
	var configDir string

	cmd := &cobra.Command{
		Use:   "checkconfig",
		Short: "加载并校验采集配置",
		Long:  `加载并校验指定目录下的采集配置，配置错误在这里暴露而不是在现场。`,
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := pkg.LoadAcquirerConfig(configDir)
			if err != nil {
				return err
			}
			fmt.Printf("配置有效: platform=%s instrument=%s source=%s queue=%s\n",
				cfg.Platform, cfg.Instrument, cfg.Source.Type, cfg.Queue.Name)
			return nil
		},
	}
	cmd.Flags().StringVar(&configDir, "config", "config", "配置目录")
	return cmd
}

// NewSendCmdCommand 创建 sendcmd 子命令
func NewSendCmdCommand() *cobra.Command {
	var (
		configDir   string
		timeoutSecs int
	)

	cmd := &cobra.Command{
		Use:   "sendcmd <command>",
		Short: "向采集进程下发一条设备命令并等待响应",
		Long:  `通过命令/响应通道向在线采集进程推送一条自由文本命令，阻塞等待设备响应行。`,
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			cfg, err := pkg.LoadAcquirerConfig(configDir)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(context.Background(), time.Duration(timeoutSecs)*time.Second)
			defer cancel()

			q, err := queue.Open(ctx, cfg.Queue, zap.NewNop())
			if err != nil {
				return err
			}
			defer q.Close()

			// 操作端复用既有命令流，不做重建
			ch, err := queue.OpenCommandChannel(ctx, q, false)
			if err != nil {
				return err
			}
			if err := ch.Send(ctx, args[0]); err != nil {
				return err
			}
			resp, err := ch.AwaitResponse(ctx)
			if err != nil {
				return fmt.Errorf("等待响应失败: %w", err)
			}
			fmt.Println("Response:", resp)
			return nil
		},
	}
	cmd.Flags().StringVar(&configDir, "config", "config", "配置目录")
	cmd.Flags().IntVar(&timeoutSecs, "timeout", 30, "等待响应的超时秒数")
	return cmd
}
