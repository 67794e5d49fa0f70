package config

import (
	"context"

	gconfig "PRoom/global/config"
	"PRoom/logger"

	"github.com/nacos-group/nacos-sdk-go/v2/vo"
	"go.uber.org/zap"
)

// configSource is the part of the nacos config client the watcher uses.
type configSource interface {
	GetConfig(param vo.ConfigParam) (string, error)
	ListenConfig(param vo.ConfigParam) error
	CancelListenConfig(param vo.ConfigParam) error
	CloseClient()
}

// StartNacosWatcher loads the tunables document once, applies it, and keeps
// applying every change until ctx is done.
func StartNacosWatcher(ctx context.Context, c gconfig.NacosConfig, to Targets) error {
	cli, err := NewNacosConfigClient(c)
	if err != nil {
		return err
	}
	return watch(ctx, cli, c.DataId, c.Group, to)
}

func watch(ctx context.Context, cli configSource, dataId, group string, to Targets) error {
	content, err := cli.GetConfig(vo.ConfigParam{DataId: dataId, Group: group})
	if err != nil {
		return err
	}
	onChange(dataId, content, to)

	param := vo.ConfigParam{
		DataId: dataId,
		Group:  group,
		OnChange: func(_, _, dataId, data string) {
			onChange(dataId, data, to)
		},
	}
	if err := cli.ListenConfig(param); err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		_ = cli.CancelListenConfig(vo.ConfigParam{DataId: dataId, Group: group})
		cli.CloseClient()
	}()
	return nil
}

func onChange(dataId, data string, to Targets) {
	t, err := ParseTunables(data)
	if err == nil {
		err = ApplyTunables(t, to)
	}
	if err != nil {
		logger.Error("tunables rejected", zap.String("dataId", dataId), zap.Error(err))
		return
	}
	logger.Info("tunables applied", zap.String("dataId", dataId))
}
