package config

import (
	"fmt"

	gconfig "PRoom/global/config"

	"github.com/nacos-group/nacos-sdk-go/v2/clients"
	"github.com/nacos-group/nacos-sdk-go/v2/clients/config_client"
	"github.com/nacos-group/nacos-sdk-go/v2/common/constant"
	"github.com/nacos-group/nacos-sdk-go/v2/vo"
)

// NewNacosConfigClient builds a config client for c.
func NewNacosConfigClient(c gconfig.NacosConfig) (config_client.IConfigClient, error) {
	cli, err := clients.NewConfigClient(vo.NacosClientParam{
		ClientConfig:  clientConfig(c),
		ServerConfigs: []constant.ServerConfig{*constant.NewServerConfig(c.Addr, c.Port)},
	})
	if err != nil {
		return nil, fmt.Errorf("create nacos config client: %w", err)
	}
	return cli, nil
}

func clientConfig(c gconfig.NacosConfig) *constant.ClientConfig {
	return constant.NewClientConfig(
		constant.WithNamespaceId(c.Namespace),
		constant.WithTimeoutMs(5000),
		constant.WithNotLoadCacheAtStart(true),
		constant.WithLogLevel("warn"),
		constant.WithCacheDir("nacos/cache"),
		constant.WithLogDir("nacos/log"),
		constant.WithUsername(c.Username),
		constant.WithPassword(c.Password),
	)
}
