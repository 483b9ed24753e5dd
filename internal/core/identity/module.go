package identity

import (
	"go.uber.org/fx"

	"github.com/dep2p/go-floodnet/config"
	"github.com/dep2p/go-floodnet/internal/util/logger"
	"github.com/dep2p/go-floodnet/pkg/types"
)

var log = logger.Logger("identity")

// ModuleInput 模块输入依赖
type ModuleInput struct {
	fx.In

	Config *config.Config

	// Identity 直接注入的身份（WithIdentity 场景）
	Identity *Identity `name:"preset_identity" optional:"true"`
}

// ModuleOutput 模块输出服务
type ModuleOutput struct {
	fx.Out

	Identity *Identity
	PeerID   types.PeerID
}

// ProvideIdentity 提供节点身份
//
// 优先级：注入的身份 > 密钥文件 > 临时生成。
func ProvideIdentity(in ModuleInput) (ModuleOutput, error) {
	id := in.Identity
	if id == nil {
		var err error
		id, err = LoadOrCreate(in.Config.Identity.KeyFile, in.Config.Identity.AutoGenerate)
		if err != nil {
			return ModuleOutput{}, err
		}
	}
	log.Debug("节点身份就绪", "peer", id.PeerID())
	return ModuleOutput{Identity: id, PeerID: id.PeerID()}, nil
}

// Module 返回 fx 模块
func Module() fx.Option {
	return fx.Module("identity",
		fx.Provide(ProvideIdentity),
	)
}
