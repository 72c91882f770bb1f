package directory

import (
	"context"

	directorydomain "github.com/veridex/tokenmeter/internal/directory/domain"
	"github.com/veridex/tokenmeter/internal/directory/repository"
	"github.com/veridex/tokenmeter/internal/directory/service"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module wires the provider/model directory and its refresh loop.
var Module = fx.Module("directory.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
	fx.Provide(func(s *service.Service) directorydomain.Service { return s }),
	fx.Invoke(registerRefresh),
)

func registerRefresh(lc fx.Lifecycle, s *service.Service, log *zap.Logger) {
	stop := make(chan struct{})
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := s.Refresh(ctx); err != nil {
				log.Warn("initial directory load failed, starting empty", zap.Error(err))
			}
			go s.RunRefreshLoop(stop)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			close(stop)
			return nil
		},
	})
}
