package service

import (
	"go.uber.org/zap"

	"routine-scheduler/backend/config"
	"routine-scheduler/backend/internal/notifier"
	"routine-scheduler/backend/internal/repository"
)

// Service 所有 Service 的聚合入口
type Service struct {
	Routine RoutineService
}

// NewService 创建 Service 聚合
func NewService(
	cfg *config.Config,
	repo *repository.Repository,
	notif notifier.Notifier,
	logger *zap.Logger,
) *Service {
	return &Service{
		Routine: NewRoutineService(cfg, repo, notif, logger),
	}
}
