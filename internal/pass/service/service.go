package service

import (
	"context"
	"fmt"

	"github.com/Haseeb-U/RequestApprover/internal/config"
	"github.com/Haseeb-U/RequestApprover/internal/pass/repository"
	"github.com/Haseeb-U/RequestApprover/internal/shared/mailer"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Services 服务集合
type Services struct {
	Auth    *AuthService
	Request *RequestService
	Chain   *ChainService
}

// NewServices 创建服务集合
func NewServices(ctx context.Context, db *gorm.DB, rdb *redis.Client, sender mailer.Sender, cfg *config.Config) (*Services, error) {
	repos := repository.NewRepositories(db)
	notifier := NewNotifier(sender, cfg.App.BaseURL)

	auth, err := NewAuthService(ctx, repos.User, rdb, cfg)
	if err != nil {
		return nil, fmt.Errorf("init auth service: %w", err)
	}

	return &Services{
		Auth:    auth,
		Request: NewRequestService(db, repos, notifier),
		Chain:   NewChainService(db, repos),
	}, nil
}
