package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Haseeb-U/RequestApprover/internal/config"
	"github.com/Haseeb-U/RequestApprover/internal/pass/entity"
	"github.com/Haseeb-U/RequestApprover/internal/pass/repository"
	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/oauth2"
)

// AuthService 认证服务
// 登录走微软 Entra ID 的 OIDC 授权码流程，本系统不保存密码
type AuthService struct {
	userRepo *repository.UserRepository
	rdb      *redis.Client
	cfg      *config.Config
	oauth    *oauth2.Config
	verifier *oidc.IDTokenVerifier
}

// NewAuthService 创建认证服务，启动时完成 OIDC 发现
func NewAuthService(ctx context.Context, userRepo *repository.UserRepository, rdb *redis.Client, cfg *config.Config) (*AuthService, error) {
	issuer := fmt.Sprintf("https://login.microsoftonline.com/%s/v2.0", cfg.AzureAD.TenantID)
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("oidc discovery: %w", err)
	}

	return &AuthService{
		userRepo: userRepo,
		rdb:      rdb,
		cfg:      cfg,
		oauth: &oauth2.Config{
			ClientID:     cfg.AzureAD.ClientID,
			ClientSecret: cfg.AzureAD.ClientSecret,
			RedirectURL:  cfg.AzureAD.RedirectURI,
			Endpoint:     provider.Endpoint(),
			Scopes:       []string{oidc.ScopeOpenID, "profile", "email"},
		},
		verifier: provider.Verifier(&oidc.Config{ClientID: cfg.AzureAD.ClientID}),
	}, nil
}

// TokenPair Token对
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// azureClaims ID Token 里我们关心的声明
type azureClaims struct {
	Name              string `json:"name"`
	Email             string `json:"email"`
	PreferredUsername string `json:"preferred_username"`
	OID               string `json:"oid"`
}

// LoginURL 生成授权跳转地址，state 随机生成并存入 Redis 防 CSRF
func (s *AuthService) LoginURL(ctx context.Context) (string, error) {
	state := uuid.New().String()
	if err := s.rdb.Set(ctx, "auth:state:"+state, "1", 10*time.Minute).Err(); err != nil {
		return "", fmt.Errorf("store state: %w", err)
	}
	return s.oauth.AuthCodeURL(state), nil
}

// HandleCallback 处理授权回调
// 校验 state、换取并验证 ID Token、按邮箱 upsert 用户、引导管理员、签发本系统 Token
func (s *AuthService) HandleCallback(ctx context.Context, state, code string) (*entity.User, *TokenPair, error) {
	// 1. state 一次性消费
	if _, err := s.rdb.GetDel(ctx, "auth:state:"+state).Result(); err != nil {
		return nil, nil, fmt.Errorf("invalid or expired state")
	}

	// 2. code 换 token
	token, err := s.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, nil, fmt.Errorf("exchange code: %w", err)
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok {
		return nil, nil, fmt.Errorf("no id_token in token response")
	}

	// 3. 验证 ID Token
	idToken, err := s.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, nil, fmt.Errorf("verify id token: %w", err)
	}

	var claims azureClaims
	if err := idToken.Claims(&claims); err != nil {
		return nil, nil, fmt.Errorf("parse claims: %w", err)
	}

	email := claims.Email
	if email == "" {
		email = claims.PreferredUsername
	}
	if email == "" {
		return nil, nil, fmt.Errorf("id token carries no email")
	}

	// 4. 同步用户
	user, err := s.userRepo.UpsertByEmail(ctx, claims.Name, email, claims.OID)
	if err != nil {
		return nil, nil, fmt.Errorf("upsert user: %w", err)
	}

	// 5. 名单内邮箱首次登录即授予管理员
	for _, adminEmail := range s.cfg.App.AdminEmails {
		if adminEmail == user.Email {
			if err := s.userRepo.GrantAdmin(ctx, user.ID); err != nil {
				return nil, nil, fmt.Errorf("grant admin: %w", err)
			}
			break
		}
	}

	isAdmin, err := s.userRepo.IsAdmin(ctx, user.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("check admin: %w", err)
	}

	// 6. 签发本系统 Token
	pair, err := s.generateTokenPair(ctx, user, isAdmin)
	if err != nil {
		return nil, nil, fmt.Errorf("generate token: %w", err)
	}
	return user, pair, nil
}

// generateTokenPair 生成Token对，refresh token 以 jti 存入 Redis
func (s *AuthService) generateTokenPair(ctx context.Context, user *entity.User, isAdmin bool) (*TokenPair, error) {
	now := time.Now()

	accessClaims := jwt.MapClaims{
		"sub":      user.ID,
		"uid":      user.ID,
		"name":     user.Name,
		"email":    user.Email,
		"is_admin": isAdmin,
		"iss":      s.cfg.JWT.Issuer,
		"iat":      now.Unix(),
		"exp":      now.Add(s.cfg.JWT.AccessTokenExpire).Unix(),
		"jti":      uuid.New().String(),
	}
	accessToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, accessClaims).
		SignedString([]byte(s.cfg.JWT.Secret))
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}

	refreshJti := uuid.New().String()
	refreshClaims := jwt.MapClaims{
		"sub":  user.ID,
		"type": "refresh",
		"iss":  s.cfg.JWT.Issuer,
		"iat":  now.Unix(),
		"exp":  now.Add(s.cfg.JWT.RefreshTokenExpire).Unix(),
		"jti":  refreshJti,
	}
	refreshToken, err := jwt.NewWithClaims(jwt.SigningMethodHS256, refreshClaims).
		SignedString([]byte(s.cfg.JWT.Secret))
	if err != nil {
		return nil, fmt.Errorf("sign refresh token: %w", err)
	}

	if err := s.rdb.Set(ctx, "token:refresh:"+refreshJti, user.ID, s.cfg.JWT.RefreshTokenExpire).Err(); err != nil {
		return nil, fmt.Errorf("store refresh token: %w", err)
	}

	return &TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int64(s.cfg.JWT.AccessTokenExpire.Seconds()),
	}, nil
}

// RefreshToken 刷新Token，旧 refresh token 单次有效
func (s *AuthService) RefreshToken(ctx context.Context, refreshTokenString string) (*TokenPair, error) {
	token, err := jwt.Parse(refreshTokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.cfg.JWT.Secret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("invalid refresh token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	if claims["type"] != "refresh" {
		return nil, fmt.Errorf("invalid token type")
	}

	jti, _ := claims["jti"].(string)
	userID, err := s.rdb.GetDel(ctx, "token:refresh:"+jti).Result()
	if err != nil {
		return nil, fmt.Errorf("refresh token expired or invalid")
	}

	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	isAdmin, err := s.userRepo.IsAdmin(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	return s.generateTokenPair(ctx, user, isAdmin)
}

// Logout 登出，吊销携带的 refresh token
// token 非法或已过期时静默成功，登出不需要失败
func (s *AuthService) Logout(ctx context.Context, refreshTokenString string) error {
	if refreshTokenString == "" {
		return nil
	}
	token, err := jwt.Parse(refreshTokenString, func(token *jwt.Token) (interface{}, error) {
		return []byte(s.cfg.JWT.Secret), nil
	})
	if err != nil || !token.Valid {
		return nil
	}
	if claims, ok := token.Claims.(jwt.MapClaims); ok {
		if jti, _ := claims["jti"].(string); jti != "" {
			s.rdb.Del(ctx, "token:refresh:"+jti)
		}
	}
	return nil
}

// UserProfile 当前用户资料
type UserProfile struct {
	*entity.User
	IsAdmin bool `json:"is_admin"`
}

// Me 获取当前用户资料
func (s *AuthService) Me(ctx context.Context, userID string) (*UserProfile, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	isAdmin, err := s.userRepo.IsAdmin(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &UserProfile{User: user, IsAdmin: isAdmin}, nil
}
