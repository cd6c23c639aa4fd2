package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/bandafrc/api/internal/auth"
	"github.com/bandafrc/api/internal/repo"
	"github.com/bandafrc/api/internal/util"
)

var (
	ErrInvalidCredentials = errors.New("credenciais inválidas")
	ErrEmailEmUso         = errors.New("email já registado")
	ErrContaInativa       = errors.New("conta desativada")
)

// AuthRepository reúne as operações de membros e sessões usadas pelo fluxo
// de autenticação.
type AuthRepository interface {
	GetMembroByEmail(ctx context.Context, email string) (repo.Membro, error)
	GetMembroByID(ctx context.Context, id uuid.UUID) (repo.Membro, error)
	CreateMembro(ctx context.Context, arg repo.CreateMembroParams) (repo.Membro, error)
	InsertRefreshToken(ctx context.Context, arg repo.InsertRefreshTokenParams) (repo.TokenRefresh, error)
	GetRefreshTokenByHash(ctx context.Context, tokenHash string) (repo.TokenRefresh, error)
	RevokeRefreshToken(ctx context.Context, tokenHash string) error
	InvalidateOtherRefreshTokens(ctx context.Context, subject uuid.UUID, keepHash string) error
}

// AuthService implementa cadastro, login e rotação de refresh tokens.
type AuthService struct {
	repo       AuthRepository
	redis      *redis.Client
	jwt        *auth.JWTManager
	refreshTTL time.Duration
}

func NewAuthService(repository AuthRepository, redisClient *redis.Client, jwtManager *auth.JWTManager, refreshTTL time.Duration) *AuthService {
	return &AuthService{
		repo:       repository,
		redis:      redisClient,
		jwt:        jwtManager,
		refreshTTL: refreshTTL,
	}
}

// LoginResult transporta tokens emitidos e o perfil autenticado.
type LoginResult struct {
	AccessToken   string
	RefreshToken  string
	RefreshHash   string
	RefreshExpiry time.Time
	Membro        repo.Membro
}

type SignupInput struct {
	Nome        string
	Email       string
	Senha       string
	Instrumento *string
}

// Signup cria a conta com papel de membro comum e já devolve sessão ativa.
func (s *AuthService) Signup(ctx context.Context, input SignupInput) (LoginResult, error) {
	if err := util.RequireString(input.Nome, "nome"); err != nil {
		return LoginResult{}, err
	}
	if err := util.ValidateEmail(input.Email); err != nil {
		return LoginResult{}, err
	}
	if err := util.ValidatePassword(input.Senha); err != nil {
		return LoginResult{}, err
	}

	senhaHash, err := auth.Hash(input.Senha)
	if err != nil {
		return LoginResult{}, fmt.Errorf("hash senha: %w", err)
	}

	membro, err := s.repo.CreateMembro(ctx, repo.CreateMembroParams{
		Nome:        strings.TrimSpace(input.Nome),
		Email:       strings.ToLower(strings.TrimSpace(input.Email)),
		SenhaHash:   senhaHash,
		Instrumento: input.Instrumento,
	})
	if err != nil {
		if errors.Is(err, repo.ErrDuplicado) {
			return LoginResult{}, ErrEmailEmUso
		}
		return LoginResult{}, err
	}

	return s.issueSession(ctx, membro)
}

// Login valida credenciais e emite access + refresh.
func (s *AuthService) Login(ctx context.Context, email, senha string) (LoginResult, error) {
	membro, err := s.repo.GetMembroByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return LoginResult{}, ErrInvalidCredentials
		}
		return LoginResult{}, err
	}

	ok, err := auth.Verify(senha, membro.SenhaHash)
	if err != nil || !ok {
		return LoginResult{}, ErrInvalidCredentials
	}

	if !membro.Ativo {
		return LoginResult{}, ErrContaInativa
	}

	return s.issueSession(ctx, membro)
}

// Refresh roda o token: valida o atual, revoga e emite um novo par.
func (s *AuthService) Refresh(ctx context.Context, rawToken string) (LoginResult, error) {
	hash := auth.HashRefreshToken(rawToken)

	stored, err := s.repo.GetRefreshTokenByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return LoginResult{}, auth.ErrInvalidRefresh
		}
		return LoginResult{}, err
	}

	if stored.Revogado || util.Now().After(stored.Expiracao) {
		return LoginResult{}, auth.ErrInvalidRefresh
	}

	if s.redis != nil {
		estado, err := s.redis.Get(ctx, auth.RefreshRedisKey(hash)).Result()
		if err != nil || estado != "active" {
			return LoginResult{}, auth.ErrInvalidRefresh
		}
	}

	membro, err := s.repo.GetMembroByID(ctx, stored.Subject)
	if err != nil {
		return LoginResult{}, auth.ErrInvalidRefresh
	}
	if !membro.Ativo {
		return LoginResult{}, ErrContaInativa
	}

	result, err := s.issueSession(ctx, membro)
	if err != nil {
		return LoginResult{}, err
	}

	if err := s.repo.RevokeRefreshToken(ctx, hash); err != nil && !errors.Is(err, repo.ErrNotFound) {
		return LoginResult{}, err
	}
	if s.redis != nil {
		_ = s.redis.Del(ctx, auth.RefreshRedisKey(hash)).Err()
	}

	return result, nil
}

// Logout revoga o refresh token apresentado. Token desconhecido não é erro.
func (s *AuthService) Logout(ctx context.Context, rawToken string) error {
	if rawToken == "" {
		return nil
	}

	hash := auth.HashRefreshToken(rawToken)
	if err := s.repo.RevokeRefreshToken(ctx, hash); err != nil && !errors.Is(err, repo.ErrNotFound) {
		return err
	}
	if s.redis != nil {
		_ = s.redis.Del(ctx, auth.RefreshRedisKey(hash)).Err()
	}
	return nil
}

// Me devolve o perfil do membro autenticado.
func (s *AuthService) Me(ctx context.Context, subject uuid.UUID) (repo.Membro, error) {
	return s.repo.GetMembroByID(ctx, subject)
}

func (s *AuthService) issueSession(ctx context.Context, membro repo.Membro) (LoginResult, error) {
	accessToken, _, err := s.jwt.GenerateAccessToken(membro.ID.String(), membro.Papel)
	if err != nil {
		return LoginResult{}, fmt.Errorf("gerar access token: %w", err)
	}

	raw, hash, err := auth.GenerateRefreshToken()
	if err != nil {
		return LoginResult{}, fmt.Errorf("gerar refresh token: %w", err)
	}

	expiry := util.Now().Add(s.refreshTTL)
	if _, err := s.repo.InsertRefreshToken(ctx, repo.InsertRefreshTokenParams{
		ID:        uuid.New(),
		Subject:   membro.ID,
		TokenHash: hash,
		Expiracao: expiry,
		CriadoEm:  util.Now(),
	}); err != nil {
		return LoginResult{}, err
	}

	if err := s.repo.InvalidateOtherRefreshTokens(ctx, membro.ID, hash); err != nil {
		return LoginResult{}, err
	}

	if s.redis != nil {
		if err := s.redis.Set(ctx, auth.RefreshRedisKey(hash), "active", s.refreshTTL).Err(); err != nil {
			return LoginResult{}, fmt.Errorf("persistir sessão: %w", err)
		}
	}

	return LoginResult{
		AccessToken:   accessToken,
		RefreshToken:  raw,
		RefreshHash:   hash,
		RefreshExpiry: expiry,
		Membro:        membro,
	}, nil
}
