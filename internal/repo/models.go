package repo

import (
	"time"

	"github.com/google/uuid"
)

// Papéis reconhecidos para membros.
const (
	PapelMembro = "membro"
	PapelAdmin  = "admin"
)

// Membro representa um integrante da banda.
type Membro struct {
	ID          uuid.UUID
	Nome        string
	Email       string
	SenhaHash   string
	Papel       string
	Instrumento *string
	AvatarURL   *string
	Ativo       bool
	CriadoEm    time.Time
}

// TokenRefresh modela tabela de refresh tokens.
type TokenRefresh struct {
	ID        uuid.UUID
	Subject   uuid.UUID
	TokenHash string
	Expiracao time.Time
	CriadoEm  time.Time
	Revogado  bool
}
