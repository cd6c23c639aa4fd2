package auth

import (
	"github.com/alexedwards/argon2id"
)

// Parâmetros Argon2id para as senhas dos membros; ficam codificados
// dentro do próprio hash, por isso podem evoluir sem migração.
var hashParams = &argon2id.Params{
	Memory:      64 * 1024, // 64 MB
	Iterations:  3,
	Parallelism: 1,
	SaltLength:  16,
	KeyLength:   32,
}

// Hash gera um hash Argon2id da senha em claro.
func Hash(senha string) (string, error) {
	return argon2id.CreateHash(senha, hashParams)
}

// Verify compara a senha com um hash produzido por Hash.
func Verify(senha, encodedHash string) (bool, error) {
	return argon2id.ComparePasswordAndHash(senha, encodedHash)
}
