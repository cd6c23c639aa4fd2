package storage

import (
	"context"
	"errors"
	"time"
)

var errNoBackend = errors.New("storage: backend não configurado")

// NoopBlobs devolve erro indicando que não há backend configurado.
type NoopBlobs struct{}

// Upload sempre retorna erro, sinalizando que o recurso não está disponível.
func (NoopBlobs) Upload(ctx context.Context, input UploadInput) (*UploadResult, error) {
	return nil, errNoBackend
}

// Remove sempre retorna erro.
func (NoopBlobs) Remove(ctx context.Context, key string) error {
	return errNoBackend
}

// PresignGet sempre retorna erro.
func (NoopBlobs) PresignGet(key string, expires time.Duration) (string, error) {
	return "", errNoBackend
}
