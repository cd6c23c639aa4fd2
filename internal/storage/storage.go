package storage

import (
	"context"
	"time"
)

// UploadInput representa uma operação de upload simples.
type UploadInput struct {
	Key          string
	Body         []byte
	ContentType  string
	CacheControl string
}

// UploadResult descreve o artefato persistido.
type UploadResult struct {
	URL  string
	ETag string
}

// Blobs define o comportamento necessário sobre um bucket de objetos:
// enviar, remover e gerar URLs de leitura temporárias.
type Blobs interface {
	Upload(ctx context.Context, input UploadInput) (*UploadResult, error)
	Remove(ctx context.Context, key string) error
	PresignGet(key string, expires time.Duration) (string, error)
}
