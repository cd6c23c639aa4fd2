package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/bandafrc/api/internal/http/middleware"
	"github.com/bandafrc/api/internal/repo"
	"github.com/bandafrc/api/internal/storage"
	"github.com/bandafrc/api/internal/util"
)

// Extensões de imagem aceites para avatar. O conteúdo em si não é
// inspecionado; o blob é tratado como opaco.
var avatarContentTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
}

// MembroStore reúne as operações de perfil e diretório.
type MembroStore interface {
	GetMembroByID(ctx context.Context, id uuid.UUID) (repo.Membro, error)
	ListMembros(ctx context.Context) ([]repo.Membro, error)
	UpdatePerfil(ctx context.Context, id uuid.UUID, nome string, instrumento *string) error
	UpdateAvatarURL(ctx context.Context, id uuid.UUID, url string) error
}

// PerfilHandler cuida do próprio perfil e do avatar.
type PerfilHandler struct {
	store          MembroStore
	avatares       storage.Blobs
	maxImagemBytes int64
}

func NewPerfilHandler(store MembroStore, avatares storage.Blobs, maxImagemBytes int64) *PerfilHandler {
	return &PerfilHandler{store: store, avatares: avatares, maxImagemBytes: maxImagemBytes}
}

func (h *PerfilHandler) membroDoContexto(w http.ResponseWriter, r *http.Request) (repo.Membro, bool) {
	subject, err := uuid.Parse(middleware.GetSubject(r.Context()))
	if err != nil {
		WriteError(w, http.StatusUnauthorized, "AUTH", "identificação inválida", nil)
		return repo.Membro{}, false
	}

	membro, err := h.store.GetMembroByID(r.Context(), subject)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			WriteError(w, http.StatusNotFound, "NOT_FOUND", "membro não encontrado", nil)
			return repo.Membro{}, false
		}
		log.Error().Err(err).Msg("perfil error")
		WriteError(w, http.StatusInternalServerError, "INTERNAL", "erro interno", nil)
		return repo.Membro{}, false
	}
	return membro, true
}

// HandleGet devolve o próprio perfil.
func (h *PerfilHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	membro, ok := h.membroDoContexto(w, r)
	if !ok {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"membro": toMembroDTO(membro)})
}

// HandleUpdate altera nome e instrumento.
func (h *PerfilHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	membro, ok := h.membroDoContexto(w, r)
	if !ok {
		return
	}

	var payload struct {
		Nome        string  `json:"nome"`
		Instrumento *string `json:"instrumento"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		WriteError(w, http.StatusBadRequest, "VALIDATION", "JSON inválido", nil)
		return
	}
	if err := util.RequireString(payload.Nome, "nome"); err != nil {
		WriteError(w, http.StatusBadRequest, "VALIDATION", err.Error(), nil)
		return
	}

	if err := h.store.UpdatePerfil(r.Context(), membro.ID, strings.TrimSpace(payload.Nome), payload.Instrumento); err != nil {
		log.Error().Err(err).Msg("perfil update error")
		WriteError(w, http.StatusInternalServerError, "INTERNAL", "erro interno", nil)
		return
	}

	membro.Nome = strings.TrimSpace(payload.Nome)
	membro.Instrumento = payload.Instrumento
	WriteJSON(w, http.StatusOK, map[string]any{"membro": toMembroDTO(membro)})
}

// HandleAvatar recebe a imagem multipart, envia ao bucket e atualiza a URL.
// A chave é estável por membro, com query param para furar caches.
func (h *PerfilHandler) HandleAvatar(w http.ResponseWriter, r *http.Request) {
	membro, ok := h.membroDoContexto(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxImagemBytes)
	if err := r.ParseMultipartForm(h.maxImagemBytes); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			WriteError(w, http.StatusRequestEntityTooLarge, "VALIDATION", "imagem demasiado grande", nil)
			return
		}
		WriteError(w, http.StatusBadRequest, "VALIDATION", "formulário multipart inválido", nil)
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile("imagem")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "VALIDATION", "imagem obrigatória", nil)
		return
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	contentType, ok := avatarContentTypes[ext]
	if !ok {
		WriteError(w, http.StatusBadRequest, "VALIDATION", "formato de imagem não suportado", nil)
		return
	}

	body, err := io.ReadAll(file)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "VALIDATION", "falha ao ler imagem", nil)
		return
	}

	key := membro.ID.String() + ext
	result, err := h.avatares.Upload(r.Context(), storage.UploadInput{
		Key:          key,
		Body:         body,
		ContentType:  contentType,
		CacheControl: "public, max-age=86400",
	})
	if err != nil {
		log.Error().Err(err).Msg("avatar upload error")
		WriteError(w, http.StatusBadGateway, "INTERNAL", "falha ao enviar imagem", nil)
		return
	}

	// extensão mudou: o objeto antigo ficaria órfão
	if membro.AvatarURL != nil {
		if oldKey := keyFromAvatarURL(*membro.AvatarURL, membro.ID); oldKey != "" && oldKey != key {
			if rmErr := h.avatares.Remove(r.Context(), oldKey); rmErr != nil {
				log.Warn().Err(rmErr).Str("key", oldKey).Msg("falha ao remover avatar antigo")
			}
		}
	}

	url := fmt.Sprintf("%s?t=%d", result.URL, util.Now().Unix())
	if err := h.store.UpdateAvatarURL(r.Context(), membro.ID, url); err != nil {
		log.Error().Err(err).Msg("avatar url update error")
		WriteError(w, http.StatusInternalServerError, "INTERNAL", "erro interno", nil)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{"avatar_url": url})
}

// keyFromAvatarURL recupera a chave `<id>.<ext>` a partir da URL pública.
func keyFromAvatarURL(avatarURL string, membroID uuid.UUID) string {
	base := avatarURL
	if idx := strings.IndexByte(base, '?'); idx >= 0 {
		base = base[:idx]
	}
	name := base[strings.LastIndexByte(base, '/')+1:]
	if !strings.HasPrefix(name, membroID.String()) {
		return ""
	}
	return name
}
