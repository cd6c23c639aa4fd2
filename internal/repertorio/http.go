package repertorio

import (
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	httpmiddleware "github.com/bandafrc/api/internal/http/middleware"
)

// Handler orquestra as rotas do repertório.
type Handler struct {
	service     *Service
	maxPDFBytes int64
}

func NewHandler(service *Service, maxPDFBytes int64) *Handler {
	return &Handler{service: service, maxPDFBytes: maxPDFBytes}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/repertorio", func(r chi.Router) {
		r.Get("/", h.handleListar)
		r.Get("/{id}/ficheiro", h.handleFicheiro)
		r.Put("/{id}/avaliacao", h.handleAvaliar)

		r.Group(func(admin chi.Router) {
			admin.Use(httpmiddleware.RequireAdmin)
			admin.Post("/", h.handleCriar)
			admin.Patch("/{id}", h.handleAtualizar)
			admin.Delete("/{id}", h.handleRemover)
		})
	})
}

func (h *Handler) handleListar(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	membroID, err := uuid.Parse(httpmiddleware.GetSubject(ctx))
	if err != nil {
		writeError(w, http.StatusUnauthorized, "AUTH", "identificação inválida", nil)
		return
	}

	partituras, err := h.service.Listar(ctx, membroID)
	if err != nil {
		writeInternalError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"partituras": partituras})
}

// lerFicheiro extrai o PDF do formulário multipart. Ficheiro ausente não é
// erro; quem decide se ele é obrigatório é o serviço.
func (h *Handler) lerFicheiro(r *http.Request) ([]byte, string, error) {
	file, header, err := r.FormFile("ficheiro")
	if errors.Is(err, http.ErrMissingFile) {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", errors.New("ficheiro inválido")
	}
	defer file.Close()

	if !strings.EqualFold(filepath.Ext(header.Filename), ".pdf") {
		return nil, "", errors.New("apenas ficheiros .pdf são aceites")
	}

	body, err := io.ReadAll(file)
	if err != nil {
		return nil, "", errors.New("falha ao ler ficheiro")
	}
	return body, "application/pdf", nil
}

func optionalFormValue(r *http.Request, field string) *string {
	value := strings.TrimSpace(r.FormValue(field))
	if value == "" {
		return nil
	}
	return &value
}

func (h *Handler) parseMultipart(w http.ResponseWriter, r *http.Request) bool {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxPDFBytes)
	if err := r.ParseMultipartForm(h.maxPDFBytes); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "VALIDATION", "ficheiro demasiado grande", nil)
			return false
		}
		writeError(w, http.StatusBadRequest, "VALIDATION", "formulário multipart inválido", nil)
		return false
	}
	return true
}

func (h *Handler) handleCriar(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	membroID, err := uuid.Parse(httpmiddleware.GetSubject(ctx))
	if err != nil {
		writeError(w, http.StatusUnauthorized, "AUTH", "identificação inválida", nil)
		return
	}

	if !h.parseMultipart(w, r) {
		return
	}
	defer cleanupMultipart(r.MultipartForm)

	ficheiro, contentType, err := h.lerFicheiro(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", err.Error(), nil)
		return
	}

	p, err := h.service.Criar(ctx, CriarInput{
		Titulo:      r.FormValue("titulo"),
		Autor:       optionalFormValue(r, "autor"),
		Link:        optionalFormValue(r, "link"),
		Ficheiro:    ficheiro,
		ContentType: contentType,
		MembroID:    membroID,
	})
	if err != nil {
		handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"partitura": p})
}

func (h *Handler) handleAtualizar(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "partitura inválida", nil)
		return
	}

	if !h.parseMultipart(w, r) {
		return
	}
	defer cleanupMultipart(r.MultipartForm)

	ficheiro, contentType, err := h.lerFicheiro(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", err.Error(), nil)
		return
	}

	p, err := h.service.Atualizar(ctx, AtualizarInput{
		ID:          id,
		Titulo:      r.FormValue("titulo"),
		Autor:       optionalFormValue(r, "autor"),
		Link:        optionalFormValue(r, "link"),
		Ficheiro:    ficheiro,
		ContentType: contentType,
	})
	if err != nil {
		handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"partitura": p})
}

func (h *Handler) handleRemover(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "partitura inválida", nil)
		return
	}

	if err := h.service.Remover(r.Context(), id); err != nil {
		handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "removido"})
}

func (h *Handler) handleFicheiro(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "partitura inválida", nil)
		return
	}

	url, err := h.service.SignedURL(r.Context(), id)
	if err != nil {
		handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

func (h *Handler) handleAvaliar(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	membroID, err := uuid.Parse(httpmiddleware.GetSubject(ctx))
	if err != nil {
		writeError(w, http.StatusUnauthorized, "AUTH", "identificação inválida", nil)
		return
	}

	partituraID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "partitura inválida", nil)
		return
	}

	var payload struct {
		Classificacao int `json:"classificacao"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION", "JSON inválido", nil)
		return
	}

	if err := h.service.Avaliar(ctx, membroID, partituraID, payload.Classificacao); err != nil {
		handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]int{"classificacao": payload.Classificacao})
}

func cleanupMultipart(form *multipart.Form) {
	if form != nil {
		_ = form.RemoveAll()
	}
}

func handleDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrClassificacaoInvalida),
		errors.Is(err, ErrFicheiroObrigatorio),
		errors.Is(err, ErrTituloObrigatorio):
		writeError(w, http.StatusBadRequest, "VALIDATION", err.Error(), nil)
	case errors.Is(err, errNotFound):
		writeError(w, http.StatusNotFound, "NOT_FOUND", "registro não encontrado", nil)
	default:
		writeInternalError(w, err)
	}
}

func writeInternalError(w http.ResponseWriter, err error) {
	log.Error().Err(err).Msg("repertorio handler error")
	writeError(w, http.StatusInternalServerError, "INTERNAL", "erro interno", nil)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"data": payload, "error": nil})
}

func writeError(w http.ResponseWriter, status int, code, message string, details interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	body := map[string]any{
		"data": nil,
		"error": map[string]any{
			"code":    code,
			"message": message,
		},
	}
	if details != nil {
		body["error"].(map[string]any)["details"] = details
	}
	_ = json.NewEncoder(w).Encode(body)
}
