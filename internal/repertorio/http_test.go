package repertorio

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	httpmiddleware "github.com/bandafrc/api/internal/http/middleware"
	"github.com/bandafrc/api/internal/repo"
)

func newTestRouter(svc *Service) chi.Router {
	r := chi.NewRouter()
	NewHandler(svc, 25<<20).RegisterRoutes(r)
	return r
}

func withClaims(req *http.Request, subject, papel string) *http.Request {
	ctx := context.WithValue(req.Context(), httpmiddleware.ContextKeySubject, subject)
	ctx = context.WithValue(ctx, httpmiddleware.ContextKeyPapel, papel)
	return req.WithContext(ctx)
}

func multipartBody(t *testing.T, titulo, filename string, conteudo []byte) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	if err := writer.WriteField("titulo", titulo); err != nil {
		t.Fatal(err)
	}
	if filename != "" {
		part, err := writer.CreateFormFile("ficheiro", filename)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := part.Write(conteudo); err != nil {
			t.Fatal(err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatal(err)
	}
	return &buf, writer.FormDataContentType()
}

func TestHandleCriarPartitura(t *testing.T) {
	tests := []struct {
		name       string
		papel      string
		titulo     string
		filename   string
		wantStatus int
	}{
		{"membro comum é recusado", "membro", "Dobrado", "dobrado.pdf", http.StatusForbidden},
		{"extensão errada", repo.PapelAdmin, "Dobrado", "dobrado.txt", http.StatusBadRequest},
		{"sem ficheiro", repo.PapelAdmin, "Dobrado", "", http.StatusBadRequest},
		{"criação válida", repo.PapelAdmin, "Dobrado", "dobrado.pdf", http.StatusCreated},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			stub := &stubBiblioteca{}
			router := newTestRouter(NewService(stub, &stubBlobs{}))

			body, contentType := multipartBody(t, tc.titulo, tc.filename, []byte("%PDF-1.4"))
			req := httptest.NewRequest(http.MethodPost, "/repertorio/", body)
			req.Header.Set("Content-Type", contentType)
			req = withClaims(req, uuid.NewString(), tc.papel)

			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			if rec.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d, body %s", rec.Code, tc.wantStatus, rec.Body.String())
			}
			if tc.wantStatus == http.StatusCreated && len(stub.partituras) != 1 {
				t.Fatalf("partitura não registada: %+v", stub.partituras)
			}
		})
	}
}

func TestHandleAvaliar(t *testing.T) {
	partitura := Partitura{ID: uuid.New(), Titulo: "Valsa", ArquivoKey: "pdfs/x.pdf"}

	tests := []struct {
		name       string
		target     string
		body       string
		wantStatus int
	}{
		{"classificação válida", partitura.ID.String(), `{"classificacao":4}`, http.StatusOK},
		{"fora do intervalo", partitura.ID.String(), `{"classificacao":9}`, http.StatusBadRequest},
		{"partitura inexistente", uuid.NewString(), `{"classificacao":3}`, http.StatusNotFound},
		{"json inválido", partitura.ID.String(), `{`, http.StatusBadRequest},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			stub := &stubBiblioteca{partituras: []Partitura{partitura}}
			router := newTestRouter(NewService(stub, &stubBlobs{}))

			req := httptest.NewRequest(http.MethodPut, "/repertorio/"+tc.target+"/avaliacao", strings.NewReader(tc.body))
			req.Header.Set("Content-Type", "application/json")
			req = withClaims(req, uuid.NewString(), "membro")

			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			if rec.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d, body %s", rec.Code, tc.wantStatus, rec.Body.String())
			}
		})
	}
}

func TestHandleFicheiro(t *testing.T) {
	partitura := Partitura{ID: uuid.New(), Titulo: "Valsa", ArquivoKey: "pdfs/x.pdf"}
	router := newTestRouter(NewService(&stubBiblioteca{partituras: []Partitura{partitura}}, &stubBlobs{}))

	req := httptest.NewRequest(http.MethodGet, "/repertorio/"+partitura.ID.String()+"/ficheiro", nil)
	req = withClaims(req, uuid.NewString(), "membro")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "assinado=1") {
		t.Fatalf("esperava URL assinada, body %s", rec.Body.String())
	}
}
