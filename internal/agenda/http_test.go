package agenda

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	httpmiddleware "github.com/bandafrc/api/internal/http/middleware"
	"github.com/bandafrc/api/internal/realtime"
	"github.com/bandafrc/api/internal/repo"
)

func newTestRouter(svc *Service) chi.Router {
	r := chi.NewRouter()
	NewHandler(svc).RegisterRoutes(r)
	return r
}

func authedRequest(method, target, body, subject, papel string) *http.Request {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	ctx := context.WithValue(req.Context(), httpmiddleware.ContextKeySubject, subject)
	ctx = context.WithValue(ctx, httpmiddleware.ContextKeyPapel, papel)
	return req.WithContext(ctx)
}

func TestHandleListEventos(t *testing.T) {
	membroID := uuid.New()
	ev := Evento{ID: uuid.New(), Titulo: "Ensaio", Data: dia("2026-09-05")}
	stub := &stubCalendarRepo{
		eventos:   []Evento{ev},
		respostas: map[uuid.UUID]string{ev.ID: RespostaSim},
	}
	router := newTestRouter(NewService(stub, nil, &stubNotificador{}))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(http.MethodGet, "/eventos/", "", membroID.String(), "membro"))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Data struct {
			Eventos []eventoDTO `json:"eventos"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Data.Eventos) != 1 {
		t.Fatalf("esperava 1 evento, obtive %d", len(resp.Data.Eventos))
	}
	got := resp.Data.Eventos[0]
	if got.Data != "2026-09-05" {
		t.Fatalf("data = %q", got.Data)
	}
	if got.Resposta == nil || *got.Resposta != RespostaSim {
		t.Fatalf("resposta = %v", got.Resposta)
	}
}

func TestHandleResponderPresenca(t *testing.T) {
	membroID := uuid.New()
	futuro := Evento{ID: uuid.New(), Titulo: "Concerto", Data: time.Now().UTC().AddDate(0, 1, 0)}
	passado := Evento{ID: uuid.New(), Titulo: "Ensaio antigo", Data: dia("2020-01-01")}

	tests := []struct {
		name       string
		eventoID   string
		body       string
		wantStatus int
	}{
		{"resposta sim", futuro.ID.String(), `{"resposta":"sim"}`, http.StatusOK},
		{"resposta invalida", futuro.ID.String(), `{"resposta":"talvez"}`, http.StatusBadRequest},
		{"evento passado", passado.ID.String(), `{"resposta":"sim"}`, http.StatusConflict},
		{"evento inexistente", uuid.NewString(), `{"resposta":"sim"}`, http.StatusNotFound},
		{"id invalido", "abc", `{"resposta":"sim"}`, http.StatusBadRequest},
		{"json invalido", futuro.ID.String(), `{`, http.StatusBadRequest},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			stub := &stubCalendarRepo{eventos: []Evento{futuro, passado}}
			router := newTestRouter(NewService(stub, nil, &stubNotificador{}))

			rec := httptest.NewRecorder()
			req := authedRequest(http.MethodPut, "/eventos/"+tc.eventoID+"/presenca", tc.body, membroID.String(), "membro")
			router.ServeHTTP(rec, req)

			if rec.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d, body %s", rec.Code, tc.wantStatus, rec.Body.String())
			}
		})
	}
}

func TestHandleCriarEventoExigeAdmin(t *testing.T) {
	stub := &stubCalendarRepo{}
	router := newTestRouter(NewService(stub, nil, &stubNotificador{}))
	body := `{"titulo":"Concerto","data":"2026-10-01"}`

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(http.MethodPost, "/eventos/", body, uuid.NewString(), "membro"))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("membro comum: status = %d, want 403", rec.Code)
	}
	if len(stub.eventos) != 0 {
		t.Fatalf("evento não deveria ter sido criado")
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(http.MethodPost, "/eventos/", body, uuid.NewString(), repo.PapelAdmin))
	if rec.Code != http.StatusCreated {
		t.Fatalf("admin: status = %d, body %s", rec.Code, rec.Body.String())
	}
	if len(stub.eventos) != 1 || stub.eventos[0].Titulo != "Concerto" {
		t.Fatalf("evento não criado: %+v", stub.eventos)
	}
}

func TestHandleCriarEventoDataInvalida(t *testing.T) {
	router := newTestRouter(NewService(&stubCalendarRepo{}, nil, &stubNotificador{}))

	rec := httptest.NewRecorder()
	req := authedRequest(http.MethodPost, "/eventos/", `{"titulo":"X","data":"01/10/2026"}`, uuid.NewString(), repo.PapelAdmin)
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
}

func TestHandleResumoPresencas(t *testing.T) {
	membroID := uuid.New()
	passado := Evento{ID: uuid.New(), Titulo: "Ensaio", Data: dia("2024-01-10")}
	stub := &stubCalendarRepo{
		eventos:   []Evento{passado},
		respostas: map[uuid.UUID]string{passado.ID: RespostaSim},
	}
	router := newTestRouter(NewService(stub, nil, &stubNotificador{}))

	rec := httptest.NewRecorder()
	req := authedRequest(http.MethodGet, "/membros/"+membroID.String()+"/presencas/", "", membroID.String(), "membro")
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Data struct {
			Comparecimentos int `json:"comparecimentos"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Data.Comparecimentos != 1 {
		t.Fatalf("comparecimentos = %d, want 1", resp.Data.Comparecimentos)
	}
}

func TestHandleRegistarPresencaAdmin(t *testing.T) {
	membroID := uuid.New()
	passado := Evento{ID: uuid.New(), Titulo: "Ensaio antigo", Data: dia("2020-01-01")}
	stub := &stubCalendarRepo{eventos: []Evento{passado}}
	router := newTestRouter(NewService(stub, nil, &stubNotificador{}))

	target := "/membros/" + membroID.String() + "/presencas/" + passado.ID.String()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(http.MethodPut, target, `{"resposta":"sim"}`, uuid.NewString(), "membro"))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("membro comum: status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(http.MethodPut, target, `{"resposta":"sim"}`, uuid.NewString(), repo.PapelAdmin))
	if rec.Code != http.StatusOK {
		t.Fatalf("admin: status = %d, body %s", rec.Code, rec.Body.String())
	}
	if stub.respostas[passado.ID] != RespostaSim {
		t.Fatalf("resposta não gravada: %v", stub.respostas)
	}
}

// streamNotificador entrega um canal controlado pelo teste.
type streamNotificador struct {
	ch        chan realtime.Mudanca
	cancelado bool
}

func (s *streamNotificador) Publish(context.Context, realtime.Mudanca) error { return nil }

func (s *streamNotificador) Subscribe() (<-chan realtime.Mudanca, func()) {
	return s.ch, func() { s.cancelado = true }
}

func TestHandleStreamEmiteMudancas(t *testing.T) {
	notifier := &streamNotificador{ch: make(chan realtime.Mudanca, 8)}
	router := newTestRouter(NewService(&stubCalendarRepo{}, nil, notifier))

	eventoID := uuid.NewString()
	notifier.ch <- realtime.Mudanca{Tipo: realtime.MudancaCriado, EventoID: eventoID, Titulo: "Concerto", Data: "2026-12-20"}
	close(notifier.ch)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(http.MethodGet, "/eventos/stream", "", uuid.NewString(), "membro"))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q", ct)
	}

	body := rec.Body.String()
	if !strings.Contains(body, "event: mudanca\n") {
		t.Fatalf("frame sem nome de evento: %q", body)
	}
	inicio := strings.Index(body, "data: ")
	if inicio < 0 {
		t.Fatalf("frame sem data: %q", body)
	}
	linha := body[inicio+len("data: "):]
	linha = linha[:strings.Index(linha, "\n")]

	var m realtime.Mudanca
	if err := json.Unmarshal([]byte(linha), &m); err != nil {
		t.Fatalf("payload inválido %q: %v", linha, err)
	}
	if m.Tipo != realtime.MudancaCriado || m.EventoID != eventoID || m.Titulo != "Concerto" {
		t.Fatalf("mudança inesperada: %+v", m)
	}
	if !notifier.cancelado {
		t.Fatal("subscrição não libertada no fim da ligação")
	}
}

func TestHandleStreamTerminaAoDesligarCliente(t *testing.T) {
	notifier := &streamNotificador{ch: make(chan realtime.Mudanca)}
	router := newTestRouter(NewService(&stubCalendarRepo{}, nil, notifier))

	req := authedRequest(http.MethodGet, "/eventos/stream", "", uuid.NewString(), "membro")
	ctx, cancelar := context.WithCancel(req.Context())
	req = req.WithContext(ctx)

	rec := httptest.NewRecorder()
	terminou := make(chan struct{})
	go func() {
		router.ServeHTTP(rec, req)
		close(terminou)
	}()

	cancelar()

	select {
	case <-terminou:
	case <-time.After(2 * time.Second):
		t.Fatal("handler não terminou após o cliente desligar")
	}
	if !notifier.cancelado {
		t.Fatal("subscrição não libertada após o cliente desligar")
	}
}
