package repertorio

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/bandafrc/api/internal/storage"
)

func TestMediaPorPartitura(t *testing.T) {
	partituraA := uuid.New()
	partituraB := uuid.New()
	membro1 := uuid.New()
	membro2 := uuid.New()

	tests := []struct {
		name       string
		avaliacoes []Avaliacao
		want       map[uuid.UUID]float64
	}{
		{
			name: "média de duas classificações",
			avaliacoes: []Avaliacao{
				{PartituraID: partituraA, MembroID: membro1, Classificacao: 4},
				{PartituraID: partituraA, MembroID: membro2, Classificacao: 2},
			},
			want: map[uuid.UUID]float64{partituraA: 3.0},
		},
		{
			name:       "sem avaliações não há chave",
			avaliacoes: nil,
			want:       map[uuid.UUID]float64{},
		},
		{
			name: "partituras independentes",
			avaliacoes: []Avaliacao{
				{PartituraID: partituraA, MembroID: membro1, Classificacao: 5},
				{PartituraID: partituraB, MembroID: membro1, Classificacao: 1},
			},
			want: map[uuid.UUID]float64{partituraA: 5.0, partituraB: 1.0},
		},
		{
			name: "média fracionária",
			avaliacoes: []Avaliacao{
				{PartituraID: partituraA, MembroID: membro1, Classificacao: 5},
				{PartituraID: partituraA, MembroID: membro2, Classificacao: 4},
			},
			want: map[uuid.UUID]float64{partituraA: 4.5},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := MediaPorPartitura(tc.avaliacoes)
			if len(got) != len(tc.want) {
				t.Fatalf("tamanho = %d, want %d", len(got), len(tc.want))
			}
			for id, media := range tc.want {
				if got[id] != media {
					t.Fatalf("média de %s = %v, want %v", id, got[id], media)
				}
			}
		})
	}
}

type stubBiblioteca struct {
	partituras []Partitura
	avaliacoes []Avaliacao
	createErr  error
	upserts    int
}

func (s *stubBiblioteca) ListPartituras(context.Context) ([]Partitura, error) {
	return s.partituras, nil
}

func (s *stubBiblioteca) GetPartitura(_ context.Context, id uuid.UUID) (Partitura, error) {
	for _, p := range s.partituras {
		if p.ID == id {
			return p, nil
		}
	}
	return Partitura{}, errNotFound
}

func (s *stubBiblioteca) CreatePartitura(_ context.Context, params CreatePartituraParams) (Partitura, error) {
	if s.createErr != nil {
		return Partitura{}, s.createErr
	}
	p := Partitura{
		ID:         uuid.New(),
		Titulo:     params.Titulo,
		Autor:      params.Autor,
		Link:       params.Link,
		ArquivoKey: params.ArquivoKey,
		MembroID:   params.MembroID,
		CriadoEm:   time.Now(),
	}
	s.partituras = append(s.partituras, p)
	return p, nil
}

func (s *stubBiblioteca) UpdatePartitura(_ context.Context, params UpdatePartituraParams) (Partitura, error) {
	for i, p := range s.partituras {
		if p.ID == params.ID {
			s.partituras[i].Titulo = params.Titulo
			s.partituras[i].Autor = params.Autor
			s.partituras[i].Link = params.Link
			s.partituras[i].ArquivoKey = params.ArquivoKey
			return s.partituras[i], nil
		}
	}
	return Partitura{}, errNotFound
}

func (s *stubBiblioteca) DeletePartitura(_ context.Context, id uuid.UUID) error {
	for i, p := range s.partituras {
		if p.ID == id {
			s.partituras = append(s.partituras[:i], s.partituras[i+1:]...)
			return nil
		}
	}
	return errNotFound
}

func (s *stubBiblioteca) UpsertAvaliacao(_ context.Context, membroID, partituraID uuid.UUID, classificacao int) error {
	s.upserts++
	for i, a := range s.avaliacoes {
		if a.MembroID == membroID && a.PartituraID == partituraID {
			s.avaliacoes[i].Classificacao = classificacao
			return nil
		}
	}
	s.avaliacoes = append(s.avaliacoes, Avaliacao{PartituraID: partituraID, MembroID: membroID, Classificacao: classificacao})
	return nil
}

func (s *stubBiblioteca) ListAvaliacoes(context.Context) ([]Avaliacao, error) {
	return s.avaliacoes, nil
}

type stubBlobs struct {
	uploads   []string
	removidos []string
	uploadErr error
}

func (s *stubBlobs) Upload(_ context.Context, input storage.UploadInput) (*storage.UploadResult, error) {
	if s.uploadErr != nil {
		return nil, s.uploadErr
	}
	s.uploads = append(s.uploads, input.Key)
	return &storage.UploadResult{URL: "https://cdn.example/" + input.Key}, nil
}

func (s *stubBlobs) Remove(_ context.Context, key string) error {
	s.removidos = append(s.removidos, key)
	return nil
}

func (s *stubBlobs) PresignGet(key string, _ time.Duration) (string, error) {
	return "https://cdn.example/" + key + "?assinado=1", nil
}

func TestListarAgregaMedias(t *testing.T) {
	membro := uuid.New()
	outro := uuid.New()
	comNotas := Partitura{ID: uuid.New(), Titulo: "Marcha nupcial", ArquivoKey: "pdfs/a.pdf"}
	semNotas := Partitura{ID: uuid.New(), Titulo: "Hino da banda", ArquivoKey: "pdfs/b.pdf"}

	repo := &stubBiblioteca{
		partituras: []Partitura{comNotas, semNotas},
		avaliacoes: []Avaliacao{
			{PartituraID: comNotas.ID, MembroID: membro, Classificacao: 4},
			{PartituraID: comNotas.ID, MembroID: outro, Classificacao: 2},
		},
	}
	svc := NewService(repo, &stubBlobs{})

	lista, err := svc.Listar(context.Background(), membro)
	if err != nil {
		t.Fatalf("listar: %v", err)
	}
	if len(lista) != 2 {
		t.Fatalf("esperava 2 partituras, obtive %d", len(lista))
	}

	byID := make(map[uuid.UUID]PartituraComMedia)
	for _, p := range lista {
		byID[p.ID] = p
	}

	avaliada := byID[comNotas.ID]
	if avaliada.Media == nil || *avaliada.Media != 3.0 {
		t.Fatalf("média = %v, want 3.0", avaliada.Media)
	}
	if avaliada.MinhaClassificacao == nil || *avaliada.MinhaClassificacao != 4 {
		t.Fatalf("minha classificação = %v, want 4", avaliada.MinhaClassificacao)
	}
	if avaliada.TotalAvaliacoes != 2 {
		t.Fatalf("total = %d, want 2", avaliada.TotalAvaliacoes)
	}

	vazia := byID[semNotas.ID]
	if vazia.Media != nil {
		t.Fatalf("partitura sem avaliações deveria ter média nula, obtive %v", *vazia.Media)
	}
	if vazia.MinhaClassificacao != nil {
		t.Fatalf("classificação própria deveria ser nula")
	}
}

func TestCriarCompensaInsercaoFalhada(t *testing.T) {
	repo := &stubBiblioteca{createErr: errors.New("deadlock")}
	blobs := &stubBlobs{}
	svc := NewService(repo, blobs)

	_, err := svc.Criar(context.Background(), CriarInput{
		Titulo:      "Dobrado",
		Ficheiro:    []byte("%PDF-1.4"),
		ContentType: "application/pdf",
		MembroID:    uuid.New(),
	})
	if err == nil {
		t.Fatal("esperava erro de inserção")
	}
	if len(blobs.uploads) != 1 {
		t.Fatalf("esperava 1 upload, obtive %d", len(blobs.uploads))
	}
	if len(blobs.removidos) != 1 || blobs.removidos[0] != blobs.uploads[0] {
		t.Fatalf("objeto órfão não removido: %v", blobs.removidos)
	}
}

func TestCriarValidacoes(t *testing.T) {
	svc := NewService(&stubBiblioteca{}, &stubBlobs{})

	_, err := svc.Criar(context.Background(), CriarInput{Titulo: " ", Ficheiro: []byte("x")})
	if err != ErrTituloObrigatorio {
		t.Fatalf("título vazio: esperava ErrTituloObrigatorio, obtive %v", err)
	}

	_, err = svc.Criar(context.Background(), CriarInput{Titulo: "Dobrado"})
	if err != ErrFicheiroObrigatorio {
		t.Fatalf("sem ficheiro: esperava ErrFicheiroObrigatorio, obtive %v", err)
	}
}

func TestAtualizarSubstituiFicheiro(t *testing.T) {
	original := Partitura{ID: uuid.New(), Titulo: "Valsa", ArquivoKey: "pdfs/antigo.pdf"}
	repo := &stubBiblioteca{partituras: []Partitura{original}}
	blobs := &stubBlobs{}
	svc := NewService(repo, blobs)

	p, err := svc.Atualizar(context.Background(), AtualizarInput{
		ID:          original.ID,
		Titulo:      "Valsa n.º 2",
		Ficheiro:    []byte("%PDF-1.4"),
		ContentType: "application/pdf",
	})
	if err != nil {
		t.Fatalf("atualizar: %v", err)
	}
	if p.ArquivoKey == original.ArquivoKey {
		t.Fatal("chave do ficheiro deveria ter mudado")
	}
	if len(blobs.removidos) != 1 || blobs.removidos[0] != original.ArquivoKey {
		t.Fatalf("objeto antigo não removido: %v", blobs.removidos)
	}
}

func TestAtualizarSemFicheiroMantemChave(t *testing.T) {
	original := Partitura{ID: uuid.New(), Titulo: "Valsa", ArquivoKey: "pdfs/antigo.pdf"}
	repo := &stubBiblioteca{partituras: []Partitura{original}}
	blobs := &stubBlobs{}
	svc := NewService(repo, blobs)

	p, err := svc.Atualizar(context.Background(), AtualizarInput{ID: original.ID, Titulo: "Valsa lenta"})
	if err != nil {
		t.Fatalf("atualizar: %v", err)
	}
	if p.ArquivoKey != original.ArquivoKey {
		t.Fatalf("chave = %q, want %q", p.ArquivoKey, original.ArquivoKey)
	}
	if len(blobs.removidos) != 0 {
		t.Fatalf("nada deveria ter sido removido: %v", blobs.removidos)
	}
}

func TestAvaliar(t *testing.T) {
	partitura := Partitura{ID: uuid.New(), Titulo: "Dobrado", ArquivoKey: "pdfs/c.pdf"}
	repo := &stubBiblioteca{partituras: []Partitura{partitura}}
	svc := NewService(repo, &stubBlobs{})
	membro := uuid.New()

	for _, invalida := range []int{0, 6, -1} {
		if err := svc.Avaliar(context.Background(), membro, partitura.ID, invalida); err != ErrClassificacaoInvalida {
			t.Fatalf("classificação %d: esperava ErrClassificacaoInvalida, obtive %v", invalida, err)
		}
	}

	if err := svc.Avaliar(context.Background(), membro, partitura.ID, 5); err != nil {
		t.Fatalf("avaliar: %v", err)
	}

	// repetir substitui em vez de duplicar
	if err := svc.Avaliar(context.Background(), membro, partitura.ID, 2); err != nil {
		t.Fatalf("reavaliar: %v", err)
	}
	if len(repo.avaliacoes) != 1 {
		t.Fatalf("esperava 1 avaliação, obtive %d", len(repo.avaliacoes))
	}
	if repo.avaliacoes[0].Classificacao != 2 {
		t.Fatalf("classificação = %d, want 2", repo.avaliacoes[0].Classificacao)
	}

	if err := svc.Avaliar(context.Background(), membro, uuid.New(), 3); err != errNotFound {
		t.Fatalf("partitura inexistente: esperava errNotFound, obtive %v", err)
	}
}

func TestRemoverApagaObjeto(t *testing.T) {
	partitura := Partitura{ID: uuid.New(), Titulo: "Dobrado", ArquivoKey: "pdfs/d.pdf"}
	repo := &stubBiblioteca{partituras: []Partitura{partitura}}
	blobs := &stubBlobs{}
	svc := NewService(repo, blobs)

	if err := svc.Remover(context.Background(), partitura.ID); err != nil {
		t.Fatalf("remover: %v", err)
	}
	if len(repo.partituras) != 0 {
		t.Fatal("linha não removida")
	}
	if len(blobs.removidos) != 1 || blobs.removidos[0] != partitura.ArquivoKey {
		t.Fatalf("PDF não removido do bucket: %v", blobs.removidos)
	}
}

func TestSignedURL(t *testing.T) {
	partitura := Partitura{ID: uuid.New(), Titulo: "Dobrado", ArquivoKey: "pdfs/e.pdf"}
	svc := NewService(&stubBiblioteca{partituras: []Partitura{partitura}}, &stubBlobs{})

	url, err := svc.SignedURL(context.Background(), partitura.ID)
	if err != nil {
		t.Fatalf("signed url: %v", err)
	}
	if url != "https://cdn.example/pdfs/e.pdf?assinado=1" {
		t.Fatalf("url = %q", url)
	}

	if _, err := svc.SignedURL(context.Background(), uuid.New()); err != errNotFound {
		t.Fatalf("esperava errNotFound, obtive %v", err)
	}
}
