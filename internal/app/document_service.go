package app

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"orgrag/internal/ai"
	"orgrag/internal/model"
	"orgrag/internal/pkg/extract"
	"orgrag/internal/pkg/textsplit"
	"orgrag/internal/vectorstore"
)

const (
	itemTypeFileChunk = "file_chunk"
	itemTypeFileQA    = "file_qa"
)

type IngestConfig struct {
	MaxFileBytes      int
	ChunkSize         int
	ChunkOverlap      int
	BatchSize         int
	BatchPause        time.Duration
	QAMaxFileBytes    int
	QAContextChunks   int
	TableRowsPerChunk int
}

type DocumentService struct {
	docs      DocumentStore
	embedder  Embedder
	store     VectorStore
	generator ai.Generator
	cfg       IngestConfig
	logger    *slog.Logger
}

type IngestInput struct {
	OrganizationID uint
	UserID         uint
	Filename       string
	MimeType       string
	Data           []byte
}

type QAPair struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

type IngestResult struct {
	FileName     string         `json:"fileName"`
	FileSize     int            `json:"fileSize"`
	ChunksStored int            `json:"chunksStored"`
	QA           *QAPair        `json:"qa,omitempty"`
	Document     model.Document `json:"document"`
}

type storedChunk struct {
	id   string
	text string
}

func NewDocumentService(
	docs DocumentStore,
	embedder Embedder,
	store VectorStore,
	generator ai.Generator,
	cfg IngestConfig,
	logger *slog.Logger,
) *DocumentService {
	if cfg.MaxFileBytes <= 0 {
		cfg.MaxFileBytes = 10 << 20
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 1000
	}
	if cfg.ChunkOverlap < 0 || cfg.ChunkOverlap >= cfg.ChunkSize {
		cfg.ChunkOverlap = 0
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 5
	}
	if cfg.BatchPause < 0 {
		cfg.BatchPause = 0
	}
	if cfg.QAContextChunks <= 0 {
		cfg.QAContextChunks = 3
	}
	if cfg.TableRowsPerChunk <= 0 {
		cfg.TableRowsPerChunk = 50
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DocumentService{
		docs:      docs,
		embedder:  embedder,
		store:     store,
		generator: generator,
		cfg:       cfg,
		logger:    logger,
	}
}

// Ingest validates, extracts, chunks, embeds and stores one upload, then
// records its metadata. Chunk-level failures are skipped; the result tells
// how many chunks made it. The caller's cancellation is not observed once
// validation passes.
func (s *DocumentService) Ingest(ctx context.Context, input IngestInput) (*IngestResult, error) {
	ctx = context.WithoutCancel(ctx)

	filename := strings.TrimSpace(input.Filename)
	if input.OrganizationID == 0 || input.UserID == 0 || filename == "" || len(input.Data) == 0 {
		return nil, ErrInvalidInput
	}
	if len(input.Data) > s.cfg.MaxFileBytes {
		return nil, ErrFileTooLarge
	}
	mimeType := extract.Normalize(input.MimeType, filename)
	if !extract.Supported(mimeType) {
		return nil, ErrUnsupportedType
	}
	exists, err := s.docs.ExistsByFilename(input.OrganizationID, filename)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrDuplicateFilename
	}

	log := s.logger.With("org_id", input.OrganizationID, "filename", filename)
	collection := vectorstore.OrgDocsCollection(input.OrganizationID)

	chunks := s.chunkDocument(log, filename, mimeType, input.Data)
	stored := s.storeChunks(ctx, log, collection, chunks)

	ids := make([]string, 0, len(stored)+1)
	for _, c := range stored {
		ids = append(ids, c.id)
	}

	var qa *QAPair
	if len(input.Data) < s.cfg.QAMaxFileBytes && len(stored) > 0 {
		var qaID string
		qa, qaID = s.generateQA(ctx, log, collection, filename, stored)
		if qaID != "" {
			ids = append(ids, qaID)
		}
	}

	doc := &model.Document{
		OrganizationID: input.OrganizationID,
		UploadedBy:     input.UserID,
		Filename:       filename,
		DocType:        extract.DocType(mimeType),
		MimeType:       mimeType,
		FileSize:       int64(len(input.Data)),
		Status:         model.DocumentStatusProcessed,
		ChunkCount:     len(stored),
	}
	if len(stored) == 0 {
		doc.Status = model.DocumentStatusEmpty
	}
	doc.SetChunkIDs(ids)
	if err := s.docs.Create(doc); err != nil {
		if delErr := s.store.Delete(ctx, collection, ids); delErr != nil {
			log.Warn("cleanup of vectors after failed document insert failed", "ids", len(ids), "err", delErr)
		}
		return nil, err
	}

	log.Info("document ingested", "document_id", doc.ID, "chunks", len(chunks), "stored", len(stored))
	return &IngestResult{
		FileName:     filename,
		FileSize:     len(input.Data),
		ChunksStored: len(stored),
		QA:           qa,
		Document:     *doc,
	}, nil
}

// chunkDocument turns the upload into chunks. Tabular files become blocks of
// "key: value" rows; everything else goes through the text splitter. An
// unreadable file yields a single placeholder chunk.
func (s *DocumentService) chunkDocument(log *slog.Logger, filename, mimeType string, data []byte) []textsplit.Chunk {
	var chunks []textsplit.Chunk
	var err error
	if extract.IsTabular(mimeType) {
		var rows []string
		rows, err = extract.Rows(data, mimeType)
		for i, block := range extract.GroupRows(rows, s.cfg.TableRowsPerChunk) {
			chunks = append(chunks, textsplit.Chunk{Text: block, SourceID: filename, SequenceIndex: i})
		}
	} else {
		var text string
		text, err = extract.Text(data, mimeType)
		chunks = textsplit.SplitDocument(filename, text, s.cfg.ChunkSize, s.cfg.ChunkOverlap)
	}
	if err != nil {
		log.Warn("text extraction failed, storing placeholder", "mime_type", mimeType, "err", err)
		return []textsplit.Chunk{placeholderChunk(filename, mimeType)}
	}
	if len(chunks) == 0 {
		log.Warn("no text extracted, storing placeholder", "mime_type", mimeType)
		return []textsplit.Chunk{placeholderChunk(filename, mimeType)}
	}
	return chunks
}

func placeholderChunk(filename, mimeType string) textsplit.Chunk {
	text := fmt.Sprintf("Document %q (%s) was uploaded, but its text could not be extracted.",
		filename, extract.DocType(mimeType))
	return textsplit.Chunk{Text: text, SourceID: filename}
}

// storeChunks embeds and upserts chunks one by one in fixed-size batches,
// pausing between batches. A chunk whose embedding or upsert fails is skipped.
func (s *DocumentService) storeChunks(ctx context.Context, log *slog.Logger, collection string, chunks []textsplit.Chunk) []storedChunk {
	stored := make([]storedChunk, 0, len(chunks))
	limiter := rate.NewLimiter(rate.Every(s.cfg.BatchPause), 1)

	for start := 0; start < len(chunks); start += s.cfg.BatchSize {
		if err := limiter.Wait(ctx); err != nil {
			log.Warn("batch pacing interrupted", "err", err)
		}
		end := min(start+s.cfg.BatchSize, len(chunks))

		for _, chunk := range chunks[start:end] {
			if strings.TrimSpace(chunk.Text) == "" {
				continue
			}
			vec := s.embedder.Embed(ctx, chunk.Text)
			if vec == nil {
				log.Warn("skipping chunk with no embedding", "chunk_index", chunk.SequenceIndex)
				continue
			}
			item := vectorstore.StoredItem{
				ID:        uuid.NewString(),
				Document:  chunk.Text,
				Embedding: vec,
				Metadata: map[string]string{
					"type":       itemTypeFileChunk,
					"filename":   chunk.SourceID,
					"chunkIndex": strconv.Itoa(chunk.SequenceIndex),
				},
			}
			if err := s.store.Upsert(ctx, collection, []vectorstore.StoredItem{item}); err != nil {
				log.Warn("skipping chunk that failed to store", "chunk_index", chunk.SequenceIndex, "err", err)
				continue
			}
			stored = append(stored, storedChunk{id: item.ID, text: chunk.Text})
		}
		log.Debug("ingest batch done", "processed", end, "total", len(chunks), "stored", len(stored))
	}
	return stored
}

// generateQA asks the generator for one question/answer pair about the first
// stored chunks and stores it as an extra item. It returns the pair and the
// stored item id; either may be empty.
func (s *DocumentService) generateQA(ctx context.Context, log *slog.Logger, collection, filename string, stored []storedChunk) (*QAPair, string) {
	if s.generator == nil {
		return nil, ""
	}
	n := min(s.cfg.QAContextChunks, len(stored))
	parts := make([]string, 0, n)
	for _, c := range stored[:n] {
		parts = append(parts, c.text)
	}

	messages := promptMessages(DefaultSystemPrompt, fmt.Sprintf(qaPromptTemplate, strings.Join(parts, "\n\n")))
	text, err := s.generator.Complete(ctx, messages)
	if err != nil {
		log.Warn("qa generation failed", "err", err)
		return nil, ""
	}
	question, answer, ok := parseQA(text)
	if !ok {
		log.Warn("qa generation returned an unusable answer")
		return nil, ""
	}
	qa := &QAPair{Question: question, Answer: answer}

	qaText := "Question: " + question + "\nAnswer: " + answer
	vec := s.embedder.Embed(ctx, qaText)
	if vec == nil {
		return qa, ""
	}
	item := vectorstore.StoredItem{
		ID:        uuid.NewString(),
		Document:  qaText,
		Embedding: vec,
		Metadata: map[string]string{
			"type":     itemTypeFileQA,
			"filename": filename,
		},
	}
	if err := s.store.Upsert(ctx, collection, []vectorstore.StoredItem{item}); err != nil {
		log.Warn("store qa item failed", "err", err)
		return qa, ""
	}
	return qa, item.ID
}

func (s *DocumentService) ListDocuments(orgID uint) ([]model.Document, error) {
	if orgID == 0 {
		return nil, ErrInvalidInput
	}
	return s.docs.ListByOrganization(orgID)
}

// DeleteDocument removes the document's vectors first. If that fails the
// metadata record is kept so the ids are not lost.
func (s *DocumentService) DeleteDocument(ctx context.Context, orgID, docID uint) error {
	if orgID == 0 || docID == 0 {
		return ErrInvalidInput
	}
	doc, err := s.docs.GetByIDAndOrganization(docID, orgID)
	if err != nil {
		return err
	}
	if doc == nil {
		return ErrDocumentNotFound
	}

	// Without the ids the vectors cannot be found again, so the record stays.
	ids, err := doc.ChunkIDList()
	if err != nil {
		s.logger.Error("document chunk ids unreadable", "document_id", docID, "err", err)
		return fmt.Errorf("%w: %v", ErrVectorDelete, err)
	}
	if err := s.store.Delete(ctx, vectorstore.OrgDocsCollection(orgID), ids); err != nil {
		s.logger.Warn("delete document vectors failed", "document_id", docID, "err", err)
		return fmt.Errorf("%w: %v", ErrVectorDelete, err)
	}
	return s.docs.DeleteByIDAndOrganization(docID, orgID)
}
