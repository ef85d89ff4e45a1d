// Package ingest runs the background document pipeline: extract, classify,
// chunk, embed, index.
package ingest

import (
	"context"
	"fmt"
	"io"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/docuchat/docuchat/internal/ai"
	"github.com/docuchat/docuchat/internal/chunker"
	"github.com/docuchat/docuchat/internal/extract"
	"github.com/docuchat/docuchat/internal/models"
	"github.com/docuchat/docuchat/internal/store"
	"github.com/docuchat/docuchat/internal/vectorstore"
	"github.com/docuchat/docuchat/pkg/logger"
	"github.com/docuchat/docuchat/pkg/queue"
	"github.com/docuchat/docuchat/pkg/storage"
)

// Options tunes pipeline behavior.
type Options struct {
	// EmbedWorkers bounds concurrent embedding calls per document.
	EmbedWorkers int
	// StageTimeout bounds each model-backed stage. Zero means no limit.
	StageTimeout time.Duration
	// LockTTL bounds how long a crashed worker holds a document claim.
	LockTTL time.Duration
}

func (o *Options) defaults() {
	if o.EmbedWorkers <= 0 {
		o.EmbedWorkers = 4
	}
	if o.LockTTL == 0 {
		o.LockTTL = 15 * time.Minute
	}
}

// Pipeline processes one document at a time through every ingestion stage.
// Failures are recorded on the document with the stage that produced them;
// the pipeline itself returns an error only for infrastructure problems worth
// retrying.
type Pipeline struct {
	docs       store.DocumentStore
	files      storage.Storage
	extractor  *extract.Extractor
	classifier *ai.Classifier
	chunker    *chunker.Chunker
	embedder   ai.Embedder
	vectors    vectorstore.Store
	lock       queue.Lock
	logger     logger.Logger
	opts       Options
}

func NewPipeline(
	docs store.DocumentStore,
	files storage.Storage,
	extractor *extract.Extractor,
	classifier *ai.Classifier,
	chk *chunker.Chunker,
	embedder ai.Embedder,
	vectors vectorstore.Store,
	lock queue.Lock,
	log logger.Logger,
	opts Options,
) *Pipeline {
	opts.defaults()
	return &Pipeline{
		docs:       docs,
		files:      files,
		extractor:  extractor,
		classifier: classifier,
		chunker:    chk,
		embedder:   embedder,
		vectors:    vectors,
		lock:       lock,
		logger:     log.Named("ingest"),
		opts:       opts,
	}
}

// Process runs the full pipeline for the document. A document that was
// deleted before or during the run is abandoned quietly, including removing
// any vectors this run already wrote.
func (p *Pipeline) Process(ctx context.Context, documentID string) error {
	log := p.logger.With(logger.String("documentId", documentID))

	if p.lock != nil {
		ok, err := p.lock.Acquire(ctx, documentID, p.opts.LockTTL)
		if err != nil {
			return fmt.Errorf("acquire lock: %w", err)
		}
		if !ok {
			log.Warn("Document already claimed by another worker, skipping")
			return nil
		}
		defer func() {
			if err := p.lock.Release(context.WithoutCancel(ctx), documentID); err != nil {
				log.Error("Failed to release processing lock", logger.Error(err))
			}
		}()
	}

	doc, err := p.docs.GetDocument(ctx, documentID)
	if err == models.ErrNotFound {
		log.Info("Document deleted before processing, skipping")
		return nil
	}
	if err != nil {
		return fmt.Errorf("load document: %w", err)
	}

	ok, err := p.docs.MarkProcessing(ctx, documentID)
	if err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}
	if !ok {
		log.Warn("Document not claimable, skipping")
		return nil
	}
	log.Info("Processing document", logger.String("filename", doc.OriginalFilename))

	text, err := p.extractText(ctx, doc)
	if err != nil {
		return p.fail(ctx, log, documentID, models.StageExtract, err)
	}

	documentType, fields, err := p.classify(ctx, text)
	if err != nil {
		return p.fail(ctx, log, documentID, models.StageClassify, err)
	}
	log.Info("Document classified", logger.String("documentType", documentType))

	chunks := p.chunker.Chunk(text)
	if len(chunks) > 0 {
		embedded, err := p.embedChunks(ctx, doc, documentType, chunks)
		if err != nil {
			return p.fail(ctx, log, documentID, models.StageEmbed, err)
		}
		if err := p.index(ctx, embedded); err != nil {
			return p.fail(ctx, log, documentID, models.StagePersist, err)
		}
	}

	metadata := map[string]any{
		"chunkCount": len(chunks),
		"textLength": len(text),
	}
	ok, err = p.docs.Finalize(ctx, documentID, documentType, fields, metadata)
	if err != nil {
		return fmt.Errorf("finalize: %w", err)
	}
	if !ok {
		// Deleted mid-flight: take our vectors back out.
		log.Info("Document deleted during processing, removing vectors")
		return p.removeVectors(ctx, log, documentID)
	}
	log.Info("Document processed",
		logger.String("documentType", documentType),
		logger.Int("chunks", len(chunks)),
	)
	return nil
}

// fail records the stage failure on the document. When the conditional update
// reports the document gone, any vectors written this run are removed.
func (p *Pipeline) fail(ctx context.Context, log logger.Logger, documentID string, stage models.FailureStage, cause error) error {
	log.Error("Pipeline stage failed",
		logger.String("stage", string(stage)),
		logger.Error(cause),
	)
	ctx = context.WithoutCancel(ctx)
	ok, err := p.docs.MarkFailed(ctx, documentID, stage, cause.Error())
	if err != nil {
		return fmt.Errorf("record %s failure: %w", stage, err)
	}
	if !ok {
		return p.removeVectors(ctx, log, documentID)
	}
	return nil
}

func (p *Pipeline) removeVectors(ctx context.Context, log logger.Logger, documentID string) error {
	if err := p.vectors.DeleteByDocument(ctx, documentID); err != nil {
		log.Error("Failed to remove vectors for deleted document", logger.Error(err))
		return fmt.Errorf("remove vectors: %w", err)
	}
	return nil
}

func (p *Pipeline) extractText(ctx context.Context, doc *models.Document) (string, error) {
	reader, err := p.files.Get(ctx, doc.Filename)
	if err != nil {
		return "", fmt.Errorf("fetch file: %w", err)
	}
	defer reader.Close()
	content, err := io.ReadAll(reader)
	if err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}
	return p.extractor.Extract(content, doc.Format)
}

func (p *Pipeline) classify(ctx context.Context, text string) (string, map[string]any, error) {
	ctx, cancel := p.stageContext(ctx)
	defer cancel()

	documentType, err := p.classifier.Classify(ctx, text)
	if err != nil {
		return "", nil, err
	}
	fields, err := p.classifier.ExtractFields(ctx, text, documentType)
	if err != nil {
		return "", nil, err
	}
	return documentType, fields, nil
}

// embedChunks embeds every chunk or none: any failure discards the whole
// batch so the index never holds a partial document.
func (p *Pipeline) embedChunks(ctx context.Context, doc *models.Document, documentType string, texts []string) ([]models.Chunk, error) {
	ctx, cancel := p.stageContext(ctx)
	defer cancel()

	chunks := make([]models.Chunk, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.EmbedWorkers)
	for i, text := range texts {
		i, text := i, text
		g.Go(func() error {
			vec, err := p.embedder.Embed(gctx, text)
			if err != nil {
				return fmt.Errorf("embed chunk %d: %w", i, err)
			}
			chunks[i] = models.Chunk{
				ID:           fmt.Sprintf("%s:%d", doc.ID, i),
				DocumentID:   doc.ID,
				Index:        i,
				Text:         text,
				DocumentType: documentType,
				Filename:     doc.OriginalFilename,
				Vector:       vec,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return chunks, nil
}

func (p *Pipeline) index(ctx context.Context, chunks []models.Chunk) error {
	if err := p.vectors.Init(ctx, len(chunks[0].Vector)); err != nil {
		return fmt.Errorf("init vector index: %w", err)
	}
	if err := p.vectors.Upsert(ctx, chunks); err != nil {
		return fmt.Errorf("index chunks: %w", err)
	}
	return nil
}

func (p *Pipeline) stageContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.opts.StageTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, p.opts.StageTimeout)
}
