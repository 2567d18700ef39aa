package pdfextract

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	pdf "github.com/ledongthuc/pdf"

	types "github.com/clinvault/clinvault-backend/internal/domain"
	"github.com/clinvault/clinvault-backend/internal/platform/logger"
)

// Source yields per-page text from raw PDF bytes.
type Source interface {
	ExtractPages(ctx context.Context, data []byte) ([]types.Page, error)
}

// Extractor reads the text layer of a PDF with a pure-Go parser. It
// needs no credentials or network, which makes it the PDF path for
// deployments without Document AI. Scanned pages carry no text layer
// and come back empty; OCR needs the Document AI processor.
type Extractor struct {
	log *logger.Logger
}

func New(log *logger.Logger) *Extractor {
	return &Extractor{log: log.With("service", "PDFExtractor")}
}

func (e *Extractor) ExtractPages(ctx context.Context, data []byte) (pages []types.Page, err error) {
	if len(data) == 0 {
		return []types.Page{}, nil
	}

	// The parser panics on some malformed xref tables and streams;
	// surface those as errors.
	defer func() {
		if r := recover(); r != nil {
			pages = nil
			err = opErr("parse", OperationErrorExtractionFailed, fmt.Sprintf("panic: %v", r), nil)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, opErr("reader", OperationErrorExtractionFailed, "", err)
	}

	total := reader.NumPage()
	pages = make([]types.Page, 0, total)
	for n := 1; n <= total; n++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := reader.Page(n)
		if page.V.IsNull() {
			continue
		}
		text, perr := page.GetPlainText(nil)
		if perr != nil {
			e.log.Warn("Skipping unreadable page", "page", n, "error", perr)
			continue
		}
		text = normalizeSpace(text)
		if text == "" {
			continue
		}
		pages = append(pages, types.Page{Number: n, Text: text})
	}
	return pages, nil
}

type chainSource struct {
	log      *logger.Logger
	primary  Source
	fallback Source
}

// WithFallback returns a Source that consults primary first and retries
// with fallback when primary fails or finds no text.
func WithFallback(log *logger.Logger, primary, fallback Source) Source {
	return &chainSource{
		log:      log.With("service", "PDFExtractChain"),
		primary:  primary,
		fallback: fallback,
	}
}

func (c *chainSource) ExtractPages(ctx context.Context, data []byte) ([]types.Page, error) {
	pages, err := c.primary.ExtractPages(ctx, data)
	if err == nil && len(pages) > 0 {
		return pages, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if err != nil {
		c.log.Warn("Primary PDF extractor failed; trying fallback", "error", err)
	} else {
		c.log.Warn("Primary PDF extractor found no text; trying fallback")
	}

	pages, err = c.fallback.ExtractPages(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("fallback extractor: %w", err)
	}
	return pages, nil
}

func normalizeSpace(s string) string {
	s = strings.ReplaceAll(s, " ", " ")
	return strings.Join(strings.Fields(s), " ")
}
