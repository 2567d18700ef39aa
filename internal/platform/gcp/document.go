package gcp

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	documentai "cloud.google.com/go/documentai/apiv1"
	"cloud.google.com/go/documentai/apiv1/documentaipb"
	"google.golang.org/api/option"
	"google.golang.org/protobuf/types/known/fieldmaskpb"

	types "github.com/clinvault/clinvault-backend/internal/domain"
	"github.com/clinvault/clinvault-backend/internal/platform/ctxutil"
	"github.com/clinvault/clinvault-backend/internal/platform/logger"
)

// Document extracts page text from uploaded PDFs through Document AI.
// Plain-text uploads never reach this client; the ingest service reads
// those directly.
type Document interface {
	ExtractPages(ctx context.Context, data []byte) ([]types.Page, error)
	Close() error
}

type documentService struct {
	log *logger.Logger

	docClient *documentai.DocumentProcessorClient

	projectID        string
	location         string
	processorID      string
	processorVersion string
}

func NewDocument(log *logger.Logger) (Document, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	slog := log.With("service", "gcp.Document")

	projectID := strings.TrimSpace(os.Getenv("DOCUMENTAI_PROJECT_ID"))
	processorID := strings.TrimSpace(os.Getenv("DOCUMENTAI_PROCESSOR_ID"))
	if projectID == "" || processorID == "" {
		return nil, fmt.Errorf("missing env vars DOCUMENTAI_PROJECT_ID / DOCUMENTAI_PROCESSOR_ID")
	}

	location := strings.TrimSpace(os.Getenv("DOCUMENTAI_LOCATION"))
	if location == "" {
		location = "us"
	}
	endpoint := fmt.Sprintf("%s-documentai.googleapis.com:443", location)

	ctx := context.Background()
	docOpts := append([]option.ClientOption{option.WithEndpoint(endpoint)}, ClientOptionsFromEnv()...)
	c, err := documentai.NewDocumentProcessorClient(ctx, docOpts...)
	if err != nil {
		return nil, fmt.Errorf("documentai client: %w", err)
	}

	slog.Info("Document AI initialized", "endpoint", endpoint, "location", location)

	return &documentService{
		log:              slog,
		docClient:        c,
		projectID:        projectID,
		location:         location,
		processorID:      processorID,
		processorVersion: strings.TrimSpace(os.Getenv("DOCUMENTAI_PROCESSOR_VERSION")),
	}, nil
}

func (s *documentService) Close() error {
	if s == nil {
		return nil
	}
	if s.docClient != nil {
		_ = s.docClient.Close()
	}
	return nil
}

func (s *documentService) ExtractPages(ctx context.Context, data []byte) ([]types.Page, error) {
	ctx = ctxutil.Default(ctx)
	ctx, cancel := context.WithTimeout(ctx, 3*time.Minute)
	defer cancel()

	if len(data) == 0 {
		return []types.Page{}, nil
	}

	r := &documentaipb.ProcessRequest{
		Name: s.processorName(),
		Source: &documentaipb.ProcessRequest_RawDocument{
			RawDocument: &documentaipb.RawDocument{
				Content:  data,
				MimeType: "application/pdf",
			},
		},
		// Page text is all the chunker consumes; skip tables, forms and
		// layout geometry on the wire.
		FieldMask: &fieldmaskpb.FieldMask{Paths: []string{
			"text",
			"pages.page_number",
			"pages.paragraphs",
		}},
	}

	resp, err := s.docClient.ProcessDocument(ctx, r)
	if err != nil {
		return nil, fmt.Errorf("documentai ProcessDocument: %w", err)
	}
	if resp == nil || resp.Document == nil {
		return []types.Page{}, nil
	}

	return pagesFromDocument(resp.Document), nil
}

func (s *documentService) processorName() string {
	if s.processorVersion != "" {
		return fmt.Sprintf(
			"projects/%s/locations/%s/processors/%s/processorVersions/%s",
			s.projectID, s.location, s.processorID, s.processorVersion,
		)
	}
	return fmt.Sprintf(
		"projects/%s/locations/%s/processors/%s",
		s.projectID, s.location, s.processorID,
	)
}

func pagesFromDocument(doc *documentaipb.Document) []types.Page {
	if doc == nil {
		return []types.Page{}
	}

	pages := []types.Page{}
	for _, p := range doc.Pages {
		if p == nil {
			continue
		}

		var pageText strings.Builder
		for _, para := range p.Paragraphs {
			if para == nil || para.Layout == nil || para.Layout.TextAnchor == nil {
				continue
			}
			t := strings.TrimSpace(textFromAnchor(doc.Text, para.Layout.TextAnchor))
			if t == "" {
				continue
			}
			pageText.WriteString(t)
			pageText.WriteString("\n")
		}

		pt := strings.TrimSpace(pageText.String())
		if pt == "" {
			continue
		}
		pages = append(pages, types.Page{
			Number: int(p.PageNumber),
			Text:   pt,
		})
	}

	// Some processors populate doc.Text but omit structured paragraphs.
	// Callers still get usable text as a single page.
	if len(pages) == 0 {
		if full := strings.TrimSpace(doc.Text); full != "" {
			pages = append(pages, types.Page{Number: 1, Text: full})
		}
	}

	return pages
}

func textFromAnchor(full string, anchor *documentaipb.Document_TextAnchor) string {
	if anchor == nil || len(anchor.TextSegments) == 0 || full == "" {
		return ""
	}
	var b strings.Builder
	for _, seg := range anchor.TextSegments {
		if seg == nil {
			continue
		}
		start := int(seg.StartIndex)
		end := int(seg.EndIndex)
		if start < 0 {
			start = 0
		}
		if end > len(full) {
			end = len(full)
		}
		if start >= end {
			continue
		}
		b.WriteString(full[start:end])
	}
	return b.String()
}
