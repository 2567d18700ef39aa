package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	types "github.com/clinvault/clinvault-backend/internal/domain"
	"github.com/clinvault/clinvault-backend/internal/platform/ctxutil"
	"github.com/clinvault/clinvault-backend/internal/platform/logger"
	"github.com/clinvault/clinvault-backend/internal/rag/index"
)

// Payload keys mirror the Chunk wire names so a point read back from the
// collection rebuilds the exact chunk the ingest pipeline stored.
const (
	payloadChunkIDKey    = "chunk_id"
	payloadDocumentIDKey = "document_id"
	payloadTextKey       = "text"
	payloadPageKey       = "page_number"
	payloadStartKey      = "start_offset"
	payloadEndKey        = "end_offset"
	payloadOrdinalKey    = "ordinal"

	maxErrorBodyBytes = 1024
)

var pointIDNamespaceUUID = uuid.MustParse("8c9a4fd0-6e2b-4f5a-9a63-1d2c4b2f7e11")

// vectorStore implements index.Store against a remote Qdrant collection.
// One collection holds the whole corpus; point ids derive from chunk ids,
// so re-ingesting a document overwrites its points in place instead of
// accumulating copies.
type vectorStore struct {
	log     *logger.Logger
	cfg     Config
	baseURL string
	http    *http.Client

	mu        sync.RWMutex
	dimension int
	distance  string
}

type qdrantEnvelope struct {
	Result json.RawMessage `json:"result"`
	Status json.RawMessage `json:"status"`
	Time   float64         `json:"time"`
}

type qdrantPointItem struct {
	ID      json.RawMessage `json:"id"`
	Score   float64         `json:"score"`
	Payload map[string]any  `json:"payload"`
}

type collectionState struct {
	PointsCount int
	Size        int
	Distance    string
}

func NewVectorStore(log *logger.Logger, cfg Config) (index.Store, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}

	s := &vectorStore{
		log:       log.With("service", "QdrantVectorStore"),
		cfg:       cfg,
		baseURL:   strings.TrimRight(cfg.URL, "/"),
		dimension: cfg.VectorDim,
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
	}

	if err := s.verifyReady(context.Background()); err != nil {
		return nil, err
	}
	if err := s.Load(context.Background()); err != nil {
		return nil, err
	}

	s.log.Info(
		"Qdrant vector store selected",
		"url", s.baseURL,
		"collection", cfg.Collection,
		"dimension", s.currentDimension(),
		"distance", s.currentDistance(),
	)
	return s, nil
}

func (s *vectorStore) Create(ctx context.Context, dimension int) error {
	const op = "create"
	if dimension <= 0 {
		return opErr(op, OperationErrorValidation, fmt.Sprintf("dimension must be positive, got %d", dimension), nil)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ensureCollectionLocked(ctx, op, dimension)
}

func (s *vectorStore) Add(ctx context.Context, entries []index.Entry) error {
	const op = "add"
	if len(entries) == 0 {
		s.log.Warn("No chunks to add")
		return nil
	}
	for _, e := range entries {
		if len(e.Vector) == 0 {
			return opErr(op, OperationErrorValidation, "all chunks must have vectors", nil)
		}
	}

	s.mu.Lock()
	if s.dimension == 0 {
		if err := s.ensureCollectionLocked(ctx, op, len(entries[0].Vector)); err != nil {
			s.mu.Unlock()
			return err
		}
	}
	dim := s.dimension
	s.mu.Unlock()

	points := make([]map[string]any, 0, len(entries))
	for _, e := range entries {
		if len(e.Vector) != dim {
			return opErr(
				op,
				OperationErrorDimensionMismatch,
				fmt.Sprintf("chunk %q dimension mismatch: expected=%d got=%d", e.Chunk.ChunkID, dim, len(e.Vector)),
				nil,
			)
		}
		chunkID := strings.TrimSpace(e.Chunk.ChunkID)
		if chunkID == "" {
			return opErr(op, OperationErrorValidation, "chunk id is required", nil)
		}
		points = append(points, map[string]any{
			"id":      s.pointID(chunkID),
			"vector":  e.Vector,
			"payload": chunkPayload(e.Chunk),
		})
	}

	req := map[string]any{"points": points}
	if err := s.doJSON(ctx, op, http.MethodPut, s.collectionPath("/points?wait=true"), req, nil); err != nil {
		return err
	}
	s.log.Info("Chunks added to index", "num_chunks", len(entries))
	return nil
}

func (s *vectorStore) Search(ctx context.Context, query []float32, topK int) ([]index.Match, error) {
	const op = "search"

	s.mu.RLock()
	dim := s.dimension
	distance := s.distance
	s.mu.RUnlock()

	if dim == 0 {
		s.log.Warn("Search against empty index")
		return []index.Match{}, nil
	}
	if len(query) != dim {
		return nil, opErr(
			op,
			OperationErrorDimensionMismatch,
			fmt.Sprintf("query vector dimension mismatch: expected=%d got=%d", dim, len(query)),
			nil,
		)
	}
	if topK <= 0 {
		return []index.Match{}, nil
	}

	req := map[string]any{
		"vector":       query,
		"limit":        topK,
		"with_payload": true,
		"with_vector":  false,
	}
	var rawResults []qdrantPointItem
	if err := s.doJSON(
		ctx,
		op,
		http.MethodPost,
		s.collectionPath("/points/search"),
		req,
		&rawResults,
	); err != nil {
		return nil, err
	}

	out := make([]index.Match, 0, len(rawResults))
	for _, item := range rawResults {
		chunk := chunkFromPayload(item.Payload)
		if chunk.ChunkID == "" {
			continue
		}
		out = append(out, index.Match{
			Chunk:      chunk,
			Similarity: similarityFromScore(distance, item.Score),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Similarity == out[j].Similarity {
			return out[i].Chunk.ChunkID < out[j].Chunk.ChunkID
		}
		return out[i].Similarity > out[j].Similarity
	})

	s.log.Info("Search completed", "query_dim", len(query), "top_k", topK, "results", len(out))
	return out, nil
}

func (s *vectorStore) ChunkText(ctx context.Context, chunkID string) (string, error) {
	const op = "chunk_text"
	id := strings.TrimSpace(chunkID)
	if id == "" {
		return "", nil
	}

	req := map[string]any{
		"ids":          []string{s.pointID(id)},
		"with_payload": true,
	}
	var records []qdrantPointItem
	if err := s.doJSON(ctx, op, http.MethodPost, s.collectionPath("/points"), req, &records); err != nil {
		return "", err
	}
	if len(records) == 0 {
		return "", nil
	}
	text, _ := records[0].Payload[payloadTextKey].(string)
	return text, nil
}

// Save is a durability no-op. Qdrant persists writes server side through
// its WAL, so there is no local artifact to flush.
func (s *vectorStore) Save(ctx context.Context) error {
	s.log.Debug("Save skipped; Qdrant persists server side")
	return nil
}

// Load adopts the dimension and distance of an existing collection. A
// missing collection is not an error; it is created on the first add.
func (s *vectorStore) Load(ctx context.Context) error {
	const op = "load"

	state, found, err := s.fetchCollectionState(ctx, op)
	if err != nil {
		return err
	}
	if !found {
		s.log.Warn("Qdrant collection absent; it will be created on first add", "collection", s.cfg.Collection)
		return nil
	}
	if s.cfg.VectorDim > 0 && state.Size != 0 && state.Size != s.cfg.VectorDim {
		return opErr(
			op,
			OperationErrorDimensionMismatch,
			fmt.Sprintf(
				"collection %q vector size mismatch: expected=%d actual=%d",
				s.cfg.Collection,
				s.cfg.VectorDim,
				state.Size,
			),
			nil,
		)
	}

	s.mu.Lock()
	if state.Size != 0 {
		s.dimension = state.Size
	}
	s.distance = strings.TrimSpace(state.Distance)
	s.mu.Unlock()

	s.log.Info("Index loaded", "num_chunks", state.PointsCount, "dimension", state.Size)
	return nil
}

func (s *vectorStore) Stats(ctx context.Context) (index.Stats, error) {
	const op = "stats"

	state, found, err := s.fetchCollectionState(ctx, op)
	if err != nil {
		return index.Stats{}, err
	}
	if !found {
		return index.Stats{}, nil
	}
	return index.Stats{
		NumChunks: state.PointsCount,
		IndexSize: state.PointsCount,
		Dimension: state.Size,
	}, nil
}

func (s *vectorStore) verifyReady(ctx context.Context) error {
	const op = "bootstrap_verify"

	readyReq, err := http.NewRequestWithContext(ctxutil.Default(ctx), http.MethodGet, s.baseURL+"/readyz", nil)
	if err != nil {
		return opErr(op, OperationErrorTransportFailed, "build ready request failed", err)
	}
	readyResp, err := s.http.Do(readyReq)
	if err != nil {
		return classifyHTTPCallError(op, "qdrant ready check failed", err)
	}
	_ = readyResp.Body.Close()
	if readyResp.StatusCode < 200 || readyResp.StatusCode >= 300 {
		return &OperationError{
			Code:       OperationErrorQueryFailed,
			Operation:  op,
			StatusCode: readyResp.StatusCode,
			Message:    fmt.Sprintf("qdrant ready check returned status=%d", readyResp.StatusCode),
		}
	}
	return nil
}

// ensureCollectionLocked creates the collection when it does not exist and
// pins the local dimension. Callers must hold the write lock.
func (s *vectorStore) ensureCollectionLocked(ctx context.Context, op string, dimension int) error {
	state, found, err := s.fetchCollectionState(ctx, op)
	if err != nil {
		return err
	}
	if found {
		if state.Size != 0 && state.Size != dimension {
			return opErr(
				op,
				OperationErrorDimensionMismatch,
				fmt.Sprintf(
					"collection %q already holds vectors of dimension %d, cannot recreate with %d",
					s.cfg.Collection,
					state.Size,
					dimension,
				),
				nil,
			)
		}
		s.dimension = dimension
		if d := strings.TrimSpace(state.Distance); d != "" {
			s.distance = d
		}
		return nil
	}

	req := map[string]any{
		"vectors": map[string]any{
			"size":     dimension,
			"distance": "Euclid",
		},
	}
	if err := s.doJSON(ctx, op, http.MethodPut, s.collectionPath(""), req, nil); err != nil {
		return err
	}
	s.dimension = dimension
	s.distance = "Euclid"
	s.log.Info("Qdrant collection created", "collection", s.cfg.Collection, "dimension", dimension)
	return nil
}

func (s *vectorStore) fetchCollectionState(ctx context.Context, op string) (collectionState, bool, error) {
	var result struct {
		PointsCount int `json:"points_count"`
		Config      struct {
			Params struct {
				Vectors struct {
					Size     int    `json:"size"`
					Distance string `json:"distance"`
				} `json:"vectors"`
			} `json:"params"`
		} `json:"config"`
	}
	err := s.doJSON(ctx, op, http.MethodGet, s.collectionPath(""), nil, &result)
	if err != nil {
		var typed *OperationError
		if errors.As(err, &typed) && typed.StatusCode == http.StatusNotFound {
			return collectionState{}, false, nil
		}
		return collectionState{}, false, err
	}
	return collectionState{
		PointsCount: result.PointsCount,
		Size:        result.Config.Params.Vectors.Size,
		Distance:    result.Config.Params.Vectors.Distance,
	}, true, nil
}

func (s *vectorStore) doJSON(ctx context.Context, op, method, path string, in any, out any) error {
	var body io.Reader
	if in != nil {
		var buf bytes.Buffer
		if err := json.NewEncoder(&buf).Encode(in); err != nil {
			return opErr(op, OperationErrorEncodeFailed, "encode request failed", err)
		}
		body = &buf
	}

	req, err := http.NewRequestWithContext(ctxutil.Default(ctx), method, s.baseURL+path, body)
	if err != nil {
		return opErr(op, OperationErrorTransportFailed, "build request failed", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return classifyHTTPCallError(op, "qdrant request failed", err)
	}
	defer resp.Body.Close()

	raw, readErr := io.ReadAll(io.LimitReader(resp.Body, 10*maxErrorBodyBytes))
	if readErr != nil {
		return opErr(op, OperationErrorDecodeFailed, "read response failed", readErr)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &OperationError{
			Code:       OperationErrorQueryFailed,
			Operation:  op,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("qdrant http status=%d body=%q", resp.StatusCode, truncateBody(raw)),
		}
	}

	var envelope qdrantEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return opErr(op, OperationErrorDecodeFailed, "decode qdrant envelope failed", err)
	}
	if statusErr := parseEnvelopeStatus(envelope.Status); statusErr != "" {
		return &OperationError{
			Code:       OperationErrorQueryFailed,
			Operation:  op,
			StatusCode: resp.StatusCode,
			Message:    statusErr,
		}
	}

	if out == nil {
		return nil
	}
	if len(envelope.Result) == 0 || string(envelope.Result) == "null" {
		return nil
	}
	if err := json.Unmarshal(envelope.Result, out); err != nil {
		return opErr(op, OperationErrorDecodeFailed, "decode qdrant result failed", err)
	}
	return nil
}

func classifyHTTPCallError(op, message string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return opErr(op, OperationErrorTimeout, message, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return opErr(op, OperationErrorTimeout, message, err)
	}
	return opErr(op, OperationErrorTransportFailed, message, err)
}

func parseEnvelopeStatus(raw json.RawMessage) string {
	status := strings.TrimSpace(string(raw))
	if status == "" || status == "null" {
		return ""
	}

	var statusString string
	if err := json.Unmarshal(raw, &statusString); err == nil {
		if strings.EqualFold(statusString, "ok") {
			return ""
		}
		return fmt.Sprintf("qdrant status=%q", statusString)
	}

	var statusObject struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &statusObject); err == nil {
		if strings.TrimSpace(statusObject.Error) != "" {
			return strings.TrimSpace(statusObject.Error)
		}
	}

	return fmt.Sprintf("qdrant status=%s", status)
}

func truncateBody(raw []byte) string {
	if len(raw) <= maxErrorBodyBytes {
		return string(raw)
	}
	return string(raw[:maxErrorBodyBytes]) + "..."
}

// similarityFromScore maps a Qdrant score onto the exp(-d^2) scale the flat
// index reports. Euclid collections score by plain L2 distance, so squaring
// inside the exponent keeps both providers' similarities comparable. Cosine
// and dot collections already report a similarity; those pass through
// clamped to the citation score range.
func similarityFromScore(distance string, score float64) float64 {
	switch strings.ToLower(strings.TrimSpace(distance)) {
	case "euclid", "manhattan":
		if score < 0 {
			score = -score
		}
		return math.Exp(-(score * score))
	default:
		if score < 0 {
			return 0
		}
		if score > 1 {
			return 1
		}
		return score
	}
}

func chunkPayload(c types.Chunk) map[string]any {
	return map[string]any{
		payloadChunkIDKey:    c.ChunkID,
		payloadDocumentIDKey: c.DocumentID,
		payloadTextKey:       c.Text,
		payloadPageKey:       c.Page,
		payloadStartKey:      c.StartOffset,
		payloadEndKey:        c.EndOffset,
		payloadOrdinalKey:    c.Ordinal,
	}
}

func chunkFromPayload(payload map[string]any) types.Chunk {
	return types.Chunk{
		ChunkID:     stringField(payload, payloadChunkIDKey),
		DocumentID:  stringField(payload, payloadDocumentIDKey),
		Text:        stringField(payload, payloadTextKey),
		Page:        intField(payload, payloadPageKey),
		StartOffset: intField(payload, payloadStartKey),
		EndOffset:   intField(payload, payloadEndKey),
		Ordinal:     intField(payload, payloadOrdinalKey),
	}
}

func stringField(payload map[string]any, key string) string {
	v, _ := payload[key].(string)
	return v
}

func intField(payload map[string]any, key string) int {
	switch v := payload[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return int(i)
		}
	}
	return 0
}

// pointID derives a stable uuid from the chunk id so re-upserting the same
// chunk replaces its point instead of growing the collection.
func (s *vectorStore) pointID(chunkID string) string {
	return uuid.NewSHA1(pointIDNamespaceUUID, []byte(chunkID)).String()
}

func (s *vectorStore) collectionPath(suffix string) string {
	path := "/collections/" + s.cfg.Collection
	if strings.TrimSpace(suffix) == "" {
		return path
	}
	return path + suffix
}

func (s *vectorStore) currentDimension() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dimension
}

func (s *vectorStore) currentDistance() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.distance
}
