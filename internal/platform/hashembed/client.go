package hashembed

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"

	"github.com/clinvault/clinvault-backend/internal/platform/logger"
	"github.com/clinvault/clinvault-backend/internal/utils"
)

const DefaultDimension = 384

// Client is a local, deterministic embedding provider for development and
// test environments with no OpenAI access. Vectors are feature-hashed
// bags of words, L2-normalized, so repeated runs embed identical text to
// identical vectors and word overlap still moves texts closer together.
// It is not a semantic model.
type Client struct {
	log       *logger.Logger
	dimension int
}

func New(log *logger.Logger) *Client {
	dim := utils.GetEnvAsInt("HASH_EMBED_DIM", DefaultDimension, log)
	if dim <= 0 {
		dim = DefaultDimension
	}
	c := &Client{
		log:       log.With("service", "HashEmbedClient"),
		dimension: dim,
	}
	c.log.Info("Hash embedding provider selected", "dimension", dim)
	return c
}

func (c *Client) Dimension() int { return c.dimension }

func (c *Client) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	out := make([][]float32, len(inputs))
	for i, text := range inputs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = c.embedOne(text)
	}
	return out, nil
}

func (c *Client) embedOne(text string) []float32 {
	vec := make([]float32, c.dimension)
	for _, tok := range tokenize(text) {
		h := fnv.New64a()
		_, _ = h.Write([]byte(tok))
		sum := h.Sum64()
		bucket := int(sum % uint64(c.dimension))
		if sum&(1<<63) != 0 {
			vec[bucket]--
		} else {
			vec[bucket]++
		}
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		scale := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= scale
		}
	}
	return vec
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
