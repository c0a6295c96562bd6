package vectorstore

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/qdrant/go-client/qdrant"
)

// QdrantConfig holds Qdrant connection configuration.
type QdrantConfig struct {
	// URL is the Qdrant server address (e.g., "https://example.qdrant.io:6334").
	URL string

	// Collection is the collection all namespaces share; isolation happens
	// through a "namespace" payload filter.
	Collection string

	// APIKey is an optional API key for authentication.
	APIKey string

	// Dimension is the embedding vector size the collection is created with.
	Dimension int
}

// QdrantIndex implements Index on top of a single Qdrant collection.
type QdrantIndex struct {
	client     *qdrant.Client
	collection string
}

var _ Index = (*QdrantIndex)(nil)

// NewQdrant connects to Qdrant and creates the collection if it does not
// exist yet.
func NewQdrant(ctx context.Context, cfg QdrantConfig) (*QdrantIndex, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("qdrant url is required")
	}

	parsedURL := cfg.URL
	if !strings.HasPrefix(parsedURL, "http://") && !strings.HasPrefix(parsedURL, "https://") {
		parsedURL = "https://" + parsedURL
	}

	u, err := url.Parse(parsedURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse qdrant url: %w", err)
	}

	host := u.Hostname()
	port := 6334 // default gRPC port
	if u.Port() != "" {
		p, err := strconv.Atoi(u.Port())
		if err != nil {
			return nil, fmt.Errorf("invalid port: %w", err)
		}
		port = p
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: cfg.APIKey,
		UseTLS: u.Scheme == "https",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	idx := &QdrantIndex{client: client, collection: cfg.Collection}
	if err := idx.ensureCollection(ctx, cfg.Dimension); err != nil {
		client.Close()
		return nil, err
	}

	return idx, nil
}

func (q *QdrantIndex) ensureCollection(ctx context.Context, dimension int) error {
	exists, err := q.client.CollectionExists(ctx, q.collection)
	if err != nil {
		return fmt.Errorf("failed to check qdrant collection: %w", err)
	}
	if exists {
		return nil
	}

	err = q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dimension),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create qdrant collection: %w", err)
	}
	return nil
}

// Upsert implements Index.
func (q *QdrantIndex) Upsert(ctx context.Context, namespace string, vectors []Vector) error {
	if len(vectors) == 0 {
		return nil
	}

	points := make([]*qdrant.PointStruct, 0, len(vectors))
	for _, v := range vectors {
		payload := map[string]any{"namespace": namespace}
		for k, val := range v.Payload {
			payload[k] = val
		}

		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewID(v.ID),
			Vectors: qdrant.NewVectors(v.Values...),
			Payload: qdrant.NewValueMap(payload),
		})
	}

	wait := true
	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collection,
		Points:         points,
		Wait:           &wait,
	})
	if err != nil {
		return fmt.Errorf("qdrant upsert failed: %w", err)
	}
	return nil
}

// Query implements Index.
func (q *QdrantIndex) Query(ctx context.Context, namespace string, vector []float32, topK int) ([]Match, error) {
	limit := uint64(topK)
	points, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          &limit,
		Filter:         namespaceFilter(namespace),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant query failed: %w", err)
	}

	matches := make([]Match, 0, len(points))
	for _, point := range points {
		m := Match{
			Score:   point.Score,
			Payload: make(map[string]any),
		}

		if point.Id != nil {
			if id := point.Id.GetUuid(); id != "" {
				m.ID = id
			} else if num := point.Id.GetNum(); num != 0 {
				m.ID = fmt.Sprintf("%d", num)
			}
		}

		for k, v := range point.Payload {
			if k == "namespace" {
				continue
			}
			m.Payload[k] = extractValue(v)
		}

		matches = append(matches, m)
	}

	return matches, nil
}

// Close implements Index.
func (q *QdrantIndex) Close() error {
	return q.client.Close()
}

func namespaceFilter(namespace string) *qdrant.Filter {
	return &qdrant.Filter{
		Must: []*qdrant.Condition{
			{
				ConditionOneOf: &qdrant.Condition_Field{
					Field: &qdrant.FieldCondition{
						Key:   "namespace",
						Match: &qdrant.Match{MatchValue: &qdrant.Match_Keyword{Keyword: namespace}},
					},
				},
			},
		},
	}
}

func extractValue(v *qdrant.Value) any {
	switch val := v.Kind.(type) {
	case *qdrant.Value_StringValue:
		return val.StringValue
	case *qdrant.Value_IntegerValue:
		return val.IntegerValue
	case *qdrant.Value_DoubleValue:
		return val.DoubleValue
	case *qdrant.Value_BoolValue:
		return val.BoolValue
	default:
		return v.String()
	}
}
