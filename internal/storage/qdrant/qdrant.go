// Package qdrant implements storage.Storage on a Qdrant collection over gRPC.
//
// Each chunk becomes one point whose ID is a UUIDv5 of the document ID, so
// upserting the same document ID replaces the point. Chunk fields and metadata
// are stored in the payload; source_path and chunk_index drive the filtered
// scrolls used for context and full-document expansion.
package qdrant

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/dshills/docrag-mcp/internal/storage"
	"github.com/dshills/docrag-mcp/pkg/types"
)

// Payload keys
const (
	keyDocumentID = "document_id"
	keyContent    = "content"
	keySourcePath = "source_path"
	keyChunkIndex = "chunk_index"
	metaPrefix    = "meta_"
)

const scrollPageSize = 256

// ErrInvalidDimension is returned when the collection dimension is not configured
var ErrInvalidDimension = errors.New("vector dimension must be positive")

// Config configures the Qdrant backend
type Config struct {
	Addr       string // host:port of the gRPC endpoint
	Collection string
	Dimension  int
}

// Storage is a Qdrant-backed vector store
type Storage struct {
	conn        *grpc.ClientConn
	points      pb.PointsClient
	collections pb.CollectionsClient
	collection  string
	dimension   int
}

var _ storage.Storage = (*Storage)(nil)

// New connects to Qdrant. The collection is created by Init.
func New(cfg Config) (*Storage, error) {
	if cfg.Dimension <= 0 {
		return nil, ErrInvalidDimension
	}
	conn, err := grpc.NewClient(cfg.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("qdrant connect: %w", err)
	}
	return &Storage{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		collection:  cfg.Collection,
		dimension:   cfg.Dimension,
	}, nil
}

// Init creates the collection with cosine distance if it does not exist
func (s *Storage) Init(ctx context.Context) error {
	list, err := s.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("qdrant list collections: %w", err)
	}
	for _, c := range list.GetCollections() {
		if c.GetName() == s.collection {
			return nil
		}
	}

	_, err = s.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: &pb.VectorsConfig{Config: &pb.VectorsConfig_Params{Params: &pb.VectorParams{
			Size:     uint64(s.dimension),
			Distance: pb.Distance_Cosine,
		}}},
	})
	if err != nil {
		return fmt.Errorf("qdrant create collection %s: %w", s.collection, err)
	}
	return nil
}

// InsertBatch upserts chunks as points
func (s *Storage) InsertBatch(ctx context.Context, chunks []types.EmbeddedChunk) error {
	if len(chunks) == 0 {
		return nil
	}

	points := make([]*pb.PointStruct, len(chunks))
	for i := range chunks {
		if err := chunks[i].Validate(); err != nil {
			return fmt.Errorf("chunk %q: %w", chunks[i].DocumentID, err)
		}
		if len(chunks[i].Vector) != s.dimension {
			return fmt.Errorf("%w: chunk %q has %d, expected %d", storage.ErrDimensionMismatch, chunks[i].DocumentID, len(chunks[i].Vector), s.dimension)
		}
		points[i] = &pb.PointStruct{
			Id:      &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: PointID(chunks[i].DocumentID)}},
			Vectors: &pb.Vectors{VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: chunks[i].Vector}}},
			Payload: toPayload(chunks[i].Chunk),
		}
	}

	wait := true
	_, err := s.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: s.collection,
		Wait:           &wait,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("qdrant upsert: %w", err)
	}
	return nil
}

// DeleteAll drops and recreates the collection
func (s *Storage) DeleteAll(ctx context.Context) (int, error) {
	n, err := s.count(ctx, nil)
	if err != nil {
		return 0, err
	}
	if _, err := s.collections.Delete(ctx, &pb.DeleteCollection{CollectionName: s.collection}); err != nil {
		return 0, fmt.Errorf("qdrant delete collection: %w", err)
	}
	if err := s.Init(ctx); err != nil {
		return 0, err
	}
	return n, nil
}

// DeleteBySource removes every point of one processed document
func (s *Storage) DeleteBySource(ctx context.Context, sourcePath string) (int, error) {
	filter := sourceFilter(sourcePath)
	n, err := s.count(ctx, filter)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, nil
	}

	wait := true
	_, err = s.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: s.collection,
		Wait:           &wait,
		Points:         &pb.PointsSelector{PointsSelectorOneOf: &pb.PointsSelector_Filter{Filter: filter}},
	})
	if err != nil {
		return 0, fmt.Errorf("qdrant delete points: %w", err)
	}
	return n, nil
}

// Count returns the exact number of points
func (s *Storage) Count(ctx context.Context) (int, error) {
	return s.count(ctx, nil)
}

func (s *Storage) count(ctx context.Context, filter *pb.Filter) (int, error) {
	exact := true
	resp, err := s.points.Count(ctx, &pb.CountPoints{
		CollectionName: s.collection,
		Filter:         filter,
		Exact:          &exact,
	})
	if err != nil {
		return 0, fmt.Errorf("qdrant count: %w", err)
	}
	return int(resp.GetResult().GetCount()), nil
}

// TopK runs a cosine similarity search
func (s *Storage) TopK(ctx context.Context, vector []float32, k int) ([]types.SearchHit, error) {
	if k <= 0 || len(vector) == 0 {
		return []types.SearchHit{}, nil
	}

	resp, err := s.points.Search(ctx, &pb.SearchPoints{
		CollectionName: s.collection,
		Vector:         vector,
		Limit:          uint64(k),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant search: %w", err)
	}

	hits := make([]types.SearchHit, len(resp.GetResult()))
	for i, pt := range resp.GetResult() {
		hits[i] = types.SearchHit{
			Chunk:      fromPayload(pt.GetPayload()),
			Similarity: storage.ClampSimilarity(float64(pt.GetScore())),
		}
	}
	return hits, nil
}

// ChunksAdjacent scrolls the points of sourcePath inside the index window
func (s *Storage) ChunksAdjacent(ctx context.Context, sourcePath string, chunkIndex, window int) ([]types.Chunk, error) {
	if window <= 0 {
		return []types.Chunk{}, nil
	}
	chunks, err := s.scroll(ctx, windowFilter(sourcePath, chunkIndex, window))
	if err != nil {
		return nil, err
	}

	out := chunks[:0]
	for _, c := range chunks {
		if c.ChunkIndex != chunkIndex {
			out = append(out, c)
		}
	}
	return out, nil
}

// ChunksOfDocument scrolls every point of sourcePath
func (s *Storage) ChunksOfDocument(ctx context.Context, sourcePath string) ([]types.Chunk, error) {
	return s.scroll(ctx, sourceFilter(sourcePath))
}

func (s *Storage) scroll(ctx context.Context, filter *pb.Filter) ([]types.Chunk, error) {
	limit := uint32(scrollPageSize)
	var offset *pb.PointId
	chunks := make([]types.Chunk, 0)

	for {
		resp, err := s.points.Scroll(ctx, &pb.ScrollPoints{
			CollectionName: s.collection,
			Filter:         filter,
			Limit:          &limit,
			Offset:         offset,
			WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
		})
		if err != nil {
			return nil, fmt.Errorf("qdrant scroll: %w", err)
		}
		for _, pt := range resp.GetResult() {
			chunks = append(chunks, fromPayload(pt.GetPayload()))
		}
		offset = resp.GetNextPageOffset()
		if offset == nil {
			break
		}
	}

	sort.Slice(chunks, func(i, j int) bool {
		return chunks[i].ChunkIndex < chunks[j].ChunkIndex
	})
	return chunks, nil
}

// Close closes the gRPC connection
func (s *Storage) Close() error {
	return s.conn.Close()
}

// PointID maps a document ID onto a stable UUID
func PointID(documentID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("docrag:"+documentID)).String()
}

func toPayload(c types.Chunk) map[string]*pb.Value {
	payload := map[string]*pb.Value{
		keyDocumentID: {Kind: &pb.Value_StringValue{StringValue: c.DocumentID}},
		keyContent:    {Kind: &pb.Value_StringValue{StringValue: c.Content}},
		keySourcePath: {Kind: &pb.Value_StringValue{StringValue: c.SourcePath}},
		keyChunkIndex: {Kind: &pb.Value_IntegerValue{IntegerValue: int64(c.ChunkIndex)}},
	}
	for k, v := range c.Metadata {
		payload[metaPrefix+k] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: v}}
	}
	return payload
}

func fromPayload(payload map[string]*pb.Value) types.Chunk {
	c := types.Chunk{Metadata: map[string]string{}}
	for k, v := range payload {
		switch k {
		case keyDocumentID:
			c.DocumentID = v.GetStringValue()
		case keyContent:
			c.Content = v.GetStringValue()
		case keySourcePath:
			c.SourcePath = v.GetStringValue()
		case keyChunkIndex:
			c.ChunkIndex = int(v.GetIntegerValue())
		default:
			if name, ok := strings.CutPrefix(k, metaPrefix); ok && name != "" {
				c.Metadata[name] = v.GetStringValue()
			}
		}
	}
	return c
}

func sourceFilter(sourcePath string) *pb.Filter {
	return &pb.Filter{Must: []*pb.Condition{keywordCondition(keySourcePath, sourcePath)}}
}

func windowFilter(sourcePath string, chunkIndex, window int) *pb.Filter {
	lo := float64(chunkIndex - window)
	hi := float64(chunkIndex + window)
	return &pb.Filter{Must: []*pb.Condition{
		keywordCondition(keySourcePath, sourcePath),
		{ConditionOneOf: &pb.Condition_Field{Field: &pb.FieldCondition{
			Key:   keyChunkIndex,
			Range: &pb.Range{Gte: &lo, Lte: &hi},
		}}},
	}}
}

func keywordCondition(key, value string) *pb.Condition {
	return &pb.Condition{ConditionOneOf: &pb.Condition_Field{Field: &pb.FieldCondition{
		Key:   key,
		Match: &pb.Match{MatchValue: &pb.Match_Keyword{Keyword: value}},
	}}}
}
