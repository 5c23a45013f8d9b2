package vector

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

const (
	payloadRecordID = "record_id"
	payloadSource   = "source"
	payloadIndex    = "index"
	payloadText     = "text"

	qdrantMaxMessageSize = 32 << 20
)

// QdrantIndex stores records in a Qdrant collection over gRPC.
type QdrantIndex struct {
	client     *qdrant.Client
	collection string
	batchSize  int
	timeout    time.Duration
	logger     *zap.Logger
}

// QdrantOptions configures NewQdrantIndex.
type QdrantOptions struct {
	Host       string
	Port       int
	APIKey     string
	UseTLS     bool
	Collection string
	Dimension  int
	BatchSize  int
	// Timeout bounds each gRPC call; zero leaves calls bounded only by the caller.
	Timeout time.Duration
}

// NewQdrantIndex connects to Qdrant and creates the collection (cosine
// distance, opts.Dimension) when it does not exist yet.
func NewQdrantIndex(ctx context.Context, opts QdrantOptions, logger *zap.Logger) (*QdrantIndex, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if !opts.UseTLS {
		logger.Warn("qdrant gRPC using plaintext (TLS disabled)", zap.String("host", opts.Host))
	}
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   opts.Host,
		Port:   opts.Port,
		APIKey: opts.APIKey,
		UseTLS: opts.UseTLS,
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(qdrantMaxMessageSize),
				grpc.MaxCallSendMsgSize(qdrantMaxMessageSize),
			),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("connect qdrant: %w", err)
	}
	q := &QdrantIndex{
		client:     client,
		collection: opts.Collection,
		batchSize:  opts.BatchSize,
		timeout:    opts.Timeout,
		logger:     logger,
	}
	if err := q.ensureCollection(ctx, opts.Dimension); err != nil {
		_ = client.Close()
		return nil, err
	}
	return q, nil
}

func (q *QdrantIndex) ensureCollection(ctx context.Context, dimension int) error {
	exists, err := q.client.CollectionExists(ctx, q.collection)
	if err != nil {
		return fmt.Errorf("check collection %s: %w", q.collection, err)
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
		return fmt.Errorf("create collection %s: %w", q.collection, err)
	}
	q.logger.Info("qdrant collection created", zap.String("collection", q.collection), zap.Int("dimension", dimension))
	return nil
}

// Type returns the index type identifier.
func (q *QdrantIndex) Type() string {
	return string(IndexTypeQdrant)
}

// Upsert writes records in batches and waits for each batch to be applied.
func (q *QdrantIndex) Upsert(ctx context.Context, records []models.IndexedRecord) error {
	for i, r := range batchRanges(len(records), q.batchSize) {
		batch := records[r[0]:r[1]]
		points := make([]*qdrant.PointStruct, len(batch))
		for j, rec := range batch {
			points[j] = &qdrant.PointStruct{
				Id:      qdrant.NewIDUUID(pointID(rec.ID)),
				Vectors: qdrant.NewVectors(rec.Values...),
				Payload: map[string]*qdrant.Value{
					payloadRecordID: {Kind: &qdrant.Value_StringValue{StringValue: rec.ID}},
					payloadSource:   {Kind: &qdrant.Value_StringValue{StringValue: rec.Metadata.Source}},
					payloadIndex:    {Kind: &qdrant.Value_IntegerValue{IntegerValue: int64(rec.Metadata.Index)}},
					payloadText:     {Kind: &qdrant.Value_StringValue{StringValue: rec.Metadata.Text}},
				},
			}
		}
		callCtx, cancel := q.callContext(ctx)
		_, err := q.client.Upsert(callCtx, &qdrant.UpsertPoints{
			CollectionName: q.collection,
			Wait:           qdrant.PtrOf(true),
			Points:         points,
		})
		cancel()
		if err != nil {
			return grpcStoreError("upsert", i, err)
		}
	}
	return nil
}

// Query returns the topK most similar records.
func (q *QdrantIndex) Query(ctx context.Context, vector []float32, topK int, includeMetadata bool) ([]models.RetrievedMatch, error) {
	if topK <= 0 {
		return []models.RetrievedMatch{}, nil
	}
	callCtx, cancel := q.callContext(ctx)
	defer cancel()
	points, err := q.client.Query(callCtx, &qdrant.QueryPoints{
		CollectionName: q.collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(topK)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, grpcStoreError("query", 0, err)
	}
	matches := make([]models.RetrievedMatch, 0, len(points))
	for _, p := range points {
		match := models.RetrievedMatch{Score: float64(p.GetScore())}
		md := payloadMetadata(p.GetPayload())
		match.ID = stringPayload(p.GetPayload(), payloadRecordID)
		if match.ID == "" {
			match.ID = p.GetId().GetUuid()
		}
		if includeMetadata {
			match.Metadata = md
		}
		matches = append(matches, match)
	}
	return matches, nil
}

// callContext applies the per-call timeout to ctx.
func (q *QdrantIndex) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if q.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, q.timeout)
}

// Close closes the gRPC connection.
func (q *QdrantIndex) Close() error {
	return q.client.Close()
}

// pointID maps a record id onto the UUID Qdrant requires. Record ids are 16
// hex-encoded bytes and map directly; anything else is hashed.
func pointID(recordID string) string {
	if raw, err := hex.DecodeString(recordID); err == nil && len(raw) == 16 {
		if id, err := uuid.FromBytes(raw); err == nil {
			return id.String()
		}
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(recordID)).String()
}

func payloadMetadata(payload map[string]*qdrant.Value) *models.MatchMetadata {
	if len(payload) == 0 {
		return nil
	}
	md := &models.MatchMetadata{
		Source: stringPayload(payload, payloadSource),
		Text:   stringPayload(payload, payloadText),
	}
	if v, ok := payload[payloadIndex]; ok {
		var index int
		switch k := v.GetKind().(type) {
		case *qdrant.Value_IntegerValue:
			index = int(k.IntegerValue)
		case *qdrant.Value_DoubleValue:
			index = int(k.DoubleValue)
		default:
			return md
		}
		md.Index = &index
	}
	return md
}

func stringPayload(payload map[string]*qdrant.Value, key string) string {
	if v, ok := payload[key]; ok {
		return v.GetStringValue()
	}
	return ""
}

func grpcStoreError(op string, batch int, err error) *VectorStoreError {
	st, _ := status.FromError(err)
	return &VectorStoreError{
		Op:      op,
		Batch:   batch,
		Status:  int(st.Code()),
		Message: st.Message(),
		Err:     err,
	}
}
