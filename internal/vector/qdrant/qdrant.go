// Package qdrant implements vector.Index on a Qdrant collection over gRPC.
package qdrant

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"

	"github.com/efebarandurmaz/lexrag/internal/vector"
)

// Payload fields written at ingestion.
const (
	FieldArticleID = "article_id"
	FieldText      = "text"
	FieldSource    = "source"
)

// DefaultFetchBatch is the number of ids requested per GetPoints call.
const DefaultFetchBatch = 100

// pointNamespace seeds the name-based UUIDs used as Qdrant point ids, so the
// same article id always maps to the same point.
var pointNamespace = uuid.MustParse("6f1c1f0e-5b8e-4d8a-9a57-3c0d3b1e0a11")

// Options configures a connection.
type Options struct {
	Host       string
	Port       int
	Collection string
	APIKey     string
	UseTLS     bool
	FetchBatch int
}

// Repository implements vector.Index using Qdrant.
type Repository struct {
	conn        *grpc.ClientConn
	points      pb.PointsClient
	collections pb.CollectionsClient
	collection  string
	fetchBatch  int
}

// New dials Qdrant. The connection is lazy, so an unreachable server surfaces
// on the first call rather than here.
func New(ctx context.Context, opts Options) (*Repository, error) {
	if opts.Collection == "" {
		return nil, errors.New("qdrant: collection name is required")
	}
	addr := fmt.Sprintf("%s:%d", opts.Host, opts.Port)

	dialOpts := []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	if opts.UseTLS {
		dialOpts[0] = grpc.WithTransportCredentials(credentials.NewClientTLSFromCert(nil, ""))
	}
	if opts.APIKey != "" {
		dialOpts = append(dialOpts, grpc.WithUnaryInterceptor(apiKeyInterceptor(opts.APIKey)))
	}

	conn, err := grpc.NewClient(addr, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("qdrant connect: %w", err)
	}
	r := newWithClients(pb.NewPointsClient(conn), pb.NewCollectionsClient(conn), opts.Collection, opts.FetchBatch)
	r.conn = conn
	return r, nil
}

func newWithClients(points pb.PointsClient, collections pb.CollectionsClient, collection string, fetchBatch int) *Repository {
	if fetchBatch <= 0 {
		fetchBatch = DefaultFetchBatch
	}
	return &Repository{
		points:      points,
		collections: collections,
		collection:  collection,
		fetchBatch:  fetchBatch,
	}
}

func apiKeyInterceptor(key string) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		return invoker(metadata.AppendToOutgoingContext(ctx, "api-key", key), method, req, reply, cc, opts...)
	}
}

// PointID returns the Qdrant point id for an article id.
func PointID(articleID string) string {
	return uuid.NewSHA1(pointNamespace, []byte(articleID)).String()
}

func pointIDs(ids []string) []*pb.PointId {
	out := make([]*pb.PointId, len(ids))
	for i, id := range ids {
		out[i] = &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: PointID(id)}}
	}
	return out
}

func stringValue(s string) *pb.Value {
	return &pb.Value{Kind: &pb.Value_StringValue{StringValue: s}}
}

func (r *Repository) Upsert(ctx context.Context, records []vector.Record) error {
	if len(records) == 0 {
		return nil
	}
	points := make([]*pb.PointStruct, len(records))
	for i, rec := range records {
		payload := map[string]*pb.Value{
			FieldArticleID: stringValue(rec.ID),
			FieldText:      stringValue(rec.Metadata.Text),
		}
		if rec.Metadata.Source != "" {
			payload[FieldSource] = stringValue(rec.Metadata.Source)
		}
		points[i] = &pb.PointStruct{
			Id:      &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: PointID(rec.ID)}},
			Vectors: &pb.Vectors{VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: rec.Vector}}},
			Payload: payload,
		}
	}

	wait := true
	_, err := r.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: r.collection,
		Wait:           &wait,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("qdrant upsert: %w", mapError(err))
	}
	return nil
}

// Query searches without loading article bodies; only the article id is
// read from the payload.
func (r *Repository) Query(ctx context.Context, vec []float32, topK int) ([]vector.Match, error) {
	if topK <= 0 {
		return []vector.Match{}, nil
	}
	resp, err := r.points.Search(ctx, &pb.SearchPoints{
		CollectionName: r.collection,
		Vector:         vec,
		Limit:          uint64(topK),
		WithPayload: &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Include{
			Include: &pb.PayloadIncludeSelector{Fields: []string{FieldArticleID}},
		}},
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant search: %w", mapError(err))
	}

	matches := make([]vector.Match, 0, len(resp.GetResult()))
	for _, pt := range resp.GetResult() {
		id := pt.GetPayload()[FieldArticleID].GetStringValue()
		if id == "" {
			id = pt.GetId().GetUuid()
		}
		matches = append(matches, vector.Match{ID: id, Score: pt.GetScore()})
	}
	return matches, nil
}

// Fetch loads metadata in batches of fetchBatch ids.
func (r *Repository) Fetch(ctx context.Context, ids []string) (map[string]vector.Metadata, error) {
	out := make(map[string]vector.Metadata, len(ids))
	for start := 0; start < len(ids); start += r.fetchBatch {
		end := min(start+r.fetchBatch, len(ids))
		resp, err := r.points.Get(ctx, &pb.GetPoints{
			CollectionName: r.collection,
			Ids:            pointIDs(ids[start:end]),
			WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
		})
		if err != nil {
			return nil, fmt.Errorf("qdrant get: %w", mapError(err))
		}
		for _, pt := range resp.GetResult() {
			payload := pt.GetPayload()
			id := payload[FieldArticleID].GetStringValue()
			if id == "" {
				continue
			}
			out[id] = vector.Metadata{
				Text:   payload[FieldText].GetStringValue(),
				Source: payload[FieldSource].GetStringValue(),
			}
		}
	}
	return out, nil
}

func (r *Repository) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	wait := true
	_, err := r.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: r.collection,
		Wait:           &wait,
		Points: &pb.PointsSelector{PointsSelectorOneOf: &pb.PointsSelector_Points{
			Points: &pb.PointsIdsList{Ids: pointIDs(ids)},
		}},
	})
	if err != nil {
		return fmt.Errorf("qdrant delete: %w", mapError(err))
	}
	return nil
}

func (r *Repository) Dimensions(ctx context.Context) (int, error) {
	resp, err := r.collections.Get(ctx, &pb.GetCollectionInfoRequest{CollectionName: r.collection})
	if err != nil {
		return 0, fmt.Errorf("qdrant collection info: %w", err)
	}
	size := resp.GetResult().GetConfig().GetParams().GetVectorsConfig().GetParams().GetSize()
	return int(size), nil
}

// EnsureCollection creates the collection with cosine distance if it does
// not exist. An existing collection of a different size is an error.
func (r *Repository) EnsureCollection(ctx context.Context, dims int) error {
	exists, err := r.collections.CollectionExists(ctx, &pb.CollectionExistsRequest{CollectionName: r.collection})
	if err != nil {
		return fmt.Errorf("qdrant collection exists: %w", err)
	}
	if exists.GetResult().GetExists() {
		got, err := r.Dimensions(ctx)
		if err != nil {
			return err
		}
		if got != dims {
			return &vector.DimensionError{Expected: got, Got: dims}
		}
		return nil
	}

	_, err = r.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: r.collection,
		VectorsConfig: &pb.VectorsConfig{Config: &pb.VectorsConfig_Params{
			Params: &pb.VectorParams{Size: uint64(dims), Distance: pb.Distance_Cosine},
		}},
	})
	if err != nil {
		return fmt.Errorf("qdrant create collection: %w", err)
	}
	return nil
}

func (r *Repository) Close() error {
	if r.conn == nil {
		return nil
	}
	return r.conn.Close()
}

var dimPattern = regexp.MustCompile(`expected dim:\s*(\d+),\s*got\s*(\d+)`)

// mapError turns Qdrant's vector dimension complaints into
// vector.DimensionError. Other errors pass through.
func mapError(err error) error {
	msg := err.Error()
	if !strings.Contains(strings.ToLower(msg), "dimension error") {
		return err
	}
	de := &vector.DimensionError{}
	if m := dimPattern.FindStringSubmatch(msg); m != nil {
		de.Expected, _ = strconv.Atoi(m[1])
		de.Got, _ = strconv.Atoi(m[2])
	}
	return fmt.Errorf("%w (%s)", de, msg)
}

var (
	_ vector.Index       = (*Repository)(nil)
	_ vector.Provisioner = (*Repository)(nil)
)
