package qdrant

import (
	"context"
	"errors"
	"testing"

	pb "github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"

	"github.com/efebarandurmaz/lexrag/internal/vector"
)

// fakePoints serves payloads keyed by point UUID. Unimplemented methods of
// the embedded interface panic if called.
type fakePoints struct {
	pb.PointsClient

	byUUID    map[string]map[string]*pb.Value
	getCalls  [][]*pb.PointId
	search    *pb.SearchPoints
	searchErr error
	deleted   []*pb.PointId
	upserted  []*pb.PointStruct
}

func newFakePoints(articles map[string]string) *fakePoints {
	f := &fakePoints{byUUID: map[string]map[string]*pb.Value{}}
	for id, text := range articles {
		f.byUUID[PointID(id)] = map[string]*pb.Value{
			FieldArticleID: stringValue(id),
			FieldText:      stringValue(text),
		}
	}
	return f
}

func (f *fakePoints) Get(_ context.Context, in *pb.GetPoints, _ ...grpc.CallOption) (*pb.GetResponse, error) {
	f.getCalls = append(f.getCalls, in.GetIds())
	resp := &pb.GetResponse{}
	for _, id := range in.GetIds() {
		if payload, ok := f.byUUID[id.GetUuid()]; ok {
			resp.Result = append(resp.Result, &pb.RetrievedPoint{Id: id, Payload: payload})
		}
	}
	return resp, nil
}

func (f *fakePoints) Search(_ context.Context, in *pb.SearchPoints, _ ...grpc.CallOption) (*pb.SearchResponse, error) {
	f.search = in
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return &pb.SearchResponse{Result: []*pb.ScoredPoint{
		{Id: &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: PointID("art_7")}}, Score: 0.9,
			Payload: map[string]*pb.Value{FieldArticleID: stringValue("art_7")}},
		{Id: &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: PointID("art_2")}}, Score: 0.5,
			Payload: map[string]*pb.Value{FieldArticleID: stringValue("art_2")}},
	}}, nil
}

func (f *fakePoints) Upsert(_ context.Context, in *pb.UpsertPoints, _ ...grpc.CallOption) (*pb.PointsOperationResponse, error) {
	f.upserted = append(f.upserted, in.GetPoints()...)
	return &pb.PointsOperationResponse{}, nil
}

func (f *fakePoints) Delete(_ context.Context, in *pb.DeletePoints, _ ...grpc.CallOption) (*pb.PointsOperationResponse, error) {
	f.deleted = append(f.deleted, in.GetPoints().GetPoints().GetIds()...)
	return &pb.PointsOperationResponse{}, nil
}

type fakeCollections struct {
	pb.CollectionsClient

	exists  bool
	size    uint64
	created *pb.CreateCollection
}

func (f *fakeCollections) CollectionExists(context.Context, *pb.CollectionExistsRequest, ...grpc.CallOption) (*pb.CollectionExistsResponse, error) {
	return &pb.CollectionExistsResponse{Result: &pb.CollectionExists{Exists: f.exists}}, nil
}

func (f *fakeCollections) Get(context.Context, *pb.GetCollectionInfoRequest, ...grpc.CallOption) (*pb.GetCollectionInfoResponse, error) {
	return &pb.GetCollectionInfoResponse{Result: &pb.CollectionInfo{Config: &pb.CollectionConfig{
		Params: &pb.CollectionParams{VectorsConfig: &pb.VectorsConfig{Config: &pb.VectorsConfig_Params{
			Params: &pb.VectorParams{Size: f.size},
		}}},
	}}}, nil
}

func (f *fakeCollections) Create(_ context.Context, in *pb.CreateCollection, _ ...grpc.CallOption) (*pb.CollectionOperationResponse, error) {
	f.created = in
	return &pb.CollectionOperationResponse{Result: true}, nil
}

func TestPointID_Deterministic(t *testing.T) {
	assert.Equal(t, PointID("art_1"), PointID("art_1"))
	assert.NotEqual(t, PointID("art_1"), PointID("art_2"))
}

func TestRepository_FetchBatchesAndSkipsMissing(t *testing.T) {
	points := newFakePoints(map[string]string{"art_0": "a", "art_1": "b", "art_4": "e"})
	r := newWithClients(points, &fakeCollections{}, "laws", 2)

	got, err := r.Fetch(context.Background(), []string{"art_0", "art_1", "art_2", "art_3", "art_4"})
	require.NoError(t, err)

	assert.Len(t, points.getCalls, 3)
	assert.Equal(t, map[string]vector.Metadata{
		"art_0": {Text: "a"},
		"art_1": {Text: "b"},
		"art_4": {Text: "e"},
	}, got)
}

func TestRepository_QueryRequestsOnlyArticleID(t *testing.T) {
	points := newFakePoints(nil)
	r := newWithClients(points, &fakeCollections{}, "laws", 0)

	matches, err := r.Query(context.Background(), []float32{1, 0}, 5)
	require.NoError(t, err)

	assert.Equal(t, []vector.Match{{ID: "art_7", Score: 0.9}, {ID: "art_2", Score: 0.5}}, matches)
	assert.Equal(t, uint64(5), points.search.GetLimit())
	assert.Equal(t, []string{FieldArticleID}, points.search.GetWithPayload().GetInclude().GetFields())
}

func TestRepository_QueryMapsDimensionError(t *testing.T) {
	points := newFakePoints(nil)
	points.searchErr = errors.New("rpc error: code = InvalidArgument desc = Wrong input: Vector dimension error: expected dim: 1024, got 768")
	r := newWithClients(points, &fakeCollections{}, "laws", 0)

	_, err := r.Query(context.Background(), make([]float32, 768), 5)
	require.ErrorIs(t, err, vector.ErrDimensionMismatch)

	var de *vector.DimensionError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, 1024, de.Expected)
	assert.Equal(t, 768, de.Got)
}

func TestRepository_UpsertAndDelete(t *testing.T) {
	points := newFakePoints(nil)
	r := newWithClients(points, &fakeCollections{}, "laws", 0)
	ctx := context.Background()

	require.NoError(t, r.Upsert(ctx, []vector.Record{{
		ID:       "art_3",
		Vector:   []float32{0.1, 0.2},
		Metadata: vector.Metadata{Text: "Статья 3", Source: "Кодекс"},
	}}))
	require.Len(t, points.upserted, 1)
	p := points.upserted[0]
	assert.Equal(t, PointID("art_3"), p.GetId().GetUuid())
	assert.Equal(t, "art_3", p.GetPayload()[FieldArticleID].GetStringValue())
	assert.Equal(t, "Кодекс", p.GetPayload()[FieldSource].GetStringValue())

	require.NoError(t, r.Delete(ctx, []string{"art_3"}))
	require.Len(t, points.deleted, 1)
	assert.Equal(t, PointID("art_3"), points.deleted[0].GetUuid())

	require.NoError(t, r.Delete(ctx, nil))
	assert.Len(t, points.deleted, 1)
}

func TestRepository_EnsureCollection(t *testing.T) {
	ctx := context.Background()

	cols := &fakeCollections{}
	r := newWithClients(newFakePoints(nil), cols, "laws", 0)
	require.NoError(t, r.EnsureCollection(ctx, 1024))
	require.NotNil(t, cols.created)
	assert.Equal(t, uint64(1024), cols.created.GetVectorsConfig().GetParams().GetSize())
	assert.Equal(t, pb.Distance_Cosine, cols.created.GetVectorsConfig().GetParams().GetDistance())

	cols = &fakeCollections{exists: true, size: 1024}
	r = newWithClients(newFakePoints(nil), cols, "laws", 0)
	require.NoError(t, r.EnsureCollection(ctx, 1024))
	assert.Nil(t, cols.created)

	err := r.EnsureCollection(ctx, 768)
	assert.ErrorIs(t, err, vector.ErrDimensionMismatch)

	dims, err := r.Dimensions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1024, dims)
}
