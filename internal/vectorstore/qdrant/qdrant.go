// Package qdrant stores chunk vectors in a Qdrant collection over gRPC.
package qdrant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"docseek/internal/domain"
	"docseek/internal/vectorstore"
)

const (
	payloadContent  = "page_content"
	payloadMetadata = "metadata"
	upsertBatch     = 100
)

type Config struct {
	Addr       string
	Collection string
	Timeout    time.Duration
}

// Backend implements vectorstore.Backend. Points are keyed by record id and
// carry the chunk text and JSON metadata as payload. The collection uses
// cosine distance, so Persist has nothing to write.
type Backend struct {
	conn        *grpc.ClientConn
	collections pb.CollectionsClient
	points      pb.PointsClient
	collection  string
	timeout     time.Duration
}

// Dial connects to the Qdrant gRPC endpoint, e.g. localhost:6334.
func Dial(cfg Config) (*Backend, error) {
	conn, err := grpc.NewClient(cfg.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("connect qdrant %s: %w", cfg.Addr, err)
	}
	b := NewWithClients(pb.NewCollectionsClient(conn), pb.NewPointsClient(conn), cfg)
	b.conn = conn
	return b, nil
}

// NewWithClients builds a backend from existing gRPC clients.
func NewWithClients(collections pb.CollectionsClient, points pb.PointsClient, cfg Config) *Backend {
	if cfg.Collection == "" {
		cfg.Collection = "langchain-rs"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Backend{
		collections: collections,
		points:      points,
		collection:  cfg.Collection,
		timeout:     cfg.Timeout,
	}
}

// Open creates the collection when it does not exist. An existing collection
// counts as loaded state.
func (b *Backend) Open(ctx context.Context, _ vectorstore.Layout, dimension int) (bool, error) {
	if dimension <= 0 {
		return false, fmt.Errorf("invalid dimension %d", dimension)
	}
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	list, err := b.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return false, fmt.Errorf("list collections: %w", err)
	}
	for _, c := range list.GetCollections() {
		if c.GetName() == b.collection {
			return true, nil
		}
	}
	_, err = b.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: b.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(dimension),
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return false, fmt.Errorf("create collection %s: %w", b.collection, err)
	}
	return false, nil
}

func (b *Backend) Add(ctx context.Context, entries []vectorstore.Entry) error {
	wait := true
	for start := 0; start < len(entries); start += upsertBatch {
		end := min(start+upsertBatch, len(entries))
		points := make([]*pb.PointStruct, 0, end-start)
		for _, e := range entries[start:end] {
			p, err := toPoint(e)
			if err != nil {
				return err
			}
			points = append(points, p)
		}
		cctx, cancel := context.WithTimeout(ctx, b.timeout)
		_, err := b.points.Upsert(cctx, &pb.UpsertPoints{
			CollectionName: b.collection,
			Wait:           &wait,
			Points:         points,
		})
		cancel()
		if err != nil {
			return fmt.Errorf("upsert points: %w", err)
		}
	}
	return nil
}

func (b *Backend) Search(ctx context.Context, vector []float32, k int) ([]vectorstore.Hit, error) {
	if k <= 0 {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	resp, err := b.points.Search(ctx, &pb.SearchPoints{
		CollectionName: b.collection,
		Vector:         vector,
		Limit:          uint64(k),
		WithPayload: &pb.WithPayloadSelector{
			SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("search points: %w", err)
	}
	hits := make([]vectorstore.Hit, 0, len(resp.GetResult()))
	for _, sp := range resp.GetResult() {
		doc, err := fromPayload(sp.GetId().GetUuid(), sp.GetPayload())
		if err != nil {
			return nil, err
		}
		score := float64(sp.GetScore())
		hits = append(hits, vectorstore.Hit{
			ID:       doc.ID,
			Score:    score,
			Distance: 2 - 2*score,
			Document: doc,
		})
	}
	return hits, nil
}

func (b *Backend) Persist(vectorstore.Layout) error { return nil }

func (b *Backend) Len(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	exact := true
	resp, err := b.points.Count(ctx, &pb.CountPoints{CollectionName: b.collection, Exact: &exact})
	if err != nil {
		return 0, fmt.Errorf("count points: %w", err)
	}
	return int(resp.GetResult().GetCount()), nil
}

func (b *Backend) Close() error {
	if b.conn == nil {
		return nil
	}
	return b.conn.Close()
}

func toPoint(e vectorstore.Entry) (*pb.PointStruct, error) {
	if e.ID == "" {
		return nil, errors.New("point without id")
	}
	meta, err := json.Marshal(e.Document.Metadata)
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}
	return &pb.PointStruct{
		Id: &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: e.ID}},
		Vectors: &pb.Vectors{
			VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: e.Vector}},
		},
		Payload: map[string]*pb.Value{
			payloadContent:  {Kind: &pb.Value_StringValue{StringValue: e.Document.Content}},
			payloadMetadata: {Kind: &pb.Value_StringValue{StringValue: string(meta)}},
		},
	}, nil
}

func fromPayload(id string, payload map[string]*pb.Value) (domain.Document, error) {
	doc := domain.Document{ID: id, Content: payload[payloadContent].GetStringValue()}
	if raw := payload[payloadMetadata].GetStringValue(); raw != "" {
		if err := json.Unmarshal([]byte(raw), &doc.Metadata); err != nil {
			return doc, fmt.Errorf("decode metadata of %s: %w", id, err)
		}
	}
	return doc, nil
}
