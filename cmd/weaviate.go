package cmd

import (
	"context"
	"crypto/tls"
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/retry"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/weaviate/weaviate-go-client/v4/weaviate"
	"github.com/weaviate/weaviate/entities/models"
	weaviategrpc "github.com/weaviate/weaviate/grpc/generated/protocol/v1"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/anskarl/swiftlearner/idx"
)

// Batch of vectors, their labels and the position of the first one in the split
type Batch struct {
	Vectors [][]float32
	Labels  []idx.Label
	Offset  int
}

// Convert an int to a uuid formatted string
func uuidFromInt(val int) string {
	bytes := make([]byte, 16)
	binary.BigEndian.PutUint64(bytes[8:], uint64(val))
	id, err := uuid.FromBytes(bytes)
	if err != nil {
		panic(err)
	}

	return id.String()
}

func encodeVector(fs []float32) []byte {
	buf := make([]byte, len(fs)*4)
	for i, f := range fs {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func createClient(cfg *Config) (*weaviate.Client, error) {
	wcfg := weaviate.Config{
		Host:   cfg.HttpOrigin,
		Scheme: cfg.HttpScheme,
	}
	if cfg.HttpAuth != "" {
		wcfg.Headers = map[string]string{"Authorization": fmt.Sprintf("Bearer %s", cfg.HttpAuth)}
	}

	client, err := weaviate.NewClient(wcfg)
	return client, errors.Wrap(err, "create weaviate client")
}

func classDefinition(cfg *Config) *models.Class {
	return &models.Class{
		Class:       cfg.ClassName,
		Description: fmt.Sprintf("MNIST %s split imported at %s", cfg.Split, time.Now().Format(time.RFC3339)),
		Vectorizer:  "none",
		Properties: []*models.Property{
			{Name: "label", DataType: []string{"int"}},
			{Name: "split", DataType: []string{"text"}},
		},
		VectorIndexConfig: map[string]interface{}{
			"distance": cfg.DistanceMetric,
		},
	}
}

// Re/create the Weaviate class the examples are imported into
func createSchema(ctx context.Context, cfg *Config, client *weaviate.Client) error {
	exists, err := client.Schema().ClassExistenceChecker().WithClassName(cfg.ClassName).Do(ctx)
	if err != nil {
		return errors.Wrapf(err, "check class %s", cfg.ClassName)
	}

	if exists {
		if err := client.Schema().ClassDeleter().WithClassName(cfg.ClassName).Do(ctx); err != nil {
			return errors.Wrapf(err, "delete class %s", cfg.ClassName)
		}
		log.WithField("class", cfg.ClassName).Info("Deleted existing class")
	}

	if err := client.Schema().ClassCreator().WithClass(classDefinition(cfg)).Do(ctx); err != nil {
		return errors.Wrapf(err, "create class %s", cfg.ClassName)
	}

	log.Printf("Created class %s", cfg.ClassName)
	return nil
}

func dialGrpc(ctx context.Context, cfg *Config) (*grpc.ClientConn, error) {
	grpcCtx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	httpOption := grpc.WithTransportCredentials(insecure.NewCredentials())
	if cfg.HttpScheme == "https" {
		creds := credentials.NewTLS(&tls.Config{
			InsecureSkipVerify: true,
		})
		httpOption = grpc.WithTransportCredentials(creds)
	}

	opts := []retry.CallOption{
		retry.WithBackoff(retry.BackoffExponential(100 * time.Millisecond)),
	}

	grpcConn, err := grpc.DialContext(grpcCtx, cfg.Origin, httpOption,
		grpc.WithUnaryInterceptor(retry.UnaryClientInterceptor(opts...)))
	return grpcConn, errors.Wrapf(err, "connect to %s", cfg.Origin)
}

// Writes a single batch of vectors to Weaviate using gRPC
func writeChunk(ctx context.Context, chunk *Batch, client weaviategrpc.WeaviateClient, cfg *Config) error {
	objects := make([]*weaviategrpc.BatchObject, len(chunk.Vectors))

	for i, vector := range chunk.Vectors {
		properties, err := structpb.NewStruct(map[string]interface{}{
			"label": int(chunk.Labels[i]),
			"split": cfg.Split,
		})
		if err != nil {
			return errors.Wrap(err, "build object properties")
		}

		objects[i] = &weaviategrpc.BatchObject{
			Uuid:        uuidFromInt(i + chunk.Offset),
			VectorBytes: encodeVector(vector),
			Collection:  cfg.ClassName,
			Properties: &weaviategrpc.BatchObject_Properties{
				NonRefProperties: properties,
			},
		}
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if cfg.HttpAuth != "" {
		md := metadata.Pairs(
			"Authorization", fmt.Sprintf("Bearer %s", cfg.HttpAuth),
		)
		ctx = metadata.NewOutgoingContext(ctx, md)
	}

	reply, err := client.BatchObjects(ctx, &weaviategrpc.BatchObjectsRequest{Objects: objects})
	if err != nil {
		return errors.Wrapf(err, "send batch at offset %d", chunk.Offset)
	}

	if batchErrors := reply.GetErrors(); len(batchErrors) > 0 {
		for _, e := range batchErrors {
			log.WithFields(log.Fields{"index": int(e.Index) + chunk.Offset}).Error(e.Error)
		}
		return errors.Errorf("%d of %d objects at offset %d failed", len(batchErrors), len(objects), chunk.Offset)
	}

	return nil
}
