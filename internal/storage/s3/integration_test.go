//go:build integration

package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/salesinsight/salesinsight/internal/storage"
)

func TestStoreRoundTripAgainstMinIO(t *testing.T) {
	endpoint := envOr("SALESINSIGHT_TEST_S3_ENDPOINT", "")
	if endpoint == "" {
		t.Skip("SALESINSIGHT_TEST_S3_ENDPOINT is not set")
	}

	cfg := Config{
		Endpoint:         endpoint,
		Region:           envOr("SALESINSIGHT_TEST_S3_REGION", "us-east-1"),
		Bucket:           envOr("SALESINSIGHT_TEST_S3_BUCKET", "salesinsight-it"),
		AccessKeyID:      envOr("SALESINSIGHT_TEST_S3_ACCESS_KEY", "minio"),
		SecretAccessKey:  envOr("SALESINSIGHT_TEST_S3_SECRET_KEY", "miniostorage"),
		UseSSL:           false,
		Prefix:           "integration-tests",
		AutoCreateBucket: true,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	store, err := New(ctx, cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	key := fmt.Sprintf("datasets/sales/roundtrip-%d.csv", time.Now().UnixNano())
	payload := []byte("date,ticket_number\n2024-01-01,T1\n")

	if _, err := store.Put(ctx, key, bytes.NewReader(payload), int64(len(payload)), storage.PutOptions{ContentType: storage.ContentType(storage.FormatCSV)}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	stat, err := store.Stat(ctx, key)
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if stat.Size != int64(len(payload)) {
		t.Fatalf("Stat().Size = %d, want %d", stat.Size, len(payload))
	}

	reader, err := store.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	readPayload, err := io.ReadAll(reader)
	if err != nil {
		t.Fatalf("io.ReadAll() error = %v", err)
	}
	if err := reader.Close(); err != nil {
		t.Fatalf("reader.Close() error = %v", err)
	}
	if !bytes.Equal(readPayload, payload) {
		t.Fatalf("Get() payload = %q, want %q", string(readPayload), string(payload))
	}

	listed, err := store.List(ctx, "datasets/sales")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	found := false
	for _, object := range listed {
		found = found || object.Key == key
	}
	if !found {
		t.Fatalf("List() = %+v, missing %q", listed, key)
	}
	if _, err := store.Stat(ctx, "datasets/sales/missing.csv"); !errors.Is(err, storage.ErrObjectNotFound) {
		t.Fatalf("Stat() of missing key error = %v, want ErrObjectNotFound", err)
	}
}

func envOr(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}
