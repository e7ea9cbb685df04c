package archive

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
)

type fakeObjects struct {
	buckets map[string]bool
	objects map[string][]byte
	types   map[string]string
	putErr  error
}

func newFakeObjects() *fakeObjects {
	return &fakeObjects{buckets: map[string]bool{}, objects: map[string][]byte{}, types: map[string]string{}}
}

func (f *fakeObjects) BucketExists(_ context.Context, bucket string) (bool, error) {
	return f.buckets[bucket], nil
}

func (f *fakeObjects) MakeBucket(_ context.Context, bucket string, _ minio.MakeBucketOptions) error {
	f.buckets[bucket] = true
	return nil
}

func (f *fakeObjects) PutObject(_ context.Context, bucket, object string, r io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	if f.putErr != nil {
		return minio.UploadInfo{}, f.putErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return minio.UploadInfo{}, err
	}
	if int64(len(data)) != size {
		return minio.UploadInfo{}, errors.New("size mismatch")
	}
	f.objects[bucket+"/"+object] = data
	f.types[bucket+"/"+object] = opts.ContentType
	return minio.UploadInfo{Bucket: bucket, Key: object, Size: size}, nil
}

func sampleRecord() Record {
	return Record{
		RequestID:       "req-1",
		FlightPlanID:    "fp-1",
		SatelliteID:     "sat-1",
		GroundStationID: "gs-1",
		ExecutionTime:   time.Date(2021, 10, 3, 6, 30, 0, 0, time.UTC),
		TransmittedAt:   time.Date(2021, 10, 3, 6, 29, 0, 0, time.UTC),
		Script:          []string{"set pipeline_run 2 -n 162"},
	}
}

func TestPutWritesJSONObject(t *testing.T) {
	objects := newFakeObjects()
	store := New(objects, "transmissions", "prod", nil)

	key, err := store.Put(context.Background(), sampleRecord())
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if key != "prod/sat-1/2021/10/03/fp-1-req-1.json" {
		t.Fatalf("key = %q", key)
	}
	data, ok := objects.objects["transmissions/"+key]
	if !ok {
		t.Fatalf("object not written")
	}
	if objects.types["transmissions/"+key] != "application/json" {
		t.Fatalf("content type = %q", objects.types["transmissions/"+key])
	}
	var got Record
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.FlightPlanID != "fp-1" || len(got.Script) != 1 || !got.ExecutionTime.Equal(sampleRecord().ExecutionTime) {
		t.Fatalf("record = %+v", got)
	}
}

func TestPutWrapsClientErrors(t *testing.T) {
	objects := newFakeObjects()
	objects.putErr = errors.New("access denied")
	store := New(objects, "transmissions", "", nil)

	_, err := store.Put(context.Background(), sampleRecord())
	if !errors.Is(err, objects.putErr) {
		t.Fatalf("err = %v, want wrapped client error", err)
	}
}

func TestEnsureBucketCreatesOnce(t *testing.T) {
	objects := newFakeObjects()
	store := New(objects, "transmissions", "", nil)

	for i := 0; i < 2; i++ {
		if err := store.EnsureBucket(context.Background()); err != nil {
			t.Fatalf("EnsureBucket: %v", err)
		}
	}
	if !objects.buckets["transmissions"] {
		t.Fatalf("bucket not created")
	}
}

func TestKeyWithoutPrefix(t *testing.T) {
	if got := Key("", sampleRecord()); got != "sat-1/2021/10/03/fp-1-req-1.json" {
		t.Fatalf("Key = %q", got)
	}
}

func TestNewMinIOClientNeedsEndpoint(t *testing.T) {
	if _, err := NewMinIOClient(Config{}); err == nil {
		t.Fatalf("expected an error without an endpoint")
	}
	if _, err := NewMinIOClient(Config{Endpoint: "localhost:9000", AccessKeyID: "a", SecretAccessKey: "b"}); err != nil {
		t.Fatalf("NewMinIOClient: %v", err)
	}
}
