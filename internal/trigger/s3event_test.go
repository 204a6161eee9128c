package trigger

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-lambda-go/events"

	"github.com/fpang/image-thumbnailer/internal/thumbnail"
)

type fakeProcessor struct {
	fail map[string]bool
	reqs []thumbnail.ResizeRequest
}

func (p *fakeProcessor) Process(ctx context.Context, req thumbnail.ResizeRequest) thumbnail.ResizeResult {
	p.reqs = append(p.reqs, req)
	if p.fail[req.ImageKey] {
		return thumbnail.ResizeResult{
			OriginalKey: req.ImageKey,
			Err:         &thumbnail.Error{Kind: thumbnail.StorageReadError, Op: "fetch", Err: errors.New("gone")},
		}
	}
	return thumbnail.ResizeResult{
		Success:      true,
		OriginalKey:  req.ImageKey,
		ThumbnailKey: thumbnail.ThumbnailKey(req.ImageKey),
	}
}

func s3Event(bucket string, keys ...string) events.S3Event {
	var ev events.S3Event
	for _, k := range keys {
		ev.Records = append(ev.Records, events.S3EventRecord{
			S3: events.S3Entity{
				Bucket: events.S3Bucket{Name: bucket},
				Object: events.S3Object{Key: k},
			},
		})
	}
	return ev
}

func TestHandleS3Event_DecodesKeys(t *testing.T) {
	proc := &fakeProcessor{}
	batch, err := HandleS3Event(context.Background(), proc, s3Event("photos", "holiday/my+cat%281%29.jpg"), "thumbs", nil)
	if err != nil {
		t.Fatalf("HandleS3Event() error = %v", err)
	}
	if len(proc.reqs) != 1 {
		t.Fatalf("processed %d requests", len(proc.reqs))
	}
	want := thumbnail.ResizeRequest{SourceBucket: "photos", ImageKey: "holiday/my cat(1).jpg", DestinationBucket: "thumbs"}
	if proc.reqs[0] != want {
		t.Errorf("request = %+v, want %+v", proc.reqs[0], want)
	}
	if batch.Processed != 1 || len(batch.Keys) != 1 || batch.Keys[0] != "thumbnail-holiday/my cat(1).jpg" {
		t.Errorf("batch = %+v", batch)
	}
}

func TestHandleS3Event_SkipsThumbnails(t *testing.T) {
	proc := &fakeProcessor{}
	batch, err := HandleS3Event(context.Background(), proc, s3Event("b", "thumbnail-cat.jpg", "dir/thumbnail-dog.png", "cat.jpg"), "b", nil)
	if err != nil {
		t.Fatal(err)
	}
	if batch.Skipped != 2 || batch.Processed != 1 {
		t.Errorf("batch = %+v, want 2 skipped and 1 processed", batch)
	}
}

func TestHandleS3Event_PartialFailure(t *testing.T) {
	proc := &fakeProcessor{fail: map[string]bool{"a.jpg": true}}
	var seen int
	batch, err := HandleS3Event(context.Background(), proc, s3Event("b", "a.jpg", "b.jpg"), "d", func(thumbnail.ResizeResult) { seen++ })
	if err != nil {
		t.Fatalf("partial failure should not error, got %v", err)
	}
	if batch.Failed != 1 || batch.Processed != 1 || seen != 2 {
		t.Errorf("batch = %+v, hook calls = %d", batch, seen)
	}
}

func TestHandleS3Event_AllFailed(t *testing.T) {
	proc := &fakeProcessor{fail: map[string]bool{"a.jpg": true, "b.jpg": true}}
	_, err := HandleS3Event(context.Background(), proc, s3Event("b", "a.jpg", "b.jpg"), "d", nil)
	if err == nil {
		t.Fatal("expected an error when every record failed")
	}
	if thumbnail.KindOf(err) != thumbnail.StorageReadError {
		t.Errorf("KindOf = %s, want StorageReadError", thumbnail.KindOf(err))
	}
}

func TestHandleS3Event_Empty(t *testing.T) {
	batch, err := HandleS3Event(context.Background(), &fakeProcessor{}, events.S3Event{}, "d", nil)
	if err != nil || batch.Processed != 0 {
		t.Errorf("batch = %+v, err = %v", batch, err)
	}
}

func TestIsThumbnailKey(t *testing.T) {
	tests := map[string]bool{
		"thumbnail-cat.jpg":     true,
		"a/b/thumbnail-cat.jpg": true,
		"thumbnail-dir/cat.jpg": true,
		"cat.jpg":               false,
		"dir/cat.jpg":           false,
		"my-thumbnail-cat.jpg":  false,
	}
	for key, want := range tests {
		if got := IsThumbnailKey(key); got != want {
			t.Errorf("IsThumbnailKey(%q) = %v, want %v", key, got, want)
		}
	}
}
