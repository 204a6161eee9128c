package thumbnail

import "context"

// Object is the content of a stored blob together with its declared MIME type.
type Object struct {
	Data        []byte
	ContentType string
}

// Getter reads objects from a source store.
type Getter interface {
	Get(ctx context.Context, bucket, key string) (*Object, error)
}

// Putter writes objects to a destination store.
type Putter interface {
	Put(ctx context.Context, bucket, key string, data []byte, contentType string) error
}

// Store is a key-addressed blob store with bucket + key addressing.
type Store interface {
	Getter
	Putter
}
