// Package blobstore implements a [fetch.Backend] on top of a gocloud.dev
// bucket, so the same download code works against S3, GCS, local
// directories and in-memory buckets.
//
// Sizes come from object attributes and parts are read with range readers.
// gocloud error codes are mapped to fetch error kinds; anything without a
// specific mapping is treated as transient and retried by the engine.
//
// # Usage
//
//	store, err := blobstore.Open(ctx, "s3://my-bucket?region=us-east-1")
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//
//	d, err := fetch.New(store, fetch.Config{})
//	if err != nil {
//	    return err
//	}
//	data, err := d.Get(ctx, "path/to/object", fetch.Full())
package blobstore
