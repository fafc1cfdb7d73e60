// Package storage provides an abstraction layer for object storage services.
//
// It wraps the MinIO Go client, which speaks to both AWS S3 and self-hosted
// MinIO. Object storage serves two purposes here: a flat-file source can read
// its extract from a bucket, and each run can leave its report behind as a
// single JSON object that is overwritten by the next run.
//
// # Client Interface
//
// The Client interface abstracts the underlying storage provider, making it easier
// to mock storage interactions for unit testing (as seen in core/storage/mocks).
//
// # Usage
//
//	client, err := storage.NewClient(cfg.Storage)
//	data, err := storage.ReadObject(ctx, client, cfg.Storage.Bucket, "users.csv")
//	err = storage.WriteJSON(ctx, client, cfg.Storage.Bucket, "reports/latest.json", report)
package storage
