// Package gcs mirrors pipeline artifacts to Google Cloud Storage.
package gcs

import "context"

// StorageService provides an interface for cloud storage operations.
// This interface enables mocking and testing of sync functionality.
type StorageService interface {
	// UploadFile uploads a local file to a storage bucket under the given object name.
	UploadFile(ctx context.Context, bucketName, objectName, filePath string) error

	// DownloadFile fetches an object's bytes from a bucket.
	DownloadFile(ctx context.Context, bucketName, objectName string) ([]byte, error)

	// ListObjects returns the object names under a prefix in a bucket.
	ListObjects(ctx context.Context, bucketName, prefix string) ([]string, error)
}
