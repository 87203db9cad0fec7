// Package blob stores finished episode audio.
//
// The s3 backend targets any S3-compatible service (AWS, MinIO, R2) through
// aws-sdk-go-v2 and hands out presigned GET URLs. The fs backend keeps
// objects under a local directory for development and tests, writing each
// object atomically through a temporary file.
package blob
