// Package archive provides usage.ArchiveSink implementations for the CSV
// reports written by monthly archival: S3Sink for S3 and S3-compatible
// object storage (aws-sdk-go-v2) and LocalSink for a directory on disk.
package archive
