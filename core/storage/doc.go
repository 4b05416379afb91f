// Package storage moves recording blobs between servers.
//
// A record is stored as a main file plus companion files sharing its stem (for example
// "10-00.mp3" and "10-00.json"). A Transfer copies the whole group into a directory of
// the receiving server and never replaces a file that is already there.
//
// # Transfers
//
//   - FileTransfer works on mounted file systems through afero, so tests run on an
//     in-memory file system.
//   - ObjectTransfer performs server-side copies on S3 compatible storage through the
//     MinIO client. Paths are "bucket/key".
//
// # Client Interface
//
// The Client interface wraps the MinIO client methods used by ObjectTransfer, making it
// easy to mock storage interactions in tests (see core/storage/mocks).
//
// # Usage
//
//	transfer, err := storage.NewTransfer(storage.ModeFile, cfg)
//	err = transfer.Copy(ctx, "/mnt/fs_svr2/recording/radio/10-00.mp3", "/mnt/fs_svr1/recording/radio")
package storage
