package storage_test

import (
	"context"
	"errors"
	"testing"

	"record-sync/core/storage"
	"record-sync/core/storage/mocks"

	"github.com/minio/minio-go/v7"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, fs afero.Fs, name, content string) {
	t.Helper()
	require.NoError(t, afero.WriteFile(fs, name, []byte(content), 0o644))
}

func readFile(t *testing.T, fs afero.Fs, name string) string {
	t.Helper()
	data, err := afero.ReadFile(fs, name)
	require.NoError(t, err)
	return string(data)
}

// TestFileTransfer_CopiesStemSiblings tests that every companion blob is copied.
func TestFileTransfer_CopiesStemSiblings(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/mnt/fs_svr2/recording/radio/2024-03-10_10-00.mp3", "audio")
	writeFile(t, fs, "/mnt/fs_svr2/recording/radio/2024-03-10_10-00.json", "meta")
	writeFile(t, fs, "/mnt/fs_svr2/recording/radio/2024-03-10_11-00.mp3", "next hour")

	tr := storage.NewFileTransfer(fs)
	err := tr.Copy(context.Background(), "/mnt/fs_svr2/recording/radio/2024-03-10_10-00.mp3", "/mnt/fs_svr1/recording/radio")
	require.NoError(t, err)

	assert.Equal(t, "audio", readFile(t, fs, "/mnt/fs_svr1/recording/radio/2024-03-10_10-00.mp3"))
	assert.Equal(t, "meta", readFile(t, fs, "/mnt/fs_svr1/recording/radio/2024-03-10_10-00.json"))

	exists, err := afero.Exists(fs, "/mnt/fs_svr1/recording/radio/2024-03-10_11-00.mp3")
	require.NoError(t, err)
	assert.False(t, exists)

	exists, err = afero.Exists(fs, "/mnt/fs_svr1/recording/radio/2024-03-10_10-00.mp3.part")
	require.NoError(t, err)
	assert.False(t, exists)
}

// TestFileTransfer_NeverOverwrites tests that existing local blobs are kept.
func TestFileTransfer_NeverOverwrites(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/src/a.mp3", "remote")
	writeFile(t, fs, "/dst/a.mp3", "local")

	err := storage.NewFileTransfer(fs).Copy(context.Background(), "/src/a.mp3", "/dst")
	require.NoError(t, err)
	assert.Equal(t, "local", readFile(t, fs, "/dst/a.mp3"))
}

func TestFileTransfer_MissingSource(t *testing.T) {
	fs := afero.NewMemMapFs()
	err := storage.NewFileTransfer(fs).Copy(context.Background(), "/src/missing.mp3", "/dst")
	assert.ErrorIs(t, err, storage.ErrNoBlobs)
}

func TestFileTransfer_StemWithGlobCharacters(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/src/[live] show.mp3", "x")
	writeFile(t, fs, "/src/l show.mp3", "y")

	err := storage.NewFileTransfer(fs).Copy(context.Background(), "/src/[live] show.mp3", "/dst")
	require.NoError(t, err)

	assert.Equal(t, "x", readFile(t, fs, "/dst/[live] show.mp3"))
	exists, _ := afero.Exists(fs, "/dst/l show.mp3")
	assert.False(t, exists)
}

func TestFileTransfer_CancelledContext(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/src/a.mp3", "x")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := storage.NewFileTransfer(fs).Copy(ctx, "/src/a.mp3", "/dst")
	assert.ErrorIs(t, err, context.Canceled)
}

// TestObjectTransfer_Copy tests server-side copies between buckets.
func TestObjectTransfer_Copy(t *testing.T) {
	ctx := context.Background()
	client := new(mocks.Client)

	client.On("ListObjects", ctx, "svr2", minio.ListObjectsOptions{Prefix: "recorded/radio/10-00"}).
		Return(mocks.ObjectChannel(
			minio.ObjectInfo{Key: "recorded/radio/10-00.mp3"},
			minio.ObjectInfo{Key: "recorded/radio/10-00.json"},
			minio.ObjectInfo{Key: "recorded/radio/10-00/"},
		))

	notFound := minio.ErrorResponse{Code: "NoSuchKey"}
	client.On("StatObject", ctx, "svr1", "recorded/radio/10-00.mp3", mock.Anything).
		Return(minio.ObjectInfo{}, notFound)
	client.On("StatObject", ctx, "svr1", "recorded/radio/10-00.json", mock.Anything).
		Return(minio.ObjectInfo{Key: "recorded/radio/10-00.json"}, nil)
	client.On("CopyObject", ctx,
		minio.CopyDestOptions{Bucket: "svr1", Object: "recorded/radio/10-00.mp3"},
		minio.CopySrcOptions{Bucket: "svr2", Object: "recorded/radio/10-00.mp3"}).
		Return(minio.UploadInfo{}, nil).Once()

	tr := storage.NewObjectTransfer(client)
	err := tr.Copy(ctx, "svr2/recorded/radio/10-00.mp3", "svr1/recorded/radio")
	require.NoError(t, err)

	client.AssertExpectations(t)
	client.AssertNumberOfCalls(t, "CopyObject", 1)
}

func TestObjectTransfer_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("Nothing listed", func(t *testing.T) {
		client := new(mocks.Client)
		client.On("ListObjects", ctx, "svr2", mock.Anything).Return(mocks.ObjectChannel())

		err := storage.NewObjectTransfer(client).Copy(ctx, "svr2/a.mp3", "svr1")
		assert.ErrorIs(t, err, storage.ErrNoBlobs)
	})

	t.Run("Stat failure", func(t *testing.T) {
		client := new(mocks.Client)
		client.On("ListObjects", ctx, "svr2", mock.Anything).
			Return(mocks.ObjectChannel(minio.ObjectInfo{Key: "a.mp3"}))
		client.On("StatObject", ctx, "svr1", "a.mp3", mock.Anything).
			Return(minio.ObjectInfo{}, errors.New("connection reset"))

		err := storage.NewObjectTransfer(client).Copy(ctx, "svr2/a.mp3", "svr1")
		assert.ErrorContains(t, err, "connection reset")
		client.AssertNotCalled(t, "CopyObject", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("Invalid path", func(t *testing.T) {
		err := storage.NewObjectTransfer(new(mocks.Client)).Copy(ctx, "svr2", "svr1")
		assert.Error(t, err)
	})
}

func TestNewTransfer(t *testing.T) {
	tr, err := storage.NewTransfer(storage.ModeFile, storage.Config{})
	require.NoError(t, err)
	assert.IsType(t, &storage.FileTransfer{}, tr)

	tr, err = storage.NewTransfer(storage.ModeObject, storage.Config{Endpoint: "localhost:9000"})
	require.NoError(t, err)
	assert.IsType(t, &storage.ObjectTransfer{}, tr)

	_, err = storage.NewTransfer("ftp", storage.Config{})
	assert.Error(t, err)
}
