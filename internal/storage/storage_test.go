package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"google.golang.org/api/option"
)

func writePackageFiles(t *testing.T) Upload {
	t.Helper()
	dir := t.TempDir()
	letter := filepath.Join(dir, "protest_letter.pdf")
	archive := filepath.Join(dir, "complete_protest_package.zip")
	require.NoError(t, os.WriteFile(letter, []byte("%PDF-1.4 letter"), 0o644))
	require.NoError(t, os.WriteFile(archive, []byte("PK zip"), 0o644))
	return Upload{
		TrackingID:   "ERC-ABCDEF12",
		BusinessName: "Riverside Family Dental",
		LetterPath:   letter,
		ArchivePath:  archive,
	}
}

func TestFolderName(t *testing.T) {
	assert.Equal(t, "ERC-1 - Acme", FolderName(Upload{TrackingID: "ERC-1", BusinessName: " Acme "}))
	assert.Equal(t, "ERC-1", FolderName(Upload{TrackingID: "ERC-1"}))
}

func TestContentType(t *testing.T) {
	assert.Equal(t, "application/pdf", contentType("a/b.PDF"))
	assert.Equal(t, "application/zip", contentType("x.zip"))
	assert.Equal(t, "application/octet-stream", contentType("x.bin"))
}

func TestNopSink(t *testing.T) {
	links, err := NopSink{}.Upload(context.Background(), Upload{})
	assert.NoError(t, err)
	assert.Nil(t, links)
}

func TestError(t *testing.T) {
	cause := errors.New("denied")
	err := &Error{Backend: "s3", Path: "k", Message: "failed to put object", Cause: cause}
	assert.Equal(t, "storage error (s3) for k: failed to put object: denied", err.Error())
	assert.ErrorIs(t, err, cause)
}

type fakePutter struct {
	mu   sync.Mutex
	keys []string
	body map[string]string
	err  error
}

func (f *fakePutter) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	data, _ := io.ReadAll(in.Body)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.body == nil {
		f.body = map[string]string{}
	}
	f.keys = append(f.keys, *in.Key)
	f.body[*in.Key] = string(data)
	return &s3.PutObjectOutput{}, nil
}

type fakePresigner struct {
	expires time.Duration
}

func (f *fakePresigner) PresignGetObject(_ context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	var opts s3.PresignOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	f.expires = opts.Expires
	return &v4.PresignedHTTPRequest{URL: fmt.Sprintf("https://%s.s3.example/%s?signed", *in.Bucket, *in.Key)}, nil
}

func TestS3Sink_Upload(t *testing.T) {
	u := writePackageFiles(t)
	putter := &fakePutter{}
	presigner := &fakePresigner{}
	sink := newS3Sink(putter, presigner, S3Options{Bucket: "erc", Prefix: "protests/"}, zaptest.NewLogger(t))

	links, err := sink.Upload(context.Background(), u)
	require.NoError(t, err)

	letterKey := "protests/ERC-ABCDEF12 - Riverside Family Dental/protest_letter.pdf"
	archiveKey := "protests/ERC-ABCDEF12 - Riverside Family Dental/complete_protest_package.zip"
	assert.Equal(t, []string{letterKey, archiveKey}, putter.keys)
	assert.Equal(t, "%PDF-1.4 letter", putter.body[letterKey])
	assert.Equal(t, "https://erc.s3.example/"+letterKey+"?signed", links.LetterLink)
	assert.Equal(t, "https://erc.s3.example/"+archiveKey+"?signed", links.ArchiveLink)
	assert.Empty(t, links.FolderLink)
	assert.Equal(t, DefaultPresignTTL, presigner.expires)
}

func TestS3Sink_PutFailure(t *testing.T) {
	u := writePackageFiles(t)
	sink := newS3Sink(&fakePutter{err: errors.New("access denied")}, &fakePresigner{}, S3Options{Bucket: "erc"}, nil)

	_, err := sink.Upload(context.Background(), u)
	var storeErr *Error
	require.ErrorAs(t, err, &storeErr)
	assert.Equal(t, "s3", storeErr.Backend)
	assert.Contains(t, err.Error(), "access denied")
}

func TestS3Sink_MissingFile(t *testing.T) {
	sink := newS3Sink(&fakePutter{}, &fakePresigner{}, S3Options{Bucket: "erc"}, nil)
	_, err := sink.Upload(context.Background(), Upload{TrackingID: "ERC-1", LetterPath: "/nonexistent/letter.pdf"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open file")
}

func TestNewS3Sink_RequiresBucket(t *testing.T) {
	_, err := NewS3Sink(context.Background(), S3Options{}, nil)
	require.Error(t, err)
}

// fakeDrive answers folder creation, uploads and permission grants.
type fakeDrive struct {
	mu          sync.Mutex
	created     int
	permissions []map[string]interface{}
	names       []string
}

func (f *fakeDrive) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")

	if r.Method != http.MethodPost {
		http.Error(w, `{"error":{"code":404,"message":"not found"}}`, http.StatusNotFound)
		return
	}
	if strings.Contains(r.URL.Path, "/permissions") {
		var p map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&p)
		f.permissions = append(f.permissions, p)
		_, _ = w.Write([]byte(`{"id":"perm"}`))
		return
	}

	body, _ := io.ReadAll(r.Body)
	switch {
	case strings.Contains(string(body), "protest_letter.pdf"):
		f.names = append(f.names, "protest_letter.pdf")
	case strings.Contains(string(body), "complete_protest_package.zip"):
		f.names = append(f.names, "complete_protest_package.zip")
	default:
		f.names = append(f.names, "folder")
	}
	f.created++
	id := fmt.Sprintf("file%d", f.created)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"id":          id,
		"webViewLink": "https://drive.example/" + id,
	})
}

func TestDriveSink_Upload(t *testing.T) {
	u := writePackageFiles(t)
	fake := &fakeDrive{}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	sink, err := NewDriveSink(context.Background(),
		DriveOptions{RootFolderID: "root", ShareWithEmail: "ops@example.com"},
		zaptest.NewLogger(t),
		option.WithEndpoint(srv.URL+"/"),
		option.WithoutAuthentication(),
	)
	require.NoError(t, err)

	links, err := sink.Upload(context.Background(), u)
	require.NoError(t, err)

	assert.Equal(t, []string{"folder", "protest_letter.pdf", "complete_protest_package.zip"}, fake.names)
	assert.Equal(t, "https://drive.example/file1", links.FolderLink)
	assert.Equal(t, "https://drive.example/file2", links.LetterLink)
	assert.Equal(t, "https://drive.example/file3", links.ArchiveLink)

	require.Len(t, fake.permissions, 2)
	assert.Equal(t, "anyone", fake.permissions[0]["type"])
	assert.Equal(t, "reader", fake.permissions[0]["role"])
	assert.Equal(t, "ops@example.com", fake.permissions[1]["emailAddress"])
}
