package storage

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	"github.com/jonathan/erc-protest-agent/internal/logging"
	"github.com/jonathan/erc-protest-agent/internal/types"
)

const backendS3 = "s3"

// DefaultPresignTTL is how long presigned links stay valid.
const DefaultPresignTTL = 7 * 24 * time.Hour

// S3Options configures S3Sink.
type S3Options struct {
	Bucket string
	// Prefix is prepended to every key, e.g. "protests/".
	Prefix     string
	Region     string
	PresignTTL time.Duration
}

type objectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type objectPresigner interface {
	PresignGetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// S3Sink uploads packages under <prefix><folder>/ and returns presigned GET links.
type S3Sink struct {
	client    objectPutter
	presigner objectPresigner
	opts      S3Options
	logger    *zap.Logger
}

// NewS3Sink creates a sink using the default AWS configuration chain.
func NewS3Sink(ctx context.Context, opts S3Options, logger *zap.Logger) (*S3Sink, error) {
	if opts.Bucket == "" {
		return nil, &Error{Backend: backendS3, Message: "bucket is required"}
	}
	var loadOpts []func(*config.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(opts.Region))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, &Error{Backend: backendS3, Message: "failed to load AWS config", Cause: err}
	}
	client := s3.NewFromConfig(awsCfg)
	return newS3Sink(client, s3.NewPresignClient(client), opts, logger), nil
}

func newS3Sink(client objectPutter, presigner objectPresigner, opts S3Options, logger *zap.Logger) *S3Sink {
	if opts.PresignTTL <= 0 {
		opts.PresignTTL = DefaultPresignTTL
	}
	return &S3Sink{client: client, presigner: presigner, opts: opts, logger: logging.OrNop(logger)}
}

// Key returns the object key for a package file.
func (s *S3Sink) Key(u Upload, file string) string {
	return s.opts.Prefix + path.Join(FolderName(u), filepath.Base(file))
}

// Upload puts every package file and presigns a link to each. FolderLink is
// left empty; S3 has no folder page to share.
func (s *S3Sink) Upload(ctx context.Context, u Upload) (*types.ShareLinks, error) {
	links := &types.ShareLinks{}
	for _, file := range u.files() {
		key := s.Key(u, file)
		link, err := s.put(ctx, key, file)
		if err != nil {
			return nil, err
		}
		if file == u.LetterPath {
			links.LetterLink = link
		} else {
			links.ArchiveLink = link
		}
	}
	s.logger.Info("package uploaded to s3",
		zap.String("tracking_id", u.TrackingID),
		zap.String("bucket", s.opts.Bucket))
	return links, nil
}

func (s *S3Sink) put(ctx context.Context, key, file string) (string, error) {
	body, err := os.Open(file)
	if err != nil {
		return "", &Error{Backend: backendS3, Path: file, Message: "failed to open file", Cause: err}
	}
	defer func() { _ = body.Close() }()

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.opts.Bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType(file)),
	})
	if err != nil {
		return "", &Error{Backend: backendS3, Path: key, Message: "failed to put object", Cause: err}
	}

	req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.opts.Bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(s.opts.PresignTTL))
	if err != nil {
		return "", &Error{Backend: backendS3, Path: key, Message: "failed to presign link", Cause: err}
	}
	return req.URL, nil
}
