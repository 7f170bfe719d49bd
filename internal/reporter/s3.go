package reporter

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/golang/snappy"

	"github.com/dreamup/touchbot/internal/agent"
	"github.com/dreamup/touchbot/internal/gesture"
)

// compressedExt marks objects stored in the snappy framing format.
const compressedExt = ".sz"

// ObjectAPI is the subset of the S3 client the uploader needs
type ObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Uploader handles uploading artifacts to S3
type S3Uploader struct {
	client     ObjectAPI
	bucketName string
	region     string
}

// NewS3Uploader creates a new S3 uploader
func NewS3Uploader(ctx context.Context, bucketName, region string) (*S3Uploader, error) {
	bucketName, region = resolveBucket(bucketName, region)

	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return NewS3UploaderWithClient(s3.NewFromConfig(cfg), bucketName, region), nil
}

// NewS3UploaderWithClient creates an uploader over an existing client
func NewS3UploaderWithClient(client ObjectAPI, bucketName, region string) *S3Uploader {
	bucketName, region = resolveBucket(bucketName, region)
	return &S3Uploader{
		client:     client,
		bucketName: bucketName,
		region:     region,
	}
}

func resolveBucket(bucketName, region string) (string, string) {
	if bucketName == "" {
		bucketName = os.Getenv("S3_BUCKET_NAME")
		if bucketName == "" {
			bucketName = "touchbot-artifacts"
		}
	}
	if region == "" {
		region = os.Getenv("AWS_REGION")
		if region == "" {
			region = "us-east-1"
		}
	}
	return bucketName, region
}

// Bucket returns the bucket artifacts are written to
func (u *S3Uploader) Bucket() string {
	return u.bucketName
}

// UploadBytes stores data under s3Key and returns the object URL
func (u *S3Uploader) UploadBytes(ctx context.Context, data []byte, s3Key string) (string, error) {
	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.bucketName),
		Key:         aws.String(s3Key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType(s3Key)),
	})
	if err != nil {
		return "", agent.NewStorageError(fmt.Sprintf("upload s3://%s/%s", u.bucketName, s3Key), err)
	}
	return u.ObjectURL(s3Key), nil
}

// UploadFile uploads a file to S3
func (u *S3Uploader) UploadFile(ctx context.Context, path, s3Key string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read file %s: %w", path, err)
	}
	return u.UploadBytes(ctx, data, s3Key)
}

// UploadEventLog uploads a recorded event log, snappy-compressed
func (u *S3Uploader) UploadEventLog(ctx context.Context, logPath, runID string) (string, error) {
	raw, err := os.ReadFile(logPath)
	if err != nil {
		return "", fmt.Errorf("failed to read event log %s: %w", logPath, err)
	}

	var buf bytes.Buffer
	w := snappy.NewBufferedWriter(&buf)
	if _, err := w.Write(raw); err != nil {
		return "", fmt.Errorf("failed to compress event log: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to compress event log: %w", err)
	}

	s3Key := fmt.Sprintf("recordings/%s/%s%s", runID, filepath.Base(logPath), compressedExt)
	return u.UploadBytes(ctx, buf.Bytes(), s3Key)
}

// UploadScript uploads a labeled script as JSON
func (u *S3Uploader) UploadScript(ctx context.Context, script gesture.Script, s3Key string) (string, error) {
	data, err := script.Marshal()
	if err != nil {
		return "", err
	}
	return u.UploadBytes(ctx, data, s3Key)
}

// UploadReport uploads a report JSON to S3
func (u *S3Uploader) UploadReport(ctx context.Context, report *Report) (string, error) {
	reportPath, err := report.SaveToTemp()
	if err != nil {
		return "", fmt.Errorf("failed to save report: %w", err)
	}
	defer os.Remove(reportPath)

	return u.UploadFile(ctx, reportPath, ReportKey(report.ReportID))
}

// Download fetches an object, transparently decompressing snappy-framed
// objects.
func (u *S3Uploader) Download(ctx context.Context, s3Key string) ([]byte, error) {
	out, err := u.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(u.bucketName),
		Key:    aws.String(s3Key),
	})
	if err != nil {
		return nil, agent.NewStorageError(fmt.Sprintf("download s3://%s/%s", u.bucketName, s3Key), err)
	}
	defer out.Body.Close()

	var r io.Reader = out.Body
	if strings.HasSuffix(s3Key, compressedExt) {
		r = snappy.NewReader(out.Body)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, agent.NewStorageError(fmt.Sprintf("read s3://%s/%s", u.bucketName, s3Key), err)
	}
	return data, nil
}

// ObjectURL returns the https URL of an object
func (u *S3Uploader) ObjectURL(s3Key string) string {
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s",
		u.bucketName,
		u.region,
		s3Key,
	)
}

// ReportKey returns the object key a report is stored under
func ReportKey(reportID string) string {
	return fmt.Sprintf("reports/%s/report.json", reportID)
}

// ScriptKey derives the object key for the script segmented from an event log key
func ScriptKey(eventLogKey string) string {
	base := strings.TrimSuffix(eventLogKey, compressedExt)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return base + ".script.json"
}

// contentType determines content type from file extension
func contentType(key string) string {
	if strings.HasSuffix(key, compressedExt) {
		return "application/x-snappy-framed"
	}
	switch strings.ToLower(filepath.Ext(key)) {
	case ".json":
		return "application/json"
	case ".jsonl":
		return "application/x-ndjson"
	case ".png":
		return "image/png"
	case ".txt":
		return "text/plain"
	default:
		return "application/octet-stream"
	}
}
