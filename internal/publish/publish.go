package publish

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"path"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/sirupsen/logrus"
)

const checksumMetadataKey = "checksum"

var contentTypes = map[string]string{
	".html": "text/html; charset=utf-8",
	".xml":  "application/rss+xml; charset=utf-8",
}

type Publisher struct {
	log     *logrus.Logger
	storage *s3.Client
	bucket  string
}

func New(log *logrus.Logger, storage *s3.Client, bucket string) *Publisher {
	return &Publisher{
		log:     log,
		storage: storage,
		bucket:  bucket,
	}
}

func checksum(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

func contentType(name string) string {
	if ct, ok := contentTypes[path.Ext(name)]; ok {
		return ct
	}
	return "application/octet-stream"
}

func isNotFound(err error) bool {
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode() == "NotFound"
}

// Publish uploads every file whose stored checksum differs from its content.
// It returns the names of the uploaded files.
func (p *Publisher) Publish(ctx context.Context, files map[string][]byte) ([]string, error) {
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	uploaded := make([]string, 0, len(names))
	for _, name := range names {
		content := files[name]
		sum := checksum(content)
		key := name

		headRes, err := p.storage.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: &p.bucket,
			Key:    &key,
		})
		if err == nil && headRes.Metadata[checksumMetadataKey] == sum {
			p.log.Debugf("%s is up to date", key)
			continue
		}
		if err != nil && !isNotFound(err) {
			return uploaded, fmt.Errorf("could not check if %s exists: %w", key, err)
		}

		p.log.Infof("uploading %s (%d bytes)...", key, len(content))
		_, err = p.storage.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      &p.bucket,
			Key:         &key,
			Body:        bytes.NewReader(content),
			ContentType: aws.String(contentType(name)),
			Metadata: map[string]string{
				checksumMetadataKey: sum,
			},
		})
		if err != nil {
			return uploaded, fmt.Errorf("could not upload %s: %w", key, err)
		}
		uploaded = append(uploaded, name)
	}
	return uploaded, nil
}
