// Package aws_s3 stores documents as JSON objects in S3 (or S3 compatible) buckets, one
// bucket per collection. The object ETag is the document revision and writes are
// conditional on it.
package aws_s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/sharedcode/doctxn"
	"github.com/sharedcode/doctxn/encoding"
)

// Store is a doctxn.DocumentStore on an S3 client.
type Store struct {
	S3Client  *s3.Client
	keyPrefix string
}

func NewStore(s3Client *s3.Client, keyPrefix string) (*Store, error) {
	if s3Client == nil {
		return nil, fmt.Errorf("s3Client parameter can't be nil")
	}
	return &Store{
		S3Client:  s3Client,
		keyPrefix: keyPrefix,
	}, nil
}

// Key returns the object key holding the document loc names.
func (s *Store) Key(loc doctxn.Locator) string {
	return s.keyPrefix + loc.DocumentID()
}

// Fetch implements doctxn.DocumentStore. The returned _rev is the object's ETag.
func (s *Store) Fetch(ctx context.Context, loc doctxn.Locator) (doctxn.Document, error) {
	out, err := s.S3Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(loc.Collection()),
		Key:    aws.String(s.Key(loc)),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) || statusOf(err) == http.StatusNotFound {
			return nil, fmt.Errorf("%s: %w", loc, doctxn.ErrNotFound)
		}
		return nil, &doctxn.StoreError{Op: "fetch", Status: statusOf(err), Err: err}
	}
	defer out.Body.Close()
	ba, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, &doctxn.StoreError{Op: "fetch", Err: err}
	}
	var doc doctxn.Document
	if err := encoding.DefaultMarshaler.Unmarshal(ba, &doc); err != nil {
		return nil, &doctxn.StoreError{Op: "fetch", Reason: "bad document object", Err: err}
	}
	if doc == nil {
		doc = doctxn.Document{}
	}
	doc[doctxn.FieldRev] = RevFromETag(aws.ToString(out.ETag))
	return doc, nil
}

// Write implements doctxn.DocumentStore. Updates carry If-Match with the expected ETag,
// creates carry If-None-Match: *. A failed precondition is a conflict.
func (s *Store) Write(ctx context.Context, loc doctxn.Locator, doc doctxn.Document, expectedRev string) (string, error) {
	body := make(doctxn.Document, len(doc))
	for k, v := range doc {
		if k == doctxn.FieldRev {
			continue
		}
		body[k] = v
	}
	ba, err := encoding.DefaultMarshaler.Marshal(body)
	if err != nil {
		return "", &doctxn.StoreError{Op: "write", Reason: "can't encode document", Err: err}
	}
	in := &s3.PutObjectInput{
		Bucket:      aws.String(loc.Collection()),
		Key:         aws.String(s.Key(loc)),
		Body:        bytes.NewReader(ba),
		ContentType: aws.String("application/json"),
	}
	if expectedRev == "" {
		in.IfNoneMatch = aws.String("*")
	} else {
		in.IfMatch = aws.String(ETagFromRev(expectedRev))
	}
	out, err := s.S3Client.PutObject(ctx, in)
	if err != nil {
		if isConflict(err) {
			return "", &doctxn.ConflictError{Locator: loc, Rev: expectedRev, Status: statusOf(err)}
		}
		return "", &doctxn.StoreError{Op: "write", Status: statusOf(err), Err: err}
	}
	return RevFromETag(aws.ToString(out.ETag)), nil
}

// RevFromETag strips the quotes S3 puts around ETags.
func RevFromETag(etag string) string {
	return strings.Trim(etag, `"`)
}

// ETagFromRev quotes a revision for use in If-Match.
func ETagFromRev(rev string) string {
	return `"` + rev + `"`
}

// statusOf returns the HTTP status carried by an SDK error, 0 when there is none.
func statusOf(err error) int {
	var re interface{ HTTPStatusCode() int }
	if errors.As(err, &re) {
		return re.HTTPStatusCode()
	}
	return 0
}

// S3 answers a failed If-Match/If-None-Match with 412, and a concurrent conditional
// write in progress with 409.
func isConflict(err error) bool {
	switch statusOf(err) {
	case http.StatusPreconditionFailed, http.StatusConflict:
		return true
	}
	return false
}
