// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package visual

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/h2non/filetype"
)

// GCSFetcher reads gs://bucket/object references from Cloud Storage and
// hands every other URL to Next.
type GCSFetcher struct {
	Client   *storage.Client
	Next     Source
	MaxBytes int64
}

func NewGCSFetcher(client *storage.Client, next Source) *GCSFetcher {
	return &GCSFetcher{Client: client, Next: next, MaxBytes: DefaultMaxBytes}
}

// ParseGCSURI splits gs://bucket/object into its bucket and object name.
func ParseGCSURI(ref string) (bucket, object string, err error) {
	u, err := url.Parse(ref)
	if err != nil {
		return "", "", err
	}
	object = strings.TrimPrefix(u.Path, "/")
	if u.Scheme != "gs" || u.Host == "" || object == "" {
		return "", "", fmt.Errorf("%q is not a gs://bucket/object uri", ref)
	}
	return u.Host, object, nil
}

func (f *GCSFetcher) Fetch(ctx context.Context, ref string) ([]byte, string, error) {
	if !strings.HasPrefix(ref, "gs://") {
		if f.Next == nil {
			return nil, "", fmt.Errorf("no source for %s", ref)
		}
		return f.Next.Fetch(ctx, ref)
	}
	if f.Client == nil {
		return nil, "", errors.New("cloud storage is not configured")
	}
	bucket, object, err := ParseGCSURI(ref)
	if err != nil {
		return nil, "", err
	}

	reader, err := f.Client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create GCS reader for %s: %w", ref, err)
	}
	defer func() {
		if err := reader.Close(); err != nil {
			slog.WarnContext(ctx, "failed to close GCS reader", "uri", ref, "error", err)
		}
	}()

	data, err := io.ReadAll(io.LimitReader(reader, f.MaxBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("reading %s: %w", ref, err)
	}
	if int64(len(data)) > f.MaxBytes {
		return nil, "", fmt.Errorf("object %s exceeds %d bytes", ref, f.MaxBytes)
	}
	if !filetype.IsImage(data) {
		return nil, "", fmt.Errorf("object %s is not an image", ref)
	}
	slog.DebugContext(ctx, "downloaded visual from cloud storage", "uri", ref, "bytes", len(data))
	return data, extension(data), nil
}
