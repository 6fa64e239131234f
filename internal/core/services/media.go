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

// Package services contains the business logic for interacting with data sources.
// This file, `media.go`, defines the VideoService, which is responsible for
// locating finished videos in the output directory and generating secure,
// time-limited URLs for videos that were uploaded to Google Cloud Storage (GCS).
package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	credentials "cloud.google.com/go/iam/credentials/apiv1"
	"cloud.google.com/go/iam/credentials/apiv1/credentialspb"
	"cloud.google.com/go/storage"
)

// ErrVideoNotFound is returned when no finished video has the requested name.
var ErrVideoNotFound = errors.New("video not found")

// VideoService resolves finished videos by file name. Videos always live in
// the output directory; when a bucket is configured they are also uploaded
// and served through signed URLs.
type VideoService struct {
	OutputDir     string
	StorageClient *storage.Client                   // Nil when videos are not uploaded.
	IAMClient     *credentials.IamCredentialsClient // Signs URLs without a local key when set.
	SignerEmail   string                            // Service account that signs URLs.
	Bucket        string
	Prefix        string
	Expiry        time.Duration
}

// ValidateName accepts plain file names only, so a request can never reach
// outside the output directory.
func ValidateName(name string) error {
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") ||
		filepath.Base(name) != name {
		return fmt.Errorf("invalid video name %q", name)
	}
	return nil
}

// ResolveLocal returns the path of a finished video in the output directory.
func (s *VideoService) ResolveLocal(name string) (string, error) {
	if err := ValidateName(name); err != nil {
		return "", err
	}
	p := filepath.Join(s.OutputDir, name)
	info, err := os.Stat(p)
	if errors.Is(err, os.ErrNotExist) || (err == nil && info.IsDir()) {
		return "", ErrVideoNotFound
	}
	if err != nil {
		return "", err
	}
	return p, nil
}

// Uploaded reports whether finished videos are pushed to GCS.
func (s *VideoService) Uploaded() bool {
	return s.StorageClient != nil && s.Bucket != ""
}

// ObjectName is the GCS object a video named name is uploaded to.
func ObjectName(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return path.Join(prefix, name)
}

// GenerateSignedURL creates a time-limited V4 URL for an uploaded video. When
// an IAM client is configured the signature is produced by the IAM
// Credentials API on behalf of SignerEmail.
func (s *VideoService) GenerateSignedURL(ctx context.Context, name string) (string, error) {
	if !s.Uploaded() {
		return "", errors.New("videos are not uploaded to cloud storage")
	}
	if err := ValidateName(name); err != nil {
		return "", err
	}
	expires := s.Expiry
	if expires <= 0 {
		expires = time.Hour
	}
	opts := &storage.SignedURLOptions{
		Scheme:         storage.SigningSchemeV4,
		Method:         "GET",
		Expires:        time.Now().Add(expires),
		GoogleAccessID: s.SignerEmail,
	}
	if s.IAMClient != nil && s.SignerEmail != "" {
		opts.SignBytes = func(b []byte) ([]byte, error) {
			resp, err := s.IAMClient.SignBlob(ctx, &credentialspb.SignBlobRequest{
				Name:    fmt.Sprintf("projects/-/serviceAccounts/%s", s.SignerEmail),
				Payload: b,
			})
			if err != nil {
				return nil, fmt.Errorf("IAMClient.SignBlob: %w", err)
			}
			return resp.SignedBlob, nil
		}
	}
	object := ObjectName(s.Prefix, name)
	u, err := s.StorageClient.Bucket(s.Bucket).SignedURL(object, opts)
	if err != nil {
		return "", fmt.Errorf("Bucket(%q).SignedURL(%q): %w", s.Bucket, object, err)
	}
	return u, nil
}
