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

// Package commands provides the concrete implementations of the Chain of
// Responsibility (COR) pattern's Command interface. This file defines a
// command for uploading the finished video to a Google Cloud Storage (GCS)
// bucket. It only runs when a video bucket is configured.
//
// Logic Flow:
//  1. Get the final video from the COR context.
//  2. Open the local file for reading. The local copy is kept; the output
//     directory stays the source of truth for local serving.
//  3. Create a writer for `<prefix>/<video name>` with the video content
//     type and a long lived cache header.
//  4. Stream the file with `io.Copy` and close the writer. Closing finalizes
//     the upload, so its error is the one that matters.
//  5. Store the resulting `cloud.GCSObject` in the context.
package commands

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"cloud.google.com/go/storage"
	"github.com/jaycherian/gcp-go-scene-video/internal/cloud"
	"github.com/jaycherian/gcp-go-scene-video/internal/core/cor"
	"github.com/jaycherian/gcp-go-scene-video/internal/core/model"
	"github.com/jaycherian/gcp-go-scene-video/internal/core/services"
)

const (
	VideoContentType  = "video/mp4"
	VideoCacheControl = "public, max-age=31536000"
)

// GCSFileUpload uploads the final video to a GCS bucket.
type GCSFileUpload struct {
	cor.BaseCommand
	client *storage.Client
	bucket string
	prefix string
}

// NewGCSFileUpload creates the command. prefix is prepended to the video name
// to form the object name and may be empty.
func NewGCSFileUpload(name string, client *storage.Client, bucket, prefix string) *GCSFileUpload {
	out := &GCSFileUpload{BaseCommand: *cor.NewBaseCommand(name), client: client, bucket: bucket, prefix: prefix}
	out.BaseCommand.InputParamName = ParamFinalVideo
	return out
}

func (c *GCSFileUpload) Execute(context cor.Context) {
	video, ok := context.Get(c.GetInputParam()).(*model.FinalVideo)
	if !ok {
		c.Fail(context, fmt.Errorf("expected *model.FinalVideo, got %T", context.Get(c.GetInputParam())))
		return
	}

	dat, err := os.Open(video.Path)
	if err != nil {
		c.Fail(context, fmt.Errorf("failed to open file %s: %w", video.Path, err))
		return
	}
	defer dat.Close()

	obj := c.client.Bucket(c.bucket).Object(services.ObjectName(c.prefix, video.Name))
	writer := obj.NewWriter(context.GetContext())
	writer.ContentType = VideoContentType
	writer.CacheControl = VideoCacheControl

	if written, err := io.Copy(writer, dat); err != nil {
		_ = writer.Close()
		c.Fail(context, fmt.Errorf("failed to copy to GCS after %d bytes: %w", written, err))
		return
	}
	if err := writer.Close(); err != nil {
		c.Fail(context, fmt.Errorf("failed to finalize gs://%s/%s: %w", c.bucket, obj.ObjectName(), err))
		return
	}

	uploaded := &cloud.GCSObject{Bucket: c.bucket, Name: obj.ObjectName(), MIMEType: VideoContentType}
	slog.InfoContext(context.GetContext(), "uploaded video", "job", video.JobID, "uri", uploaded.URI())
	context.Add(cloud.GetGCSObjectName(), uploaded)
	context.Add(c.GetOutputParam(), uploaded)
	c.Succeed(context)
}
