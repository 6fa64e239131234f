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

package model

import (
	"time"

	"github.com/google/uuid"
)

// JobState is the lifecycle position of a render job.
type JobState string

const (
	JobQueued    JobState = "queued"
	JobRunning   JobState = "running"
	JobSucceeded JobState = "succeeded"
	JobFailed    JobState = "failed"
)

// Terminal reports whether no further state change will happen.
func (s JobState) Terminal() bool {
	return s == JobSucceeded || s == JobFailed
}

// JobStatus is the record a polling client reads. Success rows carry the
// video location, size and duration; failure rows carry the reason.
type JobStatus struct {
	JobID        string    `json:"jobId" bigquery:"job_id"`
	State        JobState  `json:"state" bigquery:"state"`
	Success      bool      `json:"success" bigquery:"success"`
	VideoURL     string    `json:"videoUrl,omitempty" bigquery:"video_url"`
	Size         int64     `json:"size,omitempty" bigquery:"size"`
	Duration     float64   `json:"duration,omitempty" bigquery:"duration"`
	Error        string    `json:"error,omitempty" bigquery:"error"`
	FailedScenes []int     `json:"failedScenes,omitempty" bigquery:"failed_scenes"`
	Timestamp    time.Time `json:"timestamp" bigquery:"timestamp"`
}

// NewJobID returns a random job id.
func NewJobID() string {
	return uuid.NewString()
}

// QueuedStatus is written when a job is accepted.
func QueuedStatus(jobID string) *JobStatus {
	return &JobStatus{JobID: jobID, State: JobQueued, Timestamp: time.Now().UTC()}
}

// RunningStatus is written when a worker picks the job up.
func RunningStatus(jobID string) *JobStatus {
	return &JobStatus{JobID: jobID, State: JobRunning, Timestamp: time.Now().UTC()}
}

// SuccessStatus is the terminal record of a finished video.
func SuccessStatus(jobID string, video *FinalVideo, failedScenes []int) *JobStatus {
	return &JobStatus{
		JobID:        jobID,
		State:        JobSucceeded,
		Success:      true,
		VideoURL:     video.URL,
		Size:         video.SizeBytes,
		Duration:     video.TotalDurationSeconds,
		FailedScenes: failedScenes,
		Timestamp:    time.Now().UTC(),
	}
}

// FailureStatus is the terminal record of a failed job.
func FailureStatus(jobID string, err error, failedScenes []int) *JobStatus {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return &JobStatus{
		JobID:        jobID,
		State:        JobFailed,
		Success:      false,
		Error:        msg,
		FailedScenes: failedScenes,
		Timestamp:    time.Now().UTC(),
	}
}
