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

package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jaycherian/gcp-go-scene-video/internal/core/model"
	_ "modernc.org/sqlite"
)

// SQLiteJobStore keeps job statuses in a local SQLite file. One row per
// job, replaced on every Put.
type SQLiteJobStore struct {
	db *sql.DB
}

// NewSQLiteJobStore opens (or creates) the database at path and makes sure
// the job_status table exists.
func NewSQLiteJobStore(ctx context.Context, path string) (*SQLiteJobStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening job store %s: %w", path, err)
	}
	// A single connection serialises writers and keeps in-memory databases alive.
	db.SetMaxOpenConns(1)

	for _, stmt := range []string{"PRAGMA busy_timeout = 5000", SQLiteCreateJobStatus} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("initialising job store %s: %w", path, err)
		}
	}
	return &SQLiteJobStore{db: db}, nil
}

func (s *SQLiteJobStore) Put(ctx context.Context, status *model.JobStatus) error {
	if status == nil || status.JobID == "" {
		return errors.New("job status requires a job id")
	}
	failed, err := json.Marshal(scenesOrEmpty(status.FailedScenes))
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, SQLiteUpsertJobStatus,
		status.JobID,
		string(status.State),
		status.Success,
		status.VideoURL,
		status.Size,
		status.Duration,
		status.Error,
		string(failed),
		status.Timestamp.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("saving status of job %s: %w", status.JobID, err)
	}
	return nil
}

func (s *SQLiteJobStore) Get(ctx context.Context, jobID string) (*model.JobStatus, error) {
	var (
		st        model.JobStatus
		state     string
		failed    string
		timestamp string
	)
	err := s.db.QueryRowContext(ctx, SQLiteSelectJobStatus, jobID).Scan(
		&st.JobID, &state, &st.Success, &st.VideoURL, &st.Size, &st.Duration, &st.Error, &failed, &timestamp)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading status of job %s: %w", jobID, err)
	}
	st.State = model.JobState(state)
	if err := json.Unmarshal([]byte(failed), &st.FailedScenes); err != nil {
		return nil, fmt.Errorf("decoding failed scenes of job %s: %w", jobID, err)
	}
	if len(st.FailedScenes) == 0 {
		st.FailedScenes = nil
	}
	if st.Timestamp, err = time.Parse(time.RFC3339Nano, timestamp); err != nil {
		return nil, fmt.Errorf("decoding timestamp of job %s: %w", jobID, err)
	}
	return &st, nil
}

func (s *SQLiteJobStore) Close() error {
	return s.db.Close()
}

func scenesOrEmpty(in []int) []int {
	if in == nil {
		return []int{}
	}
	return in
}
