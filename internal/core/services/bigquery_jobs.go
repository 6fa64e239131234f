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
	"errors"
	"fmt"
	"net/http"
	"strings"

	"cloud.google.com/go/bigquery"
	"github.com/jaycherian/gcp-go-scene-video/internal/core/model"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
)

// BigQueryJobStore appends every status change to a BigQuery table and
// reads back the newest row. The history doubles as an audit trail.
type BigQueryJobStore struct {
	BigqueryClient *bigquery.Client
	DatasetName    string
	JobTable       string
}

func NewBigQueryJobStore(client *bigquery.Client, dataset, table string) *BigQueryJobStore {
	return &BigQueryJobStore{BigqueryClient: client, DatasetName: dataset, JobTable: table}
}

// GetFQN returns the table name in the dotted form used by standard SQL.
func (s *BigQueryJobStore) GetFQN() string {
	fqn := s.BigqueryClient.Dataset(s.DatasetName).Table(s.JobTable).FullyQualifiedName()
	return strings.Replace(fqn, ":", ".", 1)
}

// EnsureTable creates the table with a schema inferred from model.JobStatus
// when it does not exist yet.
func (s *BigQueryJobStore) EnsureTable(ctx context.Context) error {
	schema, err := bigquery.InferSchema(model.JobStatus{})
	if err != nil {
		return err
	}
	table := s.BigqueryClient.Dataset(s.DatasetName).Table(s.JobTable)
	err = table.Create(ctx, &bigquery.TableMetadata{Schema: schema})
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusConflict {
		return nil
	}
	return err
}

func (s *BigQueryJobStore) Put(ctx context.Context, status *model.JobStatus) error {
	if status == nil || status.JobID == "" {
		return errors.New("job status requires a job id")
	}
	inserter := s.BigqueryClient.Dataset(s.DatasetName).Table(s.JobTable).Inserter()
	saver := &bigquery.StructSaver{
		Struct:   status,
		InsertID: fmt.Sprintf("%s-%s-%d", status.JobID, status.State, status.Timestamp.UnixNano()),
	}
	if err := inserter.Put(ctx, saver); err != nil {
		return fmt.Errorf("saving status of job %s: %w", status.JobID, err)
	}
	return nil
}

func (s *BigQueryJobStore) Get(ctx context.Context, jobID string) (*model.JobStatus, error) {
	q := s.BigqueryClient.Query(fmt.Sprintf(QryLatestJobStatus, s.GetFQN()))
	q.Parameters = []bigquery.QueryParameter{{Name: "job_id", Value: jobID}}
	itr, err := q.Read(ctx)
	if err != nil {
		return nil, err
	}
	status := &model.JobStatus{}
	err = itr.Next(status)
	if errors.Is(err, iterator.Done) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, err
	}
	return status, nil
}
