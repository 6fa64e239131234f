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

// This file centralizes the SQL used by the job stores. BigQuery statements
// take the fully qualified table name through a %s verb; values are always
// bound as query parameters.
package services

const (
	// SQLiteCreateJobStatus creates the job status table. failed_scenes holds
	// a JSON array of scene indexes and timestamp an RFC 3339 string.
	SQLiteCreateJobStatus = `CREATE TABLE IF NOT EXISTS job_status (
	job_id        TEXT PRIMARY KEY,
	state         TEXT NOT NULL,
	success       INTEGER NOT NULL,
	video_url     TEXT NOT NULL DEFAULT '',
	size          INTEGER NOT NULL DEFAULT 0,
	duration      REAL NOT NULL DEFAULT 0,
	error         TEXT NOT NULL DEFAULT '',
	failed_scenes TEXT NOT NULL DEFAULT '[]',
	timestamp     TEXT NOT NULL
)`

	// SQLiteUpsertJobStatus writes the latest status of a job.
	SQLiteUpsertJobStatus = `INSERT INTO job_status
	(job_id, state, success, video_url, size, duration, error, failed_scenes, timestamp)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(job_id) DO UPDATE SET
	state = excluded.state,
	success = excluded.success,
	video_url = excluded.video_url,
	size = excluded.size,
	duration = excluded.duration,
	error = excluded.error,
	failed_scenes = excluded.failed_scenes,
	timestamp = excluded.timestamp`

	SQLiteSelectJobStatus = `SELECT job_id, state, success, video_url, size, duration, error, failed_scenes, timestamp
FROM job_status WHERE job_id = ?`

	// QryLatestJobStatus returns the newest row for a job. BigQuery rows are
	// append only, so every state change is a new row.
	//
	// Placeholders:
	// - `%s`: The fully qualified name of the job status table.
	// - `@job_id`: Bound query parameter.
	QryLatestJobStatus = "SELECT job_id, state, success, video_url, size, duration, error, failed_scenes, timestamp FROM `%s` WHERE job_id = @job_id ORDER BY timestamp DESC LIMIT 1"
)
