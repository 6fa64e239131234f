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

package media

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Manifest renders the concat demuxer list for the given clips. Order is
// preserved exactly; paths are made absolute and single quotes escaped.
func Manifest(clips []string) (string, error) {
	if len(clips) == 0 {
		return "", errors.New("no clips to concatenate")
	}
	var b strings.Builder
	for _, c := range clips {
		abs, err := filepath.Abs(c)
		if err != nil {
			return "", fmt.Errorf("resolving clip path %s: %w", c, err)
		}
		fmt.Fprintf(&b, "file '%s'\n", strings.ReplaceAll(abs, "'", `'\''`))
	}
	return b.String(), nil
}

// WriteManifest writes the concat list to path.
func WriteManifest(path string, clips []string) error {
	content, err := Manifest(clips)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("writing concat manifest %s: %w", path, err)
	}
	return nil
}
