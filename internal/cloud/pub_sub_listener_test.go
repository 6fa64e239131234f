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

package cloud

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jaycherian/gcp-go-scene-video/internal/core/cor"
	"github.com/jaycherian/gcp-go-scene-video/internal/core/model"
	"github.com/stretchr/testify/assert"
)

// recordingCommand fails with err and remembers the payload it saw.
type recordingCommand struct {
	cor.BaseCommand
	err  error
	seen string
}

func (c *recordingCommand) Execute(context cor.Context) {
	c.seen, _ = context.Get(cor.CtxIn).(string)
	if c.err != nil {
		c.Fail(context, c.err)
	}
}

func TestPubSubListenerAckDecision(t *testing.T) {
	tests := []struct {
		name string
		err  error
		ack  bool
	}{
		{name: "success", ack: true},
		{name: "invalid request", err: fmt.Errorf("%w: no scenes", model.ErrInvalidRequest), ack: true},
		{name: "transient failure", err: errors.New("tts timeout"), ack: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := &recordingCommand{BaseCommand: *cor.NewBaseCommand("render"), err: tt.err}
			listener := &PubSubListener{}
			listener.SetCommand(cmd)

			assert.Equal(t, tt.ack, listener.Process(context.Background(), "msg-1", []byte(`{"scenes":[]}`)))
			assert.Equal(t, `{"scenes":[]}`, cmd.seen)
		})
	}
}

func TestPubSubListenerWithoutCommand(t *testing.T) {
	assert.False(t, (&PubSubListener{}).Process(context.Background(), "msg-1", []byte("{}")))
}
