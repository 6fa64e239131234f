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

// Package cloud provides components for interacting with Google Cloud services.
// This file defines a generic, reusable Pub/Sub message listener. Receiving
// messages is separated from processing them: each message is handed to a
// "Command", which for this application is a render workflow reading a JSON
// render request from CtxIn.
//
// Logic Flow:
//  1. An instance of PubSubListener is created with a client and a subscription ID.
//  2. A "Command" is attached to this listener once the workflows are built.
//  3. `Listen` starts a goroutine that receives messages until ctx is cancelled.
//  4. Each message is passed to the Command in a fresh chain context.
//  5. The message is acknowledged if the Command completes successfully or
//     the request can never be rendered. Other failures are nacked and
//     redelivered according to the subscription's retry policy until they
//     reach its dead letter topic.
//  6. Processing of every message is traced with OpenTelemetry.
package cloud

import (
	"context"
	"errors"
	"log/slog"

	"cloud.google.com/go/pubsub"
	"github.com/jaycherian/gcp-go-scene-video/internal/core/cor"
	"github.com/jaycherian/gcp-go-scene-video/internal/core/model"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// PubSubListener connects one Pub/Sub subscription to a processing command.
type PubSubListener struct {
	client       *pubsub.Client
	subscription *pubsub.Subscription
	command      cor.Command
}

// NewPubSubListener creates a listener for subscriptionID. command may be nil
// and attached later with SetCommand.
func NewPubSubListener(
	pubsubClient *pubsub.Client,
	subscriptionID string,
	command cor.Command,
) (cmd *PubSubListener, err error) {
	sub := pubsubClient.Subscription(subscriptionID)
	cmd = &PubSubListener{
		client:       pubsubClient,
		subscription: sub,
		command:      command,
	}
	return cmd, nil
}

// SetCommand attaches a command unless one is already set.
func (m *PubSubListener) SetCommand(command cor.Command) {
	if m.command == nil {
		m.command = command
	}
}

// Listen starts receiving messages in the background. It returns at once;
// receiving stops when ctx is cancelled.
func (m *PubSubListener) Listen(ctx context.Context) {
	slog.Info("listening", "subscription", m.subscription.String())

	go func() {
		err := m.subscription.Receive(ctx, func(_ context.Context, msg *pubsub.Message) {
			if m.Process(ctx, msg.ID, msg.Data) {
				msg.Ack()
			} else {
				msg.Nack()
			}
		})
		if err != nil {
			slog.Error("error receiving data", "subscription", m.subscription.String(), "error", err)
		}
	}()
}

// Process runs the command on one message payload and reports whether the
// message should be acknowledged. Successful runs and invalid requests are
// acknowledged; any other failure is left for redelivery.
func (m *PubSubListener) Process(ctx context.Context, id string, data []byte) (ack bool) {
	tracer := otel.Tracer("message-listener")
	spanCtx, span := tracer.Start(ctx, "receive-message")
	defer span.End()
	span.SetAttributes(attribute.String("msg.id", id))
	slog.InfoContext(spanCtx, "received message", "id", id)

	if m.command == nil {
		span.SetStatus(codes.Error, "no command attached")
		slog.ErrorContext(spanCtx, "no command attached to listener", "id", id)
		return false
	}

	chainCtx := cor.NewBaseContext()
	chainCtx.SetContext(spanCtx)
	chainCtx.Add(cor.CtxIn, string(data))

	m.command.Execute(chainCtx)

	if !chainCtx.HasErrors() {
		span.SetStatus(codes.Ok, "success")
		return true
	}
	span.SetStatus(codes.Error, "failed")
	for _, e := range chainCtx.GetErrors() {
		slog.ErrorContext(spanCtx, "error executing chain", "id", id, "error", e)
	}
	if errors.Is(cor.Err(chainCtx), model.ErrInvalidRequest) {
		slog.WarnContext(spanCtx, "dropping message with an invalid render request", "id", id)
		return true
	}
	return false
}
