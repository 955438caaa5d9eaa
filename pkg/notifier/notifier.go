/*
Copyright 2025 The KServe Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package notifier

import (
	"context"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	logf "sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/kserve/infravalidator/pkg/constants"
	"github.com/kserve/infravalidator/pkg/result"
)

var log = logf.Log.WithName("notifier")

// Extension attribute carrying the verdict so sinks can filter without decoding the data.
const VerdictExtension = "verdict"

// VerdictEvent is the data of the event posted for a final verdict.
type VerdictEvent struct {
	ModelURI    string             `json:"modelUri"`
	BlessingDir string             `json:"blessingDir"`
	ModelDir    string             `json:"modelDir,omitempty"`
	Diagnostics result.Diagnostics `json:"diagnostics"`
}

// Notifier posts the final verdict of a validation as a CloudEvent.
type Notifier struct {
	Client cloudevents.Client
	Source string
}

// NewNotifier returns a notifier posting to a CloudEvents HTTP sink.
func NewNotifier(sinkURL string) (*Notifier, error) {
	client, err := cloudevents.NewClientHTTP(cloudevents.WithTarget(sinkURL))
	if err != nil {
		return nil, errors.Wrap(err, "while creating new cloudevents client")
	}
	return &Notifier{Client: client, Source: constants.VerdictEventSource}, nil
}

func (n *Notifier) NewEvent(data VerdictEvent) (cloudevents.Event, error) {
	event := cloudevents.NewEvent()
	event.SetID(uuid.New().String())
	event.SetType(constants.VerdictEventType)
	event.SetSource(n.Source)
	event.SetSubject(data.ModelURI)
	event.SetTime(time.Now())
	event.SetExtension(VerdictExtension, string(data.Diagnostics.Verdict))
	if err := event.SetData(cloudevents.ApplicationJSON, data); err != nil {
		return event, errors.Wrap(err, "while setting cloudevents data")
	}
	return event, nil
}

// Notify sends the verdict event. It fails unless the sink acknowledged it.
func (n *Notifier) Notify(ctx context.Context, data VerdictEvent) error {
	event, err := n.NewEvent(data)
	if err != nil {
		return err
	}
	if result := n.Client.Send(ctx, event); !cloudevents.IsACK(result) {
		return errors.Wrapf(result, "failed to send verdict event %s", event.ID())
	}
	log.Info("Sent verdict event", "id", event.ID(), "verdict", data.Diagnostics.Verdict)
	return nil
}
