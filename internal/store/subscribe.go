package store

import (
	"context"

	"github.com/forgecode-ai/forgecode/internal/event"
	"github.com/forgecode-ai/forgecode/pkg/types"
)

// subscribe wires every table this store mirrors to its event, each
// through its own bounded queue so a burst on one topic (say, tool part
// updates during a long turn) can't starve session or audit ingestion.
func (s *Store) subscribe(bus *event.Bus) {
	add := func(t event.EventType, fn event.Subscriber) {
		unsub, _ := bus.SubscribeBounded(t, fn, subscriberQueueSize)
		s.unsubscribers = append(s.unsubscribers, unsub)
	}

	add(event.SessionCreated, s.onSessionUpsert)
	add(event.SessionUpdated, s.onSessionUpsert)
	add(event.SessionDeleted, s.onSessionDeleted)
	add(event.MessageCreated, s.onMessageUpsert)
	add(event.MessageUpdated, s.onMessageUpsert)
	add(event.MessagePartUpdated, s.onPartUpdated)
	add(event.AuditRecorded, s.onAuditRecorded)
}

func (s *Store) onSessionUpsert(ev event.Event) {
	var sess *types.Session
	switch d := ev.Data.(type) {
	case event.SessionCreatedData:
		sess = d.Info
	case event.SessionUpdatedData:
		sess = d.Info
	}
	if sess == nil {
		return
	}
	_ = s.SaveSession(context.Background(), sess)
}

func (s *Store) onSessionDeleted(ev event.Event) {
	d, ok := ev.Data.(event.SessionDeletedData)
	if !ok || d.Info == nil {
		return
	}
	_ = s.DeleteSession(context.Background(), d.Info.ID)
}

func (s *Store) onMessageUpsert(ev event.Event) {
	var msg *types.Message
	switch d := ev.Data.(type) {
	case event.MessageCreatedData:
		msg = d.Info
	case event.MessageUpdatedData:
		msg = d.Info
	}
	if msg == nil {
		return
	}
	ctx := context.Background()
	_ = s.SaveMessage(ctx, msg)
	if msg.Tokens != nil {
		_ = s.RecordTokenUsage(ctx, msg.SessionID, msg.ID, msg.Tokens)
	}
}

func (s *Store) onPartUpdated(ev event.Event) {
	d, ok := ev.Data.(event.MessagePartUpdatedData)
	if !ok {
		return
	}
	tp, ok := d.Part.(*types.ToolPart)
	if !ok {
		return
	}
	switch tp.State.Status {
	case "completed", "error":
		_ = s.RecordToolExecution(context.Background(), tp)
	}
}

func (s *Store) onAuditRecorded(ev event.Event) {
	d, ok := ev.Data.(event.AuditRecordedData)
	if !ok {
		return
	}
	_ = s.SaveAuditEntry(context.Background(), d.Entry)
}
