package rpc

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"eventactor/runtime/actor"
)

func emptyResponse() *emptypb.Empty { return new(emptypb.Empty) }

func highestSequenceNrResponse(ctx context.Context, c *Client, req *structpb.Struct) (uint64, error) {
	resp := new(wrapperspb.UInt64Value)
	if err := c.invoke(ctx, "ReadHighestSequenceNr", req, resp); err != nil {
		return 0, err
	}
	return resp.GetValue(), nil
}

// Client implements actor.Journal and actor.SnapshotStore over a
// *grpc.ClientConn talking to Server. Every method matches the local
// implementations' fire-and-forget contract: the RPC itself runs in its own
// goroutine and the reply is delivered to replyTo once it returns, so the
// caller's mailbox loop is never blocked waiting on the network.
type Client struct {
	conn *grpc.ClientConn
}

// NewClient wraps an established connection. Dial it with
// grpc.WithUnaryInterceptor(UnaryClientAuth(secret)) to match a server
// started with UnaryServerAuth.
func NewClient(conn *grpc.ClientConn) *Client {
	return &Client{conn: conn}
}

func (c *Client) invoke(ctx context.Context, method string, in, out any) error {
	return c.conn.Invoke(ctx, "/"+serviceName+"/"+method, in, out)
}

func (c *Client) LoadSnapshot(ctx context.Context, id actor.PersistenceID, fromSeq, toSeq actor.SequenceNr, replyTo actor.Inbox) {
	go func() {
		req, err := structpb.NewStruct(map[string]any{
			"persistence_id": string(id),
			"from_seq":       float64(fromSeq),
			"to_seq":         float64(toSeq),
		})
		if err != nil {
			replyTo.Tell(actor.LoadSnapshotResult{ToSeq: toSeq})
			return
		}
		resp := new(structpb.Struct)
		if err := c.invoke(ctx, "LoadSnapshot", req, resp); err != nil {
			replyTo.Tell(actor.LoadSnapshotResult{ToSeq: toSeq})
			return
		}
		fields := resp.AsMap()
		result := actor.LoadSnapshotResult{ToSeq: toSeq}
		if selected, ok := fields["selected"].(map[string]any); ok {
			seq, _ := selected["sequence_nr"].(float64)
			result.Selected = &actor.SelectedSnapshot{
				Metadata: actor.SnapshotMetadata{PersistenceID: id, SequenceNr: actor.SequenceNr(seq)},
				Snapshot: selected["snapshot"],
			}
		}
		replyTo.Tell(result)
	}()
}

func (c *Client) SaveSnapshot(ctx context.Context, id actor.PersistenceID, seq actor.SequenceNr, snapshot any, replyTo actor.Inbox) {
	go func() {
		meta := actor.SnapshotMetadata{PersistenceID: id, SequenceNr: seq}
		value, err := payloadToValue(snapshot)
		if err != nil {
			replyTo.Tell(actor.SaveSnapshotFailure{Cause: err, Snapshot: snapshot})
			return
		}
		req, err := structpb.NewStruct(map[string]any{
			"persistence_id": string(id),
			"sequence_nr":    float64(seq),
			"snapshot":       value.AsInterface(),
		})
		if err != nil {
			replyTo.Tell(actor.SaveSnapshotFailure{Cause: err, Snapshot: snapshot})
			return
		}
		if err := c.invoke(ctx, "SaveSnapshot", req, emptyResponse()); err != nil {
			replyTo.Tell(actor.SaveSnapshotFailure{Cause: err, Snapshot: snapshot})
			return
		}
		replyTo.Tell(actor.SaveSnapshotSuccess{Metadata: meta})
	}()
}

func (c *Client) ReplayMessages(ctx context.Context, id actor.PersistenceID, fromSeq, toSeq actor.SequenceNr, max uint64, replyTo actor.Inbox) {
	go func() {
		req, err := structpb.NewStruct(map[string]any{
			"persistence_id": string(id),
			"from_seq":       float64(fromSeq),
			"to_seq":         float64(toSeq),
			"max":            float64(max),
		})
		if err != nil {
			replyTo.Tell(actor.ReplayMessagesFailure{Cause: err})
			return
		}
		resp := new(structpb.Struct)
		if err := c.invoke(ctx, "ReplayMessages", req, resp); err != nil {
			replyTo.Tell(actor.ReplayMessagesFailure{Cause: err})
			return
		}
		fields := resp.AsMap()
		events, _ := fields["events"].([]any)
		for _, raw := range events {
			m, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			seq, _ := m["sequence_nr"].(float64)
			pid, _ := m["persistence_id"].(string)
			replyTo.Tell(actor.ReplayedMessage{Persistent: actor.PersistentRepr{
				Payload:       m["payload"],
				SequenceNr:    actor.SequenceNr(seq),
				PersistenceID: actor.PersistenceID(pid),
			}})
		}
		replyTo.Tell(actor.ReplayMessagesSuccess{})
	}()
}

func (c *Client) ReadHighestSequenceNr(ctx context.Context, id actor.PersistenceID, fromSeq actor.SequenceNr, replyTo actor.Inbox) {
	go func() {
		req, err := structpb.NewStruct(map[string]any{
			"persistence_id": string(id),
			"from_seq":       float64(fromSeq),
		})
		if err != nil {
			replyTo.Tell(actor.ReadHighestSequenceNrFailure{Cause: err})
			return
		}
		resp, err := highestSequenceNrResponse(ctx, c, req)
		if err != nil {
			replyTo.Tell(actor.ReadHighestSequenceNrFailure{Cause: err})
			return
		}
		replyTo.Tell(actor.ReadHighestSequenceNrSuccess{Highest: actor.SequenceNr(resp)})
	}()
}

func (c *Client) WriteMessages(ctx context.Context, batch []actor.JournalEnvelope, instanceID actor.InstanceID, replyTo actor.Inbox) {
	go func() {
		req, err := batchToStruct(batch, instanceID)
		if err != nil {
			replyTo.Tell(actor.WriteMessagesFailed{Cause: err})
			return
		}
		resp := new(structpb.Struct)
		if err := c.invoke(ctx, "WriteMessages", req, resp); err != nil {
			replyTo.Tell(actor.WriteMessagesFailed{Cause: err})
			return
		}
		fields := resp.AsMap()
		acks, _ := fields["acks"].([]any)
		for _, raw := range acks {
			m, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			switch m["kind"] {
			case "success":
				seq, _ := m["sequence_nr"].(float64)
				pid, _ := m["persistence_id"].(string)
				replyTo.Tell(actor.WriteMessageSuccess{
					Persistent: actor.PersistentRepr{SequenceNr: actor.SequenceNr(seq), PersistenceID: actor.PersistenceID(pid)},
					InstanceID: instanceID,
				})
			case "failure":
				seq, _ := m["sequence_nr"].(float64)
				pid, _ := m["persistence_id"].(string)
				replyTo.Tell(actor.WriteMessageFailure{
					Persistent: actor.PersistentRepr{SequenceNr: actor.SequenceNr(seq), PersistenceID: actor.PersistenceID(pid)},
					Cause:      fmt.Errorf("%v", m["cause"]),
					InstanceID: instanceID,
				})
			case "loop":
				replyTo.Tell(actor.LoopMessageSuccess{InstanceID: instanceID})
			}
		}
		if failed, _ := fields["failed"].(bool); failed {
			cause, _ := fields["cause"].(string)
			var causeErr error
			if cause != "" {
				causeErr = fmt.Errorf("%s", cause)
			}
			replyTo.Tell(actor.WriteMessagesFailed{Cause: causeErr})
			return
		}
		replyTo.Tell(actor.WriteMessagesSuccessful{})
	}()
}

func (c *Client) DeleteMessagesTo(ctx context.Context, id actor.PersistenceID, toSeq actor.SequenceNr, permanent bool, replyTo actor.Inbox) {
	go func() {
		req, err := structpb.NewStruct(map[string]any{
			"persistence_id": string(id),
			"to_seq":         float64(toSeq),
			"permanent":      permanent,
		})
		if err != nil {
			replyTo.Tell(actor.DeleteMessagesFailure{Cause: err, ToSequenceNr: toSeq})
			return
		}
		if err := c.invoke(ctx, "DeleteMessagesTo", req, emptyResponse()); err != nil {
			replyTo.Tell(actor.DeleteMessagesFailure{Cause: err, ToSequenceNr: toSeq})
			return
		}
		replyTo.Tell(actor.DeleteMessagesSuccess{ToSequenceNr: toSeq})
	}()
}

var _ actor.Journal = (*Client)(nil)
var _ actor.SnapshotStore = (*Client)(nil)
