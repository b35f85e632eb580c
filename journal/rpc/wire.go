// Package rpc transports actor.Journal and actor.SnapshotStore calls over
// gRPC, so an entity's journal can live in a separate process — the
// deployment shape spec.md's "external collaborator" framing implies.
//
// Grounded on internal/grpc/service.go's hand-registered grpc.ServiceDesc
// and internal/auth/hmac.go / grpc_security.go's shared-secret
// authentication (here a unary interceptor, since every RPC below is
// unary — the teacher's service streams frames; this one round-trips a
// request and a response). Wire messages use
// google.golang.org/protobuf's well-known types (structpb.Struct,
// wrapperspb, emptypb) directly, so the service is exercised without
// protoc-generated stubs.
package rpc

import (
	"encoding/json"
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"

	"eventactor/runtime/actor"
)

// payloadToValue re-encodes an arbitrary Go payload into a
// structpb.Value, round-tripping through encoding/json the same way
// journal/file does, since structpb only accepts JSON-shaped data
// (bool/float64/string/nil/[]any/map[string]any).
func payloadToValue(payload any) (*structpb.Value, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return structpb.NewValue(decoded)
}

func valueToPayload(v *structpb.Value) any {
	if v == nil {
		return nil
	}
	return v.AsInterface()
}

// envelopeToStruct packs one actor.JournalEnvelope for the wire.
func envelopeToStruct(env actor.JournalEnvelope) (*structpb.Struct, error) {
	fields := map[string]any{"persistent": env.Persistent}
	if env.Persistent {
		value, err := payloadToValue(env.Repr.Payload)
		if err != nil {
			return nil, err
		}
		fields["sequence_nr"] = float64(env.Repr.SequenceNr)
		fields["persistence_id"] = string(env.Repr.PersistenceID)
		fields["payload"] = value.AsInterface()
	} else {
		value, err := payloadToValue(env.NonPersistent.Payload)
		if err != nil {
			return nil, err
		}
		fields["payload"] = value.AsInterface()
	}
	return structpb.NewStruct(fields)
}

func structToEnvelope(s *structpb.Struct) actor.JournalEnvelope {
	fields := s.AsMap()
	persistent, _ := fields["persistent"].(bool)
	if persistent {
		seq, _ := fields["sequence_nr"].(float64)
		id, _ := fields["persistence_id"].(string)
		return actor.JournalEnvelope{
			Persistent: true,
			Repr: actor.PersistentRepr{
				Payload:       fields["payload"],
				SequenceNr:    actor.SequenceNr(seq),
				PersistenceID: actor.PersistenceID(id),
			},
		}
	}
	return actor.JournalEnvelope{NonPersistent: actor.NonPersistentRepr{Payload: fields["payload"]}}
}

// batchToStruct packs a whole write batch plus its instance id under one
// top-level Struct, the request body for the WriteMessages RPC.
func batchToStruct(batch []actor.JournalEnvelope, instanceID actor.InstanceID) (*structpb.Struct, error) {
	items := make([]any, 0, len(batch))
	for _, env := range batch {
		packed, err := envelopeToStruct(env)
		if err != nil {
			return nil, err
		}
		items = append(items, packed.AsMap())
	}
	return structpb.NewStruct(map[string]any{
		"instance_id": float64(instanceID),
		"batch":       items,
	})
}

func structToBatch(s *structpb.Struct) ([]actor.JournalEnvelope, actor.InstanceID) {
	fields := s.AsMap()
	instanceID, _ := fields["instance_id"].(float64)
	rawBatch, _ := fields["batch"].([]any)
	out := make([]actor.JournalEnvelope, 0, len(rawBatch))
	for _, item := range rawBatch {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		st, err := structpb.NewStruct(m)
		if err != nil {
			continue
		}
		out = append(out, structToEnvelope(st))
	}
	return out, actor.InstanceID(instanceID)
}
