package rpc

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"eventactor/runtime/actor"
)

// JournalServer is the hand-rolled service contract exposed over gRPC: one
// unary method per actor.Journal/actor.SnapshotStore operation. There is no
// .proto file behind this — ServiceDesc below registers the methods
// directly the way generated code would, matching internal/grpc/service.go's
// shape without requiring protoc.
type JournalServer interface {
	LoadSnapshot(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ReplayMessages(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ReadHighestSequenceNr(context.Context, *structpb.Struct) (*wrapperspb.UInt64Value, error)
	WriteMessages(context.Context, *structpb.Struct) (*structpb.Struct, error)
	DeleteMessagesTo(context.Context, *structpb.Struct) (*emptypb.Empty, error)
	SaveSnapshot(context.Context, *structpb.Struct) (*emptypb.Empty, error)
}

// captureInbox records every reply delivered by a local actor.Journal call
// so the server can translate it into one RPC response, since the local
// implementations under journal/memory and journal/file call Tell
// synchronously within the method body.
type captureInbox struct {
	messages []any
}

func (c *captureInbox) Tell(msg any) { c.messages = append(c.messages, msg) }

// Server adapts a local actor.Journal + actor.SnapshotStore pair to
// JournalServer, so either backend can be exposed to a remote entity host.
type Server struct {
	journal  actor.Journal
	snapshot actor.SnapshotStore
}

// NewServer wraps journal (which must also implement actor.SnapshotStore,
// as journal/memory.Journal and journal/file.Journal both do) for gRPC
// exposure.
func NewServer(journal interface {
	actor.Journal
	actor.SnapshotStore
}) *Server {
	return &Server{journal: journal, snapshot: journal}
}

func (s *Server) LoadSnapshot(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	fields := req.AsMap()
	id, _ := fields["persistence_id"].(string)
	fromSeq, _ := fields["from_seq"].(float64)
	toSeq, _ := fields["to_seq"].(float64)

	inbox := &captureInbox{}
	s.journal.LoadSnapshot(ctx, actor.PersistenceID(id), actor.SequenceNr(fromSeq), actor.SequenceNr(toSeq), inbox)
	if len(inbox.messages) == 0 {
		return nil, status.Error(codes.Internal, "load snapshot: no reply")
	}
	result := inbox.messages[0].(actor.LoadSnapshotResult)
	out := map[string]any{"to_seq": float64(result.ToSeq)}
	if result.Selected != nil {
		value, err := payloadToValue(result.Selected.Snapshot)
		if err != nil {
			return nil, status.Errorf(codes.Internal, "encode snapshot: %v", err)
		}
		out["selected"] = map[string]any{
			"sequence_nr": float64(result.Selected.Metadata.SequenceNr),
			"snapshot":    value.AsInterface(),
		}
	}
	return structpb.NewStruct(out)
}

func (s *Server) SaveSnapshot(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error) {
	fields := req.AsMap()
	id, _ := fields["persistence_id"].(string)
	seq, _ := fields["sequence_nr"].(float64)

	inbox := &captureInbox{}
	s.snapshot.SaveSnapshot(ctx, actor.PersistenceID(id), actor.SequenceNr(seq), fields["snapshot"], inbox)
	if len(inbox.messages) == 0 {
		return nil, status.Error(codes.Internal, "save snapshot: no reply")
	}
	if failure, ok := inbox.messages[0].(actor.SaveSnapshotFailure); ok {
		return nil, status.Errorf(codes.Internal, "save snapshot: %v", failure.Cause)
	}
	return &emptypb.Empty{}, nil
}

// ReplayMessages is unary, not streamed: every event in range is collected
// and returned as one list, since this hand-rolled service has no
// server-streaming descriptor without protoc-generated stubs.
func (s *Server) ReplayMessages(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	fields := req.AsMap()
	id, _ := fields["persistence_id"].(string)
	fromSeq, _ := fields["from_seq"].(float64)
	toSeq, _ := fields["to_seq"].(float64)
	max, _ := fields["max"].(float64)

	inbox := &captureInbox{}
	s.journal.ReplayMessages(ctx, actor.PersistenceID(id), actor.SequenceNr(fromSeq), actor.SequenceNr(toSeq), uint64(max), inbox)

	events := make([]any, 0, len(inbox.messages))
	for _, msg := range inbox.messages {
		switch m := msg.(type) {
		case actor.ReplayedMessage:
			value, err := payloadToValue(m.Persistent.Payload)
			if err != nil {
				return nil, status.Errorf(codes.Internal, "encode replayed payload: %v", err)
			}
			events = append(events, map[string]any{
				"sequence_nr":    float64(m.Persistent.SequenceNr),
				"persistence_id": string(m.Persistent.PersistenceID),
				"payload":        value.AsInterface(),
			})
		case actor.ReplayMessagesFailure:
			return nil, status.Errorf(codes.Internal, "replay messages: %v", m.Cause)
		case actor.ReplayMessagesSuccess:
		}
	}
	return structpb.NewStruct(map[string]any{"events": events})
}

func (s *Server) ReadHighestSequenceNr(ctx context.Context, req *structpb.Struct) (*wrapperspb.UInt64Value, error) {
	fields := req.AsMap()
	id, _ := fields["persistence_id"].(string)
	fromSeq, _ := fields["from_seq"].(float64)

	inbox := &captureInbox{}
	s.journal.ReadHighestSequenceNr(ctx, actor.PersistenceID(id), actor.SequenceNr(fromSeq), inbox)
	if len(inbox.messages) == 0 {
		return nil, status.Error(codes.Internal, "read highest sequence nr: no reply")
	}
	switch m := inbox.messages[0].(type) {
	case actor.ReadHighestSequenceNrSuccess:
		return wrapperspb.UInt64(uint64(m.Highest)), nil
	case actor.ReadHighestSequenceNrFailure:
		return nil, status.Errorf(codes.Internal, "read highest sequence nr: %v", m.Cause)
	default:
		return nil, status.Error(codes.Internal, "read highest sequence nr: unexpected reply")
	}
}

func (s *Server) WriteMessages(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	batch, instanceID := structToBatch(req)

	inbox := &captureInbox{}
	s.journal.WriteMessages(ctx, batch, instanceID, inbox)

	acks := make([]any, 0, len(inbox.messages))
	for _, msg := range inbox.messages {
		switch m := msg.(type) {
		case actor.WriteMessageSuccess:
			acks = append(acks, map[string]any{
				"kind":           "success",
				"sequence_nr":    float64(m.Persistent.SequenceNr),
				"persistence_id": string(m.Persistent.PersistenceID),
			})
		case actor.WriteMessageFailure:
			acks = append(acks, map[string]any{
				"kind":           "failure",
				"sequence_nr":    float64(m.Persistent.SequenceNr),
				"persistence_id": string(m.Persistent.PersistenceID),
				"cause":          fmt.Sprint(m.Cause),
			})
		case actor.LoopMessageSuccess:
			acks = append(acks, map[string]any{"kind": "loop"})
		case actor.WriteMessagesFailed:
			cause := ""
			if m.Cause != nil {
				cause = m.Cause.Error()
			}
			return structpb.NewStruct(map[string]any{"acks": acks, "failed": true, "cause": cause})
		case actor.WriteMessagesSuccessful:
		}
	}
	return structpb.NewStruct(map[string]any{"acks": acks, "failed": false})
}

func (s *Server) DeleteMessagesTo(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error) {
	fields := req.AsMap()
	id, _ := fields["persistence_id"].(string)
	toSeq, _ := fields["to_seq"].(float64)
	permanent, _ := fields["permanent"].(bool)

	inbox := &captureInbox{}
	s.journal.DeleteMessagesTo(ctx, actor.PersistenceID(id), actor.SequenceNr(toSeq), permanent, inbox)
	if len(inbox.messages) == 0 {
		return nil, status.Error(codes.Internal, "delete messages: no reply")
	}
	if failure, ok := inbox.messages[0].(actor.DeleteMessagesFailure); ok {
		return nil, status.Errorf(codes.Internal, "delete messages: %v", failure.Cause)
	}
	return &emptypb.Empty{}, nil
}

// --- hand-registered grpc.ServiceDesc, the codegen-free equivalent of
// internal/grpc/service.go's generated brokerpb.BrokerStreamServiceServer
// registration. ---

const serviceName = "eventactor.journal.Journal"

func _Journal_LoadSnapshot_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(JournalServer).LoadSnapshot(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/LoadSnapshot"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(JournalServer).LoadSnapshot(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func _Journal_SaveSnapshot_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(JournalServer).SaveSnapshot(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/SaveSnapshot"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(JournalServer).SaveSnapshot(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func _Journal_ReplayMessages_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(JournalServer).ReplayMessages(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/ReplayMessages"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(JournalServer).ReplayMessages(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func _Journal_ReadHighestSequenceNr_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(JournalServer).ReadHighestSequenceNr(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/ReadHighestSequenceNr"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(JournalServer).ReadHighestSequenceNr(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func _Journal_WriteMessages_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(JournalServer).WriteMessages(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/WriteMessages"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(JournalServer).WriteMessages(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func _Journal_DeleteMessagesTo_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(JournalServer).DeleteMessagesTo(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/DeleteMessagesTo"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(JournalServer).DeleteMessagesTo(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// ServiceDesc registers Server with a *grpc.Server the way protoc-gen-go-grpc
// generated code would, without requiring a .proto file.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*JournalServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "LoadSnapshot", Handler: _Journal_LoadSnapshot_Handler},
		{MethodName: "SaveSnapshot", Handler: _Journal_SaveSnapshot_Handler},
		{MethodName: "ReplayMessages", Handler: _Journal_ReplayMessages_Handler},
		{MethodName: "ReadHighestSequenceNr", Handler: _Journal_ReadHighestSequenceNr_Handler},
		{MethodName: "WriteMessages", Handler: _Journal_WriteMessages_Handler},
		{MethodName: "DeleteMessagesTo", Handler: _Journal_DeleteMessagesTo_Handler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "journal.go",
}

// RegisterJournalServer registers srv on s, mirroring the generated
// RegisterXServer helpers protoc-gen-go-grpc would otherwise emit.
func RegisterJournalServer(s *grpc.Server, srv JournalServer) {
	s.RegisterService(&ServiceDesc, srv)
}

var _ JournalServer = (*Server)(nil)
