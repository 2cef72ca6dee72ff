package grpc

import (
	"context"

	"google.golang.org/grpc"
)

const serviceName = "patterm.v1.Patterm"

// PattermServer is the RPC surface of the record core.
type PattermServer interface {
	Ping(context.Context, *Empty) (*PingResponse, error)
	IssueSession(context.Context, *IssueSessionRequest) (*SessionInfo, error)
	ValidateSession(context.Context, *Empty) (*SessionInfo, error)
	RevokeSession(context.Context, *Empty) (*Empty, error)
	CreateRecord(context.Context, *CreateRecordRequest) (*RecordResponse, error)
	ReadRecord(context.Context, *PatientRequest) (*RecordResponse, error)
	AppendAppointment(context.Context, *AppendAppointmentRequest) (*Empty, error)
	UpdateConsent(context.Context, *UpdateConsentRequest) (*ConsentResponse, error)
	ListConsents(context.Context, *PatientRequest) (*ListConsentsResponse, error)
	AppendTreatmentNote(context.Context, *AppendTreatmentNoteRequest) (*NoteResponse, error)
	VerifyAuditChain(context.Context, *VerifyAuditChainRequest) (*VerifyAuditChainResponse, error)
}

func fullMethod(name string) string { return "/" + serviceName + "/" + name }

// unary builds a MethodDesc the way protoc-gen-go-grpc does for a single
// unary method.
func unary[Req any, Resp any](name string, call func(PattermServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(PattermServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(name)}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(PattermServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*PattermServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("Ping", PattermServer.Ping),
		unary("IssueSession", PattermServer.IssueSession),
		unary("ValidateSession", PattermServer.ValidateSession),
		unary("RevokeSession", PattermServer.RevokeSession),
		unary("CreateRecord", PattermServer.CreateRecord),
		unary("ReadRecord", PattermServer.ReadRecord),
		unary("AppendAppointment", PattermServer.AppendAppointment),
		unary("UpdateConsent", PattermServer.UpdateConsent),
		unary("ListConsents", PattermServer.ListConsents),
		unary("AppendTreatmentNote", PattermServer.AppendTreatmentNote),
		unary("VerifyAuditChain", PattermServer.VerifyAuditChain),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "patterm.v1",
}

func RegisterPattermServer(s grpc.ServiceRegistrar, srv PattermServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// publicMethods do not require a session token.
var publicMethods = map[string]bool{
	fullMethod("Ping"):         true,
	fullMethod("IssueSession"): true,
}
