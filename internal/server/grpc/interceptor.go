package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/dmitrijs2005/patterm/internal/common"
)

type ctxKey string

const sessionTokenKey ctxKey = "sessionToken"

func sessionTokenFromContext(ctx context.Context) string {
	token, _ := ctx.Value(sessionTokenKey).(string)
	return token
}

// sessionTokenInterceptor moves the session token from the request
// metadata into the context. Validation itself happens in the gate.
func (s *GRPCServer) sessionTokenInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	if publicMethods[info.FullMethod] {
		return handler(ctx, req)
	}

	var token string
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if values := md.Get(common.SessionTokenHeaderName); len(values) > 0 {
			token = values[0]
		}
	}
	if token == "" {
		return nil, common.ErrAuthentication
	}

	return handler(context.WithValue(ctx, sessionTokenKey, token), req)
}

var kindCodes = map[common.Kind]codes.Code{
	common.KindAuthentication:     codes.Unauthenticated,
	common.KindAuthorization:      codes.PermissionDenied,
	common.KindKeyNotFound:        codes.NotFound,
	common.KindNotFound:           codes.NotFound,
	common.KindVaultCorruption:    codes.DataLoss,
	common.KindVaultBusy:          codes.Unavailable,
	common.KindAlreadyExists:      codes.AlreadyExists,
	common.KindConflict:           codes.Aborted,
	common.KindAuditAppendFailure: codes.Internal,
	common.KindValidation:         codes.InvalidArgument,
	common.KindInternal:           codes.Internal,
}

// errorInterceptor turns errors into statuses that carry only the error
// kind as message.
func (s *GRPCServer) errorInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	resp, err := handler(ctx, req)
	if err == nil {
		return resp, nil
	}
	if _, ok := status.FromError(err); ok {
		return nil, err
	}

	kind := common.KindOf(err)
	switch {
	case common.NeedsOperatorAttention(err):
		s.logger.Error(ctx, "request failed", "method", info.FullMethod, "kind", kind, "error", err, "alert", true)
	case kind == common.KindInternal:
		s.logger.Error(ctx, "request failed", "method", info.FullMethod, "error", err)
	default:
		s.logger.Debug(ctx, "request failed", "method", info.FullMethod, "kind", kind)
	}

	return nil, status.Error(kindCodes[kind], string(kind))
}
