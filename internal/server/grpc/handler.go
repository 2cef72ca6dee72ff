package grpc

import (
	"context"
	"time"

	"github.com/dmitrijs2005/patterm/internal/retry"
	"github.com/dmitrijs2005/patterm/internal/server/models"
	"github.com/dmitrijs2005/patterm/internal/server/vault"
)

// withRetry retries fn while the patient's vault is busy.
func withRetry[T any](ctx context.Context, s *GRPCServer, fn func(ctx context.Context) (T, error)) (T, error) {
	return retry.Do(ctx, s.retry, func(err error, wait time.Duration) {
		s.logger.Debug(ctx, "vault busy, retrying", "wait", wait)
	}, fn)
}

func (s *GRPCServer) Ping(ctx context.Context, _ *Empty) (*PingResponse, error) {
	return &PingResponse{Status: "OK"}, nil
}

func (s *GRPCServer) IssueSession(ctx context.Context, req *IssueSessionRequest) (*SessionInfo, error) {
	token, sess, err := s.sessions.IssueSession(ctx, req.UserID, req.Password)
	if err != nil {
		return nil, err
	}
	info := sessionInfo(sess)
	info.Token = token
	return info, nil
}

func (s *GRPCServer) ValidateSession(ctx context.Context, _ *Empty) (*SessionInfo, error) {
	sess, err := s.sessions.Validate(ctx, sessionTokenFromContext(ctx))
	if err != nil {
		return nil, err
	}
	return sessionInfo(sess), nil
}

func (s *GRPCServer) RevokeSession(ctx context.Context, _ *Empty) (*Empty, error) {
	if err := s.sessions.Revoke(ctx, sessionTokenFromContext(ctx)); err != nil {
		return nil, err
	}
	return &Empty{}, nil
}

func sessionInfo(sess *models.Session) *SessionInfo {
	return &SessionInfo{
		UserID:     sess.UserID,
		Role:       sess.Role,
		FacilityID: sess.FacilityID,
		ExpiresAt:  sess.ExpiresAt,
	}
}

func (s *GRPCServer) CreateRecord(ctx context.Context, req *CreateRecordRequest) (*RecordResponse, error) {
	token := sessionTokenFromContext(ctx)
	rec, err := withRetry(ctx, s, func(ctx context.Context) (*models.PatientRecord, error) {
		return s.gate.CreateRecord(ctx, token, req.Profile)
	})
	if err != nil {
		return nil, err
	}
	return &RecordResponse{Record: rec}, nil
}

func (s *GRPCServer) ReadRecord(ctx context.Context, req *PatientRequest) (*RecordResponse, error) {
	token := sessionTokenFromContext(ctx)
	rec, err := withRetry(ctx, s, func(ctx context.Context) (*models.PatientRecord, error) {
		return s.gate.ReadRecord(ctx, token, req.PatientID)
	})
	if err != nil {
		return nil, err
	}
	return &RecordResponse{Record: rec}, nil
}

func (s *GRPCServer) AppendAppointment(ctx context.Context, req *AppendAppointmentRequest) (*Empty, error) {
	token := sessionTokenFromContext(ctx)
	_, err := withRetry(ctx, s, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.gate.AppendAppointment(ctx, token, req.PatientID, req.Appointment)
	})
	if err != nil {
		return nil, err
	}
	return &Empty{}, nil
}

func (s *GRPCServer) UpdateConsent(ctx context.Context, req *UpdateConsentRequest) (*ConsentResponse, error) {
	token := sessionTokenFromContext(ctx)
	st, err := withRetry(ctx, s, func(ctx context.Context) (*models.ConsentStatus, error) {
		return s.gate.UpdateConsent(ctx, token, req.PatientID, req.FacilityID, req.Granted)
	})
	if err != nil {
		return nil, err
	}
	return &ConsentResponse{Status: st}, nil
}

func (s *GRPCServer) ListConsents(ctx context.Context, req *PatientRequest) (*ListConsentsResponse, error) {
	list, err := s.gate.ListConsents(ctx, sessionTokenFromContext(ctx), req.PatientID)
	if err != nil {
		return nil, err
	}
	return &ListConsentsResponse{Consents: list}, nil
}

func (s *GRPCServer) AppendTreatmentNote(ctx context.Context, req *AppendTreatmentNoteRequest) (*NoteResponse, error) {
	token := sessionTokenFromContext(ctx)
	in := vault.NoteInput{Summary: req.Summary, NextSteps: req.NextSteps, ExpectedVersion: req.ExpectedVersion}
	note, err := withRetry(ctx, s, func(ctx context.Context) (*models.TreatmentNote, error) {
		return s.gate.AppendTreatmentNote(ctx, token, req.PatientID, in)
	})
	if err != nil {
		return nil, err
	}
	return &NoteResponse{Note: note}, nil
}

func (s *GRPCServer) VerifyAuditChain(ctx context.Context, req *VerifyAuditChainRequest) (*VerifyAuditChainResponse, error) {
	res, err := s.gate.VerifyAuditChain(ctx, sessionTokenFromContext(ctx), req.From, req.To)
	if err != nil {
		return nil, err
	}
	return &VerifyAuditChainResponse{Valid: res.Valid, InvalidAt: res.InvalidAt, Checked: res.Checked}, nil
}
