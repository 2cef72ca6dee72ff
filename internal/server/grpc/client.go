package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/dmitrijs2005/patterm/internal/common"
	"github.com/dmitrijs2005/patterm/internal/server/models"
)

// Client calls the Patterm service. Errors come back as the sentinels of
// package common, so callers can use errors.Is on them.
type Client struct {
	cc    grpc.ClientConnInterface
	token string
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// WithToken returns a copy of c that sends token with every call.
func (c *Client) WithToken(token string) *Client {
	return &Client{cc: c.cc, token: token}
}

func (c *Client) invoke(ctx context.Context, method string, in, out any) error {
	if c.token != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, common.SessionTokenHeaderName, c.token)
	}
	err := c.cc.Invoke(ctx, fullMethod(method), in, out, grpc.CallContentSubtype(CodecName))
	if err == nil {
		return nil
	}
	if st, ok := status.FromError(err); ok {
		k := common.Kind(st.Message())
		if kindErr := common.ErrorOf(k); kindErr != nil && (kindErr != common.ErrInternal || k == common.KindInternal) {
			return kindErr
		}
	}
	return err
}

func (c *Client) Ping(ctx context.Context) error {
	return c.invoke(ctx, "Ping", &Empty{}, &PingResponse{})
}

func (c *Client) IssueSession(ctx context.Context, userID, password string) (*SessionInfo, error) {
	out := &SessionInfo{}
	if err := c.invoke(ctx, "IssueSession", &IssueSessionRequest{UserID: userID, Password: password}, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) ValidateSession(ctx context.Context) (*SessionInfo, error) {
	out := &SessionInfo{}
	if err := c.invoke(ctx, "ValidateSession", &Empty{}, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) RevokeSession(ctx context.Context) error {
	return c.invoke(ctx, "RevokeSession", &Empty{}, &Empty{})
}

func (c *Client) CreateRecord(ctx context.Context, p models.Profile) (*models.PatientRecord, error) {
	out := &RecordResponse{}
	if err := c.invoke(ctx, "CreateRecord", &CreateRecordRequest{Profile: p}, out); err != nil {
		return nil, err
	}
	return out.Record, nil
}

func (c *Client) ReadRecord(ctx context.Context, patientID string) (*models.PatientRecord, error) {
	out := &RecordResponse{}
	if err := c.invoke(ctx, "ReadRecord", &PatientRequest{PatientID: patientID}, out); err != nil {
		return nil, err
	}
	return out.Record, nil
}

func (c *Client) AppendAppointment(ctx context.Context, patientID string, ref models.AppointmentRef) error {
	return c.invoke(ctx, "AppendAppointment", &AppendAppointmentRequest{PatientID: patientID, Appointment: ref}, &Empty{})
}

func (c *Client) UpdateConsent(ctx context.Context, patientID, facilityID string, granted bool) (*models.ConsentStatus, error) {
	out := &ConsentResponse{}
	req := &UpdateConsentRequest{PatientID: patientID, FacilityID: facilityID, Granted: granted}
	if err := c.invoke(ctx, "UpdateConsent", req, out); err != nil {
		return nil, err
	}
	return out.Status, nil
}

func (c *Client) ListConsents(ctx context.Context, patientID string) ([]models.ConsentStatus, error) {
	out := &ListConsentsResponse{}
	if err := c.invoke(ctx, "ListConsents", &PatientRequest{PatientID: patientID}, out); err != nil {
		return nil, err
	}
	return out.Consents, nil
}

func (c *Client) AppendTreatmentNote(ctx context.Context, req *AppendTreatmentNoteRequest) (*models.TreatmentNote, error) {
	out := &NoteResponse{}
	if err := c.invoke(ctx, "AppendTreatmentNote", req, out); err != nil {
		return nil, err
	}
	return out.Note, nil
}

func (c *Client) VerifyAuditChain(ctx context.Context, from, to int64) (*VerifyAuditChainResponse, error) {
	out := &VerifyAuditChainResponse{}
	if err := c.invoke(ctx, "VerifyAuditChain", &VerifyAuditChainRequest{From: from, To: to}, out); err != nil {
		return nil, err
	}
	return out, nil
}
