package grpc

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"

	"github.com/dmitrijs2005/patterm/internal/common"
	"github.com/dmitrijs2005/patterm/internal/cryptox"
	"github.com/dmitrijs2005/patterm/internal/logging"
	"github.com/dmitrijs2005/patterm/internal/retry"
	"github.com/dmitrijs2005/patterm/internal/server/access"
	"github.com/dmitrijs2005/patterm/internal/server/audit"
	"github.com/dmitrijs2005/patterm/internal/server/consent"
	"github.com/dmitrijs2005/patterm/internal/server/keys"
	"github.com/dmitrijs2005/patterm/internal/server/models"
	auditrepo "github.com/dmitrijs2005/patterm/internal/server/repositories/audit"
	"github.com/dmitrijs2005/patterm/internal/server/repositories/blobs"
	consentrepo "github.com/dmitrijs2005/patterm/internal/server/repositories/consent"
	keyrepo "github.com/dmitrijs2005/patterm/internal/server/repositories/keys"
	"github.com/dmitrijs2005/patterm/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/patterm/internal/server/sessions"
	"github.com/dmitrijs2005/patterm/internal/server/vault"
	"github.com/dmitrijs2005/patterm/internal/timex"
)

const bufSize = 1024 * 1024

func startServer(t *testing.T) (*Client, *sessions.Manager) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	clock := timex.NewStubClock(time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC))
	log := logging.Nop{}

	w, err := keys.NewEphemeralAgeWrapper()
	require.NoError(t, err)
	km := keys.NewManager(keyrepo.NewMemoryRepository(), w, clock, log)
	al, err := audit.NewService(ctx, auditrepo.NewMemoryRepository(), clock, log, nil)
	require.NoError(t, err)
	t.Cleanup(al.Close)
	ci := consent.NewIndex(consentrepo.NewMemoryRepository(), clock, log)
	v := vault.New(blobs.NewMemoryRepository(), km, al, ci, clock, log, time.Second)

	kdf := cryptox.KDFParams{Memory: 64, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}
	sm := sessions.NewManager(nil, repomanager.NewMemoryRepositoryManager(), clock, time.Hour, kdf, log)
	gate := access.NewGate(sm, ci, v, al, log)

	srv := NewGRPCServer("bufnet", log, gate, sm, retry.DefaultPolicy())
	lis := bufconn.Listen(bufSize)
	go func() { _ = srv.Serve(ctx, lis) }()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return NewClient(conn), sm
}

func TestServer_PingIsPublic(t *testing.T) {
	c, _ := startServer(t)
	require.NoError(t, c.Ping(context.Background()))
}

func TestServer_MissingToken(t *testing.T) {
	c, _ := startServer(t)
	_, err := c.ReadRecord(context.Background(), "p1")
	assert.ErrorIs(t, err, common.ErrAuthentication)
}

func TestServer_SessionLifecycle(t *testing.T) {
	c, sm := startServer(t)
	ctx := context.Background()
	require.NoError(t, sm.Register(ctx, "p1", "correct horse", models.RolePatient, ""))

	_, err := c.IssueSession(ctx, "p1", "wrong password")
	assert.ErrorIs(t, err, common.ErrAuthentication)

	info, err := c.IssueSession(ctx, "p1", "correct horse")
	require.NoError(t, err)
	assert.NotEmpty(t, info.Token)
	assert.Equal(t, models.RolePatient, info.Role)

	pc := c.WithToken(info.Token)
	got, err := pc.ValidateSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, "p1", got.UserID)
	assert.Empty(t, got.Token)

	require.NoError(t, pc.RevokeSession(ctx))
	_, err = pc.ValidateSession(ctx)
	assert.ErrorIs(t, err, common.ErrAuthentication)
}

func TestServer_RecordFlow(t *testing.T) {
	c, sm := startServer(t)
	ctx := context.Background()

	ptoken, _, err := sm.Issue(ctx, "p1", models.RolePatient, "")
	require.NoError(t, err)
	dtoken, _, err := sm.Issue(ctx, "doc1", models.RoleProvider, "f1")
	require.NoError(t, err)
	atoken, _, err := sm.Issue(ctx, "ops", models.RolePlatformAdmin, "")
	require.NoError(t, err)
	patient, doctor, admin := c.WithToken(ptoken), c.WithToken(dtoken), c.WithToken(atoken)

	rec, err := patient.CreateRecord(ctx, models.Profile{PatientID: "p1", FirstName: "Grace", LastName: "Hopper", DateOfBirth: "1985-12-09"})
	require.NoError(t, err)
	assert.Equal(t, "p1", rec.Profile.PatientID)

	_, err = patient.CreateRecord(ctx, models.Profile{PatientID: "p1", FirstName: "Grace", LastName: "Hopper", DateOfBirth: "1985-12-09"})
	assert.ErrorIs(t, err, common.ErrAlreadyExists)

	_, err = doctor.ReadRecord(ctx, "p1")
	assert.ErrorIs(t, err, common.ErrAuthorization)

	st, err := patient.UpdateConsent(ctx, "p1", "f1", true)
	require.NoError(t, err)
	assert.True(t, st.Granted)

	list, err := patient.ListConsents(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "f1", list[0].FacilityID)

	start := time.Date(2026, 6, 2, 10, 0, 0, 0, time.UTC)
	ref := models.AppointmentRef{SlotID: "s1", FacilityID: "f1", Start: start, End: start.Add(30 * time.Minute)}
	require.NoError(t, doctor.AppendAppointment(ctx, "p1", ref))
	assert.ErrorIs(t, doctor.AppendAppointment(ctx, "p1", ref), common.ErrConflict)

	note, err := doctor.AppendTreatmentNote(ctx, &AppendTreatmentNoteRequest{PatientID: "p1", Summary: "checkup"})
	require.NoError(t, err)
	assert.Equal(t, 1, note.Version)

	stale := 0
	_, err = doctor.AppendTreatmentNote(ctx, &AppendTreatmentNoteRequest{PatientID: "p1", Summary: "again", ExpectedVersion: &stale})
	assert.ErrorIs(t, err, common.ErrConflict)

	_, err = patient.AppendTreatmentNote(ctx, &AppendTreatmentNoteRequest{PatientID: "p1", Summary: "self"})
	assert.ErrorIs(t, err, common.ErrAuthorization)

	got, err := doctor.ReadRecord(ctx, "p1")
	require.NoError(t, err)
	assert.Len(t, got.Appointments, 1)
	assert.Len(t, got.TreatmentNotes, 1)

	_, err = patient.VerifyAuditChain(ctx, 0, 0)
	assert.ErrorIs(t, err, common.ErrAuthorization)

	res, err := admin.VerifyAuditChain(ctx, 0, 0)
	require.NoError(t, err)
	assert.True(t, res.Valid)
	assert.Positive(t, res.Checked)
}

func TestServer_ValidationError(t *testing.T) {
	c, sm := startServer(t)
	ctx := context.Background()
	token, _, err := sm.Issue(ctx, "p1", models.RolePatient, "")
	require.NoError(t, err)

	_, err = c.WithToken(token).CreateRecord(ctx, models.Profile{PatientID: "p1"})
	assert.ErrorIs(t, err, common.ErrValidation)
}
