//go:build integration

package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"attesto/internal/audit"
	auditpg "attesto/internal/audit/store/postgres"
	id "attesto/pkg/domain"
	txcontext "attesto/pkg/platform/tx"
	"attesto/pkg/testutil/containers"
)

type AuditStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *auditpg.Store
}

func TestAuditStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(AuditStoreSuite))
}

func (s *AuditStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.store = auditpg.New(s.postgres.DB)
}

func (s *AuditStoreSuite) SetupTest() {
	err := s.postgres.TruncateTables(context.Background(), "audit_events")
	s.Require().NoError(err)
}

func (s *AuditStoreSuite) newEvent(subject string, action audit.AuditEvent) audit.Event {
	return audit.Event{
		ID:        uuid.NewString(),
		Category:  action.Category(),
		Timestamp: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		Subject:   id.Principal(subject),
		Action:    string(action),
		RequestID: uuid.NewString(),
	}
}

func (s *AuditStoreSuite) TestAppendAssignsCommitOrder() {
	ctx := context.Background()
	subject := "did:example:" + uuid.NewString()

	for _, action := range []audit.AuditEvent{
		audit.EventIdentityRegistered,
		audit.EventCredentialIssued,
		audit.EventCredentialRevoked,
	} {
		s.Require().NoError(s.store.Append(ctx, s.newEvent(subject, action)))
	}

	events, err := s.store.ListBySubject(ctx, id.Principal(subject))
	s.Require().NoError(err)
	s.Require().Len(events, 3)

	s.Equal(string(audit.EventIdentityRegistered), events[0].Action)
	s.Equal(string(audit.EventCredentialIssued), events[1].Action)
	s.Equal(string(audit.EventCredentialRevoked), events[2].Action)
	s.Less(events[0].Seq, events[1].Seq)
	s.Less(events[1].Seq, events[2].Seq)
}

func (s *AuditStoreSuite) TestAppendIsIdempotentOnEventID() {
	ctx := context.Background()
	event := s.newEvent("did:example:"+uuid.NewString(), audit.EventCredentialIssued)

	s.Require().NoError(s.store.Append(ctx, event))
	s.Require().NoError(s.store.Append(ctx, event), "redelivery must not error")

	events, err := s.store.ListBySubject(ctx, event.Subject)
	s.Require().NoError(err)
	s.Len(events, 1)
}

// TestAppendJoinsAmbientTransaction pins the property the outbox depends on:
// an event appended inside a rolled-back transaction never becomes visible.
func (s *AuditStoreSuite) TestAppendJoinsAmbientTransaction() {
	ctx := context.Background()
	event := s.newEvent("did:example:"+uuid.NewString(), audit.EventCredentialIssued)

	tx, err := s.postgres.DB.BeginTx(ctx, nil)
	s.Require().NoError(err)
	s.Require().NoError(s.store.Append(txcontext.WithTx(ctx, tx), event))
	s.Require().NoError(tx.Rollback())

	events, err := s.store.ListBySubject(ctx, event.Subject)
	s.Require().NoError(err)
	s.Empty(events, "an aborted transition must leave no audit trace")
}

func (s *AuditStoreSuite) TestOutboxDrainCycle() {
	ctx := context.Background()
	subject := "did:example:" + uuid.NewString()

	for i := 0; i < 5; i++ {
		s.Require().NoError(s.store.Append(ctx, s.newEvent(subject, audit.EventCredentialIssued)))
	}

	batch, err := s.store.NextBatch(ctx, 3)
	s.Require().NoError(err)
	s.Require().Len(batch, 3, "batch size caps the drain")
	s.Less(batch[0].Seq, batch[1].Seq)
	s.Less(batch[1].Seq, batch[2].Seq)

	seqs := []uint64{batch[0].Seq, batch[1].Seq, batch[2].Seq}
	s.Require().NoError(s.store.MarkPublished(ctx, seqs))

	rest, err := s.store.NextBatch(ctx, 10)
	s.Require().NoError(err)
	s.Require().Len(rest, 2, "published events leave the outbox")
	s.Greater(rest[0].Seq, seqs[2])

	s.Require().NoError(s.store.MarkPublished(ctx, []uint64{rest[0].Seq, rest[1].Seq}))

	empty, err := s.store.NextBatch(ctx, 10)
	s.Require().NoError(err)
	s.Empty(empty)

	// Publication is for the relay only; the log itself keeps everything.
	events, err := s.store.ListAll(ctx)
	s.Require().NoError(err)
	s.Len(events, 5)
}

func (s *AuditStoreSuite) TestMarkPublishedEmptyBatch() {
	s.Require().NoError(s.store.MarkPublished(context.Background(), nil))
}

func (s *AuditStoreSuite) TestListRecentReturnsTailInCommitOrder() {
	ctx := context.Background()
	subject := "did:example:" + uuid.NewString()

	var appended []audit.Event
	for i := 0; i < 5; i++ {
		event := s.newEvent(subject, audit.EventCredentialVerified)
		s.Require().NoError(s.store.Append(ctx, event))
		appended = append(appended, event)
	}

	recent, err := s.store.ListRecent(ctx, 2)
	s.Require().NoError(err)
	s.Require().Len(recent, 2)
	s.Equal(appended[3].ID, recent[0].ID)
	s.Equal(appended[4].ID, recent[1].ID)
}

func (s *AuditStoreSuite) TestRoundTripPreservesFields() {
	ctx := context.Background()
	event := audit.Event{
		ID:             uuid.NewString(),
		Category:       audit.CategoryCompliance,
		Timestamp:      time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		Subject:        id.Principal("did:example:alice"),
		Action:         string(audit.EventCredentialIssued),
		CredentialID:   "deadbeef",
		CredentialType: "degree",
		Issuer:         id.Principal("did:example:university"),
		Decision:       "issued",
		Reason:         "",
		RequestID:      "req-123",
		ActorID:        "did:example:university",
		IP:             "203.0.113.7",
		UserAgent:      "Chrome 120.0.0.0 on Windows 10",
	}
	s.Require().NoError(s.store.Append(ctx, event))

	events, err := s.store.ListBySubject(ctx, event.Subject)
	s.Require().NoError(err)
	s.Require().Len(events, 1)

	got := events[0]
	s.NotZero(got.Seq)
	got.Seq = 0
	s.WithinDuration(event.Timestamp, got.Timestamp, time.Microsecond)
	got.Timestamp = event.Timestamp
	s.Equal(event, got)
}
