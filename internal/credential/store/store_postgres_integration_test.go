//go:build integration

package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"attesto/internal/credential/models"
	"attesto/internal/credential/store"
	id "attesto/pkg/domain"
	"attesto/pkg/platform/sentinel"
	txcontext "attesto/pkg/platform/tx"
	"attesto/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.PostgresStore
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.store = store.NewPostgres(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	err := s.postgres.TruncateTables(context.Background(), "subject_credentials", "credentials", "issuer_sequences")
	s.Require().NoError(err)
}

// withTx mirrors the server's transaction glue: the callback context carries
// the transaction, and an error rolls everything back.
func (s *PostgresStoreSuite) withTx(ctx context.Context, fn func(ctx context.Context) error) error {
	tx, err := s.postgres.DB.BeginTx(ctx, nil)
	s.Require().NoError(err)
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(txcontext.WithTx(ctx, tx)); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *PostgresStoreSuite) issue(ctx context.Context, issuer, subject id.Principal, issuedAt time.Time) *models.CredentialRecord {
	var rec *models.CredentialRecord
	err := s.withTx(ctx, func(txCtx context.Context) error {
		var err error
		rec, err = s.store.Issue(txCtx, issuer, func(sequence uint64) (*models.CredentialRecord, error) {
			return models.NewCredentialRecord(issuer, subject, "degree", "sha256:"+uuid.NewString(), issuedAt, issuedAt.Add(24*time.Hour), sequence)
		})
		return err
	})
	s.Require().NoError(err)
	return rec
}

func (s *PostgresStoreSuite) TestIssueAndFindRoundTrip() {
	ctx := context.Background()
	issuer := id.Principal("did:example:" + uuid.NewString())
	subject := id.Principal("did:example:" + uuid.NewString())
	issuedAt := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	rec := s.issue(ctx, issuer, subject, issuedAt)
	s.Equal(uint64(1), rec.Sequence)

	found, err := s.store.FindByID(ctx, rec.ID)
	s.Require().NoError(err)
	s.Equal(rec.ID, found.ID)
	s.Equal(issuer, found.Issuer)
	s.Equal(subject, found.Subject)
	s.Equal("degree", found.Type)
	s.Equal(rec.Data, found.Data)
	s.False(found.Revoked)
	s.Equal(uint64(1), found.Sequence)
	s.WithinDuration(issuedAt, found.IssuedAt, time.Microsecond)
	s.WithinDuration(issuedAt.Add(24*time.Hour), found.ExpiresAt, time.Microsecond)
}

func (s *PostgresStoreSuite) TestFindUnknownCredential() {
	unknown := id.CredentialID("0000000000000000000000000000000000000000000000000000000000000000")
	_, err := s.store.FindByID(context.Background(), unknown)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestSequencesAdvancePerIssuer() {
	ctx := context.Background()
	issuerA := id.Principal("did:example:" + uuid.NewString())
	issuerB := id.Principal("did:example:" + uuid.NewString())
	subject := id.Principal("did:example:" + uuid.NewString())
	issuedAt := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	s.Equal(uint64(1), s.issue(ctx, issuerA, subject, issuedAt).Sequence)
	s.Equal(uint64(2), s.issue(ctx, issuerA, subject, issuedAt.Add(time.Second)).Sequence)
	s.Equal(uint64(1), s.issue(ctx, issuerB, subject, issuedAt).Sequence, "issuers count independently")
	s.Equal(uint64(3), s.issue(ctx, issuerA, subject, issuedAt.Add(2*time.Second)).Sequence)
}

// TestFailedIssuanceRollsBackSequence pins the no-gap property: a build
// failure aborts the transaction, and the sequence bump disappears with it.
func (s *PostgresStoreSuite) TestFailedIssuanceRollsBackSequence() {
	ctx := context.Background()
	issuer := id.Principal("did:example:" + uuid.NewString())
	subject := id.Principal("did:example:" + uuid.NewString())
	issuedAt := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	buildFailed := errors.New("build failed")
	err := s.withTx(ctx, func(txCtx context.Context) error {
		_, err := s.store.Issue(txCtx, issuer, func(uint64) (*models.CredentialRecord, error) {
			return nil, buildFailed
		})
		return err
	})
	s.ErrorIs(err, buildFailed)

	rec := s.issue(ctx, issuer, subject, issuedAt)
	s.Equal(uint64(1), rec.Sequence, "a rolled-back issuance must not consume a sequence number")

	count, err := s.store.Count(ctx)
	s.Require().NoError(err)
	s.Equal(1, count)
}

func (s *PostgresStoreSuite) TestSameInstantIssuancesGetDistinctIDs() {
	ctx := context.Background()
	issuer := id.Principal("did:example:" + uuid.NewString())
	subject := id.Principal("did:example:" + uuid.NewString())
	issuedAt := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	first := s.issue(ctx, issuer, subject, issuedAt)
	second := s.issue(ctx, issuer, subject, issuedAt)

	s.NotEqual(first.ID, second.ID, "the sequence keeps identical issuance inputs apart")
	count, err := s.store.Count(ctx)
	s.Require().NoError(err)
	s.Equal(2, count)
}

func (s *PostgresStoreSuite) TestExecutePersistsRevocation() {
	ctx := context.Background()
	issuer := id.Principal("did:example:" + uuid.NewString())
	subject := id.Principal("did:example:" + uuid.NewString())
	rec := s.issue(ctx, issuer, subject, time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))

	err := s.withTx(ctx, func(txCtx context.Context) error {
		_, err := s.store.Execute(txCtx, rec.ID,
			func(r *models.CredentialRecord) error { return r.CanRevoke(issuer) },
			func(r *models.CredentialRecord) { r.ApplyRevocation() },
		)
		return err
	})
	s.Require().NoError(err)

	found, err := s.store.FindByID(ctx, rec.ID)
	s.Require().NoError(err)
	s.True(found.Revoked)
}

func (s *PostgresStoreSuite) TestExecuteValidationFailureWritesNothing() {
	ctx := context.Background()
	issuer := id.Principal("did:example:" + uuid.NewString())
	subject := id.Principal("did:example:" + uuid.NewString())
	rec := s.issue(ctx, issuer, subject, time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))

	err := s.withTx(ctx, func(txCtx context.Context) error {
		_, err := s.store.Execute(txCtx, rec.ID,
			func(r *models.CredentialRecord) error { return r.CanRevoke("did:example:mallory") },
			func(r *models.CredentialRecord) { r.ApplyRevocation() },
		)
		return err
	})
	s.Require().Error(err)

	found, err := s.store.FindByID(ctx, rec.ID)
	s.Require().NoError(err)
	s.False(found.Revoked)
}

func (s *PostgresStoreSuite) TestSubjectIndexKeepsIssuanceOrder() {
	ctx := context.Background()
	issuer := id.Principal("did:example:" + uuid.NewString())
	subject := id.Principal("did:example:" + uuid.NewString())
	issuedAt := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	first := s.issue(ctx, issuer, subject, issuedAt)
	second := s.issue(ctx, issuer, subject, issuedAt.Add(time.Second))
	third := s.issue(ctx, issuer, subject, issuedAt.Add(2*time.Second))

	index, err := s.store.ListBySubject(ctx, subject)
	s.Require().NoError(err)
	s.Equal([]id.CredentialID{first.ID, second.ID, third.ID}, index)
}

func (s *PostgresStoreSuite) TestSubjectIndexSurvivesRevocation() {
	ctx := context.Background()
	issuer := id.Principal("did:example:" + uuid.NewString())
	subject := id.Principal("did:example:" + uuid.NewString())
	rec := s.issue(ctx, issuer, subject, time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))

	err := s.withTx(ctx, func(txCtx context.Context) error {
		_, err := s.store.Execute(txCtx, rec.ID,
			func(r *models.CredentialRecord) error { return r.CanRevoke(issuer) },
			func(r *models.CredentialRecord) { r.ApplyRevocation() },
		)
		return err
	})
	s.Require().NoError(err)

	index, err := s.store.ListBySubject(ctx, subject)
	s.Require().NoError(err)
	s.Equal([]id.CredentialID{rec.ID}, index, "revocation never removes index entries")
}

func (s *PostgresStoreSuite) TestListUnknownSubjectIsEmpty() {
	index, err := s.store.ListBySubject(context.Background(), id.Principal("did:example:"+uuid.NewString()))
	s.Require().NoError(err)
	s.Empty(index)
}

// TestIssueOutsideTransactionStillWorks covers the pool path: reads and
// writes without an ambient transaction go straight to the database.
func (s *PostgresStoreSuite) TestIssueOutsideTransactionStillWorks() {
	ctx := context.Background()
	issuer := id.Principal("did:example:" + uuid.NewString())
	subject := id.Principal("did:example:" + uuid.NewString())
	issuedAt := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	rec, err := s.store.Issue(ctx, issuer, func(sequence uint64) (*models.CredentialRecord, error) {
		return models.NewCredentialRecord(issuer, subject, "degree", "sha256:pool", issuedAt, issuedAt.Add(time.Hour), sequence)
	})
	s.Require().NoError(err)

	found, err := s.store.FindByID(ctx, rec.ID)
	s.Require().NoError(err)
	s.Equal(rec.ID, found.ID)
}
