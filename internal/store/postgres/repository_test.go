package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/madfam-io/renec-harvester-sub000/internal/harvester"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

var testNow = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func newRepo(t *testing.T) (*Repository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	repo, err := NewWithPool(mock, fixedClock{now: testNow})
	require.NoError(t, err)
	return repo, mock
}

func TestNewWithPoolValidation(t *testing.T) {
	_, err := NewWithPool(nil, fixedClock{})
	require.Error(t, err)

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewWithPool(mock, nil)
	require.Error(t, err)
}

func TestBeginRunInsertsRow(t *testing.T) {
	repo, mock := newRepo(t)

	mock.ExpectExec("INSERT INTO runs").
		WithArgs("run-1", "running", testNow, "", []byte("{}"), []byte("[]"), "").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := repo.BeginRun(context.Background(), harvester.Run{
		ID:        "run-1",
		Status:    harvester.RunStatusRunning,
		StartedAt: testNow,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBeginRunRequiresID(t *testing.T) {
	repo, _ := newRepo(t)
	err := repo.BeginRun(context.Background(), harvester.Run{})
	require.Error(t, err)
}

func TestFinalizeRunUpdatesRunningRow(t *testing.T) {
	repo, mock := newRepo(t)
	finished := testNow.Add(time.Minute)

	mock.ExpectExec("UPDATE runs").
		WithArgs("run-1", "succeeded", &finished, []byte("{}"), []byte("[]"), "").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := repo.FinalizeRun(context.Background(), harvester.Run{
		ID:         "run-1",
		Status:     harvester.RunStatusSucceeded,
		FinishedAt: &finished,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFinalizeRunRejectsNonRunningRun(t *testing.T) {
	repo, mock := newRepo(t)
	finished := testNow.Add(time.Minute)

	mock.ExpectExec("UPDATE runs").
		WithArgs("run-1", "succeeded", &finished, []byte("{}"), []byte("[]"), "").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := repo.FinalizeRun(context.Background(), harvester.Run{
		ID:         "run-1",
		Status:     harvester.RunStatusSucceeded,
		FinishedAt: &finished,
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "not running")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetRunScansRow(t *testing.T) {
	repo, mock := newRepo(t)
	finished := testNow.Add(time.Minute)

	rows := pgxmock.NewRows([]string{
		"id", "status", "started_at", "finished_at", "previous_run_id",
		"driver_stats", "gate_results", "error_text",
	}).AddRow(
		"run-2", "succeeded", testNow, &finished, "run-1",
		[]byte(`{"standard":{"discovered":3,"extracted":3,"relationships":0,"parse_errors":0,"retries":1,"failed_targets":0}}`),
		[]byte(`[{"name":"coverage","passed":true}]`),
		"",
	)
	mock.ExpectQuery("SELECT (.+) FROM runs WHERE id").
		WithArgs("run-2").
		WillReturnRows(rows)

	run, err := repo.GetRun(context.Background(), "run-2")
	require.NoError(t, err)
	require.Equal(t, harvester.RunStatusSucceeded, run.Status)
	require.Equal(t, "run-1", run.PreviousRunID)
	require.Equal(t, 3, run.DriverStats["standard"].Discovered)
	require.Equal(t, 1, run.DriverStats["standard"].Retries)
	require.Len(t, run.GateResults, 1)
	require.True(t, run.GateResults[0].Passed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPreviousSuccessfulRunEmptyWithoutBaseline(t *testing.T) {
	repo, mock := newRepo(t)

	mock.ExpectQuery("SELECT id FROM runs WHERE status").
		WillReturnError(pgx.ErrNoRows)

	id, err := repo.PreviousSuccessfulRun(context.Background())
	require.NoError(t, err)
	require.Empty(t, id)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertEntityWritesLiveRowAndObservation(t *testing.T) {
	repo, mock := newRepo(t)

	attrsJSON := []byte(`{"title":"Preparación de alimentos"}`)
	notesJSON := []byte(`[]`)

	mock.ExpectExec("INSERT INTO entities").
		WithArgs("standard", "EC0100", attrsJSON, notesJSON,
			"https://conocer.gob.mx/estandares/EC0100", testNow, "hash-1").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO entity_observations").
		WithArgs("run-1", "standard", "EC0100", attrsJSON, notesJSON,
			"https://conocer.gob.mx/estandares/EC0100", "hash-1").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := repo.UpsertEntity(context.Background(), harvester.EntityRecord{
		Variant:     harvester.VariantStandard,
		NaturalKey:  "EC0100",
		Attributes:  map[string]string{"title": "Preparación de alimentos"},
		SourceURL:   "https://conocer.gob.mx/estandares/EC0100",
		ContentHash: "hash-1",
	}, "run-1")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertEntityRequiresNaturalKey(t *testing.T) {
	repo, _ := newRepo(t)
	err := repo.UpsertEntity(context.Background(), harvester.EntityRecord{}, "run-1")
	require.Error(t, err)
}

func TestUpsertEdgeWritesLiveRowAndObservation(t *testing.T) {
	repo, mock := newRepo(t)

	attrsJSON := []byte(`{"since":"2024"}`)

	mock.ExpectExec("INSERT INTO edges").
		WithArgs("accredits", "certifier", "ECE001-99", "standard", "EC0100",
			attrsJSON, "https://conocer.gob.mx/certificadores/ECE001-99", "run-1").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO edge_observations").
		WithArgs("run-1", "accredits", "certifier", "ECE001-99", "standard", "EC0100",
			attrsJSON, "https://conocer.gob.mx/certificadores/ECE001-99").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := repo.UpsertEdge(context.Background(), harvester.RelationshipRecord{
		Type:          harvester.RelationAccredits,
		SourceVariant: harvester.VariantCertifier,
		SourceKey:     "ECE001-99",
		TargetVariant: harvester.VariantStandard,
		TargetKey:     "EC0100",
		Attributes:    map[string]string{"since": "2024"},
		SourceURL:     "https://conocer.gob.mx/certificadores/ECE001-99",
	}, "run-1")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCurrentSnapshotScansRecords(t *testing.T) {
	repo, mock := newRepo(t)
	firstSeen := testNow.Add(-48 * time.Hour)

	rows := pgxmock.NewRows([]string{
		"natural_key", "attributes", "notes", "source_url", "content_hash", "first_seen", "last_seen",
	}).AddRow(
		"EC0100", []byte(`{"title":"Preparación de alimentos"}`), []byte(`["nota"]`),
		"https://conocer.gob.mx/estandares/EC0100", "hash-1", firstSeen, testNow,
	).AddRow(
		"EC0200", []byte(`{}`), []byte(`[]`),
		"https://conocer.gob.mx/estandares/EC0200", "hash-2", testNow, testNow,
	)
	mock.ExpectQuery("FROM entity_observations").
		WithArgs("run-1", "standard").
		WillReturnRows(rows)

	recs, err := repo.CurrentSnapshot(context.Background(), "run-1", harvester.VariantStandard)
	require.NoError(t, err)
	require.Len(t, recs, 2)

	require.Equal(t, harvester.VariantStandard, recs[0].Variant)
	require.Equal(t, "EC0100", recs[0].NaturalKey)
	require.Equal(t, "Preparación de alimentos", recs[0].Attributes["title"])
	require.Equal(t, []string{"nota"}, recs[0].Notes)
	require.Equal(t, firstSeen, recs[0].FirstSeen)
	require.Equal(t, testNow, recs[0].LastSeen)

	require.Nil(t, recs[1].Attributes)
	require.Nil(t, recs[1].Notes)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCurrentEdgesScansRecords(t *testing.T) {
	repo, mock := newRepo(t)

	rows := pgxmock.NewRows([]string{
		"source_variant", "source_key", "target_variant", "target_key", "attributes", "source_url",
	}).AddRow(
		"certifier", "ECE001-99", "standard", "EC0100", []byte(`{}`),
		"https://conocer.gob.mx/certificadores/ECE001-99",
	)
	mock.ExpectQuery("FROM edge_observations").
		WithArgs("run-1", "accredits").
		WillReturnRows(rows)

	edges, err := repo.CurrentEdges(context.Background(), "run-1", harvester.RelationAccredits)
	require.NoError(t, err)
	require.Len(t, edges, 1)
	require.Equal(t, harvester.RelationAccredits, edges[0].Type)
	require.Equal(t, harvester.VariantCertifier, edges[0].SourceVariant)
	require.Equal(t, "ECE001-99", edges[0].SourceKey)
	require.Equal(t, "EC0100", edges[0].TargetKey)
	require.Equal(t, "run-1", edges[0].RunID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSweepMissingEdgesDeletesExpired(t *testing.T) {
	repo, mock := newRepo(t)

	mock.ExpectExec("UPDATE edges SET missing_runs").
		WithArgs("run-5").
		WillReturnResult(pgxmock.NewResult("UPDATE", 4))
	mock.ExpectExec("DELETE FROM edges").
		WithArgs(3).
		WillReturnResult(pgxmock.NewResult("DELETE", 2))

	deleted, err := repo.SweepMissingEdges(context.Background(), "run-5", 3)
	require.NoError(t, err)
	require.Equal(t, 2, deleted)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSweepMissingEdgesRejectsBadRetention(t *testing.T) {
	repo, _ := newRepo(t)
	_, err := repo.SweepMissingEdges(context.Background(), "run-1", 0)
	require.Error(t, err)
}
