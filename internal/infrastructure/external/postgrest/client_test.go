package postgrest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fitcoach-hub/fitcoach-client-hub/internal/domain/pipeline"
	"github.com/fitcoach-hub/fitcoach-client-hub/internal/domain/shared"
	"github.com/fitcoach-hub/fitcoach-client-hub/internal/domain/student"
	"github.com/fitcoach-hub/fitcoach-client-hub/internal/domain/task"
	"github.com/fitcoach-hub/fitcoach-client-hub/pkg/circuitbreaker"
	"github.com/fitcoach-hub/fitcoach-client-hub/pkg/retry"
	"github.com/fitcoach-hub/fitcoach-client-hub/pkg/timeutil"
)

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := DefaultClientConfig(server.URL)
	cfg.RetryConfig = retry.Config{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
	return NewClient(cfg)
}

func TestQuery_Encode(t *testing.T) {
	from := timeutil.DateTime(2025, 3, 10, 0, 0, 0)
	q := NewQuery().
		Eq("org_id", "org-1").
		In("status", "pending", "sent").
		Gte("scheduled_for", from).
		OrderBy("scheduled_for", true).
		Limit(20).
		Offset(40)

	values := q.Encode()
	assert.Equal(t, "eq.org-1", values.Get("org_id"))
	assert.Equal(t, "in.(pending,sent)", values.Get("status"))
	assert.Equal(t, "gte.2025-03-10T00:00:00.000Z", values.Get("scheduled_for"))
	assert.Equal(t, "scheduled_for.desc", values.Get("order"))
	assert.Equal(t, "20", values.Get("limit"))
	assert.Equal(t, "40", values.Get("offset"))
}

func TestQuery_TextSearchDisjunction(t *testing.T) {
	q := taskQuery(task.Predicate{OrgID: "org-1", Text: "ana"})
	values := q.Encode()
	assert.Equal(t, "(student_name.ilike.*ana*,payload.ilike.*ana*)", values.Get("or"))
}

func TestSelect_EncodesFiltersOnWire(t *testing.T) {
	var gotQuery string
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `[]`)
	})

	var rows []taskRow
	q := NewQuery().Eq("org_id", "org-1").IsNull("deleted_at")
	err := client.Select(context.Background(), "students", q, &rows)

	require.NoError(t, err)
	assert.Contains(t, gotQuery, "org_id=eq.org-1")
	assert.Contains(t, gotQuery, "deleted_at=is.null")
}

func TestInsert_ConflictMapsToStructuredError(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		io.WriteString(w, `{"code":"23505","message":"duplicate key value violates unique constraint \"kanban_cards_org_id_student_id_key\""}`)
	})

	err := client.Insert(context.Background(), "kanban_cards", map[string]interface{}{"id": "c1"}, nil)

	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrConflict))

	status, body, ok := shared.StoreDetail(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusConflict, status)
	assert.Contains(t, body, "23505")
}

func TestInsert_SchemaCacheMissCarriesColumn(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"code":"PGRST204","message":"Could not find the 'cor' column of 'kanban_cards' in the schema cache"}`)
	})

	err := client.Insert(context.Background(), "kanban_cards", map[string]interface{}{"cor": "#fff"}, nil)

	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrUnknownColumn))

	column, ok := shared.UnknownColumnOf(err)
	require.True(t, ok)
	assert.Equal(t, "cor", column)
}

func TestSelect_RetriesServerErrors(t *testing.T) {
	var calls int
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `[{"id":"t1","org_id":"org-1"}]`)
	})

	var rows []taskRow
	err := client.Select(context.Background(), "relationship_tasks", NewQuery(), &rows)

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	require.Len(t, rows, 1)
	assert.Equal(t, "t1", rows[0].ID)
}

func TestSelect_ClientErrorsAreNotRetried(t *testing.T) {
	var calls int
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"code":"PGRST100","message":"parse error"}`)
	})

	var rows []taskRow
	err := client.Select(context.Background(), "relationship_tasks", NewQuery(), &rows)

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.True(t, errors.Is(err, shared.ErrStoreFailure))
}

func TestInsert_WritesAreNeverRetried(t *testing.T) {
	var calls int
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	err := client.Insert(context.Background(), "students", map[string]interface{}{"id": "s1"}, nil)

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestSelectWithCount_ParsesContentRange(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "count=exact", r.Header.Get("Prefer"))
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Range", "0-19/142")
		io.WriteString(w, `[]`)
	})

	var rows []taskRow
	total, err := client.SelectWithCount(context.Background(), "relationship_tasks", NewQuery(), &rows)

	require.NoError(t, err)
	assert.Equal(t, 142, total)
}

func TestCardCreate_OmitsDriftedColumn(t *testing.T) {
	var received map[string]interface{}
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &received)
		w.WriteHeader(http.StatusCreated)
	})

	repo := NewCardRepository(client)
	card := &pipeline.Card{
		ID:        "card-1",
		OrgID:     "org-1",
		StudentID: "stu-1",
		StageID:   "stage-1",
		Position:  0,
		CreatedAt: timeutil.Date(2025, 3, 10),
	}

	err := repo.Create(context.Background(), card, "created_at")

	require.NoError(t, err)
	assert.Equal(t, "card-1", received["id"])
	assert.NotContains(t, received, "created_at")
}

func TestStudentRepository_GetByID_NotFoundOnEmptyResult(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `[]`)
	})

	repo := NewStudentRepository(client)
	_, err := repo.GetByID(context.Background(), "org-1", "missing")

	assert.True(t, errors.Is(err, shared.ErrNotFound))
}

func TestStudentRepository_Create_MapsConflictToEmailTaken(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		io.WriteString(w, `{"code":"23505","message":"duplicate key"}`)
	})

	repo := NewStudentRepository(client)
	err := repo.Create(context.Background(), testStudent())

	assert.True(t, errors.Is(err, shared.ErrEmailTaken))
}

func testStudent() *student.Student {
	s, err := student.NewStudent(student.NewStudentParams{
		ID:    "stu-1",
		OrgID: "org-1",
		Name:  "Ana Silva",
		Email: "ana@example.com",
	})
	if err != nil {
		panic(err)
	}
	return s
}

func TestUnknownColumnFromMessage(t *testing.T) {
	tests := []struct {
		message string
		want    string
	}{
		{"Could not find the 'cor' column of 'kanban_cards' in the schema cache", "cor"},
		{"Could not find the 'extra_field' column of 'students' in the schema cache", "extra_field"},
		{"no quotes here", ""},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, unknownColumnFromMessage(tt.message))
	}
}

func TestParseContentRangeTotal(t *testing.T) {
	assert.Equal(t, 42, parseContentRangeTotal("0-9/42"))
	assert.Equal(t, 0, parseContentRangeTotal("0-9/*"))
	assert.Equal(t, 0, parseContentRangeTotal(""))
}

func TestCircuitOpensAfterRepeatedStoreFailures(t *testing.T) {
	var calls int
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	// Writes are single-shot, so each failed insert is one breaker
	// failure. The default threshold is five.
	for i := 0; i < 5; i++ {
		err := client.Insert(context.Background(), "students", map[string]string{"id": "s-1"}, nil)
		require.Error(t, err)
	}
	require.Equal(t, 5, calls)

	err := client.Insert(context.Background(), "students", map[string]string{"id": "s-1"}, nil)
	require.ErrorIs(t, err, circuitbreaker.ErrCircuitOpen)
	assert.Equal(t, 5, calls, "open circuit must not reach the store")
}

func TestConflictsDoNotTripCircuit(t *testing.T) {
	var calls int
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"code":"23505","message":"duplicate key"}`))
	})

	for i := 0; i < 10; i++ {
		err := client.Insert(context.Background(), "kanban_cards", map[string]string{"id": "c-1"}, nil)
		require.ErrorIs(t, err, shared.ErrConflict)
	}
	assert.Equal(t, 10, calls)
}
