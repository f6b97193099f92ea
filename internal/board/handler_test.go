package board

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"whiteboard/internal/board/model"
	"whiteboard/internal/board/repository"
	"whiteboard/internal/board/service"
	"whiteboard/socket"
)

type roomMember struct {
	id     string
	mu     sync.Mutex
	frames []string
}

func (m *roomMember) ID() string { return m.id }

func (m *roomMember) Push(frame []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frames = append(m.frames, string(frame))
	return nil
}

func (m *roomMember) received() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.frames...)
}

type fixture struct {
	mock   sqlmock.Sqlmock
	hub    *socket.Hub
	router http.Handler
}

func newFixture(t *testing.T) *fixture {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repo := repository.NewBoardRepository(db)
	metrics := socket.NewMetrics(prometheus.NewRegistry())
	rooms := socket.NewRegistry()
	hub := socket.NewHub(rooms, socket.NewEngine(repo, rooms, metrics, time.Second), socket.DefaultOptions(), metrics)
	t.Cleanup(hub.Shutdown)

	boards := NewBoardHandler(service.NewBoardService(repo, hub))
	notes := NewNoteHandler(service.NewNoteService(repository.NewNoteRepository(db), repo))
	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		boards.Routes(r)
		notes.Routes(r)
	})
	return &fixture{mock: mock, hub: hub, router: r}
}

func (f *fixture) do(method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

var boardColumns = []string{"id", "name", "created_at", "updated_at"}

func (f *fixture) expectBoard(id string) {
	f.mock.ExpectQuery("SELECT id, name, created_at, updated_at FROM boards WHERE id").
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows(boardColumns).AddRow(id, "Room "+id, time.Now(), time.Now()))
}

func TestCreateBoard(t *testing.T) {
	f := newFixture(t)
	f.mock.ExpectQuery("INSERT INTO boards").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(time.Now(), time.Now()))

	rec := f.do(http.MethodPost, "/api/boards/create/", "")

	require.Equal(t, http.StatusCreated, rec.Code)
	var resp model.CreateBoardResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	_, err := uuid.Parse(resp.ID)
	assert.NoError(t, err)
	assert.Equal(t, "/boards/"+resp.ID+"/", resp.ShareLink)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestGetBoard(t *testing.T) {
	f := newFixture(t)
	id := uuid.NewString()

	f.expectBoard(id)
	rec := f.do(http.MethodGet, "/api/boards/"+id+"/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"name":"Room `+id+`"`)

	missing := uuid.NewString()
	f.mock.ExpectQuery("SELECT id, name").WithArgs(missing).WillReturnRows(sqlmock.NewRows(boardColumns))
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/api/boards/"+missing+"/", "").Code)

	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/api/boards/not-a-uuid/", "").Code)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestGetStateReturnsEventsInOrder(t *testing.T) {
	f := newFixture(t)
	id := uuid.NewString()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	f.expectBoard(id)
	f.mock.ExpectQuery("FROM drawing_events").
		WithArgs(id, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "board_id", "user_id", "data", "created_at"}).
			AddRow(int64(4), id, "alice", []byte(`{"stroke":"a"}`), base.Add(time.Second)).
			AddRow(int64(7), id, nil, []byte(`{"stroke":"b"}`), base.Add(2*time.Second)))

	rec := f.do(http.MethodGet, "/api/boards/"+id+"/state/?since="+base.Format(time.RFC3339), "")

	require.Equal(t, http.StatusOK, rec.Code)
	var state model.BoardState
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &state))
	require.Len(t, state.Events, 2)
	assert.Equal(t, int64(4), state.Events[0].ID)
	assert.Equal(t, "alice", *state.Events[0].UserID)
	assert.JSONEq(t, `{"stroke":"b"}`, string(state.Events[1].Data))
	assert.Nil(t, state.Events[1].UserID)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestGetStateErrors(t *testing.T) {
	f := newFixture(t)
	id := uuid.NewString()

	rec := f.do(http.MethodGet, "/api/boards/"+id+"/state/?since=yesterday", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	f.mock.ExpectQuery("SELECT id, name").WithArgs(id).WillReturnRows(sqlmock.NewRows(boardColumns))
	rec = f.do(http.MethodGet, "/api/boards/"+id+"/state/", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestDeleteBoardDropsRoom(t *testing.T) {
	f := newFixture(t)
	id := uuid.NewString()
	member := &roomMember{id: "s1"}
	require.NoError(t, f.hub.Rooms.Join(member, id))

	f.mock.ExpectExec("DELETE FROM boards").WithArgs(id).WillReturnResult(sqlmock.NewResult(0, 1))
	rec := f.do(http.MethodDelete, "/api/boards/"+id+"/", "")

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, f.hub.Rooms.MembersOf(id))

	f.mock.ExpectExec("DELETE FROM boards").WithArgs(id).WillReturnResult(sqlmock.NewResult(0, 0))
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodDelete, "/api/boards/"+id+"/", "").Code)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestCreateDrawingBroadcastsToRoom(t *testing.T) {
	f := newFixture(t)
	id := uuid.NewString()
	a, b := &roomMember{id: "A"}, &roomMember{id: "B"}
	require.NoError(t, f.hub.Rooms.Join(a, id))
	require.NoError(t, f.hub.Rooms.Join(b, id))

	f.expectBoard(id)
	f.mock.ExpectQuery("INSERT INTO drawing_events").
		WithArgs(id, "rest-user", `{"tool":"pen"}`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(11), time.Now()))

	rec := f.do(http.MethodPost, "/api/drawings/", `{"board":"`+id+`","user":"rest-user","data":{"tool":"pen"}}`)

	require.Equal(t, http.StatusCreated, rec.Code)
	var ev model.DrawingEvent
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ev))
	assert.Equal(t, int64(11), ev.ID)

	for _, m := range []*roomMember{a, b} {
		frames := m.received()
		require.Len(t, frames, 1, m.id)
		assert.JSONEq(t, `{"event":"draw_event","data":{"tool":"pen"}}`, frames[0])
	}
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestCreateDrawingAppendFailure(t *testing.T) {
	f := newFixture(t)
	id := uuid.NewString()
	a := &roomMember{id: "A"}
	require.NoError(t, f.hub.Rooms.Join(a, id))

	f.expectBoard(id)
	f.mock.ExpectQuery("INSERT INTO drawing_events").WillReturnError(errors.New("disk full"))

	rec := f.do(http.MethodPost, "/api/drawings/", `{"board":"`+id+`","data":{"tool":"pen"}}`)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Empty(t, a.received())
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestDrawingValidation(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/api/drawings/", `{"board":"nope","data":{}}`).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/api/drawings/", `{"board":"`+uuid.NewString()+`"}`).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/api/drawings/", `not json`).Code)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/api/drawings/", "").Code)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestListBoards(t *testing.T) {
	f := newFixture(t)
	f.mock.ExpectQuery("SELECT id, name, created_at, updated_at FROM boards ORDER BY").
		WillReturnRows(sqlmock.NewRows(boardColumns).
			AddRow("b-2", "Room b-2", time.Now(), time.Now()).
			AddRow("b-1", "Room b-1", time.Now(), time.Now()))

	rec := f.do(http.MethodGet, "/api/boards/", "")

	require.Equal(t, http.StatusOK, rec.Code)
	var boards []model.Board
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &boards))
	require.Len(t, boards, 2)
	assert.Equal(t, "b-2", boards[0].ID)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestGetDrawing(t *testing.T) {
	f := newFixture(t)
	id := uuid.NewString()

	f.mock.ExpectQuery("FROM drawing_events WHERE id").
		WithArgs(int64(11)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "board_id", "user_id", "data", "created_at"}).
			AddRow(int64(11), id, nil, []byte(`{"tool":"pen"}`), time.Now()))
	rec := f.do(http.MethodGet, "/api/drawings/11/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var ev model.DrawingEvent
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ev))
	assert.Equal(t, id, ev.BoardID)

	f.mock.ExpectQuery("FROM drawing_events WHERE id").
		WithArgs(int64(12)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "board_id", "user_id", "data", "created_at"}))
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/api/drawings/12/", "").Code)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/api/drawings/abc/", "").Code)

	assert.NoError(t, f.mock.ExpectationsWereMet())
}

var noteColumns = []string{"id", "board_id", "user_id", "content", "color", "position", "created_at", "updated_at"}

func (f *fixture) expectNote(id int64, boardID string) {
	f.mock.ExpectQuery("FROM sticky_notes WHERE id").
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows(noteColumns).
			AddRow(id, boardID, nil, "todo", model.DefaultNoteColor, []byte(`{"x":10,"y":20}`), time.Now(), time.Now()))
}

func TestCreateNote(t *testing.T) {
	f := newFixture(t)
	id := uuid.NewString()

	f.expectBoard(id)
	f.mock.ExpectQuery("INSERT INTO sticky_notes").
		WithArgs(id, nil, "ship it", model.DefaultNoteColor, `{"x":10,"y":20}`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(int64(3), time.Now(), time.Now()))

	rec := f.do(http.MethodPost, "/api/notes/", `{"board":"`+id+`","content":"ship it","position":{"x":10,"y":20}}`)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var n model.StickyNote
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &n))
	assert.Equal(t, int64(3), n.ID)
	assert.Equal(t, model.DefaultNoteColor, n.Color)
	assert.JSONEq(t, `{"x":10,"y":20}`, string(n.Position))
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestNoteValidation(t *testing.T) {
	f := newFixture(t)
	id := uuid.NewString()

	tests := []struct {
		name string
		body string
	}{
		{name: "board is not a uuid", body: `{"board":"nope","content":"x","position":{}}`},
		{name: "blank content", body: `{"board":"` + id + `","content":"  ","position":{}}`},
		{name: "missing position", body: `{"board":"` + id + `","content":"x"}`},
		{name: "null position", body: `{"board":"` + id + `","content":"x","position":null}`},
		{name: "color too long", body: `{"board":"` + id + `","content":"x","color":"#ff00ff00","position":{}}`},
		{name: "malformed body", body: `{"board":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/api/notes/", tt.body).Code)
		})
	}

	f.mock.ExpectQuery("SELECT id, name").WithArgs(id).WillReturnRows(sqlmock.NewRows(boardColumns))
	rec := f.do(http.MethodPost, "/api/notes/", `{"board":"`+id+`","content":"x","position":{}}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/api/notes/?board=nope", "").Code)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestListAndGetNotes(t *testing.T) {
	f := newFixture(t)
	id := uuid.NewString()

	f.mock.ExpectQuery("FROM sticky_notes WHERE board_id").
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows(noteColumns).
			AddRow(int64(1), id, "alice", "a", "#fff9a", []byte(`{}`), time.Now(), time.Now()))
	rec := f.do(http.MethodGet, "/api/notes/?board="+id, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var notes []model.StickyNote
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &notes))
	require.Len(t, notes, 1)
	assert.Equal(t, "alice", *notes[0].UserID)

	f.expectNote(1, id)
	rec = f.do(http.MethodGet, "/api/notes/1/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"content":"todo"`)

	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/api/notes/0/", "").Code)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestUpdateNote(t *testing.T) {
	f := newFixture(t)
	id := uuid.NewString()

	f.expectNote(4, id)
	f.mock.ExpectQuery("UPDATE sticky_notes").
		WithArgs(int64(4), "todo", "#00ff00", `{"x":1,"y":1}`).
		WillReturnRows(sqlmock.NewRows([]string{"updated_at"}).AddRow(time.Now()))

	rec := f.do(http.MethodPatch, "/api/notes/4/", `{"color":"#00ff00","position":{"x":1,"y":1}}`)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var n model.StickyNote
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &n))
	assert.Equal(t, "todo", n.Content, "absent fields are kept")
	assert.Equal(t, "#00ff00", n.Color)

	f.expectNote(4, id)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPatch, "/api/notes/4/", `{"content":""}`).Code)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestDeleteNote(t *testing.T) {
	f := newFixture(t)

	f.mock.ExpectExec("DELETE FROM sticky_notes").WithArgs(int64(5)).WillReturnResult(sqlmock.NewResult(0, 1))
	assert.Equal(t, http.StatusNoContent, f.do(http.MethodDelete, "/api/notes/5/", "").Code)

	f.mock.ExpectExec("DELETE FROM sticky_notes").WithArgs(int64(5)).WillReturnResult(sqlmock.NewResult(0, 0))
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodDelete, "/api/notes/5/", "").Code)

	assert.Equal(t, http.StatusNotFound, f.do(http.MethodDelete, "/api/notes/x/", "").Code)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}
