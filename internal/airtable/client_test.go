package airtable

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTable serves /v0/base1/Clientes with an in-memory row set.
type fakeTable struct {
	mu      sync.Mutex
	records []Record
	nextID  int
	pageLen int
	patches map[string]map[string]any
}

func (f *fakeTable) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if r.Header.Get("Authorization") != "Bearer pat" {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"type":"AUTHENTICATION_REQUIRED"}}`))
		return
	}
	const prefix = "/v0/base1/Clientes"
	id := strings.TrimPrefix(strings.TrimPrefix(r.URL.Path, prefix), "/")

	switch {
	case r.Method == http.MethodGet:
		start := 0
		if off := r.URL.Query().Get("offset"); off != "" {
			for i, rec := range f.records {
				if rec.ID == off {
					start = i
				}
			}
		}
		end := len(f.records)
		page := RecordList{}
		if f.pageLen > 0 && start+f.pageLen < end {
			end = start + f.pageLen
			page.Offset = f.records[end].ID
		}
		page.Records = f.records[start:end]
		_ = json.NewEncoder(w).Encode(page)
	case r.Method == http.MethodPost:
		var body struct {
			Fields map[string]any `json:"fields"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.nextID++
		rec := Record{ID: "rec" + string(rune('A'+f.nextID-1)), Fields: body.Fields}
		f.records = append(f.records, rec)
		_ = json.NewEncoder(w).Encode(rec)
	case r.Method == http.MethodPatch:
		var body struct {
			Fields map[string]any `json:"fields"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if f.patches == nil {
			f.patches = map[string]map[string]any{}
		}
		f.patches[id] = body.Fields
		for i := range f.records {
			if f.records[i].ID == id {
				for k, v := range body.Fields {
					f.records[i].Fields[k] = v
				}
				_ = json.NewEncoder(w).Encode(f.records[i])
				return
			}
		}
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"NOT_FOUND"}`))
	case r.Method == http.MethodDelete:
		for i := range f.records {
			if f.records[i].ID == id {
				f.records = append(f.records[:i], f.records[i+1:]...)
				_ = json.NewEncoder(w).Encode(DeleteResult{ID: id, Deleted: true})
				return
			}
		}
		w.WriteHeader(http.StatusNotFound)
	}
}

func newTestClient(t *testing.T, f *fakeTable, token string) *Client {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return NewClient("base1", "Clientes", token, WithBaseURL(srv.URL+"/v0"), WithRateLimit(0))
}

func seed() *fakeTable {
	return &fakeTable{records: []Record{
		{ID: "rec1", Fields: map[string]any{FieldName: "Ana López", FieldPhone: "5215550001", FieldEmail: "ana@example.com", FieldService: "Facial"}},
		{ID: "rec2", Fields: map[string]any{FieldName: "Luis Pérez", FieldPhone: "5215550002", FieldEmail: "Luis@Example.com"}},
	}}
}

func TestCreateAndUpdateRecord(t *testing.T) {
	f := seed()
	c := newTestClient(t, f, "pat")
	ctx := context.Background()

	rec, err := c.CreateRecord(ctx, map[string]any{FieldName: "Eva"})
	require.NoError(t, err)
	assert.NotEmpty(t, rec.ID)

	upd, err := c.UpdateRecord(ctx, "rec1", map[string]any{FieldName: "Ana María"})
	require.NoError(t, err)
	assert.Equal(t, "Ana María", upd.Fields[FieldName])
	assert.Equal(t, map[string]any{FieldName: "Ana María"}, f.patches["rec1"])
}

func TestUpdateRecord_NotFound(t *testing.T) {
	c := newTestClient(t, seed(), "pat")
	_, err := c.UpdateRecord(context.Background(), "missing", map[string]any{FieldName: "x"})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
}

func TestAuthFailureSurfacesAPIError(t *testing.T) {
	c := newTestClient(t, seed(), "wrong")
	_, err := c.ListRecords(context.Background(), 10, "")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
}

func TestAllRecords_FollowsOffset(t *testing.T) {
	f := seed()
	f.records = append(f.records, Record{ID: "rec3", Fields: map[string]any{FieldName: "Sofía"}})
	f.pageLen = 2
	c := newTestClient(t, f, "pat")

	all, err := c.AllRecords(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "rec3", all[2].ID)
}

func TestSaveUserService(t *testing.T) {
	c := newTestClient(t, seed(), "pat")
	env := c.SaveUserService(context.Background(), UserService{Name: "Eva", Phone: "555", Email: "eva@example.com", Service: "Masaje"})
	assert.Equal(t, "El usuario se ha guardado exitosamente.", env.Message)
	assert.False(t, env.Failed())
	data := env.Data.(map[string]string)
	assert.Equal(t, "Masaje", data["servicio_agendado"])
}

func TestSaveUserService_AuthError(t *testing.T) {
	c := newTestClient(t, seed(), "wrong")
	env := c.SaveUserService(context.Background(), UserService{Name: "Eva"})
	assert.True(t, env.Failed())
	assert.Equal(t, "No se pudo guardar el usuario en la tabla de Airtable.", env.Message)
}

func TestUpdateUserByPhone(t *testing.T) {
	f := seed()
	c := newTestClient(t, f, "pat")
	ctx := context.Background()

	env := c.UpdateUserByPhone(ctx, "5215550002", UserService{Service: "Manicure"})
	assert.Equal(t, "El registro se actualizó exitosamente.", env.Message)
	assert.Equal(t, map[string]any{FieldService: "Manicure"}, f.patches["rec2"])

	env = c.UpdateUserByPhone(ctx, "000", UserService{Name: "x"})
	assert.Equal(t, "No se encontró ningún registro con el teléfono proporcionado.", env.Message)

	env = c.UpdateUserByPhone(ctx, "5215550001", UserService{})
	assert.Equal(t, "No se proporcionaron campos para actualizar.", env.Message)
}

func TestReadRecords(t *testing.T) {
	c := newTestClient(t, seed(), "pat")
	ctx := context.Background()

	env := c.ReadRecords(ctx, Filter{Name: "lópez"})
	require.Equal(t, "Registros encontrados.", env.Message)
	rows := env.Data.([]Row)
	require.Len(t, rows, 1)
	assert.Equal(t, "rec1", rows[0].ID)

	env = c.ReadRecords(ctx, Filter{Email: "luis@example.com"})
	rows = env.Data.([]Row)
	require.Len(t, rows, 1)
	assert.Equal(t, "rec2", rows[0].ID)

	env = c.ReadRecords(ctx, Filter{Phone: "999"})
	assert.Nil(t, env.Data)
	assert.Equal(t, "No se encontraron registros que coincidan con los criterios de búsqueda.", env.Message)

	env = c.ReadRecords(ctx, Filter{})
	assert.Len(t, env.Data.([]Row), 2)
}

func TestDeleteByContact(t *testing.T) {
	f := seed()
	c := newTestClient(t, f, "pat")
	ctx := context.Background()

	env := c.DeleteByContact(ctx, "", "")
	assert.Equal(t, "Debe proporcionar un teléfono o un correo electrónico para borrar un registro.", env.Message)

	env = c.DeleteByContact(ctx, "", "ana@example.com")
	assert.Equal(t, "El registro se eliminó exitosamente.", env.Message)
	assert.Len(t, f.records, 1)

	env = c.DeleteByContact(ctx, "nope", "")
	assert.Equal(t, "No se encontró ningún registro con los criterios proporcionados.", env.Message)
}
