package monitoring

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/sarchlab/dbsim/codec"
	"github.com/sarchlab/dbsim/datablock"
)

const maxBodyBytes = 4 << 20

var (
	errMalformed = errors.New("monitoring: malformed request")
	errNoRoute   = errors.New("monitoring: not found")
	errDisabled  = errors.New("monitoring: feature disabled")
	errMethod    = errors.New("monitoring: method not allowed")
)

type createReq struct {
	ID   *int `json:"id"`
	Size *int `json:"size"`
}

type bulkReq struct {
	Data *datablock.ByteList `json:"data"`
}

type fieldReq struct {
	Index *int   `json:"index"`
	Type  string `json:"type"`
	Value any    `json:"value"`
	Bit   int    `json:"bit"`
}

type fieldRsp struct {
	Type  codec.FieldType `json:"type"`
	Value codec.Value     `json:"value"`
}

type errorRsp struct {
	Error string `json:"error"`
}

func recordOf(b *datablock.Datablock) datablock.Record {
	return datablock.Record{
		ID:   b.ID(),
		Size: b.Size(),
		Data: b.Bytes(),
	}
}

func (m *Monitor) listDatablocks(w http.ResponseWriter, _ *http.Request) {
	blocks, err := m.store.List()
	if err != nil {
		writeError(w, err)
		return
	}

	records := make([]datablock.Record, 0, len(blocks))
	for _, b := range blocks {
		records = append(records, recordOf(b))
	}

	writeJSON(w, http.StatusOK, records)
}

func (m *Monitor) getDatablock(w http.ResponseWriter, r *http.Request) {
	id, err := idOf(r)
	if err != nil {
		writeError(w, err)
		return
	}

	m.respondWithDatablock(w, http.StatusOK, id)
}

func (m *Monitor) createDatablock(w http.ResponseWriter, r *http.Request) {
	var req createReq
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	if req.ID == nil || req.Size == nil {
		writeError(w, fmt.Errorf("%w: id and size are required", errMalformed))
		return
	}

	b, err := m.store.Create(*req.ID, *req.Size)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, recordOf(b))
}

func (m *Monitor) writeBulk(w http.ResponseWriter, r *http.Request) {
	id, err := idOf(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req bulkReq
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	if req.Data == nil {
		writeError(w, fmt.Errorf("%w: data is required", errMalformed))
		return
	}

	if err := m.store.WriteBulk(id, *req.Data); err != nil {
		writeError(w, err)
		return
	}

	m.respondWithDatablock(w, http.StatusOK, id)
}

func (m *Monitor) writeField(w http.ResponseWriter, r *http.Request) {
	id, err := idOf(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req fieldReq
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	if req.Index == nil {
		writeError(w, fmt.Errorf("%w: index is required", errMalformed))
		return
	}

	t, err := codec.ParseFieldType(req.Type)
	if err != nil {
		writeError(w, err)
		return
	}

	v, err := codec.ParseValue(t, req.Value)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := m.store.WriteField(id, *req.Index, v, req.Bit); err != nil {
		writeError(w, err)
		return
	}

	m.respondWithDatablock(w, http.StatusOK, id)
}

func (m *Monitor) readField(w http.ResponseWriter, r *http.Request) {
	id, err := idOf(r)
	if err != nil {
		writeError(w, err)
		return
	}

	query := r.URL.Query()

	if query.Get("index") == "" {
		writeError(w, fmt.Errorf("%w: index is required", errMalformed))
		return
	}

	index, err := intParam(query.Get("index"), "index", 0)
	if err != nil {
		writeError(w, err)
		return
	}

	bit, err := intParam(query.Get("bit"), "bit", 0)
	if err != nil {
		writeError(w, err)
		return
	}

	t, err := codec.ParseFieldType(query.Get("type"))
	if err != nil {
		writeError(w, err)
		return
	}

	v, err := m.store.ReadField(id, index, t, bit)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, fieldRsp{Type: t, Value: v})
}

func (m *Monitor) removeDatablock(w http.ResponseWriter, r *http.Request) {
	id, err := idOf(r)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := m.store.Remove(id); err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (m *Monitor) saveSnapshot(w http.ResponseWriter, _ *http.Request) {
	if m.saver == nil {
		writeError(w, fmt.Errorf("%w: snapshot persistence", errDisabled))
		return
	}

	if err := m.saver(); err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (m *Monitor) listJournal(w http.ResponseWriter, r *http.Request) {
	if m.journal == nil {
		writeError(w, fmt.Errorf("%w: journal", errDisabled))
		return
	}

	query := r.URL.Query()

	id, err := intParam(query.Get("datablock"), "datablock", 0)
	if err != nil {
		writeError(w, err)
		return
	}

	limit, err := intParam(query.Get("limit"), "limit", 100)
	if err != nil {
		writeError(w, err)
		return
	}

	entries, err := m.journal.Entries(r.Context(), id, limit)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, entries)
}

func (m *Monitor) respondWithDatablock(w http.ResponseWriter, status, id int) {
	b, err := m.store.Get(id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, status, recordOf(b))
}

func idOf(r *http.Request) (int, error) {
	raw := mux.Vars(r)["id"]

	id, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: datablock id %q", errMalformed, raw)
	}

	return id, nil
}

func intParam(raw, name string, fallback int) (int, error) {
	if raw == "" {
		return fallback, nil
	}

	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s %q", errMalformed, name, raw)
	}

	return v, nil
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.UseNumber()
	dec.DisallowUnknownFields()

	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", errMalformed, err)
	}

	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: trailing data after body", errMalformed)
	}

	return nil
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, datablock.ErrNotFound), errors.Is(err, errNoRoute):
		return http.StatusNotFound
	case errors.Is(err, errMethod):
		return http.StatusMethodNotAllowed
	case errors.Is(err, datablock.ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, errMalformed), datablock.IsBadRequest(err):
		return http.StatusBadRequest
	case errors.Is(err, errDisabled), datablock.IsUnavailable(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeError(w, fmt.Errorf("%w: %s %s", errMethod, r.Method, r.URL.Path))
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusOf(err), errorRsp{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		status = http.StatusInternalServerError
		data, _ = json.Marshal(errorRsp{Error: err.Error()})
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}
