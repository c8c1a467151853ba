package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/rs/zerolog"
	"github.com/sarchlab/dbsim/area"
	"github.com/sarchlab/dbsim/datablock"
	"github.com/sarchlab/dbsim/journal"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type fakeJournal struct {
	gotID, gotLimit int
	entries         []journal.Entry
}

func (j *fakeJournal) Entries(
	_ context.Context,
	datablockID, limit int,
) ([]journal.Entry, error) {
	j.gotID = datablockID
	j.gotLimit = limit

	return j.entries, nil
}

var _ = Describe("Monitor", func() {
	var (
		engine  *area.Engine
		store   *datablock.Store
		m       *Monitor
		handler http.Handler
		logs    *bytes.Buffer
	)

	do := func(method, path, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		return rec
	}

	record := func(rec *httptest.ResponseRecorder) datablock.Record {
		var r datablock.Record
		Expect(json.Unmarshal(rec.Body.Bytes(), &r)).To(Succeed())

		return r
	}

	errorOf := func(rec *httptest.ResponseRecorder) string {
		var rsp errorRsp
		Expect(json.Unmarshal(rec.Body.Bytes(), &rsp)).To(Succeed())

		return rsp.Error
	}

	BeforeEach(func() {
		engine = area.NewEngine(zerolog.Nop())
		Expect(engine.Start()).To(Succeed())

		store = datablock.MakeBuilder().WithRegistrar(engine).Build()

		logs = &bytes.Buffer{}
		m = NewMonitor(store).WithLogger(zerolog.New(logs))
		m.RegisterEngine(engine)
		handler = m.Handler()
	})

	Context("datablocks", func() {
		It("should create a datablock", func() {
			rec := do(http.MethodPost, "/api/datablocks", `{"id": 5, "size": 4}`)

			Expect(rec.Code).To(Equal(http.StatusCreated))
			Expect(rec.Header().Get("Content-Type")).To(Equal("application/json"))
			Expect(record(rec)).To(Equal(datablock.Record{
				ID: 5, Size: 4, Data: datablock.ByteList{0, 0, 0, 0},
			}))
			Expect(engine.Areas()).To(HaveLen(1))
		})

		It("should reject a duplicate datablock", func() {
			do(http.MethodPost, "/api/datablocks", `{"id": 5, "size": 4}`)

			rec := do(http.MethodPost, "/api/datablocks", `{"id": 5, "size": 8}`)

			Expect(rec.Code).To(Equal(http.StatusConflict))
			Expect(errorOf(rec)).To(ContainSubstring("already exists"))
		})

		It("should reject invalid ids and sizes", func() {
			Expect(do(http.MethodPost, "/api/datablocks", `{"id": 0, "size": 4}`).Code).
				To(Equal(http.StatusBadRequest))
			Expect(do(http.MethodPost, "/api/datablocks", `{"id": 1, "size": 0}`).Code).
				To(Equal(http.StatusBadRequest))
			Expect(do(http.MethodPost, "/api/datablocks", `{"id": 1}`).Code).
				To(Equal(http.StatusBadRequest))
			Expect(do(http.MethodPost, "/api/datablocks", `{"id": 1, "size": 2, "x": 1}`).Code).
				To(Equal(http.StatusBadRequest))
			Expect(do(http.MethodPost, "/api/datablocks", `not json`).Code).
				To(Equal(http.StatusBadRequest))
		})

		It("should reject datablocks larger than a controller can hold", func() {
			for _, body := range []string{
				`{"id": 1, "size": 65536}`,
				`{"id": 1, "size": 4611686018427387904}`,
			} {
				rec := do(http.MethodPost, "/api/datablocks", body)

				Expect(rec.Code).To(Equal(http.StatusBadRequest), body)
				Expect(errorOf(rec)).To(ContainSubstring("size"), body)
			}

			Expect(engine.Areas()).To(BeEmpty())
			Expect(do(http.MethodPost, "/api/datablocks", `{"id": 1, "size": 65535}`).Code).
				To(Equal(http.StatusCreated))
		})

		It("should list datablocks by id", func() {
			do(http.MethodPost, "/api/datablocks", `{"id": 9, "size": 1}`)
			do(http.MethodPost, "/api/datablocks", `{"id": 2, "size": 2}`)

			rec := do(http.MethodGet, "/api/datablocks", "")

			var records []datablock.Record
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(json.Unmarshal(rec.Body.Bytes(), &records)).To(Succeed())
			Expect(records).To(HaveLen(2))
			Expect(records[0].ID).To(Equal(2))
			Expect(records[1].ID).To(Equal(9))
		})

		It("should list an empty store as an empty array", func() {
			rec := do(http.MethodGet, "/api/datablocks", "")

			Expect(rec.Body.String()).To(Equal("[]"))
		})

		It("should report unknown datablocks", func() {
			Expect(do(http.MethodGet, "/api/datablocks/3", "").Code).
				To(Equal(http.StatusNotFound))
			Expect(do(http.MethodGet, "/api/datablocks/abc", "").Code).
				To(Equal(http.StatusBadRequest))
		})

		It("should write bulk data", func() {
			do(http.MethodPost, "/api/datablocks", `{"id": 1, "size": 4}`)

			rec := do(http.MethodPut, "/api/datablocks/1", `{"data": [1, 2, 3]}`)

			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(record(rec).Data).To(Equal(datablock.ByteList{1, 2, 3, 0}))
		})

		It("should reject bulk data longer than the datablock", func() {
			do(http.MethodPost, "/api/datablocks", `{"id": 1, "size": 2}`)

			rec := do(http.MethodPut, "/api/datablocks/1", `{"data": [1, 2, 3]}`)

			Expect(rec.Code).To(Equal(http.StatusBadRequest))
			Expect(do(http.MethodPut, "/api/datablocks/1", `{"data": [256]}`).Code).
				To(Equal(http.StatusBadRequest))
			Expect(do(http.MethodPut, "/api/datablocks/1", `{}`).Code).
				To(Equal(http.StatusBadRequest))
		})

		It("should remove a datablock", func() {
			do(http.MethodPost, "/api/datablocks", `{"id": 1, "size": 2}`)

			rec := do(http.MethodDelete, "/api/datablocks/1", "")

			Expect(rec.Code).To(Equal(http.StatusNoContent))
			Expect(do(http.MethodGet, "/api/datablocks/1", "").Code).
				To(Equal(http.StatusNotFound))
			Expect(do(http.MethodDelete, "/api/datablocks/1", "").Code).
				To(Equal(http.StatusNotFound))
			Expect(engine.Areas()).To(BeEmpty())
		})

		It("should refuse requests while the engine is stopped", func() {
			Expect(engine.Stop()).To(Succeed())

			rec := do(http.MethodGet, "/api/datablocks", "")

			Expect(rec.Code).To(Equal(http.StatusServiceUnavailable))
		})
	})

	Context("fields", func() {
		BeforeEach(func() {
			do(http.MethodPost, "/api/datablocks", `{"id": 1, "size": 8}`)
		})

		It("should write a typed field big-endian", func() {
			rec := do(http.MethodPut, "/api/datablocks/1/fields",
				`{"index": 2, "type": "DInt", "value": -2}`)

			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(record(rec).Data).To(Equal(
				datablock.ByteList{0, 0, 255, 255, 255, 254, 0, 0}))
		})

		It("should read a typed field back", func() {
			do(http.MethodPut, "/api/datablocks/1/fields",
				`{"index": 0, "type": "real", "value": 1.5}`)

			rec := do(http.MethodGet, "/api/datablocks/1/fields?index=0&type=real", "")

			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Body.String()).To(MatchJSON(`{"type": "real", "value": 1.5}`))
		})

		It("should set and read a single bit", func() {
			do(http.MethodPut, "/api/datablocks/1/fields",
				`{"index": 3, "type": "bool", "value": true, "bit": 6}`)

			rec := do(http.MethodGet, "/api/datablocks/1/fields?index=3&type=bool&bit=6", "")

			Expect(rec.Body.String()).To(MatchJSON(`{"type": "bool", "value": true}`))
			Expect(store.Get(1)).To(WithTransform(
				func(b *datablock.Datablock) byte { return b.Bytes()[3] },
				Equal(byte(0x40))))
		})

		It("should map field errors to bad requests", func() {
			cases := []string{
				`{"index": 0, "type": "lreal", "value": 1}`,
				`{"index": 0, "type": "int", "value": 40000}`,
				`{"index": 7, "type": "int", "value": 1}`,
				`{"index": 8, "type": "byte", "value": 1}`,
				`{"index": 0, "type": "bool", "value": true, "bit": 8}`,
				`{"type": "int", "value": 1}`,
			}

			for _, body := range cases {
				rec := do(http.MethodPut, "/api/datablocks/1/fields", body)
				Expect(rec.Code).To(Equal(http.StatusBadRequest), body)
			}
		})

		It("should serve non-finite reals as strings", func() {
			rec := do(http.MethodPut, "/api/datablocks/1/fields",
				`{"index": 0, "type": "real", "value": "NaN"}`)
			Expect(rec.Code).To(Equal(http.StatusOK))

			rec = do(http.MethodGet, "/api/datablocks/1/fields?index=0&type=real", "")
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Body.String()).To(MatchJSON(`{"type": "real", "value": "NaN"}`))

			Expect(do(http.MethodPut, "/api/datablocks/1", `{"data": [127, 128, 0, 0]}`).Code).
				To(Equal(http.StatusOK))

			rec = do(http.MethodGet, "/api/datablocks/1/fields?index=0&type=real", "")
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Body.String()).To(MatchJSON(`{"type": "real", "value": "+Inf"}`))

			rec = do(http.MethodPut, "/api/datablocks/1/fields",
				`{"index": 4, "type": "real", "value": "-Inf"}`)
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(record(rec).Data[4:]).To(Equal(datablock.ByteList{0xff, 0x80, 0, 0}))
		})

		It("should require an index when reading", func() {
			rec := do(http.MethodGet, "/api/datablocks/1/fields?type=int", "")

			Expect(rec.Code).To(Equal(http.StatusBadRequest))
		})

		It("should report writes to unknown datablocks", func() {
			rec := do(http.MethodPut, "/api/datablocks/2/fields",
				`{"index": 0, "type": "byte", "value": 1}`)

			Expect(rec.Code).To(Equal(http.StatusNotFound))
		})
	})

	Context("snapshot", func() {
		It("should be unavailable without a saver", func() {
			rec := do(http.MethodPost, "/api/snapshot", "")

			Expect(rec.Code).To(Equal(http.StatusServiceUnavailable))
		})

		It("should call the saver", func() {
			saved := 0
			m.RegisterSaver(func() error {
				saved++
				return nil
			})

			rec := do(http.MethodPost, "/api/snapshot", "")

			Expect(rec.Code).To(Equal(http.StatusNoContent))
			Expect(saved).To(Equal(1))
		})

		It("should report a failed save", func() {
			m.RegisterSaver(func() error { return errors.New("disk full") })

			rec := do(http.MethodPost, "/api/snapshot", "")

			Expect(rec.Code).To(Equal(http.StatusInternalServerError))
			Expect(errorOf(rec)).To(Equal("disk full"))
		})
	})

	Context("journal", func() {
		It("should list journal entries", func() {
			j := &fakeJournal{entries: []journal.Entry{
				{EntryID: "a", Kind: "create", Datablock: 3},
			}}
			m.RegisterJournal(j)

			rec := do(http.MethodGet, "/api/journal?datablock=3&limit=5", "")

			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(j.gotID).To(Equal(3))
			Expect(j.gotLimit).To(Equal(5))
			Expect(rec.Body.String()).To(ContainSubstring(`"entry_id":"a"`))
		})

		It("should be unavailable without a journal", func() {
			Expect(do(http.MethodGet, "/api/journal", "").Code).
				To(Equal(http.StatusServiceUnavailable))
		})
	})

	Context("system", func() {
		It("should serialize the engine status", func() {
			do(http.MethodPost, "/api/datablocks", `{"id": 1, "size": 2}`)

			rec := do(http.MethodGet, "/api/engine", "")

			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Body.Len()).To(BeNumerically(">", 0))
		})

		It("should report process resources", func() {
			rec := do(http.MethodGet, "/api/resource", "")

			var rsp resourceRsp
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(json.Unmarshal(rec.Body.Bytes(), &rsp)).To(Succeed())
			Expect(rsp.MemorySize).To(BeNumerically(">", 0))
		})

		It("should reject a bad profile duration", func() {
			rec := do(http.MethodGet, "/api/profile?duration=1h", "")

			Expect(rec.Code).To(Equal(http.StatusBadRequest))
		})

		It("should answer unknown endpoints with a JSON 404", func() {
			rec := do(http.MethodGet, "/api/nothing", "")

			Expect(rec.Code).To(Equal(http.StatusNotFound))
			Expect(errorOf(rec)).To(ContainSubstring("not found"))
		})

		It("should answer unsupported methods with a JSON 405", func() {
			do(http.MethodPost, "/api/datablocks", `{"id": 1, "size": 2}`)

			for _, path := range []string{"/api/datablocks/1", "/api/engine"} {
				rec := do(http.MethodPatch, path, "")

				Expect(rec.Code).To(Equal(http.StatusMethodNotAllowed), path)
				Expect(rec.Header().Get("Content-Type")).To(Equal("application/json"))
				Expect(errorOf(rec)).To(ContainSubstring("method not allowed"))
			}
		})
	})

	It("should log requests", func() {
		do(http.MethodGet, "/api/datablocks/42", "")

		var line map[string]any
		Expect(json.Unmarshal(logs.Bytes(), &line)).To(Succeed())
		Expect(line["level"]).To(Equal("warn"))
		Expect(line["path"]).To(Equal("/api/datablocks/{id}"))
		Expect(line["status"]).To(BeNumerically("==", 404))
		Expect(line["component"]).To(Equal("monitoring"))
	})

	It("should serve over TCP until shut down", func() {
		addr, err := m.StartServer()
		Expect(err).NotTo(HaveOccurred())

		rsp, err := http.Get("http://" + addr + "/api/datablocks")
		Expect(err).NotTo(HaveOccurred())
		rsp.Body.Close()
		Expect(rsp.StatusCode).To(Equal(http.StatusOK))

		_, err = m.StartServer()
		Expect(err).To(HaveOccurred())

		Expect(m.Shutdown(context.Background())).To(Succeed())
		_, err = http.Get("http://" + addr + "/api/datablocks")
		Expect(err).To(HaveOccurred())
	})
})
