package node

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/sarchlab/dbsim/codec"
	"github.com/sarchlab/dbsim/datablock"
	"go.uber.org/mock/gomock"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Node", func() {
	var (
		mockCtrl *gomock.Controller
		gateway  *MockGateway
		saved    datablock.Snapshot
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		gateway = NewMockGateway(mockCtrl)
		saved = datablock.Snapshot{
			1: {ID: 1, Size: 4, Data: datablock.ByteList{1, 2, 3, 4}},
			7: {ID: 7, Size: 2, Data: datablock.ByteList{0, 9}},
		}
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should restore the saved snapshot on start", func() {
		gateway.EXPECT().Load().Return(saved)
		gateway.EXPECT().Save(gomock.Any()).Return(nil)

		n, err := MakeBuilder().WithoutMonitoring().WithGateway(gateway).Build()
		Expect(err).NotTo(HaveOccurred())

		Expect(n.Start()).To(Succeed())
		defer n.Stop()

		Expect(n.Store().Snapshot()).To(Equal(saved))
		Expect(n.Engine().Areas()).To(HaveLen(2))
	})

	It("should save the final snapshot and tear down on stop", func() {
		gateway.EXPECT().Load().Return(datablock.Snapshot{})
		gateway.EXPECT().Save(gomock.Any()).
			DoAndReturn(func(snap datablock.Snapshot) error {
				Expect(snap).To(HaveKey(3))
				Expect(snap[3].Data).To(Equal(datablock.ByteList{0, 0x2A}))
				return nil
			}).
			Times(1)

		n, err := MakeBuilder().WithoutMonitoring().WithGateway(gateway).Build()
		Expect(err).NotTo(HaveOccurred())
		Expect(n.Start()).To(Succeed())

		_, err = n.Store().Create(3, 2)
		Expect(err).NotTo(HaveOccurred())
		Expect(n.Store().WriteField(3, 0, codec.IntValue(42), 0)).To(Succeed())

		Expect(n.Stop()).To(Succeed())
		Expect(n.Stop()).To(Succeed())

		Expect(n.Engine().Running()).To(BeFalse())
		Expect(n.Engine().Areas()).To(BeEmpty())
		Expect(n.Store().Len()).To(Equal(0))

		_, err = n.Store().Create(4, 2)
		Expect(err).To(MatchError(datablock.ErrClosed))
	})

	It("should finish the teardown when the final save fails", func() {
		gateway.EXPECT().Load().Return(saved)
		gateway.EXPECT().Save(gomock.Any()).Return(errors.New("disk full"))

		n, err := MakeBuilder().WithoutMonitoring().WithGateway(gateway).Build()
		Expect(err).NotTo(HaveOccurred())
		Expect(n.Start()).To(Succeed())

		err = n.Stop()

		Expect(err).To(MatchError(ContainSubstring("disk full")))
		Expect(n.Engine().Running()).To(BeFalse())
		Expect(n.Engine().Areas()).To(BeEmpty())
	})

	It("should refuse to save without a gateway", func() {
		n, err := MakeBuilder().WithoutMonitoring().Build()
		Expect(err).NotTo(HaveOccurred())

		Expect(n.Save()).To(MatchError(ErrNoGateway))
	})

	It("should refuse to start twice", func() {
		n, err := MakeBuilder().WithoutMonitoring().Build()
		Expect(err).NotTo(HaveOccurred())

		Expect(n.Start()).To(Succeed())
		defer n.Stop()

		Expect(n.Start()).NotTo(Succeed())
	})

	It("should save periodically", func() {
		var saves atomic.Int32

		gateway.EXPECT().Load().Return(datablock.Snapshot{})
		gateway.EXPECT().Save(gomock.Any()).
			DoAndReturn(func(datablock.Snapshot) error {
				saves.Add(1)
				return nil
			}).
			MinTimes(3)

		n, err := MakeBuilder().
			WithoutMonitoring().
			WithGateway(gateway).
			WithAutosaveInterval(5 * time.Millisecond).
			Build()
		Expect(err).NotTo(HaveOccurred())
		Expect(n.Start()).To(Succeed())

		Eventually(saves.Load).Should(BeNumerically(">=", 2))

		Expect(n.Stop()).To(Succeed())
	})

	It("should serve the HTTP API while running", func() {
		n, err := MakeBuilder().Build()
		Expect(err).NotTo(HaveOccurred())
		Expect(n.Start()).To(Succeed())

		addr := n.Address()
		Expect(addr).NotTo(BeEmpty())

		rsp, err := http.Get("http://" + addr + "/api/datablocks")
		Expect(err).NotTo(HaveOccurred())
		rsp.Body.Close()
		Expect(rsp.StatusCode).To(Equal(http.StatusOK))

		Expect(n.Stop()).To(Succeed())
		Expect(n.Address()).To(BeEmpty())
	})

	It("should journal mutations made after the restore", func() {
		gateway.EXPECT().Load().Return(saved)
		gateway.EXPECT().Save(gomock.Any()).Return(nil)

		n, err := MakeBuilder().
			WithoutMonitoring().
			WithGateway(gateway).
			WithJournal(filepath.Join(GinkgoT().TempDir(), "journal.sqlite3")).
			Build()
		Expect(err).NotTo(HaveOccurred())
		Expect(n.Start()).To(Succeed())
		defer n.Stop()

		Expect(n.Store().WriteBulk(7, []byte{5})).To(Succeed())
		_, err = n.Engine().Read(1, 0, 2)
		Expect(err).NotTo(HaveOccurred())
		Expect(n.journal.Flush()).To(Succeed())

		entries, err := n.journal.Entries(context.Background(), 0, 0)
		Expect(err).NotTo(HaveOccurred())

		kinds := []string{}
		for _, e := range entries {
			kinds = append(kinds, e.Kind)
		}
		Expect(kinds).To(ConsistOf("write_bulk", "remote_read"))
	})

	It("should not build autosave without a gateway", func() {
		Expect(func() {
			_, _ = MakeBuilder().WithAutosaveInterval(time.Second).Build()
		}).To(Panic())
	})
})
