package outputunit_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/vcrouter/config"
	"github.com/sarchlab/vcrouter/outputunit"
)

var _ = Describe("OutputUnit", func() {
	var (
		cfg config.Config
		ou  *outputunit.OutputUnit
	)

	BeforeEach(func() {
		cfg = config.MakeBuilder().
			WithVnets(2, 4).
			WithBufferDepth(3).
			WithEscapeVC(true).
			Build()
		ou = outputunit.New(cfg)
	})

	It("starts every VC idle with full credit", func() {
		for v := 0; v < ou.NumVCs(); v++ {
			Expect(ou.IsVCIdle(v, 0)).To(BeTrue())
			Expect(ou.GetCreditCount(v)).To(Equal(3))
		}
	})

	It("reports free non-escape VCs but excludes the escape VC", func() {
		Expect(ou.HasFreeVC(0)).To(BeTrue())

		vnet := 0
		for i := 0; i < cfg.VCsPerVnet; i++ {
			gv := cfg.GlobalVC(vnet, i)
			if gv != cfg.EscapeVCOf(vnet) {
				ou.SelectFreeVC(vnet, 0)
			}
		}
		Expect(ou.HasFreeVC(vnet)).To(BeFalse())
		Expect(ou.HasFreeEscapeVC(vnet)).To(BeTrue())
	})

	It("never chains onto an already-active escape VC", func() {
		v1 := ou.SetEscapeVC(0)
		Expect(v1).To(Equal(cfg.EscapeVCOf(0)))

		v2 := ou.SetEscapeVC(0)
		Expect(v2).To(Equal(-1))
	})

	It("conserves credit across decrement/increment cycles", func() {
		gv := cfg.GlobalVC(0, 1)
		Expect(ou.HasCredit(gv)).To(BeTrue())

		ou.DecrementCredit(gv)
		ou.DecrementCredit(gv)
		ou.DecrementCredit(gv)
		Expect(ou.HasCredit(gv)).To(BeFalse())

		Expect(func() { ou.DecrementCredit(gv) }).To(Panic())

		ou.IncrementCredit(gv, false, 5)
		Expect(ou.GetCreditCount(gv)).To(Equal(1))

		Expect(func() {
			ou.IncrementCredit(gv, false, 6)
			ou.IncrementCredit(gv, false, 6)
			ou.IncrementCredit(gv, false, 6)
		}).To(Panic())
	})

	It("sums free credits per vnet, excluding the escape VC on request", func() {
		total := ou.FreeCreditsForVnet(0, true)
		Expect(total).To(Equal(3 * (cfg.VCsPerVnet - 1)))

		withEscape := ou.FreeCreditsForVnet(0, false)
		Expect(withEscape).To(Equal(3 * cfg.VCsPerVnet))
	})

	It("returns a VC to IDLE only when the credit carries is_free", func() {
		gv := ou.SelectFreeVC(0, 0)
		Expect(ou.IsVCIdle(gv, 0)).To(BeFalse())

		ou.DecrementCredit(gv)
		ou.DecrementCredit(gv)
		ou.IncrementCredit(gv, false, 1)
		Expect(ou.IsVCIdle(gv, 1)).To(BeFalse())

		ou.IncrementCredit(gv, true, 2)
		Expect(ou.IsVCIdle(gv, 2)).To(BeTrue())
	})
})
