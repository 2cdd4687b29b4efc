package tasks

import (
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("Follow-up scheduling", func() {
	now := time.Date(2020, 10, 30, 12, 0, 0, 0, time.UTC)

	Describe("priority", func() {
		It("is zero for today's measurements", func() {
			Expect(followupPriority(now, now)).To(Equal(0))
		})
		It("grows with the measurement's age in days", func() {
			Expect(followupPriority(now, now.AddDate(0, 0, -3))).To(Equal(3))
		})
		It("is clamped to ten for old measurements", func() {
			Expect(followupPriority(now, now.AddDate(-1, 0, 0))).To(Equal(10))
		})
		It("treats future dates by their distance too", func() {
			Expect(followupPriority(now, now.AddDate(0, 0, 2))).To(Equal(2))
		})
	})

	Describe("delay", func() {
		It("is zero for a single-source derived product", func() {
			Expect(followupDelay(false, false)).To(BeZero())
		})
		It("waits fifteen minutes when multiple sources feed the product", func() {
			Expect(followupDelay(true, false)).To(Equal(15 * time.Minute))
		})
		It("waits an hour when the parent is already frozen", func() {
			Expect(followupDelay(false, true)).To(Equal(time.Hour))
		})
		It("prefers the frozen-parent delay over the multi-source one", func() {
			Expect(followupDelay(true, true)).To(Equal(time.Hour))
		})
	})
})

var _ = Describe("Model-evaluation inputs", func() {
	It("evaluates l3-cf against categorize", func() {
		Expect(level2ProductFor("l3-cf")).To(Equal("categorize"))
	})
	It("evaluates other variants against the same-named Level-2 product", func() {
		Expect(level2ProductFor("l3-iwc")).To(Equal("iwc"))
		Expect(level2ProductFor("l3-lwc")).To(Equal("lwc"))
	})
})

var _ = Describe("Instrument raw-file filters", func() {
	It("limits RPG radars to zenith Level-1 sweeps", func() {
		Expect(instrumentRawFilters["rpg-fmcw-94"].IncludePattern).To(Equal(`zen.*\.lv1$`))
	})
	It("drops ceilometer status files", func() {
		Expect(instrumentRawFilters["chm15k"].ExcludePattern).NotTo(BeEmpty())
	})
	It("never selects mira-10", func() {
		Expect(excludedInstrumentTypes).To(HaveKey("mira-10"))
	})
	It("restricts voodoo categorize to the RPG 94 GHz radar", func() {
		Expect(voodooOnlyInstrumentType).To(Equal("rpg-fmcw-94"))
	})
})
