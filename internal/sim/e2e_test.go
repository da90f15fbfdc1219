package sim_test

import (
	"context"
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/cablesim/internal/config"
	"github.com/san-kum/cablesim/internal/metrics"
	"github.com/san-kum/cablesim/internal/sim"
)

func peakOf(ys []float64) (float64, int) {
	best, at := math.Inf(-1), -1
	for i, y := range ys {
		if y > best {
			best, at = y, i
		}
	}
	return best, at
}

var _ = Describe("Ball and stick", func() {
	var cfg *config.Config

	BeforeEach(func() {
		cfg = config.BallAndStick()
	})

	It("stays subthreshold for the default dendritic pulse", func() {
		s, err := cfg.Build()
		Expect(err).NotTo(HaveOccurred())
		Expect(s.AddMetric("soma_v", metrics.NewSpikeCount(0))).To(Succeed())

		res, err := s.Run(context.Background(), cfg.SimConfig())
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Metrics["soma_v.spikes"]).To(BeEquivalentTo(0))

		soma := res.Trace("soma_v")
		Expect(soma.Len()).To(Equal(1001))
		somaPeak, _ := peakOf(soma.Y)
		Expect(somaPeak).To(BeNumerically("~", -60.5, 1))

		dendPeak, _ := peakOf(res.Trace("dend_v").Y)
		Expect(dendPeak).To(BeNumerically(">", somaPeak))
	})

	DescribeTable("fires one somatic spike for a stronger dendritic pulse",
		func(amp float64) {
			cfg.Stimuli[0].Amp = amp
			s, err := cfg.Build()
			Expect(err).NotTo(HaveOccurred())
			Expect(s.AddMetric("soma_v", metrics.NewSpikeCount(0))).To(Succeed())

			res, err := s.Run(context.Background(), cfg.SimConfig())
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Metrics["soma_v.spikes"]).To(BeEquivalentTo(1))

			soma := res.Trace("soma_v")
			somaPeak, at := peakOf(soma.Y)
			Expect(somaPeak).To(BeNumerically(">", 20))
			Expect(soma.T[at]).To(BeNumerically(">=", 6))
			Expect(soma.T[at]).To(BeNumerically("<=", 10))

			dendPeak, _ := peakOf(res.Trace("dend_v").Y)
			Expect(dendPeak).To(BeNumerically("<", somaPeak))
		},
		Entry("0.225 nA", 0.225),
		Entry("0.3 nA", 0.3),
	)

	It("stays near rest without a stimulus", func() {
		cfg.Stimuli = nil
		s, err := cfg.Build()
		Expect(err).NotTo(HaveOccurred())
		Expect(s.AddMetric("soma_v", metrics.NewDrift())).To(Succeed())

		res, err := s.Run(context.Background(), cfg.SimConfig())
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Metrics["soma_v.drift"]).To(BeNumerically("<", 1))
	})

	It("rejects stepping once finished", func() {
		s, err := cfg.Build()
		Expect(err).NotTo(HaveOccurred())
		_, err = s.Run(context.Background(), cfg.SimConfig())
		Expect(err).NotTo(HaveOccurred())
		Expect(s.Phase()).To(Equal(sim.Finished))
		Expect(s.Step(cfg.Run.Dt)).To(MatchError(sim.ErrInvalidState))
	})

	Describe("refining the dendrite", func() {
		It("converges in the somatic peak", func() {
			cfg.Stimuli[0].Amp = 0.3
			s, err := cfg.Build()
			Expect(err).NotTo(HaveOccurred())

			var peaks []float64
			for _, nseg := range []int{1, 25, 101, 201} {
				Expect(s.SetNseg("dend", nseg)).To(Succeed())
				res, err := s.Run(context.Background(), cfg.SimConfig())
				Expect(err).NotTo(HaveOccurred())
				p, _ := peakOf(res.Trace("soma_v").Y)
				peaks = append(peaks, p)
			}

			d1 := math.Abs(peaks[1] - peaks[0])
			d2 := math.Abs(peaks[2] - peaks[1])
			d3 := math.Abs(peaks[3] - peaks[2])
			Expect(d2).To(BeNumerically("<", d1))
			Expect(d3).To(BeNumerically("<", d2))
			Expect(d3).To(BeNumerically("<", 0.5))
		})

		It("keeps the soma segment when only the dendrite changes", func() {
			s, err := cfg.Build()
			Expect(err).NotTo(HaveOccurred())
			before := s.Cable().Segments[0]

			Expect(s.SetNseg("dend", 51)).To(Succeed())
			Expect(s.Cable().Len()).To(Equal(52))
			Expect(s.Cable().Segments[0].Area).To(Equal(before.Area))
			Expect(s.Phase()).To(Equal(sim.Uninitialized))
		})
	})
})
