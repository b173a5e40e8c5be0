package master_test

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/cosim/internal/master"
)

var _ = Describe("Validate", func() {
	var (
		journal []string
		members []master.Member
	)

	BeforeEach(func() {
		journal = nil
		rover := newFake("rover", &journal, in("pwm", 0), out("psi_meas", 0), par("mass", 1))
		ctrl := newFake("ctrl", &journal, in("psi_gyro", 0), out("pwm", 0))
		members = []master.Member{rover.member(), ctrl.member()}
	})

	edge := func(from, to string) master.Edge {
		e, err := master.ParseEdge(from, to)
		Expect(err).NotTo(HaveOccurred())
		return e
	}

	expectConfigError := func(edges ...master.Edge) {
		_, err := master.Validate(members, edges)
		Expect(errors.Is(err, master.ErrConfiguration)).To(BeTrue(), "got %v", err)
		var ce *master.ConfigurationError
		Expect(errors.As(err, &ce)).To(BeTrue())
	}

	It("accepts a feedback loop", func() {
		g, err := master.Validate(members, []master.Edge{
			edge("rover.psi_meas", "ctrl.psi_gyro"),
			edge("ctrl.pwm", "rover.pwm"),
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(g.Edges).To(HaveLen(2))
		Expect(g.Fallback).To(Equal([]bool{false, false}))
	})

	It("rejects unknown components", func() {
		expectConfigError(edge("web.turn", "ctrl.psi_gyro"))
		expectConfigError(edge("rover.psi_meas", "web.turn"))
	})

	It("rejects a destination that is not an input", func() {
		expectConfigError(edge("ctrl.pwm", "rover.psi_meas"))
		expectConfigError(edge("ctrl.pwm", "rover.mass"))
	})

	It("rejects a destination variable that does not exist", func() {
		expectConfigError(edge("ctrl.pwm", "rover.steering"))
	})

	It("rejects a source that is an input or parameter", func() {
		expectConfigError(edge("rover.pwm", "ctrl.psi_gyro"))
		expectConfigError(edge("rover.mass", "ctrl.psi_gyro"))
	})

	It("rejects two edges into the same input", func() {
		expectConfigError(
			edge("rover.psi_meas", "ctrl.psi_gyro"),
			edge("rover.psi_meas", "ctrl.psi_gyro"),
		)
	})

	It("keeps a missing source as a fallback relay", func() {
		g, err := master.Validate(members, []master.Edge{edge("rover.psi_true", "ctrl.psi_gyro")})
		Expect(err).NotTo(HaveOccurred())
		Expect(g.Fallback).To(Equal([]bool{true}))
	})

	It("rejects duplicate component names", func() {
		members = append(members, members[0])
		_, err := master.Validate(members, nil)
		Expect(err).To(MatchError(master.ErrConfiguration))
	})

	It("rejects bad scheduler options before any component is touched", func() {
		_, err := master.New(members, nil, master.Options{Start: 0, Stop: 1, Step: 0})
		Expect(err).To(MatchError(master.ErrConfiguration))
		_, err = master.New(members, nil, master.Options{Start: 1, Stop: 1, Step: 0.1})
		Expect(err).To(MatchError(master.ErrConfiguration))
		_, err = master.New(members, nil, master.Options{Start: 0, Stop: 0.05, Step: 0.1})
		Expect(err).To(MatchError(master.ErrConfiguration))
		_, err = master.New(members, nil, master.Options{
			Start: 0, Stop: 1, Step: 0.1,
			LogVariables: []master.Port{{Component: "rover", Variable: "nope"}},
		})
		Expect(err).To(MatchError(master.ErrConfiguration))
		Expect(journal).To(BeEmpty())
	})
})

var _ = Describe("ParsePort", func() {
	It("splits on the first dot", func() {
		p, err := master.ParsePort("rover.rover_8d.emi.x_wire[1]")
		Expect(err).NotTo(HaveOccurred())
		Expect(p.Component).To(Equal("rover"))
		Expect(p.Variable).To(Equal("rover_8d.emi.x_wire[1]"))
		Expect(p.String()).To(Equal("rover.rover_8d.emi.x_wire[1]"))
	})

	DescribeTable("rejects malformed ports",
		func(s string) {
			_, err := master.ParsePort(s)
			Expect(err).To(MatchError(master.ErrConfiguration))
		},
		Entry("empty", ""),
		Entry("no dot", "rover"),
		Entry("no component", ".psi"),
		Entry("no variable", "rover."),
	)
})
