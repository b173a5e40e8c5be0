package master_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/cosim/internal/attack"
	"github.com/san-kum/cosim/internal/fmi"
	"github.com/san-kum/cosim/internal/master"
)

var _ = Describe("Scheduler", func() {
	var (
		journal []string
		a, b    *fakeModel
		opts    master.Options
		edges   []master.Edge
	)

	BeforeEach(func() {
		journal = nil
		a = newFake("A", &journal, out("o", 5), par("p", 0))
		b = newFake("B", &journal, in("i", 0), out("y", 0))
		// A's output jumps every step; B copies its input to y.
		a.onStep = func(m *fakeModel, t, h float64) { m.set("o", m.get("o")+10) }
		b.onStep = func(m *fakeModel, t, h float64) { m.set("y", m.get("i")) }
		opts = master.Options{Start: 0, Stop: 1, Step: 0.1}
		edges = []master.Edge{{From: master.Port{"A", "o"}, To: master.Port{"B", "i"}}}
	})

	build := func() *master.Scheduler {
		s, err := master.New([]master.Member{a.member(), b.member()}, edges, opts)
		Expect(err).NotTo(HaveOccurred())
		return s
	}

	Describe("relay", func() {
		It("stages the source value from before the step", func() {
			_, err := build().Run(context.Background())
			Expect(err).NotTo(HaveOccurred())

			Expect(b.steps).To(HaveLen(10))
			// A.o is 5 before the first step even though A steps first.
			Expect(b.steps[0].Inputs["i"]).To(Equal(5.0))
			Expect(b.steps[1].Inputs["i"]).To(Equal(15.0))
			Expect(b.steps[9].Inputs["i"]).To(Equal(95.0))
		})

		It("holds the destination value when the source variable is missing", func() {
			b = newFake("B", &journal, in("i", 7), out("y", 0))
			edges = []master.Edge{{From: master.Port{"A", "absent"}, To: master.Port{"B", "i"}}}
			s := build()
			Expect(s.Graph().Fallback).To(Equal([]bool{true}))

			_, err := s.Run(context.Background())
			Expect(err).NotTo(HaveOccurred())
			for _, call := range b.steps {
				Expect(call.Inputs["i"]).To(Equal(7.0))
			}
		})

		It("falls back to zero when the destination has no value", func() {
			edges = []master.Edge{{From: master.Port{"A", "absent"}, To: master.Port{"B", "i"}}}
			_, err := build().Run(context.Background())
			Expect(err).NotTo(HaveOccurred())
			Expect(b.steps[0].Inputs["i"]).To(Equal(0.0))
		})

		It("writes constant inputs before every step", func() {
			edges = nil
			opts.Inputs = []master.Assignment{{Port: master.Port{"B", "i"}, Value: 3}}
			_, err := build().Run(context.Background())
			Expect(err).NotTo(HaveOccurred())
			for _, call := range b.steps {
				Expect(call.Inputs["i"]).To(Equal(3.0))
			}
		})
	})

	Describe("run log", func() {
		It("produces one row per step stamped with index times", func() {
			log, err := build().Run(context.Background())
			Expect(err).NotTo(HaveOccurred())
			Expect(log.Rows).To(HaveLen(10))
			for k, r := range log.Rows {
				Expect(r.Step).To(Equal(k))
				Expect(r.Time).To(Equal(float64(k+1) * 0.1))
			}
			Expect(log.Rows[9].Time).To(Equal(1.0))
		})

		It("logs every output by default in member order", func() {
			log, err := build().Run(context.Background())
			Expect(err).NotTo(HaveOccurred())
			Expect(log.Columns).To(Equal([]string{"A.o", "B.y"}))

			y, err := log.Column("B.y")
			Expect(err).NotTo(HaveOccurred())
			Expect(y[0]).To(Equal(5.0))
			Expect(y[1]).To(Equal(15.0))
		})

		It("samples only the requested variables", func() {
			opts.LogVariables = []master.Port{{"B", "i"}}
			log, err := build().Run(context.Background())
			Expect(err).NotTo(HaveOccurred())
			Expect(log.Columns).To(Equal([]string{"B.i"}))
			_, err = log.Column("A.o")
			Expect(err).To(HaveOccurred())
		})

		It("notifies observers of each row", func() {
			var seen []float64
			opts.Observers = []master.Observer{master.ObserverFunc(func(r master.Row) {
				seen = append(seen, r.Time)
			})}
			_, err := build().Run(context.Background())
			Expect(err).NotTo(HaveOccurred())
			Expect(seen).To(HaveLen(10))
		})

		It("counts steps by floor of the span", func() {
			Expect(master.StepCount(0, 1, 0.1)).To(Equal(10))
			Expect(master.StepCount(0, 0.3, 0.1)).To(Equal(3))
			Expect(master.StepCount(0, 1, 0.3)).To(Equal(3))
		})
	})

	Describe("failures", func() {
		It("aborts on a step error and still tears everything down", func() {
			a.statuses[5] = fmi.StatusError
			log, err := build().Run(context.Background())

			var runErr *master.RunError
			Expect(errors.As(err, &runErr)).To(BeTrue())
			Expect(runErr.Step).To(Equal(4))
			Expect(runErr.Component).To(Equal("A"))
			Expect(runErr.Status).To(Equal(fmi.StatusError))
			Expect(runErr.Time).To(BeNumerically("~", 0.4, 1e-12))
			Expect(errors.Is(err, fmi.ErrStepError)).To(BeTrue())
			Expect(log.Rows).To(HaveLen(4))

			// B was never stepped a fifth time.
			Expect(b.stepCalls).To(Equal(4))
			Expect(count(journal, "B:terminate")).To(Equal(1))
			Expect(count(journal, "B:free")).To(Equal(1))
			Expect(count(journal, "A:terminate")).To(Equal(1))
			Expect(count(journal, "A:free")).To(Equal(1))
		})

		It("treats a discarded step as fatal by default", func() {
			b.statuses[2] = fmi.StatusDiscard
			_, err := build().Run(context.Background())
			Expect(errors.Is(err, fmi.ErrStepDiscarded)).To(BeTrue())

			var runErr *master.RunError
			Expect(errors.As(err, &runErr)).To(BeTrue())
			Expect(runErr.Status).To(Equal(fmi.StatusDiscard))
			Expect(runErr.Component).To(Equal("B"))
			Expect(count(journal, "A:terminate")).To(Equal(1))
		})

		It("retries a discarded step in halves when asked to", func() {
			b.statuses[2] = fmi.StatusDiscard
			opts.Discard = master.Subdivide{MaxDepth: 2}
			log, err := build().Run(context.Background())
			Expect(err).NotTo(HaveOccurred())
			Expect(log.Rows).To(HaveLen(10))

			// Step 1 ran whole, step 2 as two halves.
			Expect(b.steps[1].T).To(BeNumerically("~", 0.1, 1e-12))
			Expect(b.steps[1].H).To(BeNumerically("~", 0.05, 1e-12))
			Expect(b.steps[2].T).To(BeNumerically("~", 0.15, 1e-12))
			Expect(b.steps[3].H).To(BeNumerically("~", 0.1, 1e-12))
		})

		It("gives up when halving does not help", func() {
			for call := 2; call < 20; call++ {
				b.statuses[call] = fmi.StatusDiscard
			}
			opts.Discard = master.Subdivide{MaxDepth: 3}
			_, err := build().Run(context.Background())
			Expect(errors.Is(err, fmi.ErrStepDiscarded)).To(BeTrue())
		})

		It("stops between steps when the context is canceled", func() {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			opts.Observers = []master.Observer{master.ObserverFunc(func(r master.Row) {
				if r.Step == 2 {
					cancel()
				}
			})}
			log, err := build().Run(ctx)
			Expect(errors.Is(err, master.ErrCanceled)).To(BeTrue())
			Expect(errors.Is(err, context.Canceled)).To(BeTrue())
			Expect(log.Rows).To(HaveLen(3))
			Expect(count(journal, "A:terminate")).To(Equal(1))
			Expect(count(journal, "B:terminate")).To(Equal(1))
		})

		It("tears down when Run panics inside an observer", func() {
			opts.Observers = []master.Observer{master.ObserverFunc(func(r master.Row) {
				panic("observer blew up")
			})}
			s := build()
			Expect(func() { _, _ = s.Run(context.Background()) }).To(Panic())
			Expect(count(journal, "A:terminate")).To(Equal(1))
			Expect(count(journal, "A:free")).To(Equal(1))
			Expect(count(journal, "B:free")).To(Equal(1))
		})
	})

	Describe("attack injection", func() {
		It("applies parameters before the step and substitutes staged inputs", func() {
			opts.Attack = scriptedInjector{
				params: []attack.Override{
					{Component: "A", Variable: "p", Value: 2},
					{Component: "A", Variable: "not_here", Value: 1},
				},
				substitute: func(staged attack.Staged, read attack.Reader) []attack.Override {
					v, ok := staged.Staged("B", "i")
					Expect(ok).To(BeTrue())
					cur, ok := read.Read("A", "o")
					Expect(ok).To(BeTrue())
					// Staged and current agree: both are pre-step values.
					Expect(v).To(Equal(cur))
					return []attack.Override{{Component: "B", Variable: "i", Value: v + 1000}}
				},
			}
			_, err := build().Run(context.Background())
			Expect(err).NotTo(HaveOccurred())
			Expect(a.steps[0].Inputs["p"]).To(Equal(2.0))
			Expect(b.steps[0].Inputs["i"]).To(Equal(1005.0))
			Expect(b.steps[1].Inputs["i"]).To(Equal(1015.0))
		})

		It("drives a real heading-bias scenario through the relay", func() {
			ctrl := newFake("ctrl", &journal, in("psi_gyro", 0), out("s", 3))
			rover := newFake("rover", &journal, out("psi_meas", 0.25))
			cfg := attack.DefaultConfig()
			cfg.Scenario = attack.IDHeadingBias
			st, err := attack.New(cfg, 5)
			Expect(err).NotTo(HaveOccurred())
			hb := st.Scenario().(attack.HeadingBias)

			s, err := master.New(
				[]master.Member{ctrl.member(), rover.member()},
				[]master.Edge{{From: master.Port{"rover", "psi_meas"}, To: master.Port{"ctrl", "psi_gyro"}}},
				master.Options{Start: 0, Stop: 0.2, Step: 0.1, Attack: st},
			)
			Expect(err).NotTo(HaveOccurred())
			_, err = s.Run(context.Background())
			Expect(err).NotTo(HaveOccurred())
			Expect(ctrl.steps[0].Inputs["psi_gyro"]).To(Equal(0.25 + hb.Level*hb.Bias))
		})
	})

	Describe("session", func() {
		It("refuses to step before start and after completion", func() {
			s := build()
			sess := s.NewSession()
			defer sess.Close()

			_, err := sess.Step(context.Background())
			Expect(err).To(MatchError(master.ErrNotStarted))

			Expect(sess.Start(context.Background())).To(Succeed())
			for !sess.Done() {
				_, err := sess.Step(context.Background())
				Expect(err).NotTo(HaveOccurred())
			}
			Expect(sess.Index()).To(Equal(10))
			_, err = sess.Step(context.Background())
			Expect(err).To(MatchError(master.ErrSessionDone))

			Expect(sess.Close()).To(Succeed())
			Expect(sess.Close()).To(Succeed())
			Expect(count(journal, "A:free")).To(Equal(1))
		})

		It("leaves the stop time undefined unless asked", func() {
			_, err := build().Run(context.Background())
			Expect(err).NotTo(HaveOccurred())
			Expect(a.stopSet).To(BeFalse())

			opts.StopTimeDefined = true
			_, err = build().Run(context.Background())
			Expect(err).NotTo(HaveOccurred())
			Expect(a.stopSet).To(BeTrue())
		})

		It("writes initial values during initialization", func() {
			opts.Initial = []master.Assignment{{Port: master.Port{"A", "p"}, Value: 9}}
			_, err := build().Run(context.Background())
			Expect(err).NotTo(HaveOccurred())
			Expect(a.steps[0].Inputs["p"]).To(Equal(9.0))
		})
	})
})
