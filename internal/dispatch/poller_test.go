package dispatch

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	testingclock "k8s.io/utils/clock/testing"

	"github.com/kubev2v/workflow-dispatcher/internal/client"
)

var _ = Describe("poller", func() {
	var (
		ctx     context.Context
		clk     *testingclock.FakeClock
		rc      *RunContext
		service *fakeService
		p       *Poller
		job     *Job
	)

	BeforeEach(func() {
		ctx = context.TODO()
		clk = testingclock.NewFakeClock(time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC))
		rc = NewRunContext(1, 1, clk.Now(), clk.Now().Add(time.Hour))
		service = &fakeService{}
		p = NewPoller(0, rc, service, testOptions(clk))

		job = newTestJob("a")
		Expect(job.submit(clk.Now())).To(Succeed())
		Expect(job.register(&client.Run{ID: 42}, clk.Now())).To(Succeed())
		Expect(rc.InProgress.Put(ctx, rc.Stop.Done(), job)).To(Succeed())
	})

	// take hands the queued job to the test the way Run does.
	take := func() *Job {
		taken, ok := rc.InProgress.Take(ctx, time.Millisecond)
		Expect(ok).To(BeTrue())
		return taken
	}

	slotFree := func() bool {
		blocked, cancel := context.WithTimeout(ctx, 5*time.Millisecond)
		defer cancel()
		return rc.InProgress.Put(blocked, rc.Stop.Done(), newTestJob("probe")) == nil
	}

	It("retires a successful run and frees its slot", func() {
		service.run = &client.Run{ID: 42, Status: client.StatusCompleted, Conclusion: client.ConclusionSuccess}

		Expect(p.poll(ctx, take())).To(Succeed())

		Expect(job.State()).To(Equal(StateCompleted))
		Expect(job.Polls).To(Equal(1))
		Expect(rc.Done.Drain()).To(ConsistOf(job))
		Expect(slotFree()).To(BeTrue())
	})

	It("retires a failed run", func() {
		service.run = &client.Run{ID: 42, Status: client.StatusCompleted, Conclusion: "failure"}

		Expect(p.poll(ctx, take())).To(Succeed())

		Expect(job.State()).To(Equal(StateFailed))
		Expect(job.Outcome).To(Equal("failure"))
	})

	It("returns a run still in progress", func() {
		service.run = &client.Run{ID: 42, Status: "in_progress"}

		Expect(p.poll(ctx, take())).To(Succeed())

		Expect(job.State()).To(Equal(StateRunning))
		Expect(rc.InProgress.Len()).To(Equal(1))
		Expect(rc.Done.Len()).To(BeZero())
	})

	It("keeps the job after a failed status check", func() {
		service.getErr = errors.New("connection reset by peer")

		Expect(p.poll(ctx, take())).To(Succeed())
		Expect(p.poll(ctx, take())).To(Succeed())

		Expect(job.State()).To(Equal(StateRunning))
		Expect(job.Polls).To(Equal(2))
		Expect(rc.InProgress.Len()).To(Equal(1))
		Expect(rc.Done.Len()).To(BeZero())
		Expect(slotFree()).To(BeFalse())
	})

	It("times out a job past its own deadline without asking the platform", func() {
		clk.Step(time.Minute)

		Expect(p.poll(ctx, take())).To(Succeed())

		Expect(job.State()).To(Equal(StateTimedOut))
		Expect(job.FailureReason).To(Equal("per-job deadline reached (1m0s after submission)"))
		_, _, gets := service.calls()
		Expect(gets).To(BeZero())
		Expect(slotFree()).To(BeTrue())
	})

	It("times out a job once the run is stopped", func() {
		rc.Stop.Raise(ReasonInterrupted)

		Expect(p.poll(ctx, take())).To(Succeed())

		Expect(job.State()).To(Equal(StateTimedOut))
		Expect(job.FailureReason).To(Equal(ReasonInterrupted))
	})

	It("drains the polling stage after the stop", func() {
		service.run = &client.Run{ID: 42, Status: "in_progress"}
		rc.Stop.Raise(ReasonRunDeadline)

		Expect(p.Run(ctx)).To(Succeed())

		Expect(rc.InProgress.Len()).To(BeZero())
		Expect(rc.Done.Drain()).To(ConsistOf(job))
		Expect(job.State()).To(Equal(StateTimedOut))
	})
})
