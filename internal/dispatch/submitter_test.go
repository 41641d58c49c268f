package dispatch

import (
	"context"
	"errors"
	"net/http"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	testingclock "k8s.io/utils/clock/testing"

	"github.com/kubev2v/workflow-dispatcher/internal/client"
)

var _ = Describe("submitter", func() {
	var (
		ctx     context.Context
		clk     *testingclock.FakeClock
		rc      *RunContext
		service *fakeService
		s       *Submitter
		job     *Job
	)

	BeforeEach(func() {
		ctx = context.TODO()
		clk = testingclock.NewFakeClock(time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC))
		rc = NewRunContext(2, 1, clk.Now(), clk.Now().Add(time.Hour))
		service = &fakeService{listRuns: []*client.Run{{ID: 42, HTMLURL: "https://github.com/acme/a/actions/runs/42"}}}
		s = NewSubmitter(rc, service, testOptions(clk))
		job = newTestJob("a")
	})

	doneJobs := func() []*Job {
		return rc.Done.Drain()
	}

	It("registers the single matching run", func() {
		Expect(s.submit(ctx, job)).To(Succeed())

		Expect(job.State()).To(Equal(StateRegistered))
		Expect(job.RunID).To(BeEquivalentTo(42))
		Expect(job.SubmittedAt).To(Equal(clk.Now()))
		Expect(rc.InProgress.Len()).To(Equal(1))
		Expect(rc.Done.Len()).To(BeZero())
	})

	It("retires a denied dispatch without looking up runs", func() {
		service.triggerErr = &client.HTTPError{Operation: client.OperationTrigger, StatusCode: http.StatusUnprocessableEntity, Body: "Unexpected inputs"}

		Expect(s.submit(ctx, job)).To(Succeed())

		Expect(job.State()).To(Equal(StateDispatchFailed))
		Expect(job.FailureReason).To(ContainSubstring("dispatch denied with HTTP 422"))
		Expect(job.SubmittedAt).NotTo(BeZero())
		Expect(job.RunID).To(BeZero())
		Expect(doneJobs()).To(ConsistOf(job))
		Expect(rc.InProgress.Len()).To(BeZero())

		_, lists, gets := service.calls()
		Expect(lists).To(BeZero())
		Expect(gets).To(BeZero())
	})

	It("retires a dispatch that never reached the platform", func() {
		service.triggerErr = errors.New("connection refused")

		Expect(s.submit(ctx, job)).To(Succeed())

		Expect(job.State()).To(Equal(StateDispatchFailed))
		Expect(job.FailureReason).To(Equal("dispatch failed: connection refused"))
	})

	It("fails registration when no run matches", func() {
		service.listRuns = nil

		Expect(s.submit(ctx, job)).To(Succeed())

		Expect(job.State()).To(Equal(StateRegisterFailed))
		Expect(job.FailureReason).To(HavePrefix("no run created between 2024-05-01T10:00:00Z and 2024-05-01T10:00:00Z"))
		Expect(job.RunID).To(BeZero())
		Expect(doneJobs()).To(ConsistOf(job))
	})

	It("fails registration when several runs match", func() {
		service.listRuns = []*client.Run{{ID: 1}, {ID: 2}}

		Expect(s.submit(ctx, job)).To(Succeed())

		Expect(job.State()).To(Equal(StateRegisterFailed))
		Expect(job.FailureReason).To(Equal("ambiguous registration: 2 runs matched (1, 2)"))
		Expect(job.RunID).To(BeZero())
	})

	It("fails registration when the lookup fails", func() {
		service.listErr = &client.HTTPError{Operation: client.OperationListRuns, StatusCode: http.StatusBadGateway}

		Expect(s.submit(ctx, job)).To(Succeed())

		Expect(job.State()).To(Equal(StateRegisterFailed))
		Expect(job.FailureReason).To(HavePrefix("registration lookup failed"))
	})

	It("times out a job taken after the stop", func() {
		rc.Stop.Raise(ReasonRunDeadline)

		Expect(s.submit(ctx, job)).To(Succeed())

		Expect(job.State()).To(Equal(StateTimedOut))
		Expect(job.FailureReason).To(Equal(ReasonRunDeadline))
		triggers, _, _ := service.calls()
		Expect(triggers).To(BeZero())
	})

	It("times out a registered job waiting for a polling slot", func() {
		Expect(rc.InProgress.Put(ctx, rc.Stop.Done(), newTestJob("busy"))).To(Succeed())

		errCh := make(chan error, 1)
		go func() {
			errCh <- s.submit(ctx, job)
		}()
		Consistently(errCh, 30*time.Millisecond).ShouldNot(Receive())

		rc.Stop.Raise(ReasonRunDeadline)
		Eventually(errCh).Should(Receive(BeNil()))

		Expect(job.State()).To(Equal(StateTimedOut))
		Expect(job.RunID).To(BeEquivalentTo(42))
		Expect(job.FailureReason).To(Equal(ReasonRunDeadline))
		Expect(rc.InProgress.Len()).To(Equal(1))
	})

	It("reports an illegal transition as fatal", func() {
		Expect(job.fail(StateTimedOut, "already", clk.Now())).To(Succeed())
		Expect(s.submit(ctx, job)).To(MatchError(ErrIllegalTransition))
	})

	DescribeTable("branch of a ref",
		func(ref, branch string) {
			Expect(branchOf(ref)).To(Equal(branch))
		},
		Entry("plain branch", "main", "main"),
		Entry("full branch ref", "refs/heads/release-1.2", "release-1.2"),
		Entry("tag ref", "refs/tags/v1.0.0", "v1.0.0"),
	)
})
