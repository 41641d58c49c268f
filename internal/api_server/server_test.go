package apiserver_test

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	apiserver "github.com/kubev2v/workflow-dispatcher/internal/api_server"
	"github.com/kubev2v/workflow-dispatcher/internal/dispatch"
	"github.com/kubev2v/workflow-dispatcher/pkg/requestid"
)

type fakeStatus struct {
	snapshot dispatch.Snapshot
	started  bool
}

func (f *fakeStatus) Snapshot() (dispatch.Snapshot, bool) {
	return f.snapshot, f.started
}

var _ = Describe("status server", func() {
	var (
		status *fakeStatus
		ts     *httptest.Server
	)

	BeforeEach(func() {
		status = &fakeStatus{}
		ts = httptest.NewServer(apiserver.NewRouter(status))
	})

	AfterEach(func() {
		ts.Close()
	})

	get := func(path string) (*http.Response, string) {
		resp, err := http.Get(ts.URL + path)
		Expect(err).To(BeNil())
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		Expect(err).To(BeNil())
		return resp, string(body)
	}

	It("answers health probes", func() {
		resp, body := get("/health")
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		Expect(body).To(MatchJSON(`{"status":"ok"}`))
		Expect(resp.Header.Get(requestid.Header)).NotTo(BeEmpty())
	})

	It("keeps the caller request id", func() {
		req, err := http.NewRequest(http.MethodGet, ts.URL+"/health", nil)
		Expect(err).To(BeNil())
		req.Header.Set(requestid.Header, "abc-123")

		resp, err := http.DefaultClient.Do(req)
		Expect(err).To(BeNil())
		defer resp.Body.Close()
		Expect(resp.Header.Get(requestid.Header)).To(Equal("abc-123"))
	})

	It("is unavailable before a run starts", func() {
		resp, body := get("/status")
		Expect(resp.StatusCode).To(Equal(http.StatusServiceUnavailable))
		Expect(body).To(ContainSubstring("no run started yet"))
	})

	It("reports the run progress", func() {
		status.started = true
		status.snapshot = dispatch.Snapshot{Total: 5, Pending: 2, InProgress: 1, Done: 2}

		resp, body := get("/status")
		Expect(resp.StatusCode).To(Equal(http.StatusOK))

		var reply map[string]any
		Expect(json.Unmarshal([]byte(body), &reply)).To(Succeed())
		Expect(reply).To(HaveKeyWithValue("total", BeNumerically("==", 5)))
		Expect(reply).To(HaveKeyWithValue("inProgress", BeNumerically("==", 1)))
		Expect(reply).To(HaveKeyWithValue("stopped", false))
	})

	It("exposes dispatcher and request metrics", func() {
		get("/health")

		resp, body := get("/metrics")
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		Expect(body).To(ContainSubstring("workflow_dispatcher_jobs_in_progress"))
		Expect(body).To(ContainSubstring(`chi_requests_total{code="200",method="GET",path="/health",service="status_server"}`))
	})

	It("stops serving when the context ends", func() {
		listener, err := net.Listen("tcp", "127.0.0.1:0")
		Expect(err).To(BeNil())

		ctx, cancel := context.WithCancel(context.TODO())
		srv := apiserver.NewStatusServer(listener.Addr().String(), listener, status)
		errCh := make(chan error, 1)
		go func() {
			errCh <- srv.Run(ctx)
		}()

		Eventually(func() error {
			resp, err := http.Get("http://" + listener.Addr().String() + "/health")
			if err == nil {
				resp.Body.Close()
			}
			return err
		}).Should(Succeed())

		cancel()
		Eventually(errCh, 2*time.Second).Should(Receive(BeNil()))
	})
})
