package archive_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/kubev2v/workflow-dispatcher/pkg/archive"
)

type objectStore struct {
	mu      sync.Mutex
	objects map[string]string
	types   map[string]string
}

func (s *objectStore) handler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut {
		w.WriteHeader(http.StatusNotImplemented)
		return
	}
	body, _ := io.ReadAll(r.Body)
	s.mu.Lock()
	s.objects[r.URL.Path] = string(body)
	s.types[r.URL.Path] = r.Header.Get("Content-Type")
	s.mu.Unlock()
	w.Header().Set("ETag", `"d41d8cd98f00b204e9800998ecf8427e"`)
	w.WriteHeader(http.StatusOK)
}

var _ = Describe("minio uploader", func() {
	var (
		store *objectStore
		ts    *httptest.Server
	)

	BeforeEach(func() {
		store = &objectStore{objects: map[string]string{}, types: map[string]string{}}
		ts = httptest.NewServer(http.HandlerFunc(store.handler))
	})

	AfterEach(func() {
		ts.Close()
	})

	It("uploads the report under the run id", func() {
		uploader, err := archive.NewMinioUploader(
			archive.WithEndpoint(strings.TrimPrefix(ts.URL, "http://")),
			archive.WithBucket("reports"),
			archive.WithRegion("us-east-1"),
			archive.WithAccessKey("access"),
			archive.WithSecretKey("secret"),
		)
		Expect(err).To(BeNil())
		Expect(uploader.Type()).To(Equal("minio"))

		key, err := uploader.Put(context.TODO(), "run-1", "md", "text/markdown", []byte("## report"))
		Expect(err).To(BeNil())
		Expect(key).To(Equal("run-1/report.md"))
		Expect(store.objects).To(HaveKeyWithValue("/reports/run-1/report.md", "## report"))
		Expect(store.types).To(HaveKeyWithValue("/reports/run-1/report.md", "text/markdown"))
	})

	It("reports a rejected upload", func() {
		denied := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
		}))
		defer denied.Close()

		uploader, err := archive.NewMinioUploader(
			archive.WithEndpoint(strings.TrimPrefix(denied.URL, "http://")),
			archive.WithBucket("reports"),
			archive.WithRegion("us-east-1"),
		)
		Expect(err).To(BeNil())

		_, err = uploader.Put(context.TODO(), "run-1", "csv", "text/csv", []byte("a,b"))
		Expect(err).NotTo(BeNil())
	})

	It("requires an endpoint and a bucket", func() {
		_, err := archive.NewMinioUploader(archive.WithEndpoint("localhost:9000"))
		Expect(err).NotTo(BeNil())
	})

	It("builds object keys", func() {
		Expect(archive.ObjectKey("abc", "report", "xlsx")).To(Equal("abc/report.xlsx"))
	})
})
