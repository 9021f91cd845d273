package echoapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"

	"github.com/trezcool/wazazi/core"
	"github.com/trezcool/wazazi/core/push"
	"github.com/trezcool/wazazi/core/readtrack"
	"github.com/trezcool/wazazi/core/school"
	"github.com/trezcool/wazazi/core/user"
	emailsvc "github.com/trezcool/wazazi/services/email"
	metricsvc "github.com/trezcool/wazazi/services/metrics"
	inmemdb "github.com/trezcool/wazazi/storage/database/inmem"
	"github.com/trezcool/wazazi/storage/docrepos"
	"github.com/trezcool/wazazi/storage/revocation"
	testutil "github.com/trezcool/wazazi/tests"
)

var errMissingToken = httpErr{Error: "missing or malformed jwt"}

// guardedStore denies every query while deny is set, like a store whose security rules
// stopped matching the signed-in user.
type guardedStore struct {
	core.DocStore
	deny atomic.Bool
}

func (s *guardedStore) Query(ctx context.Context, q core.Query) ([]core.Document, error) {
	if s.deny.Load() {
		return nil, core.ErrPermissionDenied
	}
	return s.DocStore.Query(ctx, q)
}

type testApp struct {
	srv        *Server
	store      *guardedStore
	userRepo   user.Repository
	schoolRepo school.Repository
	sessions   *readtrack.Registry
	mail       *emailsvc.ConsoleServiceMock
}

func setup(t *testing.T) *testApp {
	t.Helper()

	conf := testutil.NewConfig()
	logger := testutil.NewLogger()

	// set up DB & repos
	store := &guardedStore{DocStore: inmemdb.Open()}
	userRepo := docrepos.NewUserRepository(store)
	schoolRepo := docrepos.NewSchoolRepository(store)

	// set up services
	mailSvc := emailsvc.NewConsoleServiceMock(conf, logger)
	usrSvc := user.NewService(userRepo, mailSvc, conf)
	registry := prometheus.NewRegistry()
	agg := readtrack.NewAggregator(schoolRepo, logger, readtrack.Options{Recorder: metricsvc.NewRecorder(registry)})
	sessions := readtrack.NewRegistry(agg, logger)

	validate, translator := testutil.NewValidator()

	// set up server
	srv := NewServer(ServerDeps{
		Conf:           conf,
		Logger:         logger,
		UserSvc:        usrSvc,
		PushSvc:        push.NewService(usrSvc, sessions, logger),
		Sessions:       sessions,
		Revoker:        revocation.NewMemRevoker(),
		Validate:       validate,
		Translator:     translator,
		Metrics:        promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		DisableReqLogs: true,
	})
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })

	return &testApp{
		srv:        srv,
		store:      store,
		userRepo:   userRepo,
		schoolRepo: schoolRepo,
		sessions:   sessions,
		mail:       mailSvc,
	}
}

func (app *testApp) do(req *http.Request, rec *httptest.ResponseRecorder) *httptest.ResponseRecorder {
	app.srv.ServeHTTP(rec, req)
	return rec
}

func (app *testApp) getToken(t *testing.T, usr user.User) string {
	t.Helper()
	token, err := app.srv.auth.generateToken(app.srv.auth.userClaims(usr))
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	return token
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

func marshalObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marshalObj() failed: %v", err)
	}
	return data
}

func unmarshal(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("unmarshal(%s) failed: %v", rec.Body.String(), err)
	}
}

func jsonBytesEqual(b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	return reflect.DeepEqual(j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	t.Helper()
	assert.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}
