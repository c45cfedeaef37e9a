package echoapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strconv"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kashur/backend/assets"
	"github.com/kashur/backend/core"
	"github.com/kashur/backend/core/idiom"
	"github.com/kashur/backend/core/learning"
	"github.com/kashur/backend/core/user"
	emailsvc "github.com/kashur/backend/services/email"
	logsvc "github.com/kashur/backend/services/logger"
	"github.com/kashur/backend/storage/database/sqlxrepos"
	"github.com/kashur/backend/storage/database/testutil"
)

var errMissingToken = httpErr{Error: "missing or malformed jwt"}

type testApp struct {
	server      *Server
	conf        *core.Config
	usrRepo     user.Repository
	learningSvc *learning.Service
	mailSvc     *emailsvc.ConsoleServiceMock
	validate    *validator.Validate
}

func setup(t *testing.T) *testApp {
	t.Helper()
	conf := core.NewTestConfig()
	logger := logsvc.NewNopLogger()

	// set up DB & repos
	db := testutil.PrepareDB(t)
	usrRepo := sqlxrepos.NewUserRepository(db)

	// set up services
	mailSvc := emailsvc.NewConsoleServiceMock(conf, logger)
	usrSvc := user.NewService(usrRepo, mailSvc, conf)
	idiomSvc := idiom.NewService(db, sqlxrepos.NewIdiomRepository(db), mailSvc)
	learningSvc := learning.NewService(sqlxrepos.NewLearningRepository(db), logger, conf.Learning)

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	learning.InitValidators(validate, translator)
	core.ParseEmailTemplates(assets.FS, conf, logger)

	// set up server
	server := NewServer(ServerDeps{
		Conf:        conf,
		Logger:      logger,
		UserSvc:     usrSvc,
		IdiomSvc:    idiomSvc,
		LearningSvc: learningSvc,
		Validate:    validate,
		Translator:  translator,
	})
	t.Cleanup(func() { _ = server.Shutdown(context.Background()) })

	return &testApp{
		server:      server,
		conf:        conf,
		usrRepo:     usrRepo,
		learningSvc: learningSvc,
		mailSvc:     mailSvc,
		validate:    validate,
	}
}

func (app *testApp) serve(req *http.Request, rec *httptest.ResponseRecorder) *httptest.ResponseRecorder {
	app.server.ServeHTTP(rec, req)
	return rec
}

func (app *testApp) token(t *testing.T, usr user.User) string {
	t.Helper()
	token, err := app.server.auth.tokenFor(usr)
	if err != nil {
		t.Fatalf("token() failed: %v", err)
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

func (app *testApp) runHTTPTests(t *testing.T, tests []httpTest) {
	t.Helper()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			method := tt.method
			if method == "" {
				method = http.MethodGet
			}
			req, rec := newAuthRequest(method, tt.path, tt.token, tt.body)
			app.serve(req, rec)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj() failed: %v", err)
	}
	return data
}

func marchallList(t *testing.T, objs ...interface{}) []byte {
	if objs == nil {
		objs = []interface{}{}
	}
	data, err := json.Marshal(objs)
	if err != nil {
		t.Fatalf("marchallList() failed: %v", err)
	}
	return data
}

func unmarshal(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
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

// responseCookie returns the named cookie set by the response.
func responseCookie(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
