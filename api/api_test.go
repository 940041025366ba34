package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"YoloDetServer/engine"
	iface "YoloDetServer/interface"
	"YoloDetServer/profile"
	"YoloDetServer/worker"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeRunner struct {
	err error
}

func (f *fakeRunner) Run(ctx context.Context, job iface.Job) (iface.JobResult, error) {
	if f.err != nil {
		return iface.JobResult{}, f.err
	}
	if job.Profile != "yolov3" {
		return iface.JobResult{}, fmt.Errorf("%w: %q", profile.ErrUnknownProfile, job.Profile)
	}
	if string(job.Image) != "img" {
		return iface.JobResult{}, worker.ErrInvalidImage
	}
	res := iface.JobResult{
		ID:         "job-1",
		Profile:    job.Profile,
		Detections: []iface.Detection{iface.NewDetection(2, "car", 0.75, 5, 5, 25, 15)},
		Width:      64,
		Height:     48,
	}
	if job.Annotate {
		res.Annotated = []byte("jpeg")
	}
	return res, nil
}

func (f *fakeRunner) Engines() []iface.EngineConfig {
	return []iface.EngineConfig{{NetName: "yolov3", Names: []string{"person", "bicycle", "car"}, Conf: 0.5, Nms: 0.4}}
}

type reply struct {
	Data  detectReply `json:"data"`
	Error string      `json:"error"`
}

func newTestServer(runner iface.Runner, opts ...Option) *Server {
	return New(runner, append([]Option{WithLogger(zap.NewNop())}, opts...)...)
}

func do(t *testing.T, h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestPing(t *testing.T) {
	r := newTestServer(&fakeRunner{}).Router()
	w := do(t, r, httptest.NewRequest(http.MethodGet, "/api/ping", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"message":"pong"}`, w.Body.String())
}

func TestProfiles(t *testing.T) {
	r := newTestServer(&fakeRunner{}).Router()

	w := do(t, r, httptest.NewRequest(http.MethodGet, "/api/profiles", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Data []profileView `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list.Data, 4)
	for _, p := range list.Data {
		assert.Equal(t, p.NetName == "yolov3", p.Served, p.NetName)
	}

	w = do(t, r, httptest.NewRequest(http.MethodGet, "/api/profiles/yolov3", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var one struct {
		Data profileView `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &one))
	assert.Equal(t, 416, one.Data.InpWidth)
	assert.True(t, one.Data.Served)
	require.NotNil(t, one.Data.Engine)
	assert.Len(t, one.Data.Engine.Names, 3)

	w = do(t, r, httptest.NewRequest(http.MethodGet, "/api/profiles/yolov4", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"served":false`)
	assert.NotContains(t, w.Body.String(), `"engine"`)

	w = do(t, r, httptest.NewRequest(http.MethodGet, "/api/profiles/nope", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func jsonRequest(path, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestDetect_JSON(t *testing.T) {
	r := newTestServer(&fakeRunner{}).Router()
	img := base64.StdEncoding.EncodeToString([]byte("img"))

	w := do(t, r, jsonRequest("/api/detect/yolov3", `{"image":"data:image/jpeg;base64,`+img+`","annotate":true}`))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var got reply
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, "job-1", got.Data.ID)
	assert.Equal(t, []byte("jpeg"), got.Data.Annotated)
	if assert.Len(t, got.Data.Detections, 1) {
		d := got.Data.Detections[0]
		assert.Equal(t, "car", d.Label)
		assert.Equal(t, 2, d.ClassID)
		assert.Equal(t, 25, d.Right)
		assert.Equal(t, iface.Position{X: 15, Y: 10}, d.Center)
	}

	cases := []struct {
		path, body string
		code       int
	}{
		{"/api/detect/yolov3", `{"image":"***"}`, http.StatusBadRequest},
		{"/api/detect/yolov3", `{}`, http.StatusBadRequest},
		{"/api/detect/yolov3", `{"image":"` + base64.StdEncoding.EncodeToString([]byte("x")) + `"}`, http.StatusBadRequest},
		{"/api/detect/yolov9", `{"image":"` + img + `"}`, http.StatusNotFound},
	}
	for _, c := range cases {
		w := do(t, r, jsonRequest(c.path, c.body))
		assert.Equal(t, c.code, w.Code, c.body)
		assert.Contains(t, w.Body.String(), `"error"`)
	}
}

func TestDetect_Multipart(t *testing.T) {
	r := newTestServer(&fakeRunner{}).Router()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "bus.jpg")
	require.NoError(t, err)
	_, err = fw.Write([]byte("img"))
	require.NoError(t, err)
	require.NoError(t, mw.WriteField("annotate", "false"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/detect/yolov3", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := do(t, r, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var got reply
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Len(t, got.Data.Detections, 1)
	assert.Empty(t, got.Data.Annotated)
	assert.Equal(t, 64, got.Data.Width)

	// multipart without the file part
	buf.Reset()
	mw = multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("annotate", "true"))
	require.NoError(t, mw.Close())
	req = httptest.NewRequest(http.MethodPost, "/api/detect/yolov3", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	assert.Equal(t, http.StatusBadRequest, do(t, r, req).Code)
}

func TestHTTPStatus(t *testing.T) {
	cases := map[error]int{
		worker.ErrPoolClosed:      http.StatusServiceUnavailable,
		engine.ErrNotLoaded:       http.StatusServiceUnavailable,
		engine.ErrBusy:            http.StatusTooManyRequests,
		context.DeadlineExceeded:  http.StatusGatewayTimeout,
		errors.New("boom"):        http.StatusInternalServerError,
		profile.ErrUnknownProfile: http.StatusNotFound,
		worker.ErrInvalidImage:    http.StatusBadRequest,
	}
	for err, code := range cases {
		assert.Equal(t, code, httpStatus(fmt.Errorf("wrapped: %w", err)), err.Error())
	}
}

func dialWS(t *testing.T, srv *httptest.Server, path string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + path
	return websocket.DefaultDialer.Dial(url, nil)
}

func TestStream(t *testing.T) {
	s := newTestServer(&fakeRunner{})
	srv := httptest.NewServer(s.Router())
	defer srv.Close()

	conn, _, err := dialWS(t, srv, "/ws/yolov3?annotate=true")
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(base64.StdEncoding.EncodeToString([]byte("img")))))
	var r wsReply
	require.NoError(t, conn.ReadJSON(&r))
	assert.Equal(t, 0, r.Seq)
	assert.Empty(t, r.Error)
	require.NotNil(t, r.Result)
	assert.Len(t, r.Result.Detections, 1)
	assert.Equal(t, []byte("jpeg"), r.Result.Annotated)
	assert.Equal(t, 1, s.Sessions())

	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte("img")))
	r = wsReply{}
	require.NoError(t, conn.ReadJSON(&r))
	assert.Equal(t, 1, r.Seq)
	require.NotNil(t, r.Result)

	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte("garbage")))
	r = wsReply{}
	require.NoError(t, conn.ReadJSON(&r))
	assert.Nil(t, r.Result)
	assert.Contains(t, r.Error, worker.ErrInvalidImage.Error())

	require.NoError(t, s.Shutdown(context.Background()))
	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "%v", err)
	assert.Equal(t, 0, s.Sessions())
}

func TestStream_NotServed(t *testing.T) {
	srv := httptest.NewServer(newTestServer(&fakeRunner{}).Router())
	defer srv.Close()

	_, resp, err := dialWS(t, srv, "/ws/yolov4")
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestStream_IdleTimeout(t *testing.T) {
	s := newTestServer(&fakeRunner{}, WithIdleTimeout(100*time.Millisecond))
	srv := httptest.NewServer(s.Router())
	defer srv.Close()

	conn, _, err := dialWS(t, srv, "/ws/yolov3")
	require.NoError(t, err)
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "%v", err)
	assert.Eventually(t, func() bool { return s.Sessions() == 0 }, time.Second, 10*time.Millisecond)
}
