package worker

import (
	"context"
	"encoding/base64"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	iface "YoloDetServer/interface"
	"YoloDetServer/profile"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

type MockBackend struct {
	name   string
	calls  atomic.Int32
	closed atomic.Bool
	delay  time.Duration
	fail   error
}

func (m *MockBackend) Detect(frame *gocv.Mat) ([]iface.Detection, error) {
	return m.Infer(frame)
}

func (m *MockBackend) Infer(frame *gocv.Mat) ([]iface.Detection, error) {
	m.calls.Add(1)
	time.Sleep(m.delay)
	if m.fail != nil {
		return nil, m.fail
	}
	return []iface.Detection{iface.NewDetection(0, "mock", 0.99, 1, 1, 3, 3)}, nil
}

func (m *MockBackend) CheckConfig() iface.EngineConfig {
	return iface.EngineConfig{NetName: m.name, Names: []string{"mock"}, Conf: 0.5, Nms: 0.4}
}

func (m *MockBackend) Close() error {
	m.closed.Store(true)
	return nil
}

func encodedImage(t *testing.T) []byte {
	t.Helper()
	img := gocv.NewMatWithSize(224, 224, gocv.MatTypeCV8UC3)
	defer img.Close()
	data, err := EncodeJPEG(img)
	require.NoError(t, err)
	return data
}

func mockFactory(made *[]*MockBackend, mu *sync.Mutex, tweak func(*MockBackend)) Factory {
	return func(p profile.ModelProfile) (iface.Backend, error) {
		m := &MockBackend{name: p.NetName}
		if tweak != nil {
			tweak(m)
		}
		mu.Lock()
		*made = append(*made, m)
		mu.Unlock()
		return m, nil
	}
}

func TestPool_Run(t *testing.T) {
	var made []*MockBackend
	var mu sync.Mutex
	p3, _ := profile.Lookup("yolov3")
	p4, _ := profile.Lookup("yolov4")
	pool, err := NewPool([]profile.ModelProfile{p3, p4}, 2, mockFactory(&made, &mu, nil))
	require.NoError(t, err)
	assert.Len(t, made, 4)
	assert.Equal(t, 2, pool.Workers("yolov4"))

	img := encodedImage(t)
	res, err := pool.Run(context.Background(), iface.Job{Profile: "yolov3", Image: img})
	require.NoError(t, err)
	assert.NotEmpty(t, res.ID)
	assert.Equal(t, "yolov3", res.Profile)
	assert.Equal(t, 224, res.Width)
	require.Len(t, res.Detections, 1)
	assert.Equal(t, "mock", res.Detections[0].Label)
	assert.Nil(t, res.Annotated)

	res, err = pool.Run(context.Background(), iface.Job{Profile: "yolov4", Image: img, Annotate: true})
	require.NoError(t, err)
	assert.NotEmpty(t, res.Annotated)

	engines := pool.Engines()
	require.Len(t, engines, 2)
	assert.Equal(t, "yolov3", engines[0].NetName)
	assert.Equal(t, "yolov4", engines[1].NetName)

	require.NoError(t, pool.Close())
	for _, m := range made {
		assert.True(t, m.closed.Load())
	}
	_, err = pool.Run(context.Background(), iface.Job{Profile: "yolov3", Image: img})
	assert.ErrorIs(t, err, ErrPoolClosed)
	assert.NoError(t, pool.Close())
}

func TestPool_Errors(t *testing.T) {
	var made []*MockBackend
	var mu sync.Mutex
	boom := errors.New("boom")
	p3, _ := profile.Lookup("yolov3")
	pool, err := NewPool([]profile.ModelProfile{p3}, 1, mockFactory(&made, &mu, func(m *MockBackend) { m.fail = boom }))
	require.NoError(t, err)
	defer pool.Close()

	_, err = pool.Run(context.Background(), iface.Job{Profile: "yolobile", Image: []byte("x")})
	assert.ErrorIs(t, err, profile.ErrUnknownProfile)

	_, err = pool.Run(context.Background(), iface.Job{Profile: "yolov3", Image: []byte("not an image")})
	assert.ErrorIs(t, err, ErrInvalidImage)

	_, err = pool.Run(context.Background(), iface.Job{Profile: "yolov3", Image: encodedImage(t)})
	assert.ErrorIs(t, err, boom)
}

func TestPool_ContextCancel(t *testing.T) {
	var made []*MockBackend
	var mu sync.Mutex
	p3, _ := profile.Lookup("yolov3")
	pool, err := NewPool([]profile.ModelProfile{p3}, 1, mockFactory(&made, &mu, func(m *MockBackend) { m.delay = 200 * time.Millisecond }))
	require.NoError(t, err)
	defer pool.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = pool.Run(ctx, iface.Job{Profile: "yolov3", Image: encodedImage(t)})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNewPool_FactoryError(t *testing.T) {
	var made []*MockBackend
	var mu sync.Mutex
	ok := mockFactory(&made, &mu, nil)
	calls := 0
	factory := func(p profile.ModelProfile) (iface.Backend, error) {
		calls++
		if calls == 3 {
			return nil, errors.New("load failed")
		}
		return ok(p)
	}
	p3, _ := profile.Lookup("yolov3")
	p4, _ := profile.Lookup("yolov4")
	pool, err := NewPool([]profile.ModelProfile{p3, p4}, 2, factory)
	assert.Nil(t, pool)
	assert.Error(t, err)
	require.Len(t, made, 2)
	for _, m := range made {
		assert.True(t, m.closed.Load())
	}
}

func TestDecodeBase64(t *testing.T) {
	raw := []byte{0xff, 0xd8, 0xff}
	enc := base64.StdEncoding.EncodeToString(raw)

	got, err := DecodeBase64(enc)
	require.NoError(t, err)
	assert.Equal(t, raw, got)

	got, err = DecodeBase64("data:image/jpeg;base64," + enc)
	require.NoError(t, err)
	assert.Equal(t, raw, got)

	_, err = DecodeBase64("%%%")
	assert.ErrorIs(t, err, ErrInvalidImage)
}

func TestDecodeImage(t *testing.T) {
	mat, err := DecodeImage(encodedImage(t))
	require.NoError(t, err)
	assert.Equal(t, 224, mat.Rows())
	mat.Close()

	for _, data := range [][]byte{nil, []byte("not an image")} {
		mat, err := DecodeImage(data)
		assert.ErrorIs(t, err, ErrInvalidImage)
		assert.True(t, mat.Closed(), "failed decode must not hand back native memory")
	}
}
