package worker

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"gocv.io/x/gocv"
)

var ErrInvalidImage = errors.New("invalid image")

// DecodeBase64 accepts plain base64 or a data:image/...;base64, URL.
func DecodeBase64(b64 string) ([]byte, error) {
	// 去掉可能的 data URL 前缀
	if i := strings.Index(b64, ","); i != -1 && strings.HasPrefix(b64, "data:") {
		b64 = b64[i+1:]
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(b64))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	return data, nil
}

// DecodeImage turns encoded image bytes (jpg, png, ...) into a BGR Mat. On
// error the returned Mat holds no native memory and needs no Close.
func DecodeImage(data []byte) (gocv.Mat, error) {
	if len(data) == 0 {
		return gocv.Mat{}, fmt.Errorf("%w: no data", ErrInvalidImage)
	}
	mat, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil {
		if !mat.Closed() {
			_ = mat.Close()
		}
		return gocv.Mat{}, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	if mat.Empty() {
		// IMDecode 返回空 Mat 表示解码失败
		_ = mat.Close()
		return gocv.Mat{}, fmt.Errorf("%w: decoded image is empty or unsupported format", ErrInvalidImage)
	}
	return mat, nil
}

func EncodeJPEG(mat gocv.Mat) ([]byte, error) {
	buf, err := gocv.IMEncode(gocv.JPEGFileExt, mat)
	if err != nil {
		return nil, err
	}
	defer buf.Close()
	return append([]byte(nil), buf.GetBytes()...), nil
}
