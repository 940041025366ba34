package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"YoloDetServer/engine"
	iface "YoloDetServer/interface"
	"YoloDetServer/monitor"
	"YoloDetServer/profile"
	"YoloDetServer/worker"

	"github.com/gin-gonic/gin"
)

type profileView struct {
	profile.ModelProfile
	Served bool                `json:"served"`
	Engine *iface.EngineConfig `json:"engine,omitempty"`
}

type detectBody struct {
	Image    string `json:"image" binding:"required"`
	Annotate bool   `json:"annotate"`
}

type detectReply struct {
	ID         string            `json:"id"`
	Profile    string            `json:"profile"`
	Width      int               `json:"width"`
	Height     int               `json:"height"`
	Detections []iface.Detection `json:"detections"`
	Annotated  []byte            `json:"annotated,omitempty"`
}

func newDetectReply(res iface.JobResult) detectReply {
	dets := res.Detections
	if dets == nil {
		dets = []iface.Detection{}
	}
	return detectReply{
		ID:         res.ID,
		Profile:    res.Profile,
		Width:      res.Width,
		Height:     res.Height,
		Detections: dets,
		Annotated:  res.Annotated,
	}
}

func (s *Server) engineFor(name string) (iface.EngineConfig, bool) {
	for _, e := range s.runner.Engines() {
		if e.NetName == name {
			return e, true
		}
	}
	return iface.EngineConfig{}, false
}

func (s *Server) listProfiles(c *gin.Context) {
	all := profile.All()
	out := make([]profileView, 0, len(all))
	for _, p := range all {
		_, served := s.engineFor(p.NetName)
		out = append(out, profileView{ModelProfile: p, Served: served})
	}
	c.JSON(http.StatusOK, gin.H{"data": out})
}

func (s *Server) getProfile(c *gin.Context) {
	p, err := profile.Lookup(c.Param("name"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	view := profileView{ModelProfile: p}
	if e, ok := s.engineFor(p.NetName); ok {
		view.Served = true
		view.Engine = &e
	}
	c.JSON(http.StatusOK, gin.H{"data": view})
}

// detect accepts a multipart "file" upload or a JSON body with a base64 image.
func (s *Server) detect(c *gin.Context) {
	monitor.RequestsTotal.WithLabelValues("http").Inc()
	var job iface.Job
	job.Profile = c.Param("name")

	if c.ContentType() == gin.MIMEMultipartPOSTForm {
		fh, err := c.FormFile("file")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "File upload failed: " + err.Error()})
			return
		}
		f, err := fh.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		job.Image, err = io.ReadAll(f)
		_ = f.Close()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if v := c.PostForm("annotate"); v != "" {
			job.Annotate, _ = strconv.ParseBool(v)
		}
	} else {
		var body detectBody
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		data, err := worker.DecodeBase64(body.Image)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		job.Image = data
		job.Annotate = body.Annotate
	}

	res, err := s.runner.Run(c.Request.Context(), job)
	if err != nil {
		c.JSON(httpStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": newDetectReply(res)})
}

func httpStatus(err error) int {
	switch {
	case errors.Is(err, profile.ErrUnknownProfile):
		return http.StatusNotFound
	case errors.Is(err, worker.ErrInvalidImage), errors.Is(err, engine.ErrEmptyFrame):
		return http.StatusBadRequest
	case errors.Is(err, worker.ErrPoolClosed), errors.Is(err, engine.ErrNotLoaded):
		return http.StatusServiceUnavailable
	case errors.Is(err, engine.ErrBusy):
		return http.StatusTooManyRequests
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
