package api

import (
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	iface "YoloDetServer/interface"
	"YoloDetServer/monitor"
	"YoloDetServer/worker"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type wsReply struct {
	Session string       `json:"session"`
	Seq     int          `json:"seq"`
	Result  *detectReply `json:"result,omitempty"`
	Error   string       `json:"error,omitempty"`
}

// stream serves one websocket session. Text frames carry base64 (data URLs
// allowed), binary frames carry raw encoded image bytes; every frame gets one
// JSON reply. A session idle for longer than idleTimeout is closed.
func (s *Server) stream(c *gin.Context) {
	name := c.Param("name")
	// 在升级前检查模型是否在服务
	if _, ok := s.engineFor(name); !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "profile " + strconv.Quote(name) + " is not served"})
		return
	}
	annotate, _ := strconv.ParseBool(c.Query("annotate"))

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// 升级失败，不要再写 JSON
		return
	}
	conn.SetReadLimit(wsReadLimit)

	id := uuid.NewString()
	s.addSession(id, conn)
	defer s.releaseSession(id)
	log := s.log.With(zap.String("session", id), zap.String("netname", name))
	log.Info("websocket session opened")

	ctx := c.Request.Context()
	for seq := 0; ; seq++ {
		_ = conn.SetReadDeadline(time.Now().Add(s.idleTimeout))
		mt, msg, err := conn.ReadMessage()
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "idle timeout, released"),
					time.Now().Add(time.Second))
			}
			log.Info("websocket session closed", zap.Error(err))
			return
		}
		monitor.RequestsTotal.WithLabelValues("ws").Inc()

		reply := wsReply{Session: id, Seq: seq}
		var data []byte
		switch mt {
		case websocket.TextMessage:
			data, err = worker.DecodeBase64(string(msg))
		case websocket.BinaryMessage:
			data = msg
		default:
			err = errors.New("unsupported message type")
		}
		if err == nil {
			var res iface.JobResult
			res, err = s.runner.Run(ctx, iface.Job{Profile: name, Image: data, Annotate: annotate})
			if err == nil {
				r := newDetectReply(res)
				reply.Result = &r
			}
		}
		if err != nil {
			reply.Error = err.Error()
		}
		if err := conn.WriteJSON(reply); err != nil {
			log.Warn("websocket write failed", zap.Error(err))
			return
		}
	}
}
