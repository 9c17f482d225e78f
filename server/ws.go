package server

import (
	"errors"
	"net/http"

	"IntakeDetServer/detect"
	"IntakeDetServer/logger"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const wsReadLimit = 20 * 1024 * 1024

func (s *Server) upgrader() *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || s.origins.Allowed(origin)
		},
	}
}

// detectStream runs detection on every frame of a websocket session. Text
// frames carry base64 images, binary frames carry raw image bytes.
func (s *Server) detectStream(c *gin.Context) {
	conf, err := s.confidence(c)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": err.Error()})
		return
	}

	conn, err := s.upgrader().Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// the upgrader already wrote the response
		return
	}
	defer conn.Close()
	conn.SetReadLimit(wsReadLimit)

	sessionID := c.GetString(requestIDKey)
	logger.Log().Info("stream session opened", zap.String("session", sessionID))
	ctx := c.Request.Context()
	for {
		mt, msg, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Log().Warn("stream session read failed", zap.String("session", sessionID), zap.Error(err))
			}
			logger.Log().Info("stream session closed", zap.String("session", sessionID))
			return
		}

		var data []byte
		switch mt {
		case websocket.TextMessage:
			data, err = detect.DecodeBase64(string(msg))
		case websocket.BinaryMessage:
			data = msg
		default:
			err = errors.New("unsupported message type")
		}
		var reply any
		if err == nil {
			var result *detect.Result
			result, err = s.detector.Detect(ctx, data, conf)
			if err == nil {
				s.mon.ObserveDetection(result.DetectedCount)
				reply = result
			}
		}
		if err != nil {
			reply = gin.H{"detail": err.Error()}
		}
		if err := conn.WriteJSON(reply); err != nil {
			logger.Log().Warn("stream session write failed", zap.String("session", sessionID), zap.Error(err))
			return
		}
	}
}
