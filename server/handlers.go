package server

import (
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"

	"IntakeDetServer/logger"
	"IntakeDetServer/mailer"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func (s *Server) root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "service": ServiceName})
}

func (s *Server) health(c *gin.Context) {
	loaded := s.model.Loaded()
	status := "degraded"
	if loaded {
		status = "healthy"
	}
	c.JSON(http.StatusOK, gin.H{"status": status, "model_loaded": loaded})
}

// confidence reads the threshold from the query string, then the form.
func (s *Server) confidence(c *gin.Context) (float32, error) {
	raw, ok := c.GetQuery("confidence")
	if !ok {
		raw, ok = c.GetPostForm("confidence")
	}
	if !ok || raw == "" {
		return s.cfg.Detect.Confidence, nil
	}
	v, err := strconv.ParseFloat(raw, 32)
	if err != nil || math.IsNaN(v) {
		return 0, fmt.Errorf("confidence must be a number, got %q", raw)
	}
	if v < 0 || v > 1 {
		return 0, fmt.Errorf("confidence must be between 0.0 and 1.0, got %v", v)
	}
	return float32(v), nil
}

func (s *Server) detect(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.maxUploadBytes())

	fh, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"detail": fmt.Sprintf("upload exceeds %d bytes", tooLarge.Limit)})
			return
		}
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": "file: field required"})
		return
	}
	conf, err := s.confidence(c)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": err.Error()})
		return
	}

	f, err := fh.Open()
	if err != nil {
		s.detectFailed(c, fmt.Errorf("open upload: %w", err))
		return
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		s.detectFailed(c, fmt.Errorf("read upload: %w", err))
		return
	}

	result, err := s.detector.Detect(c.Request.Context(), data, conf)
	if err != nil {
		s.detectFailed(c, err)
		return
	}
	s.mon.ObserveDetection(result.DetectedCount)
	c.JSON(http.StatusOK, result)
}

func (s *Server) detectFailed(c *gin.Context, err error) {
	logger.Log().Error(fmt.Sprintf("Detection error: %v", err),
		zap.String(requestIDKey, c.GetString(requestIDKey)))
	_ = c.Error(err)
	c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
}

func (s *Server) sendEmail(c *gin.Context) {
	var req mailer.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		s.emailFailed(c, err)
		return
	}

	id, err := s.mail.New(req.APIKey).Send(c.Request.Context(), mailer.Compose(&req, s.cfg.Email.FromName))
	if err != nil {
		s.emailFailed(c, err)
		return
	}

	logger.Log().Info(fmt.Sprintf("Email sent successfully to %s, id: %s", req.ToEmail, id),
		zap.String(requestIDKey, c.GetString(requestIDKey)))
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Email sent successfully",
		"id":      id,
	})
}

func (s *Server) emailFailed(c *gin.Context, err error) {
	logger.Log().Error(fmt.Sprintf("Email error: %v", err),
		zap.String(requestIDKey, c.GetString(requestIDKey)))
	_ = c.Error(err)
	c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
}
